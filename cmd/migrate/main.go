// Command migrate manages the Postgres schema.
//
//	migrate -cmd up|down|status|to|create|validate [-dir path] [-version N] [-name slug]
//
// With no -dir the migrations embedded in the binary are used.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/gikundiro/fanpay-backend/pkg/config"
	"github.com/gikundiro/fanpay-backend/pkg/db"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|to|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory on disk (default: embedded)")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version for -cmd=to")
	flag.Parse()

	_ = godotenv.Load()
	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return errors.New("-name is required for create")
		}
		dir := opts.dir
		if dir == "" {
			dir = migrate.SourceDir
		}
		path, err := migrate.Scaffold(dir, opts.name, time.Now())
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		source, err := migrate.Source(opts.dir)
		if err != nil {
			return err
		}
		if err := migrate.Validate(source); err != nil {
			return err
		}
		fmt.Println("migrations ok")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": opts.cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return err
	}
	source, err := migrate.Source(opts.dir)
	if err != nil {
		return err
	}
	runner, err := migrate.NewRunner(sqlDB, source)
	if err != nil {
		return err
	}

	switch opts.cmd {
	case "up":
		applied, err := runner.Up(ctx)
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "applied", applied), "schema up to date")
	case "down":
		return runner.Down(ctx)
	case "status":
		return runner.Status(ctx, os.Stdout)
	case "to":
		version, err := strconv.ParseInt(opts.version, 10, 64)
		if err != nil {
			return fmt.Errorf("-version must be a migration version: %w", err)
		}
		return runner.To(ctx, version)
	default:
		return fmt.Errorf("unknown -cmd %q", opts.cmd)
	}
	return nil
}

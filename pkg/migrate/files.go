package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	fileNameRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	slugRe     = regexp.MustCompile(`[^a-z0-9]+`)
)

const scaffold = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert %[1]s
-- +goose StatementEnd
`

// Scaffold writes an empty <version>_<slug>.sql migration into dir, stamped
// with now in UTC, and returns its path.
func Scaffold(dir, name string, now time.Time) (string, error) {
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, now.UTC().Format(versionLayout)+"_"+slug+".sql")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	if _, err := fmt.Fprintf(f, scaffold, slug); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

// Validate checks every .sql file in fsys: a versioned snake_case name, a
// unique version, both goose sections and balanced statement blocks.
func Validate(fsys fs.FS) error {
	if fsys == nil {
		return errors.New("migration source is required")
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	versions := make(map[string]string, len(entries))
	var problems []error
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}
		m := fileNameRe.FindStringSubmatch(name)
		if m == nil {
			problems = append(problems, fmt.Errorf("%s: name must look like %s_name.sql", name, versionLayout))
			continue
		}
		if prev, dup := versions[m[1]]; dup {
			problems = append(problems, fmt.Errorf("%s: version %s already used by %s", name, m[1], prev))
		}
		versions[m[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		if err := checkAnnotations(string(body)); err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(problems...)
}

func checkAnnotations(sql string) error {
	up := strings.Index(sql, "-- +goose Up")
	down := strings.Index(sql, "-- +goose Down")
	switch {
	case up < 0:
		return errors.New("missing -- +goose Up")
	case down < 0:
		return errors.New("missing -- +goose Down")
	case down < up:
		return errors.New("Down section precedes Up")
	}
	begins := strings.Count(sql, "-- +goose StatementBegin")
	if ends := strings.Count(sql, "-- +goose StatementEnd"); begins != ends {
		return fmt.Errorf("%d StatementBegin but %d StatementEnd", begins, ends)
	}
	return nil
}

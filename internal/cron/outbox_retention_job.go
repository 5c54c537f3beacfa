package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gikundiro/fanpay-backend/pkg/logger"
)

const (
	defaultPublishedRetention  = 30 * 24 * time.Hour
	defaultDeadLetterRetention = 90 * 24 * time.Hour
	retentionBatch             = 500
)

type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	Store  outboxPruner
	// Retention applies to published events, DLQRetention to dead letters.
	Retention    time.Duration
	DLQRetention time.Duration
	BatchSize    int
}

type outboxPruner interface {
	PrunePublished(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	PruneDeadLetters(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type pruneFunc func(ctx context.Context, cutoff time.Time, limit int) (int64, error)

type sweep struct {
	name string
	keep time.Duration
	fn   pruneFunc
}

type outboxRetentionJob struct {
	logg   *logger.Logger
	sweeps []sweep
	batch  int
	now    func() time.Time
}

func NewOutboxRetentionJob(p OutboxRetentionJobParams) (Job, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.Store == nil:
		return nil, errors.New("outbox store required")
	}
	return &outboxRetentionJob{
		logg: p.Logger,
		sweeps: []sweep{
			{"published", orDefault(p.Retention, defaultPublishedRetention), p.Store.PrunePublished},
			{"dead_letters", orDefault(p.DLQRetention, defaultDeadLetterRetention), p.Store.PruneDeadLetters},
		},
		batch: orDefault(p.BatchSize, retentionBatch),
		now:   time.Now,
	}, nil
}

func orDefault[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run empties each sweep in batches until one comes back short. A failing
// sweep does not stop the next one.
func (j *outboxRetentionJob) Run(ctx context.Context) (int, error) {
	now := j.now().UTC()
	var total int64
	var errs []error
	for _, s := range j.sweeps {
		cutoff := now.Add(-s.keep)
		n, err := drain(ctx, s.fn, cutoff, j.batch)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("prune %s: %w", s.name, err))
			continue
		}
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"sweep":        s.name,
			"cutoff":       cutoff,
			"rows_deleted": n,
		}), "outbox retention sweep complete")
	}
	return int(total), errors.Join(errs...)
}

func drain(ctx context.Context, fn pruneFunc, cutoff time.Time, batch int) (int64, error) {
	var deleted int64
	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		n, err := fn(ctx, cutoff, batch)
		deleted += n
		if err != nil || n < int64(batch) {
			return deleted, err
		}
	}
}

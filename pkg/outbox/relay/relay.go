// Package relay drains committed outbox rows into Pub/Sub.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/metrics"
	"github.com/gikundiro/fanpay-backend/pkg/outbox/routing"
)

const (
	defaultBatchSize      = 50
	defaultMaxAttempts    = 10
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultPublishTimeout = 15 * time.Second
)

const (
	resultPublished  = "published"
	resultRetry      = "retry"
	resultDeadLetter = "dead_letter"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type queue interface {
	Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	MarkRetry(tx *gorm.DB, id uuid.UUID, cause error) error
	DeadLetter(tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, parkAt int) error
}

type resolver interface {
	Resolve(row models.OutboxEvent) (*routing.Resolved, error)
}

// Sender delivers one message to a topic and waits for the ack.
type Sender interface {
	Send(ctx context.Context, topic string, msg *pubsub.Message) error
}

type Params struct {
	Logger  *logger.Logger
	DB      txRunner
	Queue   queue
	Routes  resolver
	Sender  Sender
	Metrics *metrics.OutboxMetrics

	BatchSize      int
	MaxAttempts    int
	PollInterval   time.Duration
	MaxBackoff     time.Duration
	PublishTimeout time.Duration
}

// Stats summarises one drained batch.
type Stats struct {
	Claimed      int
	Published    int
	Retried      int
	DeadLettered int
}

// Relay claims batches of unpublished rows, publishes each to its routed
// topics and records the outcome in the same transaction as the claim.
type Relay struct {
	logg    *logger.Logger
	db      txRunner
	queue   queue
	routes  resolver
	sender  Sender
	metrics *metrics.OutboxMetrics

	batch          int
	maxAttempts    int
	poll           time.Duration
	maxBackoff     time.Duration
	publishTimeout time.Duration
	now            func() time.Time
}

func New(p Params) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database is required")
	case p.Queue == nil:
		return nil, errors.New("outbox store is required")
	case p.Routes == nil:
		return nil, errors.New("routing table is required")
	case p.Sender == nil:
		return nil, errors.New("sender is required")
	}
	return &Relay{
		logg:           p.Logger,
		db:             p.DB,
		queue:          p.Queue,
		routes:         p.Routes,
		sender:         p.Sender,
		metrics:        p.Metrics,
		batch:          orDefault(p.BatchSize, defaultBatchSize),
		maxAttempts:    orDefault(p.MaxAttempts, defaultMaxAttempts),
		poll:           orDefault(p.PollInterval, defaultPollInterval),
		maxBackoff:     orDefault(p.MaxBackoff, defaultMaxBackoff),
		publishTimeout: orDefault(p.PublishTimeout, defaultPublishTimeout),
		now:            time.Now,
	}, nil
}

func orDefault[T int | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}

// Run drains until ctx is done. A full batch is followed immediately by the
// next one; a short batch waits one poll interval; a failed batch backs off
// exponentially up to MaxBackoff.
func (r *Relay) Run(ctx context.Context) error {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = r.poll
	retry.MaxInterval = r.maxBackoff
	retry.MaxElapsedTime = 0
	retry.Reset()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats, err := r.Drain(ctx)
		wait := r.poll
		switch {
		case err != nil:
			wait = retry.NextBackOff()
			r.logg.Error(r.logg.WithField(ctx, "retry_in_ms", wait.Milliseconds()), "outbox batch failed", err)
		case stats.Claimed >= r.batch:
			retry.Reset()
			continue
		default:
			retry.Reset()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Drain handles one batch inside a single transaction. An error means the
// transaction rolled back and every row in the batch stays claimable.
func (r *Relay) Drain(ctx context.Context) (Stats, error) {
	var stats Stats
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		stats = Stats{}
		rows, err := r.queue.Claim(tx, r.batch, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		stats.Claimed = len(rows)
		for _, row := range rows {
			result, err := r.relay(ctx, tx, row)
			if err != nil {
				return err
			}
			r.metrics.IncEvent(string(row.EventType), result)
			switch result {
			case resultPublished:
				stats.Published++
			case resultRetry:
				stats.Retried++
			case resultDeadLetter:
				stats.DeadLettered++
			}
		}
		return nil
	})
	if err == nil && stats.Claimed > 0 {
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"claimed":       stats.Claimed,
			"published":     stats.Published,
			"retried":       stats.Retried,
			"dead_lettered": stats.DeadLettered,
		}), "outbox batch drained")
	}
	return stats, err
}

// relay handles one row and returns its result. Only bookkeeping failures
// are returned as errors; publish failures become retry or dead_letter.
func (r *Relay) relay(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (string, error) {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	})

	resolved, err := r.routes.Resolve(row)
	if err != nil {
		return resultDeadLetter, r.deadLetter(logCtx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	}
	logCtx = r.logg.WithFields(logCtx, map[string]any{
		"event_id": resolved.Envelope.EventID,
		"topics":   resolved.Route.Topics(),
	})

	if err := r.publish(ctx, row, resolved); err != nil {
		attempts := row.AttemptCount + 1
		switch {
		case routing.IsPermanent(err):
			return resultDeadLetter, r.deadLetter(logCtx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
		case attempts >= r.maxAttempts:
			return resultDeadLetter, r.deadLetter(logCtx, tx, row, enums.OutboxDLQReasonMaxAttempts,
				fmt.Errorf("gave up after %d attempts: %w", attempts, err))
		}
		r.logg.Warn(r.logg.WithField(logCtx, "error", err.Error()), "outbox publish failed; will retry")
		if err := r.queue.MarkRetry(tx, row.ID, err); err != nil {
			return "", fmt.Errorf("record retry for %s: %w", row.ID, err)
		}
		return resultRetry, nil
	}

	if err := r.queue.MarkPublished(tx, row.ID); err != nil {
		return "", fmt.Errorf("mark %s published: %w", row.ID, err)
	}
	r.metrics.ObserveLag(r.now().Sub(row.CreatedAt))
	r.logg.Debug(logCtx, "outbox event published")
	return resultPublished, nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"reason": reason,
		"error":  cause.Error(),
	}), "outbox event dead-lettered")
	if err := r.queue.DeadLetter(tx, row, reason, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("dead-letter %s: %w", row.ID, err)
	}
	return nil
}

// publish sends the stored envelope to the primary topic, then to each
// fan-out topic. A failure anywhere retries the whole row; consumers dedupe
// on event_id, so a repeated primary delivery is harmless.
func (r *Relay) publish(ctx context.Context, row models.OutboxEvent, resolved *routing.Resolved) error {
	msg := &pubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
	ctx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()
	for _, topic := range resolved.Route.Topics() {
		started := r.now()
		if err := r.sender.Send(ctx, topic, msg); err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
		r.metrics.ObservePublish(topic, r.now().Sub(started))
	}
	return nil
}

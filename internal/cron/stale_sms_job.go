package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/outbox"
	"github.com/gikundiro/fanpay-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	defaultStaleAfter = 10 * time.Minute
	defaultStaleBatch = 100
)

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StaleSmsJobParams configure the stale SMS redispatch job.
type StaleSmsJobParams struct {
	Logger     *logger.Logger
	Conn       *gorm.DB
	DB         txRunner
	Outbox     outboxEmitter
	StaleAfter time.Duration
	BatchSize  int
}

// NewStaleSmsJob builds the job that re-queues SMS stuck in received, for
// example after the parse stage hit a dependency outage.
func NewStaleSmsJob(params StaleSmsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Conn == nil || params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStaleBatch
	}
	return &staleSmsJob{
		logg:       params.Logger,
		conn:       params.Conn,
		db:         params.DB,
		outbox:     params.Outbox,
		staleAfter: staleAfter,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type staleSmsJob struct {
	logg       *logger.Logger
	conn       *gorm.DB
	db         txRunner
	outbox     outboxEmitter
	staleAfter time.Duration
	batch      int
	now        func() time.Time
}

func (j *staleSmsJob) Name() string { return "stale-sms-redispatch" }

// Run emits a fresh sms_received for every SMS whose status has not moved for
// staleAfter. Touching updated_at spaces out repeated attempts for the same
// SMS by the same window.
func (j *staleSmsJob) Run(ctx context.Context) (int, error) {
	now := j.now().UTC()
	cutoff := now.Add(-j.staleAfter)

	var ids []uuid.UUID
	err := j.conn.WithContext(ctx).
		Model(&models.SmsRaw{}).
		Where("ingest_status = ? AND updated_at < ?", enums.SmsStatusReceived, cutoff).
		Order("received_at ASC").
		Limit(j.batch).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("query stale sms: %w", err)
	}

	var errs error
	redispatched := 0
	for _, id := range ids {
		sent, err := j.redispatch(ctx, id, cutoff, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("redispatch sms %s: %w", id, err))
			continue
		}
		if sent {
			redispatched++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"candidates":   len(ids),
		"redispatched": redispatched,
	})
	j.logg.Info(logCtx, "stale sms redispatch complete")
	return redispatched, errs
}

func (j *staleSmsJob) redispatch(ctx context.Context, id uuid.UUID, cutoff, now time.Time) (bool, error) {
	sent := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.SmsRaw{}).
			Where("id = ? AND ingest_status = ? AND updated_at < ?", id, enums.SmsStatusReceived, cutoff).
			UpdateColumn("updated_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		sent = true
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSmsReceived,
			AggregateType: enums.AggregateSms,
			AggregateID:   id,
			Actor:         outbox.SystemActor(),
			OccurredAt:    now,
			Data:          payloads.SmsReceivedEvent{SmsID: id, Redispatch: true},
		})
	})
	if err != nil {
		return false, err
	}
	return sent, nil
}

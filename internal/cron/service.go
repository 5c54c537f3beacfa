package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/metrics"
)

const defaultTick = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Schedule *Schedule
	Lock     Lock
	Metrics  *metrics.SchedulerMetrics
	// Tick is how often the schedule is checked; job cadences are set on
	// the Schedule.
	Tick time.Duration
}

// Service wakes on every tick, takes the cluster lock and runs whichever
// jobs are due.
type Service struct {
	logg     *logger.Logger
	schedule *Schedule
	lock     Lock
	metrics  *metrics.SchedulerMetrics
	tick     time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	if params.Schedule == nil {
		return nil, fmt.Errorf("schedule required")
	}
	tick := params.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	return &Service{
		logg:     params.Logger,
		schedule: params.Schedule,
		lock:     params.Lock,
		metrics:  params.Metrics,
		tick:     tick,
		now:      time.Now,
	}, nil
}

// Run ticks immediately and then on every interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"tick": s.tick.String(),
		"jobs": s.schedule.Names(),
	}), "scheduler started")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		if err := s.runTick(ctx); err != nil {
			s.logg.Error(ctx, "scheduler tick failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runTick returns an error only when the lock itself misbehaves; job
// failures are logged and counted per job.
func (s *Service) runTick(ctx context.Context) error {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire scheduler lock: %w", err)
	}
	if !held {
		s.metrics.IncSkipped()
		s.logg.Debug(ctx, "scheduler lock held elsewhere; skipping tick")
		return nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "release scheduler lock", err)
		}
	}()

	for _, job := range s.schedule.Due(s.now()) {
		if ctx.Err() != nil {
			return nil
		}
		s.runJob(ctx, job)
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	started := time.Now()
	records, err := job.Run(jobCtx)
	took := time.Since(started)
	s.metrics.ObserveRun(job.Name(), took, records, err)

	jobCtx = s.logg.WithFields(jobCtx, map[string]any{
		"duration_ms": took.Milliseconds(),
		"records":     records,
	})
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.logg.Info(jobCtx, "job finished")
}

package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/gikundiro/fanpay-backend/internal/notifications"
	"github.com/gikundiro/fanpay-backend/internal/pipeline"
	"github.com/gikundiro/fanpay-backend/pkg/db"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/pubsub"
	"github.com/gikundiro/fanpay-backend/pkg/redis"
)

type ServiceParams struct {
	Logger               *logger.Logger
	DB                   *db.Client
	Redis                *redis.Client
	PubSub               *pubsub.Client
	SmsConsumer          *pipeline.Consumer
	NotificationConsumer *notifications.Consumer
}

type named[F any] struct {
	name string
	fn   F
}

// Service runs the worker's consumers side by side. The first one to fail
// cancels the rest.
type Service struct {
	logg      *logger.Logger
	checks    []named[func(context.Context) error]
	consumers []named[func(context.Context) error]
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil || p.Redis == nil || p.PubSub == nil:
		return nil, errors.New("database, redis and pubsub clients are required")
	case p.SmsConsumer == nil:
		return nil, errors.New("sms consumer is required")
	}
	s := &Service{
		logg: p.Logger,
		checks: []named[func(context.Context) error]{
			{"database", p.DB.Ping},
			{"redis", p.Redis.Ping},
			{"pubsub", p.PubSub.Ping},
		},
		consumers: []named[func(context.Context) error]{{"sms", p.SmsConsumer.Run}},
	}
	if p.NotificationConsumer != nil {
		s.consumers = append(s.consumers, named[func(context.Context) error]{"notifications", p.NotificationConsumer.Run})
	}
	return s, nil
}

func (s *Service) ready(ctx context.Context) error {
	for _, c := range s.checks {
		if err := c.fn(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", c.name), "dependency ping failed", err)
			return fmt.Errorf("%s ping: %w", c.name, err)
		}
	}
	return nil
}

// Run blocks until ctx is canceled or a consumer stops.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	s.logg.Info(ctx, "worker dependencies ready")

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.consumers {
		g.Go(func() error {
			err := c.fn(gctx)
			if err == nil {
				// Receive returns nil once its context ends; a consumer
				// stopping on its own must still take the others down.
				err = gctx.Err()
				if err == nil {
					err = fmt.Errorf("%s consumer stopped", c.name)
				}
			}
			if !errors.Is(err, context.Canceled) {
				s.logg.Error(s.logg.WithField(ctx, "consumer", c.name), "consumer stopped unexpectedly", err)
			}
			return err
		})
	}
	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

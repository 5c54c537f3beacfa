// Package worker consumes the analytics subscription and writes one
// reconciliation_events row per recorded outbox event.
package worker

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/gikundiro/fanpay-backend/internal/analytics/projection"
	"github.com/gikundiro/fanpay-backend/internal/analytics/types"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/outbox/idempotency"
)

const consumerName = "analytics"

type rowSink interface {
	Insert(ctx context.Context, row types.ReconciliationEventRow) error
}

type Service struct {
	subscription *gcppubsub.Subscriber
	sink         rowSink
	claims       idempotency.Claimer
	logg         *logger.Logger
}

func NewService(subscription *gcppubsub.Subscriber, sink rowSink, claims idempotency.Claimer, logg *logger.Logger) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case sink == nil:
		return nil, errors.New("row sink is required")
	case claims == nil:
		return nil, errors.New("idempotency guard is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, sink: sink, claims: claims, logg: logg}, nil
}

// Run receives until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		if s.handle(s.logg.WithField(ctx, "message_id", msg.ID), msg.Data, msg.Attributes) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// handle reports whether the message is done with. Undecodable messages are
// acked since a redelivery would fail the same way.
func (s *Service) handle(ctx context.Context, body []byte, attrs map[string]string) bool {
	evt, err := types.Decode(body, attrs)
	if errors.Is(err, types.ErrNotRecorded) {
		s.logg.Debug(ctx, "event not recorded by analytics")
		return true
	}
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "dropping malformed analytics event")
		return true
	}
	ctx = s.logg.WithFields(ctx, evt.Fields())

	row, err := projection.Row(evt)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "dropping unprojectable analytics event")
		return true
	}

	recorded, err := idempotency.Once(ctx, s.claims, consumerName, evt.ID, func(ctx context.Context) error {
		return s.sink.Insert(ctx, row)
	})
	switch {
	case err != nil:
		s.logg.Error(ctx, "failed to record analytics event", err)
		return false
	case !recorded:
		s.logg.Info(ctx, "event already recorded")
	default:
		s.logg.Info(ctx, "analytics event recorded")
	}
	return true
}

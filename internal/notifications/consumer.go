package notifications

import (
	"context"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/outbox"
	"github.com/gikundiro/fanpay-backend/pkg/outbox/idempotency"
	"github.com/gikundiro/fanpay-backend/pkg/outbox/payloads"
)

const consumerName = "payment-notifications"

type notifier interface {
	NotifyPaymentConfirmed(ctx context.Context, evt payloads.PaymentConfirmedEvent) error
}

// Consumer reads the payments subscription and texts the payer once per
// payment_confirmed event.
type Consumer struct {
	notifier     notifier
	subscription *pubsub.Subscriber
	claims       idempotency.Claimer
	logg         *logger.Logger
}

func NewConsumer(n notifier, subscription *pubsub.Subscriber, claims idempotency.Claimer, logg *logger.Logger) (*Consumer, error) {
	switch {
	case n == nil:
		return nil, errors.New("notification service required")
	case subscription == nil:
		return nil, errors.New("payments subscription required")
	case claims == nil:
		return nil, errors.New("idempotency guard required")
	case logg == nil:
		return nil, errors.New("logger required")
	}
	return &Consumer{notifier: n, subscription: subscription, claims: claims, logg: logg}, nil
}

func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		ctx = c.logg.WithField(ctx, "message_id", msg.ID)
		if c.handle(ctx, msg.Attributes["event_type"], msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// handle reports whether the message can be acked.
func (c *Consumer) handle(ctx context.Context, eventType string, body []byte) bool {
	ctx = c.logg.WithField(ctx, "event_type", eventType)
	if enums.OutboxEventType(eventType) != enums.EventPaymentConfirmed {
		c.logg.Debug(ctx, "not a confirmation, skipping")
		return true
	}
	eventID, evt, err := outbox.Open[payloads.PaymentConfirmedEvent](body)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "dropping malformed payment_confirmed")
		return true
	}
	ctx = c.logg.WithPaymentID(c.logg.WithField(ctx, "event_id", eventID.String()), evt.PaymentID.String())

	sent, err := idempotency.Once(ctx, c.claims, consumerName, eventID, func(ctx context.Context) error {
		return c.notifier.NotifyPaymentConfirmed(ctx, evt)
	})
	switch {
	case err != nil:
		c.logg.Error(ctx, "payment notification failed", err)
		return false
	case !sent:
		c.logg.Info(ctx, "payer already notified")
	}
	return true
}

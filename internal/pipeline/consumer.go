package pipeline

import (
	"context"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/outbox"
	"github.com/gikundiro/fanpay-backend/pkg/outbox/idempotency"
	"github.com/gikundiro/fanpay-backend/pkg/outbox/payloads"
)

const consumerName = "sms-pipeline"

type smsProcessor interface {
	Process(ctx context.Context, smsID uuid.UUID) (Result, error)
}

// Consumer feeds sms_received events from the sms subscription into the
// processor.
type Consumer struct {
	processor    smsProcessor
	subscription *pubsub.Subscriber
	claims       idempotency.Claimer
	logg         *logger.Logger
}

func NewConsumer(processor smsProcessor, subscription *pubsub.Subscriber, claims idempotency.Claimer, logg *logger.Logger) (*Consumer, error) {
	switch {
	case processor == nil:
		return nil, errors.New("sms processor required")
	case subscription == nil:
		return nil, errors.New("sms subscription required")
	case claims == nil:
		return nil, errors.New("idempotency guard required")
	case logg == nil:
		return nil, errors.New("logger required")
	}
	return &Consumer{processor: processor, subscription: subscription, claims: claims, logg: logg}, nil
}

// Run receives until ctx is canceled. A Handle error nacks the message.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		ctx = c.logg.WithField(ctx, "message_id", msg.ID)
		if err := c.Handle(ctx, enums.OutboxEventType(msg.Attributes["event_type"]), msg.Data); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Handle processes one sms_received delivery. It returns an error only when
// a redelivery could succeed; other event types, malformed bodies and SMS
// the processor rejects are dropped.
func (c *Consumer) Handle(ctx context.Context, eventType enums.OutboxEventType, body []byte) error {
	ctx = c.logg.WithField(ctx, "event_type", eventType)
	if eventType != enums.EventSmsReceived {
		c.logg.Debug(ctx, "not an sms event, skipping")
		return nil
	}
	eventID, evt, err := outbox.Open[payloads.SmsReceivedEvent](body)
	if err == nil && evt.SmsID == uuid.Nil {
		err = errors.New("sms_received without smsId")
	}
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "dropping malformed sms_received")
		return nil
	}
	ctx = c.logg.WithSmsID(c.logg.WithField(ctx, "event_id", eventID.String()), evt.SmsID.String())

	ran, err := idempotency.Once(ctx, c.claims, consumerName, eventID, func(ctx context.Context) error {
		result, err := c.processor.Process(ctx, evt.SmsID)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "dropping unprocessable sms")
			return nil
		}
		if err != nil {
			return err
		}
		c.logg.Info(c.logg.WithField(ctx, "outcome", result.Outcome), "sms processed")
		return nil
	})
	if err != nil {
		c.logg.Error(ctx, "sms processing failed", err)
		return err
	}
	if !ran {
		c.logg.Info(ctx, "event already processed")
	}
	return nil
}

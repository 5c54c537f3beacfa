// Package routing maps outbox event types to Pub/Sub topics and decodes the
// stored envelope before anything is published.
package routing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/gikundiro/fanpay-backend/pkg/config"
	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"github.com/gikundiro/fanpay-backend/pkg/outbox"
	"github.com/gikundiro/fanpay-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

// Route says where one event type goes. Copies go to Fanout after Topic.
type Route struct {
	Event     enums.OutboxEventType
	Aggregate enums.OutboxAggregateType
	Topic     string
	Fanout    []string
	decode    func(json.RawMessage) (any, error)
}

// Topics lists the primary topic followed by the fan-out topics.
func (r Route) Topics() []string {
	return append([]string{r.Topic}, r.Fanout...)
}

// Resolved is a routed row with its envelope and typed payload.
type Resolved struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Payload  any
}

type Table struct {
	routes map[enums.OutboxEventType]Route
}

func typed[T any](event enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string, fanout ...string) Route {
	return Route{
		Event:     event,
		Aggregate: aggregate,
		Topic:     topic,
		Fanout:    fanout,
		decode: func(data json.RawMessage) (any, error) {
			v := new(T)
			if err := json.Unmarshal(data, v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// New builds the table from the configured topics. sms_reconciled goes
// straight to analytics; settled and failed payments are copied there too.
func New(cfg config.PubSubConfig) (*Table, error) {
	var missing []string
	for _, topic := range []struct{ name, value string }{
		{"sms", cfg.SmsTopic},
		{"payments", cfg.PaymentsTopic},
		{"analytics", cfg.AnalyticsTopic},
	} {
		if topic.value == "" {
			missing = append(missing, topic.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pubsub topics not configured: %v", missing)
	}

	t := &Table{routes: map[enums.OutboxEventType]Route{}}
	for _, r := range []Route{
		typed[payloads.SmsReceivedEvent](enums.EventSmsReceived, enums.AggregateSms, cfg.SmsTopic),
		typed[payloads.SmsReconciledEvent](enums.EventSmsReconciled, enums.AggregateSms, cfg.AnalyticsTopic),
		typed[payloads.PaymentConfirmedEvent](enums.EventPaymentConfirmed, enums.AggregatePayment, cfg.PaymentsTopic, cfg.AnalyticsTopic),
		typed[payloads.PaymentHeldEvent](enums.EventPaymentHeld, enums.AggregatePayment, cfg.PaymentsTopic),
		typed[payloads.PaymentFailedEvent](enums.EventPaymentFailed, enums.AggregatePayment, cfg.PaymentsTopic, cfg.AnalyticsTopic),
	} {
		t.routes[r.Event] = r
	}
	return t, nil
}

// Resolve routes and decodes an outbox row. Every error it returns is
// permanent: the row will not decode any better on a later attempt.
func (t *Table) Resolve(row models.OutboxEvent) (*Resolved, error) {
	route, ok := t.routes[row.EventType]
	if !ok {
		return nil, backoff.Permanent(fmt.Errorf("no route for event type %q", row.EventType))
	}
	if route.Aggregate != row.AggregateType {
		return nil, backoff.Permanent(fmt.Errorf("%s rows must carry aggregate %s, got %s", row.EventType, route.Aggregate, row.AggregateType))
	}
	if row.AggregateID == uuid.Nil {
		return nil, backoff.Permanent(errors.New("aggregate_id is empty"))
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &env); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, backoff.Permanent(fmt.Errorf("%s envelope has no data", row.EventType))
	}
	payload, err := route.decode(env.Data)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode %s data: %w", row.EventType, err))
	}
	return &Resolved{Route: route, Envelope: env, Payload: payload}, nil
}

// IsPermanent reports whether err was marked as not worth retrying.
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

// Package types holds the analytics view of an outbox event and the
// BigQuery row it becomes.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"github.com/gikundiro/fanpay-backend/pkg/outbox"
)

// ErrNotRecorded marks events that share the analytics topic but carry no
// reconciliation facts. They are acked without a row.
var ErrNotRecorded = errors.New("event type not recorded")

// Event is one delivery from the analytics subscription, decoded from the
// stored envelope plus the relay's message attributes.
type Event struct {
	ID          uuid.UUID
	Type        enums.AnalyticsEventType
	AggregateID string
	OccurredAt  time.Time
	Data        json.RawMessage
}

// Decode builds an Event from a Pub/Sub message body and attributes. The
// envelope's event id wins over the attribute; both are written by the relay.
func Decode(body []byte, attrs map[string]string) (Event, error) {
	rawType := strings.TrimSpace(attrs["event_type"])
	eventType, err := enums.ParseAnalyticsEventType(rawType)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %q", ErrNotRecorded, rawType)
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return Event{}, fmt.Errorf("%s envelope has no data", eventType)
	}

	rawID := strings.TrimSpace(env.EventID)
	if rawID == "" {
		rawID = strings.TrimSpace(attrs["event_id"])
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return Event{}, fmt.Errorf("event id %q: %w", rawID, err)
	}

	occurred := env.OccurredAt
	if occurred.IsZero() {
		if ts, err := time.Parse(time.RFC3339Nano, attrs["occurred_at"]); err == nil {
			occurred = ts
		}
	}

	return Event{
		ID:          id,
		Type:        eventType,
		AggregateID: strings.TrimSpace(attrs["aggregate_id"]),
		OccurredAt:  occurred.UTC(),
		Data:        env.Data,
	}, nil
}

// Fields returns the log fields for the event.
func (e Event) Fields() map[string]any {
	return map[string]any{
		"event_id":     e.ID.String(),
		"event_type":   e.Type,
		"aggregate_id": e.AggregateID,
		"occurred_at":  e.OccurredAt.Format(time.RFC3339Nano),
	}
}

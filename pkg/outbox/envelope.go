package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event. System-driven transitions
// leave UserID nil.
type ActorRef struct {
	UserID *uuid.UUID `json:"userId,omitempty"`
	Kind   string     `json:"kind"`
}

const (
	ActorKindSystem = "system"
	ActorKindAdmin  = "admin"
)

// SystemActor is the actor recorded for pipeline-driven events.
func SystemActor() *ActorRef {
	return &ActorRef{Kind: ActorKindSystem}
}

// AdminActor is the actor recorded for operator actions.
func AdminActor(userID uuid.UUID) *ActorRef {
	id := userID
	return &ActorRef{UserID: &id, Kind: ActorKindAdmin}
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Open decodes a published envelope body and its typed data.
func Open[T any](body []byte) (uuid.UUID, T, error) {
	var (
		env  PayloadEnvelope
		data T
	)
	if err := json.Unmarshal(body, &env); err != nil {
		return uuid.Nil, data, fmt.Errorf("decode envelope: %w", err)
	}
	id, err := uuid.Parse(env.EventID)
	if err != nil {
		return uuid.Nil, data, fmt.Errorf("envelope event id: %w", err)
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return id, data, fmt.Errorf("decode %T: %w", data, err)
	}
	return id, data, nil
}

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLogEntry is an append-only record of a state transition.
type AuditLogEntry struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Action     string          `gorm:"column:action;not null" json:"action"`
	EntityType string          `gorm:"column:entity_type;not null" json:"entityType"`
	EntityID   string          `gorm:"column:entity_id;not null" json:"entityId"`
	Before     json.RawMessage `gorm:"column:before;type:jsonb" json:"before,omitempty"`
	After      json.RawMessage `gorm:"column:after;type:jsonb" json:"after,omitempty"`
	ActorID    *uuid.UUID      `gorm:"column:actor_id;type:uuid" json:"actorId,omitempty"`
	At         time.Time       `gorm:"column:at;not null" json:"at"`
}

func (AuditLogEntry) TableName() string { return "audit_log" }

package models

import (
	"time"

	"github.com/google/uuid"
)

// SmsParserPrompt is a versioned instruction set for the classification aid.
// At most one version is active.
type SmsParserPrompt struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Label     string     `gorm:"column:label;not null" json:"label"`
	Body      string     `gorm:"column:body;not null" json:"body"`
	Version   int        `gorm:"column:version;not null;uniqueIndex" json:"version"`
	IsActive  bool       `gorm:"column:is_active;not null;default:false" json:"isActive"`
	CreatedBy *uuid.UUID `gorm:"column:created_by;type:uuid" json:"createdBy,omitempty"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

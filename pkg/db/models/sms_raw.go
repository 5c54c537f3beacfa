package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gikundiro/fanpay-backend/pkg/enums"
)

// SmsRaw is an inbound SMS exactly as the modem delivered it. Text and sender
// are immutable once stored; only the processing status moves.
type SmsRaw struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Text         string                `gorm:"column:text;not null"`
	FromAddress  string                `gorm:"column:from_address;not null"`
	ToAddress    *string               `gorm:"column:to_address"`
	ReceivedAt   time.Time             `gorm:"column:received_at;not null"`
	DedupKey     string                `gorm:"column:dedup_key;not null;uniqueIndex"`
	IngestStatus enums.SmsIngestStatus `gorm:"column:ingest_status;type:sms_ingest_status;not null;default:received"`
	ReviewLane   *enums.ReviewLane     `gorm:"column:review_lane;type:sms_review_lane"`
	Metadata     json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (SmsRaw) TableName() string { return "sms_raw" }

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gikundiro/fanpay-backend/pkg/enums"
)

// Payment is a pending mobile-money charge created when a fan started a USSD
// purchase. EntityID points at the ticket order, membership, shop order or
// donation selected by Kind.
type Payment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Amount            int64               `gorm:"column:amount;not null" json:"amount"`
	Currency          enums.Currency      `gorm:"column:currency;not null;default:RWF" json:"currency"`
	Kind              enums.PaymentKind   `gorm:"column:kind;type:payment_kind;not null" json:"kind"`
	EntityID          uuid.UUID           `gorm:"column:entity_id;type:uuid;not null" json:"entityId"`
	Status            enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:pending" json:"status"`
	ExpectedReference *string             `gorm:"column:expected_reference" json:"expectedReference,omitempty"`
	PayerPhone        *string             `gorm:"column:payer_phone" json:"-"`
	SmsParsedID       *uuid.UUID          `gorm:"column:sms_parsed_id;type:uuid;uniqueIndex" json:"smsParsedId,omitempty"`
	FailureReason     *string             `gorm:"column:failure_reason" json:"failureReason,omitempty"`
	Metadata          json.RawMessage     `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	ConfirmedAt       *time.Time          `gorm:"column:confirmed_at" json:"confirmedAt,omitempty"`
	FailedAt          *time.Time          `gorm:"column:failed_at" json:"failedAt,omitempty"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

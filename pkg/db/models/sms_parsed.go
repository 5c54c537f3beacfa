package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/gikundiro/fanpay-backend/pkg/db/types"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
)

// SmsParsed holds the structured fields extracted from one SmsRaw.
type SmsParsed struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SmsID         uuid.UUID            `gorm:"column:sms_id;type:uuid;not null;uniqueIndex"`
	Amount        *int64               `gorm:"column:amount"`
	Currency      enums.Currency       `gorm:"column:currency;not null;default:RWF"`
	Reference     *string              `gorm:"column:reference"`
	PayerMask     *string              `gorm:"column:payer_mask"`
	Confidence    float64              `gorm:"column:confidence;not null;default:0"`
	ParserVersion string               `gorm:"column:parser_version;not null"`
	MatchedEntity *string              `gorm:"column:matched_entity"`
	Decision      *enums.MatchDecision `gorm:"column:decision"`
	CandidateIDs  dbtypes.UUIDArray    `gorm:"column:candidate_ids;type:uuid[]"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (SmsParsed) TableName() string { return "sms_parsed" }

// Matched reports whether the SMS is already bound to an entity.
func (p *SmsParsed) Matched() bool {
	return p != nil && p.MatchedEntity != nil && *p.MatchedEntity != ""
}

// PaymentEntityRef formats the matched_entity value for a payment.
func PaymentEntityRef(paymentID uuid.UUID) string {
	return "payment:" + paymentID.String()
}

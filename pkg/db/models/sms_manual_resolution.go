package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/gikundiro/fanpay-backend/pkg/enums"
)

// SmsManualResolution records an operator dismissing an SMS from review.
// At most one row exists per SMS.
type SmsManualResolution struct {
	ID         uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SmsID      uuid.UUID              `gorm:"column:sms_id;type:uuid;not null;uniqueIndex" json:"smsId"`
	Resolution enums.ManualResolution `gorm:"column:resolution;type:sms_manual_resolution;not null" json:"resolution"`
	Note       *string                `gorm:"column:note" json:"note,omitempty"`
	ResolvedBy uuid.UUID              `gorm:"column:resolved_by;type:uuid;not null" json:"resolvedBy"`
	ResolvedAt time.Time              `gorm:"column:resolved_at;not null" json:"resolvedAt"`
}

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/gikundiro/fanpay-backend/pkg/enums"
)

type TicketOrder struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Status    enums.TicketOrderStatus `gorm:"column:status;not null;default:pending"`
	Amount    int64                   `gorm:"column:amount;not null"`
	SmsRef    *string                 `gorm:"column:sms_ref"`
	PaidAt    *time.Time              `gorm:"column:paid_at"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/gikundiro/fanpay-backend/pkg/enums"
)

type Donation struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Status      enums.DonationStatus `gorm:"column:status;not null;default:pending"`
	Amount      int64                `gorm:"column:amount;not null"`
	ConfirmedAt *time.Time           `gorm:"column:confirmed_at"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

package dbtest

import (
	"testing"
	"time"

	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SeedSms stores a raw SMS in the given status.
func SeedSms(t *testing.T, conn *gorm.DB, text string, receivedAt time.Time, status enums.SmsIngestStatus) models.SmsRaw {
	t.Helper()
	row := models.SmsRaw{
		ID:           uuid.New(),
		Text:         text,
		FromAddress:  "M-Money",
		ReceivedAt:   receivedAt.UTC(),
		DedupKey:     uuid.NewString(),
		IngestStatus: status,
	}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("seed sms: %v", err)
	}
	return row
}

// SeedParsed stores the parsed fields for smsID.
func SeedParsed(t *testing.T, conn *gorm.DB, smsID uuid.UUID, amount int64, confidence float64) models.SmsParsed {
	t.Helper()
	amt := amount
	row := models.SmsParsed{
		ID:            uuid.New(),
		SmsID:         smsID,
		Amount:        &amt,
		Currency:      enums.CurrencyRWF,
		Confidence:    confidence,
		ParserVersion: "test",
	}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("seed parsed sms: %v", err)
	}
	return row
}

// PaymentSeed describes a payment plus its dependent entity.
type PaymentSeed struct {
	Amount            int64
	Kind              enums.PaymentKind
	Status            enums.PaymentStatus
	ExpectedReference string
	PayerPhone        string
	CreatedAt         time.Time
}

// SeedPayment stores a payment and a pending dependent of its kind.
func SeedPayment(t *testing.T, conn *gorm.DB, seed PaymentSeed) models.Payment {
	t.Helper()
	if seed.Kind == "" {
		seed.Kind = enums.PaymentKindTicket
	}
	if seed.Status == "" {
		seed.Status = enums.PaymentStatusPending
	}
	if seed.CreatedAt.IsZero() {
		seed.CreatedAt = time.Now().UTC()
	}
	entityID := uuid.New()

	var dependent any
	switch seed.Kind {
	case enums.PaymentKindTicket:
		dependent = &models.TicketOrder{ID: entityID, Status: enums.TicketOrderStatusPending, Amount: seed.Amount}
	case enums.PaymentKindMembership:
		dependent = &models.Membership{ID: entityID, Status: enums.MembershipStatusPending, Amount: seed.Amount}
	case enums.PaymentKindShop:
		dependent = &models.ShopOrder{ID: entityID, Status: enums.ShopOrderStatusPending, Amount: seed.Amount}
	case enums.PaymentKindDonation:
		dependent = &models.Donation{ID: entityID, Status: enums.DonationStatusPending, Amount: seed.Amount}
	}
	if err := conn.Create(dependent).Error; err != nil {
		t.Fatalf("seed dependent: %v", err)
	}

	payment := models.Payment{
		ID:        uuid.New(),
		Amount:    seed.Amount,
		Currency:  enums.CurrencyRWF,
		Kind:      seed.Kind,
		EntityID:  entityID,
		Status:    seed.Status,
		CreatedAt: seed.CreatedAt.UTC(),
	}
	if seed.ExpectedReference != "" {
		ref := seed.ExpectedReference
		payment.ExpectedReference = &ref
	}
	if seed.PayerPhone != "" {
		phone := seed.PayerPhone
		payment.PayerPhone = &phone
	}
	if err := conn.Create(&payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return payment
}

// CountRows counts rows of model matching the optional condition.
func CountRows(t *testing.T, conn *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	q := conn.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

package controllers

import (
	"context"

	"github.com/gikundiro/fanpay-backend/internal/audit"
	"github.com/gikundiro/fanpay-backend/internal/ingestion"
	"github.com/gikundiro/fanpay-backend/internal/parser"
	"github.com/gikundiro/fanpay-backend/internal/review"
	"github.com/gikundiro/fanpay-backend/internal/settlement"
	"github.com/gikundiro/fanpay-backend/pkg/auth"
	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/google/uuid"
)

// SmsIngestor stores inbound modem deliveries.
type SmsIngestor interface {
	Ingest(ctx context.Context, p ingestion.Payload) (ingestion.Result, error)
}

// ManualReviewService backs the operator queue.
type ManualReviewService interface {
	ListPending(ctx context.Context, caps auth.Capabilities, params review.ListParams) ([]review.Item, error)
	Attach(ctx context.Context, caps auth.Capabilities, smsID, paymentID uuid.UUID) (*models.Payment, error)
	Dismiss(ctx context.Context, caps auth.Capabilities, smsID uuid.UUID, in review.DismissInput) (*models.SmsManualResolution, error)
	Retry(ctx context.Context, caps auth.Capabilities, smsID uuid.UUID) error
	ListManualPayments(ctx context.Context, caps auth.Capabilities, limit int) ([]models.Payment, error)
}

type PromptService interface {
	List(ctx context.Context, caps auth.Capabilities) ([]models.SmsParserPrompt, error)
	Active(ctx context.Context, caps auth.Capabilities) (*models.SmsParserPrompt, error)
	Create(ctx context.Context, caps auth.Capabilities, in parser.CreatePromptInput) (*models.SmsParserPrompt, error)
	Activate(ctx context.Context, caps auth.Capabilities, id uuid.UUID) (*models.SmsParserPrompt, error)
	Test(ctx context.Context, caps auth.Capabilities, in parser.TestInput) (parser.Result, error)
}

type PaymentFailer interface {
	Fail(ctx context.Context, in settlement.FailInput) (*models.Payment, error)
}

type AuditLister interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

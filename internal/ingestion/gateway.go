// Package ingestion accepts inbound SMS from the modem webhook. Storage is
// idempotent on a dedup key so carrier or webhook retries never create a
// second record.
package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/metrics"
	"github.com/gikundiro/fanpay-backend/pkg/outbox"
	"github.com/gikundiro/fanpay-backend/pkg/outbox/payloads"
	"github.com/gikundiro/fanpay-backend/pkg/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Payload is the webhook body after transport decoding.
type Payload struct {
	Text        string
	FromAddress string
	ToAddress   *string
	ReceivedAt  time.Time
	Metadata    json.RawMessage
}

// Result is the stored record. Duplicate is true when an earlier delivery
// already created it.
type Result struct {
	Record    *models.SmsRaw
	Duplicate bool
}

type GatewayParams struct {
	DB      txRunner
	Outbox  outboxEmitter
	Metrics *metrics.PipelineMetrics
	Logger  *logger.Logger
	Clock   func() time.Time
}

type Gateway struct {
	db      txRunner
	outbox  outboxEmitter
	metrics *metrics.PipelineMetrics
	logg    *logger.Logger
	clock   func() time.Time
}

func NewGateway(params GatewayParams) (*Gateway, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ingestion db required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Gateway{
		db:      params.DB,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		clock:   clock,
	}, nil
}

// Ingest stores the SMS once and schedules parsing in the same transaction.
// A repeated delivery returns the stored record without error.
func (g *Gateway) Ingest(ctx context.Context, p Payload) (Result, error) {
	text := strings.TrimSpace(p.Text)
	from := strings.TrimSpace(p.FromAddress)
	if text == "" || from == "" {
		fields := map[string]string{}
		if text == "" {
			fields["text"] = "required"
		}
		if from == "" {
			fields["fromAddress"] = "required"
		}
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "text and fromAddress are required").WithDetails(fields)
	}
	receivedAt := p.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = g.clock()
	}
	receivedAt = receivedAt.UTC()

	row := models.SmsRaw{
		ID:           uuid.New(),
		Text:         text,
		FromAddress:  from,
		ToAddress:    trimmedPtr(p.ToAddress),
		ReceivedAt:   receivedAt,
		DedupKey:     DedupKey(from, text, receivedAt),
		IngestStatus: enums.SmsStatusReceived,
		Metadata:     p.Metadata,
	}

	var result Result
	err := g.db.WithTx(ctx, func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedup_key"}}, DoNothing: true}).
			Create(&row)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "store inbound sms")
		}
		if res.RowsAffected == 0 {
			var existing models.SmsRaw
			if err := tx.WithContext(ctx).Where("dedup_key = ?", row.DedupKey).First(&existing).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeConflict, "dedup key collided but no record found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load existing sms")
			}
			result = Result{Record: &existing, Duplicate: true}
			return nil
		}

		if err := g.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSmsReceived,
			AggregateType: enums.AggregateSms,
			AggregateID:   row.ID,
			Actor:         outbox.SystemActor(),
			OccurredAt:    receivedAt,
			Data:          payloads.SmsReceivedEvent{SmsID: row.ID},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "schedule sms parsing")
		}
		result = Result{Record: &row}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	g.metrics.IncIngested(result.Duplicate)
	if g.logg != nil {
		logCtx := g.logg.WithSmsID(ctx, result.Record.ID.String())
		logCtx = g.logg.WithField(logCtx, "from", from)
		if result.Duplicate {
			g.logg.Info(logCtx, "duplicate inbound sms ignored")
		} else {
			g.logg.Info(logCtx, "inbound sms stored")
		}
	}
	return result, nil
}

// DedupKey hashes sender, text and the minute the SMS arrived. Webhook
// retries within the same minute collapse to one record.
func DedupKey(from, text string, receivedAt time.Time) string {
	minute := receivedAt.UTC().Truncate(time.Minute).Format(time.RFC3339)
	return security.Fingerprint(from, text, minute)
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

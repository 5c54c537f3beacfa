package parser

import (
	"context"
	"errors"
	"time"

	"github.com/gikundiro/fanpay-backend/internal/repo"
	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	dbtypes "github.com/gikundiro/fanpay-backend/pkg/db/types"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists parse results.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

var refreshedColumns = []string{
	"amount", "currency", "reference", "payer_mask", "confidence",
	"parser_version", "decision", "candidate_ids", "updated_at",
}

// UpsertTx stores the result for smsID. A row already bound to an entity is
// left untouched and returned as is.
func (r *Repository) UpsertTx(ctx context.Context, tx *gorm.DB, smsID uuid.UUID, result Result, now time.Time) (*models.SmsParsed, error) {
	row := models.SmsParsed{
		ID:            uuid.New(),
		SmsID:         smsID,
		Amount:        result.Amount,
		Currency:      result.Currency,
		Reference:     result.Reference,
		PayerMask:     result.PayerMask,
		Confidence:    result.Confidence,
		ParserVersion: result.ParserVersion,
		CandidateIDs:  dbtypes.UUIDArray{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := r.Tx(ctx, tx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sms_id"}},
			DoUpdates: clause.AssignmentColumns(refreshedColumns),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "sms_parsed.matched_entity IS NULL"},
			}},
		}).
		Create(&row).Error
	if err != nil {
		return nil, err
	}
	return r.FindBySmsIDTx(ctx, tx, smsID)
}

func (r *Repository) FindBySmsIDTx(ctx context.Context, tx *gorm.DB, smsID uuid.UUID) (*models.SmsParsed, error) {
	var row models.SmsParsed
	if err := r.Tx(ctx, tx).Where("sms_id = ?", smsID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// FindBySmsID returns nil without error when the SMS was never parsed.
func (r *Repository) FindBySmsID(ctx context.Context, smsID uuid.UUID) (*models.SmsParsed, error) {
	row, err := r.FindBySmsIDTx(ctx, r.DB(ctx), smsID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return row, err
}

// SetRawStatusTx moves the raw record and clears its review lane.
func (r *Repository) SetRawStatusTx(ctx context.Context, tx *gorm.DB, smsID uuid.UUID, status enums.SmsIngestStatus, now time.Time) error {
	return r.Tx(ctx, tx).
		Model(&models.SmsRaw{}).
		Where("id = ?", smsID).
		Updates(map[string]any{
			"ingest_status": status,
			"review_lane":   nil,
			"updated_at":    now,
		}).Error
}

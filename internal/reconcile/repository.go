package reconcile

import (
	"context"

	"github.com/gikundiro/fanpay-backend/internal/repo"
	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	dbtypes "github.com/gikundiro/fanpay-backend/pkg/db/types"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"gorm.io/gorm"
)

const defaultCandidateLimit = 50

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

var _ CandidateRepository = (*Repository)(nil)

func (r *Repository) FindCandidates(ctx context.Context, q CandidateQuery) ([]Candidate, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultCandidateLimit
	}
	var rows []models.Payment
	err := r.DB(ctx).
		Where("status = ? AND sms_parsed_id IS NULL AND amount = ?", enums.PaymentStatusPending, q.Amount).
		Where("created_at >= ? AND created_at <= ?", q.From.UTC(), q.To.UTC()).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(rows))
	for _, p := range rows {
		out = append(out, Candidate{
			PaymentID:         p.ID,
			Amount:            p.Amount,
			CreatedAt:         p.CreatedAt,
			ExpectedReference: p.ExpectedReference,
		})
	}
	return out, nil
}

func (r *Repository) RecordDecisionTx(ctx context.Context, tx *gorm.DB, rec DecisionRecord) error {
	decision := rec.Decision
	if err := r.Tx(ctx, tx).
		Model(&models.SmsParsed{}).
		Where("id = ?", rec.ParsedID).
		Updates(map[string]any{
			"decision":      decision,
			"candidate_ids": dbtypes.UUIDArray(rec.CandidateIDs),
			"updated_at":    rec.At,
		}).Error; err != nil {
		return err
	}
	return r.Tx(ctx, tx).
		Model(&models.SmsRaw{}).
		Where("id = ?", rec.SmsID).
		Updates(map[string]any{
			"ingest_status": rec.Status,
			"review_lane":   rec.Lane,
			"updated_at":    rec.At,
		}).Error
}

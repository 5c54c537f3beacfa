// Package review serves the operator queue for SMS the pipeline could not
// settle on its own: listing, attaching to a payment, dismissing and
// re-running.
package review

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gikundiro/fanpay-backend/internal/audit"
	"github.com/gikundiro/fanpay-backend/internal/settlement"
	"github.com/gikundiro/fanpay-backend/pkg/auth"
	"github.com/gikundiro/fanpay-backend/pkg/db"
	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/outbox"
	"github.com/gikundiro/fanpay-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type settler interface {
	SettleTx(ctx context.Context, tx *gorm.DB, in settlement.SettleInput) (settlement.Outcome, error)
	ReleaseTx(ctx context.Context, tx *gorm.DB, in settlement.HoldInput) (bool, error)
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry audit.Entry) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	Conn       *gorm.DB
	DB         txRunner
	Settlement settler
	Audit      auditRecorder
	Outbox     outboxEmitter
	Logger     *logger.Logger
	Clock      func() time.Time
}

type Service struct {
	conn       *gorm.DB
	db         txRunner
	settlement settler
	audit      auditRecorder
	outbox     outboxEmitter
	logg       *logger.Logger
	clock      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Conn == nil || params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "review db required")
	}
	if params.Settlement == nil || params.Audit == nil || params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "review dependencies required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		conn:       params.Conn,
		db:         params.DB,
		settlement: params.Settlement,
		audit:      params.Audit,
		outbox:     params.Outbox,
		logg:       params.Logger,
		clock:      clock,
	}, nil
}

func requireAttach(caps auth.Capabilities) error {
	if !caps.Authenticated() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !caps.Has(enums.PermissionSmsAttach) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "missing permission "+enums.PermissionSmsAttach.String())
	}
	return nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	}
	return limit
}

// ListPending returns SMS in manual_review for the lane, newest first. Rows
// filed before lanes existed count as primary.
func (s *Service) ListPending(ctx context.Context, caps auth.Capabilities, params ListParams) ([]Item, error) {
	if err := requireAttach(caps); err != nil {
		return nil, err
	}
	lane := params.Lane
	if lane == "" {
		lane = enums.ReviewLanePrimary
	}
	if !lane.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid review lane")
	}

	q := s.conn.WithContext(ctx).Where("ingest_status = ?", enums.SmsStatusManualReview)
	if lane == enums.ReviewLanePrimary {
		q = q.Where("(review_lane = ? OR review_lane IS NULL)", lane)
	} else {
		q = q.Where("review_lane = ?", lane)
	}
	var raws []models.SmsRaw
	if err := q.Order("received_at DESC").Order("id DESC").Limit(clampLimit(params.Limit)).Find(&raws).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list manual review sms")
	}
	if len(raws) == 0 {
		return []Item{}, nil
	}

	ids := make([]uuid.UUID, 0, len(raws))
	for _, raw := range raws {
		ids = append(ids, raw.ID)
	}
	var parsedRows []models.SmsParsed
	if err := s.conn.WithContext(ctx).Where("sms_id IN ?", ids).Find(&parsedRows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load parsed sms")
	}
	parsedBySms := make(map[uuid.UUID]*models.SmsParsed, len(parsedRows))
	var candidateIDs []uuid.UUID
	for i := range parsedRows {
		parsedBySms[parsedRows[i].SmsID] = &parsedRows[i]
		candidateIDs = append(candidateIDs, parsedRows[i].CandidateIDs...)
	}

	payments := map[uuid.UUID]models.Payment{}
	if len(candidateIDs) > 0 {
		var rows []models.Payment
		if err := s.conn.WithContext(ctx).
			Where("id IN ? AND status IN ?", candidateIDs, []string{string(enums.PaymentStatusPending), string(enums.PaymentStatusManualReview)}).
			Find(&rows).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load candidate payments")
		}
		for _, p := range rows {
			payments[p.ID] = p
		}
	}

	items := make([]Item, 0, len(raws))
	for _, raw := range raws {
		parsed := parsedBySms[raw.ID]
		item := Item{Sms: smsView(raw), Parsed: parsedView(parsed), Candidates: []CandidatePaymentView{}}
		if parsed != nil {
			for _, id := range parsed.CandidateIDs {
				if p, ok := payments[id]; ok {
					item.Candidates = append(item.Candidates, candidateView(p))
				}
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// Attach settles paymentID with the SMS on the operator's behalf.
func (s *Service) Attach(ctx context.Context, caps auth.Capabilities, smsID, paymentID uuid.UUID) (*models.Payment, error) {
	if err := requireAttach(caps); err != nil {
		return nil, err
	}
	if smsID == uuid.Nil || paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sms id and payment id are required")
	}
	actor := caps.UserID()
	now := s.clock().UTC()

	var payment *models.Payment
	fromCandidates := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		raw, err := loadRaw(ctx, tx, smsID)
		if err != nil {
			return err
		}
		if resolved, err := hasResolution(ctx, tx, smsID); err != nil {
			return err
		} else if resolved {
			return pkgerrors.New(pkgerrors.CodeMatchConflict, "sms was dismissed").
				WithDetails(map[string]any{"smsId": smsID})
		}
		parsed, err := loadParsed(ctx, tx, smsID)
		if err != nil {
			return err
		}
		if parsed == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "sms has no parsed payload")
		}
		if parsed.Matched() {
			return pkgerrors.New(pkgerrors.CodeMatchConflict, "sms already matched to "+*parsed.MatchedEntity).
				WithDetails(map[string]any{"smsId": smsID})
		}
		fromCandidates = parsed.CandidateIDs.Contains(paymentID)

		out, err := s.settlement.SettleTx(ctx, tx, settlement.SettleInput{
			PaymentID: paymentID,
			SmsID:     smsID,
			Actor:     settlement.AdminActor(actor),
			Action:    audit.ActionSmsAttach,
		})
		if err != nil {
			return err
		}
		if !out.Applied {
			return pkgerrors.New(pkgerrors.CodeMatchConflict, "payment already confirmed by this sms")
		}
		payment = out.Payment
		return setRawStatus(ctx, tx, raw.ID, enums.SmsStatusParsed, now)
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithPaymentID(s.logg.WithSmsID(s.logg.WithUserID(ctx, actor.String()), smsID.String()), paymentID.String())
		logCtx = s.logg.WithField(logCtx, "from_candidates", fromCandidates)
		s.logg.Info(logCtx, "sms attached to payment")
	}
	return payment, nil
}

// Dismiss closes the SMS without touching any payment.
func (s *Service) Dismiss(ctx context.Context, caps auth.Capabilities, smsID uuid.UUID, in DismissInput) (*models.SmsManualResolution, error) {
	if err := requireAttach(caps); err != nil {
		return nil, err
	}
	if !in.Resolution.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid resolution").
			WithDetails(map[string]any{"resolution": in.Resolution})
	}
	actor := caps.UserID()
	now := s.clock().UTC()

	var resolution models.SmsManualResolution
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		raw, err := loadRaw(ctx, tx, smsID)
		if err != nil {
			return err
		}
		parsed, err := loadParsed(ctx, tx, smsID)
		if err != nil {
			return err
		}
		if parsed.Matched() {
			return pkgerrors.New(pkgerrors.CodeMatchConflict, "sms already matched to "+*parsed.MatchedEntity)
		}

		resolution = models.SmsManualResolution{
			ID:         uuid.New(),
			SmsID:      smsID,
			Resolution: in.Resolution,
			ResolvedBy: actor,
			ResolvedAt: now,
		}
		if note := strings.TrimSpace(in.Note); note != "" {
			resolution.Note = &note
		}
		if err := tx.WithContext(ctx).Create(&resolution).Error; err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeMatchConflict, "sms already resolved")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store manual resolution")
		}

		status := enums.SmsStatusError
		if in.Resolution == enums.ManualResolutionLinkedElsewhere {
			status = enums.SmsStatusParsed
		}
		if err := setRawStatus(ctx, tx, raw.ID, status, now); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     audit.ActionSmsDismiss,
			EntityType: audit.EntitySms,
			EntityID:   smsID.String(),
			Before:     map[string]any{"status": raw.IngestStatus},
			After:      map[string]any{"status": status, "resolution": resolution},
			ActorID:    &actor,
			At:         now,
		})
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithField(s.logg.WithSmsID(s.logg.WithUserID(ctx, actor.String()), smsID.String()), "resolution", string(in.Resolution))
		s.logg.Info(logCtx, "sms dismissed")
	}
	return &resolution, nil
}

// Retry puts the SMS back through the pipeline. A previous dismissal is
// cleared so the next run starts fresh.
func (s *Service) Retry(ctx context.Context, caps auth.Capabilities, smsID uuid.UUID) error {
	if err := requireAttach(caps); err != nil {
		return err
	}
	actor := caps.UserID()
	now := s.clock().UTC()

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		raw, err := loadRaw(ctx, tx, smsID)
		if err != nil {
			return err
		}
		parsed, err := loadParsed(ctx, tx, smsID)
		if err != nil {
			return err
		}
		if parsed.Matched() {
			return pkgerrors.New(pkgerrors.CodeMatchConflict, "sms already matched to "+*parsed.MatchedEntity)
		}
		if err := tx.WithContext(ctx).Where("sms_id = ?", smsID).Delete(&models.SmsManualResolution{}).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear manual resolution")
		}
		released, err := s.releaseHolds(ctx, tx, parsed, smsID, actor)
		if err != nil {
			return err
		}
		if err := setRawStatus(ctx, tx, raw.ID, enums.SmsStatusReceived, now); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Action:     audit.ActionSmsRetry,
			EntityType: audit.EntitySms,
			EntityID:   smsID.String(),
			Before:     map[string]any{"status": raw.IngestStatus},
			After:      map[string]any{"status": enums.SmsStatusReceived, "releasedPayments": released},
			ActorID:    &actor,
			At:         now,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSmsReceived,
			AggregateType: enums.AggregateSms,
			AggregateID:   smsID,
			Actor:         outbox.AdminActor(actor),
			OccurredAt:    now,
			Data:          payloads.SmsReceivedEvent{SmsID: smsID, Redispatch: true},
		})
	})
	if err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithSmsID(s.logg.WithUserID(ctx, actor.String()), smsID.String()), "sms queued for retry")
	}
	return nil
}

// releaseHolds returns the SMS's held candidates to pending so the next
// matching pass can see them again.
func (s *Service) releaseHolds(ctx context.Context, tx *gorm.DB, parsed *models.SmsParsed, smsID, actor uuid.UUID) ([]uuid.UUID, error) {
	released := []uuid.UUID{}
	if parsed == nil {
		return released, nil
	}
	for _, paymentID := range parsed.CandidateIDs {
		ok, err := s.settlement.ReleaseTx(ctx, tx, settlement.HoldInput{
			PaymentID: paymentID,
			SmsID:     smsID,
			Actor:     settlement.AdminActor(actor),
		})
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if ok {
			released = append(released, paymentID)
		}
	}
	return released, nil
}

// ListManualPayments returns payments parked for review, newest first.
func (s *Service) ListManualPayments(ctx context.Context, caps auth.Capabilities, limit int) ([]models.Payment, error) {
	if err := requireAttach(caps); err != nil {
		return nil, err
	}
	var rows []models.Payment
	if err := s.conn.WithContext(ctx).
		Where("status = ?", enums.PaymentStatusManualReview).
		Order("created_at DESC").Order("id DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list manual review payments")
	}
	return rows, nil
}

func loadRaw(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.SmsRaw, error) {
	var raw models.SmsRaw
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&raw).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sms not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sms")
	}
	return &raw, nil
}

// loadParsed returns nil when the SMS was never parsed.
func loadParsed(ctx context.Context, tx *gorm.DB, smsID uuid.UUID) (*models.SmsParsed, error) {
	var parsed models.SmsParsed
	err := tx.WithContext(ctx).Where("sms_id = ?", smsID).First(&parsed).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load parsed sms")
	}
	return &parsed, nil
}

func hasResolution(ctx context.Context, tx *gorm.DB, smsID uuid.UUID) (bool, error) {
	var n int64
	if err := tx.WithContext(ctx).Model(&models.SmsManualResolution{}).Where("sms_id = ?", smsID).Count(&n).Error; err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load manual resolution")
	}
	return n > 0, nil
}

func setRawStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.SmsIngestStatus, now time.Time) error {
	err := tx.WithContext(ctx).
		Model(&models.SmsRaw{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"ingest_status": status,
			"review_lane":   nil,
			"updated_at":    now,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update sms status")
	}
	return nil
}

package reconcile

import (
	"context"
	"time"

	"github.com/gikundiro/fanpay-backend/internal/settlement"
	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type settler interface {
	SettleTx(ctx context.Context, tx *gorm.DB, in settlement.SettleInput) (settlement.Outcome, error)
	HoldTx(ctx context.Context, tx *gorm.DB, in settlement.HoldInput) error
}

type ReconcilerParams struct {
	DB         txRunner
	Repository CandidateRepository
	Matcher    *Matcher
	Settlement settler
	Logger     *logger.Logger
	Clock      func() time.Time
}

// Reconciler applies matcher decisions: auto-settles through the settlement
// service or files the SMS for operator review.
type Reconciler struct {
	db      txRunner
	repo    CandidateRepository
	matcher *Matcher
	settler settler
	logg    *logger.Logger
	clock   func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.DB == nil || params.Repository == nil || params.Matcher == nil || params.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reconciler dependencies required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Reconciler{
		db:      params.DB,
		repo:    params.Repository,
		matcher: params.Matcher,
		settler: params.Settlement,
		logg:    params.Logger,
		clock:   clock,
	}, nil
}

// Reconcile decides and applies the outcome for one parsed SMS. A lost
// settlement race is downgraded to manual review rather than returned.
func (r *Reconciler) Reconcile(ctx context.Context, raw *models.SmsRaw, parsed *models.SmsParsed) (Decision, error) {
	if raw == nil || parsed == nil || parsed.Amount == nil {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "parsed sms with an amount is required")
	}
	if parsed.Matched() {
		return Decision{}, pkgerrors.New(pkgerrors.CodeMatchConflict, "sms already matched")
	}

	from, to := r.matcher.Window(raw.ReceivedAt)
	candidates, err := r.repo.FindCandidates(ctx, CandidateQuery{Amount: *parsed.Amount, From: from, To: to})
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find candidate payments")
	}
	decision := r.matcher.Decide(Input{
		Amount:     *parsed.Amount,
		Reference:  parsed.Reference,
		Confidence: parsed.Confidence,
		ReceivedAt: raw.ReceivedAt,
	}, candidates)

	logCtx := ctx
	if r.logg != nil {
		logCtx = r.logg.WithFields(r.logg.WithSmsID(ctx, raw.ID.String()), map[string]any{
			"decision":   string(decision.Kind),
			"reason":     decision.Reason,
			"candidates": len(decision.CandidateIDs),
			"confidence": parsed.Confidence,
		})
	}

	if decision.Kind == enums.MatchDecisionAutoSettle {
		err := r.autoSettle(ctx, raw, parsed, decision)
		if err == nil {
			if r.logg != nil {
				r.logg.Info(r.logg.WithPaymentID(logCtx, decision.PaymentID.String()), "sms auto-settled")
			}
			return decision, nil
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodeMatchConflict) && !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			return Decision{}, err
		}
		if r.logg != nil {
			r.logg.Warn(r.logg.WithField(logCtx, "error", err.Error()), "auto-settle lost a race; filing for manual review")
		}
		decision = Decision{
			Kind:         enums.MatchDecisionManualReview,
			CandidateIDs: decision.CandidateIDs,
			Reason:       "settlement_conflict",
		}
		if err := r.file(ctx, raw, parsed, decision, false); err != nil {
			return Decision{}, err
		}
		return decision, nil
	}

	if err := r.file(ctx, raw, parsed, decision, true); err != nil {
		return Decision{}, err
	}
	if r.logg != nil {
		r.logg.Info(logCtx, "sms filed for review")
	}
	return decision, nil
}

func (r *Reconciler) autoSettle(ctx context.Context, raw *models.SmsRaw, parsed *models.SmsParsed, decision Decision) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := r.settler.SettleTx(ctx, tx, settlement.SettleInput{
			PaymentID: *decision.PaymentID,
			SmsID:     raw.ID,
			Actor:     settlement.SystemActor(),
		}); err != nil {
			return err
		}
		return r.repo.RecordDecisionTx(ctx, tx, DecisionRecord{
			SmsID:        raw.ID,
			ParsedID:     parsed.ID,
			Decision:     decision.Kind,
			CandidateIDs: decision.CandidateIDs,
			Status:       enums.SmsStatusParsed,
			At:           r.clock().UTC(),
		})
	})
}

// file stores a manual_review or no_candidate decision. With hold set, a
// single candidate is parked in manual_review as well.
func (r *Reconciler) file(ctx context.Context, raw *models.SmsRaw, parsed *models.SmsParsed, decision Decision, hold bool) error {
	lane := enums.ReviewLanePrimary
	if decision.Kind == enums.MatchDecisionNoCandidate {
		lane = enums.ReviewLaneTriage
	}
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := r.repo.RecordDecisionTx(ctx, tx, DecisionRecord{
			SmsID:        raw.ID,
			ParsedID:     parsed.ID,
			Decision:     decision.Kind,
			CandidateIDs: decision.CandidateIDs,
			Status:       enums.SmsStatusManualReview,
			Lane:         &lane,
			At:           r.clock().UTC(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record match decision")
		}
		if !hold || decision.Kind != enums.MatchDecisionManualReview || len(decision.CandidateIDs) != 1 {
			return nil
		}
		err := r.settler.HoldTx(ctx, tx, settlement.HoldInput{
			PaymentID: decision.CandidateIDs[0],
			SmsID:     raw.ID,
			Actor:     settlement.SystemActor(),
		})
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			return nil
		}
		return err
	})
}

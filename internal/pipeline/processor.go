// Package pipeline drives one inbound SMS through parsing, matching and
// settlement or review.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/gikundiro/fanpay-backend/internal/parser"
	"github.com/gikundiro/fanpay-backend/internal/reconcile"
	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/metrics"
	"github.com/gikundiro/fanpay-backend/pkg/outbox"
	"github.com/gikundiro/fanpay-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	OutcomeSkipped      = "skipped"
	OutcomeParseFailure = "parse_failure"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type smsParser interface {
	ParseAndStore(ctx context.Context, raw *models.SmsRaw) (*models.SmsParsed, error)
}

type smsReconciler interface {
	Reconcile(ctx context.Context, raw *models.SmsRaw, parsed *models.SmsParsed) (reconcile.Decision, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ProcessorParams struct {
	Conn       *gorm.DB
	DB         txRunner
	Parser     smsParser
	Reconciler smsReconciler
	Outbox     outboxEmitter
	Metrics    *metrics.PipelineMetrics
	Logger     *logger.Logger
	Clock      func() time.Time
}

// Result reports what happened to one SMS. Decision is nil unless matching ran.
type Result struct {
	SmsID    uuid.UUID
	Outcome  string
	Decision *reconcile.Decision
}

type Processor struct {
	conn       *gorm.DB
	db         txRunner
	parser     smsParser
	reconciler smsReconciler
	outbox     outboxEmitter
	metrics    *metrics.PipelineMetrics
	logg       *logger.Logger
	clock      func() time.Time
}

func NewProcessor(params ProcessorParams) (*Processor, error) {
	if params.Conn == nil || params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "pipeline db required")
	}
	if params.Parser == nil || params.Reconciler == nil || params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "pipeline dependencies required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Processor{
		conn:       params.Conn,
		db:         params.DB,
		parser:     params.Parser,
		reconciler: params.Reconciler,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		logg:       params.Logger,
		clock:      clock,
	}, nil
}

// Process runs the SMS through the pipeline. SMS that already reached a
// terminal state are skipped, so redelivery is harmless. On a matching error
// the SMS stays eligible for the next delivery.
func (p *Processor) Process(ctx context.Context, smsID uuid.UUID) (Result, error) {
	logCtx := p.logg.WithSmsID(ctx, smsID.String())
	result := Result{SmsID: smsID, Outcome: OutcomeSkipped}

	raw, err := p.loadRaw(ctx, smsID)
	if err != nil {
		return result, err
	}
	pending, err := p.pending(ctx, raw)
	if err != nil {
		return result, err
	}
	if !pending {
		p.logg.Info(p.logg.WithField(logCtx, "status", string(raw.IngestStatus)), "sms already processed; skipping")
		p.metrics.IncOutcome(OutcomeSkipped)
		return result, nil
	}

	parsed, err := p.parser.ParseAndStore(ctx, raw)
	if errors.Is(err, parser.ErrParseFailure) {
		result.Outcome = OutcomeParseFailure
		p.metrics.IncOutcome(OutcomeParseFailure)
		return result, nil
	}
	if err != nil {
		p.logg.Error(logCtx, "parse stage failed", err)
		return result, err
	}
	if parsed.Matched() {
		p.metrics.IncOutcome(OutcomeSkipped)
		return result, nil
	}

	decision, err := p.reconciler.Reconcile(ctx, raw, parsed)
	if err != nil {
		p.logg.Error(logCtx, "matching stage failed", err)
		return result, err
	}
	result.Outcome = string(decision.Kind)
	result.Decision = &decision
	p.metrics.IncOutcome(result.Outcome)

	if err := p.emitReconciled(ctx, raw, parsed, decision); err != nil {
		p.logg.Error(logCtx, "failed to emit sms_reconciled", err)
	}
	return result, nil
}

func (p *Processor) loadRaw(ctx context.Context, id uuid.UUID) (*models.SmsRaw, error) {
	var raw models.SmsRaw
	err := p.conn.WithContext(ctx).Where("id = ?", id).First(&raw).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sms not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sms")
	}
	return &raw, nil
}

// pending reports whether the SMS still needs work: freshly received, or
// parsed by a run that stopped before a decision was recorded.
func (p *Processor) pending(ctx context.Context, raw *models.SmsRaw) (bool, error) {
	switch raw.IngestStatus {
	case enums.SmsStatusReceived:
		return true, nil
	case enums.SmsStatusParsed:
	default:
		return false, nil
	}
	var parsed models.SmsParsed
	err := p.conn.WithContext(ctx).Where("sms_id = ?", raw.ID).First(&parsed).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load parsed sms")
	}
	return !parsed.Matched() && parsed.Decision == nil, nil
}

func (p *Processor) emitReconciled(ctx context.Context, raw *models.SmsRaw, parsed *models.SmsParsed, decision reconcile.Decision) error {
	return p.db.WithTx(ctx, func(tx *gorm.DB) error {
		return p.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSmsReconciled,
			AggregateType: enums.AggregateSms,
			AggregateID:   raw.ID,
			Actor:         outbox.SystemActor(),
			OccurredAt:    p.clock().UTC(),
			Data: payloads.SmsReconciledEvent{
				SmsID:          raw.ID,
				Decision:       decision.Kind,
				Confidence:     parsed.Confidence,
				ParserVersion:  parsed.ParserVersion,
				Amount:         parsed.Amount,
				CandidateCount: len(decision.CandidateIDs),
				PaymentID:      decision.PaymentID,
			},
		})
	})
}

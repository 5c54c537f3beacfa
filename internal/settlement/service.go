// Package settlement owns payment status transitions. A settlement binds one
// parsed SMS to one payment, confirms the payment and settles its dependent
// entity inside a single transaction.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gikundiro/fanpay-backend/internal/audit"
	"github.com/gikundiro/fanpay-backend/internal/dependents"
	"github.com/gikundiro/fanpay-backend/pkg/db"
	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/outbox"
	"github.com/gikundiro/fanpay-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry audit.Entry) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type dependentResolver interface {
	For(kind enums.PaymentKind) (dependents.Dependent, error)
}

// Actor identifies who requested a transition. A nil UserID means the
// pipeline acted on its own.
type Actor struct {
	UserID *uuid.UUID
}

func SystemActor() Actor { return Actor{} }

func AdminActor(userID uuid.UUID) Actor {
	id := userID
	return Actor{UserID: &id}
}

func (a Actor) outboxRef() *outbox.ActorRef {
	if a.UserID == nil {
		return outbox.SystemActor()
	}
	return outbox.AdminActor(*a.UserID)
}

type SettleInput struct {
	PaymentID uuid.UUID
	SmsID     uuid.UUID
	Actor     Actor
	// Action names the audit entry; defaults to payment.settle.
	Action string
}

// Outcome reports the payment after Settle. Applied is false when the payment
// was already confirmed by the same SMS and nothing changed.
type Outcome struct {
	Payment *models.Payment
	Applied bool
}

type HoldInput struct {
	PaymentID uuid.UUID
	SmsID     uuid.UUID
	Actor     Actor
}

type FailInput struct {
	PaymentID uuid.UUID
	Reason    string
	Actor     Actor
}

type ServiceParams struct {
	DB         txRunner
	Dependents dependentResolver
	Audit      auditRecorder
	Outbox     outboxEmitter
	Logger     *logger.Logger
	Clock      func() time.Time
}

type Service struct {
	db         txRunner
	dependents dependentResolver
	audit      auditRecorder
	outbox     outboxEmitter
	logg       *logger.Logger
	clock      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "settlement db required")
	}
	if params.Dependents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "dependent registry required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "audit recorder required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:         params.DB,
		dependents: params.Dependents,
		audit:      params.Audit,
		outbox:     params.Outbox,
		logg:       params.Logger,
		clock:      clock,
	}, nil
}

// Settle confirms the payment against the SMS in its own transaction.
func (s *Service) Settle(ctx context.Context, in SettleInput) (Outcome, error) {
	var out Outcome
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		out, err = s.SettleTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	if out.Applied && s.logg != nil {
		logCtx := s.logg.WithPaymentID(s.logg.WithSmsID(ctx, in.SmsID.String()), in.PaymentID.String())
		s.logg.Info(logCtx, "payment settled")
	}
	return out, nil
}

// SettleTx runs the settlement inside a transaction owned by the caller.
// Any error leaves the caller to roll back.
func (s *Service) SettleTx(ctx context.Context, tx *gorm.DB, in SettleInput) (Outcome, error) {
	if in.PaymentID == uuid.Nil || in.SmsID == uuid.Nil {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "payment id and sms id are required")
	}
	action := in.Action
	if action == "" {
		action = audit.ActionPaymentSettle
	}

	payment, err := loadPayment(ctx, tx, in.PaymentID)
	if err != nil {
		return Outcome{}, err
	}
	parsed, err := loadParsed(ctx, tx, in.SmsID)
	if err != nil {
		return Outcome{}, err
	}
	entityRef := models.PaymentEntityRef(payment.ID)

	if payment.Status == enums.PaymentStatusConfirmed {
		if payment.SmsParsedID != nil && *payment.SmsParsedID == parsed.ID {
			return Outcome{Payment: payment, Applied: false}, nil
		}
		return Outcome{}, matchConflict("payment already confirmed by another sms", payment.ID, in.SmsID)
	}
	if !CanTransition(payment.Status, enums.PaymentStatusConfirmed) {
		return Outcome{}, stateConflict(payment.Status, enums.PaymentStatusConfirmed, payment.ID)
	}
	if parsed.Matched() {
		return Outcome{}, matchConflict("sms already matched to "+*parsed.MatchedEntity, payment.ID, in.SmsID)
	}

	before := *payment
	now := s.clock().UTC()

	res := tx.WithContext(ctx).
		Model(&models.SmsParsed{}).
		Where("id = ? AND matched_entity IS NULL", parsed.ID).
		Update("matched_entity", entityRef)
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error, "") {
			return Outcome{}, matchConflict("payment already bound to another sms", payment.ID, in.SmsID)
		}
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "bind sms to payment")
	}
	if res.RowsAffected == 0 {
		return Outcome{}, matchConflict("sms matched concurrently", payment.ID, in.SmsID)
	}

	res = tx.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status IN ?", payment.ID, []string{string(enums.PaymentStatusPending), string(enums.PaymentStatusManualReview)}).
		Updates(map[string]any{
			"status":        enums.PaymentStatusConfirmed,
			"sms_parsed_id": parsed.ID,
			"confirmed_at":  now,
		})
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error, "") {
			return Outcome{}, matchConflict("sms already confirms another payment", payment.ID, in.SmsID)
		}
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "confirm payment")
	}
	if res.RowsAffected == 0 {
		return Outcome{}, matchConflict("payment settled concurrently", payment.ID, in.SmsID)
	}

	dep, err := s.dependents.For(payment.Kind)
	if err != nil {
		return Outcome{}, err
	}
	if err := dep.MarkSettled(ctx, tx, payment.EntityID, dependents.Settlement{SmsRef: in.SmsID.String(), At: now}); err != nil {
		return Outcome{}, err
	}

	after := before
	after.Status = enums.PaymentStatusConfirmed
	after.SmsParsedID = &parsed.ID
	after.ConfirmedAt = &now
	after.UpdatedAt = now

	if err := s.audit.Record(ctx, tx, audit.Entry{
		Action:     action,
		EntityType: audit.EntityPayment,
		EntityID:   payment.ID.String(),
		Before:     before,
		After:      after,
		ActorID:    in.Actor.UserID,
		At:         now,
	}); err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record settlement audit")
	}

	phone := ""
	if payment.PayerPhone != nil {
		phone = *payment.PayerPhone
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentConfirmed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         in.Actor.outboxRef(),
		OccurredAt:    now,
		Data: payloads.PaymentConfirmedEvent{
			PaymentID:  payment.ID,
			SmsID:      in.SmsID,
			Kind:       payment.Kind,
			EntityID:   payment.EntityID,
			Amount:     payment.Amount,
			Currency:   payment.Currency,
			PayerPhone: phone,
			Manual:     in.Actor.UserID != nil,
		},
	}); err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment_confirmed")
	}

	return Outcome{Payment: &after, Applied: true}, nil
}

// HoldTx parks a pending payment for operator review.
func (s *Service) HoldTx(ctx context.Context, tx *gorm.DB, in HoldInput) error {
	payment, err := loadPayment(ctx, tx, in.PaymentID)
	if err != nil {
		return err
	}
	if payment.Status == enums.PaymentStatusManualReview {
		return nil
	}
	if !CanTransition(payment.Status, enums.PaymentStatusManualReview) {
		return stateConflict(payment.Status, enums.PaymentStatusManualReview, payment.ID)
	}
	now := s.clock().UTC()

	res := tx.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, enums.PaymentStatusPending).
		Update("status", enums.PaymentStatusManualReview)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "hold payment")
	}
	if res.RowsAffected == 0 {
		return stateConflict(payment.Status, enums.PaymentStatusManualReview, payment.ID)
	}

	after := *payment
	after.Status = enums.PaymentStatusManualReview
	if err := s.audit.Record(ctx, tx, audit.Entry{
		Action:     audit.ActionPaymentHold,
		EntityType: audit.EntityPayment,
		EntityID:   payment.ID.String(),
		Before:     payment,
		After:      after,
		ActorID:    in.Actor.UserID,
		At:         now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record hold audit")
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentHeld,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         in.Actor.outboxRef(),
		OccurredAt:    now,
		Data:          payloads.PaymentHeldEvent{PaymentID: payment.ID, SmsID: in.SmsID},
	})
}

// ReleaseTx puts a held payment back to pending. Payments that are not held
// any more are left alone and reported as not released.
func (s *Service) ReleaseTx(ctx context.Context, tx *gorm.DB, in HoldInput) (bool, error) {
	payment, err := loadPayment(ctx, tx, in.PaymentID)
	if err != nil {
		return false, err
	}
	if payment.Status != enums.PaymentStatusManualReview || payment.SmsParsedID != nil {
		return false, nil
	}
	now := s.clock().UTC()

	res := tx.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ? AND sms_parsed_id IS NULL", payment.ID, enums.PaymentStatusManualReview).
		Update("status", enums.PaymentStatusPending)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release payment")
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	after := *payment
	after.Status = enums.PaymentStatusPending
	if err := s.audit.Record(ctx, tx, audit.Entry{
		Action:     audit.ActionPaymentRelease,
		EntityType: audit.EntityPayment,
		EntityID:   payment.ID.String(),
		Before:     payment,
		After:      after,
		ActorID:    in.Actor.UserID,
		At:         now,
	}); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record release audit")
	}
	return true, nil
}

// Fail refuses a held payment or reverses a confirmed one. A reversal frees
// the confirming SMS so it can be matched again.
func (s *Service) Fail(ctx context.Context, in FailInput) (*models.Payment, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "failure reason is required")
	}

	var result *models.Payment
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		payment, err := loadPayment(ctx, tx, in.PaymentID)
		if err != nil {
			return err
		}
		if !CanTransition(payment.Status, enums.PaymentStatusFailed) {
			return stateConflict(payment.Status, enums.PaymentStatusFailed, payment.ID)
		}
		before := *payment
		now := s.clock().UTC()

		if payment.Status == enums.PaymentStatusConfirmed && payment.SmsParsedID != nil {
			res := tx.WithContext(ctx).
				Model(&models.SmsParsed{}).
				Where("id = ? AND matched_entity = ?", *payment.SmsParsedID, models.PaymentEntityRef(payment.ID)).
				Update("matched_entity", nil)
			if res.Error != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release sms binding")
			}
		}

		res := tx.WithContext(ctx).
			Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, payment.Status).
			Updates(map[string]any{
				"status":         enums.PaymentStatusFailed,
				"sms_parsed_id":  nil,
				"failure_reason": reason,
				"failed_at":      now,
			})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "fail payment")
		}
		if res.RowsAffected == 0 {
			return stateConflict(payment.Status, enums.PaymentStatusFailed, payment.ID)
		}

		dep, err := s.dependents.For(payment.Kind)
		if err != nil {
			return err
		}
		if err := dep.MarkFailed(ctx, tx, payment.EntityID, now); err != nil {
			return err
		}

		after := before
		after.Status = enums.PaymentStatusFailed
		after.SmsParsedID = nil
		after.FailureReason = &reason
		after.FailedAt = &now
		after.UpdatedAt = now

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Action:     audit.ActionPaymentFail,
			EntityType: audit.EntityPayment,
			EntityID:   payment.ID.String(),
			Before:     before,
			After:      after,
			ActorID:    in.Actor.UserID,
			At:         now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record failure audit")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         in.Actor.outboxRef(),
			OccurredAt:    now,
			Data: payloads.PaymentFailedEvent{
				PaymentID:      payment.ID,
				Kind:           payment.Kind,
				EntityID:       payment.EntityID,
				Amount:         payment.Amount,
				PreviousStatus: before.Status,
				Reason:         reason,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment_failed")
		}
		result = &after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func loadPayment(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return &payment, nil
}

func loadParsed(ctx context.Context, tx *gorm.DB, smsID uuid.UUID) (*models.SmsParsed, error) {
	var parsed models.SmsParsed
	if err := tx.WithContext(ctx).Where("sms_id = ?", smsID).First(&parsed).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "parsed sms not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load parsed sms")
	}
	return &parsed, nil
}

func matchConflict(msg string, paymentID, smsID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeMatchConflict, msg).
		WithDetails(map[string]any{"paymentId": paymentID.String(), "smsId": smsID.String()})
}

func stateConflict(from, to enums.PaymentStatus, paymentID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payment cannot move from %s to %s", from, to)).
		WithDetails(map[string]any{"paymentId": paymentID.String(), "from": from, "to": to})
}

// Package dependents adapts the entities a payment pays for (ticket orders,
// memberships, shop orders, donations) to the settlement state machine.
// Every update is conditional on the expected current status so a repeated
// or racing call changes nothing and reports a state conflict.
package dependents

import (
	"context"
	"fmt"
	"time"

	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const membershipTerm = 365 * 24 * time.Hour

// Settlement carries what a dependent may record about the confirming SMS.
type Settlement struct {
	SmsRef string
	At     time.Time
}

// Dependent is the narrow surface settlement needs from each entity kind.
type Dependent interface {
	MarkSettled(ctx context.Context, tx *gorm.DB, entityID uuid.UUID, s Settlement) error
	MarkFailed(ctx context.Context, tx *gorm.DB, entityID uuid.UUID, at time.Time) error
}

// Registry resolves the dependent for a payment kind.
type Registry struct {
	byKind map[enums.PaymentKind]Dependent
}

// NewRegistry wires the four built-in dependents.
func NewRegistry() *Registry {
	return &Registry{byKind: map[enums.PaymentKind]Dependent{
		enums.PaymentKindTicket:     TicketOrders{},
		enums.PaymentKindMembership: Memberships{},
		enums.PaymentKindShop:       ShopOrders{},
		enums.PaymentKindDonation:   Donations{},
	}}
}

// Register replaces the dependent for kind.
func (r *Registry) Register(kind enums.PaymentKind, dep Dependent) {
	r.byKind[kind] = dep
}

func (r *Registry) For(kind enums.PaymentKind) (Dependent, error) {
	dep, ok := r.byKind[kind]
	if !ok || dep == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("no dependent registered for payment kind %q", kind))
	}
	return dep, nil
}

func conditionalUpdate(ctx context.Context, tx *gorm.DB, model any, entityID uuid.UUID, from []string, values map[string]any, label string) error {
	res := tx.WithContext(ctx).
		Model(model).
		Where("id = ? AND status IN ?", entityID, from).
		Updates(values)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update "+label)
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, label+" is not in a settleable state").
			WithDetails(map[string]any{"entityId": entityID.String(), "expected": from})
	}
	return nil
}

// TicketOrders moves ticket orders pending -> paid.
type TicketOrders struct{}

func (TicketOrders) MarkSettled(ctx context.Context, tx *gorm.DB, id uuid.UUID, s Settlement) error {
	return conditionalUpdate(ctx, tx, &models.TicketOrder{}, id,
		[]string{string(enums.TicketOrderStatusPending)},
		map[string]any{"status": enums.TicketOrderStatusPaid, "sms_ref": s.SmsRef, "paid_at": s.At},
		"ticket order")
}

func (TicketOrders) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return conditionalUpdate(ctx, tx, &models.TicketOrder{}, id,
		[]string{string(enums.TicketOrderStatusPending), string(enums.TicketOrderStatusPaid)},
		map[string]any{"status": enums.TicketOrderStatusFailed},
		"ticket order")
}

// Memberships activate for one year from settlement.
type Memberships struct{}

func (Memberships) MarkSettled(ctx context.Context, tx *gorm.DB, id uuid.UUID, s Settlement) error {
	return conditionalUpdate(ctx, tx, &models.Membership{}, id,
		[]string{string(enums.MembershipStatusPending)},
		map[string]any{"status": enums.MembershipStatusActive, "started_at": s.At, "expires_at": s.At.Add(membershipTerm)},
		"membership")
}

func (Memberships) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return conditionalUpdate(ctx, tx, &models.Membership{}, id,
		[]string{string(enums.MembershipStatusPending), string(enums.MembershipStatusActive)},
		map[string]any{"status": enums.MembershipStatusCancelled, "expires_at": at},
		"membership")
}

type ShopOrders struct{}

func (ShopOrders) MarkSettled(ctx context.Context, tx *gorm.DB, id uuid.UUID, s Settlement) error {
	return conditionalUpdate(ctx, tx, &models.ShopOrder{}, id,
		[]string{string(enums.ShopOrderStatusPending)},
		map[string]any{"status": enums.ShopOrderStatusConfirmed, "confirmed_at": s.At},
		"shop order")
}

func (ShopOrders) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return conditionalUpdate(ctx, tx, &models.ShopOrder{}, id,
		[]string{string(enums.ShopOrderStatusPending), string(enums.ShopOrderStatusConfirmed)},
		map[string]any{"status": enums.ShopOrderStatusCancelled},
		"shop order")
}

type Donations struct{}

func (Donations) MarkSettled(ctx context.Context, tx *gorm.DB, id uuid.UUID, s Settlement) error {
	return conditionalUpdate(ctx, tx, &models.Donation{}, id,
		[]string{string(enums.DonationStatusPending)},
		map[string]any{"status": enums.DonationStatusConfirmed, "confirmed_at": s.At},
		"donation")
}

func (Donations) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return conditionalUpdate(ctx, tx, &models.Donation{}, id,
		[]string{string(enums.DonationStatusPending), string(enums.DonationStatusConfirmed)},
		map[string]any{"status": enums.DonationStatusFailed},
		"donation")
}

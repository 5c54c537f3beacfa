package settlement

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/gikundiro/fanpay-backend/internal/audit"
	"github.com/gikundiro/fanpay-backend/internal/dependents"
	"github.com/gikundiro/fanpay-backend/pkg/db"
	"github.com/gikundiro/fanpay-backend/pkg/db/dbtest"
	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type countingDependent struct {
	inner   dependents.Dependent
	settled int
	failed  int
	err     error
}

func (c *countingDependent) MarkSettled(ctx context.Context, tx *gorm.DB, id uuid.UUID, s dependents.Settlement) error {
	c.settled++
	if c.err != nil {
		return c.err
	}
	return c.inner.MarkSettled(ctx, tx, id, s)
}

func (c *countingDependent) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	c.failed++
	if c.err != nil {
		return c.err
	}
	return c.inner.MarkFailed(ctx, tx, id, at)
}

type fixture struct {
	conn    *gorm.DB
	svc     *Service
	tickets *countingDependent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "settlement-test", Output: io.Discard})
	registry := dependents.NewRegistry()
	tickets := &countingDependent{inner: dependents.TicketOrders{}}
	registry.Register(enums.PaymentKindTicket, tickets)

	svc, err := NewService(ServiceParams{
		DB:         db.FromConn(conn),
		Dependents: registry,
		Audit:      audit.NewRecorder(conn),
		Outbox:     outbox.NewEmitter(outbox.NewStore(conn), logg),
		Logger:     logg,
		Clock:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &fixture{conn: conn, svc: svc, tickets: tickets}
}

func (f *fixture) seedMatch(t *testing.T, amount int64) (models.Payment, models.SmsRaw, models.SmsParsed) {
	t.Helper()
	payment := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: amount, PayerPhone: "250788123456", CreatedAt: fixedNow.Add(-time.Minute)})
	raw := dbtest.SeedSms(t, f.conn, "You have received 15,000 RWF", fixedNow, enums.SmsStatusReceived)
	parsed := dbtest.SeedParsed(t, f.conn, raw.ID, amount, 0.92)
	return payment, raw, parsed
}

func TestSettleConfirmsPaymentAndDependent(t *testing.T) {
	f := newFixture(t)
	payment, raw, parsed := f.seedMatch(t, 15000)

	out, err := f.svc.Settle(context.Background(), SettleInput{PaymentID: payment.ID, SmsID: raw.ID, Actor: SystemActor()})
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.Equal(t, enums.PaymentStatusConfirmed, out.Payment.Status)

	var gotPayment models.Payment
	require.NoError(t, f.conn.First(&gotPayment, "id = ?", payment.ID).Error)
	require.Equal(t, enums.PaymentStatusConfirmed, gotPayment.Status)
	require.Equal(t, parsed.ID, *gotPayment.SmsParsedID)
	require.NotNil(t, gotPayment.ConfirmedAt)

	var gotParsed models.SmsParsed
	require.NoError(t, f.conn.First(&gotParsed, "id = ?", parsed.ID).Error)
	require.Equal(t, models.PaymentEntityRef(payment.ID), *gotParsed.MatchedEntity)

	var order models.TicketOrder
	require.NoError(t, f.conn.First(&order, "id = ?", payment.EntityID).Error)
	require.Equal(t, enums.TicketOrderStatusPaid, order.Status)
	require.Equal(t, raw.ID.String(), *order.SmsRef)

	require.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.AuditLogEntry{}, "action = ? AND entity_id = ?", audit.ActionPaymentSettle, payment.ID.String()))
	require.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentConfirmed))
}

func TestSettleTwiceWithSameSmsIsNoop(t *testing.T) {
	f := newFixture(t)
	payment, raw, _ := f.seedMatch(t, 15000)
	ctx := context.Background()

	first, err := f.svc.Settle(ctx, SettleInput{PaymentID: payment.ID, SmsID: raw.ID})
	require.NoError(t, err)
	require.True(t, first.Applied)

	second, err := f.svc.Settle(ctx, SettleInput{PaymentID: payment.ID, SmsID: raw.ID, Actor: AdminActor(uuid.New())})
	require.NoError(t, err)
	require.False(t, second.Applied)
	require.Equal(t, enums.PaymentStatusConfirmed, second.Payment.Status)

	require.Equal(t, 1, f.tickets.settled, "dependent must be settled at most once")
	require.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentConfirmed))
	require.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.AuditLogEntry{}, ""))
}

func TestSettleWithDifferentSmsIsMatchConflict(t *testing.T) {
	f := newFixture(t)
	payment, raw, _ := f.seedMatch(t, 15000)
	ctx := context.Background()

	_, err := f.svc.Settle(ctx, SettleInput{PaymentID: payment.ID, SmsID: raw.ID})
	require.NoError(t, err)

	other := dbtest.SeedSms(t, f.conn, "You have received 15,000 RWF again", fixedNow, enums.SmsStatusReceived)
	dbtest.SeedParsed(t, f.conn, other.ID, 15000, 0.92)

	_, err = f.svc.Settle(ctx, SettleInput{PaymentID: payment.ID, SmsID: other.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMatchConflict), "got %v", err)
	require.Equal(t, 1, f.tickets.settled)
}

func TestSettleSmsAlreadyMatchedElsewhere(t *testing.T) {
	f := newFixture(t)
	first, raw, _ := f.seedMatch(t, 15000)
	second := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 15000, CreatedAt: fixedNow})
	ctx := context.Background()

	_, err := f.svc.Settle(ctx, SettleInput{PaymentID: first.ID, SmsID: raw.ID})
	require.NoError(t, err)

	_, err = f.svc.Settle(ctx, SettleInput{PaymentID: second.ID, SmsID: raw.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMatchConflict), "got %v", err)

	var got models.Payment
	require.NoError(t, f.conn.First(&got, "id = ?", second.ID).Error)
	require.Equal(t, enums.PaymentStatusPending, got.Status)
}

func TestSettleRollsBackWhenDependentFails(t *testing.T) {
	f := newFixture(t)
	payment, raw, parsed := f.seedMatch(t, 15000)
	f.tickets.err = errors.New("ticket inventory unavailable")

	_, err := f.svc.Settle(context.Background(), SettleInput{PaymentID: payment.ID, SmsID: raw.ID})
	require.Error(t, err)

	var gotPayment models.Payment
	require.NoError(t, f.conn.First(&gotPayment, "id = ?", payment.ID).Error)
	require.Equal(t, enums.PaymentStatusPending, gotPayment.Status)
	require.Nil(t, gotPayment.SmsParsedID)

	var gotParsed models.SmsParsed
	require.NoError(t, f.conn.First(&gotParsed, "id = ?", parsed.ID).Error)
	require.Nil(t, gotParsed.MatchedEntity)

	require.Zero(t, dbtest.CountRows(t, f.conn, &models.AuditLogEntry{}, ""))
	require.Zero(t, dbtest.CountRows(t, f.conn, &models.OutboxEvent{}, ""))
}

func TestSettleFailedPaymentIsStateConflict(t *testing.T) {
	f := newFixture(t)
	payment := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 5000, Status: enums.PaymentStatusFailed})
	raw := dbtest.SeedSms(t, f.conn, "received 5,000 RWF", fixedNow, enums.SmsStatusReceived)
	dbtest.SeedParsed(t, f.conn, raw.ID, 5000, 0.9)

	_, err := f.svc.Settle(context.Background(), SettleInput{PaymentID: payment.ID, SmsID: raw.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
}

func TestSettleUnknownIdsAreNotFound(t *testing.T) {
	f := newFixture(t)
	payment, _, _ := f.seedMatch(t, 15000)

	_, err := f.svc.Settle(context.Background(), SettleInput{PaymentID: uuid.New(), SmsID: uuid.New()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.Settle(context.Background(), SettleInput{PaymentID: payment.ID, SmsID: uuid.New()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestHoldThenSettleFromManualReview(t *testing.T) {
	f := newFixture(t)
	payment, raw, _ := f.seedMatch(t, 15000)
	ctx := context.Background()

	err := f.svc.db.WithTx(ctx, func(tx *gorm.DB) error {
		return f.svc.HoldTx(ctx, tx, HoldInput{PaymentID: payment.ID, SmsID: raw.ID})
	})
	require.NoError(t, err)

	var held models.Payment
	require.NoError(t, f.conn.First(&held, "id = ?", payment.ID).Error)
	require.Equal(t, enums.PaymentStatusManualReview, held.Status)
	require.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentHeld))

	out, err := f.svc.Settle(ctx, SettleInput{PaymentID: payment.ID, SmsID: raw.ID, Actor: AdminActor(uuid.New()), Action: audit.ActionSmsAttach})
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.AuditLogEntry{}, "action = ?", audit.ActionSmsAttach))
}

func TestReleaseReturnsHeldPaymentToPending(t *testing.T) {
	f := newFixture(t)
	payment, raw, _ := f.seedMatch(t, 15000)
	ctx := context.Background()
	in := HoldInput{PaymentID: payment.ID, SmsID: raw.ID, Actor: AdminActor(uuid.New())}

	release := func() bool {
		var released bool
		require.NoError(t, f.svc.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			released, err = f.svc.ReleaseTx(ctx, tx, in)
			return err
		}))
		return released
	}

	require.False(t, release(), "pending payment has no hold to release")

	require.NoError(t, f.svc.db.WithTx(ctx, func(tx *gorm.DB) error {
		return f.svc.HoldTx(ctx, tx, in)
	}))
	require.True(t, release())
	require.False(t, release())

	var got models.Payment
	require.NoError(t, f.conn.First(&got, "id = ?", payment.ID).Error)
	require.Equal(t, enums.PaymentStatusPending, got.Status)
	require.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.AuditLogEntry{}, "action = ?", audit.ActionPaymentRelease))

	_, err := f.svc.Settle(ctx, SettleInput{PaymentID: payment.ID, SmsID: raw.ID})
	require.NoError(t, err)
	require.False(t, release(), "confirmed payment stays confirmed")
}

func TestFailReversalReleasesSms(t *testing.T) {
	f := newFixture(t)
	payment, raw, parsed := f.seedMatch(t, 15000)
	ctx := context.Background()

	_, err := f.svc.Settle(ctx, SettleInput{PaymentID: payment.ID, SmsID: raw.ID})
	require.NoError(t, err)

	failed, err := f.svc.Fail(ctx, FailInput{PaymentID: payment.ID, Reason: "carrier reversal", Actor: AdminActor(uuid.New())})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusFailed, failed.Status)

	var gotParsed models.SmsParsed
	require.NoError(t, f.conn.First(&gotParsed, "id = ?", parsed.ID).Error)
	require.Nil(t, gotParsed.MatchedEntity)

	var order models.TicketOrder
	require.NoError(t, f.conn.First(&order, "id = ?", payment.EntityID).Error)
	require.Equal(t, enums.TicketOrderStatusFailed, order.Status)
	require.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentFailed))

	_, err = f.svc.Fail(ctx, FailInput{PaymentID: payment.ID, Reason: "again"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestFailRejectsPendingAndBlankReason(t *testing.T) {
	f := newFixture(t)
	payment := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 1000})

	_, err := f.svc.Fail(context.Background(), FailInput{PaymentID: payment.ID, Reason: " "})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Fail(context.Background(), FailInput{PaymentID: payment.ID, Reason: "refused"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to enums.PaymentStatus
		want     bool
	}{
		{enums.PaymentStatusPending, enums.PaymentStatusConfirmed, true},
		{enums.PaymentStatusPending, enums.PaymentStatusManualReview, true},
		{enums.PaymentStatusPending, enums.PaymentStatusFailed, false},
		{enums.PaymentStatusManualReview, enums.PaymentStatusConfirmed, true},
		{enums.PaymentStatusManualReview, enums.PaymentStatusFailed, true},
		{enums.PaymentStatusManualReview, enums.PaymentStatusPending, true},
		{enums.PaymentStatusConfirmed, enums.PaymentStatusFailed, true},
		{enums.PaymentStatusConfirmed, enums.PaymentStatusPending, false},
		{enums.PaymentStatusFailed, enums.PaymentStatusConfirmed, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

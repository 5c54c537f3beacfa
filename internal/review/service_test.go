package review

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/gikundiro/fanpay-backend/internal/audit"
	"github.com/gikundiro/fanpay-backend/internal/dependents"
	"github.com/gikundiro/fanpay-backend/internal/settlement"
	"github.com/gikundiro/fanpay-backend/pkg/auth"
	"github.com/gikundiro/fanpay-backend/pkg/db"
	"github.com/gikundiro/fanpay-backend/pkg/db/dbtest"
	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	dbtypes "github.com/gikundiro/fanpay-backend/pkg/db/types"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	conn *gorm.DB
	svc  *Service
	caps auth.Capabilities
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "review-test", Output: io.Discard})
	registry := dependents.NewRegistry()
	registry.Register(enums.PaymentKindTicket, dependents.TicketOrders{})
	recorder := audit.NewRecorder(conn)
	emitter := outbox.NewEmitter(outbox.NewStore(conn), logg)
	clock := func() time.Time { return fixedNow }

	settler, err := settlement.NewService(settlement.ServiceParams{
		DB:         db.FromConn(conn),
		Dependents: registry,
		Audit:      recorder,
		Outbox:     emitter,
		Logger:     logg,
		Clock:      clock,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Conn:       conn,
		DB:         db.FromConn(conn),
		Settlement: settler,
		Audit:      recorder,
		Outbox:     emitter,
		Logger:     logg,
		Clock:      clock,
	})
	require.NoError(t, err)
	return &fixture{
		conn: conn,
		svc:  svc,
		caps: auth.NewCapabilities(uuid.New(), []enums.Permission{enums.PermissionSmsAttach}),
	}
}

// fileForReview stores an SMS already routed to the queue with its candidates.
func (f *fixture) fileForReview(t *testing.T, receivedAt time.Time, lane *enums.ReviewLane, amount int64, candidates ...uuid.UUID) (models.SmsRaw, models.SmsParsed) {
	t.Helper()
	raw := dbtest.SeedSms(t, f.conn, "You have received 15,000 RWF", receivedAt, enums.SmsStatusManualReview)
	parsed := dbtest.SeedParsed(t, f.conn, raw.ID, amount, 0.9)
	if lane != nil {
		require.NoError(t, f.conn.Model(&models.SmsRaw{}).Where("id = ?", raw.ID).Update("review_lane", string(*lane)).Error)
	}
	if len(candidates) > 0 {
		require.NoError(t, f.conn.Model(&models.SmsParsed{}).Where("id = ?", parsed.ID).
			Update("candidate_ids", dbtypes.UUIDArray(candidates)).Error)
	}
	return raw, parsed
}

func lanePtr(l enums.ReviewLane) *enums.ReviewLane { return &l }

func TestOperationsRequirePermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	anonymous := auth.Capabilities{}
	viewer := auth.NewCapabilities(uuid.New(), []enums.Permission{enums.PermissionAuditView})

	_, err := f.svc.ListPending(ctx, anonymous, ListParams{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = f.svc.ListPending(ctx, viewer, ListParams{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = f.svc.Attach(ctx, viewer, uuid.New(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = f.svc.Dismiss(ctx, viewer, uuid.New(), DismissInput{Resolution: enums.ManualResolutionIgnore})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	require.True(t, pkgerrors.IsCode(f.svc.Retry(ctx, viewer, uuid.New()), pkgerrors.CodeForbidden))
	_, err = f.svc.ListManualPayments(ctx, viewer, 0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestListPendingFiltersLaneAndOrdersNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p1 := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 15000, CreatedAt: fixedNow.Add(-3 * time.Minute)})
	p2 := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 15000, CreatedAt: fixedNow.Add(-2 * time.Minute)})
	gone := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 15000, Status: enums.PaymentStatusFailed})

	older, _ := f.fileForReview(t, fixedNow.Add(-time.Hour), nil, 15000)
	newer, _ := f.fileForReview(t, fixedNow, lanePtr(enums.ReviewLanePrimary), 15000, p2.ID, gone.ID, p1.ID)
	triage, _ := f.fileForReview(t, fixedNow.Add(-time.Minute), lanePtr(enums.ReviewLaneTriage), 15000)
	dbtest.SeedSms(t, f.conn, "Airtime bundle activated", fixedNow, enums.SmsStatusError)

	items, err := f.svc.ListPending(ctx, f.caps, ListParams{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, newer.ID, items[0].Sms.ID)
	require.Equal(t, older.ID, items[1].Sms.ID)

	require.NotNil(t, items[0].Parsed)
	require.Len(t, items[0].Candidates, 2)
	require.Equal(t, p2.ID, items[0].Candidates[0].ID)
	require.Equal(t, p1.ID, items[0].Candidates[1].ID)
	require.Empty(t, items[1].Candidates)

	items, err = f.svc.ListPending(ctx, f.caps, ListParams{Lane: enums.ReviewLaneTriage})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, triage.ID, items[0].Sms.ID)

	items, err = f.svc.ListPending(ctx, f.caps, ListParams{Limit: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = f.svc.ListPending(ctx, f.caps, ListParams{Lane: "vip"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAttachSettlesHeldPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payment := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 15000, Status: enums.PaymentStatusManualReview})
	raw, parsed := f.fileForReview(t, fixedNow, lanePtr(enums.ReviewLanePrimary), 15000, payment.ID)

	got, err := f.svc.Attach(ctx, f.caps, raw.ID, payment.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusConfirmed, got.Status)

	var stored models.Payment
	require.NoError(t, f.conn.First(&stored, "id = ?", payment.ID).Error)
	require.Equal(t, enums.PaymentStatusConfirmed, stored.Status)
	require.Equal(t, parsed.ID, *stored.SmsParsedID)

	var rawAfter models.SmsRaw
	require.NoError(t, f.conn.First(&rawAfter, "id = ?", raw.ID).Error)
	require.Equal(t, enums.SmsStatusParsed, rawAfter.IngestStatus)
	require.Nil(t, rawAfter.ReviewLane)

	var parsedAfter models.SmsParsed
	require.NoError(t, f.conn.First(&parsedAfter, "id = ?", parsed.ID).Error)
	require.Equal(t, models.PaymentEntityRef(payment.ID), *parsedAfter.MatchedEntity)

	var entry models.AuditLogEntry
	require.NoError(t, f.conn.Where("action = ?", audit.ActionSmsAttach).First(&entry).Error)
	require.Equal(t, payment.ID.String(), entry.EntityID)
	require.NotNil(t, entry.ActorID)
	require.Equal(t, f.caps.UserID(), *entry.ActorID)

	var ticket models.TicketOrder
	require.NoError(t, f.conn.First(&ticket, "id = ?", payment.EntityID).Error)
	require.Equal(t, enums.TicketOrderStatusPaid, ticket.Status)
}

func TestAttachRejectsAlreadyMatchedSms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 15000})
	second := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 15000})
	raw, _ := f.fileForReview(t, fixedNow, nil, 15000, first.ID, second.ID)

	_, err := f.svc.Attach(ctx, f.caps, raw.ID, first.ID)
	require.NoError(t, err)

	_, err = f.svc.Attach(ctx, f.caps, raw.ID, second.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMatchConflict))

	var stored models.Payment
	require.NoError(t, f.conn.First(&stored, "id = ?", second.ID).Error)
	require.Equal(t, enums.PaymentStatusPending, stored.Status)
	require.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.AuditLogEntry{}, "action = ?", audit.ActionSmsAttach))
}

func TestAttachRejectsConfirmedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payment := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 15000})
	rawA, _ := f.fileForReview(t, fixedNow, nil, 15000, payment.ID)
	rawB, _ := f.fileForReview(t, fixedNow.Add(-time.Minute), nil, 15000, payment.ID)

	_, err := f.svc.Attach(ctx, f.caps, rawA.ID, payment.ID)
	require.NoError(t, err)
	_, err = f.svc.Attach(ctx, f.caps, rawB.ID, payment.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMatchConflict))

	var rawAfter models.SmsRaw
	require.NoError(t, f.conn.First(&rawAfter, "id = ?", rawB.ID).Error)
	require.Equal(t, enums.SmsStatusManualReview, rawAfter.IngestStatus)
}

func TestConcurrentAttachOfSamePayment(t *testing.T) {
	f := newFixture(t)
	dbtest.Serialize(t, f.conn)

	payment := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 15000})
	rawA, _ := f.fileForReview(t, fixedNow, nil, 15000, payment.ID)
	rawB, _ := f.fileForReview(t, fixedNow.Add(-time.Minute), nil, 15000, payment.ID)

	smsIDs := []uuid.UUID{rawA.ID, rawB.ID}
	errs := make([]error, len(smsIDs))
	var g errgroup.Group
	for i, smsID := range smsIDs {
		g.Go(func() error {
			_, errs[i] = f.svc.Attach(context.Background(), f.caps, smsID, payment.ID)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.IsCode(err, pkgerrors.CodeMatchConflict):
			conflicted++
		default:
			t.Fatalf("unexpected attach error: %v", err)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, conflicted)
	require.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.SmsParsed{}, "matched_entity = ?", models.PaymentEntityRef(payment.ID)))
	require.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.AuditLogEntry{}, "action = ?", audit.ActionSmsAttach))
}

// A transaction that read the payment as pending before a competing attach
// committed still loses on the partial unique index over matched_entity.
func TestAttachLosesOnMatchedEntityIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payment := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 15000})
	_, winner := f.fileForReview(t, fixedNow, nil, 15000, payment.ID)
	loser, _ := f.fileForReview(t, fixedNow.Add(-time.Minute), nil, 15000, payment.ID)
	require.NoError(t, f.conn.Model(&models.SmsParsed{}).Where("id = ?", winner.ID).
		Update("matched_entity", models.PaymentEntityRef(payment.ID)).Error)

	_, err := f.svc.Attach(ctx, f.caps, loser.ID, payment.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMatchConflict), "got %v", err)

	var stored models.Payment
	require.NoError(t, f.conn.First(&stored, "id = ?", payment.ID).Error)
	require.Equal(t, enums.PaymentStatusPending, stored.Status)
	require.Nil(t, stored.SmsParsedID)
	require.Zero(t, dbtest.CountRows(t, f.conn, &models.AuditLogEntry{}, "action = ?", audit.ActionSmsAttach))
}

func TestAttachRequiresParsedPayloadAndExistingRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payment := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 15000})

	_, err := f.svc.Attach(ctx, f.caps, uuid.New(), payment.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	bare := dbtest.SeedSms(t, f.conn, "unreadable", fixedNow, enums.SmsStatusManualReview)
	_, err = f.svc.Attach(ctx, f.caps, bare.ID, payment.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	raw, _ := f.fileForReview(t, fixedNow, nil, 15000)
	_, err = f.svc.Attach(ctx, f.caps, raw.ID, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDismissRecordsResolutionWithoutTouchingPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payment := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 15000, Status: enums.PaymentStatusManualReview})
	raw, _ := f.fileForReview(t, fixedNow, lanePtr(enums.ReviewLanePrimary), 15000, payment.ID)

	res, err := f.svc.Dismiss(ctx, f.caps, raw.ID, DismissInput{Resolution: enums.ManualResolutionDuplicate, Note: " resent by carrier "})
	require.NoError(t, err)
	require.Equal(t, enums.ManualResolutionDuplicate, res.Resolution)
	require.Equal(t, "resent by carrier", *res.Note)
	require.Equal(t, f.caps.UserID(), res.ResolvedBy)

	var rawAfter models.SmsRaw
	require.NoError(t, f.conn.First(&rawAfter, "id = ?", raw.ID).Error)
	require.Equal(t, enums.SmsStatusError, rawAfter.IngestStatus)

	var stored models.Payment
	require.NoError(t, f.conn.First(&stored, "id = ?", payment.ID).Error)
	require.Equal(t, enums.PaymentStatusManualReview, stored.Status)
	require.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.AuditLogEntry{}, "action = ?", audit.ActionSmsDismiss))

	_, err = f.svc.Dismiss(ctx, f.caps, raw.ID, DismissInput{Resolution: enums.ManualResolutionIgnore})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMatchConflict))

	_, err = f.svc.Attach(ctx, f.caps, raw.ID, payment.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMatchConflict))
}

func TestDismissLinkedElsewhereMarksParsed(t *testing.T) {
	f := newFixture(t)
	raw, _ := f.fileForReview(t, fixedNow, nil, 15000)

	_, err := f.svc.Dismiss(context.Background(), f.caps, raw.ID, DismissInput{Resolution: enums.ManualResolutionLinkedElsewhere})
	require.NoError(t, err)

	var rawAfter models.SmsRaw
	require.NoError(t, f.conn.First(&rawAfter, "id = ?", raw.ID).Error)
	require.Equal(t, enums.SmsStatusParsed, rawAfter.IngestStatus)
}

func TestDismissValidatesResolution(t *testing.T) {
	f := newFixture(t)
	raw, _ := f.fileForReview(t, fixedNow, nil, 15000)

	_, err := f.svc.Dismiss(context.Background(), f.caps, raw.ID, DismissInput{Resolution: "spam"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.EqualValues(t, 0, dbtest.CountRows(t, f.conn, &models.SmsManualResolution{}, ""))
}

func TestRetryRequeuesAndClearsDismissal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raw, _ := f.fileForReview(t, fixedNow, nil, 15000)

	_, err := f.svc.Dismiss(ctx, f.caps, raw.ID, DismissInput{Resolution: enums.ManualResolutionIgnore})
	require.NoError(t, err)

	require.NoError(t, f.svc.Retry(ctx, f.caps, raw.ID))

	var rawAfter models.SmsRaw
	require.NoError(t, f.conn.First(&rawAfter, "id = ?", raw.ID).Error)
	require.Equal(t, enums.SmsStatusReceived, rawAfter.IngestStatus)
	require.EqualValues(t, 0, dbtest.CountRows(t, f.conn, &models.SmsManualResolution{}, ""))
	require.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.OutboxEvent{}, "event_type = ? AND aggregate_id = ?", enums.EventSmsReceived, raw.ID))
	require.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.AuditLogEntry{}, "action = ?", audit.ActionSmsRetry))
}

func TestRetryRejectsMatchedSms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payment := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 15000})
	raw, _ := f.fileForReview(t, fixedNow, nil, 15000, payment.ID)

	_, err := f.svc.Attach(ctx, f.caps, raw.ID, payment.ID)
	require.NoError(t, err)

	err = f.svc.Retry(ctx, f.caps, raw.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMatchConflict))
}

func TestListManualPayments(t *testing.T) {
	f := newFixture(t)
	older := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 1000, Status: enums.PaymentStatusManualReview, CreatedAt: fixedNow.Add(-time.Hour)})
	newer := dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 2000, Status: enums.PaymentStatusManualReview, CreatedAt: fixedNow})
	dbtest.SeedPayment(t, f.conn, dbtest.PaymentSeed{Amount: 3000})

	rows, err := f.svc.ListManualPayments(context.Background(), f.caps, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, newer.ID, rows[0].ID)
	require.Equal(t, older.ID, rows[1].ID)
}

func TestClampLimit(t *testing.T) {
	require.Equal(t, 50, clampLimit(0))
	require.Equal(t, 50, clampLimit(-4))
	require.Equal(t, 7, clampLimit(7))
	require.Equal(t, 200, clampLimit(1000))
}

package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gikundiro/fanpay-backend/internal/review"
	"github.com/gikundiro/fanpay-backend/pkg/auth"
	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
)

type stubReviewService struct {
	caps       auth.Capabilities
	listParams review.ListParams
	smsID      uuid.UUID
	paymentID  uuid.UUID
	dismiss    review.DismissInput
	limit      int
	err        error
}

func (s *stubReviewService) ListPending(_ context.Context, caps auth.Capabilities, params review.ListParams) ([]review.Item, error) {
	s.caps, s.listParams = caps, params
	return []review.Item{{Sms: review.SmsView{ID: uuid.New()}}}, s.err
}

func (s *stubReviewService) Attach(_ context.Context, caps auth.Capabilities, smsID, paymentID uuid.UUID) (*models.Payment, error) {
	s.caps, s.smsID, s.paymentID = caps, smsID, paymentID
	if s.err != nil {
		return nil, s.err
	}
	return &models.Payment{ID: paymentID, Status: enums.PaymentStatusConfirmed}, nil
}

func (s *stubReviewService) Dismiss(_ context.Context, caps auth.Capabilities, smsID uuid.UUID, in review.DismissInput) (*models.SmsManualResolution, error) {
	s.caps, s.smsID, s.dismiss = caps, smsID, in
	if s.err != nil {
		return nil, s.err
	}
	return &models.SmsManualResolution{SmsID: smsID, Resolution: in.Resolution}, nil
}

func (s *stubReviewService) Retry(_ context.Context, caps auth.Capabilities, smsID uuid.UUID) error {
	s.caps, s.smsID = caps, smsID
	return s.err
}

func (s *stubReviewService) ListManualPayments(_ context.Context, caps auth.Capabilities, limit int) ([]models.Payment, error) {
	s.caps, s.limit = caps, limit
	return nil, s.err
}

func TestAdminListManualSmsParsesQuery(t *testing.T) {
	svc := &stubReviewService{}
	admin := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/admin/sms/manual?limit=10&lane=triage", nil)
	req = withAdmin(req, admin, enums.PermissionSmsAttach)
	rec := httptest.NewRecorder()

	AdminListManualSms(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 10, svc.listParams.Limit)
	require.Equal(t, enums.ReviewLaneTriage, svc.listParams.Lane)
	require.Equal(t, admin, svc.caps.UserID())
}

func TestAdminListManualSmsRejectsBadQuery(t *testing.T) {
	for _, query := range []string{"?limit=0", "?limit=500", "?limit=abc", "?lane=nowhere"} {
		svc := &stubReviewService{}
		req := httptest.NewRequest(http.MethodGet, "/admin/sms/manual"+query, nil)
		rec := httptest.NewRecorder()

		AdminListManualSms(svc, testLogger())(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestAdminAttachSms(t *testing.T) {
	svc := &stubReviewService{}
	smsID, paymentID := uuid.New(), uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/attach", strings.NewReader(`{"paymentId":"`+paymentID.String()+`"}`))
	req = withRouteParams(withAdmin(req, uuid.New(), enums.PermissionSmsAttach), map[string]string{"smsId": smsID.String()})
	rec := httptest.NewRecorder()

	AdminAttachSms(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, smsID, svc.smsID)
	require.Equal(t, paymentID, svc.paymentID)
	var payment models.Payment
	decodeData(t, rec, &payment)
	require.Equal(t, enums.PaymentStatusConfirmed, payment.Status)
}

func TestAdminAttachSmsConflict(t *testing.T) {
	svc := &stubReviewService{err: pkgerrors.New(pkgerrors.CodeMatchConflict, "sms already resolved")}
	req := httptest.NewRequest(http.MethodPost, "/attach", strings.NewReader(`{"paymentId":"`+uuid.NewString()+`"}`))
	req = withRouteParams(req, map[string]string{"smsId": uuid.NewString()})
	rec := httptest.NewRecorder()

	AdminAttachSms(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(pkgerrors.CodeMatchConflict), decodeError(t, rec).Error.Code)
}

func TestAdminAttachSmsValidatesIDs(t *testing.T) {
	svc := &stubReviewService{}

	req := httptest.NewRequest(http.MethodPost, "/attach", strings.NewReader(`{"paymentId":"`+uuid.NewString()+`"}`))
	req = withRouteParams(req, map[string]string{"smsId": "not-a-uuid"})
	rec := httptest.NewRecorder()
	AdminAttachSms(svc, testLogger())(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/attach", strings.NewReader(`{"paymentId":"nope"}`))
	req = withRouteParams(req, map[string]string{"smsId": uuid.NewString()})
	rec = httptest.NewRecorder()
	AdminAttachSms(svc, testLogger())(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, uuid.Nil, svc.smsID)
}

func TestAdminDismissSms(t *testing.T) {
	svc := &stubReviewService{}
	smsID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/dismiss", strings.NewReader(`{"resolution":"linked_elsewhere","note":"  paid at the gate  "}`))
	req = withRouteParams(req, map[string]string{"smsId": smsID.String()})
	rec := httptest.NewRecorder()

	AdminDismissSms(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, enums.ManualResolutionLinkedElsewhere, svc.dismiss.Resolution)
	require.Equal(t, "paid at the gate", svc.dismiss.Note)
}

func TestAdminDismissSmsRejectsUnknownResolution(t *testing.T) {
	svc := &stubReviewService{}
	req := httptest.NewRequest(http.MethodPost, "/dismiss", strings.NewReader(`{"resolution":"refund"}`))
	req = withRouteParams(req, map[string]string{"smsId": uuid.NewString()})
	rec := httptest.NewRecorder()

	AdminDismissSms(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, uuid.Nil, svc.smsID)
}

func TestAdminRetrySms(t *testing.T) {
	svc := &stubReviewService{}
	smsID := uuid.New()
	req := withRouteParams(httptest.NewRequest(http.MethodPost, "/retry", nil), map[string]string{"smsId": smsID.String()})
	rec := httptest.NewRecorder()

	AdminRetrySms(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, smsID, svc.smsID)
}

func TestAdminRetrySmsForbidden(t *testing.T) {
	svc := &stubReviewService{err: pkgerrors.New(pkgerrors.CodeForbidden, "sms:attach required")}
	req := withRouteParams(httptest.NewRequest(http.MethodPost, "/retry", nil), map[string]string{"smsId": uuid.NewString()})
	rec := httptest.NewRecorder()

	AdminRetrySms(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminListManualPaymentsDefaultsLimit(t *testing.T) {
	svc := &stubReviewService{}
	rec := httptest.NewRecorder()

	AdminListManualPayments(svc, testLogger())(rec, httptest.NewRequest(http.MethodGet, "/admin/sms/manual/payments", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 50, svc.limit)
}

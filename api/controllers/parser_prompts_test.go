package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gikundiro/fanpay-backend/internal/parser"
	"github.com/gikundiro/fanpay-backend/pkg/auth"
	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
)

type stubPromptService struct {
	created    parser.CreatePromptInput
	activated  uuid.UUID
	tested     parser.TestInput
	active     *models.SmsParserPrompt
	testResult parser.Result
	err        error
}

func (s *stubPromptService) List(context.Context, auth.Capabilities) ([]models.SmsParserPrompt, error) {
	return []models.SmsParserPrompt{{Label: "v1", Version: 1}}, s.err
}

func (s *stubPromptService) Active(context.Context, auth.Capabilities) (*models.SmsParserPrompt, error) {
	return s.active, s.err
}

func (s *stubPromptService) Create(_ context.Context, _ auth.Capabilities, in parser.CreatePromptInput) (*models.SmsParserPrompt, error) {
	s.created = in
	if s.err != nil {
		return nil, s.err
	}
	return &models.SmsParserPrompt{ID: uuid.New(), Label: in.Label, Body: in.Body, Version: 3}, nil
}

func (s *stubPromptService) Activate(_ context.Context, _ auth.Capabilities, id uuid.UUID) (*models.SmsParserPrompt, error) {
	s.activated = id
	if s.err != nil {
		return nil, s.err
	}
	return &models.SmsParserPrompt{ID: id, IsActive: true}, nil
}

func (s *stubPromptService) Test(_ context.Context, _ auth.Capabilities, in parser.TestInput) (parser.Result, error) {
	s.tested = in
	return s.testResult, s.err
}

func TestAdminCreatePrompt(t *testing.T) {
	svc := &stubPromptService{}
	body := `{"label":"  Carrier v3 ","body":"Extract amount, currency and reference.","version":3}`
	req := withAdmin(httptest.NewRequest(http.MethodPost, "/prompts", strings.NewReader(body)), uuid.New(), enums.PermissionSmsParserUpdate)
	rec := httptest.NewRecorder()

	AdminCreatePrompt(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "Carrier v3", svc.created.Label)
	require.NotNil(t, svc.created.Version)
	require.Equal(t, 3, *svc.created.Version)
}

func TestAdminCreatePromptValidation(t *testing.T) {
	svc := &stubPromptService{}
	req := httptest.NewRequest(http.MethodPost, "/prompts", strings.NewReader(`{"label":"x","version":0}`))
	rec := httptest.NewRecorder()

	AdminCreatePrompt(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, svc.created.Label)
}

func TestAdminCreatePromptVersionConflict(t *testing.T) {
	svc := &stubPromptService{err: pkgerrors.New(pkgerrors.CodeConflict, "prompt version already exists")}
	req := httptest.NewRequest(http.MethodPost, "/prompts", strings.NewReader(`{"label":"x","body":"y","version":1}`))
	rec := httptest.NewRecorder()

	AdminCreatePrompt(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminActivatePrompt(t *testing.T) {
	svc := &stubPromptService{}
	id := uuid.New()
	req := withRouteParams(httptest.NewRequest(http.MethodPost, "/activate", nil), map[string]string{"promptId": id.String()})
	rec := httptest.NewRecorder()

	AdminActivatePrompt(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, id, svc.activated)
}

func TestAdminActivePromptWithoutStoredPrompt(t *testing.T) {
	svc := &stubPromptService{}
	rec := httptest.NewRecorder()

	AdminActivePrompt(svc, testLogger())(rec, httptest.NewRequest(http.MethodGet, "/active", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data":null}`, rec.Body.String())
}

func TestAdminTestPrompt(t *testing.T) {
	amount := int64(15000)
	svc := &stubPromptService{testResult: parser.Result{Amount: &amount, Currency: enums.CurrencyRWF, Confidence: 0.82, ParserVersion: "template:mtn_momo_received:v1"}}
	promptID := uuid.New()
	body := `{"text":"You have received 15,000 RWF","promptId":"` + promptID.String() + `"}`
	rec := httptest.NewRecorder()

	AdminTestPrompt(svc, testLogger())(rec, httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.tested.PromptID)
	require.Equal(t, promptID, *svc.tested.PromptID)

	var result parser.Result
	decodeData(t, rec, &result)
	require.Equal(t, amount, *result.Amount)
	require.InDelta(t, 0.82, result.Confidence, 1e-9)
}

func TestAdminListPrompts(t *testing.T) {
	rec := httptest.NewRecorder()
	AdminListPrompts(&stubPromptService{}, testLogger())(rec, httptest.NewRequest(http.MethodGet, "/prompts", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Items []models.SmsParserPrompt `json:"items"`
	}
	decodeData(t, rec, &payload)
	require.Len(t, payload.Items, 1)
}

package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gikundiro/fanpay-backend/api/middleware"
	"github.com/gikundiro/fanpay-backend/api/responses"
	"github.com/gikundiro/fanpay-backend/api/validators"
	"github.com/gikundiro/fanpay-backend/internal/review"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
)

type attachRequest struct {
	PaymentID string `json:"paymentId" validate:"required,uuid"`
}

type dismissRequest struct {
	Resolution string `json:"resolution" validate:"required"`
	Note       string `json:"note,omitempty" validate:"max=1000"`
}

// AdminListManualSms returns SMS waiting for an operator, with ranked
// candidates.
func AdminListManualSms(svc ManualReviewService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "review service unavailable"))
			return
		}
		limit, err := validators.IntParam(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lane, err := enums.ParseReviewLane(strings.TrimSpace(r.URL.Query().Get("lane")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid lane"))
			return
		}

		items, err := svc.ListPending(r.Context(), middleware.CapabilitiesFromContext(r.Context()), review.ListParams{Limit: limit, Lane: lane})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}

// AdminListManualPayments returns payments settled through the queue.
func AdminListManualPayments(svc ManualReviewService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "review service unavailable"))
			return
		}
		limit, err := validators.IntParam(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payments, err := svc.ListManualPayments(r.Context(), middleware.CapabilitiesFromContext(r.Context()), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": payments})
	}
}

func AdminAttachSms(svc ManualReviewService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "review service unavailable"))
			return
		}
		smsID, err := uuidParam(r, "smsId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req attachRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := uuid.Parse(req.PaymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid paymentId"))
			return
		}

		ctx := logg.WithSmsID(r.Context(), smsID.String())
		ctx = logg.WithPaymentID(ctx, paymentID.String())
		payment, err := svc.Attach(ctx, middleware.CapabilitiesFromContext(ctx), smsID, paymentID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

func AdminDismissSms(svc ManualReviewService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "review service unavailable"))
			return
		}
		smsID, err := uuidParam(r, "smsId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req dismissRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resolution, err := enums.ParseManualResolution(strings.TrimSpace(req.Resolution))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid resolution"))
			return
		}

		ctx := logg.WithSmsID(r.Context(), smsID.String())
		record, err := svc.Dismiss(ctx, middleware.CapabilitiesFromContext(ctx), smsID, review.DismissInput{
			Resolution: resolution,
			Note:       validators.Clean(req.Note, 1000),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// AdminRetrySms puts the SMS back through the pipeline.
func AdminRetrySms(svc ManualReviewService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "review service unavailable"))
			return
		}
		smsID, err := uuidParam(r, "smsId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := logg.WithSmsID(r.Context(), smsID.String())
		if err := svc.Retry(ctx, middleware.CapabilitiesFromContext(ctx), smsID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]any{"id": smsID.String(), "status": string(enums.SmsStatusReceived)})
	}
}

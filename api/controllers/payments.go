package controllers

import (
	"net/http"

	"github.com/gikundiro/fanpay-backend/api/middleware"
	"github.com/gikundiro/fanpay-backend/api/responses"
	"github.com/gikundiro/fanpay-backend/api/validators"
	"github.com/gikundiro/fanpay-backend/internal/settlement"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
)

type failPaymentRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// AdminFailPayment refuses a held payment or reverses a confirmed one.
func AdminFailPayment(svc PaymentFailer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}
		paymentID, err := uuidParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req failPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caps := middleware.CapabilitiesFromContext(r.Context())
		ctx := logg.WithPaymentID(r.Context(), paymentID.String())
		payment, err := svc.Fail(ctx, settlement.FailInput{
			PaymentID: paymentID,
			Reason:    validators.Clean(req.Reason, 500),
			Actor:     settlement.AdminActor(caps.UserID()),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

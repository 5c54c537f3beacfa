package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gikundiro/fanpay-backend/api/responses"
	"github.com/gikundiro/fanpay-backend/api/validators"
	"github.com/gikundiro/fanpay-backend/internal/ingestion"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
)

const maxSmsTextLength = 2000

type smsInboundRequest struct {
	Text       string          `json:"text" validate:"required,max=2000"`
	From       string          `json:"fromAddress" validate:"required,max=64"`
	To         *string         `json:"toAddress,omitempty" validate:"omitempty,max=64"`
	ReceivedAt *time.Time      `json:"receivedAt,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

type smsInboundResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// SmsInbound accepts one forwarded SMS from the modem gateway. A repeated
// delivery answers 200 with the stored record instead of 201.
func SmsInbound(svc SmsIngestor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ingestion unavailable"))
			return
		}

		var req smsInboundRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := ingestion.Payload{
			Text:        validators.Clean(req.Text, maxSmsTextLength),
			FromAddress: validators.Clean(req.From, 64),
			ToAddress:   req.To,
			Metadata:    req.Metadata,
		}
		if req.ReceivedAt != nil {
			payload.ReceivedAt = *req.ReceivedAt
		}

		result, err := svc.Ingest(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Duplicate {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, smsInboundResponse{
			ID:        result.Record.ID.String(),
			Status:    string(result.Record.IngestStatus),
			Duplicate: result.Duplicate,
		})
	}
}

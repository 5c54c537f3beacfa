// Package projection turns analytics events into reconciliation_events rows.
package projection

import (
	"encoding/json"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/gikundiro/fanpay-backend/internal/analytics/types"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"github.com/gikundiro/fanpay-backend/pkg/outbox/payloads"
)

type projector func(data json.RawMessage, row *types.ReconciliationEventRow) error

var projectors = map[enums.AnalyticsEventType]projector{
	enums.AnalyticsEventSmsReconciled:    fill(smsReconciled),
	enums.AnalyticsEventPaymentConfirmed: fill(paymentConfirmed),
	enums.AnalyticsEventPaymentHeld:      fill(paymentHeld),
	enums.AnalyticsEventPaymentFailed:    fill(paymentFailed),
}

// fill decodes the payload into T before handing it to set.
func fill[T any](set func(T, *types.ReconciliationEventRow)) projector {
	return func(data json.RawMessage, row *types.ReconciliationEventRow) error {
		var payload T
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		set(payload, row)
		return nil
	}
}

// Row projects evt. The raw payload is kept in the payload column so new
// fields are queryable before they get a column of their own.
func Row(evt types.Event) (types.ReconciliationEventRow, error) {
	project, ok := projectors[evt.Type]
	if !ok {
		return types.ReconciliationEventRow{}, fmt.Errorf("%w: %s", types.ErrNotRecorded, evt.Type)
	}
	row := types.ReconciliationEventRow{
		EventID:    evt.ID.String(),
		EventType:  string(evt.Type),
		OccurredAt: evt.OccurredAt,
		Payload:    bigquery.NullJSON{JSONVal: string(evt.Data), Valid: len(evt.Data) > 0},
	}
	if err := project(evt.Data, &row); err != nil {
		return types.ReconciliationEventRow{}, fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	return row, nil
}

func smsReconciled(e payloads.SmsReconciledEvent, row *types.ReconciliationEventRow) {
	row.SmsID = id(e.SmsID)
	row.Decision = text(string(e.Decision))
	row.Confidence = &e.Confidence
	row.ParserVersion = text(e.ParserVersion)
	row.CandidateCount = ref(int64(e.CandidateCount))
	row.Amount = e.Amount
	if e.PaymentID != nil {
		row.PaymentID = id(*e.PaymentID)
	}
}

func paymentConfirmed(e payloads.PaymentConfirmedEvent, row *types.ReconciliationEventRow) {
	row.PaymentID = id(e.PaymentID)
	row.SmsID = id(e.SmsID)
	row.Amount = &e.Amount
	row.Currency = text(string(e.Currency))
	row.Kind = text(string(e.Kind))
	row.EntityID = id(e.EntityID)
	row.Manual = &e.Manual
}

func paymentHeld(e payloads.PaymentHeldEvent, row *types.ReconciliationEventRow) {
	row.PaymentID = id(e.PaymentID)
	row.SmsID = id(e.SmsID)
}

func paymentFailed(e payloads.PaymentFailedEvent, row *types.ReconciliationEventRow) {
	row.PaymentID = id(e.PaymentID)
	row.Amount = &e.Amount
	row.Kind = text(string(e.Kind))
	row.EntityID = id(e.EntityID)
	row.Reason = text(e.Reason)
}

func ref[T any](v T) *T { return &v }

// text maps "" to NULL.
func text(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// id maps the zero UUID to NULL.
func id(v uuid.UUID) *string {
	if v == uuid.Nil {
		return nil
	}
	return ref(v.String())
}

package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// ReconciliationEventRow mirrors the reconciliation_events BigQuery schema.
// One row per sms_reconciled or payment lifecycle event; columns that do not
// apply to the event type stay NULL.
type ReconciliationEventRow struct {
	EventID        string             `bigquery:"event_id"`
	EventType      string             `bigquery:"event_type"`
	OccurredAt     time.Time          `bigquery:"occurred_at"`
	SmsID          *string            `bigquery:"sms_id"`
	PaymentID      *string            `bigquery:"payment_id"`
	Decision       *string            `bigquery:"decision"`
	Confidence     *float64           `bigquery:"confidence"`
	ParserVersion  *string            `bigquery:"parser_version"`
	CandidateCount *int64             `bigquery:"candidate_count"`
	Amount         *int64             `bigquery:"amount"`
	Currency       *string            `bigquery:"currency"`
	Kind           *string            `bigquery:"kind"`
	EntityID       *string            `bigquery:"entity_id"`
	Manual         *bool              `bigquery:"manual"`
	Reason         *string            `bigquery:"reason"`
	Payload        cbigquery.NullJSON `bigquery:"payload"`
}

package payloads

import (
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"github.com/google/uuid"
)

// SmsReceivedEvent schedules parsing of a newly stored SMS.
type SmsReceivedEvent struct {
	SmsID uuid.UUID `json:"smsId"`
	// Redispatch is set when the SMS is re-queued by retry or the stale sweep.
	Redispatch bool `json:"redispatch,omitempty"`
}

// SmsReconciledEvent records the outcome of processing one SMS.
type SmsReconciledEvent struct {
	SmsID          uuid.UUID           `json:"smsId"`
	Decision       enums.MatchDecision `json:"decision"`
	Confidence     float64             `json:"confidence"`
	ParserVersion  string              `json:"parserVersion"`
	Amount         *int64              `json:"amount,omitempty"`
	CandidateCount int                 `json:"candidateCount"`
	PaymentID      *uuid.UUID          `json:"paymentId,omitempty"`
}

// PaymentConfirmedEvent is emitted when a payment settles.
type PaymentConfirmedEvent struct {
	PaymentID  uuid.UUID         `json:"paymentId"`
	SmsID      uuid.UUID         `json:"smsId"`
	Kind       enums.PaymentKind `json:"kind"`
	EntityID   uuid.UUID         `json:"entityId"`
	Amount     int64             `json:"amount"`
	Currency   enums.Currency    `json:"currency"`
	PayerPhone string            `json:"payerPhone,omitempty"`
	Manual     bool              `json:"manual"`
}

// PaymentHeldEvent is emitted when a payment is parked for operator review.
type PaymentHeldEvent struct {
	PaymentID uuid.UUID `json:"paymentId"`
	SmsID     uuid.UUID `json:"smsId"`
}

// PaymentFailedEvent is emitted on refusal or reversal.
type PaymentFailedEvent struct {
	PaymentID      uuid.UUID           `json:"paymentId"`
	Kind           enums.PaymentKind   `json:"kind"`
	EntityID       uuid.UUID           `json:"entityId"`
	Amount         int64               `json:"amount"`
	PreviousStatus enums.PaymentStatus `json:"previousStatus"`
	Reason         string              `json:"reason"`
}

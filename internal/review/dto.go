package review

import (
	"time"

	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"github.com/google/uuid"
)

type ListParams struct {
	Limit int
	Lane  enums.ReviewLane
}

type DismissInput struct {
	Resolution enums.ManualResolution
	Note       string
}

// Item is one SMS awaiting an operator, with its attachable candidates in
// ranked order.
type Item struct {
	Sms        SmsView                `json:"sms"`
	Parsed     *ParsedView            `json:"parsed"`
	Candidates []CandidatePaymentView `json:"candidates"`
}

type SmsView struct {
	ID          uuid.UUID             `json:"id"`
	Text        string                `json:"text"`
	FromAddress string                `json:"fromAddress"`
	ReceivedAt  time.Time             `json:"receivedAt"`
	Status      enums.SmsIngestStatus `json:"status"`
	Lane        *enums.ReviewLane     `json:"lane,omitempty"`
}

type ParsedView struct {
	ID            uuid.UUID            `json:"id"`
	Amount        *int64               `json:"amount"`
	Currency      enums.Currency       `json:"currency"`
	Reference     *string              `json:"reference,omitempty"`
	PayerMask     *string              `json:"payerMask,omitempty"`
	Confidence    float64              `json:"confidence"`
	ParserVersion string               `json:"parserVersion"`
	Decision      *enums.MatchDecision `json:"decision,omitempty"`
}

type CandidatePaymentView struct {
	ID                uuid.UUID           `json:"id"`
	Amount            int64               `json:"amount"`
	Currency          enums.Currency      `json:"currency"`
	Kind              enums.PaymentKind   `json:"kind"`
	Status            enums.PaymentStatus `json:"status"`
	ExpectedReference *string             `json:"expectedReference,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
}

func smsView(raw models.SmsRaw) SmsView {
	return SmsView{
		ID:          raw.ID,
		Text:        raw.Text,
		FromAddress: raw.FromAddress,
		ReceivedAt:  raw.ReceivedAt,
		Status:      raw.IngestStatus,
		Lane:        raw.ReviewLane,
	}
}

func parsedView(p *models.SmsParsed) *ParsedView {
	if p == nil {
		return nil
	}
	return &ParsedView{
		ID:            p.ID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Reference:     p.Reference,
		PayerMask:     p.PayerMask,
		Confidence:    p.Confidence,
		ParserVersion: p.ParserVersion,
		Decision:      p.Decision,
	}
}

func candidateView(p models.Payment) CandidatePaymentView {
	return CandidatePaymentView{
		ID:                p.ID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Kind:              p.Kind,
		Status:            p.Status,
		ExpectedReference: p.ExpectedReference,
		CreatedAt:         p.CreatedAt,
	}
}

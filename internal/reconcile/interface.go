package reconcile

import (
	"context"
	"time"

	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CandidateQuery selects pending payments for one parsed amount.
type CandidateQuery struct {
	Amount int64
	From   time.Time
	To     time.Time
	Limit  int
}

// DecisionRecord is what gets written back for a decided SMS.
type DecisionRecord struct {
	SmsID        uuid.UUID
	ParsedID     uuid.UUID
	Decision     enums.MatchDecision
	CandidateIDs []uuid.UUID
	Status       enums.SmsIngestStatus
	Lane         *enums.ReviewLane
	At           time.Time
}

// CandidateRepository reads candidates and persists decisions.
//
//go:generate mockgen -destination=mocks/mock_repository.go -package=mocks -source=interface.go CandidateRepository
type CandidateRepository interface {
	FindCandidates(ctx context.Context, q CandidateQuery) ([]Candidate, error)
	RecordDecisionTx(ctx context.Context, tx *gorm.DB, rec DecisionRecord) error
}

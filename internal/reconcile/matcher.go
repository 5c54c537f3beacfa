// Package reconcile decides which pending payment, if any, an inbound SMS
// confirms, and applies that decision.
package reconcile

import (
	"sort"
	"time"

	"github.com/gikundiro/fanpay-backend/pkg/config"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"github.com/google/uuid"
)

// Config holds the matching knobs. AutoThreshold is inclusive.
type Config struct {
	AutoThreshold  float64
	PlausibleFloor float64
	Lookback       time.Duration
	ClockSkew      time.Duration
	Reference      ReferencePolicy
}

func ConfigFrom(cfg config.MatchingConfig) Config {
	return Config{
		AutoThreshold:  cfg.AutoThreshold,
		PlausibleFloor: cfg.PlausibleFloor,
		Lookback:       cfg.Lookback,
		ClockSkew:      cfg.ClockSkew,
		Reference:      NewReferencePolicy(ReferenceMode(cfg.ReferenceMode), cfg.MinSimilarity),
	}
}

// DefaultConfig mirrors the environment defaults.
func DefaultConfig() Config {
	return Config{
		AutoThreshold:  0.70,
		PlausibleFloor: 0.40,
		Lookback:       5 * time.Minute,
		ClockSkew:      time.Minute,
		Reference:      NewReferencePolicy(ReferenceExact, 0.80),
	}
}

// Input is the parsed SMS as the matcher sees it.
type Input struct {
	Amount     int64
	Reference  *string
	Confidence float64
	ReceivedAt time.Time
}

// Candidate is a pending, unbound payment with the parsed amount.
type Candidate struct {
	PaymentID         uuid.UUID
	Amount            int64
	CreatedAt         time.Time
	ExpectedReference *string
}

type Decision struct {
	Kind         enums.MatchDecision
	PaymentID    *uuid.UUID
	CandidateIDs []uuid.UUID
	Reason       string
}

const (
	ReasonSingleMatch        = "single_match"
	ReasonMultipleCandidates = "multiple_candidates"
	ReasonLowConfidence      = "low_confidence"
	ReasonReferenceMismatch  = "reference_mismatch"
	ReasonPlausibleNoMatch   = "plausible_without_candidate"
	ReasonImplausibleNoMatch = "implausible_without_candidate"
)

// Matcher is pure: the same input and candidates always produce the same
// decision.
type Matcher struct {
	cfg Config
}

func NewMatcher(cfg Config) *Matcher {
	if cfg.Reference == nil {
		cfg.Reference = NewReferencePolicy(ReferenceExact, 0)
	}
	return &Matcher{cfg: cfg}
}

// Window returns the inclusive created_at range searched for candidates.
func (m *Matcher) Window(receivedAt time.Time) (time.Time, time.Time) {
	return receivedAt.Add(-m.cfg.Lookback), receivedAt.Add(m.cfg.ClockSkew)
}

func (m *Matcher) Decide(in Input, candidates []Candidate) Decision {
	ranked := Rank(eligible(in, candidates))
	ids := make([]uuid.UUID, len(ranked))
	for i, c := range ranked {
		ids[i] = c.PaymentID
	}

	switch len(ranked) {
	case 0:
		if in.Confidence >= m.cfg.PlausibleFloor {
			return Decision{Kind: enums.MatchDecisionManualReview, CandidateIDs: ids, Reason: ReasonPlausibleNoMatch}
		}
		return Decision{Kind: enums.MatchDecisionNoCandidate, CandidateIDs: ids, Reason: ReasonImplausibleNoMatch}
	case 1:
		if in.Confidence < m.cfg.AutoThreshold {
			return Decision{Kind: enums.MatchDecisionManualReview, CandidateIDs: ids, Reason: ReasonLowConfidence}
		}
		if !m.cfg.Reference.Compatible(ranked[0].ExpectedReference, in.Reference) {
			return Decision{Kind: enums.MatchDecisionManualReview, CandidateIDs: ids, Reason: ReasonReferenceMismatch}
		}
		id := ranked[0].PaymentID
		return Decision{Kind: enums.MatchDecisionAutoSettle, PaymentID: &id, CandidateIDs: ids, Reason: ReasonSingleMatch}
	default:
		return Decision{Kind: enums.MatchDecisionManualReview, CandidateIDs: ids, Reason: ReasonMultipleCandidates}
	}
}

// eligible drops candidates the repository should not have returned, so the
// decision does not depend on query details.
func eligible(in Input, candidates []Candidate) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	seen := make(map[uuid.UUID]struct{}, len(candidates))
	for _, c := range candidates {
		if c.Amount != in.Amount {
			continue
		}
		if _, dup := seen[c.PaymentID]; dup {
			continue
		}
		seen[c.PaymentID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Rank puts the earliest-created payment first, then orders by payment id.
func Rank(candidates []Candidate) []Candidate {
	out := append([]Candidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].PaymentID.String() < out[j].PaymentID.String()
	})
	return out
}

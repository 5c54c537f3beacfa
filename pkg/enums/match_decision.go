package enums

// MatchDecision is the reconciler's verdict for a parsed SMS.
type MatchDecision string

const (
	MatchDecisionAutoSettle   MatchDecision = "auto_settle"
	MatchDecisionManualReview MatchDecision = "manual_review"
	MatchDecisionNoCandidate  MatchDecision = "no_candidate"
)

func (d MatchDecision) String() string {
	return string(d)
}

func (d MatchDecision) IsValid() bool {
	switch d {
	case MatchDecisionAutoSettle, MatchDecisionManualReview, MatchDecisionNoCandidate:
		return true
	}
	return false
}

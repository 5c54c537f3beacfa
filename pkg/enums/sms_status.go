package enums

import "fmt"

// SmsIngestStatus is the processing state of a raw inbound SMS.
type SmsIngestStatus string

const (
	SmsStatusReceived     SmsIngestStatus = "received"
	SmsStatusParsed       SmsIngestStatus = "parsed"
	SmsStatusError        SmsIngestStatus = "error"
	SmsStatusManualReview SmsIngestStatus = "manual_review"
)

var smsStatuses = newSet("sms ingest status",
	SmsStatusReceived, SmsStatusParsed, SmsStatusError, SmsStatusManualReview)

func (s SmsIngestStatus) String() string { return string(s) }
func (s SmsIngestStatus) IsValid() bool  { return smsStatuses.has(s) }

func ParseSmsIngestStatus(raw string) (SmsIngestStatus, error) {
	return smsStatuses.parse(raw)
}

// ReviewLane separates SMS that have candidates or a plausible parse
// (primary) from those filed for triage only.
type ReviewLane string

const (
	ReviewLanePrimary ReviewLane = "primary"
	ReviewLaneTriage  ReviewLane = "triage"
)

func (l ReviewLane) IsValid() bool {
	return l == ReviewLanePrimary || l == ReviewLaneTriage
}

// ParseReviewLane defaults to the primary lane for empty input.
func ParseReviewLane(value string) (ReviewLane, error) {
	switch ReviewLane(value) {
	case "":
		return ReviewLanePrimary, nil
	case ReviewLanePrimary, ReviewLaneTriage:
		return ReviewLane(value), nil
	}
	return "", fmt.Errorf("invalid review lane %q", value)
}

package enums

// OutboxAggregateType is the aggregate_type_enum column of outbox_events.
type OutboxAggregateType string

const (
	AggregateSms          OutboxAggregateType = "sms"
	AggregatePayment      OutboxAggregateType = "payment"
	AggregateParserPrompt OutboxAggregateType = "parser_prompt"
)

var aggregateTypes = newSet("aggregate type", AggregateSms, AggregatePayment, AggregateParserPrompt)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(raw string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(raw)
}

// OutboxEventType is the event_type_enum column of outbox_events and the
// event_type attribute on every published message.
type OutboxEventType string

const (
	EventSmsReceived      OutboxEventType = "sms_received"
	EventSmsReconciled    OutboxEventType = "sms_reconciled"
	EventPaymentConfirmed OutboxEventType = "payment_confirmed"
	EventPaymentHeld      OutboxEventType = "payment_held"
	EventPaymentFailed    OutboxEventType = "payment_failed"
)

var eventTypes = newSet("event type",
	EventSmsReceived, EventSmsReconciled, EventPaymentConfirmed, EventPaymentHeld, EventPaymentFailed)

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(raw string) (OutboxEventType, error) {
	return eventTypes.parse(raw)
}

// OutboxDLQErrorReason says why the relay parked an event in outbox_dlq.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}

// AnalyticsEventType is the subset of OutboxEventType that lands in
// reconciliation_events.
type AnalyticsEventType string

const (
	AnalyticsEventSmsReconciled    = AnalyticsEventType(EventSmsReconciled)
	AnalyticsEventPaymentConfirmed = AnalyticsEventType(EventPaymentConfirmed)
	AnalyticsEventPaymentHeld      = AnalyticsEventType(EventPaymentHeld)
	AnalyticsEventPaymentFailed    = AnalyticsEventType(EventPaymentFailed)
)

var analyticsEventTypes = newSet("analytics event type",
	AnalyticsEventSmsReconciled, AnalyticsEventPaymentConfirmed, AnalyticsEventPaymentHeld, AnalyticsEventPaymentFailed)

func (a AnalyticsEventType) IsValid() bool { return analyticsEventTypes.has(a) }

func ParseAnalyticsEventType(raw string) (AnalyticsEventType, error) {
	return analyticsEventTypes.parse(raw)
}

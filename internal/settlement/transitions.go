package settlement

import "github.com/gikundiro/fanpay-backend/pkg/enums"

// transitions lists the only payment status moves the service performs.
// confirmed -> failed is the reversal path; manual_review -> pending releases
// a hold when the SMS is sent back through matching.
var transitions = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusPending:      {enums.PaymentStatusConfirmed, enums.PaymentStatusManualReview},
	enums.PaymentStatusManualReview: {enums.PaymentStatusConfirmed, enums.PaymentStatusFailed, enums.PaymentStatusPending},
	enums.PaymentStatusConfirmed:    {enums.PaymentStatusFailed},
}

// CanTransition reports whether from -> to is permitted.
func CanTransition(from, to enums.PaymentStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

package instance

import "github.com/gikundiro/fanpay-backend/pkg/env"

// GetID returns the process instance identifier used in log context.
// FANPAY_INSTANCE_ID wins over the platform-provided DYNO.
func GetID() string {
	if id := env.First("FANPAY_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	return "local"
}

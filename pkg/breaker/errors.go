package breaker

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrOpen matches any *OpenError through errors.Is.
	ErrOpen = errors.New("circuit breaker open")
	// ErrTimeout matches any *TimeoutError through errors.Is.
	ErrTimeout = errors.New("circuit breaker timeout")
)

// OpenError is returned without invoking the action while the breaker is
// open, or while a half-open trial is already in flight.
type OpenError struct {
	Name    string
	RetryAt time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %s is open until %s", e.Name, e.RetryAt.UTC().Format(time.RFC3339))
}

func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// TimeoutError is returned when the action did not complete within the
// breaker timeout. It counts as a failure.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("circuit breaker %s: call exceeded %s", e.Name, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// IsBreakerError reports whether err was produced by a breaker rather than
// by the guarded action.
func IsBreakerError(err error) bool {
	return errors.Is(err, ErrOpen) || errors.Is(err, ErrTimeout)
}

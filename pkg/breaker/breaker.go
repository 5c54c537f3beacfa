// Package breaker guards calls to unreliable dependencies (the SMS
// classification aid, the outbound notification gateway) with a
// closed / open / half-open circuit breaker.
//
// Every breaker is an explicit value owned by the component that uses it.
// There is no process-wide state; a Registry only indexes breakers by
// dependency name so health and metrics can report on them.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

type Status string

const (
	StatusClosed   Status = "closed"
	StatusOpen     Status = "open"
	StatusHalfOpen Status = "half_open"
)

// Observer receives state transitions and rejected calls. Implementations
// are invoked while the breaker lock is held and must not block.
type Observer interface {
	OnStateChange(name string, from, to Status)
	OnRejected(name string)
}

// Options configures a Breaker.
type Options struct {
	Name             string
	Timeout          time.Duration
	FailureThreshold int
	ResetTimeout     time.Duration
	Clock            func() time.Time
	Observer         Observer
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name                string    `json:"name"`
	Status              Status    `json:"status"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	OpenedAt            time.Time `json:"openedAt,omitempty"`
}

type Breaker struct {
	name      string
	timeout   time.Duration
	threshold int
	reset     time.Duration
	clock     func() time.Time
	observer  Observer

	mu            sync.Mutex
	status        Status
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

// New validates the options and returns a closed breaker.
func New(opts Options) (*Breaker, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, errors.New("breaker name is required")
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("breaker %s: timeout must be positive", name)
	}
	if opts.FailureThreshold < 1 {
		return nil, fmt.Errorf("breaker %s: failure threshold must be at least 1", name)
	}
	if opts.ResetTimeout <= 0 {
		return nil, fmt.Errorf("breaker %s: reset timeout must be positive", name)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Breaker{
		name:      name,
		timeout:   opts.Timeout,
		threshold: opts.FailureThreshold,
		reset:     opts.ResetTimeout,
		clock:     clock,
		observer:  opts.Observer,
		status:    StatusClosed,
	}, nil
}

func (b *Breaker) Name() string {
	return b.name
}

// State returns the current snapshot. An open breaker whose reset window has
// elapsed still reports open until the next call probes it.
func (b *Breaker) State() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:                b.name,
		Status:              b.status,
		ConsecutiveFailures: b.failures,
		OpenedAt:            b.openedAt,
	}
}

// Do runs action under the breaker.
func (b *Breaker) Do(ctx context.Context, action func(context.Context) error) error {
	_, err := Execute(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, action(ctx)
	})
	return err
}

// Execute runs action under the breaker and returns its value.
//
// The action receives the caller's context unchanged. When the breaker
// timeout fires first the call fails with *TimeoutError and the action is
// left to finish on its own; its result is discarded.
func Execute[T any](ctx context.Context, b *Breaker, action func(context.Context) (T, error)) (T, error) {
	var zero T
	trial, err := b.admit()
	if err != nil {
		return zero, err
	}

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("breaker %s: action panicked: %v", b.name, r)}
			}
		}()
		value, err := action(ctx)
		done <- outcome{value: value, err: err}
	}()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			b.recordFailure(trial)
			return zero, res.err
		}
		b.recordSuccess(trial)
		return res.value, nil
	case <-timer.C:
		b.recordFailure(trial)
		return zero, &TimeoutError{Name: b.name, Timeout: b.timeout}
	case <-ctx.Done():
		b.release(trial)
		return zero, ctx.Err()
	}
}

// admit decides whether a call may proceed. The boolean is true when the
// call is the single half-open trial.
func (b *Breaker) admit() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.status {
	case StatusOpen:
		retryAt := b.openedAt.Add(b.reset)
		if b.clock().Before(retryAt) {
			b.reject()
			return false, &OpenError{Name: b.name, RetryAt: retryAt}
		}
		b.transition(StatusHalfOpen)
		b.trialInFlight = true
		return true, nil
	case StatusHalfOpen:
		if b.trialInFlight {
			b.reject()
			return false, &OpenError{Name: b.name, RetryAt: b.clock()}
		}
		b.trialInFlight = true
		return true, nil
	default:
		return false, nil
	}
}

func (b *Breaker) recordSuccess(trial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.trialInFlight = false
		b.failures = 0
		b.openedAt = time.Time{}
		b.transition(StatusClosed)
		return
	}
	if b.status == StatusClosed {
		b.failures = 0
	}
}

func (b *Breaker) recordFailure(trial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.trialInFlight = false
		b.trip()
		return
	}
	// Stragglers admitted before a trip do not extend the open window.
	if b.status != StatusClosed {
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.trip()
	}
}

func (b *Breaker) release(trial bool) {
	if !trial {
		return
	}
	b.mu.Lock()
	b.trialInFlight = false
	b.mu.Unlock()
}

func (b *Breaker) trip() {
	b.failures = 0
	b.openedAt = b.clock()
	b.transition(StatusOpen)
}

func (b *Breaker) transition(to Status) {
	from := b.status
	b.status = to
	if b.observer != nil && from != to {
		b.observer.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) reject() {
	if b.observer != nil {
		b.observer.OnRejected(b.name)
	}
}

package breaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []string
	rejected    int
}

func (o *recordingObserver) OnStateChange(_ string, from, to Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, string(from)+"->"+string(to))
}

func (o *recordingObserver) OnRejected(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected++
}

var errUpstream = errors.New("upstream 502")

func newTestBreaker(t *testing.T, clock *manualClock, obs Observer) *Breaker {
	t.Helper()
	b, err := New(Options{
		Name:             "sms-classifier",
		Timeout:          time.Second,
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
		Clock:            clock.Now,
		Observer:         obs,
	})
	require.NoError(t, err)
	return b
}

func failing(context.Context) error    { return errUpstream }
func succeeding(context.Context) error { return nil }

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Timeout: time.Second, FailureThreshold: 1, ResetTimeout: time.Second})
	require.Error(t, err)
	_, err = New(Options{Name: "x", FailureThreshold: 1, ResetTimeout: time.Second})
	require.Error(t, err)
	_, err = New(Options{Name: "x", Timeout: time.Second, ResetTimeout: time.Second})
	require.Error(t, err)
	_, err = New(Options{Name: "x", Timeout: time.Second, FailureThreshold: 1})
	require.Error(t, err)
}

func TestBreakerOpensAfterThresholdAndRecovers(t *testing.T) {
	clock := newManualClock()
	obs := &recordingObserver{}
	b := newTestBreaker(t, clock, obs)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Do(ctx, failing), errUpstream)
	}
	require.Equal(t, StatusOpen, b.State().Status)
	openedAt := b.State().OpenedAt
	require.Equal(t, clock.Now(), openedAt)

	var calls int32
	clock.Advance(10 * time.Second)
	err := b.Do(ctx, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, openedAt.Add(30*time.Second), openErr.RetryAt)
	assert.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, atomic.LoadInt32(&calls), "open breaker must not invoke the action")

	clock.Advance(20 * time.Second)
	require.NoError(t, b.Do(ctx, succeeding))
	require.Equal(t, StatusClosed, b.State().Status)
	require.Zero(t, b.State().ConsecutiveFailures)

	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, obs.transitions)
	assert.Equal(t, 1, obs.rejected)
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	b := newTestBreaker(t, newManualClock(), nil)
	ctx := context.Background()

	require.Error(t, b.Do(ctx, failing))
	require.Error(t, b.Do(ctx, failing))
	require.NoError(t, b.Do(ctx, succeeding))
	require.Error(t, b.Do(ctx, failing))
	require.Error(t, b.Do(ctx, failing))

	require.Equal(t, StatusClosed, b.State().Status)
	require.Equal(t, 2, b.State().ConsecutiveFailures)
}

func TestHalfOpenFailureReopensWithFreshWindow(t *testing.T) {
	clock := newManualClock()
	b := newTestBreaker(t, clock, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, failing)
	}
	clock.Advance(31 * time.Second)

	require.ErrorIs(t, b.Do(ctx, failing), errUpstream)
	state := b.State()
	require.Equal(t, StatusOpen, state.Status)
	require.Equal(t, clock.Now(), state.OpenedAt)

	clock.Advance(29 * time.Second)
	require.ErrorIs(t, b.Do(ctx, succeeding), ErrOpen)
}

func TestHalfOpenAdmitsSingleTrial(t *testing.T) {
	clock := newManualClock()
	b := newTestBreaker(t, clock, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, failing)
	}
	clock.Advance(30 * time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	trialDone := make(chan error, 1)
	go func() {
		trialDone <- b.Do(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	require.Equal(t, StatusHalfOpen, b.State().Status)
	require.ErrorIs(t, b.Do(ctx, succeeding), ErrOpen)

	close(release)
	require.NoError(t, <-trialDone)
	require.Equal(t, StatusClosed, b.State().Status)
}

func TestTimeoutCountsAsFailure(t *testing.T) {
	b, err := New(Options{
		Name:             "notifier",
		Timeout:          20 * time.Millisecond,
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
	})
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)

	err = b.Do(context.Background(), func(context.Context) error {
		<-release
		return nil
	})
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.True(t, IsBreakerError(err))
	require.Equal(t, StatusOpen, b.State().Status)
}

func TestExecuteReturnsValue(t *testing.T) {
	b := newTestBreaker(t, newManualClock(), nil)
	got, err := Execute(context.Background(), b, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, got)
}

func TestPanicIsReportedAsFailure(t *testing.T) {
	b := newTestBreaker(t, newManualClock(), nil)
	err := b.Do(context.Background(), func(context.Context) error {
		panic("boom")
	})
	require.ErrorContains(t, err, "panicked")
	require.Equal(t, 1, b.State().ConsecutiveFailures)
}

func TestCallerCancellationReleasesTrialWithoutFailure(t *testing.T) {
	clock := newManualClock()
	b := newTestBreaker(t, clock, nil)

	for i := 0; i < 3; i++ {
		_ = b.Do(context.Background(), failing)
	}
	clock.Advance(30 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)
	errCh := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		errCh <- b.Do(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	require.Equal(t, StatusHalfOpen, b.State().Status)
	require.NoError(t, b.Do(context.Background(), succeeding))
	require.Equal(t, StatusClosed, b.State().Status)
}

func TestRegistry(t *testing.T) {
	obs := &recordingObserver{}
	reg := NewRegistry(obs, newManualClock().Now)

	_, err := reg.Register(Options{Name: "sms-classifier", Timeout: time.Second, FailureThreshold: 1, ResetTimeout: time.Second})
	require.NoError(t, err)
	notifier, err := reg.Register(Options{Name: "notifier", Timeout: time.Second, FailureThreshold: 1, ResetTimeout: time.Second})
	require.NoError(t, err)

	_, err = reg.Register(Options{Name: "notifier", Timeout: time.Second, FailureThreshold: 1, ResetTimeout: time.Second})
	require.Error(t, err)

	got, ok := reg.Get("notifier")
	require.True(t, ok)
	require.Same(t, notifier, got)

	_ = notifier.Do(context.Background(), failing)

	snaps := reg.Snapshots()
	require.Len(t, snaps, 2)
	require.Equal(t, "notifier", snaps[0].Name)
	require.Equal(t, StatusOpen, snaps[0].Status)
	require.Equal(t, StatusClosed, snaps[1].Status)
	require.Equal(t, []string{"closed->open"}, obs.transitions)
}

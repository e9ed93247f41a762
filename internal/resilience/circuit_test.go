package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDependency = errors.New("dependency down")

func failingCall(context.Context) error { return errDependency }
func succeedingCall(context.Context) error { return nil }

func tripBreaker(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := b.Execute(context.Background(), failingCall)
		require.ErrorIs(t, err, errDependency)
	}
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	t.Parallel()

	b := NewBreaker(3, time.Minute)
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Execute(context.Background(), succeedingCall))
	}
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	t.Parallel()

	b := NewBreaker(3, time.Minute)
	tripBreaker(t, b, 3)
	assert.Equal(t, BreakerOpen, b.State())

	err := b.Execute(context.Background(), succeedingCall)
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(3, time.Minute)
	tripBreaker(t, b, 2)
	require.NoError(t, b.Execute(context.Background(), succeedingCall))
	tripBreaker(t, b, 2)
	assert.Equal(t, BreakerClosed, b.State(), "count restarts after a success")
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	t.Parallel()

	clock := time.Now()
	b := NewBreaker(2, 30*time.Second)
	b.now = func() time.Time { return clock }

	tripBreaker(t, b, 2)
	require.ErrorIs(t, b.Execute(context.Background(), succeedingCall), ErrBreakerOpen)

	clock = clock.Add(31 * time.Second)
	assert.Equal(t, BreakerHalfOpen, b.State())

	// Probe succeeds, breaker closes.
	require.NoError(t, b.Execute(context.Background(), succeedingCall))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	clock := time.Now()
	b := NewBreaker(2, 30*time.Second)
	b.now = func() time.Time { return clock }

	tripBreaker(t, b, 2)
	clock = clock.Add(31 * time.Second)

	require.ErrorIs(t, b.Execute(context.Background(), failingCall), errDependency)
	assert.Equal(t, BreakerOpen, b.State())
	assert.ErrorIs(t, b.Execute(context.Background(), succeedingCall), ErrBreakerOpen)
}

func TestBreakerIgnoresCancelledCalls(t *testing.T) {
	t.Parallel()

	b := NewBreaker(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	require.Error(t, err)
	assert.Equal(t, BreakerClosed, b.State(), "caller cancellation is not a dependency failure")
}

func TestBreakerReset(t *testing.T) {
	t.Parallel()

	b := NewBreaker(1, time.Hour)
	tripBreaker(t, b, 1)
	require.Equal(t, BreakerOpen, b.State())

	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Execute(context.Background(), succeedingCall))
}

func TestBreakerStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
}

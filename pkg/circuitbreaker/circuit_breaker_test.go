package circuitbreaker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(maxFailures uint32, timeout time.Duration) *CircuitBreaker {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewWithLogger("test", maxFailures, timeout, logger)
}

func TestExecute_SuccessKeepsClosed(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)

	for i := 0; i < 10; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
		require.NoError(t, err)
	}

	assert.Equal(t, StateClosed, cb.GetState())
	stats := cb.GetStats()
	assert.Equal(t, uint32(10), stats.Requests)
	assert.Equal(t, uint32(10), stats.Successes)
}

func TestExecute_OpensAfterMaxFailures(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error { return boom })
		assert.Equal(t, boom, err)
	}

	assert.Equal(t, StateOpen, cb.GetState())

	// Further calls fail fast without invoking the function.
	called := false
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, IsCircuitBreakerError(err))
	assert.False(t, called)
}

func TestExecute_SuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)
	boom := errors.New("boom")

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return boom })
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return boom })
	require.NoError(t, cb.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return boom })
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return boom })

	// Two fresh failures after a success must not trip a 3-failure breaker.
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpen_RecoveryClosesCircuit(t *testing.T) {
	cb := newTestBreaker(1, 10*time.Millisecond)

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(20 * time.Millisecond)

	// Probes succeed until the breaker closes again.
	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
		require.NoError(t, err)
	}

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpen_FailureReopensCircuit(t *testing.T) {
	cb := newTestBreaker(1, 10*time.Millisecond)

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("still broken") })
	require.Error(t, err)
	assert.False(t, IsCircuitBreakerError(err))

	assert.Equal(t, StateOpen, cb.GetState())

	// And it fails fast again until the next timeout.
	err = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	assert.True(t, IsCircuitBreakerError(err))
}

func TestHalfOpen_LimitsProbeAdmissions(t *testing.T) {
	cb := newTestBreaker(1, 10*time.Millisecond)

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.GetState())

	// Hold three admitted probes open, then verify the next call is
	// rejected while they are still in flight.
	admitted := make(chan struct{}, 3)
	release := make(chan struct{})
	done := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			done <- cb.Execute(context.Background(), func(ctx context.Context) error {
				admitted <- struct{}{}
				<-release
				return nil
			})
		}()
	}

	for i := 0; i < 3; i++ {
		select {
		case <-admitted:
		case <-time.After(time.Second):
			t.Fatal("probe was not admitted")
		}
	}

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	assert.True(t, IsCircuitBreakerError(err), "fourth probe must be rejected")

	close(release)
	for i := 0; i < 3; i++ {
		require.NoError(t, <-done)
	}

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestExecute_CancelledContext(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Execute(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}

func TestCircuitBreakerError_Message(t *testing.T) {
	err := &CircuitBreakerError{Name: "openai", State: StateOpen}
	assert.Equal(t, "circuit breaker 'openai' is OPEN", err.Error())
	assert.True(t, IsCircuitBreakerError(err))
	assert.False(t, IsCircuitBreakerError(errors.New("other")))
}

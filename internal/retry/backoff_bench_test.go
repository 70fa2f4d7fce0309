package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func BenchmarkCalculateDelay_NoJitter(b *testing.B) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  10,
		Jitter:       false,
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = backoff.GetNextDelay(i%10 + 1)
	}
}

func BenchmarkCalculateDelay_WithJitter(b *testing.B) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  10,
		Jitter:       true,
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = backoff.GetNextDelay(i%10 + 1)
	}
}

func BenchmarkRetry_ImmediateSuccess(b *testing.B) {
	backoff := NewBackoff(DefaultBackoffConfig())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = backoff.Retry(ctx, func() error { return nil })
	}
}

func BenchmarkRetryWithPredicate_NonRetryable(b *testing.B) {
	backoff := NewBackoff(DefaultBackoffConfig())
	ctx := context.Background()
	sentinel := errors.New("permanent")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = backoff.RetryWithPredicate(ctx, func() error { return sentinel }, func(error) bool { return false })
	}
}

func BenchmarkSecureFloat64(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = secureFloat64()
	}
}

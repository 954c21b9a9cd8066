package performance

import (
	"context"
	"testing"
	"time"
)

func BenchmarkRateLimiter(b *testing.B) {
	limiter := NewRateLimiter(10000, 100) // 10k requests/sec

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow()
	}
}

func TestRateLimiterFunctionality(t *testing.T) {
	limiter := NewRateLimiter(100, 10) // 100 requests/sec, burst of 10

	allowed := 0
	for i := 0; i < 15; i++ {
		if limiter.Allow() {
			allowed++
		}
	}

	if allowed < 10 {
		t.Errorf("expected at least 10 allowed in burst, got %d", allowed)
	}

	time.Sleep(100 * time.Millisecond)

	if !limiter.Allow() {
		t.Error("expected to allow after refill")
	}
}

func TestRateLimiter_WaitRespectsContextCancellation(t *testing.T) {
	limiter := NewRateLimiter(1, 1) // one token, slow refill
	limiter.Allow()                 // drain the single token

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Error("expected context deadline error, got nil")
	}
}

package api

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	cb := &circuitBreaker{threshold: 2, resetTime: 10 * time.Millisecond}

	cb.recordFailure()
	if cb.isOpen() {
		t.Fatal("one failure should not open the circuit")
	}
	cb.recordFailure()
	if !cb.isOpen() {
		t.Fatal("circuit should open at threshold")
	}

	time.Sleep(15 * time.Millisecond)
	if cb.isOpen() {
		t.Fatal("after reset time the probe request should be allowed")
	}

	// Failed probe re-opens immediately.
	cb.recordFailure()
	if !cb.isOpen() {
		t.Fatal("failed probe should re-open the circuit")
	}

	time.Sleep(15 * time.Millisecond)
	if cb.isOpen() {
		t.Fatal("second probe should be allowed")
	}
	cb.recordSuccess()
	if cb.isOpen() {
		t.Fatal("successful probe should close the circuit")
	}
}

func TestRetryAfterDuration(t *testing.T) {
	h := http.Header{}
	if _, ok := retryAfterDuration(h); ok {
		t.Error("missing header should report not present")
	}

	h.Set("Retry-After", "5")
	d, ok := retryAfterDuration(h)
	if !ok || d != 5*time.Second {
		t.Errorf("seconds form: got %v %v", d, ok)
	}

	h.Set("Retry-After", "-3")
	d, ok = retryAfterDuration(h)
	if !ok || d != 0 {
		t.Errorf("negative seconds should clamp to zero, got %v", d)
	}

	h.Set("Retry-After", time.Now().Add(2*time.Second).UTC().Format(http.TimeFormat))
	d, ok = retryAfterDuration(h)
	if !ok || d > 3*time.Second {
		t.Errorf("http date form: got %v %v", d, ok)
	}
}

func TestSleepWithContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepWithContext(ctx, time.Minute); err == nil {
		t.Fatal("expected context error")
	}
	if err := sleepWithContext(context.Background(), 0); err != nil {
		t.Fatalf("zero duration should return immediately: %v", err)
	}
}

func TestDefaultRetryConfigEnvOverride(t *testing.T) {
	t.Setenv("HOSTDESK_MAX_RATE_LIMIT_RETRIES", "7")
	t.Setenv("HOSTDESK_RATE_LIMIT_DELAY", "250ms")
	cfg := DefaultRetryConfig()
	if cfg.MaxRateLimitRetries != 7 {
		t.Errorf("MaxRateLimitRetries = %d", cfg.MaxRateLimitRetries)
	}
	if cfg.RateLimitBaseDelay != 250*time.Millisecond {
		t.Errorf("RateLimitBaseDelay = %v", cfg.RateLimitBaseDelay)
	}
}

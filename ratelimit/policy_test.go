package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func newTestPolicy(now *time.Time) *SendPolicy {
	policy := NewSendPolicy(NewMemoryStateStore())
	policy.Now = func() time.Time { return *now }
	policy.Cooldown = 30 * time.Second
	policy.InitialBackoff = time.Minute
	policy.MaxBackoff = 4 * time.Minute
	return policy
}

func TestFirstSendIsAllowed(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	policy := newTestPolicy(&now)

	if err := policy.BeforeSend(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("first send must be allowed: %v", err)
	}
}

func TestCooldownBlocksImmediateResend(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	policy := newTestPolicy(&now)

	if err := policy.AfterSend(ctx, "user@example.com", http.StatusOK); err != nil {
		t.Fatalf("after send: %v", err)
	}

	err := policy.BeforeSend(ctx, "User@Example.com")
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError, got %v", err)
	}
	if throttled.RetryAfter != 30*time.Second {
		t.Fatalf("unexpected retry after %s", throttled.RetryAfter)
	}

	// A different address is unaffected.
	if err := policy.BeforeSend(ctx, "other@example.com"); err != nil {
		t.Fatalf("other address must be allowed: %v", err)
	}

	now = now.Add(31 * time.Second)
	if err := policy.BeforeSend(ctx, "user@example.com"); err != nil {
		t.Fatalf("send after cooldown must be allowed: %v", err)
	}
}

func TestRemoteThrottleBacksOffExponentially(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	policy := newTestPolicy(&now)

	delays := []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute, 4 * time.Minute}
	for i, want := range delays {
		if err := policy.AfterSend(ctx, "user@example.com", http.StatusTooManyRequests); err != nil {
			t.Fatalf("after throttle %d: %v", i, err)
		}
		err := policy.BeforeSend(ctx, "user@example.com")
		var throttled ThrottledError
		if !errors.As(err, &throttled) {
			t.Fatalf("throttle %d: expected ThrottledError, got %v", i, err)
		}
		if throttled.RetryAfter != want {
			t.Fatalf("throttle %d: expected %s, got %s", i, want, throttled.RetryAfter)
		}
	}
}

func TestSuccessfulSendResetsBackoff(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	policy := newTestPolicy(&now)

	if err := policy.AfterSend(ctx, "user@example.com", http.StatusTooManyRequests); err != nil {
		t.Fatalf("after throttle: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := policy.AfterSend(ctx, "user@example.com", http.StatusOK); err != nil {
		t.Fatalf("after success: %v", err)
	}

	now = now.Add(31 * time.Second)
	if err := policy.BeforeSend(ctx, "user@example.com"); err != nil {
		t.Fatalf("expected reset to plain cooldown, got %v", err)
	}
}

func TestNilPolicyAndStoreAreNoOps(t *testing.T) {
	ctx := context.Background()
	var policy *SendPolicy
	if err := policy.BeforeSend(ctx, "user@example.com"); err != nil {
		t.Fatalf("nil policy must allow sends: %v", err)
	}
	if err := policy.AfterSend(ctx, "user@example.com", http.StatusOK); err != nil {
		t.Fatalf("nil policy must ignore outcomes: %v", err)
	}
}

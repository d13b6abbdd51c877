package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/todotomorrow/go-client/core"
)

func authedStore(t *testing.T, identity *fakeIdentity, session core.Session) *Store {
	t.Helper()
	store := NewStore(StoreConfig{Identity: identity})
	store.InstallSession(context.Background(), session)
	return store
}

func TestExponentialBackoffSchedulerDelays(t *testing.T) {
	scheduler := ExponentialBackoffScheduler{Initial: 500 * time.Millisecond, Max: 10 * time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{6, 10 * time.Second},
		{100, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := scheduler.NextDelay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: got %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRefreshRunInstallsRotatedSession(t *testing.T) {
	rotated := core.Session{UserID: "user-1", AccessToken: "at-2", RefreshToken: "rt-2"}
	identity := &fakeIdentity{
		refresh: func(refreshToken string) (core.Session, error) {
			if refreshToken != "rt-1" {
				t.Errorf("unexpected refresh token %q", refreshToken)
			}
			return rotated, nil
		},
	}
	store := authedStore(t, identity, core.Session{UserID: "user-1", AccessToken: "at-1", RefreshToken: "rt-1"})
	runner, err := NewRefreshRunner(RefreshRunnerConfig{Identity: identity, Store: store})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Attempts != 1 || result.ReauthRequired {
		t.Fatalf("unexpected result %+v", result)
	}
	if store.Current().Session != rotated {
		t.Fatalf("rotated session not installed: %+v", store.Current().Session)
	}
}

func TestRefreshRunRetriesTransientFailures(t *testing.T) {
	attempts := 0
	identity := &fakeIdentity{
		refresh: func(string) (core.Session, error) {
			attempts++
			if attempts < 3 {
				return core.Session{}, core.NetworkError(errors.New("timeout"), "refresh")
			}
			return core.Session{UserID: "user-1", AccessToken: "at-2", RefreshToken: "rt-2"}, nil
		},
	}
	store := authedStore(t, identity, core.Session{UserID: "user-1", AccessToken: "at-1", RefreshToken: "rt-1"})

	var slept []time.Duration
	runner, err := NewRefreshRunner(RefreshRunnerConfig{
		Identity:    identity,
		Store:       store,
		MaxAttempts: 3,
		Scheduler:   ExponentialBackoffScheduler{Initial: 500 * time.Millisecond, Max: 10 * time.Second},
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", result.Attempts)
	}
	if len(slept) != 2 || slept[0] != 500*time.Millisecond || slept[1] != time.Second {
		t.Fatalf("unexpected backoff %v", slept)
	}
}

func TestRefreshRunRejectionDropsSession(t *testing.T) {
	identity := &fakeIdentity{
		refresh: func(string) (core.Session, error) {
			return core.Session{}, core.CredentialError("invalid refresh token")
		},
	}
	store := authedStore(t, identity, core.Session{UserID: "user-1", AccessToken: "at-1", RefreshToken: "rt-1"})
	runner, err := NewRefreshRunner(RefreshRunnerConfig{Identity: identity, Store: store})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	result, err := runner.Run(context.Background())
	if err == nil {
		t.Fatal("expected the rejection to surface")
	}
	if !result.ReauthRequired {
		t.Fatal("rejection must demand re-authentication")
	}
	if store.Current().Status != StatusUnauthenticated {
		t.Fatal("session must clear after a rejected refresh token")
	}
}

func TestRefreshRunExhaustedKeepsSession(t *testing.T) {
	identity := &fakeIdentity{
		refresh: func(string) (core.Session, error) {
			return core.Session{}, core.NetworkError(errors.New("timeout"), "refresh")
		},
	}
	active := core.Session{UserID: "user-1", AccessToken: "at-1", RefreshToken: "rt-1"}
	store := authedStore(t, identity, active)
	runner, err := NewRefreshRunner(RefreshRunnerConfig{
		Identity:    identity,
		Store:       store,
		MaxAttempts: 2,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	result, err := runner.Run(context.Background())
	if err == nil {
		t.Fatal("expected the last failure to surface")
	}
	if result.ReauthRequired {
		t.Fatal("transient exhaustion must not demand re-authentication")
	}
	if store.Current().Session != active {
		t.Fatal("session must survive transient exhaustion")
	}
}

func TestRefreshRunWithoutSession(t *testing.T) {
	identity := &fakeIdentity{}
	store := NewStore(StoreConfig{Identity: identity})
	runner, err := NewRefreshRunner(RefreshRunnerConfig{Identity: identity, Store: store})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if _, err := runner.Run(context.Background()); !errors.Is(err, core.ErrIdentityMissing) {
		t.Fatalf("expected identity-missing, got %v", err)
	}
}

func TestRefreshDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	identity := &fakeIdentity{}
	store := authedStore(t, identity, core.Session{
		UserID:       "user-1",
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    now.Add(2 * time.Minute),
	})
	runner, err := NewRefreshRunner(RefreshRunnerConfig{
		Identity: identity,
		Store:    store,
		Window:   5 * time.Minute,
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if !runner.Due() {
		t.Fatal("session expiring inside the window must be due")
	}
}

type captureEnqueuer struct {
	messages []*core.JobExecutionMessage
}

func (c *captureEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	c.messages = append(c.messages, msg)
	return nil
}

func TestEnqueueRefresh(t *testing.T) {
	enqueuer := &captureEnqueuer{}
	if err := EnqueueRefresh(context.Background(), enqueuer, "user-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(enqueuer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(enqueuer.messages))
	}
	msg := enqueuer.messages[0]
	if msg.JobID != RefreshJobID {
		t.Fatalf("unexpected job id %q", msg.JobID)
	}
	if msg.IdempotencyKey != RefreshJobID+":user-1" {
		t.Fatalf("unexpected idempotency key %q", msg.IdempotencyKey)
	}

	if err := EnqueueRefresh(context.Background(), enqueuer, "  "); err == nil {
		t.Fatal("blank user id must be rejected")
	}
}

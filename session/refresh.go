package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/todotomorrow/go-client/core"
)

const (
	defaultRefreshMaxAttempts    = 3
	defaultRefreshInitialBackoff = 500 * time.Millisecond
	defaultRefreshMaxBackoff     = 10 * time.Second

	// RefreshJobID names the background refresh job on the queue.
	RefreshJobID = "todoclient.session.refresh"
)

type BackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultRefreshInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultRefreshMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

type RefreshRunResult struct {
	Attempts       int
	ReauthRequired bool
}

type RefreshRunnerConfig struct {
	Identity    core.IdentityService
	Store       *Store
	Scheduler   BackoffScheduler
	MaxAttempts int
	Window      time.Duration
	Logger      core.Logger
	Now         func() time.Time
	Sleep       func(ctx context.Context, d time.Duration) error
}

// RefreshRunner rotates the session's tokens before they expire. Transient
// failures retry with exponential backoff; a rejected refresh token is
// unrecoverable and drops the session so the user re-authenticates.
type RefreshRunner struct {
	identity    core.IdentityService
	store       *Store
	scheduler   BackoffScheduler
	maxAttempts int
	window      time.Duration
	logger      core.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRefreshRunner(cfg RefreshRunnerConfig) (*RefreshRunner, error) {
	if cfg.Identity == nil {
		return nil, fmt.Errorf("session: identity service is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("session: store is required")
	}
	scheduler := cfg.Scheduler
	if scheduler == nil {
		scheduler = ExponentialBackoffScheduler{}
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultRefreshMaxAttempts
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = waitWithContext
	}
	return &RefreshRunner{
		identity:    cfg.Identity,
		store:       cfg.Store,
		scheduler:   scheduler,
		maxAttempts: maxAttempts,
		window:      cfg.Window,
		logger:      glog.Ensure(cfg.Logger),
		now:         now,
		sleep:       sleep,
	}, nil
}

// Due reports whether the active session needs a refresh now. Sessions
// without a known expiry are never due.
func (r *RefreshRunner) Due() bool {
	snapshot := r.store.Current()
	if !snapshot.Authenticated() {
		return false
	}
	return snapshot.Session.ExpiresWithin(r.now(), r.window)
}

// Run refreshes the active session with bounded retries. A credential
// rejection clears the session; the caller surfaces re-authentication.
func (r *RefreshRunner) Run(ctx context.Context) (RefreshRunResult, error) {
	snapshot := r.store.Current()
	if !snapshot.Authenticated() {
		return RefreshRunResult{}, core.ErrIdentityMissing
	}
	refreshToken := strings.TrimSpace(snapshot.Session.RefreshToken)
	if refreshToken == "" {
		return RefreshRunResult{}, fmt.Errorf("session: active session has no refresh token")
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		refreshed, err := r.identity.Refresh(ctx, refreshToken)
		if err == nil {
			r.store.InstallSession(ctx, refreshed)
			return RefreshRunResult{Attempts: attempt}, nil
		}
		lastErr = err

		if !core.IsRetryable(err) {
			r.logger.Error("refresh token rejected", "attempt", attempt, "error", err.Error())
			r.store.ClearSession(ctx)
			return RefreshRunResult{Attempts: attempt, ReauthRequired: true}, err
		}
		if attempt == r.maxAttempts {
			break
		}
		delay := r.scheduler.NextDelay(attempt)
		r.logger.Info("refresh retry scheduled", "attempt", attempt, "delay", delay.String())
		if waitErr := r.sleep(ctx, delay); waitErr != nil {
			return RefreshRunResult{Attempts: attempt}, waitErr
		}
	}

	// Transient failures exhausted the budget; the session stays installed
	// and a later run tries again.
	return RefreshRunResult{Attempts: r.maxAttempts}, lastErr
}

// EnqueueRefresh schedules a background refresh for the user. The user id
// doubles as the idempotency key so overlapping schedules collapse.
func EnqueueRefresh(ctx context.Context, enqueuer core.JobEnqueuer, userID string) error {
	if enqueuer == nil {
		return fmt.Errorf("session: job enqueuer is required")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("session: user id is required")
	}
	return enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          RefreshJobID,
		Parameters:     map[string]any{"user_id": userID},
		IdempotencyKey: RefreshJobID + ":" + userID,
		DedupPolicy:    "drop",
	})
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package sync coordinates the work the app runs when it comes to the
// foreground: refresh the session if its expiry window is near, then reload
// the task list from the remote store.
package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/todotomorrow/go-client/core"
	"github.com/todotomorrow/go-client/session"
)

const defaultMinInterval = 30 * time.Second

// SessionRefresher is the slice of session.RefreshRunner the orchestrator
// drives.
type SessionRefresher interface {
	Due() bool
	Run(ctx context.Context) (session.RefreshRunResult, error)
}

// TaskLoader reloads the task list from the remote store.
type TaskLoader interface {
	LoadTasks(ctx context.Context) error
}

// Result reports what one sync pass actually did.
type Result struct {
	SessionRefreshed bool
	ReauthRequired   bool
	TasksReloaded    bool
	Skipped          bool
}

type OrchestratorConfig struct {
	Refresher SessionRefresher
	Tasks     TaskLoader

	// MinInterval throttles foreground syncs; SyncNow ignores it.
	MinInterval time.Duration
	Logger      core.Logger
	Now         func() time.Time
}

// Orchestrator serializes sync passes: overlapping foreground events collapse
// into one pass plus at most one skipped result.
type Orchestrator struct {
	refresher   SessionRefresher
	tasks       TaskLoader
	minInterval time.Duration
	logger      core.Logger
	now         func() time.Time

	mu         stdsync.Mutex
	syncing    bool
	lastSyncAt time.Time
}

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Tasks == nil {
		return nil, fmt.Errorf("sync: task loader is required")
	}
	minInterval := cfg.MinInterval
	if minInterval <= 0 {
		minInterval = defaultMinInterval
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		refresher:   cfg.Refresher,
		tasks:       cfg.Tasks,
		minInterval: minInterval,
		logger:      glog.Ensure(cfg.Logger),
		now:         now,
	}, nil
}

// OnForeground runs a sync pass unless one ran within MinInterval or is
// running right now. Skips are not errors; the app foregrounds far more often
// than the data changes.
func (o *Orchestrator) OnForeground(ctx context.Context) (Result, error) {
	o.mu.Lock()
	if o.syncing || o.now().Sub(o.lastSyncAt) < o.minInterval {
		o.mu.Unlock()
		return Result{Skipped: true}, nil
	}
	o.syncing = true
	o.mu.Unlock()

	return o.run(ctx)
}

// SyncNow runs a pass immediately, waiting out any pass already in flight
// only by failing fast: the in-flight pass already does the work.
func (o *Orchestrator) SyncNow(ctx context.Context) (Result, error) {
	o.mu.Lock()
	if o.syncing {
		o.mu.Unlock()
		return Result{Skipped: true}, nil
	}
	o.syncing = true
	o.mu.Unlock()

	return o.run(ctx)
}

func (o *Orchestrator) run(ctx context.Context) (Result, error) {
	defer func() {
		o.mu.Lock()
		o.syncing = false
		o.lastSyncAt = o.now()
		o.mu.Unlock()
	}()

	var result Result

	if o.refresher != nil && o.refresher.Due() {
		refresh, err := o.refresher.Run(ctx)
		result.ReauthRequired = refresh.ReauthRequired
		if err != nil {
			if refresh.ReauthRequired {
				// The session is gone; loading tasks would only fail on the
				// identity guard.
				return result, err
			}
			o.logger.Warn("session refresh failed, continuing with current tokens",
				"error", err.Error(),
			)
		} else if refresh.Attempts > 0 {
			result.SessionRefreshed = true
		}
	}

	if err := o.tasks.LoadTasks(ctx); err != nil {
		return result, err
	}
	result.TasksReloaded = true
	return result, nil
}

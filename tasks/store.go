package tasks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
	"github.com/todotomorrow/go-client/core"
)

const localIDPrefix = "local-"

// IsLocalID reports whether the task id is a client-assigned placeholder
// still awaiting its server id.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}

// IdentityProvider snapshots the authenticated identity at call time. A
// sign-out between the snapshot and the remote call is an ordinary failure.
type IdentityProvider func() (core.OwnerIdentity, bool)

// Snapshot is an immutable read of the task list.
type Snapshot struct {
	Tasks   []core.Task
	Loading bool
	Err     error
}

type Listener func(Snapshot)

type StoreConfig struct {
	Repo       core.TaskRepository
	Identity   IdentityProvider
	Logger     core.Logger
	Metrics    core.MetricsRecorder
	Now        func() time.Time
	NewLocalID func() string
}

type storeState struct {
	tasks   []core.Task
	loading bool
	lastErr error

	// ownerID caches the resolved owner for ownerFor, so each list/create
	// does not repeat the upsert round trip.
	ownerID  string
	ownerFor core.OwnerIdentity
}

// Store is the optimistic task list. All reads and local edits go through
// one mutex; remote calls run outside it so a slow network never blocks the
// UI thread reading the list.
type Store struct {
	repo       core.TaskRepository
	identity   IdentityProvider
	logger     core.Logger
	metrics    core.MetricsRecorder
	now        func() time.Time
	newLocalID func() string

	mu        sync.Mutex
	state     storeState
	listeners map[int]Listener
	nextID    int
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("tasks: repository is required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("tasks: identity provider is required")
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	newLocalID := cfg.NewLocalID
	if newLocalID == nil {
		newLocalID = func() string { return localIDPrefix + uuid.NewString() }
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	return &Store{
		repo:       cfg.Repo,
		identity:   cfg.Identity,
		logger:     glog.Ensure(cfg.Logger),
		metrics:    metrics,
		now:        now,
		newLocalID: newLocalID,
		listeners:  map[int]Listener{},
	}, nil
}

func (t *Store) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = listener
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

func (t *Store) Current() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// LoadTasks replaces the list with the remote truth, newest first. On
// failure the current list stays untouched and the error is recorded.
func (t *Store) LoadTasks(ctx context.Context) error {
	identity, ok := t.identity()
	if !ok {
		return t.fail(core.ErrIdentityMissing)
	}

	t.mu.Lock()
	t.state.loading = true
	snapshot := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snapshot)

	started := t.now()
	ownerID, err := t.resolveOwner(ctx, identity)
	var loaded []core.Task
	if err == nil {
		loaded, err = t.repo.List(ctx, ownerID)
	}
	t.metrics.ObserveHistogram(ctx, "tasks.load.duration_ms",
		float64(t.now().Sub(started).Milliseconds()), nil)

	t.mu.Lock()
	t.state.loading = false
	if err != nil {
		t.state.lastErr = err
	} else {
		sortNewestFirst(loaded)
		t.state.tasks = loaded
		t.state.lastErr = nil
	}
	snapshot = t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snapshot)

	if err != nil {
		t.logger.Error("task load failed", "error", err.Error())
	}
	return err
}

// AddTask appends the task locally with a placeholder id, then creates it
// remotely. Success swaps the server id in place; failure removes the task.
func (t *Store) AddTask(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", t.fail(fmt.Errorf("tasks: task text is required"))
	}
	identity, ok := t.identity()
	if !ok {
		return "", t.fail(core.ErrIdentityMissing)
	}

	localID := t.newLocalID()
	var created core.Task

	err := t.run(ctx, optimisticMutation{
		name: "add task",
		apply: func(s *storeState) func(*storeState) {
			task := core.Task{
				ID:        localID,
				Text:      text,
				Status:    core.TaskStatusOpen,
				CreatedAt: t.now(),
			}
			s.tasks = append([]core.Task{task}, s.tasks...)
			return func(s *storeState) {
				s.tasks = removeByID(s.tasks, localID)
			}
		},
		remote: func(ctx context.Context) error {
			ownerID, err := t.resolveOwner(ctx, identity)
			if err != nil {
				return err
			}
			created, err = t.repo.Create(ctx, ownerID, text)
			return err
		},
		commit: func(s *storeState) {
			// The placeholder becomes the server record in place; position
			// and text the user sees do not move.
			for i := range s.tasks {
				if s.tasks[i].ID == localID {
					created.Text = s.tasks[i].Text
					s.tasks[i] = created
					return
				}
			}
		},
	})
	if err != nil {
		return "", err
	}
	t.metrics.IncCounter(ctx, "tasks.added", 1, nil)
	return created.ID, nil
}

// DeleteTask removes the task locally, then tombstones it remotely. Failure
// reinserts the task at its sorted position.
func (t *Store) DeleteTask(ctx context.Context, id string) error {
	if _, ok := t.identity(); !ok {
		return t.fail(core.ErrIdentityMissing)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return t.fail(fmt.Errorf("tasks: task id is required"))
	}

	t.mu.Lock()
	known := false
	for _, task := range t.state.tasks {
		if task.ID == id {
			known = true
			break
		}
	}
	t.mu.Unlock()
	if !known {
		return t.fail(fmt.Errorf("tasks: task %q not found", id))
	}

	var removed core.Task
	var found bool

	err := t.run(ctx, optimisticMutation{
		name: "delete task",
		apply: func(s *storeState) func(*storeState) {
			for _, task := range s.tasks {
				if task.ID == id {
					removed = task
					found = true
					break
				}
			}
			s.tasks = removeByID(s.tasks, id)
			if !found {
				return nil
			}
			return func(s *storeState) {
				s.tasks = append(s.tasks, removed)
				sortNewestFirst(s.tasks)
			}
		},
		remote: func(ctx context.Context) error {
			if !found {
				// Removed by a concurrent mutation between the lookup and
				// this frame; there is nothing left to tombstone.
				return nil
			}
			return t.repo.SoftDelete(ctx, id, t.now())
		},
	})
	if err != nil {
		return err
	}
	t.metrics.IncCounter(ctx, "tasks.deleted", 1, nil)
	return nil
}

// UpdateTask rewrites the task text locally, then remotely. Failure restores
// the previous text.
func (t *Store) UpdateTask(ctx context.Context, id string, text string) error {
	if _, ok := t.identity(); !ok {
		return t.fail(core.ErrIdentityMissing)
	}
	id = strings.TrimSpace(id)
	text = strings.TrimSpace(text)
	if id == "" || text == "" {
		return t.fail(fmt.Errorf("tasks: task id and text are required"))
	}

	return t.run(ctx, optimisticMutation{
		name: "update task",
		apply: func(s *storeState) func(*storeState) {
			for i := range s.tasks {
				if s.tasks[i].ID == id {
					previous := s.tasks[i].Text
					s.tasks[i].Text = text
					return func(s *storeState) {
						for j := range s.tasks {
							if s.tasks[j].ID == id {
								s.tasks[j].Text = previous
								return
							}
						}
					}
				}
			}
			return nil
		},
		remote: func(ctx context.Context) error {
			return t.repo.Update(ctx, id, text)
		},
	})
}

// Reset drops all local task state, for sign-out.
func (t *Store) Reset() {
	t.mu.Lock()
	t.state = storeState{}
	snapshot := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snapshot)
}

func (t *Store) resolveOwner(ctx context.Context, identity core.OwnerIdentity) (string, error) {
	if err := identity.Validate(); err != nil {
		return "", err
	}
	t.mu.Lock()
	if t.state.ownerID != "" && t.state.ownerFor == identity {
		ownerID := t.state.ownerID
		t.mu.Unlock()
		return ownerID, nil
	}
	t.mu.Unlock()

	ownerID, err := t.repo.ResolveOwner(ctx, identity)
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	t.state.ownerID = ownerID
	t.state.ownerFor = identity
	t.mu.Unlock()
	return ownerID, nil
}

func (t *Store) fail(err error) error {
	t.mu.Lock()
	t.state.lastErr = err
	snapshot := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snapshot)
	return err
}

func (t *Store) snapshotLocked() Snapshot {
	tasks := make([]core.Task, len(t.state.tasks))
	copy(tasks, t.state.tasks)
	return Snapshot{
		Tasks:   tasks,
		Loading: t.state.loading,
		Err:     t.state.lastErr,
	}
}

func (t *Store) notify(snapshot Snapshot) {
	t.mu.Lock()
	listeners := make([]Listener, 0, len(t.listeners))
	for _, listener := range t.listeners {
		listeners = append(listeners, listener)
	}
	t.mu.Unlock()
	for _, listener := range listeners {
		listener(snapshot)
	}
}

func removeByID(tasks []core.Task, id string) []core.Task {
	out := tasks[:0]
	for _, task := range tasks {
		if task.ID != id {
			out = append(out, task)
		}
	}
	return out
}

func sortNewestFirst(tasks []core.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID > tasks[j].ID
	})
}

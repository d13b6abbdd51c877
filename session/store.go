package session

import (
	"context"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/todotomorrow/go-client/core"
)

type Status string

const (
	StatusUninitialized   Status = "uninitialized"
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// Snapshot is an immutable read of the store. Session is only meaningful in
// the authenticated status.
type Snapshot struct {
	Status  Status
	Session core.Session
}

func (s Snapshot) Authenticated() bool {
	return s.Status == StatusAuthenticated && !s.Session.IsZero()
}

// Identity returns the owner identity for task operations, or false when no
// authenticated session exists.
func (s Snapshot) Identity() (core.OwnerIdentity, bool) {
	if !s.Authenticated() {
		return core.OwnerIdentity{}, false
	}
	return core.OwnerIdentity{
		UserID:  s.Session.UserID,
		Address: s.Session.Address,
	}, true
}

type Listener func(Snapshot)

type StoreConfig struct {
	Identity core.IdentityService
	// Vault is optional; without it sessions live only in memory.
	Vault  core.SessionVault
	Logger core.Logger
	Now    func() time.Time
}

// Store holds the one active session. The session value is replaced
// wholesale on every transition, never field-patched, so readers always see
// a coherent identity.
type Store struct {
	identity core.IdentityService
	vault    core.SessionVault
	logger   core.Logger
	now      func() time.Time

	mu        sync.Mutex
	status    Status
	session   core.Session
	listeners map[int]Listener
	nextID    int
}

func NewStore(cfg StoreConfig) *Store {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		identity:  cfg.Identity,
		vault:     cfg.Vault,
		logger:    glog.Ensure(cfg.Logger),
		now:       now,
		status:    StatusUninitialized,
		listeners: map[int]Listener{},
	}
}

// Subscribe registers a listener for status transitions. The returned func
// unsubscribes; it is safe to call more than once.
func (s *Store) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Status: s.status, Session: s.session}
}

// Initialize restores the persisted session and reconciles it with the
// remote service. It never fails outward: any failure lands in the
// unauthenticated status and the app proceeds to the sign-in surface.
func (s *Store) Initialize(ctx context.Context) Snapshot {
	s.transition(StatusLoading, core.Session{})

	if s.vault != nil {
		persisted, found, err := s.vault.Load(ctx)
		if err != nil {
			s.logger.Error("session vault load failed", "error", err.Error())
		} else if found && !persisted.IsZero() {
			restored, restoreErr := s.identity.SetSession(ctx, persisted.AccessToken, persisted.RefreshToken)
			if restoreErr == nil {
				return s.install(ctx, restored)
			}
			s.logger.Error("persisted session restore failed", "error", restoreErr.Error())
			if !core.IsRetryable(restoreErr) {
				// The persisted tokens are dead; keeping them would replay
				// the same failure on every launch.
				s.clearVault(ctx)
			}
			return s.transition(StatusUnauthenticated, core.Session{})
		}
	}

	current, ok, err := s.identity.CurrentSession(ctx)
	if err != nil {
		s.logger.Error("session fetch failed", "error", err.Error())
		return s.transition(StatusUnauthenticated, core.Session{})
	}
	if !ok {
		return s.transition(StatusUnauthenticated, core.Session{})
	}
	return s.install(ctx, current)
}

// InstallSession accepts an established session from the verification
// machine. Installation never fails outward; vault errors are logged.
func (s *Store) InstallSession(ctx context.Context, session core.Session) {
	if session.IsZero() {
		s.ClearSession(ctx)
		return
	}
	s.install(ctx, session)
}

// ClearSession drops the active session locally and from the vault.
func (s *Store) ClearSession(ctx context.Context) {
	s.clearVault(ctx)
	s.transition(StatusUnauthenticated, core.Session{})
}

// SignOut invalidates the session remotely, then clears local state. A
// remote failure keeps the local session so the user can retry; the tokens
// are still valid until the service accepts the revocation.
func (s *Store) SignOut(ctx context.Context) error {
	if err := s.identity.SignOut(ctx); err != nil {
		s.logger.Error("remote sign out failed", "error", err.Error())
		return err
	}
	s.ClearSession(ctx)
	return nil
}

func (s *Store) install(ctx context.Context, session core.Session) Snapshot {
	if s.vault != nil {
		if err := s.vault.Save(ctx, session); err != nil {
			s.logger.Error("session vault save failed", "error", err.Error())
		}
	}
	return s.transition(StatusAuthenticated, session)
}

func (s *Store) clearVault(ctx context.Context) {
	if s.vault == nil {
		return
	}
	if err := s.vault.Clear(ctx); err != nil {
		s.logger.Error("session vault clear failed", "error", err.Error())
	}
}

func (s *Store) transition(status Status, session core.Session) Snapshot {
	s.mu.Lock()
	s.status = status
	s.session = session
	snapshot := Snapshot{Status: status, Session: session}
	listeners := make([]Listener, 0, len(s.listeners))
	for _, listener := range s.listeners {
		listeners = append(listeners, listener)
	}
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(snapshot)
	}
	return snapshot
}

// Package ratelimit guards the magic-link send path. The identity service
// throttles OTP requests per address; sending into a known throttle window
// burns the user's patience for nothing, so the client tracks the window
// locally and refuses early.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/todotomorrow/go-client/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

const (
	defaultCooldown       = 30 * time.Second
	defaultInitialBackoff = time.Minute
	defaultMaxBackoff     = 10 * time.Minute
)

// State is the per-address send history.
type State struct {
	Address        string
	LastSentAt     time.Time
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
}

type StateStore interface {
	Get(ctx context.Context, address string) (State, error)
	Upsert(ctx context.Context, state State) error
}

// ThrottledError reports how long the caller must wait before the next send
// for the address can go out.
type ThrottledError struct {
	Address    string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: magic link for %q throttled for %s", e.Address, e.RetryAfter)
}

func (e ThrottledError) ToClientError() *goerrors.Error {
	metadata := map[string]any{"address": e.Address}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ClientErrorBadInput).
		WithMetadata(metadata)
}

// SendPolicy enforces a local resend cooldown and backs off further when the
// identity service answers 429. Remote throttles grow the window
// exponentially; a successful send resets it to the base cooldown.
type SendPolicy struct {
	Store          StateStore
	Now            func() time.Time
	Cooldown       time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewSendPolicy(store StateStore) *SendPolicy {
	return &SendPolicy{
		Store:          store,
		Now:            func() time.Time { return time.Now().UTC() },
		Cooldown:       defaultCooldown,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
	}
}

// BeforeSend reports whether a send for the address may go out now.
func (p *SendPolicy) BeforeSend(ctx context.Context, address string) error {
	if p == nil || p.Store == nil {
		return nil
	}
	address = normalizeAddress(address)
	state, err := p.Store.Get(ctx, address)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}

	now := p.now()
	if until := state.ThrottledUntil; until != nil && now.Before(*until) {
		return ThrottledError{Address: address, RetryAfter: until.Sub(now)}
	}
	if !state.LastSentAt.IsZero() {
		cooldownEnd := state.LastSentAt.Add(p.cooldown())
		if now.Before(cooldownEnd) {
			return ThrottledError{Address: address, RetryAfter: cooldownEnd.Sub(now)}
		}
	}
	return nil
}

// AfterSend records the outcome of a send attempt. A 429 opens a backoff
// window that doubles with each consecutive throttle.
func (p *SendPolicy) AfterSend(ctx context.Context, address string, statusCode int) error {
	if p == nil || p.Store == nil {
		return nil
	}
	address = normalizeAddress(address)
	state, err := p.Store.Get(ctx, address)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return err
	}
	if errors.Is(err, ErrStateNotFound) {
		state = State{Address: address}
	}

	now := p.now()
	state.LastStatus = statusCode
	state.UpdatedAt = now

	if statusCode == http.StatusTooManyRequests {
		state.Attempts++
		until := now.Add(p.nextBackoff(state.Attempts))
		state.ThrottledUntil = &until
		return p.Store.Upsert(ctx, state)
	}

	state.Attempts = 0
	state.ThrottledUntil = nil
	state.LastSentAt = now
	return p.Store.Upsert(ctx, state)
}

func (p *SendPolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *SendPolicy) cooldown() time.Duration {
	if p != nil && p.Cooldown > 0 {
		return p.Cooldown
	}
	return defaultCooldown
}

func (p *SendPolicy) nextBackoff(attempt int) time.Duration {
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	maximum := p.MaxBackoff
	if maximum <= 0 {
		maximum = defaultMaxBackoff
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

func normalizeAddress(address string) string {
	return strings.TrimSpace(strings.ToLower(address))
}

// MemoryStateStore keeps send state for the process lifetime. Losing it on
// restart is acceptable; the identity service still enforces its own limits.
type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, address string) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[normalizeAddress(address)]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Address = normalizeAddress(state.Address)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state.Address] = state
	return nil
}

package verify

import (
	"context"
	"errors"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/todotomorrow/go-client/core"
)

type State string

const (
	StateIdle          State = "idle"
	StateVerifying     State = "verifying"
	StateAuthenticated State = "authenticated"
	StateFailed        State = "failed"
)

// ErrPayloadConsumed marks a payload whose fingerprint has already been
// handled, or is being handled right now. Duplicates are expected: several
// observers can deliver the same physical link-open event.
var ErrPayloadConsumed = errors.New("verify: credential payload already handled")

const defaultRecheckDelay = 750 * time.Millisecond

// SessionSink receives the established session. The session store implements
// this; installation never fails outward.
type SessionSink interface {
	InstallSession(ctx context.Context, session core.Session)
}

type SessionSinkFunc func(ctx context.Context, session core.Session)

func (f SessionSinkFunc) InstallSession(ctx context.Context, session core.Session) {
	if f != nil {
		f(ctx, session)
	}
}

type Config struct {
	Identity core.IdentityService
	Sink     SessionSink

	// RecheckDelay spaces the single follow-up session fetch after an
	// exchange that succeeded without returning session material.
	RecheckDelay time.Duration

	Logger core.Logger
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
}

// Verifier drives one credential payload from extraction to an established
// session or a terminal failure. A fingerprint is consumed by its first
// delivery; concurrent and repeat deliveries are dropped.
type Verifier struct {
	identity     core.IdentityService
	sink         SessionSink
	recheckDelay time.Duration
	logger       core.Logger
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	state    State
	lastErr  error
	inflight map[string]struct{}
	consumed map[string]time.Time
}

func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Identity == nil {
		return nil, errors.New("verify: identity service is required")
	}
	recheckDelay := cfg.RecheckDelay
	if recheckDelay <= 0 {
		recheckDelay = defaultRecheckDelay
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}
	return &Verifier{
		identity:     cfg.Identity,
		sink:         cfg.Sink,
		recheckDelay: recheckDelay,
		logger:       glog.Ensure(cfg.Logger),
		now:          now,
		sleep:        sleep,
		state:        StateIdle,
		inflight:     map[string]struct{}{},
		consumed:     map[string]time.Time{},
	}, nil
}

// State returns the machine's current phase and, in the failed phase, the
// error that put it there.
func (v *Verifier) State() (State, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state, v.lastErr
}

// Handle redeems one credential payload. The first delivery of a fingerprint
// owns it: later deliveries get ErrPayloadConsumed no matter how the first
// one ended. Transient network failures leave the fingerprint unconsumed so
// the same link can be retried.
func (v *Verifier) Handle(ctx context.Context, payload core.CredentialPayload) (core.Session, error) {
	if err := payload.Validate(); err != nil {
		return core.Session{}, core.CredentialError(err.Error())
	}
	fingerprint := payload.Fingerprint()

	v.mu.Lock()
	if _, busy := v.inflight[fingerprint]; busy {
		v.mu.Unlock()
		return core.Session{}, ErrPayloadConsumed
	}
	if _, done := v.consumed[fingerprint]; done {
		v.mu.Unlock()
		return core.Session{}, ErrPayloadConsumed
	}
	v.inflight[fingerprint] = struct{}{}
	v.state = StateVerifying
	v.mu.Unlock()

	session, err := v.establish(ctx, payload)

	v.mu.Lock()
	delete(v.inflight, fingerprint)
	if err != nil {
		if !core.IsRetryable(err) {
			// The link is spent; a repeat delivery cannot do better.
			v.consumed[fingerprint] = v.now()
		}
		v.state = StateFailed
		v.lastErr = err
		v.mu.Unlock()
		v.logger.Error("credential verification failed",
			"kind", string(payload.Kind),
			"error", err.Error(),
		)
		return core.Session{}, err
	}
	v.consumed[fingerprint] = v.now()
	v.state = StateAuthenticated
	v.lastErr = nil
	v.mu.Unlock()

	if v.sink != nil {
		v.sink.InstallSession(ctx, session)
	}
	v.logger.Info("credential verified", "kind", string(payload.Kind), "user_id", session.UserID)
	return session, nil
}

func (v *Verifier) establish(ctx context.Context, payload core.CredentialPayload) (core.Session, error) {
	var session core.Session
	var err error

	switch payload.Kind {
	case core.CredentialKindSessionTokens:
		session, err = v.identity.SetSession(ctx, payload.AccessToken, payload.RefreshToken)
	case core.CredentialKindVerificationToken:
		session, err = v.runExchangeStrategies(ctx, payload)
	default:
		return core.Session{}, core.CredentialError("unsupported credential payload")
	}
	if err != nil {
		return core.Session{}, err
	}
	if !session.IsZero() {
		return session, nil
	}

	// The exchange reported success without session material. One delayed
	// follow-up fetch covers the service establishing the session async.
	if sleepErr := v.sleep(ctx, v.recheckDelay); sleepErr != nil {
		return core.Session{}, core.NetworkError(sleepErr, "session re-check interrupted")
	}
	current, ok, fetchErr := v.identity.CurrentSession(ctx)
	if fetchErr != nil {
		return core.Session{}, fetchErr
	}
	if !ok {
		return core.Session{}, core.CredentialError("verification succeeded but no session was established")
	}
	return current, nil
}

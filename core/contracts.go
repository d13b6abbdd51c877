package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// CaptureBridge is the optional platform intent bridge. On platforms without
// a native capture module both calls are safe no-ops.
type CaptureBridge interface {
	StoredDeepLink(ctx context.Context) (string, error)
	ClearStoredDeepLink(ctx context.Context) error
}

// InitialURLQuery asks the OS for the URL the process was launched with. The
// OS API transiently returns empty even when a link did launch the app, so
// callers retry it with bounded backoff.
type InitialURLQuery func(ctx context.Context) (string, error)

// ExchangeRequest redeems a verification token for a session. Address is
// optional and only sent by the address-bound exchange strategy.
type ExchangeRequest struct {
	Token   string
	Type    VerificationType
	Address string
}

// IdentityService is the remote identity/verification service contract.
type IdentityService interface {
	// SendMagicLink requests a one-time sign-in link for the address.
	SendMagicLink(ctx context.Context, address string, redirectTo string) error

	// Exchange redeems a verification token for a session.
	Exchange(ctx context.Context, req ExchangeRequest) (Session, error)

	// CurrentSession fetches the service's view of the active session.
	// The boolean is false when no session exists.
	CurrentSession(ctx context.Context) (Session, bool, error)

	// SetSession installs a session directly from fragment-delivered tokens.
	SetSession(ctx context.Context, accessToken string, refreshToken string) (Session, error)

	// Refresh exchanges a refresh token for a new session.
	Refresh(ctx context.Context, refreshToken string) (Session, error)

	// SignOut invalidates the active session remotely.
	SignOut(ctx context.Context) error
}

// SessionVault persists one session across process restarts.
type SessionVault interface {
	Save(ctx context.Context, session Session) error
	Load(ctx context.Context) (Session, bool, error)
	Clear(ctx context.Context) error
}

// TaskRepository is the remote task store contract. Every call is an
// independent network round trip with its own failure mode.
type TaskRepository interface {
	// ResolveOwner returns the owner record id for the identity, creating it
	// on first use.
	ResolveOwner(ctx context.Context, identity OwnerIdentity) (string, error)

	// List returns all non-tombstoned tasks for the owner, newest first.
	List(ctx context.Context, ownerID string) ([]Task, error)

	// Create persists a task and returns the server-assigned record.
	Create(ctx context.Context, ownerID string, text string) (Task, error)

	// SoftDelete tombstones the task; the record is retained remotely.
	SoftDelete(ctx context.Context, id string, tombstonedAt time.Time) error

	// Update rewrites the task text.
	Update(ctx context.Context, id string, text string) error
}

// MetricsRecorder mirrors the minimal metrics surface the client emits.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string)        {}
func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// Job contracts decouple background work (session refresh, task reload) from
// the concrete go-job queue wiring in adapters/gojob.

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

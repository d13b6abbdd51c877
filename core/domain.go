package core

import (
	"fmt"
	"strings"
	"time"
)

// DeepLinkSource identifies which observer produced a candidate deep link.
type DeepLinkSource string

const (
	DeepLinkSourceNativeCapture DeepLinkSource = "native_capture"
	DeepLinkSourceInitialQuery  DeepLinkSource = "initial_query"
	DeepLinkSourceLiveEvent     DeepLinkSource = "live_event"
)

// RawDeepLink is an ephemeral candidate URL observed by one source. It is
// consumed exactly once by the arbiter and discarded afterwards.
type RawDeepLink struct {
	URL        string
	ObservedAt time.Time
	Source     DeepLinkSource
}

// ParsedCallback is the stateless decomposition of a deep link URL. Query and
// fragment parameters are independent namespaces and are never merged.
type ParsedCallback struct {
	IsAuthCallback bool
	Scheme         string
	Host           string
	Path           string
	QueryParams    map[string]string
	FragmentParams map[string]string
}

// Param reads a query parameter, falling back to the fragment namespace.
func (c ParsedCallback) Param(key string) string {
	if value, ok := c.QueryParams[key]; ok {
		return value
	}
	return c.FragmentParams[key]
}

type VerificationType string

const (
	VerificationTypeEmail     VerificationType = "email"
	VerificationTypeSignup    VerificationType = "signup"
	VerificationTypeMagicLink VerificationType = "magiclink"
)

// Recognized reports whether the type belongs to the set the verification
// machine is allowed to exchange. Unrecognized values are preserved for error
// reporting only and never passed to the exchange endpoint.
func (t VerificationType) Recognized() bool {
	switch t {
	case VerificationTypeEmail, VerificationTypeSignup, VerificationTypeMagicLink:
		return true
	default:
		return false
	}
}

// Canonical maps issued labels to the type the exchange endpoint expects.
// Magic-link tokens are issued under "magiclink" but redeemed as "email".
func (t VerificationType) Canonical() VerificationType {
	if t == VerificationTypeMagicLink {
		return VerificationTypeEmail
	}
	return t
}

type CredentialKind string

const (
	CredentialKindSessionTokens     CredentialKind = "session_tokens"
	CredentialKindVerificationToken CredentialKind = "verification_token"
)

// CredentialPayload is the tagged credential variant extracted from a
// callback. Exactly one variant is populated per payload.
type CredentialPayload struct {
	Kind CredentialKind

	// Session token variant: fragment-encoded, ready to install directly.
	AccessToken  string
	RefreshToken string

	// Verification token variant: query-encoded, needs a remote exchange.
	Token          string
	Type           VerificationType
	ClaimedAddress string
}

func (p CredentialPayload) Validate() error {
	switch p.Kind {
	case CredentialKindSessionTokens:
		if strings.TrimSpace(p.AccessToken) == "" || strings.TrimSpace(p.RefreshToken) == "" {
			return fmt.Errorf("core: session token payload requires access and refresh tokens")
		}
		return nil
	case CredentialKindVerificationToken:
		if strings.TrimSpace(p.Token) == "" {
			return fmt.Errorf("core: verification payload requires a token")
		}
		if !p.Type.Recognized() {
			return fmt.Errorf("core: verification type %q is not recognized", p.Type)
		}
		return nil
	default:
		return fmt.Errorf("core: credential payload kind %q is not supported", p.Kind)
	}
}

// Fingerprint is a stable identity for idempotency guards. Two payloads with
// the same fingerprint describe the same physical link-open event.
func (p CredentialPayload) Fingerprint() string {
	switch p.Kind {
	case CredentialKindSessionTokens:
		return string(p.Kind) + ":" + strings.TrimSpace(p.AccessToken)
	default:
		return string(p.Kind) + ":" + strings.TrimSpace(p.Token) + ":" + strings.TrimSpace(string(p.Type))
	}
}

// Session is the established identity. It is owned by the session store and
// overwritten wholesale, never partially mutated.
type Session struct {
	UserID       string
	Address      string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (s Session) IsZero() bool {
	return strings.TrimSpace(s.AccessToken) == "" && strings.TrimSpace(s.UserID) == ""
}

func (s Session) ExpiresWithin(now time.Time, window time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !s.ExpiresAt.After(now.Add(window))
}

type TaskStatus string

const (
	TaskStatusOpen      TaskStatus = "open"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusArchived  TaskStatus = "archived"
)

// Task is a single list entry. ID is locally generated at creation time and
// replaced in place with the server-assigned id once the remote create
// succeeds; until then the task is pending.
type Task struct {
	ID        string
	Text      string
	Status    TaskStatus
	CreatedAt time.Time
	OwnerID   string
}

// OwnerIdentity is the snapshot of the authenticated identity a task
// operation was issued under. A sign-out can occur between the snapshot and
// the remote call; the remote rejecting the stale identity is an ordinary
// failure.
type OwnerIdentity struct {
	UserID  string
	Address string
}

func (i OwnerIdentity) Validate() error {
	if strings.TrimSpace(i.UserID) == "" {
		return fmt.Errorf("core: owner identity requires a user id")
	}
	return nil
}

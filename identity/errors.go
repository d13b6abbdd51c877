package identity

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrRequestFailed   = errors.New("identity: request failed")
	ErrSessionMissing  = errors.New("identity: no active session")
	ErrTokenRejected   = errors.New("identity: token rejected")
	ErrInvalidResponse = errors.New("identity: invalid response")
)

// APIError carries the remote failure detail for logs. Callers receive it
// wrapped in the client error envelope; the status code decides whether the
// failure is retryable.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
	Cause      error
}

func (e *APIError) Error() string {
	if e == nil {
		return ErrRequestFailed.Error()
	}
	msg := e.Message
	if msg == "" {
		msg = ErrRequestFailed.Error()
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.ErrorCode != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.ErrorCode)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause == nil {
		return ErrRequestFailed
	}
	return errors.Join(ErrRequestFailed, e.Cause)
}

// CredentialRejection reports whether the remote rejected the credential
// itself, as opposed to failing transiently. Rejections are terminal: the
// link is spent and retrying the same token cannot succeed.
func (e *APIError) CredentialRejection() bool {
	if e == nil {
		return false
	}
	switch e.StatusCode {
	case http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusUnprocessableEntity,
		http.StatusGone:
		return true
	default:
		return false
	}
}

package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ClientErrorNetwork           = "CLIENT_NETWORK"
	ClientErrorCredentialInvalid = "CLIENT_CREDENTIAL_INVALID"
	ClientErrorIdentityMissing   = "CLIENT_IDENTITY_MISSING"
	ClientErrorRolledBack        = "CLIENT_ROLLED_BACK"
	ClientErrorBadInput          = "CLIENT_BAD_INPUT"
	ClientErrorInternal          = "CLIENT_INTERNAL_ERROR"
)

// ErrIdentityMissing marks a task operation attempted without an
// authenticated session. A sequencing bug in the caller, but it must fail
// safely rather than crash.
var ErrIdentityMissing = errors.New("core: no authenticated identity")

// NetworkError wraps a transient remote failure. Callers surface these with a
// retry affordance.
func NetworkError(err error, message string) *goerrors.Error {
	return clientError(goerrors.Wrap(err, goerrors.CategoryExternal, message).
		WithTextCode(ClientErrorNetwork))
}

// CredentialError marks a credential rejected by the identity service. The
// link is spent; the user must request a new one.
func CredentialError(message string) *goerrors.Error {
	return clientError(goerrors.New(message, goerrors.CategoryAuth).
		WithTextCode(ClientErrorCredentialInvalid))
}

// RollbackError wraps a remote rejection of an optimistic mutation after the
// local state has been reverted.
func RollbackError(err error, message string) *goerrors.Error {
	return clientError(goerrors.Wrap(err, goerrors.CategoryConflict, message).
		WithTextCode(ClientErrorRolledBack))
}

// IsRetryable reports whether the error is a transient-network failure.
func IsRetryable(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryExternal
}

func clientErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureClientErrorEnvelope(richErr)
	}
	if errors.Is(err, ErrIdentityMissing) {
		return ensureClientErrorEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryAuthz).
				WithTextCode(ClientErrorIdentityMissing),
		)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "expired"), strings.Contains(msg, "invalid token"), strings.Contains(msg, "otp"):
		return newClientError(err.Error(), goerrors.CategoryAuth, ClientErrorCredentialInvalid)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "connection"), strings.Contains(msg, "unreachable"):
		return newClientError(err.Error(), goerrors.CategoryExternal, ClientErrorNetwork)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newClientError(err.Error(), goerrors.CategoryBadInput, ClientErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureClientErrorEnvelope(mapped)
}

func newClientError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureClientErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func clientError(err *goerrors.Error) *goerrors.Error {
	return ensureClientErrorEnvelope(err)
}

func ensureClientErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = clientHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultClientTextCode(err.Category)
	}
	return err
}

func defaultClientTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ClientErrorBadInput
	case goerrors.CategoryAuth:
		return ClientErrorCredentialInvalid
	case goerrors.CategoryAuthz:
		return ClientErrorIdentityMissing
	case goerrors.CategoryConflict:
		return ClientErrorRolledBack
	case goerrors.CategoryExternal:
		return ClientErrorNetwork
	default:
		return ClientErrorInternal
	}
}

func clientHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

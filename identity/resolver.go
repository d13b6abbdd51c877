package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/todotomorrow/go-client/core"
)

var ErrProfileNotFound = errors.New("identity: profile not found")

// ProfileNotFoundError marks a token whose owner could not be determined
// from either the token claims or the user endpoint.
type ProfileNotFoundError struct {
	Cause error
}

func (e *ProfileNotFoundError) Error() string {
	if e == nil || e.Cause == nil {
		return ErrProfileNotFound.Error()
	}
	return ErrProfileNotFound.Error() + ": " + e.Cause.Error()
}

func (e *ProfileNotFoundError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause == nil {
		return ErrProfileNotFound
	}
	return errors.Join(ErrProfileNotFound, e.Cause)
}

func (e *ProfileNotFoundError) ToClientError() *goerrors.Error {
	message := ErrProfileNotFound.Error()
	if e != nil && e.Cause != nil {
		message = e.Error()
	}
	return goerrors.New(message, goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(core.ClientErrorIdentityMissing)
}

func profileNotFound(cause error) error {
	return &ProfileNotFoundError{Cause: cause}
}

// Profile is the resolved owner of an access token.
type Profile struct {
	UserID          string
	Address         string
	AddressVerified bool
	ExpiresAt       time.Time
}

type ResolverConfig struct {
	HTTPClient     HTTPDoer
	RequestTimeout time.Duration

	// UserEndpoint is the authoritative user lookup, e.g. <base>/user.
	// Optional; without it only token claims are consulted.
	UserEndpoint string
	APIKey       string
	Now          func() time.Time
}

// Resolver determines who an access token belongs to. The claims inside the
// token are consulted first since they resolve without a network round trip;
// the user endpoint is the authoritative fallback for opaque or stale tokens.
type Resolver struct {
	httpClient     HTTPDoer
	requestTimeout time.Duration
	userEndpoint   string
	apiKey         string
	now            func() time.Time
}

func NewResolver(cfg ResolverConfig) *Resolver {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Resolver{
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		userEndpoint:   strings.TrimSpace(cfg.UserEndpoint),
		apiKey:         strings.TrimSpace(cfg.APIKey),
		now:            now,
	}
}

// Resolve maps an access token to its owner. An expired or undecodable token
// falls through to the user endpoint; an endpoint rejection surfaces as
// *APIError so callers can distinguish revocation from transient failure.
func (r *Resolver) Resolve(ctx context.Context, accessToken string) (Profile, error) {
	if r == nil {
		return Profile{}, profileNotFound(nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return Profile{}, profileNotFound(fmt.Errorf("identity: access token is required"))
	}

	profile, claimsErr := r.profileFromClaims(accessToken)
	if claimsErr == nil {
		return profile, nil
	}

	if r.userEndpoint == "" {
		return Profile{}, profileNotFound(claimsErr)
	}
	profile, fetchErr := r.fetchUserProfile(ctx, accessToken)
	if fetchErr != nil {
		var apiErr *APIError
		if isAPIError(fetchErr, &apiErr) {
			return Profile{}, fetchErr
		}
		return Profile{}, profileNotFound(fetchErr)
	}
	return profile, nil
}

// profileFromClaims decodes the token payload without signature verification.
// The identity service signed the token; a forged one fails at first remote
// use regardless of what we read here.
func (r *Resolver) profileFromClaims(accessToken string) (Profile, error) {
	claims, err := decodeJWTClaims(accessToken)
	if err != nil {
		return Profile{}, err
	}
	subject := strings.TrimSpace(readClaimString(claims["sub"]))
	if subject == "" {
		return Profile{}, fmt.Errorf("identity: token claims missing subject")
	}
	profile := Profile{
		UserID:          subject,
		Address:         strings.TrimSpace(readClaimString(claims["email"])),
		AddressVerified: readClaimBool(claims["email_verified"]),
	}
	if exp := readClaimInt(claims["exp"]); exp > 0 {
		profile.ExpiresAt = time.Unix(exp, 0).UTC()
		if !profile.ExpiresAt.After(r.now()) {
			return Profile{}, fmt.Errorf("identity: token claims expired")
		}
	}
	return profile, nil
}

func (r *Resolver) fetchUserProfile(ctx context.Context, accessToken string) (Profile, error) {
	requestCtx := ctx
	cancel := func() {}
	if r.requestTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, r.requestTimeout)
	}
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, r.userEndpoint, nil)
	if err != nil {
		return Profile{}, &APIError{Message: "build user request", Cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		req.Header.Set("apikey", r.apiKey)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	res, err := r.httpClient.Do(req)
	if err != nil {
		return Profile{}, &APIError{Message: "user request failed", Cause: err}
	}
	defer res.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(res.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return Profile{}, &APIError{StatusCode: res.StatusCode, Message: "read user response", Cause: readErr}
	}
	if int64(len(body)) > maxResponseBodyBytes {
		return Profile{}, &APIError{
			StatusCode: res.StatusCode,
			Message:    fmt.Sprintf("user response exceeds %d bytes", maxResponseBodyBytes),
			Cause:      ErrInvalidResponse,
		}
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return Profile{}, &APIError{
			StatusCode: res.StatusCode,
			Message:    "user endpoint rejected the token",
			Cause:      ErrTokenRejected,
		}
	}

	var payload struct {
		ID             string `json:"id"`
		Email          string `json:"email"`
		EmailConfirmed string `json:"email_confirmed_at"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Profile{}, &APIError{StatusCode: res.StatusCode, Message: "decode user response", Cause: err}
	}
	if strings.TrimSpace(payload.ID) == "" {
		return Profile{}, profileNotFound(fmt.Errorf("identity: user response missing id"))
	}
	return Profile{
		UserID:          strings.TrimSpace(payload.ID),
		Address:         strings.TrimSpace(payload.Email),
		AddressVerified: strings.TrimSpace(payload.EmailConfirmed) != "",
	}, nil
}

func decodeJWTClaims(token string) (map[string]any, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("identity: token is not a JWT")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("identity: decode token payload: %w", err)
	}
	var claims map[string]any
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return nil, fmt.Errorf("identity: decode token claims: %w", err)
	}
	return claims, nil
}

func readClaimString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatInt(int64(typed), 10)
	default:
		return ""
	}
}

func readClaimBool(value any) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		return err == nil && parsed
	default:
		return false
	}
}

func readClaimInt(value any) int64 {
	switch typed := value.(type) {
	case float64:
		return int64(typed)
	case int64:
		return typed
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0
		}
		return parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/todotomorrow/go-client/core"
	"github.com/todotomorrow/go-client/ratelimit"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxResponseBodyBytes  = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	// BaseURL is the identity service root, e.g. https://project.example.co/auth/v1.
	BaseURL        string
	APIKey         string
	HTTPClient     HTTPDoer
	RequestTimeout time.Duration

	// SendPolicy is the optional local throttle for magic-link sends.
	SendPolicy *ratelimit.SendPolicy

	Logger core.Logger
	Now    func() time.Time
}

// Client implements core.IdentityService against a GoTrue-compatible HTTP
// API. It holds the active session tokens so CurrentSession and SignOut can
// authenticate without the caller threading tokens through.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     HTTPDoer
	requestTimeout time.Duration
	resolver       *Resolver
	sendPolicy     *ratelimit.SendPolicy
	logger         core.Logger
	now            func() time.Time

	mu      sync.Mutex
	session core.Session
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("identity: base url is required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	return &Client{
		baseURL:        baseURL,
		apiKey:         apiKey,
		httpClient:     httpClient,
		requestTimeout: timeout,
		resolver: NewResolver(ResolverConfig{
			HTTPClient:     httpClient,
			RequestTimeout: timeout,
			UserEndpoint:   baseURL + "/user",
			APIKey:         apiKey,
			Now:            now,
		}),
		sendPolicy: cfg.SendPolicy,
		logger:     glog.Ensure(cfg.Logger),
		now:        now,
	}, nil
}

func (c *Client) SendMagicLink(ctx context.Context, address string, redirectTo string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("identity: address is required")
	}
	if c.sendPolicy != nil {
		if err := c.sendPolicy.BeforeSend(ctx, address); err != nil {
			var throttled ratelimit.ThrottledError
			if errors.As(err, &throttled) {
				return throttled.ToClientError()
			}
			return err
		}
	}

	endpoint := c.baseURL + "/otp"
	if redirectTo = strings.TrimSpace(redirectTo); redirectTo != "" {
		endpoint += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	body := map[string]any{
		"email":       address,
		"create_user": true,
	}
	err := c.doJSON(ctx, http.MethodPost, endpoint, body, "", nil)
	if c.sendPolicy != nil {
		status := http.StatusOK
		var apiErr *APIError
		if isAPIError(err, &apiErr) {
			status = apiErr.StatusCode
		}
		if policyErr := c.sendPolicy.AfterSend(ctx, address, status); policyErr != nil {
			c.logger.Warn("send policy update failed", "error", policyErr.Error())
		}
	}
	if err != nil {
		return c.wrap(err, "send magic link")
	}
	return nil
}

func (c *Client) Exchange(ctx context.Context, req core.ExchangeRequest) (core.Session, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return core.Session{}, fmt.Errorf("identity: verification token is required")
	}
	verificationType := req.Type.Canonical()
	if !verificationType.Recognized() {
		return core.Session{}, fmt.Errorf("identity: verification type %q is not recognized", req.Type)
	}

	body := map[string]any{
		"token_hash": token,
		"type":       string(verificationType),
	}
	if address := strings.TrimSpace(req.Address); address != "" {
		// Address-bound exchanges send the plain token with the email the
		// link was claimed for.
		delete(body, "token_hash")
		body["token"] = token
		body["email"] = address
	}

	var payload sessionResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/verify", body, "", &payload); err != nil {
		return core.Session{}, c.wrap(err, "verify token")
	}
	session, err := c.installSession(payload)
	if err != nil {
		return core.Session{}, err
	}
	return session, nil
}

func (c *Client) CurrentSession(ctx context.Context) (core.Session, bool, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session.IsZero() {
		return core.Session{}, false, nil
	}

	var user userResponse
	err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/user", nil, session.AccessToken, &user)
	if err != nil {
		var apiErr *APIError
		if isAPIError(err, &apiErr) && apiErr.CredentialRejection() {
			// The held tokens are no longer valid remotely.
			c.clearSession()
			return core.Session{}, false, nil
		}
		return core.Session{}, false, c.wrap(err, "fetch session")
	}

	if user.ID != "" {
		session.UserID = user.ID
	}
	if user.Email != "" {
		session.Address = user.Email
	}
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return session, true, nil
}

func (c *Client) SetSession(ctx context.Context, accessToken string, refreshToken string) (core.Session, error) {
	accessToken = strings.TrimSpace(accessToken)
	refreshToken = strings.TrimSpace(refreshToken)
	if accessToken == "" || refreshToken == "" {
		return core.Session{}, fmt.Errorf("identity: access and refresh tokens are required")
	}

	profile, err := c.resolver.Resolve(ctx, accessToken)
	if err != nil {
		var apiErr *APIError
		if isAPIError(err, &apiErr) && apiErr.CredentialRejection() {
			// Stale access token; the refresh token may still be good.
			return c.Refresh(ctx, refreshToken)
		}
		return core.Session{}, c.wrap(err, "install session")
	}

	session := core.Session{
		UserID:       profile.UserID,
		Address:      profile.Address,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    profile.ExpiresAt,
	}
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return session, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (core.Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return core.Session{}, fmt.Errorf("identity: refresh token is required")
	}
	body := map[string]any{"refresh_token": refreshToken}

	var payload sessionResponse
	err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/token?grant_type=refresh_token", body, "", &payload)
	if err != nil {
		return core.Session{}, c.wrap(err, "refresh session")
	}
	session, err := c.installSession(payload)
	if err != nil {
		return core.Session{}, err
	}
	return session, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session.IsZero() {
		return nil
	}
	err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/logout", nil, session.AccessToken, nil)
	if err != nil {
		var apiErr *APIError
		if isAPIError(err, &apiErr) && apiErr.CredentialRejection() {
			// The token is already dead remotely; the sign-out is effective.
			c.clearSession()
			return nil
		}
		// Keep the cached session so a retry can reach the logout endpoint.
		return c.wrap(err, "sign out")
	}
	c.clearSession()
	return nil
}

func (c *Client) installSession(payload sessionResponse) (core.Session, error) {
	if strings.TrimSpace(payload.AccessToken) == "" {
		return core.Session{}, c.wrap(&APIError{
			Message: "response missing access token",
			Cause:   ErrInvalidResponse,
		}, "install session")
	}
	session := core.Session{
		UserID:       strings.TrimSpace(payload.User.ID),
		Address:      strings.TrimSpace(payload.User.Email),
		AccessToken:  strings.TrimSpace(payload.AccessToken),
		RefreshToken: strings.TrimSpace(payload.RefreshToken),
	}
	if payload.ExpiresIn > 0 {
		session.ExpiresAt = c.now().UTC().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return session, nil
}

func (c *Client) clearSession() {
	c.mu.Lock()
	c.session = core.Session{}
	c.mu.Unlock()
}

type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	User         userResponse `json:"user"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type apiErrorResponse struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
}

func (r apiErrorResponse) message() string {
	for _, candidate := range []string{r.Msg, r.Message, r.ErrorDescription} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// doJSON runs one request against the identity API. Failures surface as
// *APIError: transport errors carry no status code, remote rejections carry
// the decoded error body.
func (c *Client) doJSON(
	ctx context.Context,
	method string,
	endpoint string,
	body map[string]any,
	accessToken string,
	out any,
) error {
	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx := ctx
	cancel := func() {}
	if c.requestTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
	}
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &APIError{Message: "encode request body", Cause: err}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(requestCtx, method, endpoint, reader)
	if err != nil {
		return &APIError{Message: "build request", Cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	bearer := strings.TrimSpace(accessToken)
	if bearer == "" {
		bearer = c.apiKey
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Message: "request failed", Cause: err}
	}
	defer res.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(res.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return &APIError{StatusCode: res.StatusCode, Message: "read response", Cause: readErr}
	}
	if int64(len(raw)) > maxResponseBodyBytes {
		return &APIError{
			StatusCode: res.StatusCode,
			Message:    fmt.Sprintf("response exceeds %d bytes", maxResponseBodyBytes),
			Cause:      ErrInvalidResponse,
		}
	}

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		var errPayload apiErrorResponse
		_ = json.Unmarshal(raw, &errPayload)
		message := errPayload.message()
		if message == "" {
			message = "identity service rejected the request"
		}
		return &APIError{
			StatusCode: res.StatusCode,
			ErrorCode:  strings.TrimSpace(errPayload.ErrorCode),
			Message:    message,
			Cause:      ErrTokenRejected,
		}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{StatusCode: res.StatusCode, Message: "decode response", Cause: err}
	}
	return nil
}

// wrap folds an API failure into the client error envelope. Credential
// rejections are terminal; everything else is a transient remote failure the
// caller may retry.
func (c *Client) wrap(err error, operation string) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if isAPIError(err, &apiErr) {
		c.logger.Error("identity request failed",
			"operation", operation,
			"status", apiErr.StatusCode,
			"error", apiErr.Error(),
		)
		if apiErr.CredentialRejection() {
			return core.CredentialError(operation + ": " + apiErr.Message)
		}
		return core.NetworkError(apiErr, operation)
	}
	return core.NetworkError(err, operation)
}

func isAPIError(err error, target **APIError) bool {
	return errors.As(err, target)
}

var _ core.IdentityService = (*Client)(nil)

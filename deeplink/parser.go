package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/todotomorrow/go-client/core"
)

var (
	ErrNotCallback = errors.New("deeplink: not an auth callback")

	// ErrTokensMissing covers every unusable callback: absent token,
	// unrecognized type, incomplete fragment pair. Callers surface it
	// without distinguishing the internal cause; the wrapped detail is
	// for logs only.
	ErrTokensMissing = errors.New("deeplink: callback tokens missing")
)

// tokenParamAliases lists the accepted spellings of the verification token
// parameter, primary name first.
var tokenParamAliases = []string{"token", "token_hash"}

const (
	paramAccessToken  = "access_token"
	paramRefreshToken = "refresh_token"
	paramType         = "type"
)

// Parser classifies URLs and extracts credential payloads. It is stateless;
// one instance serves the whole process.
type Parser struct {
	config core.CallbackConfig
}

func NewParser(cfg core.CallbackConfig) *Parser {
	return &Parser{
		config: core.CallbackConfig{
			Scheme:  strings.TrimSpace(cfg.Scheme),
			WebHost: strings.TrimSpace(cfg.WebHost),
			Path:    strings.Trim(strings.TrimSpace(cfg.Path), "/"),
		},
	}
}

// Parse decomposes a raw URL. Query and fragment parameters are kept in
// separate namespaces; the fragment is parsed as &-joined key=value pairs
// with percent-decoded values.
func (p *Parser) Parse(raw string) core.ParsedCallback {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return core.ParsedCallback{}
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		// Some callback links fail structured parsing but still carry the
		// path literal; classify on the raw string in that case.
		return core.ParsedCallback{
			IsAuthCallback: p.config.Path != "" && strings.Contains(raw, p.config.Path),
			QueryParams:    map[string]string{},
			FragmentParams: map[string]string{},
		}
	}

	callback := core.ParsedCallback{
		Scheme:         strings.ToLower(parsed.Scheme),
		Host:           strings.ToLower(parsed.Host),
		Path:           strings.Trim(parsed.Path, "/"),
		QueryParams:    flattenValues(parseParams(parsed.RawQuery)),
		FragmentParams: flattenValues(parseParams(parsed.EscapedFragment())),
	}
	callback.IsAuthCallback = p.classify(raw, callback)
	return callback
}

func (p *Parser) classify(raw string, callback core.ParsedCallback) bool {
	if p.config.Path == "" {
		return false
	}
	hostPath := strings.Trim(callback.Host+"/"+callback.Path, "/")
	if p.config.Scheme != "" && callback.Scheme == strings.ToLower(p.config.Scheme) {
		if strings.Contains(hostPath, p.config.Path) {
			return true
		}
	}
	if p.config.WebHost != "" && callback.Host == strings.ToLower(p.config.WebHost) {
		if strings.Contains(callback.Path, strings.Trim(p.config.Path, "/")) {
			return true
		}
	}
	return strings.Contains(raw, p.config.Path)
}

// ExtractCredentials applies the credential extraction policy in priority
// order: a complete fragment token pair wins over a query verification
// token; anything else is unusable.
func (p *Parser) ExtractCredentials(callback core.ParsedCallback) (core.CredentialPayload, error) {
	if !callback.IsAuthCallback {
		return core.CredentialPayload{}, ErrNotCallback
	}

	accessToken := strings.TrimSpace(callback.FragmentParams[paramAccessToken])
	refreshToken := strings.TrimSpace(callback.FragmentParams[paramRefreshToken])
	if accessToken != "" && refreshToken != "" {
		return core.CredentialPayload{
			Kind:         core.CredentialKindSessionTokens,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
		}, nil
	}

	token := firstParam(callback, tokenParamAliases)
	if token == "" {
		return core.CredentialPayload{}, fmt.Errorf("%w: no token parameter", ErrTokensMissing)
	}
	rawType := core.VerificationType(strings.ToLower(strings.TrimSpace(callback.Param(paramType))))
	if !rawType.Recognized() {
		// The raw value is preserved in the wrapped detail for logging but
		// never forwarded to verification.
		return core.CredentialPayload{}, fmt.Errorf("%w: unsupported type %q", ErrTokensMissing, rawType)
	}

	return core.CredentialPayload{
		Kind:  core.CredentialKindVerificationToken,
		Token: token,
		Type:  rawType,
	}, nil
}

func firstParam(callback core.ParsedCallback, keys []string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(callback.Param(key)); value != "" {
			return value
		}
	}
	return ""
}

func parseParams(raw string) url.Values {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return url.Values{}
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return url.Values{}
	}
	return values
}

func flattenValues(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for key, entries := range values {
		if len(entries) == 0 {
			continue
		}
		out[key] = entries[0]
	}
	return out
}

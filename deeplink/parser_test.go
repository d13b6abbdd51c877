package deeplink

import (
	"errors"
	"testing"

	"github.com/todotomorrow/go-client/core"
)

func testParser() *Parser {
	return NewParser(core.CallbackConfig{
		Scheme:  "todomorning",
		WebHost: "app.todotomorrow.com",
		Path:    "auth/callback",
	})
}

func TestParserClassification(t *testing.T) {
	parser := testParser()

	cases := []struct {
		name string
		url  string
		want bool
	}{
		{"custom scheme", "todomorning://auth/callback?token=abc&type=magiclink", true},
		{"web host", "https://app.todotomorrow.com/auth/callback?token=abc&type=email", true},
		{"raw substring fallback", "intent://auth/callback#token=abc", true},
		{"unrelated scheme", "todomorning://settings/profile", false},
		{"unrelated host", "https://example.com/login", false},
		{"empty", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			callback := parser.Parse(tc.url)
			if callback.IsAuthCallback != tc.want {
				t.Fatalf("classify %q: got %v, want %v", tc.url, callback.IsAuthCallback, tc.want)
			}
		})
	}
}

func TestParserSeparatesQueryAndFragmentNamespaces(t *testing.T) {
	parser := testParser()
	callback := parser.Parse("todomorning://auth/callback?token=query-token#token=frag-token&note=a%20b")

	if callback.QueryParams["token"] != "query-token" {
		t.Fatalf("query token: got %q", callback.QueryParams["token"])
	}
	if callback.FragmentParams["token"] != "frag-token" {
		t.Fatalf("fragment token: got %q", callback.FragmentParams["token"])
	}
	if callback.FragmentParams["note"] != "a b" {
		t.Fatalf("expected percent-decoded fragment value, got %q", callback.FragmentParams["note"])
	}
}

func TestExtractCredentialsFragmentTokensWin(t *testing.T) {
	parser := testParser()
	callback := parser.Parse("todomorning://auth/callback?token=abc&type=magiclink#access_token=at1&refresh_token=rt1")

	payload, err := parser.ExtractCredentials(callback)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if payload.Kind != core.CredentialKindSessionTokens {
		t.Fatalf("expected session tokens, got %q", payload.Kind)
	}
	if payload.AccessToken != "at1" || payload.RefreshToken != "rt1" {
		t.Fatalf("unexpected tokens: %+v", payload)
	}
}

func TestExtractCredentialsVerificationToken(t *testing.T) {
	parser := testParser()

	callback := parser.Parse("todomorning://auth/callback?token=abc123&type=magiclink")
	payload, err := parser.ExtractCredentials(callback)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if payload.Kind != core.CredentialKindVerificationToken {
		t.Fatalf("expected verification token, got %q", payload.Kind)
	}
	if payload.Token != "abc123" || payload.Type != core.VerificationTypeMagicLink {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	// token_hash is an accepted alias of token.
	callback = parser.Parse("todomorning://auth/callback?token_hash=hash9&type=email")
	payload, err = parser.ExtractCredentials(callback)
	if err != nil {
		t.Fatalf("extract alias: %v", err)
	}
	if payload.Token != "hash9" {
		t.Fatalf("expected alias token, got %q", payload.Token)
	}
}

func TestExtractCredentialsIncompleteFragmentFallsThrough(t *testing.T) {
	parser := testParser()

	// An access token without its refresh pair must not form a session
	// token payload; the query verification token applies instead.
	callback := parser.Parse("todomorning://auth/callback?token=abc&type=signup#access_token=at1")
	payload, err := parser.ExtractCredentials(callback)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if payload.Kind != core.CredentialKindVerificationToken {
		t.Fatalf("expected verification token fallback, got %q", payload.Kind)
	}
}

func TestExtractCredentialsRejections(t *testing.T) {
	parser := testParser()

	cases := []struct {
		name string
		url  string
		want error
	}{
		{"not a callback", "todomorning://settings", ErrNotCallback},
		{"no token", "todomorning://auth/callback?foo=bar", ErrTokensMissing},
		{"unrecognized type", "todomorning://auth/callback?token=abc&type=sms", ErrTokensMissing},
		{"token without type", "todomorning://auth/callback?token=abc", ErrTokensMissing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			callback := parser.Parse(tc.url)
			_, err := parser.ExtractCredentials(callback)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

package core

import (
	"fmt"
	"strings"
	"time"
)

// CallbackConfig describes the URL shapes recognized as auth callbacks.
// Path is the full path literal ("auth/callback") and doubles as the raw
// substring fallback for links that fail structured parsing.
type CallbackConfig struct {
	Scheme  string `koanf:"scheme" mapstructure:"scheme"`
	WebHost string `koanf:"web_host" mapstructure:"web_host"`
	Path    string `koanf:"path" mapstructure:"path"`
}

// RedirectTarget is the deep link the identity service embeds in outgoing
// magic-link emails.
func (c CallbackConfig) RedirectTarget() string {
	return strings.TrimSpace(c.Scheme) + "://" + strings.Trim(strings.TrimSpace(c.Path), "/")
}

// InitialURLConfig bounds the initial-URL query retry loop.
type InitialURLConfig struct {
	MaxAttempts int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay" mapstructure:"base_delay"`
}

// RefreshConfig bounds the background session refresh runner.
type RefreshConfig struct {
	ExpiryWindow   time.Duration `koanf:"expiry_window" mapstructure:"expiry_window"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
}

type Config struct {
	AppName             string           `koanf:"app_name" mapstructure:"app_name"`
	Callback            CallbackConfig   `koanf:"callback" mapstructure:"callback"`
	InitialURL          InitialURLConfig `koanf:"initial_url" mapstructure:"initial_url"`
	SessionRecheckDelay time.Duration    `koanf:"session_recheck_delay" mapstructure:"session_recheck_delay"`
	Refresh             RefreshConfig    `koanf:"refresh" mapstructure:"refresh"`
}

func DefaultConfig() Config {
	return Config{
		AppName: "todotomorrow",
		Callback: CallbackConfig{
			Scheme:  "todomorning",
			WebHost: "app.todotomorrow.com",
			Path:    "auth/callback",
		},
		InitialURL: InitialURLConfig{
			MaxAttempts: 3,
			BaseDelay:   150 * time.Millisecond,
		},
		SessionRecheckDelay: 750 * time.Millisecond,
		Refresh: RefreshConfig{
			ExpiryWindow:   5 * time.Minute,
			InitialBackoff: time.Second,
			MaxBackoff:     2 * time.Minute,
			MaxAttempts:    5,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.AppName) == "" {
		return fmt.Errorf("core: app_name is required")
	}
	if strings.TrimSpace(c.Callback.Scheme) == "" {
		return fmt.Errorf("core: callback.scheme is required")
	}
	if strings.TrimSpace(c.Callback.Path) == "" {
		return fmt.Errorf("core: callback.path is required")
	}
	if c.InitialURL.MaxAttempts < 1 {
		return fmt.Errorf("core: initial_url.max_attempts must be at least 1")
	}
	return nil
}

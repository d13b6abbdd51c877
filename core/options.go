package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

// DefaultErrorMapper normalizes any error into the client taxonomy.
func DefaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return clientErrorMapper(err)
}

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.AppName) != "" {
		layer["app_name"] = cfg.AppName
	}

	callback := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Callback.Scheme) != "" {
		callback["scheme"] = cfg.Callback.Scheme
	}
	if includeZero || strings.TrimSpace(cfg.Callback.WebHost) != "" {
		callback["web_host"] = cfg.Callback.WebHost
	}
	if includeZero || strings.TrimSpace(cfg.Callback.Path) != "" {
		callback["path"] = cfg.Callback.Path
	}
	if len(callback) > 0 {
		layer["callback"] = callback
	}

	initialURL := map[string]any{}
	if includeZero || cfg.InitialURL.MaxAttempts != 0 {
		initialURL["max_attempts"] = cfg.InitialURL.MaxAttempts
	}
	if includeZero || cfg.InitialURL.BaseDelay != 0 {
		initialURL["base_delay"] = cfg.InitialURL.BaseDelay
	}
	if len(initialURL) > 0 {
		layer["initial_url"] = initialURL
	}

	if includeZero || cfg.SessionRecheckDelay != 0 {
		layer["session_recheck_delay"] = cfg.SessionRecheckDelay
	}

	refresh := map[string]any{}
	if includeZero || cfg.Refresh.ExpiryWindow != 0 {
		refresh["expiry_window"] = cfg.Refresh.ExpiryWindow
	}
	if includeZero || cfg.Refresh.InitialBackoff != 0 {
		refresh["initial_backoff"] = cfg.Refresh.InitialBackoff
	}
	if includeZero || cfg.Refresh.MaxBackoff != 0 {
		refresh["max_backoff"] = cfg.Refresh.MaxBackoff
	}
	if includeZero || cfg.Refresh.MaxAttempts != 0 {
		refresh["max_attempts"] = cfg.Refresh.MaxAttempts
	}
	if len(refresh) > 0 {
		layer["refresh"] = refresh
	}

	return layer
}

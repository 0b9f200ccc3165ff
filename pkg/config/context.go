package config

import "context"

// ContextKey is the typed key used to stash configuration in a context.
type ContextKey string

const configKey ContextKey = "n8nkit:config"

// ContextWithConfig attaches a loaded configuration to the context.
func ContextWithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext returns the configuration attached to the context, or the
// built-in defaults when nothing was attached. Callers that need to know
// whether a config was explicitly loaded should use HasConfig.
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok && cfg != nil {
		return cfg
	}
	return Default()
}

// HasConfig reports whether the context carries an explicitly loaded
// configuration.
func HasConfig(ctx context.Context) bool {
	cfg, ok := ctx.Value(configKey).(*Config)
	return ok && cfg != nil
}

// Package config assembles the tool's configuration from defaults, config
// files, environment variables and flag overrides, in that precedence order
// (highest last). Files may be structured YAML/JSON with named profiles or
// flat key=value sets using the environment variable names.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the effective configuration for one invocation.
type Config struct {
	API   APIConfig   `koanf:"api"`
	Store StoreConfig `koanf:"store"`
	KB    KBConfig    `koanf:"kb"`
	Log   LogConfig   `koanf:"log"`
}

// APIConfig connects the remote client to an n8n instance.
type APIConfig struct {
	Host           string          `koanf:"host"            env:"N8N_HOST"            validate:"omitempty,url"`
	APIKey         SensitiveString `koanf:"api_key"         env:"N8N_API_KEY"         sensitive:"true"`
	Timeout        time.Duration   `koanf:"timeout"         env:"N8N_TIMEOUT"`
	WebhookTimeout time.Duration   `koanf:"webhook_timeout" env:"N8N_WEBHOOK_TIMEOUT"`
	Attempts       int             `koanf:"attempts"        env:"N8N_ATTEMPTS"        validate:"min=1,max=10"`
	SSRFMode       string          `koanf:"ssrf_mode"       env:"N8N_SSRF_MODE"       validate:"oneof=strict moderate off"`
}

// StoreConfig places and bounds the local version store.
type StoreConfig struct {
	Dir               string `koanf:"dir"                env:"N8N_DATA_DIR"`
	Keep              int    `koanf:"keep"               env:"N8N_VERSIONS_KEEP"      validate:"min=1,max=100"`
	StrictPermissions bool   `koanf:"strict_permissions" env:"N8N_STRICT_PERMISSIONS"`
}

// KBConfig points at the bundled node catalog.
type KBConfig struct {
	Path string `koanf:"path" env:"N8N_KB_PATH"`
}

// LogConfig shapes diagnostic output. Logs always go to stderr so --json
// envelopes stay parseable.
type LogConfig struct {
	Level   string `koanf:"level"    env:"N8N_LOG_LEVEL" validate:"oneof=debug info warn error"`
	Debug   bool   `koanf:"debug"    env:"N8N_DEBUG"`
	NoColor bool   `koanf:"no_color" env:"NO_COLOR"`
}

// EffectiveLevel resolves the log level, letting the debug switch win.
func (l LogConfig) EffectiveLevel() string {
	if l.Debug {
		return "debug"
	}
	return l.Level
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Timeout:        30 * time.Second,
			WebhookTimeout: 60 * time.Second,
			Attempts:       3,
			SSRFMode:       "strict",
		},
		Store: StoreConfig{
			Dir:  DefaultDataDir(),
			Keep: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultDataDir is the user data directory holding data.db and backups/,
// honoring XDG_DATA_HOME.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "n8nkit")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".n8nkit")
	}
	return filepath.Join(home, ".local", "share", "n8nkit")
}

// BackupsDir is where pre-mutation workflow JSONs are written.
func (c *Config) BackupsDir() string {
	return filepath.Join(c.Store.Dir, "backups")
}

// ResolveKBPath locates the node catalog: an explicit path wins, then a
// nodes.db next to the executable (how releases ship it), then one in the
// data directory. The returned path may not exist; the KB reports that as a
// coded error when opening.
func (c *Config) ResolveKBPath() string {
	if c.KB.Path != "" {
		return c.KB.Path
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "nodes.db")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return filepath.Join(c.Store.Dir, "nodes.db")
}

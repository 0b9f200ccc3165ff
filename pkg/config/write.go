package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/n8nkit/n8nkit/engine/core"
)

// DefaultConfigPath returns where `config set` writes when no file exists
// yet: the XDG config location.
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "n8nkit", "config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "n8nkit", "config.yaml")
	}
	return ".n8nkit.yaml"
}

// SetFileValue updates one dotted key in a YAML config file, creating the
// file and its directory when missing. A file that ends up holding a secret
// is tightened to 0600.
func SetFileValue(path, key, value string) error {
	if EnvVarFor(key) == "" {
		return core.NewError(core.KindUsage, core.CodeInvalidArgument,
			"unknown config key %q; known keys: %s", key, strings.Join(KnownPaths(), ", "))
	}

	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return core.WrapError(core.KindConfig, core.CodeConfigInvalid, err, "config: parse %s", path)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return core.WrapError(core.KindIO, core.CodeIOError, err, "config: read %s", path)
	}

	setNested(doc, strings.Split(key, "."), value)

	out, err := yaml.Marshal(doc)
	if err != nil {
		return core.WrapError(core.KindInternal, core.CodeInternal, err, "config: encode %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return core.WrapError(core.KindIO, core.CodeIOError, err, "config: create directory for %s", path)
	}
	mode := fs.FileMode(0o644)
	if containsSecret(doc) {
		mode = 0o600
	}
	if err := os.WriteFile(path, out, mode); err != nil {
		return core.WrapError(core.KindIO, core.CodeIOError, err, "config: write %s", path)
	}
	if containsSecret(doc) {
		// WriteFile's mode only applies on create; existing files need the
		// tightening applied explicitly.
		if err := os.Chmod(path, 0o600); err != nil {
			return core.WrapError(core.KindIO, core.CodeIOError, err, "config: chmod %s", path)
		}
	}
	return nil
}

// UnsetFileValue removes one dotted key from a YAML config file. Missing
// files and missing keys are not errors.
func UnsetFileValue(path, key string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return core.WrapError(core.KindIO, core.CodeIOError, err, "config: read %s", path)
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return core.WrapError(core.KindConfig, core.CodeConfigInvalid, err, "config: parse %s", path)
	}
	if !unsetNested(doc, strings.Split(key, ".")) {
		return nil
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return core.WrapError(core.KindInternal, core.CodeInternal, err, "config: encode %s", path)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return core.WrapError(core.KindIO, core.CodeIOError, err, "config: write %s", path)
	}
	return nil
}

func setNested(doc map[string]any, parts []string, value string) {
	if len(parts) == 1 {
		doc[parts[0]] = value
		return
	}
	child, ok := doc[parts[0]].(map[string]any)
	if !ok {
		child = map[string]any{}
		doc[parts[0]] = child
	}
	setNested(child, parts[1:], value)
}

func unsetNested(doc map[string]any, parts []string) bool {
	if len(parts) == 1 {
		if _, ok := doc[parts[0]]; !ok {
			return false
		}
		delete(doc, parts[0])
		return true
	}
	child, ok := doc[parts[0]].(map[string]any)
	if !ok {
		return false
	}
	removed := unsetNested(child, parts[1:])
	if removed && len(child) == 0 {
		delete(doc, parts[0])
	}
	return removed
}

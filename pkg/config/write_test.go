package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nkit/n8nkit/engine/core"
)

func TestSetFileValue(t *testing.T) {
	t.Run("Should create the file and nested structure on first set", func(t *testing.T) {
		isolateDirs(t)
		path := filepath.Join(t.TempDir(), "n8nkit", "config.yaml")
		require.NoError(t, SetFileValue(path, "api.host", "https://set.example.test"))

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{File: path, SkipEnv: true})
		require.NoError(t, err)
		assert.Equal(t, "https://set.example.test", cfg.API.Host)
	})

	t.Run("Should preserve unrelated keys on update", func(t *testing.T) {
		isolateDirs(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, SetFileValue(path, "api.host", "https://keep.example.test"))
		require.NoError(t, SetFileValue(path, "log.level", "warn"))

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{File: path, SkipEnv: true})
		require.NoError(t, err)
		assert.Equal(t, "https://keep.example.test", cfg.API.Host)
		assert.Equal(t, "warn", cfg.Log.Level)
	})

	t.Run("Should tighten the file to 0600 once it holds a secret", func(t *testing.T) {
		isolateDirs(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, SetFileValue(path, "api.host", "https://keep.example.test"))
		require.NoError(t, os.Chmod(path, 0o644))
		require.NoError(t, SetFileValue(path, "api.api_key", "n8n_api_supersecret"))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("Should reject an unknown key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		err := SetFileValue(path, "api.bogus", "x")
		require.Error(t, err)
		coreErr, ok := core.AsError(err)
		require.True(t, ok)
		assert.Equal(t, core.KindUsage, coreErr.Kind)
		assert.Equal(t, core.CodeInvalidArgument, coreErr.Code)
		assert.Contains(t, err.Error(), "api.host")
	})
}

func TestUnsetFileValue(t *testing.T) {
	t.Run("Should remove the key and prune an emptied section", func(t *testing.T) {
		isolateDirs(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, SetFileValue(path, "api.host", "https://gone.example.test"))
		require.NoError(t, SetFileValue(path, "log.level", "warn"))
		require.NoError(t, UnsetFileValue(path, "api.host"))

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{File: path, SkipEnv: true})
		require.NoError(t, err)
		assert.Empty(t, cfg.API.Host)
		assert.Equal(t, "warn", cfg.Log.Level)
	})

	t.Run("Should ignore a missing file or key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, UnsetFileValue(path, "api.host"))
		require.NoError(t, SetFileValue(path, "log.level", "warn"))
		require.NoError(t, UnsetFileValue(path, "api.host"))
	})
}

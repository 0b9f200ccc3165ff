package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nkit/n8nkit/engine/core"
)

// isolateDirs points file discovery at empty temp directories so a
// developer's real config never leaks into a test.
func isolateDirs(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", filepath.Join(dir, "home"))
}

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func requireConfigCode(t *testing.T, err error, kind core.Kind, code string) {
	t.Helper()
	require.Error(t, err)
	coreErr, ok := core.AsError(err)
	require.True(t, ok, "expected a coded error, got %v", err)
	assert.Equal(t, kind, coreErr.Kind)
	assert.Equal(t, code, coreErr.Code)
}

func TestLoader_Defaults(t *testing.T) {
	t.Run("Should produce the built-in defaults when nothing else is set", func(t *testing.T) {
		isolateDirs(t)
		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{WorkDir: t.TempDir(), SkipEnv: true})
		require.NoError(t, err)

		assert.Equal(t, 30*time.Second, cfg.API.Timeout)
		assert.Equal(t, 60*time.Second, cfg.API.WebhookTimeout)
		assert.Equal(t, 3, cfg.API.Attempts)
		assert.Equal(t, "strict", cfg.API.SSRFMode)
		assert.Equal(t, 10, cfg.Store.Keep)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Empty(t, cfg.API.Host)
		assert.False(t, cfg.API.APIKey.IsSet())
		assert.Equal(t, SourceDefault, loader.Source("api.attempts"))
		assert.Empty(t, loader.Warnings())
	})
}

func TestLoader_Precedence(t *testing.T) {
	t.Run("Should layer xdg, project, env and flags lowest to highest", func(t *testing.T) {
		isolateDirs(t)
		workDir := t.TempDir()
		writeConfigFile(t, filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "n8nkit", "config.yaml"),
			"api:\n  host: https://xdg.example.test\nlog:\n  level: debug\n")
		writeConfigFile(t, filepath.Join(workDir, ".n8nkit.yaml"),
			"api:\n  host: https://project.example.test\n")
		t.Setenv("N8N_HOST", "https://env.example.test")

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{
			WorkDir:   workDir,
			Overrides: map[string]any{"api.host": "https://flag.example.test"},
		})
		require.NoError(t, err)

		assert.Equal(t, "https://flag.example.test", cfg.API.Host)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, SourceFlag, loader.Source("api.host"))
		assert.Equal(t, SourceXDG, loader.Source("log.level"))
		assert.Equal(t, SourceDefault, loader.Source("store.keep"))
	})

	t.Run("Should let the project file win over the xdg file", func(t *testing.T) {
		isolateDirs(t)
		workDir := t.TempDir()
		writeConfigFile(t, filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "n8nkit", "config.yaml"),
			"api:\n  host: https://xdg.example.test\n")
		writeConfigFile(t, filepath.Join(workDir, ".n8nkit.yaml"),
			"api:\n  host: https://project.example.test\n")

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{WorkDir: workDir, SkipEnv: true})
		require.NoError(t, err)
		assert.Equal(t, "https://project.example.test", cfg.API.Host)
		assert.Equal(t, SourceProject, loader.Source("api.host"))
	})
}

func TestLoader_ExplicitFile(t *testing.T) {
	t.Run("Should replace discovery with the named file", func(t *testing.T) {
		isolateDirs(t)
		workDir := t.TempDir()
		writeConfigFile(t, filepath.Join(workDir, ".n8nkit.yaml"),
			"api:\n  host: https://project.example.test\n")
		explicit := filepath.Join(t.TempDir(), "other.yaml")
		writeConfigFile(t, explicit, "api:\n  host: https://explicit.example.test\n")

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{File: explicit, WorkDir: workDir, SkipEnv: true})
		require.NoError(t, err)
		assert.Equal(t, "https://explicit.example.test", cfg.API.Host)
		assert.Equal(t, SourceFile, loader.Source("api.host"))
	})

	t.Run("Should fail when the named file does not exist", func(t *testing.T) {
		isolateDirs(t)
		loader := NewLoader()
		_, err := loader.Load(t.Context(), LoadOptions{File: filepath.Join(t.TempDir(), "nope.yaml"), SkipEnv: true})
		requireConfigCode(t, err, core.KindConfig, core.CodeConfigInvalid)
	})
}

func TestLoader_Profiles(t *testing.T) {
	const doc = `api:
  host: https://base.example.test
default_profile: staging
profiles:
  staging:
    api:
      host: https://staging.example.test
  prod:
    api:
      host: https://prod.example.test
    store:
      keep: 25
`

	t.Run("Should follow the file's default_profile pointer", func(t *testing.T) {
		isolateDirs(t)
		workDir := t.TempDir()
		writeConfigFile(t, filepath.Join(workDir, ".n8nkit.yaml"), doc)

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{WorkDir: workDir, SkipEnv: true})
		require.NoError(t, err)
		assert.Equal(t, "https://staging.example.test", cfg.API.Host)
	})

	t.Run("Should apply an explicitly requested profile", func(t *testing.T) {
		isolateDirs(t)
		workDir := t.TempDir()
		writeConfigFile(t, filepath.Join(workDir, ".n8nkit.yaml"), doc)

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{WorkDir: workDir, Profile: "prod", SkipEnv: true})
		require.NoError(t, err)
		assert.Equal(t, "https://prod.example.test", cfg.API.Host)
		assert.Equal(t, 25, cfg.Store.Keep)
	})

	t.Run("Should fail when a requested profile exists in no file", func(t *testing.T) {
		isolateDirs(t)
		workDir := t.TempDir()
		writeConfigFile(t, filepath.Join(workDir, ".n8nkit.yaml"), doc)

		loader := NewLoader()
		_, err := loader.Load(t.Context(), LoadOptions{WorkDir: workDir, Profile: "missing", SkipEnv: true})
		requireConfigCode(t, err, core.KindConfig, core.CodeConfigInvalid)
		assert.Contains(t, err.Error(), `profile "missing"`)
	})

	t.Run("Should pick the profile from N8N_PROFILE when no flag is given", func(t *testing.T) {
		isolateDirs(t)
		workDir := t.TempDir()
		writeConfigFile(t, filepath.Join(workDir, ".n8nkit.yaml"), doc)
		t.Setenv("N8N_PROFILE", "prod")

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{WorkDir: workDir})
		require.NoError(t, err)
		assert.Equal(t, "https://prod.example.test", cfg.API.Host)
	})
}

func TestLoader_FlatFiles(t *testing.T) {
	t.Run("Should read key=value files using the environment variable names", func(t *testing.T) {
		isolateDirs(t)
		workDir := t.TempDir()
		writeConfigFile(t, filepath.Join(workDir, ".n8nkit.env"),
			"N8N_HOST=https://flat.example.test\nN8N_VERSIONS_KEEP=20\nUNKNOWN_KEY=whatever\n")

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{WorkDir: workDir, SkipEnv: true})
		require.NoError(t, err)
		assert.Equal(t, "https://flat.example.test", cfg.API.Host)
		assert.Equal(t, 20, cfg.Store.Keep)
		require.Len(t, loader.Warnings(), 1)
		assert.Contains(t, loader.Warnings()[0], "unknown key UNKNOWN_KEY")
	})
}

func TestLoader_FormatSniffing(t *testing.T) {
	t.Run("Should detect structured content in an extensionless file", func(t *testing.T) {
		isolateDirs(t)
		path := filepath.Join(t.TempDir(), "conf")
		writeConfigFile(t, path, "api:\n  host: https://sniffed.example.test\n")

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{File: path, SkipEnv: true})
		require.NoError(t, err)
		assert.Equal(t, "https://sniffed.example.test", cfg.API.Host)
	})

	t.Run("Should fall back to key=value parsing when the content is not a document", func(t *testing.T) {
		isolateDirs(t)
		path := filepath.Join(t.TempDir(), "conf")
		writeConfigFile(t, path, "N8N_ATTEMPTS=5\nN8N_SSRF_MODE=off\n")

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{File: path, SkipEnv: true})
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.API.Attempts)
		assert.Equal(t, "off", cfg.API.SSRFMode)
	})
}

func TestLoader_Environment(t *testing.T) {
	t.Run("Should map recognized variables onto config paths", func(t *testing.T) {
		isolateDirs(t)
		t.Setenv("N8N_API_KEY", "n8n_api_supersecret")
		t.Setenv("N8N_SSRF_MODE", "moderate")
		t.Setenv("N8N_TIMEOUT", "45")

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{WorkDir: t.TempDir()})
		require.NoError(t, err)
		assert.Equal(t, "n8n_api_supersecret", cfg.API.APIKey.Value())
		assert.Equal(t, "moderate", cfg.API.SSRFMode)
		assert.Equal(t, 45*time.Second, cfg.API.Timeout)
		assert.Equal(t, SourceEnv, loader.Source("api.api_key"))
	})

	t.Run("Should treat a non-empty NO_COLOR as a color kill switch", func(t *testing.T) {
		isolateDirs(t)
		t.Setenv("NO_COLOR", "1")

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{WorkDir: t.TempDir()})
		require.NoError(t, err)
		assert.True(t, cfg.Log.NoColor)
	})

	t.Run("Should ignore an empty NO_COLOR", func(t *testing.T) {
		isolateDirs(t)
		t.Setenv("NO_COLOR", "")

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{WorkDir: t.TempDir()})
		require.NoError(t, err)
		assert.False(t, cfg.Log.NoColor)
	})

	t.Run("Should treat an exported-but-empty variable as unset", func(t *testing.T) {
		isolateDirs(t)
		workDir := t.TempDir()
		writeConfigFile(t, filepath.Join(workDir, ".n8nkit.yaml"),
			"api:\n  host: http://localhost:5678\n")
		t.Setenv("N8N_HOST", "")

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{WorkDir: workDir})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:5678", cfg.API.Host)
	})
}

func TestLoader_Durations(t *testing.T) {
	t.Run("Should accept duration strings and bare second counts", func(t *testing.T) {
		isolateDirs(t)
		workDir := t.TempDir()
		writeConfigFile(t, filepath.Join(workDir, ".n8nkit.yaml"),
			"api:\n  timeout: 750ms\n  webhook_timeout: 90\n")

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{WorkDir: workDir, SkipEnv: true})
		require.NoError(t, err)
		assert.Equal(t, 750*time.Millisecond, cfg.API.Timeout)
		assert.Equal(t, 90*time.Second, cfg.API.WebhookTimeout)
	})
}

func TestLoader_SecretFilePermissions(t *testing.T) {
	secretDoc := "api:\n  api_key: n8n_api_supersecret\n"

	t.Run("Should stay quiet about a 0600 secret file", func(t *testing.T) {
		isolateDirs(t)
		workDir := t.TempDir()
		path := filepath.Join(workDir, ".n8nkit.yaml")
		writeConfigFile(t, path, secretDoc)

		loader := NewLoader()
		_, err := loader.Load(t.Context(), LoadOptions{WorkDir: workDir, SkipEnv: true})
		require.NoError(t, err)
		assert.Empty(t, loader.Warnings())
	})

	t.Run("Should warn about a group-readable secret file", func(t *testing.T) {
		isolateDirs(t)
		workDir := t.TempDir()
		path := filepath.Join(workDir, ".n8nkit.yaml")
		writeConfigFile(t, path, secretDoc)
		require.NoError(t, os.Chmod(path, 0o644))

		loader := NewLoader()
		cfg, err := loader.Load(t.Context(), LoadOptions{WorkDir: workDir, SkipEnv: true})
		require.NoError(t, err)
		assert.Equal(t, "n8n_api_supersecret", cfg.API.APIKey.Value())
		require.Len(t, loader.Warnings(), 1)
		assert.Contains(t, loader.Warnings()[0], "0600")
	})

	t.Run("Should refuse a loose secret file under strict permissions", func(t *testing.T) {
		isolateDirs(t)
		workDir := t.TempDir()
		path := filepath.Join(workDir, ".n8nkit.yaml")
		writeConfigFile(t, path, secretDoc+"store:\n  strict_permissions: true\n")
		require.NoError(t, os.Chmod(path, 0o644))

		loader := NewLoader()
		_, err := loader.Load(t.Context(), LoadOptions{WorkDir: workDir, SkipEnv: true})
		requireConfigCode(t, err, core.KindConfig, core.CodeConfigInvalid)
		assert.Contains(t, err.Error(), "0600")
	})

	t.Run("Should not flag loose files that carry no secret", func(t *testing.T) {
		isolateDirs(t)
		workDir := t.TempDir()
		path := filepath.Join(workDir, ".n8nkit.yaml")
		writeConfigFile(t, path, "log:\n  level: warn\n")
		require.NoError(t, os.Chmod(path, 0o644))

		loader := NewLoader()
		_, err := loader.Load(t.Context(), LoadOptions{WorkDir: workDir, SkipEnv: true})
		require.NoError(t, err)
		assert.Empty(t, loader.Warnings())
	})
}

func TestLoader_Validation(t *testing.T) {
	t.Run("Should reject an unknown log level", func(t *testing.T) {
		isolateDirs(t)
		workDir := t.TempDir()
		writeConfigFile(t, filepath.Join(workDir, ".n8nkit.yaml"), "log:\n  level: trace\n")

		loader := NewLoader()
		_, err := loader.Load(t.Context(), LoadOptions{WorkDir: workDir, SkipEnv: true})
		requireConfigCode(t, err, core.KindConfig, core.CodeConfigInvalid)
	})

	t.Run("Should reject an out-of-range retry budget", func(t *testing.T) {
		isolateDirs(t)
		workDir := t.TempDir()
		writeConfigFile(t, filepath.Join(workDir, ".n8nkit.yaml"), "api:\n  attempts: 99\n")

		loader := NewLoader()
		_, err := loader.Load(t.Context(), LoadOptions{WorkDir: workDir, SkipEnv: true})
		requireConfigCode(t, err, core.KindConfig, core.CodeConfigInvalid)
	})

	t.Run("Should reject a malformed document", func(t *testing.T) {
		isolateDirs(t)
		workDir := t.TempDir()
		writeConfigFile(t, filepath.Join(workDir, ".n8nkit.yaml"), "api: [broken\n")

		loader := NewLoader()
		_, err := loader.Load(t.Context(), LoadOptions{WorkDir: workDir, SkipEnv: true})
		requireConfigCode(t, err, core.KindConfig, core.CodeConfigInvalid)
	})
}

func TestLoader_Accessors(t *testing.T) {
	t.Run("Should expose effective values by dotted path", func(t *testing.T) {
		isolateDirs(t)
		loader := NewLoader()
		_, err := loader.Load(t.Context(), LoadOptions{
			WorkDir:   t.TempDir(),
			SkipEnv:   true,
			Overrides: map[string]any{"api.host": "https://flag.example.test"},
		})
		require.NoError(t, err)

		host, ok := loader.Value("api.host")
		require.True(t, ok)
		assert.Equal(t, "https://flag.example.test", host)
		_, ok = loader.Value("api.nonsense")
		assert.False(t, ok)
		assert.Contains(t, loader.All(), "store.keep")
		assert.Equal(t, SourceFlag, loader.Sources()["api.host"])
	})
}

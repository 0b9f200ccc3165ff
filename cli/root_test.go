package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/core"
	testhelpers "github.com/n8nkit/n8nkit/test/helpers"
)

const pingDoc = `{
	"name": "Ping",
	"nodes": [
		{"name": "Start", "type": "n8n-nodes-base.manualTrigger", "typeVersion": 1, "position": [0, 0], "parameters": {}}
	],
	"connections": {}
}`

const hookToHTTPDoc = `{
	"name": "Hook to HTTP",
	"nodes": [
		{"name": "Webhook", "type": "n8n-nodes-base.webhook", "typeVersion": 2, "position": [0, 0],
		 "parameters": {"path": "inbound", "httpMethod": "POST"}},
		{"name": "Call API", "type": "n8n-nodes-base.httpRequest", "typeVersion": 4.2, "position": [200, 0],
		 "parameters": {"method": "GET", "url": "https://example.com/api"}}
	],
	"connections": {"Webhook": {"main": [[{"node": "Call API", "type": "main", "index": 0}]]}}
}`

// runCommand executes one invocation against a fresh command tree with
// captured output, applying the same failure rendering Execute does.
func runCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := Root()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	if stdin != "" {
		root.SetIn(strings.NewReader(stdin))
	}
	root.SetArgs(args)
	executed, err := root.ExecuteContextC(context.Background())
	if err != nil {
		err = classifyParseError(err)
		if !helpers.IsEmitted(err) {
			err = helpers.OutputFromCommand(executed).Failure(err)
		}
	}
	return stdout.String(), stderr.String(), err
}

func decodeEnvelope(t *testing.T, out string) (helpers.Envelope, map[string]any) {
	t.Helper()
	var env helpers.Envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env), "output: %s", out)
	data, _ := env.Data.(map[string]any)
	return env, data
}

// isolate keeps a test away from the developer's real config, data and
// instance, whatever the surrounding environment carries.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("N8N_DATA_DIR", dir)
	t.Setenv("N8N_KB_PATH", "")
	t.Setenv("N8N_HOST", "")
	t.Setenv("N8N_API_KEY", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	return dir
}

func writeDoc(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func TestExecute(t *testing.T) {
	t.Run("Should exit zero for the version command", func(t *testing.T) {
		isolate(t)
		assert.Equal(t, core.ExitOK, Execute(context.Background(), []string{"version"}))
	})
	t.Run("Should map an unknown command to the usage exit code", func(t *testing.T) {
		isolate(t)
		assert.Equal(t, core.ExitUsage, Execute(context.Background(), []string{"definitely-not-a-command"}))
	})
	t.Run("Should map a missing argument to the usage exit code", func(t *testing.T) {
		isolate(t)
		assert.Equal(t, core.ExitUsage, Execute(context.Background(), []string{"workflows", "get"}))
	})
}

func TestClassifyParseError(t *testing.T) {
	t.Run("Should pass coded errors through untouched", func(t *testing.T) {
		coded := core.NewError(core.KindData, core.CodeNotFound, "gone")
		assert.Same(t, coded, classifyParseError(coded).(*core.Error))
	})
	t.Run("Should code unknown commands", func(t *testing.T) {
		err := classifyParseError(errors.New(`unknown command "bogus" for "n8nkit"`))
		coded, ok := core.AsError(err)
		require.True(t, ok)
		assert.Equal(t, core.KindUsage, coded.Kind)
		assert.Equal(t, core.CodeUnknownCommand, coded.Code)
	})
	t.Run("Should code argument-count failures", func(t *testing.T) {
		err := classifyParseError(errors.New("accepts 1 arg(s), received 0"))
		coded, ok := core.AsError(err)
		require.True(t, ok)
		assert.Equal(t, core.CodeMissingArgument, coded.Code)
	})
	t.Run("Should code unknown flags", func(t *testing.T) {
		err := classifyParseError(errors.New("unknown flag: --bogus"))
		coded, ok := core.AsError(err)
		require.True(t, ok)
		assert.Equal(t, core.CodeInvalidArgument, coded.Code)
	})
	t.Run("Should leave other errors unclassified", func(t *testing.T) {
		plain := errors.New("boom")
		assert.Same(t, plain, classifyParseError(plain))
	})
}

func TestVersionCommand(t *testing.T) {
	t.Run("Should emit build information as an envelope", func(t *testing.T) {
		isolate(t)
		out, _, err := runCommand(t, "", "version", "--json")
		require.NoError(t, err)
		env, data := decodeEnvelope(t, out)
		assert.True(t, env.Success)
		assert.Equal(t, "dev", data["version"])
	})
}

func TestVersionsCommands(t *testing.T) {
	t.Run("Should snapshot, list, inspect and preview a rollback", func(t *testing.T) {
		isolate(t)
		doc := writeDoc(t, pingDoc)

		out, _, err := runCommand(t, "", "versions", "snapshot", "wf-1", "--file", doc, "--json")
		require.NoError(t, err)
		env, data := decodeEnvelope(t, out)
		require.True(t, env.Success)
		assert.Equal(t, "wf-1", data["workflowId"])
		assert.Equal(t, float64(1), data["versionNumber"])

		out, _, err = runCommand(t, "", "versions", "list", "wf-1", "--json")
		require.NoError(t, err)
		_, data = decodeEnvelope(t, out)
		metas, ok := data["versions"].([]any)
		require.True(t, ok)
		assert.Len(t, metas, 1)

		out, _, err = runCommand(t, "", "versions", "get", "wf-1", "1", "--json")
		require.NoError(t, err)
		env, data = decodeEnvelope(t, out)
		require.True(t, env.Success)
		assert.Equal(t, float64(1), data["versionNumber"])
		assert.Equal(t, "Ping", data["workflowName"])

		out, _, err = runCommand(t, "", "versions", "rollback", "wf-1", "--to-version", "1", "--no-push", "--json")
		require.NoError(t, err)
		env, data = decodeEnvelope(t, out)
		require.True(t, env.Success)
		assert.Equal(t, true, data["preview"])
	})
	t.Run("Should report a missing version with the right code", func(t *testing.T) {
		isolate(t)
		out, _, err := runCommand(t, "", "versions", "get", "wf-1", "9", "--json")
		require.Error(t, err)
		assert.True(t, helpers.IsEmitted(err))
		assert.Equal(t, core.ExitData, core.ExitCodeFor(err))
		env, _ := decodeEnvelope(t, out)
		require.NotNil(t, env.Error)
		assert.Equal(t, core.CodeVersionNotFound, env.Error.Code)
	})
	t.Run("Should report store statistics", func(t *testing.T) {
		isolate(t)
		doc := writeDoc(t, pingDoc)
		_, _, err := runCommand(t, "", "versions", "snapshot", "wf-1", "--file", doc, "--json")
		require.NoError(t, err)
		out, _, err := runCommand(t, "", "versions", "stats", "--json")
		require.NoError(t, err)
		_, data := decodeEnvelope(t, out)
		assert.Equal(t, float64(1), data["workflows"])
		assert.Equal(t, float64(1), data["snapshots"])
	})
	t.Run("Should prune with force and report the kept count", func(t *testing.T) {
		isolate(t)
		doc := writeDoc(t, pingDoc)
		for range [3]struct{}{} {
			_, _, err := runCommand(t, "", "versions", "snapshot", "wf-1", "--file", doc, "--json")
			require.NoError(t, err)
		}
		out, _, err := runCommand(t, "", "versions", "prune", "wf-1", "--keep", "1", "--force", "--json")
		require.NoError(t, err)
		env, data := decodeEnvelope(t, out)
		require.True(t, env.Success)
		assert.Equal(t, float64(2), data["removed"])
		assert.Equal(t, float64(1), data["kept"])
	})
}

func TestNodesCommands(t *testing.T) {
	t.Run("Should describe a catalog node", func(t *testing.T) {
		isolate(t)
		t.Setenv("N8N_KB_PATH", testhelpers.TempCatalog(t))
		out, _, err := runCommand(t, "", "nodes", "info", "httpRequest", "--json")
		require.NoError(t, err)
		env, data := decodeEnvelope(t, out)
		require.True(t, env.Success)
		assert.Equal(t, "n8n-nodes-base.httpRequest", data["type"])
	})
	t.Run("Should search the catalog", func(t *testing.T) {
		isolate(t)
		t.Setenv("N8N_KB_PATH", testhelpers.TempCatalog(t))
		out, _, err := runCommand(t, "", "nodes", "search", "http", "--json")
		require.NoError(t, err)
		env, data := decodeEnvelope(t, out)
		require.True(t, env.Success)
		hits, ok := data["nodes"].([]any)
		require.True(t, ok)
		assert.NotEmpty(t, hits)
	})
	t.Run("Should list breaking changes for a node", func(t *testing.T) {
		isolate(t)
		t.Setenv("N8N_KB_PATH", testhelpers.TempCatalog(t))
		out, _, err := runCommand(t, "",
			"nodes", "breaking-changes", "httpRequest", "--from", "1", "--json")
		require.NoError(t, err)
		env, data := decodeEnvelope(t, out)
		require.True(t, env.Success)
		changes, ok := data["changes"].([]any)
		require.True(t, ok)
		assert.NotEmpty(t, changes)
	})
	t.Run("Should fail with a config code when the catalog is absent", func(t *testing.T) {
		isolate(t)
		out, _, err := runCommand(t, "", "nodes", "search", "http", "--json")
		require.Error(t, err)
		assert.True(t, helpers.IsEmitted(err))
		assert.Equal(t, core.ExitConfig, core.ExitCodeFor(err))
		env, _ := decodeEnvelope(t, out)
		require.NotNil(t, env.Error)
		assert.Equal(t, core.CodeKBMissing, env.Error.Code)
	})
}

func TestTemplatesCommands(t *testing.T) {
	t.Run("Should search templates by text", func(t *testing.T) {
		isolate(t)
		t.Setenv("N8N_KB_PATH", testhelpers.TempCatalog(t))
		out, _, err := runCommand(t, "", "templates", "search", "slack", "--json")
		require.NoError(t, err)
		env, data := decodeEnvelope(t, out)
		require.True(t, env.Success)
		hits, ok := data["templates"].([]any)
		require.True(t, ok)
		require.NotEmpty(t, hits)
	})
	t.Run("Should fetch one template by id", func(t *testing.T) {
		isolate(t)
		t.Setenv("N8N_KB_PATH", testhelpers.TempCatalog(t))
		out, _, err := runCommand(t, "", "templates", "get", "101", "--json")
		require.NoError(t, err)
		env, data := decodeEnvelope(t, out)
		require.True(t, env.Success)
		assert.Equal(t, float64(101), data["id"])
	})
}

func TestWorkflowsValidate(t *testing.T) {
	t.Run("Should pass a well-formed workflow", func(t *testing.T) {
		isolate(t)
		t.Setenv("N8N_KB_PATH", testhelpers.TempCatalog(t))
		doc := writeDoc(t, hookToHTTPDoc)
		out, _, err := runCommand(t, "", "workflows", "validate", "--file", doc, "--json")
		require.NoError(t, err)
		var result map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &result), "output: %s", out)
		assert.Equal(t, true, result["valid"])
	})
	t.Run("Should fail an unknown node type with the data exit code", func(t *testing.T) {
		isolate(t)
		t.Setenv("N8N_KB_PATH", testhelpers.TempCatalog(t))
		broken := strings.Replace(hookToHTTPDoc, "n8n-nodes-base.httpRequest", "n8n-nodes-base.doesNotExist", 1)
		doc := writeDoc(t, broken)
		out, _, err := runCommand(t, "", "workflows", "validate", "--file", doc, "--json")
		require.Error(t, err)
		assert.True(t, helpers.IsEmitted(err))
		assert.Equal(t, core.ExitData, core.ExitCodeFor(err))
		var result map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &result), "output: %s", out)
		assert.Equal(t, false, result["valid"])
	})
}

func TestConfigCommands(t *testing.T) {
	t.Run("Should set, read and unset a value in the target file", func(t *testing.T) {
		isolate(t)
		cfgPath := filepath.Join(t.TempDir(), "config.yaml")

		out, _, err := runCommand(t, "",
			"config", "set", "api.host", "http://localhost:5678", "--config", cfgPath, "--json")
		require.NoError(t, err)
		env, _ := decodeEnvelope(t, out)
		require.True(t, env.Success)

		out, _, err = runCommand(t, "", "config", "get", "api.host", "--config", cfgPath, "--json")
		require.NoError(t, err)
		_, data := decodeEnvelope(t, out)
		assert.Equal(t, "http://localhost:5678", data["value"])
		assert.Equal(t, "file", data["source"])

		_, _, err = runCommand(t, "", "config", "unset", "api.host", "--config", cfgPath, "--json")
		require.NoError(t, err)
		out, _, err = runCommand(t, "", "config", "get", "api.host", "--config", cfgPath, "--json")
		require.NoError(t, err)
		_, data = decodeEnvelope(t, out)
		assert.Empty(t, data["value"])
	})
	t.Run("Should redact secrets everywhere", func(t *testing.T) {
		isolate(t)
		cfgPath := filepath.Join(t.TempDir(), "config.yaml")
		out, _, err := runCommand(t, "",
			"config", "set", "api.api_key", "super-secret", "--config", cfgPath, "--json")
		require.NoError(t, err)
		assert.NotContains(t, out, "super-secret")

		out, _, err = runCommand(t, "", "config", "get", "api.api_key", "--config", cfgPath, "--json")
		require.NoError(t, err)
		_, data := decodeEnvelope(t, out)
		assert.Equal(t, "[REDACTED]", data["value"])

		out, _, err = runCommand(t, "", "config", "list", "--config", cfgPath, "--json")
		require.NoError(t, err)
		assert.NotContains(t, out, "super-secret")
	})
	t.Run("Should reject unknown keys", func(t *testing.T) {
		isolate(t)
		_, _, err := runCommand(t, "", "config", "get", "bogus.key", "--json")
		require.Error(t, err)
		assert.Equal(t, core.ExitUsage, core.ExitCodeFor(err))
	})
}

func TestHealthCommand(t *testing.T) {
	t.Run("Should degrade per component and still exit zero", func(t *testing.T) {
		isolate(t)
		out, _, err := runCommand(t, "", "health", "--json")
		require.NoError(t, err)
		env, data := decodeEnvelope(t, out)
		require.True(t, env.Success)
		instance, _ := data["instance"].(map[string]any)
		catalog, _ := data["catalog"].(map[string]any)
		store, _ := data["store"].(map[string]any)
		assert.Equal(t, "unconfigured", instance["status"])
		assert.Equal(t, "missing", catalog["status"])
		assert.Equal(t, "ok", store["status"])
	})
	t.Run("Should report the catalog when one is present", func(t *testing.T) {
		isolate(t)
		t.Setenv("N8N_KB_PATH", testhelpers.TempCatalog(t))
		out, _, err := runCommand(t, "", "health", "--json")
		require.NoError(t, err)
		_, data := decodeEnvelope(t, out)
		catalog, _ := data["catalog"].(map[string]any)
		assert.Equal(t, "ok", catalog["status"])
	})
}

func TestAuthCommands(t *testing.T) {
	t.Run("Should persist a key without echoing it", func(t *testing.T) {
		isolate(t)
		cfgPath := filepath.Join(t.TempDir(), "config.yaml")
		out, _, err := runCommand(t, "", "auth", "set-key", "k-secret-1", "--config", cfgPath, "--json")
		require.NoError(t, err)
		assert.NotContains(t, out, "k-secret-1")
		env, data := decodeEnvelope(t, out)
		require.True(t, env.Success)
		assert.Equal(t, cfgPath, data["file"])

		raw, err := os.ReadFile(cfgPath)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "k-secret-1")

		out, _, err = runCommand(t, "", "auth", "status", "--config", cfgPath, "--json")
		require.NoError(t, err)
		_, data = decodeEnvelope(t, out)
		assert.Equal(t, true, data["keySet"])
		assert.Equal(t, "unconfigured", data["status"])
	})
}

func TestRemoteCommandsWithoutHost(t *testing.T) {
	t.Run("Should fail workflow list with a config code", func(t *testing.T) {
		isolate(t)
		out, _, err := runCommand(t, "", "workflows", "list", "--json")
		require.Error(t, err)
		assert.True(t, helpers.IsEmitted(err))
		assert.Equal(t, core.ExitConfig, core.ExitCodeFor(err))
		env, _ := decodeEnvelope(t, out)
		require.NotNil(t, env.Error)
		assert.Equal(t, core.CodeConfigInvalid, env.Error.Code)
	})
}

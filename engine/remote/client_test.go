package remote_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/remote"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

func newTestClient(t *testing.T, handler http.Handler, mutate ...func(*remote.Config)) *remote.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := remote.Config{
		BaseURL:  srv.URL,
		APIKey:   "test-key",
		Timeout:  5 * time.Second,
		SSRFMode: remote.GuardOff,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	client, err := remote.New(cfg)
	require.NoError(t, err)
	return client
}

func requireCode(t *testing.T, err error, kind core.Kind, code string) *core.Error {
	t.Helper()
	require.Error(t, err)
	coded, ok := core.AsError(err)
	require.True(t, ok, "expected a coded error, got %v", err)
	assert.Equal(t, kind, coded.Kind)
	assert.Equal(t, code, coded.Code)
	return coded
}

func TestNew(t *testing.T) {
	t.Run("Should require a host and an api key", func(t *testing.T) {
		_, err := remote.New(remote.Config{APIKey: "k"})
		requireCode(t, err, core.KindConfig, core.CodeConfigInvalid)

		_, err = remote.New(remote.Config{BaseURL: "https://n8n.example.test"})
		requireCode(t, err, core.KindConfig, core.CodeConfigInvalid)
	})

	t.Run("Should reject non-http schemes", func(t *testing.T) {
		_, err := remote.New(remote.Config{BaseURL: "ftp://n8n.example.test", APIKey: "k"})
		requireCode(t, err, core.KindConfig, core.CodeConfigInvalid)
	})

	t.Run("Should normalize the api prefix", func(t *testing.T) {
		for _, raw := range []string{
			"https://n8n.example.test",
			"https://n8n.example.test/",
			"https://n8n.example.test/api/v1",
			"https://n8n.example.test/api/v1/",
		} {
			client, err := remote.New(remote.Config{BaseURL: raw, APIKey: "k"})
			require.NoError(t, err, raw)
			assert.Equal(t, "https://n8n.example.test/api/v1", client.BaseURL(), raw)
		}
	})

	t.Run("Should keep a subpath in front of the api prefix", func(t *testing.T) {
		client, err := remote.New(remote.Config{BaseURL: "https://host.example.test/n8n/", APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, "https://host.example.test/n8n/api/v1", client.BaseURL())
	})
}

func TestClient_Retry(t *testing.T) {
	t.Run("Should retry 5xx and succeed", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "test-key", r.Header.Get("X-N8N-API-KEY"))
			assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "n8nkit/"))
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"data":[{"id":"1","name":"Orders"}]}`))
		}))

		page, err := client.ListWorkflows(t.Context(), remote.ListWorkflowsOptions{})
		require.NoError(t, err)
		require.Len(t, page.Data, 1)
		assert.Equal(t, "Orders", page.Data[0].Name)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("Should stop after the attempt ceiling", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"message":"maintenance"}`))
		}))

		_, err := client.ListWorkflows(t.Context(), remote.ListWorkflowsOptions{})
		coded := requireCode(t, err, core.KindUnavailable, core.CodeServerError)
		assert.Contains(t, coded.Message, "maintenance")
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("Should not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"request must have a name"}`))
		}))

		_, err := client.GetWorkflow(t.Context(), "abc")
		coded := requireCode(t, err, core.KindData, core.CodeInvalidArgument)
		assert.Contains(t, coded.Message, "request must have a name")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Should map auth and permission answers", func(t *testing.T) {
		var status atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(int(status.Load()))
			w.Write([]byte(`{"message":"denied"}`))
		}))

		status.Store(http.StatusUnauthorized)
		_, err := client.GetWorkflow(t.Context(), "abc")
		coded := requireCode(t, err, core.KindAuth, core.CodeUnauthorized)
		assert.NotContains(t, coded.Message, "test-key")

		status.Store(http.StatusForbidden)
		_, err = client.GetWorkflow(t.Context(), "abc")
		requireCode(t, err, core.KindPermission, core.CodePermissionDenied)

		status.Store(http.StatusNotFound)
		_, err = client.GetWorkflow(t.Context(), "abc")
		requireCode(t, err, core.KindData, core.CodeNotFound)
	})

	t.Run("Should map an unreadable success body to a protocol error", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`this is not json`))
		}))

		_, err := client.ListWorkflows(t.Context(), remote.ListWorkflowsOptions{})
		requireCode(t, err, core.KindProtocol, core.CodeAPIProtocol)
	})

	t.Run("Should report unreachable hosts", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		client, err := remote.New(remote.Config{BaseURL: url, APIKey: "k", Attempts: 2, Timeout: time.Second})
		require.NoError(t, err)

		_, err = client.GetWorkflow(t.Context(), "abc")
		requireCode(t, err, core.KindUnavailable, core.CodeHostUnreachable)
	})
}

func TestClient_RateGate(t *testing.T) {
	t.Run("Should drain rate limits cumulatively across concurrent calls", func(t *testing.T) {
		var mu sync.Mutex
		limited := map[string]bool{}
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
			require.Len(t, parts, 4) // api/v1/workflows/{id}/activate minus the leading slash
			id := parts[2]

			mu.Lock()
			throttle := (id == "c" || id == "e") && !limited[id]
			limited[id] = true
			mu.Unlock()

			if throttle {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"message":"rate limit exceeded"}`))
				return
			}
			w.Write([]byte(`{"id":"` + id + `","active":true}`))
		}))

		ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
		results := make([]*workflow.Workflow, len(ids))
		errs := make([]error, len(ids))

		start := time.Now()
		var group errgroup.Group
		group.SetLimit(4)
		for i, id := range ids {
			group.Go(func() error {
				results[i], errs[i] = client.ActivateWorkflow(t.Context(), id)
				return nil
			})
		}
		require.NoError(t, group.Wait())
		elapsed := time.Since(start)

		for i, id := range ids {
			require.NoError(t, errs[i], id)
			assert.Equal(t, id, results[i].ID)
			assert.True(t, results[i].Active)
		}
		// Two Retry-After:1 answers must stack, not overlap.
		assert.GreaterOrEqual(t, elapsed, 2*time.Second)
	})

	t.Run("Should surface the rate limit when attempts run out", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		}), func(cfg *remote.Config) {
			cfg.Attempts = 1
		})

		_, err := client.ActivateWorkflow(t.Context(), "a")
		requireCode(t, err, core.KindTemporary, core.CodeRateLimited)
	})
}

// endpointRecorder captures the last request and answers from a canned map
// keyed by "METHOD path".
type endpointRecorder struct {
	mu     sync.Mutex
	method string
	path   string
	query  string
	body   []byte
	canned map[string]string
}

func (rec *endpointRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rec.mu.Lock()
	rec.method = r.Method
	rec.path = r.URL.Path
	rec.query = r.URL.RawQuery
	rec.body = body
	answer, ok := rec.canned[r.Method+" "+r.URL.Path]
	rec.mu.Unlock()
	if !ok {
		answer = `{}`
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(answer))
}

func (rec *endpointRecorder) last() (method, path, query string, body []byte) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.method, rec.path, rec.query, rec.body
}

func TestClient_Endpoints(t *testing.T) {
	rec := &endpointRecorder{canned: map[string]string{
		"GET /api/v1/workflows":     `{"data":[{"id":"1","name":"Orders"}],"nextCursor":""}`,
		"GET /api/v1/workflows/abc": `{"id":"abc","name":"Orders"}`,
		"POST /api/v1/workflows":    `{"id":"new-1","name":"Orders"}`,
		"PUT /api/v1/workflows/abc": `{"id":"abc","name":"Orders v2"}`,

		"POST /api/v1/workflows/abc/activate":   `{"id":"abc","active":true}`,
		"POST /api/v1/workflows/abc/deactivate": `{"id":"abc","active":false}`,
		"PUT /api/v1/workflows/abc/tags":        `[{"id":"t1","name":"ops"}]`,

		"GET /api/v1/executions":          `{"data":[{"id":7,"status":"error","workflowId":"abc"}],"nextCursor":"n2"}`,
		"GET /api/v1/executions/7":        `{"id":7,"status":"error","finished":true}`,
		"POST /api/v1/executions/7/retry": `{"id":8,"retryOf":7,"status":"running"}`,

		"GET /api/v1/credentials":                 `{"data":[{"id":"c1","name":"Slack","type":"slackApi"}]}`,
		"POST /api/v1/credentials":                `{"id":"c1","name":"Slack","type":"slackApi","data":{"token":"xoxb-1"}}`,
		"GET /api/v1/credentials/schema/slackApi": `{"type":"object","properties":{"token":{"type":"string"}}}`,

		"GET /api/v1/variables": `{"data":[{"id":"v1","key":"REGION","value":"eu"}]}`,

		"GET /api/v1/tags":    `{"data":[{"id":"t1","name":"ops"}]}`,
		"POST /api/v1/tags":   `{"id":"t2","name":"orders"}`,
		"PUT /api/v1/tags/t2": `{"id":"t2","name":"orders-eu"}`,

		"POST /api/v1/audit": `{"Credentials Risk Report":{"risk":"credentials"}}`,
		"GET /healthz":       `{"status":"ok"}`,
	}}
	client := newTestClient(t, rec)
	ctx := t.Context()

	t.Run("Should list workflows with filters", func(t *testing.T) {
		active := true
		_, err := client.ListWorkflows(ctx, remote.ListWorkflowsOptions{
			Active: &active,
			Tags:   []string{"ops", "orders"},
			Limit:  400,
			Cursor: "c1",
		})
		require.NoError(t, err)
		method, path, query, _ := rec.last()
		assert.Equal(t, http.MethodGet, method)
		assert.Equal(t, "/api/v1/workflows", path)
		assert.Contains(t, query, "active=true")
		assert.Contains(t, query, "tags=ops%2Corders")
		assert.Contains(t, query, "limit=250") // clamped to the API maximum
		assert.Contains(t, query, "cursor=c1")
	})

	t.Run("Should fetch a workflow by id", func(t *testing.T) {
		wf, err := client.GetWorkflow(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "abc", wf.ID)

		_, err = client.GetWorkflow(ctx, "  ")
		requireCode(t, err, core.KindUsage, core.CodeMissingArgument)
	})

	t.Run("Should send only editable fields on create", func(t *testing.T) {
		wf := &workflow.Workflow{
			ID:     "local-id",
			Name:   "Orders",
			Active: true,
			Nodes: []*workflow.Node{{
				Name:        "Hook",
				Type:        "n8n-nodes-base.webhook",
				TypeVersion: 2,
				Position:    []float64{0, 0},
				Parameters:  map[string]any{"path": "orders"},
			}},
			Connections: workflow.Connections{},
		}
		created, err := client.CreateWorkflow(ctx, wf)
		require.NoError(t, err)
		assert.Equal(t, "new-1", created.ID)

		method, path, _, body := rec.last()
		assert.Equal(t, http.MethodPost, method)
		assert.Equal(t, "/api/v1/workflows", path)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Contains(t, payload, "name")
		assert.Contains(t, payload, "nodes")
		assert.Contains(t, payload, "connections")
		assert.Contains(t, payload, "settings")
		assert.NotContains(t, payload, "id")
		assert.NotContains(t, payload, "active")
		assert.NotContains(t, payload, "tags")
	})

	t.Run("Should reject creating a nameless workflow", func(t *testing.T) {
		_, err := client.CreateWorkflow(ctx, &workflow.Workflow{})
		requireCode(t, err, core.KindData, core.CodeMissingWorkflowName)
	})

	t.Run("Should update, delete and toggle workflows", func(t *testing.T) {
		_, err := client.UpdateWorkflow(ctx, "abc", &workflow.Workflow{Name: "Orders v2"})
		require.NoError(t, err)
		method, path, _, _ := rec.last()
		assert.Equal(t, http.MethodPut, method)
		assert.Equal(t, "/api/v1/workflows/abc", path)

		require.NoError(t, client.DeleteWorkflow(ctx, "abc"))
		method, path, _, _ = rec.last()
		assert.Equal(t, http.MethodDelete, method)
		assert.Equal(t, "/api/v1/workflows/abc", path)

		activated, err := client.ActivateWorkflow(ctx, "abc")
		require.NoError(t, err)
		assert.True(t, activated.Active)
		_, path, _, _ = rec.last()
		assert.Equal(t, "/api/v1/workflows/abc/activate", path)

		deactivated, err := client.DeactivateWorkflow(ctx, "abc")
		require.NoError(t, err)
		assert.False(t, deactivated.Active)
		_, path, _, _ = rec.last()
		assert.Equal(t, "/api/v1/workflows/abc/deactivate", path)
	})

	t.Run("Should replace workflow tags", func(t *testing.T) {
		tags, err := client.UpdateWorkflowTags(ctx, "abc", []string{"t1"})
		require.NoError(t, err)
		require.Len(t, tags, 1)
		assert.Equal(t, "ops", tags[0].Name)

		method, path, _, body := rec.last()
		assert.Equal(t, http.MethodPut, method)
		assert.Equal(t, "/api/v1/workflows/abc/tags", path)
		assert.JSONEq(t, `[{"id":"t1"}]`, string(body))
	})

	t.Run("Should list and inspect executions", func(t *testing.T) {
		page, err := client.ListExecutions(ctx, remote.ListExecutionsOptions{
			WorkflowID:  "abc",
			Status:      "error",
			IncludeData: true,
			Limit:       20,
		})
		require.NoError(t, err)
		require.Len(t, page.Data, 1)
		assert.Equal(t, int64(7), page.Data[0].ID)
		assert.Equal(t, "n2", page.NextCursor)
		_, _, query, _ := rec.last()
		assert.Contains(t, query, "workflowId=abc")
		assert.Contains(t, query, "status=error")
		assert.Contains(t, query, "includeData=true")
		assert.Contains(t, query, "limit=20")

		exec, err := client.GetExecution(ctx, 7, false)
		require.NoError(t, err)
		assert.True(t, exec.Finished)

		require.NoError(t, client.DeleteExecution(ctx, 7))
		method, path, _, _ := rec.last()
		assert.Equal(t, http.MethodDelete, method)
		assert.Equal(t, "/api/v1/executions/7", path)
	})

	t.Run("Should retry an execution against the latest workflow", func(t *testing.T) {
		exec, err := client.RetryExecution(ctx, 7, true)
		require.NoError(t, err)
		assert.Equal(t, int64(8), exec.ID)
		require.NotNil(t, exec.RetryOf)
		assert.Equal(t, int64(7), *exec.RetryOf)

		method, path, _, body := rec.last()
		assert.Equal(t, http.MethodPost, method)
		assert.Equal(t, "/api/v1/executions/7/retry", path)
		assert.JSONEq(t, `{"loadWorkflow":true}`, string(body))
	})

	t.Run("Should manage credentials", func(t *testing.T) {
		page, err := client.ListCredentials(ctx, 10, "")
		require.NoError(t, err)
		require.Len(t, page.Data, 1)
		assert.Equal(t, "slackApi", page.Data[0].Type)

		created, err := client.CreateCredential(ctx, &remote.Credential{
			Name: "Slack",
			Type: "slackApi",
			Data: map[string]any{"token": "xoxb-1"},
		})
		require.NoError(t, err)
		assert.Equal(t, "c1", created.ID)
		assert.Nil(t, created.Data, "secret payload must not survive the round trip")

		_, err = client.CreateCredential(ctx, &remote.Credential{Name: "Slack", Type: "slackApi"})
		requireCode(t, err, core.KindUsage, core.CodeMissingArgument)

		schema, err := client.CredentialSchema(ctx, "slackApi")
		require.NoError(t, err)
		assert.Contains(t, schema, "properties")

		require.NoError(t, client.DeleteCredential(ctx, "c1"))
		method, path, _, _ := rec.last()
		assert.Equal(t, http.MethodDelete, method)
		assert.Equal(t, "/api/v1/credentials/c1", path)
	})

	t.Run("Should manage variables", func(t *testing.T) {
		page, err := client.ListVariables(ctx, 0, "")
		require.NoError(t, err)
		require.Len(t, page.Data, 1)
		assert.Equal(t, "REGION", page.Data[0].Key)

		require.NoError(t, client.CreateVariable(ctx, "REGION", "us"))
		method, path, _, body := rec.last()
		assert.Equal(t, http.MethodPost, method)
		assert.Equal(t, "/api/v1/variables", path)
		assert.JSONEq(t, `{"key":"REGION","value":"us"}`, string(body))

		require.NoError(t, client.UpdateVariable(ctx, "v1", "REGION", "eu"))
		_, path, _, _ = rec.last()
		assert.Equal(t, "/api/v1/variables/v1", path)

		require.NoError(t, client.DeleteVariable(ctx, "v1"))

		err = client.CreateVariable(ctx, " ", "x")
		requireCode(t, err, core.KindUsage, core.CodeMissingArgument)
	})

	t.Run("Should manage tags", func(t *testing.T) {
		page, err := client.ListTags(ctx, 0, "")
		require.NoError(t, err)
		require.Len(t, page.Data, 1)

		tag, err := client.CreateTag(ctx, "orders")
		require.NoError(t, err)
		assert.Equal(t, "t2", tag.ID)

		renamed, err := client.UpdateTag(ctx, "t2", "orders-eu")
		require.NoError(t, err)
		assert.Equal(t, "orders-eu", renamed.Name)

		require.NoError(t, client.DeleteTag(ctx, "t2"))
		method, path, _, _ := rec.last()
		assert.Equal(t, http.MethodDelete, method)
		assert.Equal(t, "/api/v1/tags/t2", path)
	})

	t.Run("Should generate an audit report", func(t *testing.T) {
		report, err := client.GenerateAudit(ctx, remote.AuditOptions{
			Categories:            []string{"credentials", "nodes"},
			DaysAbandonedWorkflow: 30,
		})
		require.NoError(t, err)
		assert.Contains(t, report, "Credentials Risk Report")

		method, path, _, body := rec.last()
		assert.Equal(t, http.MethodPost, method)
		assert.Equal(t, "/api/v1/audit", path)
		assert.JSONEq(t,
			`{"additionalOptions":{"categories":["credentials","nodes"],"daysAbandonedWorkflow":30}}`,
			string(body))

		_, err = client.GenerateAudit(ctx, remote.AuditOptions{Categories: []string{"everything"}})
		requireCode(t, err, core.KindUsage, core.CodeInvalidArgument)
	})

	t.Run("Should probe health at the server root", func(t *testing.T) {
		health, err := client.CheckHealth(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ok", health.Status)

		_, path, _, _ := rec.last()
		assert.Equal(t, "/healthz", path)
	})
}

func TestClient_ListAllWorkflows(t *testing.T) {
	t.Run("Should follow cursors until exhausted", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("cursor") {
			case "":
				w.Write([]byte(`{"data":[{"id":"1","name":"A"},{"id":"2","name":"B"}],"nextCursor":"p2"}`))
			case "p2":
				w.Write([]byte(`{"data":[{"id":"3","name":"C"}],"nextCursor":""}`))
			default:
				w.WriteHeader(http.StatusBadRequest)
			}
		}))

		all, err := client.ListAllWorkflows(t.Context(), remote.ListWorkflowsOptions{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		names := []string{all[0].Name, all[1].Name, all[2].Name}
		assert.Equal(t, []string{"A", "B", "C"}, names)
	})
}

func TestParseRetryAfterViaGate(t *testing.T) {
	t.Run("Should honor a delta-seconds Retry-After", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(`{"id":"a","active":true}`))
		}))

		start := time.Now()
		_, err := client.ActivateWorkflow(t.Context(), "a")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), time.Second)
		assert.Equal(t, int32(2), calls.Load())
	})
}

package diff_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/diff"
	"github.com/n8nkit/n8nkit/engine/workflow"
	"github.com/n8nkit/n8nkit/test/helpers"
)

func node(name, nodeType string, version float64, params map[string]any) *workflow.Node {
	if params == nil {
		params = map[string]any{}
	}
	return &workflow.Node{
		Name:        name,
		Type:        nodeType,
		TypeVersion: version,
		Position:    []float64{0, 0},
		Parameters:  params,
	}
}

func newWorkflow(nodes ...*workflow.Node) *workflow.Workflow {
	return &workflow.Workflow{
		Name:        "Test Workflow",
		Nodes:       nodes,
		Connections: workflow.Connections{},
	}
}

func intp(i int) *int { return &i }

func apply(t *testing.T, wf *workflow.Workflow, ops []diff.Operation) *diff.Result {
	t.Helper()
	res, err := diff.New(nil).Apply(context.Background(), wf, ops, diff.Options{})
	require.NoError(t, err)
	return res
}

func TestEngine_NodeOps(t *testing.T) {
	t.Run("Should add a node resolving its short type and defaulting typeVersion", func(t *testing.T) {
		k := helpers.OpenSeededKB(t)
		wf := newWorkflow(node("Start", "n8n-nodes-base.manualTrigger", 1, nil))
		res, err := diff.New(k).Apply(context.Background(), wf, []diff.Operation{{
			Type: diff.OpAddNode,
			Node: map[string]any{
				"name":     "Fetch",
				"type":     "httpRequest",
				"position": []any{float64(200), float64(100)},
			},
		}}, diff.Options{})
		require.NoError(t, err)
		require.True(t, res.OK())
		added := res.Workflow.Node("Fetch")
		require.NotNil(t, added)
		assert.Equal(t, "n8n-nodes-base.httpRequest", added.Type)
		assert.InDelta(t, 4.2, added.TypeVersion, 0.001)
		assert.NotNil(t, added.Parameters)
	})

	t.Run("Should reject addNode without position or with a taken name", func(t *testing.T) {
		wf := newWorkflow(node("Fetch", "n8n-nodes-base.httpRequest", 4.2, nil))
		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpAddNode, Node: map[string]any{"name": "Fetch", "type": "n8n-nodes-base.set", "position": []any{0.0, 0.0}}},
			{Type: diff.OpAddNode, Node: map[string]any{"name": "NoPos", "type": "n8n-nodes-base.set"}},
		})
		assert.Equal(t, 0, res.Applied)
		assert.Equal(t, 2, res.Failed)
		assert.Nil(t, res.Workflow)
		assert.Contains(t, res.Errors[0].Message, "already exists")
		assert.Contains(t, res.Errors[1].Message, "position")
	})

	t.Run("Should remove a node together with its connections", func(t *testing.T) {
		wf := newWorkflow(
			node("Start", "n8n-nodes-base.manualTrigger", 1, nil),
			node("Fetch", "n8n-nodes-base.httpRequest", 4.2, nil),
		)
		wf.Connections.Add("Start", workflow.ConnMain, 0, workflow.Endpoint{Node: "Fetch", Type: workflow.ConnMain})
		res := apply(t, wf, []diff.Operation{{Type: diff.OpRemoveNode, Name: "Fetch"}})
		require.True(t, res.OK())
		assert.False(t, res.Workflow.HasNode("Fetch"))
		assert.Empty(t, res.Workflow.Connections)
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "dropped 1 connection")
	})

	t.Run("Should set update and delete parameters by path", func(t *testing.T) {
		wf := newWorkflow(node("Fetch", "n8n-nodes-base.httpRequest", 4.2, map[string]any{
			"url":     "https://old.example.com",
			"options": map[string]any{"timeout": 5000.0, "redirect": "follow"},
		}))
		res := apply(t, wf, []diff.Operation{{
			Type: diff.OpUpdateNode,
			Name: "Fetch",
			Updates: map[string]any{
				"parameters.url":             "https://new.example.com",
				"parameters.options.timeout": nil,
			},
		}})
		require.True(t, res.OK())
		params := res.Workflow.Node("Fetch").Parameters
		assert.Equal(t, "https://new.example.com", params["url"])
		opts := params["options"].(map[string]any)
		assert.NotContains(t, opts, "timeout")
		assert.Equal(t, "follow", opts["redirect"])
	})

	t.Run("Should deep-merge a parameters object keeping untouched siblings", func(t *testing.T) {
		wf := newWorkflow(node("Fetch", "n8n-nodes-base.httpRequest", 4.2, map[string]any{
			"url":     "https://api.example.com",
			"options": map[string]any{"timeout": 5000.0, "redirect": "follow"},
		}))
		res := apply(t, wf, []diff.Operation{{
			Type: diff.OpUpdateNode,
			Name: "Fetch",
			Updates: map[string]any{
				"parameters": map[string]any{
					"method":  "POST",
					"options": map[string]any{"timeout": 10000.0},
				},
			},
		}})
		require.True(t, res.OK())
		params := res.Workflow.Node("Fetch").Parameters
		assert.Equal(t, "POST", params["method"])
		assert.Equal(t, "https://api.example.com", params["url"])
		opts := params["options"].(map[string]any)
		assert.Equal(t, 10000.0, opts["timeout"])
		assert.Equal(t, "follow", opts["redirect"])
	})

	t.Run("Should rename a node and rewrite connections for later operations", func(t *testing.T) {
		wf := newWorkflow(
			node("Start", "n8n-nodes-base.manualTrigger", 1, nil),
			node("Fetch", "n8n-nodes-base.httpRequest", 4.2, nil),
			node("Store", "n8n-nodes-base.set", 3.4, nil),
		)
		wf.Connections.Add("Start", workflow.ConnMain, 0, workflow.Endpoint{Node: "Fetch", Type: workflow.ConnMain})
		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpUpdateNode, Name: "Fetch", Updates: map[string]any{"name": "Fetch Orders"}},
			// Still addressed by the old name: the rename map resolves it.
			{Type: diff.OpAddConnection, Source: "Fetch", Target: "Store"},
		})
		require.True(t, res.OK(), "errors: %v", res.Errors)
		assert.Equal(t, map[string]string{"Fetch": "Fetch Orders"}, res.Renames)

		got := res.Workflow
		assert.True(t, got.HasNode("Fetch Orders"))
		assert.False(t, got.HasNode("Fetch"))
		assert.Equal(t, "Fetch Orders", got.Connections["Start"][workflow.ConnMain][0][0].Node)
		assert.Equal(t, "Store", got.Connections["Fetch Orders"][workflow.ConnMain][0][0].Node)
	})

	t.Run("Should reject renaming onto an existing node name", func(t *testing.T) {
		wf := newWorkflow(
			node("Fetch", "n8n-nodes-base.httpRequest", 4.2, nil),
			node("Store", "n8n-nodes-base.set", 3.4, nil),
		)
		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpUpdateNode, Name: "Fetch", Updates: map[string]any{"name": "Store"}},
		})
		assert.Equal(t, 1, res.Failed)
		assert.Contains(t, res.Errors[0].Message, "already exists")
	})

	t.Run("Should reject unsupported update keys without touching the node", func(t *testing.T) {
		wf := newWorkflow(node("Fetch", "n8n-nodes-base.httpRequest", 4.2, nil))
		res, err := diff.New(nil).Apply(context.Background(), wf, []diff.Operation{{
			Type: diff.OpUpdateNode,
			Name: "Fetch",
			Updates: map[string]any{
				"parameters.url": "https://new.example.com",
				"wiring":         "nope",
			},
		}}, diff.Options{ContinueOnError: true})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed)
		assert.Contains(t, res.Errors[0].Message, `"wiring"`)
		// The valid key in the same failed op must not leak through.
		assert.Nil(t, res.Workflow.Node("Fetch").Parameters["url"])
	})

	t.Run("Should move nodes absolutely and relatively", func(t *testing.T) {
		wf := newWorkflow(node("Fetch", "n8n-nodes-base.httpRequest", 4.2, nil))
		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpMoveNode, Name: "Fetch", Position: []float64{400, 300}},
			{Type: diff.OpMoveNode, Name: "Fetch", Offset: []float64{-100, 50}},
		})
		require.True(t, res.OK())
		assert.Equal(t, []float64{300, 350}, res.Workflow.Node("Fetch").Position)
	})

	t.Run("Should reject moveNode with both or neither of position and offset", func(t *testing.T) {
		wf := newWorkflow(node("Fetch", "n8n-nodes-base.httpRequest", 4.2, nil))
		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpMoveNode, Name: "Fetch"},
			{Type: diff.OpMoveNode, Name: "Fetch", Position: []float64{1, 2}, Offset: []float64{3, 4}},
		})
		assert.Equal(t, 2, res.Failed)
	})

	t.Run("Should toggle disabled with a warning when already in that state", func(t *testing.T) {
		wf := newWorkflow(node("Fetch", "n8n-nodes-base.httpRequest", 4.2, nil))
		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpDisableNode, Name: "Fetch"},
			{Type: diff.OpDisableNode, Name: "Fetch"},
		})
		require.True(t, res.OK())
		assert.True(t, res.Workflow.Node("Fetch").Disabled)
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "already disabled")

		res = apply(t, res.Workflow, []diff.Operation{{Type: diff.OpEnableNode, Name: "Fetch"}})
		require.True(t, res.OK())
		assert.False(t, res.Workflow.Node("Fetch").Disabled)
	})
}

func TestEngine_ConnectionOps(t *testing.T) {
	t.Run("Should route if branches to outlets 0 and 1", func(t *testing.T) {
		wf := newWorkflow(
			node("IF", workflow.TypeIf, 2.2, nil),
			node("Success", "n8n-nodes-base.set", 3.4, nil),
			node("Failure", "n8n-nodes-base.set", 3.4, nil),
		)
		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpAddConnection, Source: "IF", Target: "Success", Branch: "true"},
			{Type: diff.OpAddConnection, Source: "IF", Target: "Failure", Branch: "false"},
		})
		require.True(t, res.OK(), "errors: %v", res.Errors)

		slots := res.Workflow.Connections["IF"][workflow.ConnMain]
		require.Len(t, slots, 2)
		require.Len(t, slots[0], 1)
		require.Len(t, slots[1], 1)
		assert.Equal(t, "Success", slots[0][0].Node)
		assert.Equal(t, "Failure", slots[1][0].Node)
	})

	t.Run("Should route a switch case to the requested outlet", func(t *testing.T) {
		wf := newWorkflow(
			node("Route", workflow.TypeSwitch, 3.2, nil),
			node("Email", "n8n-nodes-base.set", 3.4, nil),
		)
		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpAddConnection, Source: "Route", Target: "Email", Case: intp(2)},
		})
		require.True(t, res.OK())
		slots := res.Workflow.Connections["Route"][workflow.ConnMain]
		require.Len(t, slots, 3)
		assert.Empty(t, slots[0])
		assert.Empty(t, slots[1])
		assert.Equal(t, "Email", slots[2][0].Node)
	})

	t.Run("Should attach an AI capability over its ai connection kind", func(t *testing.T) {
		wf := newWorkflow(
			node("Agent", "@n8n/n8n-nodes-langchain.agent", 2, nil),
			node("Model", "@n8n/n8n-nodes-langchain.lmChatOpenAi", 1.2, nil),
		)
		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpAddConnection, Source: "Model", Target: "Agent", AIConnectionType: workflow.ConnAILanguageModel},
		})
		require.True(t, res.OK())
		ep := res.Workflow.Connections["Model"][workflow.ConnAILanguageModel][0][0]
		assert.Equal(t, "Agent", ep.Node)
		assert.Equal(t, workflow.ConnAILanguageModel, ep.Type)
	})

	t.Run("Should reject conflicting or mistyped selectors", func(t *testing.T) {
		wf := newWorkflow(
			node("IF", workflow.TypeIf, 2.2, nil),
			node("Route", workflow.TypeSwitch, 3.2, nil),
			node("Out", "n8n-nodes-base.set", 3.4, nil),
		)
		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpAddConnection, Source: "IF", Target: "Out", Branch: "true", Case: intp(0)},
			{Type: diff.OpAddConnection, Source: "Route", Target: "Out", Branch: "true"},
			{Type: diff.OpAddConnection, Source: "IF", Target: "Out", Branch: "maybe"},
			{Type: diff.OpAddConnection, Source: "IF", Target: "Out", AIConnectionType: "ai_everything"},
			{Type: diff.OpAddConnection, Source: "Out", Target: "Out"},
		})
		assert.Equal(t, 5, res.Failed)
		assert.Contains(t, res.Errors[0].Message, "mutually exclusive")
		assert.Contains(t, res.Errors[1].Message, "branch applies only to if nodes")
		assert.Contains(t, res.Errors[2].Message, `"maybe"`)
		assert.Contains(t, res.Errors[3].Message, "aiConnectionType")
		assert.Contains(t, res.Errors[4].Message, "itself")
	})

	t.Run("Should warn instead of duplicating an existing connection", func(t *testing.T) {
		wf := newWorkflow(
			node("Start", "n8n-nodes-base.manualTrigger", 1, nil),
			node("Fetch", "n8n-nodes-base.httpRequest", 4.2, nil),
		)
		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpAddConnection, Source: "Start", Target: "Fetch"},
			{Type: diff.OpAddConnection, Source: "Start", Target: "Fetch"},
		})
		require.True(t, res.OK())
		assert.Len(t, res.Workflow.Connections["Start"][workflow.ConnMain][0], 1)
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "already exists")
	})

	t.Run("Should remove a connection by endpoint identity", func(t *testing.T) {
		wf := newWorkflow(
			node("Start", "n8n-nodes-base.manualTrigger", 1, nil),
			node("Fetch", "n8n-nodes-base.httpRequest", 4.2, nil),
			node("Store", "n8n-nodes-base.set", 3.4, nil),
		)
		wf.Connections.Add("Start", workflow.ConnMain, 0, workflow.Endpoint{Node: "Fetch", Type: workflow.ConnMain})
		wf.Connections.Add("Start", workflow.ConnMain, 0, workflow.Endpoint{Node: "Store", Type: workflow.ConnMain})

		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpRemoveConnection, Source: "Start", Target: "Fetch"},
		})
		require.True(t, res.OK())
		endpoints := res.Workflow.Connections["Start"][workflow.ConnMain][0]
		require.Len(t, endpoints, 1)
		assert.Equal(t, "Store", endpoints[0].Node)

		res = apply(t, res.Workflow, []diff.Operation{
			{Type: diff.OpRemoveConnection, Source: "Start", Target: "Fetch"},
		})
		assert.Equal(t, 1, res.Failed)
		assert.Contains(t, res.Errors[0].Message, "no main connection")
	})

	t.Run("Should rewire a connection to a new target atomically", func(t *testing.T) {
		wf := newWorkflow(
			node("Start", "n8n-nodes-base.manualTrigger", 1, nil),
			node("Old", "n8n-nodes-base.set", 3.4, nil),
			node("New", "n8n-nodes-base.set", 3.4, nil),
		)
		wf.Connections.Add("Start", workflow.ConnMain, 0, workflow.Endpoint{Node: "Old", Type: workflow.ConnMain})

		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpRewireConnection, Source: "Start", Target: "Old", NewTarget: "New"},
		})
		require.True(t, res.OK(), "errors: %v", res.Errors)
		endpoints := res.Workflow.Connections["Start"][workflow.ConnMain][0]
		require.Len(t, endpoints, 1)
		assert.Equal(t, "New", endpoints[0].Node)
	})

	t.Run("Should keep the original connection when the rewire target is invalid", func(t *testing.T) {
		wf := newWorkflow(
			node("Start", "n8n-nodes-base.manualTrigger", 1, nil),
			node("Old", "n8n-nodes-base.set", 3.4, nil),
		)
		wf.Connections.Add("Start", workflow.ConnMain, 0, workflow.Endpoint{Node: "Old", Type: workflow.ConnMain})

		res, err := diff.New(nil).Apply(context.Background(), wf, []diff.Operation{
			{Type: diff.OpRewireConnection, Source: "Start", Target: "Old", NewTarget: "Ghost"},
		}, diff.Options{ContinueOnError: true})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed)
		assert.Equal(t, "Old", res.Workflow.Connections["Start"][workflow.ConnMain][0][0].Node)
	})

	t.Run("Should require exactly one rewire direction", func(t *testing.T) {
		wf := newWorkflow(
			node("Start", "n8n-nodes-base.manualTrigger", 1, nil),
			node("Old", "n8n-nodes-base.set", 3.4, nil),
		)
		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpRewireConnection, Source: "Start", Target: "Old"},
		})
		assert.Equal(t, 1, res.Failed)
		assert.Contains(t, res.Errors[0].Message, "exactly one of newSource or newTarget")
	})

	t.Run("Should clean stale connections and report the count", func(t *testing.T) {
		wf := newWorkflow(node("Start", "n8n-nodes-base.manualTrigger", 1, nil))
		wf.Connections.Add("Start", workflow.ConnMain, 0, workflow.Endpoint{Node: "Ghost", Type: workflow.ConnMain})
		res := apply(t, wf, []diff.Operation{{Type: diff.OpCleanStaleConnections}})
		require.True(t, res.OK())
		assert.Empty(t, res.Workflow.Connections)
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "dropped 1 endpoint")
	})

	t.Run("Should replace the connection map wholesale and flag unknown references", func(t *testing.T) {
		wf := newWorkflow(
			node("Start", "n8n-nodes-base.manualTrigger", 1, nil),
			node("Fetch", "n8n-nodes-base.httpRequest", 4.2, nil),
		)
		wf.Connections.Add("Start", workflow.ConnMain, 0, workflow.Endpoint{Node: "Fetch", Type: workflow.ConnMain})

		replacement := workflow.Connections{
			"Fetch": {workflow.ConnMain: {{{Node: "Ghost", Type: workflow.ConnMain}}}},
		}
		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpReplaceConnections, Connections: replacement},
		})
		require.True(t, res.OK())
		assert.NotContains(t, res.Workflow.Connections, "Start")
		assert.Equal(t, "Ghost", res.Workflow.Connections["Fetch"][workflow.ConnMain][0][0].Node)
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "unknown nodes")
	})
}

func TestEngine_WorkflowOps(t *testing.T) {
	t.Run("Should update name settings and tags", func(t *testing.T) {
		wf := newWorkflow(node("Start", "n8n-nodes-base.manualTrigger", 1, nil))
		wf.Settings = map[string]any{"timezone": "UTC", "executionOrder": "v0"}
		wf.Tags = workflow.TagList{"draft"}

		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpUpdateName, Name: "Order Sync"},
			{Type: diff.OpUpdateSettings, Settings: map[string]any{"executionOrder": "v1", "timezone": nil}},
			{Type: diff.OpAddTag, Tag: "production"},
			{Type: diff.OpRemoveTag, Tag: "draft"},
		})
		require.True(t, res.OK())
		got := res.Workflow
		assert.Equal(t, "Order Sync", got.Name)
		assert.Equal(t, map[string]any{"executionOrder": "v1"}, got.Settings)
		assert.Equal(t, workflow.TagList{"production"}, got.Tags)
	})

	t.Run("Should keep tag operations idempotent with warnings", func(t *testing.T) {
		wf := newWorkflow(node("Start", "n8n-nodes-base.manualTrigger", 1, nil))
		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpAddTag, Tag: "prod"},
			{Type: diff.OpAddTag, Tag: "prod"},
			{Type: diff.OpRemoveTag, Tag: "missing"},
		})
		require.True(t, res.OK())
		assert.Equal(t, workflow.TagList{"prod"}, res.Workflow.Tags)
		assert.Len(t, res.Warnings, 2)
	})

	t.Run("Should set activation metadata with a single propagation warning", func(t *testing.T) {
		wf := newWorkflow(node("Start", "n8n-nodes-base.manualTrigger", 1, nil))
		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpActivateWorkflow},
			{Type: diff.OpDeactivateWorkflow},
			{Type: diff.OpActivateWorkflow},
		})
		require.True(t, res.OK())
		assert.True(t, res.Workflow.Active)
		assert.Len(t, res.Warnings, 1)
	})
}

func TestEngine_Atomicity(t *testing.T) {
	t.Run("Should leave the input untouched and collect every error in strict mode", func(t *testing.T) {
		wf := newWorkflow(
			node("Start", "n8n-nodes-base.manualTrigger", 1, nil),
			node("Fetch", "n8n-nodes-base.httpRequest", 4.2, nil),
		)
		res := apply(t, wf, []diff.Operation{
			{Type: diff.OpAddConnection, Source: "Start", Target: "Fetch"},
			{Type: diff.OpRemoveNode, Name: "Ghost"},
			{Type: diff.OpMoveNode, Name: "Fetch"},
		})
		assert.Equal(t, 0, res.Applied)
		assert.Equal(t, 2, res.Failed)
		assert.Nil(t, res.Workflow)
		require.Len(t, res.Errors, 2)
		assert.Equal(t, 1, res.Errors[0].Index)
		assert.Equal(t, diff.OpRemoveNode, res.Errors[0].Type)
		assert.Equal(t, 2, res.Errors[1].Index)

		// Even the valid first operation left no trace on the input.
		assert.Empty(t, wf.Connections)
	})

	t.Run("Should keep successes and skip failures with continueOnError", func(t *testing.T) {
		wf := newWorkflow(
			node("Start", "n8n-nodes-base.manualTrigger", 1, nil),
			node("Fetch", "n8n-nodes-base.httpRequest", 4.2, nil),
		)
		res, err := diff.New(nil).Apply(context.Background(), wf, []diff.Operation{
			{Type: diff.OpAddConnection, Source: "Start", Target: "Fetch"},
			{Type: diff.OpRemoveNode, Name: "Ghost"},
			{Type: diff.OpUpdateName, Name: "Partial"},
		}, diff.Options{ContinueOnError: true})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Applied)
		assert.Equal(t, 1, res.Failed)
		require.NotNil(t, res.Workflow)
		assert.Equal(t, "Partial", res.Workflow.Name)
		assert.Len(t, res.Workflow.Connections["Start"][workflow.ConnMain][0], 1)

		// The input workflow still never changes.
		assert.Equal(t, "Test Workflow", wf.Name)
	})

	t.Run("Should reject an empty operation sequence", func(t *testing.T) {
		wf := newWorkflow(node("Start", "n8n-nodes-base.manualTrigger", 1, nil))
		_, err := diff.New(nil).Apply(context.Background(), wf, nil, diff.Options{})
		require.Error(t, err)
		coded, ok := core.AsError(err)
		require.True(t, ok)
		assert.Equal(t, core.KindUsage, coded.Kind)
	})

	t.Run("Should reject a nil workflow", func(t *testing.T) {
		_, err := diff.New(nil).Apply(context.Background(), nil, []diff.Operation{{Type: diff.OpUpdateName, Name: "X"}}, diff.Options{})
		require.Error(t, err)
	})

	t.Run("Should fail unknown operation types", func(t *testing.T) {
		wf := newWorkflow(node("Start", "n8n-nodes-base.manualTrigger", 1, nil))
		res := apply(t, wf, []diff.Operation{{Type: "transmogrify"}})
		assert.Equal(t, 1, res.Failed)
		assert.Contains(t, res.Errors[0].Message, `"transmogrify"`)
	})

	t.Run("Should stop applying when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		wf := newWorkflow(node("Start", "n8n-nodes-base.manualTrigger", 1, nil))
		_, err := diff.New(nil).Apply(ctx, wf, []diff.Operation{{Type: diff.OpUpdateName, Name: "X"}}, diff.Options{})
		require.Error(t, err)
		coded, ok := core.AsError(err)
		require.True(t, ok)
		assert.Equal(t, core.KindCancelled, coded.Kind)
	})
}

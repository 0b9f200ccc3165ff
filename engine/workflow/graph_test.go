package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func branchFixture() *Workflow {
	return &Workflow{
		Name: "fixture",
		Nodes: []*Node{
			{Name: "Start", Type: TypeManualTrigger, TypeVersion: 1, Parameters: map[string]any{}},
			{Name: "IF", Type: TypeIf, TypeVersion: 2, Parameters: map[string]any{}},
			{Name: "Success", Type: "n8n-nodes-base.set", TypeVersion: 3, Parameters: map[string]any{}},
			{Name: "Failure", Type: "n8n-nodes-base.set", TypeVersion: 3, Parameters: map[string]any{}},
		},
		Connections: Connections{
			"Start": {ConnMain: [][]Endpoint{{{Node: "IF", Type: ConnMain, Index: 0}}}},
			"IF": {ConnMain: [][]Endpoint{
				{{Node: "Success", Type: ConnMain, Index: 0}},
				{{Node: "Failure", Type: ConnMain, Index: 0}},
			}},
		},
	}
}

func TestConnectionsAddRemove(t *testing.T) {
	t.Run("Should grow slots and dedupe endpoints", func(t *testing.T) {
		c := Connections{}
		ep := Endpoint{Node: "B", Type: ConnMain, Index: 0}
		assert.True(t, c.Add("A", ConnMain, 2, ep))
		assert.False(t, c.Add("A", ConnMain, 2, ep))
		require.Len(t, c["A"][ConnMain], 3)
		assert.Empty(t, c["A"][ConnMain][0])
		assert.Equal(t, ep, c["A"][ConnMain][2][0])
	})
	t.Run("Should prune empty containers on remove", func(t *testing.T) {
		c := Connections{}
		ep := Endpoint{Node: "B", Type: ConnMain, Index: 0}
		c.Add("A", ConnMain, 0, ep)
		assert.True(t, c.Remove("A", ConnMain, 0, ep))
		assert.False(t, c.Remove("A", ConnMain, 0, ep))
		assert.NotContains(t, c, "A")
	})
}

func TestRemoveNodeConnections(t *testing.T) {
	t.Run("Should drop outgoing and incoming endpoints", func(t *testing.T) {
		w := branchFixture()
		removed := w.Connections.RemoveNode("IF")
		assert.Equal(t, 3, removed)
		assert.NotContains(t, w.Connections, "IF")
		assert.NotContains(t, w.Connections, "Start")
	})
}

func TestRenameNode(t *testing.T) {
	t.Run("Should rewrite source keys and endpoints", func(t *testing.T) {
		w := branchFixture()
		w.Connections.RenameNode("IF", "Gate")
		require.Contains(t, w.Connections, "Gate")
		assert.Equal(t, "Gate", w.Connections["Start"][ConnMain][0][0].Node)
		assert.Equal(t, "Success", w.Connections["Gate"][ConnMain][0][0].Node)
	})
}

func TestStaleAndClean(t *testing.T) {
	t.Run("Should report and clean endpoints to missing nodes", func(t *testing.T) {
		w := branchFixture()
		w.Connections.Add("IF", ConnMain, 0, Endpoint{Node: "Ghost", Type: ConnMain, Index: 0})
		w.Connections["Phantom"] = map[string][][]Endpoint{
			ConnMain: {{{Node: "Success", Type: ConnMain, Index: 0}}},
		}
		stale := w.Stale()
		require.Len(t, stale, 2)
		removed := w.CleanStale()
		assert.Equal(t, 2, removed)
		assert.Empty(t, w.Stale())
		// Valid endpoints survive.
		assert.Equal(t, "Success", w.Connections["IF"][ConnMain][0][0].Node)
	})
}

func TestIncoming(t *testing.T) {
	t.Run("Should group sources by target inlet kind", func(t *testing.T) {
		w := branchFixture()
		w.Connections.Add("Model", ConnAILanguageModel, 0, Endpoint{Node: "IF", Type: ConnAILanguageModel, Index: 0})
		in := w.Incoming("IF")
		assert.Equal(t, []string{"Start"}, in[ConnMain])
		assert.Equal(t, []string{"Model"}, in[ConnAILanguageModel])
	})
}

package versions_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/versions"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

func TestStore_Compare(t *testing.T) {
	ctx := context.Background()

	t.Run("Should report node, connection and metadata changes", func(t *testing.T) {
		s := openStore(t)

		from := sampleWorkflow("Order Intake", "Fetch", "Archive")
		from.Connections.Add("Fetch", workflow.ConnMain, 0, workflow.Endpoint{
			Node: "Archive", Type: workflow.ConnMain, Index: 0,
		})
		from.Tags = workflow.TagList{"ops", "orders"}
		from.Settings = map[string]any{"executionOrder": "v1"}

		to := sampleWorkflow("Order Intake v2", "Fetch", "Notify")
		to.Node("Fetch").TypeVersion = 2
		to.Node("Fetch").Parameters["mode"] = "raw"
		to.Active = true
		to.Connections.Add("Fetch", workflow.ConnMain, 0, workflow.Endpoint{
			Node: "Notify", Type: workflow.ConnMain, Index: 0,
		})
		to.Tags = workflow.TagList{"orders", "ops"}
		to.Settings = map[string]any{"executionOrder": "v1"}

		snap(t, s, "wf-1", from, versions.TriggerManual)
		snap(t, s, "wf-1", to, versions.TriggerManual)

		res, err := s.Compare(ctx, "wf-1", 1, 2)
		require.NoError(t, err)
		assert.False(t, res.Same)
		assert.Equal(t, 1, res.FromVersion)
		assert.Equal(t, 2, res.ToVersion)

		assert.Equal(t, []string{"Notify"}, res.NodesAdded)
		assert.Equal(t, []string{"Archive"}, res.NodesRemoved)
		require.Len(t, res.NodesChanged, 1)
		assert.Equal(t, "Fetch", res.NodesChanged[0].Name)
		assert.Equal(t, []string{"typeVersion", "parameters"}, res.NodesChanged[0].Fields)

		require.Len(t, res.ConnectionsAdded, 1)
		assert.Equal(t, "Notify", res.ConnectionsAdded[0].Target)
		require.Len(t, res.ConnectionsRemoved, 1)
		assert.Equal(t, "Archive", res.ConnectionsRemoved[0].Target)

		// Tags only changed order, so metadata deltas are name and active.
		require.Len(t, res.MetadataChanged, 2)
		assert.Equal(t, "name", res.MetadataChanged[0].Field)
		assert.Equal(t, "Order Intake", res.MetadataChanged[0].From)
		assert.Equal(t, "Order Intake v2", res.MetadataChanged[0].To)
		assert.Equal(t, "active", res.MetadataChanged[1].Field)
	})

	t.Run("Should report identical snapshots as same", func(t *testing.T) {
		s := openStore(t)
		wf := sampleWorkflow("Flow", "A", "B")
		snap(t, s, "wf-1", wf, versions.TriggerManual)
		snap(t, s, "wf-1", wf, versions.TriggerManual)

		res, err := s.Compare(ctx, "wf-1", 1, 2)
		require.NoError(t, err)
		assert.True(t, res.Same)
		assert.Empty(t, res.NodesAdded)
		assert.Empty(t, res.NodesRemoved)
		assert.Empty(t, res.NodesChanged)
		assert.Empty(t, res.ConnectionsAdded)
		assert.Empty(t, res.ConnectionsRemoved)
		assert.Empty(t, res.MetadataChanged)
	})

	t.Run("Should fail when either version is missing", func(t *testing.T) {
		s := openStore(t)
		snap(t, s, "wf-1", sampleWorkflow("Flow", "A"), versions.TriggerManual)

		_, err := s.Compare(ctx, "wf-1", 1, 9)
		require.Error(t, err)
		coded, ok := core.AsError(err)
		require.True(t, ok)
		assert.Equal(t, core.CodeVersionNotFound, coded.Code)

		_, err = s.Compare(ctx, "wf-1", 9, 1)
		require.Error(t, err)
	})
}

package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/kb"
	"github.com/n8nkit/n8nkit/engine/validate"
	"github.com/n8nkit/n8nkit/test/helpers"
)

func TestValidator_VersionCurrency(t *testing.T) {
	k := helpers.OpenSeededKB(t)
	opts := validate.DefaultOptions(validate.ProfileAIFriendly)

	t.Run("Should raise an error when the upgrade crosses high-severity changes", func(t *testing.T) {
		wf := newWorkflow(node("Fetch", "n8n-nodes-base.httpRequest", 1, map[string]any{
			"url": "https://example.com",
		}))
		res := validateWith(t, k, wf, opts)
		found := res.FindingsByCode(core.CodeTypeVersionOutdated)
		require.Len(t, found, 1)
		f := found[0]
		assert.Equal(t, validate.SeverityError, f.Severity)
		assert.Equal(t, 1.0, f.Details["current"])
		assert.Equal(t, 4.2, f.Details["latest"])
		changes, ok := f.Details["breakingChanges"].([]kb.BreakingChange)
		require.True(t, ok)
		assert.Len(t, changes, 2)
	})

	t.Run("Should warn on medium-severity pending changes", func(t *testing.T) {
		wf := newWorkflow(node("Route", "n8n-nodes-base.switch", 2, map[string]any{
			"rules": map[string]any{"values": []any{map[string]any{}}},
		}))
		res := validateWith(t, k, wf, opts)
		found := res.FindingsByCode(core.CodeTypeVersionOutdated)
		require.Len(t, found, 1)
		assert.Equal(t, validate.SeverityWarning, found[0].Severity)
	})

	t.Run("Should surface change-free upgrades as info", func(t *testing.T) {
		wf := newWorkflow(node("Hook", "n8n-nodes-base.webhook", 1, map[string]any{
			"path": "in",
		}))
		res := validateWith(t, k, wf, opts)
		found := res.FindingsByCode(core.CodeTypeVersionOutdated)
		require.Len(t, found, 1)
		assert.Equal(t, validate.SeverityInfo, found[0].Severity)
		_, hasChanges := found[0].Details["breakingChanges"]
		assert.False(t, hasChanges)
	})

	t.Run("Should respect the severity floor", func(t *testing.T) {
		floored := opts
		floored.VersionSeverityFloor = kb.SeverityHigh
		wf := newWorkflow(
			node("Route", "n8n-nodes-base.switch", 2, map[string]any{
				"rules": map[string]any{"values": []any{map[string]any{}}},
			}),
			node("Hook", "n8n-nodes-base.webhook", 1, map[string]any{"path": "in"}),
			node("Fetch", "n8n-nodes-base.httpRequest", 1, map[string]any{"url": "https://example.com"}),
		)
		res := validateWith(t, k, wf, floored)
		found := res.FindingsByCode(core.CodeTypeVersionOutdated)
		require.Len(t, found, 1)
		assert.Equal(t, "Fetch", found[0].Node)
	})

	t.Run("Should stay quiet for current or unset versions", func(t *testing.T) {
		wf := newWorkflow(
			node("Fetch", "n8n-nodes-base.httpRequest", 4.2, map[string]any{"url": "https://example.com"}),
			node("Unset", "n8n-nodes-base.set", 0, nil),
		)
		res := validateWith(t, k, wf, opts)
		assert.False(t, res.HasCode(core.CodeTypeVersionOutdated))
	})

	t.Run("Should do nothing when version checks are disabled", func(t *testing.T) {
		wf := newWorkflow(node("Fetch", "n8n-nodes-base.httpRequest", 1, map[string]any{
			"url": "https://example.com",
		}))
		disabled := opts
		disabled.CheckVersions = false
		res := validateWith(t, k, wf, disabled)
		assert.False(t, res.HasCode(core.CodeTypeVersionOutdated))
	})
}

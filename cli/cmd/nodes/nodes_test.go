package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/kb"
)

func TestFormatVersion(t *testing.T) {
	t.Run("Should drop the decimal for whole versions", func(t *testing.T) {
		assert.Equal(t, "2", formatVersion(2))
	})
	t.Run("Should keep fractional versions as written", func(t *testing.T) {
		assert.Equal(t, "4.2", formatVersion(4.2))
		assert.Equal(t, "1.1", formatVersion(1.1))
	})
}

func TestParseSeverity(t *testing.T) {
	t.Run("Should map the three levels case-insensitively", func(t *testing.T) {
		for arg, want := range map[string]kb.Severity{
			"low": kb.SeverityLow, "MEDIUM": kb.SeverityMedium, " High ": kb.SeverityHigh,
		} {
			got, err := parseSeverity(arg)
			require.NoError(t, err, "arg %q", arg)
			assert.Equal(t, want, got)
		}
	})
	t.Run("Should pass an empty floor through", func(t *testing.T) {
		got, err := parseSeverity("")
		require.NoError(t, err)
		assert.Equal(t, kb.Severity(""), got)
	})
	t.Run("Should reject unknown levels", func(t *testing.T) {
		_, err := parseSeverity("fatal")
		require.Error(t, err)
		coded, ok := core.AsError(err)
		require.True(t, ok)
		assert.Equal(t, core.KindUsage, coded.Kind)
	})
}

func TestFilterByCategory(t *testing.T) {
	hits := []kb.NodeHit{
		{Type: "n8n-nodes-base.webhook", Category: "Trigger"},
		{Type: "n8n-nodes-base.httpRequest", Category: "Core Nodes"},
		{Type: "n8n-nodes-base.scheduleTrigger", Category: "trigger"},
	}

	t.Run("Should match categories case-insensitively", func(t *testing.T) {
		got := filterByCategory(append([]kb.NodeHit(nil), hits...), "TRIGGER")
		require.Len(t, got, 2)
		assert.Equal(t, "n8n-nodes-base.webhook", got[0].Type)
		assert.Equal(t, "n8n-nodes-base.scheduleTrigger", got[1].Type)
	})
	t.Run("Should return nothing for an unknown category", func(t *testing.T) {
		got := filterByCategory(append([]kb.NodeHit(nil), hits...), "Storage")
		assert.Empty(t, got)
	})
}

package kb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	t.Run("Should split on punctuation and lowercase", func(t *testing.T) {
		assert.Equal(t, []string{"n8n", "nodes", "base", "httprequest"}, tokenize("n8n-nodes-base.httpRequest"))
		assert.Equal(t, []string{"read", "sheet", "rows"}, tokenize("  Read: sheet/rows!  "))
		assert.Empty(t, tokenize("--- ..."))
	})
}

func TestBuildMatchExpr(t *testing.T) {
	t.Run("Should quote tokens and join by mode", func(t *testing.T) {
		assert.Equal(t, `"http" OR "request"`, buildMatchExpr("http request", SearchOR))
		assert.Equal(t, `"http" AND "request"`, buildMatchExpr("http request", SearchAND))
		assert.Equal(t, "", buildMatchExpr("", SearchOR))
	})
}

func TestSimilarity(t *testing.T) {
	t.Run("Should normalize edit distance to [0,1]", func(t *testing.T) {
		assert.InDelta(t, 1.0, similarity("webhook", "webhook"), 1e-9)
		assert.InDelta(t, 1.0-1.0/11.0, similarity("httprequst", "httprequest"), 1e-9)
		assert.InDelta(t, 0, similarity("", ""), 1e-9)
	})
}

func TestPrefixBonus(t *testing.T) {
	t.Run("Should reward long shared prefixes only", func(t *testing.T) {
		assert.InDelta(t, 0, prefixBonus("ab", "abcd"), 1e-9)
		assert.Greater(t, prefixBonus("googlesheet", "googlesheets"), 0.08)
	})
}

func TestBareType(t *testing.T) {
	t.Run("Should strip the package prefix", func(t *testing.T) {
		assert.Equal(t, "httpRequest", BareType("n8n-nodes-base.httpRequest"))
		assert.Equal(t, "agent", BareType("@n8n/n8n-nodes-langchain.agent"))
		assert.Equal(t, "webhook", BareType("webhook"))
	})
}

func TestSeverityAtLeast(t *testing.T) {
	t.Run("Should order low, medium, high", func(t *testing.T) {
		assert.True(t, SeverityHigh.AtLeast(SeverityMedium))
		assert.True(t, SeverityMedium.AtLeast(SeverityMedium))
		assert.False(t, SeverityLow.AtLeast(SeverityMedium))
	})
}

func TestPropertyVisibility(t *testing.T) {
	jsonBody := Property{
		Name: "jsonBody",
		Type: "json",
		DisplayOptions: &DisplayOptions{Show: map[string][]any{
			"sendBody":    {true},
			"contentType": {"json"},
		}},
	}
	t.Run("Should require all show conditions", func(t *testing.T) {
		assert.True(t, jsonBody.VisibleWith(map[string]any{"sendBody": true, "contentType": "json"}))
		assert.False(t, jsonBody.VisibleWith(map[string]any{"sendBody": true, "contentType": "form-urlencoded"}))
		assert.False(t, jsonBody.VisibleWith(map[string]any{"contentType": "json"}))
	})
	t.Run("Should compare values loosely", func(t *testing.T) {
		versioned := Property{
			Name:           "combineConditions",
			Type:           "options",
			DisplayOptions: &DisplayOptions{Show: map[string][]any{"@version": {2, 2.1}}},
		}
		assert.True(t, versioned.VisibleWith(map[string]any{"@version": 2.0}))
		assert.True(t, versioned.VisibleWith(map[string]any{"@version": "2.1"}))
		assert.False(t, versioned.VisibleWith(map[string]any{"@version": 1.0}))
	})
	t.Run("Should let hide win over show", func(t *testing.T) {
		p := Property{
			Name: "legacy",
			Type: "string",
			DisplayOptions: &DisplayOptions{
				Show: map[string][]any{"mode": {"advanced"}},
				Hide: map[string][]any{"disabled": {true}},
			},
		}
		assert.True(t, p.VisibleWith(map[string]any{"mode": "advanced"}))
		assert.False(t, p.VisibleWith(map[string]any{"mode": "advanced", "disabled": true}))
	})
	t.Run("Should default to visible without display options", func(t *testing.T) {
		p := Property{Name: "url", Type: "string"}
		assert.True(t, p.VisibleWith(nil))
	})
}

func TestMinimalParameters(t *testing.T) {
	d := &NodeDescriptor{
		Type:          "n8n-nodes-base.example",
		LatestVersion: 2,
		Properties: []Property{
			{Name: "resource", Type: "options", Default: "message"},
			{Name: "operation", Type: "options", Default: "post"},
			{Name: "text", Type: "string", Required: true,
				DisplayOptions: &DisplayOptions{Show: map[string][]any{
					"resource": {"message"}, "operation": {"post"},
				}}},
			{Name: "channel", Type: "string", Required: true, Default: "#general",
				DisplayOptions: &DisplayOptions{Show: map[string][]any{"resource": {"message"}}}},
			{Name: "limit", Type: "number", Required: true,
				DisplayOptions: &DisplayOptions{Show: map[string][]any{"operation": {"list"}}}},
		},
	}
	t.Run("Should build the smallest valid payload for the dispatch pair", func(t *testing.T) {
		params := d.MinimalParameters("message", "post")
		assert.Equal(t, "message", params["resource"])
		assert.Equal(t, "post", params["operation"])
		assert.Equal(t, "", params["text"])
		assert.Equal(t, "#general", params["channel"])
		_, hasLimit := params["limit"]
		assert.False(t, hasLimit, "hidden required properties stay out of the payload")
	})
}

func TestZeroFor(t *testing.T) {
	t.Run("Should produce type-shaped zero values", func(t *testing.T) {
		assert.Equal(t, 0, zeroFor("number"))
		assert.Equal(t, false, zeroFor("boolean"))
		assert.Equal(t, map[string]any{}, zeroFor("collection"))
		assert.Equal(t, []any{}, zeroFor("multiOptions"))
		assert.Equal(t, "", zeroFor("string"))
	})
}

package kb

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const (
	// SimilarityAutoFix is the score at or above which a type suggestion
	// is safe to apply mechanically.
	SimilarityAutoFix = 0.9
	// SimilarityFloor is the hard cutoff below which suggestions are
	// noise and withheld entirely.
	SimilarityFloor = 0.5
)

// aliasShortcuts maps names people actually type to the node they meant.
// A shortcut hit is a certain correction regardless of edit distance.
var aliasShortcuts = map[string]string{
	"http":        "n8n-nodes-base.httpRequest",
	"fetch":       "n8n-nodes-base.httpRequest",
	"curl":        "n8n-nodes-base.httpRequest",
	"apicall":     "n8n-nodes-base.httpRequest",
	"email":       "n8n-nodes-base.emailSend",
	"mail":        "n8n-nodes-base.emailSend",
	"condition":   "n8n-nodes-base.if",
	"branch":      "n8n-nodes-base.if",
	"javascript":  "n8n-nodes-base.code",
	"js":          "n8n-nodes-base.code",
	"python":      "n8n-nodes-base.code",
	"script":      "n8n-nodes-base.code",
	"schedule":    "n8n-nodes-base.scheduleTrigger",
	"timer":       "n8n-nodes-base.scheduleTrigger",
	"agent":       "@n8n/n8n-nodes-langchain.agent",
	"llm":         "@n8n/n8n-nodes-langchain.lmChatOpenAi",
	"googlesheet": "n8n-nodes-base.googleSheets",
	"sheet":       "n8n-nodes-base.googleSheets",
}

// SimilarTypes suggests corrections for an unknown node type, ranked by a
// score in [0,1] built from normalized edit distance, a shared-prefix
// bonus and the shortcut table. Suggestions under SimilarityFloor are
// dropped; scores at or above SimilarityAutoFix mark safe corrections.
func (k *KB) SimilarTypes(ctx context.Context, badType string, limit int) ([]TypeSuggestion, error) {
	badType = strings.TrimSpace(badType)
	if badType == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := k.store.DB().QueryContext(
		ctx,
		`SELECT type, alias, display_name, category, description, latest_version FROM nodes`,
	)
	if err != nil {
		return nil, fmt.Errorf("kb: load types for similarity: %w", err)
	}
	defer rows.Close()
	candidates, err := scanHits(rows)
	if err != nil {
		return nil, err
	}

	bare := strings.ToLower(BareType(badType))
	compact := strings.Join(tokenize(badType), "")
	shortcut := ""
	if target, ok := aliasShortcuts[bare]; ok {
		shortcut = target
	} else if target, ok := aliasShortcuts[compact]; ok {
		shortcut = target
	}

	var out []TypeSuggestion
	for i := range candidates {
		c := &candidates[i]
		score, reason := scoreCandidate(badType, bare, c)
		if c.Type == shortcut {
			score, reason = 1.0, "known alias"
		}
		if score < SimilarityFloor {
			continue
		}
		out = append(out, TypeSuggestion{
			Type:        c.Type,
			DisplayName: c.DisplayName,
			Score:       roundScore(score),
			Reason:      reason,
			AutoFixable: score >= SimilarityAutoFix,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Type < out[j].Type
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func scoreCandidate(badType, bare string, c *NodeHit) (float64, string) {
	candBare := strings.ToLower(BareType(c.Type))
	candAlias := strings.ToLower(c.Alias)
	candName := strings.ToLower(strings.ReplaceAll(c.DisplayName, " ", ""))

	// A correct bare name under the wrong (or missing) package prefix is
	// the most common LLM mistake and is always safe to fix.
	if bare == candBare || bare == candAlias {
		if strings.EqualFold(badType, c.Type) {
			return 0.99, "case mismatch"
		}
		return 0.95, "package prefix mismatch"
	}

	best, reason := 0.0, ""
	if s := similarity(bare, candBare); s > best {
		best, reason = s, "type similarity"
	}
	if s := similarity(bare, candAlias); candAlias != "" && s > best {
		best, reason = s, "alias similarity"
	}
	if s := similarity(bare, candName); candName != "" && s > best {
		best, reason = s, "name similarity"
	}
	if bonus := prefixBonus(bare, candBare); bonus > 0 && best+bonus <= 0.95 {
		best += bonus
	}
	return best, reason
}

// prefixBonus rewards a long shared prefix: truncations like
// "googleSheet" vs "googleSheets" should edge out same-distance noise.
func prefixBonus(a, b string) float64 {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	if n < 3 {
		return 0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	return 0.1 * float64(n) / float64(longest)
}

func roundScore(s float64) float64 {
	if s > 1 {
		s = 1
	}
	return float64(int(s*100+0.5)) / 100
}

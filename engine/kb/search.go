package kb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/n8nkit/n8nkit/engine/core"
)

// SearchMode selects how a node search interprets multi-word queries.
type SearchMode string

const (
	SearchOR    SearchMode = "OR"
	SearchAND   SearchMode = "AND"
	SearchFuzzy SearchMode = "FUZZY"
)

// ParseSearchMode normalizes a user-supplied mode string.
func ParseSearchMode(s string) (SearchMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "OR":
		return SearchOR, nil
	case "AND":
		return SearchAND, nil
	case "FUZZY":
		return SearchFuzzy, nil
	}
	return "", core.NewError(core.KindUsage, core.CodeInvalidArgument, "unknown search mode %q (want OR, AND or FUZZY)", s)
}

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100

	// Queries shorter than this get an exact-alias boost so that e.g.
	// "if" surfaces the If node above everything that merely mentions it.
	shortQueryLen = 6
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	if limit > maxSearchLimit {
		return maxSearchLimit
	}
	return limit
}

// SearchNodes runs a ranked search over the node catalog. OR and AND use
// the full-text index when available and degrade to substring matching
// otherwise; FUZZY ranks by edit distance against type, alias and display
// name.
func (k *KB) SearchNodes(ctx context.Context, query string, mode SearchMode, limit int) ([]NodeHit, error) {
	query = strings.TrimSpace(query)
	limit = clampLimit(limit)
	if query == "" {
		return k.ListByCategory(ctx, "", limit)
	}
	if mode == SearchFuzzy {
		return k.fuzzySearch(ctx, query, limit)
	}
	if k.fts {
		hits, err := k.ftsSearch(ctx, query, mode, limit)
		if err == nil {
			return applyShortQueryBoost(query, hits), nil
		}
		k.degradeToLike(ctx, err)
	}
	hits, err := k.likeSearch(ctx, query, mode, limit)
	if err != nil {
		return nil, err
	}
	return applyShortQueryBoost(query, hits), nil
}

func (k *KB) ftsSearch(ctx context.Context, query string, mode SearchMode, limit int) ([]NodeHit, error) {
	match := buildMatchExpr(query, mode)
	if match == "" {
		return nil, nil
	}
	rows, err := k.store.DB().QueryContext(
		ctx,
		`SELECT n.type, n.alias, n.display_name, n.category, n.description, n.latest_version,
			bm25(node_fts) AS score
		 FROM node_fts
		 JOIN nodes n ON n.rowid = node_fts.rowid
		 WHERE node_fts MATCH ?
		 ORDER BY score
		 LIMIT ?`,
		match, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("kb: fts node search: %w", err)
	}
	defer rows.Close()
	var out []NodeHit
	for rows.Next() {
		var h NodeHit
		var desc sql.NullString
		var bm float64
		if err := rows.Scan(&h.Type, &h.Alias, &h.DisplayName, &h.Category, &desc, &h.LatestVersion, &bm); err != nil {
			return nil, fmt.Errorf("kb: scan fts hit: %w", err)
		}
		h.Description = desc.String
		// bm25 is lower-is-better; negate so higher rank means better.
		h.Rank = -bm
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kb: iterate fts hits: %w", err)
	}
	return out, nil
}

// buildMatchExpr quotes each token so catalog punctuation (dots, @, /)
// cannot be misread as FTS5 syntax.
func buildMatchExpr(query string, mode SearchMode) string {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		quoted = append(quoted, `"`+strings.ReplaceAll(tok, `"`, `""`)+`"`)
	}
	sep := " OR "
	if mode == SearchAND {
		sep = " AND "
	}
	return strings.Join(quoted, sep)
}

func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return false
		}
		return true
	})
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func (k *KB) likeSearch(ctx context.Context, query string, mode SearchMode, limit int) ([]NodeHit, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	var (
		clauses []string
		args    []any
	)
	for _, tok := range tokens {
		pat := "%" + tok + "%"
		clauses = append(clauses, `(type LIKE ? OR alias LIKE ? OR display_name LIKE ? OR description LIKE ? OR category LIKE ?)`)
		args = append(args, pat, pat, pat, pat, pat)
	}
	sep := " OR "
	if mode == SearchAND {
		sep = " AND "
	}
	rows, err := k.store.DB().QueryContext(
		ctx,
		`SELECT type, alias, display_name, category, description, latest_version FROM nodes WHERE `+
			strings.Join(clauses, sep)+` LIMIT 500`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("kb: substring node search: %w", err)
	}
	defer rows.Close()
	hits, err := scanHits(rows)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		hits[i].Rank = likeRank(&hits[i], tokens)
	}
	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// likeRank approximates relevance for the fallback path: alias and name
// matches outrank description mentions, exact alias outranks substring.
func likeRank(h *NodeHit, tokens []string) float64 {
	alias := strings.ToLower(h.Alias)
	name := strings.ToLower(h.DisplayName)
	bare := strings.ToLower(BareType(h.Type))
	desc := strings.ToLower(h.Description)
	var rank float64
	for _, tok := range tokens {
		switch {
		case tok == alias || tok == bare:
			rank += 100
		case strings.HasPrefix(alias, tok) || strings.HasPrefix(bare, tok):
			rank += 50
		case strings.Contains(name, tok):
			rank += 25
		case strings.Contains(alias, tok) || strings.Contains(bare, tok):
			rank += 15
		case strings.Contains(desc, tok):
			rank += 5
		}
	}
	return rank
}

func (k *KB) fuzzySearch(ctx context.Context, query string, limit int) ([]NodeHit, error) {
	rows, err := k.store.DB().QueryContext(
		ctx,
		`SELECT type, alias, display_name, category, description, latest_version FROM nodes`,
	)
	if err != nil {
		return nil, fmt.Errorf("kb: fuzzy node search: %w", err)
	}
	defer rows.Close()
	hits, err := scanHits(rows)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.Join(tokenize(query), ""))
	if needle == "" {
		return nil, nil
	}
	scored := hits[:0]
	for i := range hits {
		score := fuzzyScore(needle, &hits[i])
		if score < SimilarityFloor {
			continue
		}
		hits[i].Rank = score
		scored = append(scored, hits[i])
	}
	sortHits(scored)
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// fuzzyScore is the best normalized edit-distance similarity of the query
// against the node's alias, bare type and display name.
func fuzzyScore(needle string, h *NodeHit) float64 {
	best := 0.0
	for _, cand := range []string{
		strings.ToLower(h.Alias),
		strings.ToLower(BareType(h.Type)),
		strings.ToLower(strings.ReplaceAll(h.DisplayName, " ", "")),
	} {
		if cand == "" {
			continue
		}
		if s := similarity(needle, cand); s > best {
			best = s
		}
	}
	return best
}

func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// applyShortQueryBoost promotes exact alias/type matches for short
// queries, where FTS ranking drowns them in partial matches.
func applyShortQueryBoost(query string, hits []NodeHit) []NodeHit {
	q := strings.ToLower(strings.TrimSpace(query))
	if len(q) >= shortQueryLen || len(hits) == 0 {
		return hits
	}
	top := hits[0].Rank
	boosted := false
	for i := range hits {
		alias := strings.ToLower(hits[i].Alias)
		bare := strings.ToLower(BareType(hits[i].Type))
		if alias == q || bare == q {
			hits[i].Rank = top + 1000
			boosted = true
		}
	}
	if boosted {
		sortHits(hits)
	}
	return hits
}

func sortHits(hits []NodeHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Rank != hits[j].Rank {
			return hits[i].Rank > hits[j].Rank
		}
		return hits[i].Type < hits[j].Type
	})
}

// SearchProperties searches one node's property documentation. The type
// may be short or fully qualified; unknown types yield a data error.
func (k *KB) SearchProperties(ctx context.Context, nodeType, query string, limit int) ([]PropertyHit, error) {
	limit = clampLimit(limit)
	d, err := k.LookupByType(ctx, nodeType)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, core.NewError(core.KindData, core.CodeInvalidNodeTypeFormat, "unknown node type %q", nodeType)
	}
	query = strings.TrimSpace(query)
	if k.fts && query != "" {
		hits, err := k.ftsPropertySearch(ctx, d.Type, query, limit)
		if err == nil {
			return hits, nil
		}
		k.degradeToLike(ctx, err)
	}
	return descriptorPropertySearch(d, query, limit), nil
}

// descriptorPropertySearch is the substring fallback: it scans the
// decoded descriptor instead of the index, so it works on catalogs built
// without full-text tables.
func descriptorPropertySearch(d *NodeDescriptor, query string, limit int) []PropertyHit {
	tokens := tokenize(query)
	var out []PropertyHit
	for i := range d.Properties {
		p := &d.Properties[i]
		h := PropertyHit{
			NodeType:    d.Type,
			Path:        p.Name,
			Name:        p.Name,
			Description: p.Description,
			TypeTag:     p.Type,
		}
		if len(tokens) > 0 {
			h.Rank = likePropertyRank(&h, tokens)
			if h.Rank == 0 {
				continue
			}
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (k *KB) ftsPropertySearch(ctx context.Context, fullType, query string, limit int) ([]PropertyHit, error) {
	match := buildMatchExpr(query, SearchOR)
	if match == "" {
		return nil, nil
	}
	rows, err := k.store.DB().QueryContext(
		ctx,
		`SELECT node_type, path, name, description, type_tag, bm25(property_fts) AS score
		 FROM property_fts
		 WHERE property_fts MATCH ? AND node_type = ?
		 ORDER BY score
		 LIMIT ?`,
		match, fullType, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("kb: fts property search: %w", err)
	}
	defer rows.Close()
	var out []PropertyHit
	for rows.Next() {
		var h PropertyHit
		var bm float64
		if err := rows.Scan(&h.NodeType, &h.Path, &h.Name, &h.Description, &h.TypeTag, &bm); err != nil {
			return nil, fmt.Errorf("kb: scan property hit: %w", err)
		}
		h.Rank = -bm
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kb: iterate property hits: %w", err)
	}
	return out, nil
}

func likePropertyRank(h *PropertyHit, tokens []string) float64 {
	name := strings.ToLower(h.Name)
	path := strings.ToLower(h.Path)
	desc := strings.ToLower(h.Description)
	var rank float64
	for _, tok := range tokens {
		switch {
		case tok == name:
			rank += 100
		case strings.HasPrefix(name, tok):
			rank += 50
		case strings.Contains(path, tok):
			rank += 20
		case strings.Contains(desc, tok):
			rank += 5
		}
	}
	return rank
}

// Package kb provides read-only access to the bundled node catalog: node
// type descriptors, ranked full-text search, fuzzy type suggestions,
// breaking-change lookups, and the workflow template library.
package kb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/infra/sqlite"
	"github.com/n8nkit/n8nkit/pkg/logger"
)

const descriptorCacheSize = 512

// KB is a process-wide read-only handle over the node catalog database.
// It is safe for concurrent use.
type KB struct {
	store *sqlite.Store
	fts   bool

	cache   *lru.Cache[string, *NodeDescriptor]
	ftsWarn sync.Once
	statsMu sync.Mutex
	stats   *CatalogStats
}

// Open opens the catalog at path. A missing database is a configuration
// error: the catalog ships with the binary and cannot be synthesized.
func Open(ctx context.Context, path string) (*KB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, core.WrapError(core.KindConfig, core.CodeKBMissing, err, "node catalog not found at %s", path)
	}
	store, err := sqlite.NewReadOnlyStore(ctx, path)
	if err != nil {
		return nil, core.WrapError(core.KindConfig, core.CodeKBMissing, err, "open node catalog at %s", path)
	}
	cache, err := lru.New[string, *NodeDescriptor](descriptorCacheSize)
	if err != nil {
		store.Close(ctx)
		return nil, fmt.Errorf("kb: init descriptor cache: %w", err)
	}
	k := &KB{store: store, cache: cache}
	k.fts = store.HasFTS5(ctx) && k.hasFTSTables(ctx)
	return k, nil
}

// hasFTSTables reports whether the catalog was built with its full-text
// indexes. Older or minimal catalogs may carry only the plain tables.
func (k *KB) hasFTSTables(ctx context.Context) bool {
	var n int
	err := k.store.DB().QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE name IN ('node_fts', 'property_fts', 'templates_fts')`,
	).Scan(&n)
	return err == nil && n == 3
}

// Close releases the underlying database handle.
func (k *KB) Close(ctx context.Context) error {
	return k.store.Close(ctx)
}

// FTSEnabled reports whether ranked full-text search is in effect.
func (k *KB) FTSEnabled() bool {
	return k.fts
}

// degradeToLike logs the FTS fallback once per process.
func (k *KB) degradeToLike(ctx context.Context, err error) {
	k.ftsWarn.Do(func() {
		logger.FromContext(ctx).Debug("full-text search unavailable, using substring search", "error", err)
	})
}

// LookupByType resolves a node type to its descriptor. It accepts the
// fully qualified type, the bare alias (resolved through the recognized
// package prefixes), or the alias column. Returns (nil, nil) when the
// type is unknown; corrupt catalog rows are skipped the same way.
func (k *KB) LookupByType(ctx context.Context, nodeType string) (*NodeDescriptor, error) {
	nodeType = strings.TrimSpace(nodeType)
	if nodeType == "" {
		return nil, nil
	}
	if d, ok := k.cache.Get(nodeType); ok {
		return d, nil
	}
	d, err := k.lookupOne(ctx, nodeType)
	if err != nil || d != nil {
		if d != nil {
			k.cache.Add(nodeType, d)
			k.cache.Add(d.Type, d)
		}
		return d, err
	}
	if strings.Contains(nodeType, ".") {
		return nil, nil
	}
	// Short form: try each recognized prefix, then the alias column.
	for _, prefix := range TypePrefixes {
		d, err = k.lookupOne(ctx, prefix+nodeType)
		if err != nil {
			return nil, err
		}
		if d != nil {
			k.cache.Add(nodeType, d)
			k.cache.Add(d.Type, d)
			return d, nil
		}
	}
	d, err = k.lookupByAlias(ctx, nodeType)
	if err != nil || d == nil {
		return nil, err
	}
	k.cache.Add(nodeType, d)
	k.cache.Add(d.Type, d)
	return d, nil
}

func (k *KB) lookupOne(ctx context.Context, fullType string) (*NodeDescriptor, error) {
	row := k.store.DB().QueryRowContext(ctx, selectNodeSQL+` WHERE type = ?`, fullType)
	return k.scanNode(ctx, row)
}

func (k *KB) lookupByAlias(ctx context.Context, alias string) (*NodeDescriptor, error) {
	row := k.store.DB().QueryRowContext(
		ctx,
		selectNodeSQL+` WHERE alias = ? COLLATE NOCASE ORDER BY type LIMIT 1`,
		alias,
	)
	return k.scanNode(ctx, row)
}

const selectNodeSQL = `SELECT type, alias, display_name, category, subcategory, description,
	properties_json, credentials_json, latest_version, supported_versions, docs, breaking_changes_json
	FROM nodes`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanNode decodes one catalog row. A row whose JSON columns fail to
// decode is treated as absent after a verbose-only warning, so one bad
// record cannot poison a whole validation run.
func (k *KB) scanNode(ctx context.Context, row rowScanner) (*NodeDescriptor, error) {
	var (
		d            NodeDescriptor
		subcategory  sql.NullString
		description  sql.NullString
		docs         sql.NullString
		propsJSON    []byte
		credsJSON    []byte
		versionsJSON []byte
		breakingJSON []byte
	)
	err := row.Scan(
		&d.Type, &d.Alias, &d.DisplayName, &d.Category, &subcategory, &description,
		&propsJSON, &credsJSON, &d.LatestVersion, &versionsJSON, &docs, &breakingJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kb: scan node row: %w", err)
	}
	d.Subcategory = subcategory.String
	d.Description = description.String
	d.Docs = docs.String
	if err := decodeColumn(propsJSON, &d.Properties); err != nil {
		logger.FromContext(ctx).Debug("skipping corrupt catalog row", "type", d.Type, "column", "properties_json", "error", err)
		return nil, nil
	}
	if err := decodeColumn(credsJSON, &d.Credentials); err != nil {
		logger.FromContext(ctx).Debug("skipping corrupt catalog row", "type", d.Type, "column", "credentials_json", "error", err)
		return nil, nil
	}
	if err := decodeColumn(versionsJSON, &d.SupportedVersions); err != nil {
		logger.FromContext(ctx).Debug("skipping corrupt catalog row", "type", d.Type, "column", "supported_versions", "error", err)
		return nil, nil
	}
	if err := decodeColumn(breakingJSON, &d.BreakingChanges); err != nil {
		logger.FromContext(ctx).Debug("skipping corrupt catalog row", "type", d.Type, "column", "breaking_changes_json", "error", err)
		return nil, nil
	}
	return &d, nil
}

func decodeColumn(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return sqlite.FromJSONText(b, v)
}

// ResolveType implements workflow.TypeResolver: it expands a short node
// type to its fully qualified form.
func (k *KB) ResolveType(ctx context.Context, shortType string) (string, bool) {
	d, err := k.LookupByType(ctx, shortType)
	if err != nil || d == nil {
		return "", false
	}
	return d.Type, true
}

// Statistics summarizes the catalog. The result is computed once and
// cached for the life of the handle.
func (k *KB) Statistics(ctx context.Context) (*CatalogStats, error) {
	k.statsMu.Lock()
	defer k.statsMu.Unlock()
	if k.stats != nil {
		return k.stats, nil
	}
	stats := &CatalogStats{
		Path:       k.store.Path(),
		FTS:        k.fts,
		Categories: make(map[string]int),
	}
	db := k.store.DB()
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&stats.Nodes); err != nil {
		return nil, fmt.Errorf("kb: count nodes: %w", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`).Scan(&stats.Templates); err != nil {
		return nil, fmt.Errorf("kb: count templates: %w", err)
	}
	rows, err := db.QueryContext(ctx, `SELECT category, COUNT(*) FROM nodes GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("kb: count categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("kb: scan category count: %w", err)
		}
		stats.Categories[cat] = n
		if strings.EqualFold(cat, "trigger") {
			stats.Triggers += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kb: iterate category counts: %w", err)
	}
	err = db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM nodes WHERE type LIKE '@n8n/n8n-nodes-langchain.%' OR type LIKE 'n8n-nodes-langchain.%'`,
	).Scan(&stats.AINodes)
	if err != nil {
		return nil, fmt.Errorf("kb: count ai nodes: %w", err)
	}
	k.stats = stats
	return stats, nil
}

// ListByCategory returns summaries of every node in the given category,
// ordered by display name. An empty category lists the whole catalog.
func (k *KB) ListByCategory(ctx context.Context, category string, limit int) ([]NodeHit, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT type, alias, display_name, category, description, latest_version FROM nodes`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ? COLLATE NOCASE`
		args = append(args, category)
	}
	query += ` ORDER BY display_name LIMIT ?`
	args = append(args, limit)
	rows, err := k.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("kb: list nodes: %w", err)
	}
	defer rows.Close()
	return scanHits(rows)
}

func scanHits(rows *sql.Rows) ([]NodeHit, error) {
	var out []NodeHit
	for rows.Next() {
		var h NodeHit
		var desc sql.NullString
		if err := rows.Scan(&h.Type, &h.Alias, &h.DisplayName, &h.Category, &desc, &h.LatestVersion); err != nil {
			return nil, fmt.Errorf("kb: scan node hit: %w", err)
		}
		h.Description = desc.String
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kb: iterate node hits: %w", err)
	}
	return out, nil
}

package kb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/n8nkit/n8nkit/engine/infra/sqlite"
	"github.com/n8nkit/n8nkit/pkg/logger"
)

// The catalog is produced offline and shipped next to the binary; the
// builder below exists for that pipeline and for test fixtures. The plain
// tables are mandatory, the *_fts tables are created only when the driver
// has FTS5 so a catalog stays usable on stripped-down builds.
const catalogSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	type                  TEXT PRIMARY KEY,
	alias                 TEXT NOT NULL DEFAULT '',
	display_name          TEXT NOT NULL DEFAULT '',
	category              TEXT NOT NULL DEFAULT '',
	subcategory           TEXT,
	description           TEXT,
	properties_json       TEXT,
	credentials_json      TEXT,
	latest_version        REAL NOT NULL DEFAULT 1,
	supported_versions    TEXT,
	docs                  TEXT,
	breaking_changes_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_nodes_alias ON nodes (alias);
CREATE INDEX IF NOT EXISTS idx_nodes_category ON nodes (category);
CREATE TABLE IF NOT EXISTS templates (
	id            INTEGER PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT,
	workflow_json TEXT NOT NULL,
	node_count    INTEGER NOT NULL DEFAULT 0,
	views         INTEGER NOT NULL DEFAULT 0,
	complexity    TEXT,
	category      TEXT,
	tasks         TEXT,
	services      TEXT,
	setup_minutes INTEGER NOT NULL DEFAULT 0
);
`

const catalogFTSSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS node_fts USING fts5(
	display_name, description, category, alias, type
);
CREATE VIRTUAL TABLE IF NOT EXISTS property_fts USING fts5(
	node_type, path, name, description, type_tag
);
CREATE VIRTUAL TABLE IF NOT EXISTS templates_fts USING fts5(
	name, description, tasks, services
);
`

// CatalogBuilder writes a node catalog database.
type CatalogBuilder struct {
	store *sqlite.Store
	fts   bool
}

// NewCatalogBuilder opens (or creates) a writable catalog at path and
// ensures its schema.
func NewCatalogBuilder(ctx context.Context, path string) (*CatalogBuilder, error) {
	store, err := sqlite.NewStore(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("kb: open catalog for writing: %w", err)
	}
	b := &CatalogBuilder{store: store, fts: store.HasFTS5(ctx)}
	if _, err := store.DB().ExecContext(ctx, catalogSchema); err != nil {
		store.Close(ctx)
		return nil, fmt.Errorf("kb: create catalog schema: %w", err)
	}
	if b.fts {
		if _, err := store.DB().ExecContext(ctx, catalogFTSSchema); err != nil {
			store.Close(ctx)
			return nil, fmt.Errorf("kb: create catalog fts schema: %w", err)
		}
	}
	return b, nil
}

// Close releases the catalog handle.
func (b *CatalogBuilder) Close(ctx context.Context) error {
	return b.store.Close(ctx)
}

// PutNode upserts one node descriptor together with its search rows.
func (b *CatalogBuilder) PutNode(ctx context.Context, d *NodeDescriptor) error {
	propsJSON, err := sqlite.ToJSONText(d.Properties)
	if err != nil {
		return fmt.Errorf("kb: encode properties for %s: %w", d.Type, err)
	}
	credsJSON, err := sqlite.ToJSONText(d.Credentials)
	if err != nil {
		return fmt.Errorf("kb: encode credentials for %s: %w", d.Type, err)
	}
	versionsJSON, err := sqlite.ToJSONText(d.SupportedVersions)
	if err != nil {
		return fmt.Errorf("kb: encode versions for %s: %w", d.Type, err)
	}
	breakingJSON, err := sqlite.ToJSONText(d.BreakingChanges)
	if err != nil {
		return fmt.Errorf("kb: encode breaking changes for %s: %w", d.Type, err)
	}
	tx, err := b.store.DB().BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("kb: begin put node: %w", err)
	}
	defer func() {
		if err != nil {
			if rb := tx.Rollback(); rb != nil {
				logger.FromContext(ctx).Warn("kb: rollback failed", "error", rb)
			}
		}
	}()
	var res sql.Result
	res, err = tx.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO nodes
			(type, alias, display_name, category, subcategory, description,
			 properties_json, credentials_json, latest_version, supported_versions, docs, breaking_changes_json)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.Type, d.Alias, d.DisplayName, d.Category, d.Subcategory, d.Description,
		string(propsJSON), string(credsJSON), d.LatestVersion, string(versionsJSON), d.Docs, string(breakingJSON),
	)
	if err != nil {
		return fmt.Errorf("kb: put node %s: %w", d.Type, err)
	}
	if b.fts {
		var rowid int64
		rowid, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("kb: node rowid for %s: %w", d.Type, err)
		}
		_, err = tx.ExecContext(
			ctx,
			`INSERT OR REPLACE INTO node_fts (rowid, display_name, description, category, alias, type)
			 VALUES (?,?,?,?,?,?)`,
			rowid, d.DisplayName, d.Description, d.Category, d.Alias, d.Type,
		)
		if err != nil {
			return fmt.Errorf("kb: index node %s: %w", d.Type, err)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM property_fts WHERE node_type = ?`, d.Type); err != nil {
			return fmt.Errorf("kb: clear property index for %s: %w", d.Type, err)
		}
		for i := range d.Properties {
			p := &d.Properties[i]
			_, err = tx.ExecContext(
				ctx,
				`INSERT INTO property_fts (node_type, path, name, description, type_tag) VALUES (?,?,?,?,?)`,
				d.Type, p.Name, p.Name, p.Description, p.Type,
			)
			if err != nil {
				return fmt.Errorf("kb: index property %s.%s: %w", d.Type, p.Name, err)
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("kb: commit put node %s: %w", d.Type, err)
	}
	return nil
}

// PutPropertyDoc adds one extra property-search row, used for nested
// collection members whose paths the flat descriptor does not carry.
func (b *CatalogBuilder) PutPropertyDoc(ctx context.Context, nodeType, path, name, description, typeTag string) error {
	if !b.fts {
		return nil
	}
	_, err := b.store.DB().ExecContext(
		ctx,
		`INSERT INTO property_fts (node_type, path, name, description, type_tag) VALUES (?,?,?,?,?)`,
		nodeType, path, name, description, typeTag,
	)
	if err != nil {
		return fmt.Errorf("kb: index property doc %s.%s: %w", nodeType, path, err)
	}
	return nil
}

// PutTemplate upserts one template together with its search row.
func (b *CatalogBuilder) PutTemplate(ctx context.Context, t *Template) error {
	tx, err := b.store.DB().BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("kb: begin put template: %w", err)
	}
	defer func() {
		if err != nil {
			if rb := tx.Rollback(); rb != nil {
				logger.FromContext(ctx).Warn("kb: rollback failed", "error", rb)
			}
		}
	}()
	_, err = tx.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO templates
			(id, name, description, workflow_json, node_count, views, complexity, category, tasks, services, setup_minutes)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Name, t.Description, string(t.Workflow), t.NodeCount, t.Views,
		t.Complexity, t.Category, joinList(t.Tasks), joinList(t.Services), t.SetupMinutes,
	)
	if err != nil {
		return fmt.Errorf("kb: put template %d: %w", t.ID, err)
	}
	if b.fts {
		_, err = tx.ExecContext(
			ctx,
			`INSERT OR REPLACE INTO templates_fts (rowid, name, description, tasks, services)
			 VALUES (?,?,?,?,?)`,
			t.ID, t.Name, t.Description, joinList(t.Tasks), joinList(t.Services),
		)
		if err != nil {
			return fmt.Errorf("kb: index template %d: %w", t.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("kb: commit put template %d: %w", t.ID, err)
	}
	return nil
}

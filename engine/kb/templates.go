package kb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

const selectTemplateSQL = `SELECT id, name, description, workflow_json, node_count, views,
	complexity, category, tasks, services, setup_minutes FROM templates`

// SearchTemplates runs a ranked search over the template library. An empty
// query returns the most-viewed templates.
func (k *KB) SearchTemplates(ctx context.Context, query string, limit int) ([]TemplateSummary, error) {
	limit = clampLimit(limit)
	query = strings.TrimSpace(query)
	if query == "" {
		return k.topTemplates(ctx, limit)
	}
	if k.fts {
		hits, err := k.ftsTemplateSearch(ctx, query, limit)
		if err == nil {
			return hits, nil
		}
		k.degradeToLike(ctx, err)
	}
	return k.likeTemplateSearch(ctx, query, limit)
}

func (k *KB) topTemplates(ctx context.Context, limit int) ([]TemplateSummary, error) {
	rows, err := k.store.DB().QueryContext(
		ctx,
		`SELECT id, name, description, node_count, views, complexity, category, tasks, services, setup_minutes
		 FROM templates ORDER BY views DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("kb: list templates: %w", err)
	}
	defer rows.Close()
	return scanTemplateSummaries(rows)
}

func (k *KB) ftsTemplateSearch(ctx context.Context, query string, limit int) ([]TemplateSummary, error) {
	match := buildMatchExpr(query, SearchOR)
	if match == "" {
		return nil, nil
	}
	rows, err := k.store.DB().QueryContext(
		ctx,
		`SELECT t.id, t.name, t.description, t.node_count, t.views, t.complexity, t.category,
			t.tasks, t.services, t.setup_minutes
		 FROM templates_fts
		 JOIN templates t ON t.id = templates_fts.rowid
		 WHERE templates_fts MATCH ?
		 ORDER BY bm25(templates_fts), t.views DESC
		 LIMIT ?`,
		match, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("kb: fts template search: %w", err)
	}
	defer rows.Close()
	return scanTemplateSummaries(rows)
}

func (k *KB) likeTemplateSearch(ctx context.Context, query string, limit int) ([]TemplateSummary, error) {
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
		clauses = append(clauses, `(name LIKE ? OR description LIKE ? OR tasks LIKE ? OR services LIKE ?)`)
		args = append(args, pat, pat, pat, pat)
	}
	args = append(args, limit)
	rows, err := k.store.DB().QueryContext(
		ctx,
		`SELECT id, name, description, node_count, views, complexity, category, tasks, services, setup_minutes
		 FROM templates WHERE `+strings.Join(clauses, " OR ")+` ORDER BY views DESC, id LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("kb: substring template search: %w", err)
	}
	defer rows.Close()
	return scanTemplateSummaries(rows)
}

func scanTemplateSummaries(rows *sql.Rows) ([]TemplateSummary, error) {
	var out []TemplateSummary
	for rows.Next() {
		var (
			t               TemplateSummary
			desc            sql.NullString
			complexity      sql.NullString
			category        sql.NullString
			tasks, services sql.NullString
		)
		err := rows.Scan(
			&t.ID, &t.Name, &desc, &t.NodeCount, &t.Views,
			&complexity, &category, &tasks, &services, &t.SetupMinutes,
		)
		if err != nil {
			return nil, fmt.Errorf("kb: scan template row: %w", err)
		}
		t.Description = desc.String
		t.Complexity = complexity.String
		t.Category = category.String
		t.Tasks = splitList(tasks.String)
		t.Services = splitList(services.String)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kb: iterate template rows: %w", err)
	}
	return out, nil
}

// splitList decodes the comma-separated list columns (tasks, services).
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinList(items []string) string {
	return strings.Join(items, ",")
}

// GetTemplate loads one template with its workflow body. Returns
// (nil, nil) when the id is unknown.
func (k *KB) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	var (
		t               Template
		desc            sql.NullString
		complexity      sql.NullString
		category        sql.NullString
		tasks, services sql.NullString
		workflowJSON    []byte
	)
	err := k.store.DB().QueryRowContext(ctx, selectTemplateSQL+` WHERE id = ?`, id).Scan(
		&t.ID, &t.Name, &desc, &workflowJSON, &t.NodeCount, &t.Views,
		&complexity, &category, &tasks, &services, &t.SetupMinutes,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kb: get template %d: %w", id, err)
	}
	t.Description = desc.String
	t.Complexity = complexity.String
	t.Category = category.String
	t.Tasks = splitList(tasks.String)
	t.Services = splitList(services.String)
	t.Workflow = workflowJSON
	return &t, nil
}

// TemplatesForNodes finds templates whose workflows use every one of the
// given node types, most viewed first. The LIKE clauses narrow the scan;
// the gjson probe over nodes.#.type drops rows where the type string only
// appears in a note or parameter value.
func (k *KB) TemplatesForNodes(ctx context.Context, nodeTypes []string, limit int) ([]TemplateSummary, error) {
	limit = clampLimit(limit)
	if len(nodeTypes) == 0 {
		return k.topTemplates(ctx, limit)
	}
	var (
		clauses []string
		args    []any
		wanted  []string
	)
	for _, raw := range nodeTypes {
		full := raw
		if d, err := k.LookupByType(ctx, raw); err != nil {
			return nil, err
		} else if d != nil {
			full = d.Type
		}
		wanted = append(wanted, full)
		clauses = append(clauses, `workflow_json LIKE ?`)
		args = append(args, `%"`+full+`"%`)
	}
	rows, err := k.store.DB().QueryContext(
		ctx,
		`SELECT id, name, description, workflow_json, node_count, views, complexity, category,
			tasks, services, setup_minutes
		 FROM templates WHERE `+strings.Join(clauses, " AND ")+` ORDER BY views DESC, id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("kb: templates for nodes: %w", err)
	}
	defer rows.Close()
	var out []TemplateSummary
	for rows.Next() {
		var (
			t               TemplateSummary
			desc            sql.NullString
			complexity      sql.NullString
			category        sql.NullString
			tasks, services sql.NullString
			workflowJSON    []byte
		)
		err := rows.Scan(
			&t.ID, &t.Name, &desc, &workflowJSON, &t.NodeCount, &t.Views,
			&complexity, &category, &tasks, &services, &t.SetupMinutes,
		)
		if err != nil {
			return nil, fmt.Errorf("kb: scan template row: %w", err)
		}
		if !workflowUsesTypes(workflowJSON, wanted) {
			continue
		}
		t.Description = desc.String
		t.Complexity = complexity.String
		t.Category = category.String
		t.Tasks = splitList(tasks.String)
		t.Services = splitList(services.String)
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kb: iterate template rows: %w", err)
	}
	return out, nil
}

// workflowUsesTypes probes the raw template body for the node types without
// decoding the whole document.
func workflowUsesTypes(workflowJSON []byte, types []string) bool {
	used := gjson.GetBytes(workflowJSON, "nodes.#.type")
	if !used.Exists() {
		return false
	}
	for _, want := range types {
		found := false
		used.ForEach(func(_, v gjson.Result) bool {
			if v.Str == want {
				found = true
				return false
			}
			return true
		})
		if !found {
			return false
		}
	}
	return true
}

// TemplatesForTask lists templates tagged with the given task keyword,
// e.g. "webhook_processing" or "data_sync".
func (k *KB) TemplatesForTask(ctx context.Context, task string, limit int) ([]TemplateSummary, error) {
	limit = clampLimit(limit)
	task = strings.TrimSpace(task)
	if task == "" {
		return k.topTemplates(ctx, limit)
	}
	rows, err := k.store.DB().QueryContext(
		ctx,
		`SELECT id, name, description, node_count, views, complexity, category, tasks, services, setup_minutes
		 FROM templates WHERE tasks LIKE ? ORDER BY views DESC, id LIMIT ?`,
		"%"+task+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("kb: templates for task: %w", err)
	}
	defer rows.Close()
	return scanTemplateSummaries(rows)
}

// ListTasks returns every distinct task keyword in the template library
// with its template count.
func (k *KB) ListTasks(ctx context.Context) (map[string]int, error) {
	rows, err := k.store.DB().QueryContext(ctx, `SELECT tasks FROM templates WHERE tasks != ''`)
	if err != nil {
		return nil, fmt.Errorf("kb: list tasks: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var tasks string
		if err := rows.Scan(&tasks); err != nil {
			return nil, fmt.Errorf("kb: scan tasks: %w", err)
		}
		for _, t := range splitList(tasks) {
			counts[t]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kb: iterate tasks: %w", err)
	}
	return counts, nil
}

// SortedTaskNames returns the task keywords of ListTasks in stable order.
func SortedTaskNames(counts map[string]int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

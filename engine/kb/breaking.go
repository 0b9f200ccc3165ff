package kb

import (
	"context"
	"sort"

	"github.com/n8nkit/n8nkit/engine/core"
)

// ChangeFilter narrows a breaking-change query. The zero value keeps
// everything.
type ChangeFilter struct {
	MinSeverity        Severity
	AutoMigratableOnly bool
}

// BreakingChanges returns the changes that take effect when moving a node
// from one typeVersion to another, ordered by the version they land in
// and then by severity, worst first.
func (k *KB) BreakingChanges(ctx context.Context, nodeType string, from, to float64, f ChangeFilter) ([]BreakingChange, error) {
	d, err := k.LookupByType(ctx, nodeType)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, core.NewError(core.KindData, core.CodeInvalidNodeTypeFormat, "unknown node type %q", nodeType)
	}
	if to == 0 {
		to = d.LatestVersion
	}
	var out []BreakingChange
	for _, bc := range d.BreakingChanges {
		if bc.ToVersion <= from || bc.ToVersion > to {
			continue
		}
		if f.MinSeverity != "" && !bc.Severity.AtLeast(f.MinSeverity) {
			continue
		}
		if f.AutoMigratableOnly && !bc.AutoMigratable {
			continue
		}
		out = append(out, bc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ToVersion != out[j].ToVersion {
			return out[i].ToVersion < out[j].ToVersion
		}
		return severityRank(out[i].Severity) > severityRank(out[j].Severity)
	})
	return out, nil
}

package validate

import (
	"context"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/kb"
)

// checkVersions reports nodes running behind the catalog's latest
// typeVersion. The finding severity follows the worst breaking change in
// the pending window: none -> info, low -> info, medium -> warning,
// high -> error. The configured floor drops milder findings entirely.
func (r *run) checkVersions(ctx context.Context) error {
	for _, n := range r.wf.Nodes {
		d, err := r.descriptor(ctx, n.Type)
		if err != nil {
			return err
		}
		if d == nil || n.TypeVersion <= 0 || n.TypeVersion >= d.LatestVersion {
			continue
		}
		changes, err := r.kb.BreakingChanges(ctx, d.Type, n.TypeVersion, d.LatestVersion, kb.ChangeFilter{})
		if err != nil {
			return err
		}
		worst := kb.SeverityLow
		for _, bc := range changes {
			if bc.Severity.AtLeast(worst) {
				worst = bc.Severity
			}
		}
		if r.opts.VersionSeverityFloor != "" && !worst.AtLeast(r.opts.VersionSeverityFloor) {
			continue
		}
		details := map[string]any{
			"current": n.TypeVersion,
			"latest":  d.LatestVersion,
		}
		if len(changes) > 0 {
			details["breakingChanges"] = changes
		}
		switch worst {
		case kb.SeverityHigh:
			r.addErrorDetails(core.CodeTypeVersionOutdated, n.Name, "typeVersion", details,
				"node %q runs typeVersion %v; upgrading to %v crosses breaking changes",
				n.Name, n.TypeVersion, d.LatestVersion)
		case kb.SeverityMedium:
			r.addWarningDetails(ProfileMinimal, core.CodeTypeVersionOutdated, n.Name, "typeVersion", details,
				"node %q runs typeVersion %v; %v is available with notable changes",
				n.Name, n.TypeVersion, d.LatestVersion)
		default:
			r.addInfo(core.CodeTypeVersionOutdated, n.Name, "typeVersion", details,
				"node %q runs typeVersion %v; %v is available",
				n.Name, n.TypeVersion, d.LatestVersion)
		}
	}
	return nil
}

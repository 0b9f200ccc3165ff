package autofix

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/kb"
	"github.com/n8nkit/n8nkit/engine/validate"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// Base scores per generator. The 0-100 scale maps to classes in
// ConfidenceFor; node-type corrections derive their score from the
// similarity ranking instead.
const (
	scoreExpressionFormat  = 95
	scoreExpressionLiteral = 65
	scoreWebhookPath       = 75
	scoreSwitchOptions     = 90
	scoreVersionClamp      = 75
	scoreErrorOutput       = 70
	scoreUpgradeClean      = 70
	scoreUpgradeBreaking   = 50
	scoreMigrationAdvice   = 40

	// similarityOffer is the floor below which type corrections are not
	// offered at all; at or above kb.SimilarityAutoFix they are high class.
	similarityOffer = 0.75
)

// genExpressionFormat wraps unevaluated {{...}} string leaves with the '='
// prefix. Values that parse as standalone JSON may be intentional literals
// carrying template text, so their score drops to the medium class.
func (r *run) genExpressionFormat() {
	for _, n := range r.wf.Nodes {
		if len(n.Parameters) == 0 {
			continue
		}
		nodeName := n.Name
		core.WalkStrings("", n.Parameters, func(path, value string) {
			if !validate.ContainsExpression(value) || strings.HasPrefix(value, "=") {
				return
			}
			score := scoreExpressionFormat
			if json.Valid([]byte(value)) {
				score = scoreExpressionLiteral
			}
			fixed := "=" + value
			r.add(Fix{
				Type:        FixExpressionFormat,
				Score:       score,
				Node:        nodeName,
				Property:    path,
				Description: fmt.Sprintf("prefix %s with '=' so the expression is evaluated", path),
				Before:      value,
				After:       fixed,
				Updates:     map[string]any{"parameters." + path: fixed},
			})
		})
	}
}

// genNodeTypeCorrection replaces unknown node types with the top similarity
// suggestion when it clears the offer floor.
func (r *run) genNodeTypeCorrection() error {
	for _, n := range r.wf.Nodes {
		if strings.TrimSpace(n.Type) == "" {
			continue
		}
		d, err := r.descriptor(n.Type)
		if err != nil {
			return err
		}
		if d != nil {
			continue
		}
		suggestions, err := r.kb.SimilarTypes(r.ctx, n.Type, 1)
		if err != nil {
			return core.WrapError(core.KindIO, core.CodeKBError, err, "autofix: suggest types for %q", n.Type)
		}
		if len(suggestions) == 0 || suggestions[0].Score < similarityOffer {
			continue
		}
		top := suggestions[0]
		class := ConfidenceMedium
		if top.Score >= kb.SimilarityAutoFix {
			class = ConfidenceHigh
		}
		r.add(Fix{
			Type:        FixNodeTypeCorrection,
			Confidence:  class,
			Score:       int(math.Round(top.Score * 100)),
			Node:        n.Name,
			Property:    "type",
			Description: fmt.Sprintf("replace unknown type %q with %q (%s)", n.Type, top.Type, top.Reason),
			Before:      n.Type,
			After:       top.Type,
			Updates:     map[string]any{"type": top.Type},
			Guidance: &Guidance{
				Node:    n.Name,
				FixType: FixNodeTypeCorrection,
				Status:  GuidanceComplete,
				BehaviorChanges: []string{
					fmt.Sprintf("node type changed from %s to %s", n.Type, top.Type),
				},
				RequiredActions: []string{
					"review the node's parameters against the corrected type",
				},
				EstimatedTime: "1 minute",
			},
		})
	}
	return nil
}

// genWebhookMissingPath synthesizes a UUID path for webhook nodes without
// one, matching what the platform editor does on node creation.
func (r *run) genWebhookMissingPath() {
	for _, n := range r.wf.Nodes {
		if n.Type != workflow.TypeWebhook {
			continue
		}
		if !isEmptyParam(n.Parameters["path"]) {
			continue
		}
		path := uuid.NewString()
		r.add(Fix{
			Type:        FixWebhookMissingPath,
			Score:       scoreWebhookPath,
			Node:        n.Name,
			Property:    "path",
			Description: fmt.Sprintf("set a generated webhook path so node %q is reachable", n.Name),
			After:       path,
			Updates:     map[string]any{"parameters.path": path},
		})
	}
}

// genSwitchOptions upgrades the legacy options shapes on conditional nodes
// running schema version 3 or later: an empty-array options value becomes an
// object, and looseTypeValidation becomes typeValidation: "loose".
func (r *run) genSwitchOptions() error {
	for _, n := range r.wf.Nodes {
		if n.Type != workflow.TypeIf && n.Type != workflow.TypeSwitch {
			continue
		}
		if n.TypeVersion < 3 {
			continue
		}
		raw, ok := n.Parameters["options"]
		if !ok {
			continue
		}
		if list, isList := raw.([]any); isList && len(list) == 0 {
			r.add(Fix{
				Type:        FixSwitchOptions,
				Score:       scoreSwitchOptions,
				Node:        n.Name,
				Property:    "options",
				Description: fmt.Sprintf("convert the legacy empty-array options of %q to an object", n.Name),
				Before:      []any{},
				After:       map[string]any{},
				Updates:     map[string]any{"parameters.options": map[string]any{}},
			})
			continue
		}
		opts := core.AsMap(raw)
		if opts == nil {
			continue
		}
		loose, has := opts["looseTypeValidation"]
		if !has {
			continue
		}
		upgraded, err := core.DeepCopyMap(opts)
		if err != nil {
			return core.WrapError(core.KindInternal, core.CodeInternal, err, "autofix: copy options of %q", n.Name)
		}
		delete(upgraded, "looseTypeValidation")
		if b, isBool := loose.(bool); isBool && b {
			if _, exists := upgraded["typeValidation"]; !exists {
				upgraded["typeValidation"] = "loose"
			}
		}
		r.add(Fix{
			Type:        FixSwitchOptions,
			Score:       scoreSwitchOptions,
			Node:        n.Name,
			Property:    "options",
			Description: fmt.Sprintf("replace looseTypeValidation on %q with the v3 typeValidation option", n.Name),
			Before:      opts,
			After:       upgraded,
			Updates:     map[string]any{"parameters.options": upgraded},
		})
	}
	return nil
}

// genTypeVersionCorrection clamps typeVersion down to the latest published
// version when it exceeds it.
func (r *run) genTypeVersionCorrection() error {
	for _, n := range r.wf.Nodes {
		d, err := r.descriptor(n.Type)
		if err != nil {
			return err
		}
		if d == nil || d.LatestVersion <= 0 || n.TypeVersion <= d.LatestVersion {
			continue
		}
		r.add(Fix{
			Type:        FixTypeVersionCorrection,
			Score:       scoreVersionClamp,
			Node:        n.Name,
			Property:    "typeVersion",
			Description: fmt.Sprintf("clamp typeVersion of %q from %v to the latest published %v", n.Name, n.TypeVersion, d.LatestVersion),
			Before:      n.TypeVersion,
			After:       d.LatestVersion,
			Updates:     map[string]any{"typeVersion": d.LatestVersion},
			Guidance: &Guidance{
				Node:    n.Name,
				FixType: FixTypeVersionCorrection,
				Status:  GuidanceComplete,
				BehaviorChanges: []string{
					fmt.Sprintf("typeVersion lowered from %v to %v, the latest version the platform ships", n.TypeVersion, d.LatestVersion),
				},
				EstimatedTime: "1 minute",
			},
		})
	}
	return nil
}

// genErrorOutputConfig removes onError routing from nodes whose descriptor
// does not support it (triggers).
func (r *run) genErrorOutputConfig() error {
	for _, n := range r.wf.Nodes {
		if n.OnError == "" {
			continue
		}
		d, err := r.descriptor(n.Type)
		if err != nil {
			return err
		}
		if d == nil || d.SupportsOnError() {
			continue
		}
		r.add(Fix{
			Type:        FixErrorOutputConfig,
			Score:       scoreErrorOutput,
			Node:        n.Name,
			Property:    "onError",
			Description: fmt.Sprintf("remove onError from %q; %s does not support error routing", n.Name, d.Type),
			Before:      n.OnError,
			Updates:     map[string]any{"onError": nil},
		})
	}
	return nil
}

// genTypeVersionUpgrade raises outdated typeVersions to latest and folds any
// auto-migratable parameter rewrites from the catalog into the same update.
func (r *run) genTypeVersionUpgrade() error {
	for _, n := range r.wf.Nodes {
		d, err := r.descriptor(n.Type)
		if err != nil {
			return err
		}
		if d == nil || n.TypeVersion <= 0 || n.TypeVersion >= d.LatestVersion {
			continue
		}
		changes, err := r.breakingChanges(d.Type, n.TypeVersion, d.LatestVersion)
		if err != nil {
			return err
		}

		updates := map[string]any{"typeVersion": d.LatestVersion}
		var migrated []string
		var manual []string
		for _, bc := range changes {
			if !bc.AutoMigratable || bc.Migration == nil {
				manual = append(manual, bc.Description)
				continue
			}
			notes, err := stageMigration(n.Parameters, bc.Migration, updates)
			if err != nil {
				return err
			}
			migrated = append(migrated, notes...)
		}

		score := scoreUpgradeClean
		if len(changes) > 0 {
			score = scoreUpgradeBreaking
		}
		g := &Guidance{
			Node:            n.Name,
			FixType:         FixTypeVersionUpgrade,
			Status:          GuidanceComplete,
			BehaviorChanges: migrated,
			EstimatedTime:   "1 minute",
		}
		if len(changes) > 0 {
			g.Status = GuidancePartial
			g.RequiredActions = append([]string{"verify the node's configuration after the upgrade"}, manual...)
			g.EstimatedTime = fmt.Sprintf("%d minutes", 5+10*len(manual))
		}
		r.add(Fix{
			Type:        FixTypeVersionUpgrade,
			Score:       score,
			Node:        n.Name,
			Property:    "typeVersion",
			Description: fmt.Sprintf("upgrade %q from typeVersion %v to %v", n.Name, n.TypeVersion, d.LatestVersion),
			Before:      n.TypeVersion,
			After:       d.LatestVersion,
			Updates:     updates,
			Guidance:    g,
		})
	}
	return nil
}

// stageMigration folds one catalog migration into the updateNode payload and
// returns human-readable notes for the rewrites it staged. Carried values are
// deep-copied so the payload never aliases the live document, and paths are
// processed in sorted order so output is stable.
func stageMigration(params map[string]any, m *kb.Migration, updates map[string]any) ([]string, error) {
	var notes []string
	for _, from := range sortedKeys(m.RenameParameters) {
		to := m.RenameParameters[from]
		value, ok := core.GetPath(params, from)
		if !ok {
			continue
		}
		copied, err := core.DeepCopy(value)
		if err != nil {
			return nil, core.WrapError(core.KindInternal, core.CodeInternal, err, "autofix: copy parameter %s", from)
		}
		updates["parameters."+to] = copied
		updates["parameters."+from] = nil
		notes = append(notes, fmt.Sprintf("parameter %s renamed to %s", from, to))
	}
	for _, path := range sortedKeys(m.SetParameters) {
		updates["parameters."+path] = m.SetParameters[path]
		notes = append(notes, fmt.Sprintf("parameter %s set to its new default", path))
	}
	removals := append([]string(nil), m.RemoveParameters...)
	sort.Strings(removals)
	for _, path := range removals {
		if _, ok := core.GetPath(params, path); !ok {
			continue
		}
		updates["parameters."+path] = nil
		notes = append(notes, fmt.Sprintf("parameter %s removed", path))
	}
	return notes, nil
}

// genVersionMigration surfaces the manual steps of pending non-migratable
// breaking changes as guidance without touching the workflow.
func (r *run) genVersionMigration() error {
	for _, n := range r.wf.Nodes {
		d, err := r.descriptor(n.Type)
		if err != nil {
			return err
		}
		if d == nil || n.TypeVersion <= 0 || n.TypeVersion >= d.LatestVersion {
			continue
		}
		changes, err := r.breakingChanges(d.Type, n.TypeVersion, d.LatestVersion)
		if err != nil {
			return err
		}
		var manual []string
		for _, bc := range changes {
			if bc.AutoMigratable && bc.Migration != nil {
				continue
			}
			manual = append(manual, bc.Description)
		}
		if len(manual) == 0 {
			continue
		}
		r.add(Fix{
			Type:        FixVersionMigration,
			Score:       scoreMigrationAdvice,
			Node:        n.Name,
			Property:    "typeVersion",
			Description: fmt.Sprintf("manual migration steps for upgrading %q from %v to %v", n.Name, n.TypeVersion, d.LatestVersion),
			Guidance: &Guidance{
				Node:            n.Name,
				FixType:         FixVersionMigration,
				Status:          GuidanceManualOnly,
				RequiredActions: manual,
				EstimatedTime:   fmt.Sprintf("%d minutes", 10*len(manual)),
			},
		})
	}
	return nil
}

func (r *run) breakingChanges(nodeType string, from, to float64) ([]kb.BreakingChange, error) {
	changes, err := r.kb.BreakingChanges(r.ctx, nodeType, from, to, kb.ChangeFilter{})
	if err != nil {
		return nil, core.WrapError(core.KindIO, core.CodeKBError, err, "autofix: breaking changes for %q", nodeType)
	}
	return changes, nil
}

// isEmptyParam reports whether a parameter is missing for practical
// purposes: absent, null, or whitespace-only.
func isEmptyParam(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

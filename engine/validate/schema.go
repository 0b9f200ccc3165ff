package validate

import (
	"context"
	"sort"
	"strings"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/kb"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

const similarSuggestionLimit = 5

// checkNodes runs stages two and three: per-node schema validation against
// the catalog descriptor, then the type-specific rule dispatchers.
func (r *run) checkNodes(ctx context.Context) error {
	for _, n := range r.wf.Nodes {
		if n.Type == "" {
			continue
		}
		d, err := r.descriptor(ctx, n.Type)
		if err != nil {
			return err
		}
		if d == nil {
			if err := r.unknownType(ctx, n); err != nil {
				return err
			}
			r.dispatchRules(n, nil)
			continue
		}
		r.checkNodeSchema(n, d)
		r.dispatchRules(n, d)
	}
	return nil
}

// unknownType reports an unresolvable node type together with ranked
// similarity suggestions so the caller (or autofix) can repair it.
func (r *run) unknownType(ctx context.Context, n *workflow.Node) error {
	suggestions, err := r.kb.SimilarTypes(ctx, n.Type, similarSuggestionLimit)
	if err != nil {
		return err
	}
	details := map[string]any{}
	if len(suggestions) > 0 {
		details["suggestions"] = suggestions
	}
	r.addErrorDetails(core.CodeInvalidNodeTypeFormat, n.Name, "type", details,
		"unknown node type %q", n.Type)
	return nil
}

// checkNodeSchema verifies typeVersion bounds and the required-property
// set selected by the validation mode.
func (r *run) checkNodeSchema(n *workflow.Node, d *kb.NodeDescriptor) {
	if n.TypeVersion > d.LatestVersion {
		r.addErrorDetails(core.CodeTypeVersionExceeded, n.Name, "typeVersion",
			map[string]any{"current": n.TypeVersion, "latest": d.LatestVersion},
			"node %q uses typeVersion %v but the latest published version is %v",
			n.Name, n.TypeVersion, d.LatestVersion)
	}
	if n.TypeVersion > 0 && n.TypeVersion <= d.LatestVersion && !d.SupportsVersion(n.TypeVersion) {
		r.addWarningDetails(ProfileAIFriendly, core.CodeTypeVersionOutdated, n.Name, "typeVersion",
			map[string]any{"current": n.TypeVersion, "supported": d.SupportedVersions},
			"node %q uses unpublished typeVersion %v", n.Name, n.TypeVersion)
	}
	candidates := r.candidateProperties(n, d)
	missing := missingRequired(n, candidates)
	extra := extraParameters(n, d)
	if len(missing) > 0 {
		resource := core.AsString(n.Parameters["resource"])
		operation := core.AsString(n.Parameters["operation"])
		delta := map[string]any{"missing": missing, "extra": extra}
		usage := d.MinimalParameters(resource, operation)
		for _, prop := range missing {
			r.addErrorDetails(core.CodeParameterValidation, n.Name, prop,
				map[string]any{"schemaDelta": delta, "correctUsage": usage},
				"node %q is missing required parameter %q", n.Name, prop)
		}
	}
	if len(extra) > 0 {
		for _, prop := range extra {
			r.addWarning(ProfileAIFriendly, core.CodeUnknownParameter, n.Name, prop,
				"node %q sets parameter %q which its schema does not declare", n.Name, prop)
		}
	}
	r.checkOptionValues(n, candidates)
}

// candidateProperties selects the property set the mode asks for:
// minimal keeps required+visible, operation keeps everything visible under
// the current parameters, full keeps all declared properties.
func (r *run) candidateProperties(n *workflow.Node, d *kb.NodeDescriptor) []kb.Property {
	switch r.opts.Mode {
	case ModeFull:
		return d.Properties
	case ModeMinimal:
		visible := d.VisibleProperties(n.Parameters, n.TypeVersion)
		required := visible[:0]
		for _, p := range visible {
			if p.Required {
				required = append(required, p)
			}
		}
		return required
	default:
		return d.VisibleProperties(n.Parameters, n.TypeVersion)
	}
}

func missingRequired(n *workflow.Node, candidates []kb.Property) []string {
	var missing []string
	for i := range candidates {
		p := &candidates[i]
		if !p.Required {
			continue
		}
		v, set := n.Parameters[p.Name]
		if !set || isEmptyValue(v) {
			missing = append(missing, p.Name)
		}
	}
	sort.Strings(missing)
	return missing
}

// extraParameters lists parameter keys the descriptor never declares,
// compared against all properties so display conditions cannot produce
// false positives.
func extraParameters(n *workflow.Node, d *kb.NodeDescriptor) []string {
	if len(n.Parameters) == 0 || len(d.Properties) == 0 {
		return nil
	}
	declared := make(map[string]struct{}, len(d.Properties))
	for i := range d.Properties {
		declared[d.Properties[i].Name] = struct{}{}
	}
	var extra []string
	for key := range n.Parameters {
		if _, ok := declared[key]; !ok {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return extra
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

// checkOptionValues flags values outside an options property's declared
// choices, skipping expressions which are resolved at runtime.
func (r *run) checkOptionValues(n *workflow.Node, candidates []kb.Property) {
	for i := range candidates {
		p := &candidates[i]
		if p.Type != "options" || len(p.Options) == 0 {
			continue
		}
		raw, set := n.Parameters[p.Name]
		if !set || isEmptyValue(raw) {
			continue
		}
		val := core.AsString(raw)
		if val == "" || strings.HasPrefix(val, "=") {
			continue
		}
		for _, o := range p.Options {
			if core.AsString(o.Value) == val {
				val = ""
				break
			}
		}
		if val != "" {
			r.addWarningDetails(ProfileAIFriendly, core.CodeInvalidOptionValue, n.Name, p.Name,
				map[string]any{"value": val, "allowed": optionStrings(p)},
				"node %q sets %s=%q which is not one of its declared options", n.Name, p.Name, val)
		}
	}
}

func optionStrings(p *kb.Property) []string {
	out := make([]string, 0, len(p.Options))
	for _, o := range p.Options {
		out = append(out, core.AsString(o.Value))
	}
	return out
}

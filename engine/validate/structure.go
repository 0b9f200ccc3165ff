package validate

import (
	"context"
	"strings"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/kb"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// checkStructure covers workflow-level shape: name, node list, name
// uniqueness, per-node identity fields, trigger presence.
func (r *run) checkStructure(ctx context.Context) error {
	if strings.TrimSpace(r.wf.Name) == "" {
		r.addError(core.CodeMissingWorkflowName, "", "name", "workflow name must not be empty")
	}
	if len(r.wf.Nodes) == 0 {
		r.addWarning(ProfileMinimal, core.CodeEmptyWorkflow, "", "nodes", "workflow has no nodes")
	}
	names := make(map[string]int, len(r.wf.Nodes))
	triggers := 0
	for i := range r.wf.Nodes {
		n := r.wf.Nodes[i]
		label := n.Name
		if label == "" {
			r.addError(core.CodeMissingNodeName, n.ID, "name", "node #%d has no name", i)
		}
		if strings.TrimSpace(n.Type) == "" {
			r.addError(core.CodeMissingNodeType, label, "type", "node %q has no type", label)
		}
		if n.Name != "" {
			if prev, dup := names[n.Name]; dup {
				r.addError(core.CodeDuplicateNodeName, n.Name, "",
					"node name %q is used by nodes #%d and #%d", n.Name, prev, i)
			} else {
				names[n.Name] = i
			}
		}
		isTrigger, err := r.isTrigger(ctx, n)
		if err != nil {
			return err
		}
		if isTrigger {
			triggers++
		}
		r.result.Statistics.TotalNodes++
		if !n.Disabled {
			r.result.Statistics.EnabledNodes++
		}
	}
	r.result.Statistics.TriggerNodes = triggers
	if triggers == 0 && len(r.wf.Nodes) > 0 {
		r.addWarning(ProfileRuntime, core.CodeMissingTrigger, "", "",
			"workflow has no trigger node and can only be started manually via the API")
	}
	return nil
}

// isTrigger prefers the catalog's classification and falls back to the
// type name for nodes the catalog does not know.
func (r *run) isTrigger(ctx context.Context, n *workflow.Node) (bool, error) {
	d, err := r.descriptor(ctx, n.Type)
	if err != nil {
		return false, err
	}
	if d != nil {
		return d.IsTrigger(), nil
	}
	bare := strings.ToLower(kb.BareType(n.Type))
	return strings.HasSuffix(bare, "trigger") || bare == "webhook" || bare == "cron", nil
}

// checkConnections covers stage five: endpoint resolution, self-loops,
// outlet index bounds, and the stale-connection summary.
func (r *run) checkConnections(ctx context.Context) {
	for _, ref := range r.connectionRefs() {
		valid := true
		if !r.wf.HasNode(ref.Source) {
			r.addError(core.CodeConnectionUnknownNode, ref.Source, "",
				"connection source %q does not exist", ref.Source)
			valid = false
		}
		if !r.wf.HasNode(ref.Target) {
			r.addError(core.CodeConnectionUnknownNode, ref.Target, "",
				"connection target %q (from %q) does not exist", ref.Target, ref.Source)
			valid = false
		}
		if ref.Kind == workflow.ConnMain && ref.Source == ref.Target {
			r.addError(core.CodeConnectionSelfLoop, ref.Source, "",
				"node %q connects its main output to itself", ref.Source)
			valid = false
		}
		if valid && !r.outletIndexValid(ctx, ref) {
			valid = false
		}
		if valid {
			r.result.Statistics.ValidConnections++
		} else {
			r.result.Statistics.InvalidConnections++
		}
	}
	if stale := r.wf.Stale(); len(stale) > 0 {
		r.addWarningDetails(ProfileMinimal, core.CodeStaleConnections, "", "",
			map[string]any{"count": len(stale)},
			"%d connection endpoint(s) reference missing nodes; clean them with cleanStaleConnections", len(stale))
	}
}

func (r *run) connectionRefs() []workflow.ConnectionRef {
	var refs []workflow.ConnectionRef
	r.wf.Connections.EachEndpoint(func(ref workflow.ConnectionRef) {
		refs = append(refs, ref)
	})
	return refs
}

// outletIndexValid checks the source index against the outlet count the
// node declares: two for if nodes, rule count (plus fallback) for switch,
// one plus the error outlet for everything else.
func (r *run) outletIndexValid(ctx context.Context, ref workflow.ConnectionRef) bool {
	if ref.Kind != workflow.ConnMain {
		return true
	}
	n := r.wf.Node(ref.Source)
	if n == nil {
		return true
	}
	count := r.outletCount(ctx, n)
	if ref.SourceIndex < count {
		return true
	}
	r.addErrorDetails(core.CodeConnectionBadIndex, ref.Source, "",
		map[string]any{"index": ref.SourceIndex, "outlets": count},
		"node %q has %d main outlet(s) but a connection uses index %d",
		ref.Source, count, ref.SourceIndex)
	return false
}

func (r *run) outletCount(ctx context.Context, n *workflow.Node) int {
	switch {
	case isIfType(n.Type):
		return 2
	case isSwitchType(n.Type):
		return switchOutletCount(n)
	}
	count := 1
	if n.OnError == "continueErrorOutput" {
		count++
	}
	// Unknown custom nodes may declare any number of outputs; stay quiet
	// unless the catalog says otherwise.
	if d, err := r.descriptor(ctx, n.Type); err == nil && d == nil {
		return count + 8
	}
	return count
}

func isIfType(t string) bool {
	return t == workflow.TypeIf || strings.EqualFold(kb.BareType(t), "if")
}

func isSwitchType(t string) bool {
	return t == workflow.TypeSwitch || strings.EqualFold(kb.BareType(t), "switch")
}

// switchOutletCount derives the outlet count from the rules list plus an
// optional fallback output.
func switchOutletCount(n *workflow.Node) int {
	count := 0
	if rules := core.AsMap(n.Parameters["rules"]); rules != nil {
		if values, ok := rules["values"].([]any); ok {
			count = len(values)
		} else if legacy, ok := rules["rules"].([]any); ok {
			count = len(legacy)
		}
	}
	if count == 0 {
		count = 1
	}
	if opts := core.AsMap(n.Parameters["options"]); opts != nil {
		if _, ok := opts["fallbackOutput"]; ok {
			count++
		}
	}
	return count
}

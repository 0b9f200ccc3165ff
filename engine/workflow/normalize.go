package workflow

import (
	"context"
	"strings"
)

// Node types with special normalization and branch semantics.
const (
	TypeIf            = "n8n-nodes-base.if"
	TypeSwitch        = "n8n-nodes-base.switch"
	TypeWebhook       = "n8n-nodes-base.webhook"
	TypeManualTrigger = "n8n-nodes-base.manualTrigger"
)

// TypeResolver expands a short node type (e.g. "httpRequest") to its fully
// qualified form. The knowledge base provides the production implementation.
type TypeResolver interface {
	ResolveType(ctx context.Context, shortOrFull string) (string, bool)
}

// Normalize brings a freshly parsed workflow into canonical shape: trimmed
// node names, non-nil containers, fully qualified node types, and sanitized
// legacy option keys on conditional nodes. It mutates w in place and returns
// it for chaining.
func Normalize(ctx context.Context, w *Workflow, resolver TypeResolver) *Workflow {
	w.Name = strings.TrimSpace(w.Name)
	if w.Nodes == nil {
		w.Nodes = []*Node{}
	}
	if w.Connections == nil {
		w.Connections = Connections{}
	}
	if w.Settings == nil {
		w.Settings = map[string]any{}
	}
	if w.Tags == nil {
		w.Tags = TagList{}
	}
	for _, n := range w.Nodes {
		normalizeNode(ctx, n, resolver)
	}
	return w
}

func normalizeNode(ctx context.Context, n *Node, resolver TypeResolver) {
	n.Name = strings.TrimSpace(n.Name)
	n.Type = strings.TrimSpace(n.Type)
	if n.Parameters == nil {
		n.Parameters = map[string]any{}
	}
	if resolver != nil && n.Type != "" && !strings.Contains(n.Type, ".") {
		if full, ok := resolver.ResolveType(ctx, n.Type); ok {
			n.Type = full
		}
	}
	if n.Type == TypeIf || n.Type == TypeSwitch {
		sanitizeConditionalOptions(n)
	}
}

// sanitizeConditionalOptions clears two legacy quirks the canvas editor left
// behind in old exports: options serialized as an empty array instead of an
// object, and the boolean looseTypeValidation key replaced in v3 by
// typeValidation: "loose".
func sanitizeConditionalOptions(n *Node) {
	raw, ok := n.Parameters["options"]
	if !ok {
		return
	}
	if list, isList := raw.([]any); isList && len(list) == 0 {
		n.Parameters["options"] = map[string]any{}
		return
	}
	opts, isMap := raw.(map[string]any)
	if !isMap {
		return
	}
	if loose, has := opts["looseTypeValidation"]; has {
		delete(opts, "looseTypeValidation")
		if b, isBool := loose.(bool); isBool && b {
			if _, exists := opts["typeValidation"]; !exists {
				opts["typeValidation"] = "loose"
			}
		}
	}
}

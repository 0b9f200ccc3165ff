package validate

import (
	"regexp"
	"sort"
	"strings"

	"github.com/n8nkit/n8nkit/engine/core"
)

// expressionRoots are the references the platform resolves at the top
// level of an expression body.
var expressionRoots = map[string]struct{}{
	"$json":      {},
	"$node":      {},
	"$workflow":  {},
	"$vars":      {},
	"$env":       {},
	"$execution": {},
	"$item":      {},
	"$items":     {},
	"$now":       {},
	"$today":     {},
	"$input":     {},
	"$prevNode":  {},
	"$runIndex":  {},
	"$itemIndex": {},
}

var (
	expressionBody = regexp.MustCompile(`\{\{(.*?)\}\}`)
	referenceToken = regexp.MustCompile(`\$[a-zA-Z_][a-zA-Z0-9_]*|\$\(`)
)

// ContainsExpression reports whether s carries {{...}} expression syntax.
func ContainsExpression(s string) bool {
	return strings.Contains(s, "{{") && strings.Contains(s, "}}")
}

// checkExpressions scans every string parameter leaf of every node, in
// node order then path order.
func (r *run) checkExpressions() {
	for _, n := range r.wf.Nodes {
		if len(n.Parameters) == 0 {
			continue
		}
		nodeName := n.Name
		core.WalkStrings("", n.Parameters, func(path, value string) {
			r.checkExpressionLeaf(nodeName, path, value)
		})
	}
}

func (r *run) checkExpressionLeaf(node, path, value string) {
	if !ContainsExpression(value) {
		if strings.Count(value, "{{") != strings.Count(value, "}}") {
			r.addError(core.CodeExpressionUnbalanced, node, path,
				"value has mismatched {{ and }} markers")
		}
		return
	}
	r.result.Statistics.ExpressionsValidated++
	if !strings.HasPrefix(value, "=") {
		r.addErrorDetails(core.CodeExpressionMissingPrefix, node, path,
			map[string]any{"context": map[string]any{
				"value":    value,
				"expected": "=" + value,
			}},
			"expression in %q is not evaluated: the value must start with '='", path)
	}
	if strings.Count(value, "{{") != strings.Count(value, "}}") {
		r.addError(core.CodeExpressionUnbalanced, node, path,
			"expression has mismatched {{ and }} markers")
	}
	for _, m := range expressionBody.FindAllStringSubmatch(value, -1) {
		body := m[1]
		if strings.Count(body, "{") != strings.Count(body, "}") {
			r.addError(core.CodeExpressionUnbalanced, node, path,
				"expression body %q has unbalanced braces", strings.TrimSpace(body))
		}
		r.checkReferences(node, path, body)
	}
}

// checkReferences flags top-level $references outside the supported set.
// $("Node") selectors are resolved dynamically and accepted as-is.
func (r *run) checkReferences(node, path, body string) {
	for _, tok := range referenceToken.FindAllString(body, -1) {
		if tok == "$(" {
			continue
		}
		if _, ok := expressionRoots[tok]; !ok {
			r.addErrorDetails(core.CodeExpressionInvalidRef, node, path,
				map[string]any{"reference": tok, "allowed": sortedRoots()},
				"expression references %s, which the platform does not define", tok)
		}
	}
}

func sortedRoots() []string {
	out := make([]string, 0, len(expressionRoots))
	for root := range expressionRoots {
		out = append(out, root)
	}
	sort.Strings(out)
	return out
}

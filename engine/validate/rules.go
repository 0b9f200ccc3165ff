package validate

import (
	"regexp"
	"strings"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/kb"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// deprecatedTypes maps retired node types to their replacements. These are
// flagged in every profile.
var deprecatedTypes = map[string]string{
	"n8n-nodes-base.function":     "n8n-nodes-base.code",
	"n8n-nodes-base.functionItem": "n8n-nodes-base.code",
	"n8n-nodes-base.start":        "n8n-nodes-base.manualTrigger",
}

// dispatchRules applies the type-specific validators. The descriptor may
// be nil for unknown types; rules that need it skip themselves.
func (r *run) dispatchRules(n *workflow.Node, d *kb.NodeDescriptor) {
	if replacement, ok := deprecatedTypes[n.Type]; ok {
		r.addWarningDetails(ProfileMinimal, core.CodeDeprecatedNode, n.Name, "type",
			map[string]any{"replacement": replacement},
			"node type %q is deprecated; use %q instead", n.Type, replacement)
	}
	switch strings.ToLower(kb.BareType(n.Type)) {
	case "httprequest":
		r.checkHTTPRequest(n)
	case "webhook":
		r.checkWebhook(n)
	case "code", "function", "functionitem":
		r.checkCode(n)
	case "postgres", "mysql", "mariadb", "microsoftsql", "crate", "questdb", "timescaledb":
		r.checkSQL(n, strings.ToLower(kb.BareType(n.Type)))
	case "mongodb":
		r.checkMongo(n)
	case "googlesheets":
		r.checkSheets(n)
	case "slack", "discord", "telegram", "mattermost":
		r.checkMessaging(n)
	default:
		if genericSQLNode(n) {
			r.checkSQL(n, "generic")
		}
	}
	if d != nil && d.IsAISubNode() && strings.HasPrefix(strings.ToLower(kb.BareType(n.Type)), "tool") {
		if isEmptyValue(n.Parameters["toolDescription"]) {
			r.addErrorDetails(core.CodeMissingToolDescription, n.Name, "toolDescription", nil,
				"tool node %q needs a toolDescription so the model knows when to call it", n.Name)
		}
	}
	if n.OnError != "" && d != nil && !d.SupportsOnError() {
		r.addError(core.CodeErrorOutputUnsupported, n.Name, "onError",
			"node %q sets onError but type %q does not support error routing", n.Name, n.Type)
	}
}

// genericSQLNode recognizes resource/operation nodes running raw queries.
func genericSQLNode(n *workflow.Node) bool {
	return core.AsString(n.Parameters["operation"]) == "executeQuery" &&
		!isEmptyValue(n.Parameters["query"])
}

func (r *run) checkHTTPRequest(n *workflow.Node) {
	url := core.AsString(n.Parameters["url"])
	if url != "" && !strings.HasPrefix(url, "=") {
		if strings.HasPrefix(url, "http://") {
			r.addWarning(ProfileMinimal, core.CodeSecurityWarning, n.Name, "url",
				"node %q calls %q over plain HTTP; prefer https", n.Name, url)
		} else if !strings.HasPrefix(url, "https://") && !strings.Contains(url, "{{") {
			r.addWarning(ProfileRuntime, core.CodeInvalidOptionValue, n.Name, "url",
				"node %q has a URL without a scheme: %q", n.Name, url)
		}
	}
	method := strings.ToUpper(core.AsString(n.Parameters["method"]))
	if core.AsBool(n.Parameters["sendBody"]) && (method == "GET" || method == "HEAD") {
		r.addWarning(ProfileAIFriendly, core.CodeMissingRecommended, n.Name, "sendBody",
			"node %q sends a request body with %s; most servers ignore it", n.Name, method)
	}
}

func (r *run) checkWebhook(n *workflow.Node) {
	if isEmptyValue(n.Parameters["path"]) {
		r.addErrorDetails(core.CodeWebhookMissingPath, n.Name, "path", nil,
			"webhook node %q has no path; the endpoint would be unreachable", n.Name)
		return
	}
	path := core.AsString(n.Parameters["path"])
	if prev, dup := r.claimWebhookPath(path, n.Name); dup {
		r.addErrorDetails(core.CodeDuplicateWebhookPath, n.Name, "path",
			map[string]any{"path": path, "conflict": prev},
			"webhook path %q is also used by node %q", path, prev)
	}
}

// claimWebhookPath records the path and reports an earlier claimant, if any.
func (r *run) claimWebhookPath(path, node string) (string, bool) {
	if r.webhookPaths == nil {
		r.webhookPaths = make(map[string]string)
	}
	if prev, ok := r.webhookPaths[path]; ok {
		return prev, true
	}
	r.webhookPaths[path] = node
	return "", false
}

var dangerousCodeCalls = regexp.MustCompile(`\b(eval|execSync|child_process|exec)\s*\(`)

func (r *run) checkCode(n *workflow.Node) {
	src := core.AsString(n.Parameters["jsCode"])
	if src == "" {
		src = core.AsString(n.Parameters["pythonCode"])
	}
	if src == "" {
		src = core.AsString(n.Parameters["functionCode"])
	}
	if src == "" {
		return
	}
	if m := dangerousCodeCalls.FindString(src); m != "" {
		r.addWarningDetails(ProfileMinimal, core.CodeSecurityWarning, n.Name, "jsCode",
			map[string]any{"call": strings.TrimRight(m, "( \t")},
			"code node %q calls %s; dynamic execution is a common injection vector",
			n.Name, strings.TrimRight(m, "( \t"))
	}
}

// SQL injection heuristics shared by every database dispatcher.
var (
	sqlTemplateLiteral = regexp.MustCompile(`\$\{[^}]*\}`)
	sqlExpression      = regexp.MustCompile(`\{\{[^}]*\}\}`)
	sqlTautology       = regexp.MustCompile(`(?i)\bOR\s+1\s*=\s*1\b`)
	sqlUnionSelect     = regexp.MustCompile(`(?i)\bUNION\s+SELECT\b`)
	sqlUnguardedDrop   = regexp.MustCompile(`(?i)\bDROP\s+(TABLE|DATABASE|SCHEMA)\b`)
	sqlConcatCall      = regexp.MustCompile(`(?i)\bCONCAT\s*\(`)
)

// checkSQL collects every matched heuristic into one finding per query so
// the finding dedupe (code+node+property) never hides a pattern.
func (r *run) checkSQL(n *workflow.Node, dialect string) {
	query := core.AsString(n.Parameters["query"])
	if query == "" {
		return
	}
	var patterns []string
	if strings.Contains(query, "`") && sqlTemplateLiteral.MatchString(query) {
		patterns = append(patterns, "interpolates ${...} inside a template literal")
	} else if sqlTemplateLiteral.MatchString(query) {
		patterns = append(patterns, "interpolates ${...} directly into the statement")
	}
	if sqlExpression.MatchString(query) {
		patterns = append(patterns, "splices {{...}} expression output into the statement")
	}
	if dialect == "mysql" && sqlConcatCall.MatchString(query) && sqlExpression.MatchString(query) {
		patterns = append(patterns, "builds the statement with CONCAT() over expression values")
	}
	if sqlTautology.MatchString(query) {
		patterns = append(patterns, "contains the tautology OR 1=1")
	}
	if sqlUnionSelect.MatchString(query) {
		patterns = append(patterns, "contains UNION SELECT")
	}
	if sqlUnguardedDrop.MatchString(query) {
		patterns = append(patterns, "contains a DROP statement")
	}
	if deleteWithoutWhere(query) {
		patterns = append(patterns, "deletes without a WHERE clause")
	}
	if len(patterns) == 0 {
		return
	}
	r.addWarningDetails(ProfileMinimal, core.CodeSQLInjectionRisk, n.Name, "query",
		map[string]any{"patterns": patterns},
		"node %q builds SQL that %s; use query parameters instead",
		n.Name, strings.Join(patterns, ", "))
}

func deleteWithoutWhere(query string) bool {
	q := strings.ToUpper(query)
	i := strings.Index(q, "DELETE FROM")
	if i < 0 {
		return false
	}
	return !strings.Contains(q[i:], "WHERE")
}

func (r *run) checkMongo(n *workflow.Node) {
	query := core.AsString(n.Parameters["query"])
	if query == "" {
		return
	}
	var patterns []string
	if strings.Contains(query, "$where") {
		patterns = append(patterns, "uses a $where clause, which executes arbitrary JavaScript on the server")
	}
	if sqlExpression.MatchString(query) {
		patterns = append(patterns, "splices {{...}} expression output into the query document")
	}
	if len(patterns) == 0 {
		return
	}
	r.addWarningDetails(ProfileMinimal, core.CodeSQLInjectionRisk, n.Name, "query",
		map[string]any{"patterns": patterns},
		"node %q %s", n.Name, strings.Join(patterns, "; "))
}

func (r *run) checkSheets(n *workflow.Node) {
	op := core.AsString(n.Parameters["operation"])
	if op == "read" {
		if _, hasRange := n.Parameters["range"]; !hasRange {
			if opts := core.AsMap(n.Parameters["options"]); opts == nil || opts["returnAllMatches"] == nil {
				r.addWarning(ProfileAIFriendly, core.CodeMissingRecommended, n.Name, "range",
					"node %q reads the whole sheet; set a range to bound the read", n.Name)
			}
		}
	}
}

func (r *run) checkMessaging(n *workflow.Node) {
	if core.AsString(n.Parameters["resource"]) != "message" {
		return
	}
	if core.AsString(n.Parameters["operation"]) != "post" {
		return
	}
	if isEmptyValue(n.Parameters["channel"]) && isEmptyValue(n.Parameters["channelId"]) &&
		core.AsMap(n.Parameters["target"]) == nil {
		r.addWarning(ProfileAIFriendly, core.CodeMissingRecommended, n.Name, "channel",
			"node %q posts a message without a channel; delivery will fail at run time", n.Name)
	}
}

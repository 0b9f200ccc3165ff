package kb

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/n8nkit/n8nkit/engine/core"
)

// TypePrefixes are the recognized package prefixes for short node types,
// tried in order when resolving an unqualified name like "httpRequest".
var TypePrefixes = []string{
	"n8n-nodes-base.",
	"@n8n/n8n-nodes-langchain.",
	"n8n-nodes-langchain.",
}

// BareType returns the final segment of a node type, e.g.
// "n8n-nodes-base.httpRequest" -> "httpRequest".
func BareType(s string) string {
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Severity grades a breaking change.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// AtLeast reports whether s is the same severity as min or worse.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank(s) >= severityRank(min)
}

// PropertyOption is a single selectable value of an "options" property.
type PropertyOption struct {
	Name        string `json:"name"`
	Value       any    `json:"value"`
	Description string `json:"description,omitempty"`
}

// DisplayOptions gate a property's visibility on the values of other
// parameters. Keys name sibling parameters; the special key "@version"
// matches the node's typeVersion.
type DisplayOptions struct {
	Show map[string][]any `json:"show,omitempty"`
	Hide map[string][]any `json:"hide,omitempty"`
}

// Property describes one configurable parameter of a node type.
type Property struct {
	Name           string           `json:"name"`
	DisplayName    string           `json:"displayName,omitempty"`
	Type           string           `json:"type"`
	Default        any              `json:"default,omitempty"`
	Required       bool             `json:"required,omitempty"`
	Description    string           `json:"description,omitempty"`
	Placeholder    string           `json:"placeholder,omitempty"`
	Options        []PropertyOption `json:"options,omitempty"`
	DisplayOptions *DisplayOptions  `json:"displayOptions,omitempty"`
}

// VisibleWith reports whether the property is shown given the node's
// current parameter values. Show conditions must all hold; any matching
// hide condition wins over show.
func (p *Property) VisibleWith(params map[string]any) bool {
	if p.DisplayOptions == nil {
		return true
	}
	for key, allowed := range p.DisplayOptions.Show {
		if !valueMatches(params[key], allowed) {
			return false
		}
	}
	for key, blocked := range p.DisplayOptions.Hide {
		if valueMatches(params[key], blocked) {
			return false
		}
	}
	return true
}

func valueMatches(actual any, allowed []any) bool {
	for _, want := range allowed {
		if looseEqual(actual, want) {
			return true
		}
	}
	return false
}

// looseEqual compares parameter values the way the platform does:
// booleans strictly, numbers numerically, everything else by string form.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ab == bb
		}
		return core.AsString(b) == strconv.FormatBool(ab)
	}
	if bb, ok := b.(bool); ok {
		return core.AsString(a) == strconv.FormatBool(bb)
	}
	if af, aok := core.ToFloat(a); aok {
		if bf, bok := core.ToFloat(b); bok {
			return af == bf
		}
	}
	return core.AsString(a) == core.AsString(b)
}

// CredentialRef names a credential type the node can use.
type CredentialRef struct {
	Name     string `json:"name"`
	Required bool   `json:"required,omitempty"`
}

// Migration carries the mechanical parameter rewrites for an
// auto-migratable breaking change.
type Migration struct {
	RenameParameters map[string]string `json:"renameParameters,omitempty"`
	SetParameters    map[string]any    `json:"setParameters,omitempty"`
	RemoveParameters []string          `json:"removeParameters,omitempty"`
}

// BreakingChange records an incompatibility introduced by a version bump.
type BreakingChange struct {
	FromVersion    float64    `json:"fromVersion"`
	ToVersion      float64    `json:"toVersion"`
	Severity       Severity   `json:"severity"`
	Description    string     `json:"description"`
	AutoMigratable bool       `json:"autoMigratable,omitempty"`
	Migration      *Migration `json:"migration,omitempty"`
}

// NodeDescriptor is the catalog record for one node type.
type NodeDescriptor struct {
	Type              string           `json:"type"`
	Alias             string           `json:"alias"`
	DisplayName       string           `json:"displayName"`
	Category          string           `json:"category"`
	Subcategory       string           `json:"subcategory,omitempty"`
	Description       string           `json:"description,omitempty"`
	LatestVersion     float64          `json:"latestVersion"`
	SupportedVersions []float64        `json:"supportedVersions,omitempty"`
	Properties        []Property       `json:"properties,omitempty"`
	Credentials       []CredentialRef  `json:"credentials,omitempty"`
	Docs              string           `json:"docs,omitempty"`
	BreakingChanges   []BreakingChange `json:"breakingChanges,omitempty"`
}

// SupportsVersion reports whether v is a published version of the node.
func (d *NodeDescriptor) SupportsVersion(v float64) bool {
	for _, sv := range d.SupportedVersions {
		if sv == v {
			return true
		}
	}
	return v == d.LatestVersion
}

// IsTrigger reports whether the node starts executions rather than
// continuing them. Triggers do not accept main input or onError routing.
func (d *NodeDescriptor) IsTrigger() bool {
	if strings.EqualFold(d.Category, "trigger") {
		return true
	}
	bare := strings.ToLower(BareType(d.Type))
	if strings.HasSuffix(bare, "trigger") {
		return true
	}
	switch bare {
	case "webhook", "cron", "interval", "start", "formtrigger":
		return true
	}
	return false
}

// SupportsOnError reports whether the node accepts error-output routing.
func (d *NodeDescriptor) SupportsOnError() bool {
	return !d.IsTrigger()
}

// IsAINode reports whether the node belongs to the LangChain family.
func (d *NodeDescriptor) IsAINode() bool {
	return strings.HasPrefix(d.Type, "@n8n/n8n-nodes-langchain.") ||
		strings.HasPrefix(d.Type, "n8n-nodes-langchain.")
}

var aiSubNodePrefixes = []string{
	"lm", "embeddings", "memory", "outputparser",
	"textsplitter", "vectorstore", "retriever", "reranker",
}

// IsAISubNode reports whether the node is an AI component (model, memory,
// tool, ...) that attaches to a root node over ai_* connections instead of
// producing main output.
func (d *NodeDescriptor) IsAISubNode() bool {
	if !d.IsAINode() {
		return false
	}
	bare := strings.ToLower(BareType(d.Type))
	if strings.HasPrefix(bare, "tool") && bare != "toolworkflow" {
		return true
	}
	for _, p := range aiSubNodePrefixes {
		if strings.HasPrefix(bare, p) {
			return true
		}
	}
	return false
}

// HasResourceOperation reports whether the node dispatches on
// resource/operation parameter pairs.
func (d *NodeDescriptor) HasResourceOperation() bool {
	return d.property("resource") != nil || d.property("operation") != nil
}

func (d *NodeDescriptor) property(name string) *Property {
	for i := range d.Properties {
		if d.Properties[i].Name == name {
			return &d.Properties[i]
		}
	}
	return nil
}

// Resources lists the values of the node's "resource" selector, if any.
func (d *NodeDescriptor) Resources() []string {
	return optionValues(d.property("resource"))
}

// Operations lists the "operation" values available under the given
// resource. An empty resource returns every operation the node exposes.
func (d *NodeDescriptor) Operations(resource string) []string {
	var out []string
	seen := make(map[string]struct{})
	for i := range d.Properties {
		p := &d.Properties[i]
		if p.Name != "operation" {
			continue
		}
		if resource != "" && !p.VisibleWith(map[string]any{"resource": resource}) {
			continue
		}
		for _, v := range optionValues(p) {
			if _, dup := seen[v]; !dup {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	sort.Strings(out)
	return out
}

func optionValues(p *Property) []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.Options))
	for _, o := range p.Options {
		out = append(out, core.AsString(o.Value))
	}
	return out
}

// VisibleProperties returns the properties shown for the given parameter
// values, typeVersion included under the "@version" key.
func (d *NodeDescriptor) VisibleProperties(params map[string]any, typeVersion float64) []Property {
	ctx := make(map[string]any, len(params)+1)
	for k, v := range params {
		ctx[k] = v
	}
	ctx["@version"] = typeVersion
	var out []Property
	for i := range d.Properties {
		if d.Properties[i].VisibleWith(ctx) {
			out = append(out, d.Properties[i])
		}
	}
	return out
}

// MinimalParameters builds the smallest valid parameter payload for the
// given resource/operation pair: the dispatch selectors plus every
// required visible property set to its default.
func (d *NodeDescriptor) MinimalParameters(resource, operation string) map[string]any {
	params := make(map[string]any)
	if resource != "" {
		params["resource"] = resource
	}
	if operation != "" {
		params["operation"] = operation
	}
	for _, p := range d.VisibleProperties(params, d.LatestVersion) {
		if !p.Required {
			continue
		}
		if _, set := params[p.Name]; set {
			continue
		}
		if p.Default != nil {
			params[p.Name] = p.Default
			continue
		}
		params[p.Name] = zeroFor(p.Type)
	}
	return params
}

func zeroFor(propType string) any {
	switch propType {
	case "number":
		return 0
	case "boolean":
		return false
	case "collection", "fixedCollection":
		return map[string]any{}
	case "multiOptions":
		return []any{}
	default:
		return ""
	}
}

// NodeHit is one ranked search result. Rank is higher-is-better and only
// comparable within a single result set.
type NodeHit struct {
	Type          string  `json:"type"`
	Alias         string  `json:"alias"`
	DisplayName   string  `json:"displayName"`
	Category      string  `json:"category"`
	Description   string  `json:"description,omitempty"`
	LatestVersion float64 `json:"latestVersion"`
	Rank          float64 `json:"rank"`
}

// PropertyHit is one ranked property search result.
type PropertyHit struct {
	NodeType    string  `json:"nodeType"`
	Path        string  `json:"path"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	TypeTag     string  `json:"typeTag,omitempty"`
	Rank        float64 `json:"rank"`
}

// TypeSuggestion is a candidate correction for an unknown node type.
type TypeSuggestion struct {
	Type        string  `json:"type"`
	DisplayName string  `json:"displayName,omitempty"`
	Score       float64 `json:"score"`
	Reason      string  `json:"reason"`
	AutoFixable bool    `json:"autoFixable"`
}

// TemplateSummary is the listing row for a workflow template.
type TemplateSummary struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	NodeCount    int      `json:"nodeCount"`
	Views        int      `json:"views"`
	Complexity   string   `json:"complexity,omitempty"`
	Category     string   `json:"category,omitempty"`
	Tasks        []string `json:"tasks,omitempty"`
	Services     []string `json:"services,omitempty"`
	SetupMinutes int      `json:"setupMinutes,omitempty"`
}

// Template is a full template record including its workflow body.
type Template struct {
	TemplateSummary
	Workflow json.RawMessage `json:"workflow"`
}

// CatalogStats summarizes the bundled catalog for health and stats output.
type CatalogStats struct {
	Path       string         `json:"path"`
	Nodes      int            `json:"nodes"`
	AINodes    int            `json:"aiNodes"`
	Triggers   int            `json:"triggers"`
	Templates  int            `json:"templates"`
	Categories map[string]int `json:"categories,omitempty"`
	FTS        bool           `json:"fts"`
}

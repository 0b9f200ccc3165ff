package workflow

import (
	"encoding/json"
	"fmt"
)

// Connection outlet kinds. "main" carries item data; the ai_* kinds attach
// model, tool, memory, parser, embedding, splitter, and vector-store
// capabilities to AI nodes.
const (
	ConnMain            = "main"
	ConnAILanguageModel = "ai_languageModel"
	ConnAITool          = "ai_tool"
	ConnAIMemory        = "ai_memory"
	ConnAIOutputParser  = "ai_outputParser"
	ConnAIEmbedding     = "ai_embedding"
	ConnAITextSplitter  = "ai_textSplitter"
	ConnAIVectorStore   = "ai_vectorStore"
)

var aiConnectionKinds = []string{
	ConnAILanguageModel,
	ConnAITool,
	ConnAIMemory,
	ConnAIOutputParser,
	ConnAIEmbedding,
	ConnAITextSplitter,
	ConnAIVectorStore,
}

// IsAIConnection reports whether kind is one of the ai_* outlet kinds.
func IsAIConnection(kind string) bool {
	for _, k := range aiConnectionKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// AIConnectionKinds returns the ai_* outlet kinds in canonical order.
func AIConnectionKinds() []string {
	out := make([]string, len(aiConnectionKinds))
	copy(out, aiConnectionKinds)
	return out
}

// KnownConnectionKinds returns every outlet kind the engine understands.
func KnownConnectionKinds() []string {
	return append([]string{ConnMain}, AIConnectionKinds()...)
}

// Endpoint is one target of a connection slot: the node it lands on, the
// inlet kind, and the inlet index.
type Endpoint struct {
	Node  string `json:"node"`
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// Connections maps source node name → outlet kind → outlet index → endpoint
// set. Connections live outside nodes so that cyclic graphs and renames never
// produce dangling node pointers.
type Connections map[string]map[string][][]Endpoint

// Node is one typed step of a workflow. Name is the human-visible identity
// referenced by connections; ID is the stable platform identifier.
type Node struct {
	ID               string         `json:"id,omitempty"`
	Name             string         `json:"name"`
	Type             string         `json:"type"`
	TypeVersion      float64        `json:"typeVersion"`
	Position         []float64      `json:"position"`
	Parameters       map[string]any `json:"parameters"`
	Credentials      map[string]any `json:"credentials,omitempty"`
	Disabled         bool           `json:"disabled,omitempty"`
	Notes            string         `json:"notes,omitempty"`
	OnError          string         `json:"onError,omitempty"`
	ContinueOnFail   bool           `json:"continueOnFail,omitempty"`
	AlwaysOutputData bool           `json:"alwaysOutputData,omitempty"`
	RetryOnFail      bool           `json:"retryOnFail,omitempty"`
	MaxTries         int            `json:"maxTries,omitempty"`
	WaitBetweenTries int            `json:"waitBetweenTries,omitempty"`
}

// TagList is the workflow tag set. Exports carry tags either as bare strings
// or as {id,name} objects; both forms decode to names.
type TagList []string

func (t *TagList) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			name, _ := v["name"].(string)
			if name == "" {
				return fmt.Errorf("tag object missing name")
			}
			out = append(out, name)
		default:
			return fmt.Errorf("tag entries must be strings or objects, got %T", item)
		}
	}
	*t = out
	return nil
}

// Workflow is the parsed document: an ordered node sequence, a connection
// map, and metadata. Server-assigned fields round-trip untouched and are
// stripped by Serialize when full=false.
type Workflow struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name"`
	Active      bool           `json:"active"`
	Nodes       []*Node        `json:"nodes"`
	Connections Connections    `json:"connections"`
	Settings    map[string]any `json:"settings,omitempty"`
	Tags        TagList        `json:"tags,omitempty"`
	PinData     map[string]any `json:"pinData,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
	VersionID   string         `json:"versionId,omitempty"`
	CreatedAt   string         `json:"createdAt,omitempty"`
	UpdatedAt   string         `json:"updatedAt,omitempty"`
}

// Node returns the node with the given name, or nil.
func (w *Workflow) Node(name string) *Node {
	for _, n := range w.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// HasNode reports whether a node with the given name exists.
func (w *Workflow) HasNode(name string) bool {
	return w.Node(name) != nil
}

// NodeNames returns node names in declaration order.
func (w *Workflow) NodeNames() []string {
	names := make([]string, len(w.Nodes))
	for i, n := range w.Nodes {
		names[i] = n.Name
	}
	return names
}

// HasTag reports whether tag is present.
func (w *Workflow) HasTag(tag string) bool {
	for _, t := range w.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

package diff

import "github.com/n8nkit/n8nkit/engine/workflow"

// Operation types. The string values are part of the machine contract:
// agents emit them in diff documents and branch on them in results.
const (
	OpAddNode               = "addNode"
	OpRemoveNode            = "removeNode"
	OpUpdateNode            = "updateNode"
	OpMoveNode              = "moveNode"
	OpEnableNode            = "enableNode"
	OpDisableNode           = "disableNode"
	OpAddConnection         = "addConnection"
	OpRemoveConnection      = "removeConnection"
	OpRewireConnection      = "rewireConnection"
	OpCleanStaleConnections = "cleanStaleConnections"
	OpReplaceConnections    = "replaceConnections"
	OpUpdateSettings        = "updateSettings"
	OpUpdateName            = "updateName"
	OpAddTag                = "addTag"
	OpRemoveTag             = "removeTag"
	OpActivateWorkflow      = "activateWorkflow"
	OpDeactivateWorkflow    = "deactivateWorkflow"
)

// OperationTypes returns every operation type the engine understands, in
// canonical order.
func OperationTypes() []string {
	return []string{
		OpAddNode, OpRemoveNode, OpUpdateNode, OpMoveNode,
		OpEnableNode, OpDisableNode,
		OpAddConnection, OpRemoveConnection, OpRewireConnection,
		OpCleanStaleConnections, OpReplaceConnections,
		OpUpdateSettings, OpUpdateName, OpAddTag, OpRemoveTag,
		OpActivateWorkflow, OpDeactivateWorkflow,
	}
}

// Operation is one step of a diff document. Fields beyond Type are
// populated per operation:
//
//   - addNode: Node (full node object; name, type, and position required)
//   - removeNode, enableNode, disableNode: Name
//   - updateNode: Name plus Updates, whose keys are scalar node fields
//     ("name", "type", "typeVersion", "position", "disabled", "notes",
//     "onError"), "parameters"/"credentials" objects, or dot/bracket paths
//     beneath them ("parameters.options.timeout"). A null value deletes the
//     addressed path; a bare "parameters" object deep-merges.
//   - moveNode: Name plus exactly one of Position (absolute) or Offset.
//   - addConnection, removeConnection, rewireConnection: Source and Target,
//     optionally SourceIndex/TargetIndex, and at most one of Branch
//     ("true"/"false", if nodes only), Case (switch nodes only), or
//     AIConnectionType. rewireConnection additionally takes exactly one of
//     NewSource or NewTarget.
//   - replaceConnections: Connections (wholesale replacement).
//   - updateSettings: Settings (shallow merge; null values delete keys).
//   - updateName: Name carries the new workflow name.
//   - addTag, removeTag: Tag.
//   - cleanStaleConnections, activateWorkflow, deactivateWorkflow: no
//     payload.
type Operation struct {
	Type string `json:"type"`

	// Node operations.
	Node     map[string]any `json:"node,omitempty"`
	Name     string         `json:"name,omitempty"`
	Updates  map[string]any `json:"updates,omitempty"`
	Position []float64      `json:"position,omitempty"`
	Offset   []float64      `json:"offset,omitempty"`

	// Connection operations.
	Source           string `json:"source,omitempty"`
	Target           string `json:"target,omitempty"`
	SourceIndex      *int   `json:"sourceIndex,omitempty"`
	TargetIndex      *int   `json:"targetIndex,omitempty"`
	Branch           string `json:"branch,omitempty"`
	Case             *int   `json:"case,omitempty"`
	AIConnectionType string `json:"aiConnectionType,omitempty"`
	NewSource        string `json:"newSource,omitempty"`
	NewTarget        string `json:"newTarget,omitempty"`

	// Workflow-level operations.
	Connections workflow.Connections `json:"connections,omitempty"`
	Settings    map[string]any       `json:"settings,omitempty"`
	Tag         string               `json:"tag,omitempty"`
}

// Options controls how a sequence is applied.
type Options struct {
	// ContinueOnError keeps going past failed operations, recording each
	// failure and keeping the successes. The default (strict) mode applies
	// all-or-nothing: any failure leaves the input workflow untouched.
	ContinueOnError bool `json:"continueOnError,omitempty"`
}

// OperationError records one failed operation by its position in the input
// sequence.
type OperationError struct {
	Index   int    `json:"index"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Result reports the outcome of an Apply. Workflow holds the updated
// document and is nil when strict mode rejected the sequence; the input
// workflow is never mutated either way.
type Result struct {
	Applied  int                `json:"applied"`
	Failed   int                `json:"failed"`
	Errors   []OperationError   `json:"errors,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
	Renames  map[string]string  `json:"renames,omitempty"`
	Workflow *workflow.Workflow `json:"workflow,omitempty"`
}

// OK reports whether every operation applied.
func (r *Result) OK() bool {
	return r.Failed == 0
}

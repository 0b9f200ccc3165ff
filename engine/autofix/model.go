package autofix

import (
	"github.com/n8nkit/n8nkit/engine/diff"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// FixType identifies one fix generator. The values are part of the machine
// contract and double as the --fix-types filter vocabulary.
type FixType string

const (
	FixExpressionFormat      FixType = "expression-format"
	FixNodeTypeCorrection    FixType = "node-type-correction"
	FixWebhookMissingPath    FixType = "webhook-missing-path"
	FixSwitchOptions         FixType = "switch-options"
	FixTypeVersionCorrection FixType = "typeversion-correction"
	FixErrorOutputConfig     FixType = "error-output-config"
	FixTypeVersionUpgrade    FixType = "typeversion-upgrade"
	FixVersionMigration      FixType = "version-migration"
)

// FixTypes returns every generator in execution order. The order is fixed so
// fix output is deterministic across runs.
func FixTypes() []FixType {
	return []FixType{
		FixExpressionFormat,
		FixNodeTypeCorrection,
		FixWebhookMissingPath,
		FixSwitchOptions,
		FixTypeVersionCorrection,
		FixErrorOutputConfig,
		FixTypeVersionUpgrade,
		FixVersionMigration,
	}
}

// Confidence is the trust class of a fix: scores at or above 85 are high,
// at or above 60 medium, everything else low. Node-type corrections override
// the mapping with their similarity bands.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

func confidenceRank(c Confidence) int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether c meets the given minimum class.
func (c Confidence) AtLeast(min Confidence) bool {
	return confidenceRank(c) >= confidenceRank(min)
}

// ConfidenceFor maps a 0-100 score to its class.
func ConfidenceFor(score int) Confidence {
	switch {
	case score >= 85:
		return ConfidenceHigh
	case score >= 60:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Guidance summarizes the human follow-up a fix leaves behind. Status is
// "complete" when no manual work remains, "partial" when the mechanical part
// was handled but verification or extra steps remain, and "manual-only" for
// advisory fixes that change nothing themselves.
type Guidance struct {
	Node            string   `json:"node"`
	FixType         FixType  `json:"fixType"`
	RequiredActions []string `json:"requiredActions,omitempty"`
	BehaviorChanges []string `json:"behaviorChanges,omitempty"`
	EstimatedTime   string   `json:"estimatedTime,omitempty"`
	Status          string   `json:"status"`
}

// Guidance status values.
const (
	GuidanceComplete   = "complete"
	GuidancePartial    = "partial"
	GuidanceManualOnly = "manual-only"
)

// Fix is one concrete, previewable change. Updates carries the updateNode
// payload keyed the way the diff engine consumes it; guidance-only fixes
// leave it empty.
type Fix struct {
	Type        FixType        `json:"type"`
	Confidence  Confidence     `json:"confidence"`
	Score       int            `json:"score"`
	Node        string         `json:"node"`
	Property    string         `json:"property,omitempty"`
	Description string         `json:"description"`
	Before      any            `json:"before,omitempty"`
	After       any            `json:"after,omitempty"`
	Updates     map[string]any `json:"updates,omitempty"`
	Guidance    *Guidance      `json:"postUpdateGuidance,omitempty"`
}

// Operation renders the fix as a diff operation, or nil for guidance-only
// fixes. Routing every mutation through the diff engine keeps autofix on the
// same atomicity and backup path as hand-written diffs.
func (f *Fix) Operation() *diff.Operation {
	if len(f.Updates) == 0 {
		return nil
	}
	return &diff.Operation{Type: diff.OpUpdateNode, Name: f.Node, Updates: f.Updates}
}

// Options filters and caps the generated fixes.
type Options struct {
	// Confidence is the minimum accepted class; empty accepts everything.
	Confidence Confidence `json:"confidence,omitempty"`
	// MaxFixes caps how many fixes are selected; overflow candidates are
	// reported as skipped. Zero means no cap.
	MaxFixes int `json:"maxFixes,omitempty"`
	// FixTypes selects which generators run; empty runs all of them.
	FixTypes []FixType `json:"fixTypes,omitempty"`
}

func (o Options) enabled() map[FixType]bool {
	if len(o.FixTypes) == 0 {
		return nil
	}
	set := make(map[FixType]bool, len(o.FixTypes))
	for _, t := range o.FixTypes {
		set[t] = true
	}
	return set
}

// Result is the outcome of a preview or apply run.
type Result struct {
	// Fixes is the selected set, in generator order then node declaration
	// order then property path order.
	Fixes []Fix `json:"fixes"`
	// Skipped holds candidates beyond the MaxFixes cap.
	Skipped []Fix `json:"skipped,omitempty"`
	// Filtered counts candidates dropped below the confidence threshold.
	Filtered int `json:"filtered,omitempty"`
	// Guidance aggregates the post-update guidance of every selected fix.
	Guidance []Guidance `json:"guidance,omitempty"`
	// Applied is the number of operations applied (zero for previews).
	Applied int `json:"applied"`
	// Workflow is the fixed document after an apply; nil for previews.
	Workflow *workflow.Workflow `json:"workflow,omitempty"`
	// Warnings carries rename and cleanup notes from the diff engine.
	Warnings []string `json:"warnings,omitempty"`
}

// Operations renders the selected fixes as a diff sequence.
func (r *Result) Operations() []diff.Operation {
	ops := make([]diff.Operation, 0, len(r.Fixes))
	for i := range r.Fixes {
		if op := r.Fixes[i].Operation(); op != nil {
			ops = append(ops, *op)
		}
	}
	return ops
}

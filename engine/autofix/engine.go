// Package autofix turns validation findings into concrete, confidence-ranked
// fix operations. Generators recompute their candidates from the workflow and
// the node catalog on every run, so a second pass over a fixed document
// produces nothing, and every mutation is expressed as an updateNode diff
// operation applied through the diff engine.
package autofix

import (
	"context"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/diff"
	"github.com/n8nkit/n8nkit/engine/kb"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// Engine generates and applies fixes.
type Engine struct {
	kb     *kb.KB
	differ *diff.Engine
}

// New returns an Engine over the given catalog handle.
func New(k *kb.KB) *Engine {
	return &Engine{kb: k, differ: diff.New(k)}
}

// Preview generates the fix set without mutating anything.
func (e *Engine) Preview(ctx context.Context, wf *workflow.Workflow, opts Options) (*Result, error) {
	if wf == nil {
		return nil, core.NewError(core.KindUsage, core.CodeInvalidArgument, "autofix: workflow is required")
	}
	if e.kb == nil {
		return nil, core.NewError(core.KindUnavailable, core.CodeKBMissing, "autofix: node catalog is required")
	}
	r := &run{
		ctx:         ctx,
		kb:          e.kb,
		wf:          wf,
		descriptors: map[string]*kb.NodeDescriptor{},
	}
	if err := r.generate(opts.enabled()); err != nil {
		return nil, err
	}
	return selectFixes(r.fixes, opts), nil
}

// Apply generates the fix set and applies it atomically. The input workflow
// is never mutated; the result carries the fixed copy.
func (e *Engine) Apply(ctx context.Context, wf *workflow.Workflow, opts Options) (*Result, error) {
	res, err := e.Preview(ctx, wf, opts)
	if err != nil {
		return nil, err
	}
	ops := res.Operations()
	if len(ops) == 0 {
		res.Workflow = wf
		return res, nil
	}
	applied, err := e.differ.Apply(ctx, wf, ops, diff.Options{})
	if err != nil {
		return nil, err
	}
	if !applied.OK() {
		// Generated operations target nodes and paths read from the same
		// document, so a failure here is a generator bug, not user input.
		return nil, core.NewError(core.KindInternal, core.CodeDiffOperationFailed,
			"autofix: %d generated operation(s) failed to apply", applied.Failed).
			WithDetails("errors", applied.Errors)
	}
	res.Applied = applied.Applied
	res.Workflow = applied.Workflow
	res.Warnings = applied.Warnings
	return res, nil
}

// selectFixes applies the confidence threshold, then the MaxFixes cap, and
// aggregates guidance for the selected set.
func selectFixes(candidates []Fix, opts Options) *Result {
	res := &Result{Fixes: []Fix{}}
	minClass := opts.Confidence
	if minClass == "" {
		minClass = ConfidenceLow
	}
	for _, f := range candidates {
		if !f.Confidence.AtLeast(minClass) {
			res.Filtered++
			continue
		}
		if opts.MaxFixes > 0 && len(res.Fixes) >= opts.MaxFixes {
			res.Skipped = append(res.Skipped, f)
			continue
		}
		res.Fixes = append(res.Fixes, f)
	}
	for i := range res.Fixes {
		if g := res.Fixes[i].Guidance; g != nil {
			res.Guidance = append(res.Guidance, *g)
		}
	}
	return res
}

// run is the state of one generation pass: the workflow under repair, a
// memoized descriptor lookup, and the accumulated candidates.
type run struct {
	ctx         context.Context
	kb          *kb.KB
	wf          *workflow.Workflow
	descriptors map[string]*kb.NodeDescriptor
	fixes       []Fix
}

func (r *run) generate(enabled map[FixType]bool) error {
	for _, t := range FixTypes() {
		if enabled != nil && !enabled[t] {
			continue
		}
		if err := r.ctx.Err(); err != nil {
			return core.WrapError(core.KindCancelled, core.CodeCancelled, err, "autofix: generation interrupted")
		}
		var err error
		switch t {
		case FixExpressionFormat:
			r.genExpressionFormat()
		case FixNodeTypeCorrection:
			err = r.genNodeTypeCorrection()
		case FixWebhookMissingPath:
			r.genWebhookMissingPath()
		case FixSwitchOptions:
			err = r.genSwitchOptions()
		case FixTypeVersionCorrection:
			err = r.genTypeVersionCorrection()
		case FixErrorOutputConfig:
			err = r.genErrorOutputConfig()
		case FixTypeVersionUpgrade:
			err = r.genTypeVersionUpgrade()
		case FixVersionMigration:
			err = r.genVersionMigration()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// add assigns the score-derived class unless the generator set one and
// appends the fix.
func (r *run) add(f Fix) {
	if f.Confidence == "" {
		f.Confidence = ConfidenceFor(f.Score)
	}
	r.fixes = append(r.fixes, f)
}

// descriptor memoizes catalog lookups across generators; unknown types are
// cached as nil.
func (r *run) descriptor(nodeType string) (*kb.NodeDescriptor, error) {
	if d, seen := r.descriptors[nodeType]; seen {
		return d, nil
	}
	d, err := r.kb.LookupByType(r.ctx, nodeType)
	if err != nil {
		return nil, core.WrapError(core.KindIO, core.CodeKBError, err, "autofix: look up node type %q", nodeType)
	}
	r.descriptors[nodeType] = d
	return d, nil
}

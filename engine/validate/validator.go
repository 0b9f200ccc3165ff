package validate

import (
	"context"
	"fmt"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/kb"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// Validator runs the validation pipeline against the node catalog.
type Validator struct {
	kb *kb.KB
}

// New builds a Validator over the given catalog handle.
func New(k *kb.KB) *Validator {
	return &Validator{kb: k}
}

// Validate runs every pipeline stage and accumulates findings. Stages
// never abort the run; a workflow with structural problems still gets its
// expression and connection findings.
func (v *Validator) Validate(ctx context.Context, wf *workflow.Workflow, opts Options) (*Result, error) {
	if opts.Profile == "" {
		opts.Profile = ProfileRuntime
	}
	if opts.Mode == "" {
		opts.Mode = ModeOperation
	}
	r := &run{
		kb:          v.kb,
		wf:          wf,
		opts:        opts,
		result:      &Result{Errors: []Finding{}, Warnings: []Finding{}, Suggestions: []string{}},
		descriptors: make(map[string]*kb.NodeDescriptor),
		seen:        make(map[string]struct{}),
	}
	if err := r.checkStructure(ctx); err != nil {
		return nil, err
	}
	if err := r.checkNodes(ctx); err != nil {
		return nil, err
	}
	if err := r.checkAITopology(ctx); err != nil {
		return nil, err
	}
	r.checkConnections(ctx)
	if opts.CheckExpressions {
		r.checkExpressions()
	}
	if opts.CheckVersions {
		if err := r.checkVersions(ctx); err != nil {
			return nil, err
		}
	}
	r.finish()
	return r.result, nil
}

// run carries the mutable state of one validation pass.
type run struct {
	kb           *kb.KB
	wf           *workflow.Workflow
	opts         Options
	result       *Result
	descriptors  map[string]*kb.NodeDescriptor
	seen         map[string]struct{}
	webhookPaths map[string]string
}

// descriptor memoizes catalog lookups per run, including misses.
func (r *run) descriptor(ctx context.Context, nodeType string) (*kb.NodeDescriptor, error) {
	if d, ok := r.descriptors[nodeType]; ok {
		return d, nil
	}
	d, err := r.kb.LookupByType(ctx, nodeType)
	if err != nil {
		return nil, fmt.Errorf("validate: resolve node type %q: %w", nodeType, err)
	}
	r.descriptors[nodeType] = d
	return d, nil
}

func (r *run) add(f Finding) {
	key := f.Code + "\x00" + f.Node + "\x00" + f.Property
	if _, dup := r.seen[key]; dup {
		return
	}
	r.seen[key] = struct{}{}
	switch f.Severity {
	case SeverityError:
		r.result.Errors = append(r.result.Errors, f)
	default:
		r.result.Warnings = append(r.result.Warnings, f)
	}
}

func (r *run) addError(code, node, property, format string, args ...any) {
	r.add(Finding{Code: code, Severity: SeverityError, Node: node, Property: property,
		Message: fmt.Sprintf(format, args...)})
}

func (r *run) addErrorDetails(code, node, property string, details map[string]any, format string, args ...any) {
	r.add(Finding{Code: code, Severity: SeverityError, Node: node, Property: property,
		Details: details, Message: fmt.Sprintf(format, args...)})
}

func (r *run) addWarning(minProfile Profile, code, node, property, format string, args ...any) {
	if !r.opts.Profile.AtLeast(minProfile) {
		return
	}
	r.add(Finding{Code: code, Severity: SeverityWarning, Node: node, Property: property,
		Message: fmt.Sprintf(format, args...)})
}

func (r *run) addWarningDetails(minProfile Profile, code, node, property string, details map[string]any, format string, args ...any) {
	if !r.opts.Profile.AtLeast(minProfile) {
		return
	}
	r.add(Finding{Code: code, Severity: SeverityWarning, Node: node, Property: property,
		Details: details, Message: fmt.Sprintf(format, args...)})
}

func (r *run) addInfo(code, node, property string, details map[string]any, format string, args ...any) {
	r.add(Finding{Code: code, Severity: SeverityInfo, Node: node, Property: property,
		Details: details, Message: fmt.Sprintf(format, args...)})
}

// finish computes validity and derives suggestions from the findings.
func (r *run) finish() {
	r.result.Valid = len(r.result.Errors) == 0
	r.result.Statistics.ErrorCount = len(r.result.Errors)
	r.result.Statistics.WarningCount = len(r.result.Warnings)
	autoFixable := 0
	for i := range r.result.Errors {
		switch r.result.Errors[i].Code {
		case core.CodeExpressionMissingPrefix, core.CodeWebhookMissingPath, core.CodeTypeVersionExceeded:
			autoFixable++
		case core.CodeInvalidNodeTypeFormat:
			if fixableSuggestion(r.result.Errors[i].Details) {
				autoFixable++
			}
		}
	}
	if autoFixable > 0 {
		r.result.Suggestions = append(r.result.Suggestions,
			fmt.Sprintf("%d finding(s) are auto-fixable; run autofix to preview the fixes", autoFixable))
	}
	if r.result.HasCode(core.CodeMissingTrigger) {
		r.result.Suggestions = append(r.result.Suggestions,
			"add a trigger node (webhook, schedule or manual) so the workflow can start")
	}
}

func fixableSuggestion(details map[string]any) bool {
	if details == nil {
		return false
	}
	suggestions, _ := details["suggestions"].([]kb.TypeSuggestion)
	for _, s := range suggestions {
		if s.AutoFixable {
			return true
		}
	}
	return false
}

// Package diff applies surgical operation sequences to workflow documents.
// The engine works on a deep clone, so callers keep a pristine copy for
// backups, and node renames made mid-sequence stay visible to later
// operations through an internal rename map.
package diff

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"dario.cat/mergo"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/kb"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// Engine applies diff operations. The knowledge base is optional: without
// it short node types are kept verbatim and typeVersion defaults to 1.
type Engine struct {
	kb *kb.KB
}

// New returns an Engine backed by the given catalog handle (may be nil).
func New(k *kb.KB) *Engine {
	return &Engine{kb: k}
}

// Apply runs the operation sequence against a deep clone of wf and returns
// the outcome. In strict mode (the default) any failure discards the clone:
// the result carries every operation error, Applied is zero, and Workflow is
// nil. With Options.ContinueOnError failures are skipped and the partially
// updated clone is returned.
func (e *Engine) Apply(ctx context.Context, wf *workflow.Workflow, ops []Operation, opts Options) (*Result, error) {
	if wf == nil {
		return nil, core.NewError(core.KindUsage, core.CodeInvalidArgument, "diff: workflow is required")
	}
	if len(ops) == 0 {
		return nil, core.NewError(core.KindUsage, core.CodeMissingArgument, "diff: operation sequence is empty")
	}
	clone, err := core.DeepCopy(wf)
	if err != nil {
		return nil, core.WrapError(core.KindInternal, core.CodeInternal, err, "diff: clone workflow")
	}
	if clone.Connections == nil {
		clone.Connections = workflow.Connections{}
	}

	s := &session{
		ctx:     ctx,
		kb:      e.kb,
		wf:      clone,
		renames: map[string]string{},
		warned:  map[string]bool{},
	}
	res := &Result{}
	applied := 0
	for i := range ops {
		if err := ctx.Err(); err != nil {
			return nil, core.WrapError(core.KindCancelled, core.CodeCancelled, err, "diff: apply interrupted")
		}
		if err := s.apply(&ops[i]); err != nil {
			res.Errors = append(res.Errors, OperationError{Index: i, Type: ops[i].Type, Message: err.Error()})
			continue
		}
		applied++
	}

	res.Failed = len(res.Errors)
	res.Warnings = s.warnings
	if res.Failed > 0 && !opts.ContinueOnError {
		return res, nil
	}
	res.Applied = applied
	res.Workflow = clone
	if len(s.renames) > 0 {
		res.Renames = s.renames
	}
	return res, nil
}

// session is the mutable state of one Apply: the working clone, the rename
// map, and accumulated warnings.
type session struct {
	ctx      context.Context
	kb       *kb.KB
	wf       *workflow.Workflow
	renames  map[string]string
	warnings []string
	warned   map[string]bool
}

func (s *session) apply(op *Operation) error {
	switch op.Type {
	case OpAddNode:
		return s.addNode(op)
	case OpRemoveNode:
		return s.removeNode(op)
	case OpUpdateNode:
		return s.updateNode(op)
	case OpMoveNode:
		return s.moveNode(op)
	case OpEnableNode:
		return s.setDisabled(op, false)
	case OpDisableNode:
		return s.setDisabled(op, true)
	case OpAddConnection:
		return s.addConnection(op)
	case OpRemoveConnection:
		return s.removeConnection(op)
	case OpRewireConnection:
		return s.rewireConnection(op)
	case OpCleanStaleConnections:
		return s.cleanStale()
	case OpReplaceConnections:
		return s.replaceConnections(op)
	case OpUpdateSettings:
		return s.updateSettings(op)
	case OpUpdateName:
		return s.updateName(op)
	case OpAddTag:
		return s.addTag(op)
	case OpRemoveTag:
		return s.removeTag(op)
	case OpActivateWorkflow:
		return s.setActive(true)
	case OpDeactivateWorkflow:
		return s.setActive(false)
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
}

// node resolves a node reference, following renames recorded earlier in the
// same sequence so operations written against pre-rename names keep working.
func (s *session) node(name string) (*workflow.Node, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("node name is required")
	}
	if n := s.wf.Node(name); n != nil {
		return n, nil
	}
	if current, ok := s.renames[name]; ok {
		if n := s.wf.Node(current); n != nil {
			return n, nil
		}
	}
	return nil, fmt.Errorf("node %q not found", name)
}

func (s *session) warnf(format string, args ...any) {
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
}

func (s *session) warnOnce(msg string) {
	if s.warned[msg] {
		return
	}
	s.warned[msg] = true
	s.warnings = append(s.warnings, msg)
}

func (s *session) addNode(op *Operation) error {
	if len(op.Node) == 0 {
		return fmt.Errorf("addNode requires a node object")
	}
	raw, err := json.Marshal(op.Node)
	if err != nil {
		return fmt.Errorf("addNode payload: %v", err)
	}
	var n workflow.Node
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("addNode payload: %v", err)
	}
	n.Name = strings.TrimSpace(n.Name)
	n.Type = strings.TrimSpace(n.Type)
	if n.Name == "" {
		return fmt.Errorf("addNode requires node.name")
	}
	if s.wf.HasNode(n.Name) {
		return fmt.Errorf("a node named %q already exists", n.Name)
	}
	if n.Type == "" {
		return fmt.Errorf("addNode requires node.type")
	}
	if len(n.Position) != 2 {
		return fmt.Errorf("addNode requires node.position as [x, y]")
	}
	n.Type = s.qualifyType(n.Type)
	if n.TypeVersion <= 0 {
		n.TypeVersion = s.latestVersion(n.Type)
	}
	if n.Parameters == nil {
		n.Parameters = map[string]any{}
	}
	s.wf.Nodes = append(s.wf.Nodes, &n)
	return nil
}

// qualifyType expands a short type ("httpRequest") through the catalog.
// Unresolvable or already-qualified types pass through unchanged.
func (s *session) qualifyType(nodeType string) string {
	if s.kb == nil || strings.Contains(nodeType, ".") {
		return nodeType
	}
	if full, ok := s.kb.ResolveType(s.ctx, nodeType); ok {
		return full
	}
	return nodeType
}

func (s *session) latestVersion(nodeType string) float64 {
	if s.kb != nil {
		if d, err := s.kb.LookupByType(s.ctx, nodeType); err == nil && d != nil {
			return d.LatestVersion
		}
	}
	return 1
}

func (s *session) removeNode(op *Operation) error {
	n, err := s.node(op.Name)
	if err != nil {
		return err
	}
	kept := s.wf.Nodes[:0]
	for _, existing := range s.wf.Nodes {
		if existing != n {
			kept = append(kept, existing)
		}
	}
	s.wf.Nodes = kept
	if removed := s.wf.Connections.RemoveNode(n.Name); removed > 0 {
		s.warnf("removeNode %q dropped %d connection endpoint(s)", n.Name, removed)
	}
	delete(s.wf.PinData, n.Name)
	return nil
}

func (s *session) updateNode(op *Operation) error {
	n, err := s.node(op.Name)
	if err != nil {
		return err
	}
	if len(op.Updates) == 0 {
		return fmt.Errorf("updateNode requires a non-empty updates object")
	}
	// Stage every field write on a copy so a failing key leaves the node
	// untouched even in continue-on-error mode.
	work, err := core.DeepCopy(n)
	if err != nil {
		return fmt.Errorf("clone node %q: %v", n.Name, err)
	}
	keys := make([]string, 0, len(op.Updates))
	for k := range op.Updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := s.setNodeField(work, key, op.Updates[key]); err != nil {
			return err
		}
	}
	oldName := n.Name
	*n = *work
	if n.Name != oldName {
		s.recordRename(oldName, n.Name)
	}
	return nil
}

func (s *session) setNodeField(n *workflow.Node, key string, v any) error {
	switch {
	case key == "name":
		name := strings.TrimSpace(core.AsString(v))
		if name == "" {
			return fmt.Errorf("update %q: name must be a non-empty string", key)
		}
		if name != n.Name && s.wf.HasNode(name) {
			return fmt.Errorf("update %q: a node named %q already exists", key, name)
		}
		n.Name = name
	case key == "type":
		t := strings.TrimSpace(core.AsString(v))
		if t == "" {
			return fmt.Errorf("update %q: type must be a non-empty string", key)
		}
		n.Type = s.qualifyType(t)
	case key == "typeVersion":
		f, ok := core.ToFloat(v)
		if !ok || f <= 0 {
			return fmt.Errorf("update %q: typeVersion must be a positive number", key)
		}
		n.TypeVersion = f
	case key == "position":
		pos, err := floatPair(v)
		if err != nil {
			return fmt.Errorf("update %q: %v", key, err)
		}
		n.Position = pos
	case key == "disabled":
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("update %q: disabled must be a boolean", key)
		}
		n.Disabled = b
	case key == "notes":
		n.Notes = core.AsString(v)
	case key == "onError":
		if v == nil {
			n.OnError = ""
			return nil
		}
		n.OnError = core.AsString(v)
	case key == "parameters":
		m := core.AsMap(v)
		if m == nil {
			return fmt.Errorf("update %q: parameters must be an object", key)
		}
		if n.Parameters == nil {
			n.Parameters = map[string]any{}
		}
		if err := mergo.Merge(&n.Parameters, m, mergo.WithOverride); err != nil {
			return fmt.Errorf("update %q: merge parameters: %v", key, err)
		}
	case key == "credentials":
		m := core.AsMap(v)
		if m == nil {
			return fmt.Errorf("update %q: credentials must be an object", key)
		}
		n.Credentials = m
	case strings.HasPrefix(key, "parameters."):
		path := strings.TrimPrefix(key, "parameters.")
		if n.Parameters == nil {
			n.Parameters = map[string]any{}
		}
		if v == nil {
			core.DeletePath(n.Parameters, path)
			return nil
		}
		if err := core.SetPath(n.Parameters, path, v); err != nil {
			return fmt.Errorf("update %q: %v", key, err)
		}
	case strings.HasPrefix(key, "credentials."):
		path := strings.TrimPrefix(key, "credentials.")
		if n.Credentials == nil {
			n.Credentials = map[string]any{}
		}
		if v == nil {
			core.DeletePath(n.Credentials, path)
			return nil
		}
		if err := core.SetPath(n.Credentials, path, v); err != nil {
			return fmt.Errorf("update %q: %v", key, err)
		}
	default:
		return fmt.Errorf("unsupported update key %q", key)
	}
	return nil
}

// recordRename keeps the rename map canonical (old names always point at the
// current name) and rewrites connections and pinned data immediately so the
// serialized document never carries a dangling reference.
func (s *session) recordRename(oldName, newName string) {
	for from, to := range s.renames {
		if to == oldName {
			s.renames[from] = newName
		}
	}
	s.renames[oldName] = newName
	s.wf.Connections.RenameNode(oldName, newName)
	if pins, ok := s.wf.PinData[oldName]; ok {
		delete(s.wf.PinData, oldName)
		s.wf.PinData[newName] = pins
	}
	s.warnf("node %q renamed to %q; connections updated", oldName, newName)
}

func (s *session) moveNode(op *Operation) error {
	n, err := s.node(op.Name)
	if err != nil {
		return err
	}
	hasPosition := len(op.Position) > 0
	hasOffset := len(op.Offset) > 0
	if hasPosition == hasOffset {
		return fmt.Errorf("moveNode requires exactly one of position or offset")
	}
	if hasPosition {
		if len(op.Position) != 2 {
			return fmt.Errorf("position must be [x, y]")
		}
		n.Position = []float64{op.Position[0], op.Position[1]}
		return nil
	}
	if len(op.Offset) != 2 {
		return fmt.Errorf("offset must be [dx, dy]")
	}
	if len(n.Position) != 2 {
		n.Position = []float64{0, 0}
	}
	n.Position[0] += op.Offset[0]
	n.Position[1] += op.Offset[1]
	return nil
}

func (s *session) setDisabled(op *Operation, disabled bool) error {
	n, err := s.node(op.Name)
	if err != nil {
		return err
	}
	if n.Disabled == disabled {
		state := "enabled"
		if disabled {
			state = "disabled"
		}
		s.warnf("node %q is already %s", n.Name, state)
		return nil
	}
	n.Disabled = disabled
	return nil
}

// link is a fully resolved connection reference: current node names, outlet
// kind, and slot indices.
type link struct {
	source      string
	kind        string
	sourceIndex int
	target      string
	targetIndex int
}

func (l *link) endpoint() workflow.Endpoint {
	return workflow.Endpoint{Node: l.target, Type: l.kind, Index: l.targetIndex}
}

// resolveLink applies the smart connection parameters: branch maps to if
// outlets 0/1, case to a switch outlet, aiConnectionType to an ai_* kind.
// The three selectors are mutually exclusive and each is checked against
// the source node's type.
func (s *session) resolveLink(op *Operation, source, target string) (*link, error) {
	src, err := s.node(source)
	if err != nil {
		return nil, fmt.Errorf("source: %v", err)
	}
	dst, err := s.node(target)
	if err != nil {
		return nil, fmt.Errorf("target: %v", err)
	}

	l := &link{source: src.Name, target: dst.Name, kind: workflow.ConnMain}
	if op.SourceIndex != nil {
		l.sourceIndex = *op.SourceIndex
	}
	if op.TargetIndex != nil {
		l.targetIndex = *op.TargetIndex
	}
	if l.sourceIndex < 0 || l.targetIndex < 0 {
		return nil, fmt.Errorf("connection indices must be non-negative")
	}

	selectors := 0
	if op.Branch != "" {
		selectors++
	}
	if op.Case != nil {
		selectors++
	}
	if op.AIConnectionType != "" {
		selectors++
	}
	if selectors > 1 {
		return nil, fmt.Errorf("branch, case, and aiConnectionType are mutually exclusive")
	}

	switch {
	case op.Branch != "":
		if src.Type != workflow.TypeIf {
			return nil, fmt.Errorf("branch applies only to if nodes; %q is %s", src.Name, src.Type)
		}
		switch op.Branch {
		case "true":
			l.sourceIndex = 0
		case "false":
			l.sourceIndex = 1
		default:
			return nil, fmt.Errorf("branch must be %q or %q, got %q", "true", "false", op.Branch)
		}
	case op.Case != nil:
		if src.Type != workflow.TypeSwitch {
			return nil, fmt.Errorf("case applies only to switch nodes; %q is %s", src.Name, src.Type)
		}
		if *op.Case < 0 {
			return nil, fmt.Errorf("case must be non-negative, got %d", *op.Case)
		}
		l.sourceIndex = *op.Case
	case op.AIConnectionType != "":
		if !workflow.IsAIConnection(op.AIConnectionType) {
			return nil, fmt.Errorf("unknown aiConnectionType %q", op.AIConnectionType)
		}
		l.kind = op.AIConnectionType
	}

	if l.kind == workflow.ConnMain && l.source == l.target {
		return nil, fmt.Errorf("cannot connect node %q to itself", l.source)
	}
	return l, nil
}

func (s *session) addConnection(op *Operation) error {
	l, err := s.resolveLink(op, op.Source, op.Target)
	if err != nil {
		return err
	}
	if !s.wf.Connections.Add(l.source, l.kind, l.sourceIndex, l.endpoint()) {
		s.warnf("connection %s[%s][%d] -> %s already exists", l.source, l.kind, l.sourceIndex, l.target)
	}
	return nil
}

// findEndpoint locates the stored endpoint for a resolved link. When the
// caller gave no explicit targetIndex any inlet index matches, so removals
// written from memory still land.
func (s *session) findEndpoint(l *link, explicitIndex bool) (workflow.Endpoint, bool) {
	slots := s.wf.Connections[l.source][l.kind]
	if l.sourceIndex >= len(slots) {
		return workflow.Endpoint{}, false
	}
	for _, ep := range slots[l.sourceIndex] {
		if ep.Node != l.target {
			continue
		}
		if explicitIndex && ep.Index != l.targetIndex {
			continue
		}
		return ep, true
	}
	return workflow.Endpoint{}, false
}

func (s *session) removeConnection(op *Operation) error {
	l, err := s.resolveLink(op, op.Source, op.Target)
	if err != nil {
		return err
	}
	ep, ok := s.findEndpoint(l, op.TargetIndex != nil)
	if !ok {
		return fmt.Errorf("no %s connection from %q (outlet %d) to %q", l.kind, l.source, l.sourceIndex, l.target)
	}
	s.wf.Connections.Remove(l.source, l.kind, l.sourceIndex, ep)
	return nil
}

func (s *session) rewireConnection(op *Operation) error {
	if (op.NewSource == "") == (op.NewTarget == "") {
		return fmt.Errorf("rewireConnection requires exactly one of newSource or newTarget")
	}
	l, err := s.resolveLink(op, op.Source, op.Target)
	if err != nil {
		return err
	}
	ep, ok := s.findEndpoint(l, op.TargetIndex != nil)
	if !ok {
		return fmt.Errorf("no %s connection from %q (outlet %d) to %q to rewire", l.kind, l.source, l.sourceIndex, l.target)
	}

	// Validate the replacement before touching anything so the op stays
	// atomic. The new endpoint inherits the stored inlet index unless the
	// caller picked one explicitly.
	next := *op
	if op.TargetIndex == nil {
		idx := ep.Index
		next.TargetIndex = &idx
	}
	newSource, newTarget := l.source, l.target
	if op.NewSource != "" {
		newSource = op.NewSource
	}
	if op.NewTarget != "" {
		newTarget = op.NewTarget
	}
	nl, err := s.resolveLink(&next, newSource, newTarget)
	if err != nil {
		return err
	}

	s.wf.Connections.Remove(l.source, l.kind, l.sourceIndex, ep)
	if !s.wf.Connections.Add(nl.source, nl.kind, nl.sourceIndex, nl.endpoint()) {
		s.warnf("rewired connection %s[%s][%d] -> %s already existed; duplicate skipped", nl.source, nl.kind, nl.sourceIndex, nl.target)
	}
	return nil
}

func (s *session) cleanStale() error {
	if removed := s.wf.CleanStale(); removed > 0 {
		s.warnf("cleanStaleConnections dropped %d endpoint(s)", removed)
	}
	return nil
}

func (s *session) replaceConnections(op *Operation) error {
	if op.Connections == nil {
		return fmt.Errorf("replaceConnections requires a connections object")
	}
	copied, err := core.DeepCopy(op.Connections)
	if err != nil {
		return fmt.Errorf("clone connections: %v", err)
	}
	s.wf.Connections = copied
	if stale := s.wf.Stale(); len(stale) > 0 {
		s.warnf("replaceConnections left %d endpoint(s) referencing unknown nodes", len(stale))
	}
	return nil
}

func (s *session) updateSettings(op *Operation) error {
	if op.Settings == nil {
		return fmt.Errorf("updateSettings requires a settings object")
	}
	if s.wf.Settings == nil {
		s.wf.Settings = map[string]any{}
	}
	for k, v := range op.Settings {
		if v == nil {
			delete(s.wf.Settings, k)
			continue
		}
		s.wf.Settings[k] = v
	}
	return nil
}

func (s *session) updateName(op *Operation) error {
	name := strings.TrimSpace(op.Name)
	if name == "" {
		return fmt.Errorf("updateName requires a non-empty name")
	}
	s.wf.Name = name
	return nil
}

func (s *session) addTag(op *Operation) error {
	tag := strings.TrimSpace(op.Tag)
	if tag == "" {
		return fmt.Errorf("addTag requires a tag")
	}
	if s.wf.HasTag(tag) {
		s.warnf("tag %q already present", tag)
		return nil
	}
	s.wf.Tags = append(s.wf.Tags, tag)
	return nil
}

func (s *session) removeTag(op *Operation) error {
	tag := strings.TrimSpace(op.Tag)
	if tag == "" {
		return fmt.Errorf("removeTag requires a tag")
	}
	if !s.wf.HasTag(tag) {
		s.warnf("tag %q not present", tag)
		return nil
	}
	kept := s.wf.Tags[:0]
	for _, t := range s.wf.Tags {
		if t != tag {
			kept = append(kept, t)
		}
	}
	s.wf.Tags = kept
	return nil
}

func (s *session) setActive(active bool) error {
	s.wf.Active = active
	s.warnOnce("activation flags are local metadata; push the workflow for the change to take effect")
	return nil
}

func floatPair(v any) ([]float64, error) {
	list, ok := v.([]any)
	if !ok || len(list) != 2 {
		return nil, fmt.Errorf("expected [x, y]")
	}
	out := make([]float64, 2)
	for i, item := range list {
		f, ok := core.ToFloat(item)
		if !ok {
			return nil, fmt.Errorf("expected [x, y] of numbers")
		}
		out[i] = f
	}
	return out, nil
}

package versions

import (
	"context"
	"reflect"
	"sort"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// NodeDelta names one node that exists in both versions with the attributes
// that differ between them.
type NodeDelta struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// FieldDelta is one changed workflow-level attribute.
type FieldDelta struct {
	Field string `json:"field"`
	From  any    `json:"from"`
	To    any    `json:"to"`
}

// CompareResult is the structural diff between two snapshots of the same
// workflow: node-level adds/removes/changes, connection-set changes, and
// workflow metadata changes.
type CompareResult struct {
	WorkflowID  string `json:"workflowId"`
	FromVersion int    `json:"fromVersion"`
	ToVersion   int    `json:"toVersion"`

	NodesAdded   []string    `json:"nodesAdded,omitempty"`
	NodesRemoved []string    `json:"nodesRemoved,omitempty"`
	NodesChanged []NodeDelta `json:"nodesChanged,omitempty"`

	ConnectionsAdded   []workflow.ConnectionRef `json:"connectionsAdded,omitempty"`
	ConnectionsRemoved []workflow.ConnectionRef `json:"connectionsRemoved,omitempty"`

	MetadataChanged []FieldDelta `json:"metadataChanged,omitempty"`

	Same bool `json:"same"`
}

// Compare loads both versions and returns their structural diff, oriented
// from a to b.
func (s *Store) Compare(ctx context.Context, workflowID string, a, b int) (*CompareResult, error) {
	from, err := s.Get(ctx, workflowID, a)
	if err != nil {
		return nil, err
	}
	if from == nil {
		return nil, core.NewError(
			core.KindData, core.CodeVersionNotFound,
			"versions: workflow %s has no version %d", workflowID, a,
		).WithDetails("workflowId", workflowID).WithDetails("version", a)
	}
	to, err := s.Get(ctx, workflowID, b)
	if err != nil {
		return nil, err
	}
	if to == nil {
		return nil, core.NewError(
			core.KindData, core.CodeVersionNotFound,
			"versions: workflow %s has no version %d", workflowID, b,
		).WithDetails("workflowId", workflowID).WithDetails("version", b)
	}
	res := compareWorkflows(from.Workflow, to.Workflow)
	res.WorkflowID = workflowID
	res.FromVersion = a
	res.ToVersion = b
	return res, nil
}

// compareWorkflows diffs two documents structurally. Node identity is the
// node name; removed and changed nodes follow the from-document order,
// added nodes the to-document order.
func compareWorkflows(from, to *workflow.Workflow) *CompareResult {
	res := &CompareResult{}

	for _, n := range from.Nodes {
		other := to.Node(n.Name)
		if other == nil {
			res.NodesRemoved = append(res.NodesRemoved, n.Name)
			continue
		}
		if fields := nodeFieldDiff(n, other); len(fields) > 0 {
			res.NodesChanged = append(res.NodesChanged, NodeDelta{Name: n.Name, Fields: fields})
		}
	}
	for _, n := range to.Nodes {
		if from.Node(n.Name) == nil {
			res.NodesAdded = append(res.NodesAdded, n.Name)
		}
	}

	res.ConnectionsAdded, res.ConnectionsRemoved = connectionSetDiff(from.Connections, to.Connections)
	res.MetadataChanged = metadataDiff(from, to)
	res.Same = len(res.NodesAdded) == 0 && len(res.NodesRemoved) == 0 &&
		len(res.NodesChanged) == 0 && len(res.ConnectionsAdded) == 0 &&
		len(res.ConnectionsRemoved) == 0 && len(res.MetadataChanged) == 0
	return res
}

func nodeFieldDiff(a, b *workflow.Node) []string {
	var fields []string
	if a.Type != b.Type {
		fields = append(fields, "type")
	}
	if a.TypeVersion != b.TypeVersion {
		fields = append(fields, "typeVersion")
	}
	if !reflect.DeepEqual(a.Position, b.Position) {
		fields = append(fields, "position")
	}
	if !reflect.DeepEqual(a.Parameters, b.Parameters) {
		fields = append(fields, "parameters")
	}
	if !reflect.DeepEqual(a.Credentials, b.Credentials) {
		fields = append(fields, "credentials")
	}
	if a.Disabled != b.Disabled {
		fields = append(fields, "disabled")
	}
	if a.Notes != b.Notes {
		fields = append(fields, "notes")
	}
	if a.OnError != b.OnError {
		fields = append(fields, "onError")
	}
	return fields
}

// connectionSetDiff treats each graph as a set of endpoint references.
// Both outputs come back in EachEndpoint's deterministic order.
func connectionSetDiff(from, to workflow.Connections) (added, removed []workflow.ConnectionRef) {
	fromSet := make(map[workflow.ConnectionRef]bool)
	from.EachEndpoint(func(ref workflow.ConnectionRef) {
		fromSet[ref] = true
	})
	toSet := make(map[workflow.ConnectionRef]bool)
	to.EachEndpoint(func(ref workflow.ConnectionRef) {
		toSet[ref] = true
		if !fromSet[ref] {
			added = append(added, ref)
		}
	})
	from.EachEndpoint(func(ref workflow.ConnectionRef) {
		if !toSet[ref] {
			removed = append(removed, ref)
		}
	})
	return added, removed
}

func metadataDiff(from, to *workflow.Workflow) []FieldDelta {
	var out []FieldDelta
	if from.Name != to.Name {
		out = append(out, FieldDelta{Field: "name", From: from.Name, To: to.Name})
	}
	if from.Active != to.Active {
		out = append(out, FieldDelta{Field: "active", From: from.Active, To: to.Active})
	}
	if !reflect.DeepEqual(from.Settings, to.Settings) {
		out = append(out, FieldDelta{Field: "settings", From: from.Settings, To: to.Settings})
	}
	if !tagSetEqual(from.Tags, to.Tags) {
		out = append(out, FieldDelta{Field: "tags", From: []string(from.Tags), To: []string(to.Tags)})
	}
	return out
}

// tagSetEqual compares tags as sets: ordering differences are not a change.
func tagSetEqual(a, b workflow.TagList) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

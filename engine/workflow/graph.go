package workflow

import "sort"

// ConnectionRef addresses one endpoint within the connection map.
type ConnectionRef struct {
	Source      string `json:"source"`
	Kind        string `json:"kind"`
	SourceIndex int    `json:"sourceIndex"`
	Target      string `json:"target"`
	TargetKind  string `json:"targetKind"`
	TargetIndex int    `json:"targetIndex"`
}

// EachEndpoint visits every endpoint in deterministic order: source names
// sorted, outlet kinds sorted, then slot and endpoint order as stored.
func (c Connections) EachEndpoint(fn func(ref ConnectionRef)) {
	sources := make([]string, 0, len(c))
	for src := range c {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	for _, src := range sources {
		kinds := make([]string, 0, len(c[src]))
		for kind := range c[src] {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			for slot, endpoints := range c[src][kind] {
				for _, ep := range endpoints {
					fn(ConnectionRef{
						Source:      src,
						Kind:        kind,
						SourceIndex: slot,
						Target:      ep.Node,
						TargetKind:  ep.Type,
						TargetIndex: ep.Index,
					})
				}
			}
		}
	}
}

// EnsureSlot grows the outlet slot list for (source, kind) so that index is
// addressable, and returns the slot list.
func (c Connections) EnsureSlot(source, kind string, index int) [][]Endpoint {
	if c[source] == nil {
		c[source] = map[string][][]Endpoint{}
	}
	slots := c[source][kind]
	for len(slots) <= index {
		slots = append(slots, []Endpoint{})
	}
	c[source][kind] = slots
	return slots
}

// Add appends an endpoint to the given outlet slot, growing slots as needed.
// Duplicate endpoints in the same slot are ignored.
func (c Connections) Add(source, kind string, index int, ep Endpoint) bool {
	slots := c.EnsureSlot(source, kind, index)
	for _, existing := range slots[index] {
		if existing == ep {
			return false
		}
	}
	c[source][kind][index] = append(slots[index], ep)
	return true
}

// Remove deletes an endpoint by identity and prunes empty containers.
func (c Connections) Remove(source, kind string, index int, ep Endpoint) bool {
	slots, ok := c[source][kind]
	if !ok || index >= len(slots) {
		return false
	}
	removed := false
	kept := slots[index][:0]
	for _, existing := range slots[index] {
		if existing == ep && !removed {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	if !removed {
		return false
	}
	slots[index] = kept
	c.prune(source, kind)
	return true
}

// prune drops trailing empty slots and empty kind/source entries so the
// serialized map stays as small as hand-written documents.
func (c Connections) prune(source, kind string) {
	slots := c[source][kind]
	for len(slots) > 0 && len(slots[len(slots)-1]) == 0 {
		slots = slots[:len(slots)-1]
	}
	if len(slots) == 0 {
		delete(c[source], kind)
	} else {
		c[source][kind] = slots
	}
	if len(c[source]) == 0 {
		delete(c, source)
	}
}

// RemoveNode drops the node's outgoing entry and every endpoint targeting it.
func (c Connections) RemoveNode(name string) int {
	removed := 0
	if _, ok := c[name]; ok {
		removed += c.countEndpoints(name)
		delete(c, name)
	}
	for src, kinds := range c {
		for kind, slots := range kinds {
			for i, endpoints := range slots {
				kept := endpoints[:0]
				for _, ep := range endpoints {
					if ep.Node == name {
						removed++
						continue
					}
					kept = append(kept, ep)
				}
				slots[i] = kept
			}
			kinds[kind] = slots
			c.prune(src, kind)
		}
	}
	return removed
}

func (c Connections) countEndpoints(source string) int {
	n := 0
	for _, slots := range c[source] {
		for _, endpoints := range slots {
			n += len(endpoints)
		}
	}
	return n
}

// RenameNode rewrites the source key and every endpoint for a node rename.
func (c Connections) RenameNode(oldName, newName string) {
	if kinds, ok := c[oldName]; ok {
		delete(c, oldName)
		c[newName] = kinds
	}
	for _, kinds := range c {
		for _, slots := range kinds {
			for _, endpoints := range slots {
				for i := range endpoints {
					if endpoints[i].Node == oldName {
						endpoints[i].Node = newName
					}
				}
			}
		}
	}
}

// Stale returns references whose source or target no longer names an
// existing node.
func (w *Workflow) Stale() []ConnectionRef {
	exists := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		exists[n.Name] = true
	}
	var stale []ConnectionRef
	w.Connections.EachEndpoint(func(ref ConnectionRef) {
		if !exists[ref.Source] || !exists[ref.Target] {
			stale = append(stale, ref)
		}
	})
	return stale
}

// CleanStale removes every stale endpoint and empty source entry, returning
// the number of endpoints dropped.
func (w *Workflow) CleanStale() int {
	exists := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		exists[n.Name] = true
	}
	removed := 0
	for src, kinds := range w.Connections {
		if !exists[src] {
			removed += w.Connections.countEndpoints(src)
			delete(w.Connections, src)
			continue
		}
		for kind, slots := range kinds {
			for i, endpoints := range slots {
				kept := endpoints[:0]
				for _, ep := range endpoints {
					if !exists[ep.Node] {
						removed++
						continue
					}
					kept = append(kept, ep)
				}
				slots[i] = kept
			}
			kinds[kind] = slots
			w.Connections.prune(src, kind)
		}
	}
	return removed
}

// Incoming returns, for each outlet kind, the sources that feed the given
// node. Used by the AI-topology checks to find a node's attached
// capabilities.
func (w *Workflow) Incoming(target string) map[string][]string {
	in := map[string][]string{}
	w.Connections.EachEndpoint(func(ref ConnectionRef) {
		if ref.Target == target {
			in[ref.TargetKind] = append(in[ref.TargetKind], ref.Source)
		}
	})
	return in
}

// Outgoing returns the outlet slot lists for a source node, nil when the
// node has no outgoing connections.
func (w *Workflow) Outgoing(source string) map[string][][]Endpoint {
	return w.Connections[source]
}

package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PathSegment is one step of a parameter path. Paths address values inside a
// node's parameters using dots for keys and brackets for sequence indices,
// e.g. "options.conditions[2].value".
type PathSegment struct {
	Key     string
	Index   int
	IsIndex bool
}

// ParsePath splits a dot/bracket path into segments.
func ParsePath(path string) ([]PathSegment, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}
	var segs []PathSegment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, fmt.Errorf("path %q has an empty segment", path)
		}
		for {
			open := strings.IndexByte(part, '[')
			if open == -1 {
				if part != "" {
					segs = append(segs, PathSegment{Key: part})
				}
				break
			}
			if open > 0 {
				segs = append(segs, PathSegment{Key: part[:open]})
			}
			closing := strings.IndexByte(part, ']')
			if closing < open {
				return nil, fmt.Errorf("path %q has an unterminated index", path)
			}
			idx, err := strconv.Atoi(part[open+1 : closing])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("path %q has an invalid index %q", path, part[open+1:closing])
			}
			segs = append(segs, PathSegment{Index: idx, IsIndex: true})
			part = part[closing+1:]
			if part == "" {
				break
			}
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	return segs, nil
}

// GetPath reads the value addressed by path. The second return reports
// whether every segment resolved.
func GetPath(root map[string]any, path string) (any, bool) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	var cur any = root
	for _, seg := range segs {
		if seg.IsIndex {
			list, ok := cur.([]any)
			if !ok || seg.Index >= len(list) {
				return nil, false
			}
			cur = list[seg.Index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg.Key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetPath writes value at path, creating intermediate maps for missing keys.
// A sequence index must land inside the existing slice or exactly one past
// its end (append); anything else is an error so fixes never silently grow
// sparse arrays.
func SetPath(root map[string]any, path string, value any) error {
	segs, err := ParsePath(path)
	if err != nil {
		return err
	}
	return setSegments(root, segs, value, path)
}

func setSegments(container any, segs []PathSegment, value any, full string) error {
	seg := segs[0]
	last := len(segs) == 1

	switch c := container.(type) {
	case map[string]any:
		if seg.IsIndex {
			return fmt.Errorf("path %q indexes into a mapping", full)
		}
		if last {
			c[seg.Key] = value
			return nil
		}
		next, ok := c[seg.Key]
		if !ok || next == nil {
			next = emptyContainerFor(segs[1])
			c[seg.Key] = next
		}
		if lst, isList := next.([]any); isList {
			grown, err := setInList(lst, segs[1:], value, full)
			if err != nil {
				return err
			}
			c[seg.Key] = grown
			return nil
		}
		return setSegments(next, segs[1:], value, full)
	case []any:
		grown, err := setInList(c, segs, value, full)
		if err != nil {
			return err
		}
		if len(grown) != len(c) {
			return fmt.Errorf("path %q appends to an unaddressable slice", full)
		}
		return nil
	default:
		return fmt.Errorf("path %q traverses a scalar", full)
	}
}

// setInList handles the slice case, returning the (possibly grown) slice so
// the caller can re-attach it to its parent container.
func setInList(list []any, segs []PathSegment, value any, full string) ([]any, error) {
	seg := segs[0]
	if !seg.IsIndex {
		return nil, fmt.Errorf("path %q uses a key on a sequence", full)
	}
	if seg.Index > len(list) {
		return nil, fmt.Errorf("path %q index %d out of range (len %d)", full, seg.Index, len(list))
	}
	if seg.Index == len(list) {
		if len(segs) == 1 {
			return append(list, value), nil
		}
		next := emptyContainerFor(segs[1])
		list = append(list, next)
	}
	if len(segs) == 1 {
		list[seg.Index] = value
		return list, nil
	}
	if lst, isList := list[seg.Index].([]any); isList {
		grown, err := setInList(lst, segs[1:], value, full)
		if err != nil {
			return nil, err
		}
		list[seg.Index] = grown
		return list, nil
	}
	if err := setSegments(list[seg.Index], segs[1:], value, full); err != nil {
		return nil, err
	}
	return list, nil
}

func emptyContainerFor(seg PathSegment) any {
	if seg.IsIndex {
		return []any{}
	}
	return map[string]any{}
}

// DeletePath removes the value addressed by path and reports whether it
// existed. Sequence elements are removed by splice.
func DeletePath(root map[string]any, path string) bool {
	segs, err := ParsePath(path)
	if err != nil {
		return false
	}
	var cur any = root
	for _, seg := range segs[:len(segs)-1] {
		if seg.IsIndex {
			list, ok := cur.([]any)
			if !ok || seg.Index >= len(list) {
				return false
			}
			cur = list[seg.Index]
		} else {
			m, ok := cur.(map[string]any)
			if !ok {
				return false
			}
			cur, ok = m[seg.Key]
			if !ok {
				return false
			}
		}
	}
	last := segs[len(segs)-1]
	if last.IsIndex {
		// Splice requires rewriting the parent reference; deleting list
		// elements is only supported when the parent is a mapping value.
		return spliceParent(root, segs)
	}
	m, ok := cur.(map[string]any)
	if !ok {
		return false
	}
	if _, exists := m[last.Key]; !exists {
		return false
	}
	delete(m, last.Key)
	return true
}

func spliceParent(root map[string]any, segs []PathSegment) bool {
	if len(segs) < 2 {
		return false
	}
	parentPath := JoinPath(segs[:len(segs)-1])
	parent, ok := GetPath(root, parentPath)
	if !ok {
		return false
	}
	list, ok := parent.([]any)
	idx := segs[len(segs)-1].Index
	if !ok || idx >= len(list) {
		return false
	}
	spliced := append(append([]any{}, list[:idx]...), list[idx+1:]...)
	return SetPath(root, parentPath, spliced) == nil
}

// JoinPath renders segments back into path syntax.
func JoinPath(segs []PathSegment) string {
	var b strings.Builder
	for _, seg := range segs {
		if seg.IsIndex {
			fmt.Fprintf(&b, "[%d]", seg.Index)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Key)
	}
	return b.String()
}

// ChildPath appends a key segment to a parent path.
func ChildPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

// IndexPath appends a sequence index to a parent path.
func IndexPath(parent string, idx int) string {
	return fmt.Sprintf("%s[%d]", parent, idx)
}

// WalkStrings visits every string leaf under v in deterministic order
// (mapping keys sorted lexicographically). The callback receives the full
// dot/bracket path of the leaf.
func WalkStrings(prefix string, v any, fn func(path string, value string)) {
	switch t := v.(type) {
	case string:
		fn(prefix, t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			WalkStrings(ChildPath(prefix, k), t[k], fn)
		}
	case []any:
		for i, item := range t {
			WalkStrings(IndexPath(prefix, i), item, fn)
		}
	}
}

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleParams() map[string]any {
	return map[string]any{
		"url": "https://example.com",
		"options": map[string]any{
			"timeout": float64(30),
			"conditions": []any{
				map[string]any{"value": "a"},
				map[string]any{"value": "b"},
			},
		},
	}
}

func TestParsePath(t *testing.T) {
	t.Run("Should split dots and bracket indices", func(t *testing.T) {
		segs, err := ParsePath("options.conditions[1].value")
		require.NoError(t, err)
		require.Len(t, segs, 4)
		assert.Equal(t, "options", segs[0].Key)
		assert.True(t, segs[2].IsIndex)
		assert.Equal(t, 1, segs[2].Index)
		assert.Equal(t, "options.conditions[1].value", JoinPath(segs))
	})
	t.Run("Should reject malformed paths", func(t *testing.T) {
		for _, bad := range []string{"", "a..b", "a[x]", "a[1", "a[-1]"} {
			_, err := ParsePath(bad)
			assert.Error(t, err, "path %q", bad)
		}
	})
}

func TestGetSetDelete(t *testing.T) {
	t.Run("Should read nested values", func(t *testing.T) {
		m := sampleParams()
		v, ok := GetPath(m, "options.conditions[1].value")
		require.True(t, ok)
		assert.Equal(t, "b", v)
		_, ok = GetPath(m, "options.conditions[9].value")
		assert.False(t, ok)
	})
	t.Run("Should create intermediate maps on set", func(t *testing.T) {
		m := sampleParams()
		require.NoError(t, SetPath(m, "auth.kind", "bearer"))
		v, ok := GetPath(m, "auth.kind")
		require.True(t, ok)
		assert.Equal(t, "bearer", v)
	})
	t.Run("Should overwrite list elements and allow single append", func(t *testing.T) {
		m := sampleParams()
		require.NoError(t, SetPath(m, "options.conditions[0].value", "z"))
		v, _ := GetPath(m, "options.conditions[0].value")
		assert.Equal(t, "z", v)
		require.NoError(t, SetPath(m, "options.conditions[2]", map[string]any{"value": "c"}))
		v, _ = GetPath(m, "options.conditions[2].value")
		assert.Equal(t, "c", v)
		assert.Error(t, SetPath(m, "options.conditions[9]", "sparse"))
	})
	t.Run("Should delete keys and splice list elements", func(t *testing.T) {
		m := sampleParams()
		assert.True(t, DeletePath(m, "options.timeout"))
		_, ok := GetPath(m, "options.timeout")
		assert.False(t, ok)
		assert.True(t, DeletePath(m, "options.conditions[0]"))
		v, _ := GetPath(m, "options.conditions[0].value")
		assert.Equal(t, "b", v)
		assert.False(t, DeletePath(m, "missing.key"))
	})
}

func TestWalkStrings(t *testing.T) {
	t.Run("Should visit string leaves in deterministic order", func(t *testing.T) {
		m := map[string]any{
			"b": "two",
			"a": "one",
			"nested": map[string]any{
				"list": []any{"x", float64(3), "y"},
			},
		}
		var paths []string
		WalkStrings("", m, func(path, _ string) {
			paths = append(paths, path)
		})
		assert.Equal(t, []string{"a", "b", "nested.list[0]", "nested.list[2]"}, paths)
	})
}

func TestDeepCopy(t *testing.T) {
	t.Run("Should copy without aliasing", func(t *testing.T) {
		m := sampleParams()
		cp, err := DeepCopyMap(m)
		require.NoError(t, err)
		require.NoError(t, SetPath(cp, "options.timeout", float64(5)))
		v, _ := GetPath(m, "options.timeout")
		assert.Equal(t, float64(30), v)
	})
}

func TestConv(t *testing.T) {
	t.Run("Should coerce scalars to float", func(t *testing.T) {
		for _, v := range []any{float64(4.2), 4, int64(4), "4.2"} {
			_, ok := ToFloat(v)
			assert.True(t, ok, "value %v", v)
		}
		_, ok := ToFloat(map[string]any{})
		assert.False(t, ok)
	})
}

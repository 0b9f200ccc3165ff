package helpers

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nkit/n8nkit/engine/core"
)

func TestClampConcurrency(t *testing.T) {
	assert.Equal(t, DefaultBulkConcurrency, ClampConcurrency(0))
	assert.Equal(t, DefaultBulkConcurrency, ClampConcurrency(-3))
	assert.Equal(t, 6, ClampConcurrency(6))
	assert.Equal(t, MaxBulkConcurrency, ClampConcurrency(8))
	assert.Equal(t, MaxBulkConcurrency, ClampConcurrency(100))
}

func TestRunBulk(t *testing.T) {
	t.Run("Should report results in input order", func(t *testing.T) {
		ids := []string{"wf-3", "wf-1", "wf-2", "wf-5", "wf-4"}
		results := RunBulk(t.Context(), ids, 4, func(_ context.Context, id string) (any, error) {
			return strings.ToUpper(id), nil
		})
		require.Len(t, results, len(ids))
		for i, id := range ids {
			assert.Equal(t, id, results[i].ID)
			assert.True(t, results[i].Success)
			assert.Equal(t, strings.ToUpper(id), results[i].Data)
		}
	})
	t.Run("Should not abort siblings when one item fails", func(t *testing.T) {
		results := RunBulk(t.Context(), []string{"a", "b", "c"}, 2, func(_ context.Context, id string) (any, error) {
			if id == "b" {
				return nil, core.NewError(core.KindUnavailable, core.CodeHostUnreachable, "connection refused")
			}
			return id, nil
		})
		assert.True(t, results[0].Success)
		assert.False(t, results[1].Success)
		require.NotNil(t, results[1].Error)
		assert.Equal(t, core.CodeHostUnreachable, results[1].Error.Code)
		assert.Equal(t, core.KindUnavailable, results[1].Kind)
		assert.True(t, results[2].Success)
	})
	t.Run("Should never exceed the concurrency limit", func(t *testing.T) {
		var inFlight, peak atomic.Int32
		ids := []string{"1", "2", "3", "4", "5", "6"}
		RunBulk(t.Context(), ids, 2, func(_ context.Context, _ string) (any, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return nil, nil
		})
		assert.LessOrEqual(t, peak.Load(), int32(2))
	})
	t.Run("Should mark unprocessed items cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		results := RunBulk(ctx, []string{"a", "b"}, 2, func(_ context.Context, id string) (any, error) {
			return id, nil
		})
		for _, r := range results {
			assert.False(t, r.Success)
			require.NotNil(t, r.Error)
			assert.Equal(t, core.CodeCancelled, r.Error.Code)
			assert.Equal(t, core.KindCancelled, r.Kind)
		}
	})
}

func TestBulkFailure(t *testing.T) {
	t.Run("Should return nil when every item succeeded", func(t *testing.T) {
		items := []ItemResult{
			{ID: "a", Success: true},
			{ID: "b", Success: true},
		}
		assert.NoError(t, BulkFailure("activate", items))
	})
	t.Run("Should classify by the most severe failure", func(t *testing.T) {
		items := []ItemResult{
			{ID: "a", Success: true},
			{ID: "b", Error: &ErrorBody{Code: core.CodeNotFound, Message: "not found"}, Kind: core.KindData},
			{ID: "c", Error: &ErrorBody{Code: core.CodeHostUnreachable, Message: "refused"}, Kind: core.KindUnavailable},
		}
		err := BulkFailure("delete", items)
		coded, ok := core.AsError(err)
		require.True(t, ok)
		assert.Equal(t, core.KindUnavailable, coded.Kind)
		assert.Equal(t, core.CodeHostUnreachable, coded.Code)
		assert.Equal(t, "2 of 3 delete operations failed", coded.Message)
		assert.Equal(t, core.ExitUnavailable, core.ExitCodeFor(err))
		reported, ok := coded.Details["items"].([]ItemResult)
		require.True(t, ok)
		assert.Len(t, reported, 3)
	})
	t.Run("Should let cancellation win over everything", func(t *testing.T) {
		items := []ItemResult{
			{ID: "a", Error: &ErrorBody{Code: core.CodeInternal, Message: "boom"}, Kind: core.KindInternal},
			{ID: "b", Error: &ErrorBody{Code: core.CodeCancelled, Message: "cancelled"}, Kind: core.KindCancelled},
		}
		err := BulkFailure("retry", items)
		coded, ok := core.AsError(err)
		require.True(t, ok)
		assert.Equal(t, core.KindCancelled, coded.Kind)
		assert.Equal(t, core.CodeCancelled, coded.Code)
		assert.Equal(t, core.ExitTemporary, core.ExitCodeFor(err))
	})
}

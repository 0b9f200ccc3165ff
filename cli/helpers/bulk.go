package helpers

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/n8nkit/n8nkit/engine/core"
)

// Bulk dispatch bounds. Callers may raise concurrency with --concurrency,
// but never past the ceiling; the remote end is one n8n instance.
const (
	DefaultBulkConcurrency = 4
	MaxBulkConcurrency     = 8
)

// ItemResult is one per-target outcome of a bulk command, reported in
// input order. Kind stays out of the envelope; it only feeds the summary
// severity ranking.
type ItemResult struct {
	ID      string     `json:"id"`
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Kind    core.Kind  `json:"-"`
}

// ClampConcurrency normalizes a user-supplied concurrency.
func ClampConcurrency(n int) int {
	if n <= 0 {
		return DefaultBulkConcurrency
	}
	if n > MaxBulkConcurrency {
		return MaxBulkConcurrency
	}
	return n
}

func kindFor(err error) core.Kind {
	if coded, ok := core.AsError(err); ok {
		return coded.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return core.KindCancelled
	}
	return core.KindInternal
}

// RunBulk applies fn to every id with bounded parallelism and returns the
// outcomes in input order. One item's failure never aborts its siblings;
// a context cancellation marks the items that did not finish as cancelled.
func RunBulk(ctx context.Context, ids []string, concurrency int, fn func(ctx context.Context, id string) (any, error)) []ItemResult {
	results := make([]ItemResult, len(ids))
	var g errgroup.Group
	g.SetLimit(ClampConcurrency(concurrency))
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				cancelErr := core.WrapError(core.KindCancelled, core.CodeCancelled, err,
					"cancelled before %s was processed", id)
				results[i] = ItemResult{ID: id, Error: ErrorBodyFor(cancelErr), Kind: core.KindCancelled}
				return nil
			}
			data, err := fn(ctx, id)
			if err != nil {
				results[i] = ItemResult{ID: id, Error: ErrorBodyFor(err), Kind: kindFor(err)}
				return nil
			}
			results[i] = ItemResult{ID: id, Success: true, Data: data}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// kindRank orders error kinds by severity for the bulk summary; the worst
// failing item decides the command's exit class.
func kindRank(k core.Kind) int {
	switch k {
	case core.KindInternal:
		return 11
	case core.KindIO:
		return 10
	case core.KindProtocol:
		return 9
	case core.KindConfig:
		return 8
	case core.KindPermission:
		return 7
	case core.KindAuth:
		return 6
	case core.KindUnavailable:
		return 5
	case core.KindTemporary:
		return 4
	case core.KindData:
		return 3
	case core.KindNoInput:
		return 2
	case core.KindUsage:
		return 1
	}
	return 0
}

// BulkFailure summarizes a bulk run: nil when every item succeeded,
// otherwise a coded error carrying the per-item outcomes, classified by the
// most severe failure observed. A cancellation always wins so the process
// reports CANCELLED when the operator interrupted the run.
func BulkFailure(action string, items []ItemResult) error {
	failed := 0
	worstRank := -1
	kind := core.KindData
	code := core.CodeInternal
	cancelled := false
	for i := range items {
		if items[i].Success || items[i].Error == nil {
			continue
		}
		failed++
		if items[i].Kind == core.KindCancelled {
			cancelled = true
		}
		if r := kindRank(items[i].Kind); r > worstRank {
			worstRank = r
			kind = items[i].Kind
			code = items[i].Error.Code
		}
	}
	if failed == 0 {
		return nil
	}
	if cancelled {
		kind = core.KindCancelled
		code = core.CodeCancelled
	}
	return core.NewError(kind, code, "%d of %d %s operations failed", failed, len(items), action).
		WithDetails("items", items)
}

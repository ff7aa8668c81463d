// SPDX-License-Identifier: MIT

package stream

import (
	"context"
	"fmt"
	"runtime"

	"github.com/lanrat/extsort"
	"golang.org/x/sync/errgroup"
)

// SortItem is the element type constraint for Sort[T]: the same
// ToBytes() []byte shape the teacher's QRank type implements for
// extsort.SortType in cmd/qrank-builder/qrank.go.
type SortItem interface {
	ToBytes() []byte
}

// Sort wraps github.com/lanrat/extsort (§4.F's external merge sort): a
// caller-supplied Less function and byte decoder are threaded into
// extsort.New exactly as cmd/qrank-builder/qrank.go wires QRankLess and
// QRankFromBytes.
type Sort[T SortItem] struct {
	config    *extsort.Config
	less      func(a, b T) bool
	fromBytes func([]byte) T
}

// NewSort builds a Sort; workers<=0 uses extsort's own
// runtime.NumCPU()-based default, matching the teacher's
// config.NumWorkers = runtime.NumCPU().
func NewSort[T SortItem](less func(a, b T) bool, fromBytes func([]byte) T, workers int) *Sort[T] {
	cfg := extsort.DefaultConfig()
	if workers > 0 {
		cfg.NumWorkers = workers
	} else {
		cfg.NumWorkers = runtime.NumCPU()
	}
	return &Sort[T]{config: cfg, less: less, fromBytes: fromBytes}
}

// Sort drains produce into an extsort pipeline and returns every item
// in ascending order (per Less). The source is consumed, not
// persisted, the same way buildQRank in cmd/qrank-builder/qrank.go
// never keeps its unsorted channel around after the sort completes.
func (s *Sort[T]) Sort(ctx context.Context, produce func(ctx context.Context, ch chan<- extsort.SortType) error) ([]T, error) {
	ch := make(chan extsort.SortType, 50000)
	sorter, outChan, errChan := extsort.New(
		ch,
		func(b []byte) extsort.SortType { return s.fromBytes(b) },
		func(a, b extsort.SortType) bool { return s.less(a.(T), b.(T)) },
		s.config,
	)

	g, subCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return produce(subCtx, ch) })
	g.Go(func() error {
		sorter.Sort(ctx) // not subCtx, matching the extsort docs the teacher follows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("stream: Sort: %w", err)
	}

	var out []T
	for v := range outChan {
		out = append(out, v.(T))
	}
	if err := <-errChan; err != nil {
		return nil, fmt.Errorf("stream: Sort: %w", err)
	}
	return out, nil
}

// SortSlice is a convenience wrapper around Sort for callers that
// already have every item in memory (boundary edges, plateau
// collision lists) rather than produced incrementally.
func (s *Sort[T]) SortSlice(ctx context.Context, items []T) ([]T, error) {
	return s.Sort(ctx, func(ctx context.Context, ch chan<- extsort.SortType) error {
		defer close(ch)
		for _, it := range items {
			select {
			case ch <- it:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
}

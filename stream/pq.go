// SPDX-License-Identifier: MIT

package stream

import "container/heap"

// Less orders two priorities. A strict total order is required for
// ExtractAllMin's equal-priority batching to terminate.
type Less[P any] func(a, b P) bool

// Entry pairs a priority with its payload element.
type Entry[P any, E any] struct {
	Priority P
	Elem     E
}

// memHeap is the container/heap.Interface implementation backing the
// in-memory phase of AdaptivePQ, in the same shape as the teacher's
// lineMergerHeap in cmd/qrank-builder/linemerger.go.
type memHeap[P any, E any] struct {
	items []Entry[P, E]
	less  Less[P]
}

func (h memHeap[P, E]) Len() int            { return len(h.items) }
func (h memHeap[P, E]) Less(i, j int) bool  { return h.less(h.items[i].Priority, h.items[j].Priority) }
func (h memHeap[P, E]) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *memHeap[P, E]) Push(x interface{}) { h.items = append(h.items, x.(Entry[P, E])) }
func (h *memHeap[P, E]) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

// run is one sorted spill file produced when AdaptivePQ's in-memory
// heap overflows its budget; AdaptivePQ merges the live heads of all
// runs with the in-memory heap the same way LineMerger merges sorted
// readers, rather than re-reading whole runs on every extract.
type run[P any, E any] struct {
	stream *Stream[Entry[P, E]]
	cur    Entry[P, E]
	ok     bool
}

func (r *run[P, E]) advance() error {
	v, ok, err := r.stream.Next()
	if err != nil {
		return err
	}
	r.cur, r.ok = v, ok
	if !ok {
		return r.stream.Close()
	}
	return nil
}

// AdaptivePQ is the priority queue from §4.F/§9: an in-memory
// container/heap up to maxMemItems entries, then a transition to an
// external representation. Once the heap would grow past maxMemItems,
// its entire current content is drained in sorted order into a new
// spill run; ExtractMin then merges the live heap with every run's
// current head (a LineMerger-style k-way merge), so no single
// operation re-scans a whole run.
type AdaptivePQ[P any, E any] struct {
	less        Less[P]
	maxMemItems int
	tmpDir      string
	codec       Codec[Entry[P, E]]
	mem         memHeap[P, E]
	runs        []*run[P, E]
}

// NewAdaptivePQ builds an AdaptivePQ. maxMemItems bounds the in-memory
// phase (derive it from Config.MemoryLimitBytes / per-item size at the
// call site); codec serializes one (priority, element) pair for the
// spill files.
func NewAdaptivePQ[P any, E any](less Less[P], maxMemItems int, tmpDir string, codec Codec[Entry[P, E]]) *AdaptivePQ[P, E] {
	if maxMemItems < 1 {
		maxMemItems = 1
	}
	return &AdaptivePQ[P, E]{
		less:        less,
		maxMemItems: maxMemItems,
		tmpDir:      tmpDir,
		codec:       codec,
		mem:         memHeap[P, E]{less: less},
	}
}

// Insert adds (priority, elem), spilling the in-memory heap to a new
// sorted run if it would grow past maxMemItems.
func (pq *AdaptivePQ[P, E]) Insert(priority P, elem E) error {
	heap.Push(&pq.mem, Entry[P, E]{Priority: priority, Elem: elem})
	if pq.mem.Len() > pq.maxMemItems {
		return pq.spill()
	}
	return nil
}

func (pq *AdaptivePQ[P, E]) spill() error {
	st, err := NewCompressed(pq.tmpDir, pq.codec)
	if err != nil {
		return err
	}
	for pq.mem.Len() > 0 {
		it := heap.Pop(&pq.mem).(Entry[P, E])
		if err := st.Write(it); err != nil {
			return err
		}
	}
	if err := st.Rewind(); err != nil {
		return err
	}
	r := &run[P, E]{stream: st}
	if err := r.advance(); err != nil {
		return err
	}
	pq.runs = append(pq.runs, r)
	return nil
}

// peekSource returns the current minimum entry and which source holds
// it (-1 for the in-memory heap, otherwise a run index), or ok==false
// if the queue is empty.
func (pq *AdaptivePQ[P, E]) peekSource() (best Entry[P, E], source int, ok bool) {
	source = -2
	if pq.mem.Len() > 0 {
		best = pq.mem.items[0]
		source = -1
		ok = true
	}
	for i, r := range pq.runs {
		if r == nil || !r.ok {
			continue
		}
		if !ok || pq.less(r.cur.Priority, best.Priority) {
			best = r.cur
			source = i
			ok = true
		}
	}
	return best, source, ok
}

// Min peeks at the current minimum without removing it.
func (pq *AdaptivePQ[P, E]) Min() (P, E, bool) {
	best, _, ok := pq.peekSource()
	return best.Priority, best.Elem, ok
}

// ExtractMin removes and returns the current minimum-priority entry.
func (pq *AdaptivePQ[P, E]) ExtractMin() (P, E, bool, error) {
	best, source, ok := pq.peekSource()
	if !ok {
		var zp P
		var ze E
		return zp, ze, false, nil
	}
	if source == -1 {
		heap.Pop(&pq.mem)
		return best.Priority, best.Elem, true, nil
	}
	r := pq.runs[source]
	if err := r.advance(); err != nil {
		return best.Priority, best.Elem, true, err
	}
	if !r.ok {
		pq.runs[source] = nil
	}
	return best.Priority, best.Elem, true, nil
}

// ExtractAllMin removes every entry whose priority equals the current
// minimum (§4.F: "removes all elements with the minimum priority in
// one batch").
func (pq *AdaptivePQ[P, E]) ExtractAllMin() ([]E, P, bool, error) {
	p0, e0, ok, err := pq.ExtractMin()
	if err != nil || !ok {
		return nil, p0, ok, err
	}
	out := []E{e0}
	for {
		p, _, ok2 := pq.Min()
		if !ok2 || pq.less(p0, p) || pq.less(p, p0) {
			break
		}
		_, e, _, err2 := pq.ExtractMin()
		if err2 != nil {
			return out, p0, true, err2
		}
		out = append(out, e)
	}
	return out, p0, true, nil
}

// Len reports the number of entries still resident in memory; it is
// not the queue's total size once runs are in play (§4.F's contract is
// bounded in-memory work per call, not a cheap total count).
func (pq *AdaptivePQ[P, E]) Len() int { return pq.mem.Len() }

// Spilled reports whether the queue has transitioned to the external
// representation at least once.
func (pq *AdaptivePQ[P, E]) Spilled() bool { return len(pq.runs) > 0 }

// SPDX-License-Identifier: MIT

package terraflow

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/basinflow/raster3d/stream"
)

// BoundaryEdge is one candidate connection between two labeled regions
// from the first half of component K.
type BoundaryEdge struct {
	El             Elevation
	Label1, Label2 Label
}

// ToBytes serializes the edge for the external sort, the same
// fixed-width encoding shape the priority-queue codecs use.
func (e BoundaryEdge) ToBytes() []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], math.Float64bits(float64(e.El)))
	binary.BigEndian.PutUint32(b[8:12], uint32(e.Label1))
	binary.BigEndian.PutUint32(b[12:16], uint32(e.Label2))
	return b
}

func boundaryEdgeFromBytes(b []byte) BoundaryEdge {
	return BoundaryEdge{
		El:     Elevation(math.Float64frombits(binary.BigEndian.Uint64(b[0:8]))),
		Label1: Label(binary.BigEndian.Uint32(b[8:12])),
		Label2: Label(binary.BigEndian.Uint32(b[12:16])),
	}
}

func lessBoundaryEdge(a, b BoundaryEdge) bool {
	if a.El != b.El {
		return a.El < b.El
	}
	if a.Label1 != b.Label1 {
		return a.Label1 < b.Label1
	}
	return a.Label2 < b.Label2
}

// MaxLabel returns the largest label value present in a labeled grid;
// callers use it to size the union-find FillDepressions needs.
func MaxLabel(label [][]Label) Label {
	var max Label
	for _, row := range label {
		for _, l := range row {
			if l > max {
				max = l
			}
		}
	}
	return max
}

// ExtractBoundaries implements §4.K's boundary-edge extraction: every
// 8-adjacent pair of cells whose labels differ, and every grid-edge
// cell against the reserved BOUNDARY label, becomes a candidate edge
// weighted by the higher of the two elevations. Duplicate (label1,
// label2) pairs keep only the lowest such weight. The result is sorted
// ascending by (el, label1, label2) through the external merge sort,
// ready for Kruskal-style fill.
func ExtractBoundaries(ctx context.Context, elev RowReader, label [][]Label) ([]BoundaryEdge, error) {
	rows, cols := elev.Rows(), elev.Cols()
	e := make([][]Elevation, rows)
	for i := 0; i < rows; i++ {
		row, err := elev.ReadRow(i)
		if err != nil {
			return nil, err
		}
		e[i] = make([]Elevation, cols)
		for j, v := range row {
			e[i][j] = Elevation(v)
		}
	}

	best := make(map[[2]Label]Elevation)
	record := func(a, b Label, el Elevation) {
		if a == b {
			return
		}
		if a > b {
			a, b = b, a
		}
		key := [2]Label{a, b}
		if cur, ok := best[key]; !ok || el < cur {
			best[key] = el
		}
	}

	// Only the causal half of the 8-neighbourhood (E, SE, S, SW) is
	// needed to visit every unordered adjacent pair exactly once.
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if IsVoid(e[i][j]) {
				continue
			}
			for _, k := range [4]int{0, 1, 2, 3} {
				ni, nj := i+neighborDI[k], j+neighborDJ[k]
				if ni < 0 || ni >= rows || nj < 0 || nj >= cols || IsVoid(e[ni][nj]) {
					continue
				}
				if label[i][j] == label[ni][nj] {
					continue
				}
				el := e[i][j]
				if e[ni][nj] > el {
					el = e[ni][nj]
				}
				record(label[i][j], label[ni][nj], el)
			}
			if i == 0 || i == rows-1 || j == 0 || j == cols-1 {
				record(label[i][j], LabelBoundary, e[i][j])
			}
		}
	}

	edges := make([]BoundaryEdge, 0, len(best))
	for k, el := range best {
		edges = append(edges, BoundaryEdge{El: el, Label1: k[0], Label2: k[1]})
	}
	return stream.NewSort[BoundaryEdge](lessBoundaryEdge, boundaryEdgeFromBytes, 0).SortSlice(ctx, edges)
}

// FillResult is FillDepressions' output: how much to raise each
// label's elevation, and which labels never reached the grid boundary
// (reported as warnings, per §7).
type FillResult struct {
	Raise   map[Label]Elevation
	Islands []Label
}

// FillDepressions implements §4.K's Kruskal-style fill: a union-find
// over labels, BOUNDARY pre-marked done, consuming edges in ascending
// elevation order. A label that appears on at least one edge and whose
// root never becomes done by the end of the pass is an island
// watershed; its cells are left unraised. Label ids that appear on no
// edge (unused ids, LabelNodata) are not reported as islands.
func FillDepressions(edges []BoundaryEdge, maxLabel Label) *FillResult {
	size := int(maxLabel) + 1
	uf := NewUnionFind(size)
	uf.MarkDone(int32(LabelBoundary))

	raiseByRoot := make(map[int32]Elevation)
	for _, edge := range edges {
		a, b := int32(edge.Label1), int32(edge.Label2)
		ra, rb := uf.Find(a), uf.Find(b)
		if ra == rb {
			continue
		}
		doneA, doneB := uf.IsDone(ra), uf.IsDone(rb)
		switch {
		case doneA && doneB:
			continue
		case doneA && !doneB:
			uf.MarkDone(rb)
			raiseByRoot[rb] = edge.El
		case doneB && !doneA:
			uf.MarkDone(ra)
			raiseByRoot[ra] = edge.El
		default:
			root := uf.Union(a, b)
			raiseByRoot[root] = edge.El
		}
	}

	unraised := Elevation(math.Inf(-1))
	raise := make(map[Label]Elevation, size)
	var islands []Label
	seenIsland := make(map[int32]bool)
	present := make(map[int32]bool)
	for _, edge := range edges {
		present[int32(edge.Label1)] = true
		present[int32(edge.Label2)] = true
	}
	for l := 0; l < size; l++ {
		root := uf.Find(int32(l))
		if v, ok := raiseByRoot[root]; ok {
			raise[Label(l)] = v
		} else {
			raise[Label(l)] = unraised
		}
		if present[int32(l)] && !uf.IsDone(root) && !seenIsland[root] {
			seenIsland[root] = true
			islands = append(islands, Label(root))
		}
	}
	raise[LabelBoundary] = 0

	return &FillResult{Raise: raise, Islands: islands}
}

// CommitFilledElevation implements §4.K's commit step: every non-null
// cell's elevation becomes max(raise[label(cell)], el); nulls pass
// through unchanged.
func CommitFilledElevation(elev RowReader, label [][]Label, raise map[Label]Elevation, dst RowWriter) error {
	rows, cols := elev.Rows(), elev.Cols()
	for i := 0; i < rows; i++ {
		row, err := elev.ReadRow(i)
		if err != nil {
			return err
		}
		out := make([]float64, cols)
		for j, v := range row {
			el := Elevation(v)
			if IsVoid(el) {
				out[j] = v
				continue
			}
			if r := raise[label[i][j]]; r > el {
				out[j] = float64(r)
			} else {
				out[j] = v
			}
		}
		if err := dst.WriteRow(i, out); err != nil {
			return err
		}
	}
	return nil
}

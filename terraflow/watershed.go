// SPDX-License-Identifier: MIT

package terraflow

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/basinflow/raster3d/stream"
)

// FillPriority orders watershed-labeling work: lowest elevation first,
// then shallowest BFS depth (nearest a plateau's boundary), then
// raster position — the (el, depth, i, j) order from §4.J/§4.L.
type FillPriority struct {
	El    Elevation
	Depth int
	I, J  int
}

func lessFillPriority(a, b FillPriority) bool {
	if a.El != b.El {
		return a.El < b.El
	}
	if a.Depth != b.Depth {
		return a.Depth < b.Depth
	}
	if a.I != b.I {
		return a.I < b.I
	}
	return a.J < b.J
}

func fillProposalCodec() stream.Codec[stream.Entry[FillPriority, Label]] {
	return stream.Codec[stream.Entry[FillPriority, Label]]{
		ToBytes: func(e stream.Entry[FillPriority, Label]) []byte {
			b := make([]byte, 8+8+8+8+4)
			binary.BigEndian.PutUint64(b[0:8], math.Float64bits(float64(e.Priority.El)))
			binary.BigEndian.PutUint64(b[8:16], uint64(e.Priority.Depth))
			binary.BigEndian.PutUint64(b[16:24], uint64(e.Priority.I))
			binary.BigEndian.PutUint64(b[24:32], uint64(e.Priority.J))
			binary.BigEndian.PutUint32(b[32:36], uint32(e.Elem))
			return b
		},
		FromBytes: func(b []byte) stream.Entry[FillPriority, Label] {
			return stream.Entry[FillPriority, Label]{
				Priority: FillPriority{
					El:    Elevation(math.Float64frombits(binary.BigEndian.Uint64(b[0:8]))),
					Depth: int(binary.BigEndian.Uint64(b[8:16])),
					I:     int(binary.BigEndian.Uint64(b[16:24])),
					J:     int(binary.BigEndian.Uint64(b[24:32])),
				},
				Elem: Label(binary.BigEndian.Uint32(b[32:36])),
			}
		},
	}
}

// WatershedResult is LabelWatersheds' output.
type WatershedResult struct {
	Label       [][]Label
	FreshLabels int
}

// LabelWatersheds implements component J: a single time-forward sweep
// over every real cell in FillPriority order, maintaining an adaptive
// priority queue of label proposals so a cell is never labeled before
// any strict downslope neighbour that drains into it. A cell already
// labeled (a plateau member, or a reserved sentinel) keeps that label;
// otherwise it takes the label carried by the proposal(s) that reached
// it at its own priority, or — lacking any — a freshly minted label,
// unless it sits on the grid edge, in which case it becomes BOUNDARY.
func LabelWatersheds(elev RowReader, plateaus *PlateauResult, tmpDir string, maxMemItems int) (*WatershedResult, error) {
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

	label := make([][]Label, rows)
	for i := range label {
		label[i] = make([]Label, cols)
		copy(label[i], plateaus.Label[i])
	}

	order := make([]FillPriority, 0, rows*cols)
	next := FirstFreeLabel
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if IsVoid(e[i][j]) {
				continue
			}
			order = append(order, FillPriority{El: e[i][j], Depth: plateaus.Depth[i][j], I: i, J: j})
			if label[i][j] >= next {
				next = label[i][j] + 1
			}
		}
	}
	sort.Slice(order, func(a, b int) bool { return lessFillPriority(order[a], order[b]) })

	pq := stream.NewAdaptivePQ[FillPriority, Label](lessFillPriority, maxMemItems, tmpDir, fillProposalCodec())

	var fresh int
	for _, cur := range order {
		i, j := cur.I, cur.J

		for {
			p, _, ok := pq.Min()
			if !ok || !lessFillPriority(p, cur) {
				break
			}
			if _, _, _, err := pq.ExtractMin(); err != nil {
				return nil, err
			}
		}

		// Only proposals whose priority equals this cell's are for this
		// cell; after the drain above, anything left is >= cur, so a
		// single not-less check establishes equality.
		var proposals []Label
		if p, _, ok := pq.Min(); ok && !lessFillPriority(cur, p) {
			var err error
			proposals, _, _, err = pq.ExtractAllMin()
			if err != nil {
				return nil, err
			}
		}

		switch {
		case label[i][j] != LabelUndef:
		case len(proposals) > 0:
			label[i][j] = proposals[0]
		case i == 0 || i == rows-1 || j == 0 || j == cols-1:
			label[i][j] = LabelBoundary
		default:
			label[i][j] = next
			next++
			fresh++
		}

		// Push a proposal to every neighbour k whose own direction
		// drains into (i,j) — not the neighbours (i,j)'s own direction
		// points to. neighborBit[opposite(k)] is the bit a neighbour at
		// position k would carry if it drains back toward (i,j) (see
		// direction.go's bfsPlateau, which sets that same bit when a
		// cell is discovered draining toward its BFS parent).
		for k := 0; k < 8; k++ {
			ni, nj := i+neighborDI[k], j+neighborDJ[k]
			if ni < 0 || ni >= rows || nj < 0 || nj >= cols || IsVoid(e[ni][nj]) {
				continue
			}
			if !plateaus.Dir[ni][nj].Has(neighborBit[opposite(k)]) {
				continue
			}
			np := FillPriority{El: e[ni][nj], Depth: plateaus.Depth[ni][nj], I: ni, J: nj}
			if err := pq.Insert(np, label[i][j]); err != nil {
				return nil, err
			}
		}
	}

	return &WatershedResult{Label: label, FreshLabels: fresh}, nil
}

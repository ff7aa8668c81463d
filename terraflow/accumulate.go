// SPDX-License-Identifier: MIT

package terraflow

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/basinflow/raster3d/stream"
)

// FlowPriority orders the accumulation sweep: highest elevation first,
// then descending topological rank (the BFS depth from a second
// plateau/direction pass over the filled elevation), then raster
// position. On a flat plateau flow runs from the interior (large BFS
// depth) toward the spill cells (depth zero), so among equal
// elevations the deeper cell must be processed first — its
// contribution has to be queued before the cell it drains into comes
// up.
type FlowPriority struct {
	El       Elevation
	TopoRank int
	I, J     int
}

func lessFlowPriority(a, b FlowPriority) bool {
	if a.El != b.El {
		return a.El > b.El
	}
	if a.TopoRank != b.TopoRank {
		return a.TopoRank > b.TopoRank
	}
	if a.I != b.I {
		return a.I < b.I
	}
	return a.J < b.J
}

func flowCodec() stream.Codec[stream.Entry[FlowPriority, float32]] {
	return stream.Codec[stream.Entry[FlowPriority, float32]]{
		ToBytes: func(e stream.Entry[FlowPriority, float32]) []byte {
			b := make([]byte, 8+8+8+8+4)
			binary.BigEndian.PutUint64(b[0:8], math.Float64bits(float64(e.Priority.El)))
			binary.BigEndian.PutUint64(b[8:16], uint64(e.Priority.TopoRank))
			binary.BigEndian.PutUint64(b[16:24], uint64(e.Priority.I))
			binary.BigEndian.PutUint64(b[24:32], uint64(e.Priority.J))
			binary.BigEndian.PutUint32(b[32:36], math.Float32bits(e.Elem))
			return b
		},
		FromBytes: func(b []byte) stream.Entry[FlowPriority, float32] {
			return stream.Entry[FlowPriority, float32]{
				Priority: FlowPriority{
					El:       Elevation(math.Float64frombits(binary.BigEndian.Uint64(b[0:8]))),
					TopoRank: int(binary.BigEndian.Uint64(b[8:16])),
					I:        int(binary.BigEndian.Uint64(b[16:24])),
					J:        int(binary.BigEndian.Uint64(b[24:32])),
				},
				Elem: math.Float32frombits(binary.BigEndian.Uint32(b[32:36])),
			}
		},
	}
}

// weightWindow is the flow-accumulation sweep's per-cell MFD weight
// computation, kept as its own small value type rather than inlined
// arithmetic (mirroring the original's weightWindow.{h,cpp}): given a
// direction bitmask and the elevation at each of the 8 neighbours, it
// derives a normalized distribution weight and a contour length for
// every neighbour the direction mask names.
type weightWindow struct {
	w       [8]float64
	contour [8]float64
}

func newWeightWindow(dir Direction, el Elevation, neighborEl [8]Elevation, neighborValid [8]bool) weightWindow {
	var ww weightWindow
	hasLower := false
	for k := 0; k < 8; k++ {
		if !dir.Has(neighborBit[k]) || !neighborValid[k] {
			continue
		}
		drop := float64(el - neighborEl[k])
		if drop > 0 {
			factor := 0.25
			if k%2 == 0 {
				factor = 0.5
			}
			ww.w[k] = drop * factor
			ww.contour[k] = neighborDist[k]
			hasLower = true
		}
	}
	if !hasLower {
		// Every dir-bit neighbour is at the same elevation (a flat
		// plateau cell mid-BFS): distribute by 1/contour instead.
		for k := 0; k < 8; k++ {
			if !dir.Has(neighborBit[k]) || !neighborValid[k] {
				continue
			}
			ww.w[k] = 1 / neighborDist[k]
			ww.contour[k] = neighborDist[k]
		}
	}
	var sum float64
	for _, v := range ww.w {
		sum += v
	}
	if sum > 0 {
		for k := range ww.w {
			ww.w[k] /= sum
		}
	}
	return ww
}

// AccumResult is Sweep's output.
type AccumResult struct {
	Accum [][]float32
	TCI   [][]float64 // nil unless computeTCI was requested

	// TimeTravel counts contributions that could not be queued because
	// the receiving neighbour's priority was not strictly greater than
	// the emitting cell's (§7's algorithmic-warning bucket); the flow
	// involved is dropped.
	TimeTravel int
}

// Sweep implements component L: a priority-ordered pass over the
// filled elevation that routes each cell's accumulated flow (starting
// at 1.0 plus whatever upslope contributions arrived via the priority
// queue) downslope, either as D8 (one dominant direction, once flow
// exceeds d8cut) or MFD (weightWindow's distribution).
func Sweep(filled RowReader, finalDir *PlateauResult, d8cut, dx, dy float64, computeTCI bool, tmpDir string, maxMemItems int) (*AccumResult, error) {
	rows, cols := filled.Rows(), filled.Cols()
	e := make([][]Elevation, rows)
	for i := 0; i < rows; i++ {
		row, err := filled.ReadRow(i)
		if err != nil {
			return nil, err
		}
		e[i] = make([]Elevation, cols)
		for j, v := range row {
			e[i][j] = Elevation(v)
		}
	}

	order := make([]FlowPriority, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if IsVoid(e[i][j]) {
				continue
			}
			order = append(order, FlowPriority{El: e[i][j], TopoRank: finalDir.Depth[i][j], I: i, J: j})
		}
	}
	sort.Slice(order, func(a, b int) bool { return lessFlowPriority(order[a], order[b]) })

	pq := stream.NewAdaptivePQ[FlowPriority, float32](lessFlowPriority, maxMemItems, tmpDir, flowCodec())

	accum := make([][]float32, rows)
	for i := range accum {
		accum[i] = make([]float32, cols)
	}
	var tci [][]float64
	if computeTCI {
		tci = make([][]float64, rows)
		for i := range tci {
			tci[i] = make([]float64, cols)
		}
	}

	res := &AccumResult{Accum: accum, TCI: tci}
	for _, cur := range order {
		i, j := cur.I, cur.J

		for {
			p, _, ok := pq.Min()
			if !ok || !lessFlowPriority(p, cur) {
				break
			}
			if _, _, _, err := pq.ExtractMin(); err != nil {
				return nil, err
			}
		}

		flow := float32(1.0)
		// Only contributions at exactly this cell's priority belong to
		// it; whatever remains after the drain above is >= cur, so a
		// single not-less check establishes equality.
		if p, _, ok := pq.Min(); ok && !lessFlowPriority(cur, p) {
			contribs, _, _, err := pq.ExtractAllMin()
			if err != nil {
				return nil, err
			}
			for _, c := range contribs {
				flow += c
			}
		}
		accum[i][j] = flow

		var neighborEl [8]Elevation
		var neighborValid [8]bool
		for k := 0; k < 8; k++ {
			ni, nj := i+neighborDI[k], j+neighborDJ[k]
			if ni < 0 || ni >= rows || nj < 0 || nj >= cols || IsVoid(e[ni][nj]) {
				continue
			}
			neighborEl[k] = e[ni][nj]
			neighborValid[k] = true
		}

		push := func(k int, contribution float32) error {
			ni, nj := i+neighborDI[k], j+neighborDJ[k]
			np := FlowPriority{El: e[ni][nj], TopoRank: finalDir.Depth[ni][nj], I: ni, J: nj}
			if !lessFlowPriority(cur, np) {
				res.TimeTravel++
				return nil
			}
			return pq.Insert(np, contribution)
		}

		var sumContour float64
		d := finalDir.Dir[i][j]

		if float64(flow) > d8cut {
			// D8: all flow to the single steepest valid neighbour.
			best := -1
			var bestSlope float64
			for _, k := range sfdTieBreak {
				if !d.Has(neighborBit[k]) || !neighborValid[k] {
					continue
				}
				slope := float64(e[i][j]-neighborEl[k]) / neighborDist[k]
				if best < 0 || slope > bestSlope {
					best, bestSlope = k, slope
				}
			}
			if best >= 0 {
				if err := push(best, flow); err != nil {
					return nil, err
				}
				sumContour = neighborDist[best]
			}
		} else {
			ww := newWeightWindow(d, e[i][j], neighborEl, neighborValid)
			for k := 0; k < 8; k++ {
				if ww.w[k] == 0 {
					continue
				}
				if err := push(k, float32(ww.w[k])*flow); err != nil {
					return nil, err
				}
				sumContour += ww.contour[k]
			}
		}

		if computeTCI {
			denom := sumContour
			if denom <= 0 {
				denom = 1
			}
			tci[i][j] = math.Log(float64(flow) * dx * dy / denom)
		}
	}

	return res, nil
}

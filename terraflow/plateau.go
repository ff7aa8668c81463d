// SPDX-License-Identifier: MIT

package terraflow

import "github.com/basinflow/raster3d/stream"

// PlateauStats is component H's per-label aggregate: bounding box, cell
// count, and whether any member cell already has an escape direction.
type PlateauStats struct {
	IMin, IMax, JMin, JMax int
	Size                   int
	HasSpill               bool

	touchesEdge bool
}

// PlateauResult is FindPlateaus's output.
type PlateauResult struct {
	// Label holds LabelUndef for ordinary slope cells, LabelBoundary or
	// LabelNodata for void cells, and a compacted plateau label
	// (>= FirstFreeLabel) for plateau members.
	Label [][]Label
	// Dir holds the direction computed directly from elevation for
	// every real cell: the full MFD direction for ordinary slope cells,
	// the escape bits only for plateau spill cells, and zero for
	// plateau interior cells awaiting component I's BFS.
	Dir [][]Direction
	// Depth holds each cell's BFS layer from component I's plateau
	// expansion (nil until AssignDirections allocates it): the number
	// of hops inward from the nearest spill cell, used as the
	// tie-break topo-rank in §4.J/§4.L's processing order.
	Depth [][]int
	Stats map[Label]*PlateauStats

	elev [][]Elevation
}

// FindPlateaus implements component H: it detects maximal connected
// flat regions in elev and the spill cells that already drain out of
// them. A plateau's spill cells are the members with a strictly lower
// real neighbour; a plateau with none of those but touching the grid
// edge (or boundary nodata) drains off the grid through its edge
// members instead, which get an off-grid escape direction. Only a
// plateau with neither is a pure depression.
//
// The per-cell direction work runs through a Scan3 window over the
// elevation rows; the labeling union-find keeps the whole grid
// buffered because it needs random access to any already-labeled
// neighbour, which the window alone can't offer.
func FindPlateaus(elev RowReader) (*PlateauResult, error) {
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

	label := make([][]int32, rows)
	lower := make([][]Direction, rows)
	edge := make([][]Direction, rows)
	isMember := make([][]bool, rows)
	for i := range label {
		label[i] = make([]int32, cols)
		lower[i] = make([]Direction, cols)
		edge[i] = make([]Direction, cols)
		isMember[i] = make([]bool, cols)
	}

	// Causal union-find over a sliding 3-row window: a cell unions with
	// an equal-elevation neighbour only if that neighbour was already
	// visited (isMember true), which in raster scan order covers every
	// 8-adjacent pair exactly once from the later cell's side. Cells
	// beyond the grid read as the boundary sentinel, so the window
	// itself encodes "off the grid drains like boundary nodata".
	uf := NewUnionFind(0)
	rowIdx := 0
	source := func() ([]Elevation, error) {
		r := e[rowIdx]
		rowIdx++
		return r, nil
	}
	process := func(i, j int, above, center, below [3]Elevation) {
		v := center[1]
		if IsVoid(v) {
			return
		}
		var lowerBits, edgeBits Direction
		var root int32 = -1
		hasEqual := false
		for k := 0; k < 8; k++ {
			di, dj := neighborDI[k], neighborDJ[k]
			var nv Elevation
			switch di {
			case -1:
				nv = above[dj+1]
			case 0:
				nv = center[dj+1]
			default:
				nv = below[dj+1]
			}
			switch {
			case IsNodata(nv):
				continue
			case IsBoundary(nv):
				edgeBits |= neighborBit[k]
			case nv < v:
				lowerBits |= neighborBit[k]
			case nv == v:
				hasEqual = true
				if di < 0 || (di == 0 && dj < 0) {
					if isMember[i+di][j+dj] {
						if root < 0 {
							root = label[i+di][j+dj]
						} else {
							root = uf.Union(root, label[i+di][j+dj])
						}
					}
				}
			}
		}
		lower[i][j] = lowerBits
		edge[i][j] = edgeBits
		if hasEqual {
			isMember[i][j] = true
			if root < 0 {
				root = uf.NewSet()
			}
			label[i][j] = root
		}
	}
	if err := stream.Scan3(rows, cols, ElevationBoundary(), source, process); err != nil {
		return nil, err
	}

	finalLabel := make([][]Label, rows)
	dir := make([][]Direction, rows)
	for i := range finalLabel {
		finalLabel[i] = make([]Label, cols)
		dir[i] = make([]Direction, cols)
		for j := range finalLabel[i] {
			finalLabel[i][j] = LabelUndef
		}
	}

	remap := make(map[int32]Label)
	next := FirstFreeLabel
	stats := make(map[Label]*PlateauStats)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if !isMember[i][j] {
				if !IsVoid(e[i][j]) {
					dir[i][j] = lower[i][j] | edge[i][j]
				}
				continue
			}
			root := uf.Find(label[i][j])
			lbl, ok := remap[root]
			if !ok {
				lbl = next
				next++
				remap[root] = lbl
				stats[lbl] = &PlateauStats{IMin: i, IMax: i, JMin: j, JMax: j}
			}
			finalLabel[i][j] = lbl
			dir[i][j] = lower[i][j]
			st := stats[lbl]
			st.Size++
			if i < st.IMin {
				st.IMin = i
			}
			if i > st.IMax {
				st.IMax = i
			}
			if j < st.JMin {
				st.JMin = j
			}
			if j > st.JMax {
				st.JMax = j
			}
			if lower[i][j] != 0 {
				st.HasSpill = true
			}
			if edge[i][j] != 0 {
				st.touchesEdge = true
			}
		}
	}

	// A plateau with no strictly-lower spill cell but an edge-touching
	// member drains off the grid: its edge members become the spill
	// frontier. Plateaus that have a real spill keep their edge bits
	// withheld, so every member drains toward the spill cells instead
	// of losing flow over the grid edge.
	for lbl, st := range stats {
		if st.HasSpill || !st.touchesEdge {
			continue
		}
		for i := st.IMin; i <= st.IMax; i++ {
			for j := st.JMin; j <= st.JMax; j++ {
				if finalLabel[i][j] == lbl && edge[i][j] != 0 {
					dir[i][j] = edge[i][j]
				}
			}
		}
		st.HasSpill = true
	}

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			switch {
			case IsBoundary(e[i][j]):
				finalLabel[i][j] = LabelBoundary
			case IsNodata(e[i][j]):
				finalLabel[i][j] = LabelNodata
			}
		}
	}

	return &PlateauResult{Label: finalLabel, Dir: dir, Stats: stats, elev: e}, nil
}

// SPDX-License-Identifier: MIT

package terraflow

import "math"

// NodataStats summarizes one ClassifyNodata pass.
type NodataStats struct {
	Boundary   int // cells rewritten to ElevationBoundary
	Interior   int // cells rewritten to ElevationNodata
	PitsFilled int // 1-cell pits raised to their minimum neighbour
}

// ClassifyNodata implements component G: it reads src's raw elevation
// (raw null values identified by isNull) and writes a classified
// elevation grid to dst where every null has become either
// ElevationBoundary (8-connected to the grid edge) or ElevationNodata
// (an interior void), and every 1-cell pit (a real cell strictly lower
// than all 8 of its real neighbours) has been raised to its minimum
// neighbour.
//
// The whole grid is buffered in memory: classification needs a
// collision union-find across the full raster and a second pass that
// re-reads neighbour values already visited in the first, which a
// single streaming pass over rows can't provide without re-deriving
// the same buffering internally. §4.K explicitly sanctions an
// in-memory variant when its working set fits; the same reasoning
// applies here, where the working set is one label and one elevation
// per cell.
func ClassifyNodata(src RowReader, isNull func(float64) bool, dst RowWriter) (NodataStats, error) {
	rows, cols := src.Rows(), src.Cols()
	elev := make([][]float64, rows)
	isVoid := make([][]bool, rows)
	for i := 0; i < rows; i++ {
		row, err := src.ReadRow(i)
		if err != nil {
			return NodataStats{}, err
		}
		elev[i] = row
		isVoid[i] = make([]bool, cols)
		for j, v := range row {
			isVoid[i][j] = isNull(v)
		}
	}

	label := make([][]int32, rows)
	for i := range label {
		label[i] = make([]int32, cols)
		for j := range label[i] {
			label[i][j] = -1
		}
	}

	// One left-to-right, top-to-bottom sweep: a null cell inherits (or
	// unions) the labels of its already-visited NW, N, NE, W neighbours
	// (§4.G), or starts a fresh label if none of them is null.
	uf := NewUnionFind(0)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if !isVoid[i][j] {
				continue
			}
			var root int32 = -1
			join := func(ni, nj int) {
				if ni < 0 || nj < 0 || nj >= cols || !isVoid[ni][nj] {
					return
				}
				if root < 0 {
					root = label[ni][nj]
				} else {
					root = uf.Union(root, label[ni][nj])
				}
			}
			join(i-1, j-1)
			join(i-1, j)
			join(i-1, j+1)
			join(i, j-1)
			if root < 0 {
				root = uf.NewSet()
			}
			label[i][j] = root
		}
	}

	// Compact to roots and mark every root touching the grid edge as
	// "done" — reusing UnionFind's done bitmap as the boundary flag.
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if isVoid[i][j] {
				label[i][j] = uf.Find(label[i][j])
			}
		}
	}
	for j := 0; j < cols; j++ {
		if rows > 0 {
			if isVoid[0][j] {
				uf.MarkDone(label[0][j])
			}
			if isVoid[rows-1][j] {
				uf.MarkDone(label[rows-1][j])
			}
		}
	}
	for i := 0; i < rows; i++ {
		if cols > 0 {
			if isVoid[i][0] {
				uf.MarkDone(label[i][0])
			}
			if isVoid[i][cols-1] {
				uf.MarkDone(label[i][cols-1])
			}
		}
	}

	var stats NodataStats
	for i := 0; i < rows; i++ {
		out := make([]float64, cols)
		for j := 0; j < cols; j++ {
			if isVoid[i][j] {
				if uf.IsDone(label[i][j]) {
					out[j] = float64(ElevationBoundary())
					stats.Boundary++
				} else {
					out[j] = float64(ElevationNodata())
					stats.Interior++
				}
				continue
			}

			v := elev[i][j]
			if i > 0 && i < rows-1 && j > 0 && j < cols-1 {
				isPit := true
				minNeighbor := math.Inf(1)
				for k := 0; k < 8 && isPit; k++ {
					ni, nj := i+neighborDI[k], j+neighborDJ[k]
					if isVoid[ni][nj] {
						isPit = false
						break
					}
					nv := elev[ni][nj]
					if nv < minNeighbor {
						minNeighbor = nv
					}
					if nv <= v {
						isPit = false
					}
				}
				if isPit {
					v = minNeighbor
					stats.PitsFilled++
				}
			}
			out[j] = v
		}
		if err := dst.WriteRow(i, out); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

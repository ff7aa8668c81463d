// SPDX-License-Identifier: MIT

package terraflow

import "math"

// neighborDI/neighborDJ/neighborDist/neighborBit are indexed by
// neighbour position 0..7 in the fixed E,SE,S,SW,W,NW,N,NE order
// (§3.4): row/column offset, Euclidean distance (1 for cardinals, sqrt2
// for diagonals), and the Direction bit that names that neighbour.
var (
	neighborDI   = [8]int{0, 1, 1, 1, 0, -1, -1, -1}
	neighborDJ   = [8]int{1, 1, 0, -1, -1, -1, 0, 1}
	neighborDist = [8]float64{1, math.Sqrt2, 1, math.Sqrt2, 1, math.Sqrt2, 1, math.Sqrt2}
	neighborBit  = [8]Direction{DirE, DirSE, DirS, DirSW, DirW, DirNW, DirN, DirNE}
)

// opposite returns the neighbour index whose offset is the negation of
// neighbour k's — i.e. if k points from a cell to a neighbour, opposite
// reverses it.
func opposite(k int) int { return (k + 4) % 8 }

// sfdTieBreak is the fixed tie-break order §4.I specifies for SFD mode:
// cardinal directions preferred over diagonals, and the smallest
// direction code wins a true tie. Indices are neighbour positions
// 0..7, ordered E,S,W,N (cardinals, ascending bit value), then
// SE,SW,NW,NE (diagonals, ascending bit value).
var sfdTieBreak = [8]int{0, 2, 4, 6, 1, 3, 5, 7}

// RowReader is the abstract row-oriented 2D raster reader this package
// treats as an external collaborator (§1): callers adapt whatever
// on-disk row format they have into sequential row reads.
type RowReader interface {
	Rows() int
	Cols() int
	ReadRow(i int) ([]float64, error)
}

// RowWriter is the write-side counterpart of RowReader.
type RowWriter interface {
	WriteRow(i int, row []float64) error
}

// MemGrid is an in-memory RowReader/RowWriter, used by tests and by
// callers small enough not to need a real backing file.
type MemGrid struct {
	rows, cols int
	data       [][]float64
}

// NewMemGrid wraps data (len(data) == rows, each row len == cols) as a
// RowReader/RowWriter.
func NewMemGrid(data [][]float64) *MemGrid {
	rows := len(data)
	cols := 0
	if rows > 0 {
		cols = len(data[0])
	}
	return &MemGrid{rows: rows, cols: cols, data: data}
}

// NewEmptyMemGrid allocates a zero-valued rows x cols grid.
func NewEmptyMemGrid(rows, cols int) *MemGrid {
	data := make([][]float64, rows)
	for i := range data {
		data[i] = make([]float64, cols)
	}
	return &MemGrid{rows: rows, cols: cols, data: data}
}

func (g *MemGrid) Rows() int { return g.rows }
func (g *MemGrid) Cols() int { return g.cols }

func (g *MemGrid) ReadRow(i int) ([]float64, error) {
	out := make([]float64, g.cols)
	copy(out, g.data[i])
	return out, nil
}

func (g *MemGrid) WriteRow(i int, row []float64) error {
	copy(g.data[i], row)
	return nil
}

// Data exposes the backing rows directly (tests only).
func (g *MemGrid) Data() [][]float64 { return g.data }

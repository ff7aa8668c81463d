// SPDX-License-Identifier: MIT

package stream

// Scan3 slides a 3x3 window over a row-major grid of rows x cols
// values of type T, supplied one row at a time by source, and invokes
// process exactly rows*cols times in raster order (§4.F). Cells beyond
// the grid's edges — both the synthesized row above row 0 / below the
// last row, and the columns left of 0 / right of cols-1 — read as
// nodata.
func Scan3[T any](rows, cols int, nodata T, source func() ([]T, error), process func(i, j int, above, center, below [3]T)) error {
	nodataRow := func() []T {
		out := make([]T, cols)
		for i := range out {
			out[i] = nodata
		}
		return out
	}
	at := func(row []T, j int) T {
		if j < 0 || j >= len(row) {
			return nodata
		}
		return row[j]
	}

	above := nodataRow()
	var center, below []T
	if rows > 0 {
		c, err := source()
		if err != nil {
			return err
		}
		center = c
	} else {
		center = nodataRow()
	}

	for i := 0; i < rows; i++ {
		if i+1 < rows {
			b, err := source()
			if err != nil {
				return err
			}
			below = b
		} else {
			below = nodataRow()
		}

		for j := 0; j < cols; j++ {
			a3 := [3]T{at(above, j-1), at(above, j), at(above, j+1)}
			c3 := [3]T{at(center, j-1), at(center, j), at(center, j+1)}
			b3 := [3]T{at(below, j-1), at(below, j), at(below, j+1)}
			process(i, j, a3, c3, b3)
		}

		above, center = center, below
	}
	return nil
}

// SPDX-License-Identifier: MIT

// Command raster3d-dump opens a raster3d volume read-only and writes a
// row-major ASCII grid per depth slice to stdout — a debug aid for
// diffing fixtures in tests, never imported by the library packages.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/basinflow/raster3d/raster3d"
)

func main() {
	path := flag.String("volume", "", "path to the volume file")
	rows := flag.Int("rows", 0, "region row count")
	cols := flag.Int("cols", 0, "region column count")
	depths := flag.Int("depths", 1, "region depth count")
	nullToken := flag.String("null", "*", "token printed for null cells")
	flag.Parse()

	if *path == "" || *rows <= 0 || *cols <= 0 || *depths <= 0 {
		fmt.Fprintln(os.Stderr, "raster3d-dump: -volume, -rows, -cols are required")
		os.Exit(1)
	}

	if err := dump(*path, *rows, *cols, *depths, *nullToken); err != nil {
		fmt.Fprintln(os.Stderr, "raster3d-dump:", err)
		os.Exit(1)
	}
}

func dump(path string, rows, cols, depths int, nullToken string) error {
	cfg, err := raster3d.NewConfigFromEnv()
	if err != nil {
		return err
	}

	region, err := raster3d.NewRegion(raster3d.Region{
		Rows: rows, Cols: cols, Depths: depths,
		North: float64(rows), South: 0, East: float64(cols), West: 0,
		Top: float64(depths), Bottom: 0,
		EWRes: 1, NSRes: 1,
	})
	if err != nil {
		return err
	}

	m, err := raster3d.OpenOld(path, cfg, region)
	if err != nil {
		return err
	}
	defer m.Close()

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	for z := 0; z < depths; z++ {
		fmt.Fprintf(w, "# slice z=%d\n", z)
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				v, err := m.GetValue(x, y, z)
				if err != nil {
					return fmt.Errorf("(%d,%d,%d): %w", x, y, z, err)
				}
				if x > 0 {
					w.WriteByte(' ')
				}
				if raster3d.IsNullF64(v) {
					w.WriteString(nullToken)
				} else {
					w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
				}
			}
			w.WriteByte('\n')
		}
	}
	return nil
}

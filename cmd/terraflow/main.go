// SPDX-License-Identifier: MIT

// Command terraflow runs the hydrological terrain-flow pipeline
// (§4.G-L) over a raster3d elevation volume, producing whichever of
// filled elevation, flow direction, watershed labels, flow
// accumulation, and topographic convergence index the caller asks for.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/basinflow/raster3d/raster3d"
	"github.com/basinflow/raster3d/terraflow"
)

// options holds the parsed §6.3 CLI. Its flags follow GRASS's
// key=value convention rather than the stdlib flag package's leading
// dashes, because that convention is this tool's external contract,
// not a style choice.
type options struct {
	elevation    string
	filled       string
	direction    string
	swatershed   string
	accumulation string
	tci          string
	sfd          bool
	d8cut        float64
	memoryMB     int
	directory    string
	stats        string
	rows, cols   int
}

func parseArgs(args []string) (options, error) {
	opt := options{d8cut: math.Inf(1), memoryMB: 256}
	for _, a := range args {
		if a == "-s" {
			opt.sfd = true
			continue
		}
		kv := strings.SplitN(a, "=", 2)
		if len(kv) != 2 {
			return opt, fmt.Errorf("terraflow: unrecognized argument %q", a)
		}
		key, val := kv[0], kv[1]
		var err error
		switch key {
		case "elevation":
			opt.elevation = val
		case "filled":
			opt.filled = val
		case "direction":
			opt.direction = val
		case "swatershed":
			opt.swatershed = val
		case "accumulation":
			opt.accumulation = val
		case "tci":
			opt.tci = val
		case "d8cut":
			opt.d8cut, err = strconv.ParseFloat(val, 64)
		case "memory":
			opt.memoryMB, err = strconv.Atoi(val)
		case "directory":
			opt.directory = val
		case "stats":
			opt.stats = val
		case "rows":
			opt.rows, err = strconv.Atoi(val)
		case "cols":
			opt.cols, err = strconv.Atoi(val)
		default:
			return opt, fmt.Errorf("terraflow: unrecognized option %q", key)
		}
		if err != nil {
			return opt, fmt.Errorf("terraflow: option %s=%s: %w", key, val, err)
		}
	}

	if opt.elevation == "" {
		return opt, fmt.Errorf("terraflow: elevation= is required")
	}
	if opt.filled == "" && opt.direction == "" && opt.swatershed == "" && opt.accumulation == "" && opt.tci == "" {
		return opt, fmt.Errorf("terraflow: at least one output name must be specified")
	}
	if opt.rows <= 0 || opt.cols <= 0 {
		return opt, fmt.Errorf("terraflow: rows= and cols= are required (region metadata is an external collaborator this tool does not parse)")
	}
	return opt, nil
}

func main() {
	opt, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(opt); err != nil {
		fmt.Fprintln(os.Stderr, "terraflow:", err)
		os.Exit(1)
	}
}

func run(opt options) error {
	cfg, err := raster3d.NewConfigFromEnv()
	if err != nil {
		return err
	}
	if opt.directory != "" {
		cfg.TmpDir = opt.directory
	}
	cfg.CellType = raster3d.CellF64
	cfg.TileDims = raster3d.TileDims{X: 64, Y: 64, Z: 1}

	region, err := raster3d.NewRegion(raster3d.Region{
		Rows: opt.rows, Cols: opt.cols, Depths: 1,
		North: float64(opt.rows), South: 0, East: float64(opt.cols), West: 0,
		Top: 1, Bottom: 0,
		EWRes: 1, NSRes: 1,
	})
	if err != nil {
		return err
	}

	elevMap, err := raster3d.OpenOld(opt.elevation, cfg, region)
	if err != nil {
		return fmt.Errorf("open elevation: %w", err)
	}
	defer elevMap.Close()

	reader := &mapGridReader{m: elevMap, rows: opt.rows, cols: opt.cols}

	stats := terraflow.NewStats()
	maxMemItems := (opt.memoryMB << 20) / 64
	if maxMemItems < 16 {
		maxMemItems = 16
	}
	pcfg := terraflow.Config{
		IsNull:      raster3d.IsNullF64,
		SFD:         opt.sfd,
		D8Cut:       opt.d8cut,
		DX:          region.EWRes,
		DY:          region.NSRes,
		ComputeTCI:  opt.tci != "",
		TmpDir:      cfg.TmpDir,
		MaxMemItems: maxMemItems,
		Stats:       stats,
	}

	result, err := terraflow.Run(context.Background(), reader, pcfg)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	if opt.filled != "" {
		if err := writeFloatGrid(opt.filled, cfg, region, opt.rows, opt.cols, func(i, j int) float64 {
			return result.Filled[i][j]
		}); err != nil {
			return fmt.Errorf("write filled: %w", err)
		}
	}
	if opt.direction != "" {
		if err := writeFloatGrid(opt.direction, cfg, region, opt.rows, opt.cols, func(i, j int) float64 {
			return float64(result.Direction[i][j])
		}); err != nil {
			return fmt.Errorf("write direction: %w", err)
		}
	}
	if opt.swatershed != "" {
		if err := writeFloatGrid(opt.swatershed, cfg, region, opt.rows, opt.cols, func(i, j int) float64 {
			return float64(result.Watershed[i][j])
		}); err != nil {
			return fmt.Errorf("write swatershed: %w", err)
		}
	}
	if opt.accumulation != "" {
		if err := writeFloatGrid(opt.accumulation, cfg, region, opt.rows, opt.cols, func(i, j int) float64 {
			return float64(result.Accumulation[i][j])
		}); err != nil {
			return fmt.Errorf("write accumulation: %w", err)
		}
	}
	if opt.tci != "" {
		if err := writeFloatGrid(opt.tci, cfg, region, opt.rows, opt.cols, func(i, j int) float64 {
			if result.TCI == nil {
				return raster3d.NullF64()
			}
			return result.TCI[i][j]
		}); err != nil {
			return fmt.Errorf("write tci: %w", err)
		}
	}

	if opt.stats != "" {
		if err := stats.DumpText(opt.stats); err != nil {
			return fmt.Errorf("write stats: %w", err)
		}
	}
	return nil
}

// mapGridReader adapts a read-only 2D (single-depth) raster3d.Map into
// terraflow.RowReader.
type mapGridReader struct {
	m          *raster3d.Map
	rows, cols int
}

func (r *mapGridReader) Rows() int { return r.rows }
func (r *mapGridReader) Cols() int { return r.cols }

func (r *mapGridReader) ReadRow(i int) ([]float64, error) {
	row := make([]float64, r.cols)
	for j := 0; j < r.cols; j++ {
		v, err := r.m.GetValue(j, i, 0)
		if err != nil {
			return nil, err
		}
		row[j] = v
	}
	return row, nil
}

// writeFloatGrid writes a full rows x cols grid of values produced by
// get as a new single-depth raster3d volume at path.
func writeFloatGrid(path string, cfg raster3d.Config, region raster3d.Region, rows, cols int, get func(i, j int) float64) error {
	m, err := raster3d.OpenNew(path, cfg, region)
	if err != nil {
		return err
	}
	geom := m.Geometry()
	_, _, _, nTiles := geom.NTiles()

	for t := 0; t < nTiles; t++ {
		tx, ty, tz := geom.TileIndexToTile(t)
		buf := make([]float64, geom.TileCells())
		for oz := 0; oz < geom.Tile.Z; oz++ {
			for oy := 0; oy < geom.Tile.Y; oy++ {
				for ox := 0; ox < geom.Tile.X; ox++ {
					x, y, z := tx*geom.Tile.X+ox, ty*geom.Tile.Y+oy, tz*geom.Tile.Z+oz
					idx := (oz*geom.Tile.Y+oy)*geom.Tile.X + ox
					if x < cols && y < rows && z < 1 {
						buf[idx] = get(y, x)
					} else {
						buf[idx] = raster3d.NullF64()
					}
				}
			}
		}
		if err := m.WriteTile(t, buf); err != nil {
			m.Abandon()
			return err
		}
	}
	return m.Close()
}

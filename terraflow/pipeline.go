// SPDX-License-Identifier: MIT

package terraflow

import "context"

// Config bundles the pipeline's tunables (§6.3's CLI flags).
type Config struct {
	IsNull      func(float64) bool
	SFD         bool
	D8Cut       float64
	DX, DY      float64
	ComputeTCI  bool
	TmpDir      string
	MaxMemItems int
	Stats       *Stats
}

// PipelineStats summarizes one Run for reporting alongside Result.
type PipelineStats struct {
	Nodata     NodataStats
	Plateaus   int
	Watersheds int
	Islands    int
}

// Result is the pipeline's full output.
type Result struct {
	Filled       [][]float64
	Direction    [][]Direction
	Watershed    [][]Label
	Accumulation [][]float32
	TCI          [][]float64
	Stats        PipelineStats
}

// Run wires components G through L exactly as §4.M's state machine:
//
//	raw_elev ──G──► classified_elev
//	classified_elev ──H──► (plateaus, plateau_stats, prelim_dir)
//	plateaus + plateau_stats ──I──► water_stream (dir + label per cell)
//	merge(water_stream, dir, elev) ──J──► labeled_water
//	labeled_water ──K-boundary──► boundaries
//	boundaries ──K-fill──► raise[]
//	(labeled_water, raise) ──K-commit──► filled_elev
//	filled_elev ──H'──I'──► final_dir
//	(filled_elev, final_dir) ──merge──► sweep_stream
//	sweep_stream ──L──► accumulation (+ tci)
//
// Cancellation is checked between stages rather than at row-boundary
// granularity: every stage here runs against a fully buffered grid
// (see ClassifyNodata's doc comment for why), so a stage boundary is
// the finest granularity available without re-deriving row-at-a-time
// buffering inside each component.
func Run(ctx context.Context, raw RowReader, cfg Config) (*Result, error) {
	rows, cols := raw.Rows(), raw.Cols()

	classified := NewEmptyMemGrid(rows, cols)
	ndStats, err := ClassifyNodata(raw, cfg.IsNull, classified)
	if err != nil {
		return nil, err
	}
	if cfg.Stats != nil {
		cfg.Stats.RecordNodata(ndStats)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plateaus, err := FindPlateaus(classified)
	if err != nil {
		return nil, err
	}
	AssignDirections(plateaus, cfg.SFD)
	if cfg.Stats != nil {
		cfg.Stats.RecordPlateaus(len(plateaus.Stats))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	watershed, err := LabelWatersheds(classified, plateaus, cfg.TmpDir, cfg.MaxMemItems)
	if err != nil {
		return nil, err
	}
	if cfg.Stats != nil {
		cfg.Stats.RecordWatersheds(watershed.FreshLabels)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	edges, err := ExtractBoundaries(ctx, classified, watershed.Label)
	if err != nil {
		return nil, err
	}
	fill := FillDepressions(edges, MaxLabel(watershed.Label))
	if cfg.Stats != nil {
		for range fill.Islands {
			cfg.Stats.RecordIsland()
		}
	}

	filled := NewEmptyMemGrid(rows, cols)
	if err := CommitFilledElevation(classified, watershed.Label, fill.Raise, filled); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	finalPlateaus, err := FindPlateaus(filled)
	if err != nil {
		return nil, err
	}
	AssignDirections(finalPlateaus, cfg.SFD)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	swept, err := Sweep(filled, finalPlateaus, cfg.D8Cut, cfg.DX, cfg.DY, cfg.ComputeTCI, cfg.TmpDir, cfg.MaxMemItems)
	if err != nil {
		return nil, err
	}
	if cfg.Stats != nil && swept.TimeTravel > 0 {
		cfg.Stats.RecordTimeTravel(swept.TimeTravel)
	}

	return &Result{
		Filled:       filled.Data(),
		Direction:    finalPlateaus.Dir,
		Watershed:    watershed.Label,
		Accumulation: swept.Accum,
		TCI:          swept.TCI,
		Stats: PipelineStats{
			Nodata:     ndStats,
			Plateaus:   len(plateaus.Stats),
			Watersheds: watershed.FreshLabels,
			Islands:    len(fill.Islands),
		},
	}, nil
}

// SPDX-License-Identifier: MIT

package raster3d

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// unitCaser normalizes the free-text Unit header string (Proj is a
// numeric code and is not normalized) the same way the teacher's cmd/qrank-builder/util.go normalizes wiki
// titles: casefold plus NFC, so two headers that differ only in case or
// composition compare equal.
var unitCaser = cases.Fold()

func normalizeHeaderString(s string) string {
	return norm.NFC.String(unitCaser.String(s))
}

// VerticalUnit enumerates the vertical unit codes a Region header may
// carry (§3.1).
type VerticalUnit int

const (
	VerticalUnitMeters VerticalUnit = iota
	VerticalUnitFeet
	VerticalUnitUnspecified
)

// Region is the header geometry of a volume (§3.1): invariants are
// enforced by NewRegion, not by zero-value construction.
type Region struct {
	Proj, Zone int
	Rows, Cols, Depths int
	North, South, East, West float64
	Top, Bottom float64
	EWRes, NSRes, TBRes float64
	Unit         string
	VerticalUnit VerticalUnit
	Version      int
}

// NewRegion validates and normalizes r, applying the tb_res adjustment
// rule from §3.1: when Depths > 0, TBRes is derived from
// (Top-Bottom)/Depths; otherwise Depths is derived from
// round((Top-Bottom)/TBRes), with a minimum of 1.
func NewRegion(r Region) (Region, error) {
	if r.Rows <= 0 || r.Cols <= 0 {
		return Region{}, fmt.Errorf("raster3d: Region: rows and cols must be positive, got rows=%d cols=%d", r.Rows, r.Cols)
	}
	if r.South >= r.North {
		return Region{}, fmt.Errorf("raster3d: Region: south (%v) must be < north (%v)", r.South, r.North)
	}
	if r.West >= r.East {
		return Region{}, fmt.Errorf("raster3d: Region: west (%v) must be < east (%v)", r.West, r.East)
	}
	if r.Bottom >= r.Top {
		return Region{}, fmt.Errorf("raster3d: Region: bottom (%v) must be < top (%v)", r.Bottom, r.Top)
	}
	if r.EWRes <= 0 || r.NSRes <= 0 {
		return Region{}, fmt.Errorf("raster3d: Region: resolutions must be positive, got ew_res=%v ns_res=%v", r.EWRes, r.NSRes)
	}

	if r.Depths > 0 {
		r.TBRes = (r.Top - r.Bottom) / float64(r.Depths)
	} else {
		if r.TBRes <= 0 {
			return Region{}, fmt.Errorf("raster3d: Region: depths unset and tb_res not positive")
		}
		depths := int((r.Top-r.Bottom)/r.TBRes + 0.5)
		if depths < 1 {
			depths = 1
		}
		r.Depths = depths
	}

	r.Unit = normalizeHeaderString(r.Unit)
	return r, nil
}

// Geometry derives the tile geometry for the region given a tile shape.
func (r Region) Geometry(tile TileDims) Geometry {
	return Geometry{Rows: r.Rows, Cols: r.Cols, Depths: r.Depths, Tile: tile}
}

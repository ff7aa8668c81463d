// SPDX-License-Identifier: MIT

// Package terraflow implements the external-memory terrain-flow
// pipeline from §4.G-L: nodata classification, plateau labeling, an
// in-plateau direction assigner, time-forward watershed labeling,
// boundary extraction with Kruskal-style depression filling, and a
// priority-queue flow-accumulation sweep.
package terraflow

import "math"

// Elevation is one terrain cell's height (§3.4). Two sentinels carry
// the outcome of nodata classification (component G): a cell that was
// nodata and sits in the connected component touching the grid edge
// becomes ElevationBoundary; every other nodata cell becomes
// ElevationNodata. Both are specific NaN payloads, distinguishable
// from each other, from ordinary NaN, and from every finite elevation.
type Elevation float64

const (
	elevationNodataBits   uint64 = 0xFFF0000000000001
	elevationBoundaryBits uint64 = 0xFFF0000000000002
)

// ElevationNodata marks an interior void: a nodata cell not reachable
// from the grid edge through other nodata cells.
func ElevationNodata() Elevation { return Elevation(math.Float64frombits(elevationNodataBits)) }

// ElevationBoundary marks a nodata cell 8-connected to the grid edge.
func ElevationBoundary() Elevation { return Elevation(math.Float64frombits(elevationBoundaryBits)) }

// IsNodata reports whether e is the interior-void sentinel.
func IsNodata(e Elevation) bool { return math.Float64bits(float64(e)) == elevationNodataBits }

// IsBoundary reports whether e is the grid-edge sentinel.
func IsBoundary(e Elevation) bool { return math.Float64bits(float64(e)) == elevationBoundaryBits }

// IsVoid reports whether e is either nodata sentinel, i.e. not a real
// elevation value.
func IsVoid(e Elevation) bool { return IsNodata(e) || IsBoundary(e) }

// Direction is the 8-bit downslope bitmask from §3.4: bit k set means
// neighbour k (in the E,SE,S,SW,W,NW,N,NE order below) is downslope.
type Direction uint8

const (
	DirE Direction = 1 << iota
	DirSE
	DirS
	DirSW
	DirW
	DirNW
	DirN
	DirNE
)

// Has reports whether d includes bit.
func (d Direction) Has(bit Direction) bool { return d&bit != 0 }

// Count reports how many bits are set (1 in SFD/D8 mode, 0..8 in MFD).
func (d Direction) Count() int {
	n := 0
	for b := Direction(1); b != 0; b <<= 1 {
		if d&b != 0 {
			n++
		}
	}
	return n
}

// Label is the 32-bit connected-component id from §3.4. The first two
// values are reserved; ordinary watershed/plateau labels start at 2.
type Label int32

const (
	LabelUndef     Label = -1
	LabelBoundary  Label = 0
	LabelNodata    Label = 1
	FirstFreeLabel Label = 2
)

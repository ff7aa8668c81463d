// SPDX-License-Identifier: MIT

package raster3d

// TileDims is the shape of one tile in cells along each axis (§3.1).
type TileDims struct {
	X, Y, Z int
}

// CellType selects the on-disk float width for a volume's cells.
type CellType int

const (
	CellF32 CellType = iota
	CellF64
)

func (t CellType) byteWidth() int {
	if t == CellF64 {
		return 8
	}
	return 4
}

// Geometry holds the dimensions needed to map cells to tiles and back
// (§3.1, §4.B). It is pure data; all operations are pure functions of
// it, using integer division and modulo only.
type Geometry struct {
	Rows, Cols, Depths int // region extent, in cells, along y/x/z
	Tile               TileDims
}

// NTiles returns (nx, ny, nz, total) — the tile counts per axis and
// their product.
func (g Geometry) NTiles() (nx, ny, nz, total int) {
	nx = ceilDiv(g.Cols, g.Tile.X)
	ny = ceilDiv(g.Rows, g.Tile.Y)
	nz = ceilDiv(g.Depths, g.Tile.Z)
	return nx, ny, nz, nx * ny * nz
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// CoordToTile maps a (x,y,z) cell coordinate to its containing tile
// coordinate (tx,ty,tz) and the in-tile offset (ox,oy,oz), with
// 0 <= ox < Tile.X etc (§4.B).
func (g Geometry) CoordToTile(x, y, z int) (tx, ty, tz, ox, oy, oz int) {
	tx, ox = x/g.Tile.X, x%g.Tile.X
	ty, oy = y/g.Tile.Y, y%g.Tile.Y
	tz, oz = z/g.Tile.Z, z%g.Tile.Z
	return
}

// TileToTileIndex computes the linear tile index for a tile coordinate
// (§4.B): tz*nx*ny + ty*nx + tx.
func (g Geometry) TileToTileIndex(tx, ty, tz int) int {
	nx, ny, _, _ := g.NTiles()
	return tz*nx*ny + ty*nx + tx
}

// TileIndexToTile is the inverse of TileToTileIndex.
func (g Geometry) TileIndexToTile(index int) (tx, ty, tz int) {
	nx, ny, _, _ := g.NTiles()
	tz = index / (nx * ny)
	rem := index % (nx * ny)
	ty = rem / nx
	tx = rem % nx
	return
}

// CoordToTileIndex composes CoordToTile and TileToTileIndex.
func (g Geometry) CoordToTileIndex(x, y, z int) int {
	tx, ty, tz, _, _, _ := g.CoordToTile(x, y, z)
	return g.TileToTileIndex(tx, ty, tz)
}

// ClippedDims describes a possibly-padded edge tile's live extent
// (§3.1, §4.B): the number of real (non-padding) cells along each axis,
// and how many padding cells follow them.
type ClippedDims struct {
	LiveX, LiveY, LiveZ       int
	PaddingX, PaddingY, PaddingZ int
}

// LiveCells returns the number of real (non-padded) cells in the tile.
func (c ClippedDims) LiveCells() int {
	return c.LiveX * c.LiveY * c.LiveZ
}

// ClippedDimensions returns the live (non-padded) extent of the tile at
// tileIndex: interior tiles are always full-sized; tiles touching the
// far edge of an axis are clipped to whatever cells remain (§3.1).
func (g Geometry) ClippedDimensions(tileIndex int) ClippedDims {
	tx, ty, tz := g.TileIndexToTile(tileIndex)
	live := func(t, tileSize, total int) (liveN, pad int) {
		start := t * tileSize
		remaining := total - start
		if remaining >= tileSize {
			return tileSize, 0
		}
		if remaining < 0 {
			remaining = 0
		}
		return remaining, tileSize - remaining
	}
	lx, px := live(tx, g.Tile.X, g.Cols)
	ly, py := live(ty, g.Tile.Y, g.Rows)
	lz, pz := live(tz, g.Tile.Z, g.Depths)
	return ClippedDims{LiveX: lx, LiveY: ly, LiveZ: lz, PaddingX: px, PaddingY: py, PaddingZ: pz}
}

// TileCells returns the total number of cells (live + padding) stored
// per tile, i.e. Tile.X*Tile.Y*Tile.Z.
func (g Geometry) TileCells() int {
	return g.Tile.X * g.Tile.Y * g.Tile.Z
}

const minOptimalTileAxis = 1

// OptimalTileDimensions picks tile dimensions whose cuboid fits within
// maxBytes of the given cell type, by halving the currently-largest
// axis until the largest:smallest axis ratio is at most 2 and the total
// byte size fits the budget (§4.B). The search is bounded (at most a
// few dozen halvings) so it always terminates.
func OptimalTileDimensions(g Geometry, cellType CellType, maxBytes int) TileDims {
	dims := TileDims{X: g.Cols, Y: g.Rows, Z: g.Depths}
	if dims.X < 1 {
		dims.X = 1
	}
	if dims.Y < 1 {
		dims.Y = 1
	}
	if dims.Z < 1 {
		dims.Z = 1
	}
	width := cellType.byteWidth()

	fits := func(d TileDims) bool {
		return d.X*d.Y*d.Z*width <= maxBytes
	}
	balanced := func(d TileDims) bool {
		lo, hi := d.X, d.X
		for _, v := range []int{d.Y, d.Z} {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if lo < 1 {
			lo = 1
		}
		return hi <= 2*lo
	}

	for iter := 0; iter < 256; iter++ {
		if fits(dims) && balanced(dims) {
			break
		}
		// Halve whichever axis is currently largest; on a tie prefer X
		// then Y then Z, matching the row-major x-fastest storage order.
		axis := &dims.X
		if dims.Y > *axis {
			axis = &dims.Y
		}
		if dims.Z > *axis {
			axis = &dims.Z
		}
		if *axis <= minOptimalTileAxis {
			// Can't shrink further; accept whatever we have even if it
			// doesn't fit maxBytes (the caller asked for an impossible
			// budget relative to a 1x1x1 tile, which can't be reduced).
			break
		}
		*axis = (*axis + 1) / 2
		if *axis < minOptimalTileAxis {
			*axis = minOptimalTileAxis
		}
	}
	return dims
}

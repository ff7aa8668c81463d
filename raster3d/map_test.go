// SPDX-License-Identifier: MIT

package raster3d

import (
	"errors"
	"path/filepath"
	"testing"
)

func testMapConfig(t *testing.T, cacheSize int) Config {
	cfg := DefaultConfig()
	cfg.CellType = CellF64
	cfg.Compression = false
	cfg.TileDims = TileDims{X: 2, Y: 2, Z: 1}
	cfg.CacheSize = cacheSize
	cfg.TmpDir = t.TempDir()
	return cfg
}

func testMapRegion(t *testing.T, rows, cols int) Region {
	t.Helper()
	r, err := NewRegion(Region{
		Rows: rows, Cols: cols, Depths: 1,
		North: float64(rows), South: 0, East: float64(cols), West: 0,
		Top: 1, Bottom: 0,
		EWRes: 1, NSRes: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestMapWriteCloseReopenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.r3d")
	cfg := testMapConfig(t, 8)
	region := testMapRegion(t, 4, 4)

	m, err := OpenNew(path, cfg, region)
	if err != nil {
		t.Fatal(err)
	}
	geom := m.Geometry()
	_, _, _, nTiles := geom.NTiles()
	for i := 0; i < nTiles; i++ {
		buf := make([]float64, geom.TileCells())
		for k := range buf {
			buf[k] = float64(i*100 + k)
		}
		if err := m.WriteTile(i, buf); err != nil {
			t.Fatalf("WriteTile(%d): %v", i, err)
		}
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	m2, err := OpenOld(path, cfg, region)
	if err != nil {
		t.Fatalf("OpenOld: %v", err)
	}
	defer m2.Close()
	for i := 0; i < nTiles; i++ {
		buf, err := m2.ReadTile(i)
		if err != nil {
			t.Fatalf("ReadTile(%d): %v", i, err)
		}
		for k := range buf {
			want := float64(i*100 + k)
			if buf[k] != want {
				t.Errorf("tile %d cell %d = %v, want %v", i, k, buf[k], want)
			}
		}
	}
}

func TestMapGetValueAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.r3d")
	cfg := testMapConfig(t, 8)
	region := testMapRegion(t, 4, 4)

	m, err := OpenNew(path, cfg, region)
	if err != nil {
		t.Fatal(err)
	}
	geom := m.Geometry()
	_, _, _, nTiles := geom.NTiles()
	for i := 0; i < nTiles; i++ {
		buf := make([]float64, geom.TileCells())
		for k := range buf {
			buf[k] = float64(i)
		}
		if err := m.WriteTile(i, buf); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	m2, err := OpenOld(path, cfg, region)
	if err != nil {
		t.Fatal(err)
	}
	defer m2.Close()
	v, err := m2.GetValue(3, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	tx, ty, _, _, _, _ := m2.Geometry().CoordToTile(3, 3, 0)
	wantTile := m2.Geometry().TileToTileIndex(tx, ty, 0)
	if v != float64(wantTile) {
		t.Errorf("GetValue(3,3,0) = %v, want %v", v, float64(wantTile))
	}
}

func TestMapUnwrittenTileReadsAsNull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.r3d")
	cfg := testMapConfig(t, 8)
	region := testMapRegion(t, 4, 4)

	m, err := OpenNew(path, cfg, region)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	m2, err := OpenOld(path, cfg, region)
	if err != nil {
		t.Fatal(err)
	}
	defer m2.Close()
	v, err := m2.GetValue(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !IsNullF64(v) {
		t.Errorf("unwritten cell = %v, want null", v)
	}
}

func TestMapSecondWriteToSameTileIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.r3d")
	cfg := testMapConfig(t, 8)
	region := testMapRegion(t, 2, 2)

	m, err := OpenNew(path, cfg, region)
	if err != nil {
		t.Fatal(err)
	}
	geom := m.Geometry()
	first := make([]float64, geom.TileCells())
	for k := range first {
		first[k] = 1
	}
	second := make([]float64, geom.TileCells())
	for k := range second {
		second[k] = 2
	}
	if err := m.WriteTile(0, first); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteTile(0, second); err != nil {
		t.Fatal(err)
	}
	buf, err := m.ReadTile(0)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range buf {
		if v != 1 {
			t.Errorf("cell %d = %v, want 1 (second write must be a no-op)", k, v)
		}
	}
	m.Abandon()
}

func TestMapWriteForcesSpillUnderTinyCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.r3d")
	cfg := testMapConfig(t, 1) // a single cache slot forces every other tile to spill
	region := testMapRegion(t, 8, 8)

	m, err := OpenNew(path, cfg, region)
	if err != nil {
		t.Fatal(err)
	}
	geom := m.Geometry()
	_, _, _, nTiles := geom.NTiles()
	if nTiles < 2 {
		t.Fatal("test requires more than one tile")
	}
	for i := 0; i < nTiles; i++ {
		buf := make([]float64, geom.TileCells())
		for k := range buf {
			buf[k] = float64(i)
		}
		if err := m.WriteTile(i, buf); err != nil {
			t.Fatalf("WriteTile(%d): %v", i, err)
		}
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	m2, err := OpenOld(path, cfg, region)
	if err != nil {
		t.Fatal(err)
	}
	defer m2.Close()
	for i := 0; i < nTiles; i++ {
		buf, err := m2.ReadTile(i)
		if err != nil {
			t.Fatalf("ReadTile(%d): %v", i, err)
		}
		for k, v := range buf {
			if v != float64(i) {
				t.Errorf("tile %d cell %d = %v, want %v", i, k, v, float64(i))
			}
		}
	}
}

func TestMapRangeIgnoresClippedPadding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.r3d")
	cfg := testMapConfig(t, 8)
	region := testMapRegion(t, 3, 3) // 2x2 tiles over 3x3 cells: three clipped edge tiles

	m, err := OpenNew(path, cfg, region)
	if err != nil {
		t.Fatal(err)
	}
	geom := m.Geometry()
	_, _, _, nTiles := geom.NTiles()

	next := 1.0
	for i := 0; i < nTiles; i++ {
		cd := geom.ClippedDimensions(i)
		buf := make([]float64, geom.TileCells())
		for k := range buf {
			buf[k] = 1e9 // garbage that must never reach the range
		}
		for oy := 0; oy < cd.LiveY; oy++ {
			for ox := 0; ox < cd.LiveX; ox++ {
				buf[oy*geom.Tile.X+ox] = next
				next++
			}
		}
		if err := m.WriteTile(i, buf); err != nil {
			t.Fatal(err)
		}
	}

	min, max, ok := m.Range().MinMax()
	if !ok {
		t.Fatal("expected a populated range")
	}
	if min != 1 || max != 9 {
		t.Errorf("range = (%v, %v), want (1, 9): padding cells leaked into the range", min, max)
	}
	m.Abandon()
}

func TestOpenNewRefusesCacheOverMemoryLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.r3d")
	cfg := testMapConfig(t, 1024)
	cfg.MemoryLimitBytes = 64
	cfg.MemoryPolicy = MemoryFail
	region := testMapRegion(t, 4, 4)

	if _, err := OpenNew(path, cfg, region); !errors.Is(err, ErrMemoryLimit) {
		t.Fatalf("OpenNew err = %v, want ErrMemoryLimit", err)
	}
}

func TestMapAbandonLeavesNoError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.r3d")
	cfg := testMapConfig(t, 4)
	region := testMapRegion(t, 2, 2)

	m, err := OpenNew(path, cfg, region)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Abandon(); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
}

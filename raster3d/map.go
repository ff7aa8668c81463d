// SPDX-License-Identifier: MIT

package raster3d

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/basinflow/raster3d/raster3d/store"
)

// Sidecar element names a volume may carry beside its data file
// (§6.1); Close mirrors whichever of them exist.
var sidecarNames = []string{"range", "color", "cats", "hist", "mask"}

// mapState distinguishes the two lifecycles a Map can be opened into
// (§3.5, §4.E): write_new accumulates tiles and only becomes a real
// file on Close; read_old serves an already-complete file.
type mapState int8

const (
	stateReadOld mapState = iota
	stateWriteNew
)

// header is the fixed 16-byte prefix of the volume file format (§6.1).
// indexLongNbytes is fixed at 8 in this implementation (wide enough for
// any file offset), simplifying the header to a constant size; only
// indexNbytesUsed (the per-entry width of the packed index table) and
// indexOffset are rewritten at Close.
const (
	headerIndexLongNbytes = 8
	headerSize            = 4 + 4 + headerIndexLongNbytes
)

// tileLocationKind mirrors the three-way sign overload of the on-disk
// index[] entry (§3.3, §9) as an explicit in-memory enum, serialized
// back to the overloaded signed form only at Close.
type tileLocationKind int8

const (
	locAbsent tileLocationKind = iota
	locOnDisk
	locSpill
)

type tileLocation struct {
	kind          tileLocationKind
	offsetOrPos   int64
	payloadLength int64 // valid only for locOnDisk
}

// Map is the façade from §4.E tying together geometry (B), tile I/O
// (C), the cache (D), and the range/mask/resampler machinery around
// them.
type Map struct {
	cfg       Config
	region    Region
	geometry  Geometry
	tileCodec TileCodec
	warnings  WarningRecorder
	rng       *Range

	state  mapState
	closed bool

	cache *Cache

	// write_new machinery
	dataFile  *os.File
	tempPath  string
	finalPath string
	spill     *spillFile
	spillPath string
	index     []tileLocation
	written   []bool

	// read_old machinery
	readFile *os.File

	nTiles int

	mask     *Mask
	maskOn   bool
	resample Resampler
}

// OpenNew creates a write-mode Map at finalPath (not visible under that
// name until Close succeeds): it allocates a uuid-named temp file
// beside finalPath plus a uuid-named spill file under cfg.TmpDir (§3.5,
// §6.2's STREAM_TMPDIR).
func OpenNew(finalPath string, cfg Config, region Region) (*Map, error) {
	cfg.freeze()
	region, err := NewRegion(region)
	if err != nil {
		return nil, err
	}
	geometry := region.Geometry(cfg.TileDims)
	_, _, _, nTiles := geometry.NTiles()
	if err := cfg.checkAlloc("OpenNew: tile cache", int64(cfg.CacheSize)*int64(geometry.TileCells())*8); err != nil {
		return nil, err
	}

	tempPath := filepath.Join(filepath.Dir(finalPath), "."+uuid.NewString()+".raster3d.tmp")
	dataFile, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("raster3d: OpenNew: %w", err)
	}
	if _, err := dataFile.Write(make([]byte, headerSize)); err != nil {
		dataFile.Close()
		return nil, fmt.Errorf("raster3d: OpenNew: header: %w", err)
	}

	spillPath := filepath.Join(cfg.TmpDir, uuid.NewString()+".raster3d.spill")
	spillFd, err := os.Create(spillPath)
	if err != nil {
		dataFile.Close()
		return nil, fmt.Errorf("raster3d: OpenNew: spill file: %w", err)
	}

	m := &Map{
		cfg:       cfg,
		region:    region,
		geometry:  geometry,
		tileCodec: TileCodec{CellType: cfg.CellType, Compression: cfg.Compression, Precision: cfg.Precision},
		warnings:  discardWarnings{},
		rng:       NewRange(),
		state:     stateWriteNew,
		dataFile:  dataFile,
		tempPath:  tempPath,
		finalPath: finalPath,
		spill:     newSpillFile(spillFd, geometry.TileCells()),
		spillPath: spillPath,
		index:     make([]tileLocation, nTiles),
		written:   make([]bool, nTiles),
		nTiles:    nTiles,
		resample:  NearestNeighborResampler{},
	}
	m.cache = NewCache(cfg.CacheSize, geometry.TileCells(), 1, m.writeModeLoad, m.writeModeEvict)
	return m, nil
}

// OpenOld opens an existing volume read-only. Projection/region
// metadata reading is delegated to an external collaborator (§1);
// callers supply the Region they expect, and OpenOld derives the tile
// count, and so the size of the index table it reads, from that Region
// alone; nothing in the file is checked against it (§4.E, §7's
// "mismatched proj/zone" fatal case is the caller's responsibility to
// check before calling OpenOld).
func OpenOld(path string, cfg Config, region Region) (*Map, error) {
	cfg.freeze()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("raster3d: OpenOld: %w", err)
	}

	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("raster3d: OpenOld: header: %w", err)
	}
	indexLongNbytes := int32(binary.BigEndian.Uint32(hdr[0:4]))
	indexNbytesUsed := int(int32(binary.BigEndian.Uint32(hdr[4:8])))
	indexOffset := int64(binary.BigEndian.Uint64(hdr[8:16]))

	geometry := region.Geometry(cfg.TileDims)
	_, _, _, nTiles := geometry.NTiles()
	if err := cfg.checkAlloc("OpenOld: tile cache", int64(cfg.CacheSize)*int64(geometry.TileCells())*8); err != nil {
		f.Close()
		return nil, err
	}

	m := &Map{
		cfg:       cfg,
		region:    region,
		geometry:  geometry,
		tileCodec: TileCodec{CellType: cfg.CellType, Compression: cfg.Compression, Precision: cfg.Precision},
		warnings:  discardWarnings{},
		rng:       NewRange(),
		state:     stateReadOld,
		readFile:  f,
		index:     make([]tileLocation, nTiles),
		nTiles:    nTiles,
		resample:  NearestNeighborResampler{},
	}

	if indexLongNbytes == 0 || indexNbytesUsed == 0 {
		// Legacy file with no index table: every tile reads as absent.
		for i := range m.index {
			m.index[i] = tileLocation{kind: locAbsent}
		}
	} else {
		packed := make([]byte, nTiles*indexNbytesUsed)
		if _, err := f.ReadAt(packed, indexOffset); err != nil && err != io.EOF {
			f.Close()
			return nil, fmt.Errorf("raster3d: OpenOld: index table: %w", err)
		}
		offsets, err := DecodeLong(packed, indexNbytesUsed, nTiles)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("raster3d: OpenOld: %w: %w", ErrCorruptIndex, err)
		}
		for i, off := range offsets {
			if off < 0 {
				m.index[i] = tileLocation{kind: locAbsent}
				continue
			}
			// Tiles are not written in index order, so the payload ends
			// at the nearest present offset after this one on disk.
			boundary := indexOffset
			for _, o := range offsets {
				if o > off && o < boundary {
					boundary = o
				}
			}
			m.index[i] = tileLocation{kind: locOnDisk, offsetOrPos: off, payloadLength: boundary - off}
		}
	}

	m.cache = NewCache(cfg.CacheSize, geometry.TileCells(), 1, m.readModeLoad, m.readModeEvict)
	return m, nil
}

// writeModeLoad is the cache's loadFn while open for write: a fresh
// (never-written) tile reads as all-null; a tile that was spilled
// after eviction is read back from the spill file and its spill record
// is removed, per §4.D's two-level composition.
func (m *Map) writeModeLoad(name int64, buf []float64) error {
	loc := m.index[name]
	switch loc.kind {
	case locSpill:
		tileIdx, data, err := m.spill.ReadAt(loc.offsetOrPos)
		if err != nil {
			return err
		}
		if tileIdx != name {
			return fmt.Errorf("raster3d: writeModeLoad: spill record mismatch: want %d got %d", name, tileIdx)
		}
		copy(buf, data)
		moved, ok, err := m.spill.RemoveAt(loc.offsetOrPos)
		if err != nil {
			return err
		}
		if ok {
			m.index[moved] = tileLocation{kind: locSpill, offsetOrPos: loc.offsetOrPos}
		}
		m.index[name] = tileLocation{kind: locAbsent}
		return nil
	case locOnDisk:
		// Cannot happen before Close in write mode: nothing is written
		// to the final file until the commit pass.
		return fmt.Errorf("raster3d: writeModeLoad: tile %d unexpectedly on disk before close", name)
	default:
		null := NullF64()
		for i := range buf {
			buf[i] = null
		}
		return nil
	}
}

// writeModeEvict is the cache's removeFn while open for write: every
// resident tile in write mode was populated by WriteTile, so eviction
// always spills it (§4.D's writeFn).
func (m *Map) writeModeEvict(name int64, buf []float64) error {
	pos, err := m.spill.Append(name, buf)
	if err != nil {
		return err
	}
	m.index[name] = tileLocation{kind: locSpill, offsetOrPos: pos}
	return nil
}

func (m *Map) readModeLoad(name int64, buf []float64) error {
	loc := m.index[name]
	if loc.kind != locOnDisk {
		null := NullF64()
		for i := range buf {
			buf[i] = null
		}
		return nil
	}
	payload := make([]byte, loc.payloadLength)
	if _, err := m.readFile.ReadAt(payload, loc.offsetOrPos); err != nil && err != io.EOF {
		return fmt.Errorf("raster3d: readModeLoad: tile %d: %w", name, err)
	}
	values, err := m.tileCodec.Decode(payload, len(buf))
	if err != nil {
		return fmt.Errorf("raster3d: readModeLoad: tile %d: %w", name, err)
	}
	copy(buf, values)
	return nil
}

func (m *Map) readModeEvict(int64, []float64) error { return nil }

// WriteTile writes values (length geometry.TileCells(), row-major
// x-fastest/z-slowest, live cells only need be meaningful — padding
// cells are ignored by the range updater) for tileIndex. A second
// write to an already-written index is a silent no-op (§4.C).
func (m *Map) WriteTile(tileIndex int, values []float64) error {
	if m.closed {
		return ErrClosed
	}
	if m.state != stateWriteNew {
		return ErrReadOnly
	}
	if tileIndex < 0 || tileIndex >= m.nTiles {
		return ErrOutOfRange
	}
	if m.written[tileIndex] {
		return nil // skipped, per §4.C
	}
	buf, err := m.cache.Load(int64(tileIndex))
	if err != nil {
		return err
	}
	copy(buf, values)
	m.written[tileIndex] = true

	// Only live cells feed the range: a clipped edge tile's padding is
	// interleaved row by row, not a contiguous tail, so walk the live
	// sub-box rather than a prefix of the buffer.
	cd := m.geometry.ClippedDimensions(tileIndex)
	for oz := 0; oz < cd.LiveZ; oz++ {
		for oy := 0; oy < cd.LiveY; oy++ {
			base := (oz*m.geometry.Tile.Y + oy) * m.geometry.Tile.X
			end := base + cd.LiveX
			if end > len(values) {
				end = len(values)
			}
			if base < end {
				m.rng.Update(values[base:end])
			}
		}
	}
	return nil
}

// ReadTile reads back the full tile buffer (geometry.TileCells() long)
// for tileIndex, resolving it through the cache regardless of whether
// it currently lives in the cache, the spill file (write mode), or the
// final data file (read mode).
func (m *Map) ReadTile(tileIndex int) ([]float64, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if tileIndex < 0 || tileIndex >= m.nTiles {
		return nil, ErrOutOfRange
	}
	buf, err := m.cache.Load(int64(tileIndex))
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(buf))
	copy(out, buf)
	return out, nil
}

// GetValue reads a single cell at region-relative integer coordinates,
// applying the mask if one is installed and enabled (§4.E).
func (m *Map) GetValue(x, y, z int) (float64, error) {
	if x < 0 || y < 0 || z < 0 || x >= m.geometry.Cols || y >= m.geometry.Rows || z >= m.geometry.Depths {
		return 0, ErrOutOfRange
	}
	tx, ty, tz, ox, oy, oz := m.geometry.CoordToTile(x, y, z)
	tileIndex := m.geometry.TileToTileIndex(tx, ty, tz)
	buf, err := m.cache.Load(int64(tileIndex))
	if err != nil {
		return 0, err
	}
	local := (oz*m.cfg.TileDims.Y+oy)*m.cfg.TileDims.X + ox
	value := buf[local]
	if m.maskOn && m.mask != nil {
		return m.mask.Apply(float64(x), float64(y), float64(z), value)
	}
	return value, nil
}

// sampleWindow is the hook Mask.Apply uses to query a mask Map through
// its own resampler (the Open Question on mismatched mask/target
// windows in §9: the mask always resamples via its own region).
func (m *Map) sampleWindow(x, y, z float64) (float64, error) {
	return m.resample.Sample(m, x, y, z)
}

// Sample is the public window-relative query entry point (§4.E): it
// resamples via the map's installed Resampler (default
// nearest-neighbour).
func (m *Map) Sample(x, y, z float64) (float64, error) {
	if m.closed {
		return 0, ErrClosed
	}
	return m.resample.Sample(m, x, y, z)
}

// SetResampler installs a non-default resampling function (§9).
func (m *Map) SetResampler(r Resampler) { m.resample = r }

// SetMask installs a mask Map; the mask is consulted on every GetValue
// while MaskOn() is in effect.
func (m *Map) SetMask(mask *Map) { m.mask = &Mask{Map: mask} }

// MaskOn and MaskOff toggle mask coercion per-map (§4.E).
func (m *Map) MaskOn()  { m.maskOn = true }
func (m *Map) MaskOff() { m.maskOn = false }

// SetWarningRecorder installs a sink for recoverable warnings (§7).
// The Map stores it; none of the Map's own operations emit a Warning.
func (m *Map) SetWarningRecorder(w WarningRecorder) { m.warnings = w }

// Region returns the map's on-disk geometry.
func (m *Map) Region() Region { return m.region }

// Geometry returns the map's tile geometry.
func (m *Map) Geometry() Geometry { return m.geometry }

// Range returns the map's running min/max tracker.
func (m *Map) Range() *Range { return m.rng }

// Abandon leaves the temp file (and spill file, in write mode) in
// place for the caller to clean up, per §5's cancellation contract:
// Close is not automatic on cancellation. It releases in-process
// resources only.
func (m *Map) Abandon() error {
	if m.closed {
		return nil
	}
	m.closed = true
	var firstErr error
	if m.dataFile != nil {
		if err := m.dataFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.spill != nil {
		if err := m.spill.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.readFile != nil {
		if err := m.readFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close finalizes the map. In read mode it simply releases the file
// handle. In write mode it performs the five-step commit from §4.E:
// flush the cache to the data file, drain the spill file, pack and
// append the index table, rewrite the header's index fields, and
// atomically rename the temp file to finalPath.
func (m *Map) Close() error {
	if m.closed {
		return nil
	}
	if m.state == stateReadOld {
		m.closed = true
		return m.readFile.Close()
	}
	return m.closeWrite()
}

func (m *Map) closeWrite() error {
	m.cache.SetRemoveFn(m.finalWrite)
	if err := m.cache.FlushAll(); err != nil {
		return fmt.Errorf("raster3d: Close: flush cache: %w", err)
	}
	if err := m.drainSpill(); err != nil {
		return fmt.Errorf("raster3d: Close: drain spill: %w", err)
	}

	offsets := make([]int64, m.nTiles)
	for i, loc := range m.index {
		if loc.kind == locOnDisk {
			offsets[i] = loc.offsetOrPos
		} else {
			offsets[i] = -1
		}
	}
	nbytesUsed, packed := EncodeLong(offsets)
	indexOffset, err := m.dataFile.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("raster3d: Close: seek: %w", err)
	}
	if _, err := m.dataFile.Write(packed); err != nil {
		return fmt.Errorf("raster3d: Close: write index: %w", err)
	}

	var hdr [headerSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(headerIndexLongNbytes))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(nbytesUsed))
	binary.BigEndian.PutUint64(hdr[8:16], uint64(indexOffset))
	if _, err := m.dataFile.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("raster3d: Close: rewrite header: %w", err)
	}

	if err := m.dataFile.Close(); err != nil {
		return fmt.Errorf("raster3d: Close: %w", err)
	}
	if err := renameAtomic(m.tempPath, m.finalPath); err != nil {
		return fmt.Errorf("raster3d: Close: rename: %w", err)
	}

	if err := m.writeRangeSidecar(); err != nil {
		Logger.Printf("Close: range sidecar: %v", err)
	}
	if err := m.mirrorSidecars(); err != nil {
		Logger.Printf("Close: sidecar mirror: %v", err)
	}

	if err := m.spill.f.Close(); err != nil {
		Logger.Printf("Close: spill file close: %v", err)
	}
	if err := os.Remove(m.spillPath); err != nil && !os.IsNotExist(err) {
		Logger.Printf("Close: spill file remove: %v", err)
	}

	m.closed = true
	return nil
}

// finalWrite is the cache's removeFn during the Close commit pass: it
// encodes the tile and appends it to the (still temp-named) data file.
func (m *Map) finalWrite(name int64, buf []float64) error {
	payload, err := m.tileCodec.Encode(buf)
	if err != nil {
		return fmt.Errorf("raster3d: finalWrite: tile %d: %w", name, err)
	}
	offset, err := m.dataFile.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if _, err := m.dataFile.Write(payload); err != nil {
		return err
	}
	m.index[name] = tileLocation{kind: locOnDisk, offsetOrPos: offset, payloadLength: int64(len(payload))}
	return nil
}

// drainSpill commits every tile still resident only in the spill file
// (i.e. evicted from the cache before Close and never re-read) to the
// data file, in spill-file order (§4.D's "drains the spill file in
// order").
func (m *Map) drainSpill() error {
	if _, err := m.spill.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	for pos := int64(0); pos < m.spill.n; pos++ {
		tileIdx, buf, err := m.spill.ReadAt(pos)
		if err != nil {
			return err
		}
		if m.index[tileIdx].kind != locSpill {
			// Already committed via the cache flush above; a stale
			// leftover record from before a RemoveAt compaction.
			continue
		}
		if err := m.finalWrite(tileIdx, buf); err != nil {
			return err
		}
	}
	return nil
}

func (m *Map) writeRangeSidecar() error {
	f, err := os.Create(m.finalPath + ".range")
	if err != nil {
		return err
	}
	defer f.Close()
	return m.rng.Encode(f)
}

// mirrorSidecars uploads the volume's sidecar files to the configured
// S3-compatible object store. With no S3_ENDPOINT set this is a no-op
// that never touches the network; sidecars that don't exist (most are
// optional, §6.1) are skipped by MirrorSidecars itself.
func (m *Map) mirrorSidecars() error {
	st, err := store.NewStorageFromEnv()
	if err != nil {
		return err
	}
	if st == nil {
		return nil
	}
	prefix := filepath.Base(m.finalPath)
	sidecars := make(map[string]string, len(sidecarNames))
	for _, name := range sidecarNames {
		sidecars[name] = m.finalPath + "." + name
	}
	return store.MirrorSidecars(context.Background(), st, store.BucketFromEnv(), prefix, sidecars)
}

// renameAtomic renames oldpath to newpath, falling back to a
// hardlink-then-remove on platforms without an atomic rename-over
// (§4.E step 4).
func renameAtomic(oldpath, newpath string) error {
	if err := os.Rename(oldpath, newpath); err == nil {
		return nil
	}
	if err := os.Link(oldpath, newpath); err != nil {
		return err
	}
	return os.Remove(oldpath)
}

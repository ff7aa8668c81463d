// SPDX-License-Identifier: MIT

package raster3d

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// spillFile is the two-level write-mode overlay from §4.D: a
// fixed-record-size append-only file of (tileIndex, buf) pairs for
// tiles evicted from the cache before the final commit. Records are
// fixed-size so RemoveAt can compact the file by moving the trailing
// record into a freed slot rather than rewriting everything after it.
type spillFile struct {
	f          *os.File
	recordSize int64
	bufLen     int
	n          int64 // number of live records
}

func newSpillFile(f *os.File, bufLen int) *spillFile {
	return &spillFile{f: f, recordSize: int64(8 + 8*bufLen), bufLen: bufLen}
}

// Append writes (tileIndex, buf) as the next record and returns its
// position (a record index, not a byte offset).
func (s *spillFile) Append(tileIndex int64, buf []float64) (int64, error) {
	pos := s.n
	if err := s.writeRecord(pos, tileIndex, buf); err != nil {
		return 0, err
	}
	s.n++
	return pos, nil
}

func (s *spillFile) writeRecord(pos, tileIndex int64, buf []float64) error {
	off := pos * s.recordSize
	if _, err := s.f.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("raster3d: spillFile: seek: %w", err)
	}
	var hdr [8]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(tileIndex))
	if _, err := s.f.Write(hdr[:]); err != nil {
		return fmt.Errorf("raster3d: spillFile: write header: %w", err)
	}
	if err := WriteF64(s.f, buf); err != nil {
		return fmt.Errorf("raster3d: spillFile: write payload: %w", err)
	}
	return nil
}

// ReadAt reads the record at pos without removing it.
func (s *spillFile) ReadAt(pos int64) (tileIndex int64, buf []float64, err error) {
	off := pos * s.recordSize
	if _, err = s.f.Seek(off, io.SeekStart); err != nil {
		return 0, nil, fmt.Errorf("raster3d: spillFile: seek: %w", err)
	}
	var hdr [8]byte
	if _, err = io.ReadFull(s.f, hdr[:]); err != nil {
		return 0, nil, fmt.Errorf("raster3d: spillFile: read header: %w", err)
	}
	tileIndex = int64(binary.BigEndian.Uint64(hdr[:]))
	buf = make([]float64, s.bufLen)
	if err = ReadF64(s.f, buf); err != nil {
		return 0, nil, fmt.Errorf("raster3d: spillFile: read payload: %w", err)
	}
	return tileIndex, buf, nil
}

// RemoveAt deletes the record at pos by moving the file's last record
// into its place (unless pos was already last) and truncating the
// file by one record (§3.3, §9: the spill-file compaction the overload
// note calls for). moved reports whether a record was relocated, in
// which case movedTileIndex names the tile whose spill position is now
// pos and must be patched into Map.index.
func (s *spillFile) RemoveAt(pos int64) (movedTileIndex int64, moved bool, err error) {
	last := s.n - 1
	if pos < 0 || pos > last {
		return 0, false, fmt.Errorf("raster3d: spillFile: RemoveAt: position %d out of range [0,%d]", pos, last)
	}
	if pos != last {
		tileIndex, buf, rerr := s.ReadAt(last)
		if rerr != nil {
			return 0, false, rerr
		}
		if err = s.writeRecord(pos, tileIndex, buf); err != nil {
			return 0, false, err
		}
		movedTileIndex, moved = tileIndex, true
	}
	s.n--
	if err = s.f.Truncate(s.n * s.recordSize); err != nil {
		return movedTileIndex, moved, fmt.Errorf("raster3d: spillFile: truncate: %w", err)
	}
	return movedTileIndex, moved, nil
}

// SPDX-License-Identifier: MIT

package raster3d

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Range tracks the running min/max of every non-null value written to
// a volume (§3.2, §4.C). Map.WriteTile updates it with each tile's
// live cells, and Close persists it as a small `<path>.range` sidecar
// file beside the volume, the same way the teacher keeps a running total alongside its sorted
// output rather than re-scanning it on request.
type Range struct {
	mu       sync.Mutex
	min, max float64
	hasData  bool
}

// NewRange returns an empty range; Min/Max are meaningless until
// Update has seen at least one non-null value.
func NewRange() *Range {
	return &Range{}
}

// Update folds every non-null value in values into the running range.
func (r *Range) Update(values []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range values {
		if IsNullF64(v) || math.IsNaN(v) {
			continue
		}
		if !r.hasData {
			r.min, r.max = v, v
			r.hasData = true
			continue
		}
		if v < r.min {
			r.min = v
		}
		if v > r.max {
			r.max = v
		}
	}
}

// MinMax reports the current range and whether any non-null value has
// been observed.
func (r *Range) MinMax() (min, max float64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.min, r.max, r.hasData
}

// rangeSidecarMagic distinguishes a fresh range record from a legacy
// one with no "has data" flag; see the Open Question note in
// DecodeRange.
const rangeSidecarMagic uint32 = 0x52334452 // "R3DR"

// Encode serializes the range as a fixed 21-byte record — magic(4) |
// hasData(1) | min(8) | max(8) — then zstd-compresses it before
// writing, the same `.zst`-wrapped sidecar the teacher produces for its
// own small cache files in pagesignals.go/itemsignals.go. The record is
// tiny enough that compression buys nothing on size, but it keeps every
// on-disk sidecar this package emits behind the one codec, so a reader
// never has to guess which sidecars are compressed and which aren't.
func (r *Range) Encode(w io.Writer) error {
	r.mu.Lock()
	min, max, hasData := r.min, r.max, r.hasData
	r.mu.Unlock()

	var buf bytes.Buffer
	if err := WriteI32(&buf, []int32{int32(rangeSidecarMagic)}); err != nil {
		return err
	}
	flag := byte(0)
	if hasData {
		flag = 1
	}
	buf.WriteByte(flag)
	if err := WriteF64(&buf, []float64{min, max}); err != nil {
		return err
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("raster3d: Range.Encode: zstd writer: %w", err)
	}
	if _, err := zw.Write(buf.Bytes()); err != nil {
		zw.Close()
		return fmt.Errorf("raster3d: Range.Encode: %w", err)
	}
	return zw.Close()
}

// DecodeRange reads a sidecar record written by Range.Encode, undoing
// the zstd wrapper before parsing the fixed record underneath.
//
// The original Rast3d range sidecar has no "has data" flag: an
// all-null volume's min/max defaulted to +inf/-inf and callers
// compared against those sentinels. This implementation instead
// writes an explicit flag so a freshly-filled range with all-null
// data isn't mistaken for an empty Range at the type level.
func DecodeRange(r io.Reader) (*Range, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("raster3d: DecodeRange: zstd reader: %w", err)
	}
	defer zr.Close()

	var magicBuf [4]byte
	if _, err := io.ReadFull(zr, magicBuf[:]); err != nil {
		return nil, fmt.Errorf("raster3d: DecodeRange: %w", err)
	}
	magic := uint32(magicBuf[0])<<24 | uint32(magicBuf[1])<<16 | uint32(magicBuf[2])<<8 | uint32(magicBuf[3])
	if magic != rangeSidecarMagic {
		return nil, fmt.Errorf("raster3d: DecodeRange: bad magic %x", magic)
	}
	var flagBuf [1]byte
	if _, err := io.ReadFull(zr, flagBuf[:]); err != nil {
		return nil, fmt.Errorf("raster3d: DecodeRange: %w", err)
	}
	minmax := make([]float64, 2)
	if err := ReadF64(zr, minmax); err != nil {
		return nil, fmt.Errorf("raster3d: DecodeRange: %w", err)
	}
	return &Range{min: minmax[0], max: minmax[1], hasData: flagBuf[0] != 0}, nil
}

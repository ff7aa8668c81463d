// SPDX-License-Identifier: MIT

// Package raster3d implements the tiled 3D raster volume engine: portable
// encoding, tile geometry, tile I/O with optional compression, a two-level
// LRU tile cache with a spill file, and the Map façade that ties them
// together.
package raster3d

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// scratchChunk bounds how many values share one scratch buffer per
// Write*/Read* call, amortizing syscalls the way the teacher's codec
// batches work in bounded-size chunks.
const scratchChunk = 1024

// NullF32 and NullF64 are the round-trip-stable null sentinels: the
// all-ones bit pattern for each float width (§3.1).
const (
	NullF32Bits uint32 = 0xFFFFFFFF
	NullF64Bits uint64 = 0xFFFFFFFFFFFFFFFF
)

// NullF32 returns the null sentinel as a float32.
func NullF32() float32 { return math.Float32frombits(NullF32Bits) }

// NullF64 returns the null sentinel as a float64.
func NullF64() float64 { return math.Float64frombits(NullF64Bits) }

// IsNullF32 reports whether v is the null sentinel. NaN-based
// comparisons can't distinguish sentinel NaNs from arbitrary NaNs, so
// this compares bit patterns exactly.
func IsNullF32(v float32) bool { return math.Float32bits(v) == NullF32Bits }

// IsNullF64 reports whether v is the null sentinel.
func IsNullF64(v float64) bool { return math.Float64bits(v) == NullF64Bits }

// WriteI32 writes n big-endian i32 values to w.
func WriteI32(w io.Writer, values []int32) error {
	buf := make([]byte, 4*scratchChunk)
	for len(values) > 0 {
		n := len(values)
		if n > scratchChunk {
			n = scratchChunk
		}
		chunk := buf[:4*n]
		for i := 0; i < n; i++ {
			binary.BigEndian.PutUint32(chunk[4*i:], uint32(values[i]))
		}
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("raster3d: WriteI32: %w", err)
		}
		values = values[n:]
	}
	return nil
}

// ReadI32 reads len(values) big-endian i32 values from r into values.
func ReadI32(r io.Reader, values []int32) error {
	buf := make([]byte, 4*scratchChunk)
	for len(values) > 0 {
		n := len(values)
		if n > scratchChunk {
			n = scratchChunk
		}
		chunk := buf[:4*n]
		if _, err := io.ReadFull(r, chunk); err != nil {
			return fmt.Errorf("raster3d: ReadI32: %w", err)
		}
		for i := 0; i < n; i++ {
			values[i] = int32(binary.BigEndian.Uint32(chunk[4*i:]))
		}
		values = values[n:]
	}
	return nil
}

// WriteF32 writes big-endian f32 values to w.
func WriteF32(w io.Writer, values []float32) error {
	buf := make([]byte, 4*scratchChunk)
	for len(values) > 0 {
		n := len(values)
		if n > scratchChunk {
			n = scratchChunk
		}
		chunk := buf[:4*n]
		for i := 0; i < n; i++ {
			binary.BigEndian.PutUint32(chunk[4*i:], math.Float32bits(values[i]))
		}
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("raster3d: WriteF32: %w", err)
		}
		values = values[n:]
	}
	return nil
}

// ReadF32 reads big-endian f32 values from r into values.
func ReadF32(r io.Reader, values []float32) error {
	buf := make([]byte, 4*scratchChunk)
	for len(values) > 0 {
		n := len(values)
		if n > scratchChunk {
			n = scratchChunk
		}
		chunk := buf[:4*n]
		if _, err := io.ReadFull(r, chunk); err != nil {
			return fmt.Errorf("raster3d: ReadF32: %w", err)
		}
		for i := 0; i < n; i++ {
			values[i] = math.Float32frombits(binary.BigEndian.Uint32(chunk[4*i:]))
		}
		values = values[n:]
	}
	return nil
}

// WriteF64 writes big-endian f64 values to w.
func WriteF64(w io.Writer, values []float64) error {
	buf := make([]byte, 8*scratchChunk)
	for len(values) > 0 {
		n := len(values)
		if n > scratchChunk {
			n = scratchChunk
		}
		chunk := buf[:8*n]
		for i := 0; i < n; i++ {
			binary.BigEndian.PutUint64(chunk[8*i:], math.Float64bits(values[i]))
		}
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("raster3d: WriteF64: %w", err)
		}
		values = values[n:]
	}
	return nil
}

// ReadF64 reads big-endian f64 values from r into values.
func ReadF64(r io.Reader, values []float64) error {
	buf := make([]byte, 8*scratchChunk)
	for len(values) > 0 {
		n := len(values)
		if n > scratchChunk {
			n = scratchChunk
		}
		chunk := buf[:8*n]
		if _, err := io.ReadFull(r, chunk); err != nil {
			return fmt.Errorf("raster3d: ReadF64: %w", err)
		}
		for i := 0; i < n; i++ {
			values[i] = math.Float64frombits(binary.BigEndian.Uint64(chunk[8*i:]))
		}
		values = values[n:]
	}
	return nil
}

// EncodeLong returns the minimum number of significant big-endian
// trailing bytes needed to represent every value in offsets, and the
// packed bytes themselves. All entries are encoded with that same byte
// width, sign-extended, so a single indexNbytesUsed describes the whole
// index table (§3.2, §6.1).
func EncodeLong(offsets []int64) (nbytes int, packed []byte) {
	nbytes = 1
	for _, v := range offsets {
		n := significantBytes(v)
		if n > nbytes {
			nbytes = n
		}
	}
	packed = make([]byte, nbytes*len(offsets))
	for i, v := range offsets {
		putSigned(packed[i*nbytes:(i+1)*nbytes], v, nbytes)
	}
	return nbytes, packed
}

// significantBytes returns how many trailing bytes are needed to
// represent v as a sign-extended big-endian integer.
func significantBytes(v int64) int {
	for n := 1; n < 8; n++ {
		shift := uint(8 * n)
		top := v >> (shift - 1)
		if top == 0 || top == -1 {
			return n
		}
	}
	return 8
}

func putSigned(dst []byte, v int64, nbytes int) {
	for i := nbytes - 1; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}

// DecodeLong decodes nbytes-wide sign-extended big-endian entries from
// packed into count int64 values.
//
// The legacy implementation this is modeled on carried unresolved
// parallel edits in its bounds check (see the Open Question recorded
// in DESIGN.md); this implementation requires the input to hold at
// least count*nbytes bytes, rejects anything shorter, and ignores any
// bytes past the first count*nbytes.
func DecodeLong(packed []byte, nbytes, count int) ([]int64, error) {
	if len(packed) < nbytes*count {
		return nil, fmt.Errorf("raster3d: DecodeLong: need %d bytes, have %d", nbytes*count, len(packed))
	}
	out := make([]int64, count)
	for i := 0; i < count; i++ {
		out[i] = getSigned(packed[i*nbytes:(i+1)*nbytes])
	}
	return out, nil
}

func getSigned(src []byte) int64 {
	var v int64
	if len(src) > 0 && src[0]&0x80 != 0 {
		v = -1
	}
	for _, b := range src {
		v = (v << 8) | int64(b)
	}
	return v
}

// SPDX-License-Identifier: MIT

package raster3d

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Indicator byte values for a tile payload (§4.C, §6.1, §9): 0 is the
// only value this package ever writes; 1 is accepted on read for
// compatibility with archives produced by the legacy RLE encoder that
// this implementation never re-creates.
const (
	tileIndicatorFresh     byte = 0
	tileIndicatorLegacyRLE byte = 1
)

// TileCodec encodes and decodes one tile's payload per §4.C/§6.1: stage
// into the rearranged float layout, optionally zlib-compress, and
// prepend the indicator byte.
type TileCodec struct {
	CellType    CellType
	Compression bool
	Precision   int
}

// Encode turns a tile's live-cell-padded values (row-major,
// x-fastest/z-slowest, length == geometry.TileCells()) into an on-disk
// payload, indicator byte included.
func (c TileCodec) Encode(values []float64) ([]byte, error) {
	var staged bytes.Buffer
	switch c.CellType {
	case CellF64:
		f64 := make([]float64, len(values))
		copy(f64, values)
		r := TruncatePrecision64(f64, c.Precision)
		writeRearrangedF64(&staged, r, len(f64))
	default:
		f32 := toF32Slice(values)
		r := TruncatePrecision32(f32, c.Precision)
		writeRearrangedF32(&staged, r, len(f32))
	}

	var out bytes.Buffer
	if c.Compression {
		out.WriteByte(tileIndicatorFresh)
		zw := zlib.NewWriter(&out)
		if _, err := zw.Write(staged.Bytes()); err != nil {
			return nil, fmt.Errorf("raster3d: TileCodec.Encode: zlib write: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("raster3d: TileCodec.Encode: zlib close: %w", err)
		}
		return out.Bytes(), nil
	}

	// Compression off: native big-endian floats, no rearranging, no
	// indicator-byte payload wrapper beyond the indicator itself.
	out.WriteByte(tileIndicatorFresh)
	switch c.CellType {
	case CellF64:
		f64 := make([]float64, len(values))
		copy(f64, values)
		if err := WriteF64(&out, f64); err != nil {
			return nil, err
		}
	default:
		if err := WriteF32(&out, toF32Slice(values)); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

// Decode is the inverse of Encode; n is the tile's total cell count
// (geometry.TileCells()).
func (c TileCodec) Decode(payload []byte, n int) ([]float64, error) {
	if len(payload) == 0 {
		return nullTile(n), nil
	}
	indicator := payload[0]
	body := payload[1:]

	switch indicator {
	case tileIndicatorLegacyRLE:
		decoded, err := legacyRLEDecode(body)
		if err != nil {
			return nil, fmt.Errorf("raster3d: TileCodec.Decode: legacy RLE: %w", err)
		}
		body = decoded
	case tileIndicatorFresh:
		// no-op
	default:
		return nil, fmt.Errorf("raster3d: TileCodec.Decode: unknown indicator byte %d", indicator)
	}

	if c.Compression {
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("raster3d: TileCodec.Decode: zlib: %w", err)
		}
		defer zr.Close()
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, zr); err != nil {
			return nil, fmt.Errorf("raster3d: TileCodec.Decode: zlib read: %w", err)
		}
		return readRearranged(&buf, c.CellType, n)
	}

	switch c.CellType {
	case CellF64:
		f64 := make([]float64, n)
		if err := ReadF64(bytes.NewReader(body), f64); err != nil {
			return nil, err
		}
		return f64, nil
	default:
		f32 := make([]float32, n)
		if err := ReadF32(bytes.NewReader(body), f32); err != nil {
			return nil, err
		}
		return toF64Slice(f32), nil
	}
}

// toF32Slice narrows values to float32, mapping the f64 null sentinel
// to the f32 null sentinel explicitly: a bare float32(v) cast does not
// preserve NullF64's bit pattern as NullF32's.
func toF32Slice(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		if IsNullF64(v) {
			out[i] = NullF32()
			continue
		}
		out[i] = float32(v)
	}
	return out
}

// toF64Slice widens values to float64, mapping the f32 null sentinel to
// the f64 null sentinel explicitly, for the same reason as toF32Slice.
func toF64Slice(values []float32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if IsNullF32(v) {
			out[i] = NullF64()
			continue
		}
		out[i] = float64(v)
	}
	return out
}

func nullTile(n int) []float64 {
	out := make([]float64, n)
	null := NullF64()
	for i := range out {
		out[i] = null
	}
	return out
}

// legacyRLEDecode decodes the run-length-encoded legacy tile format
// that §9 requires this package to still accept on read. The format is
// a sequence of (count byte, payload byte) pairs; count==0 terminates.
// This implementation is read-only: TileCodec.Encode never produces it.
func legacyRLEDecode(data []byte) ([]byte, error) {
	var out bytes.Buffer
	i := 0
	for i < len(data) {
		count := data[i]
		i++
		if count == 0 {
			break
		}
		if i >= len(data) {
			return nil, fmt.Errorf("raster3d: legacy RLE: truncated stream")
		}
		b := data[i]
		i++
		for n := byte(0); n < count; n++ {
			out.WriteByte(b)
		}
	}
	return out.Bytes(), nil
}

func writeRearrangedF32(w *bytes.Buffer, r RearrangedF32, n int) {
	w.WriteByte(byte(r.NullMode))
	w.WriteByte(byte(r.Precision))
	if r.NullMode == SomeNull {
		w.Write(r.NullBits)
	}
	w.Write(r.SignExp)
	w.Write(r.Mantissa)
}

func writeRearrangedF64(w *bytes.Buffer, r RearrangedF64, n int) {
	w.WriteByte(byte(r.NullMode))
	w.WriteByte(byte(r.Precision))
	if r.NullMode == SomeNull {
		w.Write(r.NullBits)
	}
	w.Write(r.SignExp)
	w.Write(r.Mantissa)
}

func readRearranged(buf *bytes.Buffer, cellType CellType, n int) ([]float64, error) {
	if buf.Len() < 2 {
		return nil, fmt.Errorf("raster3d: readRearranged: truncated header")
	}
	nullMode := NullBitmapMode(buf.Next(1)[0])
	precision := int(buf.Next(1)[0])

	var nullBits []byte
	if nullMode == SomeNull {
		nbytes := (n + 7) / 8
		nullBits = buf.Next(nbytes)
		if len(nullBits) != nbytes {
			return nil, fmt.Errorf("raster3d: readRearranged: truncated null bitmap")
		}
	}

	switch cellType {
	case CellF64:
		signExp := buf.Next(2 * n)
		mantissa := buf.Next(mantissaBytes64 * n)
		if len(signExp) != 2*n || len(mantissa) != mantissaBytes64*n {
			return nil, fmt.Errorf("raster3d: readRearranged: truncated f64 payload")
		}
		r := RearrangedF64{Precision: precision, NullMode: nullMode, NullBits: nullBits, SignExp: signExp, Mantissa: mantissa}
		return r.Reconstruct64(n), nil
	default:
		signExp := buf.Next(2 * n)
		mantissa := buf.Next(mantissaBytes32 * n)
		if len(signExp) != 2*n || len(mantissa) != mantissaBytes32*n {
			return nil, fmt.Errorf("raster3d: readRearranged: truncated f32 payload")
		}
		r := RearrangedF32{Precision: precision, NullMode: nullMode, NullBits: nullBits, SignExp: signExp, Mantissa: mantissa}
		return toF64Slice(r.Reconstruct32(n)), nil
	}
}

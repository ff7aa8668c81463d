// SPDX-License-Identifier: MIT

package raster3d

import (
	"bytes"
	"testing"
)

func TestWriteReadF32RoundTrip(t *testing.T) {
	values := []float32{0, 1.5, -3.25, NullF32(), 1e30, -1e-30}
	var buf bytes.Buffer
	if err := WriteF32(&buf, values); err != nil {
		t.Fatal(err)
	}
	got := make([]float32, len(values))
	if err := ReadF32(&buf, got); err != nil {
		t.Fatal(err)
	}
	for i := range values {
		if got[i] != values[i] && !(IsNullF32(got[i]) && IsNullF32(values[i])) {
			t.Errorf("value %d: got %v, want %v", i, got[i], values[i])
		}
	}
}

func TestWriteReadF64RoundTrip(t *testing.T) {
	values := []float64{0, 1.5, -3.25, NullF64(), 1e300, -1e-300}
	var buf bytes.Buffer
	if err := WriteF64(&buf, values); err != nil {
		t.Fatal(err)
	}
	got := make([]float64, len(values))
	if err := ReadF64(&buf, got); err != nil {
		t.Fatal(err)
	}
	for i := range values {
		if got[i] != values[i] && !(IsNullF64(got[i]) && IsNullF64(values[i])) {
			t.Errorf("value %d: got %v, want %v", i, got[i], values[i])
		}
	}
}

func TestWriteReadI32RoundTrip(t *testing.T) {
	values := make([]int32, 2000)
	for i := range values {
		values[i] = int32(i*i - 37)
	}
	var buf bytes.Buffer
	if err := WriteI32(&buf, values); err != nil {
		t.Fatal(err)
	}
	got := make([]int32, len(values))
	if err := ReadI32(&buf, got); err != nil {
		t.Fatal(err)
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("value %d: got %v, want %v", i, got[i], values[i])
		}
	}
}

func TestEncodeDecodeLong(t *testing.T) {
	for _, tc := range []struct {
		name    string
		offsets []int64
	}{
		{"empty", []int64{}},
		{"zeros", []int64{0, 0, 0}},
		{"small positive", []int64{1, 2, 3, 255}},
		{"needs sign extension", []int64{-1, -2, 1000}},
		{"large", []int64{1 << 40, -(1 << 40), 0}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			nbytes, packed := EncodeLong(tc.offsets)
			if nbytes < 1 || nbytes > 8 {
				t.Fatalf("nbytes out of range: %d", nbytes)
			}
			if len(tc.offsets) > 0 && len(packed) != nbytes*len(tc.offsets) {
				t.Fatalf("packed length mismatch: got %d, want %d", len(packed), nbytes*len(tc.offsets))
			}
			got, err := DecodeLong(packed, nbytes, len(tc.offsets))
			if err != nil {
				t.Fatal(err)
			}
			for i, want := range tc.offsets {
				if got[i] != want {
					t.Errorf("offset %d: got %v, want %v", i, got[i], want)
				}
			}
		})
	}
}

func TestDecodeLongShortInput(t *testing.T) {
	if _, err := DecodeLong([]byte{1, 2}, 4, 1); err == nil {
		t.Fatal("expected error for short input")
	}
}

func TestTruncatePrecision32(t *testing.T) {
	values := []float32{1.0 / 3.0, NullF32(), -12345.6789, 0}
	for _, p := range []int{8, 16, 23, -1} {
		r := TruncatePrecision32(values, p)
		got := r.Reconstruct32(len(values))
		for i, v := range values {
			if IsNullF32(v) {
				if !IsNullF32(got[i]) {
					t.Errorf("precision %d, value %d: null not preserved", p, i)
				}
				continue
			}
			if IsNullF32(got[i]) {
				t.Errorf("precision %d, value %d: spuriously became null", p, i)
			}
		}
		if p == 23 || p == -1 {
			if got[0] != values[0] {
				t.Errorf("max precision should round-trip exactly: got %v, want %v", got[0], values[0])
			}
			if got[2] != values[2] {
				t.Errorf("max precision should round-trip exactly: got %v, want %v", got[2], values[2])
			}
		}
	}
}

func TestTruncatePrecision32AllNullAndZeroNull(t *testing.T) {
	allNull := []float32{NullF32(), NullF32()}
	r := TruncatePrecision32(allNull, 8)
	if r.NullMode != AllNull {
		t.Errorf("expected AllNull, got %v", r.NullMode)
	}
	got := r.Reconstruct32(len(allNull))
	for i, v := range got {
		if !IsNullF32(v) {
			t.Errorf("value %d: expected null", i)
		}
	}

	zeroNull := []float32{1, 2, 3}
	r2 := TruncatePrecision32(zeroNull, 8)
	if r2.NullMode != ZeroNull {
		t.Errorf("expected ZeroNull, got %v", r2.NullMode)
	}
}

func TestTruncatePrecision64RoundTripAtMax(t *testing.T) {
	values := []float64{1.0 / 3.0, NullF64(), -12345.6789012345, 0}
	r := TruncatePrecision64(values, -1)
	got := r.Reconstruct64(len(values))
	for i, v := range values {
		if IsNullF64(v) {
			if !IsNullF64(got[i]) {
				t.Errorf("value %d: null not preserved", i)
			}
			continue
		}
		if got[i] != v {
			t.Errorf("value %d: got %v, want %v", i, got[i], v)
		}
	}
}

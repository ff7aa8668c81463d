// SPDX-License-Identifier: MIT

package raster3d

import "testing"

func TestTileCodecRoundTripF32Compressed(t *testing.T) {
	n := 4 * 4 * 2
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i) * 1.5
	}
	values[3] = NullF64()

	c := TileCodec{CellType: CellF32, Compression: true, Precision: -1}
	payload, err := c.Encode(values)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(payload, n)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := range values {
		if i == 3 {
			if !IsNullF64(got[i]) {
				t.Errorf("value %d: expected null, got %v", i, got[i])
			}
			continue
		}
		if float32(got[i]) != float32(values[i]) {
			t.Errorf("value %d: got %v, want %v", i, got[i], values[i])
		}
	}
}

func TestTileCodecRoundTripF64Uncompressed(t *testing.T) {
	n := 2 * 2 * 2
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i) - 3.25
	}

	c := TileCodec{CellType: CellF64, Compression: false, Precision: -1}
	payload, err := c.Encode(values)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(payload, n)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("value %d: got %v, want %v", i, got[i], values[i])
		}
	}
}

func TestTileCodecDecodeEmptyPayloadIsAllNull(t *testing.T) {
	c := TileCodec{CellType: CellF32, Compression: true}
	got, err := c.Decode(nil, 5)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i, v := range got {
		if !IsNullF64(v) {
			t.Errorf("cell %d: expected null, got %v", i, v)
		}
	}
}

func TestTileCodecDecodeRejectsUnknownIndicator(t *testing.T) {
	c := TileCodec{CellType: CellF32}
	if _, err := c.Decode([]byte{7, 1, 2, 3}, 1); err == nil {
		t.Fatal("expected error for unknown indicator byte")
	}
}

func TestLegacyRLEDecode(t *testing.T) {
	// Two runs: 3x'A', 2x'B', terminator.
	data := []byte{3, 'A', 2, 'B', 0}
	got, err := legacyRLEDecode(data)
	if err != nil {
		t.Fatalf("legacyRLEDecode: %v", err)
	}
	want := "AAABB"
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

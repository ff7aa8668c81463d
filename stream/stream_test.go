// SPDX-License-Identifier: MIT

package stream

import (
	"encoding/binary"
	"os"
	"testing"
)

func int64Codec() Codec[int64] {
	return Codec[int64]{
		ToBytes: func(v int64) []byte {
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, uint64(v))
			return b
		},
		FromBytes: func(b []byte) int64 {
			return int64(binary.BigEndian.Uint64(b))
		},
	}
}

func TestStreamWriteRewindRead(t *testing.T) {
	s, err := New(t.TempDir(), int64Codec())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	want := []int64{1, -2, 42, 0, 1 << 40}
	for _, v := range want {
		if err := s.Write(v); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Rewind(); err != nil {
		t.Fatal(err)
	}
	var got []int64
	for {
		v, ok, err := s.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		got = append(got, v)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestCompressedStreamRoundTrip(t *testing.T) {
	s, err := NewCompressed(t.TempDir(), int64Codec())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	n := int64(5000)
	for v := int64(0); v < n; v++ {
		if err := s.Write(v); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Rewind(); err != nil {
		t.Fatal(err)
	}
	var next int64
	for {
		v, ok, err := s.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		if v != next {
			t.Fatalf("record %d: got %d", next, v)
		}
		next++
	}
	if next != n {
		t.Fatalf("read %d records, want %d", next, n)
	}
}

func TestStreamCloseDeletesByDefault(t *testing.T) {
	s, err := New(t.TempDir(), int64Codec())
	if err != nil {
		t.Fatal(err)
	}
	path := s.Path()
	if err := s.Write(1); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected backing file to be removed, stat err = %v", err)
	}
}

func TestStreamPersistentSurvivesClose(t *testing.T) {
	s, err := New(t.TempDir(), int64Codec())
	if err != nil {
		t.Fatal(err)
	}
	s.Persistent()
	path := s.Path()
	if err := s.Write(1); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected backing file to survive Close, got %v", err)
	}
	os.Remove(path)
}

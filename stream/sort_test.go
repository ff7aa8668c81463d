// SPDX-License-Identifier: MIT

package stream

import (
	"context"
	"encoding/binary"
	"math/rand"
	"testing"
)

type sortRec struct {
	Key int64
}

func (r sortRec) ToBytes() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(r.Key))
	return b
}

func sortRecFromBytes(b []byte) sortRec {
	return sortRec{Key: int64(binary.BigEndian.Uint64(b))}
}

func lessSortRec(a, b sortRec) bool { return a.Key < b.Key }

func TestSortSliceOrdersRecords(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	items := make([]sortRec, 10000)
	for i := range items {
		items[i] = sortRec{Key: int64(rng.Intn(1 << 20))}
	}

	srt := NewSort[sortRec](lessSortRec, sortRecFromBytes, 2)
	out, err := srt.SortSlice(context.Background(), items)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(items) {
		t.Fatalf("got %d records, want %d", len(out), len(items))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Key < out[i-1].Key {
			t.Fatalf("record %d out of order: %d after %d", i, out[i].Key, out[i-1].Key)
		}
	}
}

func TestSortSliceEmptyInput(t *testing.T) {
	srt := NewSort[sortRec](lessSortRec, sortRecFromBytes, 0)
	out, err := srt.SortSlice(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("got %d records, want 0", len(out))
	}
}

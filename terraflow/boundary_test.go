// SPDX-License-Identifier: MIT

package terraflow

import (
	"context"
	"testing"
)

func TestExtractBoundariesAndFillRaisesPit(t *testing.T) {
	// A single depression at (1,1)=1 inside a ring at 10, fully closed
	// off: filling should raise the pit to the ring elevation.
	grid := [][]float64{
		{10, 10, 10},
		{10, 1, 10},
		{10, 10, 10},
	}
	label := [][]Label{
		{0, 0, 0},
		{0, 5, 0},
		{0, 0, 0},
	}
	// Label 0 is reserved for BOUNDARY; use a distinct ring label so
	// the ring cells are not literally LabelBoundary.
	ring := Label(4)
	for i := range label {
		for j := range label[i] {
			if label[i][j] == 0 {
				label[i][j] = ring
			}
		}
	}

	edges, err := ExtractBoundaries(context.Background(), NewMemGrid(grid), label)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) == 0 {
		t.Fatal("expected at least one boundary edge")
	}

	fill := FillDepressions(edges, MaxLabel(label))
	if fill.Raise[5] != 10 {
		t.Errorf("Raise[pit] = %v, want 10", fill.Raise[5])
	}
	if len(fill.Islands) != 0 {
		t.Errorf("unexpected islands: %v", fill.Islands)
	}

	dst := NewEmptyMemGrid(3, 3)
	if err := CommitFilledElevation(NewMemGrid(grid), label, fill.Raise, dst); err != nil {
		t.Fatal(err)
	}
	if got := dst.Data()[1][1]; got != 10 {
		t.Errorf("filled pit elevation = %v, want 10", got)
	}
	if got := dst.Data()[0][0]; got != 10 {
		t.Errorf("ring elevation should pass through unchanged, got %v", got)
	}
}

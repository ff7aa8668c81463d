// SPDX-License-Identifier: MIT

package terraflow

import "testing"

func TestFindPlateausFlatRegionWithOneSpill(t *testing.T) {
	// A 3x3 flat plateau at 10.0, except the centre-east cell which is
	// 9.0 (the spill). Padded by a ring of higher ground so nothing
	// drains off the grid.
	grid := [][]float64{
		{20, 20, 20, 20, 20},
		{20, 10, 10, 10, 20},
		{20, 10, 10, 9, 20},
		{20, 10, 10, 10, 20},
		{20, 20, 20, 20, 20},
	}
	res, err := FindPlateaus(NewMemGrid(grid))
	if err != nil {
		t.Fatal(err)
	}

	centerLabel := res.Label[2][2]
	if centerLabel < FirstFreeLabel {
		t.Fatalf("center cell has no plateau label: %v", centerLabel)
	}
	for _, p := range [][2]int{{1, 1}, {1, 2}, {1, 3}, {2, 1}, {2, 2}, {3, 1}, {3, 2}, {3, 3}} {
		if got := res.Label[p[0]][p[1]]; got != centerLabel {
			t.Errorf("cell (%d,%d) label = %v, want %v", p[0], p[1], got, centerLabel)
		}
	}

	st := res.Stats[centerLabel]
	if st == nil {
		t.Fatal("missing stats for plateau label")
	}
	if st.Size != 8 {
		t.Errorf("Size = %d, want 8", st.Size)
	}
	if !st.HasSpill {
		t.Error("expected HasSpill true")
	}

	// The spill cell (row 2, col 3, value 9) is not part of the
	// plateau (it is strictly lower), and the plateau cell draining
	// into it must carry the escape bit toward the east.
	if res.Label[2][3] == centerLabel {
		t.Error("spill cell itself should not carry the plateau label")
	}
	if res.Dir[2][2]&DirE == 0 {
		t.Error("plateau cell adjacent to the spill should have an east escape bit")
	}
}

func TestFindPlateausEdgeAlwaysDrains(t *testing.T) {
	grid := [][]float64{
		{10, 10, 10},
		{10, 10, 10},
		{10, 10, 10},
	}
	res, err := FindPlateaus(NewMemGrid(grid))
	if err != nil {
		t.Fatal(err)
	}
	label := res.Label[0][0]
	if label < FirstFreeLabel {
		t.Fatal("expected the whole flat grid to be one plateau")
	}
	st := res.Stats[label]
	if st.Size != 9 {
		t.Errorf("Size = %d, want 9", st.Size)
	}
	if !st.HasSpill {
		t.Error("edge cells must automatically drain off the grid")
	}
	if res.Dir[0][0] == 0 {
		t.Error("corner cell should have an off-grid escape direction")
	}
}

func TestFindPlateausWithholdsEdgeBitsWhenRealSpillExists(t *testing.T) {
	// The §8 flat-plateau scenario: when the plateau already drains to a
	// strictly lower cell, its edge members must not also drain off the
	// grid — every member's flow belongs to the spill cell, and the
	// members without a lower neighbour wait for the BFS.
	grid := [][]float64{
		{10, 10, 10},
		{10, 10, 9},
		{10, 10, 10},
	}
	res, err := FindPlateaus(NewMemGrid(grid))
	if err != nil {
		t.Fatal(err)
	}
	lbl := res.Label[0][0]
	if lbl < FirstFreeLabel {
		t.Fatal("expected the eight 10.0 cells to form a plateau")
	}
	if !res.Stats[lbl].HasSpill {
		t.Fatal("plateau adjacent to the 9.0 cell must have spill")
	}
	for _, p := range [][2]int{{0, 0}, {1, 0}, {2, 0}} {
		if got := res.Dir[p[0]][p[1]]; got != 0 {
			t.Errorf("west-column cell (%d,%d) dir = %v, want 0 before the BFS", p[0], p[1], got)
		}
	}
	if res.Dir[1][1]&DirE == 0 {
		t.Error("the cell west of the spill must carry the east escape bit")
	}

	AssignDirections(res, false)
	for _, p := range [][2]int{{0, 0}, {1, 0}, {2, 0}} {
		if res.Dir[p[0]][p[1]] == 0 {
			t.Errorf("cell (%d,%d) never received a direction from the BFS", p[0], p[1])
		}
	}
}

func TestFindPlateausVoidCellsGetReservedLabels(t *testing.T) {
	grid := [][]float64{
		{nd, nd, nd},
		{nd, 10, nd},
		{nd, nd, nd},
	}
	res, err := FindPlateaus(NewMemGrid([][]float64{
		{float64(ElevationBoundary()), float64(ElevationBoundary()), float64(ElevationBoundary())},
		{float64(ElevationBoundary()), 10, float64(ElevationBoundary())},
		{float64(ElevationBoundary()), float64(ElevationBoundary()), float64(ElevationBoundary())},
	}))
	_ = grid
	if err != nil {
		t.Fatal(err)
	}
	if res.Label[0][0] != LabelBoundary {
		t.Errorf("void cell label = %v, want LabelBoundary", res.Label[0][0])
	}
	if res.Label[1][1] == LabelBoundary {
		t.Error("the single real cell should not be labeled boundary")
	}
}

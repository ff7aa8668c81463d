// SPDX-License-Identifier: MIT

package terraflow

import "testing"

func TestAssignDirectionsBFSPointsTowardSpill(t *testing.T) {
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
	AssignDirections(res, false)

	lbl := res.Label[1][1]
	// Every plateau member must end up with a nonzero direction once
	// BFS has propagated from the spill cell at (2,2) (adjacent to the
	// 9.0 sink at (2,3)).
	for i := 1; i <= 3; i++ {
		for j := 1; j <= 3; j++ {
			if res.Label[i][j] != lbl {
				continue
			}
			if res.Dir[i][j] == 0 {
				t.Errorf("cell (%d,%d) never received a direction from the BFS", i, j)
			}
		}
	}
	// The farthest corner from the spill should have a strictly larger
	// BFS depth than the spill cell itself.
	if res.Depth[1][1] <= res.Depth[2][2] {
		t.Errorf("Depth[1][1]=%d should exceed Depth[2][2]=%d", res.Depth[1][1], res.Depth[2][2])
	}
}

func TestAssignDirectionsPureDepressionStaysUndirected(t *testing.T) {
	grid := [][]float64{
		{20, 20, 20, 20, 20},
		{20, 10, 10, 10, 20},
		{20, 10, 10, 10, 20},
		{20, 10, 10, 10, 20},
		{20, 20, 20, 20, 20},
	}
	res, err := FindPlateaus(NewMemGrid(grid))
	if err != nil {
		t.Fatal(err)
	}
	lbl := res.Label[2][2]
	if res.Stats[lbl].HasSpill {
		t.Fatal("test setup expected a pure depression with no spill")
	}
	AssignDirections(res, false)
	if res.Dir[2][2] != 0 {
		t.Error("a pure depression must not get a direction from the BFS")
	}
}

func TestAssignDirectionsSFDPicksOneBit(t *testing.T) {
	grid := [][]float64{
		{5, 5, 5},
		{5, 10, 5},
		{5, 5, 5},
	}
	res, err := FindPlateaus(NewMemGrid(grid))
	if err != nil {
		t.Fatal(err)
	}
	AssignDirections(res, true)
	if got := res.Dir[1][1].Count(); got != 1 {
		t.Errorf("SFD direction bit count = %d, want 1", got)
	}
}

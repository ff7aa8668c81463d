// SPDX-License-Identifier: MIT

package terraflow

import "testing"

func TestSweepFlatPlateauDrainedAtOneEdge(t *testing.T) {
	// The scenario from §8: a 3x3 flat plateau at 10.0 except the
	// centre-east cell at 9.0; accumulation at the spill cell should
	// equal the number of cells draining into it (9, matching the
	// single-outlet scenario).
	grid := [][]float64{
		{10, 10, 10},
		{10, 10, 9},
		{10, 10, 10},
	}
	plateaus, err := FindPlateaus(NewMemGrid(grid))
	if err != nil {
		t.Fatal(err)
	}
	AssignDirections(plateaus, false)

	res, err := Sweep(NewMemGrid(grid), plateaus, 1e18, 1, 1, false, t.TempDir(), 1000)
	if err != nil {
		t.Fatal(err)
	}
	if res.Accum[1][2] != 9 {
		t.Errorf("Accum at spill cell = %v, want 9", res.Accum[1][2])
	}
	if res.TimeTravel != 0 {
		t.Errorf("TimeTravel = %d, want 0", res.TimeTravel)
	}
}

func TestSweepEveryCellGetsAtLeastUnitFlow(t *testing.T) {
	grid := [][]float64{
		{9, 8, 7},
		{8, 7, 6},
		{7, 6, 5},
	}
	plateaus, err := FindPlateaus(NewMemGrid(grid))
	if err != nil {
		t.Fatal(err)
	}
	AssignDirections(plateaus, false)

	res, err := Sweep(NewMemGrid(grid), plateaus, 1e18, 1, 1, true, t.TempDir(), 1000)
	if err != nil {
		t.Fatal(err)
	}
	for i := range res.Accum {
		for j := range res.Accum[i] {
			if res.Accum[i][j] < 1 {
				t.Errorf("Accum[%d][%d] = %v, want >= 1", i, j, res.Accum[i][j])
			}
		}
	}
	if res.TCI == nil {
		t.Fatal("expected TCI to be populated when requested")
	}
}

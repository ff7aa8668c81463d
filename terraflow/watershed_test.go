// SPDX-License-Identifier: MIT

package terraflow

import "testing"

func TestLabelWatershedsTwoBasins(t *testing.T) {
	// Two separate pits (at (1,1)=1 and (1,4)=2) in a 3x6 bowl, divided
	// by a ridge so they never share a basin.
	grid := [][]float64{
		{9, 9, 9, 9, 9, 9},
		{9, 1, 9, 9, 2, 9},
		{9, 9, 9, 9, 9, 9},
	}
	plateaus, err := FindPlateaus(NewMemGrid(grid))
	if err != nil {
		t.Fatal(err)
	}
	AssignDirections(plateaus, false)

	res, err := LabelWatersheds(NewMemGrid(grid), plateaus, t.TempDir(), 1000)
	if err != nil {
		t.Fatal(err)
	}

	l1 := res.Label[1][1]
	l2 := res.Label[1][4]
	if l1 == l2 {
		t.Fatalf("the two pits should be in different watersheds, both got %v", l1)
	}
	if l1 == LabelUndef || l2 == LabelUndef {
		t.Fatal("every real cell must end up labeled")
	}

	for i := range res.Label {
		for j := range res.Label[i] {
			if res.Label[i][j] == LabelUndef {
				t.Errorf("cell (%d,%d) left unlabeled", i, j)
			}
		}
	}
}

func TestLabelWatershedsSpillsUnderTightMemory(t *testing.T) {
	grid := make([][]float64, 20)
	for i := range grid {
		grid[i] = make([]float64, 20)
		for j := range grid[i] {
			grid[i][j] = float64(100 - i - j)
		}
	}
	plateaus, err := FindPlateaus(NewMemGrid(grid))
	if err != nil {
		t.Fatal(err)
	}
	AssignDirections(plateaus, false)

	res, err := LabelWatersheds(NewMemGrid(grid), plateaus, t.TempDir(), 4)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatal("expected a result even under a tight in-memory cap")
	}
}

package world

import "testing"

func TestGridCellCoordFloorsNegatives(t *testing.T) {
	cases := []struct {
		v    float64
		want int32
	}{
		{0, 0},
		{cellSize - 1, 0},
		{cellSize, 1},
		{-1, -1},
		{-cellSize, -1},
		{-cellSize - 1, -2},
	}
	for _, c := range cases {
		if got := toCellCoord(c.v); got != c.want {
			t.Fatalf("toCellCoord(%v) = %d, want %d", c.v, got, c.want)
		}
	}
}

func TestGridMoveRelocatesBetweenCells(t *testing.T) {
	g := NewGrid()
	oldPos := Vec3{X: 10, Y: 10, Z: 10}
	newPos := Vec3{X: cellSize * 3, Y: 10, Z: 10}

	g.Add(1, oldPos)
	g.Move(1, oldPos, newPos)

	ids := g.GatherInto(oldPos, 0, nil)
	if len(ids) != 0 {
		t.Fatalf("expected old cell empty after move, got %v", ids)
	}
	ids = g.GatherInto(newPos, 0, nil)
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("expected entity in new cell, got %v", ids)
	}
}

func TestGridMoveWithinCellKeepsEntry(t *testing.T) {
	g := NewGrid()
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: 4, Y: 5, Z: 6}

	g.Add(7, a)
	g.Move(7, a, b)

	ids := g.GatherInto(b, 0, nil)
	if len(ids) != 1 || ids[0] != 7 {
		t.Fatalf("expected entity still registered, got %v", ids)
	}
	if g.CellCount() != 1 {
		t.Fatalf("expected 1 cell, got %d", g.CellCount())
	}
}

func TestGridRemoveDropsEmptyCell(t *testing.T) {
	g := NewGrid()
	p := Vec3{X: 100, Y: 100, Z: 100}
	g.Add(1, p)
	g.Add(2, p)

	g.Remove(1, p)
	if g.CellCount() != 1 {
		t.Fatalf("expected cell retained while occupied, got %d cells", g.CellCount())
	}
	g.Remove(2, p)
	if g.CellCount() != 0 {
		t.Fatalf("expected empty cell deleted, got %d cells", g.CellCount())
	}
}

func TestGridGatherCoversNeighbourhood(t *testing.T) {
	g := NewGrid()
	center := Vec3{X: 0, Y: 0, Z: 0}
	near := Vec3{X: cellSize + 1, Y: 0, Z: 0}   // one cell over
	far := Vec3{X: cellSize * 5, Y: 0, Z: 0}    // outside radius 1
	g.Add(1, center)
	g.Add(2, near)
	g.Add(3, far)

	ids := g.GatherInto(center, 1, nil)
	seen := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[1] || !seen[2] || seen[3] {
		t.Fatalf("expected ids 1,2 only, got %v", ids)
	}
}

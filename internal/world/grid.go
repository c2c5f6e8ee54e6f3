package world

import "math"

// Grid implements a cell-based spatial index over entity positions.
// Cell size is chosen so a typical query sphere spans a small
// neighbourhood of cells. Accessed only from the radar loop goroutine —
// no locks.
//
// The grid is never authoritative: the Store's entity map is. The grid
// only narrows radius-query candidates to the cells that intersect the
// query volume.

const cellSize = 512.0 // world units, ~31 m

type cellKey struct {
	cx int32
	cy int32
	cz int32
}

func toCellCoord(v float64) int32 {
	return int32(math.Floor(v / cellSize))
}

func cellOf(p Vec3) cellKey {
	return cellKey{cx: toCellCoord(p.X), cy: toCellCoord(p.Y), cz: toCellCoord(p.Z)}
}

// Grid tracks which entity ids are in which cells.
type Grid struct {
	cells map[cellKey]map[uint64]struct{}
}

func NewGrid() *Grid {
	return &Grid{
		cells: make(map[cellKey]map[uint64]struct{}),
	}
}

// Add places an entity into the grid.
func (g *Grid) Add(id uint64, p Vec3) {
	k := cellOf(p)
	cell := g.cells[k]
	if cell == nil {
		cell = make(map[uint64]struct{})
		g.cells[k] = cell
	}
	cell[id] = struct{}{}
}

// Remove takes an entity out of the grid.
func (g *Grid) Remove(id uint64, p Vec3) {
	k := cellOf(p)
	cell := g.cells[k]
	if cell != nil {
		delete(cell, id)
		if len(cell) == 0 {
			delete(g.cells, k)
		}
	}
}

// Move updates an entity's cell when its position changes.
func (g *Grid) Move(id uint64, oldPos, newPos Vec3) {
	oldK := cellOf(oldPos)
	newK := cellOf(newPos)
	if oldK == newK {
		return
	}
	g.Remove(id, oldPos)
	g.Add(id, newPos)
}

// GatherInto appends all entity ids registered within cellRadius cells of
// center in each axis, reusing buf. The result is a superset of any
// sphere inscribed in that cube; the caller does exact distance
// filtering.
func (g *Grid) GatherInto(center Vec3, cellRadius int32, buf []uint64) []uint64 {
	c := cellOf(center)
	for dx := -cellRadius; dx <= cellRadius; dx++ {
		for dy := -cellRadius; dy <= cellRadius; dy++ {
			for dz := -cellRadius; dz <= cellRadius; dz++ {
				k := cellKey{cx: c.cx + dx, cy: c.cy + dy, cz: c.cz + dz}
				for id := range g.cells[k] {
					buf = append(buf, id)
				}
			}
		}
	}
	return buf
}

// CellCount returns the number of non-empty cells.
func (g *Grid) CellCount() int {
	return len(g.cells)
}

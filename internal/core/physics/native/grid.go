package native

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/zeusync/kinetic/internal/core/physics"
)

// cellKey addresses one broadphase cell.
type cellKey struct {
	x, y, z int32
}

// gridEntry is one collider-sized bounding sphere inserted into the grid.
type gridEntry struct {
	side   contactSide
	center mgl64.Vec3
	radius float64
}

// spatialGrid is a uniform hash grid broadphase. Each entry is inserted into
// every cell its bounding sphere touches; candidate pairs are entries
// sharing at least one cell.
type spatialGrid struct {
	cellSize float64
	cells    map[cellKey][]int
	entries  []gridEntry
}

func newSpatialGrid(cellSize float64) *spatialGrid {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &spatialGrid{
		cellSize: cellSize,
		cells:    make(map[cellKey][]int),
	}
}

func (g *spatialGrid) clear() {
	for key := range g.cells {
		delete(g.cells, key)
	}
	g.entries = g.entries[:0]
}

func (g *spatialGrid) insert(entry gridEntry) {
	idx := len(g.entries)
	g.entries = append(g.entries, entry)

	min := g.cellOf(entry.center.Sub(mgl64.Vec3{entry.radius, entry.radius, entry.radius}))
	max := g.cellOf(entry.center.Add(mgl64.Vec3{entry.radius, entry.radius, entry.radius}))
	for x := min.x; x <= max.x; x++ {
		for y := min.y; y <= max.y; y++ {
			for z := min.z; z <= max.z; z++ {
				key := cellKey{x, y, z}
				g.cells[key] = append(g.cells[key], idx)
			}
		}
	}
}

func (g *spatialGrid) cellOf(p mgl64.Vec3) cellKey {
	return cellKey{
		x: int32(math.Floor(p.X() / g.cellSize)),
		y: int32(math.Floor(p.Y() / g.cellSize)),
		z: int32(math.Floor(p.Z() / g.cellSize)),
	}
}

// candidatePairs returns the deduplicated set of entry index pairs that
// share a cell and belong to different bodies.
func (g *spatialGrid) candidatePairs() [][2]int {
	seen := make(map[uint64]struct{})
	var pairs [][2]int
	for _, indices := range g.cells {
		for i := 0; i < len(indices); i++ {
			for j := i + 1; j < len(indices); j++ {
				a, b := indices[i], indices[j]
				if g.entries[a].side.handle == g.entries[b].side.handle {
					continue
				}
				key := orderPair(g.entries[a].side, g.entries[b].side).key()
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				if a > b {
					a, b = b, a
				}
				pairs = append(pairs, [2]int{a, b})
			}
		}
	}
	return pairs
}

// overlaps reports whether any inserted entry overlaps a query sphere
// belonging to a different body. Used by sweep sampling.
func (g *spatialGrid) overlaps(owner physics.BodyHandle, center mgl64.Vec3, radius float64) bool {
	min := g.cellOf(center.Sub(mgl64.Vec3{radius, radius, radius}))
	max := g.cellOf(center.Add(mgl64.Vec3{radius, radius, radius}))
	for x := min.x; x <= max.x; x++ {
		for y := min.y; y <= max.y; y++ {
			for z := min.z; z <= max.z; z++ {
				for _, idx := range g.cells[cellKey{x, y, z}] {
					entry := g.entries[idx]
					if entry.side.handle == owner {
						continue
					}
					if entry.center.Sub(center).Len() < entry.radius+radius {
						return true
					}
				}
			}
		}
	}
	return false
}

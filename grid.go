package main

import "math"

const (
	TileSize = 20.0
	GridCols = 40
	GridRows = 30

	TankRadius  = 22.0 // hull disc used for wall tests
	TankMinDist = TankRadius * 2
	WorldWidth  = GridCols * TileSize
	WorldHeight = GridRows * TileSize
)

// Grid is the static tile map. Cells are either open (false) or wall (true).
// The layout is generated once at startup and never mutated afterwards.
type Grid struct {
	cells [GridRows][GridCols]bool
}

// SpawnZone is a rectangle of tiles forced open during generation.
type SpawnZone struct {
	R1, C1, R2, C2 int
}

// spawnZones are the clearings carved out of the pillar pattern: the four
// corners plus the center of the map.
var spawnZones = []SpawnZone{
	{1, 1, 5, 5},
	{1, GridCols - 6, 5, GridCols - 2},
	{GridRows - 6, 1, GridRows - 2, 5},
	{GridRows - 6, GridCols - 6, GridRows - 2, GridCols - 2},
	{12, 17, 17, 22},
}

// NewGrid builds the arena map: border walls, 2x2 pillar clusters every six
// tiles, and the spawn zones cleared back to open floor.
func NewGrid() *Grid {
	g := &Grid{}
	for r := 0; r < GridRows; r++ {
		for c := 0; c < GridCols; c++ {
			switch {
			case r == 0 || r == GridRows-1 || c == 0 || c == GridCols-1:
				g.cells[r][c] = true
			case r%6 == 0 && c%6 == 0,
				r%6 == 0 && (c-1)%6 == 0,
				(r-1)%6 == 0 && c%6 == 0,
				(r-1)%6 == 0 && (c-1)%6 == 0:
				g.cells[r][c] = true
			}
		}
	}
	for _, z := range spawnZones {
		g.clearZone(z)
	}
	return g
}

// clearZone forces a rectangle open, never touching the border walls.
func (g *Grid) clearZone(z SpawnZone) {
	for r := z.R1; r <= z.R2; r++ {
		for c := z.C1; c <= z.C2; c++ {
			if r > 0 && r < GridRows-1 && c > 0 && c < GridCols-1 {
				g.cells[r][c] = false
			}
		}
	}
}

// WallAt reports whether the tile at grid coordinates (r, c) is a wall.
// Out-of-range coordinates count as walls.
func (g *Grid) WallAt(r, c int) bool {
	if r < 0 || r >= GridRows || c < 0 || c >= GridCols {
		return true
	}
	return g.cells[r][c]
}

// IsWallAt reports whether a tank-sized disc centered at world coordinates
// (x, y) touches any wall tile or leaves the grid. Coordinates exactly on a
// cell boundary round toward the lower index.
func (g *Grid) IsWallAt(x, y float64) bool {
	minC := int(math.Floor((x - TankRadius) / TileSize))
	maxC := int(math.Floor((x + TankRadius) / TileSize))
	minR := int(math.Floor((y - TankRadius) / TileSize))
	maxR := int(math.Floor((y + TankRadius) / TileSize))

	for r := minR; r <= maxR; r++ {
		for c := minC; c <= maxC; c++ {
			if g.WallAt(r, c) {
				return true
			}
		}
	}
	return false
}

// Tiles returns the wall layout as rows of 0/1 for the client map payload.
func (g *Grid) Tiles() [][]int {
	tiles := make([][]int, GridRows)
	for r := 0; r < GridRows; r++ {
		tiles[r] = make([]int, GridCols)
		for c := 0; c < GridCols; c++ {
			if g.cells[r][c] {
				tiles[r][c] = 1
			}
		}
	}
	return tiles
}

// TankOverlap reports whether a tank placed at (x, y) would overlap any other
// living tank in the given player map. The tank identified by excludeID is
// skipped so a tank never collides with itself.
func TankOverlap(excludeID string, x, y float64, players map[string]*Tank) bool {
	for id, other := range players {
		if id == excludeID || other.Dead {
			continue
		}
		dx := x - other.X
		dy := y - other.Y
		if math.Sqrt(dx*dx+dy*dy) < TankMinDist {
			return true
		}
	}
	return false
}

// InBounds reports whether a point lies inside the playable world rectangle.
func InBounds(x, y float64) bool {
	return x >= 0 && x <= WorldWidth && y >= 0 && y <= WorldHeight
}

package main

import "testing"

func TestGridBordersAreWalls(t *testing.T) {
	g := NewGrid()
	for c := 0; c < GridCols; c++ {
		if !g.WallAt(0, c) || !g.WallAt(GridRows-1, c) {
			t.Fatalf("border row open at col %d", c)
		}
	}
	for r := 0; r < GridRows; r++ {
		if !g.WallAt(r, 0) || !g.WallAt(r, GridCols-1) {
			t.Fatalf("border col open at row %d", r)
		}
	}
}

func TestGridOutOfRangeIsWall(t *testing.T) {
	g := NewGrid()
	if !g.WallAt(-1, 5) || !g.WallAt(5, -1) || !g.WallAt(GridRows, 5) || !g.WallAt(5, GridCols) {
		t.Error("out-of-range cells should count as walls")
	}
}

func TestGridSpawnZonesAreClear(t *testing.T) {
	g := NewGrid()
	for _, z := range spawnZones {
		for r := z.R1; r <= z.R2; r++ {
			for c := z.C1; c <= z.C2; c++ {
				if r == 0 || r == GridRows-1 || c == 0 || c == GridCols-1 {
					continue
				}
				if g.WallAt(r, c) {
					t.Errorf("spawn zone cell (%d,%d) is a wall", r, c)
				}
			}
		}
	}
}

// Every disc position fully inside a spawn clearing must be wall-free.
func TestIsWallAtInsideSpawnZones(t *testing.T) {
	g := NewGrid()
	for _, z := range spawnZones {
		// Inset by the tank radius so the whole disc stays inside
		// the cleared rectangle.
		minX := float64(z.C1)*TileSize + TankRadius
		maxX := float64(z.C2+1)*TileSize - TankRadius - 1
		minY := float64(z.R1)*TileSize + TankRadius
		maxY := float64(z.R2+1)*TileSize - TankRadius - 1
		for y := minY; y <= maxY; y += 5 {
			for x := minX; x <= maxX; x += 5 {
				if g.IsWallAt(x, y) {
					t.Fatalf("IsWallAt(%v,%v) inside spawn zone %v", x, y, z)
				}
			}
		}
	}
}

func TestIsWallAtNearBorder(t *testing.T) {
	g := NewGrid()
	// Disc overlapping the left border wall.
	if !g.IsWallAt(TileSize+TankRadius-1, WorldHeight/2) {
		t.Error("disc touching border wall should report a wall")
	}
	// Far outside the grid entirely.
	if !g.IsWallAt(-100, -100) {
		t.Error("positions outside the grid should report a wall")
	}
}

func TestIsWallAtBoundaryRoundsDown(t *testing.T) {
	// A disc centered exactly on a cell boundary must floor toward the
	// lower index on both axes: identical results either side of an
	// epsilon below would indicate ceil/round behavior instead.
	x := 3 * TileSize // boundary between col 2 and col 3
	minC := int((x - TankRadius) / TileSize)
	if minC != 1 {
		t.Fatalf("expected floor to col 1, got %d", minC)
	}
}

func TestTankOverlap(t *testing.T) {
	players := map[string]*Tank{
		"a": {X: 100, Y: 100},
		"b": {X: 500, Y: 500},
	}

	if !TankOverlap("x", 110, 100, players) {
		t.Error("position within two radii of a tank should overlap")
	}
	if TankOverlap("x", 300, 300, players) {
		t.Error("clear position should not overlap")
	}
	// Excluded id never collides with itself.
	if TankOverlap("a", 100, 100, players) {
		t.Error("tank should not overlap itself")
	}
}

func TestTankOverlapIgnoresDead(t *testing.T) {
	players := map[string]*Tank{
		"a": {X: 100, Y: 100, Dead: true},
	}
	if TankOverlap("x", 100, 100, players) {
		t.Error("dead tanks should not block placement")
	}
}

func TestInBounds(t *testing.T) {
	if !InBounds(10, 10) {
		t.Error("inside point reported out of bounds")
	}
	if InBounds(-1, 10) || InBounds(10, -1) || InBounds(WorldWidth+1, 10) || InBounds(10, WorldHeight+1) {
		t.Error("outside point reported in bounds")
	}
}

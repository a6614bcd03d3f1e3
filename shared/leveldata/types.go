// Package leveldata provides TMX level parsing shared between client and
// server. Levels are flat arenas: the TMX grid is the XZ plane, seen from
// above, and walls are full-height blocks. Pure data only.
package leveldata

// Level holds everything the movement step needs from a level file, in world
// units (meters).
type Level struct {
	Name        string
	Width       float64 // X extent
	Depth       float64 // Z extent
	FloorHeight float64
	Walls       []Rect
	Pits        []Rect // floor cells that are missing
	Spawns      []Spawn
}

// Rect is an axis-aligned footprint on the XZ plane.
type Rect struct {
	X, Z, W, D float64
}

// Contains reports whether the point (x, z) lies inside r.
func (r Rect) Contains(x, z float64) bool {
	return x >= r.X && x < r.X+r.W && z >= r.Z && z < r.Z+r.D
}

// Spawn is a player start position and facing.
type Spawn struct {
	X, Z  float64
	Yaw   float64 // degrees
	Index int
}

// InPit reports whether (x, z) stands over a missing floor cell.
func (l *Level) InPit(x, z float64) bool {
	for _, p := range l.Pits {
		if p.Contains(x, z) {
			return true
		}
	}
	return false
}

// SpawnFor picks a spawn point for the n-th player, cycling through the
// level's spawns. The bool is false when the level has none.
func (l *Level) SpawnFor(n int) (Spawn, bool) {
	if len(l.Spawns) == 0 {
		return Spawn{}, false
	}
	if n < 0 {
		n = -n
	}
	return l.Spawns[n%len(l.Spawns)], true
}

package netcomponents

import (
	"github.com/automoto/ticksync/shared/sim"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/yohamta/donburi"
)

// NetTransformData is the Authority's latest published snapshot for an
// entity. Fields are plain arrays so the msgpack encoding stays stable.
type NetTransformData struct {
	Tick         uint32
	Position     [3]float64
	Orientation  [4]float64 // W, X, Y, Z
	Velocity     [3]float64
	Pitch        float64
	Grounded     bool
	Crouched     bool
	HasConverged bool
}

var NetTransform = donburi.NewComponentType[NetTransformData]()

// FromSnapshot flattens a snapshot for replication.
func FromSnapshot(s sim.Snapshot) NetTransformData {
	q := s.State.Orientation
	return NetTransformData{
		Tick:         s.Tick,
		Position:     s.State.Position,
		Orientation:  [4]float64{q.W, q.V[0], q.V[1], q.V[2]},
		Velocity:     s.State.Velocity,
		Pitch:        s.State.Pitch,
		Grounded:     s.State.Grounded,
		Crouched:     s.State.Crouched,
		HasConverged: s.HasConverged,
	}
}

// Snapshot rebuilds the published snapshot.
func (d NetTransformData) Snapshot() sim.Snapshot {
	return sim.Snapshot{
		Tick: d.Tick,
		State: sim.State{
			Position:    mgl64.Vec3(d.Position),
			Orientation: mgl64.Quat{W: d.Orientation[0], V: mgl64.Vec3{d.Orientation[1], d.Orientation[2], d.Orientation[3]}},
			Velocity:    mgl64.Vec3(d.Velocity),
			Pitch:       d.Pitch,
			Grounded:    d.Grounded,
			Crouched:    d.Crouched,
		},
		HasConverged: d.HasConverged,
	}
}

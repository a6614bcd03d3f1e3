// Package sim holds the tick-driven pieces shared by the predicting client and
// the Authority: the state carried between ticks, per-tick history and the
// fixed-rate scheduler.
package sim

import (
	"github.com/automoto/ticksync/shared/messages"
	"github.com/go-gl/mathgl/mgl64"
)

// State is everything the step function carries from one tick to the next.
// Position and Orientation form the replicated pose; the rest must also be
// replicated so a replay from an Authority baseline equals a fresh run.
type State struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
	Velocity    mgl64.Vec3
	Pitch       float64 // Camera pitch in degrees; yaw lives in Orientation
	Grounded    bool
	Crouched    bool
}

// NewState returns a state at rest at pos facing yaw degrees around +Y.
func NewState(pos mgl64.Vec3, yaw float64) State {
	return State{
		Position:    pos,
		Orientation: mgl64.QuatRotate(mgl64.DegToRad(yaw), mgl64.Vec3{0, 1, 0}),
		Grounded:    true,
	}
}

// Pose is the renderable part of a State.
type Pose struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

func (s State) Pose() Pose {
	return Pose{Position: s.Position, Orientation: s.Orientation}
}

// Snapshot is the result of simulating up to and including Tick.
// HasConverged separates a simulated tick from an empty slot or a spawn pose.
type Snapshot struct {
	Tick         uint32
	State        State
	HasConverged bool
}

// StepFunc advances state by one tick. It must be deterministic: the same
// (state, input) pair gives bit-identical output on every machine.
type StepFunc func(state State, input messages.InputSample) State

// PoseDistance returns the largest of the position distance and the
// orientation difference between two states.
func PoseDistance(a, b State) float64 {
	d := a.Position.Sub(b.Position).Len()
	// q and -q encode the same rotation.
	dot := a.Orientation.Dot(b.Orientation)
	if dot < 0 {
		dot = -dot
	}
	if od := 1 - dot; od > d {
		d = od
	}
	return d
}

// PoseEqual reports whether a and b agree within tolerance. A tolerance of 0
// demands exact equality.
func PoseEqual(a, b State, tolerance float64) bool {
	if tolerance <= 0 {
		return a.Position == b.Position && a.Orientation == b.Orientation
	}
	return PoseDistance(a, b) <= tolerance
}

package messages

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const moveEpsilon = 1e-9

// InputSample is one tick's worth of control intent. The client sends one per
// tick; both sides feed it to the same step function.
type InputSample struct {
	Tick   uint32
	Move   mgl64.Vec3 // Directional intent in the entity's local frame, |Move| <= 1
	Look   mgl64.Vec2 // X = yaw delta, Y = pitch delta
	Crouch bool       // Toggle
	Sprint bool       // Held
	Jump   bool       // Requested this tick
}

// NewInputSample builds a sample with the move vector clamped to unit length.
func NewInputSample(tick uint32, move mgl64.Vec3, look mgl64.Vec2) InputSample {
	return InputSample{
		Tick: tick,
		Move: ClampMove(move),
		Look: look,
	}
}

// Neutral returns a sample with no intent for the given tick.
func Neutral(tick uint32) InputSample {
	return InputSample{Tick: tick}
}

// Clamped returns a copy with Move clamped. The Authority calls this on every
// received sample since clients are not trusted to do it.
func (s InputSample) Clamped() InputSample {
	s.Move = ClampMove(s.Move)
	return s
}

// Finite reports whether every Move and Look component is a finite number.
// The Authority drops samples that are not.
func (s InputSample) Finite() bool {
	for _, v := range s.Move {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	for _, v := range s.Look {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// IsNeutral reports whether the sample carries no intent at all.
func (s InputSample) IsNeutral() bool {
	return s.Move == (mgl64.Vec3{}) && s.Look == (mgl64.Vec2{}) && !s.Crouch && !s.Sprint && !s.Jump
}

// ClampMove limits v to magnitude 1, keeping its direction. A vector that
// was already clamped passes through unchanged, so clamping twice is exact.
// A vector with a NaN or infinite component has no direction and becomes zero.
func ClampMove(v mgl64.Vec3) mgl64.Vec3 {
	l := v.Len()
	if math.IsNaN(l) || math.IsInf(l, 0) {
		return mgl64.Vec3{}
	}
	if l <= 1+moveEpsilon {
		return v
	}
	return v.Mul(1 / l)
}

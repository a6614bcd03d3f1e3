package network

import (
	"github.com/automoto/ticksync/shared/messages"
	"github.com/go-gl/mathgl/mgl64"
)

// Intent is what an input device reports for one frame.
type Intent struct {
	Move   mgl64.Vec3
	Look   mgl64.Vec2
	Crouch bool // pressed this frame
	Sprint bool // held
	Jump   bool // pressed this frame
}

// InputSource is polled once per rendered frame.
type InputSource interface {
	Poll() Intent
}

// InputSourceFunc adapts a function to InputSource.
type InputSourceFunc func() Intent

func (f InputSourceFunc) Poll() Intent {
	return f()
}

// InputLatch accumulates frame input until the next tick. Presses seen on any
// frame survive until the tick that consumes them; look deltas add up; move
// and sprint take the latest frame.
type InputLatch struct {
	move   mgl64.Vec3
	look   mgl64.Vec2
	crouch bool
	sprint bool
	jump   bool
}

// Observe folds one frame of input into the latch.
func (l *InputLatch) Observe(i Intent) {
	l.move = i.Move
	l.look = l.look.Add(i.Look)
	l.sprint = i.Sprint
	l.crouch = l.crouch || i.Crouch
	l.jump = l.jump || i.Jump
}

// Take builds the sample for tick and clears the latch.
func (l *InputLatch) Take(tick uint32) messages.InputSample {
	s := messages.NewInputSample(tick, l.move, l.look)
	s.Crouch = l.crouch
	s.Sprint = l.sprint
	s.Jump = l.jump
	*l = InputLatch{}
	return s
}

// Clear drops anything latched.
func (l *InputLatch) Clear() {
	*l = InputLatch{}
}

package netcomponents_test

import (
	"testing"

	"github.com/automoto/ticksync/shared/netcomponents"
	"github.com/automoto/ticksync/shared/sim"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

func TestTransformKeepsEveryCarriedField(t *testing.T) {
	state := sim.NewState(mgl64.Vec3{1, 2, 3}, 33)
	state.Velocity = mgl64.Vec3{-1, 0.5, 4}
	state.Pitch = -12
	state.Grounded = false
	state.Crouched = true
	snap := sim.Snapshot{Tick: 77, State: state, HasConverged: true}

	assert.Equal(t, snap, netcomponents.FromSnapshot(snap).Snapshot())
}

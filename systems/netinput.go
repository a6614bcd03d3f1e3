package systems

import (
	"github.com/automoto/ticksync/components"
	"github.com/automoto/ticksync/network"
	"github.com/automoto/ticksync/tags"
	"github.com/yohamta/donburi/ecs"
)

// NewNetworkInputSystem returns an ECS system that polls source once per
// frame and latches the result into the predictor. Nothing is sent here; the
// prediction system sends one sample per tick.
func NewNetworkInputSystem(source network.InputSource, predictor *network.Predictor) func(*ecs.ECS) {
	return func(e *ecs.ECS) {
		intent := source.Poll()
		predictor.Observe(intent)

		if entry, ok := tags.LocalPlayer.First(e.World); ok {
			in := components.Input.Get(entry)
			in.Last = intent
			in.Frames++
		}
	}
}

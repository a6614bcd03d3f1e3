package systems

import (
	"github.com/automoto/ticksync/components"
	"github.com/automoto/ticksync/network"
	"github.com/automoto/ticksync/shared/sim"
	"github.com/automoto/ticksync/tags"
	"github.com/yohamta/donburi/ecs"
)

// NetPrediction drives the local simulation from frame heartbeats. At most
// one tick runs per frame: the latched input is sampled, predicted and sent,
// then remote entities take their newest published pose.
type NetPrediction struct {
	Scheduler  *sim.Scheduler
	Predictor  *network.Predictor
	Replicator *network.Replicator
	// Gate holds prediction back while it returns false, e.g. until the
	// spawn baseline has arrived. nil never holds.
	Gate func() bool

	ticks uint64
}

func NewNetPrediction(scheduler *sim.Scheduler, predictor *network.Predictor, replicator *network.Replicator) *NetPrediction {
	return &NetPrediction{
		Scheduler:  scheduler,
		Predictor:  predictor,
		Replicator: replicator,
	}
}

// Update is the ECS system.
func (n *NetPrediction) Update(e *ecs.ECS) {
	clock, ok := components.Clock.First(e.World)
	if !ok {
		return
	}

	if n.Gate != nil && !n.Gate() {
		return
	}
	if n.Scheduler.Heartbeat(components.Clock.Get(clock).Elapsed) {
		n.Predictor.Advance(n.Predictor.SampleInput())
		n.Replicator.Step()
		n.ticks++
	}

	if entry, ok := tags.LocalPlayer.First(e.World); ok {
		tick := n.Predictor.Tick()
		if n.Predictor.Started() {
			tick--
		}
		components.Pose.Get(entry).Set(n.Predictor.State().Pose(), tick)
	}
}

// Ticks counts ticks run since construction.
func (n *NetPrediction) Ticks() uint64 {
	return n.ticks
}

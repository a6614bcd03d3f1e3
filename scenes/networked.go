package scenes

import (
	"time"

	"github.com/automoto/ticksync/archetypes"
	"github.com/automoto/ticksync/components"
	"github.com/automoto/ticksync/network"
	"github.com/automoto/ticksync/shared/messages"
	"github.com/automoto/ticksync/shared/netconfig"
	"github.com/automoto/ticksync/shared/sim"
	"github.com/automoto/ticksync/systems"
	"github.com/automoto/ticksync/tags"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
	"go.uber.org/zap"
)

// Options configure a NetworkedScene.
type Options struct {
	Step            sim.StepFunc
	Input           network.InputSource
	Locked          func() bool // input lock, e.g. a menu is open; may be nil
	PlayerName      string
	HistoryCapacity int
	Tolerance       float64
	StatsInterval   time.Duration
}

// NetworkedScene is a joined session: the local entity predicted and
// reconciled, every other entity replicated, all mirrored into an ECS world.
// Update must be called from a single goroutine.
type NetworkedScene struct {
	ecsWorld   *ecs.ECS
	transport  network.Transport
	accepted   messages.JoinAccepted
	logger     *zap.Logger
	predictor  *network.Predictor
	reconciler *network.Reconciler
	replicator *network.Replicator
	prediction *systems.NetPrediction
	hud        *systems.HUD
	clock      *donburi.Entry
	baseline   bool
}

func NewNetworkedScene(t network.Transport, accepted messages.JoinAccepted, opts Options, logger *zap.Logger) *NetworkedScene {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HistoryCapacity <= 0 {
		opts.HistoryCapacity = netconfig.DefaultHistoryCapacity
	}
	logger = logger.Named("client")

	predictor := network.NewPredictor(opts.Step, sim.NewHistory(opts.HistoryCapacity), t, opts.Locked, logger)
	predictor.Reset(sim.State{}, accepted.SpawnTick)
	replicator := network.NewReplicator()

	ns := &NetworkedScene{
		transport:  t,
		accepted:   accepted,
		logger:     logger,
		predictor:  predictor,
		reconciler: network.NewReconciler(predictor, opts.Tolerance, logger),
		replicator: replicator,
		prediction: systems.NewNetPrediction(sim.NewScheduler(netconfig.TickInterval(accepted.TickRate)), predictor, replicator),
	}
	ns.prediction.Gate = func() bool { return ns.baseline }
	ns.hud = systems.NewHUD(opts.StatsInterval, logger, ns.reconciler, ns.prediction)
	ns.configure(opts)
	return ns
}

func (ns *NetworkedScene) configure(opts Options) {
	ns.ecsWorld = ecs.NewECS(donburi.NewWorld())

	ns.clock = archetypes.Clock.Spawn(ns.ecsWorld)

	local := archetypes.LocalPlayer.Spawn(ns.ecsWorld)
	components.Player.SetValue(local, components.PlayerData{
		Name:        opts.PlayerName,
		ClientToken: ns.accepted.ClientToken,
		TickRate:    ns.accepted.TickRate,
	})
	components.NetEntity.SetValue(local, components.NetEntityData{ID: ns.accepted.EntityID, Local: true})

	ns.ecsWorld.AddSystem(systems.NewNetworkInputSystem(opts.Input, ns.predictor))
	ns.ecsWorld.AddSystem(ns.prediction.Update)
	ns.ecsWorld.AddSystem(systems.NewNetReplicateSystem(ns.replicator))
	if opts.StatsInterval > 0 {
		ns.ecsWorld.AddSystem(ns.hud.Update)
	}
}

// Update runs one frame: Authority publications first, then input,
// prediction and replication.
func (ns *NetworkedScene) Update(elapsed time.Duration) {
	clock := components.Clock.Get(ns.clock)
	clock.Elapsed = elapsed
	clock.Total += elapsed
	clock.Frame++

	ns.drain()
	ns.ecsWorld.Update()
}

func (ns *NetworkedScene) drain() {
	for _, pub := range network.Drain(ns.transport.Publications()) {
		if pub.EntityID != ns.accepted.EntityID {
			ns.replicator.Receive(pub.EntityID, pub.Snapshot)
			continue
		}
		res := ns.reconciler.OnAuthoritative(pub.Snapshot)
		if !ns.baseline && res.Outcome == network.OutcomeAdopted {
			ns.baseline = true
			ns.logger.Info("baseline adopted",
				zap.Uint64("entity", pub.EntityID),
				zap.Uint32("tick", ns.predictor.Tick()))
		}
	}

	for _, id := range network.Drain(ns.transport.Despawns()) {
		if id == ns.accepted.EntityID {
			ns.logger.Warn("local entity despawned", zap.Uint64("entity", id))
			continue
		}
		ns.replicator.Forget(id)
	}
}

// Rejoin continues the scene after the transport resumed its session.
// Prediction restarts from the tick the Authority hands out.
func (ns *NetworkedScene) Rejoin(accepted messages.JoinAccepted) {
	ns.accepted = accepted
	ns.baseline = false
	ns.predictor.Reset(ns.predictor.State(), accepted.SpawnTick)
	ns.reconciler.Reset()
	ns.prediction.Scheduler.Reset()

	if local, ok := tags.LocalPlayer.First(ns.ecsWorld.World); ok {
		components.NetEntity.Get(local).ID = accepted.EntityID
	}
}

// LogStats writes the HUD figures now.
func (ns *NetworkedScene) LogStats() {
	ns.hud.Log(ns.ecsWorld)
}

func (ns *NetworkedScene) World() donburi.World {
	return ns.ecsWorld.World
}

func (ns *NetworkedScene) Predictor() *network.Predictor {
	return ns.predictor
}

func (ns *NetworkedScene) Reconciler() *network.Reconciler {
	return ns.reconciler
}

func (ns *NetworkedScene) Replicator() *network.Replicator {
	return ns.replicator
}

// Ready reports whether the spawn baseline has arrived and prediction runs.
func (ns *NetworkedScene) Ready() bool {
	return ns.baseline
}

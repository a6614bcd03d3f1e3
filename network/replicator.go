package network

import (
	"sort"

	"github.com/automoto/ticksync/shared/sim"
)

type replica struct {
	latest  sim.Snapshot
	pending bool
	pose    sim.Pose
	tick    uint32
	shown   bool
}

// Replicator mirrors entities this client does not control. Each local tick
// the newest converged Authority snapshot becomes the rendered pose; there is
// no interpolation and no prediction.
type Replicator struct {
	replicas map[uint64]*replica
}

func NewReplicator() *Replicator {
	return &Replicator{replicas: make(map[uint64]*replica)}
}

// Receive stashes snap as the newest known state of entity id. Snapshots
// older than the stashed one are dropped.
func (r *Replicator) Receive(id uint64, snap sim.Snapshot) {
	rep, ok := r.replicas[id]
	if !ok {
		rep = &replica{}
		r.replicas[id] = rep
	}
	if rep.pending && snap.Tick < rep.latest.Tick {
		return
	}
	rep.latest = snap
	rep.pending = true
}

// Apply copies snap's pose onto entity id if snap has converged. It is
// idempotent and reports whether the pose was taken.
func (r *Replicator) Apply(id uint64, snap sim.Snapshot) bool {
	if !snap.HasConverged {
		return false
	}
	rep, ok := r.replicas[id]
	if !ok {
		rep = &replica{}
		r.replicas[id] = rep
	}
	rep.pose = snap.State.Pose()
	rep.tick = snap.Tick
	rep.shown = true
	return true
}

// Step applies every stashed snapshot. Called once per local tick.
func (r *Replicator) Step() {
	for id, rep := range r.replicas {
		if rep.pending {
			r.Apply(id, rep.latest)
		}
	}
}

// Pose returns the rendered pose of id. ok is false until a converged
// snapshot has been applied.
func (r *Replicator) Pose(id uint64) (sim.Pose, bool) {
	rep, ok := r.replicas[id]
	if !ok || !rep.shown {
		return sim.Pose{}, false
	}
	return rep.pose, true
}

// ShownTick is the Authority tick of the rendered pose of id.
func (r *Replicator) ShownTick(id uint64) uint32 {
	if rep, ok := r.replicas[id]; ok {
		return rep.tick
	}
	return 0
}

func (r *Replicator) Forget(id uint64) {
	delete(r.replicas, id)
}

// IDs lists known entities in ascending order.
func (r *Replicator) IDs() []uint64 {
	ids := make([]uint64, 0, len(r.replicas))
	for id := range r.replicas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Replicator) Len() int {
	return len(r.replicas)
}

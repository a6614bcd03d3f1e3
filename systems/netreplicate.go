package systems

import (
	"github.com/automoto/ticksync/archetypes"
	"github.com/automoto/ticksync/components"
	"github.com/automoto/ticksync/network"
	"github.com/automoto/ticksync/tags"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
)

// NewNetReplicateSystem mirrors the replicator into RemotePlayer entities.
// An entity appears once its Authority has converged and disappears when
// the replicator forgets it.
func NewNetReplicateSystem(r *network.Replicator) func(*ecs.ECS) {
	present := make(map[uint64]*donburi.Entry)

	return func(e *ecs.ECS) {
		clear(present)
		tags.RemotePlayer.Each(e.World, func(entry *donburi.Entry) {
			present[components.NetEntity.Get(entry).ID] = entry
		})

		for _, id := range r.IDs() {
			pose, ok := r.Pose(id)
			if !ok {
				continue
			}
			entry, exists := present[id]
			if !exists {
				entry = archetypes.RemotePlayer.Spawn(e)
				components.NetEntity.SetValue(entry, components.NetEntityData{ID: id})
			}
			delete(present, id)
			components.Pose.Get(entry).Set(pose, r.ShownTick(id))
		}

		for _, stale := range present {
			stale.Remove()
		}
	}
}

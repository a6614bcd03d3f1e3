package archetypes

import (
	"github.com/automoto/ticksync/components"
	"github.com/automoto/ticksync/tags"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
)

// LayerDefault is the only layer; the client is headless.
const LayerDefault ecs.LayerID = 0

var (
	LocalPlayer = newArchetype(
		tags.LocalPlayer,
		components.Player,
		components.NetEntity,
		components.Pose,
		components.Input,
	)
	RemotePlayer = newArchetype(
		tags.RemotePlayer,
		components.NetEntity,
		components.Pose,
	)
	Clock = newArchetype(
		components.Clock,
	)
)

type archetype struct {
	components []donburi.IComponentType
}

func newArchetype(cs ...donburi.IComponentType) *archetype {
	return &archetype{
		components: cs,
	}
}

func (a *archetype) Spawn(ecs *ecs.ECS, cs ...donburi.IComponentType) *donburi.Entry {
	e := ecs.World.Entry(ecs.Create(
		LayerDefault,
		append(a.components, cs...)...,
	))
	return e
}

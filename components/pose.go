package components

import (
	"math"

	"github.com/automoto/ticksync/shared/sim"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/yohamta/donburi"
)

// PoseData is what a renderer would draw for an entity.
type PoseData struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
	Tick        uint32 // tick the pose was simulated or published at
}

// Set copies a simulated pose.
func (p *PoseData) Set(pose sim.Pose, tick uint32) {
	p.Position = pose.Position
	p.Orientation = pose.Orientation
	p.Tick = tick
}

// Yaw returns the heading in degrees, assuming rotation about +Y only.
func (p *PoseData) Yaw() float64 {
	return mgl64.RadToDeg(2 * math.Atan2(p.Orientation.V.Y(), p.Orientation.W))
}

var Pose = donburi.NewComponentType[PoseData]()

// Package movement is the first-person character step shared by the
// predicting client and the Authority.
package movement

import (
	"math"

	"github.com/automoto/ticksync/shared/leveldata"
	"github.com/automoto/ticksync/shared/messages"
	"github.com/automoto/ticksync/shared/sim"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/solarlune/resolv"
)

// resolv works in integer-ish pixel units, so the XZ plane is mapped to
// centimeters.
const (
	resolvScale = 100.0
	resolvCell  = 25

	tagSolid = "solid"
	tagBody  = "body"
)

var up = mgl64.Vec3{0, 1, 0}

// Controller steps one character. It keeps a scratch collision body, so a
// Controller must only be used from one goroutine; build one per simulator.
type Controller struct {
	cfg   Config
	level *leveldata.Level
	space *resolv.Space
	body  *resolv.Object
}

// NewController builds a controller for level. A nil level gives an endless
// flat floor at height 0 with no walls.
func NewController(cfg Config, level *leveldata.Level) *Controller {
	c := &Controller{cfg: cfg, level: level}
	if level == nil {
		return c
	}

	c.space = resolv.NewSpace(
		int(math.Ceil(level.Width*resolvScale)),
		int(math.Ceil(level.Depth*resolvScale)),
		resolvCell, resolvCell,
	)
	for _, r := range level.Walls {
		w, d := r.W*resolvScale, r.D*resolvScale
		obj := resolv.NewObject(r.X*resolvScale, r.Z*resolvScale, w, d, tagSolid)
		obj.SetShape(resolv.NewRectangle(0, 0, w, d))
		c.space.Add(obj)
	}

	size := 2 * cfg.Radius * resolvScale
	c.body = resolv.NewObject(0, 0, size, size, tagBody)
	c.body.SetShape(resolv.NewRectangle(0, 0, size, size))
	c.space.Add(c.body)
	return c
}

func (c *Controller) Config() Config {
	return c.cfg
}

// Spawn returns the resting state for the n-th player to join.
func (c *Controller) Spawn(n int) sim.State {
	if c.level == nil {
		return sim.NewState(mgl64.Vec3{}, 0)
	}
	sp, ok := c.level.SpawnFor(n)
	if !ok {
		return sim.NewState(mgl64.Vec3{c.level.Width / 2, c.level.FloorHeight, c.level.Depth / 2}, 0)
	}
	return sim.NewState(mgl64.Vec3{sp.X, c.level.FloorHeight, sp.Z}, sp.Yaw)
}

// Step advances s by one tick. It satisfies sim.StepFunc.
func (c *Controller) Step(s sim.State, in messages.InputSample) sim.State {
	cfg := c.cfg
	dt := cfg.dt()

	if s.Position.Y() < cfg.KillHeight {
		respawn := c.Spawn(0)
		respawn.Orientation = s.Orientation
		return respawn
	}

	floor, hasFloor := c.floorAt(s.Position.X(), s.Position.Z())
	grounded := hasFloor && s.Velocity.Y() <= 0 && s.Position.Y() <= floor

	if in.Crouch {
		s.Crouched = !s.Crouched
	}

	yaw := mgl64.QuatRotate(mgl64.DegToRad(-in.Look.X()*cfg.RotationSpeed*dt), up)
	s.Orientation = yaw.Mul(s.Orientation).Normalize()
	s.Pitch = mgl64.Clamp(s.Pitch-in.Look.Y()*cfg.RotationSpeed*dt, cfg.PitchMin, cfg.PitchMax)

	speedModifier := 1.0
	if in.Sprint {
		s.Crouched = false
		speedModifier = cfg.SprintSpeedModifier
	}

	move := messages.ClampMove(in.Move)
	wish := s.Orientation.Rotate(mgl64.Vec3{move.X(), 0, move.Z()})
	wish[1] = 0

	v := s.Velocity
	if grounded {
		target := wish.Mul(cfg.MaxSpeedOnGround * speedModifier)
		if s.Crouched {
			target = target.Mul(cfg.MaxSpeedCrouchedRatio)
		}
		t := mgl64.Clamp(cfg.MovementSharpnessOnGround*dt, 0, 1)
		v = v.Add(target.Sub(v).Mul(t))

		if in.Jump {
			s.Crouched = false
			v[1] = cfg.JumpForce
		}
	} else {
		v = v.Add(wish.Mul(cfg.AccelerationSpeedInAir * dt))
		horizontal := mgl64.Vec3{v.X(), 0, v.Z()}
		if limit := cfg.MaxSpeedInAir * speedModifier; horizontal.Len() > limit {
			horizontal = horizontal.Normalize().Mul(limit)
		}
		v = mgl64.Vec3{horizontal.X(), v.Y() - cfg.GravityDownForce*dt, horizontal.Z()}
	}

	dx, dz, hitX, hitZ := c.sweep(s.Position, v.X()*dt, v.Z()*dt)
	if hitX {
		v[0] = 0
	}
	if hitZ {
		v[2] = 0
	}
	pos := mgl64.Vec3{s.Position.X() + dx, s.Position.Y() + v.Y()*dt, s.Position.Z() + dz}

	floor, hasFloor = c.floorAt(pos.X(), pos.Z())
	if hasFloor && v.Y() <= 0 && pos.Y() <= floor && s.Position.Y() >= floor-cfg.StepHeight {
		pos[1] = floor
		v[1] = 0
		s.Grounded = true
	} else {
		s.Grounded = false
	}

	s.Position = pos
	s.Velocity = v
	return s
}

func (c *Controller) floorAt(x, z float64) (float64, bool) {
	if c.level == nil {
		return 0, true
	}
	if c.level.InPit(x, z) {
		return 0, false
	}
	return c.level.FloorHeight, true
}

// sweep moves the collision body along X then Z, stopping at walls. It
// returns the allowed displacement in world units and which axes were blocked.
func (c *Controller) sweep(pos mgl64.Vec3, dx, dz float64) (float64, float64, bool, bool) {
	if c.space == nil {
		return dx, dz, false, false
	}

	r := c.cfg.Radius
	c.body.X = (pos.X() - r) * resolvScale
	c.body.Y = (pos.Z() - r) * resolvScale
	c.body.Update()

	var hitX, hitZ bool
	rdx := dx * resolvScale
	if rdx != 0 {
		if check := c.body.Check(rdx, 0, tagSolid); check != nil {
			if solids := check.ObjectsByTags(tagSolid); len(solids) > 0 {
				rdx = check.ContactWithObject(solids[0]).X()
				hitX = true
			}
		}
		c.body.X += rdx
		c.body.Update()
	}

	rdz := dz * resolvScale
	if rdz != 0 {
		if check := c.body.Check(0, rdz, tagSolid); check != nil {
			if solids := check.ObjectsByTags(tagSolid); len(solids) > 0 {
				rdz = check.ContactWithObject(solids[0]).Y()
				hitZ = true
			}
		}
		c.body.Y += rdz
		c.body.Update()
	}

	return rdx / resolvScale, rdz / resolvScale, hitX, hitZ
}

package movement

import "time"

// Config holds the character movement constants. Client and Authority must
// run with identical values or every tick diverges.
type Config struct {
	TickInterval time.Duration

	GravityDownForce          float64
	MaxSpeedOnGround          float64
	MovementSharpnessOnGround float64
	MaxSpeedCrouchedRatio     float64
	MaxSpeedInAir             float64
	AccelerationSpeedInAir    float64
	SprintSpeedModifier       float64
	JumpForce                 float64
	RotationSpeed             float64 // degrees per second per unit of look input
	PitchMin, PitchMax        float64 // degrees
	KillHeight                float64
	Radius                    float64
	StepHeight                float64 // how far below the floor a body can be and still land on it
}

// DefaultConfig returns the tuned first-person values at 60 ticks per second.
func DefaultConfig() Config {
	return Config{
		TickInterval:              time.Second / 60,
		GravityDownForce:          20,
		MaxSpeedOnGround:          13,
		MovementSharpnessOnGround: 15,
		MaxSpeedCrouchedRatio:     0.5,
		MaxSpeedInAir:             10,
		AccelerationSpeedInAir:    25,
		SprintSpeedModifier:       1.5,
		JumpForce:                 9,
		RotationSpeed:             200,
		PitchMin:                  -89,
		PitchMax:                  89,
		KillHeight:                -50,
		Radius:                    0.35,
		StepHeight:                0.3,
	}
}

func (c Config) dt() float64 {
	return c.TickInterval.Seconds()
}

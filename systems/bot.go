package systems

import (
	"math"

	"github.com/automoto/ticksync/network"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/rotisserie/eris"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// Scripted input patterns.
const (
	BotIdle   = "idle"   // no input
	BotCircle = "circle" // walk forward while turning
	BotStrafe = "strafe" // slide left and right, sprinting at the ends
	BotZigzag = "zigzag" // weave forward, jumping and crouching now and then
)

var ErrUnknownBot = eris.New("unknown bot pattern")

// Bot is an InputSource that plays a scripted pattern, one Poll per frame.
// Oscillating values come from a ring of tweens.
type Bot struct {
	pattern string
	dt      float32 // seconds per frame
	fps     uint64
	frames  uint64

	swing []*gween.Tween
	phase int
}

func NewBot(pattern string, frameRate int) (*Bot, error) {
	if frameRate <= 0 {
		return nil, eris.Errorf("bot frame rate %d must be positive", frameRate)
	}
	b := &Bot{
		pattern: pattern,
		dt:      1 / float32(frameRate),
		fps:     uint64(frameRate),
	}

	switch pattern {
	case BotIdle, BotCircle:
	case BotStrafe:
		b.swing = []*gween.Tween{
			gween.New(-1, 1, 1.5, ease.InOutQuad),
			gween.New(1, -1, 1.5, ease.InOutQuad),
		}
	case BotZigzag:
		b.swing = []*gween.Tween{
			gween.New(-1, 1, 0.75, ease.InOutSine),
			gween.New(1, -1, 0.75, ease.InOutSine),
		}
	default:
		return nil, eris.Wrap(ErrUnknownBot, pattern)
	}
	return b, nil
}

func (b *Bot) Poll() network.Intent {
	defer func() { b.frames++ }()

	switch b.pattern {
	case BotCircle:
		return network.Intent{
			Move: mgl64.Vec3{0, 0, -1},
			Look: mgl64.Vec2{0.2 * b.perFrame(), 0},
		}
	case BotStrafe:
		x := b.oscillate()
		return network.Intent{
			Move:   mgl64.Vec3{x, 0, 0},
			Sprint: math.Abs(x) > 0.8,
		}
	case BotZigzag:
		return network.Intent{
			Move:   mgl64.Vec3{0, 0, -1},
			Look:   mgl64.Vec2{0.6 * b.oscillate() * b.perFrame(), 0},
			Jump:   b.every(2),
			Crouch: b.every(5),
		}
	default:
		return network.Intent{}
	}
}

// perFrame scales a per-tick look rate at 60 ticks per second to one frame,
// since look deltas add up between ticks.
func (b *Bot) perFrame() float64 {
	return 60 / float64(b.fps)
}

// every reports true on one frame out of each period seconds.
func (b *Bot) every(seconds uint64) bool {
	return b.frames > 0 && b.frames%(seconds*b.fps) == 0
}

func (b *Bot) oscillate() float64 {
	v, done := b.swing[b.phase].Update(b.dt)
	if done {
		b.phase = (b.phase + 1) % len(b.swing)
		b.swing[b.phase].Reset()
	}
	return float64(v)
}

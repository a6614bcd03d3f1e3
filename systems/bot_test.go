package systems

import (
	"errors"
	"testing"

	"github.com/automoto/ticksync/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poll(b *Bot, n int) []network.Intent {
	out := make([]network.Intent, n)
	for i := range out {
		out[i] = b.Poll()
	}
	return out
}

func TestBotPatterns(t *testing.T) {
	t.Run("idle", func(t *testing.T) {
		b, err := NewBot(BotIdle, 60)
		require.NoError(t, err)
		for _, in := range poll(b, 120) {
			assert.Equal(t, network.Intent{}, in)
		}
	})

	t.Run("circle", func(t *testing.T) {
		b, err := NewBot(BotCircle, 120)
		require.NoError(t, err)
		in := b.Poll()
		assert.Equal(t, -1.0, in.Move.Z())
		assert.InDelta(t, 0.1, in.Look.X(), 1e-12, "look rate is split across frames")
	})

	t.Run("strafe swings both ways", func(t *testing.T) {
		b, err := NewBot(BotStrafe, 60)
		require.NoError(t, err)
		var minX, maxX float64
		sprinted := false
		for _, in := range poll(b, 240) {
			minX = min(minX, in.Move.X())
			maxX = max(maxX, in.Move.X())
			sprinted = sprinted || in.Sprint
			assert.LessOrEqual(t, in.Move.Len(), 1.0)
		}
		assert.Less(t, minX, -0.9)
		assert.Greater(t, maxX, 0.9)
		assert.True(t, sprinted)
	})

	t.Run("zigzag jumps and crouches on schedule", func(t *testing.T) {
		b, err := NewBot(BotZigzag, 30)
		require.NoError(t, err)
		var jumps, crouches []int
		for i, in := range poll(b, 301) {
			if in.Jump {
				jumps = append(jumps, i)
			}
			if in.Crouch {
				crouches = append(crouches, i)
			}
		}
		assert.Equal(t, []int{60, 120, 180, 240, 300}, jumps)
		assert.Equal(t, []int{150, 300}, crouches)
	})
}

func TestBotRejectsUnknownPattern(t *testing.T) {
	_, err := NewBot("moonwalk", 60)
	assert.True(t, errors.Is(err, ErrUnknownBot))

	_, err = NewBot(BotIdle, 0)
	assert.Error(t, err)
}

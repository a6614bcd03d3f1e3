package network

import (
	"errors"
	"testing"

	"github.com/automoto/ticksync/shared/messages"
	"github.com/automoto/ticksync/shared/sim"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	sent []messages.InputSample
	err  error
}

func (r *recordingSender) SendInput(in messages.InputSample) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, in)
	return nil
}

// doubleStep moves two units along the sampled move vector per tick.
func doubleStep(s sim.State, in messages.InputSample) sim.State {
	s.Position = s.Position.Add(in.Move.Mul(2))
	return s
}

func forward(tick uint32) messages.InputSample {
	return messages.NewInputSample(tick, mgl64.Vec3{1, 0, 0}, mgl64.Vec2{})
}

func TestLatchKeepsPressesUntilTick(t *testing.T) {
	var l InputLatch
	l.Observe(Intent{Move: mgl64.Vec3{0, 0, -1}, Look: mgl64.Vec2{1, 0}, Jump: true})
	l.Observe(Intent{Move: mgl64.Vec3{1, 0, 0}, Look: mgl64.Vec2{2, -1}, Sprint: true})
	l.Observe(Intent{Move: mgl64.Vec3{3, 0, 4}, Look: mgl64.Vec2{0.5, 0}, Sprint: true, Crouch: true})

	s := l.Take(12)
	assert.Equal(t, uint32(12), s.Tick)
	assert.True(t, s.Jump)
	assert.True(t, s.Crouch)
	assert.True(t, s.Sprint)
	assert.Equal(t, mgl64.Vec2{3.5, -1}, s.Look)
	assert.InDelta(t, 1.0, s.Move.Len(), 1e-12, "move is clamped")

	assert.True(t, l.Take(13).IsNeutral())
}

func TestAdvanceRecordsAndSends(t *testing.T) {
	sender := &recordingSender{}
	p := NewPredictor(doubleStep, sim.NewHistory(8), sender, nil, nil)
	p.Reset(sim.NewState(mgl64.Vec3{}, 0), 3)

	snap := p.Advance(forward(99))
	assert.Equal(t, uint32(3), snap.Tick, "sample is stamped with the current tick")
	assert.True(t, snap.HasConverged)
	assert.Equal(t, mgl64.Vec3{2, 0, 0}, p.State().Position)
	assert.Equal(t, uint32(4), p.Tick())
	assert.True(t, p.Started())

	in, ok := p.History().Input(3)
	require.True(t, ok)
	assert.Equal(t, uint32(3), in.Tick)
	recorded, ok := p.History().Snapshot(3)
	require.True(t, ok)
	assert.Equal(t, snap, recorded)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, in, sender.sent[0])
}

func TestAdvanceSurvivesSendFailure(t *testing.T) {
	sender := &recordingSender{err: errors.New("boom")}
	p := NewPredictor(doubleStep, sim.NewHistory(8), sender, nil, nil)

	p.Advance(forward(0))
	p.Advance(forward(1))
	assert.Equal(t, 2, p.SendFailures())
	assert.Equal(t, uint32(2), p.Tick())
	assert.Equal(t, mgl64.Vec3{4, 0, 0}, p.State().Position)
}

func TestLockedInputIsNeutral(t *testing.T) {
	locked := true
	p := NewPredictor(doubleStep, sim.NewHistory(8), nil, func() bool { return locked }, nil)
	p.Reset(sim.State{}, 7)

	p.Observe(Intent{Move: mgl64.Vec3{1, 0, 0}, Jump: true})
	s := p.SampleInput()
	assert.Equal(t, messages.Neutral(7), s)

	locked = false
	assert.True(t, p.SampleInput().IsNeutral(), "input seen while locked is discarded")

	p.Observe(Intent{Move: mgl64.Vec3{1, 0, 0}})
	assert.Equal(t, mgl64.Vec3{1, 0, 0}, p.SampleInput().Move)
}

func TestResetClearsHistory(t *testing.T) {
	p := NewPredictor(doubleStep, sim.NewHistory(8), nil, nil, nil)
	p.Advance(forward(0))
	p.Reset(sim.State{}, 100)

	assert.False(t, p.Started())
	assert.Equal(t, 0, p.History().Len())
	assert.Equal(t, uint32(100), p.Tick())
}

func TestOfferEvictsOldest(t *testing.T) {
	ch := make(chan int, 2)
	offer(ch, 1)
	offer(ch, 2)
	offer(ch, 3)
	assert.Equal(t, []int{2, 3}, Drain[int](ch))
	assert.Empty(t, Drain[int](ch))
}

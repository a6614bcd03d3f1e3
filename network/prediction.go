package network

import (
	"github.com/automoto/ticksync/shared/messages"
	"github.com/automoto/ticksync/shared/sim"
	"go.uber.org/zap"
)

// InputSender forwards one tick's input to the Authority.
type InputSender interface {
	SendInput(messages.InputSample) error
}

// Predictor is the controlling client's side of the simulation. It steps the
// local state every tick from sampled input, records input and result in its
// history and sends the input to the Authority.
//
// A Predictor is driven from a single goroutine together with its Reconciler.
type Predictor struct {
	step    sim.StepFunc
	history *sim.History
	sender  InputSender
	locked  func() bool
	logger  *zap.Logger

	latch   InputLatch
	state   sim.State
	tick    uint32
	started bool

	sendFailures int
}

// NewPredictor wires a predictor. locked may be nil; when it returns true,
// sampled input is neutral.
func NewPredictor(step sim.StepFunc, history *sim.History, sender InputSender, locked func() bool, logger *zap.Logger) *Predictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locked == nil {
		locked = func() bool { return false }
	}
	return &Predictor{
		step:    step,
		history: history,
		sender:  sender,
		locked:  locked,
		logger:  logger,
	}
}

// Reset starts prediction over from state at tick.
func (p *Predictor) Reset(state sim.State, tick uint32) {
	p.state = state
	p.tick = tick
	p.started = false
	p.latch.Clear()
	p.history.Reset()
}

// Observe feeds one frame of device input into the per-tick latch.
func (p *Predictor) Observe(i Intent) {
	p.latch.Observe(i)
}

// SampleInput returns the input for the current tick. While input is locked
// the sample is neutral and anything latched is discarded.
func (p *Predictor) SampleInput() messages.InputSample {
	if p.locked() {
		p.latch.Clear()
		return messages.Neutral(p.tick)
	}
	return p.latch.Take(p.tick)
}

// Advance steps the local state with sample, records the result under the
// current tick, sends sample to the Authority and moves to the next tick.
// A failed send is logged; the simulation never waits on the network.
func (p *Predictor) Advance(sample messages.InputSample) sim.Snapshot {
	sample.Tick = p.tick
	p.state = p.step(p.state, sample)

	snap := sim.Snapshot{Tick: p.tick, State: p.state, HasConverged: true}
	p.history.Record(sample, snap)

	if p.sender != nil {
		if err := p.sender.SendInput(sample); err != nil {
			p.sendFailures++
			p.logger.Debug("send input failed", zap.Uint32("tick", p.tick), zap.Error(err))
		}
	}

	p.tick++
	p.started = true
	return snap
}

// Tick is the tick the next Advance will simulate.
func (p *Predictor) Tick() uint32 {
	return p.tick
}

// State is the live predicted state.
func (p *Predictor) State() sim.State {
	return p.state
}

func (p *Predictor) History() *sim.History {
	return p.history
}

// Started reports whether any tick has been predicted since the last Reset.
func (p *Predictor) Started() bool {
	return p.started
}

func (p *Predictor) SendFailures() int {
	return p.sendFailures
}

package core

import (
	"github.com/automoto/ticksync/shared/messages"
	"github.com/automoto/ticksync/shared/sim"
)

// Publisher receives every snapshot an Authority produces.
type Publisher interface {
	Publish(entityID uint64, owner string, snap sim.Snapshot)
}

// Authority owns the canonical state of one entity. It advances only when an
// input arrives, so a lost input is a tick the Authority never simulates.
// Not safe for concurrent use; the game loop goroutine owns it.
type Authority struct {
	id      uint64
	owner   string
	step    sim.StepFunc
	history *sim.History
	pub     Publisher

	state     sim.State
	published sim.Snapshot
	last      uint32
	started   bool
	stale     int
	invalid   int
}

func NewAuthority(id uint64, owner string, spawn sim.State, step sim.StepFunc, history *sim.History, pub Publisher) *Authority {
	return &Authority{
		id:        id,
		owner:     owner,
		step:      step,
		history:   history,
		pub:       pub,
		state:     spawn,
		published: sim.Snapshot{State: spawn},
	}
}

// Spawn publishes the spawn pose. It has not converged, so observers keep it
// out of their rendered pose until the first processed input.
func (a *Authority) Spawn() {
	a.pub.Publish(a.id, a.owner, a.published)
}

// ReceiveInput simulates one tick from in and publishes the result. Inputs
// not newer than the last processed tick, or carrying a NaN or infinite
// Move or Look, are dropped and false is returned.
func (a *Authority) ReceiveInput(in messages.InputSample) bool {
	if !in.Finite() {
		a.invalid++
		return false
	}
	if a.started && in.Tick <= a.last {
		a.stale++
		return false
	}
	in = in.Clamped()

	a.state = a.step(a.state, in)
	snap := sim.Snapshot{Tick: in.Tick, State: a.state, HasConverged: true}
	a.history.Record(in, snap)
	a.last = in.Tick
	a.started = true
	a.published = snap

	a.pub.Publish(a.id, a.owner, snap)
	return true
}

// Republish sends the latest snapshot again, for a client resuming a session.
func (a *Authority) Republish() {
	a.pub.Publish(a.id, a.owner, a.published)
}

// NextTick is the first tick a (re)joining client should predict.
func (a *Authority) NextTick() uint32 {
	if !a.started {
		return 0
	}
	return a.last + 1
}

func (a *Authority) ID() uint64 {
	return a.id
}

func (a *Authority) Owner() string {
	return a.owner
}

func (a *Authority) State() sim.State {
	return a.state
}

// Snapshot is the most recently published snapshot.
func (a *Authority) Snapshot() sim.Snapshot {
	return a.published
}

func (a *Authority) History() *sim.History {
	return a.history
}

// Stale counts inputs dropped for arriving out of order or twice.
func (a *Authority) Stale() int {
	return a.stale
}

// Invalid counts inputs dropped for non-finite values.
func (a *Authority) Invalid() int {
	return a.invalid
}

package sim

import "github.com/automoto/ticksync/shared/messages"

type inputSlot struct {
	sample  messages.InputSample
	written bool
}

// History is a fixed-capacity ring of per-tick inputs and snapshots indexed
// by tick % capacity. A slot only answers for the tick it was written with,
// so a lookup of an overwritten or never-written tick reports false.
//
// History is not safe for concurrent use; it belongs to a single simulator.
type History struct {
	inputs    []inputSlot
	snapshots []Snapshot
	latest    uint32
	filled    bool
}

// NewHistory allocates a buffer holding the most recent capacity ticks.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		panic("sim: history capacity must be positive")
	}
	return &History{
		inputs:    make([]inputSlot, capacity),
		snapshots: make([]Snapshot, capacity),
	}
}

func (h *History) Capacity() int {
	return len(h.inputs)
}

func (h *History) index(tick uint32) int {
	return int(tick % uint32(len(h.inputs)))
}

// Record stores the sample and its resulting snapshot at the sample's tick.
func (h *History) Record(sample messages.InputSample, snap Snapshot) {
	h.PutInput(sample)
	h.PutSnapshot(snap)
}

// PutInput stores sample in its tick's slot, replacing whatever was there.
func (h *History) PutInput(sample messages.InputSample) {
	h.inputs[h.index(sample.Tick)] = inputSlot{sample: sample, written: true}
	h.advance(sample.Tick)
}

// PutSnapshot replaces the snapshot slot for snap.Tick as a whole.
func (h *History) PutSnapshot(snap Snapshot) {
	h.snapshots[h.index(snap.Tick)] = snap
	h.advance(snap.Tick)
}

func (h *History) advance(tick uint32) {
	if !h.filled || tick > h.latest {
		h.latest = tick
		h.filled = true
	}
}

// Input returns the sample recorded for tick, if that slot still holds it.
func (h *History) Input(tick uint32) (messages.InputSample, bool) {
	slot := h.inputs[h.index(tick)]
	if !slot.written || slot.sample.Tick != tick {
		return messages.InputSample{}, false
	}
	return slot.sample, true
}

// Snapshot returns the converged snapshot recorded for tick, if that slot
// still holds it.
func (h *History) Snapshot(tick uint32) (Snapshot, bool) {
	snap := h.snapshots[h.index(tick)]
	if !snap.HasConverged || snap.Tick != tick {
		return Snapshot{}, false
	}
	return snap, true
}

// Latest returns the newest tick written, and false while empty.
func (h *History) Latest() (uint32, bool) {
	return h.latest, h.filled
}

// Len counts slots currently holding a converged snapshot.
func (h *History) Len() int {
	n := 0
	for _, s := range h.snapshots {
		if s.HasConverged {
			n++
		}
	}
	return n
}

// Reset empties every slot.
func (h *History) Reset() {
	clear(h.inputs)
	clear(h.snapshots)
	h.latest = 0
	h.filled = false
}

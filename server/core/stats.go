package core

import "sync/atomic"

// Stats are server-wide counters. Transports and the game loop update them
// concurrently.
type Stats struct {
	Joins         atomic.Uint64
	Resumes       atomic.Uint64
	Rejects       atomic.Uint64
	Inputs        atomic.Uint64
	StaleInputs   atomic.Uint64
	InvalidInputs atomic.Uint64
	RateLimited   atomic.Uint64
	QueueDrops    atomic.Uint64
	Publications  atomic.Uint64
	Despawns      atomic.Uint64
	Ticks         atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats for reporting.
type StatsSnapshot struct {
	Joins         uint64 `json:"joins"`
	Resumes       uint64 `json:"resumes"`
	Rejects       uint64 `json:"rejects"`
	Inputs        uint64 `json:"inputs"`
	StaleInputs   uint64 `json:"staleInputs"`
	InvalidInputs uint64 `json:"invalidInputs"`
	RateLimited   uint64 `json:"rateLimited"`
	QueueDrops    uint64 `json:"queueDrops"`
	Publications  uint64 `json:"publications"`
	Despawns      uint64 `json:"despawns"`
	Ticks         uint64 `json:"ticks"`
	Entities      int    `json:"entities"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Joins:         s.Joins.Load(),
		Resumes:       s.Resumes.Load(),
		Rejects:       s.Rejects.Load(),
		Inputs:        s.Inputs.Load(),
		StaleInputs:   s.StaleInputs.Load(),
		InvalidInputs: s.InvalidInputs.Load(),
		RateLimited:   s.RateLimited.Load(),
		QueueDrops:    s.QueueDrops.Load(),
		Publications:  s.Publications.Load(),
		Despawns:      s.Despawns.Load(),
		Ticks:         s.Ticks.Load(),
	}
}

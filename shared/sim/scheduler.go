package sim

import "time"

// Scheduler turns wall-clock heartbeats into fixed-rate ticks.
//
// Each Heartbeat fires at most one tick, even if several intervals have
// accumulated. A client that falls behind drifts instead of bursting.
type Scheduler struct {
	interval    time.Duration
	accumulated time.Duration
}

// NewScheduler returns a scheduler for the given tick interval.
func NewScheduler(interval time.Duration) *Scheduler {
	if interval <= 0 {
		panic("sim: tick interval must be positive")
	}
	return &Scheduler{interval: interval}
}

// Heartbeat adds elapsed wall time and reports whether a tick is due.
func (s *Scheduler) Heartbeat(elapsed time.Duration) bool {
	if elapsed > 0 {
		s.accumulated += elapsed
	}
	if s.accumulated > s.interval {
		s.accumulated -= s.interval
		return true
	}
	return false
}

func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

func (s *Scheduler) Accumulated() time.Duration {
	return s.accumulated
}

// Reset clears the accumulator, e.g. after a reconnect.
func (s *Scheduler) Reset() {
	s.accumulated = 0
}

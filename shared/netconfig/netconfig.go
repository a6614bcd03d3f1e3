// Package netconfig defines lightweight constants shared between client and
// server. It must stay dependency-free so every binary can import it.
package netconfig

import "time"

const (
	// DefaultTickRate is the simulation rate both sides agree on at join.
	DefaultTickRate = 60

	// MinTickRate and MaxTickRate bound what the Authority accepts in a join.
	MinTickRate = 10
	MaxTickRate = 240

	// DefaultHistoryCapacity must exceed the worst round trip in ticks.
	// 1024 ticks is ~17s at 60Hz.
	DefaultHistoryCapacity = 1024

	// DefaultTolerance is the pose distance under which a local prediction is
	// considered equal to the Authority's.
	DefaultTolerance = 1e-4

	// ProtocolVersion is checked by the Authority when a client joins.
	ProtocolVersion = "1"
)

// TickInterval converts a tick rate into the scheduler interval.
func TickInterval(rate int) time.Duration {
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return time.Second / time.Duration(rate)
}

// ValidTickRate reports whether rate falls within the accepted range.
func ValidTickRate(rate int) bool {
	return rate >= MinTickRate && rate <= MaxTickRate
}

// TransportKind selects how a client reaches the Authority.
type TransportKind string

const (
	TransportWS       TransportKind = "ws"
	TransportKCP      TransportKind = "kcp"
	TransportLoopback TransportKind = "loopback"
)

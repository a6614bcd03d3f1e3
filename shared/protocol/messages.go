package protocol

import "github.com/automoto/ticksync/shared/sim"

// Kind tags the body of a framed KCP message.
type Kind uint8

const (
	KindJoinRequest Kind = iota + 1
	KindJoinAccepted
	KindJoinRejected
	KindInput
	KindPublication
	KindDespawn
	KindPing
	KindPong
)

func (k Kind) String() string {
	switch k {
	case KindJoinRequest:
		return "join_request"
	case KindJoinAccepted:
		return "join_accepted"
	case KindJoinRejected:
		return "join_rejected"
	case KindInput:
		return "input"
	case KindPublication:
		return "publication"
	case KindDespawn:
		return "despawn"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	default:
		return "unknown"
	}
}

// Publication is one entity's Authority snapshot as seen by observers.
type Publication struct {
	EntityID uint64
	Owner    string // client token of the controlling client
	Snapshot sim.Snapshot
}

// Despawn tells observers an entity left.
type Despawn struct {
	EntityID uint64
}

// Ping carries the sender's clock; the receiver answers with a Pong holding
// the same value.
type Ping struct {
	SentAt int64 // unix nanos
}

type Pong struct {
	SentAt int64
}

// Sink receives what an Authority broadcasts. KCP sessions and loopback
// clients are sinks; necs WebSocket clients get the same data through esync.
type Sink interface {
	Publish(Publication)
	Despawn(entityID uint64)
}

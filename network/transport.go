package network

import (
	"context"

	"github.com/automoto/ticksync/shared/messages"
	"github.com/automoto/ticksync/shared/protocol"
	"github.com/rotisserie/eris"
)

var (
	ErrNotConnected     = eris.New("not connected")
	ErrRejected         = eris.New("join rejected")
	ErrJoinTimeout      = eris.New("timed out waiting for join")
	ErrTickRateMismatch = eris.New("tick rate mismatch")
)

// Transport is the controlling client's link to the Authority. Publications
// and Despawns are drained by the goroutine that drives the Predictor.
type Transport interface {
	InputSender
	// Join blocks until the Authority has accepted or rejected req.
	Join(ctx context.Context, req messages.JoinRequest) (messages.JoinAccepted, error)
	Publications() <-chan protocol.Publication
	Despawns() <-chan uint64
	Close() error
}

// offer pushes v without blocking, evicting the oldest queued value when the
// channel is full.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Drain returns everything queued on ch without blocking.
func Drain[T any](ch <-chan T) []T {
	var out []T
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		default:
			return out
		}
	}
}

func rejection(reason string) error {
	if reason == messages.RejectTickRate {
		return eris.Wrap(ErrTickRateMismatch, reason)
	}
	return eris.Wrap(ErrRejected, reason)
}

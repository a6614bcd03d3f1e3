package network

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/automoto/ticksync/shared/messages"
	"github.com/automoto/ticksync/shared/protocol"
)

// LoopbackHost is the in-process Authority a Loopback talks to.
type LoopbackHost interface {
	Join(ctx context.Context, req messages.JoinRequest, sink protocol.Sink) (messages.JoinAccepted, error)
	SubmitInput(entityID uint64, in messages.InputSample) bool
	Leave(entityID uint64, sink protocol.Sink)
}

// LoopbackOptions shape the simulated link. Loss applies independently to
// each input and each publication.
type LoopbackOptions struct {
	Latency time.Duration
	Loss    float64
	Seed    uint64
}

// Loopback connects a client to an Authority in the same process. It is used
// for host mode and for end-to-end tests.
type Loopback struct {
	host LoopbackHost
	opts LoopbackOptions

	rngMu sync.Mutex
	rng   *rand.Rand

	entity atomic.Uint64
	joined atomic.Bool
	closed atomic.Bool

	lostInputs       atomic.Int64
	lostPublications atomic.Int64

	publications chan protocol.Publication
	despawns     chan uint64

	// Delayed deliveries run in order on one goroutine.
	queueMu   sync.Mutex
	queue     []delivery
	wake      chan struct{}
	stop      chan struct{}
	startOnce sync.Once
}

type delivery struct {
	due time.Time
	fn  func()
}

func NewLoopback(host LoopbackHost, opts LoopbackOptions) *Loopback {
	return &Loopback{
		host:         host,
		opts:         opts,
		rng:          rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		publications: make(chan protocol.Publication, 1024),
		despawns:     make(chan uint64, 64),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
}

func (l *Loopback) Join(ctx context.Context, req messages.JoinRequest) (messages.JoinAccepted, error) {
	accepted, err := l.host.Join(ctx, req, l)
	if err != nil {
		var r interface{ RejectReason() string }
		if errors.As(err, &r) {
			return messages.JoinAccepted{}, rejection(r.RejectReason())
		}
		return messages.JoinAccepted{}, err
	}
	l.entity.Store(accepted.EntityID)
	l.joined.Store(true)
	return accepted, nil
}

// SendInput delivers in to the Authority after the configured latency,
// unless the link drops it.
func (l *Loopback) SendInput(in messages.InputSample) error {
	if !l.joined.Load() || l.closed.Load() {
		return ErrNotConnected
	}
	if l.lose() {
		l.lostInputs.Add(1)
		return nil
	}
	id := l.entity.Load()
	l.after(func() { l.host.SubmitInput(id, in) })
	return nil
}

// Publish is called by the Authority side.
func (l *Loopback) Publish(pub protocol.Publication) {
	if l.closed.Load() {
		return
	}
	if l.lose() {
		l.lostPublications.Add(1)
		return
	}
	l.after(func() { offer(l.publications, pub) })
}

func (l *Loopback) Despawn(entityID uint64) {
	if l.closed.Load() {
		return
	}
	l.after(func() { offer(l.despawns, entityID) })
}

func (l *Loopback) Publications() <-chan protocol.Publication {
	return l.publications
}

func (l *Loopback) Despawns() <-chan uint64 {
	return l.despawns
}

func (l *Loopback) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	close(l.stop)
	if l.joined.Load() {
		l.host.Leave(l.entity.Load(), l)
	}
	return nil
}

// Lost reports how many inputs and publications the link dropped.
func (l *Loopback) Lost() (inputs, publications int64) {
	return l.lostInputs.Load(), l.lostPublications.Load()
}

func (l *Loopback) lose() bool {
	if l.opts.Loss <= 0 {
		return false
	}
	l.rngMu.Lock()
	defer l.rngMu.Unlock()
	return l.rng.Float64() < l.opts.Loss
}

// after runs fn once the configured latency has passed. Every delivery has
// the same delay, so queue order is arrival order.
func (l *Loopback) after(fn func()) {
	if l.opts.Latency <= 0 {
		fn()
		return
	}
	l.startOnce.Do(func() { go l.deliver() })

	l.queueMu.Lock()
	l.queue = append(l.queue, delivery{due: time.Now().Add(l.opts.Latency), fn: fn})
	l.queueMu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// deliver drains the queue until Close. Anything still queued then is lost
// with the link.
func (l *Loopback) deliver() {
	for {
		l.queueMu.Lock()
		if len(l.queue) == 0 {
			l.queueMu.Unlock()
			select {
			case <-l.wake:
				continue
			case <-l.stop:
				return
			}
		}
		next := l.queue[0]
		wait := time.Until(next.due)
		if wait <= 0 {
			l.queue[0] = delivery{}
			l.queue = l.queue[1:]
		}
		l.queueMu.Unlock()

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-l.stop:
				timer.Stop()
				return
			}
			continue
		}

		select {
		case <-l.stop:
			return
		default:
		}
		next.fn()
	}
}

package network

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/automoto/ticksync/shared/messages"
	"github.com/automoto/ticksync/shared/protocol"
	"github.com/automoto/ticksync/shared/sim"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHost accepts every join and remembers input ticks in arrival order.
type recordingHost struct {
	mu    sync.Mutex
	ticks []uint32
}

func (h *recordingHost) Join(_ context.Context, req messages.JoinRequest, _ protocol.Sink) (messages.JoinAccepted, error) {
	return messages.JoinAccepted{EntityID: 7, ClientToken: req.ClientToken}, nil
}

func (h *recordingHost) SubmitInput(_ uint64, in messages.InputSample) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ticks = append(h.ticks, in.Tick)
	return true
}

func (h *recordingHost) Leave(uint64, protocol.Sink) {}

func (h *recordingHost) received() []uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uint32(nil), h.ticks...)
}

func TestLoopbackDeliversInputsInOrder(t *testing.T) {
	host := &recordingHost{}
	l := NewLoopback(host, LoopbackOptions{Latency: 2 * time.Millisecond})
	defer func() { _ = l.Close() }()

	_, err := l.Join(context.Background(), messages.JoinRequest{ClientToken: "a"})
	require.NoError(t, err)

	const n = 200
	for tick := uint32(0); tick < n; tick++ {
		require.NoError(t, l.SendInput(messages.NewInputSample(tick, mgl64.Vec3{1, 0, 0}, mgl64.Vec2{})))
	}

	require.Eventually(t, func() bool { return len(host.received()) == n }, 5*time.Second, 5*time.Millisecond)
	got := host.received()
	for i, tick := range got {
		assert.Equal(t, uint32(i), tick)
	}
}

func TestLoopbackDeliversPublicationsInOrder(t *testing.T) {
	l := NewLoopback(&recordingHost{}, LoopbackOptions{Latency: time.Millisecond})
	defer func() { _ = l.Close() }()

	const n = 100
	for tick := uint32(0); tick < n; tick++ {
		l.Publish(protocol.Publication{EntityID: 7, Snapshot: sim.Snapshot{Tick: tick}})
	}

	var got []protocol.Publication
	require.Eventually(t, func() bool {
		got = append(got, Drain(l.Publications())...)
		return len(got) == n
	}, 5*time.Second, 5*time.Millisecond)
	for i, p := range got {
		assert.Equal(t, uint32(i), p.Snapshot.Tick)
	}
}

func TestLoopbackDropsQueueOnClose(t *testing.T) {
	host := &recordingHost{}
	l := NewLoopback(host, LoopbackOptions{Latency: 200 * time.Millisecond})

	_, err := l.Join(context.Background(), messages.JoinRequest{ClientToken: "a"})
	require.NoError(t, err)
	require.NoError(t, l.SendInput(messages.NewInputSample(0, mgl64.Vec3{}, mgl64.Vec2{})))
	require.NoError(t, l.Close())

	time.Sleep(400 * time.Millisecond)
	assert.Empty(t, host.received())
	assert.ErrorIs(t, l.SendInput(messages.NewInputSample(1, mgl64.Vec3{}, mgl64.Vec2{})), ErrNotConnected)
}

package protocol_test

import (
	"bytes"
	"errors"
	"math"
	"net"
	"testing"

	"github.com/automoto/ticksync/shared/messages"
	"github.com/automoto/ticksync/shared/protocol"
	"github.com/automoto/ticksync/shared/sim"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicationIsBitExact(t *testing.T) {
	state := sim.NewState(mgl64.Vec3{0.1, math.Copysign(0, -1), 1.0 / 3}, 17)
	state.Velocity = mgl64.Vec3{math.SmallestNonzeroFloat64, -9.81, 1e300}
	state.Pitch = -45.5
	state.Crouched = true
	pub := protocol.Publication{
		EntityID: 42,
		Owner:    "6f1c2c1e-6a8f-4a57-9d0e-5a0a9f1d7e10",
		Snapshot: sim.Snapshot{Tick: 1 << 20, State: state, HasConverged: true},
	}

	b, err := protocol.Encode(pub)
	require.NoError(t, err)
	got, err := protocol.Decode(b)
	require.NoError(t, err)

	decoded, ok := got.(protocol.Publication)
	require.True(t, ok)
	assert.Equal(t, pub, decoded)
	assert.True(t, math.Signbit(decoded.Snapshot.State.Position.Y()), "negative zero survives")
}

func TestDecodeReturnsConcreteTypes(t *testing.T) {
	in := messages.NewInputSample(9, mgl64.Vec3{0, 0, -1}, mgl64.Vec2{0.25, -0.5})
	in.Jump = true

	msgs := []any{
		messages.JoinRequest{Version: "1", PlayerName: "bot", ClientToken: "c", TickRate: 60},
		messages.JoinAccepted{EntityID: 3, ClientToken: "c", SessionToken: "s", ServerName: "n", TickRate: 60, SpawnTick: 0},
		messages.JoinRejected{Reason: messages.RejectTickRate},
		in,
		messages.Neutral(0),
		protocol.Despawn{EntityID: 7},
		protocol.Ping{SentAt: 123456789},
		protocol.Pong{SentAt: 987654321},
	}
	for _, msg := range msgs {
		b, err := protocol.Encode(msg)
		require.NoError(t, err)
		got, err := protocol.Decode(b)
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	}
}

func TestEncodeRejectsUnknownType(t *testing.T) {
	_, err := protocol.Encode(struct{}{})
	assert.True(t, errors.Is(err, protocol.ErrUnknownMessage))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := protocol.Decode([]byte{0xff, 0xff, 0xff})
	assert.True(t, errors.Is(err, protocol.ErrMalformed))

	// Valid envelope, unknown kind.
	_, err = protocol.Decode([]byte{0x08, 0x7f})
	assert.True(t, errors.Is(err, protocol.ErrUnknownMessage))
}

func TestFramesOverPipe(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payloads := [][]byte{[]byte("first"), {}, bytes.Repeat([]byte{1}, protocol.MaxFrameSize)}
	go func() {
		for _, p := range payloads {
			if err := protocol.WriteFrame(client, p); err != nil {
				return
			}
		}
	}()

	for _, want := range payloads {
		got, err := protocol.ReadFrame(server)
		require.NoError(t, err)
		assert.Equal(t, len(want), len(got))
		assert.True(t, bytes.Equal(want, got))
	}
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := protocol.WriteFrame(&buf, make([]byte, protocol.MaxFrameSize+1))
	assert.True(t, errors.Is(err, protocol.ErrFrameTooLarge))
	assert.Zero(t, buf.Len())

	buf.Write([]byte{0, 0, 0x20, 0})
	_, err = protocol.ReadFrame(&buf)
	assert.True(t, errors.Is(err, protocol.ErrFrameTooLarge))
}

func TestDecodeRejectsNonFiniteInput(t *testing.T) {
	tests := []struct {
		name string
		in   messages.InputSample
	}{
		{"nan move", messages.InputSample{Tick: 3, Move: mgl64.Vec3{math.NaN(), 0, 0}}},
		{"inf move", messages.InputSample{Tick: 3, Move: mgl64.Vec3{0, math.Inf(1), 0}}},
		{"nan look", messages.InputSample{Tick: 3, Look: mgl64.Vec2{0, math.NaN()}}},
		{"inf look", messages.InputSample{Tick: 3, Look: mgl64.Vec2{math.Inf(-1), 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := protocol.Encode(tt.in)
			require.NoError(t, err)
			_, err = protocol.Decode(b)
			assert.True(t, errors.Is(err, protocol.ErrMalformed))
		})
	}
}

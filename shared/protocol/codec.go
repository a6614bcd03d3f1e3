package protocol

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/automoto/ticksync/shared/messages"
	"github.com/rotisserie/eris"
	"google.golang.org/protobuf/encoding/protowire"
)

// MaxFrameSize bounds a single framed message.
const MaxFrameSize = 4096

var (
	ErrUnknownMessage = eris.New("unknown message")
	ErrFrameTooLarge  = eris.New("frame too large")
	ErrMalformed      = eris.New("malformed message")
)

// Envelope fields.
const (
	envKind protowire.Number = 1
	envBody protowire.Number = 2
)

// Encode serializes msg into a protobuf-wire envelope {kind, body}. Doubles
// are written as raw IEEE bits so a decoded state is bit-identical.
func Encode(msg any) ([]byte, error) {
	var kind Kind
	var body []byte
	switch m := msg.(type) {
	case messages.JoinRequest:
		kind, body = KindJoinRequest, encodeJoinRequest(m)
	case messages.JoinAccepted:
		kind, body = KindJoinAccepted, encodeJoinAccepted(m)
	case messages.JoinRejected:
		kind, body = KindJoinRejected, appendString(nil, 1, m.Reason)
	case messages.InputSample:
		kind, body = KindInput, encodeInput(m)
	case Publication:
		kind, body = KindPublication, encodePublication(m)
	case Despawn:
		kind, body = KindDespawn, appendVarint(nil, 1, m.EntityID)
	case Ping:
		kind, body = KindPing, appendVarint(nil, 1, uint64(m.SentAt))
	case Pong:
		kind, body = KindPong, appendVarint(nil, 1, uint64(m.SentAt))
	default:
		return nil, eris.Wrapf(ErrUnknownMessage, "encode %T", msg)
	}

	b := protowire.AppendTag(nil, envKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(kind))
	b = protowire.AppendTag(b, envBody, protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	return b, nil
}

// Decode is the inverse of Encode. It returns one of the value types Encode
// accepts.
func Decode(b []byte) (any, error) {
	var kind Kind
	var body []byte
	err := eachField(b, func(f field) error {
		switch f.num {
		case envKind:
			kind = Kind(f.varint)
		case envBody:
			body = f.bytes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindJoinRequest:
		return decodeJoinRequest(body)
	case KindJoinAccepted:
		return decodeJoinAccepted(body)
	case KindJoinRejected:
		var m messages.JoinRejected
		err := eachField(body, func(f field) error {
			if f.num == 1 {
				m.Reason = string(f.bytes)
			}
			return nil
		})
		return m, err
	case KindInput:
		return decodeInput(body)
	case KindPublication:
		return decodePublication(body)
	case KindDespawn:
		var m Despawn
		err := eachField(body, func(f field) error {
			if f.num == 1 {
				m.EntityID = f.varint
			}
			return nil
		})
		return m, err
	case KindPing, KindPong:
		var sentAt int64
		err := eachField(body, func(f field) error {
			if f.num == 1 {
				sentAt = int64(f.varint)
			}
			return nil
		})
		if kind == KindPing {
			return Ping{SentAt: sentAt}, err
		}
		return Pong{SentAt: sentAt}, err
	default:
		return nil, eris.Wrapf(ErrUnknownMessage, "decode kind %d", kind)
	}
}

// WriteFrame writes a 4-byte big-endian length prefix followed by payload,
// in a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return eris.Wrapf(ErrFrameTooLarge, "%d bytes", len(payload))
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	if _, err := w.Write(buf); err != nil {
		return eris.Wrap(err, "write frame")
	}
	return nil
}

// ReadFrame reads one length-prefixed payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return nil, eris.Wrapf(ErrFrameTooLarge, "%d bytes", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, eris.Wrap(err, "read frame body")
	}
	return payload, nil
}

func encodeInput(m messages.InputSample) []byte {
	b := appendVarint(nil, 1, uint64(m.Tick))
	b = appendDouble(b, 2, m.Move[0])
	b = appendDouble(b, 3, m.Move[1])
	b = appendDouble(b, 4, m.Move[2])
	b = appendDouble(b, 5, m.Look[0])
	b = appendDouble(b, 6, m.Look[1])
	b = appendBool(b, 7, m.Crouch)
	b = appendBool(b, 8, m.Sprint)
	b = appendBool(b, 9, m.Jump)
	return b
}

func decodeInput(b []byte) (messages.InputSample, error) {
	var m messages.InputSample
	err := eachField(b, func(f field) error {
		switch f.num {
		case 1:
			m.Tick = uint32(f.varint)
		case 2, 3, 4:
			m.Move[f.num-2] = f.double()
		case 5, 6:
			m.Look[f.num-5] = f.double()
		case 7:
			m.Crouch = f.bool()
		case 8:
			m.Sprint = f.bool()
		case 9:
			m.Jump = f.bool()
		}
		return nil
	})
	if err == nil && !m.Finite() {
		err = eris.Wrapf(ErrMalformed, "non-finite input at tick %d", m.Tick)
	}
	return m, err
}

func encodePublication(m Publication) []byte {
	s := m.Snapshot.State
	b := appendVarint(nil, 1, m.EntityID)
	b = appendString(b, 2, m.Owner)
	b = appendVarint(b, 3, uint64(m.Snapshot.Tick))
	for i, v := range s.Position {
		b = appendDouble(b, protowire.Number(4+i), v)
	}
	b = appendDouble(b, 7, s.Orientation.W)
	for i, v := range s.Orientation.V {
		b = appendDouble(b, protowire.Number(8+i), v)
	}
	for i, v := range s.Velocity {
		b = appendDouble(b, protowire.Number(11+i), v)
	}
	b = appendDouble(b, 14, s.Pitch)
	b = appendBool(b, 15, s.Grounded)
	b = appendBool(b, 16, s.Crouched)
	b = appendBool(b, 17, m.Snapshot.HasConverged)
	return b
}

func decodePublication(b []byte) (Publication, error) {
	var m Publication
	s := &m.Snapshot.State
	err := eachField(b, func(f field) error {
		switch {
		case f.num == 1:
			m.EntityID = f.varint
		case f.num == 2:
			m.Owner = string(f.bytes)
		case f.num == 3:
			m.Snapshot.Tick = uint32(f.varint)
		case f.num >= 4 && f.num <= 6:
			s.Position[f.num-4] = f.double()
		case f.num == 7:
			s.Orientation.W = f.double()
		case f.num >= 8 && f.num <= 10:
			s.Orientation.V[f.num-8] = f.double()
		case f.num >= 11 && f.num <= 13:
			s.Velocity[f.num-11] = f.double()
		case f.num == 14:
			s.Pitch = f.double()
		case f.num == 15:
			s.Grounded = f.bool()
		case f.num == 16:
			s.Crouched = f.bool()
		case f.num == 17:
			m.Snapshot.HasConverged = f.bool()
		}
		return nil
	})
	return m, err
}

func encodeJoinRequest(m messages.JoinRequest) []byte {
	b := appendString(nil, 1, m.Version)
	b = appendString(b, 2, m.PlayerName)
	b = appendString(b, 3, m.ClientToken)
	b = appendString(b, 4, m.SessionToken)
	b = appendVarint(b, 5, uint64(m.TickRate))
	return b
}

func decodeJoinRequest(b []byte) (messages.JoinRequest, error) {
	var m messages.JoinRequest
	err := eachField(b, func(f field) error {
		switch f.num {
		case 1:
			m.Version = string(f.bytes)
		case 2:
			m.PlayerName = string(f.bytes)
		case 3:
			m.ClientToken = string(f.bytes)
		case 4:
			m.SessionToken = string(f.bytes)
		case 5:
			m.TickRate = int(f.varint)
		}
		return nil
	})
	return m, err
}

func encodeJoinAccepted(m messages.JoinAccepted) []byte {
	b := appendVarint(nil, 1, m.EntityID)
	b = appendString(b, 2, m.ClientToken)
	b = appendString(b, 3, m.SessionToken)
	b = appendString(b, 4, m.ServerName)
	b = appendVarint(b, 5, uint64(m.TickRate))
	b = appendVarint(b, 6, uint64(m.SpawnTick))
	return b
}

func decodeJoinAccepted(b []byte) (messages.JoinAccepted, error) {
	var m messages.JoinAccepted
	err := eachField(b, func(f field) error {
		switch f.num {
		case 1:
			m.EntityID = f.varint
		case 2:
			m.ClientToken = string(f.bytes)
		case 3:
			m.SessionToken = string(f.bytes)
		case 4:
			m.ServerName = string(f.bytes)
		case 5:
			m.TickRate = int(f.varint)
		case 6:
			m.SpawnTick = uint32(f.varint)
		}
		return nil
	})
	return m, err
}

// Zero values are omitted, as in proto3. Doubles compare by bits so -0 is
// kept.

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	bits := math.Float64bits(v)
	if bits == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, bits)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

type field struct {
	num    protowire.Number
	varint uint64
	fixed  uint64
	bytes  []byte
}

func (f field) double() float64 {
	return math.Float64frombits(f.fixed)
}

func (f field) bool() bool {
	return protowire.DecodeBool(f.varint)
}

func eachField(b []byte, fn func(field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed(n)
		}
		b = b[n:]

		f := field{num: num}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.fixed, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return malformed(n)
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return malformed(n)
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func malformed(n int) error {
	return eris.Wrapf(ErrMalformed, "%v", protowire.ParseError(n))
}

package network

import (
	"context"
	"sync"

	"github.com/automoto/ticksync/shared/messages"
	"github.com/automoto/ticksync/shared/netcomponents"
	"github.com/automoto/ticksync/shared/protocol"
	"github.com/coder/websocket"
	"github.com/leap-fish/necs/esync"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

type ClientState int

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateJoinedGame
	StateError
)

func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateJoinedGame:
		return "joined"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Client reaches the Authority over a necs WebSocket. The server never
// addresses a client directly: world snapshots are broadcast and the client
// finds its own entity by the ClientToken on its NetOwner component.
// All shared fields are protected by mu (router callbacks run on necs goroutines).
type Client struct {
	address string
	logger  *zap.Logger

	mu        sync.RWMutex
	state     ClientState
	lastError error
	conn      *websocket.Conn
	token     string
	accepted  messages.JoinAccepted
	joinedCh  chan struct{}
	failedCh  chan error
	lastSeen  map[esync.NetworkId]seenTransform
	present   map[esync.NetworkId]bool

	publications chan protocol.Publication
	despawns     chan uint64
}

// NewClient prepares a client for ws://address. The necs router is process
// global, so only one Client may be active at a time.
func NewClient(address string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		address:      address,
		logger:       logger.Named("ws"),
		state:        StateDisconnected,
		lastSeen:     make(map[esync.NetworkId]seenTransform),
		present:      make(map[esync.NetworkId]bool),
		publications: make(chan protocol.Publication, 256),
		despawns:     make(chan uint64, 64),
	}
}

// Join dials the server, sends req and waits until an entity owned by
// req.ClientToken shows up in a world snapshot.
func (c *Client) Join(ctx context.Context, req messages.JoinRequest) (messages.JoinAccepted, error) {
	if err := protocol.RegisterComponents(); err != nil {
		return messages.JoinAccepted{}, err
	}

	joined := make(chan struct{})
	failed := make(chan error, 1)
	c.mu.Lock()
	c.state = StateConnecting
	c.lastError = nil
	c.token = req.ClientToken
	c.joinedCh = joined
	c.failedCh = failed
	c.mu.Unlock()

	router.OnConnect(func(_ *router.NetworkClient) {
		c.logger.Info("connected to server", zap.String("address", c.address))
		c.mu.Lock()
		c.state = StateConnected
		c.mu.Unlock()

		if err := c.send(req); err != nil {
			c.setError(eris.Wrap(err, "send join request"))
		}
	})

	router.On(func(_ *router.NetworkClient, snapshot esync.WorldSnapshot) {
		c.applySnapshot(snapshot)
	})

	router.OnDisconnect(func(_ *router.NetworkClient, err error) {
		c.logger.Info("disconnected", zap.Error(err))
		c.mu.Lock()
		if c.state != StateError {
			c.state = StateDisconnected
		}
		c.conn = nil
		c.mu.Unlock()
	})

	router.OnError(func(_ *router.NetworkClient, err error) {
		c.logger.Warn("router error", zap.Error(err))
	})

	go func() {
		transport := transports.NewWsClientTransport("ws://" + c.address)
		err := transport.Start(func(conn *websocket.Conn) {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
		})
		if err != nil {
			c.setError(eris.Wrap(err, "connection failed"))
		}
	}()

	select {
	case <-joined:
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.accepted, nil
	case err := <-failed:
		return messages.JoinAccepted{}, err
	case <-ctx.Done():
		return messages.JoinAccepted{}, eris.Wrap(ErrJoinTimeout, ctx.Err().Error())
	}
}

// seenTransform identifies a publication already handed to the caller. A
// spawn pose and the first converged publication share tick 0.
type seenTransform struct {
	tick      uint32
	converged bool
}

func (c *Client) applySnapshot(snapshot esync.WorldSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[esync.NetworkId]bool, len(snapshot))
	for _, ent := range snapshot {
		seen[ent.Id] = true

		var transform *netcomponents.NetTransformData
		var owner *netcomponents.NetOwnerData
		for _, componentBytes := range ent.State {
			instance, err := esync.Mapper.Deserialize(componentBytes)
			if err != nil {
				continue
			}
			switch v := instance.(type) {
			case netcomponents.NetTransformData:
				transform = &v
			case netcomponents.NetOwnerData:
				owner = &v
			}
		}
		if transform == nil {
			continue
		}

		if owner != nil && owner.ClientToken == c.token && c.state != StateJoinedGame {
			c.accepted = messages.JoinAccepted{
				EntityID:    uint64(ent.Id),
				ClientToken: owner.ClientToken,
				TickRate:    owner.TickRate,
				SpawnTick:   transform.Tick,
			}
			if transform.HasConverged {
				// Resumed entity: continue after its last processed tick.
				c.accepted.SpawnTick++
			}
			c.state = StateJoinedGame
			if c.joinedCh != nil {
				close(c.joinedCh)
				c.joinedCh = nil
			}
		}

		// The same transform is rebroadcast every server tick until the
		// Authority publishes again.
		key := seenTransform{tick: transform.Tick, converged: transform.HasConverged}
		if last, known := c.lastSeen[ent.Id]; known && last == key {
			continue
		}
		c.lastSeen[ent.Id] = key

		pub := protocol.Publication{EntityID: uint64(ent.Id), Snapshot: transform.Snapshot()}
		if owner != nil {
			pub.Owner = owner.ClientToken
		}
		offer(c.publications, pub)
	}

	for id := range c.present {
		if !seen[id] {
			delete(c.lastSeen, id)
			offer(c.despawns, uint64(id))
		}
	}
	c.present = seen
}

// SendInput forwards one tick of input.
func (c *Client) SendInput(in messages.InputSample) error {
	c.mu.RLock()
	joined := c.state == StateJoinedGame
	c.mu.RUnlock()
	if !joined {
		return ErrNotConnected
	}
	return c.send(in)
}

func (c *Client) send(msg any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	payload, err := router.Serialize(msg)
	if err != nil {
		return eris.Wrap(err, "serialize")
	}

	return conn.Write(context.Background(), websocket.MessageBinary, payload)
}

func (c *Client) Publications() <-chan protocol.Publication {
	return c.publications
}

func (c *Client) Despawns() <-chan uint64 {
	return c.despawns
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.state = StateDisconnected
	c.conn = nil
	c.mu.Unlock()

	router.ResetRouter()
	if conn != nil {
		return conn.CloseNow()
	}
	return nil
}

func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *Client) setError(err error) {
	c.mu.Lock()
	c.state = StateError
	c.lastError = err
	failed := c.failedCh
	c.failedCh = nil
	c.mu.Unlock()

	c.logger.Error("client error", zap.Error(err))
	if failed != nil {
		failed <- err
	}
}

package network

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/automoto/ticksync/shared/messages"
	"github.com/automoto/ticksync/shared/protocol"
	"github.com/rotisserie/eris"
	kcp "github.com/xtaci/kcp-go/v5"
	"go.uber.org/zap"
)

const (
	kcpDialTimeout  = 5 * time.Second
	kcpPingInterval = time.Second
	// kcpReadTimeout ends a session that has heard nothing, not even a pong,
	// for this long. UDP gives no other sign that the server is gone.
	kcpReadTimeout = 5 * time.Second
)

// KCPOption customises a KCPClient.
type KCPOption func(*KCPClient)

// WithReadTimeout overrides how long a silent session survives.
func WithReadTimeout(d time.Duration) KCPOption {
	return func(c *KCPClient) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// KCPClient reaches the Authority over a reliable UDP session carrying
// length-prefixed protowire frames. Unlike the WebSocket path the server
// answers a join directly and hands out a session token for reconnecting.
type KCPClient struct {
	address     string
	logger      *zap.Logger
	readTimeout time.Duration

	conn     net.Conn
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	sendChan chan []byte

	joinCh chan any // JoinAccepted or JoinRejected

	publications chan protocol.Publication
	despawns     chan uint64

	session atomic.Value // string
	rtt     atomic.Int64 // nanoseconds
	closed  atomic.Bool
}

func NewKCPClient(address string, logger *zap.Logger, opts ...KCPOption) *KCPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &KCPClient{
		address:      address,
		logger:       logger.Named("kcp"),
		readTimeout:  kcpReadTimeout,
		ctx:          ctx,
		cancel:       cancel,
		sendChan:     make(chan []byte, 256),
		joinCh:       make(chan any, 1),
		publications: make(chan protocol.Publication, 256),
		despawns:     make(chan uint64, 64),
	}
	c.session.Store("")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Join dials, sends req and waits for the server's answer. If req carries no
// SessionToken but an earlier join on this client produced one, it is sent
// so the server can hand back the same entity.
func (c *KCPClient) Join(ctx context.Context, req messages.JoinRequest) (messages.JoinAccepted, error) {
	if c.conn == nil {
		if err := c.dial(ctx); err != nil {
			return messages.JoinAccepted{}, err
		}
	}
	if req.SessionToken == "" {
		req.SessionToken = c.SessionToken()
	}
	if err := c.sendMessage(req); err != nil {
		return messages.JoinAccepted{}, eris.Wrap(err, "send join request")
	}

	select {
	case reply := <-c.joinCh:
		switch m := reply.(type) {
		case messages.JoinAccepted:
			c.session.Store(m.SessionToken)
			c.logger.Info("join accepted",
				zap.Uint64("entity", m.EntityID),
				zap.String("server", m.ServerName),
				zap.Int("tickRate", m.TickRate))
			return m, nil
		case messages.JoinRejected:
			return messages.JoinAccepted{}, rejection(m.Reason)
		}
		return messages.JoinAccepted{}, eris.Wrapf(ErrRejected, "unexpected reply %T", reply)
	case <-ctx.Done():
		return messages.JoinAccepted{}, eris.Wrap(ErrJoinTimeout, ctx.Err().Error())
	case <-c.ctx.Done():
		return messages.JoinAccepted{}, ErrNotConnected
	}
}

// Reconnect drops the current session and joins again with the stored
// session token.
func (c *KCPClient) Reconnect(ctx context.Context, req messages.JoinRequest) (messages.JoinAccepted, error) {
	token := c.SessionToken()
	_ = c.Close()

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.sendChan = make(chan []byte, 256)
	c.joinCh = make(chan any, 1)
	c.conn = nil
	c.closed.Store(false)

	req.SessionToken = token
	return c.Join(ctx, req)
}

func (c *KCPClient) dial(ctx context.Context) error {
	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		sess, err := kcp.DialWithOptions(c.address, nil, 0, 0)
		if err != nil {
			done <- result{err: err}
			return
		}
		sess.SetStreamMode(true)
		sess.SetNoDelay(1, 10, 2, 1)
		done <- result{conn: sess}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return eris.Wrapf(r.err, "dial %s", c.address)
		}
		c.conn = r.conn
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "dial")
	case <-time.After(kcpDialTimeout):
		return eris.Errorf("dial %s: timeout", c.address)
	}

	c.logger.Info("connected to server", zap.String("address", c.address))
	c.wg.Add(3)
	go c.receiveLoop()
	go c.sendLoop()
	go c.pingLoop()
	return nil
}

func (c *KCPClient) receiveLoop() {
	defer c.wg.Done()
	defer c.cancel()

	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		data, err := protocol.ReadFrame(c.conn)
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warn("read failed", zap.Error(err))
			}
			return
		}
		if len(data) == 0 {
			continue
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Debug("bad frame", zap.Error(err))
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *KCPClient) handleMessage(msg any) {
	switch m := msg.(type) {
	case protocol.Publication:
		offer(c.publications, m)
	case protocol.Despawn:
		offer(c.despawns, m.EntityID)
	case messages.JoinAccepted, messages.JoinRejected:
		select {
		case c.joinCh <- m:
		default:
		}
	case protocol.Ping:
		_ = c.sendMessage(protocol.Pong{SentAt: m.SentAt})
	case protocol.Pong:
		c.rtt.Store(time.Now().UnixNano() - m.SentAt)
	default:
		c.logger.Debug("unexpected message", zap.Any("type", m))
	}
}

func (c *KCPClient) sendLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.sendChan:
			if err := protocol.WriteFrame(c.conn, data); err != nil {
				c.logger.Warn("write failed", zap.Error(err))
				c.cancel()
				return
			}
		}
	}
}

func (c *KCPClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(kcpPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_ = c.sendMessage(protocol.Ping{SentAt: time.Now().UnixNano()})
		}
	}
}

func (c *KCPClient) sendMessage(msg any) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.ctx.Done():
		return ErrNotConnected
	default:
	}
	select {
	case c.sendChan <- data:
		return nil
	default:
		return eris.New("send queue full")
	}
}

// SendInput forwards one tick of input.
func (c *KCPClient) SendInput(in messages.InputSample) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.sendMessage(in)
}

func (c *KCPClient) Publications() <-chan protocol.Publication {
	return c.publications
}

func (c *KCPClient) Despawns() <-chan uint64 {
	return c.despawns
}

// SessionToken is the token from the last accepted join, or empty.
func (c *KCPClient) SessionToken() string {
	s, _ := c.session.Load().(string)
	return s
}

// Done is closed when the current session ends, by Close or by a transport
// failure. Reconnect starts a new session with a new Done channel.
func (c *KCPClient) Done() <-chan struct{} {
	return c.ctx.Done()
}

// RTT is the last measured round trip.
func (c *KCPClient) RTT() time.Duration {
	return time.Duration(c.rtt.Load())
}

func (c *KCPClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.cancel()
	var err error
	if c.conn != nil {
		err = c.conn.Close()
	}
	c.wg.Wait()
	return err
}

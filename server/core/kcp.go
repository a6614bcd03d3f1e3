package core

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/automoto/ticksync/shared/messages"
	"github.com/automoto/ticksync/shared/protocol"
	"github.com/rotisserie/eris"
	kcp "github.com/xtaci/kcp-go/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	kcpReadTimeout  = 15 * time.Second // clients ping every second
	kcpWriteTimeout = time.Second
	kcpSendQueue    = 256
)

var ErrSendQueueFull = eris.New("send queue full")

// KCPListener accepts KCP sessions and attaches each to the Server.
type KCPListener struct {
	listener *kcp.Listener
	server   *Server
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func ListenKCP(addr string, server *Server, logger *zap.Logger) (*KCPListener, error) {
	l, err := kcp.ListenWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, eris.Wrapf(err, "listen kcp %s", addr)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &KCPListener{
		listener: l,
		server:   server,
		logger:   logger.Named("kcp"),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Serve accepts sessions until Close.
func (l *KCPListener) Serve() {
	l.logger.Info("listening", zap.Stringer("addr", l.listener.Addr()))
	for {
		sess, err := l.listener.AcceptKCP()
		if err != nil {
			if l.ctx.Err() == nil {
				l.logger.Warn("accept failed", zap.Error(err))
			}
			return
		}
		sess.SetStreamMode(true)
		sess.SetNoDelay(1, 10, 2, 1)

		c := newKCPSession(sess, l.server, l.logger)
		l.wg.Add(1)
		go c.handle(l.ctx, &l.wg)
	}
}

func (l *KCPListener) Addr() net.Addr {
	return l.listener.Addr()
}

func (l *KCPListener) Close() error {
	l.cancel()
	err := l.listener.Close()
	l.wg.Wait()
	return err
}

// kcpSession is one client connection. It is also the client's sink for
// publications.
type kcpSession struct {
	conn    net.Conn
	server  *Server
	logger  *zap.Logger
	limiter *rate.Limiter // receive goroutine only

	entity atomic.Uint64
	joined atomic.Bool

	sendChan  chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newKCPSession(conn net.Conn, server *Server, logger *zap.Logger) *kcpSession {
	return &kcpSession{
		conn:     conn,
		server:   server,
		logger:   logger.With(zap.Stringer("remote", conn.RemoteAddr())),
		sendChan: make(chan []byte, kcpSendQueue),
		closeCh:  make(chan struct{}),
	}
}

func (c *kcpSession) handle(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	c.logger.Info("session opened")
	go c.sendLoop()
	go c.receiveLoop()

	select {
	case <-ctx.Done():
	case <-c.closeCh:
	}
	c.close()
}

func (c *kcpSession) close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		_ = c.conn.Close()
		if c.joined.Load() {
			c.server.Leave(c.entity.Load(), c)
		} else {
			c.server.RemoveSink(c)
		}
		c.logger.Info("session closed", zap.Uint64("entity", c.entity.Load()))
	})
}

func (c *kcpSession) receiveLoop() {
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(kcpReadTimeout))
		data, err := protocol.ReadFrame(c.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Debug("read failed", zap.Error(err))
			}
			c.close()
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

func (c *kcpSession) handleMessage(msg any) {
	switch m := msg.(type) {
	case messages.JoinRequest:
		c.onJoin(m)
	case messages.InputSample:
		if !c.joined.Load() {
			return
		}
		if !c.limiter.Allow() {
			c.server.stats.RateLimited.Add(1)
			return
		}
		c.server.SubmitInput(c.entity.Load(), m)
	case protocol.Ping:
		_ = c.send(protocol.Pong{SentAt: m.SentAt})
	case protocol.Pong:
	default:
		c.logger.Debug("unexpected message", zap.Any("type", m))
	}
}

func (c *kcpSession) onJoin(req messages.JoinRequest) {
	if c.joined.Load() {
		c.logger.Debug("duplicate join request")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	accepted, err := c.server.Join(ctx, req, c)
	if err != nil {
		reason, ok := IsRejection(err)
		if !ok {
			reason = err.Error()
			c.logger.Warn("join failed", zap.Error(err))
		}
		_ = c.send(messages.JoinRejected{Reason: reason})
		return
	}

	c.entity.Store(accepted.EntityID)
	c.joined.Store(true)
	c.limiter = c.server.newLimiter(accepted.TickRate)
	if err := c.send(accepted); err != nil {
		c.logger.Warn("send join accepted", zap.Error(err))
	}
}

func (c *kcpSession) sendLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		case data := <-c.sendChan:
			_ = c.conn.SetWriteDeadline(time.Now().Add(kcpWriteTimeout))
			if err := protocol.WriteFrame(c.conn, data); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.close()
				return
			}
		}
	}
}

func (c *kcpSession) send(msg any) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.closeCh:
		return eris.New("session closed")
	case c.sendChan <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *kcpSession) Publish(pub protocol.Publication) {
	if err := c.send(pub); err != nil {
		c.logger.Debug("publication dropped", zap.Uint32("tick", pub.Snapshot.Tick), zap.Error(err))
	}
}

func (c *kcpSession) Despawn(entityID uint64) {
	_ = c.send(protocol.Despawn{EntityID: entityID})
}

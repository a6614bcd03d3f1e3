package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/automoto/ticksync/shared/netconfig"
	"go.uber.org/zap"
)

// GameLoop steps the server at a fixed rate. Authorities advance on input,
// not on this clock; the loop only paces command processing and replication.
type GameLoop struct {
	server   *Server
	tickRate int
	logger   *zap.Logger
	running  atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewGameLoop(server *Server, tickRate int, logger *zap.Logger) *GameLoop {
	return &GameLoop{
		server:   server,
		tickRate: tickRate,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

func (g *GameLoop) Run() {
	g.running.Store(true)
	ticker := time.NewTicker(netconfig.TickInterval(g.tickRate))
	defer ticker.Stop()

	g.logger.Info("game loop started", zap.Int("tickRate", g.tickRate))

	for {
		select {
		case <-g.stopChan:
			g.running.Store(false)
			g.logger.Info("game loop stopped")
			return
		case <-ticker.C:
			g.server.Step()
		}
	}
}

func (g *GameLoop) Stop() {
	g.stopOnce.Do(func() { close(g.stopChan) })
}

// Running reports whether Run is executing.
func (g *GameLoop) Running() bool {
	return g.running.Load()
}

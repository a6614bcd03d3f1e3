package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/automoto/ticksync/config"
	"github.com/automoto/ticksync/network"
	"github.com/automoto/ticksync/scenes"
	"github.com/automoto/ticksync/server/core"
	"github.com/automoto/ticksync/shared/leveldata"
	"github.com/automoto/ticksync/shared/messages"
	"github.com/automoto/ticksync/shared/movement"
	"github.com/automoto/ticksync/shared/netconfig"
	"github.com/automoto/ticksync/systems"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	joinTimeout    = 10 * time.Second
	reconnectDelay = 2 * time.Second
)

func main() {
	cfg, err := config.Load(config.Flags("ticksync"), os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.Client.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Client.Duration)
		defer cancel()
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("client error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := systems.OpenProfileStore(cfg.Client.Profile, logger)
	if err != nil {
		return err
	}
	profile := store.Load()
	if cfg.Client.PlayerName != "" {
		profile.PlayerName = cfg.Client.PlayerName
	}

	bot, err := systems.NewBot(cfg.Client.Bot, cfg.Client.FrameRate)
	if err != nil {
		return err
	}

	level, err := core.LoadLevel(cfg.Server.Level)
	if err != nil {
		return err
	}

	transport, host, err := dial(cfg, level, logger)
	if err != nil {
		return err
	}
	defer func() { _ = transport.Close() }()
	if host != nil {
		host.Start(cfg.Server.AdminAddr)
		defer host.Stop()
	}

	req := messages.JoinRequest{
		Version:     netconfig.ProtocolVersion,
		PlayerName:  profile.PlayerName,
		ClientToken: profile.ClientToken,
		TickRate:    cfg.Sim.TickRate,
	}
	if netconfig.TransportKind(cfg.Client.Transport) == netconfig.TransportKCP && !cfg.Client.Host && profile.LastServer == cfg.Client.ServerAddr {
		req.SessionToken = profile.SessionToken
	}

	accepted, err := join(ctx, transport, req)
	if err != nil {
		return err
	}
	logger.Info("joined",
		zap.Uint64("entity", accepted.EntityID),
		zap.String("server", accepted.ServerName),
		zap.Int("tickRate", accepted.TickRate),
		zap.Uint32("spawnTick", accepted.SpawnTick))

	profile.LastServer = cfg.Client.ServerAddr
	profile.SessionToken = accepted.SessionToken
	if err := store.Save(profile); err != nil {
		logger.Warn("could not save profile", zap.Error(err))
	}

	ctrl := movement.NewController(cfg.MovementFor(accepted.TickRate), level)
	scene := scenes.NewNetworkedScene(transport, accepted, scenes.Options{
		Step:            ctrl.Step,
		Input:           bot,
		PlayerName:      profile.PlayerName,
		HistoryCapacity: cfg.Sim.HistoryCapacity,
		Tolerance:       cfg.Sim.Tolerance,
		StatsInterval:   cfg.Client.StatsInterval,
	}, logger)

	err = frames(ctx, cfg.Client.FrameRate, scene, transport, req, logger)
	scene.LogStats()
	if host != nil {
		in, pubs := host.link.Lost()
		logger.Info("loopback losses", zap.Int64("inputs", in), zap.Int64("publications", pubs))
	}
	return err
}

// frames runs the scene at frameRate until ctx ends. A KCP session that
// drops is resumed with its session token.
func frames(ctx context.Context, frameRate int, scene *scenes.NetworkedScene, t network.Transport, req messages.JoinRequest, logger *zap.Logger) error {
	ticker := time.NewTicker(time.Second / time.Duration(frameRate))
	defer ticker.Stop()

	kc, _ := t.(*network.KCPClient)
	var dropped <-chan struct{}
	if kc != nil {
		dropped = kc.Done()
	}

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-dropped:
			logger.Warn("session lost, reconnecting")
			accepted, err := reconnect(ctx, kc, req, logger)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			scene.Rejoin(accepted)
			dropped = kc.Done()
			last = time.Now()
		case now := <-ticker.C:
			scene.Update(now.Sub(last))
			last = now
		}
	}
}

func reconnect(ctx context.Context, kc *network.KCPClient, req messages.JoinRequest, logger *zap.Logger) (messages.JoinAccepted, error) {
	for {
		joinCtx, cancel := context.WithTimeout(ctx, joinTimeout)
		accepted, err := kc.Reconnect(joinCtx, req)
		cancel()
		if err == nil {
			logger.Info("session resumed", zap.Uint64("entity", accepted.EntityID), zap.Uint32("spawnTick", accepted.SpawnTick))
			return accepted, nil
		}
		if errors.Is(err, network.ErrRejected) || errors.Is(err, network.ErrTickRateMismatch) {
			return messages.JoinAccepted{}, err
		}
		logger.Warn("reconnect failed", zap.Error(err))

		select {
		case <-ctx.Done():
			return messages.JoinAccepted{}, ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func join(ctx context.Context, t network.Transport, req messages.JoinRequest) (messages.JoinAccepted, error) {
	joinCtx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()

	accepted, err := t.Join(joinCtx, req)
	switch {
	case err == nil:
		return accepted, nil
	case errors.Is(err, network.ErrTickRateMismatch):
		return accepted, eris.Wrapf(err, "server refused tick rate %d", req.TickRate)
	default:
		return accepted, eris.Wrap(err, "join")
	}
}

// hostSession is an in-process Authority reached over a loopback link.
type hostSession struct {
	server *core.Server
	link   *network.Loopback
	admin  context.CancelFunc
	logger *zap.Logger
}

// Start runs the game loop and, when adminAddr is set, the admin API.
func (h *hostSession) Start(adminAddr string) {
	h.server.Start()
	if adminAddr == "" {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.admin = cancel
	admin := core.NewAdminServer(adminAddr, h.server, h.logger)
	go func() {
		if err := admin.Run(ctx); err != nil {
			h.logger.Warn("admin server stopped", zap.Error(err))
		}
	}()
}

func (h *hostSession) Stop() {
	if h.admin != nil {
		h.admin()
	}
	h.server.Stop()
}

func dial(cfg config.Config, level *leveldata.Level, logger *zap.Logger) (network.Transport, *hostSession, error) {
	if cfg.Client.Host {
		server, err := core.NewServer(core.ConfigFromSettings(cfg, level), logger)
		if err != nil {
			return nil, nil, err
		}
		link := network.NewLoopback(server, network.LoopbackOptions{
			Latency: cfg.Client.HostLatency,
			Loss:    cfg.Client.HostLoss,
			Seed:    uint64(time.Now().UnixNano()),
		})
		logger.Info("hosting in-process",
			zap.Duration("latency", cfg.Client.HostLatency),
			zap.Float64("loss", cfg.Client.HostLoss),
			zap.Bool("level", level != nil))
		return link, &hostSession{server: server, link: link, logger: logger}, nil
	}

	switch netconfig.TransportKind(cfg.Client.Transport) {
	case netconfig.TransportKCP:
		return network.NewKCPClient(cfg.Client.ServerAddr, logger), nil, nil
	default:
		return network.NewClient(cfg.Client.ServerAddr, logger), nil, nil
	}
}

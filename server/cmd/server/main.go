package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/automoto/ticksync/config"
	"github.com/automoto/ticksync/server/core"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(config.Flags("ticksync-server"), os.Args[1:])
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

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	level, err := core.LoadLevel(cfg.Server.Level)
	if err != nil {
		return err
	}

	server, err := core.NewServer(core.ConfigFromSettings(cfg, level), logger)
	if err != nil {
		return err
	}
	server.Start()
	defer server.Stop()

	if cfg.Server.KCPAddr != "" {
		if err := server.ServeKCP(cfg.Server.KCPAddr); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	if cfg.Server.AdminAddr != "" {
		admin := core.NewAdminServer(cfg.Server.AdminAddr, server, logger)
		go func() { errCh <- admin.Run(ctx) }()
	}

	logger.Info("starting server",
		zap.String("name", cfg.Server.Name),
		zap.Uint("port", cfg.Server.WSPort),
		zap.Int("tickRate", cfg.Sim.TickRate),
		zap.String("version", cfg.Server.Version),
		zap.Bool("level", level != nil))
	go func() { errCh <- server.ServeWS(cfg.Server.WSPort) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
		return nil
	case err := <-errCh:
		return err
	}
}

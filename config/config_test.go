package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/automoto/ticksync/config"
	"github.com/automoto/ticksync/shared/movement"
	"github.com/automoto/ticksync/shared/netconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	mv := cfg.MovementFor(cfg.Sim.TickRate)
	assert.Equal(t, movement.DefaultConfig(), mv)
}

func TestLoadWithoutArgsGivesDefaults(t *testing.T) {
	cfg, err := config.Load(config.Flags("test"), nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ticksync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sim:
  tick_rate: 30
server:
  name: from-file
  reconnect_grace: 3s
client:
  player_name: from-file
movement:
  jump_force: 12
`), 0o600))

	t.Setenv("TICKSYNC_SERVER_NAME", "from-env")
	t.Setenv("TICKSYNC_CLIENT_HOST_LOSS", "0.25")

	cfg, err := config.Load(config.Flags("test"), []string{
		"--config", path,
		"--player", "from-flag",
		"--kcp", ":9000",
		"--host",
	})
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Sim.TickRate)
	assert.Equal(t, "from-env", cfg.Server.Name, "env beats file")
	assert.Equal(t, "from-flag", cfg.Client.PlayerName, "flag beats file")
	assert.Equal(t, 3*time.Second, cfg.Server.ReconnectGrace)
	assert.Equal(t, ":9000", cfg.Server.KCPAddr)
	assert.True(t, cfg.Client.Host)
	assert.Equal(t, 0.25, cfg.Client.HostLoss)
	assert.Equal(t, 12.0, cfg.Movement.JumpForce)
	assert.Equal(t, netconfig.TickInterval(30), cfg.MovementFor(cfg.Sim.TickRate).TickInterval)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"tick rate", func(c *config.Config) { c.Sim.TickRate = 1 }},
		{"history", func(c *config.Config) { c.Sim.HistoryCapacity = 0 }},
		{"tolerance", func(c *config.Config) { c.Sim.Tolerance = -1 }},
		{"pitch", func(c *config.Config) { c.Movement.PitchMin = 90 }},
		{"transport", func(c *config.Config) { c.Client.Transport = "udp" }},
		{"loss", func(c *config.Config) { c.Client.HostLoss = 1 }},
		{"frame rate", func(c *config.Config) { c.Client.FrameRate = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, config.ErrInvalid))
		})
	}
}

func TestLoadRejectsBadFlag(t *testing.T) {
	_, err := config.Load(config.Flags("test"), []string{"--tick-rate", "1000"})
	assert.True(t, errors.Is(err, config.ErrInvalid))

	_, err = config.Load(config.Flags("test"), []string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := config.NewLogger("debug", true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	_, err = config.NewLogger("loud", false)
	assert.Error(t, err)
}

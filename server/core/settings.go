package core

import (
	"github.com/automoto/ticksync/config"
	"github.com/automoto/ticksync/shared/leveldata"
)

// ConfigFromSettings maps resolved settings onto a server Config. A session
// issuer is only created when a jwt secret is set.
func ConfigFromSettings(s config.Config, level *leveldata.Level) Config {
	cfg := Config{
		Name:            s.Server.Name,
		Version:         s.Server.Version,
		TickRate:        s.Sim.TickRate,
		StrictTickRate:  s.Server.StrictTickRate,
		MaxPlayers:      s.Server.MaxPlayers,
		HistoryCapacity: s.Sim.HistoryCapacity,
		InputRateSlack:  s.Server.InputRateSlack,
		ReconnectGrace:  s.Server.ReconnectGrace,
		QueueSize:       s.Server.QueueSize,
		Movement:        s.MovementFor(s.Sim.TickRate),
		Level:           level,
	}
	if s.Server.JWTSecret != "" {
		cfg.Sessions = NewSessionIssuer(s.Server.JWTSecret, s.Server.SessionTTL)
	}
	return cfg
}

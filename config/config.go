// Package config resolves runtime settings for the server and the headless
// client from defaults, an optional config file, TICKSYNC_* environment
// variables and command line flags, in increasing precedence.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/automoto/ticksync/shared/movement"
	"github.com/automoto/ticksync/shared/netconfig"
	"github.com/rotisserie/eris"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "TICKSYNC"

var ErrInvalid = eris.New("invalid config")

type Config struct {
	Sim      SimConfig      `mapstructure:"sim"`
	Movement MovementConfig `mapstructure:"movement"`
	Server   ServerConfig   `mapstructure:"server"`
	Client   ClientConfig   `mapstructure:"client"`
	Log      LogConfig      `mapstructure:"log"`
}

type SimConfig struct {
	TickRate        int     `mapstructure:"tick_rate"`
	HistoryCapacity int     `mapstructure:"history_capacity"`
	Tolerance       float64 `mapstructure:"tolerance"`
}

// MovementConfig mirrors movement.Config. The tick interval is not set here;
// it always follows Sim.TickRate.
type MovementConfig struct {
	GravityDownForce          float64 `mapstructure:"gravity_down_force"`
	MaxSpeedOnGround          float64 `mapstructure:"max_speed_on_ground"`
	MovementSharpnessOnGround float64 `mapstructure:"movement_sharpness_on_ground"`
	MaxSpeedCrouchedRatio     float64 `mapstructure:"max_speed_crouched_ratio"`
	MaxSpeedInAir             float64 `mapstructure:"max_speed_in_air"`
	AccelerationSpeedInAir    float64 `mapstructure:"acceleration_speed_in_air"`
	SprintSpeedModifier       float64 `mapstructure:"sprint_speed_modifier"`
	JumpForce                 float64 `mapstructure:"jump_force"`
	RotationSpeed             float64 `mapstructure:"rotation_speed"`
	PitchMin                  float64 `mapstructure:"pitch_min"`
	PitchMax                  float64 `mapstructure:"pitch_max"`
	KillHeight                float64 `mapstructure:"kill_height"`
	Radius                    float64 `mapstructure:"radius"`
	StepHeight                float64 `mapstructure:"step_height"`
}

type ServerConfig struct {
	Name            string        `mapstructure:"name"`
	Version         string        `mapstructure:"version"`
	WSPort          uint          `mapstructure:"ws_port"`
	KCPAddr         string        `mapstructure:"kcp_addr"`
	AdminAddr       string        `mapstructure:"admin_addr"`
	Level           string        `mapstructure:"level"`
	StrictTickRate  bool          `mapstructure:"strict_tick_rate"`
	MaxPlayers      int           `mapstructure:"max_players"`
	InputRateSlack  float64       `mapstructure:"input_rate_slack"`
	ReconnectGrace  time.Duration `mapstructure:"reconnect_grace"`
	QueueSize       int           `mapstructure:"queue_size"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
}

type ClientConfig struct {
	ServerAddr    string        `mapstructure:"server_addr"`
	Transport     string        `mapstructure:"transport"`
	PlayerName    string        `mapstructure:"player_name"`
	FrameRate     int           `mapstructure:"frame_rate"`
	Bot           string        `mapstructure:"bot"`
	Profile       string        `mapstructure:"profile"`
	Host          bool          `mapstructure:"host"`
	HostLatency   time.Duration `mapstructure:"host_latency"`
	HostLoss      float64       `mapstructure:"host_loss"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`
	Duration      time.Duration `mapstructure:"duration"` // 0 runs until interrupted
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Dev   bool   `mapstructure:"dev"`
}

// Default returns the stock settings: 60 ticks per second, the tuned
// first-person movement constants and local addresses.
func Default() Config {
	mv := movement.DefaultConfig()
	return Config{
		Sim: SimConfig{
			TickRate:        netconfig.DefaultTickRate,
			HistoryCapacity: netconfig.DefaultHistoryCapacity,
			Tolerance:       netconfig.DefaultTolerance,
		},
		Movement: MovementConfig{
			GravityDownForce:          mv.GravityDownForce,
			MaxSpeedOnGround:          mv.MaxSpeedOnGround,
			MovementSharpnessOnGround: mv.MovementSharpnessOnGround,
			MaxSpeedCrouchedRatio:     mv.MaxSpeedCrouchedRatio,
			MaxSpeedInAir:             mv.MaxSpeedInAir,
			AccelerationSpeedInAir:    mv.AccelerationSpeedInAir,
			SprintSpeedModifier:       mv.SprintSpeedModifier,
			JumpForce:                 mv.JumpForce,
			RotationSpeed:             mv.RotationSpeed,
			PitchMin:                  mv.PitchMin,
			PitchMax:                  mv.PitchMax,
			KillHeight:                mv.KillHeight,
			Radius:                    mv.Radius,
			StepHeight:                mv.StepHeight,
		},
		Server: ServerConfig{
			Name:           "ticksync",
			Version:        netconfig.ProtocolVersion,
			WSPort:         7373,
			KCPAddr:        ":7374",
			AdminAddr:      ":7380",
			InputRateSlack: 2,
			ReconnectGrace: 10 * time.Second,
			QueueSize:      4096,
			SessionTTL:     time.Hour,
		},
		Client: ClientConfig{
			ServerAddr:    "ws://localhost:7373",
			Transport:     string(netconfig.TransportWS),
			PlayerName:    "bot",
			FrameRate:     144,
			Bot:           "circle",
			Profile:       "ticksync",
			StatsInterval: 5 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// MovementFor builds the step constants for tickRate.
func (c Config) MovementFor(tickRate int) movement.Config {
	m := c.Movement
	return movement.Config{
		TickInterval:              netconfig.TickInterval(tickRate),
		GravityDownForce:          m.GravityDownForce,
		MaxSpeedOnGround:          m.MaxSpeedOnGround,
		MovementSharpnessOnGround: m.MovementSharpnessOnGround,
		MaxSpeedCrouchedRatio:     m.MaxSpeedCrouchedRatio,
		MaxSpeedInAir:             m.MaxSpeedInAir,
		AccelerationSpeedInAir:    m.AccelerationSpeedInAir,
		SprintSpeedModifier:       m.SprintSpeedModifier,
		JumpForce:                 m.JumpForce,
		RotationSpeed:             m.RotationSpeed,
		PitchMin:                  m.PitchMin,
		PitchMax:                  m.PitchMax,
		KillHeight:                m.KillHeight,
		Radius:                    m.Radius,
		StepHeight:                m.StepHeight,
	}
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, eris.Wrapf(ErrInvalid, format, args...))
		}
	}

	check(netconfig.ValidTickRate(c.Sim.TickRate), "sim.tick_rate %d outside [%d, %d]",
		c.Sim.TickRate, netconfig.MinTickRate, netconfig.MaxTickRate)
	check(c.Sim.HistoryCapacity > 0, "sim.history_capacity must be positive")
	check(c.Sim.Tolerance >= 0, "sim.tolerance must not be negative")

	check(c.Movement.PitchMin < c.Movement.PitchMax, "movement.pitch_min must be below pitch_max")
	check(c.Movement.Radius > 0, "movement.radius must be positive")
	check(c.Movement.MaxSpeedOnGround > 0, "movement.max_speed_on_ground must be positive")

	check(c.Server.QueueSize > 0, "server.queue_size must be positive")
	check(c.Server.MaxPlayers >= 0, "server.max_players must not be negative")
	check(c.Server.SessionTTL > 0 || c.Server.JWTSecret == "", "server.session_ttl must be positive when a jwt secret is set")

	switch netconfig.TransportKind(c.Client.Transport) {
	case netconfig.TransportWS, netconfig.TransportKCP:
	default:
		check(false, "client.transport %q must be ws or kcp", c.Client.Transport)
	}
	check(c.Client.FrameRate > 0, "client.frame_rate must be positive")
	check(c.Client.HostLoss >= 0 && c.Client.HostLoss < 1, "client.host_loss must be in [0, 1)")
	check(c.Client.StatsInterval > 0, "client.stats_interval must be positive")

	return errors.Join(errs...)
}

// flagBinding ties a command line flag to a config key.
type flagBinding struct {
	name  string
	key   string
	usage string
}

var bindings = []flagBinding{
	{"tick-rate", "sim.tick_rate", "simulation ticks per second"},
	{"history", "sim.history_capacity", "ticks of input/snapshot history kept"},
	{"tolerance", "sim.tolerance", "pose distance treated as a match"},

	{"name", "server.name", "server display name"},
	{"required-version", "server.version", "required client protocol version (empty accepts any)"},
	{"port", "server.ws_port", "WebSocket port"},
	{"kcp", "server.kcp_addr", "KCP listen address (empty disables)"},
	{"admin", "server.admin_addr", "admin HTTP address (empty disables)"},
	{"level", "server.level", "path to a .tmx level or a built-in level name (empty is a flat floor)"},
	{"strict-tick-rate", "server.strict_tick_rate", "reject clients whose tick rate differs"},
	{"max-players", "server.max_players", "player limit (0 is unlimited)"},
	{"jwt-secret", "server.jwt_secret", "secret for session tokens (empty disables resume by token)"},

	{"server", "client.server_addr", "server address: ws://host:port or host:port for kcp"},
	{"transport", "client.transport", "ws or kcp"},
	{"player", "client.player_name", "player name"},
	{"fps", "client.frame_rate", "frames per second the client renders"},
	{"bot", "client.bot", "scripted input pattern"},
	{"profile", "client.profile", "profile name under the user data directory"},
	{"host", "client.host", "run the Authority in-process over a loopback link"},
	{"host-latency", "client.host_latency", "one-way loopback latency"},
	{"host-loss", "client.host_loss", "loopback drop probability"},
	{"stats-interval", "client.stats_interval", "how often correction stats are logged"},
	{"duration", "client.duration", "stop after this long (0 runs until interrupted)"},

	{"log-level", "log.level", "debug, info, warn or error"},
	{"log-dev", "log.dev", "human readable development logging"},
}

// Flags builds the flag set for a command. Defaults shown in usage come
// from Default.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "optional config file (yaml, toml or json)")

	v := viper.New()
	setDefaults(v, Default())
	for _, b := range bindings {
		switch val := v.Get(b.key).(type) {
		case int:
			fs.Int(b.name, val, b.usage)
		case uint:
			fs.Uint(b.name, val, b.usage)
		case float64:
			fs.Float64(b.name, val, b.usage)
		case bool:
			fs.Bool(b.name, val, b.usage)
		case time.Duration:
			fs.Duration(b.name, val, b.usage)
		default:
			fs.String(b.name, v.GetString(b.key), b.usage)
		}
	}
	return fs
}

// Load parses args against fs and returns the validated result.
func Load(fs *pflag.FlagSet, args []string) (Config, error) {
	if err := fs.Parse(args); err != nil {
		return Config{}, eris.Wrap(err, "parse flags")
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, b := range bindings {
		if f := fs.Lookup(b.name); f != nil {
			if err := v.BindPFlag(b.key, f); err != nil {
				return Config{}, eris.Wrapf(err, "bind flag %s", b.name)
			}
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, eris.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, eris.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("sim.tick_rate", d.Sim.TickRate)
	v.SetDefault("sim.history_capacity", d.Sim.HistoryCapacity)
	v.SetDefault("sim.tolerance", d.Sim.Tolerance)

	m := d.Movement
	v.SetDefault("movement.gravity_down_force", m.GravityDownForce)
	v.SetDefault("movement.max_speed_on_ground", m.MaxSpeedOnGround)
	v.SetDefault("movement.movement_sharpness_on_ground", m.MovementSharpnessOnGround)
	v.SetDefault("movement.max_speed_crouched_ratio", m.MaxSpeedCrouchedRatio)
	v.SetDefault("movement.max_speed_in_air", m.MaxSpeedInAir)
	v.SetDefault("movement.acceleration_speed_in_air", m.AccelerationSpeedInAir)
	v.SetDefault("movement.sprint_speed_modifier", m.SprintSpeedModifier)
	v.SetDefault("movement.jump_force", m.JumpForce)
	v.SetDefault("movement.rotation_speed", m.RotationSpeed)
	v.SetDefault("movement.pitch_min", m.PitchMin)
	v.SetDefault("movement.pitch_max", m.PitchMax)
	v.SetDefault("movement.kill_height", m.KillHeight)
	v.SetDefault("movement.radius", m.Radius)
	v.SetDefault("movement.step_height", m.StepHeight)

	s := d.Server
	v.SetDefault("server.name", s.Name)
	v.SetDefault("server.version", s.Version)
	v.SetDefault("server.ws_port", s.WSPort)
	v.SetDefault("server.kcp_addr", s.KCPAddr)
	v.SetDefault("server.admin_addr", s.AdminAddr)
	v.SetDefault("server.level", s.Level)
	v.SetDefault("server.strict_tick_rate", s.StrictTickRate)
	v.SetDefault("server.max_players", s.MaxPlayers)
	v.SetDefault("server.input_rate_slack", s.InputRateSlack)
	v.SetDefault("server.reconnect_grace", s.ReconnectGrace)
	v.SetDefault("server.queue_size", s.QueueSize)
	v.SetDefault("server.jwt_secret", s.JWTSecret)
	v.SetDefault("server.session_ttl", s.SessionTTL)

	c := d.Client
	v.SetDefault("client.server_addr", c.ServerAddr)
	v.SetDefault("client.transport", c.Transport)
	v.SetDefault("client.player_name", c.PlayerName)
	v.SetDefault("client.frame_rate", c.FrameRate)
	v.SetDefault("client.bot", c.Bot)
	v.SetDefault("client.profile", c.Profile)
	v.SetDefault("client.host", c.Host)
	v.SetDefault("client.host_latency", c.HostLatency)
	v.SetDefault("client.host_loss", c.HostLoss)
	v.SetDefault("client.stats_interval", c.StatsInterval)
	v.SetDefault("client.duration", c.Duration)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.dev", d.Log.Dev)
}

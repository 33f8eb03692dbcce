// Package ops loads and validates the daemon's JSON configuration.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"main/pkg/conn"
)

const (
	defaultSocketPath    = "/tmp/sessiond.sock"
	defaultQueueCapacity = 1024
	defaultChannelLimit  = 100
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Provider  ProviderConfig     `json:"provider"`
	Session   SessionConfig      `json:"session"`
	Control   ControlConfig      `json:"control"`
	Store     StoreConfig        `json:"store"`
	Features  FeatureFlagsConfig `json:"features"`
	Pyroscope PyroscopeConfig    `json:"pyroscope"`
}

// ProviderConfig points at the remote provider bridge.
type ProviderConfig struct {
	URL string `json:"url"`
	// ChannelLimit caps dialog listings when a command omits a limit.
	ChannelLimit int `json:"channelLimit"`
}

// SessionConfig tunes the login state machine.
type SessionConfig struct {
	ConfirmWindowSec int `json:"confirmWindowSec"`
	SweepIntervalSec int `json:"sweepIntervalSec"`
	QueueCapacity    int `json:"queueCapacity"`
}

// ControlConfig defines the inbound command transport.
type ControlConfig struct {
	SocketPath string `json:"socketPath"`
}

// StoreConfig selects and configures the durable store.
// Driver is "postgres" or "memory"; memory is for local development only.
type StoreConfig struct {
	Driver   string         `json:"driver"`
	Postgres PostgresConfig `json:"postgres"`
}

// PostgresConfig describes the PostgreSQL connection.
type PostgresConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	User            string `json:"user"`
	Password        string `json:"password"`
	Database        string `json:"database"`
	SSLMode         string `json:"sslMode"`
	MaxOpenConns    int    `json:"maxOpenConns"`
	ConnMaxLifetime string `json:"connMaxLifetime"`
}

// FeatureFlagsConfig captures optional runtime flags.
type FeatureFlagsConfig struct {
	EnableSweep    *bool `json:"enableSweep"`
	EnableDispatch *bool `json:"enableDispatch"`
}

// FeatureFlags are resolved runtime flags.
type FeatureFlags struct {
	EnableSweep    bool
	EnableDispatch bool
}

// PyroscopeConfig gates continuous profiling.
type PyroscopeConfig struct {
	Enabled       bool   `json:"enabled"`
	ServerAddress string `json:"serverAddress"`
	AppName       string `json:"appName"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	ProviderURL   string
	ChannelLimit  int
	ConfirmWindow time.Duration
	SweepInterval time.Duration
	QueueCapacity int
	SocketPath    string
	StoreDriver   string
	Postgres      conn.Option
	Features      FeatureFlags
	Pyroscope     PyroscopeConfig
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates a parsed config and applies defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Provider.URL == "" {
		return Loaded{}, fmt.Errorf("provider url is empty")
	}
	if cfg.Session.ConfirmWindowSec < 0 {
		return Loaded{}, fmt.Errorf("confirmWindowSec must be >= 0")
	}
	if cfg.Session.SweepIntervalSec < 0 {
		return Loaded{}, fmt.Errorf("sweepIntervalSec must be >= 0")
	}

	driver := cfg.Store.Driver
	if driver == "" {
		driver = "postgres"
	}
	switch driver {
	case "postgres", "memory":
	default:
		return Loaded{}, fmt.Errorf("unknown store driver: %s", driver)
	}

	pg, err := resolvePostgres(cfg.Store.Postgres)
	if err != nil {
		return Loaded{}, err
	}
	if driver == "postgres" && pg.Database == "" {
		return Loaded{}, fmt.Errorf("postgres database is empty")
	}

	socket := cfg.Control.SocketPath
	if socket == "" {
		socket = defaultSocketPath
	}
	capacity := cfg.Session.QueueCapacity
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	channelLimit := cfg.Provider.ChannelLimit
	if channelLimit <= 0 {
		channelLimit = defaultChannelLimit
	}
	if cfg.Pyroscope.Enabled && cfg.Pyroscope.ServerAddress == "" {
		return Loaded{}, fmt.Errorf("pyroscope enabled without serverAddress")
	}

	return Loaded{
		ProviderURL:   cfg.Provider.URL,
		ChannelLimit:  channelLimit,
		ConfirmWindow: time.Duration(cfg.Session.ConfirmWindowSec) * time.Second,
		SweepInterval: time.Duration(cfg.Session.SweepIntervalSec) * time.Second,
		QueueCapacity: capacity,
		SocketPath:    socket,
		StoreDriver:   driver,
		Postgres:      pg,
		Features:      resolveFeatures(cfg.Features),
		Pyroscope:     cfg.Pyroscope,
	}, nil
}

func resolvePostgres(cfg PostgresConfig) (conn.Option, error) {
	opt := conn.Option{
		Host:         cfg.Host,
		Port:         cfg.Port,
		User:         cfg.User,
		Password:     cfg.Password,
		Database:     cfg.Database,
		SSLMode:      cfg.SSLMode,
		MaxOpenConns: cfg.MaxOpenConns,
	}
	if cfg.ConnMaxLifetime != "" {
		lifetime, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return conn.Option{}, fmt.Errorf("invalid connMaxLifetime: %w", err)
		}
		opt.ConnMaxLifetime = lifetime
	}
	return opt, nil
}

func resolveFeatures(cfg FeatureFlagsConfig) FeatureFlags {
	flags := FeatureFlags{
		EnableSweep:    true,
		EnableDispatch: true,
	}
	if cfg.EnableSweep != nil {
		flags.EnableSweep = *cfg.EnableSweep
	}
	if cfg.EnableDispatch != nil {
		flags.EnableDispatch = *cfg.EnableDispatch
	}
	return flags
}

package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the dispatcher service configuration, loaded from environment
// variables.
type Config struct {
	ServerHost string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"8080"`

	CORSOrigin string `env:"CORS_ORIGIN" envDefault:"*"`

	// Event bus bridge.
	BusDriver   string   `env:"BUS_DRIVER" envDefault:"kafka"`
	BusBrokers  []string `env:"BUS_BROKERS" envSeparator:","`
	BusOutTopic string   `env:"BUS_OUT_TOPIC" envDefault:"relay.events.out"`
	BusInTopic  string   `env:"BUS_IN_TOPIC" envDefault:"relay.events.in"`
	BusGroup    string   `env:"BUS_GROUP" envDefault:"chesskite-relay"`

	// Relational store.
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Chain.
	SuiNetwork  string `env:"SUI_NETWORK" envDefault:"testnet"`
	SuiURL      string `env:"SUI_URL"`
	PackageID   string `env:"SUI_PACKAGE_ID,required"`
	RegistryID  string `env:"SUI_BADGE_REGISTRY_ID"`
	GasBudget   uint64 `env:"SUI_GAS_BUDGET" envDefault:"100000000"`
	SponsorRef  string `env:"SPONSOR_SECRET,required"`
	SponsorAddr string `env:"SPONSOR_ADDRESS"`

	// Queue tuning.
	ProcessingInterval time.Duration `env:"QUEUE_PROCESSING_INTERVAL" envDefault:"1000ms"`
	MaxRetries         int           `env:"QUEUE_MAX_RETRIES" envDefault:"3"`
	RetryBaseDelay     time.Duration `env:"QUEUE_RETRY_DELAY" envDefault:"5000ms"`
	GCInterval         time.Duration `env:"QUEUE_GC_INTERVAL" envDefault:"1h"`
	ReclaimAfter       time.Duration `env:"QUEUE_RECLAIM_AFTER" envDefault:"0"`

	// Maintenance leader election.
	LeaderElection bool          `env:"LEADER_ELECTION" envDefault:"false"`
	LeaderLease    string        `env:"LEADER_LEASE_NAME" envDefault:"relay-dispatcher"`
	LeaderTTL      time.Duration `env:"LEADER_LEASE_TTL" envDefault:"15s"`
	Owner          string        `env:"DISPATCHER_OWNER"`

	// Artifact archive.
	BlobDriver string `env:"BLOB_DRIVER"`
	BlobBucket string `env:"BLOB_BUCKET"`
	BlobPrefix string `env:"BLOB_PREFIX" envDefault:"chesskite-relay"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		return Config{}, fmt.Errorf("config: invalid server port %d", cfg.ServerPort)
	}
	if cfg.ProcessingInterval <= 0 || cfg.RetryBaseDelay <= 0 || cfg.GCInterval <= 0 {
		return Config{}, fmt.Errorf("config: queue durations must be > 0")
	}
	if cfg.MaxRetries <= 0 {
		return Config{}, fmt.Errorf("config: max retries must be > 0")
	}
	if cfg.GasBudget == 0 {
		return Config{}, fmt.Errorf("config: gas budget must be > 0")
	}
	return cfg, nil
}

// SlogLevel maps the configured level string to slog.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ListenAddr is the HTTP bind address.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

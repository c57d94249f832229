// Package config manages the DLEP session daemon configuration using
// koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete dlep-session configuration.
type Config struct {
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Session SessionConfig `koanf:"session"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// SessionConfig holds the default Peer Session parameters shared by every
// peer a Manager creates (spec.md §6's configuration inputs), overridable
// per session only through programmatic ManagerConfig construction, not
// through the declarative file.
type SessionConfig struct {
	// IsModem selects the Role: true for modem (responds to
	// Session_Initialization), false for router (initiates it).
	IsModem bool `koanf:"is_modem"`

	// ListenAddr is the TCP address the modem role listens on (e.g.,
	// "0.0.0.0:854", the IANA-assigned DLEP port). The router role does
	// not use it; cmd/dlep-session dials the address given by -peer.
	ListenAddr string `koanf:"listen_addr"`

	// HeartbeatInterval is the local heartbeat interval advertised on the
	// handshake (spec.md §4.2, §4.4). A value of 0 disables heartbeats.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`

	// MissedHeartbeatThreshold is the detection multiplier applied to the
	// peer's heartbeat interval (spec.md §4.4).
	MissedHeartbeatThreshold int `koanf:"missed_heartbeat_threshold"`

	// RetryInterval is the per-request retransmit interval (spec.md §4.3).
	RetryInterval time.Duration `koanf:"retry_interval"`

	// MaxRetries is the retransmit budget before a peer times out
	// (spec.md §4.3).
	MaxRetries int `koanf:"max_retries"`

	// SupportedExtensions lists the numeric extension ids this deployment
	// supports, advertised on the handshake (spec.md §4.2).
	SupportedExtensions []int `koanf:"supported_extensions"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults, per the
// conventional DLEP heartbeat interval (1s) and detection multiplier (4)
// used throughout spec.md's worked examples (§8).
func DefaultConfig() *Config {
	return &Config{
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Session: SessionConfig{
			IsModem:                  false,
			ListenAddr:               ":854",
			HeartbeatInterval:        1 * time.Second,
			MissedHeartbeatThreshold: 4,
			RetryInterval:            1 * time.Second,
			MaxRetries:               3,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for dlep-session
// configuration. Variables are named DLEP_<section>_<key>, e.g.
// DLEP_SESSION_IS_MODEM.
const envPrefix = "DLEP_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (DLEP_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Uses koanf/v2 with file + env providers and YAML parser, the same
// defaults-then-file-then-env layering the teacher's config loader used.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms DLEP_SESSION_IS_MODEM -> session.is_modem.
// Strips the DLEP_ prefix, lowercases, and replaces the first _ (the
// section separator) with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"metrics.addr":                       defaults.Metrics.Addr,
		"metrics.path":                       defaults.Metrics.Path,
		"log.level":                          defaults.Log.Level,
		"log.format":                         defaults.Log.Format,
		"session.is_modem":                   defaults.Session.IsModem,
		"session.listen_addr":                defaults.Session.ListenAddr,
		"session.heartbeat_interval":         defaults.Session.HeartbeatInterval.String(),
		"session.missed_heartbeat_threshold": defaults.Session.MissedHeartbeatThreshold,
		"session.retry_interval":             defaults.Session.RetryInterval.String(),
		"session.max_retries":                defaults.Session.MaxRetries,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyListenAddr indicates the session listen address is empty.
	ErrEmptyListenAddr = errors.New("session.listen_addr must not be empty")

	// ErrInvalidMissedHeartbeatThreshold indicates the detection multiplier
	// is less than 1.
	ErrInvalidMissedHeartbeatThreshold = errors.New("session.missed_heartbeat_threshold must be >= 1")

	// ErrInvalidMaxRetries indicates the retransmit budget is negative.
	ErrInvalidMaxRetries = errors.New("session.max_retries must be >= 0")

	// ErrInvalidRetryInterval indicates the retry interval is non-positive.
	ErrInvalidRetryInterval = errors.New("session.retry_interval must be > 0")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Session.ListenAddr == "" {
		return ErrEmptyListenAddr
	}

	if cfg.Session.MissedHeartbeatThreshold < 1 {
		return ErrInvalidMissedHeartbeatThreshold
	}

	if cfg.Session.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}

	if cfg.Session.RetryInterval <= 0 {
		return ErrInvalidRetryInterval
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

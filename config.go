package civiclens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/civiclens/fetch"
)

// Store backends.
const (
	StoreMemory    = "memory"
	StoreSQLite    = "sqlite"
	StoreRedis     = "redis"
	StoreMiniredis = "miniredis"
)

// Identity modes.
const (
	IdentityMemory = "memory"
	IdentityStream = "stream"
)

// Config is the full client configuration. Start from DefaultConfig.
type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Guard    GuardConfig    `yaml:"guard"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Store    StoreConfig    `yaml:"store"`
	Identity IdentityConfig `yaml:"identity"`
	Events   EventsConfig   `yaml:"events"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// SessionConfig controls session start-up.
type SessionConfig struct {
	// PeekHint reads the persisted snapshot at Start.
	PeekHint    bool          `yaml:"peek_hint" env:"CIVICLENS_SESSION_PEEK_HINT"`
	HintTimeout time.Duration `yaml:"hint_timeout" env:"CIVICLENS_SESSION_HINT_TIMEOUT"`
}

// GuardConfig controls route gating.
type GuardConfig struct {
	Fallback           string `yaml:"fallback" env:"CIVICLENS_GUARD_FALLBACK"`
	Protected          string `yaml:"protected" env:"CIVICLENS_GUARD_PROTECTED"`
	OptimisticPreAdmit bool   `yaml:"optimistic_preadmit" env:"CIVICLENS_GUARD_OPTIMISTIC_PREADMIT"`
}

// FetchConfig controls the candidate-endpoint client. Endpoints are "base" or
// "label=base" entries, tried in order.
type FetchConfig struct {
	Endpoints  []string      `yaml:"endpoints" env:"CIVICLENS_FETCH_ENDPOINTS" envSeparator:","`
	Path       string        `yaml:"path" env:"CIVICLENS_FETCH_PATH"`
	Timeout    time.Duration `yaml:"timeout" env:"CIVICLENS_FETCH_TIMEOUT"`
	ItemsField string        `yaml:"items_field" env:"CIVICLENS_FETCH_ITEMS_FIELD"`
	UserAgent  string        `yaml:"user_agent" env:"CIVICLENS_FETCH_USER_AGENT"`
}

// SnapshotConfig controls the background snapshot writer.
type SnapshotConfig struct {
	Enabled      bool          `yaml:"enabled" env:"CIVICLENS_SNAPSHOT_ENABLED"`
	BufferSize   int           `yaml:"buffer_size" env:"CIVICLENS_SNAPSHOT_BUFFER_SIZE"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"CIVICLENS_SNAPSHOT_WRITE_TIMEOUT"`
}

// StoreConfig selects the persisted key-value store.
type StoreConfig struct {
	Backend       string        `yaml:"backend" env:"CIVICLENS_STORE_BACKEND"`
	Path          string        `yaml:"path" env:"CIVICLENS_STORE_PATH"`
	RedisAddr     string        `yaml:"redis_addr" env:"CIVICLENS_STORE_REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password,omitempty" env:"CIVICLENS_STORE_REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"CIVICLENS_STORE_REDIS_DB"`
	RedisPrefix   string        `yaml:"redis_prefix" env:"CIVICLENS_STORE_REDIS_PREFIX"`
	RedisTTL      time.Duration `yaml:"redis_ttl" env:"CIVICLENS_STORE_REDIS_TTL"`
}

// IdentityConfig selects the identity provider.
type IdentityConfig struct {
	Mode           string        `yaml:"mode" env:"CIVICLENS_IDENTITY_MODE"`
	StreamURL      string        `yaml:"stream_url" env:"CIVICLENS_IDENTITY_STREAM_URL"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" env:"CIVICLENS_IDENTITY_RECONNECT_DELAY"`
	SigningMethod  string        `yaml:"signing_method" env:"CIVICLENS_IDENTITY_SIGNING_METHOD"`
	// PublicKey is a PEM ed25519 public key; SharedSecret is the hs256 key.
	PublicKey    string        `yaml:"public_key,omitempty" env:"CIVICLENS_IDENTITY_PUBLIC_KEY"`
	SharedSecret string        `yaml:"shared_secret,omitempty" env:"CIVICLENS_IDENTITY_SHARED_SECRET"`
	Issuer       string        `yaml:"issuer" env:"CIVICLENS_IDENTITY_ISSUER"`
	Audience     string        `yaml:"audience" env:"CIVICLENS_IDENTITY_AUDIENCE"`
	Leeway       time.Duration `yaml:"leeway" env:"CIVICLENS_IDENTITY_LEEWAY"`
}

// EventsConfig controls diagnostic event dispatch.
type EventsConfig struct {
	Enabled    bool `yaml:"enabled" env:"CIVICLENS_EVENTS_ENABLED"`
	BufferSize int  `yaml:"buffer_size" env:"CIVICLENS_EVENTS_BUFFER_SIZE"`
	DropIfFull bool `yaml:"drop_if_full" env:"CIVICLENS_EVENTS_DROP_IF_FULL"`
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled" env:"CIVICLENS_METRICS_ENABLED"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms" env:"CIVICLENS_METRICS_LATENCY_HISTOGRAMS"`
}

// LogConfig controls the logger built by the CLI.
type LogConfig struct {
	Level  string `yaml:"level" env:"CIVICLENS_LOG_LEVEL"`
	Format string `yaml:"format" env:"CIVICLENS_LOG_FORMAT"`
}

// DefaultConfig returns the stock configuration: the three local-development
// candidates (host, loopback, Android emulator), the latest-bills feed, an in-memory
// store and the in-process identity provider.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			PeekHint:    true,
			HintTimeout: 2 * time.Second,
		},
		Guard: GuardConfig{
			Fallback:           "/",
			Protected:          "/dashboard/initialdash",
			OptimisticPreAdmit: true,
		},
		Fetch: FetchConfig{
			Endpoints: []string{
				"localhost=http://localhost:8000",
				"loopback=http://127.0.0.1:8000",
				"emulator=http://10.0.2.2:8000",
			},
			Path:       "/bills/latest?limit=3",
			Timeout:    fetch.DefaultTimeout,
			ItemsField: "bills",
			UserAgent:  "civiclens",
		},
		Snapshot: SnapshotConfig{
			Enabled:      true,
			BufferSize:   16,
			WriteTimeout: 5 * time.Second,
		},
		Store: StoreConfig{
			Backend:     StoreMemory,
			RedisPrefix: "civiclens",
		},
		Identity: IdentityConfig{
			Mode:           IdentityMemory,
			ReconnectDelay: 2 * time.Second,
			SigningMethod:  "ed25519",
		},
		Events: EventsConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Fetch.Endpoints = append([]string(nil), cfg.Fetch.Endpoints...)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Session.HintTimeout < 0 {
		return errors.New("Session HintTimeout must be >= 0")
	}

	if c.Guard.Fallback == "" {
		return errors.New("Guard Fallback is required")
	}
	if c.Guard.OptimisticPreAdmit && c.Guard.Protected == "" {
		return errors.New("Guard Protected is required when OptimisticPreAdmit is enabled")
	}

	if len(c.Fetch.Endpoints) == 0 {
		return errors.New("Fetch Endpoints must not be empty")
	}
	if _, err := fetch.ParseEndpoints(c.Fetch.Endpoints); err != nil {
		return fmt.Errorf("Fetch Endpoints: %w", err)
	}
	if c.Fetch.Timeout <= 0 {
		return errors.New("Fetch Timeout must be > 0")
	}

	if c.Snapshot.Enabled {
		if c.Snapshot.BufferSize <= 0 {
			return errors.New("Snapshot BufferSize must be > 0 when snapshots are enabled")
		}
		if c.Snapshot.WriteTimeout <= 0 {
			return errors.New("Snapshot WriteTimeout must be > 0 when snapshots are enabled")
		}
	}

	switch c.Store.Backend {
	case StoreMemory, StoreMiniredis:
	case StoreSQLite:
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("Store Path is required for the sqlite backend")
		}
	case StoreRedis:
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return errors.New("Store RedisAddr is required for the redis backend")
		}
		if c.Store.RedisTTL < 0 {
			return errors.New("Store RedisTTL must be >= 0")
		}
	default:
		return fmt.Errorf("Store Backend %q is invalid", c.Store.Backend)
	}

	switch c.Identity.Mode {
	case IdentityMemory:
	case IdentityStream:
		if strings.TrimSpace(c.Identity.StreamURL) == "" {
			return errors.New("Identity StreamURL is required in stream mode")
		}
		switch c.Identity.SigningMethod {
		case "ed25519":
			if strings.TrimSpace(c.Identity.PublicKey) == "" {
				return errors.New("Identity PublicKey is required for ed25519")
			}
		case "hs256":
			if c.Identity.SharedSecret == "" {
				return errors.New("Identity SharedSecret is required for hs256")
			}
		default:
			return errors.New("Identity SigningMethod must be 'ed25519' or 'hs256'")
		}
		if c.Identity.ReconnectDelay <= 0 {
			return errors.New("Identity ReconnectDelay must be > 0")
		}
	default:
		return fmt.Errorf("Identity Mode %q is invalid", c.Identity.Mode)
	}

	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when events are enabled")
	}
	return nil
}

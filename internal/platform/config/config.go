// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries all tunables for the game services. It is parsed once in
// main and passed into each constructor; there is no process-wide accessor.
type Config struct {
	// DBPath is the SQLite database path for rooms and messages.
	DBPath string `env:"DUNGEONTALK_DB_PATH" envDefault:"dungeontalk.db"`

	// RedisURL points at the ephemeral session store. Empty selects the
	// in-memory store, which is only suitable for a single process.
	RedisURL string `env:"DUNGEONTALK_REDIS_URL"`

	// OracleURL is the base URL of the response generation service.
	OracleURL string `env:"DUNGEONTALK_ORACLE_URL" envDefault:"http://localhost:8001"`

	// OracleTimeout bounds a single generation call.
	OracleTimeout time.Duration `env:"DUNGEONTALK_ORACLE_TIMEOUT" envDefault:"30s"`

	// SessionTTL bounds session liveness between activity refreshes.
	SessionTTL time.Duration `env:"DUNGEONTALK_SESSION_TTL" envDefault:"1h"`

	// LockTTL bounds a generation lock; expiry reclaims locks leaked by a
	// crashed orchestrator.
	LockTTL time.Duration `env:"DUNGEONTALK_LOCK_TTL" envDefault:"5m"`

	// ContextWindowTurns is how many recent turns feed the oracle.
	ContextWindowTurns int `env:"DUNGEONTALK_CONTEXT_WINDOW_TURNS" envDefault:"5"`

	// TurnStartOrder, ErrorOrder, and TurnEndOrder are the reserved
	// sentinel message orders. They must satisfy
	// TurnStartOrder < ErrorOrder < TurnEndOrder; user and AI messages
	// are assigned orders strictly between TurnStartOrder and ErrorOrder.
	TurnStartOrder int `env:"DUNGEONTALK_TURN_START_ORDER" envDefault:"0"`
	ErrorOrder     int `env:"DUNGEONTALK_ERROR_ORDER" envDefault:"9998"`
	TurnEndOrder   int `env:"DUNGEONTALK_TURN_END_ORDER" envDefault:"9999"`

	// ReapInterval is how often the reaper sweeps for abandoned rooms.
	ReapInterval time.Duration `env:"DUNGEONTALK_REAP_INTERVAL" envDefault:"10m"`

	// ReapAfter is the inactivity threshold before a room is reclaimed.
	ReapAfter time.Duration `env:"DUNGEONTALK_REAP_AFTER" envDefault:"24h"`

	// OtelEndpoint enables trace export when non-empty.
	OtelEndpoint string `env:"DUNGEONTALK_OTEL_ENDPOINT"`
	OtelEnabled  bool   `env:"DUNGEONTALK_OTEL_ENABLED" envDefault:"true"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses a Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.TurnStartOrder < 0 || cfg.TurnStartOrder >= cfg.ErrorOrder || cfg.ErrorOrder >= cfg.TurnEndOrder {
		return Config{}, fmt.Errorf("sentinel orders must satisfy 0 <= turn start (%d) < error (%d) < turn end (%d)",
			cfg.TurnStartOrder, cfg.ErrorOrder, cfg.TurnEndOrder)
	}
	return cfg, nil
}

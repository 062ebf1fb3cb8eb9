// Package config loads server settings from the environment, with an
// optional YAML file (FLIPFLOP_CONFIG) applied underneath env overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

type AppConfig struct {
	Addr string

	PingInterval   time.Duration
	PingWait       time.Duration
	ReconnectGrace time.Duration
	RoomIdleTTL    time.Duration

	AIMoveDelay    time.Duration
	AIThinkTimeout time.Duration

	// WinOnEntry awards the game the moment a piece reaches the enemy goal
	// instead of after the defender's reply.
	WinOnEntry bool

	RedisURL    string
	DatabaseURL string
}

// fileConfig is the YAML shape; durations are strings like "30s".
type fileConfig struct {
	Addr           string `yaml:"addr"`
	PingInterval   string `yaml:"ping_interval"`
	PingWait       string `yaml:"ping_wait"`
	ReconnectGrace string `yaml:"reconnect_grace"`
	RoomIdleTTL    string `yaml:"room_idle_ttl"`
	AIMoveDelay    string `yaml:"ai_move_delay"`
	AIThinkTimeout string `yaml:"ai_think_timeout"`
	WinOnEntry     *bool  `yaml:"win_on_entry"`
	RedisURL       string `yaml:"redis_url"`
	DatabaseURL    string `yaml:"database_url"`
}

func defaults() *AppConfig {
	return &AppConfig{
		Addr:           ":8080",
		PingInterval:   30 * time.Second,
		PingWait:       15 * time.Second,
		ReconnectGrace: 30 * time.Second,
		RoomIdleTTL:    30 * time.Minute,
		AIMoveDelay:    700 * time.Millisecond,
		AIThinkTimeout: 5 * time.Second,
	}
}

// Load builds the config: defaults, then the YAML file named by
// FLIPFLOP_CONFIG when set, then environment variables.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("FLIPFLOP_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		if err := applyFile(cfg, &fc); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("ADDR")); v != "" {
		cfg.Addr = v
	}
	loadDuration("PING_INTERVAL", &cfg.PingInterval)
	loadDuration("PING_WAIT", &cfg.PingWait)
	loadDuration("RECONNECT_GRACE", &cfg.ReconnectGrace)
	loadDuration("ROOM_IDLE_TTL", &cfg.RoomIdleTTL)
	loadDuration("AI_MOVE_DELAY", &cfg.AIMoveDelay)
	loadDuration("AI_THINK_TIMEOUT", &cfg.AIThinkTimeout)

	if v := strings.TrimSpace(os.Getenv("WIN_ON_ENTRY")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.WinOnEntry = b
		}
	}

	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	return cfg, nil
}

func applyFile(cfg *AppConfig, fc *fileConfig) error {
	if fc.Addr != "" {
		cfg.Addr = fc.Addr
	}
	durs := []struct {
		raw string
		dst *time.Duration
	}{
		{fc.PingInterval, &cfg.PingInterval},
		{fc.PingWait, &cfg.PingWait},
		{fc.ReconnectGrace, &cfg.ReconnectGrace},
		{fc.RoomIdleTTL, &cfg.RoomIdleTTL},
		{fc.AIMoveDelay, &cfg.AIMoveDelay},
		{fc.AIThinkTimeout, &cfg.AIThinkTimeout},
	}
	for _, d := range durs {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return err
		}
		*d.dst = v
	}
	if fc.WinOnEntry != nil {
		cfg.WinOnEntry = *fc.WinOnEntry
	}
	if fc.RedisURL != "" {
		cfg.RedisURL = fc.RedisURL
	}
	if fc.DatabaseURL != "" {
		cfg.DatabaseURL = fc.DatabaseURL
	}
	return nil
}

func loadDuration(key string, dst *time.Duration) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
	}
}

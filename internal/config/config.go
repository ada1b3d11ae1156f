// Package config reads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the server settings. ElevenLabs settings are read by the
// elevenlabs adapter itself.
type Config struct {
	Port               string
	AllowedOrigin      string
	LogLevel           string
	StaticDir          string
	RedisURL           string
	RelayTicketSecret  string
	RelayTicketTTL     time.Duration
	PlaybackAckTimeout time.Duration
	GeneratedTicketKey bool
}

// Load reads the configuration. When RELAY_TICKET_SECRET is unset a random
// secret is generated, which is only valid for a single server instance.
func Load() (Config, error) {
	cfg := Config{
		Port:               envStr("PORT", "8080"),
		AllowedOrigin:      envStr("ALLOWED_ORIGIN", "*"),
		LogLevel:           envStr("LOG_LEVEL", "info"),
		StaticDir:          envStr("STATIC_DIR", ""),
		RedisURL:           envStr("REDIS_URL", ""),
		RelayTicketSecret:  envStr("RELAY_TICKET_SECRET", ""),
		RelayTicketTTL:     time.Duration(envInt("RELAY_TICKET_TTL_SECONDS", 60)) * time.Second,
		PlaybackAckTimeout: time.Duration(envInt("PLAYBACK_ACK_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	if cfg.RelayTicketSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return Config{}, fmt.Errorf("failed to generate relay ticket secret: %w", err)
		}
		cfg.RelayTicketSecret = secret
		cfg.GeneratedTicketKey = true
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the loaded values
func Validate(cfg Config) error {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid PORT %q", cfg.Port)
	}
	if cfg.RelayTicketTTL <= 0 {
		return fmt.Errorf("RELAY_TICKET_TTL_SECONDS must be positive")
	}
	if cfg.PlaybackAckTimeout <= 0 {
		return fmt.Errorf("PLAYBACK_ACK_TIMEOUT_SECONDS must be positive")
	}
	if len(cfg.RelayTicketSecret) < 16 {
		return fmt.Errorf("RELAY_TICKET_SECRET must be at least 16 characters")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

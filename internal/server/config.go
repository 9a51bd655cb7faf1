// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the GoChat service.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/Tyrowin/gochat/internal/chat"
)

// RateLimitConfig defines the parameters for per-connection event rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// AuthConfig configures identity token verification. An empty Secret
// disables verification and every join is unauthenticated.
type AuthConfig struct {
	Secret string
	Issuer string
}

// Config holds the server configuration settings including security controls
// and the chat engine settings.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	SendBufferSize  int
	RateLimit       RateLimitConfig
	Chat            chat.Config
	Auth            AuthConfig
	LogLevel        string
	ShutdownTimeout time.Duration
}

// environment mirrors Config as flat environment variables.
type environment struct {
	Port              string        `env:"SERVER_PORT,default=:8080"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS"`
	MaxMessageSize    int64         `env:"MAX_MESSAGE_SIZE,default=4096"`
	SendBufferSize    int           `env:"SEND_BUFFER_SIZE,default=256"`
	RateLimitBurst    int           `env:"RATE_LIMIT_BURST,default=10"`
	RateLimitInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
	Rooms             string        `env:"ROOMS"`
	DefaultRoom       string        `env:"DEFAULT_ROOM"`
	HistoryCap        int           `env:"HISTORY_CAP,default=100"`
	HistoryWindow     int           `env:"HISTORY_WINDOW,default=50"`
	AuthSecret        string        `env:"AUTH_SECRET"`
	AuthIssuer        string        `env:"AUTH_ISSUER,default=gochat"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		SendBufferSize: 256,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		Chat:            chat.DefaultConfig(),
		Auth:            AuthConfig{Issuer: "gochat"},
		LogLevel:        "INFO",
		ShutdownTimeout: 10 * time.Second,
	}
}

func sanitizeConfig(cfg Config) Config {
	defaults := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaults.SendBufferSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	cfg.Chat.Rooms = append([]string(nil), cfg.Chat.Rooms...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config from environment variables, reading a
// .env file first when one exists. Unset variables fall back to defaults.
func NewConfigFromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var e environment
	if _, err := env.UnmarshalFromEnviron(&e); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	cfg := defaultConfig()
	cfg.Port = e.Port
	if e.AllowedOrigins != "" {
		cfg.AllowedOrigins = parseList(e.AllowedOrigins)
	}
	cfg.MaxMessageSize = e.MaxMessageSize
	cfg.SendBufferSize = e.SendBufferSize
	cfg.RateLimit = RateLimitConfig{Burst: e.RateLimitBurst, RefillInterval: e.RateLimitInterval}
	if e.Rooms != "" {
		cfg.Chat.Rooms = parseList(e.Rooms)
	}
	if e.DefaultRoom != "" || e.Rooms != "" {
		cfg.Chat.DefaultRoom = e.DefaultRoom
	}
	cfg.Chat.HistoryCap = e.HistoryCap
	cfg.Chat.HistoryWindow = e.HistoryWindow
	cfg.Auth = AuthConfig{Secret: e.AuthSecret, Issuer: e.AuthIssuer}
	cfg.LogLevel = e.LogLevel
	cfg.ShutdownTimeout = e.ShutdownTimeout

	sanitized := sanitizeConfig(cfg)
	return &sanitized, nil
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

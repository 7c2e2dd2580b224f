package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "ROOMCAST"

// Message store backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// ServerConfig holds settings for the HTTP, WebSocket and TCP runtime.
type ServerConfig struct {
	HTTPAddr       string         `envconfig:"HTTP_ADDR" default:":8080"`
	TCPAddr        string         `envconfig:"TCP_ADDR"`
	Env            string         `envconfig:"ENV" default:"development"`
	LogLevel       string         `envconfig:"LOG_LEVEL" default:"info"`
	MessageBackend string         `envconfig:"MESSAGE_BACKEND" default:"sqlite"`
	RedisURL       string         `envconfig:"REDIS_URL"`
	HistoryLimit   int            `envconfig:"HISTORY_LIMIT" default:"100"`
	ReadTimeout    time.Duration  `envconfig:"READ_TIMEOUT" default:"60s"`
	WriteTimeout   time.Duration  `envconfig:"WRITE_TIMEOUT" default:"10s"`
	MaxFrameBytes  int            `envconfig:"MAX_FRAME_BYTES" default:"65536"`
	SendBuffer     int            `envconfig:"SEND_BUFFER" default:"64"`
	Database       DatabaseConfig `envconfig:"DB"`
	JWT            JWTConfig      `envconfig:"JWT"`
}

// ClientConfig holds settings for the terminal client.
type ClientConfig struct {
	ServerURL     string `envconfig:"SERVER_URL" default:"http://localhost:8080"`
	CommandPrefix string `envconfig:"COMMAND_PREFIX" default:"/"`
}

// DatabaseConfig captures storage configuration.
type DatabaseConfig struct {
	Path string `envconfig:"PATH" default:"roomcast.db"`
}

// JWTConfig defines token issuance parameters.
type JWTConfig struct {
	Secret     string        `envconfig:"SECRET" default:"replace-me"`
	Issuer     string        `envconfig:"ISSUER" default:"roomcast"`
	Expiration time.Duration `envconfig:"EXPIRATION" default:"24h"`
}

// LoadServerConfig builds the server configuration from the environment,
// reading a .env file first when one exists.
func LoadServerConfig() (ServerConfig, error) {
	_ = godotenv.Load()

	var cfg ServerConfig
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadClientConfig builds the client configuration from the environment.
func LoadClientConfig() (ClientConfig, error) {
	_ = godotenv.Load()

	var cfg ClientConfig
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("process env: %w", err)
	}
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "/"
	}
	return cfg, nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c ServerConfig) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// Prefix returns the first rune of the configured command prefix.
func (c ClientConfig) Prefix() rune {
	runes := []rune(c.CommandPrefix)
	if len(runes) == 0 {
		return '/'
	}
	return runes[0]
}

func (c ServerConfig) validate() error {
	switch c.MessageBackend {
	case BackendSQLite:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%s_REDIS_URL is required for the redis message backend", envPrefix)
		}
	default:
		return fmt.Errorf("unknown message backend %q", c.MessageBackend)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("%s_HISTORY_LIMIT must be positive", envPrefix)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("%s_SEND_BUFFER must be positive", envPrefix)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	TCPAddr  string `env:"CHAT_TCP_ADDR" default:"127.0.0.1:3234"`
	WSAddr   string `env:"CHAT_WS_ADDR"`
	WSPath   string `env:"CHAT_WS_PATH" default:"/ws"`
	HTTPAddr string `env:"CHAT_HTTP_ADDR"`

	ReadBuffer   int           `env:"CHAT_READ_BUFFER" default:"1024"`
	WriteTimeout time.Duration `env:"CHAT_WRITE_TIMEOUT" default:"5s"`
	Echo         bool          `env:"CHAT_ECHO" default:"true"`
	Farewell     string        `env:"CHAT_FAREWELL" default:"Server Disconnected!"`
	History      string        `env:"CHAT_HISTORY" default:"log"` // log|stdout|none

	RedisAddr    string `env:"CHAT_REDIS_ADDR"`
	RedisDB      int    `env:"CHAT_REDIS_DB" default:"0"`
	RedisChannel string `env:"CHAT_REDIS_CHANNEL" default:"chat-relay"`

	LogLevel        string        `env:"CHAT_LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `env:"CHAT_SHUTDOWN_TIMEOUT" default:"5s"`
}

// Load 读取 .env（若存在）与环境变量
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.TCPAddr == "" {
		return errors.New("CHAT_TCP_ADDR is required")
	}
	if c.ReadBuffer <= 0 {
		return fmt.Errorf("CHAT_READ_BUFFER must be positive, got %d", c.ReadBuffer)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("CHAT_WRITE_TIMEOUT must not be negative, got %s", c.WriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("CHAT_SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	switch c.History {
	case "log", "stdout", "none":
	default:
		return fmt.Errorf("CHAT_HISTORY must be one of log|stdout|none, got %q", c.History)
	}
	return nil
}

func (c *Config) FederationEnabled() bool { return c.RedisAddr != "" }

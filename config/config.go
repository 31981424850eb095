// Package config loads server configuration from defaults, an optional YAML
// file and PRESENCE_* environment variables, in that order.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	DB       DBConfig       `yaml:"db"`
	Log      LogConfig      `yaml:"log"`
	Holidays HolidaysConfig `yaml:"holidays"`
	CORS     CORSConfig     `yaml:"cors"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DBConfig struct {
	Driver string `yaml:"driver"` // sqlite | memory
	Path   string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type HolidaysConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Driver: "sqlite",
			Path:   "./data/presence.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Holidays: HolidaysConfig{
			BaseURL: "https://date.nager.at",
			Timeout:  5 * time.Second,
			CacheTTL: 24 * time.Hour,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		},
	}
}

// Load reads configuration from an optional YAML file and environment
// variables. An empty path falls back to PRESENCE_CONFIG_PATH.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("PRESENCE_CONFIG_PATH")
	}
	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if host := os.Getenv("PRESENCE_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("PRESENCE_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PRESENCE_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if driver := os.Getenv("PRESENCE_DB_DRIVER"); driver != "" {
		cfg.DB.Driver = driver
	}
	if dbPath := os.Getenv("PRESENCE_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("PRESENCE_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if url := os.Getenv("PRESENCE_HOLIDAYS_BASE_URL"); url != "" {
		cfg.Holidays.BaseURL = url
	}
	if timeout := os.Getenv("PRESENCE_HOLIDAYS_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PRESENCE_HOLIDAYS_TIMEOUT: %w", err)
		}
		cfg.Holidays.Timeout = d
	}
	if ttl := os.Getenv("PRESENCE_HOLIDAYS_CACHE_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PRESENCE_HOLIDAYS_CACHE_TTL: %w", err)
		}
		cfg.Holidays.CacheTTL = d
	}
	if origins := os.Getenv("PRESENCE_CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORS.AllowedOrigins = strings.Split(origins, ",")
	}

	return cfg, cfg.Validate()
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			return fmt.Errorf("db.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("db.driver %q is not one of sqlite, memory", c.DB.Driver)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Addr returns host:port for the HTTP listener.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// SlogLevel returns the configured log level, info if unparsable.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server and client configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Game     GameConfig     `yaml:"game"`
}

// ServerConfig configures the HTTP/websocket listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Origin is the only origin board frames may talk from.
	Origin string `yaml:"origin"`
}

// RedisConfig configures the shared room store and the redis session backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig configures the optional postgres game archive.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// StorageConfig selects where session records and rooms live.
type StorageConfig struct {
	Backend    string `yaml:"backend"`     // memory | redis
	SessionTTL int    `yaml:"session_ttl"` // hours, 0 keeps records forever
}

// GameConfig holds room and game lifecycle settings.
type GameConfig struct {
	RoomCodeLength int `yaml:"room_code_length"`
	RoomTTL        int `yaml:"room_ttl"`     // hours
	IdleTimeout    int `yaml:"idle_timeout"` // hours before an offline game is evicted
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// RoomTTLDuration returns how long an untouched room document is kept.
func (c *GameConfig) RoomTTLDuration() time.Duration {
	return time.Duration(c.RoomTTL) * time.Hour
}

// IdleTimeoutDuration returns the offline game eviction timeout.
func (c *GameConfig) IdleTimeoutDuration() time.Duration {
	return time.Duration(c.IdleTimeout) * time.Hour
}

// SessionTTLDuration returns the session record lifetime, zero meaning forever.
func (c *StorageConfig) SessionTTLDuration() time.Duration {
	return time.Duration(c.SessionTTL) * time.Hour
}

// Addr returns host:port for the listener.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads a YAML config file and fills in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Storage.Backend != "" && cfg.Storage.Backend != BackendMemory && cfg.Storage.Backend != BackendRedis {
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Origin == "" {
		c.Server.Origin = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendMemory
	}
	if c.Game.RoomCodeLength == 0 {
		c.Game.RoomCodeLength = 6
	}
	if c.Game.RoomTTL == 0 {
		c.Game.RoomTTL = 24
	}
	if c.Game.IdleTimeout == 0 {
		c.Game.IdleTimeout = 24
	}
}

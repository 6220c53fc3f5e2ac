package config

import (
	"time"

	"github.com/vietddude/syncgate/internal/infra/store"
	"github.com/vietddude/syncgate/internal/infra/transport"
	"github.com/vietddude/syncgate/internal/sync/cache"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig          `yaml:"server"`
	Logging      LoggingConfig         `yaml:"logging"`
	Remote       RemoteConfig          `yaml:"remote"`
	Budget       transport.Config      `yaml:"budget"`
	Retry        transport.RetryConfig `yaml:"retry"`
	Storage      StorageConfig         `yaml:"storage"`
	Cache        cache.Config          `yaml:"cache"`
	Connectivity ConnectivityConfig    `yaml:"connectivity"`
}

// ServerConfig holds status server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RemoteConfig describes the upstream API.
type RemoteConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig selects and configures the durable backend.
type StorageConfig struct {
	Backend       string               `yaml:"backend"` // memory, badger, redis, postgres
	Path          string               `yaml:"path"`    // badger data directory
	CapacityBytes int                  `yaml:"capacity_bytes"`
	Redis         store.RedisConfig    `yaml:"redis"`
	Database      store.PostgresConfig `yaml:"database"`
}

// ConnectivityConfig controls the reachability probe.
type ConnectivityConfig struct {
	ProbeURL      string        `yaml:"probe_url"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

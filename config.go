package agentbus

import (
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/meshify/agentbus-go/persistence"
)

// Config is the YAML-file representation of the bus tuning knobs. Durations
// are expressed in seconds; zero values fall back to the defaults in
// options.go.
type Config struct {
	DefaultLaneCapacity    int               `yaml:"default_lane_capacity"`
	CriticalLaneCapacity   int               `yaml:"critical_lane_capacity"`
	MaxRetries             int               `yaml:"max_retries"`
	AckTimeoutSeconds      int               `yaml:"ack_timeout_seconds"`
	SchedulerTickSeconds   int               `yaml:"scheduler_tick_seconds"`
	SweepIntervalSeconds   int               `yaml:"sweep_interval_seconds"`
	RetentionSeconds       int               `yaml:"dead_letter_retention_seconds"`
	DeadLetterLimit        int               `yaml:"dead_letter_limit"`
	HistoryLimit           int               `yaml:"history_limit"`
	Persistence            PersistenceConfig `yaml:"persistence"`
}

// PersistenceConfig selects and configures the durable store backend.
type PersistenceConfig struct {
	// Backend is "file", "redis", or empty for no persistence.
	Backend   string `yaml:"backend"`
	Dir       string `yaml:"dir"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Options translates the config into bus options, constructing the
// persistence store when one is configured.
func (c *Config) Options() ([]Option, error) {
	var opts []Option

	if c.DefaultLaneCapacity > 0 || c.CriticalLaneCapacity > 0 {
		defaultCap := c.DefaultLaneCapacity
		if defaultCap <= 0 {
			defaultCap = DefaultLaneCapacity
		}
		criticalCap := c.CriticalLaneCapacity
		if criticalCap <= 0 {
			criticalCap = DefaultCriticalCapacity
		}
		opts = append(opts, WithLaneCapacities(defaultCap, criticalCap))
	}
	if c.MaxRetries > 0 {
		opts = append(opts, WithMaxRetries(c.MaxRetries))
	}
	if c.AckTimeoutSeconds > 0 {
		opts = append(opts, WithAckTimeout(time.Duration(c.AckTimeoutSeconds)*time.Second))
	}
	if c.SchedulerTickSeconds > 0 {
		opts = append(opts, WithSchedulerInterval(time.Duration(c.SchedulerTickSeconds)*time.Second))
	}
	if c.SweepIntervalSeconds > 0 {
		opts = append(opts, WithSweepInterval(time.Duration(c.SweepIntervalSeconds)*time.Second))
	}
	if c.RetentionSeconds > 0 {
		opts = append(opts, WithDeadLetterRetention(time.Duration(c.RetentionSeconds)*time.Second))
	}
	if c.DeadLetterLimit > 0 {
		opts = append(opts, WithDeadLetterLimit(c.DeadLetterLimit))
	}
	if c.HistoryLimit > 0 {
		opts = append(opts, WithHistoryLimit(c.HistoryLimit))
	}

	store, err := c.Persistence.build()
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts = append(opts, WithStore(store))
	}
	return opts, nil
}

func (p *PersistenceConfig) build() (persistence.Store, error) {
	switch p.Backend {
	case "":
		return nil, nil
	case "file":
		if p.Dir == "" {
			return nil, fmt.Errorf("persistence backend %q requires dir", p.Backend)
		}
		return persistence.NewFileStore(p.Dir)
	case "redis":
		if p.RedisAddr == "" {
			return nil, fmt.Errorf("persistence backend %q requires redis_addr", p.Backend)
		}
		client := redis.NewClient(&redis.Options{Addr: p.RedisAddr, DB: p.RedisDB})
		var opts []persistence.RedisStoreOption
		if p.KeyPrefix != "" {
			opts = append(opts, persistence.WithKeyPrefix(p.KeyPrefix))
		}
		return persistence.NewRedisStore(client, opts...), nil
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", p.Backend)
	}
}

package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	coreagg "github.com/aevon-lab/rollupd/internal/core/aggregation"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "ROLLUPD_"

// Config represents the top-level application config plus the loaded definitions.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Store       StoreConfig       `koanf:"store"`
	Aggregation AggregationConfig `koanf:"aggregation"`
	Kafka       KafkaConfig       `koanf:"kafka"`

	// Definitions is populated by Load after parsing definition files.
	Definitions *coreagg.FileSystemDefinitionRepository `koanf:"-"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"`      // debug | release
	LogLevel      string `koanf:"log_level"` // debug | info | warn | error
}

type StoreConfig struct {
	Type         string `koanf:"type"` // memory | postgres | badger
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
	Path         string `koanf:"path"`
	InMemory     bool   `koanf:"in_memory"`
	SyncWrites   bool   `koanf:"sync_writes"`
	MaxRetries   int    `koanf:"max_retries"`
}

type AggregationConfig struct {
	ConfigDir                 string            `koanf:"config_dir"`
	RequireDefinitions        bool              `koanf:"require_definitions"`
	BufferSize                int               `koanf:"buffer_size"`
	DropEventsOlderThanBuffer bool              `koanf:"drop_events_older_than_buffer"`
	Timezone                  string            `koanf:"timezone"`
	Lanes                     int               `koanf:"lanes"`
	BatchWorkers              int               `koanf:"batch_workers"`
	PatternCacheSize          int               `koanf:"pattern_cache_size"`
	PurgeEnabled              bool              `koanf:"purge_enabled"`
	PurgeInterval             string            `koanf:"purge_interval"`
	Retention                 map[string]string `koanf:"retention"` // granularity -> max age, e.g. seconds: 2h
}

type KafkaConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Brokers  []string `koanf:"brokers"`
	Topic    string   `koanf:"topic"`
	GroupID  string   `koanf:"group_id"`
	MinBytes int      `koanf:"min_bytes"`
	MaxBytes int      `koanf:"max_bytes"`
}

// Location resolves aggregation.timezone.
func (c AggregationConfig) Location() (*time.Location, error) {
	return coreagg.ParseLocation(c.Timezone)
}

// PurgeEvery parses aggregation.purge_interval.
func (c AggregationConfig) PurgeEvery() (time.Duration, error) {
	return ParseDuration(c.PurgeInterval)
}

// RetentionPolicy parses aggregation.retention into a max age per granularity.
func (c AggregationConfig) RetentionPolicy() (map[coreagg.Granularity]time.Duration, error) {
	out := make(map[coreagg.Granularity]time.Duration, len(c.Retention))
	for name, raw := range c.Retention {
		g, err := coreagg.ParseGranularity(name)
		if err != nil {
			return nil, fmt.Errorf("aggregation.retention: %w", err)
		}
		d, err := ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("aggregation.retention.%s: %w", name, err)
		}
		out[g] = d
	}
	return out, nil
}

// SlogLevel maps server.log_level to a slog level.
func (c ServerConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseDuration accepts time.ParseDuration forms plus whole days ("30d").
// The duration must be positive.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var d time.Duration
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		var err error
		if d, err = time.ParseDuration(s); err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be > 0", s)
	}
	return d, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	switch c.Store.Type {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("store.dsn is required for postgres")
		}
		if c.Store.MaxOpenConns <= 0 {
			return fmt.Errorf("store.max_open_conns must be > 0")
		}
		if c.Store.MaxIdleConns <= 0 {
			return fmt.Errorf("store.max_idle_conns must be > 0")
		}
	case "badger":
		if !c.Store.InMemory && strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("store.path is required for badger unless store.in_memory is set")
		}
	default:
		return fmt.Errorf("unsupported store.type %q (must be memory, postgres or badger)", c.Store.Type)
	}
	if c.Store.MaxRetries <= 0 {
		return fmt.Errorf("store.max_retries must be > 0")
	}

	if strings.TrimSpace(c.Aggregation.ConfigDir) == "" {
		return fmt.Errorf("aggregation.config_dir is required")
	}
	if c.Aggregation.BufferSize < 0 {
		return fmt.Errorf("aggregation.buffer_size must be >= 0")
	}
	if c.Aggregation.Lanes <= 0 {
		return fmt.Errorf("aggregation.lanes must be > 0")
	}
	if c.Aggregation.BatchWorkers <= 0 {
		return fmt.Errorf("aggregation.batch_workers must be > 0")
	}
	if _, err := c.Aggregation.Location(); err != nil {
		return fmt.Errorf("invalid aggregation.timezone: %w", err)
	}
	if c.Aggregation.PurgeEnabled {
		if _, err := c.Aggregation.PurgeEvery(); err != nil {
			return fmt.Errorf("invalid aggregation.purge_interval: %w", err)
		}
	}
	if _, err := c.Aggregation.RetentionPolicy(); err != nil {
		return err
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if strings.TrimSpace(c.Kafka.Topic) == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
		if strings.TrimSpace(c.Kafka.GroupID) == "" {
			return fmt.Errorf("kafka.group_id is required when kafka is enabled")
		}
	}

	return nil
}

// Load parses config from file + env, validates it, then loads and validates
// the aggregation definitions.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                               8080,
		"server.host":                               "0.0.0.0",
		"server.max_body_size_mb":                   1,
		"server.mode":                               "release",
		"server.log_level":                          "info",
		"store.type":                                "memory",
		"store.dsn":                                 "",
		"store.max_open_conns":                      25,
		"store.max_idle_conns":                      25,
		"store.auto_migrate":                        true,
		"store.path":                                "./data/buckets",
		"store.in_memory":                           false,
		"store.sync_writes":                         false,
		"store.max_retries":                         8,
		"aggregation.config_dir":                    "./config/aggregations",
		"aggregation.require_definitions":           true,
		"aggregation.buffer_size":                   3,
		"aggregation.drop_events_older_than_buffer": false,
		"aggregation.timezone":                      "UTC",
		"aggregation.lanes":                         16,
		"aggregation.batch_workers":                 8,
		"aggregation.pattern_cache_size":            256,
		"aggregation.purge_enabled":                 false,
		"aggregation.purge_interval":                "1h",
		"kafka.enabled":                             false,
		"kafka.group_id":                            "rollupd",
		"kafka.min_bytes":                           1,
		"kafka.max_bytes":                           10 << 20,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.Replace(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "__", ".", -1)
		if key == "kafka.brokers" {
			return key, strings.Split(value, ",")
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	repo, err := coreagg.NewFileSystemDefinitionRepository(cfg.Aggregation.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load aggregation definitions: %w", err)
	}
	if cfg.Aggregation.RequireDefinitions && repo.Len() == 0 {
		return nil, fmt.Errorf("no aggregation definitions found in %q", cfg.Aggregation.ConfigDir)
	}
	cfg.Definitions = repo

	return &cfg, nil
}

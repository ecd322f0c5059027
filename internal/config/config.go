// Package config loads service settings from configs/config.yml with
// MONITOR_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"machine_monitor/internal/models"

	"github.com/spf13/viper"
)

const envPrefix = "MONITOR"

type Config struct {
	Port      string
	LogLevel  string
	LogFormat string // console | json
	DB        DBConfig
	Lock      LockConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Outbox    OutboxConfig
	Offline   OfflineConfig
	Status    StatusConfig
	Cache     CacheConfig
}

type DBConfig struct {
	Driver string // sqlite | postgres
	Path   string // sqlite file
	DSN    string // postgres connection string
}

type LockConfig struct {
	Backend string // memory | redis
	Lease   time.Duration
	Wait    time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers      []string
	SignalsTopic string
	EventsTopic  string
	GroupID      string
}

type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

type OfflineConfig struct {
	After         time.Duration
	SweepInterval time.Duration
}

// StatusConfig classifies canonical status labels and supplies the fallback mapping
// for machines without their own status_configs row.
type StatusConfig struct {
	Running         []string
	Downtime        []string
	UnknownColor    string
	OfflineColor    string
	DefaultMappings []models.StatusMapping
}

type CacheConfig struct {
	StatusTTL time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.path", "app.db")
	v.SetDefault("lock.backend", "memory")
	v.SetDefault("lock.lease", "10s")
	v.SetDefault("lock.wait", "3s")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.signals_topic", "machine-signals")
	v.SetDefault("kafka.events_topic", "machine-activity")
	v.SetDefault("kafka.group_id", "machine-monitor")
	v.SetDefault("outbox.poll_interval", "1s")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("offline.after", "5m")
	v.SetDefault("offline.sweep_interval", "30s")
	v.SetDefault("status.running", []string{models.StatusRunning})
	v.SetDefault("status.downtime", []string{models.StatusDown})
	v.SetDefault("status.unknown_color", "#9E9E9E")
	v.SetDefault("status.offline_color", "#616161")
	v.SetDefault("cache.status_ttl", "1m")
}

// New returns a viper instance reading <dir>/config.yml, env overrides and defaults.
func New(dir string) *viper.Viper {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the config file (a missing file is fine; defaults apply) and decodes it.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:      v.GetString("port"),
		LogLevel:  v.GetString("log_level"),
		LogFormat: strings.ToLower(v.GetString("log_format")),
		DB: DBConfig{
			Driver: strings.ToLower(v.GetString("db.driver")),
			Path:   v.GetString("db.path"),
			DSN:    v.GetString("db.dsn"),
		},
		Lock: LockConfig{
			Backend: strings.ToLower(v.GetString("lock.backend")),
			Lease:   v.GetDuration("lock.lease"),
			Wait:    v.GetDuration("lock.wait"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Kafka: KafkaConfig{
			Brokers:      v.GetStringSlice("kafka.brokers"),
			SignalsTopic: v.GetString("kafka.signals_topic"),
			EventsTopic:  v.GetString("kafka.events_topic"),
			GroupID:      v.GetString("kafka.group_id"),
		},
		Outbox: OutboxConfig{
			PollInterval: v.GetDuration("outbox.poll_interval"),
			BatchSize:    v.GetInt("outbox.batch_size"),
		},
		Offline: OfflineConfig{
			After:         v.GetDuration("offline.after"),
			SweepInterval: v.GetDuration("offline.sweep_interval"),
		},
		Cache: CacheConfig{
			StatusTTL: v.GetDuration("cache.status_ttl"),
		},
	}

	status, err := decodeStatus(v)
	if err != nil {
		return Config{}, err
	}
	cfg.Status = status

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeStatus(v *viper.Viper) (StatusConfig, error) {
	st := StatusConfig{
		Running:      v.GetStringSlice("status.running"),
		Downtime:     v.GetStringSlice("status.downtime"),
		UnknownColor: v.GetString("status.unknown_color"),
		OfflineColor: v.GetString("status.offline_color"),
	}
	if err := v.UnmarshalKey("status.default_mappings", &st.DefaultMappings); err != nil {
		return StatusConfig{}, fmt.Errorf("decode status.default_mappings: %w", err)
	}
	return st, nil
}

func (c Config) validate() error {
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported db.driver %q", c.DB.Driver)
	}
	if c.DB.Driver == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required for postgres")
	}
	switch c.Lock.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported lock.backend %q", c.Lock.Backend)
	}
	if c.Lock.Lease <= 0 || c.Lock.Wait <= 0 {
		return fmt.Errorf("lock.lease and lock.wait must be positive")
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox.batch_size must be positive")
	}
	return nil
}

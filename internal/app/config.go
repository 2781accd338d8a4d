package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Драйверы хранилищ.
const (
	StorageDriverMemory   = "memory"
	StorageDriverFile     = "file"
	StorageDriverRedis    = "redis"
	StorageDriverPostgres = "postgres"
)

// DefaultConfigPath — путь к необязательному TOML-файлу конфигурации.
const DefaultConfigPath = "~/.config/storefront/config.toml"

// Config описывает настройки запуска сервиса сессий.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	LogLevel    string

	// Хранилище клиентских данных
	StorageDriver       string
	FileStorePath       string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	RedisKeyPrefix      string
	RedisTTL            time.Duration
	PostgresDSN         string
	PostgresAutoMigrate bool

	// Исходящая очередь синхронизации корзины
	OutboxDriver       string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int

	// Удалённый API корзины
	RemoteBaseURL string
	RemoteTimeout time.Duration

	// Kafka: DLQ и поток событий корзины; пустой список брокеров отключает Kafka
	KafkaBrokers     string
	KafkaClientID    string
	KafkaDLQTopic    string
	KafkaEventsTopic string

	SessionCacheSize int
	CORSOrigins      string
}

// DefaultConfig возвращает конфигурацию для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		LogLevel:            "info",
		StorageDriver:       StorageDriverMemory,
		FileStorePath:       "~/.local/share/storefront/sessions.toml",
		RedisAddr:           "localhost:6379",
		RedisKeyPrefix:      "storefront:",
		RedisTTL:            30 * 24 * time.Hour,
		PostgresAutoMigrate: true,
		OutboxDriver:        StorageDriverMemory,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   5,
		OutboxRetryDelay:    200 * time.Millisecond,
		OutboxMaxPending:    1000,
		RemoteTimeout:       5 * time.Second,
		KafkaClientID:       "storefront-session",
		SessionCacheSize:    1024,
		CORSOrigins:         "*",
	}
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http addr is required"))
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverFile:
		if strings.TrimSpace(c.FileStorePath) == "" {
			errs = append(errs, errors.New("file storage requires a path"))
		}
	case StorageDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("redis storage requires an address"))
		}
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres storage requires a DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.OutboxDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres outbox requires a DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported outbox driver %q", c.OutboxDriver))
	}

	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox batch size must be > 0"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox max attempts must be > 0"))
	}
	return errors.Join(errs...)
}

// Brokers возвращает список брокеров Kafka.
func (c Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

// AllowedOrigins возвращает список разрешённых CORS origin.
func (c Config) AllowedOrigins() []string {
	return splitList(c.CORSOrigins)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// fileConfig — представление TOML-файла. Длительности задаются строками ("5s").
type fileConfig struct {
	Server struct {
		HTTPAddr    *string `toml:"http_addr"`
		MetricsAddr *string `toml:"metrics_addr"`
		LogLevel    *string `toml:"log_level"`
		CORSOrigins *string `toml:"cors_origins"`
		CacheSize   *int    `toml:"session_cache_size"`
	} `toml:"server"`
	Storage struct {
		Driver              *string `toml:"driver"`
		FilePath            *string `toml:"file_path"`
		RedisAddr           *string `toml:"redis_addr"`
		RedisPassword       *string `toml:"redis_password"`
		RedisDB             *int    `toml:"redis_db"`
		RedisKeyPrefix      *string `toml:"redis_key_prefix"`
		RedisTTL            *string `toml:"redis_ttl"`
		PostgresDSN         *string `toml:"postgres_dsn"`
		PostgresAutoMigrate *bool   `toml:"postgres_auto_migrate"`
	} `toml:"storage"`
	Outbox struct {
		Driver       *string `toml:"driver"`
		PollInterval *string `toml:"poll_interval"`
		BatchSize    *int    `toml:"batch_size"`
		MaxAttempts  *int    `toml:"max_attempts"`
		RetryDelay   *string `toml:"retry_delay"`
		MaxPending   *int    `toml:"max_pending"`
	} `toml:"outbox"`
	Remote struct {
		BaseURL *string `toml:"base_url"`
		Timeout *string `toml:"timeout"`
	} `toml:"remote"`
	Kafka struct {
		Brokers     []string `toml:"brokers"`
		ClientID    *string  `toml:"client_id"`
		DLQTopic    *string  `toml:"dlq_topic"`
		EventsTopic *string  `toml:"events_topic"`
	} `toml:"kafka"`
}

// LoadConfigFile накладывает значения из TOML-файла на base. Отсутствующий
// файл не ошибка: возвращается base.
func LoadConfigFile(path string, base Config) (Config, error) {
	resolved, err := expandPath(path)
	if err != nil {
		return base, err
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return base, nil
		}
		return base, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return base, fmt.Errorf("decode config file %s: %w", resolved, err)
	}

	cfg := base
	setString(&cfg.HTTPAddr, fc.Server.HTTPAddr)
	setString(&cfg.MetricsAddr, fc.Server.MetricsAddr)
	setString(&cfg.LogLevel, fc.Server.LogLevel)
	setString(&cfg.CORSOrigins, fc.Server.CORSOrigins)
	setInt(&cfg.SessionCacheSize, fc.Server.CacheSize)

	setString(&cfg.StorageDriver, fc.Storage.Driver)
	setString(&cfg.FileStorePath, fc.Storage.FilePath)
	setString(&cfg.RedisAddr, fc.Storage.RedisAddr)
	setString(&cfg.RedisPassword, fc.Storage.RedisPassword)
	setInt(&cfg.RedisDB, fc.Storage.RedisDB)
	setString(&cfg.RedisKeyPrefix, fc.Storage.RedisKeyPrefix)
	setString(&cfg.PostgresDSN, fc.Storage.PostgresDSN)
	if fc.Storage.PostgresAutoMigrate != nil {
		cfg.PostgresAutoMigrate = *fc.Storage.PostgresAutoMigrate
	}

	setString(&cfg.OutboxDriver, fc.Outbox.Driver)
	setInt(&cfg.OutboxBatchSize, fc.Outbox.BatchSize)
	setInt(&cfg.OutboxMaxAttempts, fc.Outbox.MaxAttempts)
	setInt(&cfg.OutboxMaxPending, fc.Outbox.MaxPending)

	setString(&cfg.RemoteBaseURL, fc.Remote.BaseURL)

	if len(fc.Kafka.Brokers) > 0 {
		cfg.KafkaBrokers = strings.Join(fc.Kafka.Brokers, ",")
	}
	setString(&cfg.KafkaClientID, fc.Kafka.ClientID)
	setString(&cfg.KafkaDLQTopic, fc.Kafka.DLQTopic)
	setString(&cfg.KafkaEventsTopic, fc.Kafka.EventsTopic)

	durations := []struct {
		name string
		dst  *time.Duration
		raw  *string
	}{
		{"storage.redis_ttl", &cfg.RedisTTL, fc.Storage.RedisTTL},
		{"outbox.poll_interval", &cfg.OutboxPollInterval, fc.Outbox.PollInterval},
		{"outbox.retry_delay", &cfg.OutboxRetryDelay, fc.Outbox.RetryDelay},
		{"remote.timeout", &cfg.RemoteTimeout, fc.Remote.Timeout},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(*d.raw))
		if err != nil || parsed < 0 {
			return base, fmt.Errorf("config %s: invalid duration %q", d.name, *d.raw)
		}
		*d.dst = parsed
	}

	return cfg, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}

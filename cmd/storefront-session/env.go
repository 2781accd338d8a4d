package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/app"
)

const (
	envConfigPath          = "STOREFRONT_CONFIG"
	envHTTPAddr            = "STOREFRONT_HTTP_ADDR"
	envMetricsAddr         = "STOREFRONT_METRICS_ADDR"
	envLogLevel            = "STOREFRONT_LOG_LEVEL"
	envCORSOrigins         = "STOREFRONT_CORS_ORIGINS"
	envSessionCacheSize    = "STOREFRONT_SESSION_CACHE_SIZE"
	envStorageDriver       = "STOREFRONT_STORAGE_DRIVER"
	envFileStorePath       = "STOREFRONT_FILE_STORE_PATH"
	envRedisAddr           = "STOREFRONT_REDIS_ADDR"
	envRedisPassword       = "STOREFRONT_REDIS_PASSWORD"
	envRedisDB             = "STOREFRONT_REDIS_DB"
	envRedisKeyPrefix      = "STOREFRONT_REDIS_KEY_PREFIX"
	envRedisTTL            = "STOREFRONT_REDIS_TTL"
	envPostgresDSN         = "STOREFRONT_POSTGRES_DSN"
	envPostgresAutoMigrate = "STOREFRONT_POSTGRES_AUTO_MIGRATE"
	envOutboxDriver        = "STOREFRONT_OUTBOX_DRIVER"
	envOutboxPollInterval  = "STOREFRONT_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "STOREFRONT_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "STOREFRONT_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "STOREFRONT_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending    = "STOREFRONT_OUTBOX_MAX_PENDING"
	envRemoteBaseURL       = "STOREFRONT_REMOTE_BASE_URL"
	envRemoteTimeout       = "STOREFRONT_REMOTE_TIMEOUT"
	envKafkaBrokers        = "STOREFRONT_KAFKA_BROKERS"
	envKafkaClientID       = "STOREFRONT_KAFKA_CLIENT_ID"
	envKafkaDLQTopic       = "STOREFRONT_KAFKA_DLQ_TOPIC"
	envKafkaEventsTopic    = "STOREFRONT_KAFKA_EVENTS_TOPIC"
)

type envLookup func(string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на base. Некорректные
// значения не прерывают запуск: остаётся значение из base, а в ответ
// попадает предупреждение.
func readConfigFromEnv(base app.Config, lookup envLookup) (app.Config, []string) {
	cfg := base
	var warnings []string

	warn := func(key string, err error) {
		warnings = append(warnings, fmt.Sprintf("ignore %s: %v", key, err))
	}

	overrides := []struct {
		key   string
		dst   *string
		lower bool
	}{
		{envHTTPAddr, &cfg.HTTPAddr, false},
		{envMetricsAddr, &cfg.MetricsAddr, false},
		{envLogLevel, &cfg.LogLevel, true},
		{envCORSOrigins, &cfg.CORSOrigins, false},
		{envStorageDriver, &cfg.StorageDriver, true},
		{envFileStorePath, &cfg.FileStorePath, false},
		{envRedisAddr, &cfg.RedisAddr, false},
		{envRedisPassword, &cfg.RedisPassword, false},
		{envRedisKeyPrefix, &cfg.RedisKeyPrefix, false},
		{envPostgresDSN, &cfg.PostgresDSN, false},
		{envOutboxDriver, &cfg.OutboxDriver, true},
		{envRemoteBaseURL, &cfg.RemoteBaseURL, false},
		{envKafkaBrokers, &cfg.KafkaBrokers, false},
		{envKafkaClientID, &cfg.KafkaClientID, false},
		{envKafkaDLQTopic, &cfg.KafkaDLQTopic, false},
		{envKafkaEventsTopic, &cfg.KafkaEventsTopic, false},
	}
	for _, s := range overrides {
		v, ok := lookup(s.key)
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if s.lower {
			v = strings.ToLower(v)
		}
		*s.dst = v
	}

	if v, ok := lookup(envPostgresAutoMigrate); ok {
		parsed, err := parseBool(v)
		if err != nil {
			warn(envPostgresAutoMigrate, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	ints := []struct {
		key   string
		dst   *int
		valid func(int) bool
		msg   string
	}{
		{envSessionCacheSize, &cfg.SessionCacheSize, positive, "must be > 0"},
		{envRedisDB, &cfg.RedisDB, nonNegative, "must be >= 0"},
		{envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0"},
		{envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0"},
		{envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0"},
	}
	for _, i := range ints {
		v, ok := lookup(i.key)
		if !ok {
			continue
		}
		parsed, err := parseInt(v, i.valid, i.msg)
		if err != nil {
			warn(i.key, err)
			continue
		}
		*i.dst = parsed
	}

	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }
	durations := []struct {
		key   string
		dst   *time.Duration
		valid func(time.Duration) bool
		msg   string
	}{
		{envRedisTTL, &cfg.RedisTTL, nonNegativeDuration, "must be >= 0"},
		{envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0"},
		{envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0"},
		{envRemoteTimeout, &cfg.RemoteTimeout, positiveDuration, "must be > 0"},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok {
			continue
		}
		parsed, err := parseDuration(v, d.valid, d.msg)
		if err != nil {
			warn(d.key, err)
			continue
		}
		*d.dst = parsed
	}

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, msg string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int %q", raw)
	}
	if !valid(v) {
		return 0, fmt.Errorf("%d %s", v, msg)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, msg string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if !valid(v) {
		return 0, fmt.Errorf("%s %s", v, msg)
	}
	return v, nil
}

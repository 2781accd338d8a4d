package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected HTTPAddr :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Errorf("expected StorageDriver %s, got %s", StorageDriverMemory, cfg.StorageDriver)
	}
	if cfg.OutboxDriver != StorageDriverMemory {
		t.Errorf("expected OutboxDriver %s, got %s", StorageDriverMemory, cfg.OutboxDriver)
	}
	if !cfg.PostgresAutoMigrate {
		t.Error("expected PostgresAutoMigrate to be true")
	}
	if cfg.OutboxPollInterval <= 0 || cfg.OutboxBatchSize <= 0 || cfg.OutboxMaxAttempts <= 0 {
		t.Errorf("unexpected outbox defaults: %+v", cfg)
	}
	if cfg.SessionCacheSize <= 0 {
		t.Error("expected SessionCacheSize to be > 0")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}
}

func TestConfig_Comparison(t *testing.T) {
	cfg1 := DefaultConfig()
	cfg2 := DefaultConfig()

	if cfg1 != cfg2 {
		t.Error("two DefaultConfig instances should be equal")
	}

	cfg2.HTTPAddr = ":8081"
	if cfg1 == cfg2 {
		t.Error("modified config should not be equal to original")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "memory ok", mutate: func(*Config) {}},
		{name: "file ok", mutate: func(c *Config) { c.StorageDriver = StorageDriverFile }},
		{name: "redis ok", mutate: func(c *Config) { c.StorageDriver = StorageDriverRedis }},
		{
			name:    "postgres requires dsn",
			mutate:  func(c *Config) { c.StorageDriver = StorageDriverPostgres },
			wantErr: "postgres storage requires a DSN",
		},
		{
			name:    "postgres outbox requires dsn",
			mutate:  func(c *Config) { c.OutboxDriver = StorageDriverPostgres },
			wantErr: "postgres outbox requires a DSN",
		},
		{
			name:    "unknown storage",
			mutate:  func(c *Config) { c.StorageDriver = "sqlite" },
			wantErr: "unsupported storage driver",
		},
		{
			name:    "unknown outbox",
			mutate:  func(c *Config) { c.OutboxDriver = "sqs" },
			wantErr: "unsupported outbox driver",
		},
		{
			name:    "empty http addr",
			mutate:  func(c *Config) { c.HTTPAddr = " " },
			wantErr: "http addr is required",
		},
		{
			name: "several errors",
			mutate: func(c *Config) {
				c.OutboxBatchSize = 0
				c.OutboxMaxAttempts = 0
			},
			wantErr: "outbox max attempts must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_Lists(t *testing.T) {
	cfg := Config{KafkaBrokers: " a:9092, ,b:9092 ", CORSOrigins: "https://shop.example.com"}

	brokers := cfg.Brokers()
	if len(brokers) != 2 || brokers[0] != "a:9092" || brokers[1] != "b:9092" {
		t.Fatalf("unexpected brokers: %v", brokers)
	}
	if origins := cfg.AllowedOrigins(); len(origins) != 1 {
		t.Fatalf("unexpected origins: %v", origins)
	}
	if got := (Config{}).Brokers(); len(got) != 0 {
		t.Fatalf("expected no brokers, got %v", got)
	}
}

func TestLoadConfigFile_MissingFileKeepsBase(t *testing.T) {
	base := DefaultConfig()
	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.toml"), base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != base {
		t.Fatalf("expected base config, got %+v", cfg)
	}
}

func TestLoadConfigFile_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
http_addr = "127.0.0.1:8000"
session_cache_size = 64

[storage]
driver = "redis"
redis_addr = "redis:6379"
redis_db = 2
redis_ttl = "48h"
postgres_auto_migrate = false

[outbox]
poll_interval = "250ms"
max_attempts = 9

[remote]
base_url = "https://api.shop.example.com"
timeout = "3s"

[kafka]
brokers = ["k1:9092", "k2:9092"]
dlq_topic = "shop.dlq"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfigFile(path, DefaultConfig())
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}

	if cfg.HTTPAddr != "127.0.0.1:8000" || cfg.SessionCacheSize != 64 {
		t.Errorf("server section not applied: %+v", cfg)
	}
	if cfg.StorageDriver != StorageDriverRedis || cfg.RedisAddr != "redis:6379" || cfg.RedisDB != 2 {
		t.Errorf("storage section not applied: %+v", cfg)
	}
	if cfg.RedisTTL != 48*time.Hour {
		t.Errorf("unexpected redis ttl: %s", cfg.RedisTTL)
	}
	if cfg.PostgresAutoMigrate {
		t.Error("expected PostgresAutoMigrate=false")
	}
	if cfg.OutboxPollInterval != 250*time.Millisecond || cfg.OutboxMaxAttempts != 9 {
		t.Errorf("outbox section not applied: %+v", cfg)
	}
	if cfg.OutboxBatchSize != DefaultConfig().OutboxBatchSize {
		t.Errorf("unset field must keep default, got %d", cfg.OutboxBatchSize)
	}
	if cfg.RemoteBaseURL != "https://api.shop.example.com" || cfg.RemoteTimeout != 3*time.Second {
		t.Errorf("remote section not applied: %+v", cfg)
	}
	if cfg.KafkaBrokers != "k1:9092,k2:9092" || cfg.KafkaDLQTopic != "shop.dlq" {
		t.Errorf("kafka section not applied: %+v", cfg)
	}
}

func TestLoadConfigFile_Errors(t *testing.T) {
	dir := t.TempDir()

	broken := filepath.Join(dir, "broken.toml")
	if err := os.WriteFile(broken, []byte("[server\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfigFile(broken, DefaultConfig()); err == nil {
		t.Fatal("expected decode error")
	}

	badDuration := filepath.Join(dir, "duration.toml")
	if err := os.WriteFile(badDuration, []byte("[outbox]\nretry_delay = \"soon\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := LoadConfigFile(badDuration, DefaultConfig())
	if err == nil || !strings.Contains(err.Error(), "outbox.retry_delay") {
		t.Fatalf("expected duration error, got %v", err)
	}
}

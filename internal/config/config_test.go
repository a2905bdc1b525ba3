package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATA_DIR", "DB_PATH", "NAV_TIMEOUT", "KAFKA_BROKERS", "HEADLESS", "MAX_ATTEMPTS"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.DBPath != "./data/carscout.db" {
		t.Fatalf("unexpected db path %s", cfg.DBPath)
	}
	if !cfg.Headless {
		t.Fatalf("expected headless by default")
	}
	if cfg.NavTimeout != 30*time.Second || cfg.MaxAttempts != 3 {
		t.Fatalf("unexpected crawl defaults: %v %d", cfg.NavTimeout, cfg.MaxAttempts)
	}
	if cfg.ProfileMaxAge != 7*24*time.Hour {
		t.Fatalf("unexpected profile max age %v", cfg.ProfileMaxAge)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("expected no kafka brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/carscout")
	t.Setenv("DB_PATH", "")
	t.Setenv("NAV_TIMEOUT", "45")
	t.Setenv("RETRY_BASE_DELAY", "500ms")
	t.Setenv("HEADLESS", "false")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MAX_ATTEMPTS", "not-a-number")

	cfg := FromEnv()
	if cfg.DBPath != "/var/lib/carscout/carscout.db" {
		t.Fatalf("db path should follow data dir, got %s", cfg.DBPath)
	}
	if cfg.NavTimeout != 45*time.Second {
		t.Fatalf("bare seconds should parse, got %v", cfg.NavTimeout)
	}
	if cfg.RetryBaseDelay != 500*time.Millisecond {
		t.Fatalf("unexpected base delay %v", cfg.RetryBaseDelay)
	}
	if cfg.Headless {
		t.Fatalf("expected headless to be disabled")
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("unexpected log level %v", cfg.LogLevel)
	}
	if cfg.MaxAttempts != 3 {
		t.Fatalf("invalid integer should fall back to default, got %d", cfg.MaxAttempts)
	}
}

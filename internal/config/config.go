package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting. It is built once by Load and never
// mutated afterwards.
type Config struct {
	Port     string
	GinMode  string
	LogLevel slog.Level

	DataDir string
	DBPath  string

	ChromeBin  string
	Headless   bool
	ProfileDir string
	// ProfilePrefix names generated browser profiles, e.g. cargurus_20250601_ab12cd.
	ProfilePrefix string
	ProfileMaxAge time.Duration

	ListingMaxAge   time.Duration
	JanitorInterval time.Duration

	NavTimeout       time.Duration
	OperationTimeout time.Duration
	NavRatePerMin    int
	NavBurst         int

	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	MaxAttempts       int
	ChallengeAttempts int
	DefaultRadius     int
	MaxCrawls         int

	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string

	AdminKey     string
	BehaviorSeed int64
}

// Load reads .env (if present) and the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	dataDir := getEnv("DATA_DIR", "./data")
	return Config{
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", ""),
		LogLevel: parseLevel(getEnv("LOG_LEVEL", "info")),

		DataDir: dataDir,
		DBPath:  getEnv("DB_PATH", dataDir+"/carscout.db"),

		ChromeBin:     getEnv("CHROME_BIN", ""),
		Headless:      getEnvBool("HEADLESS", true),
		ProfileDir:    getEnv("PROFILE_DIR", dataDir+"/profiles"),
		ProfilePrefix: getEnv("PROFILE_PREFIX", "cargurus"),
		ProfileMaxAge: time.Duration(getEnvInt("PROFILE_MAX_AGE_DAYS", 7)) * 24 * time.Hour,

		ListingMaxAge:   time.Duration(getEnvInt("LISTING_MAX_AGE_DAYS", 90)) * 24 * time.Hour,
		JanitorInterval: getEnvDuration("JANITOR_INTERVAL", 24*time.Hour),

		NavTimeout:       getEnvDuration("NAV_TIMEOUT", 30*time.Second),
		OperationTimeout: getEnvDuration("OPERATION_TIMEOUT", 3*time.Minute),
		NavRatePerMin:    getEnvInt("NAV_RATE_PER_MIN", 20),
		NavBurst:         getEnvInt("NAV_BURST", 2),

		RetryBaseDelay:    getEnvDuration("RETRY_BASE_DELAY", 2*time.Second),
		RetryMaxDelay:     getEnvDuration("RETRY_MAX_DELAY", 30*time.Second),
		MaxAttempts:       getEnvInt("MAX_ATTEMPTS", 3),
		ChallengeAttempts: getEnvInt("CHALLENGE_ATTEMPTS", 3),
		DefaultRadius:     getEnvInt("DEFAULT_RADIUS", 100),
		MaxCrawls:         getEnvInt("MAX_CONCURRENT_CRAWLS", 2),

		RedisAddr:    getEnv("REDIS_ADDR", ""),
		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "carscout.events"),

		AdminKey:     getEnv("ADMIN_KEY", ""),
		BehaviorSeed: int64(getEnvInt("BEHAVIOR_SEED", 0)),
	}
}

// IsRelease reports whether gin runs in release mode.
func (c Config) IsRelease() bool {
	return c.GinMode == "release"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("Invalid boolean in environment, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

// getEnvDuration accepts Go durations ("45s") or bare seconds ("45").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	slog.Warn("Invalid duration in environment, using default", "key", key, "value", raw, "default", fallback)
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

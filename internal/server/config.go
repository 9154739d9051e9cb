package server

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Config holds the service configuration. Values come from the environment
// with defaults; the CLI layers flag overrides on top.
type Config struct {
	Port           string
	ModelPath      string
	DBPath         string
	RedisURL       string
	AuthSecret     string
	EthRPCURL      string
	AllowedOrigins []string
	LogLevel       string
	GinMode        string
	CacheTTL       time.Duration
	RateLimitRPM   int
	TrainLimitRPM  int
	AlertWebhook   string
}

// LoadConfig reads configuration from environment variables with defaults
func LoadConfig() Config {
	cfg := Config{
		Port:          getEnvOrDefault("PORT", "5002"),
		ModelPath:     getEnvOrDefault("MODEL_PATH", "models/anomaly_model.bin"),
		DBPath:        getEnvOrDefault("DB_PATH", "data/detector.db"),
		RedisURL:      os.Getenv("REDIS_URL"),
		AuthSecret:    os.Getenv("AUTH_SECRET"),
		EthRPCURL:     os.Getenv("ETH_RPC_URL"),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		GinMode:       getEnvOrDefault("GIN_MODE", gin.ReleaseMode),
		CacheTTL:      parseDurationOrDefault(os.Getenv("CACHE_TTL"), 15*time.Minute),
		RateLimitRPM:  parseIntOrDefault(os.Getenv("RATE_LIMIT_RPM"), 60),
		TrainLimitRPM: parseIntOrDefault(os.Getenv("TRAIN_LIMIT_RPM"), 5),
		AlertWebhook:  os.Getenv("ALERT_WEBHOOK_URL"),
	}

	origins := getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	return cfg
}

// SlogLevel maps the configured log level to a slog level
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func parseIntOrDefault(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

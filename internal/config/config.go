package config

import (
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Port           string
	AllowedOrigins []string
	RedisURL       string
	AuthIssuerURL  string
	LogLevel       string
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "4000"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,https://localhost:5173")),
		RedisURL:       getEnv("REDIS_URL", ""),
		AuthIssuerURL:  getEnv("AUTH_ISSUER_URL", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

// Level maps LogLevel onto a slog level, defaulting to info.
func (c *Config) Level() slog.Level {
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

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

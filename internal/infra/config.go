package infra

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment
// variables. A missing STABILITY_API_KEY does not fail startup: generation
// endpoints report it per request, before any network call, while the
// gallery and download endpoints keep working.
type Config struct {
	AppEnv           string
	Port             string
	StabilityAPIKey  string
	StabilityBaseURL string
	StabilityModel   string
	StoragePath      string
	TempPath         string
	AllowedOrigins   []string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		StabilityAPIKey:  os.Getenv("STABILITY_API_KEY"),
		StabilityBaseURL: getEnv("STABILITY_BASE_URL", "https://api.stability.ai"),
		StabilityModel:   getEnv("STABILITY_MODEL", "stable-audio-2.5"),
		StoragePath:      getEnv("STORAGE_PATH", "uploads"),
		TempPath:         getEnv("TEMP_PATH", "temp-uploads"),
		AllowedOrigins:   splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 60)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 180)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ==============================================================================
// CONFIG PACKAGE - pkg/config/config.go
// ==============================================================================
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	ImageHost ImageHostConfig
	Wizard    WizardConfig
	Google    GoogleConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// AllowedOrigins is the CORS allow-list; empty allows any origin.
	AllowedOrigins []string
	// IdempotencyTTL is how long a submit response is replayed for the same key.
	IdempotencyTTL time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// ImageHostConfig points at the unsigned-upload endpoint of the image CDN.
type ImageHostConfig struct {
	BaseURL      string
	CloudName    string
	UploadPreset string
	MaxFileSize  int64
	Timeout      time.Duration
}

type WizardConfig struct {
	// Policy is "strict" or "relaxed".
	Policy         string
	SessionIdleTTL time.Duration
	SweepInterval  time.Duration
	DraftKeyPrefix string
}

type GoogleConfig struct {
	ClientID string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory, when present, is loaded first and never overrides variables that
// are already set.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),

			AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS"),
			IdempotencyTTL: getDurationEnv("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "change-this-secret"),
			Expiration: getDurationEnv("JWT_EXPIRATION", 24*time.Hour),
		},
		ImageHost: ImageHostConfig{
			BaseURL:      strings.TrimRight(getEnv("IMAGE_HOST_BASE_URL", "https://api.cloudinary.com"), "/"),
			CloudName:    getEnv("IMAGE_HOST_CLOUD_NAME", ""),
			UploadPreset: getEnv("IMAGE_HOST_UPLOAD_PRESET", "pdf_ocr_preset"),
			MaxFileSize:  int64(getIntEnv("IMAGE_MAX_FILE_SIZE", 2*1024*1024)),
			Timeout:      getDurationEnv("IMAGE_HOST_TIMEOUT", 30*time.Second),
		},
		Wizard: WizardConfig{
			Policy:         strings.ToLower(getEnv("WIZARD_POLICY", "strict")),
			SessionIdleTTL: getDurationEnv("WIZARD_SESSION_IDLE_TTL", 2*time.Hour),
			SweepInterval:  getDurationEnv("WIZARD_SWEEP_INTERVAL", time.Minute),
			DraftKeyPrefix: getEnv("WIZARD_DRAFT_KEY_PREFIX", "client_form_data"),
		},
		Google: GoogleConfig{
			ClientID: getEnv("GOOGLE_CLIENT_ID", ""),
		},
		RateLimit: RateLimitConfig{
			Requests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
			Window:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getListEnv splits a comma separated variable, dropping blank entries.
func getListEnv(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

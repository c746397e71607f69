// Package config centralizes how the monument service reads environment
// variables and exposes them as typed values.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration for the API server and the worker.
type Config struct {
	Address     string
	DatabaseURL string
	RedisAddr   string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool
	Bucket      string

	CORSOrigin string

	MaxImageBytes   int64
	MaxAudioBytes   int64
	MaxDrawingBytes int64
	MaxTextChars    int

	SubmitWindow time.Duration
	SubmitMax    int
	ReadMax      int

	PageLimit    int
	PageLimitCap int

	SignedURLTTL time.Duration
}

const (
	defaultAddress      = ":8080"
	defaultRedisAddr    = "localhost:6379"
	defaultBucket       = "monument"
	defaultCORSOrigin   = "*"
	defaultImageBytes   = 5 << 20  // 5 MiB
	defaultAudioBytes   = 10 << 20 // 10 MiB
	defaultDrawingBytes = 2 << 20  // 2 MiB
	defaultTextChars    = 5000
	defaultSubmitWindow = 15 * time.Minute
	defaultSubmitMax    = 15
	defaultReadMax      = 100
	defaultPageLimit    = 100
	defaultPageCap      = 500
	defaultSignedTTL    = 15 * time.Minute
)

// Load reads configuration from the environment, falling back to defaults.
// A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{
		Address:         readEnv("MONUMENT_ADDRESS", defaultAddress),
		DatabaseURL:     readEnv("MONUMENT_DATABASE_URL", ""),
		RedisAddr:       readEnv("MONUMENT_REDIS_ADDR", defaultRedisAddr),
		S3Endpoint:      readEnv("MONUMENT_S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:     readEnv("MONUMENT_S3_ACCESS_KEY", ""),
		S3SecretKey:     readEnv("MONUMENT_S3_SECRET_KEY", ""),
		S3Region:        readEnv("MONUMENT_S3_REGION", "us-east-1"),
		S3UseSSL:        parseBool("MONUMENT_S3_USE_SSL", false),
		Bucket:          readEnv("MONUMENT_S3_BUCKET", defaultBucket),
		CORSOrigin:      readEnv("MONUMENT_CORS_ORIGIN", defaultCORSOrigin),
		MaxImageBytes:   parseInt64("MONUMENT_MAX_IMAGE_BYTES", defaultImageBytes),
		MaxAudioBytes:   parseInt64("MONUMENT_MAX_AUDIO_BYTES", defaultAudioBytes),
		MaxDrawingBytes: parseInt64("MONUMENT_MAX_DRAWING_BYTES", defaultDrawingBytes),
		MaxTextChars:    parseInt("MONUMENT_MAX_TEXT_CHARS", defaultTextChars),
		SubmitWindow:    parseDuration("MONUMENT_SUBMIT_WINDOW", defaultSubmitWindow),
		SubmitMax:       parseInt("MONUMENT_SUBMIT_MAX", defaultSubmitMax),
		ReadMax:         parseInt("MONUMENT_READ_MAX", defaultReadMax),
		PageLimit:       parseInt("MONUMENT_PAGE_LIMIT", defaultPageLimit),
		PageLimitCap:    parseInt("MONUMENT_PAGE_LIMIT_CAP", defaultPageCap),
		SignedURLTTL:    parseDuration("MONUMENT_SIGNED_TTL", defaultSignedTTL),
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = defaultImageBytes
	}
	if cfg.MaxAudioBytes <= 0 {
		cfg.MaxAudioBytes = defaultAudioBytes
	}
	if cfg.MaxDrawingBytes <= 0 {
		cfg.MaxDrawingBytes = defaultDrawingBytes
	}
	if cfg.MaxTextChars <= 0 {
		cfg.MaxTextChars = defaultTextChars
	}
	if cfg.SubmitMax <= 0 {
		cfg.SubmitMax = defaultSubmitMax
	}
	if cfg.ReadMax <= 0 {
		cfg.ReadMax = defaultReadMax
	}
	if cfg.PageLimitCap <= 0 {
		cfg.PageLimitCap = defaultPageCap
	}
	if cfg.PageLimit <= 0 || cfg.PageLimit > cfg.PageLimitCap {
		cfg.PageLimit = defaultPageLimit
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	return cfg, nil
}

// RequireDatabase errors when no DSN was configured; callers that can run on
// the in-memory store skip this check.
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("MONUMENT_DATABASE_URL is required")
	}
	return nil
}

// MaxUploadBytes is the largest blob any kind accepts, used to cap request
// bodies before the kind is known.
func (c *Config) MaxUploadBytes() int64 {
	max := c.MaxImageBytes
	if c.MaxAudioBytes > max {
		max = c.MaxAudioBytes
	}
	if c.MaxDrawingBytes > max {
		max = c.MaxDrawingBytes
	}
	return max
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

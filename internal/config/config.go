package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds process-wide settings for the session service
type Config struct {
	MongoURI   string
	MongoDB    string
	RedisAddr  string
	HTTPPort   string
	JWTSecret  string
	CORSOrigin string

	// External media provider; the built-in WebSocket transport is used when empty
	MediaURL    string
	MediaAPIKey string

	// Admission and lifecycle timing
	JoinWindow       time.Duration
	PreviewLimit     time.Duration
	LockoutAfter     int
	LockoutFor       time.Duration
	TransportTimeout time.Duration
	CacheTTL         time.Duration
}

type fileConfig struct {
	MongoURI         string `toml:"mongo_uri"`
	MongoDB          string `toml:"mongo_db"`
	RedisAddr        string `toml:"redis_addr"`
	HTTPPort         string `toml:"http_port"`
	CORSOrigin       string `toml:"cors_origin"`
	MediaURL         string `toml:"media_url"`
	JoinWindow       string `toml:"join_window"`
	PreviewLimit     string `toml:"preview_limit"`
	LockoutAfter     int    `toml:"lockout_after"`
	LockoutFor       string `toml:"lockout_for"`
	TransportTimeout string `toml:"transport_timeout"`
	CacheTTL         string `toml:"cache_ttl"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		MongoURI:         "mongodb://localhost:27017",
		MongoDB:          "livesession",
		RedisAddr:        "localhost:6379",
		HTTPPort:         "8080",
		JWTSecret:        "super-secret-key-change-in-production",
		CORSOrigin:       "*",
		JoinWindow:       30 * time.Minute,
		PreviewLimit:     600 * time.Second,
		LockoutAfter:     3,
		LockoutFor:       60 * time.Second,
		TransportTimeout: 3 * time.Second,
		CacheTTL:         10 * time.Minute,
	}
}

// Load reads .env, then the optional TOML file, then environment overrides
func Load() (*Config, error) {
	// .env is optional; real environment wins over it
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not read .env: %v", err)
	}

	cfg := Default()

	if path := os.Getenv("LIVESESSION_CONFIG"); path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, err
		}
		if err := applyFile(cfg, &fc); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyFile(cfg *Config, fc *fileConfig) error {
	if fc.MongoURI != "" {
		cfg.MongoURI = fc.MongoURI
	}
	if fc.MongoDB != "" {
		cfg.MongoDB = fc.MongoDB
	}
	if fc.RedisAddr != "" {
		cfg.RedisAddr = fc.RedisAddr
	}
	if fc.HTTPPort != "" {
		cfg.HTTPPort = fc.HTTPPort
	}
	if fc.CORSOrigin != "" {
		cfg.CORSOrigin = fc.CORSOrigin
	}
	if fc.MediaURL != "" {
		cfg.MediaURL = fc.MediaURL
	}
	if fc.LockoutAfter > 0 {
		cfg.LockoutAfter = fc.LockoutAfter
	}

	durations := []struct {
		raw string
		dst *time.Duration
	}{
		{fc.JoinWindow, &cfg.JoinWindow},
		{fc.PreviewLimit, &cfg.PreviewLimit},
		{fc.LockoutFor, &cfg.LockoutFor},
		{fc.TransportTimeout, &cfg.TransportTimeout},
		{fc.CacheTTL, &cfg.CacheTTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return err
		}
		*d.dst = v
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.MongoURI = getEnv("MONGO_URI", cfg.MongoURI)
	cfg.MongoDB = getEnv("MONGO_DB", cfg.MongoDB)
	cfg.RedisAddr = normalizeRedisAddr(getEnv("REDIS_URI", cfg.RedisAddr))
	cfg.HTTPPort = getEnv("PORT", cfg.HTTPPort)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.CORSOrigin = getEnv("CORS_ALLOWED_ORIGINS", cfg.CORSOrigin)
	cfg.MediaURL = getEnv("MEDIA_PROVIDER_URL", cfg.MediaURL)
	cfg.MediaAPIKey = getEnv("MEDIA_PROVIDER_KEY", cfg.MediaAPIKey)
	cfg.JoinWindow = getEnvDuration("JOIN_WINDOW", cfg.JoinWindow)
	cfg.PreviewLimit = getEnvDuration("PREVIEW_LIMIT", cfg.PreviewLimit)
	cfg.LockoutFor = getEnvDuration("LOCKOUT_FOR", cfg.LockoutFor)
	cfg.TransportTimeout = getEnvDuration("TRANSPORT_TIMEOUT", cfg.TransportTimeout)
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", cfg.CacheTTL)
	if v, err := strconv.Atoi(os.Getenv("LOCKOUT_AFTER")); err == nil && v > 0 {
		cfg.LockoutAfter = v
	}
}

// Remove redis:// prefix if present
func normalizeRedisAddr(addr string) string {
	if len(addr) > 8 && addr[:8] == "redis://" {
		return addr[8:]
	}
	return addr
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %s", key, val, defaultVal)
		return defaultVal
	}
	return d
}

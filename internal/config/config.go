// Package config loads the player's settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Output kinds.
const (
	OutputMPD     = "mpd"
	OutputVirtual = "virtual"
)

// Config stores the application configuration.
type Config struct {
	Port      string
	StaticDir string
	Debug     bool
	LogFile   string
	// CORSOrigins lists origins allowed to call the REST API. Empty or "*"
	// allows any origin.
	CORSOrigins []string

	Output      string
	MPDHost     string
	MPDPort     int
	MPDPassword string

	Store         string
	DataDir       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CatalogPath       string
	MediaBaseURL      string
	ExclusivePassword string
	DefaultVolume     float64
	LoadTimeout       time.Duration
	FrameInterval     time.Duration
	MaxClients        int
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer, using default")
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid number, using default")
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid boolean, using default")
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid duration, using default")
	}
	return fallback
}

// Load reads .env files (without overriding variables already set) and
// then the environment. With no files it tries ./.env.
func Load(files ...string) *Config {
	if err := godotenv.Load(files...); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded, using environment and defaults")
	}

	return &Config{
		Port:      getEnv("NEON_PORT", "3001"),
		StaticDir: getEnv("NEON_STATIC_DIR", ""),
		Debug:     getEnvBool("NEON_DEBUG", false),
		LogFile:   getEnv("NEON_LOG_FILE", ""),

		CORSOrigins: getEnvList("NEON_CORS_ORIGINS", []string{"*"}),

		Output:      getEnv("NEON_OUTPUT", OutputVirtual),
		MPDHost:     getEnv("MPD_HOST", "localhost"),
		MPDPort:     getEnvInt("MPD_PORT", 6600),
		MPDPassword: getEnv("MPD_PASSWORD", ""),

		Store:         getEnv("NEON_STORE", "file"),
		DataDir:       getEnv("NEON_DATA_DIR", "data"),
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		CatalogPath:       getEnv("NEON_CATALOG", ""),
		MediaBaseURL:      getEnv("NEON_MEDIA_BASE_URL", ""),
		ExclusivePassword: getEnv("NEON_EXCLUSIVE_PASSWORD", ""),
		DefaultVolume:     getEnvFloat("NEON_DEFAULT_VOLUME", 0.8),
		LoadTimeout:       getEnvDuration("NEON_LOAD_TIMEOUT", 15*time.Second),
		FrameInterval:     getEnvDuration("NEON_FRAME_INTERVAL", 100*time.Millisecond),
		MaxClients:        getEnvInt("NEON_MAX_CLIENTS", 5),
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Output {
	case OutputMPD, OutputVirtual:
	default:
		return fmt.Errorf("unknown output %q (want %s or %s)", c.Output, OutputMPD, OutputVirtual)
	}
	switch c.Store {
	case "", "memory", "file", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.DefaultVolume < 0 || c.DefaultVolume > 1 {
		return fmt.Errorf("default volume %v out of range [0,1]", c.DefaultVolume)
	}
	if c.MPDPort <= 0 || c.MPDPort > 65535 {
		return fmt.Errorf("invalid MPD port %d", c.MPDPort)
	}
	if c.MaxClients < 1 {
		return fmt.Errorf("max clients must be at least 1, got %d", c.MaxClients)
	}
	return nil
}

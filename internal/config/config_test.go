package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edumarques81/neon-player-backend/internal/config"
)

var keys = []string{
	"NEON_PORT", "NEON_STATIC_DIR", "NEON_DEBUG", "NEON_LOG_FILE", "NEON_OUTPUT",
	"MPD_HOST", "MPD_PORT", "MPD_PASSWORD", "NEON_STORE", "NEON_DATA_DIR",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "NEON_CATALOG",
	"NEON_MEDIA_BASE_URL", "NEON_EXCLUSIVE_PASSWORD", "NEON_DEFAULT_VOLUME",
	"NEON_LOAD_TIMEOUT", "NEON_FRAME_INTERVAL", "NEON_MAX_CLIENTS",
	"NEON_CORS_ORIGINS",
}

// clearEnv unsets every key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := config.Load(filepath.Join(t.TempDir(), "missing.env"))

	if cfg.Port != "3001" {
		t.Errorf("Port = %q, want 3001", cfg.Port)
	}
	if cfg.Output != config.OutputVirtual {
		t.Errorf("Output = %q, want virtual", cfg.Output)
	}
	if cfg.MPDHost != "localhost" || cfg.MPDPort != 6600 {
		t.Errorf("MPD = %s:%d", cfg.MPDHost, cfg.MPDPort)
	}
	if cfg.Store != "file" || cfg.DataDir != "data" {
		t.Errorf("Store = %q in %q", cfg.Store, cfg.DataDir)
	}
	if cfg.DefaultVolume != 0.8 {
		t.Errorf("DefaultVolume = %v, want 0.8", cfg.DefaultVolume)
	}
	if cfg.LoadTimeout != 15*time.Second {
		t.Errorf("LoadTimeout = %v", cfg.LoadTimeout)
	}
	if cfg.FrameInterval != 100*time.Millisecond {
		t.Errorf("FrameInterval = %v", cfg.FrameInterval)
	}
	if cfg.MaxClients != 5 {
		t.Errorf("MaxClients = %d", cfg.MaxClients)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v, want [*]", cfg.CORSOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEON_PORT", "8080")
	t.Setenv("NEON_OUTPUT", "mpd")
	t.Setenv("MPD_PORT", "6601")
	t.Setenv("NEON_STORE", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("NEON_DEFAULT_VOLUME", "0.5")
	t.Setenv("NEON_LOAD_TIMEOUT", "3s")
	t.Setenv("NEON_DEBUG", "true")
	t.Setenv("NEON_CORS_ORIGINS", "https://djjoel.com, ,http://localhost:5173")

	cfg := config.Load(filepath.Join(t.TempDir(), "missing.env"))

	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "https://djjoel.com" || cfg.CORSOrigins[1] != "http://localhost:5173" {
		t.Errorf("CORSOrigins = %q", cfg.CORSOrigins)
	}

	if cfg.Port != "8080" || cfg.Output != "mpd" || cfg.MPDPort != 6601 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Store != "redis" || cfg.RedisDB != 3 {
		t.Errorf("Store = %q db %d", cfg.Store, cfg.RedisDB)
	}
	if cfg.DefaultVolume != 0.5 || cfg.LoadTimeout != 3*time.Second || !cfg.Debug {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("MPD_PORT", "not-a-port")
	t.Setenv("NEON_DEFAULT_VOLUME", "loud")
	t.Setenv("NEON_LOAD_TIMEOUT", "-5s")
	t.Setenv("NEON_DEBUG", "maybe")

	cfg := config.Load(filepath.Join(t.TempDir(), "missing.env"))

	if cfg.MPDPort != 6600 {
		t.Errorf("MPDPort = %d, want 6600", cfg.MPDPort)
	}
	if cfg.DefaultVolume != 0.8 {
		t.Errorf("DefaultVolume = %v, want 0.8", cfg.DefaultVolume)
	}
	if cfg.LoadTimeout != 15*time.Second {
		t.Errorf("LoadTimeout = %v, want 15s", cfg.LoadTimeout)
	}
	if cfg.Debug {
		t.Error("Debug should fall back to false")
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	data := "NEON_PORT=9000\nNEON_EXCLUSIVE_PASSWORD=neon\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NEON_PORT", "7000")

	cfg := config.Load(path)
	t.Cleanup(func() { os.Unsetenv("NEON_EXCLUSIVE_PASSWORD") })

	if cfg.Port != "7000" {
		t.Errorf("Port = %q, want the environment to win", cfg.Port)
	}
	if cfg.ExclusivePassword != "neon" {
		t.Errorf("ExclusivePassword = %q, want value from .env", cfg.ExclusivePassword)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{Output: "virtual", Store: "file", DefaultVolume: 0.8, MPDPort: 6600, MaxClients: 5}
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{"valid", func(*config.Config) {}, false},
		{"mpd", func(c *config.Config) { c.Output = "mpd" }, false},
		{"sqlite", func(c *config.Config) { c.Store = "sqlite" }, false},
		{"unknown output", func(c *config.Config) { c.Output = "alsa" }, true},
		{"unknown store", func(c *config.Config) { c.Store = "s3" }, true},
		{"volume too high", func(c *config.Config) { c.DefaultVolume = 1.5 }, true},
		{"bad port", func(c *config.Config) { c.MPDPort = 0 }, true},
		{"no clients", func(c *config.Config) { c.MaxClients = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// chdir moves into an empty temp dir so no config file or .env is found.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)
	t.Setenv("CONFIG_ENV", "test")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8080 || cfg.Backpressure != "drop" || cfg.SendBuffer != 64 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Quality.PollInterval != 5*time.Second || !cfg.Quality.Enabled {
		t.Fatalf("quality = %+v", cfg.Quality)
	}
	if cfg.Copilot.SuggestDelay != 8*time.Second || cfg.Copilot.KeepChunks != 2 {
		t.Fatalf("copilot = %+v", cfg.Copilot)
	}
	if len(cfg.WebRTC.STUNURLs) != 1 {
		t.Fatalf("stun = %v", cfg.WebRTC.STUNURLs)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := chdir(t)
	t.Setenv("CONFIG_ENV", "test")
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := []byte("port: 9000\nbackpressure: kick\nscreenshare:\n  enabled: true\n  listen_addr: 127.0.0.1:6000\n")
	if err := os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), yaml, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COPILOT_PORT", "9100")
	t.Setenv("COPILOT_COPILOT_SUGGEST_DELAY", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9100 {
		t.Fatalf("env did not override file: port = %d", cfg.Port)
	}
	if cfg.Backpressure != "kick" || !cfg.ScreenShare.Enabled || cfg.ScreenShare.ListenAddr != "127.0.0.1:6000" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Copilot.SuggestDelay != 3*time.Second {
		t.Fatalf("nested env override: %v", cfg.Copilot.SuggestDelay)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdir(t)
	t.Setenv("CONFIG_ENV", "test")
	envFile := filepath.Join(dir, "custom.env")
	if err := os.WriteFile(envFile, []byte("COPILOT_LOG_LEVEL=debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COPILOT_ENV_FILE", envFile)
	t.Setenv("COPILOT_LOG_LEVEL", "")
	os.Unsetenv("COPILOT_LOG_LEVEL")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	os.Unsetenv("COPILOT_LOG_LEVEL")
}

func TestLoadRejectsUnknownBackpressure(t *testing.T) {
	chdir(t)
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("COPILOT_BACKPRESSURE", "block")
	if _, err := Load(); err == nil {
		t.Fatal("expected error")
	}
}

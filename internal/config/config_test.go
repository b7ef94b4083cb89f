package config

import (
	"os"
	"testing"
	"time"
)

func TestEnvOverrides(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.ConfigPath = "/tmp/config" // avoid creation

	t.Setenv("PARLEY_SERVICE_URL", "http://10.0.0.5:8081/api")
	t.Setenv("PARLEY_ROLE", "manager")
	t.Setenv("PARLEY_METRICS_ADDR", "1.2.3.4:9999")
	t.Setenv("PARLEY_LOG_LEVEL", "debug")
	t.Setenv("PARLEY_LOG_FORMAT", "json")
	t.Setenv("PARLEY_SPEECH_ENABLED", "0")

	applyEnvOverrides(cfg)

	if cfg.Service.BaseURL != "http://10.0.0.5:8081/api" {
		t.Fatalf("service url override failed: %q", cfg.Service.BaseURL)
	}
	if cfg.Assistant.Role != "MANAGER" {
		t.Fatalf("role should be upper-cased, got %q", cfg.Assistant.Role)
	}
	if cfg.Assistant.SpeakReplies {
		t.Fatalf("speech should be disabled via env")
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "1.2.3.4:9999" {
		t.Fatalf("metrics override failed: %+v", cfg.Metrics)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging overrides failed: %+v", cfg.Logging)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.toml"

	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.ConfigPath = path
	cfg.Service.BaseURL = "https://expenses.example.com/api"
	cfg.Speech.Command = "/bin/echo"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Service.BaseURL != "https://expenses.example.com/api" {
		t.Fatalf("expected base url to persist, got %q", loaded.Service.BaseURL)
	}
	if loaded.Speech.Command != "/bin/echo" {
		t.Fatalf("expected speech command to persist")
	}
	if loaded.Paths.ConfigPath != path {
		t.Fatalf("config path not recorded: %q", loaded.Paths.ConfigPath)
	}

	_ = os.Remove(path)
}

func TestLoadWritesTemplateWhenMissing(t *testing.T) {
	path := t.TempDir() + "/nested/config.toml"
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected template to be written: %v", err)
	}
	if cfg.Assistant.HistorySize != 10 || cfg.Assistant.DisplayCap != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg.Assistant)
	}
}

func TestLoadClampsRetries(t *testing.T) {
	path := t.TempDir() + "/config.toml"
	data := []byte("[service]\nretry_max = 5\ntimeout_sec = 0\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service.RetryMax != MaxRetries {
		t.Fatalf("retry_max should clamp to %d, got %d", MaxRetries, cfg.Service.RetryMax)
	}
	if cfg.DispatchTimeout() != 45*time.Second {
		t.Fatalf("timeout should fall back to default, got %s", cfg.DispatchTimeout())
	}
}

func TestLoadClampsHistorySize(t *testing.T) {
	dir := t.TempDir()
	for raw, want := range map[string]int{"50": 10, "0": 10, "-3": 10, "4": 4} {
		path := dir + "/history-" + raw + ".toml"
		if err := os.WriteFile(path, []byte("[assistant]\nhistory_size = "+raw+"\n"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.Assistant.HistorySize != want {
			t.Fatalf("history_size = %s loaded as %d, want %d", raw, cfg.Assistant.HistorySize, want)
		}
	}
}

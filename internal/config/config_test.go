package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pipewatch/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[classifier]
script = "./predict.py"
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be reported as existing")
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if cfg.Paths.Bind != "127.0.0.1:3000" {
		t.Fatalf("unexpected bind default: %q", cfg.Paths.Bind)
	}
	if cfg.Auth.AccessTTLMinutes != 15 || cfg.Auth.RefreshTTLHours != 168 {
		t.Fatalf("unexpected token TTL defaults: %d/%d", cfg.Auth.AccessTTLMinutes, cfg.Auth.RefreshTTLHours)
	}
	if cfg.Upload.MaxSizeMiB != 50 {
		t.Fatalf("unexpected upload ceiling: %d", cfg.Upload.MaxSizeMiB)
	}
	if !filepath.IsAbs(cfg.Classifier.Script) {
		t.Fatalf("expected classifier script path to be expanded, got %q", cfg.Classifier.Script)
	}
}

func TestLoadGeneratesDistinctSecrets(t *testing.T) {
	path := writeConfig(t, `
[classifier]
script = "./predict.py"
`)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Auth.AccessSecret == "" || cfg.Auth.RefreshSecret == "" {
		t.Fatal("expected generated secrets")
	}
	if cfg.Auth.AccessSecret == cfg.Auth.RefreshSecret {
		t.Fatal("expected access and refresh secrets to differ")
	}
}

func TestLoadReadsSecretsFromEnv(t *testing.T) {
	t.Setenv("PIPEWATCH_ACCESS_SECRET", "env-access")
	t.Setenv("PIPEWATCH_REFRESH_SECRET", "env-refresh")

	path := writeConfig(t, `
[classifier]
script = "./predict.py"
`)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Auth.AccessSecret != "env-access" || cfg.Auth.RefreshSecret != "env-refresh" {
		t.Fatalf("expected env secrets, got %q/%q", cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret)
	}
}

func TestLoadRejectsMissingClassifierScript(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "debug"
`)

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for missing classifier script")
	}
	if !strings.Contains(err.Error(), "classifier.script") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsMatchingSecrets(t *testing.T) {
	path := writeConfig(t, `
[auth]
access_secret = "same"
refresh_secret = "same"

[classifier]
script = "./predict.py"
`)

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for identical secrets")
	}
}

func TestLoadRejectsBadLogFormat(t *testing.T) {
	path := writeConfig(t, `
[classifier]
script = "./predict.py"

[logging]
format = "xml"
`)

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for unsupported log format")
	}
}

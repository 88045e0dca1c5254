package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pipewatch/internal/api"
	"pipewatch/internal/auth"
	"pipewatch/internal/classifier"
	"pipewatch/internal/intake"
	"pipewatch/internal/logging"
	"pipewatch/internal/pipeline"
	"pipewatch/internal/store"
	"pipewatch/internal/testsupport"
)

type cliTestEnv struct {
	serverURL  string
	configPath string
}

type instantClassifier struct{}

func (instantClassifier) Classify(context.Context, string) (classifier.Result, error) {
	return classifier.Result{Level: store.RiskMedium, Confidence: 0.7}, nil
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	tokens, err := auth.NewService(cfg)
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}
	intakeSvc := intake.NewService(cfg, st, logging.NewNop())
	pipe := pipeline.New(st, instantClassifier{}, intakeSvc, logging.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pipe.Stop(ctx)
	})

	server := httptest.NewServer(api.NewServer(cfg, st, tokens, intakeSvc, pipe, logging.NewNop()).Router())
	t.Cleanup(server.Close)

	// A minimal config file so CLI invocations resolve paths and keep their
	// credentials inside the test's temp directory.
	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\ncontent_dir = %q\nlog_dir = %q\n\n[classifier]\nscript = %q\n",
		cfg.Paths.DataDir, cfg.Paths.ContentDir, cfg.Paths.LogDir, cfg.Classifier.Script,
	)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &cliTestEnv{serverURL: server.URL, configPath: configPath}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--server", env.serverURL, "--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCLIAuthFlow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "init", "admin", "bootstrap1")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "admin") {
		t.Fatalf("init output: %q", out)
	}

	if _, _, err := runCLI(t, env, "init", "again", "bootstrap2"); err == nil {
		t.Fatal("second init should fail")
	}

	if _, _, err := runCLI(t, env, "login", "admin", "bootstrap1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	out, _, err = runCLI(t, env, "whoami")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if !strings.Contains(out, "admin") {
		t.Fatalf("whoami output: %q", out)
	}

	out, _, err = runCLI(t, env, "users")
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if !strings.Contains(out, "admin") {
		t.Fatalf("users output: %q", out)
	}

	if _, _, err := runCLI(t, env, "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, _, err := runCLI(t, env, "whoami"); err == nil {
		t.Fatal("whoami after logout should fail")
	}
}

func TestCLIFileLifecycle(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env, "init", "admin", "bootstrap1"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, _, err := runCLI(t, env, "login", "admin", "bootstrap1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	audioPath := filepath.Join(t.TempDir(), "survey.wav")
	if err := os.WriteFile(audioPath, []byte("RIFF-data"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	out, _, err := runCLI(t, env, "files", "upload", audioPath, "--wait")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.Contains(out, "Uploaded survey.wav") || !strings.Contains(out, "Medium") {
		t.Fatalf("upload output: %q", out)
	}

	out, _, err = runCLI(t, env, "files", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "survey.wav") || !strings.Contains(out, "Medium") {
		t.Fatalf("list output: %q", out)
	}

	if _, _, err := runCLI(t, env, "files", "delete", "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	out, _, err = runCLI(t, env, "files", "list")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if strings.Contains(out, "survey.wav") {
		t.Fatalf("deleted file still listed: %q", out)
	}
}

func TestCLIConfigShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "config file:") || !strings.Contains(out, "classifier:") {
		t.Fatalf("config show output: %q", out)
	}
}

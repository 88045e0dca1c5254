package daemon

import (
	"context"
	"os"
	"strings"
	"testing"

	"pipewatch/internal/config"
	"pipewatch/internal/logging"
	"pipewatch/internal/testsupport"
)

func newDaemonConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	// Any executable on PATH satisfies the interpreter check.
	cfg.Classifier.Python = "sh"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if err := os.WriteFile(cfg.Classifier.Script, []byte("print()"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return cfg
}

func TestDaemonLifecycle(t *testing.T) {
	cfg := newDaemonConfig(t)

	d, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("second Start on a running daemon should fail")
	}
	d.Stop()
	d.Stop() // stopping twice is harmless
}

func TestSecondInstanceRejected(t *testing.T) {
	cfg := newDaemonConfig(t)

	first, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New first: %v", err)
	}
	t.Cleanup(func() { first.Close() })
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start first: %v", err)
	}

	second, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	t.Cleanup(func() { second.Close() })

	err = second.Start(context.Background())
	if err == nil {
		t.Fatal("second instance acquired the lock")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewFailsPreflightWithoutScript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Classifier.Python = "sh"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	// Classifier script deliberately absent.

	if _, err := New(cfg, logging.NewNop()); err == nil {
		t.Fatal("New should fail preflight when the classifier script is missing")
	}
}

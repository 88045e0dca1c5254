// Package daemon coordinates the long-running pipewatch process.
//
// It wires configuration, the SQLite store, the classification pipeline, and
// the HTTP API into a single lifecycle with flock-based locking to prevent
// multiple instances sharing one data directory.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"pipewatch/internal/api"
	"pipewatch/internal/auth"
	"pipewatch/internal/classifier"
	"pipewatch/internal/config"
	"pipewatch/internal/intake"
	"pipewatch/internal/logging"
	"pipewatch/internal/pipeline"
	"pipewatch/internal/preflight"
	"pipewatch/internal/store"
)

// Daemon owns the server lifecycle.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *store.Store
	pipeline *pipeline.Pipeline
	server   *api.Server

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	serverErr chan error
}

// New assembles a daemon from configuration. Preflight failures abort
// construction so a misconfigured instance never takes the lock.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	if results := preflight.RunAll(cfg); !preflight.AllPassed(results) {
		return nil, fmt.Errorf("preflight failed: %s", summarizeFailures(results))
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewService(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	intakeSvc := intake.NewService(cfg, st, logger)
	cls := classifier.NewService(cfg, logger)
	pipe := pipeline.New(st, cls, intakeSvc, logger)
	server := api.NewServer(cfg, st, tokens, intakeSvc, pipe, logger)

	lockPath := filepath.Join(cfg.Paths.DataDir, "pipewatch.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		pipeline: pipe,
		server:   server,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, resumes interrupted classifications, and
// begins serving HTTP.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another pipewatch daemon instance is already running")
	}

	if err := d.pipeline.Resume(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	d.serverErr = make(chan error, 1)
	go func() {
		d.serverErr <- d.server.ListenAndServe()
	}()

	d.running.Store(true)
	d.logger.Info("pipewatch daemon started",
		logging.String("bind", d.cfg.Paths.Bind),
		logging.String("lock", d.lockPath))
	return nil
}

// Wait blocks until the server stops or ctx is cancelled.
func (d *Daemon) Wait(ctx context.Context) error {
	select {
	case err := <-d.serverErr:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Stop drains the HTTP server and the pipeline, then releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("http shutdown incomplete", logging.Error(err))
	}
	if err := d.pipeline.Stop(shutdownCtx); err != nil {
		d.logger.Warn("pipeline drain incomplete", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("pipewatch daemon stopped")
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

func summarizeFailures(results []preflight.Result) string {
	var failures []string
	for _, result := range results {
		if !result.Passed {
			failures = append(failures, fmt.Sprintf("%s: %s", result.Name, result.Detail))
		}
	}
	return strings.Join(failures, "; ")
}

package testsupport

import (
	"path/filepath"
	"testing"

	"pipewatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.ContentDir = filepath.Join(base, "uploads")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.Bind = "127.0.0.1:0"
	cfg.Auth.AccessSecret = "test-access-secret"
	cfg.Auth.RefreshSecret = "test-refresh-secret"
	cfg.Auth.BcryptCost = 4
	cfg.Classifier.Script = filepath.Join(base, "predict.py")
	cfg.Classifier.TimeoutSeconds = 5

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithClassifierTimeout overrides the classifier timeout on the test config.
func WithClassifierTimeout(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Classifier.TimeoutSeconds = seconds
	}
}

// WithMaxUploadMiB overrides the upload size ceiling on the test config.
func WithMaxUploadMiB(mib int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Upload.MaxSizeMiB = mib
	}
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	ContentDir string `toml:"content_dir"`
	LogDir     string `toml:"log_dir"`
	Bind       string `toml:"bind"`
}

// Auth contains token signing configuration. Secrets left empty are read from
// the PIPEWATCH_ACCESS_SECRET / PIPEWATCH_REFRESH_SECRET environment variables,
// and generated randomly per process when those are unset too.
type Auth struct {
	AccessSecret      string `toml:"access_secret"`
	RefreshSecret     string `toml:"refresh_secret"`
	AccessTTLMinutes  int    `toml:"access_ttl_minutes"`
	RefreshTTLHours   int    `toml:"refresh_ttl_hours"`
	BcryptCost        int    `toml:"bcrypt_cost"`
	MinPasswordLength int    `toml:"min_password_length"`
	MaxPasswordLength int    `toml:"max_password_length"`
}

// Upload contains upload intake limits.
type Upload struct {
	MaxSizeMiB int `toml:"max_size_mib"`
}

// Classifier contains configuration for the external classifier process.
type Classifier struct {
	Python         string `toml:"python"`
	Script         string `toml:"script"`
	WorkDir        string `toml:"work_dir"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for pipewatch.
//
// Configuration sections by subsystem:
//   - Paths: data/content/log directories and HTTP bind address
//   - Auth: token secrets, lifetimes, and password policy
//   - Upload: intake size ceiling
//   - Classifier: external classifier interpreter, script, and timeout
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Auth       Auth       `toml:"auth"`
	Upload     Upload     `toml:"upload"`
	Classifier Classifier `toml:"classifier"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/pipewatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	_, err = os.Stat(defaultPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaultPath, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return defaultPath, true, nil
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the directories pipewatch needs at runtime.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.ContentDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// AccessTTL returns the configured access token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.Auth.AccessTTLMinutes) * time.Minute
}

// RefreshTTL returns the configured refresh token lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.Auth.RefreshTTLHours) * time.Hour
}

// MaxUploadBytes returns the upload size ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Upload.MaxSizeMiB) << 20
}

// ClassifierTimeout returns the bounded duration allowed for one classifier run.
func (c *Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.Classifier.TimeoutSeconds) * time.Second
}

// DatabasePath returns the SQLite database location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "pipewatch.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

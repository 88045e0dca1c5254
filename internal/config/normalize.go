package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeAuth(); err != nil {
		return err
	}
	if err := c.normalizeClassifier(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ContentDir) == "" {
		c.Paths.ContentDir = defaultContentDir
	}
	if c.Paths.ContentDir, err = expandPath(c.Paths.ContentDir); err != nil {
		return fmt.Errorf("paths.content_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.Bind = strings.TrimSpace(c.Paths.Bind)
	if c.Paths.Bind == "" {
		c.Paths.Bind = defaultBind
	}
	return nil
}

func (c *Config) normalizeAuth() error {
	c.Auth.AccessSecret = strings.TrimSpace(c.Auth.AccessSecret)
	if c.Auth.AccessSecret == "" {
		if value, ok := os.LookupEnv("PIPEWATCH_ACCESS_SECRET"); ok {
			c.Auth.AccessSecret = strings.TrimSpace(value)
		}
	}
	c.Auth.RefreshSecret = strings.TrimSpace(c.Auth.RefreshSecret)
	if c.Auth.RefreshSecret == "" {
		if value, ok := os.LookupEnv("PIPEWATCH_REFRESH_SECRET"); ok {
			c.Auth.RefreshSecret = strings.TrimSpace(value)
		}
	}

	// Random per-process secrets keep the server usable without configuration;
	// tokens do not survive a restart in that mode.
	var err error
	if c.Auth.AccessSecret == "" {
		if c.Auth.AccessSecret, err = randomSecret(); err != nil {
			return fmt.Errorf("auth.access_secret: %w", err)
		}
	}
	if c.Auth.RefreshSecret == "" {
		if c.Auth.RefreshSecret, err = randomSecret(); err != nil {
			return fmt.Errorf("auth.refresh_secret: %w", err)
		}
	}

	if c.Auth.AccessTTLMinutes <= 0 {
		c.Auth.AccessTTLMinutes = defaultAccessTTLMinutes
	}
	if c.Auth.RefreshTTLHours <= 0 {
		c.Auth.RefreshTTLHours = defaultRefreshTTLHours
	}
	if c.Auth.BcryptCost <= 0 {
		c.Auth.BcryptCost = defaultBcryptCost
	}
	if c.Auth.MinPasswordLength <= 0 {
		c.Auth.MinPasswordLength = defaultMinPasswordLength
	}
	if c.Auth.MaxPasswordLength <= 0 {
		c.Auth.MaxPasswordLength = defaultMaxPasswordLength
	}
	return nil
}

func (c *Config) normalizeClassifier() error {
	c.Classifier.Python = strings.TrimSpace(c.Classifier.Python)
	if c.Classifier.Python == "" {
		c.Classifier.Python = defaultPython
	}
	var err error
	if c.Classifier.Script != "" {
		if c.Classifier.Script, err = expandPath(c.Classifier.Script); err != nil {
			return fmt.Errorf("classifier.script: %w", err)
		}
	}
	if c.Classifier.WorkDir != "" {
		if c.Classifier.WorkDir, err = expandPath(c.Classifier.WorkDir); err != nil {
			return fmt.Errorf("classifier.work_dir: %w", err)
		}
	}
	if c.Classifier.TimeoutSeconds <= 0 {
		c.Classifier.TimeoutSeconds = defaultClassifierTimeout
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func randomSecret() (string, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.ContentDir == "" {
		return errors.New("paths.content_dir must be set")
	}
	if c.Paths.Bind == "" {
		return errors.New("paths.bind must be set")
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return errors.New("auth.access_secret and auth.refresh_secret must differ")
	}
	if c.Auth.MinPasswordLength > c.Auth.MaxPasswordLength {
		return errors.New("auth.min_password_length must not exceed auth.max_password_length")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.MaxSizeMiB <= 0 {
		return errors.New("upload.max_size_mib must be positive")
	}
	return nil
}

func (c *Config) validateClassifier() error {
	if c.Classifier.Script == "" {
		return errors.New("classifier.script must point at the prediction script")
	}
	if c.Classifier.TimeoutSeconds <= 0 {
		return errors.New("classifier.timeout_seconds must be positive")
	}
	return nil
}

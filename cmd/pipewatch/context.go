package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"pipewatch/internal/client"
	"pipewatch/internal/config"
)

type commandContext struct {
	serverFlag *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(serverFlag, configFlag *string) *commandContext {
	return &commandContext{
		serverFlag: serverFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolvedPath, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolvedPath
	})
	return c.config, c.configErr
}

// serverURL resolves the server base URL: the --server flag wins, otherwise
// the configured bind address is assumed to be local.
func (c *commandContext) serverURL() (string, error) {
	if c.serverFlag != nil && strings.TrimSpace(*c.serverFlag) != "" {
		return strings.TrimSpace(*c.serverFlag), nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return "http://" + cfg.Paths.Bind, nil
}

// credentialsPath keeps the session file next to the config file.
func (c *commandContext) credentialsPath() (string, error) {
	if _, err := c.ensureConfig(); err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(c.configPath), "credentials.json"), nil
}

func (c *commandContext) newClient() (*client.Client, error) {
	baseURL, err := c.serverURL()
	if err != nil {
		return nil, err
	}
	credsPath, err := c.credentialsPath()
	if err != nil {
		return nil, err
	}
	if baseURL == "" {
		return nil, fmt.Errorf("no server address configured")
	}
	return client.New(baseURL, credsPath), nil
}

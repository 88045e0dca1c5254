// Package config loads, normalizes, and validates pipewatch configuration.
//
// Configuration lives in a TOML file (default ~/.config/pipewatch/config.toml).
// Load applies defaults for missing keys, expands ~ in path values, pulls token
// secrets from the environment when the file omits them, and rejects unusable
// combinations before any subsystem starts.
package config

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"goblin/pkg/logging"

	"gopkg.in/yaml.v3"
)

const defaultConfigFileName = "config.yaml"

// GetDefaultConfigPath returns the platform-appropriate default config file
// path, used when GOBLIN_CONFIG_PATH is unset.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "goblin", defaultConfigFileName), nil
}

// Load reads and parses the gateway configuration document at path (JSON or
// YAML; it is always parsed with yaml.v3, which accepts both, whatever the
// file extension), applies environment
// overrides, fills in defaults, and validates the result. On any validation
// failure the returned error is a ValidationErrors; the caller must keep
// running the prior configuration.
func Load(path string) (GatewayConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "no config file found at %s, using defaults", path)
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return GatewayConfig{}, NewConfigurationErrorWithDetails(
			path, filepath.Base(path), "file", "file", "io", "failed to read configuration file", err.Error(), nil)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return GatewayConfig{}, NewConfigurationErrorWithDetails(
			path, filepath.Base(path), "file", "file", "parse", "failed to parse configuration file", err.Error(), nil)
	}
	logging.Info("ConfigLoader", "loaded configuration from %s", path)

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if errs := Validate(cfg); errs.HasErrors() {
		return GatewayConfig{}, errs
	}

	return cfg, nil
}

// applyEnvOverrides applies the highest-precedence environment variables
// named by the environment-override table.
func applyEnvOverrides(cfg *GatewayConfig) {
	if v := os.Getenv("GOBLIN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		} else {
			logging.Warn("ConfigLoader", "ignoring invalid GOBLIN_PORT=%q: %s", v, err)
		}
	}
	if v := os.Getenv("GOBLIN_HOST"); v != "" {
		cfg.Gateway.Host = v
	}
	if v := os.Getenv("GOBLIN_AUTH_MODE"); v != "" {
		cfg.Auth.Mode = AuthMode(strings.ToLower(v))
	}
	if v := os.Getenv("GOBLIN_AUTH_APIKEY"); v != "" {
		cfg.Auth.APIKey = v
	}
}

// ResolveConfigPath determines the config file path per the GOBLIN_CONFIG_PATH
// override and the platform default.
func ResolveConfigPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := os.Getenv("GOBLIN_CONFIG_PATH"); v != "" {
		return v, nil
	}
	return GetDefaultConfigPath()
}

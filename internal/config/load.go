package config

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
)

// Load reads, env-overrides, defaults, and validates the config file at
// path, grounded on cmd/dex/serve.go's load sequence (read -> unmarshal
// -> replaceEnvKeys -> Validate).
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := replaceEnvKeys(&c, os.Getenv); err != nil {
		return Config{}, fmt.Errorf("apply env overrides: %w", err)
	}

	c.Defaults()

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

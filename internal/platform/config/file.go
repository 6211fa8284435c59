package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// overlayFile applies a YAML file on top of the environment values. ${VAR}
// references inside the file are expanded first; keys absent from the file
// keep their current value.
func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.DeploymentOrigin = strings.TrimRight(c.DeploymentOrigin, "/")
	return nil
}

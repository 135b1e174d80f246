package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// OvenConfig describes one oven in ovens.yaml.
type OvenConfig struct {
	ID      int64  `yaml:"id"`
	Name    string `yaml:"name"`
	Type    string `yaml:"type"` // NON_AQUEOUS or AQUEOUS
	MaxTemp int    `yaml:"max_temp"`
}

// OvensConfig is the root configuration for ovens.yaml.
type OvensConfig struct {
	Ovens []OvenConfig `yaml:"ovens"`
}

// LoadOvensConfig loads and validates oven configuration from a YAML file.
func LoadOvensConfig(path string) (*OvensConfig, error) {
	if path == "" {
		path = "configs/ovens.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ovens config: %w", err)
	}

	var cfg OvensConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse ovens config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate ovens config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *OvensConfig) Validate() error {
	if len(c.Ovens) == 0 {
		return fmt.Errorf("no ovens defined")
	}

	ids := make(map[int64]bool)
	names := make(map[string]bool)

	for i, o := range c.Ovens {
		if o.ID <= 0 {
			return fmt.Errorf("oven[%d]: id must be positive, got %d", i, o.ID)
		}
		if ids[o.ID] {
			return fmt.Errorf("oven[%d]: duplicate id %d", i, o.ID)
		}
		ids[o.ID] = true

		if o.Name == "" {
			return fmt.Errorf("oven[%d]: name is required", i)
		}
		key := strings.ToLower(o.Name)
		if names[key] {
			return fmt.Errorf("oven[%d]: duplicate name '%s'", i, o.Name)
		}
		names[key] = true

		switch o.Type {
		case "NON_AQUEOUS", "AQUEOUS":
		default:
			return fmt.Errorf("oven[%d]: invalid type '%s', expected NON_AQUEOUS or AQUEOUS", i, o.Type)
		}

		if o.MaxTemp <= 0 {
			return fmt.Errorf("oven[%d]: max_temp must be positive", i)
		}
	}

	return nil
}

// GetOvenByID returns oven config by ID.
func (c *OvensConfig) GetOvenByID(id int64) *OvenConfig {
	for i := range c.Ovens {
		if c.Ovens[i].ID == id {
			return &c.Ovens[i]
		}
	}
	return nil
}

// String returns a summary of the configuration.
func (c *OvensConfig) String() string {
	return fmt.Sprintf("OvensConfig: %d ovens", len(c.Ovens))
}

// Package codegen turns deployed prompt schemas into typed Go accessors:
// a params struct, render methods with one argument per placeholder, and
// a manager pinned to a prompt id and major version.
package codegen

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where the CLI looks for the generation config.
const DefaultConfigPath = "evalsight.yaml"

// PromptConfig selects one prompt and the major versions to generate
// accessors for.
type PromptConfig struct {
	ID            string   `yaml:"id"`
	MajorVersions []string `yaml:"majorVersions"`
}

// Config is the generation config, usually read from evalsight.yaml.
type Config struct {
	Outfile string         `yaml:"outfile"`
	Package string         `yaml:"package"`
	Prompts []PromptConfig `yaml:"prompts"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("codegen: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("codegen: parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Outfile == "" {
		return errors.New("codegen: config missing outfile")
	}
	if c.Package == "" {
		return errors.New("codegen: config missing package")
	}
	if len(c.Prompts) == 0 {
		return errors.New("codegen: config lists no prompts")
	}
	for _, p := range c.Prompts {
		if p.ID == "" {
			return errors.New("codegen: prompt entry missing id")
		}
		if len(p.MajorVersions) == 0 {
			return fmt.Errorf("codegen: prompt %s lists no major versions", p.ID)
		}
		for _, v := range p.MajorVersions {
			if v == "" {
				return fmt.Errorf("codegen: prompt %s has an empty major version", p.ID)
			}
		}
	}
	return nil
}

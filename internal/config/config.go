package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models nudgeline.yml.
type Config struct {
	Engine struct {
		DefaultGeneration string `yaml:"default_generation"`
		ShadowGeneration  string `yaml:"shadow_generation"`
	} `yaml:"engine"`
	Sweep struct {
		Schedule string `yaml:"schedule"`
	} `yaml:"sweep"`
	Expiry struct {
		DefaultTTLHours int            `yaml:"default_ttl_hours"`
		ByProposalType  map[string]int `yaml:"by_proposal_type"`
	} `yaml:"expiry"`
	Priority struct {
		SurfaceThreshold int `yaml:"surface_threshold"`
	} `yaml:"priority"`
	Credits struct {
		Costs map[string]int `yaml:"costs"`
	} `yaml:"credits"`
	Webhooks []Webhook `yaml:"webhooks"`
}

type Webhook struct {
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

var validGenerations = map[string]bool{"autopilot": true, "luna": true}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create with nl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Engine.DefaultGeneration == "" {
		return fmt.Errorf("config.engine.default_generation is required")
	}
	if !validGenerations[c.Engine.DefaultGeneration] {
		return fmt.Errorf("config.engine.default_generation must be 'autopilot' or 'luna'")
	}
	if c.Engine.ShadowGeneration != "" {
		if !validGenerations[c.Engine.ShadowGeneration] {
			return fmt.Errorf("config.engine.shadow_generation must be 'autopilot' or 'luna'")
		}
		if c.Engine.ShadowGeneration == c.Engine.DefaultGeneration {
			return fmt.Errorf("config.engine.shadow_generation must differ from default_generation")
		}
	}
	if c.Sweep.Schedule == "" {
		return fmt.Errorf("config.sweep.schedule is required")
	}
	if c.Expiry.DefaultTTLHours <= 0 {
		return fmt.Errorf("config.expiry.default_ttl_hours must be positive")
	}
	for pt, hours := range c.Expiry.ByProposalType {
		if pt == "" {
			return fmt.Errorf("config.expiry.by_proposal_type has empty proposal type")
		}
		if hours <= 0 {
			return fmt.Errorf("config.expiry.by_proposal_type.%s must be positive", pt)
		}
	}
	if c.Priority.SurfaceThreshold < 0 || c.Priority.SurfaceThreshold > 100 {
		return fmt.Errorf("config.priority.surface_threshold must be within 0..100")
	}
	for pt, cost := range c.Credits.Costs {
		if pt == "" {
			return fmt.Errorf("config.credits.costs has empty proposal type")
		}
		if cost < 0 {
			return fmt.Errorf("config.credits.costs.%s must not be negative", pt)
		}
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// TTLHours returns the proposal-type TTL, falling back to the default.
func (c *Config) TTLHours(proposalType string) int {
	if h, ok := c.Expiry.ByProposalType[proposalType]; ok {
		return h
	}
	return c.Expiry.DefaultTTLHours
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "nudgeline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `engine:
  default_generation: autopilot
  shadow_generation: luna

sweep:
  schedule: "@every 1m"

expiry:
  default_ttl_hours: 72
  by_proposal_type:
    new-meeting-research: 48
    prep-only: 24
    post-meeting-followup: 72
    reactivation: 168
    resume-incomplete-flow: 96

priority:
  surface_threshold: 25

credits:
  costs:
    new-meeting-research: 5
    prep-only: 2
    post-meeting-followup: 3
    reactivation: 1
    resume-incomplete-flow: 1
`

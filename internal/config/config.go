package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models crewboard.yml.
type Config struct {
	Tenant struct {
		ID          string `yaml:"id" json:"id"`
		CompanyName string `yaml:"company_name" json:"company_name"`
	} `yaml:"tenant" json:"tenant"`
	Board struct {
		DefaultStatus         string `yaml:"default_status" json:"default_status"`
		BannerRotationSeconds int    `yaml:"banner_rotation_seconds" json:"banner_rotation_seconds"`
	} `yaml:"board" json:"board"`
	Statuses []string        `yaml:"statuses" json:"statuses"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

// WebhookConfig describes one change-notification subscriber.
type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Secret         string   `yaml:"secret" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with sb tenant config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Tenant.ID == "" {
		return fmt.Errorf("config.tenant.id is required")
	}
	if c.Tenant.CompanyName == "" {
		return fmt.Errorf("config.tenant.company_name is required")
	}
	if c.Board.BannerRotationSeconds < 0 {
		return fmt.Errorf("config.board.banner_rotation_seconds must not be negative")
	}
	seen := map[string]bool{}
	for _, s := range c.Statuses {
		if s == "" {
			return fmt.Errorf("config.statuses contains an empty label")
		}
		if seen[s] {
			return fmt.Errorf("config.statuses contains duplicate label %q", s)
		}
		seen[s] = true
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "crewboard.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(tenantID string) string {
	return fmt.Sprintf(defaultTemplate, tenantID, tenantID)
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

// Default returns the default Config struct for a tenant.
func Default(tenantID string) *Config {
	var cfg Config
	cfg.Tenant.ID = tenantID
	cfg.Tenant.CompanyName = tenantID
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(tenantID))).Decode(&cfg)
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

const defaultTemplate = `tenant:
  id: %s
  company_name: %s

board:
  default_status: Out
  banner_rotation_seconds: 10

statuses:
  - "In"
  - "Out"
  - "WFH"
  - "Remote"
  - "Sick"
  - "Vacation"
  - "In a Meeting"
  - "Out to Lunch"
`

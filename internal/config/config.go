package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const fileName = "bountygraph.yml"

// Config models bountygraph.yml.
type Config struct {
	Ledger struct {
		ProgramID              string `yaml:"program_id"`
		SingleClaimant         bool   `yaml:"single_claimant"`
		DefaultMaxDependencies uint16 `yaml:"default_max_dependencies"`
		MaxURILen              int    `yaml:"max_uri_len"`
		MaxReasonLen           int    `yaml:"max_reason_len"`
	} `yaml:"ledger"`
	Disputes struct {
		TimeoutSlots       uint64 `yaml:"timeout_slots"`
		FallbackCreatorPct uint8  `yaml:"fallback_creator_pct"`
	} `yaml:"disputes"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Telemetry struct {
		Enabled     bool   `yaml:"enabled"`
		ServiceName string `yaml:"service_name"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"telemetry"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with bg init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Ledger.MaxURILen <= 0 {
		return fmt.Errorf("config.ledger.max_uri_len must be positive")
	}
	if c.Ledger.MaxReasonLen <= 0 {
		return fmt.Errorf("config.ledger.max_reason_len must be positive")
	}
	if c.Disputes.FallbackCreatorPct > 100 {
		return fmt.Errorf("config.disputes.fallback_creator_pct must be between 0 and 100")
	}
	if c.Server.BasePath != "" && c.Server.BasePath[0] != '/' {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return fmt.Errorf("config.telemetry.service_name is required when telemetry is enabled")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, fileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `ledger:
  program_id: 9xQeWvG816bUx9EPfVb1zZQzQpimeJVFRCGDpa2BkLom
  single_claimant: false
  default_max_dependencies: 8
  max_uri_len: 200
  max_reason_len: 500

disputes:
  # 0 disables expiry; raised disputes then wait for the graph authority.
  timeout_slots: 0
  fallback_creator_pct: 100

server:
  addr: 127.0.0.1:8080
  base_path: /v0

telemetry:
  enabled: false
  service_name: bountygraph
  metrics_addr: 127.0.0.1:9464
`

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultServerAddr = ":8080"
	DefaultBasePath   = "/v0"
	LogModeDev        = "development"
	LogModeProd       = "production"
)

// Config models visionline.yml.
type Config struct {
	Project struct {
		ID   string `yaml:"id" json:"id"`
		Name string `yaml:"name,omitempty" json:"name,omitempty"`
	} `yaml:"project" json:"project"`
	Server struct {
		Addr     string `yaml:"addr,omitempty" json:"addr,omitempty"`
		BasePath string `yaml:"base_path,omitempty" json:"base_path,omitempty"`
	} `yaml:"server" json:"server"`
	Log struct {
		Mode string `yaml:"mode,omitempty" json:"mode,omitempty"`
	} `yaml:"log" json:"log"`
	Events struct {
		Webhooks []WebhookConfig `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
		Kafka    KafkaConfig     `yaml:"kafka,omitempty" json:"kafka,omitempty"`
	} `yaml:"events" json:"events"`
}

// WebhookConfig describes one HTTP receiver of vision events.
type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty" json:"-"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// IsEnabled treats a missing flag as enabled.
func (w WebhookConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers,omitempty" json:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty" json:"topic,omitempty"`
}

// Enabled reports whether Kafka publishing is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 || k.Topic != ""
}

// ApplyDefaults fills optional settings.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = DefaultBasePath
	}
	if c.Log.Mode == "" {
		c.Log.Mode = LogModeDev
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Project.ID) == "" {
		return fmt.Errorf("config.project.id is required")
	}
	switch c.Log.Mode {
	case "", LogModeDev, LogModeProd:
	default:
		return fmt.Errorf("config.log.mode must be %q or %q", LogModeDev, LogModeProd)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	for i, hook := range c.Events.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.events.webhooks[%d].url is required", i)
		}
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("config.events.webhooks[%d].url must be an http(s) url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.events.webhooks[%d].timeout_seconds cannot be negative", i)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("config.events.webhooks[%d] has empty event type", i)
			}
		}
	}
	if k := c.Events.Kafka; k.Enabled() {
		if len(k.Brokers) == 0 {
			return fmt.Errorf("config.events.kafka.brokers is required when a topic is set")
		}
		if strings.TrimSpace(k.Topic) == "" {
			return fmt.Errorf("config.events.kafka.topic is required when brokers are set")
		}
		for _, b := range k.Brokers {
			if strings.TrimSpace(b) == "" {
				return fmt.Errorf("config.events.kafka.brokers contains an empty address")
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "visionline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with vl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	cfg.Project.ID = projectID
	cfg.ApplyDefaults()
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID, DefaultServerAddr, DefaultBasePath, LogModeDev)
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
	cfg.ApplyDefaults()
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

const defaultTemplate = `project:
  id: %s

server:
  addr: "%s"
  base_path: %s

log:
  mode: %s

events:
  # webhooks:
  #   - url: https://hooks.example.com/vision
  #     events: [objective.updated, vision.validation.failed]
  #     secret: change-me
  #     timeout_seconds: 5
  # kafka:
  #   brokers: [localhost:9092]
  #   topic: vision-events
`

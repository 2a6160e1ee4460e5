package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageBadger = "badger"
)

// Assistant providers
const (
	AssistantNone   = "none"
	AssistantOpenAI = "openai"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Assistant AssistantConfig `yaml:"assistant" mapstructure:"assistant"`
	Stats     StatsConfig     `yaml:"stats" mapstructure:"stats"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" mapstructure:"port"`
	Host            string        `yaml:"host" mapstructure:"host"`
	ReadTimeout     time.Duration `yaml:"readTimeout" mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" mapstructure:"writeTimeout"` // Must exceed the longest mock delay
	IdleTimeout     time.Duration `yaml:"idleTimeout" mapstructure:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" mapstructure:"shutdownTimeout"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type string `yaml:"type" mapstructure:"type"` // "memory", "file" or "badger"
	Path string `yaml:"path" mapstructure:"path"` // Directory for file and badger storage
}

// AssistantConfig holds the chat assistant configuration
type AssistantConfig struct {
	Provider          string        `yaml:"provider" mapstructure:"provider"` // "none" or "openai"
	APIKey            string        `yaml:"apiKey" mapstructure:"apiKey"`
	BaseURL           string        `yaml:"baseURL" mapstructure:"baseURL"` // Optional, for OpenAI compatible endpoints
	Model             string        `yaml:"model" mapstructure:"model"`
	Temperature       float32       `yaml:"temperature" mapstructure:"temperature"`
	RequestsPerMinute int           `yaml:"requestsPerMinute" mapstructure:"requestsPerMinute"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// StatsConfig sizes the ledger views
type StatsConfig struct {
	RecentRequests int `yaml:"recentRequests" mapstructure:"recentRequests"`
	TopMocks       int `yaml:"topMocks" mapstructure:"topMocks"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    90 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			Type: StorageMemory,
			Path: "./data",
		},
		Assistant: AssistantConfig{
			Provider:          AssistantNone,
			Model:             "gpt-4o-mini",
			Temperature:       0.2,
			RequestsPerMinute: 20,
			Timeout:           60 * time.Second,
		},
		Stats: StatsConfig{
			RecentRequests: 10,
			TopMocks:       5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// SetDefaults registers every key with viper so env overrides apply
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.readTimeout", d.Server.ReadTimeout)
	v.SetDefault("server.writeTimeout", d.Server.WriteTimeout)
	v.SetDefault("server.idleTimeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdownTimeout", d.Server.ShutdownTimeout)

	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.path", d.Storage.Path)

	v.SetDefault("assistant.provider", d.Assistant.Provider)
	v.SetDefault("assistant.apiKey", d.Assistant.APIKey)
	v.SetDefault("assistant.baseURL", d.Assistant.BaseURL)
	v.SetDefault("assistant.model", d.Assistant.Model)
	v.SetDefault("assistant.temperature", d.Assistant.Temperature)
	v.SetDefault("assistant.requestsPerMinute", d.Assistant.RequestsPerMinute)
	v.SetDefault("assistant.timeout", d.Assistant.Timeout)

	v.SetDefault("stats.recentRequests", d.Stats.RecentRequests)
	v.SetDefault("stats.topMocks", d.Stats.TopMocks)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// FromViper decodes the merged viper settings
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	switch c.Storage.Type {
	case StorageMemory:
	case StorageFile, StorageBadger:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for %s storage", c.Storage.Type)
		}
	default:
		return fmt.Errorf("unknown storage.type %q", c.Storage.Type)
	}
	switch c.Assistant.Provider {
	case "", AssistantNone:
	case AssistantOpenAI:
		if c.Assistant.APIKey == "" {
			return fmt.Errorf("assistant.apiKey is required for the openai provider")
		}
	default:
		return fmt.Errorf("unknown assistant.provider %q", c.Assistant.Provider)
	}
	if c.Stats.RecentRequests <= 0 || c.Stats.TopMocks <= 0 {
		return fmt.Errorf("stats sizes must be positive")
	}
	return nil
}

// Address returns the listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Package config defines the runtime configuration: persona roster,
// provider credentials, storage, and logging. Loading goes through viper
// so values resolve from file and environment alike.
package config

import (
	"encoding/json"
)

// Config is the root ensemble configuration.
type Config struct {
	DataDir   string        `json:"data_dir" mapstructure:"data_dir"`
	Storage   StorageConfig `json:"storage" mapstructure:"storage"`
	Logging   LoggingConfig `json:"logging" mapstructure:"logging"`
	Agent     AgentConfig   `json:"agent" mapstructure:"agent"`
	Personas  []Persona     `json:"personas" mapstructure:"personas"`
	Providers []Provider    `json:"providers" mapstructure:"providers"`

	// MaxDelegationHops bounds persona hand-off chains.
	MaxDelegationHops int `json:"max_delegation_hops" mapstructure:"max_delegation_hops"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	Path          string `json:"path" mapstructure:"path"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	MaxSizeMB int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`
	Compress  bool   `json:"compress" mapstructure:"compress"`
}

// AgentConfig holds defaults applied to every persona's execution loop.
type AgentConfig struct {
	MaxRounds   int     `json:"max_rounds" mapstructure:"max_rounds"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// Persona configures one agent role. SystemPrompt is inline text;
// PromptFile, when set, is a file whose contents take precedence and can
// be hot-reloaded.
type Persona struct {
	Role         string   `json:"role" mapstructure:"role"`
	Name         string   `json:"name" mapstructure:"name"`
	SystemPrompt string   `json:"system_prompt" mapstructure:"system_prompt"`
	PromptFile   string   `json:"prompt_file" mapstructure:"prompt_file"`
	Model        string   `json:"model" mapstructure:"model"`
	Provider     string   `json:"provider" mapstructure:"provider"`
	Tools        []string `json:"tools" mapstructure:"tools"`
}

// Provider holds one reasoning-backend credential.
type Provider struct {
	Name   string `json:"name" mapstructure:"name"` // anthropic or openai
	APIKey string `json:"api_key" mapstructure:"api_key"`
}

// Default returns a config with sensible defaults and no personas.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			RetentionDays: 30,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
			MaxSizeMB: 100,
			MaxAge:    7,
			Compress:  true,
		},
		Agent: AgentConfig{
			MaxRounds:   32,
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		MaxDelegationHops: 4,
	}
}

// String returns an indented JSON rendering, with API keys omitted.
func (c *Config) String() string {
	clone := *c
	clone.Providers = make([]Provider, len(c.Providers))
	for i, p := range c.Providers {
		clone.Providers[i] = Provider{Name: p.Name, APIKey: "[redacted]"}
	}
	data, _ := json.MarshalIndent(&clone, "", "  ")
	return string(data)
}

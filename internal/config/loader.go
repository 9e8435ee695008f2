package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader resolves and loads the configuration file.
type Loader struct {
	configPath string
}

// NewLoader creates a loader. An empty path falls back to
// $HOME/.ensemble/ensemble.json.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Path returns the effective config file path.
func (l *Loader) Path() string {
	if l.configPath != "" {
		return l.configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ensemble", "ensemble.json")
}

// Load reads the config file, applying defaults and ENSEMBLE_* environment
// overrides. A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath := l.Path()
	if configPath == "" {
		return nil, fmt.Errorf("failed to resolve config path")
	}

	cfg := Default()

	if _, err := os.Stat(configPath); err == nil {
		v := viper.New()
		v.SetConfigFile(configPath)
		v.SetConfigType("json")
		v.SetEnvPrefix("ENSEMBLE")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".ensemble")
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = filepath.Join(cfg.DataDir, "ensemble.db")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "ensemble.log")
	}

	if err := l.resolvePromptFiles(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolvePromptFiles reads each persona's PromptFile into SystemPrompt.
// File contents win over inline text. Relative paths resolve against the
// config file's directory.
func (l *Loader) resolvePromptFiles(cfg *Config) error {
	base := filepath.Dir(l.Path())

	for i := range cfg.Personas {
		p := &cfg.Personas[i]
		if p.PromptFile == "" {
			continue
		}
		path := p.PromptFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read prompt file for persona %s: %w", p.Role, err)
		}
		p.SystemPrompt = strings.TrimSpace(string(data))
		p.PromptFile = path
	}
	return nil
}

// Save writes the config as JSON to the effective path, creating the
// directory as needed.
func (l *Loader) Save(cfg *Config) error {
	configPath := l.Path()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("data_dir", cfg.DataDir)
	v.Set("storage", cfg.Storage)
	v.Set("logging", cfg.Logging)
	v.Set("agent", cfg.Agent)
	v.Set("personas", cfg.Personas)
	v.Set("providers", cfg.Providers)
	v.Set("max_delegation_hops", cfg.MaxDelegationHops)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			return nil
		}
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load is a convenience wrapper around NewLoader(...).Load().
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

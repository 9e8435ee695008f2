package config

import (
	"fmt"
)

var validProviders = map[string]bool{
	"anthropic": true,
	"openai":    true,
}

// Validate checks the configuration for contradictions before the runtime
// starts. Personas need unique non-empty roles, a model, and a known
// provider with a credential.
func (c *Config) Validate() error {
	if len(c.Personas) == 0 {
		return fmt.Errorf("at least one persona must be configured")
	}

	credentials := map[string]bool{}
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider %d: name is required", i)
		}
		if !validProviders[p.Name] {
			return fmt.Errorf("provider %s: unknown provider (must be: anthropic, openai)", p.Name)
		}
		if p.APIKey == "" {
			return fmt.Errorf("provider %s: api_key is required", p.Name)
		}
		credentials[p.Name] = true
	}

	roles := map[string]bool{}
	for i, p := range c.Personas {
		if p.Role == "" {
			return fmt.Errorf("persona %d: role is required", i)
		}
		if roles[p.Role] {
			return fmt.Errorf("persona %s: duplicate role", p.Role)
		}
		roles[p.Role] = true

		if p.Model == "" {
			return fmt.Errorf("persona %s: model is required", p.Role)
		}
		if p.Provider == "" {
			return fmt.Errorf("persona %s: provider is required", p.Role)
		}
		if !validProviders[p.Provider] {
			return fmt.Errorf("persona %s: unknown provider %s", p.Role, p.Provider)
		}
		if !credentials[p.Provider] {
			return fmt.Errorf("persona %s: no credential configured for provider %s", p.Role, p.Provider)
		}
		if p.SystemPrompt == "" {
			return fmt.Errorf("persona %s: system_prompt or prompt_file is required", p.Role)
		}
	}

	if c.Agent.MaxRounds < 0 {
		return fmt.Errorf("agent.max_rounds cannot be negative")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		return fmt.Errorf("agent.temperature must be between 0 and 2")
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("storage.retention_days cannot be negative")
	}
	if c.MaxDelegationHops < 0 {
		return fmt.Errorf("max_delegation_hops cannot be negative")
	}

	return nil
}

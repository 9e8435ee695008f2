package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/karim/ensemble/internal/config"
	"github.com/karim/ensemble/internal/logger"
	"github.com/karim/ensemble/pkg/agent"
	"github.com/karim/ensemble/pkg/coretools"
	"github.com/karim/ensemble/pkg/orchestrator"
	"github.com/karim/ensemble/pkg/prompt"
	"github.com/karim/ensemble/pkg/store"
	"github.com/karim/ensemble/pkg/toolkit"
)

// runtime holds everything a running command needs, assembled from config.
type runtime struct {
	cfg       *config.Config
	log       *logger.Logger
	store     *store.Store
	retention *store.Retention
	orch      *orchestrator.Orchestrator
	watcher   *config.Watcher
}

// buildRuntime loads config and stands the full stack up: store, retention,
// per-persona registries and agents, the orchestrator, and the prompt
// watcher.
func buildRuntime() (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg := logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	}
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, err
	}
	zl := log.Zerolog()

	st, err := store.Open(store.Config{Path: cfg.Storage.Path, Logger: zl})
	if err != nil {
		log.Close()
		return nil, err
	}

	var retention *store.Retention
	if cfg.Storage.RetentionDays > 0 {
		retention, err = store.NewRetention(store.RetentionConfig{
			Store:  st,
			Logger: zl,
			MaxAge: time.Duration(cfg.Storage.RetentionDays) * 24 * time.Hour,
		})
		if err == nil {
			err = retention.Start()
		}
		if err != nil {
			st.Close()
			log.Close()
			return nil, err
		}
	}

	builder, err := prompt.New(prompt.Config{Store: st, Logger: zl})
	if err != nil {
		st.Close()
		log.Close()
		return nil, err
	}

	backends := map[string]agent.Backend{}
	for _, p := range cfg.Providers {
		switch p.Name {
		case "anthropic":
			backends[p.Name] = agent.NewAnthropicBackend(p.APIKey)
		case "openai":
			backends[p.Name] = agent.NewOpenAIBackend(p.APIKey)
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		MaxHops: cfg.MaxDelegationHops,
		Logger:  zl,
	})

	for _, persona := range cfg.Personas {
		a, err := buildPersona(cfg, persona, st, builder, backends[persona.Provider], zl)
		if err != nil {
			st.Close()
			log.Close()
			return nil, err
		}
		if err := orch.Register(a); err != nil {
			st.Close()
			log.Close()
			return nil, err
		}
	}

	watcher, err := config.NewWatcher(cfg, func(change config.PromptChange) {
		if a := orch.Get(change.Role); a != nil {
			a.SetSystemPrompt(change.SystemPrompt)
		}
	}, zl)
	if err != nil {
		st.Close()
		log.Close()
		return nil, err
	}

	return &runtime{
		cfg:       cfg,
		log:       log,
		store:     st,
		retention: retention,
		orch:      orch,
		watcher:   watcher,
	}, nil
}

// buildPersona assembles one agent: its own registry with the core tools,
// scoped to the roles it declares.
func buildPersona(cfg *config.Config, persona config.Persona, st *store.Store, builder *prompt.Builder, backend agent.Backend, zl zerolog.Logger) (*agent.Agent, error) {
	if backend == nil {
		return nil, fmt.Errorf("persona %s: no backend for provider %s", persona.Role, persona.Provider)
	}

	registry := toolkit.New(toolkit.Config{Logger: zl})
	if err := coretools.Register(registry, st, persona.Role); err != nil {
		return nil, err
	}

	toolNames := persona.Tools
	if len(toolNames) == 0 {
		toolNames = coretools.Names()
	}

	return agent.New(agent.Config{
		Role:         persona.Role,
		SessionID:    orchestrator.NewSessionID(),
		SystemPrompt: persona.SystemPrompt,
		Model:        persona.Model,
		Temperature:  cfg.Agent.Temperature,
		MaxTokens:    cfg.Agent.MaxTokens,
		MaxRounds:    cfg.Agent.MaxRounds,
		ToolNames:    toolNames,
		Store:        st,
		Registry:     registry,
		Backend:      backend,
		Builder:      builder,
		Logger:       zl,
	})
}

// close tears the runtime down in reverse order.
func (r *runtime) close() {
	if r.watcher != nil {
		r.watcher.Close()
	}
	if r.retention != nil {
		r.retention.Stop()
	}
	if r.store != nil {
		r.store.Close()
	}
	if r.log != nil {
		r.log.Close()
	}
}

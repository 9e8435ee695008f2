package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/karim/ensemble/pkg/directive"
	"github.com/karim/ensemble/pkg/prompt"
	"github.com/karim/ensemble/pkg/store"
	"github.com/karim/ensemble/pkg/toolkit"
)

const defaultMaxRounds = 32

// Config holds the dependencies and persona settings for one agent.
type Config struct {
	Role         string
	SessionID    string
	SystemPrompt string
	Model        string
	Temperature  float64
	MaxTokens    int
	MaxRounds    int
	ToolNames    []string
	Store        *store.Store
	Registry     *toolkit.Registry
	Backend      Backend
	Builder      *prompt.Builder
	Logger       zerolog.Logger
}

// Agent runs turns for a single persona against one reasoning backend.
// The system prompt can be swapped at runtime when its source file changes.
type Agent struct {
	role         string
	sessionID    string
	promptMu     sync.RWMutex
	systemPrompt string
	model        string
	temperature  float64
	maxTokens    int
	maxRounds    int
	toolNames    []string
	store        *store.Store
	registry     *toolkit.Registry
	backend      Backend
	builder      *prompt.Builder
	logger       zerolog.Logger
}

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	VisibleText    string     `json:"visible_text"`
	DelegateTo     string     `json:"delegate_to,omitempty"`
	MemoriesStored int        `json:"memories_stored"`
	Usage          TokenUsage `json:"usage"`
}

// New creates an agent from config. Store, Registry, Backend, and Builder
// are required; MaxRounds defaults to 32.
func New(cfg Config) (*Agent, error) {
	if cfg.Role == "" {
		return nil, fmt.Errorf("role is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Builder == nil {
		return nil, fmt.Errorf("builder is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = defaultMaxRounds
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	return &Agent{
		role:         cfg.Role,
		sessionID:    cfg.SessionID,
		systemPrompt: cfg.SystemPrompt,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		maxRounds:    cfg.MaxRounds,
		toolNames:    cfg.ToolNames,
		store:        cfg.Store,
		registry:     cfg.Registry,
		backend:      cfg.Backend,
		builder:      cfg.Builder,
		logger:       cfg.Logger.With().Str("component", "agent").Str("role", cfg.Role).Logger(),
	}, nil
}

// Role returns the persona role this agent serves.
func (a *Agent) Role() string {
	return a.role
}

// SessionID returns the default session for this agent.
func (a *Agent) SessionID() string {
	return a.sessionID
}

// SetSystemPrompt replaces the persona prompt. The next turn picks it up.
func (a *Agent) SetSystemPrompt(prompt string) {
	a.promptMu.Lock()
	a.systemPrompt = prompt
	a.promptMu.Unlock()
}

// RunTurn processes one user message to completion: the user turn is
// persisted first, the full session history is replayed to the backend,
// requested tool calls run in order until the backend answers without any,
// and the final text is split into visible reply, delegation target, and
// memory notes. The visible reply is persisted tagged with the role, and
// each note is written to the store before returning.
func (a *Agent) RunTurn(ctx context.Context, sessionID, userText string) (*TurnResult, error) {
	if err := a.store.AppendTurn(ctx, store.Turn{
		SessionID: sessionID,
		Role:      "user",
		Content:   userText,
	}); err != nil {
		return nil, fmt.Errorf("failed to persist user turn: %w", err)
	}

	a.promptMu.RLock()
	systemPrompt := a.systemPrompt
	a.promptMu.RUnlock()

	instructions, err := a.builder.Build(ctx, systemPrompt, a.role)
	if err != nil {
		return nil, fmt.Errorf("failed to build instructions: %w", err)
	}

	history, err := a.store.GetHistory(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	messages := make([]Message, 0, len(history))
	for _, t := range history {
		messages = append(messages, Message{Role: t.Role, Content: t.Content})
	}

	decls, err := a.registry.Declarations(a.toolNames)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tools: %w", err)
	}

	usage := TokenUsage{}
	finalText := ""

	for round := 0; ; round++ {
		if round >= a.maxRounds {
			return nil, fmt.Errorf("turn exceeded %d rounds without a final answer", a.maxRounds)
		}

		resp, err := a.backend.Complete(ctx, Request{
			Model:       a.model,
			System:      instructions,
			Messages:    messages,
			Tools:       decls,
			Temperature: a.temperature,
			MaxTokens:   a.maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("backend request failed: %w", err)
		}
		usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			finalText = resp.Text
			break
		}

		a.logger.Debug().
			Int("round", round).
			Int("tool_calls", len(resp.ToolCalls)).
			Msg("Executing tool calls")

		messages = append(messages, Message{
			Role:      "assistant",
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			result := a.registry.Execute(ctx, tc.Name, tc.Input)
			messages = append(messages, Message{
				Role:       "tool",
				Content:    renderResult(result),
				ToolCallID: tc.ID,
				IsError:    !result.Success,
			})
		}
	}

	ext := directive.Extract(finalText)

	if err := a.store.AppendTurn(ctx, store.Turn{
		SessionID: sessionID,
		Role:      "assistant",
		Content:   ext.VisibleText,
		AgentRole: a.role,
	}); err != nil {
		return nil, fmt.Errorf("failed to persist assistant turn: %w", err)
	}

	for _, note := range ext.Memories {
		if _, err := a.store.WriteMemory(ctx, store.Memory{
			Kind:    store.Kind(note.Kind),
			Content: note.Content,
			Role:    a.role,
		}); err != nil {
			return nil, fmt.Errorf("failed to store memory note: %w", err)
		}
	}

	a.logger.Info().
		Str("session_id", sessionID).
		Str("delegate_to", ext.DelegateTo).
		Int("memories", len(ext.Memories)).
		Int("input_tokens", usage.InputTokens).
		Int("output_tokens", usage.OutputTokens).
		Msg("Turn completed")

	return &TurnResult{
		VisibleText:    ext.VisibleText,
		DelegateTo:     ext.DelegateTo,
		MemoriesStored: len(ext.Memories),
		Usage:          usage,
	}, nil
}

// renderResult flattens a tool result into the text fed back to the backend.
func renderResult(res toolkit.Result) string {
	if !res.Success {
		return res.Error
	}
	switch v := res.Output.(type) {
	case nil:
		return "ok"
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// Package orchestrator routes user messages to persona agents and follows
// delegation hand-offs between them.
//
// Invariants:
// - A delegation chain is bounded by MaxHops; the bound counts hand-offs,
//   not turns.
// - A hand-off naming an unregistered role ends the chain with the text
//   produced so far.
// - Every hop runs in the caller's session; the session log records which
//   persona produced each assistant turn.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/karim/ensemble/pkg/agent"
)

const defaultMaxHops = 4

// Config holds orchestrator configuration.
type Config struct {
	MaxHops int
	Logger  zerolog.Logger
}

// Orchestrator holds the persona roster and dispatches turns across it.
type Orchestrator struct {
	agents  map[string]*agent.Agent
	maxHops int
	logger  zerolog.Logger
}

// DispatchResult is the combined outcome of a delegation chain.
type DispatchResult struct {
	Text           string           `json:"text"`
	Hops           []string         `json:"hops"`
	MemoriesStored int              `json:"memories_stored"`
	Usage          agent.TokenUsage `json:"usage"`
}

// New creates an empty orchestrator. MaxHops defaults to 4.
func New(cfg Config) *Orchestrator {
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = defaultMaxHops
	}
	return &Orchestrator{
		agents:  make(map[string]*agent.Agent),
		maxHops: cfg.MaxHops,
		logger:  cfg.Logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Register adds a persona agent under its role.
func (o *Orchestrator) Register(a *agent.Agent) error {
	if a == nil {
		return fmt.Errorf("agent cannot be nil")
	}
	role := a.Role()
	if _, exists := o.agents[role]; exists {
		return fmt.Errorf("role already registered: %s", role)
	}
	o.agents[role] = a
	o.logger.Debug().Str("role", role).Msg("Persona registered")
	return nil
}

// Roles returns the registered persona roles.
func (o *Orchestrator) Roles() []string {
	roles := make([]string, 0, len(o.agents))
	for role := range o.agents {
		roles = append(roles, role)
	}
	return roles
}

// Get returns the agent for a role, or nil.
func (o *Orchestrator) Get(role string) *agent.Agent {
	return o.agents[role]
}

// NewSessionID mints a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Dispatch runs a turn on the named persona and follows delegation
// hand-offs until an agent answers without one, an unknown role is named,
// or MaxHops is reached. The visible texts of all hops join with blank
// lines.
func (o *Orchestrator) Dispatch(ctx context.Context, role, sessionID, userText string) (*DispatchResult, error) {
	a := o.agents[role]
	if a == nil {
		return nil, fmt.Errorf("unknown persona role: %s", role)
	}

	out := &DispatchResult{}
	texts := []string{}
	input := userText

	for hop := 0; ; hop++ {
		out.Hops = append(out.Hops, a.Role())

		result, err := a.RunTurn(ctx, sessionID, input)
		if err != nil {
			return nil, fmt.Errorf("turn failed for role %s: %w", a.Role(), err)
		}
		if result.VisibleText != "" {
			texts = append(texts, result.VisibleText)
		}
		out.MemoriesStored += result.MemoriesStored
		out.Usage.Add(&result.Usage)

		if result.DelegateTo == "" {
			break
		}

		next := o.agents[result.DelegateTo]
		if next == nil {
			o.logger.Warn().
				Str("from", a.Role()).
				Str("to", result.DelegateTo).
				Msg("Delegation target not registered, ending chain")
			break
		}
		if hop+1 >= o.maxHops {
			o.logger.Warn().
				Str("from", a.Role()).
				Str("to", result.DelegateTo).
				Int("max_hops", o.maxHops).
				Msg("Delegation hop bound reached, ending chain")
			break
		}

		o.logger.Info().
			Str("from", a.Role()).
			Str("to", result.DelegateTo).
			Int("hop", hop+1).
			Msg("Following delegation")

		// The delegated persona sees the original request plus the
		// delegating persona's visible reply as its user message.
		input = userText
		if result.VisibleText != "" {
			input = userText + "\n\n[Handed off from " + a.Role() + "]: " + result.VisibleText
		}
		a = next
	}

	out.Text = strings.Join(texts, "\n\n")
	return out, nil
}

package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karim/ensemble/pkg/agent"
	"github.com/karim/ensemble/pkg/prompt"
	"github.com/karim/ensemble/pkg/store"
	"github.com/karim/ensemble/pkg/toolkit"
)

// roleBackend answers with a fixed script per persona role.
type roleBackend struct {
	script []string
	calls  int
}

func (b *roleBackend) Name() string { return "role-scripted" }

func (b *roleBackend) Complete(ctx context.Context, req agent.Request) (*agent.Response, error) {
	if b.calls >= len(b.script) {
		return &agent.Response{Text: "out of script"}, nil
	}
	text := b.script[b.calls]
	b.calls++
	return &agent.Response{Text: text}, nil
}

type orchHarness struct {
	store   *store.Store
	builder *prompt.Builder
	orch    *Orchestrator
}

func setupOrchestrator(t *testing.T, maxHops int) *orchHarness {
	t.Helper()

	logger := zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
	st, err := store.Open(store.Config{
		Path:   filepath.Join(t.TempDir(), "ensemble.db"),
		Logger: logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b, err := prompt.New(prompt.Config{Store: st, Logger: logger})
	require.NoError(t, err)

	return &orchHarness{
		store:   st,
		builder: b,
		orch:    New(Config{MaxHops: maxHops, Logger: logger}),
	}
}

func (h *orchHarness) addPersona(t *testing.T, role string, script ...string) *roleBackend {
	t.Helper()

	logger := zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
	backend := &roleBackend{script: script}
	a, err := agent.New(agent.Config{
		Role:         role,
		SessionID:    "default-" + role,
		SystemPrompt: fmt.Sprintf("You are the %s persona.", role),
		Model:        "test-model",
		Store:        h.store,
		Registry:     toolkit.New(toolkit.Config{Logger: logger}),
		Backend:      backend,
		Builder:      h.builder,
		Logger:       logger,
	})
	require.NoError(t, err)
	require.NoError(t, h.orch.Register(a))
	return backend
}

func TestRegisterPersona(t *testing.T) {
	t.Run("should reject duplicate roles", func(t *testing.T) {
		h := setupOrchestrator(t, 0)
		h.addPersona(t, "dev", "hi")

		logger := zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
		dup, err := agent.New(agent.Config{
			Role:     "dev",
			Model:    "m",
			Store:    h.store,
			Registry: toolkit.New(toolkit.Config{Logger: logger}),
			Backend:  &roleBackend{},
			Builder:  h.builder,
			Logger:   logger,
		})
		require.NoError(t, err)
		assert.Error(t, h.orch.Register(dup))
	})
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("should error on unknown role", func(t *testing.T) {
		h := setupOrchestrator(t, 0)
		_, err := h.orch.Dispatch(ctx, "ghost", "s1", "hello")
		assert.ErrorContains(t, err, "ghost")
	})

	t.Run("should answer directly without delegation", func(t *testing.T) {
		h := setupOrchestrator(t, 0)
		h.addPersona(t, "dev", "Plain answer.")

		result, err := h.orch.Dispatch(ctx, "dev", "s1", "hello")
		require.NoError(t, err)
		assert.Equal(t, "Plain answer.", result.Text)
		assert.Equal(t, []string{"dev"}, result.Hops)
	})

	t.Run("should follow a delegation hand-off", func(t *testing.T) {
		h := setupOrchestrator(t, 0)
		h.addPersona(t, "support", "Escalating. [DELEGATE:dev]")
		h.addPersona(t, "dev", "Fixed the bug.")

		result, err := h.orch.Dispatch(ctx, "support", "s1", "my app crashes")
		require.NoError(t, err)
		assert.Equal(t, "Escalating.\n\nFixed the bug.", result.Text)
		assert.Equal(t, []string{"support", "dev"}, result.Hops)
	})

	t.Run("should end the chain at an unregistered target", func(t *testing.T) {
		h := setupOrchestrator(t, 0)
		h.addPersona(t, "support", "Trying. [DELEGATE:nobody]")

		result, err := h.orch.Dispatch(ctx, "support", "s1", "help")
		require.NoError(t, err)
		assert.Equal(t, "Trying.", result.Text)
		assert.Equal(t, []string{"support"}, result.Hops)
	})

	t.Run("should bound the chain by max hops", func(t *testing.T) {
		h := setupOrchestrator(t, 2)
		h.addPersona(t, "a", "From a. [DELEGATE:b]", "From a again. [DELEGATE:b]")
		h.addPersona(t, "b", "From b. [DELEGATE:a]", "From b again. [DELEGATE:a]")

		result, err := h.orch.Dispatch(ctx, "a", "s1", "ping")
		require.NoError(t, err)
		assert.Len(t, result.Hops, 2)
	})

	t.Run("should tag each assistant turn with its persona", func(t *testing.T) {
		h := setupOrchestrator(t, 0)
		h.addPersona(t, "support", "Handing off. [DELEGATE:dev]")
		h.addPersona(t, "dev", "Done.")

		_, err := h.orch.Dispatch(ctx, "support", "s1", "help me")
		require.NoError(t, err)

		history, err := h.store.GetHistory(ctx, "s1", 0)
		require.NoError(t, err)

		agentRoles := []string{}
		for _, turn := range history {
			if turn.Role == "assistant" {
				agentRoles = append(agentRoles, turn.AgentRole)
			}
		}
		assert.Equal(t, []string{"support", "dev"}, agentRoles)
	})

	t.Run("should accumulate memories across hops", func(t *testing.T) {
		h := setupOrchestrator(t, 0)
		h.addPersona(t, "support", "Noted. [REMEMBER:fact|user is on the pro plan] [DELEGATE:dev]")
		h.addPersona(t, "dev", "Done. [REMEMBER:task-note|patched the crash]")

		result, err := h.orch.Dispatch(ctx, "support", "s1", "crash on login")
		require.NoError(t, err)
		assert.Equal(t, 2, result.MemoriesStored)
	})
}

func TestNewSessionID(t *testing.T) {
	t.Run("should mint unique ids", func(t *testing.T) {
		assert.NotEqual(t, NewSessionID(), NewSessionID())
	})
}

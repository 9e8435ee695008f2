// Package prompt assembles the effective instruction text for a turn from
// a persona's static prompt plus stored preferences and role-scoped
// memories. Building is read-only against the store.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/karim/ensemble/pkg/store"
	"github.com/rs/zerolog"
)

const (
	// memoryFetchLimit is how many recent memories are fetched; only the
	// most recent memoryDisplayLimit of them are rendered.
	memoryFetchLimit   = 20
	memoryDisplayLimit = 10
)

// Builder composes instruction text from the store.
type Builder struct {
	store  *store.Store
	logger zerolog.Logger
}

// Config holds builder configuration.
type Config struct {
	Store  *store.Store
	Logger zerolog.Logger
}

// New creates a prompt builder.
func New(cfg Config) (*Builder, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	return &Builder{store: cfg.Store, logger: cfg.Logger}, nil
}

// Build returns the instruction text for a role. Sections appear in fixed
// order: static prompt, preferences grouped by category, recent role-scoped
// context. Preferences are user-global; memories are filtered to the role.
func (b *Builder) Build(ctx context.Context, staticPrompt, role string) (string, error) {
	var sb strings.Builder
	sb.WriteString(staticPrompt)

	prefs, err := b.store.ListPreferences(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to load preferences: %w", err)
	}
	if section := renderPreferences(prefs); section != "" {
		sb.WriteString("\n\n")
		sb.WriteString(section)
	}

	memories, err := b.store.ReadMemories(ctx, store.MemoryFilter{
		Role:  role,
		Limit: memoryFetchLimit,
	})
	if err != nil {
		return "", fmt.Errorf("failed to load memories: %w", err)
	}
	if section := renderRecentContext(memories); section != "" {
		sb.WriteString("\n\n")
		sb.WriteString(section)
	}

	b.logger.Debug().
		Str("role", role).
		Int("preferences", len(prefs)).
		Int("memories", len(memories)).
		Msg("Instructions built")

	return sb.String(), nil
}

// renderPreferences groups preferences by category into labeled sections.
func renderPreferences(prefs []store.Preference) string {
	if len(prefs) == 0 {
		return ""
	}

	byCategory := make(map[string][]store.Preference)
	for _, p := range prefs {
		byCategory[p.Category] = append(byCategory[p.Category], p)
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var sb strings.Builder
	sb.WriteString("## User Preferences")
	for _, category := range categories {
		sb.WriteString(fmt.Sprintf("\n\n### %s\n", category))
		for _, p := range byCategory[category] {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", p.Key, p.Value))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// renderRecentContext renders the most recent memories as [kind] lines.
func renderRecentContext(memories []store.Memory) string {
	if len(memories) == 0 {
		return ""
	}
	if len(memories) > memoryDisplayLimit {
		memories = memories[:memoryDisplayLimit]
	}

	var sb strings.Builder
	sb.WriteString("## Recent Context\n")
	for _, m := range memories {
		sb.WriteString(fmt.Sprintf("- [%s] %s\n", m.Kind, m.Content))
	}
	return strings.TrimRight(sb.String(), "\n")
}

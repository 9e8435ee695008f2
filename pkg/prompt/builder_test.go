package prompt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/karim/ensemble/pkg/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestBuilder(t *testing.T) (*Builder, *store.Store) {
	t.Helper()

	st, err := store.Open(store.Config{
		Path:   filepath.Join(t.TempDir(), "ensemble.db"),
		Logger: zerolog.New(os.Stdout).Level(zerolog.ErrorLevel),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b, err := New(Config{Store: st, Logger: zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)})
	require.NoError(t, err)
	return b, st
}

func TestNew(t *testing.T) {
	t.Run("should require store", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("should return static prompt when store is empty", func(t *testing.T) {
		b, _ := setupTestBuilder(t)

		out, err := b.Build(ctx, "You are a helper.", "dev")
		require.NoError(t, err)
		assert.Equal(t, "You are a helper.", out)
	})

	t.Run("should append preferences grouped by category", func(t *testing.T) {
		b, st := setupTestBuilder(t)
		require.NoError(t, st.UpsertPreference(ctx, "tone", "terse", "style"))
		require.NoError(t, st.UpsertPreference(ctx, "lang", "go", "coding"))

		out, err := b.Build(ctx, "Base.", "dev")
		require.NoError(t, err)

		assert.Contains(t, out, "## User Preferences")
		assert.Contains(t, out, "### style")
		assert.Contains(t, out, "- tone: terse")
		assert.Contains(t, out, "### coding")
		assert.Contains(t, out, "- lang: go")
	})

	t.Run("should append role-scoped recent context", func(t *testing.T) {
		b, st := setupTestBuilder(t)
		_, err := st.WriteMemory(ctx, store.Memory{Kind: store.KindFact, Content: "dev fact", Role: "dev"})
		require.NoError(t, err)
		_, err = st.WriteMemory(ctx, store.Memory{Kind: store.KindFact, Content: "support fact", Role: "support"})
		require.NoError(t, err)

		out, err := b.Build(ctx, "Base.", "dev")
		require.NoError(t, err)

		assert.Contains(t, out, "## Recent Context")
		assert.Contains(t, out, "[fact] dev fact")
		assert.NotContains(t, out, "support fact")
	})

	t.Run("should never role-filter preferences", func(t *testing.T) {
		b, st := setupTestBuilder(t)
		require.NoError(t, st.UpsertPreference(ctx, "tone", "terse", "style"))

		out, err := b.Build(ctx, "Base.", "any-role-at-all")
		require.NoError(t, err)
		assert.Contains(t, out, "- tone: terse")
	})

	t.Run("should keep sections in fixed order", func(t *testing.T) {
		b, st := setupTestBuilder(t)
		require.NoError(t, st.UpsertPreference(ctx, "tone", "terse", "style"))
		_, err := st.WriteMemory(ctx, store.Memory{Kind: store.KindFact, Content: "a fact", Role: "dev"})
		require.NoError(t, err)

		out, err := b.Build(ctx, "Base.", "dev")
		require.NoError(t, err)

		prefIdx := strings.Index(out, "## User Preferences")
		ctxIdx := strings.Index(out, "## Recent Context")
		assert.True(t, strings.HasPrefix(out, "Base."))
		assert.Greater(t, prefIdx, 0)
		assert.Greater(t, ctxIdx, prefIdx)
	})

	t.Run("should cap displayed memories at ten", func(t *testing.T) {
		b, st := setupTestBuilder(t)
		for i := 0; i < 25; i++ {
			_, err := st.WriteMemory(ctx, store.Memory{
				Kind:    store.KindFact,
				Content: fmt.Sprintf("fact number %02d", i),
				Role:    "dev",
			})
			require.NoError(t, err)
		}

		out, err := b.Build(ctx, "Base.", "dev")
		require.NoError(t, err)

		assert.Equal(t, memoryDisplayLimit, strings.Count(out, "- [fact]"))
	})
}

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "ensemble.db")

	st, err := Open(Config{
		Path:   path,
		Logger: zerolog.New(os.Stdout).Level(zerolog.ErrorLevel),
	})
	require.NoError(t, err)

	t.Cleanup(func() { st.Close() })
	return st, path
}

func TestOpen(t *testing.T) {
	t.Run("should fail without path", func(t *testing.T) {
		_, err := Open(Config{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "path")
	})

	t.Run("should create database file", func(t *testing.T) {
		_, path := setupTestStore(t)
		_, err := os.Stat(path)
		assert.NoError(t, err)
	})
}

func TestWriteMemory(t *testing.T) {
	st, _ := setupTestStore(t)
	ctx := context.Background()

	t.Run("should write and fill identity", func(t *testing.T) {
		m, err := st.WriteMemory(ctx, Memory{Kind: KindFact, Content: "the sky is blue"})
		require.NoError(t, err)
		assert.NotEmpty(t, m.ID)
		assert.False(t, m.CreatedAt.IsZero())
	})

	t.Run("should reject empty content", func(t *testing.T) {
		_, err := st.WriteMemory(ctx, Memory{Kind: KindFact})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "content")
	})

	t.Run("should reject empty kind", func(t *testing.T) {
		_, err := st.WriteMemory(ctx, Memory{Content: "something"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "kind")
	})

	t.Run("should round-trip metadata and role", func(t *testing.T) {
		m, err := st.WriteMemory(ctx, Memory{
			Kind:     KindTaskNote,
			Content:  "deploy went fine",
			Metadata: map[string]string{"source": "tool"},
			Role:     "dev",
		})
		require.NoError(t, err)

		got, err := st.ReadMemories(ctx, MemoryFilter{Kind: KindTaskNote})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, m.ID, got[0].ID)
		assert.Equal(t, "dev", got[0].Role)
		assert.Equal(t, "tool", got[0].Metadata["source"])
	})
}

func TestReadMemories(t *testing.T) {
	st, _ := setupTestStore(t)
	ctx := context.Background()

	seed := []Memory{
		{Kind: KindFact, Content: "first", Role: "dev", CreatedAt: time.Now().Add(-3 * time.Minute)},
		{Kind: KindFact, Content: "second", Role: "dev", CreatedAt: time.Now().Add(-2 * time.Minute)},
		{Kind: KindPreference, Content: "third", Role: "support", CreatedAt: time.Now().Add(-time.Minute)},
	}
	for _, m := range seed {
		_, err := st.WriteMemory(ctx, m)
		require.NoError(t, err)
	}

	t.Run("should return most recent first", func(t *testing.T) {
		got, err := st.ReadMemories(ctx, MemoryFilter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "third", got[0].Content)
		assert.Equal(t, "first", got[2].Content)
	})

	t.Run("should filter by kind", func(t *testing.T) {
		got, err := st.ReadMemories(ctx, MemoryFilter{Kind: KindPreference})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "third", got[0].Content)
	})

	t.Run("should filter by role", func(t *testing.T) {
		got, err := st.ReadMemories(ctx, MemoryFilter{Role: "dev"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("should respect limit", func(t *testing.T) {
		got, err := st.ReadMemories(ctx, MemoryFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "third", got[0].Content)
	})
}

func TestSearchMemories(t *testing.T) {
	st, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := st.WriteMemory(ctx, Memory{Kind: KindFact, Content: "the sky is blue"})
	require.NoError(t, err)
	_, err = st.WriteMemory(ctx, Memory{Kind: KindFact, Content: "grass is green"})
	require.NoError(t, err)

	t.Run("should match substrings", func(t *testing.T) {
		got, err := st.SearchMemories(ctx, "sky", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "the sky is blue", got[0].Content)
	})

	t.Run("should return empty for no match", func(t *testing.T) {
		got, err := st.SearchMemories(ctx, "ocean", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("should return empty for empty query", func(t *testing.T) {
		got, err := st.SearchMemories(ctx, "", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("should not treat wildcards as patterns", func(t *testing.T) {
		got, err := st.SearchMemories(ctx, "%", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestPreferences(t *testing.T) {
	st, _ := setupTestStore(t)
	ctx := context.Background()

	t.Run("should upsert with last write winning", func(t *testing.T) {
		require.NoError(t, st.UpsertPreference(ctx, "tone", "formal", "style"))
		require.NoError(t, st.UpsertPreference(ctx, "tone", "casual", "style"))

		p, err := st.GetPreference(ctx, "tone")
		require.NoError(t, err)
		assert.Equal(t, "casual", p.Value)

		all, err := st.ListPreferences(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("should reject empty value", func(t *testing.T) {
		err := st.UpsertPreference(ctx, "tone", "", "style")
		assert.Error(t, err)
	})

	t.Run("should return ErrNotFound for missing key", func(t *testing.T) {
		_, err := st.GetPreference(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should filter by category", func(t *testing.T) {
		require.NoError(t, st.UpsertPreference(ctx, "lang", "go", "coding"))

		coding, err := st.ListPreferences(ctx, "coding")
		require.NoError(t, err)
		require.Len(t, coding, 1)
		assert.Equal(t, "lang", coding[0].Key)
	})

	t.Run("should default empty category", func(t *testing.T) {
		require.NoError(t, st.UpsertPreference(ctx, "name", "Sam", ""))
		p, err := st.GetPreference(ctx, "name")
		require.NoError(t, err)
		assert.Equal(t, "general", p.Category)
	})
}

func TestTasks(t *testing.T) {
	st, _ := setupTestStore(t)
	ctx := context.Background()

	t.Run("should create pending task", func(t *testing.T) {
		task, err := st.CreateTask(ctx, "write docs", "dev")
		require.NoError(t, err)
		assert.Equal(t, TaskPending, task.Status)
		assert.Nil(t, task.CompletedAt)

		got, err := st.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, "write docs", got.Description)
	})

	t.Run("should update status and result in place", func(t *testing.T) {
		task, err := st.CreateTask(ctx, "run tests", "dev")
		require.NoError(t, err)

		require.NoError(t, st.UpdateTask(ctx, task.ID, TaskCompleted, "all green"))

		got, err := st.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, TaskCompleted, got.Status)
		assert.Equal(t, "all green", got.Result)
		assert.NotNil(t, got.CompletedAt)
	})

	t.Run("should allow any status overwrite", func(t *testing.T) {
		task, err := st.CreateTask(ctx, "flaky job", "")
		require.NoError(t, err)

		require.NoError(t, st.UpdateTask(ctx, task.ID, TaskFailed, "boom"))
		require.NoError(t, st.UpdateTask(ctx, task.ID, TaskInProgress, ""))

		got, err := st.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, TaskInProgress, got.Status)
	})

	t.Run("should reject invalid status", func(t *testing.T) {
		task, err := st.CreateTask(ctx, "whatever", "")
		require.NoError(t, err)

		err = st.UpdateTask(ctx, task.ID, TaskStatus("exploded"), "")
		assert.Error(t, err)
	})

	t.Run("should return ErrNotFound for missing task", func(t *testing.T) {
		err := st.UpdateTask(ctx, "no-such-task", TaskCompleted, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should list by status", func(t *testing.T) {
		pending, err := st.ListTasks(ctx, TaskPending, 10)
		require.NoError(t, err)
		for _, task := range pending {
			assert.Equal(t, TaskPending, task.Status)
		}
	})
}

func TestTurns(t *testing.T) {
	st, _ := setupTestStore(t)
	ctx := context.Background()

	t.Run("should append and replay chronologically", func(t *testing.T) {
		base := time.Now().Add(-time.Minute)
		turns := []Turn{
			{SessionID: "s1", Role: "user", Content: "hello", Timestamp: base},
			{SessionID: "s1", Role: "assistant", Content: "hi", AgentRole: "captain", Timestamp: base.Add(time.Second)},
			{SessionID: "s1", Role: "user", Content: "how are you", Timestamp: base.Add(2 * time.Second)},
		}
		for _, turn := range turns {
			require.NoError(t, st.AppendTurn(ctx, turn))
		}

		history, err := st.GetHistory(ctx, "s1", 50)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, "hello", history[0].Content)
		assert.Equal(t, "how are you", history[2].Content)
		assert.Equal(t, "captain", history[1].AgentRole)

		for i := 1; i < len(history); i++ {
			assert.False(t, history[i].Timestamp.Before(history[i-1].Timestamp))
		}
	})

	t.Run("should limit to most recent turns in order", func(t *testing.T) {
		history, err := st.GetHistory(ctx, "s1", 2)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "hi", history[0].Content)
		assert.Equal(t, "how are you", history[1].Content)
	})

	t.Run("should isolate sessions", func(t *testing.T) {
		require.NoError(t, st.AppendTurn(ctx, Turn{SessionID: "s2", Role: "user", Content: "other"}))

		history, err := st.GetHistory(ctx, "s2", 50)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("should reject unknown role", func(t *testing.T) {
		err := st.AppendTurn(ctx, Turn{SessionID: "s1", Role: "tool", Content: "x"})
		assert.Error(t, err)
	})

	t.Run("should allow empty assistant content", func(t *testing.T) {
		err := st.AppendTurn(ctx, Turn{SessionID: "s3", Role: "assistant", Content: ""})
		assert.NoError(t, err)
	})
}

func TestDurability(t *testing.T) {
	t.Run("should survive reopen", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "ensemble.db")
		logger := zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
		ctx := context.Background()

		st, err := Open(Config{Path: path, Logger: logger})
		require.NoError(t, err)
		_, err = st.WriteMemory(ctx, Memory{Kind: KindFact, Content: "persisted"})
		require.NoError(t, err)
		require.NoError(t, st.UpsertPreference(ctx, "k", "v", "c"))
		require.NoError(t, st.Close())

		st2, err := Open(Config{Path: path, Logger: logger})
		require.NoError(t, err)
		defer st2.Close()

		got, err := st2.SearchMemories(ctx, "persisted", 5)
		require.NoError(t, err)
		assert.Len(t, got, 1)

		p, err := st2.GetPreference(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", p.Value)
	})
}

func TestNewID(t *testing.T) {
	t.Run("should generate unique ids", func(t *testing.T) {
		seen := map[string]bool{}
		for i := 0; i < 100; i++ {
			id, err := NewID()
			require.NoError(t, err)
			assert.False(t, seen[id])
			seen[id] = true
		}
	})
}

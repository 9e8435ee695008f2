// Package store provides durable persistence for memories, preferences,
// tasks, and per-session conversation turns on a single SQLite database.
//
// Invariants:
// - Memory rows and preference values are never empty.
// - Memories are append-only; preferences are last-write-wins upserts.
// - Conversation turns are append-only and replayed in chronological order.
// - Every write is a single self-contained statement; there are no
//   multi-statement transactions spanning a conversation turn.
//
// Usage:
//
//	st, _ := store.Open(store.Config{Path: "/tmp/ensemble.db", Logger: logger})
//	defer st.Close()
//	_, _ = st.WriteMemory(ctx, store.Memory{Kind: store.KindFact, Content: "the sky is blue"})
//	hits, _ := st.SearchMemories(ctx, "sky", 10)
//	_ = hits
package store

// Package agent drives the multi-round exchange with a reasoning backend
// that turns one user message into a finished reply: persist the user turn,
// replay the session history, execute requested tool calls in order, and
// parse directives out of the final answer.
//
// Invariants:
// - The persisted session log is the sole source of truth replayed into
//   the backend; there is no separate context-window structure.
// - Tool failures become error-flagged results fed back to the backend;
//   they never abort a turn.
// - Backend and store failures propagate to the caller without retries.
//
// Usage:
//
//	a, _ := agent.New(agent.Config{Role: "dev", ...})
//	result, _ := a.RunTurn(ctx, a.SessionID(), "hello")
//	_ = result.VisibleText
package agent

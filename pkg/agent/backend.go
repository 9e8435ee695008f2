package agent

import (
	"context"

	"github.com/karim/ensemble/pkg/toolkit"
)

// Backend is a reasoning-backend adapter. The runtime treats the vendor
// tool-use wire format as opaque; adapters translate to and from it.
type Backend interface {
	// Name identifies the backend vendor.
	Name() string
	// Complete sends one request and returns either requested tool calls
	// or a final answer.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is one round's input to the reasoning backend.
type Request struct {
	Model       string                `json:"model"`
	System      string                `json:"system,omitempty"`
	Messages    []Message             `json:"messages"`
	Tools       []toolkit.Declaration `json:"tools,omitempty"`
	Temperature float64               `json:"temperature,omitempty"`
	MaxTokens   int                   `json:"max_tokens,omitempty"`
}

// Message is one entry of the working message list. Role is one of
// "user", "assistant", or "tool" (a tool result echoed back by call ID).
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
}

// ToolCall is one tool invocation requested by the backend.
type ToolCall struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

// Response is one round's output. A non-empty ToolCalls slice signals
// that tool execution is needed; otherwise Text is the final answer
// (the first text block of the response, empty string as the floor).
type Response struct {
	Text      string      `json:"text"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
	Usage     *TokenUsage `json:"usage,omitempty"`
}

// TokenUsage tracks token consumption across a turn.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates usage from one round.
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

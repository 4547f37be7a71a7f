// Package llm provides completion backends for the writing agent.
// All backends speak a common chat interface with optional tool calling.
package llm

import (
	"context"
	"errors"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single entry in a conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// Set on assistant messages that requested tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Set on tool result messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// ToolDefinition describes a tool the model may invoke.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"` // JSON Schema for parameters
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// Usage captures token accounting from the backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a single model turn. Text may be empty when the model
// only requested tool calls.
type Response struct {
	Text       string     `json:"text"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason"`
	Usage      Usage      `json:"usage"`
}

// Client is the completion backend used by the agent loop.
type Client interface {
	// Chat sends a full conversation plus tool definitions and returns
	// the model's next turn.
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error)

	// Complete is a plain one-shot completion without tools.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithSystem is Complete with a system message.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Model returns the configured model identifier.
	Model() string
}

// ErrAuth indicates the backend rejected the credentials. Callers
// should not retry on it.
var ErrAuth = errors.New("authentication failed")

// ErrNoCompletion indicates the backend returned no usable choices.
var ErrNoCompletion = errors.New("no completion returned")

const (
	defaultTimeout     = 120 * time.Second
	defaultMaxRetries  = 3
	defaultBackoffBase = time.Second
	minRequestInterval = 100 * time.Millisecond
)

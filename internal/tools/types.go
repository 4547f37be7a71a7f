// Package tools provides the closed tool surface exposed to the model.
//
// Each tool is a named contract with a JSON-schema argument shape. The
// agent loop dispatches model tool requests through the Registry, which
// validates arguments before execution so malformed calls surface as
// recoverable in-conversation errors rather than panics.
package tools

import (
	"context"
)

// ToolCategory classifies tools for listing and help output.
type ToolCategory string

const (
	// CategoryCanon covers canonical document operations.
	CategoryCanon ToolCategory = "canon"

	// CategoryDrafts covers chapter draft operations.
	CategoryDrafts ToolCategory = "drafts"

	// CategoryMemory covers memory log operations.
	CategoryMemory ToolCategory = "memory"

	// CategoryGeneral is for tools outside the other groups.
	CategoryGeneral ToolCategory = "general"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// JSONSchema renders the schema as a generic JSON Schema object for
// transmission to completion backends.
func (s ToolSchema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[name] = prop
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(s.Required) > 0 {
		schema["required"] = s.Required
	}
	return schema
}

// ExecuteFunc is the signature for tool execution.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool defines a single named operation the model may invoke.
type Tool struct {
	// Name is the unique identifier the model calls the tool by.
	Name string

	// Description explains what the tool does. Sent to the model.
	Description string

	// Category classifies the tool for listing.
	Category ToolCategory

	// Execute runs the tool with validated arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// ToolResult wraps the result of tool execution with metadata.
type ToolResult struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Result is the tool output on success.
	Result string

	// Error is non-nil when validation or execution failed.
	Error error

	// DurationMs records wall time of the execution.
	DurationMs int64
}

package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func echoTool() *Tool {
	return &Tool{
		Name:        "echo",
		Description: "Echo back the message.",
		Category:    CategoryGeneral,
		Schema: ToolSchema{
			Required: []string{"message"},
			Properties: map[string]Property{
				"message": {Type: "string", Description: "text to echo"},
				"count":   {Type: "integer", Description: "repeat count"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return args["message"].(string), nil
		},
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool()); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := r.Register(echoTool()); !errors.Is(err, ErrToolAlreadyRegistered) {
		t.Fatalf("expected ErrToolAlreadyRegistered, got %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 tool, got %d", r.Count())
	}
}

func TestRegisterInvalid(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Tool{Name: "broken"}); !errors.Is(err, ErrToolExecuteNil) {
		t.Errorf("expected ErrToolExecuteNil, got %v", err)
	}
	if err := r.Register(&Tool{Execute: func(ctx context.Context, args map[string]any) (string, error) { return "", nil }}); !errors.Is(err, ErrToolNameEmpty) {
		t.Errorf("expected ErrToolNameEmpty, got %v", err)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "nope", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestExecuteMissingRequiredArg(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool())

	result, err := r.Execute(context.Background(), "echo", map[string]any{})
	if !errors.Is(err, ErrMissingRequiredArg) {
		t.Fatalf("expected ErrMissingRequiredArg, got %v", err)
	}
	if result == nil || result.Error == nil {
		t.Error("result should carry the validation error")
	}
}

func TestExecuteInvalidArgType(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool())

	cases := []struct {
		name string
		args map[string]any
		ok   bool
	}{
		{"string for string", map[string]any{"message": "hi"}, true},
		{"number for string", map[string]any{"message": 42}, false},
		{"float for integer", map[string]any{"message": "hi", "count": 2.0}, true},
		{"fraction for integer", map[string]any{"message": "hi", "count": 2.5}, false},
		{"bool for integer", map[string]any{"message": "hi", "count": true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Execute(context.Background(), "echo", tc.args)
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidArgType) {
				t.Errorf("expected ErrInvalidArgType, got %v", err)
			}
		})
	}
}

func TestExecuteWrapsToolFailure(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&Tool{
		Name:   "fail",
		Schema: ToolSchema{Properties: map[string]Property{}},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("disk full")
		},
	})

	_, err := r.Execute(context.Background(), "fail", nil)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if execErr.ToolName != "fail" {
		t.Errorf("unexpected tool name: %s", execErr.ToolName)
	}
}

func TestJSONSchema(t *testing.T) {
	schema := echoTool().Schema.JSONSchema()
	if schema["type"] != "object" {
		t.Errorf("expected object type, got %v", schema["type"])
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties missing: %v", schema)
	}
	msg, ok := props["message"].(map[string]any)
	if !ok || msg["type"] != "string" {
		t.Errorf("message property not rendered: %v", props)
	}
	req, ok := schema["required"].([]string)
	if !ok || len(req) != 1 || req[0] != "message" {
		t.Errorf("required not rendered: %v", schema["required"])
	}
}

func TestNamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		n := name
		r.MustRegister(&Tool{
			Name:    n,
			Schema:  ToolSchema{Properties: map[string]Property{}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) { return n, nil },
		})
	}
	if diff := cmp.Diff([]string{"alpha", "mid", "zeta"}, r.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

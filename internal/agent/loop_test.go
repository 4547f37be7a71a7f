package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storynerd/internal/config"
	storyctx "storynerd/internal/context"
	"storynerd/internal/llm"
	"storynerd/internal/memory"
	"storynerd/internal/skills"
	"storynerd/internal/tools"
	"storynerd/internal/workspace"
)

// stubClient returns scripted responses and records every request.
type stubClient struct {
	responses []*llm.Response
	err       error
	requests  [][]llm.Message
}

func (s *stubClient) Chat(ctx context.Context, messages []llm.Message, defs []llm.ToolDefinition) (*llm.Response, error) {
	copied := make([]llm.Message, len(messages))
	copy(copied, messages)
	s.requests = append(s.requests, copied)
	if s.err != nil {
		return nil, s.err
	}
	i := len(s.requests) - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func (s *stubClient) Complete(ctx context.Context, prompt string) (string, error) {
	return "stub", nil
}

func (s *stubClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "stub", nil
}

func (s *stubClient) Model() string { return "stub-model" }

func textResponse(text string) *llm.Response {
	return &llm.Response{Text: text, StopReason: "stop"}
}

func toolResponse(calls ...llm.ToolCall) *llm.Response {
	return &llm.Response{ToolCalls: calls, StopReason: "tool_calls"}
}

func newTestLoop(t *testing.T, client llm.Client) (*Loop, *workspace.Workspace, *memory.Manager) {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	if err := ws.Scaffold(); err != nil {
		t.Fatalf("scaffold: %v", err)
	}
	cfg := config.DefaultConfig()
	mem := memory.NewManager(ws, cfg.Memory, nil)
	registry := tools.NewNovelRegistry(ws, mem)
	assembler := storyctx.NewAssembler(ws, mem, cfg.Context, storyctx.RuneEstimator{})
	selector := skills.NewSelector(skills.NewLoader(ws))
	return NewLoop(ws, mem, registry, client, assembler, selector, cfg), ws, mem
}

func TestRoundLimitTerminatesLoop(t *testing.T) {
	client := &stubClient{responses: []*llm.Response{
		toolResponse(llm.ToolCall{ID: "c", Name: "list_documents", Input: map[string]any{}}),
	}}
	loop, _, _ := newTestLoop(t, client)

	result, err := loop.RunTurn(context.Background(), "write something")
	if err == nil {
		t.Fatal("expected round limit error")
	}
	if result.State != StateFailed || result.FailReason != ReasonRoundLimit {
		t.Errorf("expected FAILED/round_limit, got %s/%s", result.State, result.FailReason)
	}
	if result.Rounds != config.DefaultConfig().Agent.MaxToolRounds {
		t.Errorf("expected exactly %d rounds, got %d", config.DefaultConfig().Agent.MaxToolRounds, result.Rounds)
	}
}

func TestToolsExecuteInRequestOrder(t *testing.T) {
	client := &stubClient{responses: []*llm.Response{
		toolResponse(
			llm.ToolCall{ID: "c1", Name: "write_document", Input: map[string]any{"name": "WORLD.md", "content": "A"}},
			llm.ToolCall{ID: "c2", Name: "read_document", Input: map[string]any{"name": "WORLD.md"}},
		),
		textResponse("done"),
	}}
	loop, _, _ := newTestLoop(t, client)

	result, err := loop.RunTurn(context.Background(), "update the world doc")
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if result.State != StateDone {
		t.Fatalf("expected DONE, got %s", result.State)
	}

	// Second request carries both tool results; the read must see the
	// write that preceded it in the same round.
	if len(client.requests) != 2 {
		t.Fatalf("expected 2 model rounds, got %d", len(client.requests))
	}
	second := client.requests[1]
	var readResult string
	for _, m := range second {
		if m.Role == llm.RoleTool && m.ToolCallID == "c2" {
			readResult = m.Content
		}
	}
	if readResult != "A" {
		t.Errorf("read after write returned %q", readResult)
	}
}

func TestDoneFinalizesDraftedChapters(t *testing.T) {
	client := &stubClient{responses: []*llm.Response{
		toolResponse(llm.ToolCall{ID: "c1", Name: "save_draft", Input: map[string]any{
			"chapter_index": float64(1), "content": "The first chapter, at length.",
		}}),
		textResponse("chapter one drafted"),
	}}
	loop, _, mem := newTestLoop(t, client)

	result, err := loop.RunTurn(context.Background(), "write chapter 1")
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if result.State != StateDone {
		t.Fatalf("expected DONE, got %s", result.State)
	}
	if len(result.FinalizedChapters) != 1 || result.FinalizedChapters[0] != 1 {
		t.Errorf("expected chapter 1 finalized, got %v", result.FinalizedChapters)
	}
	if !mem.HasChapterRecord(1) {
		t.Error("chapter record missing")
	}
	summaries, err := mem.LoadRecentChapterSummaries(1)
	if err != nil {
		t.Fatalf("load summaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Chapter != 1 {
		t.Errorf("expected one summary for chapter 1, got %+v", summaries)
	}
}

func TestFinalizeOrdersChaptersByIndex(t *testing.T) {
	client := &stubClient{responses: []*llm.Response{
		toolResponse(
			llm.ToolCall{ID: "c1", Name: "save_draft", Input: map[string]any{
				"chapter_index": float64(3), "content": "The third chapter, saved first.",
			}},
			llm.ToolCall{ID: "c2", Name: "save_draft", Input: map[string]any{
				"chapter_index": float64(1), "content": "The first chapter, saved second.",
			}},
		),
		textResponse("both drafted"),
	}}
	loop, _, mem := newTestLoop(t, client)

	result, err := loop.RunTurn(context.Background(), "write chapters 1 and 3")
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	want := []int{1, 3}
	if len(result.FinalizedChapters) != len(want) {
		t.Fatalf("expected %v finalized, got %v", want, result.FinalizedChapters)
	}
	for i, idx := range want {
		if result.FinalizedChapters[i] != idx {
			t.Fatalf("expected %v finalized, got %v", want, result.FinalizedChapters)
		}
	}
	for _, idx := range want {
		if !mem.HasChapterRecord(idx) {
			t.Errorf("chapter %d record missing", idx)
		}
	}
}

func TestFinalizeSkipsExistingRecords(t *testing.T) {
	client := &stubClient{responses: []*llm.Response{
		toolResponse(llm.ToolCall{ID: "c1", Name: "save_draft", Input: map[string]any{
			"chapter_index": float64(2), "content": "Revised chapter two.",
		}}),
		textResponse("revised"),
	}}
	loop, _, mem := newTestLoop(t, client)

	if _, err := mem.FinalizeChapter(context.Background(), 2, "Original chapter two.", false); err != nil {
		t.Fatalf("pre-finalize: %v", err)
	}

	result, err := loop.RunTurn(context.Background(), "revise chapter 2")
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if len(result.FinalizedChapters) != 0 {
		t.Errorf("existing record should not be re-finalized, got %v", result.FinalizedChapters)
	}
	summaries, _ := mem.LoadRecentChapterSummaries(1)
	if len(summaries) != 1 || !strings.Contains(summaries[0].Text, "Original") {
		t.Errorf("existing record was overwritten: %+v", summaries)
	}
}

func TestBackendAuthFailure(t *testing.T) {
	client := &stubClient{err: llm.ErrAuth}
	loop, _, _ := newTestLoop(t, client)

	result, err := loop.RunTurn(context.Background(), "hello")
	if !errors.Is(err, llm.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if result.State != StateFailed || result.FailReason != ReasonBackend {
		t.Errorf("expected FAILED/backend, got %s/%s", result.State, result.FailReason)
	}
}

func TestCancellationBetweenRounds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &stubClient{responses: []*llm.Response{textResponse("never reached")}}
	loop, _, _ := newTestLoop(t, client)

	result, err := loop.RunTurn(ctx, "hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.State != StateFailed || result.FailReason != ReasonCancelled {
		t.Errorf("expected FAILED/cancelled, got %s/%s", result.State, result.FailReason)
	}
	if len(client.requests) != 0 {
		t.Errorf("no model call should happen after cancellation, got %d", len(client.requests))
	}
}

func TestInvalidToolArgsReportedInConversation(t *testing.T) {
	client := &stubClient{responses: []*llm.Response{
		toolResponse(llm.ToolCall{ID: "c1", Name: "save_draft", Input: map[string]any{
			"chapter_index": float64(1),
		}}),
		textResponse("retrying properly now"),
	}}
	loop, _, _ := newTestLoop(t, client)

	result, err := loop.RunTurn(context.Background(), "write chapter 1")
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if result.State != StateDone {
		t.Fatalf("tool arg errors must not fail the turn, got %s", result.State)
	}

	second := client.requests[1]
	last := second[len(second)-1]
	if last.Role != llm.RoleTool || !strings.HasPrefix(last.Content, "ERROR:") {
		t.Errorf("validation error not reported into conversation: %+v", last)
	}
	if !strings.Contains(last.Content, "content") {
		t.Errorf("error should name the missing argument: %q", last.Content)
	}
}

func TestNextTurnContextSeesToolWrites(t *testing.T) {
	client := &stubClient{responses: []*llm.Response{
		toolResponse(llm.ToolCall{ID: "c1", Name: "write_document", Input: map[string]any{
			"name": "WORLD.md", "content": "A drowned city beneath two tidally locked moons.",
		}}),
		textResponse("world established"),
	}}
	loop, ws, mem := newTestLoop(t, client)

	if _, err := loop.RunTurn(context.Background(), "create a one-paragraph world setting"); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	assembler := storyctx.NewAssembler(ws, mem, config.DefaultConfig().Context, storyctx.RuneEstimator{})
	prompt, err := assembler.Build(storyctx.BuildInput{UserMessage: "write chapter 1"})
	if err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	if !strings.Contains(prompt.System, "A drowned city beneath two tidally locked moons.") {
		t.Error("next turn's context does not contain the written world content")
	}
}

func TestSessionTranscriptSaved(t *testing.T) {
	client := &stubClient{responses: []*llm.Response{textResponse("hello back")}}
	loop, ws, _ := newTestLoop(t, client)

	if _, err := loop.RunTurn(context.Background(), "hello"); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(ws.Root(), workspace.SessionsDir))
	if err != nil {
		t.Fatalf("read sessions dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 transcript, got %d", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "session_") || !strings.HasSuffix(name, ".json") {
		t.Errorf("unexpected transcript name: %s", name)
	}
}

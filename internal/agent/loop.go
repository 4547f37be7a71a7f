// Package agent drives the tool-calling conversation loop for one user
// turn. The loop is a small state machine: the model either answers in
// text (DONE) or requests tool calls, which run sequentially in request
// order before the next model round. Rounds are hard-capped so a model
// that keeps requesting tools can never spin forever.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"storynerd/internal/config"
	storyctx "storynerd/internal/context"
	"storynerd/internal/llm"
	"storynerd/internal/logging"
	"storynerd/internal/memory"
	"storynerd/internal/skills"
	"storynerd/internal/tools"
	"storynerd/internal/workspace"
)

// State is the loop's position in the turn state machine.
type State string

const (
	StateAwaitingModel  State = "AWAITING_MODEL"
	StateExecutingTools State = "EXECUTING_TOOLS"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

// FailReason classifies a FAILED terminal state.
type FailReason string

const (
	ReasonNone       FailReason = ""
	ReasonRoundLimit FailReason = "round_limit"
	ReasonBackend    FailReason = "backend"
	ReasonCancelled  FailReason = "cancelled"
)

// TurnResult is the terminal outcome of one RunTurn call.
type TurnResult struct {
	State      State
	FailReason FailReason

	// Text is the model's final answer when State is StateDone.
	Text string

	Rounds    int
	ToolCalls int

	// FinalizedChapters lists chapter indexes finalized after this turn.
	FinalizedChapters []int

	// Compacted reports whether the memory log was compacted post-turn.
	Compacted bool

	Usage llm.Usage
}

// Loop owns the per-session wiring: one workspace handle, one memory
// manager, one tool registry, one completion backend.
type Loop struct {
	ws        *workspace.Workspace
	mem       *memory.Manager
	registry  *tools.Registry
	client    llm.Client
	assembler *storyctx.Assembler
	selector  *skills.Selector
	cfg       *config.Config
	sessions  *SessionStore
}

// NewLoop wires a loop over an initialized workspace.
func NewLoop(ws *workspace.Workspace, mem *memory.Manager, registry *tools.Registry, client llm.Client, assembler *storyctx.Assembler, selector *skills.Selector, cfg *config.Config) *Loop {
	return &Loop{
		ws:        ws,
		mem:       mem,
		registry:  registry,
		client:    client,
		assembler: assembler,
		selector:  selector,
		cfg:       cfg,
		sessions:  NewSessionStore(ws),
	}
}

// RunTurn executes one full user turn. The returned result is always
// non-nil and terminal (DONE or FAILED); the error carries the failure
// cause when the state is FAILED for a loop-level reason.
func (l *Loop) RunTurn(ctx context.Context, userInput string) (*TurnResult, error) {
	start := time.Now()
	result := &TurnResult{State: StateFailed}
	transcript := newTranscript(userInput)
	defer func() {
		transcript.finish(result)
		if err := l.sessions.Save(transcript); err != nil {
			logging.SessionError("failed to save session transcript: %v", err)
		}
	}()

	skillText := ""
	if l.selector != nil {
		text, err := l.selector.SelectAndLoad(userInput)
		if err != nil {
			logging.SkillsDebug("skill selection failed, continuing without skills: %v", err)
		} else {
			skillText = text
		}
	}

	prompt, err := l.assembler.Build(storyctx.BuildInput{
		UserMessage: userInput,
		SkillText:   skillText,
	})
	if err != nil {
		result.FailReason = ReasonBackend
		return result, fmt.Errorf("context assembly failed: %w", err)
	}
	if prompt.OverBudget {
		logging.ContextWarn("context over budget, optional sections dropped")
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: prompt.System},
		{Role: llm.RoleUser, Content: prompt.UserMessage},
	}
	defs := toolDefinitions(l.registry)
	draftsSeen := make(map[int]bool)

	maxRounds := l.cfg.Agent.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = config.DefaultConfig().Agent.MaxToolRounds
	}

	for round := 1; round <= maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			result.FailReason = ReasonCancelled
			result.Rounds = round - 1
			logging.Agent("turn cancelled after %d rounds", result.Rounds)
			return result, err
		}

		result.Rounds = round
		logging.AgentDebug("round %d/%d: awaiting model", round, maxRounds)

		resp, err := l.client.Chat(ctx, messages, defs)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				result.FailReason = ReasonCancelled
			} else {
				result.FailReason = ReasonBackend
			}
			logging.AgentError("backend failed on round %d: %v", round, err)
			return result, err
		}
		result.Usage.PromptTokens += resp.Usage.PromptTokens
		result.Usage.CompletionTokens += resp.Usage.CompletionTokens
		result.Usage.TotalTokens += resp.Usage.TotalTokens

		assistant := llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		}
		messages = append(messages, assistant)
		transcript.append(assistant)

		if len(resp.ToolCalls) == 0 {
			result.State = StateDone
			result.FailReason = ReasonNone
			result.Text = resp.Text
			l.finishTurn(ctx, result, draftsSeen)
			logging.Agent("turn done in %v: rounds=%d tool_calls=%d", time.Since(start), result.Rounds, result.ToolCalls)
			return result, nil
		}

		logging.AgentDebug("round %d: executing %d tool calls", round, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			result.ToolCalls++
			content := l.executeCall(ctx, call, draftsSeen)
			toolMsg := llm.Message{
				Role:       llm.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
				Name:       call.Name,
			}
			messages = append(messages, toolMsg)
			transcript.append(toolMsg)
		}
	}

	result.FailReason = ReasonRoundLimit
	logging.AgentWarn("turn failed: round limit %d exhausted", maxRounds)
	return result, fmt.Errorf("tool round limit of %d exceeded", maxRounds)
}

// executeCall dispatches one tool call and renders its outcome as the
// tool result message content. Validation and execution failures are
// reported back into the conversation so the model can self-correct;
// they never terminate the turn.
func (l *Loop) executeCall(ctx context.Context, call llm.ToolCall, draftsSeen map[int]bool) string {
	res, err := l.registry.Execute(ctx, call.Name, call.Input)
	if err != nil {
		logging.Tools("tool %s failed: %v", call.Name, err)
		return fmt.Sprintf("ERROR: %v", err)
	}
	if call.Name == "save_draft" {
		if idx := chapterIndexArg(call.Input); idx > 0 {
			draftsSeen[idx] = true
		}
	}
	return res.Result
}

// finishTurn runs the post-turn memory hooks on a DONE turn: finalize
// any chapter drafted this turn that has no record yet, then give the
// memory log a chance to compact.
func (l *Loop) finishTurn(ctx context.Context, result *TurnResult, draftsSeen map[int]bool) {
	indexes := make([]int, 0, len(draftsSeen))
	for idx := range draftsSeen {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	for _, idx := range indexes {
		if l.mem.HasChapterRecord(idx) {
			continue
		}
		draft, err := l.ws.ReadDraft(idx)
		if err != nil {
			logging.MemoryError("cannot read draft %d for finalization: %v", idx, err)
			continue
		}
		if _, err := l.mem.FinalizeChapter(ctx, idx, draft, false); err != nil {
			var writeErr *memory.WriteError
			if errors.As(err, &writeErr) {
				// Raced with another finalization; the record exists.
				continue
			}
			logging.MemoryError("finalization of chapter %d failed: %v", idx, err)
			continue
		}
		result.FinalizedChapters = append(result.FinalizedChapters, idx)
		logging.Memory("finalized chapter %d", idx)
	}

	compacted, err := l.mem.CompactIfNeeded(ctx)
	if err != nil {
		logging.MemoryError("compaction failed: %v", err)
		return
	}
	result.Compacted = compacted
}

// toolDefinitions renders the registry as backend tool schemas.
func toolDefinitions(r *tools.Registry) []llm.ToolDefinition {
	all := r.All()
	defs := make([]llm.ToolDefinition, len(all))
	for i, t := range all {
		defs[i] = llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Schema.JSONSchema(),
		}
	}
	return defs
}

func chapterIndexArg(args map[string]any) int {
	switch v := args["chapter_index"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

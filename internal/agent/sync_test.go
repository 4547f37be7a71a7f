package agent

import (
	"context"
	"strings"
	"testing"

	"storynerd/internal/llm"
)

func TestAnalyzeCleanWorkspace(t *testing.T) {
	client := &stubClient{responses: []*llm.Response{textResponse("ok")}}
	loop, ws, mem := newTestLoop(t, client)
	runner := NewSyncRunner(ws, mem, loop)

	report, err := runner.Analyze()
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	// A fresh scaffold has only placeholder docs, no drafts, no events.
	if len(report.PlaceholderDocs) == 0 {
		t.Error("fresh workspace should report placeholder docs")
	}
	if len(report.UnfinalizedDrafts) != 0 || report.OrphanEventEntries != 0 || report.StaleSummary {
		t.Errorf("unexpected findings: %+v", report)
	}
}

func TestAnalyzeFindsUnfinalizedDraftsAndOrphans(t *testing.T) {
	client := &stubClient{responses: []*llm.Response{textResponse("ok")}}
	loop, ws, mem := newTestLoop(t, client)
	runner := NewSyncRunner(ws, mem, loop)

	if err := ws.SaveDraft(1, "a finished chapter draft"); err != nil {
		t.Fatalf("save draft: %v", err)
	}
	if err := mem.RecordEvent(5, "an event from a chapter with no draft", false); err != nil {
		t.Fatalf("record: %v", err)
	}

	report, err := runner.Analyze()
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(report.UnfinalizedDrafts) != 1 || report.UnfinalizedDrafts[0] != 1 {
		t.Errorf("expected draft 1 unfinalized, got %v", report.UnfinalizedDrafts)
	}
	if report.OrphanEventEntries != 1 {
		t.Errorf("expected 1 orphan event, got %d", report.OrphanEventEntries)
	}
	if !report.StaleSummary {
		t.Error("placeholder summary with drafts present should be stale")
	}
}

func TestRunRepairTurnPromptNamesFindings(t *testing.T) {
	client := &stubClient{responses: []*llm.Response{textResponse("repaired")}}
	loop, ws, mem := newTestLoop(t, client)
	runner := NewSyncRunner(ws, mem, loop)

	if err := ws.SaveDraft(2, "draft without a record"); err != nil {
		t.Fatalf("save draft: %v", err)
	}

	report, result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Clean() {
		t.Fatal("expected findings")
	}
	if result == nil || result.State != StateDone {
		t.Fatalf("expected repair turn to finish, got %+v", result)
	}

	if len(client.requests) == 0 {
		t.Fatal("no model request captured")
	}
	user := client.requests[0][1].Content
	if !strings.Contains(user, "Chapter 2 has a saved draft but no chapter memory record") {
		t.Errorf("repair prompt missing draft finding: %q", user)
	}
	if !strings.Contains(user, "STORY_SUMMARY.md") {
		t.Errorf("repair prompt missing stale summary finding: %q", user)
	}
}

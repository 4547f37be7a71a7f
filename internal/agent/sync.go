package agent

import (
	"context"
	"fmt"
	"strings"

	"storynerd/internal/logging"
	"storynerd/internal/memory"
	"storynerd/internal/workspace"
)

// SyncRunner inspects the workspace for gaps between the documents,
// drafts and memory records, and runs one bounded repair turn when it
// finds any.
type SyncRunner struct {
	ws   *workspace.Workspace
	mem  *memory.Manager
	loop *Loop
}

// NewSyncRunner wires a sync pass over an existing loop.
func NewSyncRunner(ws *workspace.Workspace, mem *memory.Manager, loop *Loop) *SyncRunner {
	return &SyncRunner{ws: ws, mem: mem, loop: loop}
}

// SyncReport lists the inconsistencies found by Analyze.
type SyncReport struct {
	PlaceholderDocs    []string
	UnfinalizedDrafts  []int
	OrphanEventEntries int
	StaleSummary       bool
}

// Clean reports whether the workspace needs no repair.
func (r *SyncReport) Clean() bool {
	return len(r.PlaceholderDocs) == 0 &&
		len(r.UnfinalizedDrafts) == 0 &&
		r.OrphanEventEntries == 0 &&
		!r.StaleSummary
}

// Analyze scans the workspace without modifying it.
func (s *SyncRunner) Analyze() (*SyncReport, error) {
	report := &SyncReport{}

	for _, name := range workspace.CanonicalDocs {
		if s.ws.IsPlaceholder(name) {
			report.PlaceholderDocs = append(report.PlaceholderDocs, name)
		}
	}

	drafts, err := s.ws.ListDrafts()
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	latest := 0
	for _, idx := range drafts {
		if idx > latest {
			latest = idx
		}
		if !s.mem.HasChapterRecord(idx) {
			report.UnfinalizedDrafts = append(report.UnfinalizedDrafts, idx)
		}
	}

	entries, err := s.mem.LoadEntries()
	if err != nil {
		return nil, fmt.Errorf("failed to load memory entries: %w", err)
	}
	for _, e := range entries {
		last := e.Chapter
		if e.ChapterEnd > last {
			last = e.ChapterEnd
		}
		if last > latest {
			report.OrphanEventEntries++
		}
	}

	// A summary that predates existing drafts is stale.
	if latest > 0 && s.ws.IsPlaceholder(workspace.DocSummary) {
		report.StaleSummary = true
	}

	return report, nil
}

// Run analyzes the workspace and, when inconsistencies exist, drives
// one agent turn instructing the model to repair them. Returns the
// report and the turn result (nil when nothing needed repair).
func (s *SyncRunner) Run(ctx context.Context) (*SyncReport, *TurnResult, error) {
	report, err := s.Analyze()
	if err != nil {
		return nil, nil, err
	}
	if report.Clean() {
		logging.Agent("sync: workspace consistent, nothing to repair")
		return report, nil, nil
	}

	prompt := renderSyncPrompt(report)
	logging.Agent("sync: running repair turn (%d placeholder docs, %d unfinalized drafts, %d orphan events, stale_summary=%v)",
		len(report.PlaceholderDocs), len(report.UnfinalizedDrafts), report.OrphanEventEntries, report.StaleSummary)

	result, err := s.loop.RunTurn(ctx, prompt)
	return report, result, err
}

func renderSyncPrompt(report *SyncReport) string {
	var b strings.Builder
	b.WriteString("Perform workspace maintenance. The following inconsistencies were detected:\n")
	if len(report.PlaceholderDocs) > 0 {
		fmt.Fprintf(&b, "- These documents still have placeholder content: %s. Leave them alone unless the story so far implies content for them.\n",
			strings.Join(report.PlaceholderDocs, ", "))
	}
	for _, idx := range report.UnfinalizedDrafts {
		fmt.Fprintf(&b, "- Chapter %d has a saved draft but no chapter memory record. Read the draft and record its key events with record_memory_event.\n", idx)
	}
	if report.OrphanEventEntries > 0 {
		fmt.Fprintf(&b, "- %d memory events reference chapters with no saved draft. Verify them against the outline.\n", report.OrphanEventEntries)
	}
	if report.StaleSummary {
		b.WriteString("- STORY_SUMMARY.md does not reflect the drafted chapters. Rewrite it from the drafts.\n")
	}
	b.WriteString("Use the available tools to bring the workspace back into a consistent state, then report what you changed.")
	return b.String()
}

package memory

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"storynerd/internal/config"
	"storynerd/internal/logging"
	"storynerd/internal/workspace"
)

// Summarizer produces a bounded-length summary of chapter text. The agent
// wires the completion backend in here; tests use a stub.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxChars int) (string, error)
}

// WriteError reports a refused memory write, e.g. finalizing a chapter
// that already has a record without requesting overwrite. Not retryable:
// retrying re-triggers the same conflict.
type WriteError struct {
	Chapter int
	Reason  string
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("memory write refused for chapter %d: %s", e.Chapter, e.Reason)
}

// ChapterSummary is one chapter memory record.
type ChapterSummary struct {
	Chapter int
	Text    string
}

// Manager owns the two memory tiers on top of the workspace document
// store. It never caches file content between calls.
type Manager struct {
	ws         *workspace.Workspace
	cfg        config.MemoryConfig
	summarizer Summarizer
}

// NewManager creates a memory manager for a workspace.
func NewManager(ws *workspace.Workspace, cfg config.MemoryConfig, summarizer Summarizer) *Manager {
	return &Manager{ws: ws, cfg: cfg, summarizer: summarizer}
}

// RecordEvent appends a global memory entry tagged with the chapter index.
// Duplicate content is tolerated; minimizing duplicates is the caller's
// concern, not this layer's.
func (m *Manager) RecordEvent(chapter int, note string, pivotal bool) error {
	if chapter < 0 {
		return fmt.Errorf("chapter index must be >= 0, got %d", chapter)
	}
	if strings.TrimSpace(note) == "" {
		return fmt.Errorf("empty memory note")
	}

	entry := Entry{
		ID:      NewEntryID(),
		Chapter: chapter,
		Pivotal: pivotal,
		Text:    note,
	}
	if err := m.ws.AppendPath(workspace.GlobalMemoryFile, entry.Format()); err != nil {
		return fmt.Errorf("failed to record memory event: %w", err)
	}
	logging.MemoryDebug("Recorded event ch=%d pivotal=%v len=%d", chapter, pivotal, len(note))
	return nil
}

// LoadEntries parses the global memory log. Lines that are not
// well-formed entries are skipped, so a hand-edited file degrades
// gracefully instead of failing the turn.
func (m *Manager) LoadEntries() ([]Entry, error) {
	content, err := m.ws.ReadPath(workspace.GlobalMemoryFile)
	if err != nil {
		if m.ws.Exists(workspace.GlobalMemoryFile) {
			return nil, err
		}
		return nil, nil
	}

	var entries []Entry
	for _, line := range strings.Split(content, "\n") {
		if e, ok := ParseEntry(line); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// LoadGlobalDigest returns the most recent global memory entries rendered
// newest-last, truncated from the oldest end when the digest would exceed
// maxSize. Truncation never splits a single entry.
func (m *Manager) LoadGlobalDigest(maxSize int) (string, error) {
	entries, err := m.LoadEntries()
	if err != nil {
		return "", err
	}
	if len(entries) == 0 || maxSize <= 0 {
		return "", nil
	}

	// Walk backwards from the newest entry, keeping whole lines that fit.
	total := 0
	start := len(entries)
	for i := len(entries) - 1; i >= 0; i-- {
		lineLen := len([]rune(entries[i].Format())) + 1 // newline
		if total+lineLen > maxSize {
			break
		}
		total += lineLen
		start = i
	}
	if start == len(entries) {
		logging.ContextWarn("Global digest budget %d too small for newest entry", maxSize)
		return "", nil
	}

	lines := make([]string, 0, len(entries)-start)
	for _, e := range entries[start:] {
		lines = append(lines, e.Format())
	}
	if start > 0 {
		logging.MemoryDebug("Digest truncated %d oldest entries", start)
	}
	return strings.Join(lines, "\n"), nil
}

// chapterRecordPath returns the record path for a chapter index.
func chapterRecordPath(index int) string {
	return fmt.Sprintf("%s/chapter_%03d.md", workspace.ChapterMemoryDir, index)
}

var chapterRecordRe = regexp.MustCompile(`^chapter_(\d+)\.md$`)

// HasChapterRecord reports whether a chapter has been finalized.
func (m *Manager) HasChapterRecord(index int) bool {
	return m.ws.Exists(chapterRecordPath(index))
}

// FinalizeChapter summarizes a completed chapter draft and persists the
// summary as that chapter's memory record. Finalization is a one-time
// event per chapter: a second call without overwrite fails with a
// *WriteError and leaves the existing record untouched.
func (m *Manager) FinalizeChapter(ctx context.Context, index int, draft string, overwrite bool) (string, error) {
	if index < 1 {
		return "", fmt.Errorf("chapter index must be >= 1, got %d", index)
	}
	if m.HasChapterRecord(index) && !overwrite {
		return "", &WriteError{Chapter: index, Reason: "chapter already finalized"}
	}

	maxChars := m.cfg.SummaryMaxChars
	if maxChars <= 0 {
		maxChars = 2000
	}

	summary, err := m.summarize(ctx, draft, maxChars)
	if err != nil {
		return "", fmt.Errorf("failed to summarize chapter %d: %w", index, err)
	}

	if err := m.ws.WritePathAtomic(chapterRecordPath(index), summary); err != nil {
		return "", fmt.Errorf("failed to persist chapter %d record: %w", index, err)
	}
	logging.Memory("Finalized chapter %d (summary %d chars)", index, len(summary))
	return summary, nil
}

func (m *Manager) summarize(ctx context.Context, text string, maxChars int) (string, error) {
	if m.summarizer != nil {
		summary, err := m.summarizer.Summarize(ctx, text, maxChars)
		if err != nil {
			return "", err
		}
		return clipRunes(summary, maxChars), nil
	}
	// No backend available: keep the head of the draft as a crude record.
	return clipRunes(text, maxChars), nil
}

func clipRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// LoadRecentChapterSummaries returns records for the last n finalized
// chapters, in chapter order. Missing records are skipped, not errors.
func (m *Manager) LoadRecentChapterSummaries(n int) ([]ChapterSummary, error) {
	if n <= 0 {
		return nil, nil
	}

	names, err := m.ws.List(workspace.CategoryChapterMemory)
	if err != nil {
		return nil, err
	}

	var indexes []int
	for _, name := range names {
		mm := chapterRecordRe.FindStringSubmatch(name)
		if mm == nil {
			continue
		}
		if idx, err := strconv.Atoi(mm[1]); err == nil && idx >= 1 {
			indexes = append(indexes, idx)
		}
	}
	sort.Ints(indexes)
	if len(indexes) > n {
		indexes = indexes[len(indexes)-n:]
	}

	summaries := make([]ChapterSummary, 0, len(indexes))
	for _, idx := range indexes {
		text, err := m.ws.ReadPath(chapterRecordPath(idx))
		if err != nil {
			logging.MemoryDebug("Skipping unreadable chapter record %d: %v", idx, err)
			continue
		}
		summaries = append(summaries, ChapterSummary{Chapter: idx, Text: text})
	}
	return summaries, nil
}

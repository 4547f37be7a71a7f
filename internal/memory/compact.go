package memory

import (
	"context"
	"fmt"
	"strings"

	"storynerd/internal/logging"
	"storynerd/internal/workspace"
)

// Per-source clip inside a merged compaction entry. Keeps the merged line
// bounded even when many entries collapse into one.
const compactClipChars = 120

// CompactIfNeeded merges the oldest contiguous block of non-pivotal global
// memory entries into a single condensed entry when the log exceeds the
// configured size threshold. Pivotal entries are never compacted away:
// they survive verbatim, in order, ahead of the untouched newest entries.
// Returns true when a compaction pass rewrote the log.
//
// The merge is mechanical (clipped texts joined under the covered chapter
// range), so compaction is deterministic and repeatable without a backend
// call. A log over the size threshold but holding at most CompactKeep
// entries is left alone: keeping the newest entries intact wins over the
// size trigger. ctx is accepted for a future summarizing compactor.
func (m *Manager) CompactIfNeeded(ctx context.Context) (bool, error) {
	_ = ctx

	threshold := m.cfg.CompactThreshold
	if threshold <= 0 {
		return false, nil
	}

	content, err := m.ws.ReadPath(workspace.GlobalMemoryFile)
	if err != nil {
		if !m.ws.Exists(workspace.GlobalMemoryFile) {
			return false, nil
		}
		return false, err
	}
	if len(content) <= threshold {
		return false, nil
	}

	entries, err := m.LoadEntries()
	if err != nil {
		return false, err
	}

	keep := m.cfg.CompactKeep
	if keep <= 0 {
		keep = 20
	}
	if len(entries) <= keep {
		return false, nil
	}

	old := entries[:len(entries)-keep]
	recent := entries[len(entries)-keep:]

	var (
		pivotal []Entry
		merged  []Entry
	)
	for _, e := range old {
		if e.Pivotal {
			pivotal = append(pivotal, e)
		} else {
			merged = append(merged, e)
		}
	}
	if len(merged) < 2 {
		// Nothing worth merging; a single old entry stays as-is.
		return false, nil
	}

	lo, hi := merged[0].Chapter, merged[0].Chapter
	parts := make([]string, 0, len(merged))
	for _, e := range merged {
		if e.Chapter < lo {
			lo = e.Chapter
		}
		end := e.Chapter
		if e.ChapterEnd > end {
			end = e.ChapterEnd
		}
		if end > hi {
			hi = end
		}
		parts = append(parts, clipRunes(e.Text, compactClipChars))
	}

	condensed := Entry{
		ID:         NewEntryID(),
		Chapter:    lo,
		ChapterEnd: hi,
		Text:       fmt.Sprintf("condensed chapters %d-%d: %s", lo, hi, strings.Join(parts, "; ")),
	}

	rewritten := make([]Entry, 0, 1+len(pivotal)+len(recent))
	rewritten = append(rewritten, condensed)
	rewritten = append(rewritten, pivotal...)
	rewritten = append(rewritten, recent...)

	lines := make([]string, 0, len(rewritten))
	for _, e := range rewritten {
		lines = append(lines, e.Format())
	}
	if err := m.ws.WritePathAtomic(workspace.GlobalMemoryFile, strings.Join(lines, "\n")+"\n"); err != nil {
		return false, fmt.Errorf("failed to rewrite global memory: %w", err)
	}

	logging.Memory("Compacted %d entries into one (ch %d-%d), kept %d pivotal + %d recent",
		len(merged), lo, hi, len(pivotal), len(recent))
	return true, nil
}

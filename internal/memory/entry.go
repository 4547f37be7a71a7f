// Package memory implements the two memory tiers of a storyNERD project:
// an append-oriented global memory log spanning the whole work, and one
// summary record per finalized chapter. Both live as plain text under
// memory/ in the workspace; nothing is cached across turns, so the agent
// always observes its own prior writes.
package memory

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Entry is one global memory record. Entries are append-only; the ULID
// gives a stable, lexically time-ordered identity. A pivotal entry is
// exempt from compaction: losing it risks contradicting established canon.
type Entry struct {
	ID         string
	Chapter    int // chapter index that produced the entry
	ChapterEnd int // >Chapter for a compacted range entry, else 0
	Pivotal    bool
	Text       string
}

// One entry per line in memory/MEMORY.md:
//
//	- [01J5X...] [ch 3] [pivotal] Mira's brother is alive
//	- [01J5Y...] [ch 1-4] early chapters: the voyage begins; ...
var entryRe = regexp.MustCompile(`^- \[([0-9A-HJKMNP-TV-Z]{26})\] \[ch (\d+)(?:-(\d+))?\]( \[pivotal\])? (.+)$`)

// NewEntryID returns a fresh ULID for a memory entry.
func NewEntryID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.New(rand.NewSource(time.Now().UnixNano()))).String()
}

// Format renders the entry as its single log line.
func (e Entry) Format() string {
	var b strings.Builder
	b.WriteString("- [")
	b.WriteString(e.ID)
	b.WriteString("] [ch ")
	b.WriteString(strconv.Itoa(e.Chapter))
	if e.ChapterEnd > e.Chapter {
		b.WriteString("-")
		b.WriteString(strconv.Itoa(e.ChapterEnd))
	}
	b.WriteString("]")
	if e.Pivotal {
		b.WriteString(" [pivotal]")
	}
	b.WriteString(" ")
	// Entries are one line each; embedded newlines would corrupt the log.
	b.WriteString(strings.ReplaceAll(strings.TrimSpace(e.Text), "\n", " "))
	return b.String()
}

// ParseEntry parses one log line. Returns false for lines that are not
// well-formed entries (blank lines, headings, hand edits).
func ParseEntry(line string) (Entry, bool) {
	m := entryRe.FindStringSubmatch(line)
	if m == nil {
		return Entry{}, false
	}
	chapter, err := strconv.Atoi(m[2])
	if err != nil {
		return Entry{}, false
	}
	end := 0
	if m[3] != "" {
		if end, err = strconv.Atoi(m[3]); err != nil {
			return Entry{}, false
		}
	}
	return Entry{
		ID:         m[1],
		Chapter:    chapter,
		ChapterEnd: end,
		Pivotal:    m[4] != "",
		Text:       m[5],
	}, true
}

// ChapterRange renders the covered chapter range, e.g. "3" or "1-4".
func (e Entry) ChapterRange() string {
	if e.ChapterEnd > e.Chapter {
		return fmt.Sprintf("%d-%d", e.Chapter, e.ChapterEnd)
	}
	return strconv.Itoa(e.Chapter)
}

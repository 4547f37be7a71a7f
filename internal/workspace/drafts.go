package workspace

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// Draft chapters are index-ordered files under drafts/. Indexes are
// monotonically increasing integers starting at 1; drafts are overwritten
// only by explicit revision and never renumbered.

var draftNameRe = regexp.MustCompile(`^chapter_(\d+)\.md$`)

// DraftPath returns the workspace-relative path for a chapter index.
func DraftPath(index int) string {
	return fmt.Sprintf("%s/chapter_%03d.md", DraftsDir, index)
}

// SaveDraft atomically writes the draft for a chapter index.
func (w *Workspace) SaveDraft(index int, content string) error {
	if index < 1 {
		return fmt.Errorf("chapter index must be >= 1, got %d", index)
	}
	return w.WritePathAtomic(DraftPath(index), content)
}

// ReadDraft reads the draft for a chapter index.
func (w *Workspace) ReadDraft(index int) (string, error) {
	return w.ReadPath(DraftPath(index))
}

// HasDraft reports whether a draft exists for the index.
func (w *Workspace) HasDraft(index int) bool {
	return w.Exists(DraftPath(index))
}

// ListDrafts returns the chapter indexes with drafts, ascending.
func (w *Workspace) ListDrafts() ([]int, error) {
	names, err := w.listDir(DraftsDir)
	if err != nil {
		return nil, err
	}
	indexes := make([]int, 0, len(names))
	for _, name := range names {
		m := draftNameRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 {
			continue
		}
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	return indexes, nil
}

// LatestChapter returns the highest drafted chapter index, or 0.
func (w *Workspace) LatestChapter() (int, error) {
	indexes, err := w.ListDrafts()
	if err != nil {
		return 0, err
	}
	if len(indexes) == 0 {
		return 0, nil
	}
	return indexes[len(indexes)-1], nil
}

package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"storynerd/internal/logging"
)

// Default canonical document content written by Scaffold for a fresh
// workspace. Existing files are never overwritten.
var scaffoldDefaults = map[string]string{
	DocSoul: `# SOUL

You are a dedicated novelist. You write long-form fiction with patience and
craft, chapter by chapter, and you never contradict what the story has
already established.
`,
	DocTone: `# TONE

Default tone: literary but accessible third-person prose. Adjust per the
settings document when the editor asks for something different.
`,
	DocSettings:   "No writing settings have been configured yet.\n",
	DocCharacters: "No characters have been created yet.\n",
	DocWorld:      "No world-building has been done yet.\n",
	DocOutline:    "No story outline has been created yet.\n",
	DocSummary:    "No chapters have been written yet.\n",
}

// IsPlaceholder reports whether a canonical document still carries its
// scaffold default content (or is empty), i.e. nothing real has been
// written to it yet.
func (w *Workspace) IsPlaceholder(name string) bool {
	content, err := w.ReadDocument(name)
	if err != nil {
		return true
	}
	if len(content) == 0 {
		return true
	}
	return content == scaffoldDefaults[name]
}

// Scaffold creates the workspace directory structure and the canonical
// document set with default content. Safe to re-run; existing files are
// skipped.
func (w *Workspace) Scaffold() error {
	dirs := []string{"", DraftsDir, MemoryDir, ChapterMemoryDir, SessionsDir, SkillsDir}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(w.root, d), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	for _, name := range CanonicalDocs {
		path := filepath.Join(w.root, name)
		if _, err := os.Stat(path); err == nil {
			logging.WorkspaceDebug("Scaffold: %s exists, skipping", name)
			continue
		}
		if err := w.WritePathAtomic(name, scaffoldDefaults[name]); err != nil {
			return err
		}
		logging.Workspace("Scaffold: created %s", name)
	}

	if !w.Exists(GlobalMemoryFile) {
		if err := w.WritePathAtomic(GlobalMemoryFile, ""); err != nil {
			return err
		}
	}

	return nil
}

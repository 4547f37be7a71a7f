// Package workspace implements the document store for a storyNERD project.
// All persistent state lives as plain text files under one workspace root;
// every write is a whole-document atomic replace (temp file + rename) so a
// failed write never leaves a half-written document behind.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"storynerd/internal/logging"
)

// Canonical document names form a closed set. The agent never invents new
// canonical names; tools validate against this set before writing.
const (
	DocSoul       = "SOUL.md"          // persona
	DocTone       = "TONE.md"          // writing tone
	DocSettings   = "SETTINGS.md"      // story settings and style
	DocCharacters = "CHARACTERS.md"    // character sheets
	DocWorld      = "WORLD.md"         // world building
	DocOutline    = "OUTLINE.md"       // story outline
	DocSummary    = "STORY_SUMMARY.md" // running synopsis
)

// CanonicalDocs lists every canonical document in assembly order.
var CanonicalDocs = []string{
	DocSoul,
	DocTone,
	DocSettings,
	DocCharacters,
	DocWorld,
	DocOutline,
	DocSummary,
}

// Subdirectories of the workspace root.
const (
	DraftsDir        = "drafts"
	MemoryDir        = "memory"
	ChapterMemoryDir = "memory/chapters"
	SessionsDir      = "memory/sessions"
	SkillsDir        = "skills"
	GlobalMemoryFile = "memory/MEMORY.md"
)

// Category selects a document listing.
type Category string

const (
	CategoryCanon         Category = "canon"
	CategoryDrafts        Category = "drafts"
	CategoryChapterMemory Category = "chapter_memory"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrNotCanonical is returned for a document name outside the closed set.
	ErrNotCanonical = errors.New("not a canonical document name")
)

// Workspace is the handle to one project directory. One session owns one
// handle for its lifetime; there is no ambient singleton.
type Workspace struct {
	root string
}

// New returns a handle for an existing workspace directory.
func New(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace path: %w", err)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// IsCanonical reports whether name is in the closed canonical set.
func IsCanonical(name string) bool {
	for _, d := range CanonicalDocs {
		if d == name {
			return true
		}
	}
	return false
}

// ReadDocument reads a canonical document. Returns ErrNotFound if the
// document does not exist yet.
func (w *Workspace) ReadDocument(name string) (string, error) {
	if !IsCanonical(name) {
		return "", fmt.Errorf("%w: %s", ErrNotCanonical, name)
	}
	return w.ReadPath(name)
}

// WriteDocument atomically replaces a canonical document.
func (w *Workspace) WriteDocument(name, content string) error {
	if !IsCanonical(name) {
		return fmt.Errorf("%w: %s", ErrNotCanonical, name)
	}
	return w.WritePathAtomic(name, content)
}

// AppendDocument appends to a canonical document, creating it if absent.
// The append is read-modify-atomic-replace, not an O_APPEND write, so a
// concurrent external reader never observes a torn entry.
func (w *Workspace) AppendDocument(name, content string) error {
	if !IsCanonical(name) {
		return fmt.Errorf("%w: %s", ErrNotCanonical, name)
	}
	return w.AppendPath(name, content)
}

// List returns document names for a category, ordered.
func (w *Workspace) List(category Category) ([]string, error) {
	switch category {
	case CategoryCanon:
		names := make([]string, 0, len(CanonicalDocs))
		for _, d := range CanonicalDocs {
			if _, err := os.Stat(filepath.Join(w.root, d)); err == nil {
				names = append(names, d)
			}
		}
		return names, nil
	case CategoryDrafts:
		return w.listDir(DraftsDir)
	case CategoryChapterMemory:
		return w.listDir(ChapterMemoryDir)
	default:
		return nil, fmt.Errorf("unknown category: %s", category)
	}
}

func (w *Workspace) listDir(rel string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(w.root, rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", rel, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ReadPath reads any workspace-relative file. Used by the memory manager
// for its own files; tool-facing reads go through ReadDocument.
func (w *Workspace) ReadPath(rel string) (string, error) {
	data, err := os.ReadFile(filepath.Join(w.root, rel))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return "", fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return string(data), nil
}

// Exists reports whether a workspace-relative file exists.
func (w *Workspace) Exists(rel string) bool {
	_, err := os.Stat(filepath.Join(w.root, rel))
	return err == nil
}

// WritePathAtomic atomically replaces a workspace-relative file, creating
// parent directories as needed. Either the write fully succeeds or the
// prior content remains intact.
func (w *Workspace) WritePathAtomic(rel, content string) error {
	path := filepath.Join(w.root, rel)
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", rel, err)
	}

	logging.WorkspaceDebug("Wrote %s (%d bytes)", rel, len(content))
	return nil
}

// AppendPath appends to a workspace-relative file via atomic replace.
func (w *Workspace) AppendPath(rel, content string) error {
	existing, err := w.ReadPath(rel)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		existing += "\n"
	}
	return w.WritePathAtomic(rel, existing+content)
}

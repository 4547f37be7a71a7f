package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"storynerd/internal/memory"
	"storynerd/internal/workspace"
)

// NewNovelRegistry builds the registry of story tools bound to a
// workspace and its memory manager. This is the complete tool surface
// the agent loop exposes to the model.
func NewNovelRegistry(ws *workspace.Workspace, mem *memory.Manager) *Registry {
	r := NewRegistry()

	r.MustRegister(&Tool{
		Name:        "read_document",
		Description: "Read a canonical story document (SOUL.md, TONE.md, SETTINGS.md, CHARACTERS.md, WORLD.md, OUTLINE.md, STORY_SUMMARY.md) and return its full content.",
		Category:    CategoryCanon,
		Schema: ToolSchema{
			Required: []string{"name"},
			Properties: map[string]Property{
				"name": {Type: "string", Description: "Document file name, e.g. WORLD.md"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return ws.ReadDocument(args["name"].(string))
		},
	})

	r.MustRegister(&Tool{
		Name:        "write_document",
		Description: "Replace the full content of a canonical story document. The write is atomic; partial content is never left on disk.",
		Category:    CategoryCanon,
		Schema: ToolSchema{
			Required: []string{"name", "content"},
			Properties: map[string]Property{
				"name":    {Type: "string", Description: "Document file name, e.g. WORLD.md"},
				"content": {Type: "string", Description: "New full document content"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			name := args["name"].(string)
			if err := ws.WriteDocument(name, args["content"].(string)); err != nil {
				return "", err
			}
			return fmt.Sprintf("wrote %s", name), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "append_document",
		Description: "Append content to the end of a canonical story document.",
		Category:    CategoryCanon,
		Schema: ToolSchema{
			Required: []string{"name", "content"},
			Properties: map[string]Property{
				"name":    {Type: "string", Description: "Document file name, e.g. CHARACTERS.md"},
				"content": {Type: "string", Description: "Content to append"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			name := args["name"].(string)
			if err := ws.AppendDocument(name, args["content"].(string)); err != nil {
				return "", err
			}
			return fmt.Sprintf("appended to %s", name), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "list_documents",
		Description: "List the canonical story documents present in the workspace.",
		Category:    CategoryCanon,
		Schema:      ToolSchema{Properties: map[string]Property{}},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			names, err := ws.List(workspace.CategoryCanon)
			if err != nil {
				return "", err
			}
			if len(names) == 0 {
				return "no documents", nil
			}
			sort.Strings(names)
			return strings.Join(names, "\n"), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "list_drafts",
		Description: "List saved chapter draft indexes in ascending order.",
		Category:    CategoryDrafts,
		Schema:      ToolSchema{Properties: map[string]Property{}},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			indexes, err := ws.ListDrafts()
			if err != nil {
				return "", err
			}
			if len(indexes) == 0 {
				return "no drafts", nil
			}
			parts := make([]string, len(indexes))
			for i, idx := range indexes {
				parts[i] = fmt.Sprintf("chapter %d", idx)
			}
			return strings.Join(parts, "\n"), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "save_draft",
		Description: "Save the full text of a chapter draft. Overwrites any existing draft for the same chapter index.",
		Category:    CategoryDrafts,
		Schema: ToolSchema{
			Required: []string{"chapter_index", "content"},
			Properties: map[string]Property{
				"chapter_index": {Type: "integer", Description: "Chapter number, starting at 1"},
				"content":       {Type: "string", Description: "Full chapter text"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			index := intArg(args["chapter_index"])
			if err := ws.SaveDraft(index, args["content"].(string)); err != nil {
				return "", err
			}
			return fmt.Sprintf("saved draft for chapter %d", index), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "record_memory_event",
		Description: "Record a plot fact or event in the long-term story memory log. Mark pivotal=true only for facts that must never be condensed away.",
		Category:    CategoryMemory,
		Schema: ToolSchema{
			Required: []string{"chapter_index", "note"},
			Properties: map[string]Property{
				"chapter_index": {Type: "integer", Description: "Chapter the event belongs to"},
				"note":          {Type: "string", Description: "One-line description of the fact or event"},
				"pivotal":       {Type: "boolean", Description: "Protect from compaction"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			pivotal, _ := args["pivotal"].(bool)
			chapter := intArg(args["chapter_index"])
			if err := mem.RecordEvent(chapter, args["note"].(string), pivotal); err != nil {
				return "", err
			}
			return fmt.Sprintf("recorded event for chapter %d", chapter), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "get_progress",
		Description: "Report writing progress: saved drafts, finalized chapters, and memory log size.",
		Category:    CategoryGeneral,
		Schema:      ToolSchema{Properties: map[string]Property{}},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			indexes, err := ws.ListDrafts()
			if err != nil {
				return "", err
			}
			finalized := 0
			for _, idx := range indexes {
				if mem.HasChapterRecord(idx) {
					finalized++
				}
			}
			entries, err := mem.LoadEntries()
			if err != nil {
				return "", err
			}
			latest := 0
			if len(indexes) > 0 {
				latest = indexes[len(indexes)-1]
			}
			return fmt.Sprintf("drafts: %d (latest chapter %d)\nfinalized chapters: %d\nmemory events: %d",
				len(indexes), latest, finalized, len(entries)), nil
		},
	})

	return r
}

// intArg normalizes a schema-validated integer argument. JSON decoding
// delivers numbers as float64.
func intArg(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

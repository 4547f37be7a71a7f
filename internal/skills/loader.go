// Package skills loads and selects instructional skill texts. A skill is
// a skills/<name>/SKILL.md file with YAML frontmatter; its body is opaque
// instructional text injected verbatim into the agent's context when the
// skill is selected for a turn.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"storynerd/internal/logging"
	"storynerd/internal/workspace"

	"gopkg.in/yaml.v3"
)

// Meta is the YAML frontmatter of a SKILL.md file.
type Meta struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	Always      bool     `yaml:"always"`
}

// Skill is one loaded skill.
type Skill struct {
	Meta Meta
	Body string // frontmatter stripped
}

// Loader reads skills from the workspace skills/ directory.
type Loader struct {
	ws *workspace.Workspace
}

// NewLoader creates a loader for a workspace.
func NewLoader(ws *workspace.Workspace) *Loader {
	return &Loader{ws: ws}
}

// List returns all skills, sorted by name. Malformed skill files are
// skipped with a log entry rather than failing the turn.
func (l *Loader) List() ([]Skill, error) {
	root := filepath.Join(l.ws.Root(), workspace.SkillsDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list skills: %w", err)
	}

	var out []Skill
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rel := filepath.Join(workspace.SkillsDir, e.Name(), "SKILL.md")
		content, err := l.ws.ReadPath(rel)
		if err != nil {
			continue
		}
		skill, err := parseSkill(content)
		if err != nil {
			logging.SkillsDebug("Skipping malformed skill %s: %v", e.Name(), err)
			continue
		}
		if skill.Meta.Name == "" {
			skill.Meta.Name = e.Name()
		}
		out = append(out, skill)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meta.Name < out[j].Meta.Name })
	return out, nil
}

// Load returns one skill by name.
func (l *Loader) Load(name string) (*Skill, error) {
	all, err := l.List()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Meta.Name == name {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("skill not found: %s", name)
}

// parseSkill splits optional YAML frontmatter from the body.
func parseSkill(content string) (Skill, error) {
	if !strings.HasPrefix(content, "---\n") {
		return Skill{Body: strings.TrimSpace(content)}, nil
	}
	rest := content[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return Skill{}, fmt.Errorf("unterminated frontmatter")
	}
	var meta Meta
	if err := yaml.Unmarshal([]byte(rest[:end]), &meta); err != nil {
		return Skill{}, fmt.Errorf("bad frontmatter: %w", err)
	}
	body := rest[end+4:]
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}
	return Skill{Meta: meta, Body: strings.TrimSpace(body)}, nil
}

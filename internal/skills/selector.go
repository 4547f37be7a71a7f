package skills

import (
	"strings"

	"storynerd/internal/logging"
)

// Selector picks which skills to inject for a turn. Pure with respect to
// the agent loop: same input and same skill set, same selection.
type Selector struct {
	loader *Loader
}

// NewSelector creates a selector over a loader.
func NewSelector(loader *Loader) *Selector {
	return &Selector{loader: loader}
}

// Select returns the names of skills to activate for the user's message:
// every always-skill plus any skill with a keyword match.
func (s *Selector) Select(userMessage string) ([]string, error) {
	all, err := s.loader.List()
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(userMessage)
	var names []string
	for _, sk := range all {
		if sk.Meta.Always {
			names = append(names, sk.Meta.Name)
			continue
		}
		for _, kw := range sk.Meta.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(lower, kw) {
				names = append(names, sk.Meta.Name)
				break
			}
		}
	}
	if len(names) > 0 {
		logging.Skills("Selected skills: %s", strings.Join(names, ", "))
	}
	return names, nil
}

// LoadForContext renders the named skills as one context block.
func (s *Selector) LoadForContext(names []string) (string, error) {
	if len(names) == 0 {
		return "", nil
	}
	var parts []string
	for _, name := range names {
		sk, err := s.loader.Load(name)
		if err != nil {
			logging.SkillsDebug("Skipping missing skill %s: %v", name, err)
			continue
		}
		parts = append(parts, "### Skill: "+sk.Meta.Name+"\n\n"+sk.Body)
	}
	return strings.Join(parts, "\n\n---\n\n"), nil
}

// SelectAndLoad is the one-call convenience used by the agent loop.
func (s *Selector) SelectAndLoad(userMessage string) (string, error) {
	names, err := s.Select(userMessage)
	if err != nil {
		return "", err
	}
	return s.LoadForContext(names)
}

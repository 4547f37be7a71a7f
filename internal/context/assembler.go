package context

import (
	"errors"
	"fmt"
	"strings"

	"storynerd/internal/config"
	"storynerd/internal/logging"
	"storynerd/internal/memory"
	"storynerd/internal/workspace"
)

const identityPreamble = `# IDENTITY
You are a novelist agent. You write a cohesive, engaging long-form story
based on the editor's instructions, staying consistent with everything the
story has already established.

## WORKING RULES
1. Stay in character as defined by your persona.
2. Never contradict CHARACTERS.md, WORLD.md, or your memory.
3. Use read_document to check details when unsure.
4. Save chapters with save_draft; the chapter index increases by one each time.
5. After finishing a chapter, record its plot points, key items, and
   character changes with record_memory_event - never the full text.`

// Assembler builds the system prompt for one turn from the document store
// and the memory manager, under a fixed total budget.
type Assembler struct {
	ws  *workspace.Workspace
	mem *memory.Manager
	cfg config.ContextConfig
	est SizeEstimator
}

// NewAssembler creates an assembler. A nil estimator defaults to rune
// counting.
func NewAssembler(ws *workspace.Workspace, mem *memory.Manager, cfg config.ContextConfig, est SizeEstimator) *Assembler {
	if est == nil {
		est = RuneEstimator{}
	}
	return &Assembler{ws: ws, mem: mem, cfg: cfg, est: est}
}

// canonSection maps a canonical document to its prompt heading. SOUL and
// TONE are the persona tier and handled separately.
var canonSections = []struct {
	doc   string
	title string
}{
	{workspace.DocSettings, "STORY SETTINGS"},
	{workspace.DocCharacters, "CHARACTERS"},
	{workspace.DocWorld, "WORLD SETTING"},
	{workspace.DocOutline, "OUTLINE"},
	{workspace.DocSummary, "STORY SO FAR"},
}

// Build assembles the prompt for a turn. The result never exceeds the
// configured budget unless the mandatory sections alone do, in which case
// OverBudget is set and the optional tiers are dropped entirely - the
// user's message is never truncated.
func (a *Assembler) Build(input BuildInput) (*Prompt, error) {
	if strings.TrimSpace(input.UserMessage) == "" {
		return nil, errors.New("empty user message")
	}

	budget := a.cfg.MaxChars
	if budget <= 0 {
		budget = config.DefaultConfig().Context.MaxChars
	}

	p := &Prompt{UserMessage: input.UserMessage}

	// Tier 1: persona (always, in full).
	persona := a.personaBlock()
	p.Sections = append(p.Sections, Section{Kind: SectionPersona, Title: "PERSONA", Content: persona})

	// Tier 2: active skill instructions (always, in full, when selected).
	if input.SkillText != "" {
		p.Sections = append(p.Sections, Section{Kind: SectionSkills, Title: "ACTIVE SKILLS", Content: input.SkillText})
	}

	mandatory := a.est.Size(identityPreamble) + a.est.Size(persona) + a.est.Size(input.SkillText) + a.est.Size(input.UserMessage)
	remaining := budget - mandatory - sectionOverhead*len(p.Sections)
	if remaining < 0 {
		p.OverBudget = true
		logging.ContextWarn("Budget %d exceeded by mandatory sections (%d); dropping memory tiers", budget, mandatory)
		a.render(p)
		return p, nil
	}

	// Tier 3: canonical story documents under their own sub-budget, so
	// the memory tiers below cannot be starved by a huge outline.
	canonBudget := remaining * a.cfg.CanonPercent / 100
	canonUsed := a.appendCanon(p, canonBudget)
	remaining -= canonUsed

	// Tier 5 reserve comes off before the digest so the newest chapter
	// summaries always have room.
	summaryReserve := remaining * a.cfg.SummaryReservePercent / 100

	// Tier 4: global memory digest sized to what is left.
	digestBudget := remaining - summaryReserve
	if digestBudget > 0 {
		digest, err := a.mem.LoadGlobalDigest(digestBudget)
		if err != nil {
			return nil, fmt.Errorf("failed to load global digest: %w", err)
		}
		if digest != "" {
			p.Sections = append(p.Sections, Section{Kind: SectionDigest, Title: "LONG TERM MEMORY", Content: digest})
			remaining -= a.est.Size(digest) + sectionOverhead
		}
	}

	// Tier 5: recent chapter summaries, newest weighted - drop oldest
	// first until the remainder fits.
	a.appendSummaries(p, remaining)

	a.render(p)
	logging.ContextDebug("Assembled %d sections, size %d / budget %d", len(p.Sections), p.Size, budget)
	return p, nil
}

// personaBlock loads SOUL and TONE; absent documents contribute nothing.
func (a *Assembler) personaBlock() string {
	var parts []string
	if soul, err := a.ws.ReadDocument(workspace.DocSoul); err == nil && strings.TrimSpace(soul) != "" {
		parts = append(parts, soul)
	}
	if tone, err := a.ws.ReadDocument(workspace.DocTone); err == nil && strings.TrimSpace(tone) != "" {
		parts = append(parts, "## WRITING TONE\n"+tone)
	}
	return strings.Join(parts, "\n\n")
}

// sectionOverhead pads each section for its heading and separators.
const sectionOverhead = 32

// appendCanon adds the canonical documents, each independently truncated
// to an equal share when their combined size exceeds the sub-budget.
// Returns the estimator units consumed.
func (a *Assembler) appendCanon(p *Prompt, budget int) int {
	if budget <= 0 {
		return 0
	}

	type doc struct {
		title   string
		content string
	}
	var docs []doc
	total := 0
	for _, cs := range canonSections {
		content, err := a.ws.ReadDocument(cs.doc)
		if err != nil || strings.TrimSpace(content) == "" {
			continue
		}
		docs = append(docs, doc{title: cs.title, content: content})
		total += a.est.Size(content) + sectionOverhead
	}
	if len(docs) == 0 {
		return 0
	}

	used := 0
	share := budget/len(docs) - sectionOverhead
	for _, d := range docs {
		content := d.content
		truncated := false
		if total > budget && a.est.Size(content) > share {
			content = a.truncateTail(content, share)
			truncated = true
		}
		if content == "" {
			continue
		}
		p.Sections = append(p.Sections, Section{Kind: SectionCanon, Title: d.title, Content: content, Truncated: truncated})
		used += a.est.Size(content) + sectionOverhead
	}
	return used
}

// appendSummaries adds the last-N chapter summaries that fit, dropping the
// oldest first.
func (a *Assembler) appendSummaries(p *Prompt, budget int) {
	if budget <= 0 || a.cfg.RecentChapterWindow <= 0 {
		return
	}
	summaries, err := a.mem.LoadRecentChapterSummaries(a.cfg.RecentChapterWindow)
	if err != nil {
		logging.ContextWarn("Failed to load chapter summaries: %v", err)
		return
	}
	if len(summaries) == 0 {
		return
	}

	// Walk newest to oldest, keeping what fits; emit in chapter order.
	kept := make([]memory.ChapterSummary, 0, len(summaries))
	used := 0
	for i := len(summaries) - 1; i >= 0; i-- {
		cost := a.est.Size(summaries[i].Text) + sectionOverhead
		if used+cost > budget {
			break
		}
		kept = append(kept, summaries[i])
		used += cost
	}
	if len(kept) == 0 {
		return
	}

	var b strings.Builder
	for i := len(kept) - 1; i >= 0; i-- {
		s := kept[i]
		fmt.Fprintf(&b, "### Chapter %d\n%s\n", s.Chapter, strings.TrimSpace(s.Text))
	}
	p.Sections = append(p.Sections, Section{
		Kind:      SectionSummaries,
		Title:     "RECENT CHAPTER SUMMARIES",
		Content:   strings.TrimRight(b.String(), "\n"),
		Truncated: len(kept) < len(summaries),
	})
}

// truncateTail cuts content to at most max estimator units, on a line
// boundary so markdown headings survive intact.
func (a *Assembler) truncateTail(content string, max int) string {
	if max <= 0 {
		return ""
	}
	if a.est.Size(content) <= max {
		return content
	}

	lines := strings.Split(content, "\n")
	var b strings.Builder
	used := 0
	for _, line := range lines {
		cost := a.est.Size(line) + 1
		if used+cost > max {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line)
		used += cost
	}
	return b.String()
}

// render produces the final system string and total size.
func (p *Prompt) renderSystem() string {
	var b strings.Builder
	b.WriteString(identityPreamble)
	for _, s := range p.Sections {
		b.WriteString("\n\n## ")
		b.WriteString(s.Title)
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(s.Content))
	}
	return b.String()
}

func (a *Assembler) render(p *Prompt) {
	p.System = p.renderSystem()
	p.Size = a.est.Size(p.System) + a.est.Size(p.UserMessage)
}

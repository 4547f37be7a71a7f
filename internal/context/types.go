// Package context assembles the bounded-size prompt payload for one agent
// turn. Sections are packed in strict priority order so the load-bearing
// material (persona, active skill, the user's message) can never be
// starved or silently dropped, while memory recall degrades gracefully.
package context

// SectionKind identifies one block of the assembled context.
type SectionKind string

const (
	SectionPersona   SectionKind = "persona"   // SOUL + TONE, always full
	SectionSkills    SectionKind = "skills"    // active skill instructions, always full
	SectionCanon     SectionKind = "canon"     // settings/characters/world/outline/synopsis
	SectionDigest    SectionKind = "digest"    // global memory digest
	SectionSummaries SectionKind = "summaries" // recent chapter summaries
)

// Section is one rendered block of the system prompt.
type Section struct {
	Kind      SectionKind
	Title     string
	Content   string
	Truncated bool
}

// Prompt is the assembled payload for one turn. System carries the packed
// sections; UserMessage is always the user's message in full.
type Prompt struct {
	System      string
	UserMessage string

	// Size is the estimator total for System + UserMessage.
	Size int

	// OverBudget is set when the mandatory sections alone exceed the
	// budget. Assembly still returns them: persona, skills and the user
	// message are never dropped.
	OverBudget bool

	Sections []Section
}

// BuildInput carries the per-turn inputs to assembly.
type BuildInput struct {
	UserMessage string
	SkillText   string // Skill Selector output, already joined; may be empty
}

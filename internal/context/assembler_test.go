package context

import (
	stdctx "context"
	"fmt"
	"strings"
	"testing"

	"storynerd/internal/config"
	"storynerd/internal/memory"
	"storynerd/internal/workspace"
)

func newTestAssembler(t *testing.T, maxChars int) (*Assembler, *workspace.Workspace, *memory.Manager) {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.Scaffold(); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Context.MaxChars = maxChars
	mem := memory.NewManager(ws, cfg.Memory, nil)
	return NewAssembler(ws, mem, cfg.Context, nil), ws, mem
}

func populate(t *testing.T, ws *workspace.Workspace, mem *memory.Manager) {
	t.Helper()
	docs := map[string]string{
		workspace.DocSoul:       "# SOUL\nA patient, meticulous novelist.",
		workspace.DocTone:       "Dry wit, long sentences.",
		workspace.DocWorld:      "# World\n" + strings.Repeat("An island chain adrift in a sky of glass. ", 40),
		workspace.DocCharacters: "# Cast\n- Mira, a cartographer\n- Tomas, her estranged brother\n" + strings.Repeat("More background. ", 60),
		workspace.DocOutline:    "# Outline\n1. The voyage\n2. The wreck\n3. The city\n" + strings.Repeat("Beats. ", 80),
	}
	for name, content := range docs {
		if err := ws.WriteDocument(name, content); err != nil {
			t.Fatal(err)
		}
	}
	for i := 1; i <= 12; i++ {
		if err := mem.RecordEvent(i, fmt.Sprintf("chapter %d event: something important happened", i), i == 2); err != nil {
			t.Fatal(err)
		}
		if _, err := mem.FinalizeChapter(stdctx.Background(), i, fmt.Sprintf("Chapter %d summary: %s", i, strings.Repeat("beats ", 30)), false); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBuildRespectsBudgetAcrossSizes(t *testing.T) {
	userMsg := "Write the opening scene of chapter 13."
	for _, budget := range []int{2000, 4000, 8000, 16000, 48000} {
		t.Run(fmt.Sprintf("budget_%d", budget), func(t *testing.T) {
			asm, ws, mem := newTestAssembler(t, budget)
			populate(t, ws, mem)

			p, err := asm.Build(BuildInput{UserMessage: userMsg, SkillText: "## Skill: chapters\nKeep chapters under 4k words."})
			if err != nil {
				t.Fatal(err)
			}
			if p.OverBudget {
				t.Fatalf("budget %d flagged over-budget", budget)
			}
			if p.Size > budget {
				t.Errorf("assembled size %d exceeds budget %d", p.Size, budget)
			}

			// Mandatory sections always fully present.
			if !strings.Contains(p.System, "A patient, meticulous novelist.") {
				t.Error("persona missing")
			}
			if !strings.Contains(p.System, "Keep chapters under 4k words.") {
				t.Error("skill text missing")
			}
			if p.UserMessage != userMsg {
				t.Errorf("user message altered: %q", p.UserMessage)
			}
		})
	}
}

func TestBuildTinyBudgetKeepsMandatorySections(t *testing.T) {
	asm, ws, mem := newTestAssembler(t, 50)
	populate(t, ws, mem)

	userMsg := "Continue the story."
	p, err := asm.Build(BuildInput{UserMessage: userMsg, SkillText: "skill block"})
	if err != nil {
		t.Fatal(err)
	}
	if !p.OverBudget {
		t.Error("expected OverBudget for a 50-char budget")
	}
	if p.UserMessage != userMsg {
		t.Error("user message was truncated")
	}
	if !strings.Contains(p.System, "novelist") {
		t.Error("persona dropped")
	}
	if !strings.Contains(p.System, "skill block") {
		t.Error("skill dropped")
	}
	// Optional tiers are the ones that give way.
	for _, s := range p.Sections {
		if s.Kind == SectionDigest || s.Kind == SectionSummaries || s.Kind == SectionCanon {
			t.Errorf("optional section %s present despite exhausted budget", s.Kind)
		}
	}
}

func TestBuildIncludesWrittenWorldVerbatim(t *testing.T) {
	asm, ws, _ := newTestAssembler(t, 48000)

	world := "The city of Veyr floats on chained icebergs."
	if err := ws.WriteDocument(workspace.DocWorld, world); err != nil {
		t.Fatal(err)
	}

	p, err := asm.Build(BuildInput{UserMessage: "What did we establish about Veyr?"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p.System, world) {
		t.Error("world content not included verbatim")
	}
}

func TestCanonTruncationPreservesHeadings(t *testing.T) {
	asm, ws, mem := newTestAssembler(t, 3000)
	populate(t, ws, mem)

	p, err := asm.Build(BuildInput{UserMessage: "go on"})
	if err != nil {
		t.Fatal(err)
	}

	for _, s := range p.Sections {
		if s.Kind != SectionCanon || !s.Truncated {
			continue
		}
		// Truncation cuts on line boundaries; the leading heading line
		// must survive.
		first := strings.SplitN(s.Content, "\n", 2)[0]
		if !strings.HasPrefix(first, "#") {
			t.Errorf("section %s lost its heading: %q", s.Title, first)
		}
	}
}

func TestSummariesDropOldestFirst(t *testing.T) {
	asm, ws, mem := newTestAssembler(t, 48000)
	populate(t, ws, mem)

	// Window of 3 with plenty of room: chapters 10, 11, 12.
	p, err := asm.Build(BuildInput{UserMessage: "next"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p.System, "### Chapter 12") {
		t.Error("newest chapter summary missing")
	}
	if strings.Contains(p.System, "### Chapter 9") {
		t.Error("summary outside window present")
	}

	// Shrink until not every summary fits.
	asm2, ws2, mem2 := newTestAssembler(t, 3600)
	populate(t, ws2, mem2)
	p2, err := asm2.Build(BuildInput{UserMessage: "next"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(p2.System, "### Chapter 12") && strings.Contains(p2.System, "### Chapter 10") {
		// With this budget not all three can fit; if 12 is present 10
		// must have been the one dropped before 11.
		if !strings.Contains(p2.System, "### Chapter 11") {
			t.Error("kept oldest summary while dropping a newer one")
		}
	}
	if !strings.Contains(p2.System, "### Chapter 12") && strings.Contains(p2.System, "### Chapter 10") {
		t.Error("dropped newest summary before oldest")
	}
}

func TestBuildRejectsEmptyUserMessage(t *testing.T) {
	asm, _, _ := newTestAssembler(t, 48000)
	if _, err := asm.Build(BuildInput{UserMessage: "   "}); err == nil {
		t.Fatal("expected error for empty user message")
	}
}

func TestTokenEstimator(t *testing.T) {
	te := NewTokenEstimator()
	if got := te.Size(strings.Repeat("a", 400)); got != 100 {
		t.Errorf("Size = %d, want 100", got)
	}
	if got := te.Size(""); got != 0 {
		t.Errorf("empty Size = %d", got)
	}
}

package llm

import (
	"context"
	"fmt"
	"strings"
)

const summarySystemPrompt = `You are a story archivist. You condense chapter drafts into
compact summaries that preserve plot events, character changes, and
newly established facts. Write plain prose, no headings, no
commentary about the summarization itself.`

// ChapterSummarizer condenses chapter text through a completion
// backend. It satisfies the memory package's Summarizer contract.
type ChapterSummarizer struct {
	client Client
}

// NewChapterSummarizer wraps a client for summary generation.
func NewChapterSummarizer(client Client) *ChapterSummarizer {
	return &ChapterSummarizer{client: client}
}

// Summarize produces a summary of text no longer than maxChars runes.
func (s *ChapterSummarizer) Summarize(ctx context.Context, text string, maxChars int) (string, error) {
	prompt := fmt.Sprintf("Summarize the following chapter in at most %d characters:\n\n%s", maxChars, text)
	out, err := s.client.CompleteWithSystem(ctx, summarySystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("summarization failed: %w", err)
	}
	out = strings.TrimSpace(out)
	if runes := []rune(out); len(runes) > maxChars {
		out = string(runes[:maxChars])
	}
	return out, nil
}

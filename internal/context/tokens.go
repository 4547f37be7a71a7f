package context

import "unicode/utf8"

// =============================================================================
// Size Estimation
// =============================================================================
// Budget enforcement needs a size for every candidate block of text. The
// backend's exact tokenizer is not available locally, so estimation is
// pluggable; the default counts runes, which over-reserves by roughly the
// model's chars-per-token ratio (~4 for current models) and therefore
// never under-counts.

// SizeEstimator measures text against the context budget.
type SizeEstimator interface {
	Size(s string) int
}

// RuneEstimator is the default estimator: one unit per rune.
type RuneEstimator struct{}

// Size returns the rune count of s.
func (RuneEstimator) Size(s string) int {
	return utf8.RuneCountInString(s)
}

// TokenEstimator approximates model tokens from rune count.
type TokenEstimator struct {
	// CharsPerToken is the calibration factor (default 4.0).
	CharsPerToken float64
}

// NewTokenEstimator returns an estimator calibrated for current models.
func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{CharsPerToken: 4.0}
}

// Size estimates tokens in s.
func (te *TokenEstimator) Size(s string) int {
	if s == "" {
		return 0
	}
	cpt := te.CharsPerToken
	if cpt <= 0 {
		cpt = 4.0
	}
	return int(float64(utf8.RuneCountInString(s)) / cpt)
}

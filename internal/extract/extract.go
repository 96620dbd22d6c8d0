// File: internal/extract/extract.go

// Package extract locates confirmation/reference codes in page text and in
// the decision model's narration. Codes show up inconsistently, sometimes
// only in the UI and sometimes only echoed by the model, so both sources are
// scanned, page text first.
package extract

import (
	"regexp"
	"strings"
)

// ReferenceNotFound is returned when no matcher produced a hit.
const ReferenceNotFound = "N/A"

// Matcher is one extraction strategy. Matchers are tried in order and the
// first hit wins, so refining or replacing a heuristic never touches the
// calling loop.
type Matcher interface {
	// Name identifies the matcher in logs.
	Name() string
	// Match returns the extracted code and true on a hit.
	Match(text string) (string, bool)
}

// patternMatcher matches a compiled regexp whose first capture group is the code.
type patternMatcher struct {
	name string
	re   *regexp.Regexp
}

func (m *patternMatcher) Name() string { return m.name }

func (m *patternMatcher) Match(text string) (string, bool) {
	groups := m.re.FindStringSubmatch(text)
	if len(groups) > 1 && groups[1] != "" {
		return groups[1], true
	}
	return "", false
}

// labeledMatcher builds a matcher for a label like "reference" or "ticket",
// tolerant of optional qualifiers ("number", "no.", "#") and loose separators,
// followed by an alphanumeric token of at least six characters.
func labeledMatcher(label string) Matcher {
	return &patternMatcher{
		name: label,
		re:   regexp.MustCompile(`(?i)\b` + label + `(?:\s*(?:number|no\.?|#))?\s*[:\-]?\s*([A-Za-z0-9]{6,})`),
	}
}

// longTokenMatcher is the greedy fallback: any standalone alphanumeric token
// of at least eight characters. It can false-positive on long plain words,
// which is why it runs last.
func longTokenMatcher() Matcher {
	return &patternMatcher{
		name: "long-token",
		re:   regexp.MustCompile(`\b([A-Za-z0-9]{8,})\b`),
	}
}

// Extractor scans page text and model commentary with two ordered matcher lists.
type Extractor struct {
	pageMatchers       []Matcher
	commentaryMatchers []Matcher
}

// New returns an Extractor with the default matcher lists. Page text gets the
// full label set; commentary, being free-form narration, gets a reduced one.
func New() *Extractor {
	return &Extractor{
		pageMatchers: []Matcher{
			labeledMatcher("reference"),
			labeledMatcher("ref"),
			labeledMatcher("confirmation"),
			labeledMatcher("transaction"),
			labeledMatcher("ticket"),
			labeledMatcher("submission"),
			longTokenMatcher(),
		},
		commentaryMatchers: []Matcher{
			labeledMatcher("reference"),
			labeledMatcher("ref"),
			labeledMatcher("confirmation"),
			longTokenMatcher(),
		},
	}
}

// NewWithMatchers returns an Extractor using caller-supplied matcher lists.
func NewWithMatchers(page, commentary []Matcher) *Extractor {
	return &Extractor{pageMatchers: page, commentaryMatchers: commentary}
}

// Extract returns the best-guess reference code from the final page text and
// the accumulated commentary fragments, or ReferenceNotFound.
//
// Order matters: page text is ground truth, narration is best-effort.
func (e *Extractor) Extract(pageText string, commentary []string) string {
	if code, ok := firstMatch(e.pageMatchers, pageText); ok {
		return code
	}

	joined := strings.TrimSpace(strings.Join(commentary, "\n"))
	if joined != "" {
		if code, ok := firstMatch(e.commentaryMatchers, joined); ok {
			return code
		}
	}

	return ReferenceNotFound
}

func firstMatch(matchers []Matcher, text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	for _, m := range matchers {
		if code, ok := m.Match(text); ok {
			return code, true
		}
	}
	return "", false
}

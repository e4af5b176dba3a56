// Package filter narrows catalog listings and suggests near-miss names.
package filter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"schemctl/pkg/catalog"
)

type FilterMode int

const (
	FilterModeNone FilterMode = iota
	FilterModeExact
	FilterModeContains
	FilterModeRegex
	FilterModeFuzzy
	FilterModeSimilar
)

// SimilarThreshold is the Similarity a path needs to pass FilterModeSimilar.
const SimilarThreshold = 0.75

var filterModeNames = map[FilterMode]string{
	FilterModeNone:     "none",
	FilterModeExact:    "exact",
	FilterModeContains: "contains",
	FilterModeRegex:    "regex",
	FilterModeFuzzy:    "fuzzy",
	FilterModeSimilar:  "similar",
}

func (m FilterMode) String() string {
	if name, ok := filterModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("FilterMode(%d)", int(m))
}

type StringFilter struct {
	Pattern string
	Mode    FilterMode
	regex   *regexp.Regexp
}

func NewStringFilter(pattern string, mode FilterMode) (*StringFilter, error) {
	f := &StringFilter{
		Pattern: pattern,
		Mode:    mode,
	}

	switch mode {
	case FilterModeRegex:
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern '%s': %w", pattern, err)
		}
		f.regex = re
	case FilterModeNone, FilterModeExact, FilterModeContains, FilterModeFuzzy, FilterModeSimilar:
	default:
		return nil, fmt.Errorf("unknown filter mode %d", int(mode))
	}

	return f, nil
}

func (f *StringFilter) Match(s string) bool {
	switch f.Mode {
	case FilterModeNone:
		return true
	case FilterModeExact:
		return strings.EqualFold(s, f.Pattern)
	case FilterModeContains:
		return strings.Contains(strings.ToLower(s), strings.ToLower(f.Pattern))
	case FilterModeRegex:
		return f.regex != nil && f.regex.MatchString(s)
	case FilterModeFuzzy:
		return FuzzyMatch(f.Pattern, s)
	case FilterModeSimilar:
		return FuzzyMatchRanked(f.Pattern, s, SimilarThreshold)
	default:
		return true
	}
}

// FuzzyMatch reports whether pattern is a case-insensitive subsequence of
// text.
func FuzzyMatch(pattern, text string) bool {
	if pattern == "" {
		return true
	}
	if text == "" {
		return false
	}

	p := []rune(strings.ToLower(pattern))
	i := 0
	for _, r := range strings.ToLower(text) {
		if r == p[i] {
			i++
			if i == len(p) {
				return true
			}
		}
	}
	return false
}

// FuzzyMatchRanked reports whether text is at least threshold similar to
// pattern.
func FuzzyMatchRanked(pattern, text string, threshold float64) bool {
	if pattern == "" {
		return true
	}
	if text == "" {
		return false
	}
	return Similarity(pattern, text) >= threshold
}

// Similarity is one minus the edit distance over the longer length.
func Similarity(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1
	}
	return 1.0 - float64(LevenshteinDistance(a, b))/float64(maxLen)
}

// LevenshteinDistance counts single-rune edits, ignoring case.
func LevenshteinDistance(s1, s2 string) int {
	a, b := []rune(s1), []rune(s2)
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	previousRow := make([]int, len(b)+1)
	currentRow := make([]int, len(b)+1)

	for i := 0; i <= len(b); i++ {
		previousRow[i] = i
	}

	for i := 0; i < len(a); i++ {
		currentRow[0] = i + 1

		for j := 0; j < len(b); j++ {
			cost := 1
			if unicode.ToLower(a[i]) == unicode.ToLower(b[j]) {
				cost = 0
			}

			deletion := currentRow[j] + 1
			insertion := previousRow[j+1] + 1
			substitution := previousRow[j] + cost

			currentRow[j+1] = min(deletion, insertion, substitution)
		}

		previousRow, currentRow = currentRow, previousRow
	}

	return previousRow[len(b)]
}

// Suggest returns up to n candidates similar to name, best first. Names are
// compared without their extension.
func Suggest(name string, candidates []string, n int) []string {
	const threshold = 0.5
	type scored struct {
		name  string
		score float64
	}
	stem := func(s string) string {
		if i := strings.LastIndexByte(s, '.'); i > 0 && !strings.Contains(s[i:], "/") {
			return s[:i]
		}
		return s
	}

	target := stem(name)
	var hits []scored
	for _, c := range candidates {
		score := Similarity(target, stem(c))
		if score < threshold && !FuzzyMatch(target, stem(c)) {
			continue
		}
		hits = append(hits, scored{c, score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]string, 0, min(n, len(hits)))
	for _, h := range hits {
		if len(out) == n {
			break
		}
		out = append(out, h.name)
	}
	return out
}

// EntryFilter selects catalog entries. Zero fields match everything.
type EntryFilter struct {
	// Path is matched against the entry's slash-separated relative path.
	Path *StringFilter
	// Format is a format name; "unknown" selects undetected files.
	Format string
	Since  time.Time
}

func (f *EntryFilter) Matches(e catalog.Entry) bool {
	if f.Path != nil && !f.Path.Match(e.Path) {
		return false
	}

	if f.Format != "" && !strings.EqualFold(f.Format, e.FormatName()) {
		return false
	}

	if !f.Since.IsZero() && e.ModTime.Before(f.Since) {
		return false
	}

	return true
}

// Apply keeps the entries that match, preserving order.
func (f *EntryFilter) Apply(entries []catalog.Entry) []catalog.Entry {
	out := make([]catalog.Entry, 0, len(entries))
	for _, e := range entries {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

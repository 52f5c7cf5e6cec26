package backend

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	asteriskRuns  = regexp.MustCompile(`\*{3,}`)
	headerMarkers = regexp.MustCompile(`(?m)#{1,6}\s*`)
	blankRuns     = regexp.MustCompile(`\n{4,}`)
)

// Format strips decorative markdown from model output and collapses excess
// blank lines. Very short responses are labeled rather than discarded so the
// caller's length validation decides their fate.
func Format(text, backend string) string {
	cleaned := asteriskRuns.ReplaceAllString(text, "")
	cleaned = headerMarkers.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = blankRuns.ReplaceAllString(cleaned, "\n\n\n")

	if len(cleaned) < 20 {
		return fmt.Sprintf("%s: Brief response - %s", backend, cleaned)
	}
	return cleaned
}

// Excerpt truncates text to at most n bytes for interaction and consensus
// summaries, backing off to a rune boundary.
func Excerpt(text string, n int) string {
	if len(text) <= n {
		return text
	}
	cut := text[:n]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

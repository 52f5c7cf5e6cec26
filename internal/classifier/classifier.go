// Package classifier maps a raw prompt to a category.
//
// Classification is rule-based: case-insensitive substring matching against
// fixed keyword sets, checked in priority order. It is total: a prompt that
// matches nothing is "chat".
package classifier

import "strings"

// Category is a prompt category tag.
type Category string

const (
	Code         Category = "code"
	Creative     Category = "creative"
	Scientific   Category = "scientific"
	Analysis     Category = "analysis"
	Multilingual Category = "multilingual"
	Chat         Category = "chat"
)

var codeKeywords = []string{
	"python", "javascript", "java", "c++", "typescript", "ruby", "go", "rust", "php", "swift",
	"algorithm", "function", "code", "programming", "sorting", "loop", "array", "class", "object",
	"variable", "method", "implementation", "recursion", "iteration", "data structure", "binary",
	"compile", "debug", "syntax", "framework", "library", "api", "backend", "frontend", "fullstack",
	"database", "query", "sql", "nosql", "mongodb", "django", "flask", "react", "angular", "vue",
}

var creativeKeywords = []string{"story", "creative", "poem", "fiction", "imagine"}

var scientificKeywords = []string{"scientific", "research", "black hole", "physics", "theory", "experiment"}

var analysisKeywords = []string{"analyze", "compare", "data", "evaluation", "assessment"}

var multilingualKeywords = []string{"translate", "language", "spanish", "french", "multilingual"}

// ordered by priority; first match wins
var rules = []struct {
	category Category
	keywords []string
}{
	{Code, codeKeywords},
	{Creative, creativeKeywords},
	{Scientific, scientificKeywords},
	{Analysis, analysisKeywords},
	{Multilingual, multilingualKeywords},
}

// Classify returns the category for a prompt. It never fails; unmatched
// prompts are Chat.
func Classify(prompt string) Category {
	lower := strings.ToLower(prompt)

	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}

	return Chat
}

// Package cohort holds the category→backend-group tables.
//
// The tables are plain configuration: a built-in default set matching the
// hosted deployment, optionally replaced from a TOML file. The engine is
// parameterized over a Table so tests can substitute fake cohorts.
package cohort

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/quorum-ai/quorumd/internal/classifier"
)

// Cohort is an ordered set of backend ids queried together for one category.
type Cohort struct {
	Backends    []string `toml:"backends" json:"models"`
	Description string   `toml:"description" json:"description"`
}

// Table maps categories to cohorts and backend ids to provider model ids.
type Table struct {
	Groups    map[string]Cohort `toml:"groups"`
	Providers map[string]string `toml:"providers"`
}

// Default returns the built-in tables. Cohorts are kept at two backends to
// bound latency and cost; that is policy, not a constraint, and a TOML
// override may configure any size.
func Default() *Table {
	return &Table{
		Groups: map[string]Cohort{
			"code":         {Backends: []string{"gemini-flash", "dolphin-mistral"}, Description: "Code generation and analysis"},
			"creative":     {Backends: []string{"gemini-flash", "kimi-dev-72b"}, Description: "Creative writing and storytelling"},
			"scientific":   {Backends: []string{"gemini-flash", "nemotron-49b"}, Description: "Scientific analysis and research"},
			"chat":         {Backends: []string{"gemini-flash", "kimi-dev-72b"}, Description: "General conversation"},
			"analysis":     {Backends: []string{"gemini-flash", "dolphin-mistral"}, Description: "Data analysis and reasoning"},
			"multilingual": {Backends: []string{"gemini-flash", "sarvam-m"}, Description: "Translation and multilingual tasks"},
		},
		Providers: map[string]string{
			"dolphin-mistral": "cognitivecomputations/dolphin-mistral-24b-venice-edition:free",
			"kimi-dev-72b":    "moonshotai/kimi-dev-72b:free",
			"sarvam-m":        "sarvamai/sarvam-m:free",
			"glm-z1-32b":      "thudm/glm-z1-32b:free",
			"nemotron-49b":    "nvidia/llama-3.3-nemotron-super-49b-v1:free",
			"cypher-alpha":    "openrouter/cypher-alpha:free",
		},
	}
}

// Load reads a table from a TOML file and validates it.
func Load(path string) (*Table, error) {
	var t Table
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("decode cohort file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cohort file %s: %w", path, err)
	}
	return &t, nil
}

// Validate checks every cohort has at least one backend and no duplicates,
// and that a chat fallback group exists.
func (t *Table) Validate() error {
	if _, ok := t.Groups["chat"]; !ok {
		return fmt.Errorf("missing required chat group")
	}
	for name, g := range t.Groups {
		if len(g.Backends) == 0 {
			return fmt.Errorf("group %s has no backends", name)
		}
		seen := make(map[string]bool, len(g.Backends))
		for _, b := range g.Backends {
			if seen[b] {
				return fmt.Errorf("group %s lists backend %s twice", name, b)
			}
			seen[b] = true
		}
	}
	return nil
}

// Select returns the cohort for a category, falling back to chat for any
// unmapped category.
func (t *Table) Select(category classifier.Category) Cohort {
	if g, ok := t.Groups[string(category)]; ok {
		return g
	}
	return t.Groups["chat"]
}

// Provider returns the provider model id for a backend, if mapped.
func (t *Table) Provider(backend string) (string, bool) {
	id, ok := t.Providers[backend]
	return id, ok
}

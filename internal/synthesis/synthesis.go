// Package synthesis builds the consensus artifact from settled backend
// results.
package synthesis

import (
	"fmt"
	"strings"
	"time"

	"github.com/quorum-ai/quorumd/internal/backend"
	"github.com/quorum-ai/quorumd/internal/classifier"
	"github.com/quorum-ai/quorumd/internal/cohort"
)

// Presentation knobs. Interaction text quotes at most excerptLen bytes of a
// response, consensus summaries quote consensusExcerptLen, and no discussion
// carries more than maxInteractions interactions.
const (
	excerptLen          = 200
	consensusExcerptLen = 150
	maxInteractions     = 2
)

const noConsensus = "No consensus reached"

// Interaction is synthesized commentary from one backend about another.
type Interaction struct {
	Backend      string `json:"model"`
	RespondingTo string `json:"respondingTo"`
	Text         string `json:"text"`
	Kind         string `json:"type"`
}

// Discussion is the immutable consensus artifact returned to the caller and
// persisted by the gateway.
type Discussion struct {
	UserQuery         string              `json:"userQuery"`
	PromptType        classifier.Category `json:"promptType"`
	ModelGroup        string              `json:"modelGroup"`
	SelectedModels    []string            `json:"selectedModels"`
	InitialResponses  []backend.Result    `json:"initialResponses"`
	ModelInteractions []Interaction       `json:"modelInteractions"`
	FinalConsensus    string              `json:"finalConsensus"`
	Confidence        float64             `json:"confidence"`
	Timestamp         time.Time           `json:"timestamp"`
}

// Synthesize combines settled results into a Discussion. Confidence divides
// by cohort size, not attempted-call count; a member that errored still
// counts against confidence.
func Synthesize(prompt string, category classifier.Category, group cohort.Cohort, results []backend.Result) Discussion {
	var succeeded []backend.Result
	for _, r := range results {
		if r.OK() {
			succeeded = append(succeeded, r)
		}
	}

	confidence := 0.0
	if len(group.Backends) > 0 {
		confidence = float64(len(succeeded)) / float64(len(group.Backends))
	}

	return Discussion{
		UserQuery:         prompt,
		PromptType:        category,
		ModelGroup:        group.Description,
		SelectedModels:    group.Backends,
		InitialResponses:  results,
		ModelInteractions: interactions(succeeded),
		FinalConsensus:    consensus(category, succeeded),
		Confidence:        confidence,
		Timestamp:         time.Now().UTC(),
	}
}

// interactions builds at most maxInteractions commentary records: the first
// succeeded backend responds to the second, then the third responds to the
// first. Cohort order of the succeeded set is preserved in the references.
func interactions(succeeded []backend.Result) []Interaction {
	if len(succeeded) < 2 {
		return nil
	}

	out := make([]Interaction, 0, maxInteractions)
	out = append(out, Interaction{
		Backend:      succeeded[0].Backend,
		RespondingTo: succeeded[1].Backend,
		Text: fmt.Sprintf("%s responds:\n\n%s...\n\nI agree with %s's approach and would add this perspective.",
			succeeded[0].Backend, backend.Excerpt(succeeded[0].Text, excerptLen), succeeded[1].Backend),
		Kind: "detailed_response",
	})

	if len(succeeded) >= 3 {
		out = append(out, Interaction{
			Backend:      succeeded[2].Backend,
			RespondingTo: succeeded[0].Backend,
			Text: fmt.Sprintf("%s synthesis:\n\n%s...\n\nBuilding on both perspectives above.",
				succeeded[2].Backend, backend.Excerpt(succeeded[2].Text, excerptLen)),
			Kind: "detailed_synthesis",
		})
	}

	return out
}

func consensus(category classifier.Category, succeeded []backend.Result) string {
	if len(succeeded) == 0 {
		return noConsensus
	}

	previews := make([]string, len(succeeded))
	for i, r := range succeeded {
		previews[i] = fmt.Sprintf("%s: %s...", r.Backend, backend.Excerpt(r.Text, consensusExcerptLen))
	}

	return fmt.Sprintf("%s CONSENSUS:\n\nBased on %d AI model analysis:\n\n%s",
		strings.ToUpper(string(category)), len(succeeded), strings.Join(previews, "\n\n"))
}

package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
)

// StageSummary is one stage's line in the final report.
type StageSummary struct {
	Kind      store.Kind
	Iteration int
	TokensIn  int
	TokensOut int
	Resumed   bool
	Validated bool
	Score     float64
	Passed    bool
}

// FinalInput carries everything the final report renders.
type FinalInput struct {
	RunID           string
	Version         string
	Requirements    string
	CompletedAt     time.Time
	Duration        time.Duration
	TotalTokensIn   int
	TotalTokensOut  int
	CompletionCalls int
	Stages          []StageSummary
	RetrievalDocs   int // -1 when retrieval is disabled
	AllPassing      bool
}

// RenderFinal produces the human-readable final report in markdown.
func RenderFinal(in FinalInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Build Report: %s\n\n", in.RunID)
	fmt.Fprintf(&b, "- Version: %s\n", in.Version)
	fmt.Fprintf(&b, "- Completed: %s\n", in.CompletedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n", in.Duration.Round(time.Millisecond))
	if in.AllPassing {
		fmt.Fprintf(&b, "- Outcome: all artifacts passing\n\n")
	} else {
		fmt.Fprintf(&b, "- Outcome: completed with validation failures\n\n")
	}

	fmt.Fprintf(&b, "## Requirements\n\n%s\n\n", strings.TrimSpace(in.Requirements))

	fmt.Fprintf(&b, "## Stages\n\n")
	fmt.Fprintf(&b, "| Stage | Iteration | Tokens in/out | Validation |\n")
	fmt.Fprintf(&b, "|-------|-----------|---------------|------------|\n")
	for _, st := range in.Stages {
		validation := "n/a"
		if st.Validated {
			verdict := "fail"
			if st.Passed {
				verdict = "pass"
			}
			validation = fmt.Sprintf("%.2f (%s)", st.Score, verdict)
		}
		tokens := fmt.Sprintf("%d / %d", st.TokensIn, st.TokensOut)
		if st.Resumed {
			tokens = "resumed"
		}
		fmt.Fprintf(&b, "| %s | %d | %s | %s |\n", st.Kind, st.Iteration, tokens, validation)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Usage\n\n")
	fmt.Fprintf(&b, "- Completion calls: %d\n", in.CompletionCalls)
	fmt.Fprintf(&b, "- Total tokens in: %d\n", in.TotalTokensIn)
	fmt.Fprintf(&b, "- Total tokens out: %d\n", in.TotalTokensOut)
	if in.RetrievalDocs >= 0 {
		fmt.Fprintf(&b, "- Retrieval index documents: %d\n", in.RetrievalDocs)
	}

	return b.String()
}

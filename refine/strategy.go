package refine

import "strings"

// Strategy classifies what kind of improvement a feedback text asks for.
// The classification is folded into the regeneration prompt so the model
// focuses on the right axis.
type Strategy string

// Refinement strategies.
const (
	StrategyStructure    Strategy = "structure"
	StrategyClarity      Strategy = "clarity"
	StrategyCompleteness Strategy = "completeness"
	StrategyContent      Strategy = "content"
)

var strategyKeywords = map[Strategy][]string{
	StrategyStructure:    {"structure", "organize", "organization", "section", "reorder", "format", "header"},
	StrategyClarity:      {"clarify", "clarity", "unclear", "confusing", "ambiguous", "vague", "simplify"},
	StrategyCompleteness: {"missing", "incomplete", "add", "include", "expand", "more detail", "coverage"},
}

// Classify picks the dominant strategy for a feedback text by keyword
// hits, defaulting to content-level improvement.
func Classify(feedback string) Strategy {
	lower := strings.ToLower(feedback)

	best := StrategyContent
	bestHits := 0
	// Deterministic order regardless of map iteration.
	for _, strategy := range []Strategy{StrategyStructure, StrategyClarity, StrategyCompleteness} {
		hits := 0
		for _, kw := range strategyKeywords[strategy] {
			hits += strings.Count(lower, kw)
		}
		if hits > bestHits {
			best = strategy
			bestHits = hits
		}
	}
	return best
}

// Hint returns a one-line instruction for the strategy, suitable for
// prepending to a regeneration prompt.
func (s Strategy) Hint() string {
	switch s {
	case StrategyStructure:
		return "Focus on document structure: reorganize sections and headers for a logical flow."
	case StrategyClarity:
		return "Focus on clarity: rewrite confusing or ambiguous passages in plain language."
	case StrategyCompleteness:
		return "Focus on completeness: add the missing sections and details called out in the feedback."
	default:
		return "Improve the substance of the content based on the feedback."
	}
}

package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Open-Mobile-Kit/ba-ai-builder/refine"
	"github.com/Open-Mobile-Kit/ba-ai-builder/retrieval"
	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
	"github.com/Open-Mobile-Kit/ba-ai-builder/validate"
)

// promptNames maps stage kinds to their prompt template names.
var promptNames = map[StageKind]string{
	StageAnalysis:     "analysis",
	StageArchitecture: "architecture",
	StageFeaturePlan:  "features",
	StageBRD:          "brd",
	StageSRS:          "srs",
}

// runStage executes one stage invocation: dependency check, context
// assembly, exactly one completion call (retried on transient failure, never
// issued twice concurrently), and atomic persistence of the result.
//
// Nothing is persisted when the completion fails or the context is
// cancelled, so an aborted call never leaves a partial artifact behind.
func runStage(ctx context.Context, state *BuildState, kind StageKind, iteration int, feedback string) (*store.Artifact, StageOutcome, error) {
	var outcome StageOutcome

	st := StoreFromContext(ctx)
	if st == nil {
		return nil, outcome, ErrNoStore
	}
	client := LLMFromContext(ctx)
	if client == nil {
		return nil, outcome, ErrNoLLMClient
	}

	// Gather inputs before anything external happens. A missing dependency
	// must fail fast with zero completion calls.
	deps := Dependencies(kind)
	inputs := make([]*store.Artifact, 0, len(deps))
	for _, dep := range deps {
		in, err := st.Latest(state.RunID, dep)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, outcome, fmt.Errorf("%w: stage %s requires %s", ErrDependencyMissing, kind, dep)
			}
			return nil, outcome, err
		}
		inputs = append(inputs, in)
	}

	// Per-stage model selection: an explicit config override wins,
	// otherwise the stage's tier picks it.
	opts := state.Options
	opts.Model = string(ModelForStage(kind, opts.Model))

	req := &StageRequest{
		RunID:     state.RunID,
		Kind:      kind,
		Iteration: iteration,
		Inputs:    inputs,
		Feedback:  feedback,
		Options:   opts,
	}
	if err := req.checkInputs(); err != nil {
		return nil, outcome, err
	}

	instruction, err := stageInstruction(ctx, state, kind, feedback)
	if err != nil {
		return nil, outcome, err
	}

	matches := queryRetrieval(ctx, state, kind, instruction)

	userPrompt := instruction
	if contextBlock := assembleContext(req, matches); contextBlock != "" {
		userPrompt = instruction + "\n\n" + contextBlock
	}

	var systemPrompt string
	if loader := PromptLoaderFromContext(ctx); loader != nil {
		if sp, err := loader.Load(promptNames[kind] + "_system"); err == nil {
			systemPrompt = sp
		}
	}

	resp, attempts, err := complete(ctx, client, systemPrompt, userPrompt, req.Options)
	if err != nil {
		return nil, outcome, &StageError{Stage: kind, Iteration: iteration, Attempts: attempts, Err: err}
	}

	if kind == StageBRD || kind == StageSRS {
		logMissingSections(state.RunID, kind, resp.Content)
	}

	art, err := st.Put(state.RunID, kind, iteration, resp.Content, req.sourceRefs())
	if err != nil {
		return nil, outcome, err
	}

	if idx := RetrievalFromContext(ctx); idx != nil {
		if err := idx.Add(ctx, art); err != nil {
			slog.Warn("retrieval index add failed", "runId", state.RunID, "kind", kind, "error", err)
		}
	}

	outcome = StageOutcome{
		Iteration:   art.Iteration,
		Digest:      art.Digest,
		TokensIn:    resp.Usage.InputTokens,
		TokensOut:   resp.Usage.OutputTokens,
		Attempts:    attempts,
		GeneratedAt: art.CreatedAt,
	}
	return art, outcome, nil
}

// stageInstruction renders the stage prompt. Refinement runs get the
// regeneration preamble with a strategy hint classified from the feedback.
func stageInstruction(ctx context.Context, state *BuildState, kind StageKind, feedback string) (string, error) {
	loader := PromptLoaderFromContext(ctx)
	if loader == nil {
		loader = NewPromptLoader(".")
	}

	name, ok := promptNames[kind]
	if !ok {
		return "", fmt.Errorf("no prompt for stage %s", kind)
	}

	vars := map[string]any{}
	if kind == StageAnalysis {
		vars["Requirements"] = state.Requirements
	}

	instruction, err := loader.LoadWithVars(name, vars)
	if err != nil {
		return "", err
	}

	var parts []string

	if strings.TrimSpace(feedback) != "" {
		strategy := refine.Classify(feedback)
		preamble, err := loader.LoadWithVars("refine", map[string]any{
			"Kind":         string(kind),
			"StrategyHint": strategy.Hint(),
		})
		if err != nil {
			return "", err
		}
		parts = append(parts, preamble)
	}

	parts = append(parts, instruction)

	// Business context supplement for the analysis stage.
	if kind == StageAnalysis && (state.Context["business_needs"] != "" || state.Context["market_position"] != "") {
		supplement, err := loader.LoadWithVars("business", map[string]any{
			"BusinessNeeds":  orDefault(state.Context["business_needs"], "not specified"),
			"MarketPosition": orDefault(state.Context["market_position"], "not specified"),
		})
		if err != nil {
			return "", err
		}
		parts = append(parts, supplement)
	}

	if kind == StageFeaturePlan && state.DetailedFeatures {
		detailed, err := loader.Load("features_detailed")
		if err != nil {
			return "", err
		}
		parts = append(parts, detailed)
	}

	return strings.Join(parts, "\n\n"), nil
}

// queryRetrieval fetches cross-run context. Retrieval failures degrade to no
// extra context; they never fail the stage.
func queryRetrieval(ctx context.Context, state *BuildState, kind StageKind, instruction string) []retrieval.Match {
	idx := RetrievalFromContext(ctx)
	if idx == nil || state.RetrievalTopK <= 0 {
		return nil
	}

	query := state.Requirements
	if kind != StageAnalysis {
		query = instruction + "\n" + state.Requirements
	}

	matches, err := idx.Query(ctx, query, state.RetrievalTopK)
	if err != nil {
		slog.Warn("retrieval query failed", "runId", state.RunID, "kind", kind, "error", err)
		return nil
	}

	// Never feed a run its own artifacts back as "related" context.
	filtered := matches[:0]
	for _, m := range matches {
		if m.RunID != state.RunID {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

// logMissingSections surfaces absent required sections at generation time.
// Missing sections are a validator finding, not a parse failure; the raw
// text is kept verbatim either way.
func logMissingSections(runID string, kind StageKind, content string) {
	lower := strings.ToLower(content)
	var missing []string
	for _, section := range validate.RequiredSections(kind) {
		if !strings.Contains(lower, strings.ToLower(section)) {
			missing = append(missing, section)
		}
	}
	if len(missing) > 0 {
		slog.Debug("generated document is missing sections",
			"runId", runID, "kind", kind, "missing", strings.Join(missing, ", "))
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

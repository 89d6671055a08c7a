package builder

import (
	"errors"
	"time"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"

	"github.com/Open-Mobile-Kit/ba-ai-builder/report"
	"github.com/Open-Mobile-Kit/ba-ai-builder/retrieval"
	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
)

// FinalReportNode assembles the human-readable build report and persists it
// as the run's final artifact.
func FinalReportNode(ctx flowgraph.Context, state BuildState) (BuildState, error) {
	state.Phase = PhaseReporting

	st := StoreFromContext(ctx)
	if st == nil {
		state.Fail(store.KindFinalReport, ErrNoStore)
		return state, ErrNoStore
	}

	state.Metrics.TotalDuration = time.Since(state.Metrics.StartTime)

	input := report.FinalInput{
		RunID:           state.RunID,
		Version:         state.Version,
		Requirements:    state.Requirements,
		CompletedAt:     time.Now(),
		Duration:        state.Metrics.TotalDuration,
		TotalTokensIn:   state.Metrics.TotalTokensIn,
		TotalTokensOut:  state.Metrics.TotalTokensOut,
		CompletionCalls: state.Metrics.CompletionCalls,
		RetrievalDocs:   -1,
		AllPassing:      state.Passing(),
	}

	for _, kind := range RefinableStages {
		outcome, ok := state.Stages[kind]
		if !ok {
			continue
		}
		summary := report.StageSummary{
			Kind:      kind,
			Iteration: outcome.Iteration,
			TokensIn:  outcome.TokensIn,
			TokensOut: outcome.TokensOut,
			Resumed:   outcome.Resumed,
		}
		if rep, ok := state.Reports[kind]; ok {
			summary.Validated = true
			summary.Score = rep.Score
			summary.Passed = rep.Passed
			summary.Iteration = rep.Iteration
		}
		input.Stages = append(input.Stages, summary)
	}

	if idx, ok := RetrievalFromContext(ctx).(*retrieval.Local); ok && idx != nil {
		input.RetrievalDocs = idx.Stats().Documents
	}

	content := report.RenderFinal(input)

	iteration := 0
	if latest, err := st.Latest(state.RunID, store.KindFinalReport); err == nil {
		iteration = latest.Iteration + 1
	} else if !errors.Is(err, store.ErrNotFound) {
		state.Fail(store.KindFinalReport, err)
		return state, err
	}

	art, err := st.Put(state.RunID, store.KindFinalReport, iteration, content, nil)
	if err != nil {
		state.Fail(store.KindFinalReport, err)
		return state, err
	}

	state.RecordStage(store.KindFinalReport, StageOutcome{
		Iteration:   art.Iteration,
		Digest:      art.Digest,
		GeneratedAt: art.CreatedAt,
	})
	state.Phase = PhaseCompleted
	return state, nil
}

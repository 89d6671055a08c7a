package builder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"

	"github.com/Open-Mobile-Kit/ba-ai-builder/notify"
	"github.com/Open-Mobile-Kit/ba-ai-builder/refine"
	"github.com/Open-Mobile-Kit/ba-ai-builder/report"
	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
	"github.com/Open-Mobile-Kit/ba-ai-builder/validate"
)

// ValidateNode scores every produced artifact and, when a document fails,
// drives the refinement loop for it. A run whose refinement budget is
// exhausted still completes; the failing report is recorded so the final
// report and exit status expose it. Validation failure is an outcome here,
// never an error.
func ValidateNode(ctx flowgraph.Context, state BuildState) (BuildState, error) {
	state.Phase = PhaseValidating

	if !state.ValidationEnabled {
		slog.Info("validation disabled, skipping", "runId", state.RunID)
		return state, nil
	}

	st := StoreFromContext(ctx)
	if st == nil {
		state.Fail(store.KindValidation, ErrNoStore)
		return state, ErrNoStore
	}

	validator := validate.New(state.Threshold)
	loop := refine.New(validator, state.RefineBudget)
	loop.OnReport = func(rep validate.Report) error {
		return report.SaveValidation(st, rep)
	}

	for _, kind := range RefinableStages {
		art, err := st.Latest(state.RunID, kind)
		if err != nil {
			state.Fail(store.KindValidation, fmt.Errorf("validate %s: %w", kind, err))
			return state, err
		}

		rep := validator.Validate(art)
		if rep.Passed {
			if err := report.SaveValidation(st, rep); err != nil {
				state.Fail(store.KindValidation, err)
				return state, err
			}
			state.Reports[kind] = rep
			continue
		}

		// The failing report is persisted too; every scored artifact
		// version keeps its report on disk.
		if err := report.SaveValidation(st, rep); err != nil {
			state.Fail(store.KindValidation, err)
			return state, err
		}

		notifyValidationFailed(ctx, state.RunID, rep)

		result, err := refineStage(ctx, &state, loop, kind, rep.FeedbackText(), art.Iteration+1)
		if err != nil {
			state.Fail(kind, err)
			return state, err
		}
		state.Reports[kind] = result.Report

		if !result.Accepted() {
			notifyExhausted(ctx, state.RunID, kind, result)
		}
	}

	return state, nil
}

// refineStage runs the refinement loop for one stage kind, threading each
// regeneration through runStage so every iteration is persisted and
// metered like a first-pass generation.
func refineStage(ctx context.Context, state *BuildState, loop *refine.Loop, kind StageKind, seedFeedback string, startIteration int) (*refine.Result, error) {
	gen := func(genCtx context.Context, iteration int, feedback string) (*store.Artifact, error) {
		art, outcome, err := runStage(genCtx, state, kind, iteration, feedback)
		if err != nil {
			return nil, err
		}
		state.RecordStage(kind, outcome)
		return art, nil
	}

	return loop.Run(ctx, kind, seedFeedback, startIteration, gen)
}

func notifyValidationFailed(ctx context.Context, runID string, rep validate.Report) {
	event := notify.Event{
		Type:      notify.EventValidationFailed,
		RunID:     runID,
		Stage:     string(rep.Kind),
		Iteration: rep.Iteration,
		Severity:  notify.SeverityWarning,
		Message:   fmt.Sprintf("%s iteration %d scored %.2f, refining", rep.Kind, rep.Iteration, rep.Score),
		Timestamp: time.Now(),
	}
	if err := NotifierFromContext(ctx).Notify(ctx, event); err != nil {
		slog.Warn("validation notification failed", "error", err)
	}
}

func notifyExhausted(ctx context.Context, runID string, kind StageKind, result *refine.Result) {
	event := notify.Event{
		Type:      notify.EventRefinementExhausted,
		RunID:     runID,
		Stage:     string(kind),
		Iteration: result.Report.Iteration,
		Severity:  notify.SeverityWarning,
		Message: fmt.Sprintf("refinement budget exhausted for %s after %d attempts, final score %.2f",
			kind, result.Attempts, result.Report.Score),
		Timestamp: time.Now(),
	}
	if err := NotifierFromContext(ctx).Notify(ctx, event); err != nil {
		slog.Warn("refinement notification failed", "error", err)
	}
}

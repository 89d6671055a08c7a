package builder

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"

	"github.com/Open-Mobile-Kit/ba-ai-builder/notify"
	"github.com/Open-Mobile-Kit/ba-ai-builder/report"
	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
)

// =============================================================================
// Node Types
// =============================================================================

// NodeFunc is a function that processes state and returns updated state.
// This signature is compatible with flowgraph's NodeFunc[BuildState].
type NodeFunc func(ctx flowgraph.Context, state BuildState) (BuildState, error)

// =============================================================================
// Node Wrappers
// =============================================================================

// WithTiming wraps a node with timing metrics
func WithTiming(node NodeFunc) NodeFunc {
	return func(ctx flowgraph.Context, state BuildState) (BuildState, error) {
		start := time.Now()
		result, err := node(ctx, state)
		duration := time.Since(start)
		slog.Debug("node execution completed", "runId", state.RunID, "duration", duration)
		return result, err
	}
}

// WithNotify wraps a node with stage event notifications.
func WithNotify(node NodeFunc, stage string) NodeFunc {
	return func(ctx flowgraph.Context, state BuildState) (BuildState, error) {
		result, err := node(ctx, state)

		notifier := NotifierFromContext(ctx)
		event := notify.Event{
			RunID:     state.RunID,
			Stage:     stage,
			Timestamp: time.Now(),
		}
		if err != nil {
			event.Type = notify.EventStageFailed
			event.Severity = notify.SeverityError
			event.Message = fmt.Sprintf("stage %s failed: %v", stage, err)
		} else {
			event.Type = notify.EventStageCompleted
			event.Severity = notify.SeverityInfo
			event.Message = fmt.Sprintf("stage %s completed", stage)
		}
		if nerr := notifier.Notify(ctx, event); nerr != nil {
			slog.Warn("stage notification failed", "stage", stage, "error", nerr)
		}

		return result, err
	}
}

// =============================================================================
// Shared Stage Execution
// =============================================================================

// satisfiedOutcome checks whether a stage's current artifact already meets
// its acceptance rule: it exists and, when validation is enabled and a
// report exists for it, that report passed. Satisfied stages are skipped on
// resume with zero completion calls.
//
// The returned iteration is the version number a regeneration should use
// when the stage is not satisfied.
func satisfiedOutcome(ctx flowgraph.Context, state BuildState, kind StageKind) (StageOutcome, int, bool, error) {
	st := StoreFromContext(ctx)
	if st == nil {
		return StageOutcome{}, 0, false, ErrNoStore
	}

	art, err := st.Latest(state.RunID, kind)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return StageOutcome{}, 0, false, nil // first pass, iteration 0
		}
		return StageOutcome{}, 0, false, err
	}

	outcome := StageOutcome{
		Iteration:   art.Iteration,
		Digest:      art.Digest,
		Resumed:     true,
		GeneratedAt: art.CreatedAt,
	}

	if !state.ValidationEnabled {
		return outcome, 0, true, nil
	}

	rep, err := report.LoadValidation(st, state.RunID, kind, art.Iteration)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Generated but never validated; keep it, the validation
			// phase will score it.
			return outcome, 0, true, nil
		}
		return StageOutcome{}, 0, false, err
	}
	if rep.Passed {
		return outcome, 0, true, nil
	}

	// Current artifact failed validation; regenerate as the next iteration.
	return StageOutcome{}, art.Iteration + 1, false, nil
}

// stageNode runs one generation stage with resume handling and failure
// bookkeeping. All single-document stage nodes share it.
func stageNode(ctx flowgraph.Context, state BuildState, kind StageKind, phase Phase) (BuildState, error) {
	state.Phase = phase

	if err := state.Validate(RequireRunID, RequireRequirements); err != nil {
		state.Fail(kind, err)
		return state, err
	}

	outcome, iteration, satisfied, err := satisfiedOutcome(ctx, state, kind)
	if err != nil {
		state.Fail(kind, err)
		return state, err
	}
	if satisfied {
		slog.Info("stage already satisfied, skipping", "runId", state.RunID, "kind", kind, "iteration", outcome.Iteration)
		state.RecordStage(kind, outcome)
		return state, nil
	}

	_, outcome, err = runStage(ctx, &state, kind, iteration, "")
	if err != nil {
		state.Fail(kind, err)
		return state, err
	}

	state.RecordStage(kind, outcome)
	return state, nil
}

// =============================================================================
// Stage Nodes
// =============================================================================

// AnalyzeNode produces the requirements analysis.
//
// Prerequisites: state.Requirements must be set
// Updates: state.Stages[analysis], token metrics
func AnalyzeNode(ctx flowgraph.Context, state BuildState) (BuildState, error) {
	return stageNode(ctx, state, StageAnalysis, PhaseAnalyzing)
}

// ArchitectNode produces the architecture design from the analysis.
func ArchitectNode(ctx flowgraph.Context, state BuildState) (BuildState, error) {
	return stageNode(ctx, state, StageArchitecture, PhaseArchitecting)
}

// PlanFeaturesNode produces the feature plan from analysis and architecture.
func PlanFeaturesNode(ctx flowgraph.Context, state BuildState) (BuildState, error) {
	return stageNode(ctx, state, StageFeaturePlan, PhasePlanningFeatures)
}

package builder

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
	"golang.org/x/sync/errgroup"

	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
)

// DraftDocumentsNode produces the BRD and SRS. Both depend only on the
// feature plan chain, so once that exists they are drafted concurrently.
// Execution order between the two is unspecified and nothing may depend on
// it; each lands in the store under its own key.
func DraftDocumentsNode(ctx flowgraph.Context, state BuildState) (BuildState, error) {
	state.Phase = PhaseDrafting

	if err := state.Validate(RequireRunID, RequireStage(StageAnalysis), RequireStage(StageArchitecture), RequireStage(StageFeaturePlan)); err != nil {
		state.Fail(StageBRD, err)
		return state, err
	}

	type docResult struct {
		kind    StageKind
		outcome StageOutcome
	}

	var (
		mu      sync.Mutex
		results []docResult
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range []StageKind{StageBRD, StageSRS} {
		outcome, iteration, satisfied, err := satisfiedOutcome(ctx, state, kind)
		if err != nil {
			state.Fail(kind, err)
			return state, err
		}
		if satisfied {
			slog.Info("stage already satisfied, skipping", "runId", state.RunID, "kind", kind, "iteration", outcome.Iteration)
			state.RecordStage(kind, outcome)
			continue
		}

		g.Go(func() error {
			// Nodes receive state by value; each goroutine works on its
			// own copy and only the collected outcome is merged back.
			local := state
			_, outcome, err := runStage(gctx, &local, kind, iteration, "")
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, docResult{kind: kind, outcome: outcome})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		kind := failedDocumentKind(err)
		state.Fail(kind, err)
		return state, err
	}

	for _, r := range results {
		state.RecordStage(r.kind, r.outcome)
	}
	return state, nil
}

// failedDocumentKind extracts which document stage an error belongs to,
// defaulting to the BRD when the error carries no stage.
func failedDocumentKind(err error) store.Kind {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return StageBRD
}

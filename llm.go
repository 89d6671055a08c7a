package builder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	llm "github.com/randalmurphal/llmkit/claude"
	"github.com/randalmurphal/llmkit/model"
)

// stageTiers maps stage kinds to model tiers. Analysis and architecture
// carry the reasoning weight of the pipeline; document drafting is routine
// generation against an existing plan.
var stageTiers = map[StageKind]model.Tier{
	StageAnalysis:     model.TierThinking,
	StageArchitecture: model.TierThinking,
	StageFeaturePlan:  model.TierDefault,
	StageBRD:          model.TierDefault,
	StageSRS:          model.TierDefault,
}

// TierForStage returns the model tier for a stage kind.
func TierForStage(kind StageKind) model.Tier {
	if tier, ok := stageTiers[kind]; ok {
		return tier
	}
	return model.TierDefault
}

// ModelForStage selects the model for a stage. An explicit override from
// configuration wins; otherwise the stage's tier picks the default.
func ModelForStage(kind StageKind, override string) model.ModelName {
	if override != "" {
		return model.ModelName(override)
	}
	switch TierForStage(kind) {
	case model.TierThinking:
		return model.ModelOpus
	case model.TierFast:
		return model.ModelHaiku
	default:
		return model.ModelSonnet
	}
}

// OptionsClient is implemented by completion clients that honour per-call
// generation options (model, temperature, output budget). Clients apply
// what their backend supports and ignore the rest.
type OptionsClient interface {
	CompleteWithOptions(ctx context.Context, req llm.CompletionRequest, opts CompletionOptions) (*llm.CompletionResponse, error)
}

// retryBaseDelay is the first backoff delay; each retry doubles it.
const retryBaseDelay = 500 * time.Millisecond

// complete issues one completion call with the request timeout applied,
// retrying transient failures with exponential backoff up to
// opts.MaxRetries total attempts. Fatal failures are never retried. The
// returned attempt count covers failed attempts too.
//
// A timed-out call counts as a transient failure, never as a successful
// empty result. The call is issued strictly sequentially: a retry only
// starts after the previous attempt has failed.
func complete(ctx context.Context, client llm.Client, systemPrompt, userPrompt string, opts CompletionOptions) (*llm.CompletionResponse, int, error) {
	if client == nil {
		return nil, 0, ErrNoLLMClient
	}

	maxAttempts := opts.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: userPrompt}},
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt - 1, err
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		var resp *llm.CompletionResponse
		var err error
		if oc, ok := client.(OptionsClient); ok {
			resp, err = oc.CompleteWithOptions(callCtx, req, opts)
		} else {
			resp, err = client.Complete(callCtx, req)
		}
		cancel()

		if err == nil {
			if resp == nil || resp.Content == "" {
				return nil, attempt, ErrEmptyCompletion
			}
			return resp, attempt, nil
		}

		// The parent being cancelled is not a transient provider failure.
		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}

		lastErr = err
		if IsFatal(err) || !IsTransient(err) {
			return nil, attempt, fmt.Errorf("%w: %v", ErrCompletionFatal, err)
		}
		if attempt == maxAttempts {
			break
		}

		delay := retryBaseDelay << (attempt - 1)
		slog.Warn("transient completion failure, retrying",
			"attempt", attempt,
			"maxAttempts", maxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		}
	}

	return nil, maxAttempts, fmt.Errorf("%w: %d attempts: %v", ErrCompletionTransient, maxAttempts, lastErr)
}

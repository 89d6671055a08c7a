package builder

import (
	"fmt"
	"strings"
	"time"

	"github.com/Open-Mobile-Kit/ba-ai-builder/retrieval"
	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
)

// StageKind aliases the store's artifact kind; stages and their outputs are
// identified by the same enum.
type StageKind = store.Kind

// Stage kinds re-exported for callers of the root package.
const (
	StageAnalysis     = store.KindAnalysis
	StageArchitecture = store.KindArchitecture
	StageFeaturePlan  = store.KindFeaturePlan
	StageBRD          = store.KindBRD
	StageSRS          = store.KindSRS
)

// stageDeps declares each stage's required input kinds in dependency order,
// leaves first. A stage may only run once every listed kind has a current
// artifact.
var stageDeps = map[StageKind][]StageKind{
	StageAnalysis:     nil,
	StageArchitecture: {StageAnalysis},
	StageFeaturePlan:  {StageAnalysis, StageArchitecture},
	StageBRD:          {StageAnalysis, StageArchitecture, StageFeaturePlan},
	StageSRS:          {StageAnalysis, StageArchitecture, StageFeaturePlan},
}

// Dependencies returns the input kinds a stage requires, leaves first.
func Dependencies(kind StageKind) []StageKind {
	return stageDeps[kind]
}

// RefinableStages lists the stage kinds a user may refine.
var RefinableStages = []StageKind{StageAnalysis, StageArchitecture, StageFeaturePlan, StageBRD, StageSRS}

// CompletionOptions is the per-call configuration snapshot for one
// completion request.
type CompletionOptions struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

// StageRequest describes one stage invocation. It is ephemeral: built for
// the call, never persisted.
type StageRequest struct {
	RunID     string
	Kind      StageKind
	Iteration int
	Inputs    []*store.Artifact // ordered to match Dependencies(Kind)
	Feedback  string            // accumulated refinement feedback, empty on first pass
	Options   CompletionOptions
}

// checkInputs verifies the request carries a current artifact for every
// declared dependency, in order. Fails before any external call is made.
func (r *StageRequest) checkInputs() error {
	deps := Dependencies(r.Kind)
	if len(r.Inputs) < len(deps) {
		return fmt.Errorf("%w: stage %s requires %v, got %d inputs",
			ErrDependencyMissing, r.Kind, deps, len(r.Inputs))
	}
	for i, dep := range deps {
		in := r.Inputs[i]
		if in == nil {
			return fmt.Errorf("%w: stage %s input %s is nil", ErrDependencyMissing, r.Kind, dep)
		}
		if in.Kind != dep {
			return fmt.Errorf("%w: stage %s input %d is %s, want %s",
				ErrDependencyMissing, r.Kind, i, in.Kind, dep)
		}
	}
	return nil
}

// sourceRefs converts the request inputs to artifact source references.
func (r *StageRequest) sourceRefs() []store.Ref {
	refs := make([]store.Ref, 0, len(r.Inputs))
	for _, in := range r.Inputs {
		refs = append(refs, store.Ref{Kind: in.Kind, Iteration: in.Iteration})
	}
	return refs
}

// assembleContext builds the outbound prompt context. Order matters: direct
// dependencies first (leaves first), then retrieved cross-run context, then
// feedback last, because the model weighs later context more heavily for
// corrections.
func assembleContext(req *StageRequest, retrieved []retrieval.Match) string {
	var b strings.Builder

	for _, in := range req.Inputs {
		fmt.Fprintf(&b, "## Prior artifact: %s (iteration %d)\n\n%s\n\n", in.Kind, in.Iteration, in.Content)
	}

	for _, m := range retrieved {
		fmt.Fprintf(&b, "## Related content from run %s (%s, similarity %.2f)\n\n%s\n\n",
			m.RunID, m.Kind, m.Score, m.Content)
	}

	if strings.TrimSpace(req.Feedback) != "" {
		fmt.Fprintf(&b, "## Feedback to address\n\n%s\n", req.Feedback)
	}

	return b.String()
}

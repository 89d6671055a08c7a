package builder

import (
	"fmt"
	"time"

	"github.com/Open-Mobile-Kit/ba-ai-builder/config"
	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
	"github.com/Open-Mobile-Kit/ba-ai-builder/validate"
)

// =============================================================================
// Pipeline Phases
// =============================================================================

// Phase is the orchestrator's top-level state.
type Phase string

// Pipeline phases, in order. PhaseFailed is absorbing: reachable from any
// non-terminal phase, never left.
const (
	PhaseCreated          Phase = "created"
	PhaseAnalyzing        Phase = "analyzing"
	PhaseArchitecting     Phase = "architecting"
	PhasePlanningFeatures Phase = "planning_features"
	PhaseDrafting         Phase = "drafting"
	PhaseValidating       Phase = "validating"
	PhaseReporting        Phase = "reporting"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
)

// =============================================================================
// Embeddable State Components
// =============================================================================

// StageOutcome records one stage's completed work within a run.
type StageOutcome struct {
	Iteration   int       `json:"iteration"`
	Digest      string    `json:"digest,omitempty"`
	TokensIn    int       `json:"tokensIn,omitempty"`
	TokensOut   int       `json:"tokensOut,omitempty"`
	Attempts    int       `json:"attempts,omitempty"` // completion attempts consumed
	Resumed     bool      `json:"resumed,omitempty"`  // satisfied by a prior run, no new call
	GeneratedAt time.Time `json:"generatedAt,omitempty"`
}

// MetricsState tracks execution metrics
type MetricsState struct {
	TotalTokensIn   int           `json:"totalTokensIn"`
	TotalTokensOut  int           `json:"totalTokensOut"`
	CompletionCalls int           `json:"completionCalls"`
	StartTime       time.Time     `json:"startTime"`
	TotalDuration   time.Duration `json:"totalDuration"`
}

// =============================================================================
// BuildState
// =============================================================================

// BuildState is the workflow state threaded through flowgraph nodes. Nodes
// receive it by value, update their slice of it, and return it.
type BuildState struct {
	RunID        string            `json:"runId"`
	Version      string            `json:"version"`
	Requirements string            `json:"requirements"`
	Context      map[string]string `json:"context,omitempty"`
	Phase        Phase             `json:"phase"`

	// Configuration snapshot, fixed at run start.
	Options           CompletionOptions `json:"-"`
	ValidationEnabled bool              `json:"validationEnabled"`
	Threshold         float64           `json:"threshold"`
	RefineBudget      int               `json:"refineBudget"`
	RetrievalTopK     int               `json:"retrievalTopK"`
	DetailedFeatures  bool              `json:"detailedFeatures"`

	Stages  map[store.Kind]StageOutcome    `json:"stages"`
	Reports map[store.Kind]validate.Report `json:"reports,omitempty"`

	Metrics MetricsState `json:"metrics"`

	// Failure bookkeeping, set when entering PhaseFailed.
	FailedStage store.Kind `json:"failedStage,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// NewBuildState creates the state for a run with the configuration snapshot
// applied.
func NewBuildState(run store.Run, cfg config.Config) BuildState {
	return BuildState{
		RunID:        run.ID,
		Version:      run.Version,
		Requirements: run.Requirements,
		Context:      run.Context,
		Phase:        PhaseCreated,
		Options: CompletionOptions{
			Provider:    cfg.LLM.Provider,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
			MaxRetries:  cfg.LLM.MaxRetries,
		},
		ValidationEnabled: cfg.Validation.Enabled,
		Threshold:         cfg.Validation.Threshold,
		RefineBudget:      cfg.Refinement.Budget,
		RetrievalTopK:     cfg.Retrieval.TopK,
		DetailedFeatures:  cfg.Features.Detailed,
		Stages:            make(map[store.Kind]StageOutcome),
		Reports:           make(map[store.Kind]validate.Report),
		Metrics:           MetricsState{StartTime: time.Now()},
	}
}

// StateCheck is a named precondition on BuildState.
type StateCheck func(s BuildState) error

// RequireRunID fails when the state has no run id.
func RequireRunID(s BuildState) error {
	if s.RunID == "" {
		return fmt.Errorf("state has no run id")
	}
	return nil
}

// RequireRequirements fails when the state has no requirements text.
func RequireRequirements(s BuildState) error {
	if s.Requirements == "" {
		return fmt.Errorf("state has no requirements text")
	}
	return nil
}

// RequireStage returns a check that the given stage has completed.
func RequireStage(kind store.Kind) StateCheck {
	return func(s BuildState) error {
		if _, ok := s.Stages[kind]; !ok {
			return fmt.Errorf("%w: stage %s has not completed", ErrDependencyMissing, kind)
		}
		return nil
	}
}

// Validate runs the given checks against the state.
func (s BuildState) Validate(checks ...StateCheck) error {
	for _, check := range checks {
		if err := check(s); err != nil {
			return err
		}
	}
	return nil
}

// AddTokens accumulates token usage into the metrics.
func (s *BuildState) AddTokens(in, out int) {
	s.Metrics.TotalTokensIn += in
	s.Metrics.TotalTokensOut += out
}

// RecordStage stores one stage outcome and its token usage.
func (s *BuildState) RecordStage(kind store.Kind, outcome StageOutcome) {
	if s.Stages == nil {
		s.Stages = make(map[store.Kind]StageOutcome)
	}
	s.Stages[kind] = outcome
	s.AddTokens(outcome.TokensIn, outcome.TokensOut)
	if !outcome.Resumed {
		s.Metrics.CompletionCalls += outcome.Attempts
	}
}

// Fail marks the state failed for a stage with the underlying reason.
func (s *BuildState) Fail(kind store.Kind, err error) {
	s.Phase = PhaseFailed
	s.FailedStage = kind
	if err != nil {
		s.Error = err.Error()
	}
}

// Passing reports whether every validated stage passed. Stages without a
// report count as passing; validation may be disabled.
func (s BuildState) Passing() bool {
	for _, report := range s.Reports {
		if !report.Passed {
			return false
		}
	}
	return true
}

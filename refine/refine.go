package refine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
	"github.com/Open-Mobile-Kit/ba-ai-builder/validate"
)

// DefaultBudget is the default number of generation attempts per loop.
const DefaultBudget = 3

// Phase is a refinement loop state.
type Phase string

// Loop phases.
const (
	PhaseInitial    Phase = "initial"
	PhaseGenerating Phase = "generating"
	PhaseValidating Phase = "validating"
	PhaseAccepted   Phase = "accepted"
	PhaseRetrying   Phase = "retrying"
	PhaseExhausted  Phase = "exhausted"
)

// Generator regenerates the target artifact. The iteration is the version
// number the new artifact should be stored under; feedback is the full
// accumulated feedback text (empty on a first-pass generation).
type Generator func(ctx context.Context, iteration int, feedback string) (*store.Artifact, error)

// State tracks one in-flight refinement loop. It lives only for the
// duration of the loop and is discarded on termination.
type State struct {
	Kind       store.Kind
	Phase      Phase
	Attempts   int // generation attempts made so far
	Budget     int // maximum generation attempts
	Feedback   []string
	LastReport *validate.Report
}

// AppendFeedback appends one feedback entry. Entries are never replaced or
// reordered; growth is append-only.
func (s *State) AppendFeedback(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.Feedback = append(s.Feedback, text)
}

// FeedbackText renders the accumulated feedback, oldest first.
func (s *State) FeedbackText() string {
	return strings.Join(s.Feedback, "\n\n")
}

// Result is the terminal outcome of one loop.
type Result struct {
	Artifact *store.Artifact // last produced artifact, always non-nil on success
	Report   validate.Report // report for that artifact
	Phase    Phase           // PhaseAccepted or PhaseExhausted
	Attempts int             // generation attempts consumed
	Feedback string          // final accumulated feedback
}

// Accepted reports whether the loop ended with a passing artifact.
func (r *Result) Accepted() bool {
	return r.Phase == PhaseAccepted
}

// Loop drives refinement for one artifact kind.
type Loop struct {
	validator *validate.Validator
	budget    int

	// OnReport, when set, receives every iteration's report as soon as its
	// artifact has been validated, the terminal one included. An error
	// aborts the loop.
	OnReport func(report validate.Report) error
}

// New creates a refinement loop. A non-positive budget selects
// DefaultBudget.
func New(validator *validate.Validator, budget int) *Loop {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Loop{validator: validator, budget: budget}
}

// Run executes the loop: generate, validate, and either accept, retry with
// grown feedback, or stop when the budget is exhausted.
//
// seedFeedback seeds the first generation (user-supplied feedback for a
// requested refine; empty for an auto-validation loop). startIteration is
// the version number for the first generated artifact. An exhausted loop is
// not an error: the last artifact is still returned, tagged by its failing
// report, so a human can intervene.
func (l *Loop) Run(ctx context.Context, kind store.Kind, seedFeedback string, startIteration int, gen Generator) (*Result, error) {
	state := &State{
		Kind:   kind,
		Phase:  PhaseInitial,
		Budget: l.budget,
	}
	state.AppendFeedback(seedFeedback)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		state.Phase = PhaseGenerating
		iteration := startIteration + state.Attempts
		art, err := gen(ctx, iteration, state.FeedbackText())
		if err != nil {
			return nil, fmt.Errorf("refine %s iteration %d: %w", kind, iteration, err)
		}
		state.Attempts++

		state.Phase = PhaseValidating
		report := l.validator.Validate(art)
		state.LastReport = &report

		if l.OnReport != nil {
			if err := l.OnReport(report); err != nil {
				return nil, fmt.Errorf("record report for %s iteration %d: %w", kind, iteration, err)
			}
		}

		slog.Info("refinement iteration validated",
			"kind", kind,
			"iteration", iteration,
			"score", report.Score,
			"passed", report.Passed,
			"attempt", state.Attempts,
			"budget", state.Budget)

		if report.Passed {
			state.Phase = PhaseAccepted
			return &Result{
				Artifact: art,
				Report:   report,
				Phase:    PhaseAccepted,
				Attempts: state.Attempts,
				Feedback: state.FeedbackText(),
			}, nil
		}

		if state.Attempts >= state.Budget {
			state.Phase = PhaseExhausted
			return &Result{
				Artifact: art,
				Report:   report,
				Phase:    PhaseExhausted,
				Attempts: state.Attempts,
				Feedback: state.FeedbackText(),
			}, nil
		}

		state.Phase = PhaseRetrying
		state.AppendFeedback(report.FeedbackText())
	}
}

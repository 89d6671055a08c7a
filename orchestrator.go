package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
	llm "github.com/randalmurphal/llmkit/claude"

	"github.com/Open-Mobile-Kit/ba-ai-builder/config"
	"github.com/Open-Mobile-Kit/ba-ai-builder/notify"
	"github.com/Open-Mobile-Kit/ba-ai-builder/refine"
	"github.com/Open-Mobile-Kit/ba-ai-builder/report"
	"github.com/Open-Mobile-Kit/ba-ai-builder/retrieval"
	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
	"github.com/Open-Mobile-Kit/ba-ai-builder/validate"
)

// Orchestrator sequences the pipeline stages for build runs. It owns the
// service wiring; the stage logic itself lives in the flowgraph nodes.
type Orchestrator struct {
	cfg      config.Config
	store    *store.Store
	client   llm.Client
	prompts  *PromptLoader
	index    retrieval.Index
	notifier notify.Notifier
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClient overrides the completion client (used by tests).
func WithClient(client llm.Client) Option {
	return func(o *Orchestrator) { o.client = client }
}

// WithIndex overrides the retrieval index.
func WithIndex(idx retrieval.Index) Option {
	return func(o *Orchestrator) { o.index = idx }
}

// WithOrchestratorNotifier overrides the notifier.
func WithOrchestratorNotifier(n notify.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithPrompts overrides the prompt loader.
func WithPrompts(loader *PromptLoader) Option {
	return func(o *Orchestrator) { o.prompts = loader }
}

// NewOrchestrator wires an orchestrator from configuration. The completion
// provider is resolved here, once; no pipeline code branches on provider
// identity afterwards.
func NewOrchestrator(cfg config.Config, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:     cfg,
		store:   store.New(store.Config{BaseDir: cfg.Output.BaseDir}),
		prompts: NewPromptLoader("."),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.client == nil {
		client, err := NewCompletionClient(cfg.LLM)
		if err != nil {
			return nil, err
		}
		o.client = client
	}

	if o.index == nil && cfg.Retrieval.Enabled {
		o.index = retrieval.NewLocal()
	}

	if o.notifier == nil {
		notifiers := []notify.Notifier{notify.NewLogNotifier(nil)}
		if cfg.Notify.WebhookURL != "" {
			notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notify.WebhookURL, nil))
		}
		o.notifier = notify.NewMultiNotifier(notifiers...)
	}

	return o, nil
}

// Store exposes the orchestrator's artifact store.
func (o *Orchestrator) Store() *store.Store {
	return o.store
}

// BuildRequest starts or resumes one pipeline run.
type BuildRequest struct {
	Requirements string            // required for a new run
	Context      map[string]string // optional free-form context payload
	RunID        string            // set to resume an existing run
}

// BuildResult is the terminal outcome of a run.
type BuildResult struct {
	Run   store.Run
	State BuildState
}

// Passing reports whether every validated artifact passed.
func (r *BuildResult) Passing() bool {
	return r.State.Passing()
}

// wrapNode applies the standard timing and notification wrappers.
func wrapNode(node NodeFunc, stage string) flowgraph.NodeFunc[BuildState] {
	return flowgraph.NodeFunc[BuildState](WithNotify(WithTiming(node), stage))
}

// buildGraph assembles the stage graph in dependency order.
func buildGraph() *flowgraph.Graph[BuildState] {
	wrap := wrapNode

	return flowgraph.NewGraph[BuildState]().
		AddNode("analyze", wrap(AnalyzeNode, "analysis")).
		AddNode("architect", wrap(ArchitectNode, "architecture")).
		AddNode("plan-features", wrap(PlanFeaturesNode, "features")).
		AddNode("draft-documents", wrap(DraftDocumentsNode, "documents")).
		AddNode("validate", wrap(ValidateNode, "validation")).
		AddNode("report", wrap(FinalReportNode, "report")).
		AddEdge("analyze", "architect").
		AddEdge("architect", "plan-features").
		AddEdge("plan-features", "draft-documents").
		AddEdge("draft-documents", "validate").
		AddEdge("validate", "report").
		AddEdge("report", flowgraph.END).
		SetEntry("analyze")
}

// serviceContext injects every wired service for node consumption.
func (o *Orchestrator) serviceContext(ctx context.Context) flowgraph.Context {
	ctx = WithStore(ctx, o.store)
	ctx = WithLLMClient(ctx, o.client)
	ctx = WithPromptLoader(ctx, o.prompts)
	ctx = WithNotifier(ctx, o.notifier)
	if o.index != nil {
		ctx = WithRetrievalIndex(ctx, o.index)
	}
	return flowgraph.NewContext(ctx, flowgraph.WithLLM(o.client))
}

// Build runs the pipeline end to end. A request with a RunID resumes that
// run: stages whose current artifact already satisfies their acceptance
// rule are skipped without issuing completion calls.
//
// An unrecoverable stage failure leaves every already-persisted artifact
// intact and returns the single failure reason; the partial state is
// recorded on the run's transition log, so a later Build call with the same
// RunID picks up from the first incomplete stage.
func (o *Orchestrator) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	run, err := o.resolveRun(req)
	if err != nil {
		return nil, err
	}

	state := NewBuildState(*run, o.cfg)

	compiled, err := buildGraph().Compile()
	if err != nil {
		return nil, fmt.Errorf("compile pipeline graph: %w", err)
	}

	fctx := o.serviceContext(ctx)

	o.notifyRun(ctx, notify.EventBuildStarted, run.ID, notify.SeverityInfo, "build started")

	final, err := compiled.Run(fctx, state)
	if err != nil {
		if logErr := o.store.LogFailure(run.ID, final.FailedStage, err.Error()); logErr != nil {
			slog.Warn("recording failure", "run", run.ID, "error", logErr)
		}
		o.notifyRun(ctx, notify.EventBuildFailed, run.ID, notify.SeverityError, err.Error())
		return &BuildResult{Run: *run, State: final}, err
	}

	o.notifyRun(ctx, notify.EventBuildCompleted, run.ID, notify.SeverityInfo, "build completed")
	return &BuildResult{Run: *run, State: final}, nil
}

// resolveRun loads the run for a resume request or registers a new one.
func (o *Orchestrator) resolveRun(req BuildRequest) (*store.Run, error) {
	if req.RunID != "" {
		run, err := o.store.LoadRun(req.RunID)
		if err != nil {
			return nil, err
		}
		return run, nil
	}

	if req.Requirements == "" {
		return nil, fmt.Errorf("requirements text is required for a new run")
	}

	run := store.Run{
		ID:           store.NewRunID(),
		Version:      o.cfg.Output.Version,
		Requirements: req.Requirements,
		Context:      req.Context,
		CreatedAt:    time.Now().UTC(),
	}
	if err := o.store.CreateRun(run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Refine re-enters the refinement loop for one stage kind of an existing
// run, seeded with the supplied feedback and starting from the current
// latest artifact. Downstream stages are deliberately left untouched: they
// become stale and must be regenerated by an explicit call if desired.
func (o *Orchestrator) Refine(ctx context.Context, runID string, kind StageKind, feedback string) (*refine.Result, error) {
	refinable := false
	for _, k := range RefinableStages {
		if k == kind {
			refinable = true
			break
		}
	}
	if !refinable {
		return nil, fmt.Errorf("stage %s cannot be refined", kind)
	}

	run, err := o.store.LoadRun(runID)
	if err != nil {
		return nil, err
	}

	latest, err := o.store.Latest(runID, kind)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: no %s artifact to refine in run %s", ErrDependencyMissing, kind, runID)
		}
		return nil, err
	}

	state := NewBuildState(*run, o.cfg)
	fctx := o.serviceContext(ctx)

	seed := fmt.Sprintf("## Previous %s document (iteration %d)\n\n%s", kind, latest.Iteration, latest.Content)
	if feedback != "" {
		seed += "\n\n## User feedback\n\n" + feedback
	}

	validator := validate.New(o.cfg.Validation.Threshold)
	loop := refine.New(validator, o.cfg.Refinement.Budget)
	loop.OnReport = func(rep validate.Report) error {
		return report.SaveValidation(o.store, rep)
	}

	result, err := refineStage(fctx, &state, loop, kind, seed, latest.Iteration+1)
	if err != nil {
		return nil, err
	}

	if !result.Accepted() {
		slog.Warn("refinement budget exhausted",
			"runId", runID, "kind", kind, "attempts", result.Attempts, "score", result.Report.Score)
	}
	return result, nil
}

// notifyRun emits one run-level event, logging delivery failures.
func (o *Orchestrator) notifyRun(ctx context.Context, typ notify.EventType, runID, severity, message string) {
	event := notify.Event{
		Type:      typ,
		RunID:     runID,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err := o.notifier.Notify(ctx, event); err != nil {
		slog.Warn("run notification failed", "type", typ, "error", err)
	}
}

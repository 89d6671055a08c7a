package report

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
	"github.com/Open-Mobile-Kit/ba-ai-builder/validate"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(store.Config{BaseDir: t.TempDir()})
	err := s.CreateRun(store.Run{ID: "run-1", Requirements: "reqs"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	return s
}

func TestSaveAndLoadValidation(t *testing.T) {
	s := newTestStore(t)

	rep := validate.Report{
		RunID:     "run-1",
		Kind:      store.KindBRD,
		Iteration: 1,
		Passed:    false,
		Score:     0.6,
		Threshold: 0.8,
		Rules:     9,
		RulesOK:   6,
		Issues: []validate.Issue{
			{Severity: validate.SeverityError, RuleID: "section-executive-summary", Message: "missing required section"},
		},
	}
	if err := SaveValidation(s, rep); err != nil {
		t.Fatalf("SaveValidation: %v", err)
	}

	got, err := LoadValidation(s, "run-1", store.KindBRD, 1)
	if err != nil {
		t.Fatalf("LoadValidation: %v", err)
	}
	if got.Score != 0.6 || got.Passed || got.Rules != 9 {
		t.Errorf("loaded report = %+v", got)
	}
	if len(got.Issues) != 1 || got.Issues[0].RuleID != "section-executive-summary" {
		t.Errorf("Issues = %+v", got.Issues)
	}
}

func TestLoadValidation_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := LoadValidation(s, "run-1", store.KindSRS, 0)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want store.ErrNotFound", err)
	}
}

// Reports for different iterations of the same kind live side by side.
func TestSaveValidation_PerIteration(t *testing.T) {
	s := newTestStore(t)

	for i, score := range []float64{0.5, 0.9} {
		rep := validate.Report{RunID: "run-1", Kind: store.KindSRS, Iteration: i, Score: score, Passed: score >= 0.8}
		if err := SaveValidation(s, rep); err != nil {
			t.Fatalf("SaveValidation iter %d: %v", i, err)
		}
	}

	first, err := LoadValidation(s, "run-1", store.KindSRS, 0)
	if err != nil {
		t.Fatalf("LoadValidation iter 0: %v", err)
	}
	second, err := LoadValidation(s, "run-1", store.KindSRS, 1)
	if err != nil {
		t.Fatalf("LoadValidation iter 1: %v", err)
	}
	if first.Score != 0.5 || second.Score != 0.9 {
		t.Errorf("scores = %v / %v", first.Score, second.Score)
	}
}

func TestRenderFinal(t *testing.T) {
	in := FinalInput{
		RunID:           "run-1",
		Version:         "v1",
		Requirements:    "Build a task tracker",
		CompletedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:        90 * time.Second,
		TotalTokensIn:   1200,
		TotalTokensOut:  800,
		CompletionCalls: 7,
		RetrievalDocs:   4,
		AllPassing:      true,
		Stages: []StageSummary{
			{Kind: store.KindAnalysis, Iteration: 0, TokensIn: 300, TokensOut: 200},
			{Kind: store.KindBRD, Iteration: 1, TokensIn: 500, TokensOut: 400, Validated: true, Score: 0.95, Passed: true},
			{Kind: store.KindSRS, Iteration: 0, Resumed: true, Validated: true, Score: 1.0, Passed: true},
		},
	}

	out := RenderFinal(in)

	for _, want := range []string{
		"# Build Report: run-1",
		"Build a task tracker",
		"all artifacts passing",
		"| analysis | 0 | 300 / 200 | n/a |",
		"| brd | 1 | 500 / 400 | 0.95 (pass) |",
		"| srs | 0 | resumed | 1.00 (pass) |",
		"Completion calls: 7",
		"Retrieval index documents: 4",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderFinal_FailuresAndNoRetrieval(t *testing.T) {
	in := FinalInput{
		RunID:         "run-2",
		RetrievalDocs: -1,
		AllPassing:    false,
		Stages: []StageSummary{
			{Kind: store.KindBRD, Validated: true, Score: 0.5, Passed: false},
		},
	}

	out := RenderFinal(in)
	if !strings.Contains(out, "completed with validation failures") {
		t.Errorf("report should flag failures:\n%s", out)
	}
	if !strings.Contains(out, "0.50 (fail)") {
		t.Errorf("report should show failing score:\n%s", out)
	}
	if strings.Contains(out, "Retrieval index documents") {
		t.Errorf("disabled retrieval should be omitted:\n%s", out)
	}
}

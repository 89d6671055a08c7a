package integrationtest

import (
	"context"
	"strings"
	"testing"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
	llm "github.com/randalmurphal/llmkit/claude"

	builder "github.com/Open-Mobile-Kit/ba-ai-builder"
	"github.com/Open-Mobile-Kit/ba-ai-builder/config"
	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
)

// setupStore creates a store in a temp directory with one registered run.
func setupStore(t *testing.T) (*store.Store, store.Run) {
	t.Helper()

	st := store.New(store.Config{BaseDir: t.TempDir()})
	run := store.Run{
		ID:           "run-integration",
		Version:      "v1",
		Requirements: "A task tracker for small teams with assignments and due dates.",
	}
	if err := st.CreateRun(run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	return st, run
}

// setupContext creates a flowgraph.Context with all builder services configured.
func setupContext(t *testing.T, st *store.Store, client llm.Client) flowgraph.Context {
	t.Helper()

	baseCtx := context.Background()
	baseCtx = builder.WithStore(baseCtx, st)
	if client != nil {
		baseCtx = builder.WithLLMClient(baseCtx, client)
	}
	baseCtx = builder.WithPromptLoader(baseCtx, builder.NewPromptLoader("."))

	return flowgraph.NewContext(baseCtx, flowgraph.WithLLM(client))
}

// testState creates a BuildState for the run using mock-provider defaults.
func testState(run store.Run) builder.BuildState {
	cfg := config.Default()
	cfg.LLM.Provider = "mock"
	return builder.NewBuildState(run, cfg)
}

// mockResponses creates a MockClient with sequential responses.
func mockResponses(responses ...string) *llm.MockClient {
	return llm.NewMockClient("").WithResponses(responses...)
}

// stageClient answers each stage prompt with a matching canned document.
// Safe under concurrent document drafting.
func stageClient() *llm.MockClient {
	return llm.NewMockClient("").WithCompleteFunc(func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		prompt := req.Messages[0].Content
		content := analysisDoc
		switch {
		case strings.Contains(prompt, "Business Requirements Document"):
			content = brdDoc
		case strings.Contains(prompt, "Software Requirements Specification"):
			content = srsDoc
		case strings.Contains(prompt, "feature plan"):
			content = featuresDoc
		case strings.Contains(prompt, "system architecture"):
			content = architectureDoc
		}
		resp := &llm.CompletionResponse{Content: content}
		resp.Usage.InputTokens = 120
		resp.Usage.OutputTokens = 80
		return resp, nil
	})
}

const analysisDoc = `# Requirements Analysis

The product is a task tracker for small teams.
Users create, assign and complete tasks with due dates.
The main objective is reducing coordination overhead.
Primary risk is adoption; mitigation is a minimal first release.
`

const architectureDoc = `# Architecture

A single Go service over Postgres.
REST API for clients, webhook egress for integrations.
Stateless application tier behind a load balancer.
Background workers handle notification fan-out.
`

const featuresDoc = `# Feature Plan

Core: task CRUD, assignment, completion, due dates.
Enhanced: comments, filters, saved views.
Optional: recurring tasks, calendar integrations.
Phase one covers the core set only.
`

const brdDoc = `# Business Requirements Document

## Executive Summary
A task tracker that cuts coordination overhead for small teams.

## Business Objectives
Halve time spent in status meetings within two quarters.

## Functional Requirements
Users manage tasks through creation, assignment and completion.

## Non-functional Requirements
The service answers within 200ms at the 95th percentile.
`

const srsDoc = `# Software Requirements Specification

## System Overview
A single Go service backed by Postgres.

## Functional Specifications
REST endpoints covering the task lifecycle.

## Technical Requirements
Go 1.24, Postgres 16, deployed as a container.

## Interface Requirements
JSON over HTTP; webhook callbacks for task events.

## Security Requirements
Token auth on every endpoint; audit log for mutations.
`

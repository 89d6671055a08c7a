// Package builder provides pipeline primitives for AI-powered requirements
// document generation.
//
// The pipeline turns free-text project requirements into a chain of structured
// documents: an analysis, an architecture design, a feature plan, and a pair
// of formal documents (BRD and SRS). Each stage is a flowgraph node that
// assembles context from earlier artifacts, issues one completion call, and
// persists its output through the artifact store.
//
// Core components:
//   - BuildState: workflow state threaded through flowgraph nodes
//   - Orchestrator: compiles and runs the stage graph for a build run
//   - store.Store: versioned artifact persistence with an append-only log
//   - validate.Validator: rule-based scoring of produced documents
//   - refine.Loop: bounded regenerate-with-feedback cycle
//
// Services (artifact store, LLM client, prompt loader, retrieval index,
// notifier) are injected through context.Context so nodes stay decoupled from
// concrete implementations.
package builder

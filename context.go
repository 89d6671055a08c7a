package builder

import (
	"context"

	llm "github.com/randalmurphal/llmkit/claude"

	"github.com/Open-Mobile-Kit/ba-ai-builder/notify"
	"github.com/Open-Mobile-Kit/ba-ai-builder/retrieval"
	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
)

// =============================================================================
// Context Injection Helpers
// =============================================================================
// These helpers allow builder services to be injected into context.Context
// for use by flowgraph nodes.

// serviceContextKey is a private type for context keys to avoid collisions
type serviceContextKey string

// Context keys for builder services
const (
	storeServiceKey     serviceContextKey = "builder.store"
	llmServiceKey       serviceContextKey = "builder.llm"
	promptServiceKey    serviceContextKey = "builder.prompts"
	retrievalServiceKey serviceContextKey = "builder.retrieval"
	notifierServiceKey  serviceContextKey = "builder.notifier"
)

// WithStore adds the artifact store to the context
func WithStore(ctx context.Context, s *store.Store) context.Context {
	return context.WithValue(ctx, storeServiceKey, s)
}

// StoreFromContext extracts the artifact store from context
func StoreFromContext(ctx context.Context) *store.Store {
	if s, ok := ctx.Value(storeServiceKey).(*store.Store); ok {
		return s
	}
	return nil
}

// MustStoreFromContext extracts the artifact store or panics
func MustStoreFromContext(ctx context.Context) *store.Store {
	s := StoreFromContext(ctx)
	if s == nil {
		panic("builder: store.Store not found in context")
	}
	return s
}

// WithLLMClient adds an LLM client to the context.
// This uses flowgraph's llm.Client interface.
func WithLLMClient(ctx context.Context, client llm.Client) context.Context {
	return context.WithValue(ctx, llmServiceKey, client)
}

// LLMFromContext extracts the LLM client from context.
func LLMFromContext(ctx context.Context) llm.Client {
	if client, ok := ctx.Value(llmServiceKey).(llm.Client); ok {
		return client
	}
	return nil
}

// MustLLMFromContext extracts the LLM client or panics.
func MustLLMFromContext(ctx context.Context) llm.Client {
	client := LLMFromContext(ctx)
	if client == nil {
		panic("builder: llm.Client not found in context")
	}
	return client
}

// WithPromptLoader adds a PromptLoader to the context
func WithPromptLoader(ctx context.Context, loader *PromptLoader) context.Context {
	return context.WithValue(ctx, promptServiceKey, loader)
}

// PromptLoaderFromContext extracts PromptLoader from context
func PromptLoaderFromContext(ctx context.Context) *PromptLoader {
	if loader, ok := ctx.Value(promptServiceKey).(*PromptLoader); ok {
		return loader
	}
	return nil
}

// WithRetrievalIndex adds a retrieval index to the context.
// The index is optional; nodes skip cross-run context when it is absent.
func WithRetrievalIndex(ctx context.Context, idx retrieval.Index) context.Context {
	return context.WithValue(ctx, retrievalServiceKey, idx)
}

// RetrievalFromContext extracts the retrieval index from context
func RetrievalFromContext(ctx context.Context) retrieval.Index {
	if idx, ok := ctx.Value(retrievalServiceKey).(retrieval.Index); ok {
		return idx
	}
	return nil
}

// WithNotifier adds a Notifier to the context
func WithNotifier(ctx context.Context, n notify.Notifier) context.Context {
	return context.WithValue(ctx, notifierServiceKey, n)
}

// NotifierFromContext extracts the Notifier from context.
// Returns a NopNotifier when none is configured so callers never nil-check.
func NotifierFromContext(ctx context.Context) notify.Notifier {
	if n, ok := ctx.Value(notifierServiceKey).(notify.Notifier); ok {
		return n
	}
	return notify.NopNotifier{}
}

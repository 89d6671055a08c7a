// Package retrieval provides semantic lookup over previously produced
// artifacts for cross-run context reuse.
//
// The pipeline only depends on the ranked-lookup contract: add an artifact,
// query the k closest matches. The bundled Local index is a deliberately
// simple token-frequency cosine ranking; a production deployment can swap
// in a real vector store behind the same interface.
package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
)

// Match is one ranked retrieval result.
type Match struct {
	RunID     string
	Kind      store.Kind
	Iteration int
	Content   string
	Score     float64 // cosine similarity in [0,1]
}

// Index is the ranked-lookup contract the pipeline consumes.
type Index interface {
	// Add indexes one artifact for later retrieval.
	Add(ctx context.Context, art *store.Artifact) error

	// Query returns up to k artifacts closest to the text, best first.
	Query(ctx context.Context, text string, k int) ([]Match, error)
}

// Stats summarizes index contents for reporting.
type Stats struct {
	Documents int `yaml:"documents" json:"documents"`
}

// Local is an in-memory Index using token-frequency cosine similarity.
type Local struct {
	mu   sync.RWMutex
	docs []localDoc
}

type localDoc struct {
	runID     string
	kind      store.Kind
	iteration int
	content   string
	vector    map[string]float64
}

// NewLocal creates an empty local index.
func NewLocal() *Local {
	return &Local{}
}

// Add indexes one artifact.
func (l *Local) Add(ctx context.Context, art *store.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs = append(l.docs, localDoc{
		runID:     art.RunID,
		kind:      art.Kind,
		iteration: art.Iteration,
		content:   art.Content,
		vector:    vectorize(art.Content),
	})
	return nil
}

// Query returns the k most similar indexed artifacts, best first.
// Zero-similarity documents are never returned.
func (l *Local) Query(ctx context.Context, text string, k int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	query := vectorize(text)

	l.mu.RLock()
	defer l.mu.RUnlock()

	matches := make([]Match, 0, len(l.docs))
	for _, doc := range l.docs {
		score := cosine(query, doc.vector)
		if score <= 0 {
			continue
		}
		matches = append(matches, Match{
			RunID:     doc.runID,
			Kind:      doc.kind,
			Iteration: doc.iteration,
			Content:   doc.content,
			Score:     score,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Stats returns the document count.
func (l *Local) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{Documents: len(l.docs)}
}

// vectorize builds a term-frequency vector from text.
func vectorize(text string) map[string]float64 {
	vector := make(map[string]float64)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(tok) < 3 {
			continue
		}
		vector[tok]++
	}
	return vector
}

// cosine computes cosine similarity between two term vectors.
func cosine(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for tok, av := range a {
		normA += av * av
		if bv, ok := b[tok]; ok {
			dot += av * bv
		}
	}
	for _, bv := range b {
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

package retrieval

import (
	"context"
	"sync"

	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
)

// Mock is a scripted Index for tests.
type Mock struct {
	mu      sync.Mutex
	Matches []Match // returned by every Query, truncated to k
	Err     error   // returned by Add and Query when set

	added   []*store.Artifact
	queries []string
}

// NewMock creates a mock index returning the given matches.
func NewMock(matches ...Match) *Mock {
	return &Mock{Matches: matches}
}

// Add records the artifact.
func (m *Mock) Add(ctx context.Context, art *store.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.added = append(m.added, art)
	return nil
}

// Query records the query text and returns the scripted matches.
func (m *Mock) Query(ctx context.Context, text string, k int) ([]Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.queries = append(m.queries, text)
	matches := m.Matches
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Added returns every artifact passed to Add.
func (m *Mock) Added() []*store.Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*store.Artifact(nil), m.added...)
}

// Queries returns every query text seen.
func (m *Mock) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// Package vectorindex provides nearest-neighbour search over embedded
// reference texts.
package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Doc is an indexed vector with its source text.
type Doc struct {
	ID       string
	Text     string
	Vector   []float64
	Metadata map[string]string
}

// Candidate is a search hit. Score is the cosine similarity.
type Candidate struct {
	Doc   Doc
	Score float64
}

// Index searches vectors within a namespace. An empty result is valid.
type Index interface {
	Upsert(ctx context.Context, namespace string, docs []Doc) error
	Search(ctx context.Context, namespace string, vector []float64, k int) ([]Candidate, error)
	Reset(ctx context.Context, namespace string) error
	Count(ctx context.Context, namespace string) (int, error)
}

// Memory is a brute-force in-memory Index. Reference sets here are small
// (intent phrases, venue names).
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string]Doc // namespace -> id -> doc
}

// NewMemory creates an empty index.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string]Doc)}
}

// Upsert implements Index.
func (m *Memory) Upsert(_ context.Context, namespace string, docs []Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.docs[namespace]
	if !ok {
		ns = make(map[string]Doc, len(docs))
		m.docs[namespace] = ns
	}
	for _, d := range docs {
		d.Vector = append([]float64(nil), d.Vector...)
		ns[d.ID] = d
	}
	return nil
}

// Search implements Index. Documents whose dimension differs from vector
// are skipped.
func (m *Memory) Search(_ context.Context, namespace string, vector []float64, k int) ([]Candidate, error) {
	if len(vector) == 0 || k <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []Candidate
	for _, d := range m.docs[namespace] {
		if len(d.Vector) != len(vector) {
			continue
		}
		candidates = append(candidates, Candidate{Doc: d, Score: CosineSimilarity(vector, d.Vector)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score == candidates[j].Score {
			return candidates[i].Doc.ID < candidates[j].Doc.ID
		}
		return candidates[i].Score > candidates[j].Score
	})
	if k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// Reset implements Index.
func (m *Memory) Reset(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, namespace)
	return nil
}

// Count implements Index.
func (m *Memory) Count(_ context.Context, namespace string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs[namespace]), nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either is a zero vector or the lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

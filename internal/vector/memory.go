package vector

import (
	"context"
	"math"
	"sync"

	"jobmatch-go/internal/domain"
)

// MemoryIndex is an in-process Index backed by a map with brute-force
// cosine search. It exists for tests and single-node development; the
// production backend is Qdrant.
type MemoryIndex struct {
	mu     sync.RWMutex
	points map[string]memoryPoint
}

type memoryPoint struct {
	vec     []float64
	payload map[string]any
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[string]memoryPoint)}
}

// Upsert implements Index. The stored vector and payload are copied so a
// concurrent query never observes a half-replaced point.
func (m *MemoryIndex) Upsert(ctx context.Context, id string, vec []float64, payload map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return &domain.InputValidationError{Field: "id", Reason: "must not be empty"}
	}
	vecCopy := make([]float64, len(vec))
	copy(vecCopy, vec)
	payloadCopy := make(map[string]any, len(payload))
	for k, v := range payload {
		payloadCopy[k] = v
	}

	m.mu.Lock()
	m.points[id] = memoryPoint{vec: vecCopy, payload: payloadCopy}
	m.mu.Unlock()
	return nil
}

// Query implements Index.
func (m *MemoryIndex) Query(ctx context.Context, vec []float64, topK int, filter Filter) ([]ScoredMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, &domain.InputValidationError{Field: "topK", Reason: "must be positive"}
	}

	m.mu.RLock()
	matches := make([]ScoredMatch, 0, len(m.points))
	for id, p := range m.points {
		if filter != nil && !filter.Matches(p.payload) {
			continue
		}
		matches = append(matches, ScoredMatch{
			ID:      id,
			Score:   float32(CosineSimilarity(vec, p.vec)),
			Payload: p.payload,
		})
	}
	m.mu.RUnlock()

	sortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete implements Index. Deleting a missing id is a no-op.
func (m *MemoryIndex) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.points, id)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored points.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either vector is zero or lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
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

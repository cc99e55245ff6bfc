package vector

import (
	"context"
	"sort"

	"jobmatch-go/internal/constants"
)

// ScoredMatch is one query hit, ordered by descending cosine similarity.
type ScoredMatch struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Index is the nearest-neighbor store contract. Upsert is idempotent:
// re-upserting an id replaces vector and payload atomically from the
// caller's perspective. Any ANN backend works as long as cosine ordering
// and filter semantics hold.
type Index interface {
	Upsert(ctx context.Context, id string, vec []float64, payload map[string]any) error
	Query(ctx context.Context, vec []float64, topK int, filter Filter) ([]ScoredMatch, error)
	Delete(ctx context.Context, id string) error
}

// sortMatches orders by score descending; equal scores break toward the
// more recently posted job.
func sortMatches(matches []ScoredMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return postedAt(matches[i].Payload) > postedAt(matches[j].Payload)
	})
}

func postedAt(payload map[string]any) int64 {
	v, ok := payload[constants.PayloadFieldPostedAt]
	if !ok {
		return 0
	}
	f, ok := toFloat(v)
	if !ok {
		return 0
	}
	return int64(f)
}

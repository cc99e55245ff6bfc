package vector

import (
	"context"
	"testing"

	"jobmatch-go/internal/constants"
	"jobmatch-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func matchIDs(matches []ScoredMatch) []string {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return ids
}

func TestMemoryIndexOrdersByCosineSimilarity(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, "exact", []float64{1, 0}, nil))
	require.NoError(t, idx.Upsert(ctx, "close", []float64{0.9, 0.1}, nil))
	require.NoError(t, idx.Upsert(ctx, "orthogonal", []float64{0, 1}, nil))

	matches, err := idx.Query(ctx, []float64{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"exact", "close", "orthogonal"}, matchIDs(matches))
	assert.InDelta(t, 1.0, float64(matches[0].Score), 1e-6)
}

func TestMemoryIndexEqualScoresBreakTowardNewerPosting(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, "older", []float64{1, 0},
		map[string]any{constants.PayloadFieldPostedAt: int64(1_700_000_000)}))
	require.NoError(t, idx.Upsert(ctx, "newer", []float64{1, 0},
		map[string]any{constants.PayloadFieldPostedAt: int64(1_760_000_000)}))

	matches, err := idx.Query(ctx, []float64{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"newer", "older"}, matchIDs(matches))
}

func TestMemoryIndexTopKTruncates(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, "a", []float64{1, 0}, nil))
	require.NoError(t, idx.Upsert(ctx, "b", []float64{0.8, 0.2}, nil))
	require.NoError(t, idx.Upsert(ctx, "c", []float64{0.5, 0.5}, nil))

	matches, err := idx.Query(ctx, []float64{1, 0}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, matchIDs(matches))
}

func TestMemoryIndexQueryValidatesTopK(t *testing.T) {
	idx := NewMemoryIndex()
	_, err := idx.Query(context.Background(), []float64{1}, 0, nil)
	var validation *domain.InputValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "topK", validation.Field)
}

func TestMemoryIndexUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, "job", []float64{0, 1}, map[string]any{"city": "Berlin"}))
	require.NoError(t, idx.Upsert(ctx, "job", []float64{1, 0}, map[string]any{"city": "Munich"}))
	assert.Equal(t, 1, idx.Len())

	matches, err := idx.Query(ctx, []float64{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, float64(matches[0].Score), 1e-6)
	assert.Equal(t, "Munich", matches[0].Payload["city"])
}

func TestMemoryIndexUpsertRejectsEmptyID(t *testing.T) {
	idx := NewMemoryIndex()
	var validation *domain.InputValidationError
	require.ErrorAs(t, idx.Upsert(context.Background(), "", []float64{1}, nil), &validation)
}

func TestMemoryIndexDeleteMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, "job", []float64{1, 0}, nil))
	require.NoError(t, idx.Delete(ctx, "absent"))
	require.NoError(t, idx.Delete(ctx, "job"))
	require.NoError(t, idx.Delete(ctx, "job"))
	assert.Equal(t, 0, idx.Len())
}

func TestMemoryIndexFilters(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, "active-remote", []float64{1, 0}, map[string]any{
		"status": "ACTIVE", "remote_policy": "remote", "salary_max": 180000,
	}))
	require.NoError(t, idx.Upsert(ctx, "active-onsite", []float64{1, 0}, map[string]any{
		"status": "ACTIVE", "remote_policy": "onsite", "salary_max": 120000,
	}))
	require.NoError(t, idx.Upsert(ctx, "tombstoned", []float64{1, 0}, map[string]any{
		"status": "TOMBSTONED", "remote_policy": "remote", "salary_max": 200000,
	}))

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"eq on status", Eq{Field: "status", Value: "ACTIVE"}, []string{"active-remote", "active-onsite"}},
		{"eq misses absent field", Eq{Field: "nope", Value: "x"}, nil},
		{"range on salary", Range{Field: "salary_max", GTE: floatPtr(150000)}, []string{"active-remote", "tombstoned"}},
		{"range both bounds", Range{Field: "salary_max", GTE: floatPtr(100000), LTE: floatPtr(150000)}, []string{"active-onsite"}},
		{
			"conjunction",
			All{Eq{Field: "status", Value: "ACTIVE"}, Eq{Field: "remote_policy", Value: "remote"}},
			[]string{"active-remote"},
		},
		{"empty conjunction matches all", All{}, []string{"active-remote", "active-onsite", "tombstoned"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := idx.Query(ctx, []float64{1, 0}, 10, tt.filter)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, matchIDs(matches))
		})
	}
}

func TestEqComparesNumbersLoosely(t *testing.T) {
	// Payloads that round-trip through JSON come back as float64.
	assert.True(t, Eq{Field: "n", Value: 5}.Matches(map[string]any{"n": float64(5)}))
	assert.True(t, Eq{Field: "n", Value: int64(5)}.Matches(map[string]any{"n": 5}))
	assert.False(t, Eq{Field: "n", Value: 5}.Matches(map[string]any{"n": "5"}))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{1}), "length mismatch is not comparable")
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 0}), "zero vector is not comparable")
}

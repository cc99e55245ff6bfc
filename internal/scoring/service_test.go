package scoring

import (
	"context"
	"sync"
	"testing"

	"jobmatch-go/internal/config"
	"jobmatch-go/internal/domain"
	"jobmatch-go/internal/vector"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProfiles struct {
	profile *domain.CandidateProfile
	version string
	err     error
}

func (f *fakeProfiles) GetProfile(ctx context.Context, candidateID string) (*domain.CandidateProfile, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.profile, f.version, nil
}

type fakeEmbedder struct {
	vec   []float64
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

type fakeMatchCache struct {
	mu      sync.Mutex
	entries map[string]*domain.MatchResult
}

func newFakeMatchCache() *fakeMatchCache {
	return &fakeMatchCache{entries: make(map[string]*domain.MatchResult)}
}

func (f *fakeMatchCache) GetMatch(ctx context.Context, key string) (*domain.MatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.entries[key]; ok {
		return r, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeMatchCache) SetMatch(ctx context.Context, key string, r *domain.MatchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = r
	return nil
}

type fakeVectorCache struct {
	mu   sync.Mutex
	vecs map[string][]float64
}

func newFakeVectorCache() *fakeVectorCache {
	return &fakeVectorCache{vecs: make(map[string][]float64)}
}

func (f *fakeVectorCache) GetProfileVector(ctx context.Context, candidateID string) ([]float64, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.vecs[candidateID]; ok {
		return v, "test-model", nil
	}
	return nil, "", domain.ErrNotFound
}

func (f *fakeVectorCache) SetProfileVector(ctx context.Context, candidateID string, vec []float64, modelVersion string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vecs[candidateID] = vec
	return nil
}

type fakeStore struct {
	jobs map[string]*domain.JobPosting
}

func (f *fakeStore) GetByJobID(ctx context.Context, jobID string) (*domain.JobPosting, error) {
	if j, ok := f.jobs[jobID]; ok {
		return j, nil
	}
	return nil, domain.ErrNotFound
}

func testService(t *testing.T, profiles *fakeProfiles, embedder *fakeEmbedder, index vector.Index, matches *fakeMatchCache, vectors *fakeVectorCache, store *fakeStore) *MatchService {
	t.Helper()
	cfg := &config.ScoringConfig{
		Weights:             defaultWeights(),
		EmbedTimeoutSeconds: 1,
		DefaultTopK:         10,
	}
	return NewMatchService(profiles, embedder, index, matches, vectors, store,
		NewEngine(cfg.Weights), cfg, "test-model", zerolog.Nop())
}

func seniorJob(jobID, contentHash string) *domain.JobPosting {
	return &domain.JobPosting{
		JobID:       jobID,
		Title:       "Senior Backend Engineer",
		Skills:      []string{"go", "kubernetes"},
		Seniority:   domain.SenioritySenior,
		Location:    domain.Location{RemotePolicy: domain.RemoteFull},
		SalaryMin:   intPtr(150000),
		SalaryMax:   intPtr(180000),
		ContentHash: contentHash,
		Status:      domain.PostingActive,
	}
}

func seniorCandidate() *domain.CandidateProfile {
	return &domain.CandidateProfile{
		CandidateID:       "cand-1",
		Skills:            []string{"go", "kubernetes", "aws"},
		Seniority:         domain.SenioritySenior,
		SalaryExpectation: intPtr(160000),
	}
}

func TestMatchRanksAndCaches(t *testing.T) {
	ctx := context.Background()
	index := vector.NewMemoryIndex()
	require.NoError(t, index.Upsert(ctx, "job-good", []float64{1, 0}, map[string]any{"status": "ACTIVE"}))
	require.NoError(t, index.Upsert(ctx, "job-weak", []float64{0.9, 0.1}, map[string]any{"status": "ACTIVE"}))

	store := &fakeStore{jobs: map[string]*domain.JobPosting{
		"job-good": seniorJob("job-good", "hash-a"),
		"job-weak": {
			JobID:       "job-weak",
			Title:       "Junior QA Analyst",
			Skills:      []string{"selenium"},
			Seniority:   domain.SeniorityJunior,
			Location:    domain.Location{City: "Omaha", RemotePolicy: domain.RemoteOnsite},
			ContentHash: "hash-b",
			Status:      domain.PostingActive,
		},
	}}
	matches := newFakeMatchCache()
	svc := testService(t,
		&fakeProfiles{profile: seniorCandidate(), version: "v1"},
		&fakeEmbedder{vec: []float64{1, 0}},
		index, matches, newFakeVectorCache(), store)

	resp, err := svc.Match(ctx, &MatchRequest{CandidateID: "cand-1"})
	require.NoError(t, err)
	assert.False(t, resp.Degraded)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "job-good", resp.Results[0].JobID)
	assert.Greater(t, resp.Results[0].FitIndex, resp.Results[1].FitIndex)
	assert.Len(t, matches.entries, 2)
}

func TestMatchCacheCoherenceOnContentChange(t *testing.T) {
	ctx := context.Background()
	index := vector.NewMemoryIndex()
	require.NoError(t, index.Upsert(ctx, "job-1", []float64{1, 0}, map[string]any{"status": "ACTIVE"}))

	job := seniorJob("job-1", "hash-v1")
	store := &fakeStore{jobs: map[string]*domain.JobPosting{"job-1": job}}
	matches := newFakeMatchCache()
	svc := testService(t,
		&fakeProfiles{profile: seniorCandidate(), version: "v1"},
		&fakeEmbedder{vec: []float64{1, 0}},
		index, matches, newFakeVectorCache(), store)

	first, err := svc.Match(ctx, &MatchRequest{CandidateID: "cand-1"})
	require.NoError(t, err)
	require.Len(t, first.Results, 1)

	// Poison the cached entry, then verify an unchanged job serves it.
	staleKey := CacheKey("cand-1", "job-1", "v1", "hash-v1")
	matches.entries[staleKey].FitIndex = 1
	served, err := svc.Match(ctx, &MatchRequest{CandidateID: "cand-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, served.Results[0].FitIndex)

	// A description change rotates the content hash, which rotates the
	// cache key: the poisoned entry must not be served again.
	job.ContentHash = "hash-v2"
	fresh, err := svc.Match(ctx, &MatchRequest{CandidateID: "cand-1"})
	require.NoError(t, err)
	assert.NotEqual(t, 1, fresh.Results[0].FitIndex)
}

func TestMatchDegradedPathUsesCachedProfileVector(t *testing.T) {
	ctx := context.Background()
	index := vector.NewMemoryIndex()
	require.NoError(t, index.Upsert(ctx, "job-1", []float64{1, 0}, map[string]any{"status": "ACTIVE"}))

	store := &fakeStore{jobs: map[string]*domain.JobPosting{"job-1": seniorJob("job-1", "hash-a")}}
	vectors := newFakeVectorCache()
	vectors.vecs["cand-1"] = []float64{1, 0}

	svc := testService(t,
		&fakeProfiles{profile: seniorCandidate(), version: "v1"},
		&fakeEmbedder{err: &domain.TransientProviderError{Op: "embedding.request", Err: context.DeadlineExceeded}},
		index, newFakeMatchCache(), vectors, store)

	resp, err := svc.Match(ctx, &MatchRequest{CandidateID: "cand-1"})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	require.Len(t, resp.Results, 1)
}

func TestMatchFailsWithoutFallbackVector(t *testing.T) {
	ctx := context.Background()
	svc := testService(t,
		&fakeProfiles{profile: seniorCandidate(), version: "v1"},
		&fakeEmbedder{err: &domain.TransientProviderError{Op: "embedding.request", Err: context.DeadlineExceeded}},
		vector.NewMemoryIndex(), newFakeMatchCache(), newFakeVectorCache(),
		&fakeStore{jobs: map[string]*domain.JobPosting{}})

	_, err := svc.Match(ctx, &MatchRequest{CandidateID: "cand-1"})
	require.Error(t, err)
}

func TestMatchValidatesCandidateID(t *testing.T) {
	svc := testService(t, &fakeProfiles{}, &fakeEmbedder{}, vector.NewMemoryIndex(),
		newFakeMatchCache(), newFakeVectorCache(), &fakeStore{})

	_, err := svc.Match(context.Background(), &MatchRequest{})
	var validation *domain.InputValidationError
	require.ErrorAs(t, err, &validation)
}

func TestMatchSkipsTombstonedJobs(t *testing.T) {
	ctx := context.Background()
	index := vector.NewMemoryIndex()
	require.NoError(t, index.Upsert(ctx, "job-1", []float64{1, 0}, map[string]any{"status": "ACTIVE"}))

	job := seniorJob("job-1", "hash-a")
	job.Status = domain.PostingTombstoned
	svc := testService(t,
		&fakeProfiles{profile: seniorCandidate(), version: "v1"},
		&fakeEmbedder{vec: []float64{1, 0}},
		index, newFakeMatchCache(), newFakeVectorCache(),
		&fakeStore{jobs: map[string]*domain.JobPosting{"job-1": job}})

	resp, err := svc.Match(ctx, &MatchRequest{CandidateID: "cand-1"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestCacheKeyChangesWithInputs(t *testing.T) {
	base := CacheKey("cand", "job", "v1", "hash")
	assert.NotEqual(t, base, CacheKey("cand", "job", "v2", "hash"))
	assert.NotEqual(t, base, CacheKey("cand", "job", "v1", "hash2"))
	assert.NotEqual(t, base, CacheKey("cand", "job2", "v1", "hash"))
	assert.Equal(t, base, CacheKey("cand", "job", "v1", "hash"))
}

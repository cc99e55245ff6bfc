package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"jobmatch-go/internal/config"
	"jobmatch-go/internal/constants"
	"jobmatch-go/internal/domain"
	"jobmatch-go/internal/profile"
	"jobmatch-go/internal/vector"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
)

// MatchCache stores computed fit results under a coherency-carrying key.
type MatchCache interface {
	GetMatch(ctx context.Context, cacheKey string) (*domain.MatchResult, error)
	SetMatch(ctx context.Context, cacheKey string, result *domain.MatchResult) error
}

// ProfileVectorCache keeps the last good profile embedding per candidate,
// which is the degraded-path fallback when a live embed times out.
type ProfileVectorCache interface {
	GetProfileVector(ctx context.Context, candidateID string) ([]float64, string, error)
	SetProfileVector(ctx context.Context, candidateID string, vec []float64, modelVersion string) error
}

// PostingReader loads the full posting behind a vector hit.
type PostingReader interface {
	GetByJobID(ctx context.Context, jobID string) (*domain.JobPosting, error)
}

// MatchRequest is one scoring query.
type MatchRequest struct {
	CandidateID  string
	Location     string
	RemotePolicy string
	MinSalary    *int
	TopK         int
}

// MatchResponse carries the ranked results plus whether the profile vector
// came from the degraded cache path.
type MatchResponse struct {
	Results  []*domain.MatchResult
	Degraded bool
}

// MatchService serves the synchronous scoring path: profile fetch, profile
// embedding with a fail-fast timeout, filtered vector retrieval, then the
// pure scoring engine over each hit.
type MatchService struct {
	profiles profile.Provider
	embedder embedding.Embedder
	index    vector.Index
	matches  MatchCache
	vectors  ProfileVectorCache
	store    PostingReader
	engine   *Engine
	cfg      *config.ScoringConfig
	model    string
	logger   zerolog.Logger
}

// NewMatchService wires the scoring path.
func NewMatchService(profiles profile.Provider, embedder embedding.Embedder, index vector.Index, matches MatchCache, vectors ProfileVectorCache, store PostingReader, engine *Engine, cfg *config.ScoringConfig, model string, logger zerolog.Logger) *MatchService {
	return &MatchService{
		profiles: profiles,
		embedder: embedder,
		index:    index,
		matches:  matches,
		vectors:  vectors,
		store:    store,
		engine:   engine,
		cfg:      cfg,
		model:    model,
		logger:   logger.With().Str("component", "match_service").Logger(),
	}
}

// CacheKey derives the match-cache key. Profile version and job content
// hash are baked in, so any upstream change produces a different key and
// the stale entry simply ages out.
func CacheKey(candidateID, jobID, profileVersion, contentHash string) string {
	sum := sha256.Sum256([]byte(candidateID + "\x1f" + jobID + "\x1f" + profileVersion + "\x1f" + contentHash))
	return hex.EncodeToString(sum[:])
}

// ProfileEmbedText builds the document a candidate profile is embedded
// from.
func ProfileEmbedText(p *domain.CandidateProfile) string {
	var parts []string
	if len(p.TargetTitles) > 0 {
		parts = append(parts, strings.Join(p.TargetTitles, ", "))
	}
	if len(p.Skills) > 0 {
		parts = append(parts, strings.Join(p.Skills, ", "))
	}
	if p.Summary != "" {
		parts = append(parts, p.Summary)
	}
	if len(parts) == 0 {
		parts = append(parts, "candidate profile")
	}
	return strings.Join(parts, "\n")
}

// Match executes one scoring query.
func (s *MatchService) Match(ctx context.Context, req *MatchRequest) (*MatchResponse, error) {
	if req.CandidateID == "" {
		return nil, &domain.InputValidationError{Field: "candidate_id", Reason: "must not be empty"}
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}

	prof, version, err := s.profiles.GetProfile(ctx, req.CandidateID)
	if err != nil {
		return nil, fmt.Errorf("fetch profile %s: %w", req.CandidateID, err)
	}

	vec, degraded, err := s.profileVector(ctx, prof)
	if err != nil {
		return nil, err
	}

	hits, err := s.index.Query(ctx, vec, topK, s.buildFilter(req))
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	results := make([]*domain.MatchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.ID == "" {
			continue
		}
		result, err := s.scoreJob(ctx, prof, version, hit.ID)
		if err != nil {
			// A single unreadable posting must not fail the whole query.
			s.logger.Warn().Err(err).Str("job_id", hit.ID).Msg("skipping unscorable job")
			continue
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FitIndex > results[j].FitIndex
	})
	return &MatchResponse{Results: results, Degraded: degraded}, nil
}

// profileVector embeds the profile under the fail-fast timeout. On timeout
// or a transient provider failure it falls back to the cached vector; only
// when that is also absent does the caller see an error.
func (s *MatchService) profileVector(ctx context.Context, prof *domain.CandidateProfile) ([]float64, bool, error) {
	embedCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.EmbedTimeoutSeconds)*time.Second)
	defer cancel()

	vecs, err := s.embedder.EmbedStrings(embedCtx, []string{ProfileEmbedText(prof)})
	if err == nil {
		vec := vecs[0]
		if cacheErr := s.vectors.SetProfileVector(ctx, prof.CandidateID, vec, s.model); cacheErr != nil {
			s.logger.Warn().Err(cacheErr).Msg("failed to cache profile vector")
		}
		return vec, false, nil
	}

	retriable := errors.Is(err, context.DeadlineExceeded) || domain.IsTransient(err)
	if !retriable {
		return nil, false, fmt.Errorf("embed profile: %w", err)
	}

	cached, cachedModel, cacheErr := s.vectors.GetProfileVector(ctx, prof.CandidateID)
	if cacheErr != nil {
		if errors.Is(cacheErr, domain.ErrNotFound) {
			return nil, false, fmt.Errorf("embed profile: %w", err)
		}
		return nil, false, fmt.Errorf("embed profile: %w (fallback read failed: %v)", err, cacheErr)
	}
	if cachedModel != "" && cachedModel != s.model {
		// A vector from another model lives in a different space; it cannot
		// stand in for this query.
		return nil, false, fmt.Errorf("embed profile: %w", err)
	}
	s.logger.Warn().Err(err).Str("candidate_id", prof.CandidateID).
		Msg("live profile embedding unavailable, serving degraded result from cached vector")
	return cached, true, nil
}

func (s *MatchService) buildFilter(req *MatchRequest) vector.Filter {
	filters := vector.All{
		vector.Eq{Field: constants.PayloadFieldStatus, Value: string(domain.PostingActive)},
	}
	if req.RemotePolicy != "" {
		filters = append(filters, vector.Eq{Field: constants.PayloadFieldRemotePolicy, Value: req.RemotePolicy})
	}
	if req.Location != "" {
		filters = append(filters, vector.Eq{Field: constants.PayloadFieldCity, Value: req.Location})
	}
	if req.MinSalary != nil {
		floor := float64(*req.MinSalary)
		filters = append(filters, vector.Range{Field: constants.PayloadFieldSalaryMax, GTE: &floor})
	}
	return filters
}

// scoreJob returns the cached fit result when coherent, otherwise computes
// and caches a fresh one.
func (s *MatchService) scoreJob(ctx context.Context, prof *domain.CandidateProfile, profileVersion, jobID string) (*domain.MatchResult, error) {
	job, err := s.store.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == domain.PostingTombstoned {
		return nil, fmt.Errorf("job %s is tombstoned", jobID)
	}

	key := CacheKey(prof.CandidateID, jobID, profileVersion, job.ContentHash)
	cached, err := s.matches.GetMatch(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn().Err(err).Msg("match cache read failed, recomputing")
	}

	result := s.engine.Score(prof, job)
	if err := s.matches.SetMatch(ctx, key, result); err != nil {
		s.logger.Warn().Err(err).Msg("match cache write failed")
	}
	return result, nil
}

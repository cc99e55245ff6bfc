package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobmatch-go/internal/config"
	"jobmatch-go/internal/domain"

	"github.com/rs/zerolog"
)

// Lookup is the slice of the job store the dedup engine reads.
type Lookup interface {
	// FindByFingerprint returns the active posting with the given
	// fingerprint, or domain.ErrNotFound.
	FindByFingerprint(ctx context.Context, fingerprint string) (*domain.JobPosting, error)
	// RecentByCompany returns active postings for a company seen since
	// the cutoff, with their stored MinHash signatures.
	RecentByCompany(ctx context.Context, company string, since time.Time) ([]StoredSignature, error)
}

// StoredSignature pairs a stored posting's identity with its description
// signature.
type StoredSignature struct {
	JobID      string
	SourceName domain.SourceName
	SourceID   string
	Signature  Signature
}

// Result is the outcome of a duplicate check.
type Result struct {
	Duplicate bool
	// CanonicalJobID is the posting the incoming record duplicates.
	CanonicalJobID string
	// Stage names which check fired: "fingerprint" or "near_duplicate".
	Stage string
	// Similarity is the estimated Jaccard similarity for near-duplicate
	// hits; 1 for fingerprint hits.
	Similarity float64
}

// Engine runs the two-stage duplicate check: exact fingerprint first, then
// a MinHash near-duplicate comparison against same-company postings within
// a recent window. Both stages run before any embedding call so duplicates
// never consume embedding budget.
type Engine struct {
	lookup    Lookup
	threshold float64
	shingleK  int
	sigSize   int
	window    time.Duration
	logger    zerolog.Logger
}

// NewEngine builds an engine from dedup config.
func NewEngine(lookup Lookup, cfg config.DedupConfig, logger zerolog.Logger) *Engine {
	return &Engine{
		lookup:    lookup,
		threshold: cfg.SimilarityThreshold,
		shingleK:  cfg.ShingleSize,
		sigSize:   cfg.SignatureSize,
		window:    time.Duration(cfg.WindowDays) * 24 * time.Hour,
		logger:    logger.With().Str("component", "dedup_engine").Logger(),
	}
}

// DescriptionSignature computes the signature the store persists alongside
// a posting, so later runs compare against it without re-reading the text.
func (e *Engine) DescriptionSignature(description string) Signature {
	return MinHash(Shingles(NormalizeText(description), e.shingleK), e.sigSize)
}

// IsDuplicateSimilarity applies the configured threshold. The boundary is
// inclusive: similarity exactly at the threshold counts as a duplicate.
func (e *Engine) IsDuplicateSimilarity(similarity float64) bool {
	return similarity >= e.threshold
}

// Check classifies an incoming posting. The caller has already handled the
// same-source update path (same source_id + source_name is never a
// duplicate pair, the newer content simply wins).
func (e *Engine) Check(ctx context.Context, posting *domain.JobPosting) (Result, error) {
	// Stage 1: exact fingerprint match.
	existing, err := e.lookup.FindByFingerprint(ctx, posting.Fingerprint)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return Result{}, fmt.Errorf("fingerprint lookup: %w", err)
	}
	if existing != nil && existing.Status != domain.PostingTombstoned {
		if existing.SourceName == posting.SourceName && existing.SourceID == posting.SourceID {
			// Same record re-reported; not a duplicate pair.
			return Result{}, nil
		}
		e.logger.Debug().
			Str("source_id", posting.SourceID).
			Str("canonical_job_id", existing.JobID).
			Msg("fingerprint duplicate")
		return Result{
			Duplicate:      true,
			CanonicalJobID: existing.JobID,
			Stage:          "fingerprint",
			Similarity:     1,
		}, nil
	}

	// Stage 2: near-duplicate text check, same company, recent window.
	// Tuned for precision over recall: a missed duplicate is just an extra
	// row, a false merge hides a real posting.
	since := time.Now().Add(-e.window)
	candidates, err := e.lookup.RecentByCompany(ctx, posting.CompanyName, since)
	if err != nil {
		return Result{}, fmt.Errorf("recent postings lookup: %w", err)
	}
	if len(candidates) == 0 {
		return Result{}, nil
	}

	incoming := e.DescriptionSignature(posting.Description)
	best := Result{}
	for _, cand := range candidates {
		if cand.SourceName == posting.SourceName && cand.SourceID == posting.SourceID {
			continue
		}
		sim := EstimateSimilarity(incoming, cand.Signature)
		if e.IsDuplicateSimilarity(sim) && sim > best.Similarity {
			best = Result{
				Duplicate:      true,
				CanonicalJobID: cand.JobID,
				Stage:          "near_duplicate",
				Similarity:     sim,
			}
		}
	}
	if best.Duplicate {
		e.logger.Debug().
			Str("source_id", posting.SourceID).
			Str("canonical_job_id", best.CanonicalJobID).
			Float64("similarity", best.Similarity).
			Msg("near-duplicate description")
	}
	return best, nil
}

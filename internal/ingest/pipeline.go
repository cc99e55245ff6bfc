package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"jobmatch-go/internal/config"
	"jobmatch-go/internal/constants"
	"jobmatch-go/internal/dedup"
	"jobmatch-go/internal/domain"
	"jobmatch-go/internal/vector"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
)

// JobStore is the slice of the relational store the pipeline writes.
type JobStore interface {
	UpsertPosting(ctx context.Context, p *domain.JobPosting, signature dedup.Signature) error
	GetBySourceKey(ctx context.Context, source domain.SourceName, sourceID string) (*domain.JobPosting, error)
	TouchLastSeen(ctx context.Context, jobID string, seenAt time.Time) error
	TombstoneStale(ctx context.Context, source domain.SourceName, cutoff time.Time) ([]domain.JobPosting, error)
	LinkCrossPost(ctx context.Context, canonicalJobID string, source domain.SourceName, sourceID, stage string, similarity float64) error
}

// PageArchiver stores raw connector pages. Optional.
type PageArchiver interface {
	ArchivePage(ctx context.Context, runID, source string, page int, body []byte) (string, error)
}

// Summary is the per-run outcome report persisted with the run row.
type Summary struct {
	PagesFetched int `json:"pages_fetched"`
	PagesFailed  int `json:"pages_failed"`
	Fetched      int `json:"fetched"`
	New          int `json:"new"`
	Updated      int `json:"updated"`
	Unchanged    int `json:"unchanged"`
	Duplicates   int `json:"duplicates"`
	Embedded     int `json:"embedded"`
	Indexed      int `json:"indexed"`
	Tombstoned   int `json:"tombstoned"`
	Failed       int `json:"failed"`
}

// counters is the concurrent accumulator behind Summary.
type counters struct {
	mu sync.Mutex
	s  Summary
}

func (c *counters) add(f func(*Summary)) {
	c.mu.Lock()
	f(&c.s)
	c.mu.Unlock()
}

// record is one posting moving through the per-record stages. Stages drop
// records that finished early (unchanged, duplicate) or failed.
type record struct {
	posting *domain.JobPosting
	isNew   bool
	vec     []float64
}

// Pipeline drives one ingestion run: sequential page fetching, then the
// per-record stages (normalize, dedup, embed, index) each fanned out over a
// bounded worker pool. Failures are isolated per record, and a broken page
// only loses that page; the records already fetched still process.
type Pipeline struct {
	store    JobStore
	engine   *dedup.Engine
	embedder embedding.Embedder
	index    vector.Index
	archive  PageArchiver
	cfg      *config.IngestConfig
	logger   zerolog.Logger
}

// NewPipeline wires the pipeline. archive may be nil.
func NewPipeline(store JobStore, engine *dedup.Engine, embedder embedding.Embedder, index vector.Index, archive PageArchiver, cfg *config.IngestConfig, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		engine:   engine,
		embedder: embedder,
		index:    index,
		archive:  archive,
		cfg:      cfg,
		logger:   logger.With().Str("component", "ingest_pipeline").Logger(),
	}
}

// Run executes one ingestion run for a source. onStage, when non-nil, is
// called with pipeline progress for run polling.
func (p *Pipeline) Run(ctx context.Context, runID string, source JobSource, onStage func(stage string)) (*Summary, error) {
	stage := func(s string) {
		if onStage != nil {
			onStage(s)
		}
	}
	log := p.logger.With().Str("run_id", runID).Str("source", string(source.Name())).Logger()
	seenAt := time.Now()

	stage(constants.StageFetching)
	raws, pages, pagesFailed, err := p.fetchAll(ctx, runID, source, log)
	if err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", source.Name(), err)
	}

	cnt := &counters{}
	cnt.s.PagesFetched = pages
	cnt.s.PagesFailed = pagesFailed
	cnt.s.Fetched = len(raws)

	stage(constants.StageNormalizing)
	records := p.normalizeAll(source.Name(), raws, seenAt, cnt, log)

	stage(constants.StageDeduping)
	records = p.runPhase(ctx, records, cnt, log, func(r *record) (bool, error) {
		return p.dedupeRecord(ctx, r, seenAt, cnt)
	})

	stage(constants.StageEmbedding)
	records = p.runPhase(ctx, records, cnt, log, func(r *record) (bool, error) {
		return p.embedRecord(ctx, r, cnt)
	})

	stage(constants.StageIndexing)
	p.runPhase(ctx, records, cnt, log, func(r *record) (bool, error) {
		return p.indexRecord(ctx, r, cnt)
	})

	// Tombstone sweep: postings of this source not observed for a full
	// grace window are retired, and their vectors removed so they stop
	// surfacing in matches.
	cutoff := seenAt.Add(-time.Duration(p.cfg.GraceWindowHours) * time.Hour)
	stale, err := p.store.TombstoneStale(ctx, source.Name(), cutoff)
	if err != nil {
		log.Error().Err(err).Msg("tombstone sweep failed")
		cnt.add(func(s *Summary) { s.Failed++ })
	} else {
		for _, posting := range stale {
			if err := p.index.Delete(ctx, posting.JobID); err != nil {
				log.Warn().Err(err).Str("job_id", posting.JobID).Msg("failed to delete tombstoned vector")
			}
		}
		cnt.add(func(s *Summary) { s.Tombstoned += len(stale) })
	}

	stage(constants.StageDone)
	summary := cnt.s
	log.Info().
		Int("fetched", summary.Fetched).
		Int("new", summary.New).
		Int("updated", summary.Updated).
		Int("unchanged", summary.Unchanged).
		Int("duplicates", summary.Duplicates).
		Int("embedded", summary.Embedded).
		Int("indexed", summary.Indexed).
		Int("tombstoned", summary.Tombstoned).
		Int("failed", summary.Failed).
		Int("pages_failed", summary.PagesFailed).
		Msg("ingestion run finished")
	return &summary, nil
}

// fetchAll walks the connector's pages sequentially. Transient fetch errors
// retry with exponential backoff. A page that still cannot be fetched ends
// the walk but keeps the records accumulated so far; only a first page that
// yields nothing fails the run. Cursor pagination cannot skip past a broken
// page, so at most one page per run is lost.
func (p *Pipeline) fetchAll(ctx context.Context, runID string, source JobSource, log zerolog.Logger) ([]domain.RawPosting, int, int, error) {
	conn := p.connectorConfig(source.Name())
	interval := time.Duration(conn.RequestIntervalMS) * time.Millisecond

	var raws []domain.RawPosting
	cursor := ""
	page := 0
	for {
		if conn.MaxPagesPerRun > 0 && page >= conn.MaxPagesPerRun {
			log.Warn().Int("pages", page).Msg("page budget reached, stopping fetch")
			break
		}
		result, err := p.fetchPageWithRetry(ctx, source, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil, page, 0, ctx.Err()
			}
			if page == 0 {
				return nil, 0, 1, err
			}
			log.Error().Err(err).Int("page", page+1).
				Msg("page fetch failed, continuing with the records already fetched")
			return raws, page, 1, nil
		}
		page++

		if p.archive != nil && len(result.Raw) > 0 {
			if _, err := p.archive.ArchivePage(ctx, runID, string(source.Name()), page, result.Raw); err != nil {
				log.Warn().Err(err).Int("page", page).Msg("raw page archival failed")
			}
		}
		raws = append(raws, result.Postings...)

		if !result.HasMore {
			break
		}
		cursor = result.NextCursor
		if interval > 0 {
			select {
			case <-ctx.Done():
				return nil, page, 0, ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return raws, page, 0, nil
}

func (p *Pipeline) fetchPageWithRetry(ctx context.Context, source JobSource, cursor string) (*Page, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxFetchRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(p.cfg.RetryBaseMS) * time.Millisecond << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		result, err := source.FetchPage(ctx, cursor)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !domain.IsTransient(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("fetch retries exhausted: %w", lastErr)
}

func (p *Pipeline) connectorConfig(name domain.SourceName) config.ConnectorConfig {
	for _, c := range p.cfg.Connectors {
		if c.Name == name {
			return c
		}
	}
	return config.ConnectorConfig{Name: name}
}

// normalizeAll validates and normalizes the raw records. Normalization is
// pure CPU work, so it runs inline; a bad record is counted and dropped.
func (p *Pipeline) normalizeAll(source domain.SourceName, raws []domain.RawPosting, seenAt time.Time, cnt *counters, log zerolog.Logger) []*record {
	records := make([]*record, 0, len(raws))
	for _, raw := range raws {
		posting, err := Normalize(raw, source, seenAt)
		if err != nil {
			log.Warn().Err(err).Str("source_id", raw.SourceID).Msg("record failed normalization")
			cnt.add(func(s *Summary) { s.Failed++ })
			continue
		}
		records = append(records, &record{posting: posting})
	}
	return records
}

// runPhase fans the records out to the worker pool. fn reports whether the
// record moves on to the next stage; an error fails that record alone.
func (p *Pipeline) runPhase(ctx context.Context, records []*record, cnt *counters, log zerolog.Logger, fn func(*record) (bool, error)) []*record {
	workers := p.cfg.WorkerPoolSize
	if workers < 1 {
		workers = 1
	}
	keep := make([]bool, len(records))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				ok, err := fn(records[idx])
				if err != nil {
					log.Warn().Err(err).Str("source_id", records[idx].posting.SourceID).Msg("record failed")
					cnt.add(func(s *Summary) { s.Failed++ })
					continue
				}
				keep[idx] = ok
			}
		}()
	}
	for i := range records {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	out := records[:0]
	for i, k := range keep {
		if k {
			out = append(out, records[i])
		}
	}
	return out
}

// dedupeRecord resolves the record's identity: an unchanged re-observation
// just refreshes liveness, a changed posting keeps its job ID, a cross-post
// duplicate is linked, and a genuinely new posting gets its deterministic ID.
func (p *Pipeline) dedupeRecord(ctx context.Context, r *record, seenAt time.Time, cnt *counters) (bool, error) {
	posting := r.posting
	existing, err := p.store.GetBySourceKey(ctx, posting.SourceName, posting.SourceID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, fmt.Errorf("lookup source key: %w", err)
	}

	if existing != nil {
		if existing.ContentHash == posting.ContentHash {
			// Re-observed unchanged: refresh liveness, skip the paid stages.
			if err := p.store.TouchLastSeen(ctx, existing.JobID, seenAt); err != nil {
				return false, fmt.Errorf("touch last seen: %w", err)
			}
			cnt.add(func(s *Summary) { s.Unchanged++ })
			return false, nil
		}
		posting.JobID = existing.JobID
		return true, nil
	}

	result, err := p.engine.Check(ctx, posting)
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	if result.Duplicate {
		// Duplicates are linked, never stored or embedded.
		if err := p.store.LinkCrossPost(ctx, result.CanonicalJobID, posting.SourceName, posting.SourceID, result.Stage, result.Similarity); err != nil {
			return false, fmt.Errorf("link cross-post: %w", err)
		}
		cnt.add(func(s *Summary) { s.Duplicates++ })
		return false, nil
	}

	// The job ID derives from the source key, so a record whose row write
	// failed last run maps back onto the same vector point instead of
	// leaking an orphan under a fresh ID.
	posting.JobID = vector.PointID(posting.SourceKey())
	r.isNew = true
	return true, nil
}

func (p *Pipeline) embedRecord(ctx context.Context, r *record, cnt *counters) (bool, error) {
	vecs, err := p.embedder.EmbedStrings(ctx, []string{EmbedText(r.posting)})
	if err != nil {
		return false, fmt.Errorf("embed: %w", err)
	}
	r.vec = vecs[0]
	r.posting.EmbeddingID = vector.PointID(r.posting.JobID)
	cnt.add(func(s *Summary) { s.Embedded++ })
	return true, nil
}

// indexRecord writes the vector and the row as one retried unit. New and
// updated are only counted here, once the record has fully landed.
func (p *Pipeline) indexRecord(ctx context.Context, r *record, cnt *counters) (bool, error) {
	if err := p.upsertRecordWithRetry(ctx, r); err != nil {
		return false, fmt.Errorf("index: %w", err)
	}
	cnt.add(func(s *Summary) {
		s.Indexed++
		if r.isNew {
			s.New++
		} else {
			s.Updated++
		}
	})
	return true, nil
}

// upsertRecordWithRetry retries the whole indexing unit: the vector upsert
// and the relational write either both land or the record fails. The vector
// upsert is idempotent, so re-running it on a row-write retry is safe.
// Validation errors are not retried; they fail the same way every attempt.
func (p *Pipeline) upsertRecordWithRetry(ctx context.Context, r *record) error {
	signature := p.engine.DescriptionSignature(r.posting.Description)
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxIndexRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(p.cfg.RetryBaseMS) * time.Millisecond << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := p.index.Upsert(ctx, r.posting.JobID, r.vec, VectorPayload(r.posting)); err != nil {
			lastErr = err
			if !domain.IsTransient(err) {
				return err
			}
			continue
		}
		if err := p.store.UpsertPosting(ctx, r.posting, signature); err != nil {
			lastErr = fmt.Errorf("persist posting: %w", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("index retries exhausted: %w", lastErr)
}

// EmbedText builds the document the posting is embedded from: title,
// company and skills carry most of the matching signal, then the
// description body.
func EmbedText(p *domain.JobPosting) string {
	var b strings.Builder
	b.WriteString(p.Title)
	b.WriteString("\n")
	b.WriteString(p.CompanyName)
	if len(p.Skills) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(p.Skills, ", "))
	}
	if p.Description != "" {
		b.WriteString("\n")
		b.WriteString(p.Description)
	}
	return b.String()
}

// VectorPayload builds the filterable payload indexed with the vector.
func VectorPayload(p *domain.JobPosting) map[string]any {
	payload := map[string]any{
		constants.PayloadFieldSource:       string(p.SourceName),
		constants.PayloadFieldCompany:      p.CompanyName,
		constants.PayloadFieldRemotePolicy: string(p.Location.RemotePolicy),
		constants.PayloadFieldCountry:      p.Location.Country,
		constants.PayloadFieldCity:         p.Location.City,
		constants.PayloadFieldPostedAt:     p.PostedAt.Unix(),
		constants.PayloadFieldStatus:       string(p.Status),
	}
	if p.SalaryMin != nil {
		payload[constants.PayloadFieldSalaryMin] = *p.SalaryMin
	}
	if p.SalaryMax != nil {
		payload[constants.PayloadFieldSalaryMax] = *p.SalaryMax
	}
	return payload
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"jobmatch-go/internal/config"
	"jobmatch-go/internal/constants"
	"jobmatch-go/internal/dedup"
	"jobmatch-go/internal/domain"
	"jobmatch-go/internal/storage/models"
	"jobmatch-go/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// GormTracingPlugin adds an OpenTelemetry span around every GORM operation.
type GormTracingPlugin struct {
	tracer trace.Tracer
	dbName string
}

type gormSpanKey struct{}

func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize registers before/after callbacks for the CRUD verbs.
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	type hook struct {
		op     string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}
	hooks := []hook{
		{"CREATE", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"SELECT", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"UPDATE", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"DELETE", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
	}
	for _, h := range hooks {
		if err := h.before("otel:before_"+h.op, p.before(h.op)); err != nil {
			return err
		}
		if err := h.after("otel:after_"+h.op, p.after()); err != nil {
			return err
		}
	}
	return nil
}

func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}
		ctx, span := p.tracer.Start(ctx, fmt.Sprintf("%s %s", operation, tableName),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		)
		db.Statement.Context = context.WithValue(ctx, gormSpanKey{}, span)
	}
}

func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(gormSpanKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()
		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			tracing.RecordError(span, db.Error, tracing.ErrorTypeDB)
		}
		span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))
	}
}

// MySQL is the relational job store.
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL connects, migrates the schema and installs the tracing plugin.
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mysql config is required")
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.ConnectTimeoutSeconds)

	logLevel := gormlogger.Warn
	if cfg.LogLevel >= 1 && cfg.LogLevel <= 4 {
		logLevel = gormlogger.LogLevel(cfg.LogLevel)
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	if err := db.Use(&GormTracingPlugin{
		tracer: otel.Tracer("jobmatch-go/storage/mysql"),
		dbName: cfg.Database,
	}); err != nil {
		return nil, fmt.Errorf("install gorm tracing plugin: %w", err)
	}

	if err := db.AutoMigrate(
		&models.JobPosting{},
		&models.CrossPostLink{},
		&models.IngestRun{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &MySQL{db: db, cfg: cfg}, nil
}

// DB exposes the underlying handle for tests.
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close closes the connection pool.
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertPosting inserts or updates a posting keyed on source_name +
// source_id. Conflicting concurrent writes resolve last-writer-wins on
// updated_at: a stale write never clobbers a newer row.
func (m *MySQL) UpsertPosting(ctx context.Context, p *domain.JobPosting, signature dedup.Signature) error {
	row, err := models.FromDomainPosting(p, signature)
	if err != nil {
		return fmt.Errorf("encode posting: %w", err)
	}

	lww := func(col string) interface{} {
		return gorm.Expr(fmt.Sprintf("IF(VALUES(updated_at) >= updated_at, VALUES(%s), %s)", col, col))
	}
	assignments := map[string]interface{}{
		"title":             lww("title"),
		"company_name":      lww("company_name"),
		"location_json":     lww("location_json"),
		"description":       lww("description"),
		"salary_min":        lww("salary_min"),
		"salary_max":        lww("salary_max"),
		"employment_type":   lww("employment_type"),
		"skills_json":       lww("skills_json"),
		"seniority":         lww("seniority"),
		"posted_at":         lww("posted_at"),
		"fingerprint":       lww("fingerprint"),
		"content_hash":      lww("content_hash"),
		"embedding_id":      lww("embedding_id"),
		"minhash_signature": lww("minhash_signature"),
		"status":            lww("status"),
		"last_seen_at":      gorm.Expr("GREATEST(VALUES(last_seen_at), last_seen_at)"),
		"updated_at":        gorm.Expr("GREATEST(VALUES(updated_at), updated_at)"),
	}
	err = m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_name"}, {Name: "source_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert posting %s: %w", p.SourceKey(), err)
	}
	return nil
}

// GetBySourceKey looks a posting up by its external identity.
func (m *MySQL) GetBySourceKey(ctx context.Context, source domain.SourceName, sourceID string) (*domain.JobPosting, error) {
	var row models.JobPosting
	err := m.db.WithContext(ctx).
		Where("source_name = ? AND source_id = ?", string(source), sourceID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get posting %s:%s: %w", source, sourceID, err)
	}
	return row.ToDomainPosting()
}

// GetByJobID looks a posting up by its internal ID.
func (m *MySQL) GetByJobID(ctx context.Context, jobID string) (*domain.JobPosting, error) {
	var row models.JobPosting
	err := m.db.WithContext(ctx).Where("job_id = ?", jobID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get posting %s: %w", jobID, err)
	}
	return row.ToDomainPosting()
}

// FindByFingerprint implements dedup.Lookup. Only active postings count;
// a tombstoned row must not absorb a fresh posting as its duplicate.
func (m *MySQL) FindByFingerprint(ctx context.Context, fingerprint string) (*domain.JobPosting, error) {
	var row models.JobPosting
	err := m.db.WithContext(ctx).
		Where("fingerprint = ? AND status = ?", fingerprint, string(domain.PostingActive)).
		Order("updated_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find by fingerprint: %w", err)
	}
	return row.ToDomainPosting()
}

// RecentByCompany implements dedup.Lookup. Returns stored signatures for
// active same-company postings seen since the cutoff.
func (m *MySQL) RecentByCompany(ctx context.Context, company string, since time.Time) ([]dedup.StoredSignature, error) {
	var rows []models.JobPosting
	err := m.db.WithContext(ctx).
		Select("job_id", "source_name", "source_id", "minhash_signature").
		Where("company_name = ? AND status = ? AND last_seen_at >= ?",
			company, string(domain.PostingActive), since).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent by company: %w", err)
	}
	out := make([]dedup.StoredSignature, 0, len(rows))
	for _, row := range rows {
		sig, err := row.DecodeSignature()
		if err != nil || len(sig) == 0 {
			continue
		}
		out = append(out, dedup.StoredSignature{
			JobID:      row.JobID,
			SourceName: domain.SourceName(row.SourceName),
			SourceID:   row.SourceID,
			Signature:  sig,
		})
	}
	return out, nil
}

// TouchLastSeen refreshes last_seen_at for postings re-observed unchanged.
// The update is deliberately narrow so it never races content updates.
func (m *MySQL) TouchLastSeen(ctx context.Context, jobID string, seenAt time.Time) error {
	err := m.db.WithContext(ctx).Model(&models.JobPosting{}).
		Where("job_id = ?", jobID).
		Update("last_seen_at", seenAt).Error
	if err != nil {
		return fmt.Errorf("touch last_seen_at for %s: %w", jobID, err)
	}
	return nil
}

// TombstoneStale marks active postings of a source not seen since the
// cutoff as TOMBSTONED and returns their job and embedding IDs so the
// caller can drop them from the vector index.
func (m *MySQL) TombstoneStale(ctx context.Context, source domain.SourceName, cutoff time.Time) ([]domain.JobPosting, error) {
	var rows []models.JobPosting
	err := m.db.WithContext(ctx).
		Select("job_id", "embedding_id").
		Where("source_name = ? AND status = ? AND last_seen_at < ?",
			string(source), string(domain.PostingActive), cutoff).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find stale postings: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	out := make([]domain.JobPosting, len(rows))
	for i, row := range rows {
		ids[i] = row.JobID
		out[i] = domain.JobPosting{JobID: row.JobID, EmbeddingID: row.EmbeddingID}
	}
	err = m.db.WithContext(ctx).Model(&models.JobPosting{}).
		Where("job_id IN ?", ids).
		Updates(map[string]interface{}{
			"status":     string(domain.PostingTombstoned),
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return nil, fmt.Errorf("tombstone stale postings: %w", err)
	}
	return out, nil
}

// LinkCrossPost records a duplicate classification. Re-linking the same
// source key refreshes the canonical target and similarity.
func (m *MySQL) LinkCrossPost(ctx context.Context, canonicalJobID string, source domain.SourceName, sourceID, stage string, similarity float64) error {
	link := models.CrossPostLink{
		CanonicalJobID: canonicalJobID,
		SourceName:     string(source),
		SourceID:       sourceID,
		Stage:          stage,
		Similarity:     similarity,
	}
	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_name"}, {Name: "source_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"canonical_job_id", "stage", "similarity", "updated_at"}),
	}).Create(&link).Error
	if err != nil {
		return fmt.Errorf("link cross-post %s:%s: %w", source, sourceID, err)
	}
	return nil
}

// CrossPostsFor returns the duplicate links pointing at a canonical posting.
func (m *MySQL) CrossPostsFor(ctx context.Context, canonicalJobID string) ([]models.CrossPostLink, error) {
	var links []models.CrossPostLink
	err := m.db.WithContext(ctx).
		Where("canonical_job_id = ?", canonicalJobID).
		Order("created_at ASC").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("cross-posts for %s: %w", canonicalJobID, err)
	}
	return links, nil
}

// CreateRun persists a new ingestion run in PENDING state.
func (m *MySQL) CreateRun(ctx context.Context, runID string, source domain.SourceName) error {
	run := models.IngestRun{
		RunID:      runID,
		SourceName: string(source),
		Status:     constants.RunStatusPending,
	}
	if err := m.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("create run %s: %w", runID, err)
	}
	return nil
}

// MarkRunStarted transitions a run to RUNNING.
func (m *MySQL) MarkRunStarted(ctx context.Context, runID string) error {
	now := time.Now()
	err := m.db.WithContext(ctx).Model(&models.IngestRun{}).
		Where("run_id = ?", runID).
		Updates(map[string]interface{}{
			"status":     constants.RunStatusRunning,
			"stage":      constants.StageFetching,
			"started_at": &now,
		}).Error
	if err != nil {
		return fmt.Errorf("mark run %s started: %w", runID, err)
	}
	return nil
}

// UpdateRunStage records pipeline progress for pollers.
func (m *MySQL) UpdateRunStage(ctx context.Context, runID, stage string) error {
	err := m.db.WithContext(ctx).Model(&models.IngestRun{}).
		Where("run_id = ?", runID).
		Update("stage", stage).Error
	if err != nil {
		return fmt.Errorf("update run %s stage: %w", runID, err)
	}
	return nil
}

// FinishRun records the terminal status, the summary and any error text.
func (m *MySQL) FinishRun(ctx context.Context, runID, status, stage string, summary interface{}, errText string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":      status,
		"stage":       stage,
		"finished_at": &now,
	}
	if summary != nil {
		raw, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("encode run summary: %w", err)
		}
		updates["summary_json"] = raw
	}
	if errText != "" {
		updates["error_text"] = errText
	}
	err := m.db.WithContext(ctx).Model(&models.IngestRun{}).
		Where("run_id = ?", runID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

// GetRun returns a run row by ID.
func (m *MySQL) GetRun(ctx context.Context, runID string) (*models.IngestRun, error) {
	var run models.IngestRun
	err := m.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &run, nil
}

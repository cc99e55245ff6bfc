// Package models defines the GORM persistence models for the job store.
package models

import (
	"encoding/json"
	"time"

	"jobmatch-go/internal/domain"

	"gorm.io/datatypes"
)

// JobPosting is the persisted form of domain.JobPosting. Variable-shape
// fields (skills, location, MinHash signature) live in JSON columns.
type JobPosting struct {
	JobID            string         `gorm:"primaryKey;type:varchar(36)"`
	SourceName       string         `gorm:"type:varchar(50);not null;uniqueIndex:idx_source_key,priority:1"`
	SourceID         string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_source_key,priority:2"`
	Title            string         `gorm:"type:varchar(512);not null"`
	CompanyName      string         `gorm:"type:varchar(255);not null;index:idx_company_seen,priority:1"`
	LocationJSON     datatypes.JSON `gorm:"column:location_json"`
	Description      string         `gorm:"type:mediumtext"`
	SalaryMin        *int
	SalaryMax        *int
	EmploymentType   string         `gorm:"type:varchar(50)"`
	SkillsJSON       datatypes.JSON `gorm:"column:skills_json"`
	Seniority        string         `gorm:"type:varchar(20)"`
	PostedAt         time.Time
	Fingerprint      string         `gorm:"type:char(64);not null;index"`
	ContentHash      string         `gorm:"type:char(64);not null"`
	EmbeddingID      string         `gorm:"type:varchar(64)"`
	MinHashSignature datatypes.JSON `gorm:"column:minhash_signature"`
	Status           string         `gorm:"type:varchar(20);not null;default:ACTIVE;index"`
	LastSeenAt       time.Time      `gorm:"index:idx_company_seen,priority:2"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (JobPosting) TableName() string {
	return "job_postings"
}

// CrossPostLink records that a source's posting was classified as a
// duplicate of a canonical posting. Source key is unique so replays of the
// same duplicate just refresh the row.
type CrossPostLink struct {
	LinkID         uint64  `gorm:"primaryKey;autoIncrement"`
	CanonicalJobID string  `gorm:"type:varchar(36);not null;index"`
	SourceName     string  `gorm:"type:varchar(50);not null;uniqueIndex:idx_link_source,priority:1"`
	SourceID       string  `gorm:"type:varchar(255);not null;uniqueIndex:idx_link_source,priority:2"`
	Stage          string  `gorm:"type:varchar(20);not null"`
	Similarity     float64 `gorm:"not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (CrossPostLink) TableName() string {
	return "cross_post_links"
}

// IngestRun is one ingestion run of a connector, pollable by run ID.
type IngestRun struct {
	RunID       string         `gorm:"primaryKey;type:varchar(36)"`
	SourceName  string         `gorm:"type:varchar(50);not null;index"`
	Status      string         `gorm:"type:varchar(20);not null;index"`
	Stage       string         `gorm:"type:varchar(20)"`
	SummaryJSON datatypes.JSON `gorm:"column:summary_json"`
	ErrorText   string         `gorm:"type:text"`
	StartedAt   *time.Time
	FinishedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (IngestRun) TableName() string {
	return "ingest_runs"
}

// FromDomainPosting converts the domain representation into a row.
func FromDomainPosting(p *domain.JobPosting, signature []uint64) (*JobPosting, error) {
	locJSON, err := json.Marshal(p.Location)
	if err != nil {
		return nil, err
	}
	skills := p.Skills
	if skills == nil {
		skills = []string{}
	}
	skillsJSON, err := json.Marshal(skills)
	if err != nil {
		return nil, err
	}
	var sigJSON datatypes.JSON
	if signature != nil {
		raw, err := json.Marshal(signature)
		if err != nil {
			return nil, err
		}
		sigJSON = raw
	}
	return &JobPosting{
		JobID:            p.JobID,
		SourceName:       string(p.SourceName),
		SourceID:         p.SourceID,
		Title:            p.Title,
		CompanyName:      p.CompanyName,
		LocationJSON:     locJSON,
		Description:      p.Description,
		SalaryMin:        p.SalaryMin,
		SalaryMax:        p.SalaryMax,
		EmploymentType:   p.EmploymentType,
		SkillsJSON:       skillsJSON,
		Seniority:        string(p.Seniority),
		PostedAt:         p.PostedAt,
		Fingerprint:      p.Fingerprint,
		ContentHash:      p.ContentHash,
		EmbeddingID:      p.EmbeddingID,
		MinHashSignature: sigJSON,
		Status:           string(p.Status),
		LastSeenAt:       p.LastSeenAt,
		UpdatedAt:        p.UpdatedAt,
	}, nil
}

// ToDomainPosting converts a row back into the domain representation.
func (m *JobPosting) ToDomainPosting() (*domain.JobPosting, error) {
	var loc domain.Location
	if len(m.LocationJSON) > 0 {
		if err := json.Unmarshal(m.LocationJSON, &loc); err != nil {
			return nil, err
		}
	}
	var skills []string
	if len(m.SkillsJSON) > 0 {
		if err := json.Unmarshal(m.SkillsJSON, &skills); err != nil {
			return nil, err
		}
	}
	return &domain.JobPosting{
		JobID:          m.JobID,
		SourceID:       m.SourceID,
		SourceName:     domain.SourceName(m.SourceName),
		Title:          m.Title,
		CompanyName:    m.CompanyName,
		Location:       loc,
		Description:    m.Description,
		SalaryMin:      m.SalaryMin,
		SalaryMax:      m.SalaryMax,
		EmploymentType: m.EmploymentType,
		Skills:         skills,
		Seniority:      domain.Seniority(m.Seniority),
		PostedAt:       m.PostedAt,
		Fingerprint:    m.Fingerprint,
		ContentHash:    m.ContentHash,
		EmbeddingID:    m.EmbeddingID,
		Status:         domain.PostingStatus(m.Status),
		LastSeenAt:     m.LastSeenAt,
		UpdatedAt:      m.UpdatedAt,
	}, nil
}

// DecodeSignature parses the stored MinHash signature column.
func (m *JobPosting) DecodeSignature() ([]uint64, error) {
	if len(m.MinHashSignature) == 0 {
		return nil, nil
	}
	var sig []uint64
	if err := json.Unmarshal(m.MinHashSignature, &sig); err != nil {
		return nil, err
	}
	return sig, nil
}

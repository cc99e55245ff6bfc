package domain

import (
	"time"
)

// SourceName identifies a job board connector.
type SourceName string

const (
	SourceGreenhouse SourceName = "greenhouse"
	SourceLever      SourceName = "lever"
	SourceIndeed     SourceName = "indeed"
	SourceManual     SourceName = "manual"
)

// RemotePolicy describes where the work happens.
type RemotePolicy string

const (
	RemoteOnsite  RemotePolicy = "onsite"
	RemoteHybrid  RemotePolicy = "hybrid"
	RemoteFull    RemotePolicy = "remote"
	RemoteUnknown RemotePolicy = ""
)

// Seniority is a rung on the seniority ladder. The ladder ordering is what
// the scoring engine measures distance on.
type Seniority string

const (
	SeniorityIntern    Seniority = "intern"
	SeniorityJunior    Seniority = "junior"
	SeniorityMid       Seniority = "mid"
	SenioritySenior    Seniority = "senior"
	SeniorityStaff     Seniority = "staff"
	SeniorityPrincipal Seniority = "principal"
	SeniorityDirector  Seniority = "director"
	SeniorityUnknown   Seniority = ""
)

// SeniorityLadder orders levels from most junior to most senior.
var SeniorityLadder = []Seniority{
	SeniorityIntern,
	SeniorityJunior,
	SeniorityMid,
	SenioritySenior,
	SeniorityStaff,
	SeniorityPrincipal,
	SeniorityDirector,
}

// LadderIndex returns the position of s on the ladder, or -1 when unknown.
func LadderIndex(s Seniority) int {
	for i, l := range SeniorityLadder {
		if l == s {
			return i
		}
	}
	return -1
}

// Location is the structured form of a posting's location field.
type Location struct {
	City         string       `json:"city,omitempty"`
	Region       string       `json:"region,omitempty"`
	Country      string       `json:"country,omitempty"`
	RemotePolicy RemotePolicy `json:"remote_policy,omitempty"`
}

// PostingStatus is the lifecycle state of a stored posting.
type PostingStatus string

const (
	PostingActive     PostingStatus = "ACTIVE"
	PostingTombstoned PostingStatus = "TOMBSTONED"
)

// JobPosting is the canonical representation of one job opening after
// normalization. SourceID+SourceName is the unique external key.
type JobPosting struct {
	JobID          string        `json:"job_id"`
	SourceID       string        `json:"source_id"`
	SourceName     SourceName    `json:"source_name"`
	Title          string        `json:"title"`
	CompanyName    string        `json:"company_name"`
	Location       Location      `json:"location"`
	Description    string        `json:"description"`
	SalaryMin      *int          `json:"salary_min,omitempty"`
	SalaryMax      *int          `json:"salary_max,omitempty"`
	EmploymentType string        `json:"employment_type,omitempty"`
	Skills         []string      `json:"skills"`
	Seniority      Seniority     `json:"seniority"`
	PostedAt       time.Time     `json:"posted_at"`
	Fingerprint    string        `json:"fingerprint"`
	ContentHash    string        `json:"content_hash"`
	EmbeddingID    string        `json:"embedding_id,omitempty"`
	Status         PostingStatus `json:"status"`
	LastSeenAt     time.Time     `json:"last_seen_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// SourceKey returns the unique external identity of the posting.
func (p *JobPosting) SourceKey() string {
	return string(p.SourceName) + ":" + p.SourceID
}

// RawPosting is what a JobSource connector hands the pipeline before
// normalization. Fields are kept loose on purpose; connectors differ widely
// in what they can supply.
type RawPosting struct {
	SourceID       string   `json:"source_id"`
	Title          string   `json:"title"`
	CompanyName    string   `json:"company_name"`
	Location       string   `json:"location"`
	Description    string   `json:"description"`
	Salary         string   `json:"salary"`
	EmploymentType string   `json:"employment_type"`
	Skills         []string `json:"skills"`
	PostedAt       string   `json:"posted_at"`
}

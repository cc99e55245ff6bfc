package constants

// Run status values for ingestion runs.
const (
	RunStatusPending = "PENDING"
	RunStatusRunning = "RUNNING"
	RunStatusDone    = "DONE"
	RunStatusFailed  = "FAILED"
)

// Per-record ingestion pipeline stages, in execution order.
const (
	StageFetching    = "FETCHING"
	StageNormalizing = "NORMALIZING"
	StageDeduping    = "DEDUPING"
	StageEmbedding   = "EMBEDDING"
	StageIndexing    = "INDEXING"
	StageDone        = "DONE"
	StageFailed      = "FAILED"
)

// Vector payload field names shared between the ingestion pipeline (writer)
// and the match service (filter builder).
const (
	PayloadFieldJobID        = "job_id"
	PayloadFieldSource       = "source_name"
	PayloadFieldCompany      = "company_name"
	PayloadFieldRemotePolicy = "remote_policy"
	PayloadFieldCountry      = "country"
	PayloadFieldCity         = "city"
	PayloadFieldSalaryMin    = "salary_min"
	PayloadFieldSalaryMax    = "salary_max"
	PayloadFieldPostedAt     = "posted_at" // unix seconds, used for range filters and tiebreaks
	PayloadFieldStatus       = "status"
)

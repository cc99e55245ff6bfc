package domain

import "time"

// FactorScores holds the four named sub-scores, each on a 0-100 scale.
type FactorScores struct {
	Skills    int `json:"skills"`
	Seniority int `json:"seniority"`
	Location  int `json:"location"`
	Salary    int `json:"salary"`
}

// MatchResult is the outcome of scoring one candidate against one job.
// It is transient; the only persistence is a short-TTL cache entry.
type MatchResult struct {
	JobID         string       `json:"job_id"`
	CandidateID   string       `json:"candidate_id"`
	FitIndex      int          `json:"fit_index"`
	FactorScores  FactorScores `json:"factor_scores"`
	Rationale     string       `json:"rationale"`
	MatchedSkills []string     `json:"matched_skills"`
	MissingSkills []string     `json:"missing_skills"`
	ComputedAt    time.Time    `json:"computed_at"`
}

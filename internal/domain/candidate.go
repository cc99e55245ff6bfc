package domain

// CandidateProfile is the read-only matching projection of a job seeker.
// The engine never writes it back; ownership lives with the external
// profile service.
type CandidateProfile struct {
	CandidateID        string    `json:"candidate_id"`
	Skills             []string  `json:"skills"`
	TargetTitles       []string  `json:"target_titles"`
	Seniority          Seniority `json:"seniority"`
	PreferredLocations []string  `json:"preferred_locations"`
	RemotePreference   bool      `json:"remote_preference"`
	AcceptsHybrid      bool      `json:"accepts_hybrid"`
	SalaryExpectation  *int      `json:"salary_expectation_min,omitempty"`
	Summary            string    `json:"summary,omitempty"`
	ProfileEmbeddingID string    `json:"profile_embedding_id,omitempty"`
}

package scoring

import (
	"testing"

	"jobmatch-go/internal/config"
	"jobmatch-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultWeights() config.WeightsConfig {
	return config.WeightsConfig{Skills: 0.40, Seniority: 0.30, Location: 0.15, Salary: 0.15}
}

func intPtr(v int) *int { return &v }

func TestScoreDeterminism(t *testing.T) {
	engine := NewEngine(defaultWeights())
	candidate := &domain.CandidateProfile{
		CandidateID:       "cand-1",
		Skills:            []string{"go", "kubernetes", "aws"},
		Seniority:         domain.SenioritySenior,
		SalaryExpectation: intPtr(160000),
	}
	job := &domain.JobPosting{
		JobID:     "job-1",
		Skills:    []string{"go", "kubernetes"},
		Seniority: domain.SenioritySenior,
		Location:  domain.Location{RemotePolicy: domain.RemoteFull},
		SalaryMin: intPtr(150000),
		SalaryMax: intPtr(180000),
	}

	first := engine.Score(candidate, job)
	second := engine.Score(candidate, job)
	assert.Equal(t, first.FitIndex, second.FitIndex)
	assert.Equal(t, first.FactorScores, second.FactorScores)
	assert.Equal(t, first.Rationale, second.Rationale)
}

func TestScorePerfectFit(t *testing.T) {
	engine := NewEngine(defaultWeights())
	candidate := &domain.CandidateProfile{
		CandidateID:       "cand-1",
		Skills:            []string{"go", "kubernetes", "aws"},
		Seniority:         domain.SenioritySenior,
		SalaryExpectation: intPtr(160000),
	}
	job := &domain.JobPosting{
		JobID:     "job-1",
		Skills:    []string{"go", "kubernetes"},
		Seniority: domain.SenioritySenior,
		Location:  domain.Location{RemotePolicy: domain.RemoteFull},
		SalaryMin: intPtr(150000),
		SalaryMax: intPtr(180000),
	}

	result := engine.Score(candidate, job)
	assert.Equal(t, 100, result.FitIndex)
	assert.Equal(t, domain.FactorScores{Skills: 100, Seniority: 100, Location: 100, Salary: 100}, result.FactorScores)
	assert.Equal(t, []string{"go", "kubernetes"}, result.MatchedSkills)
	assert.Empty(t, result.MissingSkills)
}

func TestScoreExampleScenario(t *testing.T) {
	// Senior Backend Engineer, 150000-180000, {go, kubernetes} vs a senior
	// remote-preferring candidate with {go, kubernetes, aws} expecting
	// 160000: fit must land at 90 or above with full skill coverage.
	engine := NewEngine(defaultWeights())
	candidate := &domain.CandidateProfile{
		CandidateID:       "cand-1",
		Skills:            []string{"go", "kubernetes", "aws"},
		Seniority:         domain.SenioritySenior,
		RemotePreference:  true,
		SalaryExpectation: intPtr(160000),
	}
	job := &domain.JobPosting{
		JobID:     "job-1",
		Title:     "Senior Backend Engineer",
		Skills:    []string{"go", "kubernetes"},
		Seniority: domain.SenioritySenior,
		SalaryMin: intPtr(150000),
		SalaryMax: intPtr(180000),
	}

	result := engine.Score(candidate, job)
	require.GreaterOrEqual(t, result.FitIndex, 90)
	assert.Equal(t, []string{"go", "kubernetes"}, result.MatchedSkills)
	assert.Empty(t, result.MissingSkills)
}

func TestSkillsScore(t *testing.T) {
	tests := []struct {
		name      string
		candidate []string
		job       []string
		want      int
	}{
		{"empty job skills is neutral", []string{"go"}, nil, 50},
		{"full coverage", []string{"go", "k8s"}, []string{"go", "k8s"}, 100},
		{"half coverage", []string{"go"}, []string{"go", "k8s"}, 50},
		{"no overlap", []string{"java"}, []string{"go", "k8s"}, 0},
		{"case insensitive", []string{"Go"}, []string{"go"}, 100},
		{"rounding", []string{"a"}, []string{"a", "b", "c"}, 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, _ := SkillsScore(tt.candidate, tt.job)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSkillsScoreMatchedMissing(t *testing.T) {
	score, matched, missing := SkillsScore([]string{"go", "aws"}, []string{"go", "kubernetes", "terraform"})
	assert.Equal(t, 33, score)
	assert.Equal(t, []string{"go"}, matched)
	assert.Equal(t, []string{"kubernetes", "terraform"}, missing)
}

func TestSeniorityScore(t *testing.T) {
	tests := []struct {
		name      string
		candidate domain.Seniority
		job       domain.Seniority
		want      int
	}{
		{"exact match", domain.SenioritySenior, domain.SenioritySenior, 100},
		{"adjacent up", domain.SeniorityMid, domain.SenioritySenior, 70},
		{"adjacent down", domain.SenioritySenior, domain.SeniorityMid, 70},
		{"two apart", domain.SeniorityJunior, domain.SenioritySenior, 30},
		{"far apart", domain.SeniorityIntern, domain.SeniorityDirector, 30},
		{"unknown candidate", domain.SeniorityUnknown, domain.SenioritySenior, 50},
		{"unknown job", domain.SenioritySenior, domain.SeniorityUnknown, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SeniorityScore(tt.candidate, tt.job))
		})
	}
}

func TestLocationScore(t *testing.T) {
	tests := []struct {
		name      string
		candidate domain.CandidateProfile
		location  domain.Location
		want      int
	}{
		{
			"remote job always matches",
			domain.CandidateProfile{},
			domain.Location{RemotePolicy: domain.RemoteFull},
			100,
		},
		{
			"preferred city",
			domain.CandidateProfile{PreferredLocations: []string{"Berlin"}},
			domain.Location{City: "Berlin", Country: "Germany", RemotePolicy: domain.RemoteOnsite},
			100,
		},
		{
			"preferred country case folded",
			domain.CandidateProfile{PreferredLocations: []string{"germany"}},
			domain.Location{City: "Berlin", Country: "Germany", RemotePolicy: domain.RemoteOnsite},
			100,
		},
		{
			"hybrid accepted",
			domain.CandidateProfile{AcceptsHybrid: true},
			domain.Location{City: "Berlin", RemotePolicy: domain.RemoteHybrid},
			60,
		},
		{
			"hybrid rejected",
			domain.CandidateProfile{},
			domain.Location{City: "Berlin", RemotePolicy: domain.RemoteHybrid},
			0,
		},
		{
			"onsite mismatch",
			domain.CandidateProfile{PreferredLocations: []string{"Paris"}},
			domain.Location{City: "Berlin", RemotePolicy: domain.RemoteOnsite},
			0,
		},
		{
			"no location data is neutral",
			domain.CandidateProfile{},
			domain.Location{},
			50,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &domain.JobPosting{Location: tt.location}
			assert.Equal(t, tt.want, LocationScore(&tt.candidate, job))
		})
	}
}

func TestSalaryScore(t *testing.T) {
	tests := []struct {
		name        string
		expectation *int
		jobMin      *int
		jobMax      *int
		want        int
	}{
		{"no expectation is neutral", nil, intPtr(100000), intPtr(120000), 50},
		{"no job salary is neutral", intPtr(100000), nil, nil, 50},
		{"covered", intPtr(160000), intPtr(150000), intPtr(180000), 100},
		{"at ceiling", intPtr(180000), intPtr(150000), intPtr(180000), 100},
		{"below floor still full", intPtr(100000), intPtr(150000), intPtr(180000), 100},
		{"ten percent over ceiling", intPtr(200000), intPtr(150000), intPtr(180000), 90},
		{"half over ceiling", intPtr(200000), nil, intPtr(100000), 50},
		{"only min available", intPtr(100000), intPtr(120000), nil, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SalaryScore(tt.expectation, tt.jobMin, tt.jobMax))
		})
	}
}

func TestRationaleNamesTopFactorsAndGap(t *testing.T) {
	engine := NewEngine(defaultWeights())
	candidate := &domain.CandidateProfile{
		CandidateID: "cand-1",
		Skills:      []string{"go"},
		Seniority:   domain.SenioritySenior,
	}
	job := &domain.JobPosting{
		JobID:     "job-1",
		Skills:    []string{"go", "rust"},
		Seniority: domain.SenioritySenior,
		Location:  domain.Location{RemotePolicy: domain.RemoteFull},
	}

	result := engine.Score(candidate, job)
	assert.Contains(t, result.Rationale, "seniority fit")
	assert.Contains(t, result.Rationale, "Biggest gap: rust")
}

func TestFitIndexClamped(t *testing.T) {
	// Weights that sum to 1 always keep the weighted sum in [0, 100], so
	// the clamp is exercised via the rounding edge.
	engine := NewEngine(defaultWeights())
	candidate := &domain.CandidateProfile{CandidateID: "cand-1"}
	job := &domain.JobPosting{JobID: "job-1", Skills: []string{"go"}}

	result := engine.Score(candidate, job)
	assert.GreaterOrEqual(t, result.FitIndex, 0)
	assert.LessOrEqual(t, result.FitIndex, 100)
}

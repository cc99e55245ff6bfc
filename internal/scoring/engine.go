// Package scoring computes the deterministic multi-factor Fit Index
// between a candidate profile and a job posting.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"jobmatch-go/internal/config"
	"jobmatch-go/internal/domain"
)

// Engine scores candidates against jobs. Score is a pure function of its
// inputs: no randomness, no I/O, so two calls with the same state always
// agree.
type Engine struct {
	weights config.WeightsConfig
	now     func() time.Time
}

// NewEngine builds an engine with validated weights.
func NewEngine(weights config.WeightsConfig) *Engine {
	return &Engine{weights: weights, now: time.Now}
}

// Score computes the Fit Index and its factor breakdown.
func (e *Engine) Score(candidate *domain.CandidateProfile, job *domain.JobPosting) *domain.MatchResult {
	skills, matched, missing := SkillsScore(candidate.Skills, job.Skills)
	seniority := SeniorityScore(candidate.Seniority, job.Seniority)
	location := LocationScore(candidate, job)
	salary := SalaryScore(candidate.SalaryExpectation, job.SalaryMin, job.SalaryMax)

	factors := domain.FactorScores{
		Skills:    skills,
		Seniority: seniority,
		Location:  location,
		Salary:    salary,
	}
	weighted := e.weights.Skills*float64(skills) +
		e.weights.Seniority*float64(seniority) +
		e.weights.Location*float64(location) +
		e.weights.Salary*float64(salary)
	fit := int(math.Round(weighted))
	if fit < 0 {
		fit = 0
	}
	if fit > 100 {
		fit = 100
	}

	return &domain.MatchResult{
		JobID:         job.JobID,
		CandidateID:   candidate.CandidateID,
		FitIndex:      fit,
		FactorScores:  factors,
		Rationale:     e.rationale(factors, missing),
		MatchedSkills: matched,
		MissingSkills: missing,
		ComputedAt:    e.now(),
	}
}

// SkillsScore is the coverage of the job's required skills, scaled to
// 0-100. A job listing no skills scores a neutral 50 instead of dividing
// by zero.
func SkillsScore(candidateSkills, jobSkills []string) (score int, matched, missing []string) {
	matched = []string{}
	missing = []string{}
	if len(jobSkills) == 0 {
		return 50, matched, missing
	}
	have := make(map[string]bool, len(candidateSkills))
	for _, s := range candidateSkills {
		have[strings.ToLower(strings.TrimSpace(s))] = true
	}
	for _, s := range jobSkills {
		if have[strings.ToLower(strings.TrimSpace(s))] {
			matched = append(matched, s)
		} else {
			missing = append(missing, s)
		}
	}
	score = int(math.Round(100 * float64(len(matched)) / float64(len(jobSkills))))
	return score, matched, missing
}

// SeniorityScore measures ladder distance: exact rung 100, adjacent 70,
// two or more apart 30. An unknown rung on either side is neutral.
func SeniorityScore(candidate, job domain.Seniority) int {
	ci := domain.LadderIndex(candidate)
	ji := domain.LadderIndex(job)
	if ci < 0 || ji < 0 {
		return 50
	}
	switch dist := abs(ci - ji); dist {
	case 0:
		return 100
	case 1:
		return 70
	default:
		return 30
	}
}

// LocationScore: 100 for a remote job or a preferred-location match, 60
// for hybrid the candidate accepts, 0 for an incompatible onsite job. A
// posting with no location data at all is neutral rather than penalized.
func LocationScore(candidate *domain.CandidateProfile, job *domain.JobPosting) int {
	loc := job.Location
	if loc.RemotePolicy == domain.RemoteFull {
		return 100
	}
	if loc.RemotePolicy == domain.RemoteUnknown && loc.City == "" && loc.Region == "" && loc.Country == "" {
		return 50
	}
	if preferredLocationMatch(candidate.PreferredLocations, loc) {
		return 100
	}
	if loc.RemotePolicy == domain.RemoteHybrid && candidate.AcceptsHybrid {
		return 60
	}
	return 0
}

func preferredLocationMatch(preferred []string, loc domain.Location) bool {
	for _, p := range preferred {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.EqualFold(p, loc.City) || strings.EqualFold(p, loc.Region) || strings.EqualFold(p, loc.Country) {
			return true
		}
	}
	return false
}

// SalaryScore: 100 when the posted range covers the expectation, linear
// interpolation toward 0 as the shortfall grows, neutral 50 when either
// side lacks salary data. A job paying above expectation is a full match.
func SalaryScore(expectation, jobMin, jobMax *int) int {
	if expectation == nil || (jobMin == nil && jobMax == nil) {
		return 50
	}
	want := *expectation
	if want <= 0 {
		return 50
	}
	ceiling := jobMax
	if ceiling == nil {
		ceiling = jobMin
	}
	if want <= *ceiling {
		return 100
	}
	gap := float64(want-*ceiling) / float64(want)
	score := int(math.Round(100 * (1 - gap)))
	if score < 0 {
		score = 0
	}
	return score
}

// factorContribution pairs a factor with its weighted contribution, for
// rationale ordering.
type factorContribution struct {
	name  string
	score int
	value float64
}

// rationale template-fills the two strongest weighted factors and the
// first missing skill. Pure string composition, no model call.
func (e *Engine) rationale(f domain.FactorScores, missing []string) string {
	contributions := []factorContribution{
		{"skills alignment", f.Skills, e.weights.Skills * float64(f.Skills)},
		{"seniority fit", f.Seniority, e.weights.Seniority * float64(f.Seniority)},
		{"location fit", f.Location, e.weights.Location * float64(f.Location)},
		{"salary fit", f.Salary, e.weights.Salary * float64(f.Salary)},
	}
	sort.SliceStable(contributions, func(i, j int) bool {
		return contributions[i].value > contributions[j].value
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Driven by %s (%d/100) and %s (%d/100).",
		contributions[0].name, contributions[0].score,
		contributions[1].name, contributions[1].score)
	if len(missing) > 0 {
		fmt.Fprintf(&b, " Biggest gap: %s.", missing[0])
	}
	return b.String()
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

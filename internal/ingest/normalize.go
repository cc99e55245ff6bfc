package ingest

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"jobmatch-go/internal/dedup"
	"jobmatch-go/internal/domain"
)

// Normalize turns a connector's raw posting into the canonical form and
// derives its fingerprint and content hash. Title and company are the only
// hard requirements; everything else degrades to an absent value rather
// than failing the record.
func Normalize(raw domain.RawPosting, source domain.SourceName, now time.Time) (*domain.JobPosting, error) {
	title := strings.TrimSpace(raw.Title)
	company := strings.TrimSpace(raw.CompanyName)
	if raw.SourceID == "" {
		return nil, &domain.InputValidationError{Field: "source_id", Reason: "must not be empty"}
	}
	if title == "" {
		return nil, &domain.InputValidationError{Field: "title", Reason: "must not be empty"}
	}
	if company == "" {
		return nil, &domain.InputValidationError{Field: "company_name", Reason: "must not be empty"}
	}

	loc := ParseLocation(raw.Location)
	salaryMin, salaryMax := ParseSalary(raw.Salary)

	p := &domain.JobPosting{
		SourceID:       raw.SourceID,
		SourceName:     source,
		Title:          title,
		CompanyName:    company,
		Location:       loc,
		Description:    strings.TrimSpace(raw.Description),
		SalaryMin:      salaryMin,
		SalaryMax:      salaryMax,
		EmploymentType: strings.ToLower(strings.TrimSpace(raw.EmploymentType)),
		Skills:         NormalizeSkills(raw.Skills),
		Seniority:      InferSeniority(title),
		PostedAt:       parsePostedAt(raw.PostedAt, now),
		Status:         domain.PostingActive,
		LastSeenAt:     now,
		UpdatedAt:      now,
	}
	p.Fingerprint = dedup.Fingerprint(p.Title, p.CompanyName, p.Location, p.SalaryMin, p.SalaryMax)
	p.ContentHash = dedup.ContentHash(p.Description)
	return p, nil
}

var salaryNumber = regexp.MustCompile(`(\d[\d,.]*)\s*([kK])?`)

// ParseSalary extracts an annual salary range from free text. Handles
// "120000-150000", "$120,000 - $150,000" and "120k–150k" shapes. A single
// number becomes a point range. Unparseable input yields (nil, nil); the
// scoring engine treats that as neutral rather than zero.
func ParseSalary(s string) (*int, *int) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	matches := salaryNumber.FindAllStringSubmatch(s, -1)
	var values []int
	for _, m := range matches {
		numStr := strings.ReplaceAll(m[1], ",", "")
		numStr = strings.TrimSuffix(numStr, ".")
		f, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			continue
		}
		if m[2] != "" {
			f *= 1000
		}
		v := int(f)
		// Sub-thousand values with no k suffix are noise like "401" in
		// "401(k)" or hourly rates this parser does not handle.
		if v < 1000 {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, nil
	}
	sort.Ints(values)
	min := values[0]
	max := values[len(values)-1]
	return &min, &max
}

// ParseLocation splits "City, Region, Country" style text into a structured
// location and infers the remote policy from keywords.
func ParseLocation(s string) domain.Location {
	loc := domain.Location{RemotePolicy: domain.RemoteUnknown}
	s = strings.TrimSpace(s)
	if s == "" {
		return loc
	}

	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "hybrid"):
		loc.RemotePolicy = domain.RemoteHybrid
	case strings.Contains(lower, "remote"):
		loc.RemotePolicy = domain.RemoteFull
	case strings.Contains(lower, "on-site") || strings.Contains(lower, "onsite") || strings.Contains(lower, "in office"):
		loc.RemotePolicy = domain.RemoteOnsite
	}

	// Strip the policy words so "Remote - Berlin, Germany" still yields a city.
	cleaned := s
	for _, word := range []string{"remote", "hybrid", "on-site", "onsite", "in office"} {
		cleaned = removeWordFold(cleaned, word)
	}
	cleaned = strings.Trim(cleaned, " -–,()/")

	parts := strings.Split(cleaned, ",")
	var fields []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			fields = append(fields, p)
		}
	}
	switch len(fields) {
	case 0:
	case 1:
		loc.City = fields[0]
	case 2:
		loc.City = fields[0]
		loc.Country = fields[1]
	default:
		loc.City = fields[0]
		loc.Region = fields[1]
		loc.Country = fields[len(fields)-1]
	}
	if loc.RemotePolicy == domain.RemoteUnknown && loc.City != "" {
		loc.RemotePolicy = domain.RemoteOnsite
	}
	return loc
}

func removeWordFold(s, word string) string {
	for {
		idx := strings.Index(strings.ToLower(s), word)
		if idx < 0 {
			return s
		}
		s = s[:idx] + s[idx+len(word):]
	}
}

// seniorityKeywords is checked in order; the first hit wins, so the more
// specific rungs come before the generic ones.
var seniorityKeywords = []struct {
	keyword string
	level   domain.Seniority
}{
	{"intern", domain.SeniorityIntern},
	{"principal", domain.SeniorityPrincipal},
	{"director", domain.SeniorityDirector},
	{"head of", domain.SeniorityDirector},
	{"vp ", domain.SeniorityDirector},
	{"staff", domain.SeniorityStaff},
	{"senior", domain.SenioritySenior},
	{"sr.", domain.SenioritySenior},
	{"sr ", domain.SenioritySenior},
	{"lead", domain.SenioritySenior},
	{"junior", domain.SeniorityJunior},
	{"jr.", domain.SeniorityJunior},
	{"jr ", domain.SeniorityJunior},
	{"entry level", domain.SeniorityJunior},
	{"mid-level", domain.SeniorityMid},
	{"mid level", domain.SeniorityMid},
}

// InferSeniority guesses the seniority rung from the job title. Returns
// SeniorityUnknown when no keyword matches; the scoring engine scores an
// unknown rung neutrally.
func InferSeniority(title string) domain.Seniority {
	lower := " " + strings.ToLower(title) + " "
	for _, k := range seniorityKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.level
		}
	}
	return domain.SeniorityUnknown
}

// NormalizeSkills lower-cases, trims and de-duplicates a skill list,
// preserving first-seen order.
func NormalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := make(map[string]bool, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

var postedAtLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parsePostedAt(s string, fallback time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	for _, layout := range postedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil && unix > 0 {
		return time.Unix(unix, 0)
	}
	return fallback
}

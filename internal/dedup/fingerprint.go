package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"jobmatch-go/internal/domain"
)

// NormalizeText lower-cases, strips punctuation and collapses whitespace.
// It is the canonical normalization for both fingerprints and shingling,
// so the same text always produces the same derived values.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// SalaryBand buckets a salary range into a coarse band so that trivially
// different postings of the same opening (e.g. 150000 vs 150500) still
// fingerprint identically. Band width is 25k on the midpoint.
func SalaryBand(min, max *int) string {
	if min == nil && max == nil {
		return "none"
	}
	lo, hi := 0, 0
	if min != nil {
		lo = *min
	}
	if max != nil {
		hi = *max
	} else {
		hi = lo
	}
	if min == nil {
		lo = hi
	}
	mid := (lo + hi) / 2
	return fmt.Sprintf("band_%d", mid/25000)
}

// Fingerprint derives the exact-duplicate identity hash from normalized
// posting fields. Deterministic given the same normalized inputs.
func Fingerprint(title, company string, loc domain.Location, salaryMin, salaryMax *int) string {
	parts := []string{
		NormalizeText(title),
		NormalizeText(company),
		NormalizeText(loc.City),
		NormalizeText(loc.Region),
		NormalizeText(loc.Country),
		string(loc.RemotePolicy),
		SalaryBand(salaryMin, salaryMax),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// ContentHash hashes the normalized description. A posting whose content
// hash is unchanged since the last run is never re-embedded.
func ContentHash(description string) string {
	sum := sha256.Sum256([]byte(NormalizeText(description)))
	return hex.EncodeToString(sum[:])
}

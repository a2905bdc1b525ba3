package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"carscout/internal/models"
	"carscout/internal/siteconfig"
)

const (
	MinYear       = 1980
	MaxPrice      = 10_000_000
	MaxMileage    = 2_000_000
	MaxResults    = 200
	MaxKeywords   = 10
	maxKeywordLen = 40
	suggestCutoff = 0.85
)

var (
	namePattern    = regexp.MustCompile(`^[A-Za-z0-9 .&'-]+$`)
	profilePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	whitespace     = regexp.MustCompile(`\s+`)
	markup         = regexp.MustCompile(`[<>"'&]`)
)

// ValidateQuery checks a structured search before it is turned into a URL
func ValidateQuery(q models.StructuredQuery, now time.Time) error {
	if strings.TrimSpace(q.Make) == "" {
		return fmt.Errorf("make is required")
	}
	if err := validateName("make", q.Make); err != nil {
		return err
	}
	if q.Model != "" {
		if err := validateName("model", q.Model); err != nil {
			return err
		}
	}

	maxYear := now.Year() + 1
	if err := inRange("year_min", q.YearMin, MinYear, maxYear); err != nil {
		return err
	}
	if err := inRange("year_max", q.YearMax, MinYear, maxYear); err != nil {
		return err
	}
	if q.YearMin != nil && q.YearMax != nil && *q.YearMin > *q.YearMax {
		return fmt.Errorf("year_min must not be greater than year_max")
	}

	if err := inRange("price_min", q.PriceMin, 0, MaxPrice); err != nil {
		return err
	}
	if err := inRange("price_max", q.PriceMax, 0, MaxPrice); err != nil {
		return err
	}
	if q.PriceMin != nil && q.PriceMax != nil && *q.PriceMin > *q.PriceMax {
		return fmt.Errorf("price_min must not be greater than price_max")
	}
	if err := inRange("mileage_max", q.MileageMax, 0, MaxMileage); err != nil {
		return err
	}

	if len(q.Location) > 64 {
		return fmt.Errorf("location must be at most 64 characters")
	}
	if len(q.Keywords) > MaxKeywords {
		return fmt.Errorf("at most %d keywords are allowed", MaxKeywords)
	}
	for _, k := range q.Keywords {
		if _, err := SanitizeText(k, maxKeywordLen); err != nil {
			return fmt.Errorf("keyword %q: %w", k, err)
		}
	}
	return nil
}

// NormalizeQuery returns a copy of a validated query with keywords
// sanitized, lowercased and deduplicated
func NormalizeQuery(q models.StructuredQuery) (models.StructuredQuery, error) {
	out := q.Clone()
	out.Make = strings.TrimSpace(out.Make)
	out.Model = strings.TrimSpace(out.Model)
	out.Location = strings.TrimSpace(out.Location)
	for i, k := range out.Keywords {
		clean, err := SanitizeText(k, maxKeywordLen)
		if err != nil {
			return q, fmt.Errorf("keyword %q: %w", k, err)
		}
		out.Keywords[i] = clean
	}
	out.Keywords = out.KeywordSet()
	return out, nil
}

// ValidateMaxResults checks the requested result count
func ValidateMaxResults(n int) error {
	if n < 1 || n > MaxResults {
		return fmt.Errorf("maxResults must be between 1 and %d", MaxResults)
	}
	return nil
}

// ValidateProfileID validates that a browser profile id is safe to use as a
// directory name
func ValidateProfileID(id string) error {
	if !profilePattern.MatchString(id) {
		return fmt.Errorf("profile id must be 1-64 letters, numbers, underscores or hyphens")
	}
	return nil
}

// ValidateBrand checks that a brand is configured, suggesting the closest
// configured brand when it is not
func ValidateBrand(site *siteconfig.Config, brand string) error {
	if err := validateName("brand", brand); err != nil {
		return err
	}
	if site.KnownCategory(brand) {
		return nil
	}
	if best, score := site.Suggest(brand); score >= suggestCutoff {
		return fmt.Errorf("unknown brand %q, did you mean %q?", brand, best)
	}
	return fmt.Errorf("unknown brand %q", brand)
}

// SanitizeText normalizes whitespace and strips markup characters
func SanitizeText(s string, max int) (string, error) {
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	s = markup.ReplaceAllString(s, "")

	if len(s) < 1 || len(s) > max {
		return "", fmt.Errorf("text must be between 1 and %d characters", max)
	}
	return s, nil
}

func validateName(field, v string) error {
	v = strings.TrimSpace(v)
	if len(v) < 1 || len(v) > 40 {
		return fmt.Errorf("%s must be between 1 and 40 characters", field)
	}
	if !namePattern.MatchString(v) {
		return fmt.Errorf("%s contains invalid characters", field)
	}
	return nil
}

func inRange(field string, v *int, lo, hi int) error {
	if v == nil {
		return nil
	}
	if *v < lo || *v > hi {
		return fmt.Errorf("%s must be between %d and %d", field, lo, hi)
	}
	return nil
}

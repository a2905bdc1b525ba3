package validation

import (
	"strings"
	"testing"
	"time"

	"carscout/internal/models"
	"carscout/internal/siteconfig"
)

var now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestValidateQuery(t *testing.T) {
	cases := []struct {
		name    string
		q       models.StructuredQuery
		wantErr string
	}{
		{"valid", models.StructuredQuery{Make: "Toyota", Model: "Camry", YearMin: models.Int(2020), PriceMax: models.Int(30000)}, ""},
		{"missingMake", models.StructuredQuery{Model: "Camry"}, "make is required"},
		{"badChars", models.StructuredQuery{Make: "Toyota<script>"}, "make contains invalid characters"},
		{"hyphenatedMake", models.StructuredQuery{Make: "Mercedes-Benz", Model: "C 300"}, ""},
		{"yearTooOld", models.StructuredQuery{Make: "Honda", YearMin: models.Int(1975)}, "year_min must be between 1980 and 2026"},
		{"yearNextModelYear", models.StructuredQuery{Make: "Honda", YearMax: models.Int(2026)}, ""},
		{"yearsInverted", models.StructuredQuery{Make: "Honda", YearMin: models.Int(2022), YearMax: models.Int(2020)}, "year_min must not be greater than year_max"},
		{"negativePrice", models.StructuredQuery{Make: "Honda", PriceMin: models.Int(-1)}, "price_min must be between 0 and 10000000"},
		{"pricesInverted", models.StructuredQuery{Make: "Honda", PriceMin: models.Int(20000), PriceMax: models.Int(10000)}, "price_min must not be greater than price_max"},
		{"mileage", models.StructuredQuery{Make: "Honda", MileageMax: models.Int(3_000_000)}, "mileage_max must be between 0 and 2000000"},
		{"tooManyKeywords", models.StructuredQuery{Make: "Honda", Keywords: strings.Fields("a b c d e f g h i j k")}, "at most 10 keywords are allowed"},
		{"blankKeyword", models.StructuredQuery{Make: "Honda", Keywords: []string{"awd", "  "}}, `keyword "  ": text must be between 1 and 40 characters`},
		{"longKeyword", models.StructuredQuery{Make: "Honda", Keywords: []string{strings.Repeat("k", 41)}}, `keyword "` + strings.Repeat("k", 41) + `": text must be between 1 and 40 characters`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateQuery(tc.q, now)
			if tc.wantErr == "" && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tc.wantErr != "" {
				if err == nil || err.Error() != tc.wantErr {
					t.Fatalf("expected error %q, got %v", tc.wantErr, err)
				}
			}
		})
	}
}

func TestValidateMaxResults(t *testing.T) {
	for _, n := range []int{1, 10, 200} {
		if err := ValidateMaxResults(n); err != nil {
			t.Fatalf("expected %d to be valid, got %v", n, err)
		}
	}
	for _, n := range []int{0, -5, 201} {
		if err := ValidateMaxResults(n); err == nil {
			t.Fatalf("expected %d to be rejected", n)
		}
	}
}

func TestValidateProfileID(t *testing.T) {
	cases := []struct {
		name  string
		id    string
		valid bool
	}{
		{"generated", "cargurus_20250601_abc123", true},
		{"default", "default", true},
		{"empty", "", false},
		{"traversal", "../etc", false},
		{"slash", "a/b", false},
		{"tooLong", strings.Repeat("a", 65), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateProfileID(tc.id)
			if tc.valid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.valid && err == nil {
				t.Fatalf("expected %q to be rejected", tc.id)
			}
		})
	}
}

func TestValidateBrand(t *testing.T) {
	site := siteconfig.MustLoad()

	if err := ValidateBrand(site, "Toyota"); err != nil {
		t.Fatalf("expected Toyota to be valid, got %v", err)
	}

	err := ValidateBrand(site, "Toyta")
	if err == nil || !strings.Contains(err.Error(), `did you mean "toyota"`) {
		t.Fatalf("expected a suggestion for Toyta, got %v", err)
	}

	err = ValidateBrand(site, "Qqqqqq")
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Fatalf("expected an error without suggestion, got %v", err)
	}
}

func TestSanitizeText(t *testing.T) {
	got, err := SanitizeText("  blue   <b>leather</b> seats ", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "blue bleather/b seats" {
		t.Fatalf("unexpected sanitized text %q", got)
	}

	if _, err := SanitizeText("   ", 100); err == nil {
		t.Fatalf("expected empty text to be rejected")
	}
	if _, err := SanitizeText(strings.Repeat("x", 101), 100); err == nil {
		t.Fatalf("expected long text to be rejected")
	}
}

func TestNormalizeQuery(t *testing.T) {
	in := models.StructuredQuery{
		Make:     " Toyota ",
		Model:    "Camry",
		Keywords: []string{"Hybrid", " <b>AWD</b>", "hybrid", "sun   roof"},
	}
	got, err := NormalizeQuery(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"bawd/b", "hybrid", "sun roof"}
	if strings.Join(got.Keywords, "|") != strings.Join(want, "|") {
		t.Fatalf("expected keywords %v, got %v", want, got.Keywords)
	}
	if got.Make != "Toyota" {
		t.Fatalf("expected trimmed make, got %q", got.Make)
	}
	if in.Keywords[0] != "Hybrid" {
		t.Fatalf("input query must not be modified, got %v", in.Keywords)
	}

	if _, err := NormalizeQuery(models.StructuredQuery{Make: "Honda", Keywords: []string{"<>"}}); err == nil {
		t.Fatalf("expected a keyword that sanitizes to nothing to be rejected")
	}
}

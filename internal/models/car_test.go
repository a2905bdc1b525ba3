package models

import (
	"reflect"
	"testing"
)

func TestListingRecordValid(t *testing.T) {
	cases := []struct {
		name   string
		record *ListingRecord
		want   bool
	}{
		{"nil", nil, false},
		{"missing id", &ListingRecord{Link: "https://www.cargurus.ca/Cars/link/1"}, false},
		{"missing link", &ListingRecord{ID: "1"}, false},
		{"blank link", &ListingRecord{ID: "1", Link: "   "}, false},
		{"complete", &ListingRecord{ID: "1", Link: "https://www.cargurus.ca/Cars/link/1"}, true},
	}

	for _, tc := range cases {
		if got := tc.record.Valid(); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestModelRecordRequiresTrimPath(t *testing.T) {
	if (&ModelRecord{Name: "MDX", Code: "m4"}).Valid() {
		t.Fatalf("expected model without make/model path to be invalid")
	}
	if !(&ModelRecord{Name: "MDX", Code: "m4/d16"}).Valid() {
		t.Fatalf("expected model with trim path to be valid")
	}
}

func TestStructuredQueryCloneIsIndependent(t *testing.T) {
	q := StructuredQuery{
		Make:     "Toyota",
		Model:    "Camry",
		YearMin:  Int(2020),
		PriceMax: Int(30000),
		Keywords: []string{"hybrid"},
	}

	c := q.Clone()
	*c.YearMin = 1999
	c.Keywords[0] = "manual"

	if *q.YearMin != 2020 {
		t.Fatalf("expected original year to be untouched, got %d", *q.YearMin)
	}
	if q.Keywords[0] != "hybrid" {
		t.Fatalf("expected original keywords to be untouched, got %v", q.Keywords)
	}
	if c.PriceMin != nil {
		t.Fatalf("expected absent field to stay absent")
	}
}

func TestKeywordSetNormalizes(t *testing.T) {
	q := StructuredQuery{Keywords: []string{" Sunroof", "AWD", "awd", "", "leather"}}
	want := []string{"awd", "leather", "sunroof"}
	if got := q.KeywordSet(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSubject(t *testing.T) {
	if got := (StructuredQuery{Make: "Toyota"}).Subject(); got != "Toyota" {
		t.Fatalf("unexpected subject %q", got)
	}
	if got := (StructuredQuery{Make: "Toyota", Model: "Camry"}).Subject(); got != "Toyota Camry" {
		t.Fatalf("unexpected subject %q", got)
	}
}

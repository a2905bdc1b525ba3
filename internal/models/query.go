package models

import (
	"sort"
	"strings"
)

// StructuredQuery is a search already translated from free text. Treat it as
// read-only once built; use With* helpers to derive variants.
type StructuredQuery struct {
	Make       string   `json:"make"`
	Model      string   `json:"model,omitempty"`
	YearMin    *int     `json:"year_min,omitempty"`
	YearMax    *int     `json:"year_max,omitempty"`
	PriceMin   *int     `json:"price_min,omitempty"`
	PriceMax   *int     `json:"price_max,omitempty"`
	MileageMax *int     `json:"mileage_max,omitempty"`
	Location   string   `json:"location,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
}

// Int returns a pointer to v, for optional query fields.
func Int(v int) *int {
	return &v
}

// Clone returns a deep copy so callers can never share optional fields.
func (q StructuredQuery) Clone() StructuredQuery {
	out := q
	out.YearMin = cloneInt(q.YearMin)
	out.YearMax = cloneInt(q.YearMax)
	out.PriceMin = cloneInt(q.PriceMin)
	out.PriceMax = cloneInt(q.PriceMax)
	out.MileageMax = cloneInt(q.MileageMax)
	if q.Keywords != nil {
		out.Keywords = append([]string(nil), q.Keywords...)
	}
	return out
}

// KeywordSet returns keywords lowercased, deduplicated and sorted.
func (q StructuredQuery) KeywordSet() []string {
	seen := make(map[string]struct{}, len(q.Keywords))
	var out []string
	for _, k := range q.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Subject is a short human label used in logs and run records.
func (q StructuredQuery) Subject() string {
	return strings.TrimSpace(strings.TrimSpace(q.Make) + " " + strings.TrimSpace(q.Model))
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// SearchRequest is the HTTP body for a listing search
type SearchRequest struct {
	Query      StructuredQuery `json:"query" binding:"required"`
	MaxResults int             `json:"maxResults" binding:"omitempty,min=1,max=200"`
	Radius     int             `json:"radius,omitempty"`
	ProfileID  string          `json:"profileId,omitempty"`
}

// SearchResponse is the final payload of a search
type SearchResponse struct {
	OperationID string          `json:"operationId"`
	Count       int             `json:"count"`
	Listings    []ListingRecord `json:"listings"`
	Error       string          `json:"error,omitempty"`
}

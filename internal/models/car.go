package models

import (
	"strings"
	"time"
)

// PlatformCarGurus tags every record produced by the CarGurus crawler.
const PlatformCarGurus = "cargurus"

// ListingRecord represents a single vehicle listing taken from a results page
type ListingRecord struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Price    string `json:"price"` // Currency-tagged, e.g. "CA$27,995"
	Year     *int   `json:"year,omitempty"`
	Mileage  string `json:"mileage,omitempty"` // Keep as string to preserve formatting like "41,565 km"
	Location string `json:"location,omitempty"`
	Link     string `json:"link"`
	ImageURL string `json:"imageUrl,omitempty"`
	Platform string `json:"platform"`
}

// Valid reports whether the record can be returned to a caller.
// Records without an id or a link are dropped, never surfaced.
func (l *ListingRecord) Valid() bool {
	return l != nil && strings.TrimSpace(l.ID) != "" && strings.TrimSpace(l.Link) != ""
}

// BrandRecord is a make offered by the site's make filter
type BrandRecord struct {
	Name  string `json:"name"`
	Code  string `json:"code"` // Site category code, e.g. "m7"
	Count int    `json:"count,omitempty"`
}

// Valid reports whether the brand carries a usable name and code.
func (b *BrandRecord) Valid() bool {
	return b != nil && b.Name != "" && b.Code != ""
}

// ModelRecord is a model offered under a make, e.g. "MDX" -> "m4/d16"
type ModelRecord struct {
	Brand string `json:"brand"`
	Name  string `json:"name"`
	Code  string `json:"code"` // make/model trim path
	Count int    `json:"count,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Valid reports whether the model carries a usable name and trim path.
func (m *ModelRecord) Valid() bool {
	return m != nil && m.Name != "" && strings.Contains(m.Code, "/")
}

// AttemptOutcome is the terminal outcome of a single crawl attempt
type AttemptOutcome string

const (
	OutcomeSuccess   AttemptOutcome = "success"
	OutcomeRetryable AttemptOutcome = "retryable-failure"
	OutcomeFatal     AttemptOutcome = "fatal-failure"
)

// CrawlAttempt records one Navigate->Classify pass within an operation.
// Attempts are scoped to the operation and never persisted.
type CrawlAttempt struct {
	Index   int            `json:"index"` // 1-based
	Backoff time.Duration  `json:"backoff"`
	Outcome AttemptOutcome `json:"outcome"`
}

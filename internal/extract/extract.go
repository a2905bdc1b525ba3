// Package extract turns classified result pages into records.
//
// Each extractor is a strategy: it names the containers that make a page
// "populated" and parses one container at a time. A container that fails to
// parse is dropped and counted; it never stops the rest of the batch.
package extract

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Result is the outcome of extracting one page.
type Result[T any] struct {
	Records []T
	Seen    int    // containers found
	Dropped int    // containers that produced no valid record
	Via     string // container selector that matched
}

// Extractor parses records of type T from an HTML snapshot.
type Extractor[T any] interface {
	// Extract parses every container on the page. The error is reserved for
	// documents that cannot be read at all.
	Extract(html string) (Result[T], error)
	// Key identifies a record for de-duplication across pages.
	Key(record T) string
	// ResultSelectors mark a page that holds at least one container.
	ResultSelectors() []string
}

// each runs parse over every container matched by the first selector with
// matches, recovering from per-item panics.
func each[T any](html string, containers []string, logger *slog.Logger, parse func(*goquery.Selection) (T, bool)) (Result[T], error) {
	var res Result[T]
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return res, fmt.Errorf("failed to parse page: %w", err)
	}

	var items *goquery.Selection
	for _, sel := range containers {
		found := doc.Find(sel)
		if found.Length() > 0 {
			items = found
			res.Via = sel
			break
		}
	}
	if items == nil {
		return res, nil
	}

	items.Each(func(i int, s *goquery.Selection) {
		res.Seen++
		rec, ok := safeParse(i, s, logger, parse)
		if !ok {
			res.Dropped++
			return
		}
		res.Records = append(res.Records, rec)
	})
	return res, nil
}

func safeParse[T any](i int, s *goquery.Selection, logger *slog.Logger, parse func(*goquery.Selection) (T, bool)) (rec T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("item parse panic recovered", slog.Int("index", i), slog.Any("panic", r))
			ok = false
		}
	}()
	return parse(s)
}

// firstText returns the trimmed text of the first selector that yields
// non-empty text inside s.
func firstText(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if t := clean(s.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// firstAttr returns the first non-empty attribute value among selectors.
func firstAttr(s *goquery.Selection, attr string, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := s.Find(sel).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

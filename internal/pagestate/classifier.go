// Package pagestate decides what kind of page the browser is looking at.
//
// Classification works on an HTML snapshot of the rendered DOM, so the same
// rules apply to a live session and to fixture pages in tests.
package pagestate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// State is the classification of a rendered page.
type State int

const (
	UnknownError State = iota
	Loading
	ValidResults
	EmptyResults
	Challenge
	Blocked
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case ValidResults:
		return "valid_results"
	case EmptyResults:
		return "empty_results"
	case Challenge:
		return "challenge"
	case Blocked:
		return "blocked"
	default:
		return "unknown_error"
	}
}

// Source yields the current DOM as HTML. Browser sessions implement it.
type Source interface {
	HTML(ctx context.Context) (string, error)
}

// ListingResultSelectors mark a populated search results list.
var ListingResultSelectors = []string{
	"a[data-testid='car-blade-link']",
	"[data-testid='srp-listing-tile']",
	"[data-cg-ft='srp-listing-blade']",
	"div[class*='listing'] a[href*='/Cars/link/']",
}

var (
	loadingSelectors = []string{
		"[data-testid='loading-spinner']",
		"[data-testid='srp-loading']",
		".loading-spinner",
		"[class*='_spinner_']",
		"[class*='loadingSpinner']",
	}
	loadingPhrases = []string{"loading", "please wait", "fetching data"}

	challengeSelectors = []string{
		"iframe[src*='captcha-delivery.com']",
		"iframe[src*='datadome']",
		"[id*='datadome']",
		".nc-container",
		"[class*='geetest']",
		".tcaptcha",
		"[class*='tcaptcha']",
		".slider-captcha",
		"#px-captcha",
	}
	challengeTitles = []string{"captcha", "verify you are human", "are you a robot", "security check"}

	emptyResultSelectors = []string{
		"[data-testid='srp-no-results']",
		"[class*='_noResults_']",
		"[data-cg-ft='srp-no-results']",
	}
	emptyResultPhrases = []string{
		"oops! you've filtered out all of the available listings",
		"adjust your filters to see more listings",
		"no results found",
		"no listings found",
		"no vehicles found",
		"no cars found",
		"no matches found",
		"no results match your search",
		"we couldn't find any vehicles",
		"no vehicles match your criteria",
		"search returned no results",
		"no listings match your filters",
	}

	blockedHeadingWords = []string{"blocked", "forbidden", "access denied", "403", "404"}
	blockedTitles       = []string{
		"access denied", "access blocked", "forbidden", "not found", "page not found",
		"error 403", "error 404", "temporarily unavailable", "under maintenance",
	}
	blockedSelectors = []string{
		"div[class*='blocked']", "div[class*='forbidden']", "div[class*='not-found']",
		"div[id*='blocked']", "div[id*='forbidden']", "div[id*='not-found']",
		"div[class*='error-page']", "div[id*='error-page']",
	}
	blockedPhrases = []string{
		"access denied", "access blocked", "page not found", "403 forbidden", "404 not found",
		"under maintenance", "temporarily unavailable", "service unavailable",
		"too many requests", "you have been blocked",
	}
)

// Classifier applies the page rules. The result selectors decide what counts
// as a populated page, so each extraction strategy brings its own.
type Classifier struct {
	results []string
	logger  *slog.Logger
}

// New creates a Classifier. With no selectors it recognises listing results.
func New(resultSelectors ...string) *Classifier {
	if len(resultSelectors) == 0 {
		resultSelectors = ListingResultSelectors
	}
	return &Classifier{
		results: append([]string(nil), resultSelectors...),
		logger:  slog.Default(),
	}
}

// WithLogger returns a copy of c that logs through logger.
func (c *Classifier) WithLogger(logger *slog.Logger) *Classifier {
	cp := *c
	cp.logger = logger
	return &cp
}

// Classify reads the current DOM from src and classifies it. Read failures
// are UnknownError.
func (c *Classifier) Classify(ctx context.Context, src Source) State {
	html, err := src.HTML(ctx)
	if err != nil {
		c.logger.Debug("page read failed", slog.String("error", err.Error()))
		return UnknownError
	}
	return c.ClassifyHTML(html)
}

// ClassifyHTML classifies an HTML snapshot. It never panics: anything it
// cannot recognise is UnknownError.
func (c *Classifier) ClassifyHTML(html string) (state State) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("classifier panic recovered", slog.Any("panic", r))
			state = UnknownError
		}
	}()

	if strings.TrimSpace(html) == "" {
		return Blocked
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return UnknownError
	}

	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	body := strings.ToLower(collapse(doc.Find("body").Text()))

	switch {
	case isLoading(doc, title, body):
		return Loading
	case isChallenge(doc, title):
		return Challenge
	case isEmpty(doc, body):
		return EmptyResults
	case c.hasResults(doc):
		return ValidResults
	case isBlocked(doc, title, body):
		return Blocked
	default:
		return UnknownError
	}
}

// CountResults returns how many result items the snapshot holds under the
// first matching result selector.
func (c *Classifier) CountResults(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}
	for _, sel := range c.results {
		if n := doc.Find(sel).Length(); n > 0 {
			return n
		}
	}
	return 0
}

func (c *Classifier) hasResults(doc *goquery.Document) bool {
	for _, sel := range c.results {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func isLoading(doc *goquery.Document, title, body string) bool {
	if anySelector(doc, loadingSelectors) {
		return true
	}
	if containsAny(title, loadingPhrases) {
		return true
	}
	// Only a near-empty body counts; result pages mention "loading" too.
	return len(body) < 200 && containsAny(body, loadingPhrases)
}

func isChallenge(doc *goquery.Document, title string) bool {
	return anySelector(doc, challengeSelectors) || containsAny(title, challengeTitles)
}

func isEmpty(doc *goquery.Document, body string) bool {
	return anySelector(doc, emptyResultSelectors) || containsAny(body, emptyResultPhrases)
}

func isBlocked(doc *goquery.Document, title, body string) bool {
	if containsAny(title, blockedTitles) || containsAny(title, blockedHeadingWords) {
		return true
	}
	h1 := strings.ToLower(doc.Find("h1").First().Text())
	if containsAny(h1, blockedHeadingWords) {
		return true
	}
	if anySelector(doc, blockedSelectors) {
		return true
	}
	return containsAny(body, blockedPhrases)
}

func anySelector(doc *goquery.Document, selectors []string) bool {
	for _, sel := range selectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	if s == "" {
		return false
	}
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package extract

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"carscout/internal/models"
)

var categoryCode = regexp.MustCompile(`^m[0-9]+$`)

// BrandContainers are the make filter entries, newest markup first.
var BrandContainers = []string{
	"[data-testid='make-option']",
	"#Make-accordion-content button[value]",
	"select[name='entitySelectingHelper.selectedEntity'] option[value]",
}

// ModelContainers are the make & model filter entries, newest markup first.
var ModelContainers = []string{
	"#MakeAndModel-accordion-content button[value*='/']",
	"select[name='makeModelTrimPaths'] option[value*='/']",
	"div[class*='_accordionContent_'] button[value*='/']",
}

// ModelFilterToggles open a collapsed make & model filter. They only match
// while it is closed, so clicking never folds an open one.
var ModelFilterToggles = []string{
	"#MakeAndModel-accordion-trigger[aria-expanded='false']",
	"button[aria-controls*='MakeAndModel'][aria-expanded='false']",
}

// ShowAllModels expands a make & model list cut short by the site.
var ShowAllModels = []string{
	"#MakeAndModel-accordion-content button[class*='_toggleShowAllButton_']",
	"button[class*='_toggleShowAllButton_']",
	"button[data-testid='show-all-models']",
}

var (
	placeholderBrands = map[string]bool{"any make": true, "select make": true, "all makes": true, "reset": true}
	placeholderModels = map[string]bool{"any model": true, "select model": true, "all models": true, "reset": true}
)

// BrandExtractor reads the make filter of an unfiltered results page.
type BrandExtractor struct {
	logger *slog.Logger
}

// NewBrandExtractor creates a BrandExtractor.
func NewBrandExtractor(logger *slog.Logger) *BrandExtractor {
	return &BrandExtractor{logger: loggerOr(logger)}
}

// ResultSelectors cover every markup BrandContainers reads, restricted to
// entries carrying a make code so a bare placeholder does not count.
func (e *BrandExtractor) ResultSelectors() []string {
	return []string{
		"[data-testid='make-option']",
		"#Make-accordion-content button[value^='m']",
		"select[name='entitySelectingHelper.selectedEntity'] option[value^='m']",
	}
}

func (e *BrandExtractor) Key(b models.BrandRecord) string {
	return b.Code
}

func (e *BrandExtractor) Extract(html string) (Result[models.BrandRecord], error) {
	return each(html, BrandContainers, e.logger, func(s *goquery.Selection) (models.BrandRecord, bool) {
		code := strings.TrimSpace(s.AttrOr("value", ""))
		name, count := splitCount(s.Text())
		rec := models.BrandRecord{Name: name, Code: code, Count: count}
		if placeholderBrands[strings.ToLower(name)] || !categoryCode.MatchString(code) {
			return rec, false
		}
		return rec, rec.Valid()
	})
}

// ModelExtractor reads the make & model filter for one make.
type ModelExtractor struct {
	Brand string
	// URLFor builds the search URL for a trim path. Nil leaves URL empty.
	URLFor func(code string) string

	logger *slog.Logger
}

// NewModelExtractor creates a ModelExtractor for brand.
func NewModelExtractor(brand string, urlFor func(string) string, logger *slog.Logger) *ModelExtractor {
	return &ModelExtractor{Brand: brand, URLFor: urlFor, logger: loggerOr(logger)}
}

func (e *ModelExtractor) ResultSelectors() []string {
	return append([]string(nil), ModelContainers...)
}

func (e *ModelExtractor) Key(m models.ModelRecord) string {
	return m.Code
}

func (e *ModelExtractor) Extract(html string) (Result[models.ModelRecord], error) {
	return each(html, ModelContainers, e.logger, func(s *goquery.Selection) (models.ModelRecord, bool) {
		code := strings.TrimSpace(s.AttrOr("value", ""))
		name, count := splitCount(s.Text())
		rec := models.ModelRecord{Brand: e.Brand, Name: name, Code: code, Count: count}

		slash := strings.Index(code, "/")
		if slash < 0 || slash == len(code)-1 || placeholderModels[strings.ToLower(name)] {
			return rec, false
		}
		if e.URLFor != nil {
			rec.URL = e.URLFor(code)
		}
		return rec, rec.Valid()
	})
}

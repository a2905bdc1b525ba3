package extract

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"carscout/internal/models"
)

// ListingContainers are tried in order; the first selector with matches is
// used for the whole page.
var ListingContainers = []string{
	"a[data-testid='car-blade-link']",
	"[data-testid='srp-listing-tile']",
	"[data-cg-ft='srp-listing-blade']",
	"div[class*='listing'] a[href*='/Cars/link/']",
}

type fieldSelectors struct {
	title, price, mileage, location, image []string
}

var primaryFields = fieldSelectors{
	title: []string{
		"div[data-testid='srp-tile-listing-title'] h4",
		"h4[data-cg-ft='srp-listing-blade-title']",
	},
	price:    []string{"h4[data-testid='srp-tile-price']", "[data-testid='srp-tile-price']"},
	mileage:  []string{"p[data-testid='srp-tile-mileage']", "[data-testid='srp-tile-mileage']"},
	location: []string{"p[data-testid='srp-tile-bucket-text']", "[data-testid='srp-tile-bucket-text']"},
	image:    []string{"img[data-testid='srp-tile-image']", "picture img"},
}

var fallbackFields = fieldSelectors{
	title:    []string{"h4[class*='_titleText_']", "h3", "h2", "h4", ".title"},
	price:    []string{"[class*='_priceText_']", ".price", "[class*='price']"},
	mileage:  []string{"[class*='_leftColumnContent_']", ".mileage", "[class*='mileage']"},
	location: []string{".location", ".city", "[class*='location']"},
	image:    []string{"img"},
}

// ListingExtractor parses search result tiles into ListingRecords.
type ListingExtractor struct {
	base   *url.URL
	now    func() time.Time
	logger *slog.Logger
}

// NewListingExtractor resolves relative links against baseURL.
func NewListingExtractor(baseURL string, logger *slog.Logger) *ListingExtractor {
	base, err := url.Parse(baseURL)
	if err != nil || !base.IsAbs() {
		base = nil
	}
	return &ListingExtractor{base: base, now: time.Now, logger: loggerOr(logger)}
}

// WithClock returns a copy that reads the current year from now.
func (e *ListingExtractor) WithClock(now func() time.Time) *ListingExtractor {
	cp := *e
	cp.now = now
	return &cp
}

// ResultSelectors implements Extractor.
func (e *ListingExtractor) ResultSelectors() []string {
	return append([]string(nil), ListingContainers...)
}

// Key implements Extractor.
func (e *ListingExtractor) Key(r models.ListingRecord) string {
	return r.ID
}

// Extract implements Extractor.
func (e *ListingExtractor) Extract(html string) (Result[models.ListingRecord], error) {
	res, err := each(html, ListingContainers, e.logger, e.parseTile)
	if err != nil {
		return res, err
	}
	if res.Dropped > 0 {
		e.logger.Debug("dropped malformed listings",
			slog.Int("dropped", res.Dropped),
			slog.Int("seen", res.Seen),
			slog.String("container", res.Via))
	}
	return res, nil
}

func (e *ListingExtractor) parseTile(s *goquery.Selection) (models.ListingRecord, bool) {
	rec := models.ListingRecord{Platform: models.PlatformCarGurus}

	title := firstText(s, primaryFields.title...)
	price := firstText(s, primaryFields.price...)
	mileage := firstText(s, primaryFields.mileage...)
	location := firstText(s, primaryFields.location...)
	image := firstAttr(s, "src", primaryFields.image...)
	link := e.primaryLink(s)

	if title == "" || price == "" || link == "" || mileage == "" || location == "" {
		text := clean(s.Text())
		if title == "" {
			title = firstText(s, fallbackFields.title...)
			if title == "" {
				title = firstAttr(s, "alt", "img[alt]")
			}
		}
		if price == "" {
			price = firstText(s, fallbackFields.price...)
			if price == "" {
				price = priceInText.FindString(text)
			}
		}
		if mileage == "" {
			mileage = firstText(s, fallbackFields.mileage...)
			if mileage == "" {
				mileage = mileageInTxt.FindString(text)
			}
		}
		if location == "" {
			location = firstText(s, fallbackFields.location...)
		}
		if link == "" {
			link = e.fallbackLink(s)
		}
	}
	if image == "" {
		image = firstAttr(s, "src", fallbackFields.image...)
		if image == "" {
			image = firstAttr(s, "data-src", "img[data-src]")
		}
	}

	if link == "" {
		return rec, false
	}
	rec.Link = link
	rec.ID = ListingID(link)
	rec.Title = title
	rec.Price = NormalizePrice(price)
	rec.Mileage = NormalizeMileage(mileage)
	rec.Location = location
	rec.ImageURL = Absolute(e.base, image)
	rec.Year = ParseYear(title, e.now())
	return rec, rec.Valid()
}

func (e *ListingExtractor) primaryLink(s *goquery.Selection) string {
	if goquery.NodeName(s) == "a" {
		if href, ok := s.Attr("href"); ok {
			return Absolute(e.base, href)
		}
		return ""
	}
	return Absolute(e.base, firstAttr(s, "href", "a[data-testid='car-blade-link']"))
}

func (e *ListingExtractor) fallbackLink(s *goquery.Selection) string {
	candidates := []string{
		firstAttr(s, "href", "a[href*='/Cars/link/']"),
		firstAttr(s, "href", "a[href*='/Cars/']"),
		firstAttr(s, "href", "a[href*='/cars/']"),
	}
	if parent := s.Closest("a[href]"); parent.Length() > 0 {
		href, _ := parent.Attr("href")
		candidates = append(candidates, href)
	}
	for _, c := range candidates {
		if link := Absolute(e.base, c); link != "" && strings.Contains(strings.ToLower(link), "/cars/") {
			return link
		}
	}
	return ""
}

// Package fixture renders CarGurus-shaped pages for tests and local dry runs.
package fixture

import (
	"fmt"
	"html"
	"strings"
)

// Listing describes one result tile.
type Listing struct {
	ID       string
	Title    string
	Price    string
	Mileage  string
	Location string
	Image    string
	// Fallback renders the tile with the legacy class-fragment markup
	// instead of data-testid attributes.
	Fallback bool
	// Malformed renders a tile with no link and no title.
	Malformed bool
}

// Model is one entry in the make & model filter.
type Model struct {
	Name  string
	Code  string
	Count int
}

// Brand is one entry in the make filter.
type Brand struct {
	Name  string
	Code  string
	Count int
}

// CamryListings returns n well-formed Toyota Camry tiles with ids starting at
// start.
func CamryListings(start, n int) []Listing {
	out := make([]Listing, 0, n)
	for i := 0; i < n; i++ {
		id := start + i
		out = append(out, Listing{
			ID:       fmt.Sprintf("%d", 400000000+id),
			Title:    fmt.Sprintf("%d Toyota Camry SE", 2020+id%4),
			Price:    fmt.Sprintf("CA$%d,%03d", 24+id%6, (id*137)%1000),
			Mileage:  fmt.Sprintf("%d,%03d km", 10+id, (id*71)%1000),
			Location: "Toronto, ON",
			Image:    fmt.Sprintf("https://static.cargurus.com/images/forsale/%d.jpeg", id),
		})
	}
	return out
}

// ListingsPage renders a results page holding the given tiles.
func ListingsPage(listings []Listing) string {
	var sb strings.Builder
	sb.WriteString(`<!DOCTYPE html><html><head><title>Used Toyota Camry for Sale | CarGurus.ca</title></head><body>`)
	sb.WriteString(`<main><div data-testid="srp-results"><h1>Used cars for sale</h1>`)
	for _, l := range listings {
		sb.WriteString(tile(l))
	}
	sb.WriteString(`</div></main></body></html>`)
	return sb.String()
}

func tile(l Listing) string {
	if l.Malformed {
		return `<a data-testid="car-blade-link"><div data-testid="srp-tile-listing-title"></div><h4 data-testid="srp-tile-price">CA$1</h4></a>`
	}
	link := "/Cars/link/" + l.ID
	if l.Fallback {
		return fmt.Sprintf(`<div class="listing_tile_x9"><a href="%s">`+
			`<h4 class="_titleText_abc12">%s</h4>`+
			`<span class="_priceText_def34">%s</span>`+
			`<div class="_leftColumnContent_ghi56">%s</div>`+
			`<div class="location">%s</div>`+
			`<img src="%s"></a></div>`,
			link, esc(l.Title), esc(l.Price), esc(l.Mileage), esc(l.Location), esc(l.Image))
	}
	return fmt.Sprintf(`<a data-testid="car-blade-link" href="%s">`+
		`<div data-testid="srp-tile-listing-title"><h4>%s</h4></div>`+
		`<h4 data-testid="srp-tile-price">%s</h4>`+
		`<p data-testid="srp-tile-mileage">%s</p>`+
		`<p data-testid="srp-tile-bucket-text">%s</p>`+
		`<img src="%s"></a>`,
		link, esc(l.Title), esc(l.Price), esc(l.Mileage), esc(l.Location), esc(l.Image))
}

// FallbackListingsPage renders tiles only through the legacy markup.
func FallbackListingsPage(listings []Listing) string {
	for i := range listings {
		listings[i].Fallback = true
	}
	var sb strings.Builder
	sb.WriteString(`<html><head><title>Used cars | CarGurus.ca</title></head><body><div class="srp-listings">`)
	for _, l := range listings {
		sb.WriteString(tile(l))
	}
	sb.WriteString(`</div></body></html>`)
	return sb.String()
}

// LoadingPage renders the skeleton shown while results stream in.
func LoadingPage() string {
	return `<html><head><title>CarGurus.ca</title></head><body><div data-testid="loading-spinner"></div><p>Loading...</p></body></html>`
}

// ChallengePage renders a DataDome interstitial.
func ChallengePage() string {
	return `<html><head><title>cargurus.ca</title></head><body>` +
		`<iframe src="https://geo.captcha-delivery.com/captcha/?initialCid=abc" width="100%" height="100%"></iframe>` +
		`</body></html>`
}

// SliderChallengePage renders a slider puzzle widget.
func SliderChallengePage() string {
	return `<html><head><title>Verification</title></head><body><div class="nc-container"><span>Slide to verify</span></div></body></html>`
}

// SliderWidgetPage renders a slider puzzle with a draggable handle at the
// left of its track. Boxes are in data-box attributes for scripted drivers.
func SliderWidgetPage() string {
	return `<html><head><title>Verification</title></head><body><div class="nc-container">` +
		`<div class="nc_scale" data-box="100,400,300,34">` +
		`<span class="nc_iconfont btn_slide" data-box="100,400,40,34"></span>` +
		`</div><span>Slide to verify</span></div></body></html>`
}

// EmptyPage renders the "filtered out everything" results page.
func EmptyPage() string {
	return `<html><head><title>Used cars | CarGurus.ca</title></head><body>` +
		`<div class="_noResults_x1"><h2>Oops! You've filtered out all of the available listings.</h2>` +
		`<p>Adjust your filters to see more listings.</p></div></body></html>`
}

// BlockedPage renders an access-denied page.
func BlockedPage() string {
	return `<html><head><title>Access Denied</title></head><body><h1>Access Denied</h1><p>You don't have permission to access this server.</p></body></html>`
}

// UnknownPage renders a page with no recognisable structure.
func UnknownPage() string {
	return `<html><head><title>CarGurus.ca</title></head><body><div id="app"><nav>Buy Sell Finance</nav></div></body></html>`
}

// BrandsPage renders the make filter of an unfiltered results page.
func BrandsPage(brands []Brand) string {
	var sb strings.Builder
	sb.WriteString(`<html><head><title>Used cars | CarGurus.ca</title></head><body>`)
	sb.WriteString(`<div id="Make-accordion-content">`)
	sb.WriteString(`<button value="">Any Make</button>`)
	for _, b := range brands {
		fmt.Fprintf(&sb, `<button data-testid="make-option" value="%s">%s (%d)</button>`, esc(b.Code), esc(b.Name), b.Count)
	}
	sb.WriteString(`</div></body></html>`)
	return sb.String()
}

// BrandSelectPage renders the make filter as the legacy <select> only.
func BrandSelectPage(brands []Brand) string {
	var sb strings.Builder
	sb.WriteString(`<html><head><title>Used cars | CarGurus.ca</title></head><body><form>`)
	sb.WriteString(`<select name="entitySelectingHelper.selectedEntity"><option value="">All Makes</option>`)
	for _, b := range brands {
		fmt.Fprintf(&sb, `<option value="%s">%s (%d)</option>`, esc(b.Code), esc(b.Name), b.Count)
	}
	sb.WriteString(`</select></form></body></html>`)
	return sb.String()
}

// ModelsPage renders the make & model filter for one make.
func ModelsPage(models []Model) string {
	return modelsPage(`<button id="MakeAndModel-accordion-trigger">Make &amp; model</button>`, models, false)
}

// CollapsedModelsPage renders a results page whose make & model filter is
// closed: only the toggle is in the DOM.
func CollapsedModelsPage() string {
	return `<html><head><title>Used cars | CarGurus.ca</title></head><body>` +
		`<button id="MakeAndModel-accordion-trigger" aria-expanded="false">Make &amp; model</button>` +
		`</body></html>`
}

// TruncatedModelsPage renders an open make & model filter listing only the
// first shown models behind a "Show all models" toggle.
func TruncatedModelsPage(models []Model, shown int) string {
	if shown > len(models) {
		shown = len(models)
	}
	return modelsPage(`<button id="MakeAndModel-accordion-trigger" aria-expanded="true">Make &amp; model</button>`, models[:shown], true)
}

func modelsPage(trigger string, models []Model, showAll bool) string {
	var sb strings.Builder
	sb.WriteString(`<html><head><title>Used cars | CarGurus.ca</title></head><body>`)
	sb.WriteString(trigger)
	sb.WriteString(`<div id="MakeAndModel-accordion-content">`)
	sb.WriteString(`<button value="m4/">All Models</button>`)
	for _, m := range models {
		fmt.Fprintf(&sb, `<button value="%s"><span>%s</span><span>(%d)</span></button>`, esc(m.Code), esc(m.Name), m.Count)
	}
	if showAll {
		sb.WriteString(`<button class="_toggleShowAllButton_k2f9">Show all models</button>`)
	}
	sb.WriteString(`</div></body></html>`)
	return sb.String()
}

func esc(s string) string {
	return html.EscapeString(s)
}

package urlbuilder

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"carscout/internal/models"
	"carscout/internal/siteconfig"
)

// searchNamespace scopes the deterministic searchId values.
var searchNamespace = uuid.MustParse("6f1c2a52-7d0b-5b57-9a3e-4c1f5d7e2b90")

var (
	listingIDPattern = regexp.MustCompile(`/Cars/link/(\d+)`)
	listingParam     = regexp.MustCompile(`[?&#]listing=(\d+)`)
)

// Builder turns queries into CarGurus URLs. It is stateless apart from the
// shared read-only site configuration.
type Builder struct {
	site *siteconfig.Config
}

// New creates a Builder backed by site.
func New(site *siteconfig.Config) *Builder {
	return &Builder{site: site}
}

type param struct {
	key, value string
}

// BuildSearchURL builds the results URL for a structured query. Optional
// query fields that are absent produce no parameter at all.
func (b *Builder) BuildSearchURL(q models.StructuredQuery, radius int) string {
	params := []param{
		{"zip", b.site.PrimaryLocation(q.Location)},
		{"distance", strconv.Itoa(b.site.NormalizeRadius(radius))},
		{"sourceContext", "untrackedWithinSite_false_0"},
		{"sortDir", "ASC"},
		{"sortType", "DEAL_SCORE"},
		{"srpVariation", "DEFAULT_SEARCH"},
		{"isDeliveryEnabled", "true"},
		{"nonShippableBaseline", "0"},
	}
	// No make means every make: the site takes that as absent filters.
	if strings.TrimSpace(q.Make) != "" {
		makeCode := b.site.CategoryCode(q.Make)
		params = append(params, param{"makeModelTrimPaths", makeCode})
		if path := b.modelPath(q, makeCode); path != "" {
			params = append(params, param{"makeModelTrimPaths", path})
		}
		params = append(params, param{"entitySelectingHelper.selectedEntity", makeCode})
	}
	params = appendInt(params, "startYear", q.YearMin)
	params = appendInt(params, "endYear", q.YearMax)
	params = appendInt(params, "minPrice", q.PriceMin)
	params = appendInt(params, "maxPrice", q.PriceMax)
	params = appendInt(params, "maxMileage", q.MileageMax)

	canonical := encode(params)
	params = append(params, param{"searchId", uuid.NewSHA1(searchNamespace, []byte(canonical)).String()})
	return b.site.SearchURL() + "?" + encode(params)
}

// BuildCategoryURL builds the results URL for a make (or make/model trim
// path) around a postal code. An empty category lists every make.
func (b *Builder) BuildCategoryURL(categoryCode, locationCode string, radius int) string {
	if locationCode == "" {
		locationCode = siteconfig.DefaultLocation
	}
	params := []param{
		{"zip", locationCode},
		{"distance", strconv.Itoa(b.site.NormalizeRadius(radius))},
	}
	if categoryCode != "" {
		params = append(params, param{"makeModelTrimPaths", categoryCode})
	}
	return b.site.SearchURL() + "?" + encode(params)
}

// WithPage returns the URL for a 1-based results page. Page 1 is the URL
// itself; later pages use the resultsPage fragment the site paginates on.
func WithPage(rawURL string, page int) string {
	if page <= 1 {
		return rawURL
	}
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		rawURL = rawURL[:i]
	}
	return rawURL + "#resultsPage=" + strconv.Itoa(page)
}

// ListingURL returns the canonical link for a listing id.
func (b *Builder) ListingURL(id string) string {
	return b.site.ListingURL() + url.PathEscape(id)
}

// ListingIDFromURL extracts the numeric listing id from a CarGurus link.
func ListingIDFromURL(link string) (string, bool) {
	if m := listingIDPattern.FindStringSubmatch(link); len(m) > 1 {
		return m[1], true
	}
	if m := listingParam.FindStringSubmatch(link); len(m) > 1 {
		return m[1], true
	}
	return "", false
}

// IsCarGurusURL reports whether link points at a CarGurus car page.
func IsCarGurusURL(link string) bool {
	return strings.Contains(link, "cargurus.ca") && (strings.Contains(link, "/Cars/") || strings.Contains(link, "/cars/"))
}

func (b *Builder) modelPath(q models.StructuredQuery, makeCode string) string {
	model := strings.TrimSpace(q.Model)
	if model == "" {
		return ""
	}
	if path, ok := b.site.ModelCode(q.Make, model); ok {
		return path
	}
	return makeCode + "/" + model
}

func appendInt(params []param, key string, v *int) []param {
	if v == nil {
		return params
	}
	return append(params, param{key, strconv.Itoa(*v)})
}

// encode keeps parameter order, which url.Values would sort away.
func encode(params []param) string {
	var sb strings.Builder
	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.value))
	}
	return sb.String()
}

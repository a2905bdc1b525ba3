package urlbuilder

import (
	"net/url"
	"strings"
	"testing"

	"carscout/internal/models"
	"carscout/internal/siteconfig"
)

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	site, err := siteconfig.Load()
	if err != nil {
		t.Fatalf("failed to load site config: %v", err)
	}
	return New(site)
}

func camryQuery() models.StructuredQuery {
	return models.StructuredQuery{
		Make:     "Toyota",
		Model:    "Camry",
		YearMin:  models.Int(2020),
		PriceMax: models.Int(30000),
		Location: "Toronto",
	}
}

func TestBuildSearchURLDeterministic(t *testing.T) {
	b := newBuilder(t)

	first := b.BuildSearchURL(camryQuery(), 100)
	second := b.BuildSearchURL(camryQuery(), 100)
	if first != second {
		t.Fatalf("expected identical URLs:\n%s\n%s", first, second)
	}

	other := camryQuery()
	other.PriceMax = models.Int(25000)
	if b.BuildSearchURL(other, 100) == first {
		t.Fatalf("expected a different query to produce a different URL")
	}
}

func TestBuildSearchURLParameters(t *testing.T) {
	b := newBuilder(t)
	raw := b.BuildSearchURL(camryQuery(), 100)

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid URL %q: %v", raw, err)
	}
	if u.Host != "www.cargurus.ca" {
		t.Fatalf("unexpected host %q", u.Host)
	}
	q := u.Query()

	if got := q.Get("zip"); got != "M5V" {
		t.Fatalf("expected zip M5V, got %q", got)
	}
	if got := q.Get("distance"); got != "100" {
		t.Fatalf("expected distance 100, got %q", got)
	}
	paths := q["makeModelTrimPaths"]
	if len(paths) != 2 || paths[0] != "m7" || paths[1] != "m7/Camry" {
		t.Fatalf("unexpected makeModelTrimPaths %v", paths)
	}
	if got := q.Get("startYear"); got != "2020" {
		t.Fatalf("expected startYear 2020, got %q", got)
	}
	if got := q.Get("maxPrice"); got != "30000" {
		t.Fatalf("expected maxPrice 30000, got %q", got)
	}
	if q.Get("searchId") == "" {
		t.Fatalf("expected searchId to be present")
	}
	if !strings.Contains(raw, "makeModelTrimPaths=m7%2FCamry") {
		t.Fatalf("expected model path to be percent-encoded in %s", raw)
	}
}

func TestBuildSearchURLOmitsAbsentFields(t *testing.T) {
	b := newBuilder(t)
	raw := b.BuildSearchURL(models.StructuredQuery{Make: "Honda"}, 0)

	for _, key := range []string{"startYear", "endYear", "minPrice", "maxPrice", "maxMileage"} {
		if strings.Contains(raw, key+"=") {
			t.Fatalf("expected %s to be absent from %s", key, raw)
		}
	}
	u, _ := url.Parse(raw)
	if paths := u.Query()["makeModelTrimPaths"]; len(paths) != 1 || paths[0] != "m6" {
		t.Fatalf("expected only the make path, got %v", paths)
	}
}

func TestBuildSearchURLUsesKnownModelPath(t *testing.T) {
	b := newBuilder(t)
	raw := b.BuildSearchURL(models.StructuredQuery{Make: "Acura", Model: "MDX", Location: "Ottawa"}, 50)
	u, _ := url.Parse(raw)
	q := u.Query()
	if paths := q["makeModelTrimPaths"]; len(paths) != 2 || paths[1] != "m4/d16" {
		t.Fatalf("expected trim path m4/d16, got %v", paths)
	}
	if q.Get("zip") != "K1P" || q.Get("distance") != "50" {
		t.Fatalf("unexpected zip/distance %q/%q", q.Get("zip"), q.Get("distance"))
	}
}

func TestBuildSearchURLEncodesValues(t *testing.T) {
	b := newBuilder(t)
	raw := b.BuildSearchURL(models.StructuredQuery{Make: "Toyota", Model: "Land Cruiser & Co"}, 100)
	if strings.Contains(raw, " ") || strings.Contains(raw, "& Co") {
		t.Fatalf("expected values to be percent-encoded, got %s", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid URL: %v", err)
	}
	if paths := u.Query()["makeModelTrimPaths"]; len(paths) != 2 || !strings.HasPrefix(paths[1], "m7/Land") {
		t.Fatalf("unexpected model path %v", paths)
	}
}

func TestBuildCategoryURL(t *testing.T) {
	b := newBuilder(t)

	raw := b.BuildCategoryURL("m4", "K1P", 25)
	want := "https://www.cargurus.ca/Cars/inventorylisting/viewDetailsFilterViewInventoryListing.action?zip=K1P&distance=25&makeModelTrimPaths=m4"
	if raw != want {
		t.Fatalf("expected %s, got %s", want, raw)
	}

	all := b.BuildCategoryURL("", "", 0)
	if strings.Contains(all, "makeModelTrimPaths") {
		t.Fatalf("expected no category parameter, got %s", all)
	}
	if !strings.Contains(all, "zip=M5V") {
		t.Fatalf("expected default location, got %s", all)
	}

	model := b.BuildCategoryURL("m4/d16", "M5V", 100)
	if !strings.HasSuffix(model, "makeModelTrimPaths=m4%2Fd16") {
		t.Fatalf("expected encoded trim path, got %s", model)
	}
}

func TestWithPage(t *testing.T) {
	base := "https://www.cargurus.ca/Cars/x.action?zip=M5V"
	if got := WithPage(base, 1); got != base {
		t.Fatalf("page 1 should be unchanged, got %s", got)
	}
	if got := WithPage(base, 3); got != base+"#resultsPage=3" {
		t.Fatalf("unexpected page 3 URL %s", got)
	}
	if got := WithPage(base+"#resultsPage=2", 4); got != base+"#resultsPage=4" {
		t.Fatalf("expected fragment to be replaced, got %s", got)
	}
}

func TestListingIDFromURL(t *testing.T) {
	b := newBuilder(t)

	link := b.ListingURL("412345678")
	if link != "https://www.cargurus.ca/Cars/link/412345678" {
		t.Fatalf("unexpected listing URL %s", link)
	}
	id, ok := ListingIDFromURL(link)
	if !ok || id != "412345678" {
		t.Fatalf("expected id 412345678, got %q (%v)", id, ok)
	}
	id, ok = ListingIDFromURL("https://www.cargurus.ca/Cars/inventorylisting/x.action?zip=M5V#listing=99887766")
	if !ok || id != "99887766" {
		t.Fatalf("expected fragment id, got %q (%v)", id, ok)
	}
	if _, ok := ListingIDFromURL("https://example.com/cars"); ok {
		t.Fatalf("expected no id for foreign URL")
	}
	if !IsCarGurusURL(link) || IsCarGurusURL("https://example.com/Cars/1") {
		t.Fatalf("IsCarGurusURL mismatch")
	}
}

func TestBuildSearchURLWithoutMakeSearchesEveryMake(t *testing.T) {
	b := newBuilder(t)
	raw := b.BuildSearchURL(models.StructuredQuery{PriceMax: models.Int(30000), Model: "Civic"}, 100)

	for _, key := range []string{"makeModelTrimPaths", "entitySelectingHelper.selectedEntity"} {
		if strings.Contains(raw, key+"=") {
			t.Fatalf("expected %s to be absent from %s", key, raw)
		}
	}
	if !strings.Contains(raw, "maxPrice=30000") {
		t.Fatalf("expected the price filter to survive, got %s", raw)
	}
}

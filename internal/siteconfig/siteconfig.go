// Package siteconfig holds the static CarGurus lookup tables: city names to
// postal codes and brand names to site category codes.
//
// A Config is built once at startup and shared read-only by every component.
// Lookups are case-insensitive: an exact key match wins, otherwise the
// longest configured key contained in the input wins, otherwise a documented
// default is returned. Lookups never fail.
package siteconfig

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/titanous/json5"
)

//go:embed tables.json5
var tablesFile []byte

const (
	// DefaultLocation is returned when a location name matches nothing.
	DefaultLocation = "M5V"
	// DefaultCategory is returned when a brand name matches nothing (Toyota).
	DefaultCategory = "m7"
	// DefaultDistance is the search radius used when none is given.
	DefaultDistance = 100
)

type tables struct {
	BaseURL         string                       `json:"baseURL"`
	SearchPath      string                       `json:"searchPath"`
	ListingPath     string                       `json:"listingPath"`
	DefaultLocation string                       `json:"defaultLocation"`
	DefaultCategory string                       `json:"defaultCategory"`
	DefaultDistance int                          `json:"defaultDistance"`
	Distances       []int                        `json:"distances"`
	Locations       map[string][]string          `json:"locations"`
	Categories      map[string]string            `json:"categories"`
	Models          map[string]map[string]string `json:"models"`
}

// Config is the immutable lookup table set.
type Config struct {
	baseURL         string
	searchPath      string
	listingPath     string
	defaultLocation string
	defaultCategory string
	defaultDistance int
	distances       []int

	locations    map[string][]string
	categories   map[string]string
	models       map[string]map[string]string
	locationKeys []string // longest first
	categoryKeys []string // longest first
}

// Load parses the embedded tables.
func Load() (*Config, error) {
	return Parse(tablesFile)
}

// MustLoad is Load for package initialisation and tests.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Parse builds a Config from a json5 document with the same shape as the
// embedded tables.
func Parse(data []byte) (*Config, error) {
	var t tables
	if err := json5.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse site tables: %w", err)
	}
	if t.BaseURL == "" || t.SearchPath == "" {
		return nil, fmt.Errorf("site tables missing baseURL or searchPath")
	}

	cfg := &Config{
		baseURL:         strings.TrimRight(t.BaseURL, "/"),
		searchPath:      t.SearchPath,
		listingPath:     t.ListingPath,
		defaultLocation: orDefault(t.DefaultLocation, DefaultLocation),
		defaultCategory: orDefault(t.DefaultCategory, DefaultCategory),
		defaultDistance: t.DefaultDistance,
		locations:       make(map[string][]string, len(t.Locations)),
		categories:      make(map[string]string, len(t.Categories)),
		models:          make(map[string]map[string]string, len(t.Models)),
	}
	if cfg.defaultDistance <= 0 {
		cfg.defaultDistance = DefaultDistance
	}
	cfg.distances = append([]int(nil), t.Distances...)
	sort.Ints(cfg.distances)

	for k, codes := range t.Locations {
		if len(codes) == 0 {
			return nil, fmt.Errorf("location %q has no codes", k)
		}
		cfg.locations[normalize(k)] = append([]string(nil), codes...)
	}
	for k, code := range t.Categories {
		cfg.categories[normalize(k)] = code
	}
	for brand, models := range t.Models {
		m := make(map[string]string, len(models))
		for name, path := range models {
			m[normalize(name)] = path
		}
		cfg.models[normalize(brand)] = m
	}

	cfg.locationKeys = sortedKeys(cfg.locations)
	cfg.categoryKeys = sortedKeys(cfg.categories)
	return cfg, nil
}

// BaseURL is the site origin, without a trailing slash.
func (c *Config) BaseURL() string { return c.baseURL }

// SearchURL is the absolute search results endpoint.
func (c *Config) SearchURL() string { return c.baseURL + c.searchPath }

// ListingURL is the absolute listing link prefix.
func (c *Config) ListingURL() string { return c.baseURL + c.listingPath }

// LocationCodes returns the postal codes for a city name. An input that
// already looks like a postal code is returned as-is.
func (c *Config) LocationCodes(name string) []string {
	if code, ok := postalCode(name); ok {
		return []string{code}
	}
	key, ok := match(c.locations, c.locationKeys, name)
	if !ok {
		return []string{c.defaultLocation}
	}
	return append([]string(nil), c.locations[key]...)
}

// PrimaryLocation returns the first postal code for a city name.
func (c *Config) PrimaryLocation(name string) string {
	return c.LocationCodes(name)[0]
}

// CategoryCode returns the site category code for a brand name.
func (c *Config) CategoryCode(brand string) string {
	key, ok := match(c.categories, c.categoryKeys, brand)
	if !ok {
		return c.defaultCategory
	}
	return c.categories[key]
}

// KnownCategory reports whether brand resolves to a configured category
// rather than the default.
func (c *Config) KnownCategory(brand string) bool {
	_, ok := match(c.categories, c.categoryKeys, brand)
	return ok
}

// ModelCode returns the make/model trim path for a known model.
func (c *Config) ModelCode(brand, model string) (string, bool) {
	key, ok := match(c.categories, c.categoryKeys, brand)
	if !ok {
		return "", false
	}
	models, ok := c.models[key]
	if !ok {
		return "", false
	}
	path, ok := models[normalize(model)]
	return path, ok
}

// Distances returns the radius options the site accepts, ascending.
func (c *Config) Distances() []int {
	return append([]int(nil), c.distances...)
}

// NormalizeRadius snaps r to the closest radius the site accepts. Ties go to
// the smaller radius.
func (c *Config) NormalizeRadius(r int) int {
	if r <= 0 || len(c.distances) == 0 {
		return c.defaultDistance
	}
	best := c.distances[0]
	for _, d := range c.distances[1:] {
		if abs(d-r) < abs(best-r) {
			best = d
		}
	}
	return best
}

// Brands returns the configured brand keys, sorted.
func (c *Config) Brands() []string {
	out := make([]string, 0, len(c.categories))
	for k := range c.categories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Suggest returns the configured brand closest to name by Jaro-Winkler
// similarity, with its score.
func (c *Config) Suggest(name string) (string, float64) {
	in := normalize(name)
	if in == "" {
		return "", 0
	}
	var (
		best  string
		score float64
	)
	for _, k := range c.Brands() {
		if s := matchr.JaroWinkler(in, k, false); s > score {
			best, score = k, s
		}
	}
	return best, score
}

func match[V any](table map[string]V, keys []string, input string) (string, bool) {
	in := normalize(input)
	if in == "" {
		return "", false
	}
	if _, ok := table[in]; ok {
		return in, true
	}
	for _, k := range keys {
		if strings.Contains(in, k) {
			return k, true
		}
	}
	return "", false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// postalCode accepts a forward sortation area ("M5V") or a full postal code
// ("M5V 2T6") and returns it upper-cased without spaces.
func postalCode(s string) (string, bool) {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if len(s) != 3 && len(s) != 6 {
		return "", false
	}
	for i, r := range s {
		letter := r >= 'A' && r <= 'Z'
		digit := r >= '0' && r <= '9'
		if (i%2 == 0 && !letter) || (i%2 == 1 && !digit) {
			return "", false
		}
	}
	return s, true
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Package crawl runs search and catalog operations against the listings
// site. Every operation walks the same state machine; what differs is the
// URL strategy that says where each page lives and the extractor that
// turns a page into records.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"carscout/internal/behavior"
	"carscout/internal/browser"
	"carscout/internal/cache"
	"carscout/internal/challenge"
	"carscout/internal/events"
	"carscout/internal/extract"
	"carscout/internal/metrics"
	"carscout/internal/models"
	"carscout/internal/siteconfig"
	"carscout/internal/urlbuilder"
)

// Operation kinds, used in events, metrics and run records.
const (
	KindSearch = "search"
	KindBrands = "brands"
	KindModels = "models"
)

// Policy bounds an operation. Zero fields take the DefaultPolicy values.
type Policy struct {
	MaxAttempts       int // Navigate->Classify passes per page
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	ChallengeAttempts int
	LoadingPolls      int // extra reads of a loading page; negative for none
	LoadingWait       time.Duration
	MaxPages          int
	DefaultLimit      int
	Timeout           time.Duration
	ProfileID         string
	ProfilePrefix     string // names replacement profiles after a block
	Radius            int
	SkipBrowsing      bool // no simulated browsing after navigation
}

// DefaultPolicy returns the production retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		BaseDelay:         2 * time.Second,
		MaxDelay:          30 * time.Second,
		ChallengeAttempts: 3,
		LoadingPolls:      5,
		LoadingWait:       time.Second,
		MaxPages:          10,
		DefaultLimit:      50,
		Timeout:           3 * time.Minute,
		ProfileID:         "default",
		ProfilePrefix:     "cargurus",
		Radius:            100,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = d.MaxDelay
	}
	if p.ChallengeAttempts <= 0 {
		p.ChallengeAttempts = d.ChallengeAttempts
	}
	switch {
	case p.LoadingPolls == 0:
		p.LoadingPolls = d.LoadingPolls
	case p.LoadingPolls < 0:
		p.LoadingPolls = 0
	}
	if p.LoadingWait <= 0 {
		p.LoadingWait = d.LoadingWait
	}
	if p.MaxPages <= 0 {
		p.MaxPages = d.MaxPages
	}
	if p.DefaultLimit <= 0 {
		p.DefaultLimit = d.DefaultLimit
	}
	if p.ProfileID == "" {
		p.ProfileID = d.ProfileID
	}
	if p.ProfilePrefix == "" {
		p.ProfilePrefix = d.ProfilePrefix
	}
	if p.Radius <= 0 {
		p.Radius = d.Radius
	}
	return p
}

// Deps are the collaborators a Coordinator drives. Sessions, Challenges and
// Behavior are required.
type Deps struct {
	Sessions   *browser.Manager
	Site       *siteconfig.Config
	Challenges *challenge.Handler
	Behavior   *behavior.Synthesizer
	Events     events.Sink
	DeadLinks  cache.DeadLinks
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Sleep      behavior.SleepFunc
	Now        func() time.Time
}

// Coordinator runs crawl operations. It holds no per-operation state and is
// safe for concurrent use; operations on the same profile queue on the
// session manager.
//
// Operations that do not name a profile share the current default one. When
// the site blocks it, later operations move to a freshly named profile.
type Coordinator struct {
	deps   Deps
	policy Policy
	urls   *urlbuilder.Builder

	mu      sync.Mutex
	profile string
	rng     *rand.Rand
}

// New creates a Coordinator.
func New(deps Deps, policy Policy) (*Coordinator, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errors.New("crawl: session manager is required")
	case deps.Challenges == nil:
		return nil, errors.New("crawl: challenge handler is required")
	case deps.Behavior == nil:
		return nil, errors.New("crawl: behavior synthesizer is required")
	}
	if deps.Site == nil {
		site, err := siteconfig.Load()
		if err != nil {
			return nil, fmt.Errorf("crawl: %w", err)
		}
		deps.Site = site
	}
	if deps.Events == nil {
		deps.Events = events.Discard
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Sleep == nil {
		deps.Sleep = behavior.Sleep
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	policy = policy.withDefaults()
	return &Coordinator{
		deps:    deps,
		policy:  policy,
		urls:    urlbuilder.New(deps.Site),
		profile: policy.ProfileID,
		rng:     rand.New(rand.NewSource(deps.Now().UnixNano())),
	}, nil
}

// Policy returns the effective policy.
func (c *Coordinator) Policy() Policy {
	return c.policy
}

// Profile returns the profile operations run on unless they ask for one.
func (c *Coordinator) Profile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// rotateProfile replaces the default profile after the site blocked it.
// A concurrent operation may have rotated already; then nothing changes.
func (c *Coordinator) rotateProfile(blocked string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.profile != blocked {
		return
	}
	c.profile = browser.NewProfileID(c.policy.ProfilePrefix, c.deps.Now(), c.rng)
	c.deps.Logger.Warn("rotating browser profile after block",
		slog.String("from", blocked),
		slog.String("to", c.profile))
}

type runConfig struct {
	id       string
	sink     events.Sink
	profile  string
	rotate   bool // profile is the shared default
	radius   int
	location string
}

// RunOption adjusts a single operation.
type RunOption func(*runConfig)

// WithOperationID sets the id carried by every event. A random id is used
// otherwise.
func WithOperationID(id string) RunOption {
	return func(rc *runConfig) { rc.id = id }
}

// WithEvents adds a sink for this operation only.
func WithEvents(sink events.Sink) RunOption {
	return func(rc *runConfig) { rc.sink = sink }
}

// WithProfile runs the operation on a specific browser profile. A named
// profile is never rotated away from.
func WithProfile(id string) RunOption {
	return func(rc *runConfig) {
		if id != "" {
			rc.profile = id
			rc.rotate = false
		}
	}
}

// WithRadius overrides the search radius in km.
func WithRadius(km int) RunOption {
	return func(rc *runConfig) {
		if km > 0 {
			rc.radius = km
		}
	}
}

// WithLocation sets the city or postal code catalog pages are loaded for.
// Searches take their location from the query.
func WithLocation(location string) RunOption {
	return func(rc *runConfig) { rc.location = location }
}

func (c *Coordinator) runConfig(opts []RunOption) runConfig {
	rc := runConfig{profile: c.Profile(), rotate: true, radius: c.policy.Radius}
	for _, opt := range opts {
		opt(&rc)
	}
	if rc.id == "" {
		rc.id = uuid.NewString()
	}
	return rc
}

// Search returns up to maxResults listings for q, walking result pages as
// needed. On failure the records gathered so far come back with the error.
// A query without a make searches every make.
func (c *Coordinator) Search(ctx context.Context, q models.StructuredQuery, maxResults int, opts ...RunOption) ([]models.ListingRecord, error) {
	rc := c.runConfig(opts)
	base := c.urls.BuildSearchURL(q, rc.radius)
	target := Target[models.ListingRecord]{
		Kind:      KindSearch,
		Subject:   q.Subject(),
		URLs:      Paged(base),
		Extractor: extract.NewListingExtractor(c.deps.Site.BaseURL(), c.deps.Logger).WithClock(c.deps.Now),
		Link:      func(r models.ListingRecord) string { return r.Link },
	}
	return run(ctx, c, target, maxResults, rc)
}

// CollectBrands returns the makes offered by the site's make filter.
func (c *Coordinator) CollectBrands(ctx context.Context, limit int, opts ...RunOption) ([]models.BrandRecord, error) {
	rc := c.runConfig(opts)
	loc := c.deps.Site.PrimaryLocation(rc.location)
	target := Target[models.BrandRecord]{
		Kind:      KindBrands,
		Subject:   "all makes",
		URLs:      Single(c.urls.BuildCategoryURL("", loc, rc.radius)),
		Extractor: extract.NewBrandExtractor(c.deps.Logger),
	}
	return run(ctx, c, target, limit, rc)
}

// CollectModelsForBrand returns the models offered under brand. An unknown
// brand resolves to the default make, as URL building does.
func (c *Coordinator) CollectModelsForBrand(ctx context.Context, brand string, limit int, opts ...RunOption) ([]models.ModelRecord, error) {
	rc := c.runConfig(opts)
	loc := c.deps.Site.PrimaryLocation(rc.location)
	if !c.deps.Site.KnownCategory(brand) {
		c.deps.Logger.Warn("unknown brand, using default make",
			slog.String("brand", brand),
			slog.String("code", siteconfig.DefaultCategory))
	}
	code := c.deps.Site.CategoryCode(brand)
	urlFor := func(path string) string {
		return c.urls.BuildCategoryURL(path, loc, rc.radius)
	}
	target := Target[models.ModelRecord]{
		Kind:      KindModels,
		Subject:   brand,
		URLs:      Single(urlFor(code)),
		Extractor: extract.NewModelExtractor(brand, urlFor, c.deps.Logger),
		Prepare:   c.expandModels,
	}
	return run(ctx, c, target, limit, rc)
}

// expandSettle is how long an opened filter gets to render.
const expandSettle = 1500 * time.Millisecond

// expandModels opens the make & model filter and asks for the full list.
// Either control may be absent: the filter can already be open, and short
// lists have no "show all" toggle.
func (c *Coordinator) expandModels(ctx context.Context, s *browser.Session) error {
	for _, controls := range [][]string{extract.ModelFilterToggles, extract.ShowAllModels} {
		clicked, err := clickFirst(ctx, s, controls)
		if err != nil {
			return err
		}
		if clicked {
			if err := c.deps.Behavior.Wait(ctx, expandSettle); err != nil {
				return err
			}
		}
	}
	return nil
}

// clickFirst clicks the first selector present on the page.
func clickFirst(ctx context.Context, s *browser.Session, selectors []string) (bool, error) {
	for _, sel := range selectors {
		err := s.Click(ctx, sel)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, browser.ErrNoElement):
			continue
		default:
			return false, fmt.Errorf("click %s: %w", sel, err)
		}
	}
	return false, nil
}

// delay is the wait before retry number attempt+1: BaseDelay doubled per
// attempt, capped at MaxDelay.
func (c *Coordinator) delay(attempt int) time.Duration {
	d := c.policy.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.policy.MaxDelay {
			return c.policy.MaxDelay
		}
	}
	return d
}

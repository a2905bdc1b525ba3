package crawl_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"carscout/internal/behavior"
	"carscout/internal/browser"
	"carscout/internal/browser/browsertest"
	"carscout/internal/cache"
	"carscout/internal/challenge"
	"carscout/internal/crawl"
	"carscout/internal/events"
	"carscout/internal/extract"
	"carscout/internal/fixture"
	"carscout/internal/models"
	"carscout/internal/pagestate"
)

type harness struct {
	driver *browsertest.Driver
	rec    *events.Recorder
	coord  *crawl.Coordinator

	mu      sync.Mutex
	sleeps  []time.Duration
	onSleep func()
}

func (h *harness) sleep(ctx context.Context, d time.Duration) error {
	h.mu.Lock()
	h.sleeps = append(h.sleeps, d)
	hook := h.onSleep
	h.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ctx.Err()
}

func (h *harness) waits() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.sleeps...)
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func newHarness(t *testing.T, driver *browsertest.Driver, deadLinks cache.DeadLinks, tweak ...func(*crawl.Policy)) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{driver: driver, rec: &events.Recorder{}}

	synth := behavior.NewSeeded(7, behavior.WithSleep(noSleep), behavior.WithLogger(logger))
	policy := crawl.Policy{BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
	for _, fn := range tweak {
		fn(&policy)
	}

	coord, err := crawl.New(crawl.Deps{
		Sessions:   browser.NewManager(driver, browser.Options{}, logger, nil),
		Challenges: challenge.New(pagestate.New(), synth, challenge.Options{}, logger, nil),
		Behavior:   synth,
		Events:     h.rec,
		DeadLinks:  deadLinks,
		Logger:     logger,
		Sleep:      h.sleep,
		Now:        func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}, policy)
	require.NoError(t, err)
	h.coord = coord
	return h
}

func camryQuery() models.StructuredQuery {
	return models.StructuredQuery{
		Make:     "Toyota",
		Model:    "Camry",
		YearMin:  models.Int(2020),
		PriceMax: models.Int(30000),
	}
}

func pageOf(url string) int {
	switch {
	case strings.Contains(url, "#resultsPage=3"):
		return 3
	case strings.Contains(url, "#resultsPage=2"):
		return 2
	default:
		return 1
	}
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func TestSearchStopsAtMaxResults(t *testing.T) {
	driver := &browsertest.Driver{Route: func(url string) browsertest.Frames {
		return browsertest.Frames{fixture.ListingsPage(fixture.CamryListings(0, 12))}
	}}
	h := newHarness(t, driver, nil)

	records, err := h.coord.Search(context.Background(), camryQuery(), 10)
	require.NoError(t, err)
	require.Len(t, records, 10)
	for _, r := range records {
		require.NotEmpty(t, r.ID)
		require.NotEmpty(t, r.Link)
		require.Equal(t, models.PlatformCarGurus, r.Platform)
	}

	require.Equal(t, 1, h.rec.Count(events.Completed))
	require.Equal(t, 0, h.rec.Count(events.Failed))
	evs := h.rec.Events()
	last := evs[len(evs)-1]
	require.Equal(t, events.Completed, last.Name)
	require.NotNil(t, last.Payload.Count)
	require.Equal(t, 10, *last.Payload.Count)

	navs := driver.Navigations()
	require.Len(t, navs, 1)
	require.Contains(t, navs[0], "makeModelTrimPaths=m7")
	require.Contains(t, navs[0], "startYear=2020")
	require.Contains(t, navs[0], "maxPrice=30000")
	require.Equal(t, 1, driver.Opened())
	require.Equal(t, 1, driver.Closed())
}

func TestSearchPaginatesUntilNoNewRecords(t *testing.T) {
	driver := &browsertest.Driver{Route: func(url string) browsertest.Frames {
		if pageOf(url) == 1 {
			return browsertest.Frames{fixture.ListingsPage(fixture.CamryListings(0, 6))}
		}
		// Pages past the last repeat it.
		return browsertest.Frames{fixture.ListingsPage(fixture.CamryListings(6, 6))}
	}}
	h := newHarness(t, driver, nil)

	records, err := h.coord.Search(context.Background(), camryQuery(), 50)
	require.NoError(t, err)
	require.Len(t, records, 12)
	require.Len(t, driver.Navigations(), 3)
	require.Contains(t, driver.Navigations()[1], "#resultsPage=2")
	require.Equal(t, 3, h.rec.Count(events.Extracted))
}

func TestSearchBlockedOnFirstNavigation(t *testing.T) {
	driver := &browsertest.Driver{Route: func(string) browsertest.Frames {
		return browsertest.Frames{fixture.BlockedPage()}
	}}
	h := newHarness(t, driver, nil)

	records, err := h.coord.Search(context.Background(), camryQuery(), 10)
	require.Empty(t, records)
	require.ErrorIs(t, err, crawl.ErrBlocked)

	var opErr *crawl.OperationError
	require.True(t, errors.As(err, &opErr))
	require.Equal(t, crawl.KindBlocked, opErr.Kind)
	require.Equal(t, crawl.Classify, opErr.State)
	require.False(t, opErr.Retryable())
	require.Equal(t, []models.CrawlAttempt{{Index: 1, Outcome: models.OutcomeFatal}}, opErr.History)

	require.Len(t, driver.Navigations(), 1)
	require.Equal(t, 1, h.rec.Count(events.Blocked))
	require.Equal(t, 1, h.rec.Count(events.Failed))
	require.Equal(t, 0, h.rec.Count(events.Completed))
	require.Empty(t, h.waits())
	require.Equal(t, 1, driver.Closed())
}

func TestSearchBlockedOnLaterPageKeepsPartialRecords(t *testing.T) {
	driver := &browsertest.Driver{Route: func(url string) browsertest.Frames {
		if pageOf(url) == 1 {
			return browsertest.Frames{fixture.ListingsPage(fixture.CamryListings(0, 6))}
		}
		return browsertest.Frames{fixture.BlockedPage()}
	}}
	h := newHarness(t, driver, nil)

	records, err := h.coord.Search(context.Background(), camryQuery(), 20)
	require.ErrorIs(t, err, crawl.ErrBlocked)
	require.Len(t, records, 6)

	var opErr *crawl.OperationError
	require.True(t, errors.As(err, &opErr))
	require.Equal(t, 6, opErr.Partial)
	require.Equal(t, 2, opErr.Page)

	evs := h.rec.Events()
	last := evs[len(evs)-1]
	require.Equal(t, events.Failed, last.Name)
	require.Equal(t, 6, *last.Payload.Count)
	require.Contains(t, last.Payload.Reason, "blocked")
}

func TestSearchChallengeClearsOnce(t *testing.T) {
	driver := &browsertest.Driver{Route: func(string) browsertest.Frames {
		return browsertest.Frames{fixture.ChallengePage(), fixture.ListingsPage(fixture.CamryListings(0, 12))}
	}}
	h := newHarness(t, driver, nil)

	records, err := h.coord.Search(context.Background(), camryQuery(), 10)
	require.NoError(t, err)
	require.Len(t, records, 10)

	names := h.rec.Names()
	require.Equal(t, 1, h.rec.Count(events.ChallengeEncountered))
	require.Equal(t, 1, h.rec.Count(events.ChallengeCleared))
	require.Equal(t, 0, h.rec.Count(events.ChallengeFailed))
	cleared, extracted := indexOf(names, events.ChallengeCleared), indexOf(names, events.Extracted)
	require.True(t, cleared >= 0 && extracted >= 0 && cleared < extracted, "events out of order: %v", names)
	require.Equal(t, 1, h.rec.Count(events.Completed))
	require.Len(t, driver.Navigations(), 1)
}

func TestSearchChallengeExhausted(t *testing.T) {
	driver := &browsertest.Driver{Route: func(string) browsertest.Frames {
		return browsertest.Frames{fixture.SliderChallengePage()}
	}}
	h := newHarness(t, driver, nil)

	records, err := h.coord.Search(context.Background(), camryQuery(), 10)
	require.Empty(t, records)
	require.ErrorIs(t, err, crawl.ErrChallengeExhausted)

	var opErr *crawl.OperationError
	require.True(t, errors.As(err, &opErr))
	require.Equal(t, crawl.KindChallengeExhausted, opErr.Kind)
	require.Equal(t, 3, opErr.Attempts)
	require.True(t, opErr.Retryable())

	require.Equal(t, 1, h.rec.Count(events.ChallengeFailed))
	require.Equal(t, 1, h.rec.Count(events.Failed))
	// One read by the coordinator, one per clearing attempt.
	require.Equal(t, 4, driver.Reads())
	require.Equal(t, 1, driver.Reloads())
}

func TestSearchRetriesUnknownPage(t *testing.T) {
	var mu sync.Mutex
	visits := 0
	driver := &browsertest.Driver{Route: func(string) browsertest.Frames {
		mu.Lock()
		defer mu.Unlock()
		visits++
		if visits == 1 {
			return browsertest.Frames{fixture.UnknownPage()}
		}
		return browsertest.Frames{fixture.ListingsPage(fixture.CamryListings(0, 4))}
	}}
	h := newHarness(t, driver, nil)

	records, err := h.coord.Search(context.Background(), camryQuery(), 4)
	require.NoError(t, err)
	require.Len(t, records, 4)
	require.Len(t, driver.Navigations(), 2)
	require.Equal(t, []time.Duration{2 * time.Second}, h.waits())
	require.Equal(t, 1, h.rec.Count(events.Retrying))

	for _, e := range h.rec.Events() {
		if e.Name == events.Retrying {
			require.Equal(t, 2, e.Payload.Attempt)
			require.Equal(t, 2*time.Second, e.Payload.Delay)
		}
	}
}

func TestSearchRetriesNavigationTimeout(t *testing.T) {
	driver := &browsertest.Driver{
		Route: func(string) browsertest.Frames {
			return browsertest.Frames{fixture.ListingsPage(fixture.CamryListings(0, 3))}
		},
		NavErr: func(_ string, n int) error {
			if n == 1 {
				return context.DeadlineExceeded
			}
			return nil
		},
	}
	h := newHarness(t, driver, nil)

	records, err := h.coord.Search(context.Background(), camryQuery(), 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Len(t, driver.Navigations(), 2)
}

func TestSearchTransientExhausted(t *testing.T) {
	driver := &browsertest.Driver{Route: func(string) browsertest.Frames {
		return browsertest.Frames{fixture.UnknownPage()}
	}}
	h := newHarness(t, driver, nil)

	_, err := h.coord.Search(context.Background(), camryQuery(), 10)
	require.ErrorIs(t, err, crawl.ErrTransientExhausted)

	var opErr *crawl.OperationError
	require.True(t, errors.As(err, &opErr))
	require.Equal(t, crawl.KindTransient, opErr.Kind)
	require.Equal(t, crawl.Backoff, opErr.State)
	require.Equal(t, 3, opErr.Attempts)
	require.Equal(t, []models.CrawlAttempt{
		{Index: 1, Backoff: 0, Outcome: models.OutcomeRetryable},
		{Index: 2, Backoff: 2 * time.Second, Outcome: models.OutcomeRetryable},
		{Index: 3, Backoff: 4 * time.Second, Outcome: models.OutcomeRetryable},
	}, opErr.History)

	require.Len(t, driver.Navigations(), 3)
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, h.waits())
	require.Equal(t, 2, h.rec.Count(events.Retrying))
	require.Equal(t, 1, h.rec.Count(events.Failed))
}

func TestSearchPollsLoadingPage(t *testing.T) {
	driver := &browsertest.Driver{Route: func(string) browsertest.Frames {
		return browsertest.Frames{fixture.LoadingPage(), fixture.LoadingPage(), fixture.ListingsPage(fixture.CamryListings(0, 2))}
	}}
	h := newHarness(t, driver, nil, func(p *crawl.Policy) { p.LoadingWait = 500 * time.Millisecond })

	records, err := h.coord.Search(context.Background(), camryQuery(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, h.waits())
}

func TestSearchEmptyResultsCompletesWithZero(t *testing.T) {
	driver := &browsertest.Driver{Route: func(string) browsertest.Frames {
		return browsertest.Frames{fixture.EmptyPage()}
	}}
	h := newHarness(t, driver, nil)

	records, err := h.coord.Search(context.Background(), camryQuery(), 10)
	require.NoError(t, err)
	require.Empty(t, records)
	require.Equal(t, 0, h.rec.Count(events.Extracted))

	evs := h.rec.Events()
	require.Equal(t, events.Completed, evs[len(evs)-1].Name)
	require.Equal(t, 0, *evs[len(evs)-1].Payload.Count)
}

func TestSearchCanceledDuringBackoff(t *testing.T) {
	driver := &browsertest.Driver{Route: func(string) browsertest.Frames {
		return browsertest.Frames{fixture.UnknownPage()}
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, driver, nil)
	h.onSleep = cancel

	_, err := h.coord.Search(ctx, camryQuery(), 10)
	require.ErrorIs(t, err, context.Canceled)

	var opErr *crawl.OperationError
	require.True(t, errors.As(err, &opErr))
	require.Equal(t, crawl.KindCanceled, opErr.Kind)
	require.Len(t, driver.Navigations(), 1)
	require.Equal(t, 1, h.rec.Count(events.Failed))
	require.Equal(t, 1, driver.Closed())
}

func TestSearchStartFailure(t *testing.T) {
	driver := &browsertest.Driver{OpenErr: errors.New("chromium not found")}
	h := newHarness(t, driver, nil)

	_, err := h.coord.Search(context.Background(), camryQuery(), 10)
	require.ErrorIs(t, err, browser.ErrStartFailed)

	var opErr *crawl.OperationError
	require.True(t, errors.As(err, &opErr))
	require.Equal(t, crawl.KindFatalResource, opErr.Kind)
	require.Equal(t, []string{events.Started, events.Failed}, h.rec.Names())
}

func TestSearchSkipsDeadLinks(t *testing.T) {
	driver := &browsertest.Driver{Route: func(string) browsertest.Frames {
		return browsertest.Frames{fixture.ListingsPage(fixture.CamryListings(0, 5))}
	}}
	store := cache.NewFileStore(t.TempDir(), 0, nil)
	h := newHarness(t, driver, store)

	first, err := h.coord.Search(context.Background(), camryQuery(), 10)
	require.NoError(t, err)
	require.Len(t, first, 5)

	require.NoError(t, store.MarkDead(context.Background(), first[1].Link))
	second, err := h.coord.Search(context.Background(), camryQuery(), 10)
	require.NoError(t, err)
	require.Len(t, second, 4)
	for _, r := range second {
		require.NotEqual(t, first[1].ID, r.ID)
	}
}

func TestOperationIDAndProfile(t *testing.T) {
	driver := &browsertest.Driver{Route: func(string) browsertest.Frames {
		return browsertest.Frames{fixture.ListingsPage(fixture.CamryListings(0, 2))}
	}}
	h := newHarness(t, driver, nil)
	extra := &events.Recorder{}

	_, err := h.coord.Search(context.Background(), camryQuery(), 2,
		crawl.WithOperationID("op-42"),
		crawl.WithProfile("cargurus_20250601_abc123"),
		crawl.WithEvents(extra))
	require.NoError(t, err)

	require.Equal(t, h.rec.Names(), extra.Names())
	for _, e := range extra.Events() {
		require.Equal(t, "op-42", e.Payload.OperationID)
		require.Equal(t, crawl.KindSearch, e.Payload.Kind)
	}
	require.Equal(t, "cargurus_20250601_abc123", driver.Profiles()[0].ID)
}

func TestCollectBrands(t *testing.T) {
	driver := &browsertest.Driver{Route: func(string) browsertest.Frames {
		return browsertest.Frames{fixture.BrandsPage([]fixture.Brand{
			{Name: "Toyota", Code: "m7", Count: 1200},
			{Name: "Honda", Code: "m6", Count: 900},
			{Name: "Acura", Code: "m4", Count: 300},
		})}
	}}
	h := newHarness(t, driver, nil)

	brands, err := h.coord.CollectBrands(context.Background(), 2, crawl.WithLocation("Vancouver"))
	require.NoError(t, err)
	require.Len(t, brands, 2)
	require.Equal(t, "Toyota", brands[0].Name)
	require.Equal(t, "m7", brands[0].Code)

	navs := driver.Navigations()
	require.Len(t, navs, 1)
	require.NotContains(t, navs[0], "makeModelTrimPaths")
	require.Equal(t, 1, h.rec.Count(events.Completed))
}

func TestCollectBrandsFromMakeSelect(t *testing.T) {
	driver := &browsertest.Driver{Route: func(string) browsertest.Frames {
		return browsertest.Frames{fixture.BrandSelectPage([]fixture.Brand{
			{Name: "Toyota", Code: "m7", Count: 1200},
			{Name: "Honda", Code: "m6", Count: 900},
		})}
	}}
	h := newHarness(t, driver, nil)

	brands, err := h.coord.CollectBrands(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, brands, 2)
	require.Equal(t, "Honda", brands[1].Name)
	require.Len(t, driver.Navigations(), 1)
	require.Equal(t, 0, h.rec.Count(events.Retrying))
}

func TestCollectModelsForBrand(t *testing.T) {
	driver := &browsertest.Driver{Route: func(string) browsertest.Frames {
		return browsertest.Frames{fixture.ModelsPage([]fixture.Model{
			{Name: "MDX", Code: "m4/d16", Count: 169},
			{Name: "RDX", Code: "m4/d921", Count: 240},
		})}
	}}
	h := newHarness(t, driver, nil)

	got, err := h.coord.CollectModelsForBrand(context.Background(), "Acura", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "MDX", got[0].Name)
	require.Equal(t, "Acura", got[0].Brand)
	require.Equal(t, 169, got[0].Count)
	require.Contains(t, got[0].URL, "makeModelTrimPaths=m4%2Fd16")

	require.Contains(t, driver.Navigations()[0], "makeModelTrimPaths=m4")
	require.Len(t, driver.Navigations(), 1)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := crawl.New(crawl.Deps{}, crawl.Policy{})
	require.Error(t, err)
}

func TestDefaultPolicyApplied(t *testing.T) {
	driver := &browsertest.Driver{}
	h := newHarness(t, driver, nil)
	p := h.coord.Policy()
	require.Equal(t, 3, p.MaxAttempts)
	require.Equal(t, 3, p.ChallengeAttempts)
	require.Equal(t, "default", p.ProfileID)
	require.Equal(t, "cargurus", p.ProfilePrefix)
}

func TestCollectModelsExpandsCollapsedFilter(t *testing.T) {
	all := []fixture.Model{
		{Name: "ILX", Code: "m4/d2", Count: 40},
		{Name: "MDX", Code: "m4/d16", Count: 169},
		{Name: "RDX", Code: "m4/d921", Count: 240},
	}
	driver := &browsertest.Driver{
		Route: func(string) browsertest.Frames {
			return browsertest.Frames{fixture.CollapsedModelsPage()}
		},
		OnClick: func(_ string, selector string) browsertest.Frames {
			if selector == extract.ShowAllModels[0] {
				return browsertest.Frames{fixture.ModelsPage(all)}
			}
			return browsertest.Frames{fixture.TruncatedModelsPage(all, 1)}
		},
	}
	h := newHarness(t, driver, nil)

	got, err := h.coord.CollectModelsForBrand(context.Background(), "Acura", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "RDX", got[2].Name)
	require.Equal(t, []string{extract.ModelFilterToggles[0], extract.ShowAllModels[0]}, driver.Clicks())
}

func TestCollectModelsLeavesOpenFilterAlone(t *testing.T) {
	driver := &browsertest.Driver{Route: func(string) browsertest.Frames {
		return browsertest.Frames{fixture.ModelsPage([]fixture.Model{{Name: "MDX", Code: "m4/d16", Count: 169}})}
	}}
	h := newHarness(t, driver, nil)

	got, err := h.coord.CollectModelsForBrand(context.Background(), "Acura", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Empty(t, driver.Clicks())
}

func TestSearchDragsSliderChallenge(t *testing.T) {
	driver := &browsertest.Driver{
		Route: func(string) browsertest.Frames {
			return browsertest.Frames{fixture.SliderWidgetPage()}
		},
		OnDrag: func(string, []behavior.Point) browsertest.Frames {
			return browsertest.Frames{fixture.ListingsPage(fixture.CamryListings(0, 4))}
		},
	}
	h := newHarness(t, driver, nil)

	records, err := h.coord.Search(context.Background(), camryQuery(), 10)
	require.NoError(t, err)
	require.Len(t, records, 4)

	drags := driver.Drags()
	require.Len(t, drags, 1)
	end := drags[0][len(drags[0])-1]
	require.Equal(t, behavior.Point{X: 380, Y: 417}, end)
	require.Equal(t, 1, h.rec.Count(events.ChallengeCleared))
}

func TestBlockedDefaultProfileIsRotated(t *testing.T) {
	var mu sync.Mutex
	blocked := true
	driver := &browsertest.Driver{Route: func(string) browsertest.Frames {
		mu.Lock()
		defer mu.Unlock()
		if blocked {
			return browsertest.Frames{fixture.BlockedPage()}
		}
		return browsertest.Frames{fixture.ListingsPage(fixture.CamryListings(0, 2))}
	}}
	h := newHarness(t, driver, nil)
	require.Equal(t, "default", h.coord.Profile())

	_, err := h.coord.Search(context.Background(), camryQuery(), 2)
	require.ErrorIs(t, err, crawl.ErrBlocked)

	rotated := h.coord.Profile()
	require.Regexp(t, regexp.MustCompile(`^cargurus_20250601_[a-z0-9]{6}$`), rotated)

	mu.Lock()
	blocked = false
	mu.Unlock()
	_, err = h.coord.Search(context.Background(), camryQuery(), 2)
	require.NoError(t, err)

	profiles := driver.Profiles()
	require.Len(t, profiles, 2)
	require.Equal(t, "default", profiles[0].ID)
	require.Equal(t, rotated, profiles[1].ID)
}

func TestBlockedNamedProfileIsKept(t *testing.T) {
	driver := &browsertest.Driver{Route: func(string) browsertest.Frames {
		return browsertest.Frames{fixture.BlockedPage()}
	}}
	h := newHarness(t, driver, nil)

	_, err := h.coord.Search(context.Background(), camryQuery(), 2, crawl.WithProfile("cargurus_20250601_abc123"))
	require.ErrorIs(t, err, crawl.ErrBlocked)
	require.Equal(t, "default", h.coord.Profile())
}

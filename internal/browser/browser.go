// Package browser owns the Chromium sessions the crawler drives.
//
// A session belongs to one profile (a persistent user-data-dir). The Manager
// hands out at most one session per profile at a time; a second caller for
// the same profile waits until the first releases it or its context ends.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"carscout/internal/behavior"
	"carscout/internal/metrics"
)

var (
	// ErrStartFailed means the browser could not be launched or a page could
	// not be opened. It is never retried.
	ErrStartFailed = errors.New("browser start failed")
	// ErrNavigationTimeout means a navigation hit its deadline. Retryable.
	ErrNavigationTimeout = errors.New("navigation timed out")
	// ErrSessionClosed is returned by every call on a released session.
	ErrSessionClosed = errors.New("session closed")
	// ErrNoElement means a selector matched nothing visible on the page.
	ErrNoElement = errors.New("element not found")
)

// Page is one automated tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Scroll(ctx context.Context, dy float64) error
	MoveMouse(ctx context.Context, x, y float64) error
	// Click clicks the first element matching a CSS selector.
	Click(ctx context.Context, selector string) error
	// Bounds returns the viewport box of the first element matching a CSS
	// selector, looking into same-page iframes when the page has none.
	Bounds(ctx context.Context, selector string) (behavior.Box, error)
	// Drag presses the left button at path[0], moves through the rest of
	// the path and releases at the end.
	Drag(ctx context.Context, path []behavior.Point) error
	Reload(ctx context.Context) error
	Viewport() (width, height float64)
	Close() error
}

// Profile identifies the on-disk browser state a page runs with.
type Profile struct {
	ID        string
	Dir       string
	UserAgent string
}

// Driver opens pages for a profile.
type Driver interface {
	Open(ctx context.Context, profile Profile) (Page, error)
}

// Options tunes a Manager.
type Options struct {
	ProfileDir  string
	NavTimeout  time.Duration
	RatePerMin  int
	Burst       int
	SnapshotDir string
}

// Manager hands out sessions, one per profile at a time.
type Manager struct {
	driver  Driver
	opts    Options
	limits  *HostLimiter
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewManager creates a Manager. logger and m may be nil.
func NewManager(driver Driver, opts Options, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	return &Manager{
		driver:  driver,
		opts:    opts,
		limits:  NewHostLimiter(opts.RatePerMin, opts.Burst),
		logger:  logger,
		metrics: m,
		slots:   make(map[string]chan struct{}),
	}
}

// Acquire waits for the profile to be free and opens a session on it. The
// caller must release it with Close.
func (m *Manager) Acquire(ctx context.Context, profileID string) (*Session, error) {
	slot := m.slot(profileID)
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	profile := m.profile(profileID)
	page, err := m.driver.Open(ctx, profile)
	if err != nil {
		<-slot
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.logger.Error("browser start failed", slog.String("profile", profileID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	m.metrics.SessionOpened()
	m.logger.Debug("session acquired", slog.String("profile", profileID))
	return &Session{
		ProfileID: profileID,
		page:      page,
		manager:   m,
		slot:      slot,
		started:   time.Now(),
	}, nil
}

// Close releases a session. Closing twice is a no-op.
func (m *Manager) Close(s *Session) error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		err = s.page.Close()
		<-s.slot
		m.metrics.SessionClosed()
		m.logger.Debug("session released",
			slog.String("profile", s.ProfileID),
			slog.Duration("held", time.Since(s.started)))
	})
	return err
}

// WithSession runs fn with a session on profileID and releases the session
// on every exit path, panics included.
func (m *Manager) WithSession(ctx context.Context, profileID string, fn func(*Session) error) error {
	s, err := m.Acquire(ctx, profileID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(s); cerr != nil {
			m.logger.Warn("session close failed", slog.String("profile", profileID), slog.String("error", cerr.Error()))
		}
	}()
	return fn(s)
}

// SnapshotDir is where blocked pages are saved; empty disables snapshots.
func (m *Manager) SnapshotDir() string {
	return m.opts.SnapshotDir
}

// PruneProfiles deletes profile directories older than maxAge that no
// session holds. A profile stays locked while its directory is removed, so
// Acquire on it waits rather than launching on a half-deleted dir.
func (m *Manager) PruneProfiles(maxAge time.Duration, now time.Time) ([]string, error) {
	if m.opts.ProfileDir == "" {
		return nil, nil
	}
	return pruneProfiles(m.opts.ProfileDir, maxAge, now, m.tryLock)
}

// tryLock takes a profile's slot without waiting. It reports false when a
// session holds the profile.
func (m *Manager) tryLock(name string) (func(), bool) {
	slot := m.slot(name)
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, true
	default:
		return nil, false
	}
}

// slot is keyed by directory name: two ids that map to the same
// user-data-dir share one slot.
func (m *Manager) slot(profileID string) chan struct{} {
	key := profileKey(profileID)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		m.slots[key] = s
	}
	return s
}

func (m *Manager) profile(profileID string) Profile {
	p := Profile{ID: profileID, UserAgent: UserAgentFor(profileID)}
	if m.opts.ProfileDir != "" {
		p.Dir = ProfilePath(m.opts.ProfileDir, profileID)
	}
	return p
}

// Session is a page held under a profile. It is not safe for concurrent use
// by more than one crawl.
type Session struct {
	ProfileID string

	page    Page
	manager *Manager
	slot    chan struct{}
	started time.Time
	once    sync.Once

	mu      sync.Mutex
	closed  bool
	lastURL string
}

func (s *Session) live() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// Navigate loads rawURL, waiting first on the per-host rate limit. A deadline
// hit inside the navigation becomes ErrNavigationTimeout.
func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	if err := s.live(); err != nil {
		return err
	}
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	if err := s.manager.limits.Wait(ctx, host); err != nil {
		return err
	}

	navCtx, cancel := context.WithTimeout(ctx, s.manager.opts.NavTimeout)
	defer cancel()

	s.mu.Lock()
	s.lastURL = rawURL
	s.mu.Unlock()

	err := s.page.Navigate(navCtx, rawURL)
	switch {
	case err == nil:
		s.manager.metrics.Navigation("ok")
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded) || navCtx.Err() != nil:
		s.manager.metrics.Navigation("timeout")
		return fmt.Errorf("%w: %s", ErrNavigationTimeout, rawURL)
	default:
		s.manager.metrics.Navigation("error")
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
}

// HTML returns the rendered DOM.
func (s *Session) HTML(ctx context.Context) (string, error) {
	if err := s.live(); err != nil {
		return "", err
	}
	return s.page.HTML(ctx)
}

func (s *Session) Scroll(ctx context.Context, dy float64) error {
	if err := s.live(); err != nil {
		return err
	}
	return s.page.Scroll(ctx, dy)
}

func (s *Session) MoveMouse(ctx context.Context, x, y float64) error {
	if err := s.live(); err != nil {
		return err
	}
	return s.page.MoveMouse(ctx, x, y)
}

func (s *Session) Click(ctx context.Context, selector string) error {
	if err := s.live(); err != nil {
		return err
	}
	return s.page.Click(ctx, selector)
}

func (s *Session) Bounds(ctx context.Context, selector string) (behavior.Box, error) {
	if err := s.live(); err != nil {
		return behavior.Box{}, err
	}
	return s.page.Bounds(ctx, selector)
}

func (s *Session) Drag(ctx context.Context, path []behavior.Point) error {
	if err := s.live(); err != nil {
		return err
	}
	if len(path) < 2 {
		return fmt.Errorf("drag needs at least two points, got %d", len(path))
	}
	return s.page.Drag(ctx, path)
}

// Reload reloads the current page.
func (s *Session) Reload(ctx context.Context) error {
	if err := s.live(); err != nil {
		return err
	}
	return s.page.Reload(ctx)
}

func (s *Session) Viewport() (float64, float64) {
	return s.page.Viewport()
}

// URL returns the last URL navigated to.
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastURL
}

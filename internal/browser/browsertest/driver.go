// Package browsertest provides a scripted browser.Driver for tests.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"carscout/internal/behavior"
	"carscout/internal/browser"
)

// defaultBox is where an element without a data-box attribute sits.
var defaultBox = behavior.Box{X: 100, Y: 100, Width: 120, Height: 40}

// Frames is what a URL shows over time: each HTML read after a navigation
// returns the next frame, and the last frame repeats.
type Frames []string

// Driver serves scripted pages. Route decides what a URL shows; NavErr, when
// set, can fail a navigation instead. All counters are safe to read while
// pages are in use.
//
// Clicks, bounds and drags look at the frame currently shown. An element's
// box comes from its data-box="x,y,w,h" attribute. OnClick and OnDrag may
// return new frames for the page to show next; nil leaves it unchanged.
type Driver struct {
	Route   func(url string) Frames
	NavErr  func(url string, n int) error
	OpenErr error
	OnClick func(url, selector string) Frames
	OnDrag  func(url string, path []behavior.Point) Frames

	mu          sync.Mutex
	navigations []string
	clicks      []string
	drags       [][]behavior.Point
	reads       int
	reloads     int
	scrolls     int
	moves       int
	opened      int
	closed      int
	profiles    []browser.Profile
}

// Open implements browser.Driver.
func (d *Driver) Open(ctx context.Context, profile browser.Profile) (browser.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.opened++
	d.profiles = append(d.profiles, profile)
	return &page{d: d}, nil
}

// Navigations returns every URL navigated to, in order.
func (d *Driver) Navigations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.navigations...)
}

// Reloads counts page reloads.
func (d *Driver) Reloads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reloads
}

// Reads counts HTML snapshots taken.
func (d *Driver) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// Gestures counts scrolls and pointer moves.
func (d *Driver) Gestures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scrolls + d.moves
}

// Clicks returns the selectors clicked, in order.
func (d *Driver) Clicks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.clicks...)
}

// Drags returns every drag path performed.
func (d *Driver) Drags() [][]behavior.Point {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]behavior.Point(nil), d.drags...)
}

// Opened counts pages opened.
func (d *Driver) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Closed counts pages closed.
func (d *Driver) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Profiles returns the profiles pages were opened with.
func (d *Driver) Profiles() []browser.Profile {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.Profile(nil), d.profiles...)
}

type page struct {
	d      *Driver
	url    string
	frames Frames
	next   int
}

func (p *page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.d.mu.Lock()
	p.d.navigations = append(p.d.navigations, url)
	n := len(p.d.navigations)
	navErr, route := p.d.NavErr, p.d.Route
	p.d.mu.Unlock()

	if navErr != nil {
		if err := navErr(url, n); err != nil {
			return err
		}
	}
	p.url = url
	p.frames, p.next = nil, 0
	if route != nil {
		p.frames = route(url)
	}
	return nil
}

// shown is the frame last read, or the first one before any read.
func (p *page) shown() string {
	if len(p.frames) == 0 {
		return ""
	}
	i := p.next - 1
	if i < 0 {
		i = 0
	}
	if i >= len(p.frames) {
		i = len(p.frames) - 1
	}
	return p.frames[i]
}

func (p *page) find(selector string) (*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.shown()))
	if err != nil {
		return nil, err
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNoElement, selector)
	}
	return sel, nil
}

func (p *page) show(frames Frames) {
	if frames != nil {
		p.frames, p.next = frames, 0
	}
}

func (p *page) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.find(selector); err != nil {
		return err
	}
	p.d.mu.Lock()
	p.d.clicks = append(p.d.clicks, selector)
	onClick := p.d.OnClick
	p.d.mu.Unlock()

	if onClick != nil {
		p.show(onClick(p.url, selector))
	}
	return nil
}

func (p *page) Bounds(ctx context.Context, selector string) (behavior.Box, error) {
	if err := ctx.Err(); err != nil {
		return behavior.Box{}, err
	}
	sel, err := p.find(selector)
	if err != nil {
		return behavior.Box{}, err
	}
	raw, ok := sel.Attr("data-box")
	if !ok {
		return defaultBox, nil
	}
	var b behavior.Box
	if _, err := fmt.Sscanf(raw, "%g,%g,%g,%g", &b.X, &b.Y, &b.Width, &b.Height); err != nil {
		return behavior.Box{}, fmt.Errorf("bad data-box %q: %w", raw, err)
	}
	return b, nil
}

func (p *page) Drag(ctx context.Context, path []behavior.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.d.mu.Lock()
	p.d.drags = append(p.d.drags, append([]behavior.Point(nil), path...))
	onDrag := p.d.OnDrag
	p.d.mu.Unlock()

	if onDrag != nil {
		p.show(onDrag(p.url, path))
	}
	return nil
}

func (p *page) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.d.mu.Lock()
	p.d.reads++
	p.d.mu.Unlock()

	if len(p.frames) == 0 {
		return "", nil
	}
	i := p.next
	if i >= len(p.frames) {
		i = len(p.frames) - 1
	}
	p.next++
	return p.frames[i], nil
}

func (p *page) Scroll(ctx context.Context, dy float64) error {
	p.d.mu.Lock()
	p.d.scrolls++
	p.d.mu.Unlock()
	return ctx.Err()
}

func (p *page) MoveMouse(ctx context.Context, x, y float64) error {
	p.d.mu.Lock()
	p.d.moves++
	p.d.mu.Unlock()
	return ctx.Err()
}

func (p *page) Reload(ctx context.Context) error {
	p.d.mu.Lock()
	p.d.reloads++
	p.d.mu.Unlock()
	return ctx.Err()
}

func (p *page) Viewport() (float64, float64) { return 1920, 1080 }

func (p *page) Close() error {
	p.d.mu.Lock()
	p.d.closed++
	p.d.mu.Unlock()
	return nil
}

package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"carscout/internal/behavior"
)

const (
	windowWidth  = 1920
	windowHeight = 1080

	dragStepDelay = 20 * time.Millisecond
)

// RodDriver launches one Chromium per page with go-rod and the stealth
// evasions applied.
type RodDriver struct {
	ChromeBin string
	Headless  bool
	Logger    *slog.Logger
}

// Open launches Chromium on the profile's user-data-dir and opens a stealth
// page.
func (d *RodDriver) Open(ctx context.Context, profile Profile) (Page, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := launcher.New().
		Context(ctx).
		Headless(d.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-gpu").
		Set("disable-extensions").
		Set("disable-background-timer-throttling").
		Set("disable-renderer-backgrounding").
		Set("window-size", fmt.Sprintf("%d,%d", windowWidth, windowHeight))
	if profile.UserAgent != "" {
		l = l.Set("user-agent", profile.UserAgent)
	}
	if profile.Dir != "" {
		if err := os.MkdirAll(profile.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create profile dir: %w", err)
		}
		l = l.UserDataDir(profile.Dir)
	}
	if bin := findChromiumPath(d.ChromeBin); bin != "" {
		logger.Debug("using chromium binary", slog.String("path", bin))
		l = l.Bin(bin)
	}
	if isDockerEnvironment() {
		l = l.Set("disable-setuid-sandbox").
			Set("no-first-run").
			Set("disable-default-apps")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("failed to open stealth page: %w", err)
	}

	logger.Info("browser launched", slog.String("profile", profile.ID), slog.Bool("headless", d.Headless))
	return &rodPage{browser: b, page: page, launcher: l}, nil
}

type rodPage struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return err
	}
	return pg.WaitLoad()
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) Scroll(ctx context.Context, dy float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Mouse.Scroll(0, dy, 8)
}

func (p *rodPage) MoveMouse(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Mouse.MoveTo(proto.Point{X: x, Y: y})
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	has, el, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Bounds(ctx context.Context, selector string) (behavior.Box, error) {
	pg := p.page.Context(ctx)
	has, el, err := pg.Has(selector)
	if err != nil {
		return behavior.Box{}, err
	}
	if has {
		if box, ok := elementBox(el); ok {
			return box, nil
		}
	}

	// Challenge widgets usually live in an iframe; boxes inside it are
	// relative to the frame element.
	iframes, err := pg.Elements("iframe")
	if err != nil {
		return behavior.Box{}, err
	}
	for _, fe := range iframes {
		outer, ok := elementBox(fe)
		if !ok {
			continue
		}
		frame, err := fe.Frame()
		if err != nil {
			continue
		}
		has, el, err := frame.Context(ctx).Has(selector)
		if err != nil || !has {
			continue
		}
		if box, ok := elementBox(el); ok {
			box.X += outer.X
			box.Y += outer.Y
			return box, nil
		}
	}
	return behavior.Box{}, fmt.Errorf("%w: %s", ErrNoElement, selector)
}

func (p *rodPage) Drag(ctx context.Context, path []behavior.Point) error {
	mouse := p.page.Mouse
	if err := mouse.MoveTo(proto.Point{X: path[0].X, Y: path[0].Y}); err != nil {
		return err
	}
	if err := mouse.Down(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	for _, pt := range path[1:] {
		err := behavior.Sleep(ctx, dragStepDelay)
		if err == nil {
			err = mouse.MoveTo(proto.Point{X: pt.X, Y: pt.Y})
		}
		if err != nil {
			_ = mouse.Up(proto.InputMouseButtonLeft, 1)
			return err
		}
	}
	return mouse.Up(proto.InputMouseButtonLeft, 1)
}

// elementBox reports false for elements with no rendered area.
func elementBox(el *rod.Element) (behavior.Box, bool) {
	shape, err := el.Shape()
	if err != nil {
		return behavior.Box{}, false
	}
	r := shape.Box()
	if r == nil || r.Width <= 0 || r.Height <= 0 {
		return behavior.Box{}, false
	}
	return behavior.Box{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}, true
}

func (p *rodPage) Reload(ctx context.Context) error {
	pg := p.page.Context(ctx)
	if err := pg.Reload(); err != nil {
		return err
	}
	return pg.WaitLoad()
}

func (p *rodPage) Viewport() (float64, float64) {
	return windowWidth, windowHeight
}

func (p *rodPage) Close() error {
	_ = p.page.Close()
	err := p.browser.Close()
	p.launcher.Kill()
	return err
}

// findChromiumPath prefers an explicit binary, then common install paths.
// An empty result lets rod download or locate its own build.
func findChromiumPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
	}
	paths := []string{
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/snap/bin/chromium",
		"/opt/google/chrome/chrome",
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	if path, ok := launcher.LookPath(); ok {
		return path
	}
	return ""
}

func isDockerEnvironment() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	data, err := os.ReadFile("/proc/1/cgroup")
	return err == nil && strings.Contains(string(data), "docker")
}

// Package behavior makes a browser session look like a person is reading the
// page: uneven scrolling, pauses and pointer drift.
package behavior

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Target is the part of a browser session the synthesizer drives.
type Target interface {
	Scroll(ctx context.Context, dy float64) error
	MoveMouse(ctx context.Context, x, y float64) error
	Viewport() (width, height float64)
}

// Kind is a type of synthetic action.
type Kind int

const (
	Scroll Kind = iota
	Pause
	Pointer
)

func (k Kind) String() string {
	switch k {
	case Scroll:
		return "scroll"
	case Pause:
		return "pause"
	case Pointer:
		return "pointer"
	default:
		return "unknown"
	}
}

// Action is one drawn step. Only the fields relevant to Kind are set.
type Action struct {
	Kind  Kind
	DY    float64       // Scroll: pixels, positive is down
	Delay time.Duration // Pause

	// Pointer: offset from the viewport centre, clamped when applied.
	OffsetX, OffsetY float64
}

const (
	minScroll     = 100
	maxScroll     = 500
	downBias      = 0.75
	minPause      = 500 * time.Millisecond
	maxPause      = 2000 * time.Millisecond
	pointerJitter = 100
	defaultSteps  = 3
	defaultWidth  = 1920
	defaultHeight = 1080

	minDragSteps = 15
	maxDragSteps = 25
	dragWobbleX  = 2
	dragWobbleY  = 1
)

// Point is a viewport position in CSS pixels.
type Point struct {
	X, Y float64
}

// Box is an element's rectangle in viewport pixels.
type Box struct {
	X, Y, Width, Height float64
}

// Center is the middle of b.
func (b Box) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// DefaultPool is the action mix used when none is configured.
var DefaultPool = []Kind{Scroll, Pause, Pointer}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Synthesizer draws randomized actions from an injected source. Two
// synthesizers built with the same seed produce the same plan.
type Synthesizer struct {
	mu     sync.Mutex // guards rng
	rng    *rand.Rand
	sleep  SleepFunc
	pool   []Kind
	steps  int
	logger *slog.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithSleep replaces the real sleep, mostly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(s *Synthesizer) { s.sleep = fn }
}

// WithPool restricts the kinds of action drawn.
func WithPool(kinds ...Kind) Option {
	return func(s *Synthesizer) {
		if len(kinds) > 0 {
			s.pool = append([]Kind(nil), kinds...)
		}
	}
}

// WithSteps sets how many actions one pass performs.
func WithSteps(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.steps = n
		}
	}
}

// WithLogger sets the logger used for skipped actions.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Synthesizer. A nil rng is seeded from the clock.
func New(rng *rand.Rand, opts ...Option) *Synthesizer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &Synthesizer{
		rng:    rng,
		sleep:  Sleep,
		pool:   DefaultPool,
		steps:  defaultSteps,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSeeded creates a Synthesizer from seed; seed 0 means time-seeded.
func NewSeeded(seed int64, opts ...Option) *Synthesizer {
	if seed == 0 {
		return New(nil, opts...)
	}
	return New(rand.New(rand.NewSource(seed)), opts...)
}

// Plan draws the next n actions without performing them.
func (s *Synthesizer) Plan(n int) []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Action, n)
	for i := range out {
		out[i] = s.draw()
	}
	return out
}

// SimulateBrowsing performs one pass of randomized actions against target.
// Individual action failures are logged and skipped; only cancellation stops
// the pass early.
func (s *Synthesizer) SimulateBrowsing(ctx context.Context, target Target) error {
	for _, a := range s.Plan(s.steps) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.apply(ctx, target, a); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Debug("behavior action skipped", slog.String("action", a.Kind.String()), slog.String("error", err.Error()))
		}
	}
	return ctx.Err()
}

// Wait sleeps for d through the synthesizer's sleep function.
func (s *Synthesizer) Wait(ctx context.Context, d time.Duration) error {
	return s.sleep(ctx, d)
}

// DragPath plans a pointer path from `from` to `to` the way a hand drags a
// slider: slow off the mark, quick through the middle, easing in at the end,
// with a little wobble on the way. The path starts and ends exactly on the
// given points.
func (s *Synthesizer) DragPath(from, to Point) []Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := minDragSteps + s.rng.Intn(maxDragSteps-minDragSteps+1)
	dx, dy := to.X-from.X, to.Y-from.Y
	path := make([]Point, 0, steps+1)
	path = append(path, from)
	for i := 1; i < steps; i++ {
		t := smoothstep(float64(i) / float64(steps))
		path = append(path, Point{
			X: from.X + dx*t + (s.rng.Float64()*2-1)*dragWobbleX,
			Y: from.Y + dy*t + (s.rng.Float64()*2-1)*dragWobbleY,
		})
	}
	return append(path, to)
}

func smoothstep(t float64) float64 {
	return t * t * (3 - 2*t)
}

func (s *Synthesizer) draw() Action {
	kind := s.pool[s.rng.Intn(len(s.pool))]
	a := Action{Kind: kind}
	switch kind {
	case Scroll:
		dy := float64(minScroll + s.rng.Intn(maxScroll-minScroll+1))
		if s.rng.Float64() >= downBias {
			dy = -dy
		}
		a.DY = dy
	case Pause:
		span := int64(maxPause - minPause)
		a.Delay = minPause + time.Duration(s.rng.Int63n(span+1))
	case Pointer:
		a.OffsetX = float64(s.rng.Intn(2*pointerJitter+1) - pointerJitter)
		a.OffsetY = float64(s.rng.Intn(2*pointerJitter+1) - pointerJitter)
	}
	return a
}

func (s *Synthesizer) apply(ctx context.Context, target Target, a Action) error {
	switch a.Kind {
	case Scroll:
		return target.Scroll(ctx, a.DY)
	case Pause:
		return s.sleep(ctx, a.Delay)
	case Pointer:
		w, h := target.Viewport()
		if w <= 0 || h <= 0 {
			w, h = defaultWidth, defaultHeight
		}
		x := clamp(w/2+a.OffsetX, 0, w-1)
		y := clamp(h/2+a.OffsetY, 0, h-1)
		return target.MoveMouse(ctx, x, y)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

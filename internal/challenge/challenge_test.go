package challenge

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"carscout/internal/behavior"
	"carscout/internal/fixture"
	"carscout/internal/pagestate"
)

// scriptedPage returns frames in order, repeating the last one. A drag
// switches to afterDrag when set.
type scriptedPage struct {
	frames    []string
	reads     int
	reloads   int
	boxes     map[string]behavior.Box
	afterDrag []string
	paths     [][]behavior.Point
}

func (p *scriptedPage) Bounds(_ context.Context, selector string) (behavior.Box, error) {
	if b, ok := p.boxes[selector]; ok {
		return b, nil
	}
	return behavior.Box{}, errors.New("no element")
}

func (p *scriptedPage) Drag(_ context.Context, path []behavior.Point) error {
	p.paths = append(p.paths, path)
	if p.afterDrag != nil {
		p.frames, p.reads = p.afterDrag, 0
	}
	return nil
}

func (p *scriptedPage) HTML(context.Context) (string, error) {
	i := p.reads
	if i >= len(p.frames) {
		i = len(p.frames) - 1
	}
	p.reads++
	return p.frames[i], nil
}

func (p *scriptedPage) Scroll(context.Context, float64) error { return nil }
func (p *scriptedPage) MoveMouse(context.Context, float64, float64) error { return nil }
func (p *scriptedPage) Viewport() (float64, float64) { return 1920, 1080 }
func (p *scriptedPage) Reload(context.Context) error {
	p.reloads++
	return nil
}

type sleepLog struct{ waits []time.Duration }

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func newHandler(sl *sleepLog) *Handler {
	synth := behavior.New(rand.New(rand.NewSource(1)), behavior.WithPool(behavior.Scroll), behavior.WithSleep(sl.sleep))
	return New(pagestate.New(), synth, Options{Settle: time.Second, BaseDelay: 2 * time.Second, MaxDelay: 5 * time.Second}, nil, nil)
}

func TestNeverClearsStopsAfterMaxAttempts(t *testing.T) {
	sl := &sleepLog{}
	page := &scriptedPage{frames: []string{fixture.ChallengePage()}}

	res := newHandler(sl).Clear(context.Background(), page, 3)
	if res.Cleared {
		t.Fatalf("challenge should not clear")
	}
	if res.Attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", res.Attempts)
	}
	if page.reads != 3 {
		t.Fatalf("expected one classification per attempt, got %d", page.reads)
	}
	if page.reloads != 1 {
		t.Fatalf("expected a reload on the second attempt only, got %d", page.reloads)
	}
	// settle, backoff 2s, settle, backoff 4s, settle
	want := []time.Duration{time.Second, 2 * time.Second, time.Second, 4 * time.Second, time.Second}
	if len(sl.waits) != len(want) {
		t.Fatalf("expected waits %v, got %v", want, sl.waits)
	}
	for i := range want {
		if sl.waits[i] != want[i] {
			t.Fatalf("expected waits %v, got %v", want, sl.waits)
		}
	}
}

func TestAttemptToClearReturnsFalseWhenExhausted(t *testing.T) {
	page := &scriptedPage{frames: []string{fixture.SliderChallengePage()}}
	if newHandler(&sleepLog{}).AttemptToClear(context.Background(), page, 3) {
		t.Fatalf("expected false")
	}
}

func TestClearsAfterOnePass(t *testing.T) {
	page := &scriptedPage{frames: []string{fixture.ListingsPage(fixture.CamryListings(0, 3))}}

	res := newHandler(&sleepLog{}).Clear(context.Background(), page, 3)
	if !res.Cleared || res.Attempts != 1 || res.State != pagestate.ValidResults {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestEmptyResultsCountAsCleared(t *testing.T) {
	page := &scriptedPage{frames: []string{fixture.ChallengePage(), fixture.EmptyPage()}}

	res := newHandler(&sleepLog{}).Clear(context.Background(), page, 3)
	if !res.Cleared || res.Attempts != 2 || res.State != pagestate.EmptyResults {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestBlockedStopsImmediately(t *testing.T) {
	page := &scriptedPage{frames: []string{fixture.BlockedPage()}}

	res := newHandler(&sleepLog{}).Clear(context.Background(), page, 5)
	if res.Cleared || res.Attempts != 1 || res.State != pagestate.Blocked {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	page := &scriptedPage{frames: []string{fixture.ListingsPage(fixture.CamryListings(0, 1))}}

	if newHandler(&sleepLog{}).AttemptToClear(ctx, page, 3) {
		t.Fatalf("a cancelled context must not report cleared")
	}
	if page.reads != 0 {
		t.Fatalf("no classification should happen after cancellation")
	}
}

func TestDelayIsCapped(t *testing.T) {
	h := newHandler(&sleepLog{})
	for attempt, want := range map[int]time.Duration{1: 2 * time.Second, 2: 4 * time.Second, 3: 5 * time.Second, 10: 5 * time.Second} {
		if got := h.delay(attempt); got != want {
			t.Fatalf("attempt %d: expected %v, got %v", attempt, want, got)
		}
	}
}

func TestSliderIsDraggedToTheEndOfItsTrack(t *testing.T) {
	page := &scriptedPage{
		frames: []string{fixture.SliderWidgetPage()},
		boxes: map[string]behavior.Box{
			".nc_iconfont.btn_slide": {X: 100, Y: 400, Width: 40, Height: 34},
			".nc_scale":              {X: 100, Y: 400, Width: 300, Height: 34},
		},
		afterDrag: []string{fixture.ListingsPage(fixture.CamryListings(0, 2))},
	}

	res := newHandler(&sleepLog{}).Clear(context.Background(), page, 3)
	if !res.Cleared || res.Attempts != 1 || res.Slides != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(page.paths) != 1 {
		t.Fatalf("expected one drag, got %d", len(page.paths))
	}
	path := page.paths[0]
	start, end := path[0], path[len(path)-1]
	if start != (behavior.Point{X: 120, Y: 417}) {
		t.Fatalf("drag should start on the handle centre, got %v", start)
	}
	if end != (behavior.Point{X: 380, Y: 417}) {
		t.Fatalf("drag should end at the far end of the track, got %v", end)
	}
}

func TestNoDragWithoutSlider(t *testing.T) {
	page := &scriptedPage{frames: []string{fixture.ChallengePage()}}

	res := newHandler(&sleepLog{}).Clear(context.Background(), page, 2)
	if res.Cleared || res.Slides != 0 || len(page.paths) != 0 {
		t.Fatalf("unexpected result %+v, %d drags", res, len(page.paths))
	}
}

func TestHandleWithoutTrackIsNotDragged(t *testing.T) {
	page := &scriptedPage{
		frames: []string{fixture.SliderWidgetPage()},
		boxes:  map[string]behavior.Box{".nc_iconfont.btn_slide": {X: 100, Y: 400, Width: 40, Height: 34}},
	}

	res := newHandler(&sleepLog{}).Clear(context.Background(), page, 1)
	if res.Slides != 0 || len(page.paths) != 0 {
		t.Fatalf("expected no drag, got %+v", res)
	}
}

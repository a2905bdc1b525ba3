// Package challenge works a session through a bot-detection interstitial by
// behaving like a person and re-checking the page.
package challenge

import (
	"context"
	"log/slog"
	"time"

	"carscout/internal/behavior"
	"carscout/internal/metrics"
	"carscout/internal/pagestate"
)

// Session is what the handler needs from a browser session.
type Session interface {
	pagestate.Source
	behavior.Target
	Reload(ctx context.Context) error
	Bounds(ctx context.Context, selector string) (behavior.Box, error)
	Drag(ctx context.Context, path []behavior.Point) error
}

// Slider puzzle parts, most specific first.
var (
	sliderHandles = []string{
		".nc_iconfont.btn_slide",
		"[class*='slider-button']",
		"[class*='slider-handle']",
		"[class*='drag-handle']",
		"[class*='puzzle-slider']",
		"[draggable='true']",
	}
	sliderTracks = []string{
		".nc_scale",
		"[class*='slider-track']",
		"[class*='slider-bg']",
		"[class*='captcha-track']",
	}
)

// Options tunes a Handler. Zero values take the defaults.
type Options struct {
	// Settle is the pause between simulated browsing and re-classifying.
	Settle    time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Result describes one clearing run.
type Result struct {
	Cleared  bool
	Attempts int
	Slides   int // slider drags performed
	State    pagestate.State
}

// Handler clears challenges. It is safe for concurrent use when its
// classifier and synthesizer are.
type Handler struct {
	classifier *pagestate.Classifier
	synth      *behavior.Synthesizer
	opts       Options
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New creates a Handler.
func New(classifier *pagestate.Classifier, synth *behavior.Synthesizer, opts Options, logger *slog.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Settle <= 0 {
		opts.Settle = 2 * time.Second
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 2 * time.Second
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = 30 * time.Second
	}
	return &Handler{classifier: classifier, synth: synth, opts: opts, logger: logger, metrics: m}
}

// WithClassifier returns a copy that judges pages with c.
func (h *Handler) WithClassifier(c *pagestate.Classifier) *Handler {
	cp := *h
	cp.classifier = c
	return &cp
}

// AttemptToClear reports whether the page behind s reached a result state
// within maxAttempts.
func (h *Handler) AttemptToClear(ctx context.Context, s Session, maxAttempts int) bool {
	return h.Clear(ctx, s, maxAttempts).Cleared
}

// Clear runs up to maxAttempts passes. Each pass simulates browsing, drags
// the slider when the page shows one, waits, and re-classifies; every second
// pass reloads first. Results or an empty results page clear the challenge,
// a block page ends the run at once.
func (h *Handler) Clear(ctx context.Context, s Session, maxAttempts int) Result {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	res := Result{State: pagestate.Challenge}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return res
		}
		res.Attempts = attempt
		log := h.logger.With(slog.Int("attempt", attempt), slog.Int("max_attempts", maxAttempts))

		if attempt%2 == 0 {
			if err := s.Reload(ctx); err != nil {
				log.Debug("reload before challenge attempt failed", slog.String("error", err.Error()))
			}
		}
		if err := h.synth.SimulateBrowsing(ctx, s); err != nil {
			return res
		}
		if h.slide(ctx, s, log) {
			res.Slides++
		}
		if err := h.synth.Wait(ctx, h.opts.Settle); err != nil {
			return res
		}

		res.State = h.classifier.Classify(ctx, s)
		switch res.State {
		case pagestate.ValidResults, pagestate.EmptyResults:
			h.metrics.ChallengeAttempt("cleared")
			log.Info("challenge cleared", slog.String("state", res.State.String()))
			res.Cleared = true
			return res
		case pagestate.Blocked:
			h.metrics.ChallengeAttempt("blocked")
			log.Warn("blocked while clearing challenge")
			return res
		}

		h.metrics.ChallengeAttempt("pending")
		log.Debug("challenge still present", slog.String("state", res.State.String()))
		if attempt < maxAttempts {
			if err := h.synth.Wait(ctx, h.delay(attempt)); err != nil {
				return res
			}
		}
	}

	h.metrics.ChallengeAttempt("exhausted")
	h.logger.Warn("challenge not cleared", slog.Int("attempts", res.Attempts), slog.String("state", res.State.String()))
	return res
}

// slide drags a slider puzzle's handle to the far end of its track along a
// human-looking path. It reports whether a drag was made.
func (h *Handler) slide(ctx context.Context, s Session, log *slog.Logger) bool {
	handle, ok := locate(ctx, s, sliderHandles)
	if !ok {
		return false
	}
	track, ok := locate(ctx, s, sliderTracks)
	if !ok {
		log.Debug("slider handle found without a track")
		return false
	}

	from := handle.Center()
	to := behavior.Point{X: track.X + track.Width - handle.Width/2, Y: from.Y}
	if to.X <= from.X {
		return false
	}
	if err := s.Drag(ctx, h.synth.DragPath(from, to)); err != nil {
		log.Debug("slider drag failed", slog.String("error", err.Error()))
		return false
	}
	h.metrics.ChallengeAttempt("slid")
	log.Info("slider dragged", slog.Float64("distance", to.X-from.X))
	return true
}

func locate(ctx context.Context, s Session, selectors []string) (behavior.Box, bool) {
	for _, sel := range selectors {
		if b, err := s.Bounds(ctx, sel); err == nil && b.Width > 0 && b.Height > 0 {
			return b, true
		}
	}
	return behavior.Box{}, false
}

// delay doubles from BaseDelay per attempt, capped at MaxDelay.
func (h *Handler) delay(attempt int) time.Duration {
	d := h.opts.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= h.opts.MaxDelay {
			return h.opts.MaxDelay
		}
	}
	return d
}

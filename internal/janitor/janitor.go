// Package janitor runs periodic housekeeping for the service: stale browser
// profiles and listings nobody has seen in a while.
package janitor

import (
	"context"
	"log/slog"
	"time"
)

// ListingPruner deletes listings last seen before cutoff.
type ListingPruner interface {
	PruneListings(cutoff time.Time) (int64, error)
}

// ProfilePruner deletes idle browser profiles older than maxAge.
// *browser.Manager implements it and skips profiles with an open session.
type ProfilePruner interface {
	PruneProfiles(maxAge time.Duration, now time.Time) ([]string, error)
}

// Options tunes a Janitor. Zero durations disable the matching job.
type Options struct {
	Interval      time.Duration
	ProfileMaxAge time.Duration
	ListingMaxAge time.Duration
}

// Report is what one sweep removed.
type Report struct {
	Profiles []string
	Listings int64
}

type Janitor struct {
	listings ListingPruner
	profiles ProfilePruner
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

func New(listings ListingPruner, profiles ProfilePruner, opts Options, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	return &Janitor{listings: listings, profiles: profiles, opts: opts, logger: logger, now: time.Now}
}

// Sweep runs every enabled job once. A failing job is logged and does not
// stop the others.
func (j *Janitor) Sweep() Report {
	var r Report
	now := j.now()

	if j.profiles != nil && j.opts.ProfileMaxAge > 0 {
		removed, err := j.profiles.PruneProfiles(j.opts.ProfileMaxAge, now)
		if err != nil {
			j.logger.Error("Profile pruning failed", slog.String("error", err.Error()))
		}
		r.Profiles = removed
	}

	if j.listings != nil && j.opts.ListingMaxAge > 0 {
		n, err := j.listings.PruneListings(now.Add(-j.opts.ListingMaxAge))
		if err != nil {
			j.logger.Error("Listing pruning failed", slog.String("error", err.Error()))
		}
		r.Listings = n
	}

	if len(r.Profiles) > 0 || r.Listings > 0 {
		j.logger.Info("Housekeeping sweep finished",
			slog.Int("profiles_removed", len(r.Profiles)),
			slog.Int64("listings_removed", r.Listings))
	}
	return r
}

// Run sweeps once at start and then every Interval until ctx ends.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.opts.Interval)
	defer ticker.Stop()

	j.Sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

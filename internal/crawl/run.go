package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"carscout/internal/browser"
	"carscout/internal/challenge"
	"carscout/internal/events"
	"carscout/internal/extract"
	"carscout/internal/models"
	"carscout/internal/pagestate"
	"carscout/internal/urlbuilder"
)

// URLStrategy says where result page n (1-based) lives. An empty string
// means there is no such page.
type URLStrategy interface {
	URL(page int) string
}

// URLFunc adapts a function to URLStrategy.
type URLFunc func(page int) string

func (f URLFunc) URL(page int) string { return f(page) }

// Paged walks the numbered result pages of a search URL.
func Paged(base string) URLStrategy {
	return URLFunc(func(page int) string {
		return urlbuilder.WithPage(base, page)
	})
}

// Single visits one page only.
func Single(rawURL string) URLStrategy {
	return URLFunc(func(page int) string {
		if page > 1 {
			return ""
		}
		return rawURL
	})
}

// Target pairs a URL strategy with the extractor for its pages.
type Target[T any] struct {
	Kind      string
	Subject   string
	URLs      URLStrategy
	Extractor extract.Extractor[T]
	// Link returns a record's link for the dead-link filter. Nil skips the
	// filter.
	Link func(T) string
	// Prepare runs on the loaded page before it is classified, to open
	// controls that hide the records. Its failures are logged and the page
	// is classified as it stands.
	Prepare func(ctx context.Context, s *browser.Session) error
}

// operation is the state of one run of the machine. It lives for a single
// call and is never shared.
type operation[T any] struct {
	c          *Coordinator
	target     Target[T]
	limit      int
	id         string
	sink       events.Sink
	log        *slog.Logger
	classifier *pagestate.Classifier
	challenges *challenge.Handler
	session    *browser.Session

	state   State
	page    int
	attempt int
	url     string
	html    string
	cleared bool // a challenge was cleared since the last navigation
	lastErr error
	waited  time.Duration // backoff before the current attempt
	history []models.CrawlAttempt

	records []T
	seen    map[string]struct{}
	err     *OperationError
}

// run drives target through the state machine on a scoped session and
// emits exactly one terminal event.
func run[T any](ctx context.Context, c *Coordinator, target Target[T], limit int, rc runConfig) ([]T, error) {
	if limit <= 0 {
		limit = c.policy.DefaultLimit
	}
	if c.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.Timeout)
		defer cancel()
	}

	classifier := pagestate.New(target.Extractor.ResultSelectors()...).WithLogger(c.deps.Logger)
	op := &operation[T]{
		c:          c,
		target:     target,
		limit:      limit,
		id:         rc.id,
		sink:       events.Multi(c.deps.Events, rc.sink),
		classifier: classifier,
		challenges: c.deps.Challenges.WithClassifier(classifier),
		seen:       make(map[string]struct{}),
		log: c.deps.Logger.With(
			slog.String("operation_id", rc.id),
			slog.String("kind", target.Kind),
			slog.String("profile", rc.profile)),
	}

	began := c.deps.Now()
	op.log.Info("operation started", slog.String("subject", target.Subject), slog.Int("limit", limit))
	op.emit(events.Started, op.payload())

	err := c.deps.Sessions.WithSession(ctx, rc.profile, func(s *browser.Session) error {
		op.session = s
		return op.drive(ctx)
	})
	if err != nil && op.err == nil {
		kind := KindFatalResource
		if ctx.Err() != nil {
			kind = KindCanceled
		}
		op.err = &OperationError{Kind: kind, State: Start, Err: err}
	}

	elapsed := c.deps.Now().Sub(began)
	if op.err != nil {
		op.err.Partial = len(op.records)
		op.err.History = op.history
		if op.err.Kind == KindBlocked && rc.rotate {
			c.rotateProfile(rc.profile)
		}
		p := op.payload().WithCount(len(op.records))
		p.Reason = op.err.Reason()
		op.emit(events.Failed, p)
		c.deps.Metrics.ObserveOperation(target.Kind, op.err.Kind.String(), elapsed)
		op.log.Warn("operation failed",
			slog.String("state", op.err.State.String()),
			slog.Int("attempts", op.err.Attempts),
			slog.Int("partial", op.err.Partial),
			slog.String("error", op.err.Err.Error()))
		return op.records, op.err
	}

	op.emit(events.Completed, op.payload().WithCount(len(op.records)))
	c.deps.Metrics.ObserveOperation(target.Kind, "completed", elapsed)
	op.log.Info("operation completed",
		slog.Int("count", len(op.records)),
		slog.Int("pages", op.page),
		slog.Int("attempts", len(op.history)),
		slog.Duration("elapsed", elapsed))
	return op.records, nil
}

func (op *operation[T]) drive(ctx context.Context) error {
	op.state = Start
	for !op.state.Terminal() {
		from := op.state
		ev := op.step(ctx)
		to, err := next(from, ev)
		if err != nil {
			op.fail(KindFatalResource, err)
		}
		op.log.Debug("transition",
			slog.String("from", from.String()),
			slog.String("event", ev.String()),
			slog.String("to", to.String()))
		op.state = to
	}
	if op.err != nil {
		return op.err
	}
	return nil
}

// step runs the current state and reports what happened. Cancellation is
// checked before every step.
func (op *operation[T]) step(ctx context.Context) Event {
	if err := ctx.Err(); err != nil {
		return op.cancel(err)
	}
	switch op.state {
	case Start:
		return evBegin
	case BuildURL:
		return op.buildURL()
	case Navigate:
		return op.navigate(ctx)
	case Classify:
		return op.classify(ctx)
	case ClearChallenge:
		return op.clearChallenge(ctx)
	case Extract:
		return op.extract(ctx)
	case Backoff:
		return op.backoff(ctx)
	}
	return evFatal
}

func (op *operation[T]) buildURL() Event {
	op.page++
	op.attempt = 1
	op.lastErr = nil
	op.waited = 0
	if op.page > op.c.policy.MaxPages {
		return evNoMorePages
	}
	op.url = op.target.URLs.URL(op.page)
	if op.url == "" {
		return evNoMorePages
	}
	return evURLReady
}

func (op *operation[T]) navigate(ctx context.Context) Event {
	p := op.payload()
	p.URL = op.url
	op.emit(events.Navigating, p)
	op.html = ""
	op.cleared = false

	if err := op.session.Navigate(ctx, op.url); err != nil {
		if ctx.Err() != nil {
			return op.cancel(ctx.Err())
		}
		if errors.Is(err, browser.ErrSessionClosed) {
			op.fail(KindFatalResource, err)
			return evFatal
		}
		op.lastErr = err
		op.log.Warn("navigation failed",
			slog.Int("page", op.page),
			slog.Int("attempt", op.attempt),
			slog.String("error", err.Error()))
		return evNavFailed
	}

	if !op.c.policy.SkipBrowsing {
		if err := op.c.deps.Behavior.SimulateBrowsing(ctx, op.session); err != nil {
			return op.cancel(err)
		}
	}
	if op.target.Prepare != nil {
		if err := op.target.Prepare(ctx, op.session); err != nil {
			if ctx.Err() != nil {
				return op.cancel(ctx.Err())
			}
			op.log.Warn("page preparation failed", slog.Int("page", op.page), slog.String("error", err.Error()))
		}
	}
	return evLoaded
}

// classify reads the page once and keeps the snapshot for extraction. A
// loading page is polled a bounded number of times before it counts as
// unrecognised.
func (op *operation[T]) classify(ctx context.Context) Event {
	var (
		html  string
		state pagestate.State
	)
	for poll := 0; ; poll++ {
		var err error
		html, err = op.session.HTML(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return op.cancel(ctx.Err())
			}
			op.log.Warn("failed to read page", slog.String("error", err.Error()))
			state = pagestate.UnknownError
		} else {
			state = op.classifier.ClassifyHTML(html)
		}
		op.c.deps.Metrics.PageState(state.String())

		if state != pagestate.Loading || poll >= op.c.policy.LoadingPolls {
			break
		}
		if err := op.c.deps.Sleep(ctx, op.c.policy.LoadingWait); err != nil {
			return op.cancel(err)
		}
	}

	op.html = html
	op.log.Debug("page classified",
		slog.Int("page", op.page),
		slog.Int("attempt", op.attempt),
		slog.String("state", state.String()))

	switch state {
	case pagestate.ValidResults:
		op.log.Debug("results on page", slog.Int("page", op.page), slog.Int("items", op.classifier.CountResults(html)))
		return evResults
	case pagestate.EmptyResults:
		op.record(models.OutcomeSuccess)
		return evEmpty
	case pagestate.Challenge:
		return evChallenge
	case pagestate.Blocked:
		op.blocked(ctx)
		return evBlocked
	default:
		op.lastErr = fmt.Errorf("page state %s", state)
		return evUnknown
	}
}

func (op *operation[T]) clearChallenge(ctx context.Context) Event {
	if op.cleared {
		// The challenge came back after clearing once on this navigation.
		op.emit(events.ChallengeFailed, op.reason("challenge returned after clearing"))
		op.fail(KindChallengeExhausted, fmt.Errorf("%w: challenge returned", ErrChallengeExhausted))
		return evNotCleared
	}

	op.emit(events.ChallengeEncountered, op.payload())
	res := op.challenges.Clear(ctx, op.session, op.c.policy.ChallengeAttempts)
	if ctx.Err() != nil {
		return op.cancel(ctx.Err())
	}

	switch {
	case res.Cleared:
		op.cleared = true
		p := op.payload()
		p.Attempt = res.Attempts
		op.emit(events.ChallengeCleared, p)
		return evCleared
	case res.State == pagestate.Blocked:
		op.blocked(ctx)
		return evBlocked
	default:
		p := op.reason(res.State.String())
		p.Attempt = res.Attempts
		op.emit(events.ChallengeFailed, p)
		op.attempt = res.Attempts
		op.fail(KindChallengeExhausted, fmt.Errorf("%w after %d attempts", ErrChallengeExhausted, res.Attempts))
		return evNotCleared
	}
}

func (op *operation[T]) extract(ctx context.Context) Event {
	res, err := op.target.Extractor.Extract(op.html)
	if err != nil {
		op.lastErr = err
		return evUnknown
	}

	fresh, dead := 0, 0
	for _, rec := range res.Records {
		if len(op.records) >= op.limit {
			break
		}
		key := op.target.Extractor.Key(rec)
		if _, dup := op.seen[key]; dup {
			continue
		}
		op.seen[key] = struct{}{}
		if op.isDead(ctx, rec) {
			dead++
			continue
		}
		op.records = append(op.records, rec)
		fresh++
	}

	op.c.deps.Metrics.Records(op.target.Kind, len(res.Records), res.Dropped)
	op.emit(events.Extracted, op.payload().WithCount(fresh))
	op.log.Info("page extracted",
		slog.Int("page", op.page),
		slog.Int("seen", res.Seen),
		slog.Int("dropped", res.Dropped),
		slog.Int("new", fresh),
		slog.Int("dead", dead),
		slog.Int("total", len(op.records)),
		slog.String("via", res.Via))
	op.record(models.OutcomeSuccess)

	if len(op.records) >= op.limit || fresh == 0 {
		return evFinished
	}
	return evNextPage
}

func (op *operation[T]) backoff(ctx context.Context) Event {
	op.record(models.OutcomeRetryable)
	if op.attempt >= op.c.policy.MaxAttempts {
		op.fail(KindTransient, fmt.Errorf("%w: %w", ErrTransientExhausted, op.lastErr))
		return evExhausted
	}

	d := op.c.delay(op.attempt)
	p := op.payload()
	p.Attempt = op.attempt + 1
	p.Delay = d
	if op.lastErr != nil {
		p.Reason = op.lastErr.Error()
	}
	op.emit(events.Retrying, p)
	op.log.Info("retrying page", slog.Int("page", op.page), slog.Int("next_attempt", op.attempt+1), slog.Duration("delay", d))

	if err := op.c.deps.Sleep(ctx, d); err != nil {
		return op.cancel(err)
	}
	op.attempt++
	op.waited = d
	return evRetry
}

func (op *operation[T]) isDead(ctx context.Context, rec T) bool {
	if op.target.Link == nil || op.c.deps.DeadLinks == nil {
		return false
	}
	return op.c.deps.DeadLinks.IsDead(ctx, op.target.Link(rec))
}

// blocked records a block page and saves a snapshot when enabled.
func (op *operation[T]) blocked(ctx context.Context) {
	p := op.payload()
	p.URL = op.url
	op.emit(events.Blocked, p)
	if dir := op.c.deps.Sessions.SnapshotDir(); dir != "" {
		if path, err := op.session.Snapshot(ctx, dir, "blocked"); err != nil {
			op.log.Warn("failed to save blocked page", slog.String("error", err.Error()))
		} else {
			op.log.Info("saved blocked page", slog.String("path", path))
		}
	}
	op.fail(KindBlocked, ErrBlocked)
}

func (op *operation[T]) cancel(err error) Event {
	op.fail(KindCanceled, err)
	return evCanceled
}

// fail keeps the first failure only.
func (op *operation[T]) fail(kind ErrorKind, err error) {
	if op.err != nil {
		return
	}
	op.err = &OperationError{
		Kind:     kind,
		State:    op.state,
		Page:     op.page,
		Attempts: op.attempt,
		Err:      err,
	}
	if kind != KindTransient {
		op.record(models.OutcomeFatal)
	}
}

func (op *operation[T]) record(outcome models.AttemptOutcome) {
	op.history = append(op.history, models.CrawlAttempt{
		Index:   op.attempt,
		Backoff: op.waited,
		Outcome: outcome,
	})
}

func (op *operation[T]) payload() events.Payload {
	return events.Payload{
		OperationID: op.id,
		Kind:        op.target.Kind,
		Page:        op.page,
		Attempt:     op.attempt,
	}
}

func (op *operation[T]) reason(r string) events.Payload {
	p := op.payload()
	p.Reason = r
	return p
}

func (op *operation[T]) emit(name string, p events.Payload) {
	op.sink.Emit(name, p)
}

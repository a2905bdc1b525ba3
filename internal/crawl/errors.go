package crawl

import (
	"errors"
	"fmt"

	"carscout/internal/models"
)

var (
	// ErrBlocked means the site served a block page. Never retried.
	ErrBlocked = errors.New("blocked by site")
	// ErrChallengeExhausted means a bot challenge did not clear.
	ErrChallengeExhausted = errors.New("challenge not cleared")
	// ErrTransientExhausted means navigation kept failing or the page kept
	// coming back unrecognised until the attempt budget ran out.
	ErrTransientExhausted = errors.New("retries exhausted")
)

// ErrorKind groups operation failures by what a caller can do about them.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindChallengeExhausted
	KindBlocked
	KindFatalResource
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindChallengeExhausted:
		return "challenge_exhausted"
	case KindBlocked:
		return "blocked"
	case KindFatalResource:
		return "fatal_resource"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// OperationError is returned by every failed operation. Records gathered
// before the failure are still returned next to it; Partial counts them.
type OperationError struct {
	Kind     ErrorKind
	State    State // state the machine failed in
	Page     int
	Attempts int
	Partial  int
	Err      error

	// History lists every Navigate->Classify pass of the operation, in order.
	History []models.CrawlAttempt
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("crawl %s in %s (page %d, attempt %d, %d partial records): %v",
		e.Kind, e.State, e.Page, e.Attempts, e.Partial, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether running the operation again later may succeed.
func (e *OperationError) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindChallengeExhausted
}

// Reason is the short failure text carried by the failed event.
func (e *OperationError) Reason() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

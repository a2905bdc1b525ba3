package crawl

import "fmt"

// State is a step of the crawl state machine.
type State int

const (
	Start State = iota
	BuildURL
	Navigate
	Classify
	ClearChallenge
	Extract
	Backoff
	Done
	Fail
)

func (s State) String() string {
	switch s {
	case Start:
		return "start"
	case BuildURL:
		return "build_url"
	case Navigate:
		return "navigate"
	case Classify:
		return "classify"
	case ClearChallenge:
		return "clear_challenge"
	case Extract:
		return "extract"
	case Backoff:
		return "backoff"
	case Done:
		return "done"
	case Fail:
		return "fail"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Done || s == Fail
}

// Event is the outcome of running one step.
type Event int

const (
	evBegin Event = iota
	evURLReady
	evNoMorePages
	evLoaded
	evNavFailed
	evFatal
	evResults
	evEmpty
	evChallenge
	evBlocked
	evUnknown
	evCleared
	evNotCleared
	evNextPage
	evFinished
	evRetry
	evExhausted
	evCanceled
)

var eventNames = map[Event]string{
	evBegin:       "begin",
	evURLReady:    "url_ready",
	evNoMorePages: "no_more_pages",
	evLoaded:      "loaded",
	evNavFailed:   "nav_failed",
	evFatal:       "fatal",
	evResults:     "results",
	evEmpty:       "empty",
	evChallenge:   "challenge",
	evBlocked:     "blocked",
	evUnknown:     "unknown",
	evCleared:     "cleared",
	evNotCleared:  "not_cleared",
	evNextPage:    "next_page",
	evFinished:    "finished",
	evRetry:       "retry",
	evExhausted:   "exhausted",
	evCanceled:    "canceled",
}

func (e Event) String() string {
	if n, ok := eventNames[e]; ok {
		return n
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// transitions is the whole machine. A pair missing from the table is a bug
// in the step that produced the event.
var transitions = map[State]map[Event]State{
	Start: {
		evBegin:    BuildURL,
		evCanceled: Fail,
	},
	BuildURL: {
		evURLReady:    Navigate,
		evNoMorePages: Done,
		evCanceled:    Fail,
	},
	Navigate: {
		evLoaded:    Classify,
		evNavFailed: Backoff,
		evFatal:     Fail,
		evCanceled:  Fail,
	},
	Classify: {
		evResults:   Extract,
		evEmpty:     Done,
		evChallenge: ClearChallenge,
		evBlocked:   Fail,
		evUnknown:   Backoff,
		evCanceled:  Fail,
	},
	ClearChallenge: {
		evCleared:    Classify,
		evNotCleared: Fail,
		evBlocked:    Fail,
		evCanceled:   Fail,
	},
	Extract: {
		evNextPage: BuildURL,
		evFinished: Done,
		evUnknown:  Backoff,
		evCanceled: Fail,
	},
	Backoff: {
		evRetry:     Navigate,
		evExhausted: Fail,
		evCanceled:  Fail,
	},
}

// next returns the state that follows from on ev.
func next(from State, ev Event) (State, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return Fail, fmt.Errorf("no transition from %s on %s", from, ev)
}

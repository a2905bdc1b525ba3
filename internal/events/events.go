// Package events carries crawl progress from the engine to whoever is
// listening. The engine only knows the Sink contract; transport is up to the
// sink.
package events

import (
	"sync"
	"time"
)

// Event names emitted by the crawl coordinator.
const (
	Started              = "started"
	Navigating           = "navigating"
	ChallengeEncountered = "challenge_encountered"
	ChallengeCleared     = "challenge_cleared"
	ChallengeFailed      = "challenge_failed"
	Retrying             = "retrying"
	Extracted            = "extracted"
	Blocked              = "blocked"
	Completed            = "completed"
	Failed               = "failed"
)

// Terminal reports whether name ends an operation.
func Terminal(name string) bool {
	return name == Completed || name == Failed
}

// Payload is the optional data attached to an event.
type Payload struct {
	OperationID string        `json:"operationId"`
	Kind        string        `json:"kind,omitempty"`
	Count       *int          `json:"count,omitempty"`
	Page        int           `json:"page,omitempty"`
	Attempt     int           `json:"attempt,omitempty"`
	Delay       time.Duration `json:"delay,omitempty"`
	URL         string        `json:"url,omitempty"`
	Reason      string        `json:"reason,omitempty"`
}

// WithCount returns a copy of p carrying n.
func (p Payload) WithCount(n int) Payload {
	p.Count = &n
	return p
}

// Event is a named payload stamped with the time it was emitted.
type Event struct {
	Name    string    `json:"name"`
	Payload Payload   `json:"payload"`
	Time    time.Time `json:"time"`
}

// Sink receives progress events. Emit must not block the caller for long.
type Sink interface {
	Emit(name string, payload Payload)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(name string, payload Payload)

// Emit calls f.
func (f SinkFunc) Emit(name string, payload Payload) { f(name, payload) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(string, Payload) {})

type multi []Sink

// Multi fans events out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Emit(name string, payload Payload) {
	for _, s := range m {
		s.Emit(name, payload)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records the event.
func (r *Recorder) Emit(name string, payload Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Name: name, Payload: payload, Time: time.Now()})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Names returns the recorded event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Name
	}
	return names
}

// Count returns how many events named name were recorded.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

// ChannelSink forwards events to a buffered channel. When the buffer is
// full, non-terminal events are dropped so a slow reader never stalls a
// crawl; terminal events wait up to TerminalWait.
type ChannelSink struct {
	ch           chan Event
	once         sync.Once
	mu           sync.RWMutex
	closed       bool
	TerminalWait time.Duration
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan Event, buffer), TerminalWait: 5 * time.Second}
}

// Events is the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Emit forwards the event without blocking on non-terminal events.
func (s *ChannelSink) Emit(name string, payload Payload) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	ev := Event{Name: name, Payload: payload, Time: time.Now()}
	if Terminal(name) {
		select {
		case s.ch <- ev:
		case <-time.After(s.TerminalWait):
		}
		return
	}
	select {
	case s.ch <- ev:
	default:
	}
}

// Close closes the channel. Later events are ignored.
func (s *ChannelSink) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

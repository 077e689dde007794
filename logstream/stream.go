// Package logstream implements the Log Event Stream: a write-through
// io.Writer that scrapes a child process's stdout line-by-line and fires
// named events when a line contains a registered substring.
package logstream

import (
	"bytes"
	"io"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// EventName identifies one of the lifecycle substrings the interlock cares
// about. The strings are configurable (see NewStream) but the set the
// interlock listens for is semantically fixed by spec.md §4.1.
type EventName string

const (
	// EventPID fires when a line matches the "PID is" substring.
	EventPID EventName = "PID"
	// EventActive fires on the ACTIVE role announcement.
	EventActive EventName = "ACTIVE"
	// EventPassive fires on the PASSIVE-STANDBY role announcement.
	EventPassive EventName = "PASSIVE"
	// EventZap fires on a self-initiated restart announcement.
	EventZap EventName = "ZAP"
	// EventWarn and EventError are log-only; recorded, never actioned.
	EventWarn  EventName = "WARN"
	EventError EventName = "ERROR"
)

// Event carries the raw matched line alongside the event that fired.
type Event struct {
	Name EventName
	Line string
}

// Listener is notified synchronously, on the stream's Write goroutine, for
// every event fired. Listeners must return quickly: blocking here stalls
// further stdout consumption for the owning supervisor (spec.md §4.1).
type Listener func(Event)

// Rule pairs a substring with the event name it fires. Rules are tested in
// registration order; a line matching multiple rules fires multiple
// events, also in registration order.
type Rule struct {
	Substring string
	Name      EventName
}

// Stream is an io.Writer that tees every byte written to Sink while
// buffering it line-wise (newline-delimited, platform-agnostic: both "\n"
// and "\r\n" terminate a line) to classify completed lines against Rules.
// A partial final line, never newline-terminated before Close, is
// discarded.
type Stream struct {
	sink  io.Writer
	rules []Rule
	log   hclog.Logger

	mu        sync.Mutex
	buf       bytes.Buffer
	listeners []Listener
}

// NewStream builds a Stream that tees writes to sink and classifies
// completed lines against rules.
func NewStream(sink io.Writer, rules []Rule, log hclog.Logger) *Stream {
	return &Stream{sink: sink, rules: rules, log: log}
}

// Listen registers a listener invoked for every event fired from this
// point forward. It takes the same lock Write holds while firing events, so
// it is safe to call concurrently with Write but must not be called from
// inside a Listener.
func (s *Stream) Listen(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Write implements io.Writer: forwards p to the sink unconditionally, then
// buffers and classifies any completed lines contained within p.
func (s *Stream) Write(p []byte) (int, error) {
	if _, err := s.sink.Write(p); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Write(p)

	for {
		data := s.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.TrimRight(data[:idx], "\r"))
		s.buf.Next(idx + 1)
		s.classify(line)
	}
	return len(p), nil
}

// classify tests line against every rule in registration order, firing one
// event per match. Must be called with s.mu held.
func (s *Stream) classify(line string) {
	for _, rule := range s.rules {
		if !bytes.Contains([]byte(line), []byte(rule.Substring)) {
			continue
		}
		ev := Event{Name: rule.Name, Line: line}
		for _, l := range s.listeners {
			l(ev)
		}
	}
	if s.log != nil {
		s.log.Trace("log line", "line", line)
	}
}

// Close discards any buffered partial final line. It never fires an event
// for it, per spec.md §4.1.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
	return nil
}

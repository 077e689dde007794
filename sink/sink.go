// Package sink implements the Test State Sink: the first-wins terminal
// verdict the harness reports once per run. See spec.md §4.5.
package sink

import (
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Verdict is the terminal outcome of one test run.
type Verdict struct {
	Passed bool
	Reason string // empty when Passed
}

// Sink receives terminal verdicts. The first call to TestDidPass or
// TestDidFail wins; later calls are recorded as diagnostics only.
type Sink struct {
	mu      sync.Mutex
	cond    *sync.Cond
	verdict *Verdict
	log     hclog.Logger
}

// New builds an empty Sink.
func New(log hclog.Logger) *Sink {
	s := &Sink{log: log}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// TestDidPass records a passing verdict if none has been recorded yet.
func (s *Sink) TestDidPass() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verdict != nil {
		if s.log != nil {
			s.log.Debug("ignoring redundant pass verdict", "first_verdict", s.verdict)
		}
		return
	}
	s.verdict = &Verdict{Passed: true}
	if s.log != nil {
		s.log.Info("test passed")
	}
	s.cond.Broadcast()
}

// TestDidFail records a failing verdict with reason if none has been
// recorded yet.
func (s *Sink) TestDidFail(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verdict != nil {
		if s.log != nil {
			s.log.Debug("ignoring redundant fail verdict", "reason", reason, "first_verdict", s.verdict)
		}
		return
	}
	s.verdict = &Verdict{Passed: false, Reason: reason}
	if s.log != nil {
		s.log.Error("test failed", "reason", reason)
	}
	s.cond.Broadcast()
}

// Failed reports whether a failing verdict has been recorded. Used by the
// interlock's HarnessFailed short-circuit.
func (s *Sink) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verdict != nil && !s.verdict.Passed
}

// AwaitVerdict blocks until either TestDidPass or TestDidFail is called,
// then returns the (immutable, first-wins) verdict.
func (s *Sink) AwaitVerdict() Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.verdict == nil {
		s.cond.Wait()
	}
	return *s.verdict
}

// Verdict is a non-blocking snapshot: ok is false if no verdict has been
// recorded yet.
func (s *Sink) Verdict() (v Verdict, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verdict == nil {
		return Verdict{}, false
	}
	return *s.verdict, true
}

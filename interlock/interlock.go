// Package interlock implements the State Interlock: a single monitored
// registry of managed server processes that classifies each into a
// lifecycle state by correlating child-process events with externally
// declared expectations, and exposes blocking predicates over the
// aggregate state. See spec.md §4.3.
package interlock

import (
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/Terracotta-OSS/galvan/galvanerr"
)

// Sink is the narrow capability the interlock needs from the Test State
// Sink: deliver a first-wins failure, and observe whether one has already
// landed (the HarnessFailed short-circuit of spec.md §4.3). Defined here,
// not imported from package sink, so neither package depends on the other.
type Sink interface {
	TestDidFail(reason string)
	Failed() bool
}

// entry is the per-supervisor record the interlock owns exclusively.
type entry struct {
	state ServerState
	pid   int
}

// Interlock is the shared, condition-variable-driven registry described by
// spec.md §4.3. All mutating operations and all blocking predicates hold
// the single monitor (mu/cond).
type Interlock struct {
	mu   sync.Mutex
	cond *sync.Cond
	log  hclog.Logger
	sink Sink

	servers map[string]*entry
	sealed  bool
}

// New builds an Interlock reporting failures to sink.
func New(sink Sink, log hclog.Logger) *Interlock {
	il := &Interlock{
		log:     log,
		sink:    sink,
		servers: make(map[string]*entry),
	}
	il.cond = sync.NewCond(&il.mu)
	return il
}

// Register adds server to the registry in the Terminated state. Legal only
// before the interlock is sealed by the first Transition or blocking wait;
// snapshot reads and ReportFailure do not seal it.
func (il *Interlock) Register(server string) error {
	il.mu.Lock()
	defer il.mu.Unlock()

	if il.sealed {
		return galvanerr.NewConfigInvalid("cannot register %q: interlock already sealed", server)
	}
	if _, exists := il.servers[server]; exists {
		return galvanerr.NewConfigInvalid("server %q already registered", server)
	}
	il.servers[server] = &entry{state: Terminated}
	return nil
}

// seal marks the registry closed to further registration. Must be called
// with mu held.
func (il *Interlock) seal() {
	il.sealed = true
}

// Transition performs a validated state change for server, broadcasting to
// wake every blocking predicate. pid is the server's currently-known PID;
// it is ignored (forced to 0) when newState is ZappedRestarting, per the
// tightened ZAP-entry rule documented in DESIGN.md: a fresh PID line is
// required before the server may be reclassified into a role.
func (il *Interlock) Transition(server string, newState ServerState, pid int) error {
	il.mu.Lock()
	defer il.mu.Unlock()
	il.seal()

	e, ok := il.servers[server]
	if !ok {
		return galvanerr.NewConfigInvalid("unknown server %q", server)
	}

	switch newState {
	case ZappedRestarting:
		pid = 0
	case Active:
		if pid == 0 {
			return galvanerr.NewConfigInvalid("server %q cannot become Active without a known PID", server)
		}
		for name, other := range il.servers {
			if name != server && other.state == Active {
				return galvanerr.NewConfigInvalid("server %q cannot become Active: %q is already Active", server, name)
			}
		}
	case Passive:
		if pid == 0 {
			return galvanerr.NewConfigInvalid("server %q cannot become Passive without a known PID", server)
		}
	case Terminated:
		pid = 0
	}

	e.state = newState
	e.pid = pid
	if il.log != nil {
		il.log.Debug("state transition", "server", server, "state", newState.String(), "pid", pid)
	}
	il.cond.Broadcast()
	return nil
}

// ReportFailure delivers a first-wins failure to the sink and wakes every
// blocking predicate so shutdown code paths relying on HarnessFailed can
// proceed instead of hanging on a condition that will now never hold.
func (il *Interlock) ReportFailure(reason string) {
	il.sink.TestDidFail(reason)

	il.mu.Lock()
	defer il.mu.Unlock()
	il.cond.Broadcast()
}

// failedLocked reports whether the sink has recorded a failure. Must be
// called with mu held.
func (il *Interlock) failedLocked() bool {
	return il.sink.Failed()
}

// WaitForActive blocks until some server is Active, or returns
// galvanerr.ErrHarnessFailed if a failure is recorded first.
func (il *Interlock) WaitForActive() error {
	il.mu.Lock()
	defer il.mu.Unlock()
	il.seal()

	for {
		if il.failedLocked() {
			return galvanerr.ErrHarnessFailed
		}
		if il.hasActiveLocked() {
			return nil
		}
		il.cond.Wait()
	}
}

// WaitForAllReady blocks until no server is UnknownRunning or
// ZappedRestarting and at least one is Active (passives may be zero).
func (il *Interlock) WaitForAllReady() error {
	il.mu.Lock()
	defer il.mu.Unlock()
	il.seal()

	for {
		if il.failedLocked() {
			return galvanerr.ErrHarnessFailed
		}
		ready := il.hasActiveLocked()
		for _, e := range il.servers {
			if e.state.IsTransitioning() {
				ready = false
			}
		}
		if ready {
			return nil
		}
		il.cond.Wait()
	}
}

// WaitForServerRunning blocks until server has left Terminated.
func (il *Interlock) WaitForServerRunning(server string) error {
	il.mu.Lock()
	defer il.mu.Unlock()
	il.seal()

	for {
		if il.failedLocked() {
			return galvanerr.ErrHarnessFailed
		}
		e, ok := il.servers[server]
		if !ok {
			return galvanerr.NewConfigInvalid("unknown server %q", server)
		}
		if e.state.IsRunning() {
			return nil
		}
		il.cond.Wait()
	}
}

// WaitForServerTermination blocks until server is Terminated.
func (il *Interlock) WaitForServerTermination(server string) error {
	il.mu.Lock()
	defer il.mu.Unlock()
	il.seal()

	for {
		if il.failedLocked() {
			return galvanerr.ErrHarnessFailed
		}
		e, ok := il.servers[server]
		if !ok {
			return galvanerr.NewConfigInvalid("unknown server %q", server)
		}
		if e.state == Terminated {
			return nil
		}
		il.cond.Wait()
	}
}

func (il *Interlock) hasActiveLocked() bool {
	for _, e := range il.servers {
		if e.state == Active {
			return true
		}
	}
	return false
}

// GetActiveServer returns the name of the Active server, if any.
func (il *Interlock) GetActiveServer() (string, bool) {
	il.mu.Lock()
	defer il.mu.Unlock()
	for name, e := range il.servers {
		if e.state == Active {
			return name, true
		}
	}
	return "", false
}

// GetOnePassiveServer returns the name of some Passive server, if any.
func (il *Interlock) GetOnePassiveServer() (string, bool) {
	il.mu.Lock()
	defer il.mu.Unlock()
	for name, e := range il.servers {
		if e.state == Passive {
			return name, true
		}
	}
	return "", false
}

// GetOneTerminatedServer returns the name of some Terminated server, if
// any.
func (il *Interlock) GetOneTerminatedServer() (string, bool) {
	il.mu.Lock()
	defer il.mu.Unlock()
	for name, e := range il.servers {
		if e.state == Terminated {
			return name, true
		}
	}
	return "", false
}

// IsServerRunning is a snapshot read of whether server has left Terminated.
func (il *Interlock) IsServerRunning(server string) bool {
	il.mu.Lock()
	defer il.mu.Unlock()
	e, ok := il.servers[server]
	return ok && e.state.IsRunning()
}

// State is a snapshot read of server's current classification.
func (il *Interlock) State(server string) (ServerState, bool) {
	il.mu.Lock()
	defer il.mu.Unlock()
	e, ok := il.servers[server]
	if !ok {
		return Terminated, false
	}
	return e.state, true
}

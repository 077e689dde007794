// Package control implements the Multi-Process Control facade: the
// externally-visible operations test code calls to drive the cluster,
// fully serialized against concurrent test threads. See spec.md §4.4.
package control

import (
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/Terracotta-OSS/galvan/galvanerr"
	"github.com/Terracotta-OSS/galvan/interlock"
)

// Server is the narrow capability the control facade needs from a
// supervisor: Name for interlock lookups, Start/Stop for lifecycle.
type Server interface {
	Name() string
	Start() error
	Stop() error
}

// Controller is a thin, fully-serialized facade over the interlock and a
// fixed set of supervisors. Every operation acquires the controller's own
// lock first — the outermost lock in spec.md §5's hierarchy — to prevent
// two test threads from entering concurrently, then issues interlock
// queries and supervisor commands.
type Controller struct {
	mu       sync.Mutex
	il       *interlock.Interlock
	servers  map[string]Server
	log      hclog.Logger
}

// New builds a Controller over il, managing the given servers (keyed by
// their own Name()).
func New(il *interlock.Interlock, servers []Server, log hclog.Logger) *Controller {
	byName := make(map[string]Server, len(servers))
	for _, s := range servers {
		byName[s.Name()] = s
	}
	return &Controller{il: il, servers: byName, log: log.Named("control")}
}

// SynchronizeClient is a no-op marker for demonstration/tracing, per
// spec.md §4.4.
func (c *Controller) SynchronizeClient() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Trace("synchronize client")
}

// WaitForActive blocks until some server is Active.
func (c *Controller) WaitForActive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.il.WaitForActive()
}

// WaitForRunningPassivesInStandby blocks until no server is transitioning
// and at least one is Active.
func (c *Controller) WaitForRunningPassivesInStandby() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.il.WaitForAllReady()
}

// StartOneServer picks any Terminated server, starts it, and waits until
// it has left Terminated. Fails if no server is Terminated.
func (c *Controller) StartOneServer() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startOneLocked()
}

func (c *Controller) startOneLocked() error {
	name, ok := c.il.GetOneTerminatedServer()
	if !ok {
		return galvanerr.NewConfigInvalid("no terminated server available to start")
	}
	srv, ok := c.servers[name]
	if !ok {
		return galvanerr.NewConfigInvalid("unknown server %q", name)
	}
	if err := srv.Start(); err != nil {
		return err
	}
	return c.il.WaitForServerRunning(name)
}

// StartAllServers repeats StartOneServer until no Terminated server
// remains.
func (c *Controller) StartAllServers() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if _, ok := c.il.GetOneTerminatedServer(); !ok {
			return nil
		}
		if err := c.startOneLocked(); err != nil {
			return err
		}
	}
}

// TerminateActive gets the Active server (failing if none), stops it, and
// waits for its termination.
func (c *Controller) TerminateActive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminateByLookupLocked(c.il.GetActiveServer)
}

// TerminateOnePassive stops one Passive server and waits for its
// termination, if any passive exists; otherwise it does nothing.
func (c *Controller) TerminateOnePassive() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name, ok := c.il.GetOnePassiveServer()
	if !ok {
		return nil
	}
	return c.stopAndWaitLocked(name)
}

func (c *Controller) terminateByLookupLocked(lookup func() (string, bool)) error {
	name, ok := lookup()
	if !ok {
		return galvanerr.NewConfigInvalid("no active server to terminate")
	}
	return c.stopAndWaitLocked(name)
}

func (c *Controller) stopAndWaitLocked(name string) error {
	srv, ok := c.servers[name]
	if !ok {
		return galvanerr.NewConfigInvalid("unknown server %q", name)
	}
	if err := srv.Stop(); err != nil {
		return err
	}
	return c.il.WaitForServerTermination(name)
}

// TerminateAllServers waits for the cluster to be fully ready, stops every
// passive one at a time (waiting for termination between each), then stops
// the active. Order matters: stopping the active first can trigger
// fail-over of a passive, losing track of its role, per spec.md §4.4.
func (c *Controller) TerminateAllServers() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.il.WaitForAllReady(); err != nil {
		return err
	}

	for {
		name, ok := c.il.GetOnePassiveServer()
		if !ok {
			break
		}
		if err := c.stopAndWaitLocked(name); err != nil {
			return err
		}
	}

	if name, ok := c.il.GetActiveServer(); ok {
		if err := c.stopAndWaitLocked(name); err != nil {
			return err
		}
	}
	return nil
}

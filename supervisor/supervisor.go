// Package supervisor implements the Server Supervisor: child-process
// lifecycle, log-line event extraction, PID discovery, and
// expected-versus-unexpected termination classification. See spec.md §4.2.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-uuid"
	"golang.org/x/sync/semaphore"

	"github.com/Terracotta-OSS/galvan/cluster"
	"github.com/Terracotta-OSS/galvan/galvanerr"
	"github.com/Terracotta-OSS/galvan/interlock"
	"github.com/Terracotta-OSS/galvan/logstream"
)

// runningContext is the per-supervisor record owned exclusively by the
// supervisor: the child handle and its two open log sinks.
type runningContext struct {
	cmd        *exec.Cmd
	stdoutFile *os.File
	stderrFile *os.File
	stream     *logstream.Stream
}

// Supervisor spawns and owns exactly one child server process at a time:
// its PID, running flag, expected-crash flag, and log sinks. Start and
// stop are serialized by a single-permit gate; concurrent start/stop on
// one Supervisor is never permitted.
type Supervisor struct {
	identity    cluster.ServerIdentity
	coordinator Coordinator
	log         hclog.Logger

	// javaHome is resolved once, here, at construction and reused for
	// every subsequent Start; it is never re-read from the environment
	// mid-run, per spec.md §9.
	javaHome string

	// gate serializes Start/Stop. A fresh token is minted on every
	// Acquire and must match on Release, per spec.md §4.2.
	gate         *semaphore.Weighted
	gateMu       sync.Mutex
	currentToken string

	// mu/cond guard the supervisor's own intrinsic state: pid, terminated,
	// expectedCrash, wasZapped, role, and rc. This is the "supervisor
	// intrinsic monitor (pid/running)" of spec.md §5's lock hierarchy.
	mu            sync.Mutex
	cond          *sync.Cond
	pid           int
	terminated    bool
	expectedCrash bool
	wasZapped     bool
	role          interlock.ServerState
	rc            *runningContext
}

// New builds a Supervisor for identity, reporting transitions and failures
// through coordinator. JAVA_HOME is resolved once here and stashed; it is
// never re-consulted mid-run.
func New(identity cluster.ServerIdentity, coordinator Coordinator, log hclog.Logger) (*Supervisor, error) {
	home, err := javaHome()
	if err != nil {
		return nil, err
	}
	s := &Supervisor{
		identity:    identity,
		coordinator: coordinator,
		log:         log.Named("supervisor").With("server", identity.Name),
		javaHome:    home,
		gate:        semaphore.NewWeighted(1),
		terminated:  true,
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Name returns the identity name this supervisor manages.
func (s *Supervisor) Name() string {
	return s.identity.Name
}

func (s *Supervisor) acquireGate(ctx context.Context) (string, error) {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return "", err
	}
	token, err := uuid.GenerateUUID()
	if err != nil {
		s.gate.Release(1)
		return "", err
	}
	s.gateMu.Lock()
	s.currentToken = token
	s.gateMu.Unlock()
	return token, nil
}

func (s *Supervisor) releaseGate(token string) {
	s.gateMu.Lock()
	matches := token == s.currentToken
	s.currentToken = ""
	s.gateMu.Unlock()
	if !matches {
		// A mismatched release token means two start/stop calls raced past
		// the gate, which must never happen; this is a harness bug.
		panic("galvan: supervisor gate released with a stale token")
	}
	s.gate.Release(1)
}

// Start spawns the child process and returns immediately: readiness is
// observed asynchronously via log events, not by this call. Fails with
// galvanerr.ErrAlreadyRunning if the interlock does not currently classify
// this server as Terminated, or a wrapped galvanerr.ErrIoError if the
// working directory is missing or the child cannot be launched.
func (s *Supervisor) Start() error {
	token, err := s.acquireGate(context.Background())
	if err != nil {
		return galvanerr.IoError("acquiring start/stop gate", err)
	}
	defer s.releaseGate(token)

	if state, ok := s.coordinator.State(s.identity.Name); ok && state != interlock.Terminated {
		return galvanerr.ErrAlreadyRunning
	}

	if fi, err := os.Stat(s.identity.WorkingDir); err != nil || !fi.IsDir() {
		return galvanerr.IoError(fmt.Sprintf("working directory %q", s.identity.WorkingDir), err)
	}

	stdoutFile, err := openAppend(filepath.Join(s.identity.WorkingDir, "stdout.log"))
	if err != nil {
		return galvanerr.IoError("opening stdout.log", err)
	}
	stderrFile, err := openAppend(filepath.Join(s.identity.WorkingDir, "stderr.log"))
	if err != nil {
		stdoutFile.Close()
		return galvanerr.IoError("opening stderr.log", err)
	}

	argv, err := s.identity.Command()
	if err != nil {
		stdoutFile.Close()
		stderrFile.Close()
		return err
	}

	env := s.buildEnv()

	stream := logstream.NewStream(stdoutFile, logstream.DefaultRules(), s.log.Named("logstream"))
	stream.Listen(s.handleEvent)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = s.identity.WorkingDir
	cmd.Env = env
	cmd.Stdout = stream
	cmd.Stderr = stderrFile

	if err := cmd.Start(); err != nil {
		stdoutFile.Close()
		stderrFile.Close()
		return galvanerr.IoError("starting server process", err)
	}

	s.mu.Lock()
	s.pid = 0
	s.terminated = false
	s.expectedCrash = false
	s.wasZapped = false
	s.role = interlock.UnknownRunning
	s.rc = &runningContext{cmd: cmd, stdoutFile: stdoutFile, stderrFile: stderrFile, stream: stream}
	s.mu.Unlock()

	if err := s.coordinator.Transition(s.identity.Name, interlock.UnknownRunning, 0); err != nil {
		s.log.Error("rejected transition to UnknownRunning", "error", err)
	}

	go s.watchExit()

	return nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// waitForPid blocks until this server's PID is observed, or returns 0 if
// the server has already terminated (a legitimate race stop() must
// tolerate, per spec.md §4.2).
func (s *Supervisor) waitForPid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pid == 0 && !s.terminated {
		s.cond.Wait()
	}
	return s.pid
}

// Stop requests an orderly shutdown and blocks until the kill command
// itself exits (not until the child has actually terminated — that is
// observed asynchronously by the exit watcher). Fails with
// galvanerr.ErrNotRunning if the interlock already classifies this server
// as Terminated.
func (s *Supervisor) Stop() error {
	token, err := s.acquireGate(context.Background())
	if err != nil {
		return galvanerr.IoError("acquiring start/stop gate", err)
	}
	defer s.releaseGate(token)

	if state, ok := s.coordinator.State(s.identity.Name); ok && state == interlock.Terminated {
		return galvanerr.ErrNotRunning
	}

	pid := s.waitForPid()
	if pid == 0 {
		// The server terminated before a PID was ever observed; stop is a
		// no-op in this race, per spec.md §4.2.
		return nil
	}

	s.mu.Lock()
	s.expectedCrash = true
	s.mu.Unlock()

	if err := killProcess(pid, s.log); err != nil {
		return galvanerr.IoError(fmt.Sprintf("killing pid %d", pid), err)
	}

	return nil
}

// handleEvent classifies one log event, updating local state and
// forwarding a validated transition to the coordinator. Invoked
// synchronously on the stream's Write goroutine; must return quickly.
func (s *Supervisor) handleEvent(ev logstream.Event) {
	switch ev.Name {
	case logstream.EventPID:
		pid, ok := logstream.ParsePID(ev.Line)
		if !ok {
			s.log.Warn("PID line did not match expected pattern", "line", ev.Line)
			return
		}
		s.mu.Lock()
		s.pid = pid
		role := s.role
		s.cond.Broadcast()
		s.mu.Unlock()
		if err := s.coordinator.Transition(s.identity.Name, role, pid); err != nil {
			s.log.Error("rejected PID transition", "error", err)
		}

	case logstream.EventActive:
		s.mu.Lock()
		pid := s.pid
		s.mu.Unlock()
		if pid == 0 {
			s.log.Debug("ignoring ACTIVE line received before PID known", "line", ev.Line)
			return
		}
		s.mu.Lock()
		s.role = interlock.Active
		s.mu.Unlock()
		if err := s.coordinator.Transition(s.identity.Name, interlock.Active, pid); err != nil {
			s.coordinator.ReportFailure(err.Error())
		}

	case logstream.EventPassive:
		s.mu.Lock()
		pid := s.pid
		s.mu.Unlock()
		if pid == 0 {
			s.log.Debug("ignoring PASSIVE line received before PID known", "line", ev.Line)
			return
		}
		s.mu.Lock()
		s.role = interlock.Passive
		s.mu.Unlock()
		if err := s.coordinator.Transition(s.identity.Name, interlock.Passive, pid); err != nil {
			s.coordinator.ReportFailure(err.Error())
		}

	case logstream.EventZap:
		s.mu.Lock()
		s.pid = 0
		s.wasZapped = true
		s.role = interlock.ZappedRestarting
		s.cond.Broadcast()
		s.mu.Unlock()
		if err := s.coordinator.Transition(s.identity.Name, interlock.ZappedRestarting, 0); err != nil {
			s.log.Error("rejected ZAP transition", "error", err)
		}

	case logstream.EventWarn:
		s.log.Warn("server log", "line", ev.Line)

	case logstream.EventError:
		s.log.Error("server log", "line", ev.Line)
	}
}

// watchExit awaits the child's exit, classifies it as expected or
// unexpected, flushes and closes the log sinks exactly once, notifies the
// coordinator of the Terminated transition, and — on an unexpected exit —
// delivers the first-wins failure. See spec.md §4.2's numbered steps.
func (s *Supervisor) watchExit() {
	s.mu.Lock()
	rc := s.rc
	s.mu.Unlock()

	waitErr := rc.cmd.Wait()

	s.mu.Lock()
	pid := s.pid
	expected := s.expectedCrash
	wasZapped := s.wasZapped
	s.mu.Unlock()

	var failure error
	if !expected {
		if pid == 0 {
			reason := "Server crashed before reporting PID"
			if wasZapped {
				reason += " after a self-restart"
			}
			failure = &galvanerr.UnexpectedCrashError{Server: s.identity.Name, Reason: reason}
		} else {
			status := exitStatus(rc.cmd, waitErr)
			failure = &galvanerr.UnexpectedCrashError{
				Server:     s.identity.Name,
				Reason:     fmt.Sprintf("unexpected crash, exit=%d", status),
				Pid:        pid,
				ExitStatus: &status,
			}
		}
	}

	_ = rc.stream.Close()
	_ = rc.stdoutFile.Close()
	_ = rc.stderrFile.Close()

	s.mu.Lock()
	s.terminated = true
	s.role = interlock.Terminated
	s.rc = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	if err := s.coordinator.Transition(s.identity.Name, interlock.Terminated, 0); err != nil {
		s.log.Error("rejected Terminated transition", "error", err)
	}

	if failure != nil {
		s.coordinator.ReportFailure(failure.Error())
	}
}

func exitStatus(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

package supervisor

import (
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/Terracotta-OSS/galvan/cluster"
	"github.com/Terracotta-OSS/galvan/galvanerr"
	"github.com/Terracotta-OSS/galvan/interlock"
)

type transitionRecord struct {
	server string
	state  interlock.ServerState
	pid    int
}

// fakeCoordinator is a minimal Coordinator recording every transition and
// forwarding failures/terminations onto buffered channels so tests can
// await them without polling the supervisor's private state.
type fakeCoordinator struct {
	mu           sync.Mutex
	state        interlock.ServerState
	transitions  []transitionRecord
	terminatedCh chan struct{}
	failureCh    chan string
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{
		state:        interlock.Terminated,
		terminatedCh: make(chan struct{}, 1),
		failureCh:    make(chan string, 1),
	}
}

func (f *fakeCoordinator) Transition(server string, newState interlock.ServerState, pid int) error {
	f.mu.Lock()
	f.state = newState
	f.transitions = append(f.transitions, transitionRecord{server, newState, pid})
	f.mu.Unlock()
	if newState == interlock.Terminated {
		select {
		case f.terminatedCh <- struct{}{}:
		default:
		}
	}
	return nil
}

func (f *fakeCoordinator) ReportFailure(reason string) {
	select {
	case f.failureCh <- reason:
	default:
	}
}

func (f *fakeCoordinator) State(server string) (interlock.ServerState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, true
}

func (f *fakeCoordinator) hasTransitionTo(state interlock.ServerState) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tr := range f.transitions {
		if tr.state == state {
			return true
		}
	}
	return false
}

func newShellIdentity(name, dir, script string) cluster.ServerIdentity {
	return cluster.ServerIdentity{
		Name:       name,
		WorkingDir: dir,
		HeapMB:     128,
		Command: func() ([]string, error) {
			return []string{"/bin/sh", "-c", script}, nil
		},
	}
}

// TestSupervisorStartStopHappyPath covers the single-server happy path: PID
// discovery, ACTIVE role classification, and a clean, expected stop that
// reports no failure.
func TestSupervisorStartStopHappyPath(t *testing.T) {
	t.Setenv("JAVA_HOME", "/fake/java/home")
	dir := t.TempDir()
	coord := newFakeCoordinator()
	identity := newShellIdentity("server1", dir,
		`echo "TerracottaServer PID is $$"; echo "has started up as ACTIVE node"; sleep 30`)

	sup, err := New(identity, coord, hclog.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, sup.Start())

	require.Eventually(t, func() bool {
		return coord.hasTransitionTo(interlock.Active)
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sup.Stop())

	select {
	case <-coord.terminatedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a Terminated transition after Stop")
	}

	select {
	case reason := <-coord.failureCh:
		t.Fatalf("unexpected failure reported for an expected stop: %s", reason)
	case <-time.After(200 * time.Millisecond):
	}
}

// TestSupervisorUnexpectedCrashAfterPID covers S2: a server that reports its
// PID, then exits with a non-zero status nobody requested.
func TestSupervisorUnexpectedCrashAfterPID(t *testing.T) {
	t.Setenv("JAVA_HOME", "/fake/java/home")
	dir := t.TempDir()
	coord := newFakeCoordinator()
	identity := newShellIdentity("server2", dir, `echo "TerracottaServer PID is 123"; exit 137`)

	sup, err := New(identity, coord, hclog.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, sup.Start())

	var reason string
	select {
	case reason = <-coord.failureCh:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a failure report for the unexpected crash")
	}

	require.Contains(t, reason, "Unexpected server crash")
	require.Contains(t, reason, "PID 123")
	require.Contains(t, reason, "status: 137")
}

// TestSupervisorCrashBeforePID covers S3: the child exits before ever
// printing a PID line.
func TestSupervisorCrashBeforePID(t *testing.T) {
	t.Setenv("JAVA_HOME", "/fake/java/home")
	dir := t.TempDir()
	coord := newFakeCoordinator()
	identity := newShellIdentity("server3", dir, `echo "boom" 1>&2; exit 1`)

	sup, err := New(identity, coord, hclog.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, sup.Start())

	var reason string
	select {
	case reason = <-coord.failureCh:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a failure report")
	}

	require.Contains(t, reason, "Server crashed before reporting PID")
	require.NotContains(t, reason, "self-restart")
}

// TestSupervisorZapThenUnexpectedCrash covers S5: a self-initiated restart
// announcement (clearing the known PID) followed by a crash before the new
// PID is ever reported.
func TestSupervisorZapThenUnexpectedCrash(t *testing.T) {
	t.Setenv("JAVA_HOME", "/fake/java/home")
	dir := t.TempDir()
	coord := newFakeCoordinator()
	identity := newShellIdentity("server5", dir,
		`echo "TerracottaServer PID is 55"; echo "Restarting the server"; exit 9`)

	sup, err := New(identity, coord, hclog.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, sup.Start())

	var reason string
	select {
	case reason = <-coord.failureCh:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a failure report")
	}

	require.Contains(t, reason, "Server crashed before reporting PID")
	require.Contains(t, reason, "self-restart")
}

func TestStartFailsIfAlreadyRunning(t *testing.T) {
	t.Setenv("JAVA_HOME", "/fake/java/home")
	dir := t.TempDir()
	coord := newFakeCoordinator()
	coord.state = interlock.UnknownRunning
	identity := newShellIdentity("server1", dir, `sleep 1`)

	sup, err := New(identity, coord, hclog.NewNullLogger())
	require.NoError(t, err)
	err = sup.Start()
	require.ErrorIs(t, err, galvanerr.ErrAlreadyRunning)
}

func TestStopFailsIfNotRunning(t *testing.T) {
	t.Setenv("JAVA_HOME", "/fake/java/home")
	coord := newFakeCoordinator()
	identity := cluster.ServerIdentity{Name: "server1", WorkingDir: t.TempDir()}

	sup, err := New(identity, coord, hclog.NewNullLogger())
	require.NoError(t, err)
	err = sup.Stop()
	require.ErrorIs(t, err, galvanerr.ErrNotRunning)
}

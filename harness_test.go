package galvan_test

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/Terracotta-OSS/galvan"
	"github.com/Terracotta-OSS/galvan/cluster"
)

// ExampleNewHarness walks through the single-server happy path (S1): start
// the one registered server, wait for it to become Active, then terminate
// the whole cluster and read the final verdict.
func ExampleNewHarness() {
	os.Setenv("JAVA_HOME", "/fake/java/home")
	dir, err := os.MkdirTemp("", "galvan-example")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	identity := cluster.ServerIdentity{
		Name:       "server1",
		WorkingDir: dir,
		HeapMB:     128,
		Command: func() ([]string, error) {
			return []string{"/bin/sh", "-c",
				`echo "TerracottaServer PID is $$"; echo "has started up as ACTIVE node"; sleep 30`}, nil
		},
	}

	h, err := galvan.NewHarness([]cluster.ServerIdentity{identity}, hclog.NewNullLogger())
	if err != nil {
		panic(err)
	}

	if err := h.StartAllServers(); err != nil {
		panic(err)
	}
	if err := h.WaitForActive(); err != nil {
		panic(err)
	}

	h.Sink.TestDidPass()

	if err := h.TerminateAllServers(); err != nil {
		panic(err)
	}

	v, _ := h.Sink.Verdict()
	fmt.Println("passed:", v.Passed)
	// Output: passed: true
}

func TestHarnessReportsUnexpectedCrashThroughSink(t *testing.T) {
	t.Setenv("JAVA_HOME", "/fake/java/home")
	dir := t.TempDir()

	identity := cluster.ServerIdentity{
		Name:       "server1",
		WorkingDir: dir,
		HeapMB:     128,
		Command: func() ([]string, error) {
			return []string{"/bin/sh", "-c", `echo "TerracottaServer PID is 321"; exit 137`}, nil
		},
	}

	h, err := galvan.NewHarness([]cluster.ServerIdentity{identity}, hclog.NewNullLogger())
	require.NoError(t, err)

	require.NoError(t, h.StartAllServers())

	v := h.Sink.AwaitVerdict()
	require.False(t, v.Passed)
	require.Contains(t, v.Reason, "Unexpected server crash")
	require.Contains(t, v.Reason, "status: 137")

	// WaitForActive must short-circuit instead of hanging once the harness
	// has failed.
	done := make(chan error, 1)
	go func() { done <- h.WaitForActive() }()
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForActive did not short-circuit on harness failure")
	}
}

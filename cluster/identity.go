// Package cluster carries the set of server identities and endpoint
// metadata handed to both supervisors (for naming/logging) and test
// clients (for connection). Building command lines, installing binaries,
// and preparing working directories are external collaborators' jobs; this
// package only describes shape.
package cluster

// CommandSupplier is called at each server start to allow the caller to
// re-resolve paths (classpaths, jar locations, etc. may move between test
// runs). It is intentionally opaque to Galvan: building the argv is out of
// scope, per spec.
type CommandSupplier func() ([]string, error)

// ServerIdentity is immutable once constructed: a name (unique within the
// cluster), a working directory, a heap size in megabytes, an optional
// debug port (0 disables remote debugging), a set of JVM system properties,
// and the command supplier used at each start.
type ServerIdentity struct {
	Name             string
	WorkingDir       string
	HeapMB           int
	DebugPort        int
	SystemProperties map[string]string
	Command          CommandSupplier
}

// Endpoint is the connection metadata a test client needs to reach one
// server, independent of whatever role it currently holds.
type Endpoint struct {
	Host string
	Port int
}

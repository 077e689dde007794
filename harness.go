// Package galvan wires together the Server Supervisor, State Interlock,
// Test State Sink, and Multi-Process Control facade into one harness per
// test run. This is the library's entrypoint: test code builds a Harness
// from a set of cluster.ServerIdentity values and drives the cluster through
// its embedded *control.Controller.
package galvan

import (
	"github.com/hashicorp/go-hclog"

	"github.com/Terracotta-OSS/galvan/cluster"
	"github.com/Terracotta-OSS/galvan/control"
	"github.com/Terracotta-OSS/galvan/interlock"
	"github.com/Terracotta-OSS/galvan/sink"
	"github.com/Terracotta-OSS/galvan/supervisor"
)

// Harness owns every per-run component: the sink recording the terminal
// verdict, the interlock classifying server state, and a Controller wired
// over one Supervisor per identity.
type Harness struct {
	*control.Controller

	Sink     *sink.Sink
	Interlock *interlock.Interlock
}

// NewHarness registers one supervisor per identity and wires the sink,
// interlock, and control facade described by spec.md §4. Registration order
// follows identities; duplicate names are rejected by the interlock.
func NewHarness(identities []cluster.ServerIdentity, log hclog.Logger) (*Harness, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}

	sk := sink.New(log.Named("sink"))
	il := interlock.New(sk, log.Named("interlock"))

	servers := make([]control.Server, 0, len(identities))
	for _, identity := range identities {
		if err := il.Register(identity.Name); err != nil {
			return nil, err
		}
		sup, err := supervisor.New(identity, il, log)
		if err != nil {
			return nil, err
		}
		servers = append(servers, sup)
	}

	ctrl := control.New(il, servers, log.Named("control"))
	return &Harness{Controller: ctrl, Sink: sk, Interlock: il}, nil
}

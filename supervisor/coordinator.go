package supervisor

import "github.com/Terracotta-OSS/galvan/interlock"

// Coordinator is the narrow, interface-typed capability a Supervisor holds
// into the shared State Interlock: report a transition, report a failure,
// and read back the current classification for precondition checks. It
// exists so the supervisor never imports interlock's concrete type and
// holds no back-pointer to the control facade, per spec.md §9's
// "re-architecture: supervisors hold an interface-typed notifier injected
// at construction. No back-pointer to the controller."
type Coordinator interface {
	Transition(server string, newState interlock.ServerState, pid int) error
	ReportFailure(reason string)
	State(server string) (interlock.ServerState, bool)
}

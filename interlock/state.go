package interlock

// ServerState is the per-supervisor lifecycle classification the interlock
// owns exclusively, per spec.md §3.
type ServerState int

const (
	// Terminated is the initial state at registration: not running, may
	// be (re)started.
	Terminated ServerState = iota
	// UnknownRunning means the child was spawned but no PID has been
	// observed yet, and no role has been assumed.
	UnknownRunning
	// Active means this server observed the ACTIVE announcement while its
	// PID was known. At most one server is Active at any time.
	Active
	// Passive means this server observed the PASSIVE-STANDBY announcement
	// while its PID was known.
	Passive
	// ZappedRestarting is semantically equivalent to UnknownRunning but
	// flagged for diagnostics: the server observed a self-restart.
	ZappedRestarting
)

func (s ServerState) String() string {
	switch s {
	case Terminated:
		return "Terminated"
	case UnknownRunning:
		return "UnknownRunning"
	case Active:
		return "Active"
	case Passive:
		return "Passive"
	case ZappedRestarting:
		return "ZappedRestarting"
	default:
		return "Unknown"
	}
}

// IsRunning reports whether s is any state other than Terminated.
func (s ServerState) IsRunning() bool {
	return s != Terminated
}

// IsTransitioning reports whether s is a state in which the server has not
// yet settled into a role (used by WaitForAllReady).
func (s ServerState) IsTransitioning() bool {
	return s == UnknownRunning || s == ZappedRestarting
}

package logstream

import (
	"regexp"
	"strconv"
)

// DefaultRules returns the substring->event table spec.md §4.1 fixes
// semantically, in the registration order listed there: PID before role
// announcements, so a line that (implausibly) matched both would still
// report PID first.
func DefaultRules() []Rule {
	return []Rule{
		{Substring: "PID is", Name: EventPID},
		{Substring: "has started up as ACTIVE node", Name: EventActive},
		{Substring: "Moved to State[ PASSIVE-STANDBY ]", Name: EventPassive},
		{Substring: "Restarting the server", Name: EventZap},
		{Substring: "WARN", Name: EventWarn},
		{Substring: "ERROR", Name: EventError},
	}
}

var pidPattern = regexp.MustCompile(`PID is ([0-9]+)`)

// ParsePID extracts the decimal PID from a line that fired EventPID. A
// false second return means the line matched the substring but not the
// stricter pattern; spec.md §4.1 requires such lines be logged as
// diagnostic and otherwise ignored.
func ParsePID(line string) (int, bool) {
	m := pidPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pid, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return pid, true
}

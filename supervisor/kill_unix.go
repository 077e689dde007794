//go:build !windows

package supervisor

import (
	"os/exec"
	"strconv"
)

// buildKillCmd issues "kill <pid>" on POSIX systems, per spec.md §6.
func buildKillCmd(pid int) *exec.Cmd {
	return exec.Command("kill", strconv.Itoa(pid))
}

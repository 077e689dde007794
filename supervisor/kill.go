package supervisor

import (
	"io"
	"time"

	"github.com/hashicorp/go-hclog"
)

// killProcess issues the platform terminate command for pid and waits for
// it to exit, logging progress every 5 seconds (spec.md §4.2, §5: "the
// kill-poll uses a 5-second timeout purely as a progress log; it does not
// abandon the wait"). The kill command's own stdout/stderr are drained to
// EOF to avoid leaving zombie pipes (spec.md §5).
func killProcess(pid int, log hclog.Logger) error {
	cmd := buildKillCmd(pid)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	drained := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, stdout)
		_, _ = io.Copy(io.Discard, stderr)
		close(drained)
	}()

	done := make(chan error, 1)
	go func() {
		// Wait closes the pipes, so it only runs once both are drained.
		<-drained
		done <- cmd.Wait()
	}()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			<-drained
			return err
		case <-ticker.C:
			if log != nil {
				log.Info("still waiting for kill command to exit", "pid", pid)
			}
		}
	}
}

// Package procgroup manages spawned child processes as process groups so
// that an extractor/transcoder chain can be torn down as a unit.
package procgroup

import (
	"errors"
	"os/exec"
	"time"
)

var ErrKillFailed = errors.New("kill operation failed")

// Set configures the command to start in a new process group.
// Mandatory for KillGroup to function as a group reaper.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// KillGroup terminates an entire process group tree: SIGTERM, wait for the
// grace period, then SIGKILL. The process must have been spawned with Set.
func KillGroup(pid int, grace, timeout time.Duration) error {
	return killGroup(pid, grace, timeout)
}

//go:build unix

/*
PURPOSE:
  Process-group handling for the driver on unix: the solver runs in its own
  group and a timeout sends SIGKILL to the whole group.

RELATED FILES:
  - internal/engine/driver.go
  - internal/engine/proc_other.go
*/

package engine

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own group so a timeout kills
// everything it spawned, not only the leader.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

//go:build !unix

/*
PURPOSE:
  Fallback for platforms without process groups; only the solver process
  itself is killed on timeout.

RELATED FILES:
  - internal/engine/proc_unix.go
*/

package engine

import "os/exec"

// setProcessGroup keeps exec's default Cancel (Process.Kill) where process groups are unavailable.
func setProcessGroup(cmd *exec.Cmd) {}

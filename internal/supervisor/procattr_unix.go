//go:build unix

package supervisor

import (
	"os/exec"
	"syscall"
)

// configureProcAttr puts the worker in its own process group so terminal signals
// aimed at the orchestrator do not reach workers before an orderly shutdown.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

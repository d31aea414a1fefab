//go:build !unix

package supervisor

import "os/exec"

func configureProcAttr(cmd *exec.Cmd) {}

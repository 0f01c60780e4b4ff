//go:build windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

func killTree(p *os.Process) error {
	return p.Kill()
}

func exitErrorFrom(err *exec.ExitError) *ExitError {
	return &ExitError{Code: err.ExitCode()}
}

//go:build windows

package transport

import (
	"os"
	"os/exec"
)

func setupProcessHandling(cmd *exec.Cmd) processCleanup {
	cmd.Cancel = func() error {
		return killProcess(cmd.Process)
	}
	return func() {
		_ = killProcess(cmd.Process)
	}
}

func killProcess(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	if err := proc.Kill(); err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}

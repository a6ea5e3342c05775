//go:build windows

package cli

import (
	"errors"
	"os"
	"os/exec"
)

// setSysProcAttr is a no-op on Windows; run under a service wrapper for
// production deployments.
func setSysProcAttr(cmd *exec.Cmd) {}

// isProcessRunning reports whether pid is alive. Windows only supports
// Kill and Interrupt, so an Interrupt that fails with ErrProcessDone means
// the process is gone.
func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return !errors.Is(proc.Signal(os.Interrupt), os.ErrProcessDone)
}

// stopProcess kills the process; there is no graceful SIGTERM on Windows.
func stopProcess(pid int) error {
	return killProcess(pid)
}

func killProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

//go:build !windows

package cli

import (
	"os"
	"os/exec"
	"syscall"
)

// setSysProcAttr starts the child in its own session so it outlives the
// terminal that launched it.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func isProcessRunning(pid int) bool {
	return signalProcess(pid, syscall.Signal(0)) == nil
}

// stopProcess asks the server to drain and exit.
func stopProcess(pid int) error {
	return signalProcess(pid, syscall.SIGTERM)
}

func killProcess(pid int) error {
	return signalProcess(pid, syscall.SIGKILL)
}

func signalProcess(pid int, sig os.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}

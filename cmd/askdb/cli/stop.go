package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	var (
		wait  time.Duration
		force bool
	)

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background askdb server",
		Long: `Stop an askdb server that was started with 'askdb serve --background'.

The server drains in-flight asks before exiting, so the default wait follows
server.shutdown_timeout. With --force the process is killed once the wait is
over.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("wait") {
				wait = 0
			}
			return runStop(wait, force)
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 35*time.Second, "How long to wait for a graceful exit (default: server.shutdown_timeout + 5s)")
	cmd.Flags().BoolVar(&force, "force", false, "Kill the server if it has not exited after --wait")

	return cmd
}

func runStop(wait time.Duration, force bool) error {
	pid, err := readPID()
	if err != nil {
		return fmt.Errorf("no running server found (missing PID file at %s)", pidFilePath())
	}

	if !isProcessRunning(pid) {
		removePID()
		return fmt.Errorf("server (PID %d) is not running (stale PID file removed)", pid)
	}

	if wait <= 0 {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		wait = stopWait(cfg.Server.ShutdownTimeout)
	}

	fmt.Printf("Stopping askdb server (PID %d)...\n", pid)
	if err := stopProcess(pid); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	if waitForExit(pid, wait) {
		removePID()
		fmt.Println("Server stopped.")
		return nil
	}

	if !force {
		return fmt.Errorf("server (PID %d) did not stop within %s; rerun with --force to kill it", pid, wait)
	}
	if err := killProcess(pid); err != nil {
		return fmt.Errorf("failed to kill server: %w", err)
	}
	if !waitForExit(pid, 5*time.Second) {
		return fmt.Errorf("server (PID %d) survived a kill", pid)
	}
	removePID()
	fmt.Println("Server killed.")
	return nil
}

// stopWait leaves the server its configured drain time plus a margin.
func stopWait(shutdownTimeout string) time.Duration {
	d, err := time.ParseDuration(shutdownTimeout)
	if err != nil || d <= 0 {
		d = 30 * time.Second
	}
	return d + 5*time.Second
}

// waitForExit polls until pid is gone or the wait runs out.
func waitForExit(pid int, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if !isProcessRunning(pid) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return !isProcessRunning(pid)
}

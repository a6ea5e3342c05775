package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check if a background askdb server is running",
		Long:  "Check the status of a server started with 'askdb serve --background', including process state and database readiness.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

// readiness is the body of /readyz.
type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func runStatus() error {
	pid, err := readPID()
	if err != nil {
		fmt.Println("Server is not running (no PID file found).")
		return nil
	}

	if !isProcessRunning(pid) {
		removePID()
		fmt.Println("Server is not running (stale PID file removed).")
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	readyAddr := "http://" + localAddr(cfg.Server.Host, cfg.Server.Port) + "/readyz"

	client := &http.Client{Timeout: 6 * time.Second}
	resp, err := client.Get(readyAddr)
	if err != nil {
		fmt.Printf("Server process is running (PID %d) but not responding to HTTP.\n", pid)
		fmt.Printf("  Logs: %s\n", logFilePath())
		return nil
	}
	defer resp.Body.Close()

	var ready readiness
	if err := json.NewDecoder(resp.Body).Decode(&ready); err != nil {
		ready.Status = fmt.Sprintf("unknown (HTTP %d)", resp.StatusCode)
	}

	fmt.Printf("Server is running (PID %d)\n", pid)
	fmt.Printf("  Status:  %s\n", ready.Status)
	fmt.Printf("  Logs:    %s\n", logFilePath())

	if len(ready.Checks) > 0 {
		names := make([]string, 0, len(ready.Checks))
		for name := range ready.Checks {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Println("  Databases:")
		for _, name := range names {
			fmt.Printf("    %-20s %s\n", name, ready.Checks[name])
		}
	}
	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ProPhone server status",
	Long:  `Show the running state of the ProPhone server and its active provider.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Int("port", 0, "Server port to check (default: read from PID file or 8085)")
}

// healthReport mirrors the server's /health response.
type healthReport struct {
	Status       string `json:"status"`
	Provider     string `json:"provider"`
	SessionState string `json:"session"`
	UptimeS      int64  `json:"uptime_s"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	portFlag, _ := cmd.Flags().GetInt("port")

	pid, port, err := readServerPID()
	if err != nil {
		if os.IsNotExist(err) {
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]any{"status": "stopped"})
				return nil
			}
			fmt.Println("ProPhone server is not running.")
			return nil
		}
		return fmt.Errorf("reading PID file: %w", err)
	}

	// Check if process is alive.
	proc, err := os.FindProcess(pid)
	if err != nil || proc.Signal(syscall.Signal(0)) != nil {
		cleanupServerFiles()
		if jsonOut {
			json.NewEncoder(os.Stdout).Encode(map[string]any{"status": "stopped"})
			return nil
		}
		fmt.Println("ProPhone server is not running (stale PID file cleaned up).")
		return nil
	}

	// Use port flag if provided, otherwise use PID file port, fallback to 8085.
	if portFlag != 0 {
		port = portFlag
	}
	if port == 0 {
		port = 8085
	}

	// Probe the health endpoint for provider and session state.
	var health healthReport
	healthy := false
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(healthURL)
	if err == nil {
		healthy = resp.StatusCode == http.StatusOK
		if healthy {
			_ = json.NewDecoder(resp.Body).Decode(&health)
		}
		resp.Body.Close()
	}

	if jsonOut {
		json.NewEncoder(os.Stdout).Encode(map[string]any{
			"status":        "running",
			"pid":           pid,
			"port":          port,
			"healthy":       healthy,
			"provider":      health.Provider,
			"session_state": health.SessionState,
			"uptime_s":      health.UptimeS,
		})
		return nil
	}

	fmt.Printf("ProPhone server is running.\n")
	fmt.Printf("  PID:       %d\n", pid)
	fmt.Printf("  Port:      %d\n", port)
	if healthy {
		fmt.Printf("  Health:    ok\n")
		fmt.Printf("  Provider:  %s (%s)\n", health.Provider, health.SessionState)
		fmt.Printf("  Uptime:    %s\n", (time.Duration(health.UptimeS) * time.Second).String())
	} else {
		fmt.Printf("  Health:    unreachable\n")
	}
	return nil
}

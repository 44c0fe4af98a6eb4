package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tgforge/tgforge/internal/cli/output"
	"github.com/tgforge/tgforge/pkg/api"
)

var (
	statusPidFile string
	statusAPIPort int
	statusJSON    bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bot status",
	Long: `Display the current status of a running bot.

This command checks the process via the PID file and, when the admin API
is enabled, queries it for phase, uptime, and user statistics.

Examples:
  # Check status (uses default settings)
  tgforge status

  # Check status with custom API port
  tgforge status --api-port 9080

  # Output as JSON
  tgforge status --json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/tgforge/tgforge.pid)")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 8080, "Admin API port")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
}

// botStatus aggregates process and API-reported state.
type botStatus struct {
	Running bool        `json:"running"`
	PID     int         `json:"pid,omitempty"`
	Message string      `json:"message"`
	API     *api.Status `json:"api,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	status := botStatus{Message: "Bot is not running"}

	// Use default PID file if not specified
	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check PID file first
	if pidData, err := os.ReadFile(pidPath); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(pidData))); err == nil {
			// On Unix, FindProcess always succeeds; signal 0 probes liveness
			if process, err := os.FindProcess(pid); err == nil {
				if process.Signal(syscall.Signal(0)) == nil {
					status.Running = true
					status.PID = pid
					status.Message = "Bot is running"
				}
			}
		}
	}

	// Query the admin API (works for both daemon and foreground mode)
	statusURL := fmt.Sprintf("http://localhost:%d/api/v1/status", statusAPIPort)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(statusURL)
	if err == nil {
		defer func() { _ = resp.Body.Close() }()

		var apiStatus api.Status
		if err := json.NewDecoder(resp.Body).Decode(&apiStatus); err == nil {
			status.Running = true
			status.API = &apiStatus
			status.Message = fmt.Sprintf("Bot is running (%s)", apiStatus.Phase)
		}
	} else if status.Running {
		status.Message = "Bot process exists but the admin API is unreachable (disabled?)"
	}

	if statusJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(status)
	}

	printStatus(status)
	return nil
}

func printStatus(status botStatus) {
	fmt.Println()

	pairs := [][2]string{}
	if status.Running {
		pairs = append(pairs, [2]string{"Status", "Running"})
	} else {
		pairs = append(pairs, [2]string{"Status", "Stopped"})
	}
	if status.PID != 0 {
		pairs = append(pairs, [2]string{"PID", strconv.Itoa(status.PID)})
	}
	if s := status.API; s != nil {
		pairs = append(pairs, [2]string{"Bot", s.Bot})
		if s.Username != "" {
			pairs = append(pairs, [2]string{"Username", "@" + s.Username})
		}
		pairs = append(pairs, [2]string{"Phase", s.Phase})
		pairs = append(pairs, [2]string{"Uptime", s.Uptime})
		if s.Users != nil {
			pairs = append(pairs, [2]string{"Users", strconv.FormatInt(s.Users.TotalUsers, 10)})
		}
		pairs = append(pairs, [2]string{"AI", strconv.FormatBool(s.AIEnabled)})
	}

	_ = output.KeyValueTable(os.Stdout, pairs)

	fmt.Println()
	fmt.Printf("  %s\n", status.Message)
	fmt.Println()
}

package cli

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// cliHTTPClient is the shared HTTP client for all CLI commands.
// It has a 30-second timeout to prevent hanging on unresponsive servers.
var cliHTTPClient = &http.Client{Timeout: 30 * time.Second}

var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// SetVersion is called from main to inject build-time version info.
func SetVersion(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
}

var rootCmd = &cobra.Command{
	Use:   "prophone",
	Short: "ProPhone — telephony provider gateway for CRMs",
	Long: `ProPhone fronts SMS and voice vendors (Twilio, Telnyx, Bandwidth)
behind one REST API: send messages, place calls, manage phone numbers,
and receive delivery webhooks. Single binary. One config file.

Get started (log provider, zero config):
  prophone start

Then point it at a real vendor:
  prophone provider init twilio --config-file twilio.json --persist`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format (shorthand for --output json)")
	rootCmd.PersistentFlags().String("output", "table", "Output format: table, json, or csv")
	rootCmd.PersistentFlags().String("url", "", "Server base URL (default: detect from PID file)")
	rootCmd.PersistentFlags().String("admin-token", "", "Admin bearer token (default: PROPHONE_ADMIN_TOKEN or auto-login)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(numbersCmd)
	rootCmd.AddCommand(providerCmd)

	initHelp()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// outputFormat returns the resolved output format from flags.
// --json is a shorthand for --output json.
func outputFormat(cmd *cobra.Command) string {
	jsonFlag, _ := cmd.Flags().GetBool("json")
	if jsonFlag {
		return "json"
	}
	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		return "table"
	}
	return out
}

// writeCSV writes rows as CSV to the given writer.
// cols is the list of column headers; rows is a slice of string slices.
func writeCSV(w io.Writer, cols []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// serverRequest makes an HTTP request to the ProPhone server, attaching the
// admin bearer token when one can be resolved. The token comes from the
// --admin-token flag, the PROPHONE_ADMIN_TOKEN env var, or auto-login via
// the saved admin password (~/.prophone/admin-token).
func serverRequest(cmd *cobra.Command, method, path string, body io.Reader) (*http.Response, []byte, error) {
	token, _ := cmd.Flags().GetString("admin-token")
	baseURL, _ := cmd.Flags().GetString("url")

	if token == "" {
		token = adminToken()
	}
	if baseURL == "" {
		baseURL = serverURL()
	}

	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := cliHTTPClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp, respBody, nil
}

// adminToken resolves a bearer token for admin-gated endpoints. Returns ""
// when the server runs without admin auth.
func adminToken() string {
	if v := os.Getenv("PROPHONE_ADMIN_TOKEN"); v != "" {
		return v
	}
	if tokenPath, err := adminTokenPath(); err == nil {
		if data, err := os.ReadFile(tokenPath); err == nil {
			password := strings.TrimSpace(string(data))
			if t, err := adminLogin(serverURL(), password); err == nil {
				return t
			}
		}
	}
	return ""
}

// adminLogin exchanges an admin password for a bearer token via /api/admin/auth.
func adminLogin(baseURL, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"password": password})
	if err != nil {
		return "", fmt.Errorf("encoding login request: %w", err)
	}
	resp, err := http.Post(baseURL+"/api/admin/auth", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed: %d", resp.StatusCode)
	}
	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Token, nil
}

// serverURL returns the base URL for the running ProPhone server.
func serverURL() string {
	_, port, err := readServerPID()
	if err == nil && port > 0 {
		return fmt.Sprintf("http://127.0.0.1:%d", port)
	}
	return "http://127.0.0.1:8085"
}

// serverError extracts the error message from a non-2xx API response body.
func serverError(body []byte, status int) error {
	var apiErr struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		if apiErr.Kind != "" {
			return fmt.Errorf("%s (%s)", apiErr.Error, apiErr.Kind)
		}
		return fmt.Errorf("%s", apiErr.Error)
	}
	return fmt.Errorf("server returned %d", status)
}

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Inspect and switch the telephony provider",
	Long: `Show the session state or switch the server to a different vendor.

Credentials are read from a JSON file rather than flags so they never land
in shell history. With --persist they are encrypted and restored on the
next server start.

Examples:
  prophone provider status
  prophone provider init twilio --config-file twilio.json --persist`,
}

var providerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the provider session state",
	RunE:  runProviderStatus,
}

var providerInitCmd = &cobra.Command{
	Use:   "init <type>",
	Short: "Initialize a provider (twilio, telnyx, bandwidth, sns, log)",
	Args:  cobra.ExactArgs(1),
	RunE:  runProviderInit,
}

func init() {
	providerCmd.AddCommand(providerStatusCmd)
	providerCmd.AddCommand(providerInitCmd)
	providerInitCmd.Flags().String("config-file", "", "JSON file with vendor credentials")
	providerInitCmd.Flags().Bool("persist", false, "Save encrypted credentials for restarts")
}

func runProviderStatus(cmd *cobra.Command, args []string) error {
	resp, respBody, err := serverRequest(cmd, http.MethodGet, "/api/provider", nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return serverError(respBody, resp.StatusCode)
	}

	if outputFormat(cmd) == "json" {
		os.Stdout.Write(respBody)
		fmt.Println()
		return nil
	}

	var status struct {
		State      string `json:"state"`
		Provider   string `json:"provider"`
		Generation uint64 `json:"generation"`
		Error      string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &status); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	fmt.Printf("Provider session\n")
	fmt.Printf("  State:       %s\n", status.State)
	if status.Provider != "" {
		fmt.Printf("  Provider:    %s\n", status.Provider)
	}
	fmt.Printf("  Generation:  %d\n", status.Generation)
	if status.Error != "" {
		fmt.Printf("  Error:       %s\n", status.Error)
	}
	return nil
}

func runProviderInit(cmd *cobra.Command, args []string) error {
	providerType := args[0]
	configFile, _ := cmd.Flags().GetString("config-file")
	persist, _ := cmd.Flags().GetBool("persist")

	// The log provider needs no credentials; real vendors do.
	providerConfig := json.RawMessage("{}")
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
		if !json.Valid(data) {
			return fmt.Errorf("%s is not valid JSON", configFile)
		}
		providerConfig = data
	}

	payload, err := json.Marshal(map[string]any{
		"provider": providerType,
		"config":   providerConfig,
		"persist":  persist,
	})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	resp, respBody, err := serverRequest(cmd, http.MethodPost, "/api/provider", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return serverError(respBody, resp.StatusCode)
	}

	if outputFormat(cmd) == "json" {
		os.Stdout.Write(respBody)
		fmt.Println()
		return nil
	}
	fmt.Printf("Provider %s is ready.\n", providerType)
	if persist {
		fmt.Println("Credentials saved (encrypted). They will be restored on the next start.")
	}
	return nil
}

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send an SMS through the active provider",
	Long: `Send one SMS message through the server's active provider.

Examples:
  prophone send --to +14155552671 --body "hello"
  prophone send --to +14155552671 --body "hello" --json`,
	RunE: runSend,
}

var sendHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show message history for a number",
	Long: `List messages exchanged with a destination number, newest first.
Vendor-side history is used when the provider supports it; the local
activity store otherwise.

Example:
  prophone send history --to +14155552671`,
	RunE: runSendHistory,
}

func init() {
	sendCmd.Flags().String("to", "", "Destination number in E.164 format (required)")
	sendCmd.Flags().String("body", "", "Message body (required)")
	sendCmd.AddCommand(sendHistoryCmd)
	sendHistoryCmd.Flags().String("to", "", "Number to show history for (required)")
}

func runSend(cmd *cobra.Command, args []string) error {
	to, _ := cmd.Flags().GetString("to")
	msgBody, _ := cmd.Flags().GetString("body")
	if to == "" || msgBody == "" {
		return fmt.Errorf("--to and --body are required")
	}

	payload, err := json.Marshal(map[string]string{"to": to, "body": msgBody})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	resp, respBody, err := serverRequest(cmd, http.MethodPost, "/api/sms", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusAccepted {
		return serverError(respBody, resp.StatusCode)
	}

	if outputFormat(cmd) == "json" {
		os.Stdout.Write(respBody)
		fmt.Println()
		return nil
	}

	var result struct {
		MessageID string  `json:"message_id"`
		Status    string  `json:"status"`
		Cost      float64 `json:"cost"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	fmt.Printf("Message accepted.\n")
	fmt.Printf("  ID:      %s\n", result.MessageID)
	fmt.Printf("  Status:  %s\n", result.Status)
	if result.Cost > 0 {
		fmt.Printf("  Cost:    %.4f\n", result.Cost)
	}
	return nil
}

func runSendHistory(cmd *cobra.Command, args []string) error {
	to, _ := cmd.Flags().GetString("to")
	if to == "" {
		return fmt.Errorf("--to is required")
	}

	path := "/api/sms?to=" + url.QueryEscape(to)
	resp, respBody, err := serverRequest(cmd, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return serverError(respBody, resp.StatusCode)
	}

	var result struct {
		Messages []struct {
			ID        string `json:"id"`
			To        string `json:"to"`
			Body      string `json:"body"`
			Direction string `json:"direction"`
			Status    string `json:"status"`
			CreatedAt string `json:"created_at"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	switch outputFormat(cmd) {
	case "json":
		os.Stdout.Write(respBody)
		fmt.Println()
		return nil
	case "csv":
		rows := make([][]string, 0, len(result.Messages))
		for _, m := range result.Messages {
			rows = append(rows, []string{m.ID, m.To, m.Direction, m.Status, m.CreatedAt, m.Body})
		}
		return writeCSV(os.Stdout, []string{"id", "to", "direction", "status", "created_at", "body"}, rows)
	}

	if len(result.Messages) == 0 {
		fmt.Println("No messages.")
		return nil
	}
	useColor := colorEnabledFd(os.Stdout.Fd())
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, bold("DIRECTION\tSTATUS\tCREATED\tBODY", useColor))
	for _, m := range result.Messages {
		body := m.Body
		if len(body) > 48 {
			body = body[:45] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Direction, m.Status, m.CreatedAt, body)
	}
	return w.Flush()
}

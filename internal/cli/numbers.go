package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var numbersCmd = &cobra.Command{
	Use:   "numbers",
	Short: "Manage phone numbers",
	Long: `List, purchase, and release phone numbers on the active provider.

Examples:
  prophone numbers list
  prophone numbers buy 415
  prophone numbers release +14155552671`,
}

var numbersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List phone numbers owned by the account",
	RunE:  runNumbersList,
}

var numbersBuyCmd = &cobra.Command{
	Use:   "buy <area-code>",
	Short: "Purchase a number in the given 3-digit area code",
	Args:  cobra.ExactArgs(1),
	RunE:  runNumbersBuy,
}

var numbersReleaseCmd = &cobra.Command{
	Use:   "release <number>",
	Short: "Release an owned number (safe to repeat)",
	Args:  cobra.ExactArgs(1),
	RunE:  runNumbersRelease,
}

func init() {
	numbersCmd.AddCommand(numbersListCmd)
	numbersCmd.AddCommand(numbersBuyCmd)
	numbersCmd.AddCommand(numbersReleaseCmd)
}

type numberRow struct {
	Number          string  `json:"number"`
	FormattedNumber string  `json:"formatted_number"`
	MonthlyPrice    float64 `json:"monthly_price"`
	Status          string  `json:"status"`
	Capabilities    struct {
		SMS   bool `json:"sms"`
		Voice bool `json:"voice"`
		MMS   bool `json:"mms"`
	} `json:"capabilities"`
}

func runNumbersList(cmd *cobra.Command, args []string) error {
	resp, respBody, err := serverRequest(cmd, http.MethodGet, "/api/numbers", nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return serverError(respBody, resp.StatusCode)
	}

	var result struct {
		Numbers []numberRow `json:"numbers"`
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
		rows := make([][]string, 0, len(result.Numbers))
		for _, n := range result.Numbers {
			rows = append(rows, []string{
				n.Number, n.Status,
				strconv.FormatBool(n.Capabilities.SMS),
				strconv.FormatBool(n.Capabilities.Voice),
				fmt.Sprintf("%.2f", n.MonthlyPrice),
			})
		}
		return writeCSV(os.Stdout, []string{"number", "status", "sms", "voice", "monthly_price"}, rows)
	}

	if len(result.Numbers) == 0 {
		fmt.Println("No phone numbers. Buy one with: prophone numbers buy <area-code>")
		return nil
	}
	useColor := colorEnabledFd(os.Stdout.Fd())
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, bold("NUMBER\tSTATUS\tSMS\tVOICE\tPRICE/MO", useColor))
	for _, n := range result.Numbers {
		fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%.2f\n",
			n.FormattedNumber, n.Status, n.Capabilities.SMS, n.Capabilities.Voice, n.MonthlyPrice)
	}
	return w.Flush()
}

func runNumbersBuy(cmd *cobra.Command, args []string) error {
	payload, err := json.Marshal(map[string]string{"area_code": args[0]})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	resp, respBody, err := serverRequest(cmd, http.MethodPost, "/api/numbers", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusCreated {
		return serverError(respBody, resp.StatusCode)
	}

	if outputFormat(cmd) == "json" {
		os.Stdout.Write(respBody)
		fmt.Println()
		return nil
	}

	var n numberRow
	if err := json.Unmarshal(respBody, &n); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	fmt.Printf("Purchased %s\n", n.FormattedNumber)
	fmt.Printf("  SMS:       %v\n", n.Capabilities.SMS)
	fmt.Printf("  Voice:     %v\n", n.Capabilities.Voice)
	fmt.Printf("  Price/mo:  %.2f\n", n.MonthlyPrice)
	return nil
}

func runNumbersRelease(cmd *cobra.Command, args []string) error {
	path := "/api/numbers/" + url.PathEscape(args[0])
	resp, respBody, err := serverRequest(cmd, http.MethodDelete, path, nil)
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
	fmt.Printf("Released %s\n", args[0])
	return nil
}

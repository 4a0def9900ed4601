package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prophone/prophone/internal/config"
	"github.com/prophone/prophone/internal/secrets"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a prophone.toml config and encryption key",
	Long: `Write a commented default prophone.toml and generate the credential
encryption key. Both are created in the current directory unless a target
directory is given.

Examples:
  prophone init             # config + key in the current directory
  prophone init ./deploy    # config + key under ./deploy`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	configPath := filepath.Join(dir, "prophone.toml")
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}
	if err := config.GenerateDefault(configPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Printf("Created %s\n", configPath)

	dataDir := filepath.Join(dir, "prophone_data")
	keyPath := filepath.Join(dataDir, "secret.key")
	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		key, err := secrets.GenerateKey()
		if err != nil {
			return fmt.Errorf("generating encryption key: %w", err)
		}
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		if err := os.WriteFile(keyPath, []byte(key+"\n"), 0o600); err != nil {
			return fmt.Errorf("writing key file: %w", err)
		}
		fmt.Printf("Created %s (mode 0600, seals stored provider credentials)\n", keyPath)
	}

	fmt.Printf("\nDone! Next steps:\n")
	if dir != "." {
		fmt.Printf("  cd %s\n", dir)
	}
	fmt.Printf("  prophone start\n")
	fmt.Printf("  prophone provider init twilio --config-file twilio.json --persist\n")

	return nil
}

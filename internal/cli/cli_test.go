package cli

import (
	"os"
	"strings"
	"testing"

	"github.com/prophone/prophone/internal/testutil"
	"github.com/spf13/cobra"
)

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2026-01-01")
	if buildVersion != "1.2.3" {
		t.Fatalf("expected 1.2.3, got %q", buildVersion)
	}
	if buildCommit != "abc123" {
		t.Fatalf("expected abc123, got %q", buildCommit)
	}
	if buildDate != "2026-01-01" {
		t.Fatalf("expected 2026-01-01, got %q", buildDate)
	}
	SetVersion("dev", "none", "unknown")
}

// captureStdout captures stdout output from the given function.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	buf := make([]byte, 64*1024)
	n, _ := r.Read(buf)
	r.Close()
	return string(buf[:n])
}

func TestVersionCommand(t *testing.T) {
	SetVersion("0.1.0", "deadbeef", "2026-02-07")
	defer SetVersion("dev", "none", "unknown")

	output := captureStdout(t, func() {
		rootCmd.SetArgs([]string{"version"})
		_ = rootCmd.Execute()
	})

	if !strings.Contains(output, "0.1.0") {
		t.Fatalf("expected version in output, got %q", output)
	}
	if !strings.Contains(output, "deadbeef") {
		t.Fatalf("expected commit in output, got %q", output)
	}
}

func TestVersionCommandJSON(t *testing.T) {
	SetVersion("0.1.0", "deadbeef", "2026-02-07")
	defer SetVersion("dev", "none", "unknown")
	defer rootCmd.PersistentFlags().Set("json", "false") //nolint:errcheck

	output := captureStdout(t, func() {
		rootCmd.SetArgs([]string{"version", "--json"})
		_ = rootCmd.Execute()
	})

	testutil.Contains(t, output, `"version":"0.1.0"`)
	testutil.Contains(t, output, `"commit":"deadbeef"`)
}

func TestOutputFormat(t *testing.T) {
	cmd := &cobra.Command{Use: "fake"}
	cmd.Flags().Bool("json", false, "")
	cmd.Flags().String("output", "table", "")

	testutil.Equal(t, "table", outputFormat(cmd))

	cmd.Flags().Set("output", "csv") //nolint:errcheck
	testutil.Equal(t, "csv", outputFormat(cmd))

	// --json wins over --output.
	cmd.Flags().Set("json", "true") //nolint:errcheck
	testutil.Equal(t, "json", outputFormat(cmd))
}

func TestWriteCSV(t *testing.T) {
	var sb strings.Builder
	err := writeCSV(&sb, []string{"number", "status"}, [][]string{
		{"+14155550100", "active"},
		{"+14155550101", "released"},
	})
	testutil.NoError(t, err)

	out := sb.String()
	testutil.Contains(t, out, "number,status")
	testutil.Contains(t, out, "+14155550100,active")
	testutil.Contains(t, out, "+14155550101,released")
}

func TestServerURLDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	testutil.Equal(t, "http://127.0.0.1:8085", serverURL())
}

func TestReadServerPID(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	pidPath, err := serverPIDPath()
	testutil.NoError(t, err)
	testutil.NoError(t, os.MkdirAll(tmp+"/.prophone", 0o755))
	testutil.NoError(t, os.WriteFile(pidPath, []byte("4242\n9090"), 0o644))

	pid, port, err := readServerPID()
	testutil.NoError(t, err)
	testutil.Equal(t, 4242, pid)
	testutil.Equal(t, 9090, port)
}

func TestReadServerPIDMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, _, err := readServerPID()
	if err == nil {
		t.Fatal("expected error for missing PID file")
	}
}

package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prophone/prophone/internal/cli/ui"
	"github.com/prophone/prophone/internal/config"
	"github.com/prophone/prophone/internal/secrets"
	"github.com/prophone/prophone/internal/server"
	"github.com/prophone/prophone/internal/store"
	"github.com/prophone/prophone/internal/telephony"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ProPhone server",
	Long: `Start the ProPhone server. Without vendor credentials it runs with
the log provider, which accepts every operation and writes it to the log.

Send through a real vendor once the server is up:
  prophone provider init twilio --config-file twilio.json --persist

Saved credentials are encrypted at rest and restored on the next start.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().Int("port", 0, "Server port (default 8085)")
	startCmd.Flags().String("host", "", "Server host (default 0.0.0.0)")
	startCmd.Flags().String("config", "", "Path to prophone.toml config file")
	startCmd.Flags().String("data-dir", "", "Data directory (default ./prophone_data)")
	startCmd.Flags().String("provider", "", "Provider to initialize at startup (twilio, telnyx, bandwidth, sns, log)")
	startCmd.Flags().Bool("foreground", false, "Run in foreground (blocks terminal)")
	startCmd.Flags().MarkHidden("foreground") //nolint:errcheck
}

func runStart(cmd *cobra.Command, args []string) error {
	fg, _ := cmd.Flags().GetBool("foreground")

	// Windows doesn't support background mode.
	if !fg && !detachSupported() {
		fmt.Fprintln(os.Stderr, "Background mode not supported on this platform, running in foreground.")
		fg = true
	}

	if fg {
		return runStartForeground(cmd, args)
	}
	return runStartDetached(cmd, args)
}

// startFlags collects CLI flag overrides in the form config.Load expects.
func startFlags(cmd *cobra.Command) map[string]string {
	flags := make(map[string]string)
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		flags["port"] = strconv.Itoa(v)
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		flags["host"] = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		flags["data-dir"] = v
	}
	if v, _ := cmd.Flags().GetString("provider"); v != "" {
		flags["provider"] = v
	}
	return flags
}

func runStartForeground(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	// Load config (defaults → file → env → flags).
	cfg, err := config.Load(configPath, startFlags(cmd))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Auto-generate admin password if not set.
	generatedPassword := ""
	if cfg.Admin.Enabled && cfg.Admin.Password == "" {
		b := make([]byte, 16)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("generating admin password: %w", err)
		}
		generatedPassword = hex.EncodeToString(b)
		cfg.Admin.Password = generatedPassword
	}

	// Register signal handlers early, before any blocking work.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	// Detect interactive terminal for pretty startup output.
	isTTY := colorEnabled()
	sp := newStartupProgress(os.Stderr, isTTY, isTTY)

	// Set up logger. In TTY mode, suppress INFO during startup
	// (pretty progress lines replace them). Level is restored after server starts.
	logger, logLevel, logPath, closeLog := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	defer closeLog()
	if isTTY {
		logLevel.Set(slog.LevelWarn)
	}

	// Show startup header.
	sp.header(bannerVersion(buildVersion))

	// Early port check: fail fast before opening stores.
	if ln, err := net.Listen("tcp", cfg.Address()); err != nil {
		return portError(cfg.Server.Port, err)
	} else {
		ln.Close()
	}

	// Auto-generate config file if it doesn't exist.
	if configPath == "" {
		if _, err := os.Stat("prophone.toml"); os.IsNotExist(err) {
			if err := config.GenerateDefault("prophone.toml"); err != nil {
				logger.Warn("could not generate default prophone.toml", "error", err)
			} else {
				logger.Info("generated default prophone.toml")
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the local activity store.
	sp.step("Opening data store...")
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o700); err != nil {
		sp.fail()
		return fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		sp.fail()
		return fmt.Errorf("opening data store: %w", err)
	}
	defer st.Close()
	sp.done()

	// Credential sealing key: inline hex from config, or a key file that is
	// generated on first run.
	box, err := openSecretsBox(cfg)
	if err != nil {
		return fmt.Errorf("loading encryption key: %w", err)
	}
	creds := secrets.NewCredStore(cfg.CredentialsPath(), box)

	retry := telephony.DefaultRetry
	if cfg.Telephony.MaxRetries >= 0 {
		retry.MaxRetries = uint64(cfg.Telephony.MaxRetries)
	}
	session := telephony.NewSession(telephony.SessionOptions{
		Logger:           logger,
		Store:            st,
		OperationTimeout: time.Duration(cfg.Telephony.OperationTimeout) * time.Second,
		AllowedCountries: cfg.Telephony.AllowedCountries,
		Retry:            retry,
	})

	srv := server.New(cfg, logger, session, st, creds)

	// Bring up a provider: saved encrypted credentials win over the config
	// file's vendor section. A failed initialization leaves the session in
	// the failed state but the server still starts; operations report the
	// initialization error until `prophone provider init` succeeds.
	sp.step("Initializing provider...")
	providerType, pcfg := resolveProviderConfig(cfg, creds, logger)
	if err := session.Initialize(ctx, providerType, pcfg); err != nil {
		sp.fail()
		logger.Warn("provider initialization failed",
			"provider", providerType, "kind", telephony.KindOf(err))
	} else {
		srv.RestoreProvider(providerType, pcfg)
		sp.done()
	}

	// Start the HTTP server.
	sp.step("Starting server...")
	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.StartWithReady(ready)
	}()

	// Wait for the port to be bound before printing the banner.
	select {
	case <-ready:
		sp.done()

		// Restore configured log level for runtime (request logging, etc.).
		if isTTY {
			logLevel.Set(parseSlogLevel(cfg.Logging.Level))
		}

		// Write PID file so `prophone stop` and `prophone status` can find us.
		if pidPath, err := serverPIDPath(); err == nil {
			_ = os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n%d", os.Getpid(), cfg.Server.Port)), 0o644)
			defer os.Remove(pidPath)
		}

		// Save the admin password so CLI commands can authenticate automatically.
		if cfg.Admin.Password != "" {
			if tokenPath, err := adminTokenPath(); err == nil {
				_ = os.WriteFile(tokenPath, []byte(cfg.Admin.Password), 0o600)
				defer os.Remove(tokenPath)
			}
		}

		// In TTY mode the header was already printed; show just the body.
		// In non-TTY mode show the full banner (header + body).
		if isTTY {
			printBannerBodyTo(os.Stderr, cfg, session.Status(), true, generatedPassword, logPath)
		} else {
			printBanner(cfg, session.Status(), generatedPassword, logPath)
		}
	case err := <-errCh:
		sp.fail()
		return portError(cfg.Server.Port, err)
	}

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
		fmt.Fprintf(os.Stderr, "\n  Shutting down... (press Ctrl-C again to force)\n")
		signal.Stop(sigCh) // Second Ctrl-C triggers Go default (immediate exit).

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		return nil
	}
}

// openSecretsBox builds the credential sealing box from the configured inline
// hex key, or a key file generated on first run.
func openSecretsBox(cfg *config.Config) (*secrets.Box, error) {
	if cfg.Secrets.Key != "" {
		return secrets.NewFromHex(cfg.Secrets.Key)
	}
	keyPath := cfg.KeyFilePath()
	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		key, err := secrets.GenerateKey()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
			return nil, err
		}
		if err := os.WriteFile(keyPath, []byte(key+"\n"), 0o600); err != nil {
			return nil, err
		}
	}
	return secrets.NewFromFile(keyPath)
}

// resolveProviderConfig picks the provider to initialize at startup. Saved
// encrypted credentials take precedence; otherwise the config file's vendor
// section for the configured provider is used.
func resolveProviderConfig(cfg *config.Config, creds *secrets.CredStore, logger *slog.Logger) (string, telephony.Config) {
	if providerType, pcfg, err := creds.Load(); err == nil {
		logger.Info("restoring saved provider credentials", "provider", providerType)
		return providerType, pcfg
	} else if !errors.Is(err, secrets.ErrNoCredentials) {
		logger.Warn("could not load saved credentials, falling back to config file", "error", err)
	}
	providerType := cfg.Telephony.Provider
	return providerType, vendorConfig(cfg, providerType)
}

// vendorConfig maps the config file's vendor section for the given provider
// into adapter credentials.
func vendorConfig(cfg *config.Config, providerType string) telephony.Config {
	var v config.VendorConfig
	switch providerType {
	case "twilio":
		v = cfg.Telephony.Twilio
	case "telnyx":
		v = cfg.Telephony.Telnyx
	case "bandwidth":
		v = cfg.Telephony.Bandwidth
	case "sns":
		v = cfg.Telephony.SNS
	default:
		return telephony.Config{}
	}
	return telephony.Config{
		AccountSID:    v.AccountSID,
		AuthToken:     v.AuthToken,
		APIKey:        v.APIKey,
		APISecret:     v.APISecret,
		AccountID:     v.AccountID,
		Username:      v.Username,
		ApplicationID: v.ApplicationID,
		ConnectionID:  v.ConnectionID,
		SiteID:        v.SiteID,
		Region:        v.Region,
		PublicKey:     v.PublicKey,
		From:          v.From,
		AnswerURL:     v.AnswerURL,
		BaseURL:       v.BaseURL,
	}
}

// runStartDetached re-execs `prophone start --foreground` in a detached
// session, polls for readiness, prints the banner, and exits.
func runStartDetached(cmd *cobra.Command, _ []string) error {
	// Already running?
	if pid, port, err := readServerPID(); err == nil {
		proc, findErr := os.FindProcess(pid)
		if findErr == nil && proc.Signal(syscall.Signal(0)) == nil {
			// Process alive. Check health.
			client := &http.Client{Timeout: 2 * time.Second}
			healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", port)
			if resp, hErr := client.Get(healthURL); hErr == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					fmt.Fprintf(os.Stderr, "ProPhone server is already running (PID %d, port %d).\n", pid, port)
					fmt.Fprintf(os.Stderr, "Stop with: prophone stop\n")
					return nil
				}
			}
			// Process alive but health fails, still starting up.
			return waitForExistingServer(port)
		}
		// Stale PID file.
		cleanupServerFiles()
	}

	// Load config for the port and banner info.
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath, startFlags(cmd))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Early port check.
	if ln, err := net.Listen("tcp", cfg.Address()); err != nil {
		return portError(cfg.Server.Port, err)
	} else {
		ln.Close()
	}

	// Build the child command. os.Args is used directly to avoid cobra
	// Flags().Visit() bugs (#1019, #1315).
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable: %w", err)
	}
	exePath, err = filepath.EvalSymlinks(exePath)
	if err != nil {
		return fmt.Errorf("resolving executable symlinks: %w", err)
	}

	childArgs := buildChildArgs()
	child := exec.Command(exePath, childArgs...)
	child.Dir, _ = os.Getwd()
	child.Env = os.Environ()

	// Redirect child output to the log file (must be an *os.File for detach).
	logPath := logFilePath()
	if logPath != "" {
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer logFile.Close()
		child.Stdout = logFile
		child.Stderr = logFile
	}

	setDetachAttrs(child)

	isTTY := colorEnabled()
	sp := newStartupProgress(os.Stderr, isTTY, isTTY)
	sp.header(bannerVersion(buildVersion))
	sp.step("Starting server...")

	if err := child.Start(); err != nil {
		sp.fail()
		return fmt.Errorf("starting server process: %w", err)
	}

	// Detect early child death.
	childDone := make(chan struct{})
	go func() {
		child.Wait()
		close(childDone)
	}()

	// Poll for readiness: health endpoint, plus the admin-token file when an
	// admin password is being generated.
	port := cfg.Server.Port
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	httpClient := &http.Client{Timeout: 2 * time.Second}
	timeout := 60 * time.Second
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	needAdminToken := cfg.Admin.Enabled && cfg.Admin.Password == ""
	tokenPath, _ := adminTokenPath()

	for {
		select {
		case <-childDone:
			sp.fail()
			return fmt.Errorf("server exited during startup (check %s)", logPath)
		case <-ticker.C:
			if time.Now().After(deadline) {
				sp.fail()
				_ = child.Process.Signal(syscall.SIGTERM)
				return fmt.Errorf("server did not become ready within %s (check %s)", timeout, logPath)
			}
			resp, err := httpClient.Get(healthURL)
			if err != nil {
				continue
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				continue
			}
			// Health OK. Also wait for the admin-token file if needed.
			if needAdminToken {
				if _, err := os.Stat(tokenPath); err != nil {
					continue // token not written yet
				}
			}
			sp.done()
			goto ready
		}
	}

ready:
	// Read the generated admin password.
	generatedPassword := ""
	if needAdminToken {
		if data, err := os.ReadFile(tokenPath); err == nil {
			generatedPassword = strings.TrimSpace(string(data))
		}
	}

	// The child owns the session; report what the health endpoint says.
	status := telephony.Status{State: telephony.StateReady, Provider: cfg.Telephony.Provider}
	if resp, err := httpClient.Get(healthURL); err == nil {
		var health struct {
			Provider     string `json:"provider"`
			SessionState string `json:"session"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&health); decodeErr == nil {
			status.Provider = health.Provider
			status.State = health.SessionState
		}
		resp.Body.Close()
	}

	if isTTY {
		printBannerBodyTo(os.Stderr, cfg, status, true, generatedPassword, logPath)
	} else {
		printBanner(cfg, status, generatedPassword, logPath)
	}

	fmt.Fprintf(os.Stderr, "  %s\n\n", dim("Stop with: prophone stop", isTTY))

	return nil
}

// waitForExistingServer polls an already-running server until it becomes healthy.
func waitForExistingServer(port int) error {
	isTTY := colorEnabled()
	sp := newStartupProgress(os.Stderr, isTTY, isTTY)
	sp.step("Waiting for server to become ready...")

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(60 * time.Second)

	for time.Now().Before(deadline) {
		time.Sleep(300 * time.Millisecond)
		resp, err := client.Get(healthURL)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			sp.done()
			fmt.Fprintf(os.Stderr, "ProPhone server is running (port %d).\n", port)
			return nil
		}
	}
	sp.fail()
	return fmt.Errorf("existing server (port %d) did not become ready within 60s", port)
}

// serverPIDPath returns the path to the server PID file (~/.prophone/prophone.pid).
func serverPIDPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".prophone", "prophone.pid"), nil
}

// adminTokenPath returns the path to the saved admin password (~/.prophone/admin-token).
func adminTokenPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".prophone", "admin-token"), nil
}

// readServerPID reads the PID and port from the server PID file.
func readServerPID() (int, int, error) {
	pidPath, err := serverPIDPath()
	if err != nil {
		return 0, 0, err
	}
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, 0, err
	}
	lines := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)
	if len(lines) == 0 || lines[0] == "" {
		return 0, 0, fmt.Errorf("empty pid file")
	}
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("parsing pid: %w", err)
	}
	var port int
	if len(lines) > 1 && strings.TrimSpace(lines[1]) != "" {
		port, err = strconv.Atoi(strings.TrimSpace(lines[1]))
		if err != nil {
			return 0, 0, fmt.Errorf("parsing port: %w", err)
		}
	}
	return pid, port, nil
}

// logFilePath returns the path to today's log file
// (~/.prophone/logs/prophone-YYYYMMDD.log). It creates the logs directory if
// needed. Returns "" on any error.
func logFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(home, ".prophone", "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	return filepath.Join(dir, fmt.Sprintf("prophone-%s.log", time.Now().Format("20060102")))
}

// cleanOldLogs removes log files older than 7 days.
func cleanOldLogs() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	dir := filepath.Join(home, ".prophone", "logs")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -7)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}

// multiHandler fans out log records to multiple handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// newLogger creates a logger that writes to stderr and optionally to a log file.
// The log file receives all levels (DEBUG+) while stderr uses the configured level.
// Returns the logger, the stderr level var (for runtime adjustment), the log file
// path (empty if file logging failed), and an optional file closer.
func newLogger(level, format string) (*slog.Logger, *slog.LevelVar, string, func()) {
	var lvlVar slog.LevelVar
	lvlVar.Set(parseSlogLevel(level))

	opts := &slog.HandlerOptions{Level: &lvlVar}

	var stderrHandler slog.Handler
	if format == "text" {
		stderrHandler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		stderrHandler = slog.NewJSONHandler(os.Stderr, opts)
	}

	// Try to open a log file for detailed output.
	logPath := logFilePath()
	if logPath == "" {
		return slog.New(stderrHandler), &lvlVar, "", func() {}
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return slog.New(stderrHandler), &lvlVar, "", func() {}
	}

	fileOpts := &slog.HandlerOptions{Level: slog.LevelDebug}
	fileHandler := slog.NewJSONHandler(f, fileOpts)

	handler := &multiHandler{handlers: []slog.Handler{stderrHandler, fileHandler}}

	// Clean old logs in the background.
	go cleanOldLogs()

	return slog.New(handler), &lvlVar, logPath, func() { f.Close() }
}

func parseSlogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startupProgress provides human-readable startup steps for interactive terminals.
// In TTY mode it shows animated spinners; in non-TTY mode all methods are no-ops.
type startupProgress struct {
	w        io.Writer
	spinner  *ui.StepSpinner
	active   bool
	useColor bool
}

func newStartupProgress(w io.Writer, active bool, useColor bool) *startupProgress {
	return &startupProgress{
		w:        w,
		spinner:  ui.NewStepSpinner(w, !active),
		active:   active,
		useColor: useColor,
	}
}

func (sp *startupProgress) header(version string) {
	if !sp.active {
		return
	}
	fmt.Fprintf(sp.w, "\n  %s %s\n\n",
		ui.BrandEmoji,
		boldCyan(fmt.Sprintf("ProPhone v%s", version), sp.useColor))
}

func (sp *startupProgress) step(msg string) {
	if !sp.active {
		return
	}
	sp.spinner.Start(msg)
}

func (sp *startupProgress) done() {
	if !sp.active {
		return
	}
	sp.spinner.Done()
}

func (sp *startupProgress) fail() {
	if !sp.active {
		return
	}
	sp.spinner.Fail()
}

// portInUse returns true if the given port is already bound on the local machine.
func portInUse(port int) bool {
	if port <= 0 {
		return false
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return true
	}
	ln.Close()
	return false
}

// buildChildArgs returns the arguments to pass when re-exec'ing as a background
// child. It takes os.Args[1:], strips any existing --foreground flags, and
// appends --foreground so the child runs in the foreground.
func buildChildArgs() []string {
	args := make([]string, 0, len(os.Args))
	for _, a := range os.Args[1:] {
		if a == "--foreground" || strings.HasPrefix(a, "--foreground=") {
			continue
		}
		args = append(args, a)
	}
	return append(args, "--foreground")
}

// cleanupServerFiles removes the PID and admin token files left by a previous run.
func cleanupServerFiles() {
	if pidPath, err := serverPIDPath(); err == nil {
		os.Remove(pidPath) //nolint:errcheck
	}
	if tokenPath, err := adminTokenPath(); err == nil {
		os.Remove(tokenPath) //nolint:errcheck
	}
}

// portError wraps common listen errors with actionable suggestions.
func portError(port int, err error) error {
	if strings.Contains(err.Error(), "address already in use") {
		return fmt.Errorf("%s", ui.FormatError(
			fmt.Sprintf("port %d is already in use", port),
			fmt.Sprintf("prophone start --port %d   # use a different port", port+1),
			"prophone stop                # stop the running server",
		))
	}
	return err
}

// printBanner writes a human-readable startup summary to stderr.
// This is separate from structured logging and designed for first-time users.
func printBanner(cfg *config.Config, status telephony.Status, generatedPassword, logPath string) {
	printBannerTo(os.Stderr, cfg, status, colorEnabled(), generatedPassword, logPath)
}

// printBannerTo writes the full banner (header + body) to w. Extracted for testing.
func printBannerTo(w io.Writer, cfg *config.Config, status telephony.Status, useColor bool, generatedPassword, logPath string) {
	ver := bannerVersion(buildVersion)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", ui.BrandEmoji,
		boldCyan(fmt.Sprintf("ProPhone v%s", ver), useColor))
	printBannerBodyTo(w, cfg, status, useColor, generatedPassword, logPath)
}

// printBannerBodyTo writes everything after the header (URLs, hints, etc.).
// Used by TTY mode where the header is shown early during startup progress.
func printBannerBodyTo(w io.Writer, cfg *config.Config, status telephony.Status, useColor bool, generatedPassword, logPath string) {
	apiURL := cfg.PublicBaseURL() + "/api"

	provider := status.Provider
	if provider == "" {
		provider = cfg.Telephony.Provider
	}
	providerLine := provider
	if status.State != telephony.StateReady {
		providerLine = fmt.Sprintf("%s (%s)", provider, status.State)
	}

	// Pad labels before colorizing so ANSI codes don't break alignment.
	padLabel := func(label string, width int) string {
		return bold(fmt.Sprintf("%-*s", width, label), useColor)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", padLabel("API:", 10), cyan(apiURL, useColor))
	fmt.Fprintf(w, "  %s %s\n", padLabel("Webhooks:", 10), cyan(cfg.PublicBaseURL()+"/webhooks/"+provider, useColor))
	fmt.Fprintf(w, "  %s %s\n", padLabel("Provider:", 10), providerLine)
	if provider == "log" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  %s\n", yellow(
			"Running with the log provider: operations are accepted but nothing is sent.", useColor))
	}
	if cfg.Admin.Enabled && generatedPassword != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  %s  %s\n", bold("Admin password:", useColor), boldGreen(generatedPassword, useColor))
	}
	fmt.Fprintln(w)
	if logPath != "" {
		fmt.Fprintf(w, "  %s %s\n", padLabel("Logs:", 10), dim(logPath, useColor))
	}

	// Print next-step hints for new users (no leading whitespace for easy copy-paste).
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", dim("Try:", useColor))
	fmt.Fprintf(w, "%s\n", green(`prophone send --to +14155552671 --body "hello from prophone"`, useColor))
	fmt.Fprintf(w, "%s\n", green("prophone numbers list", useColor))
	fmt.Fprintln(w)
}

// bannerVersion extracts a clean semver string for the startup banner.
// Release builds (e.g. "v0.1.0") → "0.1.0".
// Dev builds (e.g. "v0.1.0-43-ge534c04-dirty") → "0.1.0-dev".
// Full version is always available via `prophone version`.
func bannerVersion(raw string) string {
	v := strings.TrimPrefix(raw, "v")
	// A bare semver tag (e.g. "0.1.0") has no hyphen after the patch number,
	// or has a pre-release label like "0.1.0-beta.1". Git-describe appends
	// "-<N>-g<hash>" when commits exist past the tag. Detect that pattern.
	parts := strings.SplitN(v, "-", 2)
	if len(parts) == 1 {
		return v // clean tag, e.g. "0.1.0"
	}
	// If the first segment after the hyphen is a number, it's a git-describe
	// commit count (e.g. "0.1.0-43-ge534c04"), not a semver pre-release.
	if len(parts[1]) > 0 && parts[1][0] >= '0' && parts[1][0] <= '9' {
		return parts[0] + "-dev"
	}
	return v // pre-release tag like "0.1.0-beta.1"
}

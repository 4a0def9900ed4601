package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level ProPhone configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Telephony TelephonyConfig `toml:"telephony"`
	Storage   StorageConfig   `toml:"storage"`
	Secrets   SecretsConfig   `toml:"secrets"`
	Admin     AdminConfig     `toml:"admin"`
	Logging   LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	ShutdownTimeout    int      `toml:"shutdown_timeout"` // seconds
}

// TelephonyConfig selects the provider and its credentials. Credentials set
// here are a dev convenience; production deployments save them encrypted via
// the credentials store instead.
type TelephonyConfig struct {
	Provider         string   `toml:"provider"` // twilio, telnyx, bandwidth, sns, log
	DefaultCountry   string   `toml:"default_country"`
	AllowedCountries []string `toml:"allowed_countries"` // empty permits all
	OperationTimeout int      `toml:"operation_timeout"` // seconds, per vendor call
	MaxRetries       int      `toml:"max_retries"`       // idempotent reads only

	Twilio    VendorConfig `toml:"twilio"`
	Telnyx    VendorConfig `toml:"telnyx"`
	Bandwidth VendorConfig `toml:"bandwidth"`
	SNS       VendorConfig `toml:"sns"`
}

// VendorConfig holds one vendor's credentials. Each vendor reads the fields
// it needs and ignores the rest.
type VendorConfig struct {
	AccountSID    string `toml:"account_sid"`
	AuthToken     string `toml:"auth_token"`
	APIKey        string `toml:"api_key"`
	APISecret     string `toml:"api_secret"`
	AccountID     string `toml:"account_id"`
	Username      string `toml:"username"`
	ApplicationID string `toml:"application_id"`
	ConnectionID  string `toml:"connection_id"`
	SiteID        string `toml:"site_id"`
	Region        string `toml:"region"`
	PublicKey     string `toml:"public_key"`
	From          string `toml:"from"`
	AnswerURL     string `toml:"answer_url"`
	BaseURL       string `toml:"base_url"` // override for testing
}

type StorageConfig struct {
	DataDir string `toml:"data_dir"`
	DBPath  string `toml:"db_path"` // defaults to <data_dir>/prophone.db
}

// SecretsConfig supplies the credential encryption key, either inline as hex
// or via a key file. Exactly one should be set; the key file wins.
type SecretsConfig struct {
	Key     string `toml:"key"`      // 64 hex characters
	KeyFile string `toml:"key_file"` // defaults to <data_dir>/secret.key
}

type AdminConfig struct {
	Enabled  bool   `toml:"enabled"`
	Password string `toml:"password"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8085,
			CORSAllowedOrigins: []string{"*"},
			ShutdownTimeout:    10,
		},
		Telephony: TelephonyConfig{
			Provider:         "log",
			DefaultCountry:   "US",
			OperationTimeout: 30,
			MaxRetries:       3,
		},
		Storage: StorageConfig{
			DataDir: "./prophone_data",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration with priority: defaults → prophone.toml → env
// vars → CLI flags. The flags parameter allows CLI flag overrides to be
// passed in.
func Load(configPath string, flags map[string]string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = "prophone.toml"
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyFlags(cfg, flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Telephony.Provider {
	case "", "twilio", "telnyx", "bandwidth", "sns", "log":
	default:
		return fmt.Errorf("telephony.provider must be one of: twilio, telnyx, bandwidth, sns, log; got %q", c.Telephony.Provider)
	}
	if c.Telephony.OperationTimeout < 1 {
		return fmt.Errorf("telephony.operation_timeout must be at least 1 second, got %d", c.Telephony.OperationTimeout)
	}
	if c.Telephony.MaxRetries < 0 {
		return fmt.Errorf("telephony.max_retries must be non-negative, got %d", c.Telephony.MaxRetries)
	}
	for _, country := range c.Telephony.AllowedCountries {
		if len(country) != 2 {
			return fmt.Errorf("telephony.allowed_countries entries must be two-letter region codes, got %q", country)
		}
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Secrets.Key != "" {
		if _, err := hex.DecodeString(c.Secrets.Key); err != nil || len(c.Secrets.Key) != 64 {
			return fmt.Errorf("secrets.key must be 64 hex characters")
		}
	}
	if c.Logging.Level != "" {
		switch c.Logging.Level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.level must be one of: debug, info, warn, error; got %q", c.Logging.Level)
		}
	}
	if c.Logging.Format != "" {
		switch c.Logging.Format {
		case "json", "text":
		default:
			return fmt.Errorf("logging.format must be \"json\" or \"text\", got %q", c.Logging.Format)
		}
	}
	return nil
}

// Address returns the host:port string for the server to listen on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PublicBaseURL returns the externally reachable base URL for the server.
// Wildcard bind addresses are rewritten to localhost for display.
func (c *Config) PublicBaseURL() string {
	host := c.Server.Host
	if host == "0.0.0.0" || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}

// DBPath returns the SQLite database path, defaulting under the data dir.
func (c *Config) DBPath() string {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath
	}
	return filepath.Join(c.Storage.DataDir, "prophone.db")
}

// KeyFilePath returns the encryption key file path, defaulting under the
// data dir. Unused when secrets.key is set inline.
func (c *Config) KeyFilePath() string {
	if c.Secrets.KeyFile != "" {
		return c.Secrets.KeyFile
	}
	return filepath.Join(c.Storage.DataDir, "secret.key")
}

// CredentialsPath returns where encrypted provider credentials are stored.
func (c *Config) CredentialsPath() string {
	return filepath.Join(c.Storage.DataDir, "credentials.json")
}

// GenerateDefault writes a commented default prophone.toml to the given path.
func GenerateDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultTOML), 0o644)
}

// ToTOML returns the config serialized as TOML.
func (c *Config) ToTOML() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// envInt reads an integer from the named environment variable.
// Returns an error if the value is set but not a valid integer.
func envInt(name string, dest *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q is not an integer", name, v)
	}
	*dest = n
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PROPHONE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if err := envInt("PROPHONE_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if v := os.Getenv("PROPHONE_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSAllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("PROPHONE_PROVIDER"); v != "" {
		cfg.Telephony.Provider = v
	}
	if v := os.Getenv("PROPHONE_DEFAULT_COUNTRY"); v != "" {
		cfg.Telephony.DefaultCountry = v
	}
	if v := os.Getenv("PROPHONE_ALLOWED_COUNTRIES"); v != "" {
		cfg.Telephony.AllowedCountries = strings.Split(v, ",")
	}
	if err := envInt("PROPHONE_OPERATION_TIMEOUT", &cfg.Telephony.OperationTimeout); err != nil {
		return err
	}
	if err := envInt("PROPHONE_MAX_RETRIES", &cfg.Telephony.MaxRetries); err != nil {
		return err
	}
	if v := os.Getenv("PROPHONE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("PROPHONE_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("PROPHONE_SECRETS_KEY"); v != "" {
		cfg.Secrets.Key = v
	}
	if v := os.Getenv("PROPHONE_SECRETS_KEY_FILE"); v != "" {
		cfg.Secrets.KeyFile = v
	}
	if v := os.Getenv("PROPHONE_ADMIN_PASSWORD"); v != "" {
		cfg.Admin.Password = v
	}
	if v := os.Getenv("PROPHONE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PROPHONE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	applyVendorEnv(&cfg.Telephony.Twilio, "PROPHONE_TWILIO_")
	applyVendorEnv(&cfg.Telephony.Telnyx, "PROPHONE_TELNYX_")
	applyVendorEnv(&cfg.Telephony.Bandwidth, "PROPHONE_BANDWIDTH_")
	applyVendorEnv(&cfg.Telephony.SNS, "PROPHONE_SNS_")
	return nil
}

func applyVendorEnv(v *VendorConfig, prefix string) {
	set := func(suffix string, dest *string) {
		if val := os.Getenv(prefix + suffix); val != "" {
			*dest = val
		}
	}
	set("ACCOUNT_SID", &v.AccountSID)
	set("AUTH_TOKEN", &v.AuthToken)
	set("API_KEY", &v.APIKey)
	set("API_SECRET", &v.APISecret)
	set("ACCOUNT_ID", &v.AccountID)
	set("USERNAME", &v.Username)
	set("APPLICATION_ID", &v.ApplicationID)
	set("CONNECTION_ID", &v.ConnectionID)
	set("SITE_ID", &v.SiteID)
	set("REGION", &v.Region)
	set("PUBLIC_KEY", &v.PublicKey)
	set("FROM", &v.From)
	set("ANSWER_URL", &v.AnswerURL)
	set("BASE_URL", &v.BaseURL)
}

func applyFlags(cfg *Config, flags map[string]string) {
	if flags == nil {
		return
	}
	if v, ok := flags["port"]; ok && v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v, ok := flags["host"]; ok && v != "" {
		cfg.Server.Host = v
	}
	if v, ok := flags["provider"]; ok && v != "" {
		cfg.Telephony.Provider = v
	}
	if v, ok := flags["data-dir"]; ok && v != "" {
		cfg.Storage.DataDir = v
	}
}

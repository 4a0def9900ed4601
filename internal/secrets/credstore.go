package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/prophone/prophone/internal/telephony"
)

// ErrNoCredentials is returned by Load when no credentials have been saved.
var ErrNoCredentials = errors.New("no saved provider credentials")

// CredStore persists the active provider type and its credentials, encrypted,
// so the session can be restored across restarts without re-entering keys.
type CredStore struct {
	path string
	box  *Box
}

// NewCredStore creates a store writing to path (the file need not exist yet).
func NewCredStore(path string, box *Box) *CredStore {
	return &CredStore{path: path, box: box}
}

type credFile struct {
	Provider string `json:"provider"`
	Payload  string `json:"payload"` // sealed telephony.Config JSON
}

// Save encrypts and writes the provider credentials. The file is written
// atomically and never contains plaintext secrets.
func (c *CredStore) Save(providerType string, cfg telephony.Config) error {
	plain, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	sealed, err := c.box.Encrypt(plain)
	if err != nil {
		return fmt.Errorf("seal credentials: %w", err)
	}
	data, err := json.MarshalIndent(credFile{Provider: providerType, Payload: sealed}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Load reads and decrypts saved credentials. Returns ErrNoCredentials when
// nothing was saved yet.
func (c *CredStore) Load() (string, telephony.Config, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", telephony.Config{}, ErrNoCredentials
		}
		return "", telephony.Config{}, fmt.Errorf("read credentials: %w", err)
	}
	var f credFile
	if err := json.Unmarshal(data, &f); err != nil {
		return "", telephony.Config{}, fmt.Errorf("decode credentials file: %w", err)
	}
	plain, err := c.box.Decrypt(f.Payload)
	if err != nil {
		return "", telephony.Config{}, fmt.Errorf("open credentials: %w", err)
	}
	var cfg telephony.Config
	if err := json.Unmarshal(plain, &cfg); err != nil {
		return "", telephony.Config{}, fmt.Errorf("decode credentials: %w", err)
	}
	return f.Provider, cfg, nil
}

// Delete removes saved credentials. Missing files are not an error.
func (c *CredStore) Delete() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

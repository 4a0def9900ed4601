package secrets_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophone/prophone/internal/secrets"
	"github.com/prophone/prophone/internal/telephony"
)

func testBox(t *testing.T) *secrets.Box {
	t.Helper()
	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	box, err := secrets.NewFromHex(key)
	require.NoError(t, err)
	return box
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box := testBox(t)

	sealed, err := box.Encrypt([]byte("super secret auth token"))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "secret")

	plain, err := box.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "super secret auth token", string(plain))
}

func TestDecryptRejectsTampering(t *testing.T) {
	box := testBox(t)
	sealed, err := box.Encrypt([]byte("payload"))
	require.NoError(t, err)

	tampered := strings.Replace(sealed, sealed[10:11], "A", 1)
	if tampered == sealed {
		tampered = strings.Replace(sealed, sealed[10:11], "B", 1)
	}
	_, err = box.Decrypt(tampered)
	assert.Error(t, err)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	sealed, err := testBox(t).Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = testBox(t).Decrypt(sealed)
	assert.Error(t, err)
}

func TestNewRejectsBadKeys(t *testing.T) {
	_, err := secrets.New([]byte("too short"))
	assert.ErrorIs(t, err, secrets.ErrInvalidKey)

	_, err = secrets.NewFromHex("not hex at all")
	assert.Error(t, err)
}

func TestNewFromFile(t *testing.T) {
	key, err := secrets.GenerateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "secret.key")
	require.NoError(t, os.WriteFile(path, []byte(key+"\n"), 0o600))

	box, err := secrets.NewFromFile(path)
	require.NoError(t, err)

	sealed, err := box.Encrypt([]byte("x"))
	require.NoError(t, err)
	plain, err := box.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "x", string(plain))
}

func TestCredStoreRoundTrip(t *testing.T) {
	box := testBox(t)
	path := filepath.Join(t.TempDir(), "credentials.json")
	cs := secrets.NewCredStore(path, box)

	cfg := telephony.Config{
		AccountSID: "AC0123456789abcdef",
		AuthToken:  "very-secret-token",
		From:       "+14155550000",
	}
	require.NoError(t, cs.Save("twilio", cfg))

	// Plaintext secrets must never hit disk.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "very-secret-token")
	assert.NotContains(t, string(raw), "AC0123456789abcdef")

	providerType, loaded, err := cs.Load()
	require.NoError(t, err)
	assert.Equal(t, "twilio", providerType)
	assert.Equal(t, cfg, loaded)
}

func TestCredStoreLoadMissing(t *testing.T) {
	cs := secrets.NewCredStore(filepath.Join(t.TempDir(), "none.json"), testBox(t))
	_, _, err := cs.Load()
	assert.ErrorIs(t, err, secrets.ErrNoCredentials)
}

func TestCredStoreDelete(t *testing.T) {
	box := testBox(t)
	path := filepath.Join(t.TempDir(), "credentials.json")
	cs := secrets.NewCredStore(path, box)

	require.NoError(t, cs.Save("telnyx", telephony.Config{APIKey: "k"}))
	require.NoError(t, cs.Delete())
	_, _, err := cs.Load()
	assert.ErrorIs(t, err, secrets.ErrNoCredentials)

	// Deleting twice stays quiet.
	assert.NoError(t, cs.Delete())
}

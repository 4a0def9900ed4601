package telephony_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophone/prophone/internal/telephony"
	"github.com/prophone/prophone/internal/testutil"
)

func TestFactoryConstructsKnownTypes(t *testing.T) {
	cfg := telephony.Config{
		AccountSID: "AC1", AuthToken: "tok", APIKey: "key",
		AccountID: "acct", Username: "u", APISecret: "s",
		From: "+15550000000",
	}
	// sns is exercised separately: its construction loads AWS credentials
	// from the environment.
	for _, tag := range []string{"twilio", "telnyx", "bandwidth", "log", "capture"} {
		p, err := telephony.New(tag, cfg, testutil.DiscardLogger())
		require.NoError(t, err, "factory failed for %q", tag)
		require.NotNil(t, p)
		assert.Equal(t, tag, p.Name())
	}
}

func TestFactoryRejectsUnknownType(t *testing.T) {
	_, err := telephony.New("vonage", telephony.Config{}, testutil.DiscardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported phone provider type "vonage"`)
	assert.Contains(t, err.Error(), "supported")
}

func TestSupportedIsSorted(t *testing.T) {
	tags := telephony.Supported()
	require.NotEmpty(t, tags)
	for i := 1; i < len(tags); i++ {
		assert.Less(t, tags[i-1], tags[i])
	}
}

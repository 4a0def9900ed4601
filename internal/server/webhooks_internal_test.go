package server

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/prophone/prophone/internal/telephony"
	"github.com/prophone/prophone/internal/testutil"
)

func signTwilio(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyTwilio(t *testing.T) {
	v := newWebhookVerifier()
	v.update("twilio", telephony.Config{AuthToken: "tok-secret"})

	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("MessageStatus", "delivered")

	r := httptest.NewRequest(http.MethodPost, "http://example.com/webhooks/twilio", strings.NewReader(form.Encode()))
	r.Header.Set("X-Twilio-Signature", signTwilio("tok-secret", "http://example.com/webhooks/twilio", form))
	testutil.True(t, v.verifyTwilio(r, form), "valid signature accepted")

	r.Header.Set("X-Twilio-Signature", signTwilio("wrong-token", "http://example.com/webhooks/twilio", form))
	testutil.False(t, v.verifyTwilio(r, form), "signature from wrong token rejected")

	r.Header.Del("X-Twilio-Signature")
	testutil.False(t, v.verifyTwilio(r, form), "missing signature rejected")
}

func TestVerifyTwilioFailsClosedWithoutToken(t *testing.T) {
	v := newWebhookVerifier()
	v.update("twilio", telephony.Config{})

	form := url.Values{}
	r := httptest.NewRequest(http.MethodPost, "http://example.com/webhooks/twilio", nil)
	r.Header.Set("X-Twilio-Signature", "anything")
	testutil.False(t, v.verifyTwilio(r, form), "no auth token means no verification")
}

func TestVerifyTelnyx(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	testutil.NoError(t, err)

	v := newWebhookVerifier()
	v.update("telnyx", telephony.Config{PublicKey: base64.StdEncoding.EncodeToString(pub)})

	body := []byte(`{"data":{"event_type":"message.finalized"}}`)
	timestamp := "1756500000"
	sig := ed25519.Sign(priv, append([]byte(timestamp+"|"), body...))

	r := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx", nil)
	r.Header.Set("telnyx-signature-ed25519", base64.StdEncoding.EncodeToString(sig))
	r.Header.Set("telnyx-timestamp", timestamp)
	testutil.True(t, v.verifyTelnyx(r, body), "valid signature accepted")

	r.Header.Set("telnyx-timestamp", "1756500001")
	testutil.False(t, v.verifyTelnyx(r, body), "altered timestamp rejected")

	r.Header.Set("telnyx-timestamp", timestamp)
	testutil.False(t, v.verifyTelnyx(r, append(body, ' ')), "altered body rejected")
}

func TestVerifyTelnyxRejectsBadKeyMaterial(t *testing.T) {
	v := newWebhookVerifier()
	v.update("telnyx", telephony.Config{PublicKey: "not base64!!"})

	r := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx", nil)
	r.Header.Set("telnyx-signature-ed25519", base64.StdEncoding.EncodeToString(make([]byte, 64)))
	r.Header.Set("telnyx-timestamp", "1")
	testutil.False(t, v.verifyTelnyx(r, []byte("x")), "unparseable key fails closed")
}

func TestNormalizeWebhookStatus(t *testing.T) {
	testutil.Equal(t, telephony.StatusDelivered, normalizeWebhookStatus("delivered"))
	testutil.Equal(t, telephony.StatusDelivered, normalizeWebhookStatus("webhook_delivered"))
	testutil.Equal(t, telephony.StatusFailed, normalizeWebhookStatus("undelivered"))
	testutil.Equal(t, telephony.StatusFailed, normalizeWebhookStatus("sending_failed"))
	testutil.Equal(t, telephony.StatusQueued, normalizeWebhookStatus("accepted"))
	testutil.Equal(t, "something-else", normalizeWebhookStatus("something-else"))
}

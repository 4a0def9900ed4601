package telephony_test

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophone/prophone/internal/telephony"
)

func twilioTestProvider(baseURL string) *telephony.TwilioProvider {
	return telephony.NewTwilioProvider(telephony.Config{
		AccountSID: "ACtest",
		AuthToken:  "token",
		From:       "+15550000000",
		BaseURL:    baseURL,
	})
}

func TestTwilioSendSMSSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Contains(t, r.URL.Path, "/2010-04-01/Accounts/ACtest/Messages.json")

		auth := r.Header.Get("Authorization")
		expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("ACtest:token"))
		assert.Equal(t, expected, auth)

		assert.Equal(t, "+15551234567", r.FormValue("To"))
		assert.Equal(t, "+15550000000", r.FormValue("From"))
		assert.Equal(t, "hello", r.FormValue("Body"))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM123","status":"queued","price":"-0.0075"}`))
	}))
	defer srv.Close()

	p := twilioTestProvider(srv.URL)
	result, err := p.SendSMS(t.Context(), "+15551234567", "hello")
	require.NoError(t, err)
	assert.Equal(t, "SM123", result.MessageID)
	assert.Equal(t, telephony.StatusQueued, result.Status)
	assert.InDelta(t, 0.0075, result.Cost, 1e-9)
}

func TestTwilioSendSMSHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"invalid To"}`))
	}))
	defer srv.Close()

	p := twilioTestProvider(srv.URL)
	_, err := p.SendSMS(t.Context(), "+15551234567", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "21211")
	assert.Equal(t, telephony.KindVendor, telephony.KindOf(err))
}

func TestTwilioSendSMSHTTPErrorNonJSON(t *testing.T) {
	// Proxy returning non-JSON error — must not produce a confusing parse error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html>Bad Gateway</html>`))
	}))
	defer srv.Close()

	p := twilioTestProvider(srv.URL)
	_, err := p.SendSMS(t.Context(), "+15551234567", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "twilio: error 502")
}

func TestTwilioSendSMSNetworkError(t *testing.T) {
	// Point at a server that immediately refuses to simulate network failure.
	p := twilioTestProvider("http://127.0.0.1:1")
	_, err := p.SendSMS(t.Context(), "+15551234567", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "twilio: send request:")
}

func TestTwilioInitializeRejectsBadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":20003,"message":"Authenticate"}`))
	}))
	defer srv.Close()

	p := twilioTestProvider(srv.URL)
	err := p.Initialize(t.Context())
	require.Error(t, err)
	assert.Equal(t, telephony.KindConfig, telephony.KindOf(err))
}

func TestTwilioInitializeMissingCredentials(t *testing.T) {
	p := telephony.NewTwilioProvider(telephony.Config{})
	err := p.Initialize(t.Context())
	require.Error(t, err)
	assert.Equal(t, telephony.KindConfig, telephony.KindOf(err))
}

func TestTwilioPurchasePhoneNumber(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/2010-04-01/Accounts/ACtest/AvailablePhoneNumbers/US/Local.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "212", r.URL.Query().Get("AreaCode"))
		w.Write([]byte(`{"available_phone_numbers":[{"phone_number":"+12125550100"}]}`))
	})
	mux.HandleFunc("/2010-04-01/Accounts/ACtest/IncomingPhoneNumbers.json", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		assert.Equal(t, "+12125550100", r.FormValue("PhoneNumber"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"PN1","phone_number":"+12125550100","status":"in-use","capabilities":{"voice":true,"SMS":true,"MMS":false}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := twilioTestProvider(srv.URL)
	num, err := p.PurchasePhoneNumber(t.Context(), "212")
	require.NoError(t, err)
	assert.Equal(t, "+12125550100", num.Number)
	assert.Equal(t, "(212) 555-0100", num.FormattedNumber)
	assert.Equal(t, telephony.NumberActive, num.Status)
	assert.True(t, num.Capabilities.Voice)
	assert.True(t, num.Capabilities.SMS)
	assert.False(t, num.Capabilities.MMS)
}

func TestTwilioPurchaseNoInventory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"available_phone_numbers":[]}`))
	}))
	defer srv.Close()

	p := twilioTestProvider(srv.URL)
	_, err := p.PurchasePhoneNumber(t.Context(), "999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no numbers available")
}

func TestTwilioListPhoneNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"incoming_phone_numbers":[
			{"sid":"PN1","phone_number":"+12125550100","status":"in-use","capabilities":{"voice":true,"SMS":true,"MMS":true}},
			{"sid":"PN2","phone_number":"+14155550101","status":"in-use","capabilities":{"voice":true,"SMS":false,"MMS":false}}
		]}`))
	}))
	defer srv.Close()

	p := twilioTestProvider(srv.URL)
	nums, err := p.ListPhoneNumbers(t.Context())
	require.NoError(t, err)
	require.Len(t, nums, 2)
	assert.Equal(t, "+12125550100", nums[0].Number)
	assert.Equal(t, "(212) 555-0100", nums[0].FormattedNumber)
	assert.False(t, nums[1].Capabilities.SMS)
}

func TestTwilioReleaseUnknownNumberIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "GET", r.Method)
		w.Write([]byte(`{"incoming_phone_numbers":[]}`))
	}))
	defer srv.Close()

	p := twilioTestProvider(srv.URL)
	require.NoError(t, p.ReleasePhoneNumber(t.Context(), "+12125550100"))
}

func TestTwilioReleaseDeletesBySID(t *testing.T) {
	deleted := false
	mux := http.NewServeMux()
	mux.HandleFunc("/2010-04-01/Accounts/ACtest/IncomingPhoneNumbers.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"incoming_phone_numbers":[{"sid":"PN9","phone_number":"+12125550100"}]}`))
	})
	mux.HandleFunc("/2010-04-01/Accounts/ACtest/IncomingPhoneNumbers/PN9.json", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "DELETE", r.Method)
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := twilioTestProvider(srv.URL)
	require.NoError(t, p.ReleasePhoneNumber(t.Context(), "+12125550100"))
	assert.True(t, deleted)
}

func TestTwilioGetMessageStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/Messages/SM123.json")
		w.Write([]byte(`{"sid":"SM123","status":"delivered","date_sent":"Sat, 29 Aug 2026 10:00:00 +0000","price":"-0.0075"}`))
	}))
	defer srv.Close()

	p := twilioTestProvider(srv.URL)
	status, err := p.GetMessageStatus(t.Context(), "SM123")
	require.NoError(t, err)
	assert.Equal(t, telephony.StatusDelivered, status.Status)
	require.NotNil(t, status.DeliveredAt)
}

func TestTwilioMakeCallAndEndCall(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/2010-04-01/Accounts/ACtest/Calls.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "+15551234567", r.FormValue("To"))
		assert.NotEmpty(t, r.FormValue("Twiml")) // no answer_url configured
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"CA1","status":"queued","direction":"outbound-api"}`))
	})
	mux.HandleFunc("/2010-04-01/Accounts/ACtest/Calls/CA1.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "completed", r.FormValue("Status"))
		w.Write([]byte(`{"sid":"CA1","status":"completed"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := twilioTestProvider(srv.URL)
	call, err := p.MakeCall(t.Context(), "+15551234567", nil)
	require.NoError(t, err)
	assert.Equal(t, "CA1", call.CallID)
	assert.Equal(t, telephony.CallStatusInitiated, call.Status)

	require.NoError(t, p.EndCall(t.Context(), "CA1"))
}

func TestTwilioMuteUnsupported(t *testing.T) {
	p := twilioTestProvider("http://127.0.0.1:1")
	err := p.MuteCall(t.Context(), "CA1", true)
	require.Error(t, err)
	assert.Equal(t, telephony.KindUnsupported, telephony.KindOf(err))
}

func TestTwilioHandleIncomingCall(t *testing.T) {
	p := twilioTestProvider("http://127.0.0.1:1")
	payload := []byte("CallSid=CA77&From=%2B15551234567&To=%2B12125550100&CallStatus=ringing")
	call, err := p.HandleIncomingCall(t.Context(), payload)
	require.NoError(t, err)
	assert.Equal(t, "CA77", call.CallID)
	assert.Equal(t, "+15551234567", call.From)
	assert.Equal(t, "+12125550100", call.To)
	assert.Equal(t, "twilio", call.Provider)
	assert.Equal(t, payload, call.Raw)
}

func TestTwilioHandleIncomingCallBadPayload(t *testing.T) {
	p := twilioTestProvider("http://127.0.0.1:1")
	_, err := p.HandleIncomingCall(t.Context(), []byte("From=%2B1555"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CallSid")
}

func TestTwilioImplementsInterface(t *testing.T) {
	var _ telephony.Provider = (*telephony.TwilioProvider)(nil)
}

package telephony_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophone/prophone/internal/telephony"
)

func telnyxTestProvider(baseURL string) *telephony.TelnyxProvider {
	return telephony.NewTelnyxProvider(telephony.Config{
		APIKey:       "TELNYX_API_KEY",
		ConnectionID: "conn-1",
		From:         "+15550000000",
		BaseURL:      baseURL,
	})
}

func TestTelnyxSendSMSSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v2/messages", r.URL.Path)
		assert.Equal(t, "Bearer TELNYX_API_KEY", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var reqBody map[string]string
		require.NoError(t, json.Unmarshal(body, &reqBody))
		assert.Equal(t, "+15550000000", reqBody["from"])
		assert.Equal(t, "+15551234567", reqBody["to"])
		assert.Equal(t, "hello", reqBody["text"])

		w.Write([]byte(`{"data":{"id":"msg-telnyx-123","to":[{"phone_number":"+15551234567","status":"queued"}],"cost":{"amount":"0.004","currency":"USD"}}}`))
	}))
	defer srv.Close()

	p := telnyxTestProvider(srv.URL)
	result, err := p.SendSMS(t.Context(), "+15551234567", "hello")
	require.NoError(t, err)
	assert.Equal(t, "msg-telnyx-123", result.MessageID)
	assert.Equal(t, telephony.StatusQueued, result.Status)
	assert.InDelta(t, 0.004, result.Cost, 1e-9)
}

func TestTelnyxSendSMSError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"title":"Invalid phone number","detail":"The to number is not valid"}]}`))
	}))
	defer srv.Close()

	p := telnyxTestProvider(srv.URL)
	_, err := p.SendSMS(t.Context(), "+15551234567", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid phone number")
	assert.Equal(t, telephony.KindVendor, telephony.KindOf(err))
}

func TestTelnyxUnauthorizedIsConfigKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":[{"title":"Authentication failed"}]}`))
	}))
	defer srv.Close()

	p := telnyxTestProvider(srv.URL)
	err := p.Initialize(t.Context())
	require.Error(t, err)
	assert.Equal(t, telephony.KindConfig, telephony.KindOf(err))
}

func TestTelnyxGetMessageStatusDelivered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/messages/msg-1", r.URL.Path)
		w.Write([]byte(`{"data":{"id":"msg-1","to":[{"status":"delivered"}],"completed_at":"2026-08-29T10:00:00Z"}}`))
	}))
	defer srv.Close()

	p := telnyxTestProvider(srv.URL)
	status, err := p.GetMessageStatus(t.Context(), "msg-1")
	require.NoError(t, err)
	assert.Equal(t, telephony.StatusDelivered, status.Status)
	require.NotNil(t, status.DeliveredAt)
}

func TestTelnyxMessageHistoryUnsupported(t *testing.T) {
	p := telnyxTestProvider("http://127.0.0.1:1")
	_, err := p.GetMessageHistory(t.Context(), "+15551234567")
	require.Error(t, err)
	assert.Equal(t, telephony.KindUnsupported, telephony.KindOf(err))
}

func TestTelnyxPurchasePhoneNumber(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/available_phone_numbers", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "212", r.URL.Query().Get("filter[national_destination_code]"))
		w.Write([]byte(`{"data":[{"phone_number":"+12125550100","cost_information":{"monthly_cost":"1.10"},"features":[{"name":"voice"},{"name":"sms"}]}]}`))
	})
	mux.HandleFunc("/v2/number_orders", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "+12125550100")
		w.Write([]byte(`{"data":{"status":"success","phone_numbers":[{"phone_number":"+12125550100","status":"success"}]}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := telnyxTestProvider(srv.URL)
	num, err := p.PurchasePhoneNumber(t.Context(), "212")
	require.NoError(t, err)
	assert.Equal(t, "+12125550100", num.Number)
	assert.Equal(t, telephony.NumberActive, num.Status)
	assert.True(t, num.Capabilities.Voice)
	assert.True(t, num.Capabilities.SMS)
	assert.False(t, num.Capabilities.MMS)
	assert.InDelta(t, 1.10, num.MonthlyPrice, 1e-9)
}

func TestTelnyxReleaseUnknownNumberIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "GET", r.Method)
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	p := telnyxTestProvider(srv.URL)
	require.NoError(t, p.ReleasePhoneNumber(t.Context(), "+12125550100"))
}

func TestTelnyxMakeCallAndControl(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/calls", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"connection_id":"conn-1"`)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"call_control_id":"cc-1","is_alive":true}}`))
	})
	muted := false
	mux.HandleFunc("/v2/calls/cc-1/actions/mute", func(w http.ResponseWriter, r *http.Request) {
		muted = true
		w.Write([]byte(`{"data":{"result":"ok"}}`))
	})
	mux.HandleFunc("/v2/calls/cc-1/actions/hangup", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"result":"ok"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := telnyxTestProvider(srv.URL)
	call, err := p.MakeCall(t.Context(), "+15551234567", nil)
	require.NoError(t, err)
	assert.Equal(t, "cc-1", call.CallID)
	assert.Equal(t, telephony.CallStatusActive, call.Status)

	require.NoError(t, p.MuteCall(t.Context(), "cc-1", true))
	assert.True(t, muted)
	require.NoError(t, p.EndCall(t.Context(), "cc-1"))
}

func TestTelnyxMakeCallRequiresConnectionID(t *testing.T) {
	p := telephony.NewTelnyxProvider(telephony.Config{APIKey: "k", From: "+15550000000"})
	_, err := p.MakeCall(t.Context(), "+15551234567", nil)
	require.Error(t, err)
	assert.Equal(t, telephony.KindConfig, telephony.KindOf(err))
}

func TestTelnyxHandleIncomingCall(t *testing.T) {
	p := telnyxTestProvider("http://127.0.0.1:1")
	payload := []byte(`{"data":{"event_type":"call.initiated","payload":{"call_control_id":"cc-9","from":"+15551234567","to":"+12125550100"}}}`)
	call, err := p.HandleIncomingCall(t.Context(), payload)
	require.NoError(t, err)
	assert.Equal(t, "cc-9", call.CallID)
	assert.Equal(t, "telnyx", call.Provider)
}

func TestTelnyxImplementsInterface(t *testing.T) {
	var _ telephony.Provider = (*telephony.TelnyxProvider)(nil)
}

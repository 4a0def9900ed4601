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

func bandwidthTestProvider(baseURL string) *telephony.BandwidthProvider {
	return telephony.NewBandwidthProvider(telephony.Config{
		AccountID:     "acct-1",
		Username:      "apiuser",
		APISecret:     "apipass",
		ApplicationID: "app-1",
		SiteID:        "site-1",
		From:          "+15550000000",
		AnswerURL:     "https://gw.example.com/webhooks/bandwidth",
		BaseURL:       baseURL,
	})
}

func TestBandwidthSendSMSSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/users/acct-1/messages", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "apiuser", user)
		assert.Equal(t, "apipass", pass)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var reqBody struct {
			ApplicationID string   `json:"applicationId"`
			To            []string `json:"to"`
			From          string   `json:"from"`
			Text          string   `json:"text"`
		}
		require.NoError(t, json.Unmarshal(body, &reqBody))
		assert.Equal(t, "app-1", reqBody.ApplicationID)
		assert.Equal(t, []string{"+15551234567"}, reqBody.To)
		assert.Equal(t, "hello", reqBody.Text)

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"id":"bw-msg-1","owner":"+15550000000"}`))
	}))
	defer srv.Close()

	p := bandwidthTestProvider(srv.URL)
	result, err := p.SendSMS(t.Context(), "+15551234567", "hello")
	require.NoError(t, err)
	assert.Equal(t, "bw-msg-1", result.MessageID)
	assert.Equal(t, telephony.StatusQueued, result.Status)
}

func TestBandwidthGetMessageStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bw-msg-1", r.URL.Query().Get("messageId"))
		w.Write([]byte(`{"totalCount":1,"messages":[{"messageId":"bw-msg-1","messageStatus":"DELIVERED","receiveTime":"2026-08-29T10:00:00Z"}]}`))
	}))
	defer srv.Close()

	p := bandwidthTestProvider(srv.URL)
	status, err := p.GetMessageStatus(t.Context(), "bw-msg-1")
	require.NoError(t, err)
	assert.Equal(t, telephony.StatusDelivered, status.Status)
	require.NotNil(t, status.DeliveredAt)
}

func TestBandwidthGetMessageStatusNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalCount":0,"messages":[]}`))
	}))
	defer srv.Close()

	p := bandwidthTestProvider(srv.URL)
	_, err := p.GetMessageStatus(t.Context(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestBandwidthListPhoneNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/acct-1/inserviceNumbers", r.URL.Path)
		w.Write([]byte(`<TNs><TotalCount>2</TotalCount><TelephoneNumbers><Count>2</Count><TelephoneNumber>2125550100</TelephoneNumber><TelephoneNumber>4155550101</TelephoneNumber></TelephoneNumbers></TNs>`))
	}))
	defer srv.Close()

	p := bandwidthTestProvider(srv.URL)
	nums, err := p.ListPhoneNumbers(t.Context())
	require.NoError(t, err)
	require.Len(t, nums, 2)
	assert.Equal(t, "+12125550100", nums[0].Number)
	assert.Equal(t, "(212) 555-0100", nums[0].FormattedNumber)
	assert.Equal(t, telephony.NumberActive, nums[0].Status)
}

func TestBandwidthPurchasePhoneNumber(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/acct-1/availableNumbers", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "212", r.URL.Query().Get("areaCode"))
		w.Write([]byte(`<SearchResult><ResultCount>1</ResultCount><TelephoneNumberList><TelephoneNumber>2125550100</TelephoneNumber></TelephoneNumberList></SearchResult>`))
	})
	mux.HandleFunc("/accounts/acct-1/orders", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<TelephoneNumber>2125550100</TelephoneNumber>")
		assert.Contains(t, string(body), "<SiteId>site-1</SiteId>")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`<OrderResponse><OrderStatus>RECEIVED</OrderStatus></OrderResponse>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := bandwidthTestProvider(srv.URL)
	num, err := p.PurchasePhoneNumber(t.Context(), "212")
	require.NoError(t, err)
	assert.Equal(t, "+12125550100", num.Number)
	assert.Equal(t, telephony.NumberPending, num.Status)
}

func TestBandwidthReleaseAlreadyDisconnected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type":"error","description":"Number 2125550100 is not available to be disconnected"}`))
	}))
	defer srv.Close()

	p := bandwidthTestProvider(srv.URL)
	require.NoError(t, p.ReleasePhoneNumber(t.Context(), "+12125550100"))
}

func TestBandwidthMakeCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/acct-1/calls", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"answerUrl":"https://gw.example.com/webhooks/bandwidth"`)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"callId":"c-abc123"}`))
	}))
	defer srv.Close()

	p := bandwidthTestProvider(srv.URL)
	call, err := p.MakeCall(t.Context(), "+15551234567", nil)
	require.NoError(t, err)
	assert.Equal(t, "c-abc123", call.CallID)
	assert.Equal(t, telephony.CallStatusInitiated, call.Status)
}

func TestBandwidthMakeCallRequiresAnswerURL(t *testing.T) {
	p := telephony.NewBandwidthProvider(telephony.Config{
		AccountID: "acct-1", Username: "u", APISecret: "p", From: "+15550000000",
	})
	_, err := p.MakeCall(t.Context(), "+15551234567", nil)
	require.Error(t, err)
	assert.Equal(t, telephony.KindConfig, telephony.KindOf(err))
}

func TestBandwidthHandleIncomingCall(t *testing.T) {
	p := bandwidthTestProvider("http://127.0.0.1:1")
	payload := []byte(`{"eventType":"initiate","callId":"c-9","from":"+15551234567","to":"+12125550100"}`)
	call, err := p.HandleIncomingCall(t.Context(), payload)
	require.NoError(t, err)
	assert.Equal(t, "c-9", call.CallID)
	assert.Equal(t, "bandwidth", call.Provider)
}

func TestBandwidthImplementsInterface(t *testing.T) {
	var _ telephony.Provider = (*telephony.BandwidthProvider)(nil)
}

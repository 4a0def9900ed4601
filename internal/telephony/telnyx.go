package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const telnyxDefaultBaseURL = "https://api.telnyx.com"

// TelnyxProvider implements Provider against the Telnyx v2 API. Voice uses
// Call Control, so outbound calls require a connection_id.
type TelnyxProvider struct {
	apiKey       string
	connectionID string
	fromNumber   string
	baseURL      string
	client       http.Client
}

// NewTelnyxProvider creates a TelnyxProvider. If cfg.BaseURL is empty, the
// Telnyx production API is used.
func NewTelnyxProvider(cfg Config) *TelnyxProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = telnyxDefaultBaseURL
	}
	return &TelnyxProvider{
		apiKey:       cfg.APIKey,
		connectionID: cfg.ConnectionID,
		fromNumber:   cfg.From,
		baseURL:      baseURL,
	}
}

func (p *TelnyxProvider) Name() string { return "telnyx" }

// do performs an authenticated JSON request and returns the response body.
func (p *TelnyxProvider) do(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, wrapError("telnyx", KindVendor, err, "marshal request")
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, wrapError("telnyx", KindVendor, err, "build request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, wrapError("telnyx", KindTimeout, ctx.Err(), "request canceled")
		}
		return nil, wrapError("telnyx", KindVendor, err, "send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapError("telnyx", KindVendor, err, "read response")
	}

	if resp.StatusCode >= 300 {
		kind := KindVendor
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = KindConfig
		}
		var errResp struct {
			Errors []struct {
				Code   string `json:"code"`
				Title  string `json:"title"`
				Detail string `json:"detail"`
			} `json:"errors"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && len(errResp.Errors) > 0 {
			return nil, newError("telnyx", kind, "error %d: %s", resp.StatusCode, errResp.Errors[0].Title)
		}
		return nil, newError("telnyx", kind, "error %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// Initialize performs a minimal authenticated read so bad keys fail fast.
func (p *TelnyxProvider) Initialize(ctx context.Context) error {
	if p.apiKey == "" {
		return newError("telnyx", KindConfig, "api_key is required")
	}
	_, err := p.do(ctx, http.MethodGet, p.baseURL+"/v2/phone_numbers?page[size]=1", nil)
	return err
}

// telnyxMessage is the shared shape of send and status responses.
type telnyxMessage struct {
	Data struct {
		ID string `json:"id"`
		To []struct {
			PhoneNumber string `json:"phone_number"`
			Status      string `json:"status"`
		} `json:"to"`
		Cost *struct {
			Amount string `json:"amount"`
		} `json:"cost"`
		CompletedAt string `json:"completed_at"`
		Errors      []struct {
			Title string `json:"title"`
		} `json:"errors"`
	} `json:"data"`
}

func (m *telnyxMessage) status() string {
	if len(m.Data.To) == 0 {
		return StatusQueued
	}
	return normalizeTelnyxStatus(m.Data.To[0].Status)
}

func (m *telnyxMessage) cost() float64 {
	if m.Data.Cost == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m.Data.Cost.Amount, 64)
	if err != nil {
		return 0
	}
	return v
}

func (p *TelnyxProvider) SendSMS(ctx context.Context, to, body string) (*SendResult, error) {
	respBody, err := p.do(ctx, http.MethodPost, p.baseURL+"/v2/messages", map[string]string{
		"from": p.fromNumber,
		"to":   to,
		"text": body,
	})
	if err != nil {
		return nil, err
	}

	var parsed telnyxMessage
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, wrapError("telnyx", KindVendor, err, "parse response")
	}

	return &SendResult{
		MessageID: parsed.Data.ID,
		Status:    parsed.status(),
		Cost:      parsed.cost(),
	}, nil
}

func (p *TelnyxProvider) GetMessageStatus(ctx context.Context, messageID string) (*MessageStatus, error) {
	respBody, err := p.do(ctx, http.MethodGet, p.baseURL+"/v2/messages/"+messageID, nil)
	if err != nil {
		return nil, err
	}

	var parsed telnyxMessage
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, wrapError("telnyx", KindVendor, err, "parse response")
	}

	status := &MessageStatus{
		ID:     parsed.Data.ID,
		Status: parsed.status(),
		Cost:   parsed.cost(),
	}
	if len(parsed.Data.Errors) > 0 {
		status.Error = parsed.Data.Errors[0].Title
	}
	if status.Status == StatusDelivered && parsed.Data.CompletedAt != "" {
		if t, err := time.Parse(time.RFC3339, parsed.Data.CompletedAt); err == nil {
			status.DeliveredAt = &t
		}
	}
	return status, nil
}

// GetMessageHistory is not offered by the Telnyx API; callers fall back to
// the local store.
func (p *TelnyxProvider) GetMessageHistory(_ context.Context, _ string) ([]Message, error) {
	return nil, newError("telnyx", KindUnsupported, "message history is not available from the vendor")
}

func (p *TelnyxProvider) MakeCall(ctx context.Context, to string, opts *CallOptions) (*CallResult, error) {
	if p.connectionID == "" {
		return nil, newError("telnyx", KindConfig, "connection_id is required for voice calls")
	}
	payload := map[string]any{
		"connection_id": p.connectionID,
		"to":            to,
		"from":          p.fromNumber,
	}
	if opts != nil {
		if opts.From != "" {
			payload["from"] = opts.From
		}
		if opts.Record {
			payload["record"] = "record-from-answer"
		}
		if opts.Timeout > 0 {
			payload["timeout_secs"] = int(opts.Timeout.Seconds())
		}
	}

	respBody, err := p.do(ctx, http.MethodPost, p.baseURL+"/v2/calls", payload)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data struct {
			CallControlID string `json:"call_control_id"`
			IsAlive       bool   `json:"is_alive"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, wrapError("telnyx", KindVendor, err, "parse response")
	}

	status := CallStatusInitiated
	if parsed.Data.IsAlive {
		status = CallStatusActive
	}
	return &CallResult{
		CallID:    parsed.Data.CallControlID,
		Status:    status,
		Direction: "outbound",
	}, nil
}

func (p *TelnyxProvider) EndCall(ctx context.Context, callID string) error {
	_, err := p.do(ctx, http.MethodPost, p.baseURL+"/v2/calls/"+callID+"/actions/hangup", map[string]string{})
	return err
}

func (p *TelnyxProvider) MuteCall(ctx context.Context, callID string, muted bool) error {
	action := "mute"
	if !muted {
		action = "unmute"
	}
	_, err := p.do(ctx, http.MethodPost, p.baseURL+"/v2/calls/"+callID+"/actions/"+action, map[string]string{})
	return err
}

func (p *TelnyxProvider) ListPhoneNumbers(ctx context.Context) ([]PhoneNumber, error) {
	respBody, err := p.do(ctx, http.MethodGet, p.baseURL+"/v2/phone_numbers", nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			PhoneNumber string `json:"phone_number"`
			Status      string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, wrapError("telnyx", KindVendor, err, "parse response")
	}

	nums := make([]PhoneNumber, 0, len(parsed.Data))
	for _, n := range parsed.Data {
		status := NumberActive
		if n.Status != "" && n.Status != "active" {
			status = NumberPending
		}
		nums = append(nums, PhoneNumber{
			Number:          n.PhoneNumber,
			FormattedNumber: FormatNational(n.PhoneNumber),
			// The inventory list does not carry feature flags; Telnyx local
			// numbers are voice+SMS capable.
			Capabilities: Capabilities{Voice: true, SMS: true},
			Status:       status,
		})
	}
	return nums, nil
}

func (p *TelnyxProvider) PurchasePhoneNumber(ctx context.Context, areaCode string) (*PhoneNumber, error) {
	q := url.Values{}
	q.Set("filter[country_code]", "US")
	q.Set("filter[national_destination_code]", areaCode)
	q.Set("filter[limit]", "1")
	respBody, err := p.do(ctx, http.MethodGet, p.baseURL+"/v2/available_phone_numbers?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var search struct {
		Data []struct {
			PhoneNumber     string `json:"phone_number"`
			CostInformation struct {
				MonthlyCost string `json:"monthly_cost"`
			} `json:"cost_information"`
			Features []struct {
				Name string `json:"name"`
			} `json:"features"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &search); err != nil {
		return nil, wrapError("telnyx", KindVendor, err, "parse response")
	}
	if len(search.Data) == 0 {
		return nil, newError("telnyx", KindVendor, "no numbers available in area code %s", areaCode)
	}
	candidate := search.Data[0]

	respBody, err = p.do(ctx, http.MethodPost, p.baseURL+"/v2/number_orders", map[string]any{
		"phone_numbers": []map[string]string{{"phone_number": candidate.PhoneNumber}},
	})
	if err != nil {
		return nil, err
	}

	var order struct {
		Data struct {
			Status       string `json:"status"`
			PhoneNumbers []struct {
				PhoneNumber string `json:"phone_number"`
				Status      string `json:"status"`
			} `json:"phone_numbers"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, wrapError("telnyx", KindVendor, err, "parse response")
	}

	caps := Capabilities{}
	for _, f := range candidate.Features {
		switch f.Name {
		case "voice":
			caps.Voice = true
		case "sms":
			caps.SMS = true
		case "mms":
			caps.MMS = true
		}
	}
	status := NumberPending
	if order.Data.Status == "success" {
		status = NumberActive
	}
	monthly, _ := strconv.ParseFloat(candidate.CostInformation.MonthlyCost, 64)
	return &PhoneNumber{
		Number:          candidate.PhoneNumber,
		FormattedNumber: FormatNational(candidate.PhoneNumber),
		Capabilities:    caps,
		MonthlyPrice:    monthly,
		Status:          status,
	}, nil
}

func (p *TelnyxProvider) ReleasePhoneNumber(ctx context.Context, number string) error {
	// Deletion is by inventory id. A number absent from the inventory is
	// already released: succeed so retries are safe.
	q := url.Values{}
	q.Set("filter[phone_number]", number)
	respBody, err := p.do(ctx, http.MethodGet, p.baseURL+"/v2/phone_numbers?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return wrapError("telnyx", KindVendor, err, "parse response")
	}
	if len(parsed.Data) == 0 {
		return nil
	}

	_, err = p.do(ctx, http.MethodDelete, p.baseURL+"/v2/phone_numbers/"+parsed.Data[0].ID, nil)
	return err
}

// HandleIncomingCall parses a Telnyx Call Control event webhook.
func (p *TelnyxProvider) HandleIncomingCall(_ context.Context, payload []byte) (*IncomingCall, error) {
	var event struct {
		Data struct {
			EventType string `json:"event_type"`
			Payload   struct {
				CallControlID string `json:"call_control_id"`
				From          string `json:"from"`
				To            string `json:"to"`
			} `json:"payload"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, wrapError("telnyx", KindVendor, err, "parse webhook payload")
	}
	if event.Data.Payload.CallControlID == "" {
		return nil, newError("telnyx", KindVendor, "webhook payload missing call_control_id")
	}
	return &IncomingCall{
		CallID:     event.Data.Payload.CallControlID,
		From:       event.Data.Payload.From,
		To:         event.Data.Payload.To,
		Provider:   "telnyx",
		ReceivedAt: time.Now().UTC(),
		Raw:        payload,
	}, nil
}

// normalizeTelnyxStatus maps Telnyx message statuses onto the shared set.
func normalizeTelnyxStatus(s string) string {
	switch s {
	case "queued", "scheduled":
		return StatusQueued
	case "sending":
		return StatusSending
	case "sent", "webhook_delivered":
		return StatusSent
	case "delivered":
		return StatusDelivered
	case "sending_failed", "delivery_failed", "failed", "expired":
		return StatusFailed
	default:
		return s
	}
}

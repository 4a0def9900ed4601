package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Bandwidth splits its surface across three hosts: JSON messaging, JSON
// voice, and the XML dashboard API for number orders.
const (
	bandwidthMessagingBaseURL = "https://messages.bandwidth.com/api/v2"
	bandwidthVoiceBaseURL     = "https://voice.bandwidth.com/api/v2"
	bandwidthDashboardBaseURL = "https://dashboard.bandwidth.com/api"
)

// BandwidthProvider implements Provider against the Bandwidth APIs.
type BandwidthProvider struct {
	accountID     string
	username      string
	password      string
	applicationID string
	siteID        string
	fromNumber    string
	answerURL     string

	messagingBaseURL string
	voiceBaseURL     string
	dashboardBaseURL string
	client           http.Client
}

// NewBandwidthProvider creates a BandwidthProvider. A non-empty cfg.BaseURL
// overrides all three vendor hosts, which lets tests serve every surface
// from one httptest server.
func NewBandwidthProvider(cfg Config) *BandwidthProvider {
	p := &BandwidthProvider{
		accountID:        cfg.AccountID,
		username:         cfg.Username,
		password:         cfg.APISecret,
		applicationID:    cfg.ApplicationID,
		siteID:           cfg.SiteID,
		fromNumber:       cfg.From,
		answerURL:        cfg.AnswerURL,
		messagingBaseURL: bandwidthMessagingBaseURL,
		voiceBaseURL:     bandwidthVoiceBaseURL,
		dashboardBaseURL: bandwidthDashboardBaseURL,
	}
	if cfg.BaseURL != "" {
		p.messagingBaseURL = cfg.BaseURL
		p.voiceBaseURL = cfg.BaseURL
		p.dashboardBaseURL = cfg.BaseURL
	}
	return p
}

func (p *BandwidthProvider) Name() string { return "bandwidth" }

// do performs an authenticated request. contentType applies when body is
// non-nil ("application/json" or "application/xml").
func (p *BandwidthProvider) do(ctx context.Context, method, endpoint, contentType string, body []byte) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, wrapError("bandwidth", KindVendor, err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.SetBasicAuth(p.username, p.password)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, wrapError("bandwidth", KindTimeout, ctx.Err(), "request canceled")
		}
		return nil, wrapError("bandwidth", KindVendor, err, "send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapError("bandwidth", KindVendor, err, "read response")
	}

	if resp.StatusCode >= 300 {
		kind := KindVendor
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = KindConfig
		}
		var errResp struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Description != "" {
			return nil, newError("bandwidth", kind, "error %d: %s", resp.StatusCode, errResp.Description)
		}
		return nil, newError("bandwidth", kind, "error %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// Initialize reads the in-service number inventory to validate credentials.
func (p *BandwidthProvider) Initialize(ctx context.Context) error {
	if p.accountID == "" || p.username == "" || p.password == "" {
		return newError("bandwidth", KindConfig, "account_id, username, and api_secret are required")
	}
	_, err := p.do(ctx, http.MethodGet, p.dashboardBaseURL+"/accounts/"+p.accountID+"/inserviceNumbers", "", nil)
	return err
}

func (p *BandwidthProvider) SendSMS(ctx context.Context, to, body string) (*SendResult, error) {
	reqBody, err := json.Marshal(map[string]any{
		"applicationId": p.applicationID,
		"to":            []string{to},
		"from":          p.fromNumber,
		"text":          body,
	})
	if err != nil {
		return nil, wrapError("bandwidth", KindVendor, err, "marshal request")
	}

	respBody, err := p.do(ctx, http.MethodPost, p.messagingBaseURL+"/users/"+p.accountID+"/messages", "application/json", reqBody)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, wrapError("bandwidth", KindVendor, err, "parse response")
	}

	// The create response carries no delivery state; messages start queued
	// and progress via status callbacks.
	return &SendResult{MessageID: parsed.ID, Status: StatusQueued}, nil
}

// bandwidthMessage is one row of the messaging lookup endpoint.
type bandwidthMessage struct {
	MessageID        string `json:"messageId"`
	SourceTn         string `json:"sourceTn"`
	DestinationTn    string `json:"destinationTn"`
	MessageStatus    string `json:"messageStatus"`
	MessageDirection string `json:"messageDirection"`
	MessageText      string `json:"messageText"`
	ReceiveTime      string `json:"receiveTime"`
	ErrorCode        int    `json:"errorCode"`
}

func (p *BandwidthProvider) lookupMessages(ctx context.Context, query url.Values) ([]bandwidthMessage, error) {
	endpoint := p.messagingBaseURL + "/users/" + p.accountID + "/messages?" + query.Encode()
	respBody, err := p.do(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Messages []bandwidthMessage `json:"messages"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, wrapError("bandwidth", KindVendor, err, "parse response")
	}
	return parsed.Messages, nil
}

func (p *BandwidthProvider) GetMessageStatus(ctx context.Context, messageID string) (*MessageStatus, error) {
	q := url.Values{}
	q.Set("messageId", messageID)
	msgs, err := p.lookupMessages(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, newError("bandwidth", KindVendor, "message %s not found", messageID)
	}

	m := msgs[0]
	status := &MessageStatus{
		ID:     m.MessageID,
		Status: normalizeBandwidthStatus(m.MessageStatus),
	}
	if m.ErrorCode != 0 {
		status.Error = "error code " + strconv.Itoa(m.ErrorCode)
	}
	if status.Status == StatusDelivered && m.ReceiveTime != "" {
		if t, err := time.Parse(time.RFC3339, m.ReceiveTime); err == nil {
			status.DeliveredAt = &t
		}
	}
	return status, nil
}

func (p *BandwidthProvider) GetMessageHistory(ctx context.Context, number string) ([]Message, error) {
	q := url.Values{}
	q.Set("destinationTn", number)
	q.Set("limit", "50")
	rows, err := p.lookupMessages(ctx, q)
	if err != nil {
		return nil, err
	}

	msgs := make([]Message, 0, len(rows))
	for _, m := range rows {
		msg := Message{
			ID:        m.MessageID,
			To:        m.DestinationTn,
			From:      m.SourceTn,
			Body:      m.MessageText,
			Direction: strings.ToLower(m.MessageDirection),
			Status:    normalizeBandwidthStatus(m.MessageStatus),
		}
		if t, err := time.Parse(time.RFC3339, m.ReceiveTime); err == nil {
			msg.CreatedAt = t
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (p *BandwidthProvider) MakeCall(ctx context.Context, to string, opts *CallOptions) (*CallResult, error) {
	if p.answerURL == "" {
		return nil, newError("bandwidth", KindConfig, "answer_url is required for voice calls")
	}
	payload := map[string]any{
		"to":            to,
		"from":          p.fromNumber,
		"applicationId": p.applicationID,
		"answerUrl":     p.answerURL,
	}
	if opts != nil {
		if opts.From != "" {
			payload["from"] = opts.From
		}
		if opts.Timeout > 0 {
			payload["callTimeout"] = opts.Timeout.Seconds()
		}
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, wrapError("bandwidth", KindVendor, err, "marshal request")
	}

	respBody, err := p.do(ctx, http.MethodPost, p.voiceBaseURL+"/accounts/"+p.accountID+"/calls", "application/json", reqBody)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		CallID string `json:"callId"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, wrapError("bandwidth", KindVendor, err, "parse response")
	}

	return &CallResult{
		CallID:    parsed.CallID,
		Status:    CallStatusInitiated,
		Direction: "outbound",
	}, nil
}

func (p *BandwidthProvider) EndCall(ctx context.Context, callID string) error {
	reqBody, err := json.Marshal(map[string]string{"state": "completed"})
	if err != nil {
		return wrapError("bandwidth", KindVendor, err, "marshal request")
	}
	_, err = p.do(ctx, http.MethodPost, p.voiceBaseURL+"/accounts/"+p.accountID+"/calls/"+callID, "application/json", reqBody)
	return err
}

// MuteCall is conference-scoped in Bandwidth's API.
func (p *BandwidthProvider) MuteCall(_ context.Context, _ string, _ bool) error {
	return newError("bandwidth", KindUnsupported, "mute requires a conference member")
}

func (p *BandwidthProvider) ListPhoneNumbers(ctx context.Context) ([]PhoneNumber, error) {
	respBody, err := p.do(ctx, http.MethodGet, p.dashboardBaseURL+"/accounts/"+p.accountID+"/inserviceNumbers", "", nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		XMLName          xml.Name `xml:"TNs"`
		TelephoneNumbers struct {
			TelephoneNumber []string `xml:"TelephoneNumber"`
		} `xml:"TelephoneNumbers"`
	}
	if err := xml.Unmarshal(respBody, &parsed); err != nil {
		return nil, wrapError("bandwidth", KindVendor, err, "parse response")
	}

	nums := make([]PhoneNumber, 0, len(parsed.TelephoneNumbers.TelephoneNumber))
	for _, tn := range parsed.TelephoneNumbers.TelephoneNumber {
		e164 := bandwidthToE164(tn)
		nums = append(nums, PhoneNumber{
			Number:          e164,
			FormattedNumber: FormatNational(e164),
			Capabilities:    Capabilities{Voice: true, SMS: true, MMS: true},
			Status:          NumberActive,
		})
	}
	return nums, nil
}

func (p *BandwidthProvider) PurchasePhoneNumber(ctx context.Context, areaCode string) (*PhoneNumber, error) {
	searchURL := p.dashboardBaseURL + "/accounts/" + p.accountID + "/availableNumbers?areaCode=" + url.QueryEscape(areaCode) + "&quantity=1"
	respBody, err := p.do(ctx, http.MethodGet, searchURL, "", nil)
	if err != nil {
		return nil, err
	}

	var search struct {
		XMLName             xml.Name `xml:"SearchResult"`
		TelephoneNumberList struct {
			TelephoneNumber []string `xml:"TelephoneNumber"`
		} `xml:"TelephoneNumberList"`
	}
	if err := xml.Unmarshal(respBody, &search); err != nil {
		return nil, wrapError("bandwidth", KindVendor, err, "parse response")
	}
	if len(search.TelephoneNumberList.TelephoneNumber) == 0 {
		return nil, newError("bandwidth", KindVendor, "no numbers available in area code %s", areaCode)
	}
	tn := search.TelephoneNumberList.TelephoneNumber[0]

	order := bandwidthOrder{SiteID: p.siteID}
	order.ExistingTelephoneNumberOrderType.TelephoneNumberList.TelephoneNumber = []string{tn}
	orderBody, err := xml.Marshal(order)
	if err != nil {
		return nil, wrapError("bandwidth", KindVendor, err, "marshal request")
	}

	respBody, err = p.do(ctx, http.MethodPost, p.dashboardBaseURL+"/accounts/"+p.accountID+"/orders", "application/xml", orderBody)
	if err != nil {
		return nil, err
	}

	var placed struct {
		XMLName     xml.Name `xml:"OrderResponse"`
		OrderStatus string   `xml:"OrderStatus"`
	}
	if err := xml.Unmarshal(respBody, &placed); err != nil {
		return nil, wrapError("bandwidth", KindVendor, err, "parse response")
	}

	status := NumberPending
	if placed.OrderStatus == "COMPLETE" {
		status = NumberActive
	}
	e164 := bandwidthToE164(tn)
	return &PhoneNumber{
		Number:          e164,
		FormattedNumber: FormatNational(e164),
		Capabilities:    Capabilities{Voice: true, SMS: true, MMS: true},
		Status:          status,
	}, nil
}

func (p *BandwidthProvider) ReleasePhoneNumber(ctx context.Context, number string) error {
	// Disconnect orders for numbers not in service come back as errors with
	// "not available" detail; treat the number as already released.
	disconnect := bandwidthDisconnect{Name: "prophone release"}
	disconnect.DisconnectTelephoneNumberOrderType.TelephoneNumberList.TelephoneNumber = []string{e164ToBandwidth(number)}
	body, err := xml.Marshal(disconnect)
	if err != nil {
		return wrapError("bandwidth", KindVendor, err, "marshal request")
	}

	_, err = p.do(ctx, http.MethodPost, p.dashboardBaseURL+"/accounts/"+p.accountID+"/disconnects", "application/xml", body)
	if err != nil && strings.Contains(err.Error(), "not available") {
		return nil
	}
	return err
}

// HandleIncomingCall parses a Bandwidth voice initiate callback.
func (p *BandwidthProvider) HandleIncomingCall(_ context.Context, payload []byte) (*IncomingCall, error) {
	var event struct {
		EventType string `json:"eventType"`
		CallID    string `json:"callId"`
		From      string `json:"from"`
		To        string `json:"to"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, wrapError("bandwidth", KindVendor, err, "parse webhook payload")
	}
	if event.CallID == "" {
		return nil, newError("bandwidth", KindVendor, "webhook payload missing callId")
	}
	return &IncomingCall{
		CallID:     event.CallID,
		From:       event.From,
		To:         event.To,
		Provider:   "bandwidth",
		ReceivedAt: time.Now().UTC(),
		Raw:        payload,
	}, nil
}

// bandwidthOrder is the dashboard API order envelope for claiming a searched
// number.
type bandwidthOrder struct {
	XMLName                          xml.Name `xml:"Order"`
	SiteID                           string   `xml:"SiteId,omitempty"`
	ExistingTelephoneNumberOrderType struct {
		TelephoneNumberList struct {
			TelephoneNumber []string `xml:"TelephoneNumber"`
		} `xml:"TelephoneNumberList"`
	} `xml:"ExistingTelephoneNumberOrderType"`
}

type bandwidthDisconnect struct {
	XMLName                            xml.Name `xml:"DisconnectTelephoneNumberOrder"`
	Name                               string   `xml:"name,omitempty"`
	DisconnectTelephoneNumberOrderType struct {
		TelephoneNumberList struct {
			TelephoneNumber []string `xml:"TelephoneNumber"`
		} `xml:"TelephoneNumberList"`
	} `xml:"DisconnectTelephoneNumberOrderType"`
}

// bandwidthToE164 converts the dashboard API's bare 10-digit form.
func bandwidthToE164(tn string) string {
	if strings.HasPrefix(tn, "+") {
		return tn
	}
	if len(tn) == 10 {
		return "+1" + tn
	}
	return "+" + tn
}

func e164ToBandwidth(number string) string {
	return strings.TrimPrefix(strings.TrimPrefix(number, "+1"), "+")
}

func normalizeBandwidthStatus(s string) string {
	switch strings.ToUpper(s) {
	case "RECEIVED", "QUEUED", "ACCEPTED":
		return StatusQueued
	case "SENDING":
		return StatusSending
	case "SENT":
		return StatusSent
	case "DELIVERED":
		return StatusDelivered
	case "FAILED", "DELIVERY_FAILED", "EXPIRED":
		return StatusFailed
	default:
		return strings.ToLower(s)
	}
}

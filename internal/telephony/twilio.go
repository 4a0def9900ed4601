package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const twilioDefaultBaseURL = "https://api.twilio.com"

// twilioTime is the RFC 2822 variant Twilio uses for timestamps.
const twilioTime = "Mon, 02 Jan 2006 15:04:05 -0700"

// TwilioProvider implements Provider against the Twilio REST API.
type TwilioProvider struct {
	accountSID string
	authToken  string
	fromNumber string
	answerURL  string
	baseURL    string
	client     http.Client
}

// NewTwilioProvider creates a TwilioProvider. If cfg.BaseURL is empty, the
// Twilio production API is used (tests pass an httptest server URL).
func NewTwilioProvider(cfg Config) *TwilioProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = twilioDefaultBaseURL
	}
	return &TwilioProvider{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.From,
		answerURL:  cfg.AnswerURL,
		baseURL:    baseURL,
	}
}

func (p *TwilioProvider) Name() string { return "twilio" }

// accountURL builds an API path under the account subresource.
func (p *TwilioProvider) accountURL(resource string) string {
	return fmt.Sprintf("%s/2010-04-01/Accounts/%s%s", p.baseURL, p.accountSID, resource)
}

// do performs an authenticated request and returns the response body.
// Status codes >= 300 become classified errors with Twilio's error detail.
func (p *TwilioProvider) do(ctx context.Context, method, endpoint string, form url.Values) ([]byte, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, wrapError("twilio", KindVendor, err, "build request")
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, wrapError("twilio", KindTimeout, ctx.Err(), "request canceled")
		}
		return nil, wrapError("twilio", KindVendor, err, "send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapError("twilio", KindVendor, err, "read response")
	}

	if resp.StatusCode >= 300 {
		kind := KindVendor
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = KindConfig
		}
		var errResp struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
			return nil, newError("twilio", kind, "error %d: %s", errResp.Code, errResp.Message)
		}
		return nil, newError("twilio", kind, "error %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// Initialize fetches the account resource to validate credentials, failing
// fast with a config error when Twilio rejects them.
func (p *TwilioProvider) Initialize(ctx context.Context) error {
	if p.accountSID == "" || p.authToken == "" {
		return newError("twilio", KindConfig, "account_sid and auth_token are required")
	}
	_, err := p.do(ctx, http.MethodGet, p.accountURL(".json"), nil)
	return err
}

func (p *TwilioProvider) SendSMS(ctx context.Context, to, body string) (*SendResult, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", p.fromNumber)
	form.Set("Body", body)

	respBody, err := p.do(ctx, http.MethodPost, p.accountURL("/Messages.json"), form)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, wrapError("twilio", KindVendor, err, "parse response")
	}

	return &SendResult{
		MessageID: parsed.SID,
		Status:    normalizeTwilioStatus(parsed.Status),
		Cost:      twilioPrice(parsed.Price),
	}, nil
}

func (p *TwilioProvider) GetMessageStatus(ctx context.Context, messageID string) (*MessageStatus, error) {
	respBody, err := p.do(ctx, http.MethodGet, p.accountURL("/Messages/"+messageID+".json"), nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		SID          string `json:"sid"`
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
		DateSent     string `json:"date_sent"`
		Price        string `json:"price"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, wrapError("twilio", KindVendor, err, "parse response")
	}

	status := &MessageStatus{
		ID:     parsed.SID,
		Status: normalizeTwilioStatus(parsed.Status),
		Error:  parsed.ErrorMessage,
		Cost:   twilioPrice(parsed.Price),
	}
	if status.Status == StatusDelivered && parsed.DateSent != "" {
		if t, err := time.Parse(twilioTime, parsed.DateSent); err == nil {
			status.DeliveredAt = &t
		}
	}
	return status, nil
}

func (p *TwilioProvider) GetMessageHistory(ctx context.Context, number string) ([]Message, error) {
	endpoint := p.accountURL("/Messages.json") + "?To=" + url.QueryEscape(number) + "&PageSize=50"
	respBody, err := p.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Messages []struct {
			SID       string `json:"sid"`
			To        string `json:"to"`
			From      string `json:"from"`
			Body      string `json:"body"`
			Status    string `json:"status"`
			Direction string `json:"direction"`
			DateSent  string `json:"date_sent"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, wrapError("twilio", KindVendor, err, "parse response")
	}

	msgs := make([]Message, 0, len(parsed.Messages))
	for _, m := range parsed.Messages {
		msg := Message{
			ID:        m.SID,
			To:        m.To,
			From:      m.From,
			Body:      m.Body,
			Direction: m.Direction,
			Status:    normalizeTwilioStatus(m.Status),
		}
		if t, err := time.Parse(twilioTime, m.DateSent); err == nil {
			msg.CreatedAt = t
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (p *TwilioProvider) MakeCall(ctx context.Context, to string, opts *CallOptions) (*CallResult, error) {
	form := url.Values{}
	form.Set("To", to)
	from := p.fromNumber
	if opts != nil && opts.From != "" {
		from = opts.From
	}
	form.Set("From", from)
	if p.answerURL != "" {
		form.Set("Url", p.answerURL)
	} else {
		// No answer webhook configured: hold the call open so the far end
		// is not dropped the moment it answers.
		form.Set("Twiml", `<Response><Pause length="600"/></Response>`)
	}
	if opts != nil {
		if opts.Record {
			form.Set("Record", "true")
		}
		if opts.Timeout > 0 {
			form.Set("Timeout", strconv.Itoa(int(opts.Timeout.Seconds())))
		}
	}

	respBody, err := p.do(ctx, http.MethodPost, p.accountURL("/Calls.json"), form)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		SID       string `json:"sid"`
		Status    string `json:"status"`
		Direction string `json:"direction"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, wrapError("twilio", KindVendor, err, "parse response")
	}

	return &CallResult{
		CallID:    parsed.SID,
		Status:    normalizeTwilioCallStatus(parsed.Status),
		Direction: parsed.Direction,
	}, nil
}

func (p *TwilioProvider) EndCall(ctx context.Context, callID string) error {
	form := url.Values{}
	form.Set("Status", "completed")
	_, err := p.do(ctx, http.MethodPost, p.accountURL("/Calls/"+callID+".json"), form)
	return err
}

// MuteCall is conference-scoped in Twilio's API; a bare call leg cannot be
// muted over REST.
func (p *TwilioProvider) MuteCall(_ context.Context, _ string, _ bool) error {
	return newError("twilio", KindUnsupported, "mute requires a conference participant")
}

func (p *TwilioProvider) ListPhoneNumbers(ctx context.Context) ([]PhoneNumber, error) {
	respBody, err := p.do(ctx, http.MethodGet, p.accountURL("/IncomingPhoneNumbers.json"), nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		IncomingPhoneNumbers []twilioNumber `json:"incoming_phone_numbers"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, wrapError("twilio", KindVendor, err, "parse response")
	}

	nums := make([]PhoneNumber, 0, len(parsed.IncomingPhoneNumbers))
	for _, n := range parsed.IncomingPhoneNumbers {
		nums = append(nums, n.toPhoneNumber())
	}
	return nums, nil
}

func (p *TwilioProvider) PurchasePhoneNumber(ctx context.Context, areaCode string) (*PhoneNumber, error) {
	// Search, then provision the first candidate.
	searchURL := p.accountURL("/AvailablePhoneNumbers/US/Local.json") + "?AreaCode=" + url.QueryEscape(areaCode) + "&PageSize=1"
	respBody, err := p.do(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}

	var search struct {
		AvailablePhoneNumbers []struct {
			PhoneNumber string `json:"phone_number"`
		} `json:"available_phone_numbers"`
	}
	if err := json.Unmarshal(respBody, &search); err != nil {
		return nil, wrapError("twilio", KindVendor, err, "parse response")
	}
	if len(search.AvailablePhoneNumbers) == 0 {
		return nil, newError("twilio", KindVendor, "no numbers available in area code %s", areaCode)
	}

	form := url.Values{}
	form.Set("PhoneNumber", search.AvailablePhoneNumbers[0].PhoneNumber)
	respBody, err = p.do(ctx, http.MethodPost, p.accountURL("/IncomingPhoneNumbers.json"), form)
	if err != nil {
		return nil, err
	}

	var bought twilioNumber
	if err := json.Unmarshal(respBody, &bought); err != nil {
		return nil, wrapError("twilio", KindVendor, err, "parse response")
	}
	num := bought.toPhoneNumber()
	return &num, nil
}

func (p *TwilioProvider) ReleasePhoneNumber(ctx context.Context, number string) error {
	// Twilio deletes by SID, so resolve the number first. An unknown number
	// means it is already gone: succeed so retries are safe.
	lookupURL := p.accountURL("/IncomingPhoneNumbers.json") + "?PhoneNumber=" + url.QueryEscape(number)
	respBody, err := p.do(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return err
	}

	var parsed struct {
		IncomingPhoneNumbers []twilioNumber `json:"incoming_phone_numbers"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return wrapError("twilio", KindVendor, err, "parse response")
	}
	if len(parsed.IncomingPhoneNumbers) == 0 {
		return nil
	}

	_, err = p.do(ctx, http.MethodDelete, p.accountURL("/IncomingPhoneNumbers/"+parsed.IncomingPhoneNumbers[0].SID+".json"), nil)
	var te *Error
	if err != nil && errors.As(err, &te) && strings.Contains(te.Message, "error 404") {
		return nil
	}
	return err
}

// HandleIncomingCall parses Twilio's form-encoded voice webhook.
func (p *TwilioProvider) HandleIncomingCall(_ context.Context, payload []byte) (*IncomingCall, error) {
	vals, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, wrapError("twilio", KindVendor, err, "parse webhook payload")
	}
	callSID := vals.Get("CallSid")
	if callSID == "" {
		return nil, newError("twilio", KindVendor, "webhook payload missing CallSid")
	}
	return &IncomingCall{
		CallID:     callSID,
		From:       vals.Get("From"),
		To:         vals.Get("To"),
		Provider:   "twilio",
		ReceivedAt: time.Now().UTC(),
		Raw:        payload,
	}, nil
}

// twilioNumber is the IncomingPhoneNumbers resource shape shared by list,
// lookup, and provision responses.
type twilioNumber struct {
	SID          string `json:"sid"`
	PhoneNumber  string `json:"phone_number"`
	Status       string `json:"status"`
	Capabilities struct {
		Voice bool `json:"voice"`
		SMS   bool `json:"SMS"`
		MMS   bool `json:"MMS"`
	} `json:"capabilities"`
}

func (n twilioNumber) toPhoneNumber() PhoneNumber {
	status := NumberActive
	if n.Status != "" && n.Status != "in-use" {
		status = NumberPending
	}
	return PhoneNumber{
		Number:          n.PhoneNumber,
		FormattedNumber: FormatNational(n.PhoneNumber),
		Capabilities: Capabilities{
			Voice: n.Capabilities.Voice,
			SMS:   n.Capabilities.SMS,
			MMS:   n.Capabilities.MMS,
		},
		Status: status,
	}
}

// normalizeTwilioStatus maps Twilio message statuses onto the shared set.
func normalizeTwilioStatus(s string) string {
	switch s {
	case "accepted", "queued", "scheduled":
		return StatusQueued
	case "sending":
		return StatusSending
	case "sent":
		return StatusSent
	case "delivered", "read":
		return StatusDelivered
	case "failed", "undelivered", "canceled":
		return StatusFailed
	default:
		return s
	}
}

func normalizeTwilioCallStatus(s string) string {
	switch s {
	case "queued", "initiated":
		return CallStatusInitiated
	case "ringing":
		return CallStatusRinging
	case "in-progress":
		return CallStatusActive
	case "completed":
		return CallStatusCompleted
	case "busy", "failed", "no-answer", "canceled":
		return CallStatusFailed
	default:
		return s
	}
}

// twilioPrice parses Twilio's stringly-typed price field ("-0.00750").
// Costs are reported as positive amounts.
func twilioPrice(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimPrefix(s, "-"), 64)
	if err != nil {
		return 0
	}
	return v
}

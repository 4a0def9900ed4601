package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// CaptureProvider is a full in-memory Provider used by integration tests.
// It records every send and call, and owns a number inventory so
// purchase → list → release round-trips hold without a vendor.
type CaptureProvider struct {
	mu sync.Mutex

	InitErr error // returned by Initialize when set
	SendErr error // returned by SendSMS when set

	Sends    []CaptureSend
	Calls    map[string]string // call ID → status
	numbers  map[string]PhoneNumber
	messages map[string]Message
	seq      int
}

// CaptureSend records a single SendSMS invocation.
type CaptureSend struct {
	To   string
	Body string
}

// NewCaptureProvider creates an empty CaptureProvider.
func NewCaptureProvider() *CaptureProvider {
	return &CaptureProvider{
		Calls:    make(map[string]string),
		numbers:  make(map[string]PhoneNumber),
		messages: make(map[string]Message),
	}
}

func (c *CaptureProvider) Name() string { return "capture" }

func (c *CaptureProvider) Initialize(_ context.Context) error { return c.InitErr }

func (c *CaptureProvider) SendSMS(_ context.Context, to, body string) (*SendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return nil, c.SendErr
	}
	c.Sends = append(c.Sends, CaptureSend{To: to, Body: body})
	c.seq++
	id := fmt.Sprintf("cap-msg-%d", c.seq)
	c.messages[id] = Message{
		ID: id, To: to, Body: body, Direction: "outbound",
		Status: StatusSent, CreatedAt: time.Now().UTC(),
	}
	return &SendResult{MessageID: id, Status: StatusQueued}, nil
}

func (c *CaptureProvider) MakeCall(_ context.Context, to string, _ *CallOptions) (*CallResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	id := fmt.Sprintf("cap-call-%d", c.seq)
	c.Calls[id] = CallStatusActive
	_ = to
	return &CallResult{CallID: id, Status: CallStatusActive, Direction: "outbound"}, nil
}

func (c *CaptureProvider) EndCall(_ context.Context, callID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.Calls[callID]; !ok {
		return newError("capture", KindVendor, "unknown call %s", callID)
	}
	c.Calls[callID] = CallStatusCompleted
	return nil
}

func (c *CaptureProvider) MuteCall(_ context.Context, callID string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, ok := c.Calls[callID]; !ok || status != CallStatusActive {
		return newError("capture", KindState, "call %s is not active", callID)
	}
	return nil
}

func (c *CaptureProvider) ListPhoneNumbers(_ context.Context) ([]PhoneNumber, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	nums := make([]PhoneNumber, 0, len(c.numbers))
	for _, n := range c.numbers {
		if n.Status == NumberActive {
			nums = append(nums, n)
		}
	}
	return nums, nil
}

func (c *CaptureProvider) PurchasePhoneNumber(_ context.Context, areaCode string) (*PhoneNumber, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	e164 := fmt.Sprintf("+1%s555%04d", areaCode, c.seq)
	num := PhoneNumber{
		Number:          e164,
		FormattedNumber: FormatNational(e164),
		Capabilities:    Capabilities{Voice: true, SMS: true, MMS: true},
		MonthlyPrice:    1.00,
		Status:          NumberActive,
	}
	c.numbers[e164] = num
	return &num, nil
}

func (c *CaptureProvider) ReleasePhoneNumber(_ context.Context, number string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.numbers[number]
	if !ok {
		return nil // already released
	}
	n.Status = NumberReleased
	c.numbers[number] = n
	return nil
}

func (c *CaptureProvider) HandleIncomingCall(_ context.Context, payload []byte) (*IncomingCall, error) {
	var event struct {
		CallID string `json:"call_id"`
		From   string `json:"from"`
		To     string `json:"to"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, wrapError("capture", KindVendor, err, "parse webhook payload")
	}
	c.mu.Lock()
	c.Calls[event.CallID] = CallStatusRinging
	c.mu.Unlock()
	return &IncomingCall{
		CallID:     event.CallID,
		From:       event.From,
		To:         event.To,
		Provider:   "capture",
		ReceivedAt: time.Now().UTC(),
		Raw:        payload,
	}, nil
}

func (c *CaptureProvider) GetMessageStatus(_ context.Context, messageID string) (*MessageStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.messages[messageID]
	if !ok {
		return nil, newError("capture", KindVendor, "message %s not found", messageID)
	}
	return &MessageStatus{ID: m.ID, Status: m.Status}, nil
}

func (c *CaptureProvider) GetMessageHistory(_ context.Context, number string) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var msgs []Message
	for _, m := range c.messages {
		if m.To == number {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

// Reset clears all recorded activity.
func (c *CaptureProvider) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sends = nil
	c.Calls = make(map[string]string)
	c.numbers = make(map[string]PhoneNumber)
	c.messages = make(map[string]Message)
}

// Package telephony defines the provider contract for SMS/voice vendors and
// the concrete adapters (Twilio, Telnyx, Bandwidth, SNS) that implement it.
// UI-facing code never talks to a vendor directly; it goes through a Session,
// which owns the active Provider instance.
package telephony

import (
	"context"
	"time"
)

// Message and call statuses reported by providers, normalized across vendors.
const (
	StatusQueued    = "queued"
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"

	CallStatusInitiated = "initiated"
	CallStatusRinging   = "ringing"
	CallStatusActive    = "active"
	CallStatusCompleted = "completed"
	CallStatusFailed    = "failed"

	NumberActive   = "active"
	NumberPending  = "pending"
	NumberReleased = "released"
)

// Config holds vendor credentials. Each adapter validates the fields it
// needs at Initialize time; unused fields are ignored.
type Config struct {
	AccountSID    string `json:"account_sid,omitempty" toml:"account_sid"`       // Twilio
	APIKey        string `json:"api_key,omitempty" toml:"api_key"`               // Telnyx
	APISecret     string `json:"api_secret,omitempty" toml:"api_secret"`         // Bandwidth password
	AccountID     string `json:"account_id,omitempty" toml:"account_id"`         // Bandwidth
	Username      string `json:"username,omitempty" toml:"username"`             // Bandwidth
	AuthToken     string `json:"auth_token,omitempty" toml:"auth_token"`         // Twilio
	ApplicationID string `json:"application_id,omitempty" toml:"application_id"` // Bandwidth messaging
	ConnectionID  string `json:"connection_id,omitempty" toml:"connection_id"`   // Telnyx call control
	SiteID        string `json:"site_id,omitempty" toml:"site_id"`               // Bandwidth number orders
	Region        string `json:"region,omitempty" toml:"region"`                 // SNS
	PublicKey     string `json:"public_key,omitempty" toml:"public_key"`         // Telnyx webhook signing key (base64)
	From          string `json:"from,omitempty" toml:"from"`                     // default caller/sender
	AnswerURL     string `json:"answer_url,omitempty" toml:"answer_url"`         // voice webhook for outbound calls

	// BaseURL overrides the vendor API endpoint. Empty means production.
	// Tests point this at an httptest server.
	BaseURL string `json:"base_url,omitempty" toml:"base_url"`
}

// SendResult is the outcome of a single SendSMS call. Not persisted by
// adapters; the Session records it in the local store.
type SendResult struct {
	MessageID string  `json:"message_id"`
	Status    string  `json:"status"`
	Cost      float64 `json:"cost,omitempty"`
}

// CallOptions tunes an outbound call.
type CallOptions struct {
	From       string        `json:"from,omitempty"`       // caller ID override
	Record     bool          `json:"record,omitempty"`     // record the call
	Transcribe bool          `json:"transcribe,omitempty"` // transcribe the recording
	Timeout    time.Duration `json:"timeout,omitempty"`    // ring timeout
}

// CallResult is the outcome of a MakeCall.
type CallResult struct {
	CallID    string `json:"call_id"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
}

// Capabilities describes what a phone number can do.
type Capabilities struct {
	Voice bool `json:"voice"`
	SMS   bool `json:"sms"`
	MMS   bool `json:"mms"`
}

// PhoneNumber is a number owned by (or offered to) the account.
// Number is E.164; FormattedNumber is the US display form. Both are always
// populated together.
type PhoneNumber struct {
	Number          string       `json:"number"`
	FormattedNumber string       `json:"formatted_number"`
	Capabilities    Capabilities `json:"capabilities"`
	MonthlyPrice    float64      `json:"monthly_price"`
	Status          string       `json:"status"`
}

// MessageStatus is the live delivery state of a previously sent message.
type MessageStatus struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	Cost        float64    `json:"cost,omitempty"`
}

// Message is one row of message history.
type Message struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	From      string    `json:"from,omitempty"`
	Body      string    `json:"body"`
	Direction string    `json:"direction"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// IncomingCall is the normalized shape of a vendor inbound-call webhook.
// Raw preserves the untouched vendor payload for vendor-specific routing.
type IncomingCall struct {
	CallID     string    `json:"call_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Provider   string    `json:"provider"`
	ReceivedAt time.Time `json:"received_at"`
	Raw        []byte    `json:"-"`
}

// Provider is the capability set every telephony backend must satisfy.
// All methods honor context cancellation and return vendor-prefixed errors
// classified by Kind (see errors.go).
type Provider interface {
	// Name returns the provider type tag ("twilio", "telnyx", ...).
	Name() string

	// Initialize validates credentials against the vendor and must fail
	// fast with a config-kind error when they are rejected.
	Initialize(ctx context.Context) error

	// SendSMS queues one outbound message. to must be E.164.
	SendSMS(ctx context.Context, to, body string) (*SendResult, error)

	// MakeCall initiates an outbound call. opts may be nil.
	MakeCall(ctx context.Context, to string, opts *CallOptions) (*CallResult, error)

	// EndCall hangs up an active call.
	EndCall(ctx context.Context, callID string) error

	// MuteCall mutes or unmutes an active call. Vendors whose API scopes
	// mute to conferences return an unsupported-kind error.
	MuteCall(ctx context.Context, callID string, muted bool) error

	// ListPhoneNumbers returns the numbers owned by the account. Idempotent.
	ListPhoneNumbers(ctx context.Context) ([]PhoneNumber, error)

	// PurchasePhoneNumber buys one number in the given 3-digit area code.
	// Callers validate the area code before invoking the adapter.
	PurchasePhoneNumber(ctx context.Context, areaCode string) (*PhoneNumber, error)

	// ReleasePhoneNumber releases an owned number. Releasing a number the
	// account no longer owns succeeds, so retries are safe.
	ReleasePhoneNumber(ctx context.Context, number string) error

	// HandleIncomingCall interprets a raw vendor webhook payload for an
	// inbound call. The payload is delivered untouched by the webhook
	// receiver.
	HandleIncomingCall(ctx context.Context, payload []byte) (*IncomingCall, error)

	// GetMessageStatus reports the delivery state of a sent message. Idempotent.
	GetMessageStatus(ctx context.Context, messageID string) (*MessageStatus, error)

	// GetMessageHistory lists messages sent to a number, newest first.
	// Vendors without a list endpoint return an unsupported-kind error and
	// the Session falls back to the local store.
	GetMessageHistory(ctx context.Context, number string) ([]Message, error)
}

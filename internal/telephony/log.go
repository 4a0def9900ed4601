package telephony

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogProvider logs sends and calls instead of delivering them. It is the
// default backend in development, so a fresh install works without vendor
// credentials.
type LogProvider struct {
	logger *slog.Logger
}

// NewLogProvider creates a LogProvider. If logger is nil, slog.Default() is used.
func NewLogProvider(logger *slog.Logger) *LogProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProvider{logger: logger}
}

func (p *LogProvider) Name() string { return "log" }

func (p *LogProvider) Initialize(_ context.Context) error { return nil }

func (p *LogProvider) SendSMS(_ context.Context, to, body string) (*SendResult, error) {
	id := uuid.NewString()
	p.logger.Info("telephony.LogProvider send", "to", to, "body", body, "message_id", id)
	return &SendResult{MessageID: id, Status: StatusSent}, nil
}

func (p *LogProvider) MakeCall(_ context.Context, to string, _ *CallOptions) (*CallResult, error) {
	id := uuid.NewString()
	p.logger.Info("telephony.LogProvider call", "to", to, "call_id", id)
	return &CallResult{CallID: id, Status: CallStatusInitiated, Direction: "outbound"}, nil
}

func (p *LogProvider) EndCall(_ context.Context, callID string) error {
	p.logger.Info("telephony.LogProvider end call", "call_id", callID)
	return nil
}

func (p *LogProvider) MuteCall(_ context.Context, callID string, muted bool) error {
	p.logger.Info("telephony.LogProvider mute call", "call_id", callID, "muted", muted)
	return nil
}

func (p *LogProvider) ListPhoneNumbers(_ context.Context) ([]PhoneNumber, error) {
	return []PhoneNumber{}, nil
}

func (p *LogProvider) PurchasePhoneNumber(_ context.Context, _ string) (*PhoneNumber, error) {
	return nil, newError("log", KindUnsupported, "number purchase requires a vendor provider")
}

func (p *LogProvider) ReleasePhoneNumber(_ context.Context, _ string) error {
	return nil
}

func (p *LogProvider) HandleIncomingCall(_ context.Context, payload []byte) (*IncomingCall, error) {
	p.logger.Info("telephony.LogProvider incoming call", "payload_bytes", len(payload))
	return nil, newError("log", KindUnsupported, "inbound routing requires a vendor provider")
}

func (p *LogProvider) GetMessageStatus(_ context.Context, messageID string) (*MessageStatus, error) {
	return &MessageStatus{ID: messageID, Status: StatusSent}, nil
}

func (p *LogProvider) GetMessageHistory(_ context.Context, _ string) ([]Message, error) {
	return nil, newError("log", KindUnsupported, "message history is kept in the local store")
}

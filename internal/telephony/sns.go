package telephony

import (
	"context"
)

// SNSPublisher abstracts the AWS SNS Publish call for testability.
type SNSPublisher interface {
	Publish(ctx context.Context, phoneNumber, message string) (messageID string, err error)
}

// SNSProvider sends SMS via AWS SNS. SNS is a send-only channel: it owns no
// numbers and carries no voice, so every other capability reports
// unsupported and the Session serves reads from the local store.
type SNSProvider struct {
	publisher SNSPublisher
}

// NewSNSProvider creates an SNSProvider with the given publisher.
func NewSNSProvider(publisher SNSPublisher) *SNSProvider {
	return &SNSProvider{publisher: publisher}
}

func (p *SNSProvider) Name() string { return "sns" }

func (p *SNSProvider) Initialize(_ context.Context) error {
	if p.publisher == nil {
		return newError("sns", KindConfig, "publisher is not configured")
	}
	return nil
}

func (p *SNSProvider) SendSMS(ctx context.Context, to, body string) (*SendResult, error) {
	messageID, err := p.publisher.Publish(ctx, to, body)
	if err != nil {
		return nil, wrapError("sns", KindVendor, err, "publish")
	}
	return &SendResult{MessageID: messageID, Status: StatusSent}, nil
}

func (p *SNSProvider) unsupported(op string) error {
	return newError("sns", KindUnsupported, "%s is not available on the SNS channel", op)
}

func (p *SNSProvider) MakeCall(_ context.Context, _ string, _ *CallOptions) (*CallResult, error) {
	return nil, p.unsupported("voice calling")
}

func (p *SNSProvider) EndCall(_ context.Context, _ string) error {
	return p.unsupported("voice calling")
}

func (p *SNSProvider) MuteCall(_ context.Context, _ string, _ bool) error {
	return p.unsupported("voice calling")
}

func (p *SNSProvider) ListPhoneNumbers(_ context.Context) ([]PhoneNumber, error) {
	return nil, p.unsupported("number management")
}

func (p *SNSProvider) PurchasePhoneNumber(_ context.Context, _ string) (*PhoneNumber, error) {
	return nil, p.unsupported("number management")
}

func (p *SNSProvider) ReleasePhoneNumber(_ context.Context, _ string) error {
	return p.unsupported("number management")
}

func (p *SNSProvider) HandleIncomingCall(_ context.Context, _ []byte) (*IncomingCall, error) {
	return nil, p.unsupported("inbound calling")
}

func (p *SNSProvider) GetMessageStatus(_ context.Context, _ string) (*MessageStatus, error) {
	return nil, p.unsupported("message status")
}

func (p *SNSProvider) GetMessageHistory(_ context.Context, _ string) ([]Message, error) {
	return nil, p.unsupported("message history")
}

package telephony_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophone/prophone/internal/telephony"
)

// mockSNSPublisher implements telephony.SNSPublisher for testing.
type mockSNSPublisher struct {
	publishFunc func(ctx context.Context, phoneNumber, message string) (string, error)
}

func (m *mockSNSPublisher) Publish(ctx context.Context, phoneNumber, message string) (string, error) {
	return m.publishFunc(ctx, phoneNumber, message)
}

func TestSNSSendSMSSuccess(t *testing.T) {
	mock := &mockSNSPublisher{
		publishFunc: func(ctx context.Context, phoneNumber, message string) (string, error) {
			assert.Equal(t, "+15551234567", phoneNumber)
			assert.Equal(t, "hello from prophone", message)
			return "sns-msg-id-abc", nil
		},
	}

	p := telephony.NewSNSProvider(mock)
	result, err := p.SendSMS(t.Context(), "+15551234567", "hello from prophone")
	require.NoError(t, err)
	assert.Equal(t, "sns-msg-id-abc", result.MessageID)
	assert.Equal(t, telephony.StatusSent, result.Status)
}

func TestSNSSendSMSError(t *testing.T) {
	mock := &mockSNSPublisher{
		publishFunc: func(ctx context.Context, phoneNumber, message string) (string, error) {
			return "", fmt.Errorf("AccessDeniedException: not authorized")
		},
	}

	p := telephony.NewSNSProvider(mock)
	_, err := p.SendSMS(t.Context(), "+15551234567", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sns: publish:")
	assert.Contains(t, err.Error(), "AccessDeniedException")
}

func TestSNSVoiceAndNumbersUnsupported(t *testing.T) {
	p := telephony.NewSNSProvider(&mockSNSPublisher{})

	_, err := p.MakeCall(t.Context(), "+15551234567", nil)
	assert.Equal(t, telephony.KindUnsupported, telephony.KindOf(err))

	_, err = p.PurchasePhoneNumber(t.Context(), "212")
	assert.Equal(t, telephony.KindUnsupported, telephony.KindOf(err))

	_, err = p.ListPhoneNumbers(t.Context())
	assert.Equal(t, telephony.KindUnsupported, telephony.KindOf(err))
}

func TestSNSInitializeWithoutPublisher(t *testing.T) {
	p := telephony.NewSNSProvider(nil)
	err := p.Initialize(t.Context())
	require.Error(t, err)
	assert.Equal(t, telephony.KindConfig, telephony.KindOf(err))
}

func TestSNSImplementsInterface(t *testing.T) {
	var _ telephony.Provider = (*telephony.SNSProvider)(nil)
}

package telephony

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prophone/prophone/internal/testutil"
)

func TestErrorMessageCarriesProviderPrefix(t *testing.T) {
	t.Parallel()
	err := newError("twilio", KindVendor, "error %d: %s", 21211, "invalid To")
	testutil.Equal(t, "twilio: error 21211: invalid To", err.Error())
}

func TestKindOf(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want Kind
	}{
		{newError("telnyx", KindConfig, "bad key"), KindConfig},
		{newError("sns", KindUnsupported, "nope"), KindUnsupported},
		{fmt.Errorf("wrapped: %w", newError("twilio", KindValidation, "bad input")), KindValidation},
		{ErrNotInitialized, KindState},
		{ErrInvalidAreaCode, KindValidation},
		{ErrInvalidPhoneNumber, KindValidation},
		{context.DeadlineExceeded, KindTimeout},
		{errors.New("mystery"), KindVendor},
	}
	for _, c := range cases {
		testutil.Equal(t, c.want, KindOf(c.err))
	}
	testutil.Equal(t, Kind(""), KindOf(nil))
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	testutil.True(t, IsRetryable(newError("twilio", KindVendor, "error 503")), "vendor errors retry")
	testutil.True(t, IsRetryable(context.DeadlineExceeded), "timeouts retry")
	testutil.False(t, IsRetryable(newError("twilio", KindValidation, "bad")), "validation never retries")
	testutil.False(t, IsRetryable(newError("twilio", KindConfig, "bad")), "config never retries")
	testutil.False(t, IsRetryable(ErrNotInitialized), "state never retries")
	testutil.False(t, IsRetryable(newError("sns", KindUnsupported, "no")), "unsupported never retries")
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()
	inner := errors.New("connection reset")
	err := wrapError("bandwidth", KindVendor, inner, "send request")
	testutil.True(t, errors.Is(err, inner), "wrapped error should unwrap")
	testutil.ErrorContains(t, err, "bandwidth: send request: connection reset")
}

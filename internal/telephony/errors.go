package telephony

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies provider errors into the categories callers act on,
// instead of leaking raw vendor strings to the UI.
type Kind string

const (
	KindConfig      Kind = "config"      // missing/invalid credentials
	KindValidation  Kind = "validation"  // malformed input, caught before any network call
	KindVendor      Kind = "vendor"      // any failure from the underlying API
	KindState       Kind = "state"       // operation called in the wrong session state
	KindTimeout     Kind = "timeout"     // vendor call exceeded its deadline
	KindUnsupported Kind = "unsupported" // operation not offered by this vendor
)

// ErrNotInitialized is returned by every Session operation before a
// successful Initialize. The text is load-bearing: clients match on it.
var ErrNotInitialized = errors.New("Phone provider not initialized")

// ErrInvalidAreaCode is returned when an area code is not exactly 3 digits.
var ErrInvalidAreaCode = errors.New("area code must be exactly 3 digits")

// Error is a classified, provider-prefixed telephony error.
type Error struct {
	Provider string
	Kind     Kind
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Provider == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// newError builds a classified error with the provider prefix.
func newError(provider string, kind Kind, format string, args ...any) *Error {
	return &Error{Provider: provider, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// wrapError classifies an underlying error, preserving it for errors.Is/As.
func wrapError(provider string, kind Kind, err error, context string) *Error {
	return &Error{Provider: provider, Kind: kind, Message: context + ": " + err.Error(), Err: err}
}

// KindOf extracts the Kind from err, mapping context deadline errors to
// KindTimeout. Unclassified errors are KindVendor.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	switch {
	case errors.Is(err, ErrNotInitialized):
		return KindState
	case errors.Is(err, ErrInvalidAreaCode), errors.Is(err, ErrInvalidPhoneNumber):
		return KindValidation
	}
	return KindVendor
}

// IsRetryable reports whether err may be retried. Only transient vendor
// failures and timeouts qualify; validation, config, and state errors are
// permanent, and unsupported operations never become supported by retrying.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindVendor, KindTimeout:
		return true
	}
	return false
}

package telephony

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Session states.
const (
	StateUninitialized = "uninitialized"
	StateInitializing  = "initializing"
	StateReady         = "ready"
	StateFailed        = "failed"
)

// MaxSMSBodyLength caps outbound message bodies (vendor segment limits
// aside, anything longer is a client bug).
const MaxSMSBodyLength = 1600

// Store persists telephony activity. All methods must be safe for
// concurrent use. A nil Store disables persistence.
type Store interface {
	InsertMessage(ctx context.Context, to, body, provider string) (string, error)
	UpdateMessageSent(ctx context.Context, id, providerMsgID, status string) error
	UpdateMessageFailed(ctx context.Context, id, errMsg string) error
	UpdateDeliveryStatus(ctx context.Context, providerMsgID, status, errMsg string) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessages(ctx context.Context, to string, limit, offset int) ([]Message, error)
	UpsertNumber(ctx context.Context, provider string, n PhoneNumber) error
	MarkNumberReleased(ctx context.Context, number string) error
	InsertCall(ctx context.Context, callID, to, direction, status, provider string) error
	UpdateCallStatus(ctx context.Context, callID, status string) error
}

// SessionOptions configures a Session.
type SessionOptions struct {
	Logger           *slog.Logger
	Store            Store         // nil disables persistence
	OperationTimeout time.Duration // per adapter call; 0 means 30s
	AllowedCountries []string      // empty permits all destinations
	Retry            RetryConfig   // zero value falls back to DefaultRetry
}

// Session owns the active provider instance and is the only caller of
// adapter methods. It replaces the ad-hoc global store of earlier designs:
// state transitions are Uninitialized → Initializing → Ready | Failed, and
// every re-initialization bumps a generation counter so completions of
// in-flight operations against a stale adapter are discarded instead of
// racing the new one.
type Session struct {
	mu           sync.Mutex
	state        string
	providerType string
	provider     Provider
	generation   uint64
	lastErr      error

	logger           *slog.Logger
	store            Store
	opTimeout        time.Duration
	allowedCountries []string
	retry            RetryConfig

	// factory is swapped in tests to inject fakes by type tag.
	factory func(providerType string, cfg Config, logger *slog.Logger) (Provider, error)
}

// NewSession creates an uninitialized Session.
func NewSession(opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.OperationTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	retry := opts.Retry
	if retry == (RetryConfig{}) {
		retry = DefaultRetry
	}
	return &Session{
		state:            StateUninitialized,
		logger:           logger,
		store:            opts.Store,
		opTimeout:        timeout,
		allowedCountries: opts.AllowedCountries,
		retry:            retry,
		factory:          New,
	}
}

// Status is a point-in-time snapshot of the session.
type Status struct {
	State      string `json:"state"`
	Provider   string `json:"provider,omitempty"`
	Generation uint64 `json:"generation"`
	Error      string `json:"error,omitempty"`
}

// Status returns the current session snapshot.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state, Provider: s.providerType, Generation: s.generation}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	return st
}

// Initialize constructs and validates a provider, replacing any active one.
// Success moves the session to Ready and clears the error; failure moves it
// to Failed. Either way the generation advances, invalidating operations
// that were in flight against the previous provider.
func (s *Session) Initialize(ctx context.Context, providerType string, cfg Config) error {
	s.mu.Lock()
	provider, err := s.factory(providerType, cfg, s.logger)
	if err != nil {
		s.state = StateFailed
		s.lastErr = err
		s.generation++
		s.mu.Unlock()
		return err
	}
	s.state = StateInitializing
	s.providerType = providerType
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	err = provider.Initialize(opCtx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		// A later Initialize superseded this one; do not clobber its outcome.
		return newError(providerType, KindState, "initialization superseded by a newer one")
	}
	if err != nil {
		s.state = StateFailed
		s.provider = nil
		s.lastErr = err
		s.logger.Error("provider initialization failed", "provider", providerType, "error", err)
		return err
	}
	s.state = StateReady
	s.provider = provider
	s.lastErr = nil
	s.logger.Info("provider initialized", "provider", providerType, "generation", gen)
	return nil
}

// acquire snapshots the active provider and generation, rejecting every
// operation outside the Ready state with the exact guard error clients
// match on.
func (s *Session) acquire() (Provider, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.provider == nil {
		return nil, 0, ErrNotInitialized
	}
	return s.provider, s.generation, nil
}

// current reports whether gen is still the live generation.
func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen
}

func (s *Session) staleErr(provider Provider) error {
	return newError(provider.Name(), KindState, "provider was re-initialized during the operation")
}

// SendSMS validates the destination, records the message, and sends it.
// Never retried: a duplicate SMS is worse than a failed one.
func (s *Session) SendSMS(ctx context.Context, to, body string) (*SendResult, error) {
	provider, gen, err := s.acquire()
	if err != nil {
		return nil, err
	}

	e164, err := NormalizePhone(to)
	if err != nil {
		return nil, err
	}
	if !IsAllowedCountry(e164, s.allowedCountries) {
		return nil, newError(provider.Name(), KindValidation, "destination country not allowed: %s", PhoneCountry(e164))
	}
	if body == "" {
		return nil, newError(provider.Name(), KindValidation, "message body is empty")
	}
	if len(body) > MaxSMSBodyLength {
		return nil, newError(provider.Name(), KindValidation, "message body exceeds %d characters", MaxSMSBodyLength)
	}

	var rowID string
	if s.store != nil {
		rowID, err = s.store.InsertMessage(ctx, e164, body, provider.Name())
		if err != nil {
			return nil, err
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	result, err := provider.SendSMS(opCtx, e164, body)
	cancel()

	if !s.current(gen) {
		if s.store != nil && rowID != "" {
			_ = s.store.UpdateMessageFailed(ctx, rowID, "provider re-initialized during send")
		}
		return nil, s.staleErr(provider)
	}
	if err != nil {
		if s.store != nil && rowID != "" {
			_ = s.store.UpdateMessageFailed(ctx, rowID, err.Error())
		}
		return nil, err
	}
	if s.store != nil && rowID != "" {
		if uerr := s.store.UpdateMessageSent(ctx, rowID, result.MessageID, result.Status); uerr != nil {
			s.logger.Error("recording sent message failed", "id", rowID, "error", uerr)
		}
	}
	return result, nil
}

// MakeCall initiates an outbound call. Never retried.
func (s *Session) MakeCall(ctx context.Context, to string, opts *CallOptions) (*CallResult, error) {
	provider, gen, err := s.acquire()
	if err != nil {
		return nil, err
	}

	e164, err := NormalizePhone(to)
	if err != nil {
		return nil, err
	}
	if !IsAllowedCountry(e164, s.allowedCountries) {
		return nil, newError(provider.Name(), KindValidation, "destination country not allowed: %s", PhoneCountry(e164))
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	result, err := provider.MakeCall(opCtx, e164, opts)
	cancel()

	if !s.current(gen) {
		return nil, s.staleErr(provider)
	}
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		if serr := s.store.InsertCall(ctx, result.CallID, e164, result.Direction, result.Status, provider.Name()); serr != nil {
			s.logger.Error("recording call failed", "call_id", result.CallID, "error", serr)
		}
	}
	return result, nil
}

// EndCall hangs up an active call.
func (s *Session) EndCall(ctx context.Context, callID string) error {
	provider, gen, err := s.acquire()
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	err = provider.EndCall(opCtx, callID)
	cancel()

	if !s.current(gen) {
		return s.staleErr(provider)
	}
	if err != nil {
		return err
	}
	if s.store != nil {
		if serr := s.store.UpdateCallStatus(ctx, callID, CallStatusCompleted); serr != nil {
			s.logger.Error("recording call end failed", "call_id", callID, "error", serr)
		}
	}
	return nil
}

// MuteCall mutes or unmutes an active call.
func (s *Session) MuteCall(ctx context.Context, callID string, muted bool) error {
	provider, gen, err := s.acquire()
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	err = provider.MuteCall(opCtx, callID, muted)
	cancel()

	if !s.current(gen) {
		return s.staleErr(provider)
	}
	return err
}

// ListPhoneNumbers lists account numbers, retrying transient failures, and
// mirrors the result into the local store.
func (s *Session) ListPhoneNumbers(ctx context.Context) ([]PhoneNumber, error) {
	provider, gen, err := s.acquire()
	if err != nil {
		return nil, err
	}

	nums, err := retryRead(ctx, s.retry, func() ([]PhoneNumber, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
		defer cancel()
		return provider.ListPhoneNumbers(opCtx)
	})

	if !s.current(gen) {
		return nil, s.staleErr(provider)
	}
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		for _, n := range nums {
			if serr := s.store.UpsertNumber(ctx, provider.Name(), n); serr != nil {
				s.logger.Error("recording number failed", "number", n.Number, "error", serr)
				break
			}
		}
	}
	return nums, nil
}

// PurchasePhoneNumber validates the area code before any network call, then
// buys one number. Never retried.
func (s *Session) PurchasePhoneNumber(ctx context.Context, areaCode string) (*PhoneNumber, error) {
	provider, gen, err := s.acquire()
	if err != nil {
		return nil, err
	}
	if !ValidAreaCode(areaCode) {
		return nil, ErrInvalidAreaCode
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	num, err := provider.PurchasePhoneNumber(opCtx, areaCode)
	cancel()

	if !s.current(gen) {
		return nil, s.staleErr(provider)
	}
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		if serr := s.store.UpsertNumber(ctx, provider.Name(), *num); serr != nil {
			s.logger.Error("recording purchased number failed", "number", num.Number, "error", serr)
		}
	}
	return num, nil
}

// ReleasePhoneNumber releases a number. Releasing a number the account no
// longer owns succeeds.
func (s *Session) ReleasePhoneNumber(ctx context.Context, number string) error {
	provider, gen, err := s.acquire()
	if err != nil {
		return err
	}

	e164, err := NormalizePhone(number)
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	err = provider.ReleasePhoneNumber(opCtx, e164)
	cancel()

	if !s.current(gen) {
		return s.staleErr(provider)
	}
	if err != nil {
		return err
	}
	if s.store != nil {
		if serr := s.store.MarkNumberReleased(ctx, e164); serr != nil {
			s.logger.Error("recording number release failed", "number", e164, "error", serr)
		}
	}
	return nil
}

// HandleIncomingCall interprets a raw vendor webhook payload and records the
// inbound call.
func (s *Session) HandleIncomingCall(ctx context.Context, payload []byte) (*IncomingCall, error) {
	provider, gen, err := s.acquire()
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	call, err := provider.HandleIncomingCall(opCtx, payload)
	cancel()

	if !s.current(gen) {
		return nil, s.staleErr(provider)
	}
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		if serr := s.store.InsertCall(ctx, call.CallID, call.To, "inbound", CallStatusRinging, provider.Name()); serr != nil {
			s.logger.Error("recording inbound call failed", "call_id", call.CallID, "error", serr)
		}
	}
	return call, nil
}

// GetMessageStatus reports delivery state, retrying transient failures, and
// reflects terminal states into the store.
func (s *Session) GetMessageStatus(ctx context.Context, messageID string) (*MessageStatus, error) {
	provider, gen, err := s.acquire()
	if err != nil {
		return nil, err
	}

	status, err := retryRead(ctx, s.retry, func() (*MessageStatus, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
		defer cancel()
		return provider.GetMessageStatus(opCtx, messageID)
	})

	if !s.current(gen) {
		return nil, s.staleErr(provider)
	}
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		if serr := s.store.UpdateDeliveryStatus(ctx, status.ID, status.Status, status.Error); serr != nil {
			s.logger.Error("recording delivery status failed", "message_id", status.ID, "error", serr)
		}
	}
	return status, nil
}

// GetMessageHistory lists messages for a number, preferring the vendor read
// path and falling back to the local store when the vendor has none.
func (s *Session) GetMessageHistory(ctx context.Context, number string) ([]Message, error) {
	provider, gen, err := s.acquire()
	if err != nil {
		return nil, err
	}

	e164, err := NormalizePhone(number)
	if err != nil {
		return nil, err
	}

	msgs, err := retryRead(ctx, s.retry, func() ([]Message, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
		defer cancel()
		return provider.GetMessageHistory(opCtx, e164)
	})

	if !s.current(gen) {
		return nil, s.staleErr(provider)
	}
	if err != nil {
		if KindOf(err) == KindUnsupported && s.store != nil {
			return s.store.ListMessages(ctx, e164, 50, 0)
		}
		return nil, err
	}
	return msgs, nil
}

// setFactory replaces the provider factory; tests use this to inject fakes.
func (s *Session) setFactory(f func(string, Config, *slog.Logger) (Provider, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factory = f
}

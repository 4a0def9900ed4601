package server

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/prophone/prophone/internal/httputil"
	"github.com/prophone/prophone/internal/telephony"
)

// webhookVerifier holds the signature material for the active provider.
// Updated on every successful initialize; reads are lock-protected because
// webhooks and re-initialization race.
type webhookVerifier struct {
	mu        sync.RWMutex
	provider  string
	authToken string            // Twilio HMAC-SHA1
	publicKey ed25519.PublicKey // Telnyx Ed25519
}

func newWebhookVerifier() *webhookVerifier {
	return &webhookVerifier{}
}

func (v *webhookVerifier) update(provider string, cfg telephony.Config) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.provider = provider
	v.authToken = cfg.AuthToken
	v.publicKey = nil
	if cfg.PublicKey != "" {
		if key, err := base64.StdEncoding.DecodeString(cfg.PublicKey); err == nil && len(key) == ed25519.PublicKeySize {
			v.publicKey = ed25519.PublicKey(key)
		}
	}
}

// verifyTwilio checks X-Twilio-Signature: base64(HMAC-SHA1(key=authToken,
// url + form params concatenated sorted by key)). Unverifiable without an
// auth token, so an empty token fails closed.
func (v *webhookVerifier) verifyTwilio(r *http.Request, form url.Values) bool {
	v.mu.RLock()
	token := v.authToken
	v.mu.RUnlock()
	if token == "" {
		return false
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(requestURL(r))
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	got := r.Header.Get("X-Twilio-Signature")
	return got != "" && subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// verifyTelnyx checks the Ed25519 signature over "timestamp|body".
func (v *webhookVerifier) verifyTelnyx(r *http.Request, body []byte) bool {
	v.mu.RLock()
	key := v.publicKey
	v.mu.RUnlock()
	if key == nil {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(r.Header.Get("telnyx-signature-ed25519"))
	if err != nil {
		return false
	}
	timestamp := r.Header.Get("telnyx-timestamp")
	if timestamp == "" {
		return false
	}
	signed := append([]byte(timestamp+"|"), body...)
	return ed25519.Verify(key, signed, sig)
}

// requestURL reconstructs the public URL Twilio signed against.
func requestURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// handleWebhook receives vendor callbacks: inbound calls are routed through
// the session, message delivery receipts update the local store. The
// provider path segment must match the active provider and the payload must
// carry a valid vendor signature where the vendor supports one.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	st := s.session.Status()
	if st.State != telephony.StateReady || st.Provider != provider {
		httputil.WriteError(w, http.StatusConflict, "no active "+provider+" provider")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, httputil.MaxBodySize))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "reading webhook body")
		return
	}

	switch provider {
	case "twilio":
		s.handleTwilioWebhook(w, r, body)
	case "telnyx":
		s.handleTelnyxWebhook(w, r, body)
	case "bandwidth":
		s.handleBandwidthWebhook(w, r, body)
	default:
		// Providers without a webhook surface (sns, log, capture) still
		// accept inbound-call payloads for local testing.
		s.dispatchIncomingCall(w, r, body)
	}
}

func (s *Server) handleTwilioWebhook(w http.ResponseWriter, r *http.Request, body []byte) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid form payload")
		return
	}
	if !s.verifier.verifyTwilio(r, form) {
		s.logger.Warn("rejected webhook with bad signature", "provider", "twilio")
		httputil.WriteError(w, http.StatusForbidden, "invalid webhook signature")
		return
	}

	// Delivery receipt: MessageSid + MessageStatus/SmsStatus.
	if sid := form.Get("MessageSid"); sid != "" {
		status := form.Get("MessageStatus")
		if status == "" {
			status = form.Get("SmsStatus")
		}
		s.applyDeliveryStatus(r, sid, normalizeWebhookStatus(status), form.Get("ErrorMessage"))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Inbound call: respond with TwiML so Twilio doesn't drop the call.
	if form.Get("CallSid") != "" {
		if _, err := s.session.HandleIncomingCall(r.Context(), body); err != nil {
			httputil.WriteTelephonyError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Response/>`)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTelnyxWebhook(w http.ResponseWriter, r *http.Request, body []byte) {
	if !s.verifier.verifyTelnyx(r, body) {
		s.logger.Warn("rejected webhook with bad signature", "provider", "telnyx")
		httputil.WriteError(w, http.StatusForbidden, "invalid webhook signature")
		return
	}

	var event struct {
		Data struct {
			EventType string `json:"event_type"`
			Payload   struct {
				ID string `json:"id"`
				To []struct {
					Status string `json:"status"`
				} `json:"to"`
			} `json:"payload"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	switch {
	case strings.HasPrefix(event.Data.EventType, "message."):
		status := ""
		if len(event.Data.Payload.To) > 0 {
			status = event.Data.Payload.To[0].Status
		}
		s.applyDeliveryStatus(r, event.Data.Payload.ID, normalizeWebhookStatus(status), "")
		w.WriteHeader(http.StatusNoContent)
	case strings.HasPrefix(event.Data.EventType, "call."):
		s.dispatchIncomingCall(w, r, body)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleBandwidthWebhook(w http.ResponseWriter, r *http.Request, body []byte) {
	// Bandwidth signs nothing; callbacks are restricted by URL secrecy and
	// network controls. Events arrive as a JSON array.
	var events []struct {
		Type    string `json:"type"`
		Message struct {
			ID string `json:"id"`
		} `json:"message"`
		Description string `json:"description"`
		EventType   string `json:"eventType"`
	}
	if err := json.Unmarshal(body, &events); err != nil {
		// Voice callbacks are a single object, not an array.
		s.dispatchIncomingCall(w, r, body)
		return
	}

	for _, ev := range events {
		switch ev.Type {
		case "message-delivered":
			s.applyDeliveryStatus(r, ev.Message.ID, telephony.StatusDelivered, "")
		case "message-failed":
			s.applyDeliveryStatus(r, ev.Message.ID, telephony.StatusFailed, ev.Description)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) dispatchIncomingCall(w http.ResponseWriter, r *http.Request, body []byte) {
	call, err := s.session.HandleIncomingCall(r.Context(), body)
	if err != nil {
		httputil.WriteTelephonyError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, call)
}

func (s *Server) applyDeliveryStatus(r *http.Request, providerMsgID, status, errMsg string) {
	if providerMsgID == "" || status == "" || s.store == nil {
		return
	}
	if err := s.store.UpdateDeliveryStatus(r.Context(), providerMsgID, status, errMsg); err != nil {
		s.logger.Error("recording webhook delivery status failed", "message_id", providerMsgID, "error", err)
	}
}

// normalizeWebhookStatus maps vendor delivery states onto the shared set.
func normalizeWebhookStatus(status string) string {
	switch strings.ToLower(status) {
	case "queued", "accepted":
		return telephony.StatusQueued
	case "sending":
		return telephony.StatusSending
	case "sent":
		return telephony.StatusSent
	case "delivered", "webhook_delivered":
		return telephony.StatusDelivered
	case "failed", "undelivered", "delivery_failed", "sending_failed":
		return telephony.StatusFailed
	}
	return status
}

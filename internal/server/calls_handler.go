package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prophone/prophone/internal/httputil"
	"github.com/prophone/prophone/internal/telephony"
)

type makeCallRequest struct {
	To         string `json:"to"`
	From       string `json:"from,omitempty"`
	Record     bool   `json:"record,omitempty"`
	Transcribe bool   `json:"transcribe,omitempty"`
	TimeoutSec int    `json:"timeout,omitempty"` // ring timeout in seconds
}

// handleMakeCall initiates an outbound call.
func (s *Server) handleMakeCall(w http.ResponseWriter, r *http.Request) {
	var body makeCallRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if body.To == "" {
		httputil.WriteError(w, http.StatusBadRequest, "to is required")
		return
	}

	opts := &telephony.CallOptions{
		From:       body.From,
		Record:     body.Record,
		Transcribe: body.Transcribe,
	}
	if body.TimeoutSec > 0 {
		opts.Timeout = time.Duration(body.TimeoutSec) * time.Second
	}

	result, err := s.session.MakeCall(r.Context(), body.To, opts)
	if err != nil {
		httputil.WriteTelephonyError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

// handleEndCall hangs up an active call.
func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.session.EndCall(r.Context(), id); err != nil {
		httputil.WriteTelephonyError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"call_id": id, "status": telephony.CallStatusCompleted})
}

type muteCallRequest struct {
	Muted bool `json:"muted"`
}

// handleMuteCall mutes or unmutes an active call.
func (s *Server) handleMuteCall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body muteCallRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	if err := s.session.MuteCall(r.Context(), id, body.Muted); err != nil {
		httputil.WriteTelephonyError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"call_id": id, "muted": body.Muted})
}

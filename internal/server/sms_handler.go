package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prophone/prophone/internal/httputil"
	"github.com/prophone/prophone/internal/telephony"
)

type sendSMSRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// handleSendSMS queues one outbound message through the active provider.
func (s *Server) handleSendSMS(w http.ResponseWriter, r *http.Request) {
	var body sendSMSRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if body.To == "" {
		httputil.WriteError(w, http.StatusBadRequest, "to is required")
		return
	}

	result, err := s.session.SendSMS(r.Context(), body.To, body.Body)
	if err != nil {
		httputil.WriteTelephonyError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, result)
}

// handleMessageHistory lists messages for a destination number
// (?to=+14155552671), vendor-side when available, local store otherwise.
func (s *Server) handleMessageHistory(w http.ResponseWriter, r *http.Request) {
	to := r.URL.Query().Get("to")
	if to == "" {
		httputil.WriteError(w, http.StatusBadRequest, "to query parameter is required")
		return
	}

	msgs, err := s.session.GetMessageHistory(r.Context(), to)
	if err != nil {
		httputil.WriteTelephonyError(w, err)
		return
	}
	if msgs == nil {
		msgs = []telephony.Message{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// handleGetMessage returns a stored message by row ID or vendor message ID.
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	msg, err := s.store.GetMessage(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "loading message failed")
		return
	}
	if msg == nil {
		httputil.WriteError(w, http.StatusNotFound, "message not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, msg)
}

// handleMessageStatus reports the delivery state of a sent message by its
// vendor message ID.
func (s *Server) handleMessageStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := s.session.GetMessageStatus(r.Context(), id)
	if err != nil {
		httputil.WriteTelephonyError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

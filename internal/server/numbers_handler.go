package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prophone/prophone/internal/httputil"
	"github.com/prophone/prophone/internal/telephony"
)

// handleListNumbers lists the numbers owned by the account.
func (s *Server) handleListNumbers(w http.ResponseWriter, r *http.Request) {
	nums, err := s.session.ListPhoneNumbers(r.Context())
	if err != nil {
		httputil.WriteTelephonyError(w, err)
		return
	}
	if nums == nil {
		nums = []telephony.PhoneNumber{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"numbers": nums})
}

type purchaseNumberRequest struct {
	AreaCode string `json:"area_code"`
}

// handlePurchaseNumber buys one number in the requested area code.
func (s *Server) handlePurchaseNumber(w http.ResponseWriter, r *http.Request) {
	var body purchaseNumberRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	num, err := s.session.PurchasePhoneNumber(r.Context(), body.AreaCode)
	if err != nil {
		httputil.WriteTelephonyError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, num)
}

// handleReleaseNumber releases an owned number. Releasing a number the
// account no longer owns succeeds, so the endpoint is safe to retry.
func (s *Server) handleReleaseNumber(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	if err := s.session.ReleasePhoneNumber(r.Context(), number); err != nil {
		httputil.WriteTelephonyError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"number": number, "status": telephony.NumberReleased})
}

package server

import (
	"net/http"

	"github.com/prophone/prophone/internal/httputil"
	"github.com/prophone/prophone/internal/telephony"
)

// handleProviderStatus reports the session snapshot: state, active provider,
// generation, and the last initialization error if any.
func (s *Server) handleProviderStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.session.Status())
}

type providerInitRequest struct {
	Provider string           `json:"provider"`
	Config   telephony.Config `json:"config"`
	Persist  bool             `json:"persist"` // save encrypted credentials for restart
}

// handleProviderInit switches the active provider. The credentials are
// validated against the vendor before the session goes Ready; on success they
// are optionally sealed into the credentials store. Credentials never appear
// in the response or the logs.
func (s *Server) handleProviderInit(w http.ResponseWriter, r *http.Request) {
	var body providerInitRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if body.Provider == "" {
		httputil.WriteError(w, http.StatusBadRequest, "provider is required")
		return
	}

	if err := s.session.Initialize(r.Context(), body.Provider, body.Config); err != nil {
		s.logger.Warn("provider initialization rejected", "provider", body.Provider, "kind", telephony.KindOf(err))
		httputil.WriteTelephonyError(w, err)
		return
	}

	s.verifier.update(body.Provider, body.Config)

	if body.Persist && s.creds != nil {
		if err := s.creds.Save(body.Provider, body.Config); err != nil {
			s.logger.Error("saving provider credentials failed", "error", err)
		}
	}

	httputil.WriteJSON(w, http.StatusOK, s.session.Status())
}

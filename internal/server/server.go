// Package server exposes the telephony session over HTTP: provider
// lifecycle, SMS, calls, number management, and vendor webhooks.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/prophone/prophone/internal/config"
	"github.com/prophone/prophone/internal/httputil"
	"github.com/prophone/prophone/internal/secrets"
	"github.com/prophone/prophone/internal/telephony"
)

// Server is the main HTTP server for ProPhone.
type Server struct {
	cfg       *config.Config
	router    *chi.Mux
	http      *http.Server
	logger    *slog.Logger
	session   *telephony.Session
	store     telephony.Store
	creds     *secrets.CredStore // nil when credential persistence is disabled
	adminAuth *adminAuth         // nil when admin.password not set
	startTime time.Time

	// webhook verification material for the active provider, updated on
	// every successful initialize.
	verifier *webhookVerifier
}

// New creates a new Server with middleware and routes configured.
// creds may be nil when credential persistence is disabled.
func New(cfg *config.Config, logger *slog.Logger, session *telephony.Session, store telephony.Store, creds *secrets.CredStore) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.Server.CORSAllowedOrigins))

	s := &Server{
		cfg:       cfg,
		router:    r,
		logger:    logger,
		session:   session,
		store:     store,
		creds:     creds,
		startTime: time.Now(),
		verifier:  newWebhookVerifier(),
	}
	if cfg.Admin.Enabled && cfg.Admin.Password != "" {
		s.adminAuth = newAdminAuth(cfg.Admin.Password)
	}

	// Health check (no content-type restriction).
	r.Get("/health", s.handleHealth)

	// Vendor webhooks arrive form-encoded or JSON with vendor signatures;
	// they stay outside the JSON content-type enforcement.
	r.Post("/webhooks/{provider}", s.handleWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Get("/admin/status", s.handleAdminStatus)
		r.Post("/admin/auth", s.handleAdminLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))

			r.Get("/provider", s.handleProviderStatus)
			r.Group(func(r chi.Router) {
				r.Use(s.requireAdminToken)
				r.Post("/provider", s.handleProviderInit)
			})

			r.Post("/sms", s.handleSendSMS)
			r.Get("/sms", s.handleMessageHistory)
			r.Get("/sms/{id}", s.handleGetMessage)
			r.Get("/sms/{id}/status", s.handleMessageStatus)

			r.Post("/calls", s.handleMakeCall)
			r.Delete("/calls/{id}", s.handleEndCall)
			r.Post("/calls/{id}/mute", s.handleMuteCall)

			r.Get("/numbers", s.handleListNumbers)
			r.Post("/numbers", s.handlePurchaseNumber)
			r.Delete("/numbers/{number}", s.handleReleaseNumber)
		})
	})

	return s
}

// RestoreProvider installs webhook verification material for a provider
// initialized outside the HTTP surface, such as the startup restore from the
// credentials store.
func (s *Server) RestoreProvider(provider string, cfg telephony.Config) {
	s.verifier.update(provider, cfg)
}

// Router returns the chi router for registering additional routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:    s.cfg.Address(),
		Handler: s.router,
	}

	s.logger.Info("server starting", "address", s.cfg.Address())
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartWithReady begins listening. It closes the ready channel once the
// listener is bound, then blocks serving requests.
func (s *Server) StartWithReady(ready chan<- struct{}) error {
	s.http = &http.Server{
		Addr:    s.cfg.Address(),
		Handler: s.router,
	}

	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.logger.Info("server starting", "address", s.cfg.Address())
	close(ready)

	if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := time.Duration(s.cfg.Server.ShutdownTimeout) * time.Second
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("shutting down server", "timeout", timeout)
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.session.Status()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"provider": st.Provider,
		"session":  st.State,
		"uptime_s": int(time.Since(s.startTime).Seconds()),
	})
}

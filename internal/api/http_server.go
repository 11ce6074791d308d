package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ratesync/internal/config"
	"ratesync/internal/database"
	"ratesync/internal/ingest"
	"ratesync/internal/ledger"
	channelsync "ratesync/internal/sync"

	"github.com/rs/zerolog"
)

// HTTPServer exposes the admin channel-manager surface, the booking move
// endpoint and the inbound OTA webhook.
type HTTPServer struct {
	cfg    config.APIConfig
	db     *database.DB
	ledger *ledger.Ledger
	orch   *channelsync.Orchestrator
	ingest *ingest.Service
	logger *zerolog.Logger
	server *http.Server
	auth   *Auth
}

func NewHTTPServer(
	cfg config.APIConfig,
	db *database.DB,
	lg *ledger.Ledger,
	orch *channelsync.Orchestrator,
	ing *ingest.Service,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:    cfg,
		db:     db,
		ledger: lg,
		orch:   orch,
		ingest: ing,
		logger: logger,
	}
	srv.auth = NewAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.HandleFunc("/admin/channel-manager/dashboard", srv.handleDashboard)
	mux.HandleFunc("/admin/channel-manager/sync-availability", srv.handleSyncAvailability)
	mux.HandleFunc("/admin/channel-manager/update-pricing", srv.handleUpdatePricing)
	mux.HandleFunc("/admin/channel-manager/analytics", srv.handleAnalytics)
	mux.HandleFunc("/bookings/", srv.handleBookingMove)
	mux.HandleFunc("/webhooks/ota/", srv.handleOTAWebhook)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

// Handler returns the fully wrapped handler; tests mount it on httptest.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{"success": false, "error": message})
}

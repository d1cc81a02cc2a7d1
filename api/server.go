// Package api provides the HTTP server for the tradegate analysis gateway.
//
// It exposes the trading endpoints, the status-check store, the running
// configuration and a WebSocket stream of analysis progress events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/seenimoa/tradegate/internal/config"
	"github.com/seenimoa/tradegate/internal/gateway"
	"github.com/seenimoa/tradegate/internal/storage"
	"github.com/seenimoa/tradegate/pkg/models"
)

const maxBodyBytes = 1 << 20

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	svc      *gateway.Service
	store    storage.Store
	wsHub    *WSHub
	log      *logrus.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewServer creates a configured API server with all routes and middleware.
// The hub should be the event sink the service publishes to.
func NewServer(cfg *config.Config, svc *gateway.Service, store storage.Store, hub *WSHub, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if hub == nil {
		hub = NewWSHub(log)
	}
	srv := &Server{
		cfg:      cfg,
		svc:      svc,
		store:    store,
		wsHub:    hub,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WSHub {
	return s.wsHub
}

// ListenAndServe starts the HTTP server and the WebSocket hub. It shuts
// down gracefully on SIGINT, SIGTERM or when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{
		Addr:         s.cfg.API.Addr(),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.cfg.API.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.wsHub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", httpSrv.Addr).Info("api server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	s.log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Progress stream stays outside the request timeout.
	r.Get("/api/trading/ws", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.API.RequestTimeout))

		r.Get("/health", s.handleHealth)

		r.Route("/api", func(r chi.Router) {
			r.Get("/", s.handleRoot)

			// Status checks
			r.Post("/status", s.handleCreateStatusCheck)
			r.Get("/status", s.handleListStatusChecks)

			// Configuration
			r.Get("/config", s.handleGetConfig)
			r.Get("/config/keys", s.handleGetConfigKeys)

			// Trading
			r.Route("/trading", func(r chi.Router) {
				r.Get("/status", s.handleTradingStatus)
				r.Post("/launch-cli", s.handleLaunch)
				r.Post("/analyze", s.handleAnalyze)
				r.Get("/test-deepseek", s.handleTestModel)
				r.Get("/test-deepseek-quick", s.handleTestModelQuick)
				r.Get("/network-status", s.handleNetworkStatus)
			})
		})
	})

	return r
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": gateway.Version,
		"mode":    string(s.svc.Mode()),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Hello World"})
}

func (s *Server) handleTradingStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.ServiceStatus())
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.LaunchAnalysisInterface(r.Context()))
}

// handleAnalyze decodes the request on top of the defaults so absent
// fields keep their default values. An empty body runs the defaults.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req := models.NewAnalysisRequest()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.log.WithError(err).Warn("analysis request body rejected")
		s.writeJSON(w, http.StatusOK, models.ErrorResult("invalid request body: "+err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, s.svc.RunAnalysis(r.Context(), req))
}

func (s *Server) handleTestModel(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.TestModelConnection(r.Context()))
}

func (s *Server) handleTestModelQuick(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.TestModelConnectionQuick(r.Context()))
}

func (s *Server) handleNetworkStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.CheckNetworkStatus(r.Context()))
}

func (s *Server) handleCreateStatusCheck(w http.ResponseWriter, r *http.Request) {
	var req models.StatusCheckCreate
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "client_name is required")
		return
	}

	check := models.NewStatusCheck(req.ClientName, s.now())
	if err := s.store.Insert(r.Context(), check); err != nil {
		s.log.WithError(err).Error("status check insert failed")
		s.writeError(w, http.StatusInternalServerError, "failed to store status check")
		return
	}
	s.writeJSON(w, http.StatusOK, check)
}

func (s *Server) handleListStatusChecks(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Storage.ListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	checks, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("status check list failed")
		s.writeError(w, http.StatusInternalServerError, "failed to list status checks")
		return
	}
	s.writeJSON(w, http.StatusOK, checks)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("failed to write JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

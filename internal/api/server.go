package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/projectkasa/kasabot/internal/api/middleware"
	"github.com/projectkasa/kasabot/internal/bot"
	"github.com/projectkasa/kasabot/internal/config"
	"github.com/projectkasa/kasabot/internal/database"
)

// CallbackAnswerer acknowledges inline keyboard presses so the client stops
// showing the loading spinner. May be nil, in which case presses are
// dispatched without acknowledgement.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router     *chi.Mux
	cfg        *config.Config
	engine     *bot.Engine
	answerer   CallbackAnswerer
	recordings database.RecordingRepository
	metrics    http.Handler
	limiter    *middleware.IPRateLimiter
	hookLimit  *middleware.IPRateLimiter
	logger     *slog.Logger
}

// NewServer creates the HTTP handler with all routes mounted. metricsHandler
// serves GET /metrics and may be nil to disable the endpoint; recordings may
// be nil, which turns the dataset API into 503s.
func NewServer(
	cfg *config.Config,
	engine *bot.Engine,
	answerer CallbackAnswerer,
	recordings database.RecordingRepository,
	metricsHandler http.Handler,
	logger *slog.Logger,
) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		cfg:        cfg,
		engine:     engine,
		answerer:   answerer,
		recordings: recordings,
		metrics:    metricsHandler,
		limiter:    middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig()),
		hookLimit:  middleware.NewIPRateLimiter(middleware.WebhookRateLimitConfig()),
		logger:     logger.With("subsystem", "api"),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background goroutines owned by the server.
func (s *Server) Close() {
	s.limiter.Stop()
	s.hookLimit.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders(false))

	// Telegram pushes updates here; the token in the path is the secret.
	r.With(middleware.RateLimit(s.hookLimit)).Post("/webhook/{token}", s.handleWebhook)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	// Read-only dataset API for researchers.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS(middleware.ParseCORSOrigins(s.cfg.CORSOrigins)))
		r.Use(middleware.RateLimit(s.limiter))

		r.Route("/recordings", func(r chi.Router) {
			r.Get("/", s.handleListRecordings)
			r.Get("/stats", s.handleRecordingStats)
			r.Get("/{id}", s.handleGetRecording)
			r.Get("/{id}/audio", s.handleRecordingAudio)
		})
		r.Get("/users/{userID}/recordings", s.handleUserRecordings)
	})

	slog.Info("api routes mounted")
}

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "variant": s.cfg.Variant})
}

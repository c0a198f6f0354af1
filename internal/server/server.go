// Package server provides the HTTP surface of the intelligence engine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/interstitch/sectorwars-intel/internal/config"
	"github.com/interstitch/sectorwars-intel/internal/database"
	"github.com/interstitch/sectorwars-intel/internal/engine"
	"github.com/interstitch/sectorwars-intel/internal/events"
)

// Config holds server configuration.
type Config struct {
	Log     zerolog.Logger
	Engine  *engine.Engine
	Bus     *events.Bus
	IntelDB *database.DB
	AuditDB *database.DB
	CacheDB *database.DB
	Config  *config.Config
}

// Server is the HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	engine         *engine.Engine
	bus            *events.Bus
	systemHandlers *SystemHandlers
}

// New creates the HTTP server with routing and middleware configured.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		engine: cfg.Engine,
		bus:    cfg.Bus,
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.Config.DataDir,
			cfg.IntelDB, cfg.AuditDB, cfg.CacheDB),
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// SSE stream of flagged security events and evolution happenings.
		r.Get("/events/stream", NewEventsStreamHandler(s.bus, s.log).ServeHTTP)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
		})

		r.Route("/players/{playerID}", func(r chi.Router) {
			r.Post("/visits", s.handleRecordVisit)
			r.Get("/exploration/{sectorID}", s.handleHasVisited)
			r.Post("/observations", s.handleRecordObservation)
			r.Get("/intelligence/{portID}/{commodity}", s.handleGetIntelligence)
			r.Post("/forecast", s.handleGenerateStates)
			r.Post("/ghost-trades", s.handleGhostTrade)
			r.Post("/cascades", s.handlePlanCascade)
			r.Post("/trades", s.handleTradeOutcome)
			r.Get("/patterns", s.handleTopPatterns)
			r.Get("/security/status", s.handleSecurityStatus)
		})
	})
}

// loggingMiddleware logs each request at debug with timing.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// Start begins serving. Blocks until the listener fails or is shut down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires configuration, storage, the script service, and the
// HTTP surface into a runnable process.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/skald/internal/announce"
	"github.com/friendsincode/skald/internal/api"
	"github.com/friendsincode/skald/internal/config"
	"github.com/friendsincode/skald/internal/db"
	"github.com/friendsincode/skald/internal/eventbus"
	"github.com/friendsincode/skald/internal/events"
	"github.com/friendsincode/skald/internal/models"
	"github.com/friendsincode/skald/internal/script"
	"github.com/friendsincode/skald/internal/selector"
	"github.com/friendsincode/skald/internal/telemetry"
	"github.com/friendsincode/skald/internal/tts"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	db              *gorm.DB
	bus             events.PubSub
	scripts         *script.Service
	selector        *selector.Selector
	api             *api.API
	announceEnabled bool

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.MetricsMiddleware)
	// Speech synthesis proxies to a slow upstream and manages its own
	// deadline; everything else gets the blanket timeout.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(30 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/announcements/speech") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:             cfg,
		logger:          logger,
		router:          router,
		announceEnabled: true,
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // speech responses can outlast any fixed deadline
		IdleTimeout:       60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", telemetry.Handler())
	srv.metricsServer = &http.Server{
		Addr:              cfg.MetricsBind,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv, nil
}

func (s *Server) initDependencies() error {
	if s.cfg.NATSURL != "" {
		natsBus, err := eventbus.NewNATSBus(eventbus.DefaultNATSConfig(s.cfg.NATSURL), s.logger)
		if err != nil {
			return fmt.Errorf("event bus: %w", err)
		}
		s.bus = natsBus
		s.DeferClose(natsBus.Close)
	} else {
		s.bus = events.NewBus()
	}

	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("database connect: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("database migrate: %w", err)
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	s.applyStoredSettings(database)

	scripts, err := script.NewService(s.cfg.ScriptPath, s.bus, s.logger,
		announce.WithOptionalChance(s.cfg.OptionalChance))
	if err != nil {
		return fmt.Errorf("script service: %w", err)
	}
	s.scripts = scripts

	s.selector = selector.New(scripts, s.bus, s.logger)

	var ttsClient *tts.Client
	if s.cfg.TTSURL != "" {
		ttsClient = tts.NewClient(s.cfg.TTSURL, s.cfg.TTSKey, s.logger)
	}

	s.api = api.New(database, scripts, s.selector, ttsClient, s.cfg.SSMLEnabled, s.announceEnabled, s.cfg.AdminToken, s.bus, s.logger)
	return nil
}

// applyStoredSettings fills config gaps from the persisted settings row.
// Environment variables always win; the row only supplies what the
// deployment left unset.
func (s *Server) applyStoredSettings(database *gorm.DB) {
	var stored models.ScriptSettings
	if err := database.First(&stored).Error; err != nil {
		return // no row yet
	}
	if s.cfg.ScriptPath == "" && stored.ScriptPath != "" {
		s.cfg.ScriptPath = stored.ScriptPath
	}
	if s.cfg.TTSURL == "" && stored.TTSURL != "" {
		s.cfg.TTSURL = stored.TTSURL
		if stored.TTSKey != "" {
			s.cfg.TTSKey = stored.TTSKey
		}
	}
	if !s.cfg.SSMLEnabled && stored.SSMLEnabled {
		s.cfg.SSMLEnabled = true
	}
	s.announceEnabled = stored.EnableByDefault
	s.logger.Info().Bool("announce_enabled", s.announceEnabled).
		Msg("applied stored announcement settings")
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.api.Routes(s.router)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.cfg.WatchScript && s.cfg.ScriptPath != "" {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.scripts.Watch(ctx); err != nil {
				s.logger.Error().Err(err).Msg("script watcher stopped")
			}
		}()
	}
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer exposes the metrics listener, bound separately so the
// scrape endpoint never rides the public interface.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close stops background workers and releases owned resources in reverse
// order.
func (s *Server) Close() error {
	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.bgWG.Wait()

	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// Package server hosts the HTTP surface: the batch NDJSON endpoint, the CSV
// result download, the single-run WebSocket channel, health, metrics, and the
// optional static UI.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/formpilot/internal/agent"
	"github.com/xkilldash9x/formpilot/internal/browser"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/extract"
	"github.com/xkilldash9x/formpilot/internal/model"
	"github.com/xkilldash9x/formpilot/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// deciderFactory builds the per-run model client. Injectable for tests.
type deciderFactory func(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger) (model.Decider, error)

// Server wires the HTTP routes to the automation orchestrators.
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      *session.Store
	pages      agent.PageProvider
	sem        *semaphore.Weighted
	newDecider deciderFactory
	httpServer *http.Server
}

// New assembles a server around an already-running page provider and session
// store. Nothing starts listening until Run.
func New(cfg *config.Config, logger *zap.Logger, store *session.Store, pages agent.PageProvider) *Server {
	return &Server{
		cfg:        cfg,
		logger:     logger.Named("server"),
		store:      store,
		pages:      pages,
		sem:        semaphore.NewWeighted(cfg.Server.MaxConcurrentRuns),
		newDecider: model.New,
	}
}

// BrowserProvider adapts the browser manager to the agent's page provider
// interface.
func BrowserProvider(m *browser.Manager) agent.PageProvider {
	return agent.ProviderFunc(func(ctx context.Context) (agent.Surface, error) {
		page, err := m.AcquirePage(ctx)
		if err != nil {
			return nil, err
		}
		return page, nil
	})
}

// Run serves until the context is cancelled, then shuts down gracefully
// within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Server.Addr,
		Handler: s.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening.", zap.String("addr", s.cfg.Server.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// routes builds the router. The batch endpoint streams for the whole run and
// the WebSocket hijacks the connection, so no global timeout middleware is
// applied; slow-client protection comes from the write deadlines instead.
func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	// WebSocket route first, outside the request logger group; hijacked
	// connections confuse the wrapped response writer.
	r.Get("/ws/v1/run", s.handleSingleRun)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Logger)

		r.Get("/healthz", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/batch", s.handleBatch)
			r.Get("/results/{sessionID}/download", s.handleDownload)
		})

		s.mountStatic(r)
	})

	return r
}

// mountStatic serves the built frontend with an SPA fallback. Skipped
// entirely when the configured directory is absent, which is the normal
// state for API-only deployments.
func (s *Server) mountStatic(r chi.Router) {
	dir := s.cfg.Server.StaticDir
	if dir == "" {
		return
	}

	absPath, err := filepath.Abs(dir)
	if err != nil {
		s.logger.Warn("Failed to resolve static file path. Frontend will not be served.",
			zap.String("path", dir), zap.Error(err))
		return
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		s.logger.Warn("Static file directory does not exist. Frontend will not be served.",
			zap.String("path", absPath))
		return
	}

	s.logger.Info("Serving static files.", zap.String("path", absPath))
	index := filepath.Join(absPath, "index.html")

	// Existing files are served as-is; anything else falls back to
	// index.html so SPA deep links survive a reload.
	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		name := filepath.Join(absPath, filepath.Clean("/"+req.URL.Path))
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			http.ServeFile(w, req, name)
			return
		}
		http.ServeFile(w, req, index)
	})

	// API-looking paths never fall through to the SPA page.
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		if strings.HasPrefix(req.URL.Path, "/api/") || strings.HasPrefix(req.URL.Path, "/ws/") {
			http.NotFound(w, req)
			return
		}
		http.ServeFile(w, req, index)
	})
}

// decider builds the model client for one run with the caller's credential.
// The handlers require the credential up front, so the configured key only
// ever serves the CLI path.
func (s *Server) decider(ctx context.Context, apiKey string) (model.Decider, error) {
	modelCfg := s.cfg.Model
	modelCfg.APIKey = apiKey
	return s.newDecider(ctx, modelCfg, s.logger)
}

// referenceExtractor is shared across runs; matching is read-only.
var referenceExtractor = extract.New()

// newRunner assembles the per-run row runner with the shared configuration.
func (s *Server) newRunner(decider model.Decider, sink agent.Sink) *agent.Runner {
	system := agent.SystemPrompt(s.cfg.Browser.ViewportWidth, s.cfg.Browser.ViewportHeight)
	return agent.NewRunner(decider, referenceExtractor, system, s.cfg.Agent, sink, s.logger)
}

// corsMiddleware allows the dashboard to call the API from another origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"market-genome/internal/infra/logging"
	"market-genome/internal/infra/metrics"
	"market-genome/internal/usecase"
)

type Options struct {
	// FilesDir, when set, is served under /files/ (local artifact store).
	FilesDir       string
	RequestTimeout time.Duration
	Version        string
}

type Server struct {
	genome usecase.GenomeUseCase
	chat   usecase.ChatUseCase
	auth   *AuthManager
	opts   Options
	log    *zerolog.Logger

	mu     sync.Mutex
	server *http.Server
}

func NewServer(genome usecase.GenomeUseCase, chat usecase.ChatUseCase, auth *AuthManager, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{genome: genome, chat: chat, auth: auth, opts: opts, log: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(Timeout(s.opts.RequestTimeout))
		r.Get("/", s.info)
		r.Post("/admin/token", s.issueToken)

		r.Post("/analyze", s.analyze)
		r.Get("/status/{jobID}", s.status)
		r.Get("/download/report/{jobID}", s.downloadReport)
		r.With(s.auth.RequireAdmin).Get("/jobs", s.listJobs)

		r.Route("/chat", func(r chi.Router) {
			r.Post("/init", s.chatInit)
			r.Post("/message", s.chatMessage)
			r.Post("/generate-report", s.chatReport)
			r.Get("/history/{sessionID}", s.chatHistory)
			r.Delete("/session/{sessionID}", s.chatEnd)
			r.With(s.auth.RequireAdmin).Get("/sessions", s.chatSessions)
		})
	})

	if s.opts.FilesDir != "" {
		fs := http.StripPrefix("/files/", http.FileServer(http.Dir(s.opts.FilesDir)))
		r.Get("/files/*", func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/") {
				http.NotFound(w, r)
				return
			}
			fs.ServeHTTP(w, r)
		})
	}
	return r
}

// ListenAndServe blocks until the server stops. http.ErrServerClosed is
// returned after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()
	s.log.Info().Str("addr", addr).Msg("http server listening")
	return srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) logFor(r *http.Request) *zerolog.Logger {
	return logging.With(r.Context(), s.log)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "Market Genome",
		"status":  "running",
		"version": s.opts.Version,
		"tagline": "Build marketing strategy from real brand DNA",
		"features": []string{
			"Brand personality analysis",
			"Competitor weakness mapping",
			"Growth roadmap creation",
			"Content pillar strategy",
			"Brand AI assistant chat",
		},
	})
}

type tokenRequest struct {
	APIKey string `json:"api_key"`
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Enabled() {
		writeError(w, http.StatusForbidden, "admin access is not configured")
		return
	}
	key := r.Header.Get("X-API-Key")
	if key == "" {
		var req tokenRequest
		if err := decodeJSON(w, r, &req); err == nil {
			key = req.APIKey
		}
	}
	if !s.auth.CheckAPIKey(key) {
		metrics.IncAdminAuth("token", "denied")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	tok, exp, err := s.auth.Mint(time.Now())
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	metrics.IncAdminAuth("token", "ok")
	writeJSON(w, http.StatusOK, map[string]any{"token": tok, "expires_at": exp.UTC()})
}

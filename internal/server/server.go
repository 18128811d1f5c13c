// Package server exposes a livedoc session over HTTP.
//
// Routes:
//
//	POST /transform  apply one edit operation
//	GET  /state      edit-state snapshot
//	GET  /source     raw source with diagnostics
//	GET  /node?id=   single-node inspector payload
//	GET  /patches    latest slot patch (polling fallback)
//	GET  /stream     Server-Sent Events
//	GET  /ws         WebSocket events
//	POST /runtime    reset the simulated clock
//	POST /ticker     change cadence or pause
//	GET  /render     full HTML of the current frame
//	GET  /history    commit journal
//
// Status codes: 400 for a body that is not a request at all, 403 for a
// file other than the managed document, 200 with ok=false for edits the
// document model rejects, 500 for anything unexpected.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/livedoc/internal/broadcast"
	"github.com/roach88/livedoc/internal/scheduler"
	"github.com/roach88/livedoc/internal/session"
	"github.com/roach88/livedoc/internal/store"
)

// DefaultMaxBody bounds request bodies; setSource carries whole documents.
const DefaultMaxBody = 8 << 20

// Server routes HTTP requests to one session.
type Server struct {
	session *session.Session
	sched   *scheduler.Scheduler
	hub     *broadcast.Hub
	journal *store.Store
	logger  *slog.Logger
	maxBody int64
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithJournal serves GET /history from j.
func WithJournal(j *store.Store) Option {
	return func(s *Server) { s.journal = j }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMaxBody sets the request body limit in bytes.
func WithMaxBody(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// New builds the router.
func New(sess *session.Session, sched *scheduler.Scheduler, hub *broadcast.Hub, opts ...Option) *Server {
	s := &Server{
		session: sess,
		sched:   sched,
		hub:     hub,
		logger:  slog.Default(),
		maxBody: DefaultMaxBody,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Post("/transform", s.handleTransform)
	r.Get("/state", s.handleState)
	r.Get("/source", s.handleSource)
	r.Get("/node", s.handleNode)
	r.Get("/patches", s.handlePatches)
	r.Get("/stream", hub.ServeSSE)
	r.Get("/ws", hub.ServeWS)
	r.Post("/runtime", s.handleRuntime)
	r.Post("/ticker", s.handleTicker)
	r.Get("/render", s.handleRender)
	r.Get("/history", s.handleHistory)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// logRequests logs one line per request once it completes.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/marcus/riverwalk/internal/photostore"
	"github.com/marcus/riverwalk/internal/serverdb"
)

// Server is the HTTP API server for rwalk-server.
type Server struct {
	config      Config
	http        *http.Server
	store       *serverdb.ServerDB
	photos      photostore.Store
	metrics     *Metrics
	rateLimiter *RateLimiter
	upgrader    websocket.Upgrader
	stop        chan struct{}
	// closing is cancelled on Shutdown so presence connections end.
	closing context.Context
	cancel  context.CancelFunc
}

// NewServer creates a new Server with the given config, row store and photo store.
func NewServer(cfg Config, store *serverdb.ServerDB, photos photostore.Store) (*Server, error) {
	if store == nil || photos == nil {
		return nil, fmt.Errorf("server requires a store and a photo store")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	if cfg.MaxPhotoBytes <= 0 {
		cfg.MaxPhotoBytes = 8 << 20
	}
	if cfg.WSPingInterval <= 0 {
		cfg.WSPingInterval = 30 * time.Second
	}

	s := &Server{
		config:      cfg,
		store:       store,
		photos:      photos,
		metrics:     NewMetrics(),
		rateLimiter: NewRateLimiter(),
		stop:        make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.closing, s.cancel = context.WithCancel(context.Background())

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	go s.rateLimiter.Run(5*time.Minute, s.stop)

	return nil
}

// Shutdown gracefully stops the server and closes presence connections.
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	s.cancel()
	return s.http.Shutdown(ctx)
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)

	// Auth
	mux.HandleFunc("POST /v1/auth/signup", s.handleSignup)
	mux.HandleFunc("GET /v1/me", s.requireAuth(s.withRateLimit(s.handleMe, s.config.RateLimitOther)))

	// Presence
	mux.HandleFunc("GET /v1/ws", s.requireAuth(s.handlePresence))

	// Tables
	mux.HandleFunc("POST /v1/tables/{table}", s.requireAuth(requireScope("sync", s.withRateLimit(s.handleInsertRow, s.config.RateLimitWrite))))
	mux.HandleFunc("GET /v1/tables/{table}", s.requireAuth(requireScope("read", s.withRateLimit(s.handleSelectRows, s.config.RateLimitRead))))
	mux.HandleFunc("PATCH /v1/tables/{table}/{id}", s.requireAuth(requireScope("sync", s.withRateLimit(s.handleUpdateRow, s.config.RateLimitWrite))))
	mux.HandleFunc("DELETE /v1/tables/{table}/{id}", s.requireAuth(requireScope("sync", s.withRateLimit(s.handleDeleteRow, s.config.RateLimitWrite))))

	// Photos
	mux.HandleFunc("POST /v1/photos", s.requireAuth(requireScope("sync", s.withRateLimit(s.handleUploadPhoto, s.config.RateLimitWrite))))
	mux.HandleFunc("GET /v1/photos/{key...}", s.requireAuth(s.withRateLimit(s.handleGetPhoto, s.config.RateLimitRead)))

	return chain(mux,
		recoveryMiddleware,
		requestIDMiddleware,
		loggerMiddleware,
		metricsMiddleware(s.metrics),
		loggingMiddleware,
		s.CORSMiddleware,
		maxBytesMiddleware(s.config.MaxBodyBytes),
		authRateLimitMiddleware(s.rateLimiter, s.config.RateLimitAuth),
	)
}

// handleHealth returns a health check response, pinging the server DB.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

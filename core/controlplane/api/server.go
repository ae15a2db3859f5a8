// Package api serves playground sessions over HTTP and websockets.
package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cordum/playground/core/infra/logging"
	infraMetrics "github.com/cordum/playground/core/infra/metrics"
	"github.com/cordum/playground/core/session"
	"github.com/cordum/playground/sdk/client"
)

const (
	serviceName = "playground-api"

	defaultWriteTimeout = 2 * time.Minute
	shutdownGrace       = 5 * time.Second
	remoteHealthTimeout = 2 * time.Second
	maxBodyBytes        = 8 << 20
)

// Remote is the part of the guardrail service the api exposes directly.
type Remote interface {
	ValidateGuard(ctx context.Context, req client.GuardValidateRequest) (*client.GuardResult, error)
	ListValidators(ctx context.Context) ([]client.ValidatorInfo, error)
	FetchMonitorStats(ctx context.Context) (*client.MonitorStats, error)
	FetchVisualizationData(ctx context.Context) (*client.VisualizationData, error)
	FetchLLMDefaults(ctx context.Context) (*client.LLMDefaults, error)
	Health(ctx context.Context) (*client.Health, error)
}

// Options configure a Server. Sessions and Remote are required.
type Options struct {
	Sessions *session.Manager
	Remote   Remote
	// Bus, when set, is reported by /health.
	Bus            BusStatus
	Metrics        infraMetrics.GatewayMetrics
	AllowedOrigins []string
	// WriteTimeout bounds a response, including remote calls made by a
	// submission.
	WriteTimeout time.Duration
	Version      string
}

// BusStatus is the connection view of the event bus.
type BusStatus interface {
	IsConnected() bool
	Status() string
}

// Server routes playground requests to sessions.
type Server struct {
	sessions *session.Manager
	remote   Remote
	bus      BusStatus
	metrics  infraMetrics.GatewayMetrics
	origins  originPolicy
	started  time.Time

	writeTimeout time.Duration
	version      string
	handler      http.Handler
}

// New builds a Server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Sessions == nil {
		return nil, errors.New("session manager required")
	}
	if opts.Remote == nil {
		return nil, errors.New("remote client required")
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	s := &Server{
		sessions:     opts.Sessions,
		remote:       opts.Remote,
		bus:          opts.Bus,
		metrics:      opts.Metrics,
		origins:      newOriginPolicy(opts.AllowedOrigins),
		started:      time.Now().UTC(),
		writeTimeout: opts.WriteTimeout,
		version:      opts.Version,
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.instrumented("/health", s.handleHealth))

	// Sessions
	mux.HandleFunc("POST /api/v1/sessions", s.instrumented("/api/v1/sessions", s.handleCreateSession))
	mux.HandleFunc("GET /api/v1/sessions", s.instrumented("/api/v1/sessions", s.handleListSessions))
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.instrumented("/api/v1/sessions/{id}", s.handleGetSession))
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.instrumented("/api/v1/sessions/{id}", s.handleDeleteSession))
	mux.HandleFunc("POST /api/v1/sessions/{id}/config", s.instrumented("/api/v1/sessions/{id}/config", s.handleUpdateConfig))
	mux.HandleFunc("GET /api/v1/sessions/{id}/readiness", s.instrumented("/api/v1/sessions/{id}/readiness", s.handleReadiness))
	mux.HandleFunc("PUT /api/v1/sessions/{id}/tool", s.instrumented("/api/v1/sessions/{id}/tool", s.handleSetTool))
	mux.HandleFunc("POST /api/v1/sessions/{id}/submit", s.instrumented("/api/v1/sessions/{id}/submit", s.handleSubmit))
	mux.HandleFunc("POST /api/v1/sessions/{id}/submit-image", s.instrumented("/api/v1/sessions/{id}/submit-image", s.handleSubmitImage))
	mux.HandleFunc("POST /api/v1/sessions/{id}/guard/validate", s.instrumented("/api/v1/sessions/{id}/guard/validate", s.handleValidateGuard))
	mux.HandleFunc("POST /api/v1/sessions/{id}/reset", s.instrumented("/api/v1/sessions/{id}/reset", s.handleReset))
	mux.HandleFunc("GET /api/v1/sessions/{id}/transcript", s.instrumented("/api/v1/sessions/{id}/transcript", s.handleTranscript))
	mux.HandleFunc("GET /api/v1/sessions/{id}/stream", s.instrumented("/api/v1/sessions/{id}/stream", s.handleStream))

	// Remote passthroughs
	mux.HandleFunc("GET /api/v1/validators", s.instrumented("/api/v1/validators", s.handleValidators))
	mux.HandleFunc("GET /api/v1/monitor/stats", s.instrumented("/api/v1/monitor/stats", s.handleMonitorStats))
	mux.HandleFunc("GET /api/v1/visualization", s.instrumented("/api/v1/visualization", s.handleVisualization))
	mux.HandleFunc("GET /api/v1/llm-defaults", s.instrumented("/api/v1/llm-defaults", s.handleLLMDefaults))

	return s.corsMiddleware(mux)
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	logging.Info("api", "http listening", "addr", addr)
	return serveUntilDone(ctx, srv)
}

// ServeMetrics exposes the prometheus registry on its own listener.
func ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", infraMetrics.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	logging.Info("api", "metrics listening", "addr", addr+"/metrics")
	return serveUntilDone(ctx, srv)
}

func serveUntilDone(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logging.Error("api", "server error", "addr", srv.Addr, "error", err)
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Error("api", "shutdown", "addr", srv.Addr, "error", err)
			return err
		}
		return nil
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack forwards websocket hijacking to the wrapped writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijacker not supported")
	}
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrumented records request metrics per route pattern.
func (s *Server) instrumented(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Method, route, fmt.Sprintf("%d", rec.status), time.Since(start).Seconds())
		}
	}
}

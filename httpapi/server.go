package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/researchmesh/logging"
)

// Server bundles the API handler with an http.Server. Read and idle timeouts
// are bounded; the write timeout stays unset because the chat endpoint holds
// its response open for the duration of a pipeline run.
type Server struct {
	srv    *http.Server
	logger logging.Logger
}

// ServerOptions configure the HTTP server.
type ServerOptions struct {
	Addr   string
	Logger logging.Logger
}

// NewServer wires the handler, the Prometheus endpoint and timeouts.
func NewServer(handler *Handler, optFns ...func(o *ServerOptions)) *Server {
	opts := ServerOptions{Addr: ":8000", Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &Server{
		srv: &http.Server{
			Addr:              opts.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: opts.Logger,
	}
}

// ListenAndServe blocks serving requests until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.srv.Shutdown(ctx)
}

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
)

// Server serves the compile service over Connect (HTTP/JSON), gRPC and
// gRPC-Web on the same port.
type Server struct {
	mux  *http.ServeMux
	http *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	handlerOpts []connect.HandlerOption
}

// WithHandlerOptions passes options such as interceptors to the Connect
// handlers.
func WithHandlerOptions(opts ...connect.HandlerOption) ServerOption {
	return func(c *serverConfig) { c.handlerOpts = append(c.handlerOpts, opts...) }
}

// New creates a Server with the compile service registered.
func New(opts ...ServerOption) *Server {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Server{mux: http.NewServeMux()}
	s.http = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	compilePath, compileHandler := NewCompileService().Handler(cfg.handlerOpts...)
	s.mux.Handle(compilePath, compileHandler)

	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	s.http.Addr = addr
	log.Noticef("mcode compile server listening on %s", addr)
	log.Noticef("  Connect (HTTP/JSON): http://%s%s", addr, CompileProcedure)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts down the server, waiting up to five seconds for in-flight
// requests.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

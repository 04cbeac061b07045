// Package pprof serves the runtime profiling endpoints on a separate
// listener so they never share a port with the public API.
package pprof

import (
	"context"
	"fmt"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"time"
)

// Server hosts /debug/pprof on its own address.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// Start binds addr and serves the profiling handlers in the background.
func Start(addr string) (*Server, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", netpprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", netpprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", netpprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", netpprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", netpprof.Trace)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("pprof listen on %s: %w", addr, err)
	}

	s := &Server{
		httpServer: &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		listener:   ln,
	}
	go func() {
		_ = s.httpServer.Serve(ln)
	}()
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Stop shuts the profiling server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

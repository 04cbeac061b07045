package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"

	"github.com/waveroom/waveroom/internal/auth"
	"github.com/waveroom/waveroom/internal/collab"
	"github.com/waveroom/waveroom/internal/logger"
	"github.com/waveroom/waveroom/internal/store"
)

// UserDirectory resolves an authenticated user ID to an identity
type UserDirectory interface {
	FindUserByID(ctx context.Context, id string) (*store.User, error)
}

// Server terminates WebSocket connections for the coordinator and mounts
// the REST API.
type Server struct {
	addr       string
	maxConns   int
	httpServer *http.Server
	listener   net.Listener
	coord      *collab.Coordinator
	verifier   auth.Verifier
	users      UserDirectory
	log        *logger.Logger
	debug      bool
}

// NewServer creates a server. apiHandler is mounted under /api/; it may
// be nil when only the realtime surface is wanted (tests).
func NewServer(addr string, maxConns int, coord *collab.Coordinator, verifier auth.Verifier, users UserDirectory, apiHandler http.Handler, debug bool) *Server {
	s := &Server{
		addr:     addr,
		maxConns: maxConns,
		coord:    coord,
		verifier: verifier,
		users:    users,
		log:      logger.Global().WithPrefix("web"),
		debug:    debug,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	if apiHandler != nil {
		mux.Handle("/api/", apiHandler)
	}

	// No server-wide read/write timeouts: WebSocket connections are
	// long-lived and keepalive is handled by the ping/pong deadlines.
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start begins listening and serving in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}
	s.listener = ln

	go func() {
		s.log.Info("listening on %s", ln.Addr())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound address, useful when listening on port 0
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop shuts the server down gracefully
func (s *Server) Stop() error {
	s.log.Info("stopping web server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// handleWebSocket authenticates the handshake and hands the connection to
// the coordinator. A bad credential refuses the connection before any
// event handler runs.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)

	userID, err := s.verifier.Verify(token)
	if err != nil {
		s.log.Warn("connection rejected: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := s.users.FindUserByID(r.Context(), userID)
	if err != nil {
		s.log.Warn("connection rejected: unknown user %s", userID)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // the handshake is gated on the bearer token
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("upgrade failed: %v", err)
		return
	}

	client, err := NewClient(conn, s.coord, user.ID, user.Name, s.debug)
	if err != nil {
		s.log.Error("connection setup failed: %v", err)
		conn.Close()
		return
	}
	s.coord.Connect(client.ID, user.ID, user.Name, client)

	go client.WritePump()
	go client.ReadPump()

	s.log.Info("connection %s established for %s", client.ID, user.Email)
}

// handleHealth reports coordinator registry sizes
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	conns, rooms, trackLocks, projectLocks := s.coord.Stats()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{
		"connections":   conns,
		"rooms":         rooms,
		"track_locks":   trackLocks,
		"project_locks": projectLocks,
	})
}

// bearerToken extracts the handshake credential from the Authorization
// header or, for browser WebSocket clients that cannot set headers, the
// token query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
		return h
	}
	return r.URL.Query().Get("token")
}

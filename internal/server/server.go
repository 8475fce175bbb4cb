package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/shivam2014/trading-journal-stream/internal/auth"
	"github.com/shivam2014/trading-journal-stream/internal/config"
	"github.com/shivam2014/trading-journal-stream/internal/registry"
)

// Server accepts WebSocket connections on /ws, authenticates them before the
// upgrade, and hands accepted connections to the registry and dispatcher.
type Server struct {
	logger *slog.Logger
	auth   *auth.Authenticator
	reg    *registry.Registry
	disp   *Dispatcher

	connCfg  registry.ConnConfig
	upgrader websocket.Upgrader
	http     *http.Server
}

// NewServer wires the WebSocket endpoint. cfg supplies the listen address
// and per-connection limits.
func NewServer(cfg config.StreamConfig, authn *auth.Authenticator, reg *registry.Registry, disp *Dispatcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger: logger.With(slog.String("component", "server")),
		auth:   authn,
		reg:    reg,
		disp:   disp,
		connCfg: registry.ConnConfig{
			WriteTimeout:   cfg.WebSocket.WriteTimeout,
			ReadLimit:      cfg.WebSocket.ReadLimit,
			SendBufferSize: cfg.WebSocket.SendBufferSize,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from the journal's own origin; the
			// deployment fronts this with a proxy that enforces it.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", Chain(http.HandlerFunc(s.handleWS), RequestLogger(s.logger)))

	s.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
	}
	return s
}

// Handler exposes the server's mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start begins serving in a background goroutine. Fatal listener errors are
// reported on the returned channel.
func (s *Server) Start() <-chan error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	return errc
}

// Stop shuts the HTTP listener down gracefully. Open WebSocket connections
// are closed by the registry, not here.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// handleWS authenticates the request, upgrades it, and runs the connection
// until it closes. The goroutine serving the HTTP request becomes the
// connection's read pump.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.Authenticate(r)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			s.logger.Warn("rejecting unauthenticated connection",
				"remote_addr", r.RemoteAddr,
			)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		s.logger.Error("authentication check failed",
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := registry.NewConn(ws, userID, s.connCfg, s.logger, func(c *registry.Conn) {
		s.reg.Remove(c)
	})
	s.reg.Add(conn)
	s.logger.Info("connection opened",
		"conn_id", conn.ID(),
		"user_id", userID,
		"connections", s.reg.Len(),
	)

	conn.Run(s.disp.Handle)

	s.logger.Info("connection closed",
		"conn_id", conn.ID(),
		"user_id", userID,
	)
}

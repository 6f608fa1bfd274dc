// Package transport serves driver sessions over WebSocket.
//
// The server sends one script frame per cycle and reads event frames from
// the client. The client side mirrors the element tree in an element.Memory.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/viewcore/pkg/driver"
	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/protocol"
)

// Session is the per-connection driver. *driver.Driver satisfies it.
type Session interface {
	Send(msg element.Message) error
	Run(ctx context.Context) error
	Close()
}

// SessionFunc creates the session for a new connection. tree receives the
// session's scripts.
type SessionFunc func(tree element.Tree) Session

// Config holds the WebSocket settings.
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int

	// MaxMessageSize is the largest frame accepted from a client.
	MaxMessageSize int64

	// ReadTimeout closes connections that send nothing, not even a pong,
	// for this long.
	ReadTimeout time.Duration

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration

	// PingInterval is how often the server pings. It should be well below
	// ReadTimeout.
	PingInterval time.Duration

	// CheckOrigin validates the Origin header. Nil accepts same-origin
	// requests only.
	CheckOrigin func(r *http.Request) bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		MaxMessageSize:  64 * 1024,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		PingInterval:    25 * time.Second,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithConfig replaces the default Config.
func WithConfig(config Config) Option {
	return func(s *Server) {
		s.config = config
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// Server accepts WebSocket connections and runs one Session per connection.
type Server struct {
	config     Config
	logger     *slog.Logger
	gatherer   prometheus.Gatherer
	newSession SessionFunc
	upgrader   websocket.Upgrader

	active atomic.Int64
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// New creates a Server.
func New(newSession SessionFunc, opts ...Option) *Server {
	s := &Server{
		config:     DefaultConfig(),
		logger:     slog.Default(),
		newSession: newSession,
		conns:      make(map[*websocket.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  s.config.ReadBufferSize,
		WriteBufferSize: s.config.WriteBufferSize,
		CheckOrigin:     s.config.CheckOrigin,
	}
	return s
}

// Handler returns the HTTP routes: /ws, /healthz and, with a gatherer,
// /metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.HandleWebSocket)
	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Active returns the number of open sessions.
func (s *Server) Active() int {
	return int(s.active.Load())
}

// Wait blocks until every session has ended.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Shutdown asks every connected client to go away and waits for the
// sessions to end, or for ctx to be done. http.Server.Shutdown does not
// close hijacked connections, so call both.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.conns {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) track(conn *websocket.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.Active(),
	})
}

// HandleWebSocket upgrades the request and serves one session until the
// client disconnects.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.wg.Add(1)
	defer s.wg.Done()
	s.active.Add(1)
	defer s.active.Add(-1)
	s.track(conn, true)
	defer s.track(conn, false)

	remote := NewRemote(conn, s.config.WriteTimeout)
	sess := s.newSession(remote)
	logger := s.logger.With("remote", conn.RemoteAddr().String())
	logger.Info("session started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("session ended with error", "error", err)
		}
	}()
	go s.pingLoop(ctx, conn)

	s.readLoop(conn, remote, sess, logger)

	remote.detach()
	sess.Close()
	cancel()
	<-done
	logger.Info("session ended")
}

func (s *Server) readLoop(conn *websocket.Conn, remote *Remote, sess Session, logger *slog.Logger) {
	conn.SetReadLimit(s.config.MaxMessageSize)
	if s.config.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		})
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				logger.Error("read error", "error", err)
			}
			return
		}
		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}

		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			logger.Error("frame decode error", "error", err)
			remote.SendError(protocol.NewError(protocol.ErrInvalidFrame, err.Error()))
			continue
		}

		switch frame.Type {
		case protocol.FrameEvent:
			ef, err := protocol.DecodeEvent(frame.Payload)
			if err != nil {
				logger.Error("event decode error", "error", err)
				remote.SendError(protocol.NewError(protocol.ErrInvalidEvent, "invalid event format"))
				continue
			}
			if err := sess.Send(ef.Message()); err != nil {
				if errors.Is(err, driver.ErrClosed) {
					return
				}
				remote.SendError(protocol.NewError(protocol.ErrQueueFull, "event queue full"))
			}

		case protocol.FrameError:
			em, err := protocol.DecodeErrorMessage(frame.Payload)
			if err != nil {
				logger.Error("error frame decode error", "error", err)
				continue
			}
			logger.Warn("client reported error", "code", em.Code.String(), "message", em.Message)
			if em.Fatal {
				return
			}

		default:
			logger.Warn("unexpected frame type", "type", frame.Type)
		}
	}
}

func (s *Server) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if s.config.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

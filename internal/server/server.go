// Package server implements the bootstrap and lifecycle of the relaychat
// WebSocket server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/dispatch"
	"github.com/Tyrowin/relaychat/internal/processor"
	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/Tyrowin/relaychat/internal/registry"
)

var (
	// ErrAlreadyStarted is returned by Start on a server that is running.
	ErrAlreadyStarted = errors.New("server: already started")
	// ErrNotInitialized is returned by Start before Init has succeeded.
	ErrNotInitialized = errors.New("server: not initialized")
	// ErrServerClosed is returned by Init and Start after Shutdown.
	ErrServerClosed = errors.New("server: closed")
)

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the logger used by the server and everything it builds.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry shares an existing registry instead of allocating a new one.
func WithRegistry(reg *registry.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithValidator requires a valid bearer token on every upgrade request.
// It takes precedence over Config.JWTSecret.
func WithValidator(v auth.Validator) Option {
	return func(s *Server) { s.validator = v }
}

// WithRoomDirectory gates room joins on the directory's availability answer.
func WithRoomDirectory(dir processor.RoomDirectory) Option {
	return func(s *Server) { s.rooms = dir }
}

// Server accepts WebSocket connections and routes their messages through the
// dispatcher on a fixed pool of workers.
type Server struct {
	cfg       Config
	logger    *slog.Logger
	registry  *registry.Registry
	validator auth.Validator
	rooms     processor.RoomDirectory

	mu          sync.Mutex
	initialized bool
	closed      bool
	started     atomic.Bool

	link       *processor.Link
	dispatcher *dispatch.Dispatcher
	upgrader   websocket.Upgrader
	pool       *workerPool
	mux        *http.ServeMux

	listen     func(ctx context.Context, network, address string) (net.Listener, error)
	httpServer *http.Server
	listener   net.Listener
	group      *errgroup.Group
	cancel     context.CancelFunc

	clientsMu sync.Mutex
	clients   map[string]*Client
	pumps     sync.WaitGroup
}

// New creates a Server for cfg. The configuration is copied and sanitized.
func New(cfg *Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	s := &Server{
		cfg:     *cfg,
		logger:  slog.Default(),
		clients: make(map[string]*Client),
		listen:  (&net.ListenConfig{}).Listen,
	}
	s.cfg.Sanitize()
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "server"))
	if s.registry == nil {
		s.registry = registry.New()
	}
	if s.validator == nil && s.cfg.JWTSecret != "" {
		s.validator = auth.NewJWTValidator(s.cfg.JWTSecret)
	}
	return s
}

// Registry returns the registry the server routes against.
func (s *Server) Registry() *registry.Registry { return s.registry }

// Init allocates the worker pool and builds the per-connection pipeline.
// Calling it again before Start is a no-op.
func (s *Server) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.initialized {
		return nil
	}

	s.link = processor.NewLink(s.registry, s.logger)
	room := processor.NewRoom(s.registry, s.rooms, s.logger)
	s.dispatcher = dispatch.New(s.logger, map[protocol.AppID]dispatch.Processor{
		protocol.AppLink:     s.link,
		protocol.AppChatRoom: room,
	})

	origins := newOriginPolicy(s.cfg.AllowedOrigins, s.logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.checkOrigin,
	}

	s.pool = newWorkerPool(s.cfg.Workers, s.cfg.WorkerQueue, s.process, s.logger)
	s.mux = s.setupRoutes()
	s.initialized = true

	s.logger.Info("server initialized",
		slog.Int("acceptors", s.cfg.Acceptors),
		slog.Int("workers", s.pool.size()),
		slog.String("poller", pollerName()),
		slog.Bool("auth", s.validator != nil),
		slog.Bool("room_directory", s.rooms != nil))
	return nil
}

// Handler returns the server's HTTP handler. It is nil before Init.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mux == nil {
		return nil
	}
	return s.mux
}

// createHTTPServer creates and configures the HTTP server with security settings
func createHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Start binds the listener and launches the accept loops and housekeeping.
// It returns once the server is accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if !s.initialized {
		return ErrNotInitialized
	}
	if s.started.Load() {
		return ErrAlreadyStarted
	}

	ln, err := s.listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = &sharedListener{Listener: ln}
	s.httpServer = createHTTPServer(s.cfg.Addr, s.mux)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.start(context.WithoutCancel(ctx))

	// Upgrades are admitted as soon as an acceptor runs.
	s.started.Store(true)

	group, groupCtx := errgroup.WithContext(runCtx)
	for i := 0; i < s.cfg.Acceptors; i++ {
		group.Go(func() error {
			if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("acceptor %d: %w", i, err)
			}
			return nil
		})
	}
	group.Go(func() error {
		s.housekeep(groupCtx)
		return nil
	})
	s.group = group

	s.logger.Info("server listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("path", s.cfg.Path))
	return nil
}

// Addr returns the bound listener address, or nil when not started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// IsStarted reports whether Start has succeeded and Shutdown has not run.
func (s *Server) IsStarted() bool {
	return s.started.Load()
}

// housekeep periodically drops registry entries whose transport has gone away
// without a teardown notification.
func (s *Server) housekeep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := s.registry.Conns.PruneInactive(); len(pruned) > 0 {
				s.logger.Info("pruned inactive connections",
					slog.Int("pruned", len(pruned)),
					slog.Int("remaining", s.registry.Conns.Count()))
			}
		}
	}
}

// process is the worker pool's handler.
func (s *Server) process(ctx context.Context, c *Client, env *protocol.Envelope) {
	s.dispatcher.Dispatch(ctx, c, env)
}

// track records c and reserves its two pump goroutines. It refuses once
// Shutdown has begun.
func (s *Server) track(c *Client) bool {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	if !s.started.Load() {
		return false
	}
	s.clients[c.ID()] = c
	s.pumps.Add(2)
	return true
}

// clientClosed runs once per client after its read pump exits.
func (s *Server) clientClosed(c *Client) {
	s.clientsMu.Lock()
	delete(s.clients, c.ID())
	s.clientsMu.Unlock()

	s.link.HandleClosed(c)
}

// closeClients closes every live client transport.
func (s *Server) closeClients() int {
	s.clientsMu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.Unlock()

	for _, c := range clients {
		_ = c.Close()
	}
	return len(clients)
}

// ClientCount returns the number of open WebSocket connections.
func (s *Server) ClientCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

func (s *Server) waitPumps(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pumps.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting connections, closes all client transports, drains
// the worker queues and stops the pools. It is a no-op on a server that is
// not running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.started.CompareAndSwap(true, false) {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	httpServer, pool, group, cancel := s.httpServer, s.pool, s.group, s.cancel
	s.mu.Unlock()

	s.logger.Info("initiating server shutdown")

	var errs []error
	if err := httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	closed := s.closeClients()
	s.logger.Info("closed client connections", slog.Int("clients", closed))
	if err := s.waitPumps(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wait for client pumps: %w", err))
	}

	if err := pool.stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop worker pool: %w", err))
	}

	cancel()
	if err := group.Wait(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		s.logger.Info("server shutdown completed")
	}
	return errors.Join(errs...)
}

// sharedListener lets several accept loops serve one listener. Each Serve
// call closes its listener on return, so only the first Close reaches the
// socket.
type sharedListener struct {
	net.Listener
	once sync.Once
	err  error
}

func (l *sharedListener) Close() error {
	l.once.Do(func() { l.err = l.Listener.Close() })
	return l.err
}

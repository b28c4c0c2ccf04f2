package chat

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the runtime knobs of the server. Zero values fall back to the
// defaults below.
type Config struct {
	Addr        string
	MetricsAddr string // optional, promhttp endpoint
	WSAddr      string // optional, WebSocket transport

	InactivityTimeout time.Duration
	SweepInterval     time.Duration
}

func (c *Config) sanitize() {
	if c.Addr == "" {
		c.Addr = ":5000"
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = 1800 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Second
	}
}

type Server struct {
	cfg    Config
	logger *slog.Logger
	reg    *Registry
	router *Router

	listener      net.Listener
	wsServer      *http.Server
	metricsLn     net.Listener
	metricsServer *http.Server
	nextID        atomic.Uint64
	stopCh   chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	sessions map[uint64]*Session
}

func NewServer(cfg Config, reg *Registry, logger *slog.Logger) *Server {
	cfg.sanitize()
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		logger:   logger,
		reg:      reg,
		router:   NewRouter(reg, logger),
		stopCh:   make(chan struct{}),
		sessions: make(map[uint64]*Session),
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	if s.cfg.WSAddr != "" {
		if err := s.startWS(s.cfg.WSAddr); err != nil {
			ln.Close()
			return err
		}
	}
	if s.cfg.MetricsAddr != "" {
		if err := s.startMetrics(s.cfg.MetricsAddr); err != nil {
			s.stopWS()
			ln.Close()
			return err
		}
	}

	go s.acceptLoop(ln)
	go s.sweepLoop()

	s.logger.Info("server started", "addr", s.cfg.Addr)
	return nil
}

// Addr reports the bound listen address; useful when the configured port
// was 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// startMetrics exposes the prometheus collectors over HTTP.
func (s *Server) startMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.metricsLn = ln

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.metricsServer = &http.Server{Handler: mux}

	go func() {
		if err := s.metricsServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics endpoint stopped", "error", err)
		}
	}()

	s.logger.Info("metrics endpoint started", "addr", addr)
	return nil
}

// Stop notifies every live session, then closes the listeners and waits for
// nothing further: sessions finish their own cleanup when their reads
// unblock.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("shutting down")

		close(s.stopCh)
		for _, sess := range s.snapshotSessions() {
			sess.Terminate("Server is shutting down. Goodbye!")
		}

		if s.listener != nil {
			s.listener.Close()
		}
		s.stopWS()
		if s.metricsServer != nil {
			s.metricsServer.Close()
		}

		s.logger.Info("shutdown complete")
	})
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed; normal shutdown path.
			return
		}
		s.logger.Info("client connected", "addr", conn.RemoteAddr().String())
		sess := s.startSession(tcpConn{conn})
		go sess.run()
	}
}

// startSession registers a new session for conn and returns it; the caller
// runs it.
func (s *Server) startSession(conn Conn) *Session {
	sess := newSession(s.nextID.Add(1), conn, s.reg, s.router, s, s.logger)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	ConnectedSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	return sess
}

// removeSession drops the session from the index and logs its user out.
// Idempotent: sessions call it from their guaranteed cleanup path, and
// shutdown may race with that.
func (s *Server) removeSession(id uint64) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	ConnectedSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	if !ok {
		return
	}
	if name := sess.Username(); name != "" {
		s.reg.Logout(name)
	}
}

func (s *Server) snapshotSessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// sweepLoop force-disconnects sessions whose user has been inactive longer
// than the configured timeout.
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepIdle()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) sweepIdle() {
	now := time.Now()
	for _, sess := range s.snapshotSessions() {
		name := sess.Username()
		if name == "" {
			continue
		}
		lastActive, online := s.reg.LastActive(name)
		if online && now.Sub(lastActive) > s.cfg.InactivityTimeout {
			s.logger.Info("disconnecting idle session", "username", name, "session_id", sess.ID)
			// Terminate in its own goroutine so one stalled client cannot
			// hold up the sweep.
			go sess.Terminate("You have been logged out due to inactivity.")
		}
	}
}

// tcpConn adapts net.Conn to the session transport, reducing the remote
// address to its host part so lockout counters survive reconnects from
// ephemeral ports.
type tcpConn struct {
	net.Conn
}

func (t tcpConn) RemoteAddr() string {
	return hostOnly(t.Conn.RemoteAddr().String())
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

package chat

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Session is one client connection: the authentication handshake followed by
// the command loop. It moves through Connecting, Authenticating,
// Authenticated, and Closed; lockout ends it from the Authenticating state.
type Session struct {
	ID   uint64
	Addr string // source address without port; lockout is keyed by this

	conn   Conn
	out    chan string
	reg    *Registry
	router *Router
	server *Server
	logger *slog.Logger

	mu            sync.Mutex
	username      string
	authenticated bool
	closed        bool

	wmu sync.Mutex // serializes raw writes to conn between writer and Terminate

	writerDone  <-chan struct{}
	cleanupOnce sync.Once
}

func newSession(id uint64, conn Conn, reg *Registry, router *Router, server *Server, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ID:     id,
		Addr:   conn.RemoteAddr(),
		conn:   conn,
		out:    make(chan string, 32),
		reg:    reg,
		router: router,
		server: server,
		logger: logger,
	}
}

// Username returns the bound username, or "" before authentication.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Push queues one line for the client. Non-blocking: a slow or stalled
// client drops lines rather than stalling the sender.
func (s *Session) Push(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- line:
	default:
	}
}

// pushBlocking queues one line, waiting for the writer to drain the buffer
// instead of dropping. Only the session's own goroutine may call it, and only
// before cleanup closes the out channel; it gives up once the writer has
// exited on a dead connection.
func (s *Session) pushBlocking(line string) bool {
	select {
	case s.out <- line:
		return true
	case <-s.writerDone:
		return false
	}
}

// Terminate notifies the client and closes the connection, unblocking the
// read loop so its cleanup path runs. Used for inactivity timeouts and
// server shutdown. The notice is written directly so it beats the close,
// under the write lock so it cannot interleave with an in-flight line.
func (s *Session) Terminate(notice string) {
	s.wmu.Lock()
	fmt.Fprintf(s.conn, "%s\n", notice)
	s.wmu.Unlock()
	s.conn.Close()
}

func (s *Session) run() {
	defer s.cleanup()

	s.writerDone = startOutboundWriter(s.conn, s.out, &s.wmu)
	reader := bufio.NewReader(s.conn)

	if !s.authenticate(reader) {
		return
	}

	s.deliverPending()

	for {
		line, err := readLine(reader)
		if err != nil {
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		reply, logout := s.router.Dispatch(s, line)
		if reply != "" {
			s.Push(reply)
		}
		if logout {
			return
		}
	}
}

// authenticate drives the username/password handshake. There is no retry
// limit here; the registry's per-address counter enforces the lockout, so
// failures against different usernames still count against the address.
func (s *Session) authenticate(reader *bufio.Reader) bool {
	for {
		s.Push("Username:")
		username, err := readLine(reader)
		if err != nil {
			return false
		}
		s.Push("Password:")
		password, err := readLine(reader)
		if err != nil {
			return false
		}

		res := s.reg.Authenticate(strings.TrimSpace(username), password, s.Addr, s)
		switch res.Status {
		case AuthSuccess:
			s.mu.Lock()
			s.username = strings.TrimSpace(username)
			s.authenticated = true
			s.mu.Unlock()
			s.Push("Welcome to simple chat server!")
			s.logger.Info("session authenticated", "session_id", s.ID, "username", s.Username(), "addr", s.Addr)
			return true
		case AuthLocked:
			s.Push(fmt.Sprintf("Too many failed login attempts from your address. Try again in %d seconds.", res.SecondsLeft))
			s.logger.Info("session rejected, address locked", "session_id", s.ID, "addr", s.Addr)
			return false
		case AuthAlreadyOnline:
			s.Push("This user is already logged in. Only one session per user is allowed.")
		case AuthFailure:
			s.Push("Sorry! Incorrect username and password combination. Please try again.")
		}
	}
}

// deliverPending drains the offline queue accumulated while the user was
// away, oldest first. The drain is destructive, so these sends must not
// drop: this runs on the session's own goroutine before the read loop, where
// blocking until the writer catches up is safe.
func (s *Session) deliverPending() {
	pending := s.reg.DrainOffline(s.Username())
	if len(pending) == 0 {
		return
	}
	if !s.pushBlocking(fmt.Sprintf("You have %d message(s) that arrived while you were away:", len(pending))) {
		return
	}
	for _, m := range pending {
		if !s.pushBlocking(formatDelivery(m.From, m.Body)) {
			return
		}
	}
}

// cleanup runs exactly once no matter how the session ends: client
// disconnect, forced logout, transport error, or server shutdown. It
// releases the stream and deregisters from the server index, which in turn
// logs the bound user out of the registry.
func (s *Session) cleanup() {
	s.cleanupOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.out)
		s.mu.Unlock()

		// Give the writer a moment to flush farewell lines, but never hang
		// on a stalled client.
		if s.writerDone != nil {
			select {
			case <-s.writerDone:
			case <-time.After(time.Second):
			}
		}

		// Deregister before closing the stream so a peer that observes the
		// disconnect already sees this user as offline.
		if s.server != nil {
			s.server.removeSession(s.ID)
		} else if name := s.Username(); name != "" {
			s.reg.Logout(name)
		}
		s.conn.Close()
		s.logger.Info("session closed", "session_id", s.ID, "addr", s.Addr)
	})
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err == nil {
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF && line != "" {
		// last line without newline
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF {
		return "", io.EOF
	}
	return "", fmt.Errorf("read: %w", err)
}

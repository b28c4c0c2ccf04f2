package chat

import (
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocket transport: the same line protocol, one session per socket.
// Browser clients send lines as text frames; the server writes each flushed
// chunk as one text frame.

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The protocol has its own authentication; any origin may connect.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) startWS(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.wsServer = &http.Server{Handler: mux}

	go func() {
		if err := s.wsServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("websocket server stopped", "error", err)
		}
	}()

	s.logger.Info("websocket transport started", "addr", addr)
	return nil
}

func (s *Server) stopWS() {
	if s.wsServer != nil {
		s.wsServer.Close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	s.logger.Info("websocket client connected", "addr", c.RemoteAddr().String())

	sess := s.startSession(newWSConn(c))
	go sess.run()
}

// wsConn presents a websocket as a byte stream so the session's line reader
// and writer work unchanged across both transports.
type wsConn struct {
	c *websocket.Conn
	r io.Reader // current inbound frame

	wmu sync.Mutex // gorilla allows only one concurrent writer
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{c: c}
}

func (w *wsConn) Read(p []byte) (int, error) {
	for {
		if w.r == nil {
			_, r, err := w.c.NextReader()
			if err != nil {
				return 0, err
			}
			w.r = r
		}
		n, err := w.r.Read(p)
		if err == io.EOF {
			w.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (w *wsConn) Write(p []byte) (int, error) {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	if err := w.c.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsConn) Close() error {
	return w.c.Close()
}

func (w *wsConn) RemoteAddr() string {
	return hostOnly(w.c.RemoteAddr().String())
}

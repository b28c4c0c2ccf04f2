package chat

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// The WebSocket transport must carry the same protocol end to end: one text
// frame per line in each direction.
func TestWS_AuthenticatedSession(t *testing.T) {
	srv, _ := newTestServer(Config{}, "alice", "pw1", "bob", "pw2")

	ts := httptest.NewServer(http.HandlerFunc(srv.handleWS))
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	readLine := func() string {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		return strings.TrimRight(string(data), "\r\n")
	}
	send := func(line string) {
		if err := c.WriteMessage(websocket.TextMessage, []byte(line+"\n")); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}

	if got := readLine(); got != "Username:" {
		t.Fatalf("expected username prompt, got %q", got)
	}
	send("alice")
	if got := readLine(); got != "Password:" {
		t.Fatalf("expected password prompt, got %q", got)
	}
	send("pw1")
	if got := readLine(); got != "Welcome to simple chat server!" {
		t.Fatalf("expected welcome, got %q", got)
	}

	// A TCP peer and a WebSocket peer share the same registry.
	bob := connect(t, srv)
	bob.authenticate(t, "bob", "pw2")

	send("whoelse")
	if got := readLine(); got != "Online users: bob" {
		t.Fatalf("expected bob online, got %q", got)
	}

	bob.send(t, "message alice hi from tcp")
	if got := readLine(); got != "bob (private): hi from tcp" {
		t.Fatalf("expected private delivery, got %q", got)
	}

	send("logout")
	if got := readLine(); got != "Goodbye!" {
		t.Fatalf("expected farewell, got %q", got)
	}
}

package chat

import (
	"strings"
	"testing"
	"time"
)

func login(t *testing.T, r *Registry, username, password string) *Session {
	t.Helper()
	sess := newTestSession()
	res := r.Authenticate(username, password, "10.0.0."+username, sess)
	if res.Status != AuthSuccess {
		t.Fatalf("login(%s): expected AuthSuccess, got %v", username, res.Status)
	}
	sess.username = username
	sess.authenticated = true
	return sess
}

func waitForPrefix(t *testing.T, ch <-chan string, prefix string) string {
	t.Helper()
	deadline := time.NewTimer(1 * time.Second)
	defer deadline.Stop()
	for {
		select {
		case s := <-ch:
			if strings.HasPrefix(s, prefix) {
				return s
			}
			// ignore other lines
		case <-deadline.C:
			t.Fatalf("timeout waiting for prefix %q", prefix)
		}
	}
}

func TestRouter_WhoElse(t *testing.T) {
	r := newTestRegistry(t, "alice", "pw1", "bob", "pw2")
	rt := NewRouter(r, nil)
	alice := login(t, r, "alice", "pw1")

	reply, logout := rt.Dispatch(alice, "WHOELSE")
	if logout {
		t.Fatal("whoelse must not end the session")
	}
	if reply != "No other users are online." {
		t.Fatalf("unexpected reply: %q", reply)
	}

	login(t, r, "bob", "pw2")
	reply, _ = rt.Dispatch(alice, "whoelse")
	if reply != "Online users: bob" {
		t.Fatalf("unexpected reply after bob login: %q", reply)
	}
}

func TestRouter_WhoLastHr(t *testing.T) {
	r := newTestRegistry(t, "alice", "pw1", "bob", "pw2", "carol", "pw3")
	rt := NewRouter(r, nil)
	alice := login(t, r, "alice", "pw1")
	login(t, r, "bob", "pw2")
	r.Logout("bob") // offline but active moments ago

	reply, _ := rt.Dispatch(alice, "WHOLASTHR")
	if reply != "Active in the last hour: bob" {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestRouter_MessageDeliversLive(t *testing.T) {
	r := newTestRegistry(t, "alice", "pw1", "bob", "pw2")
	rt := NewRouter(r, nil)
	alice := login(t, r, "alice", "pw1")
	bob := login(t, r, "bob", "pw2")

	reply, _ := rt.Dispatch(alice, "MESSAGE bob hello there")
	if reply != "Message delivered to bob." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	got := waitForPrefix(t, bob.out, "alice")
	if got != "alice (private): hello there" {
		t.Fatalf("unexpected delivery line: %q", got)
	}
}

func TestRouter_MessageCollapsesWhitespace(t *testing.T) {
	r := newTestRegistry(t, "alice", "pw1", "bob", "pw2")
	rt := NewRouter(r, nil)
	alice := login(t, r, "alice", "pw1")
	bob := login(t, r, "bob", "pw2")

	rt.Dispatch(alice, "message bob two   words\tapart")
	got := waitForPrefix(t, bob.out, "alice")
	if got != "alice (private): two words apart" {
		t.Fatalf("unexpected delivery line: %q", got)
	}
}

func TestRouter_MessageQueuesForOfflineUser(t *testing.T) {
	r := newTestRegistry(t, "alice", "pw1", "bob", "pw2")
	rt := NewRouter(r, nil)
	alice := login(t, r, "alice", "pw1")

	reply, _ := rt.Dispatch(alice, "message bob are you there")
	if !strings.Contains(reply, "offline") {
		t.Fatalf("unexpected reply: %q", reply)
	}

	drained := r.DrainOffline("bob")
	if len(drained) != 1 || drained[0].Body != "are you there" || drained[0].From != "alice" {
		t.Fatalf("unexpected queued message: %+v", drained)
	}
}

func TestRouter_MessageToBlockingRecipientIsRejected(t *testing.T) {
	r := newTestRegistry(t, "alice", "pw1", "bob", "pw2")
	rt := NewRouter(r, nil)
	alice := login(t, r, "alice", "pw1")
	bob := login(t, r, "bob", "pw2")

	if reply, _ := rt.Dispatch(bob, "block alice"); reply != "User alice has been blocked." {
		t.Fatalf("unexpected block reply: %q", reply)
	}
	reply, _ := rt.Dispatch(alice, "message bob psst")
	if reply != "Your message was not delivered: bob has blocked you." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if got := r.DrainOffline("bob"); got != nil {
		t.Fatalf("rejected message must not queue: %+v", got)
	}

	if reply, _ := rt.Dispatch(bob, "unblock alice"); reply != "User alice has been unblocked." {
		t.Fatalf("unexpected unblock reply: %q", reply)
	}
	if reply, _ := rt.Dispatch(alice, "message bob psst"); reply != "Message delivered to bob." {
		t.Fatalf("unexpected reply after unblock: %q", reply)
	}
}

func TestRouter_BroadcastFansOut(t *testing.T) {
	r := newTestRegistry(t, "alice", "pw1", "bob", "pw2", "carol", "pw3")
	rt := NewRouter(r, nil)
	alice := login(t, r, "alice", "pw1")
	bob := login(t, r, "bob", "pw2")
	carol := login(t, r, "carol", "pw3")

	reply, _ := rt.Dispatch(alice, "broadcast hi everyone")
	if reply != "Message broadcast to 2 user(s)." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	for _, sess := range []*Session{bob, carol} {
		if got := waitForPrefix(t, sess.out, "alice"); got != "alice: hi everyone" {
			t.Fatalf("unexpected broadcast line: %q", got)
		}
	}
}

func TestRouter_BroadcastReportsBlockedRecipients(t *testing.T) {
	r := newTestRegistry(t, "alice", "pw1", "bob", "pw2", "carol", "pw3")
	rt := NewRouter(r, nil)
	alice := login(t, r, "alice", "pw1")
	login(t, r, "bob", "pw2")
	carol := login(t, r, "carol", "pw3")

	rt.Dispatch(carol, "block alice")
	reply, _ := rt.Dispatch(alice, "broadcast hi everyone")
	if reply != "Message broadcast to 1 user(s)." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	notice := waitForPrefix(t, alice.out, "Your message was not delivered")
	if !strings.Contains(notice, "carol") {
		t.Fatalf("notice should name the blocking recipient: %q", notice)
	}
}

func TestRouter_UsageAndUnknown(t *testing.T) {
	r := newTestRegistry(t, "alice", "pw1")
	rt := NewRouter(r, nil)
	alice := login(t, r, "alice", "pw1")

	cases := map[string]string{
		"broadcast":       "Usage: broadcast <message>",
		"message":         "Usage: message <user> <message>",
		"message bob":     "Usage: message <user> <message>",
		"block":           "Usage: block <user>",
		"message ghost x": "User ghost does not exist.",
		"block ghost":     "User ghost does not exist.",
		"block alice":     "You cannot block yourself.",
		"frobnicate":      notUnderstood,
	}
	for input, want := range cases {
		if reply, _ := rt.Dispatch(alice, input); reply != want {
			t.Errorf("Dispatch(%q) = %q, want %q", input, reply, want)
		}
	}
}

func TestRouter_LogoutEndsSession(t *testing.T) {
	r := newTestRegistry(t, "alice", "pw1")
	rt := NewRouter(r, nil)
	alice := login(t, r, "alice", "pw1")

	reply, logout := rt.Dispatch(alice, "LOGOUT")
	if !logout {
		t.Fatal("logout must end the session")
	}
	if reply != "Goodbye!" {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestRouter_TimeAndGreetings(t *testing.T) {
	r := newTestRegistry(t, "alice", "pw1")
	rt := NewRouter(r, nil)
	alice := login(t, r, "alice", "pw1")

	if reply, _ := rt.Dispatch(alice, "time"); !strings.HasPrefix(reply, "It is currently ") {
		t.Fatalf("unexpected time reply: %q", reply)
	}
	// Greetings match by prefix, like "hiya" or "heyo".
	for _, input := range []string{"hello", "hiya", "heyo", "HELLO there"} {
		reply, _ := rt.Dispatch(alice, input)
		if !strings.HasSuffix(reply, " alice!") {
			t.Fatalf("Dispatch(%q): unexpected greeting %q", input, reply)
		}
	}
}

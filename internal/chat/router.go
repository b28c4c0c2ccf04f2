package chat

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

// recentWindow is the activity window the WHOLASTHR command reports on.
const recentWindow = time.Hour

const notUnderstood = "Sorry, I did not understand what you just said."

var greetings = []string{"Hi", "Hello", "Greetings", "Howdy", "Hey", "Yo"}

// knownCommands gates activity tracking: only recognized commands count as
// activity.
var knownCommands = map[string]struct{}{
	"whoelse": {}, "wholasthr": {}, "broadcast": {}, "message": {},
	"block": {}, "unblock": {}, "logout": {}, "time": {},
}

// isGreeting matches by prefix, so "hiya" or "heyo" greet too.
func isGreeting(cmd string) bool {
	return strings.HasPrefix(cmd, "hello") ||
		strings.HasPrefix(cmd, "hi") ||
		strings.HasPrefix(cmd, "hey")
}

// Router turns one line of authenticated client input into registry calls
// and a response line. It never fails upward; bad input becomes a response.
type Router struct {
	reg    *Registry
	logger *slog.Logger
}

func NewRouter(reg *Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{reg: reg, logger: logger}
}

// Dispatch handles one command line from caller. The first whitespace token
// is the command name, case-insensitive. logout reports that the session
// should close after sending the reply. Extra per-recipient notices (blocked
// broadcast targets) are pushed to the caller directly; the returned reply
// is always a single line.
func (rt *Router) Dispatch(caller *Session, line string) (reply string, logout bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return notUnderstood, false
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]
	username := caller.Username()

	_, known := knownCommands[cmd]
	switch {
	case known:
		rt.reg.TouchActivity(username)
	case isGreeting(cmd):
		rt.reg.TouchActivity(username)
		cmd = "greeting"
	default:
		cmd = "unknown"
	}

	start := time.Now()
	defer func() {
		CommandsTotal.WithLabelValues(cmd).Inc()
		CommandDuration.WithLabelValues(cmd).Observe(time.Since(start).Seconds())
	}()

	switch cmd {
	case "whoelse":
		return formatUserList("Online users", "No other users are online.", rt.reg.ListOnline(username)), false

	case "wholasthr":
		return formatUserList("Active in the last hour", "No other users were active in the last hour.",
			rt.reg.ListRecentlyActive(recentWindow, username)), false

	case "broadcast":
		return rt.broadcast(caller, username, args), false

	case "message":
		return rt.directMessage(caller, username, args), false

	case "block":
		if len(args) != 1 {
			return "Usage: block <user>", false
		}
		target := args[0]
		switch err := rt.reg.Block(username, target); err {
		case ErrUnknownUser:
			return fmt.Sprintf("User %s does not exist.", target), false
		case ErrSelfBlock:
			return "You cannot block yourself.", false
		default:
			return fmt.Sprintf("User %s has been blocked.", target), false
		}

	case "unblock":
		if len(args) != 1 {
			return "Usage: unblock <user>", false
		}
		target := args[0]
		wasBlocked, err := rt.reg.Unblock(username, target)
		if err != nil {
			return fmt.Sprintf("User %s does not exist.", target), false
		}
		if !wasBlocked {
			return fmt.Sprintf("User %s was not blocked.", target), false
		}
		return fmt.Sprintf("User %s has been unblocked.", target), false

	case "logout":
		return "Goodbye!", true

	case "time":
		now := time.Now()
		return fmt.Sprintf("It is currently %s on %s.",
			now.Format("3:04 PM"), now.Format("Monday, January 2, 2006")), false

	case "greeting":
		return greetings[rand.Intn(len(greetings))] + " " + username + "!", false

	default:
		return notUnderstood, false
	}
}

// broadcast fans the message out to every online user except the sender.
// Recipients who blocked the sender are reported back one notice per
// recipient rather than silently dropped.
func (rt *Router) broadcast(caller *Session, username string, args []string) string {
	if len(args) == 0 {
		return "Usage: broadcast <message>"
	}
	body := Unescape(strings.Join(args, " "))

	recipients := rt.reg.ListOnline(username)
	if len(recipients) == 0 {
		return "No other users are online."
	}

	msg := Message{From: username, Body: body, Recipients: recipients, SentAt: time.Now()}
	delivered := 0
	for _, d := range rt.reg.EnqueueOrDeliver(msg) {
		switch d.Outcome {
		case DeliveredLive:
			d.Target.Push(formatDelivery(username, body))
			delivered++
		case Queued:
			// Recipient went offline between the snapshot and delivery.
			delivered++
		case RejectedBlocked:
			caller.Push(fmt.Sprintf("Your message was not delivered to %s: they have blocked you.", d.Recipient))
		}
	}
	return fmt.Sprintf("Message broadcast to %d user(s).", delivered)
}

func (rt *Router) directMessage(caller *Session, username string, args []string) string {
	if len(args) < 2 {
		return "Usage: message <user> <message>"
	}
	target := args[0]
	body := Unescape(strings.Join(args[1:], " "))

	if !rt.reg.Knows(target) {
		return fmt.Sprintf("User %s does not exist.", target)
	}

	msg := Message{From: username, Body: body, Recipients: []string{target}, SentAt: time.Now()}
	results := rt.reg.EnqueueOrDeliver(msg)
	if len(results) == 0 {
		return fmt.Sprintf("User %s does not exist.", target)
	}
	switch d := results[0]; d.Outcome {
	case DeliveredLive:
		d.Target.Push(formatPrivate(username, body))
		return fmt.Sprintf("Message delivered to %s.", target)
	case Queued:
		return fmt.Sprintf("User %s is offline. Your message will be delivered when they return.", target)
	default:
		return fmt.Sprintf("Your message was not delivered: %s has blocked you.", target)
	}
}

func formatUserList(prefix, emptyNotice string, names []string) string {
	if len(names) == 0 {
		return emptyNotice
	}
	return prefix + ": " + strings.Join(names, ", ")
}

func formatDelivery(from, body string) string {
	return from + ": " + Escape(body)
}

func formatPrivate(from, body string) string {
	return from + " (private): " + Escape(body)
}

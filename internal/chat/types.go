package chat

import (
	"io"
	"time"
)

// Conn is the transport a Session reads and writes. TCP connections and
// WebSocket streams both satisfy it.
type Conn interface {
	io.Reader
	io.Writer
	Close() error
	RemoteAddr() string
}

// AuthStatus is the outcome of one authentication attempt.
type AuthStatus int

const (
	AuthSuccess AuthStatus = iota
	AuthFailure
	AuthLocked
	AuthAlreadyOnline
)

// AuthResult carries the status plus, for AuthLocked, the seconds left on the
// address block.
type AuthResult struct {
	Status      AuthStatus
	SecondsLeft int
}

// Message is an immutable routed payload. Recipients keeps fan-out order.
type Message struct {
	From       string
	Body       string
	Recipients []string
	SentAt     time.Time
}

// DeliveryOutcome describes what happened for one recipient of a message.
type DeliveryOutcome int

const (
	DeliveredLive DeliveryOutcome = iota
	Queued
	RejectedBlocked
)

// Delivery is the per-recipient result of Registry.EnqueueOrDeliver. Target
// is the recipient's live session when the outcome is DeliveredLive; the
// caller pushes the wire line to it.
type Delivery struct {
	Recipient string
	Outcome   DeliveryOutcome
	Target    *Session
}

var (
	ErrUnknownUser = errorString("unknown_user")
	ErrSelfBlock   = errorString("self_block")
)

type errorString string

func (e errorString) Error() string { return string(e) }

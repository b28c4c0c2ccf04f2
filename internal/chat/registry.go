package chat

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	// MaxLoginAttempts consecutive failures from one source address start a
	// timed block on that address.
	MaxLoginAttempts = 3
	// BlockTime is how long a blocked address stays locked out.
	BlockTime = 60 * time.Second
)

// Registry owns every registered user plus the per-address lockout state.
// It is shared by all sessions; a single mutex serializes every operation,
// so no caller ever observes a half-updated User.
//
// Lockout bookkeeping is keyed by source address, not by user: failures from
// one address must accumulate across whatever usernames it tries.
type Registry struct {
	mu            sync.Mutex
	users         map[string]*User
	loginAttempts map[string]int       // consecutive failures per address
	blockedAddrs  map[string]time.Time // block start per address
	logger        *slog.Logger

	now func() time.Time // stubbed in tests
}

func NewRegistry(users map[string]*User, logger *slog.Logger) *Registry {
	if users == nil {
		users = make(map[string]*User)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		users:         users,
		loginAttempts: make(map[string]int),
		blockedAddrs:  make(map[string]time.Time),
		logger:        logger,
		now:           time.Now,
	}
}

// Authenticate runs one login attempt from addr and, on success, binds sess
// as the user's single live session.
//
// The address block is checked before credentials: a locked-out address gets
// AuthLocked even with a correct password. An unknown username and a wrong
// password both count one failure for the address.
func (r *Registry) Authenticate(username, password, addr string, sess *Session) AuthResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if start, blocked := r.blockedAddrs[addr]; blocked {
		elapsed := r.now().Sub(start)
		if elapsed < BlockTime {
			res := AuthResult{Status: AuthLocked, SecondsLeft: secondsLeft(BlockTime - elapsed)}
			AuthResults.WithLabelValues("locked").Inc()
			return res
		}
		// Block expired; clear it lazily and fall through to the attempt.
		delete(r.blockedAddrs, addr)
	}

	u, known := r.users[username]
	if !known || !u.matchPassword(password) {
		attempts := r.loginAttempts[addr] + 1
		if attempts >= MaxLoginAttempts {
			delete(r.loginAttempts, addr)
			r.blockedAddrs[addr] = r.now()
			r.logger.Info("address blocked after repeated login failures", "addr", addr)
			AuthResults.WithLabelValues("locked").Inc()
			return AuthResult{Status: AuthLocked, SecondsLeft: secondsLeft(BlockTime)}
		}
		r.loginAttempts[addr] = attempts
		AuthResults.WithLabelValues("failure").Inc()
		return AuthResult{Status: AuthFailure}
	}

	delete(r.loginAttempts, addr)

	if u.online {
		AuthResults.WithLabelValues("already_online").Inc()
		return AuthResult{Status: AuthAlreadyOnline}
	}

	nowT := r.now()
	u.online = true
	u.session = sess
	u.lastLoginAt = nowT
	u.lastActiveAt = nowT

	r.logger.Info("user logged in", "username", username, "addr", addr)
	AuthResults.WithLabelValues("success").Inc()
	return AuthResult{Status: AuthSuccess}
}

// Logout marks the user offline and drops the session binding. Calling it
// for an unknown or already-offline user is a no-op.
func (r *Registry) Logout(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[username]
	if !ok || !u.online {
		return
	}
	u.online = false
	u.session = nil
	u.lastActiveAt = r.now()
	r.logger.Info("user logged out", "username", username)
}

// TouchActivity records command activity for the user.
func (r *Registry) TouchActivity(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[username]; ok {
		u.lastActiveAt = r.now()
	}
}

// LastActive reports when the user last did anything, and whether the user
// is currently online. The sweeper uses this to find stale sessions.
func (r *Registry) LastActive(username string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[username]
	if !ok {
		return time.Time{}, false
	}
	return u.lastActiveAt, u.online
}

// ListOnline returns the usernames of everyone currently online except
// excluding, sorted.
func (r *Registry) ListOnline(excluding string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.users))
	for name, u := range r.users {
		if name != excluding && u.online {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ListRecentlyActive returns users who are online or were active within the
// window, except excluding, sorted.
func (r *Registry) ListRecentlyActive(within time.Duration, excluding string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-within)
	names := make([]string, 0, len(r.users))
	for name, u := range r.users {
		if name == excluding {
			continue
		}
		if u.online || (!u.lastActiveAt.IsZero() && !u.lastActiveAt.Before(cutoff)) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Block adds target to by's block list. Blocking yourself is refused;
// blocking someone twice is not an error.
func (r *Registry) Block(by, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[by]
	if !ok {
		return ErrUnknownUser
	}
	if _, ok := r.users[target]; !ok {
		return ErrUnknownUser
	}
	if by == target {
		return ErrSelfBlock
	}
	u.blockedUsers[target] = struct{}{}
	return nil
}

// Unblock removes target from by's block list and reports whether target was
// blocked in the first place.
func (r *Registry) Unblock(by, target string) (wasBlocked bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[by]
	if !ok {
		return false, ErrUnknownUser
	}
	if _, ok := r.users[target]; !ok {
		return false, ErrUnknownUser
	}
	if _, wasBlocked = u.blockedUsers[target]; wasBlocked {
		delete(u.blockedUsers, target)
	}
	return wasBlocked, nil
}

// EnqueueOrDeliver routes msg to each recipient in order. A recipient who has
// blocked the sender rejects the message outright; an online recipient gets
// DeliveredLive with the session the caller should push to; everyone else has
// the message appended to their offline queue. Unknown recipients are skipped.
func (r *Registry) EnqueueOrDeliver(msg Message) []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()

	results := make([]Delivery, 0, len(msg.Recipients))
	for _, name := range msg.Recipients {
		u, ok := r.users[name]
		if !ok {
			continue
		}
		switch {
		case u.hasBlocked(msg.From):
			results = append(results, Delivery{Recipient: name, Outcome: RejectedBlocked})
			MessagesTotal.WithLabelValues("rejected").Inc()
		case u.online && u.session != nil:
			results = append(results, Delivery{Recipient: name, Outcome: DeliveredLive, Target: u.session})
			MessagesTotal.WithLabelValues("live").Inc()
		default:
			u.pending = append(u.pending, Message{
				From:       msg.From,
				Body:       msg.Body,
				Recipients: []string{name},
				SentAt:     msg.SentAt,
			})
			results = append(results, Delivery{Recipient: name, Outcome: Queued})
			MessagesTotal.WithLabelValues("queued").Inc()
		}
	}
	return results
}

// DrainOffline removes and returns the user's queued messages, oldest first.
func (r *Registry) DrainOffline(username string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[username]
	if !ok || len(u.pending) == 0 {
		return nil
	}
	drained := u.pending
	u.pending = nil
	return drained
}

// Knows reports whether username is registered.
func (r *Registry) Knows(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.users[username]
	return ok
}

func secondsLeft(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

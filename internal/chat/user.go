package chat

import (
	"crypto/subtle"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is one registered account. The registry is the sole writer; all fields
// below are guarded by the registry mutex.
type User struct {
	Username   string
	credential string

	online       bool
	session      *Session
	lastLoginAt  time.Time
	lastActiveAt time.Time

	blockedUsers map[string]struct{}
	pending      []Message
}

func newUser(username, credential string) *User {
	return &User{
		Username:     username,
		credential:   credential,
		blockedUsers: make(map[string]struct{}),
	}
}

// matchPassword checks password against the stored credential. Credentials
// starting with the bcrypt version prefix are treated as bcrypt hashes;
// anything else is compared as plaintext in constant time, which keeps
// legacy user_pass.txt files working.
func (u *User) matchPassword(password string) bool {
	if strings.HasPrefix(u.credential, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(u.credential), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(u.credential), []byte(password)) == 1
}

func (u *User) hasBlocked(username string) bool {
	_, ok := u.blockedUsers[username]
	return ok
}

package chat

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadUsers reads the credential file: one user per line, username and
// credential separated by whitespace. Blank lines are skipped; any other
// malformed record is an error, since silently dropping an account would only
// surface much later as a login failure.
func LoadUsers(path string) (map[string]*User, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open user file: %w", err)
	}
	defer f.Close()

	users := make(map[string]*User)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: expected username and password, got %d fields", path, lineNo, len(fields))
		}
		username, credential := fields[0], fields[1]
		if _, dup := users[username]; dup {
			return nil, fmt.Errorf("%s:%d: duplicate user %q", path, lineNo, username)
		}
		users[username] = newUser(username, credential)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read user file: %w", err)
	}
	return users, nil
}

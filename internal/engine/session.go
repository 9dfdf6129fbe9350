package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

const (
	sessionsDir = "sessions"
	dbFile      = "memory.db"
	vectorDir   = "vectors"
)

// ErrNoSession is returned by Teardown for a session with no stored memory.
var ErrNoSession = errors.New("session not found")

var sessionRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateSession checks that name is usable as a directory name.
func ValidateSession(name string) error {
	if !sessionRegex.MatchString(name) {
		return fmt.Errorf("invalid session name %q (letters, digits, '.', '_', '-'; must start with a letter or digit)", name)
	}
	return nil
}

// SessionDir is where a session's memory lives.
func SessionDir(dataDir, session string) string {
	return filepath.Join(dataDir, sessionsDir, session)
}

// ListSessions returns the sessions with stored memory, sorted by name.
func ListSessions(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dataDir, sessionsDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var out []string
	for _, de := range entries {
		if de.IsDir() && ValidateSession(de.Name()) == nil {
			out = append(out, de.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Teardown deletes everything stored for a session. The session must not be
// open.
func Teardown(dataDir, session string) error {
	if err := ValidateSession(session); err != nil {
		return err
	}
	dir := SessionDir(dataDir, session)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNoSession, session)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("teardown %s: %w", session, err)
	}
	return nil
}

// moveAside renames path to a timestamped ".corrupt" sibling and returns the
// new name.
func moveAside(path string) (string, error) {
	dst := fmt.Sprintf("%s.corrupt-%s", path, time.Now().UTC().Format("20060102T150405.000000000"))
	if err := os.Rename(path, dst); err != nil {
		return "", err
	}
	return dst, nil
}

package services

import (
	"sync"
	"time"
)

// SessionTracker enforces the inactivity timeout. It keeps the last activity
// instant per user in memory only; a process restart clears all sessions and
// forces a fresh login. The auth middleware touches it on every authenticated
// request and rejects callers idle longer than the timeout.
type SessionTracker struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
	timeout  time.Duration
	now      func() time.Time
}

// NewSessionTracker creates a tracker with the given idle timeout.
func NewSessionTracker(timeout time.Duration) *SessionTracker {
	return &SessionTracker{
		lastSeen: make(map[string]time.Time),
		timeout:  timeout,
		now:      time.Now,
	}
}

// Begin starts (or restarts) a user's session at login.
func (t *SessionTracker) Begin(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[userID] = t.now()
}

// Touch records activity for a user and reports whether the session is still
// live. A user without a session, or idle longer than the timeout, is
// rejected and must authenticate again.
func (t *SessionTracker) Touch(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.lastSeen[userID]
	if !ok {
		return false
	}
	now := t.now()
	if now.Sub(last) > t.timeout {
		delete(t.lastSeen, userID)
		return false
	}
	t.lastSeen[userID] = now
	return true
}

// Clear drops a user's session state on explicit logout.
func (t *SessionTracker) Clear(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSeen, userID)
}

package server

import (
	"errors"
	"net"
	"sort"
	"time"
)

var ErrAlreadyLoggedIn = errors.New("server: user already logged in")

// Session is the state attached to one live connection.
// LoginTime is set exactly when Username is set.
type Session struct {
	ID        uint64
	Username  string
	LoginTime time.Time
	conn      net.Conn
	remote    string
	closed    bool // transport failed or was closed; further writes are skipped
}

// Authenticated reports whether the session has logged in.
func (s *Session) Authenticated() bool {
	return s.Username != ""
}

// SessionManager tracks live sessions and the authenticated-username index.
// Only the coordinator goroutine touches it, so it carries no lock.
type SessionManager struct {
	nextID   uint64
	sessions map[uint64]*Session // sessionID -> session
	byUser   map[string]uint64   // username -> sessionID
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[uint64]*Session),
		byUser:   make(map[string]uint64),
	}
}

// Create registers an unauthenticated session for a new connection.
// IDs increase monotonically and are never reused.
func (sm *SessionManager) Create(conn net.Conn) *Session {
	sm.nextID++
	sess := &Session{ID: sm.nextID, conn: conn}
	if conn != nil && conn.RemoteAddr() != nil {
		sess.remote = conn.RemoteAddr().String()
	}
	sm.sessions[sess.ID] = sess
	return sess
}

// Get retrieves a session by ID.
func (sm *SessionManager) Get(id uint64) *Session {
	return sm.sessions[id]
}

// Remove forgets a session and its username index entry.
func (sm *SessionManager) Remove(id uint64) {
	sess, ok := sm.sessions[id]
	if !ok {
		return
	}
	if sess.Authenticated() && sm.byUser[sess.Username] == id {
		delete(sm.byUser, sess.Username)
	}
	delete(sm.sessions, id)
}

// Login marks a session authenticated. A username may be logged in on only
// one session at a time.
func (sm *SessionManager) Login(sess *Session, username string, now time.Time) error {
	if _, taken := sm.byUser[username]; taken {
		return ErrAlreadyLoggedIn
	}
	sess.Username = username
	sess.LoginTime = now
	sm.byUser[username] = sess.ID
	return nil
}

// Logout clears a session's authentication.
func (sm *SessionManager) Logout(sess *Session) {
	if !sess.Authenticated() {
		return
	}
	if sm.byUser[sess.Username] == sess.ID {
		delete(sm.byUser, sess.Username)
	}
	sess.Username = ""
	sess.LoginTime = time.Time{}
}

// ByUsername returns the session logged in under username, or nil.
func (sm *SessionManager) ByUsername(username string) *Session {
	id, ok := sm.byUser[username]
	if !ok {
		return nil
	}
	return sm.sessions[id]
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	return len(sm.sessions)
}

// All returns all live sessions ordered by ID.
func (sm *SessionManager) All() []*Session {
	result := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

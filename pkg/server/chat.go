package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/NicolasHaas/gohall/pkg/protocol"
)

// send writes one line to a session. Writes are best-effort: a failure is
// logged and the transport closed, and the reader's resulting error drives
// the normal disconnect path.
func (s *Server) send(sess *Session, text string) {
	if sess.closed || sess.conn == nil {
		return
	}
	_ = sess.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := protocol.WriteLine(sess.conn, text); err != nil {
		s.metrics.WriteFailures.Add(1)
		slog.Warn("write failed, closing connection", "session", sess.ID, "remote", sess.remote, "err", err)
		sess.closed = true
		_ = sess.conn.Close()
	}
}

// sendTo writes text to every session in targets except the one with ID
// exclude (0 excludes nobody).
func (s *Server) sendTo(targets []*Session, exclude uint64, text string) int {
	n := 0
	for _, t := range targets {
		if t.ID == exclude {
			continue
		}
		s.send(t, text)
		n++
	}
	return n
}

// broadcastRoom sends text to every member of room, the sender included
// unless exclude names it.
func (s *Server) broadcastRoom(room *Room, exclude uint64, text string) {
	s.sendTo(room.Members(), exclude, text)
}

// chatRoom delivers to the other members of the sender's room.
func (s *Server) chatRoom(sess *Session, room *Room, text string) {
	n := s.sendTo(room.Members(), sess.ID, fmt.Sprintf("[room %s] %s: %s", room.Name, sess.Username, text))
	s.metrics.ChatRoom.Add(1)
	slog.Debug("room chat", "room", room.Name, "from", sess.Username, "recipients", n)
}

// chatHall delivers to every other authenticated user who is not in a room.
func (s *Server) chatHall(sess *Session, text string) {
	var targets []*Session
	for _, t := range s.sessions.All() {
		if t.Authenticated() && s.rooms.RoomOf(t.Username) == nil {
			targets = append(targets, t)
		}
	}
	n := s.sendTo(targets, sess.ID, fmt.Sprintf("[hall] %s: %s", sess.Username, text))
	s.metrics.ChatHall.Add(1)
	slog.Debug("hall chat", "from", sess.Username, "recipients", n)
}

// chatAll delivers to every connection, logged in or not.
func (s *Server) chatAll(sess *Session, text string) {
	n := s.sendTo(s.sessions.All(), sess.ID, fmt.Sprintf("[all] %s: %s", sess.Username, text))
	s.metrics.ChatAll.Add(1)
	slog.Debug("global chat", "from", sess.Username, "recipients", n)
}

// chatDirect delivers to the single session logged in as target.
func (s *Server) chatDirect(sess *Session, target, text string) {
	peer := s.sessions.ByUsername(target)
	if peer == nil {
		s.send(sess, fmt.Sprintf("user %s is not online", target))
		return
	}
	s.send(peer, fmt.Sprintf("[private] %s: %s", sess.Username, text))
	s.metrics.ChatDirect.Add(1)
	slog.Debug("direct chat", "from", sess.Username, "to", target)
}

// sanitizeText strips control characters from user-supplied chat text.
func sanitizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1 // null, bell, ANSI escapes
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

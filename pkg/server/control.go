package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/NicolasHaas/gohall/pkg/model"
	"github.com/NicolasHaas/gohall/pkg/protocol"
	"github.com/NicolasHaas/gohall/pkg/store"
)

const (
	msgWrongCommand = "wrong command, type $help to see the command list"
	msgNotLoggedIn  = "sorry, you are not logged in"
	msgServerError  = "server error, please try again later"
)

// textArgs marks a command whose argument is the free text after its name.
const textArgs = -1

type handlerFunc func(s *Server, sess *Session, args []string, text string)

// command is one entry of the dispatch table.
type command struct {
	args    int  // exact argument count, or textArgs
	auth    bool // requires a logged-in session
	handler handlerFunc
}

var commands = map[string]command{
	"help":                {args: 0, handler: (*Server).handleHelp},
	"register":            {args: 2, handler: (*Server).handleRegister},
	"login":               {args: 2, handler: (*Server).handleLogin},
	"logout":              {args: 0, auth: true, handler: (*Server).handleLogout},
	"quit":                {args: 0, handler: (*Server).handleQuit},
	"online_time":         {args: 0, auth: true, handler: (*Server).handleOnlineTime},
	"history_online_time": {args: 0, auth: true, handler: (*Server).handleHistoryOnlineTime},
	"build":               {args: 1, auth: true, handler: (*Server).handleBuild},
	"join":                {args: 1, auth: true, handler: (*Server).handleJoin},
	"leave":               {args: 0, auth: true, handler: (*Server).handleLeave},
	"rooms":               {args: 0, auth: true, handler: (*Server).handleRooms},
	"chat":                {args: textArgs, auth: true, handler: (*Server).handleChat},
	"chatall":             {args: textArgs, auth: true, handler: (*Server).handleChatAll},
	"21game":              {args: textArgs, auth: true, handler: (*Server).handleGame},
}

// directPrefix is the command-name prefix of a private message, "$chat@bob".
const directPrefix = "chat@"

func welcomeText() string {
	return "welcome to the game hall!\n" + helpText()
}

func helpText() string {
	return strings.Join([]string{
		"commands:",
		"  $help                            show this list",
		"  $register <username> <password>  create an account and log in",
		"  $login <username> <password>     log in",
		"  $logout                          log out",
		"  $quit                            leave the game hall",
		"  $online_time                     seconds since this login",
		"  $history_online_time             total seconds online",
		"  $build <room>                    create a room and enter it",
		"  $join <room>                     enter a room",
		"  $leave                           leave your room",
		"  $rooms                           list rooms",
		"  $chat <text>                     talk to your room, or the hall",
		"  $chatall <text>                  talk to everybody",
		"  $chat@<user> <text>              talk to one user",
		"  $21game <expression>             answer the current round, e.g. (1+2)*(3+4)",
	}, "\n")
}

// splitCommand splits a line into its first token and the remaining text.
// The remainder keeps its inner spacing.
func splitCommand(line string) (name, rest string) {
	line = strings.TrimLeftFunc(line, unicode.IsSpace)
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i:])
}

// handleLine parses and dispatches one inbound line.
func (s *Server) handleLine(sess *Session, line string) {
	token, rest := splitCommand(line)
	if token == "" {
		return
	}
	name, ok := strings.CutPrefix(token, protocol.CommandPrefix)
	if !ok {
		s.send(sess, msgWrongCommand)
		return
	}

	if target, ok := strings.CutPrefix(name, directPrefix); ok {
		switch {
		case target == "" || rest == "":
			s.send(sess, msgWrongCommand)
		case !sess.Authenticated():
			s.send(sess, msgNotLoggedIn)
		default:
			s.chatDirect(sess, target, sanitizeText(rest))
		}
		return
	}

	cmd, ok := commands[name]
	if !ok {
		slog.Debug("unknown command", "session", sess.ID, "command", name)
		s.send(sess, msgWrongCommand)
		return
	}
	args := strings.Fields(rest)
	if (cmd.args == textArgs && rest == "") || (cmd.args != textArgs && len(args) != cmd.args) {
		s.send(sess, msgWrongCommand)
		return
	}
	if cmd.auth && !sess.Authenticated() {
		s.send(sess, msgNotLoggedIn)
		return
	}
	cmd.handler(s, sess, args, rest)
}

func (s *Server) handleHelp(sess *Session, _ []string, _ string) {
	s.send(sess, helpText())
}

func (s *Server) handleRegister(sess *Session, args []string, _ string) {
	username, password := args[0], args[1]
	if sess.Authenticated() {
		s.send(sess, fmt.Sprintf("you are already logged in as %s", sess.Username))
		return
	}
	if err := model.ValidateUsername(username); err != nil {
		s.send(sess, fmt.Sprintf("invalid username: 1-%d letters, digits, '_' or '-'", model.MaxUsernameLength))
		return
	}

	if err := s.store.CreateUser(username, password); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			s.send(sess, "username already exist")
			return
		}
		slog.Error("register failed", "username", username, "err", err)
		s.send(sess, msgServerError)
		return
	}
	s.metrics.Registrations.Add(1)
	slog.Info("user registered", "username", username, "session", sess.ID)

	if err := s.sessions.Login(sess, username, s.now()); err != nil {
		s.send(sess, fmt.Sprintf("user %s is already logged in", username))
		return
	}
	s.metrics.SuccessfulAuths.Add(1)
	s.send(sess, "register and login success, you are now in the game hall")
}

func (s *Server) handleLogin(sess *Session, args []string, _ string) {
	username, password := args[0], args[1]
	if sess.Authenticated() {
		s.send(sess, fmt.Sprintf("you are already logged in as %s", sess.Username))
		return
	}

	err := s.store.Authenticate(username, password)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		s.metrics.FailedAuths.Add(1)
		s.send(sess, fmt.Sprintf("user %s not exist", username))
		return
	case errors.Is(err, store.ErrBadPassword):
		s.metrics.FailedAuths.Add(1)
		slog.Warn("bad password", "username", username, "remote", sess.remote)
		s.send(sess, "invalid password")
		return
	case err != nil:
		slog.Error("login failed", "username", username, "err", err)
		s.send(sess, msgServerError)
		return
	}

	if err := s.sessions.Login(sess, username, s.now()); err != nil {
		s.metrics.FailedAuths.Add(1)
		slog.Warn("duplicate login rejected", "username", username, "remote", sess.remote)
		s.send(sess, fmt.Sprintf("user %s is already logged in", username))
		return
	}
	s.metrics.SuccessfulAuths.Add(1)
	slog.Info("user logged in", "username", username, "session", sess.ID)
	s.send(sess, "login success, you are now in the game hall")
}

func (s *Server) handleLogout(sess *Session, _ []string, _ string) {
	secs := s.endLogin(sess)
	s.send(sess, fmt.Sprintf("logout success, online time: %d seconds", secs))
}

func (s *Server) handleQuit(sess *Session, _ []string, _ string) {
	if sess.Authenticated() {
		s.handleLogout(sess, nil, "")
	}
	s.send(sess, "bye")
	s.disconnect(sess)
}

func (s *Server) handleOnlineTime(sess *Session, _ []string, _ string) {
	s.send(sess, fmt.Sprintf("online time: %d seconds", s.onlineSeconds(sess)))
}

func (s *Server) handleHistoryOnlineTime(sess *Session, _ []string, _ string) {
	total, err := s.store.OnlineTime(sess.Username)
	if err != nil {
		slog.Error("read online time failed", "username", sess.Username, "err", err)
		s.send(sess, msgServerError)
		return
	}
	s.send(sess, fmt.Sprintf("history online time: %d seconds", total))
}

// onlineSeconds is the whole seconds since login, rounded to nearest.
func (s *Server) onlineSeconds(sess *Session) int64 {
	d := s.now().Sub(sess.LoginTime)
	if d < 0 {
		return 0
	}
	return int64(d.Round(time.Second) / time.Second)
}

// endLogin leaves any room, flushes online time to the store and
// de-authenticates the session. It returns the seconds flushed.
func (s *Server) endLogin(sess *Session) int64 {
	if s.rooms.RoomOf(sess.Username) != nil {
		s.leaveRoom(sess)
	}
	secs := s.onlineSeconds(sess)
	if err := s.store.AddOnlineTime(sess.Username, secs); err != nil {
		slog.Error("flush online time failed", "username", sess.Username, "seconds", secs, "err", err)
	}
	slog.Info("user logged out", "username", sess.Username, "session", sess.ID, "online_seconds", secs)
	s.sessions.Logout(sess)
	return secs
}

func (s *Server) handleBuild(sess *Session, args []string, _ string) {
	name := args[0]
	if err := model.ValidateRoomName(name); err != nil {
		s.send(sess, fmt.Sprintf("invalid room name: 1-%d letters, digits, '_' or '-'", model.MaxRoomNameLength))
		return
	}
	room, err := s.rooms.Build(name, sess, s.now())
	switch {
	case errors.Is(err, ErrAlreadyInRoom):
		s.send(sess, fmt.Sprintf("you are already in room %s, leave it first", s.rooms.RoomOf(sess.Username).Name))
		return
	case errors.Is(err, ErrRoomExists):
		s.send(sess, fmt.Sprintf("room %s already exists", name))
		return
	case err != nil:
		s.send(sess, msgServerError)
		return
	}
	s.metrics.RoomsBuilt.Add(1)
	s.metrics.ActiveRooms.Add(1)
	slog.Info("room built", "room", room.Name, "by", sess.Username)
	s.send(sess, fmt.Sprintf("build room %s success, you are now in it", room.Name))
}

func (s *Server) handleJoin(sess *Session, args []string, _ string) {
	name := args[0]
	if cur := s.rooms.RoomOf(sess.Username); cur != nil && cur.Name == name {
		s.send(sess, fmt.Sprintf("already in room %s", name))
		return
	}
	if s.rooms.Get(name) == nil {
		s.send(sess, fmt.Sprintf("room %s does not exist", name))
		return
	}
	if s.rooms.RoomOf(sess.Username) != nil {
		s.leaveRoom(sess)
	}

	room, err := s.rooms.Join(name, sess)
	if err != nil {
		slog.Error("join failed", "room", name, "username", sess.Username, "err", err)
		s.send(sess, msgServerError)
		return
	}
	slog.Info("room joined", "room", room.Name, "username", sess.Username, "members", room.Size())
	s.broadcastRoom(room, sess.ID, fmt.Sprintf("[room %s] %s joined the room", room.Name, sess.Username))
	s.send(sess, fmt.Sprintf("join room %s success, %d member(s) here", room.Name, room.Size()))
	s.announceCurrentRound(sess, room)
}

func (s *Server) handleLeave(sess *Session, _ []string, _ string) {
	room := s.rooms.RoomOf(sess.Username)
	if room == nil {
		s.send(sess, "you are not in any room")
		return
	}
	s.leaveRoom(sess)
	s.send(sess, fmt.Sprintf("leave room %s success, you are back in the game hall", room.Name))
}

// leaveRoom takes sess out of its room, telling the remaining members or
// deleting the room when it empties.
func (s *Server) leaveRoom(sess *Session) {
	room, deleted, err := s.rooms.Leave(sess)
	if err != nil {
		return
	}
	if deleted {
		s.metrics.RoomsDeleted.Add(1)
		s.metrics.ActiveRooms.Add(-1)
		slog.Info("room deleted", "room", room.Name, "last_member", sess.Username)
		return
	}
	slog.Info("room left", "room", room.Name, "username", sess.Username, "members", room.Size())
	s.broadcastRoom(room, 0, fmt.Sprintf("[room %s] %s left the room", room.Name, sess.Username))
}

func (s *Server) handleRooms(sess *Session, _ []string, _ string) {
	rooms := s.rooms.List()
	if len(rooms) == 0 {
		s.send(sess, "no rooms yet, $build one")
		return
	}
	lines := make([]string, 0, len(rooms)+1)
	lines = append(lines, fmt.Sprintf("%d room(s):", len(rooms)))
	for _, r := range rooms {
		lines = append(lines, fmt.Sprintf("  %s (%d)", r.Name, r.Size()))
	}
	s.send(sess, strings.Join(lines, "\n"))
}

func (s *Server) handleChat(sess *Session, _ []string, text string) {
	text = sanitizeText(text)
	if room := s.rooms.RoomOf(sess.Username); room != nil {
		s.chatRoom(sess, room, text)
		return
	}
	s.chatHall(sess, text)
}

func (s *Server) handleChatAll(sess *Session, _ []string, text string) {
	s.chatAll(sess, sanitizeText(text))
}

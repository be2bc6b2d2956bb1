package server

import (
	"bytes"
	"context"
	"io"
	"math/rand/v2"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicolasHaas/gohall/pkg/game"
	"github.com/NicolasHaas/gohall/pkg/store"
)

// recConn is an in-memory net.Conn that records everything written to it.
type recConn struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	closed     bool
	failWrites bool
}

func (c *recConn) Read(_ []byte) (int, error) { return 0, io.EOF }
func (c *recConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.failWrites {
		return 0, net.ErrClosed
	}
	return c.buf.Write(p)
}
func (c *recConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}
func (c *recConn) LocalAddr() net.Addr                { return &net.IPAddr{} }
func (c *recConn) RemoteAddr() net.Addr               { return &net.IPAddr{} }
func (c *recConn) SetDeadline(_ time.Time) error      { return nil }
func (c *recConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *recConn) SetWriteDeadline(_ time.Time) error { return nil }

// take returns the lines written since the last call.
func (c *recConn) take() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	text := strings.TrimSuffix(c.buf.String(), "\n")
	c.buf.Reset()
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func (c *recConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	c := &fakeClock{}
	c.Set(10, 0, 30)
	return c
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *fakeClock) Set(h, m, sec int)       { c.t = time.Date(2026, 3, 14, h, m, sec, 0, time.UTC) }

func testRand() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }

func lastLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

func joined(lines []string) string { return strings.Join(lines, "\n") }

type testHall struct {
	srv   *Server
	st    *store.MemoryStore
	clock *fakeClock
}

func newTestHall(t *testing.T) *testHall {
	t.Helper()
	st := store.NewMemory()
	clock := newFakeClock()
	cfg := DefaultConfig()
	cfg.MetricsAddr = ""
	srv := New(cfg, Dependencies{Store: st, Clock: clock.Now, Rand: testRand()})
	return &testHall{srv: srv, st: st, clock: clock}
}

// connect accepts a new connection and discards the welcome text.
func (h *testHall) connect(t *testing.T) (*Session, *recConn) {
	t.Helper()
	conn := &recConn{}
	sess := h.srv.accept(conn)
	require.NotNil(t, sess)
	require.NotEmpty(t, conn.take())
	return sess, conn
}

// user connects and registers a fresh account.
func (h *testHall) user(t *testing.T, name string) (*Session, *recConn) {
	t.Helper()
	sess, conn := h.connect(t)
	h.srv.handleLine(sess, "$register "+name+" secret")
	require.Equal(t, []string{"register and login success, you are now in the game hall"}, conn.take())
	return sess, conn
}

// assertRoomInvariant checks that every registered room has members and
// that the reverse index agrees with room membership.
func assertRoomInvariant(t *testing.T, srv *Server) {
	t.Helper()
	for name, room := range srv.rooms.rooms {
		assert.Equal(t, name, room.Name)
		assert.Positive(t, room.Size(), "room %s is empty but still registered", name)
		for _, m := range room.Members() {
			assert.Equal(t, name, srv.rooms.playerRoom[m.Username])
		}
	}
	for user, name := range srv.rooms.playerRoom {
		room := srv.rooms.rooms[name]
		require.NotNil(t, room, "user %s indexed to missing room %s", user, name)
	}
}

func TestWelcomeOnAccept(t *testing.T) {
	h := newTestHall(t)
	conn := &recConn{}
	sess := h.srv.accept(conn)
	require.NotNil(t, sess)

	lines := conn.take()
	require.NotEmpty(t, lines)
	assert.Equal(t, "welcome to the game hall!", lines[0])
	assert.Contains(t, joined(lines), "$21game <expression>")
	assert.False(t, sess.Authenticated())
	assert.EqualValues(t, 1, h.srv.metrics.ActiveConnections.Load())
}

func TestSessionIDsAreNeverReused(t *testing.T) {
	h := newTestHall(t)
	a, _ := h.connect(t)
	h.srv.disconnect(a)
	b, _ := h.connect(t)
	assert.Greater(t, b.ID, a.ID)
}

func TestDispatchErrors(t *testing.T) {
	h := newTestHall(t)
	sess, conn := h.connect(t)

	tests := []struct {
		line string
		want string
	}{
		{line: "hello", want: msgWrongCommand},
		{line: "$nope", want: msgWrongCommand},
		{line: "$Help", want: msgWrongCommand},
		{line: "$login alice", want: msgWrongCommand},
		{line: "$register a b c", want: msgWrongCommand},
		{line: "$build", want: msgWrongCommand},
		{line: "$chat", want: msgWrongCommand},
		{line: "$chat@", want: msgWrongCommand},
		{line: "$chat@bob", want: msgWrongCommand},
		{line: "$logout", want: msgNotLoggedIn},
		{line: "$rooms", want: msgNotLoggedIn},
		{line: "$build r", want: msgNotLoggedIn},
		{line: "$chat hi", want: msgNotLoggedIn},
		{line: "$chat@bob hi", want: msgNotLoggedIn},
		{line: "$21game 1+2+3+4", want: msgNotLoggedIn},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			h.srv.handleLine(sess, tt.line)
			assert.Equal(t, []string{tt.want}, conn.take())
		})
	}

	h.srv.handleLine(sess, "   ")
	assert.Empty(t, conn.take(), "blank lines are ignored")

	h.srv.handleLine(sess, "  \t$help")
	assert.Contains(t, joined(conn.take()), "$chatall <text>")
}

func TestRegisterAndLogin(t *testing.T) {
	h := newTestHall(t)
	sess, conn := h.user(t, "alice")
	assert.Equal(t, "alice", sess.Username)
	assert.Equal(t, h.clock.Now(), sess.LoginTime)

	h.srv.handleLine(sess, "$login alice secret")
	assert.Equal(t, []string{"you are already logged in as alice"}, conn.take())

	h.srv.handleLine(sess, "$logout")
	assert.Equal(t, []string{"logout success, online time: 0 seconds"}, conn.take())
	assert.False(t, sess.Authenticated())
	assert.True(t, sess.LoginTime.IsZero())

	h.srv.handleLine(sess, "$login alice wrong")
	assert.Equal(t, []string{"invalid password"}, conn.take())
	h.srv.handleLine(sess, "$login nobody secret")
	assert.Equal(t, []string{"user nobody not exist"}, conn.take())
	h.srv.handleLine(sess, "$register alice other")
	assert.Equal(t, []string{"username already exist"}, conn.take())
	h.srv.handleLine(sess, "$register bad!name secret")
	assert.Contains(t, lastLine(conn.take()), "invalid username")
	assert.False(t, sess.Authenticated())

	h.srv.handleLine(sess, "$login alice secret")
	assert.Equal(t, []string{"login success, you are now in the game hall"}, conn.take())
	assert.Equal(t, sess, h.srv.sessions.ByUsername("alice"))
	assert.EqualValues(t, 2, h.srv.metrics.FailedAuths.Load())
}

func TestDuplicateLoginRejected(t *testing.T) {
	h := newTestHall(t)
	first, _ := h.user(t, "alice")

	second, conn := h.connect(t)
	h.srv.handleLine(second, "$login alice secret")
	assert.Equal(t, []string{"user alice is already logged in"}, conn.take())
	assert.False(t, second.Authenticated())
	assert.True(t, first.Authenticated())
	assert.Equal(t, first, h.srv.sessions.ByUsername("alice"))
}

func TestOnlineTimeAccounting(t *testing.T) {
	h := newTestHall(t)
	sess, conn := h.user(t, "alice")

	h.clock.Advance(90 * time.Second)
	h.srv.handleLine(sess, "$online_time")
	assert.Equal(t, []string{"online time: 90 seconds"}, conn.take())

	h.clock.Advance(1400 * time.Millisecond)
	h.srv.handleLine(sess, "$logout")
	assert.Equal(t, []string{"logout success, online time: 91 seconds"}, conn.take())

	total, err := h.st.OnlineTime("alice")
	require.NoError(t, err)
	assert.EqualValues(t, 91, total)

	h.srv.handleLine(sess, "$login alice secret")
	conn.take()
	h.clock.Advance(9 * time.Second)
	h.srv.handleLine(sess, "$history_online_time")
	assert.Equal(t, []string{"history online time: 91 seconds"}, conn.take())

	// disconnect flushes the current login too
	h.srv.disconnect(sess)
	total, err = h.st.OnlineTime("alice")
	require.NoError(t, err)
	assert.EqualValues(t, 100, total)
}

func TestQuit(t *testing.T) {
	h := newTestHall(t)
	sess, conn := h.user(t, "alice")
	h.srv.handleLine(sess, "$build lobby")
	conn.take()

	h.clock.Advance(5 * time.Second)
	h.srv.handleLine(sess, "$quit")
	assert.Equal(t, []string{"logout success, online time: 5 seconds", "bye"}, conn.take())
	assert.True(t, conn.isClosed())
	assert.Zero(t, h.srv.sessions.Count())
	assert.Nil(t, h.srv.rooms.Get("lobby"))
	assertRoomInvariant(t, h.srv)

	total, err := h.st.OnlineTime("alice")
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)

	// the reader's close event for an already-removed session is a no-op
	h.srv.handleEvent(context.Background(), event{kind: evClosed, id: sess.ID, err: io.EOF})
	assert.EqualValues(t, 1, h.srv.metrics.TotalDisconnects.Load())

	anon := &recConn{}
	anonSess := h.srv.accept(anon)
	anon.take()
	h.srv.handleLine(anonSess, "$quit")
	assert.Equal(t, []string{"bye"}, anon.take())
	assert.True(t, anon.isClosed())
}

func TestRoomLifecycle(t *testing.T) {
	h := newTestHall(t)
	alice, ac := h.user(t, "alice")
	bob, bc := h.user(t, "bob")

	h.srv.handleLine(alice, "$rooms")
	assert.Equal(t, []string{"no rooms yet, $build one"}, ac.take())

	h.srv.handleLine(alice, "$build red")
	assert.Equal(t, []string{"build room red success, you are now in it"}, ac.take())
	h.srv.handleLine(alice, "$build blue")
	assert.Equal(t, []string{"you are already in room red, leave it first"}, ac.take())
	h.srv.handleLine(bob, "$build red")
	assert.Equal(t, []string{"room red already exists"}, bc.take())
	h.srv.handleLine(bob, "$build bad.name")
	assert.Contains(t, lastLine(bc.take()), "invalid room name")

	h.srv.handleLine(bob, "$join green")
	assert.Equal(t, []string{"room green does not exist"}, bc.take())
	h.srv.handleLine(bob, "$join red")
	assert.Equal(t, []string{"join room red success, 2 member(s) here"}, bc.take())
	assert.Equal(t, []string{"[room red] bob joined the room"}, ac.take())
	h.srv.handleLine(bob, "$join red")
	assert.Equal(t, []string{"already in room red"}, bc.take())
	assertRoomInvariant(t, h.srv)

	h.srv.handleLine(alice, "$build blue")
	ac.take()
	h.srv.handleLine(alice, "$leave")
	ac.take()
	h.srv.handleLine(alice, "$build blue")
	assert.Equal(t, []string{"build room blue success, you are now in it"}, ac.take())
	assert.Equal(t, []string{"[room red] alice left the room"}, bc.take())

	h.srv.handleLine(bob, "$rooms")
	assert.Equal(t, []string{"2 room(s):", "  blue (1)", "  red (1)"}, bc.take())

	// joining another room leaves the current one, which empties and goes away
	h.srv.handleLine(bob, "$join blue")
	assert.Equal(t, []string{"join room blue success, 2 member(s) here"}, bc.take())
	assert.Nil(t, h.srv.rooms.Get("red"))
	assertRoomInvariant(t, h.srv)

	h.srv.handleLine(bob, "$leave")
	assert.Equal(t, []string{"leave room blue success, you are back in the game hall"}, bc.take())
	h.srv.handleLine(bob, "$leave")
	assert.Equal(t, []string{"you are not in any room"}, bc.take())
	h.srv.handleLine(alice, "$logout")
	assert.Zero(t, h.srv.rooms.Count())
	assertRoomInvariant(t, h.srv)

	assert.EqualValues(t, 2, h.srv.metrics.RoomsBuilt.Load())
	assert.EqualValues(t, 2, h.srv.metrics.RoomsDeleted.Load())
	assert.Zero(t, h.srv.metrics.ActiveRooms.Load())
}

func TestChatScoping(t *testing.T) {
	h := newTestHall(t)
	alice, ac := h.user(t, "alice")
	bob, bc := h.user(t, "bob")
	carol, cc := h.user(t, "carol")
	_, dc := h.user(t, "dave")
	_, anon := h.connect(t)

	h.srv.handleLine(alice, "$build red")
	h.srv.handleLine(bob, "$join red")
	for _, c := range []*recConn{ac, bc, cc, dc, anon} {
		c.take()
	}

	h.srv.handleLine(alice, "$chat  hello   red ")
	assert.Empty(t, ac.take())
	assert.Equal(t, []string{"[room red] alice: hello   red"}, bc.take())
	assert.Empty(t, cc.take())
	assert.Empty(t, dc.take())
	assert.Empty(t, anon.take())

	h.srv.handleLine(carol, "$chat hi hall")
	assert.Empty(t, ac.take())
	assert.Empty(t, bc.take())
	assert.Empty(t, cc.take())
	assert.Equal(t, []string{"[hall] carol: hi hall"}, dc.take())
	assert.Empty(t, anon.take())

	h.srv.handleLine(bob, "$chatall everyone")
	assert.Equal(t, []string{"[all] bob: everyone"}, ac.take())
	assert.Empty(t, bc.take())
	assert.Equal(t, []string{"[all] bob: everyone"}, cc.take())
	assert.Equal(t, []string{"[all] bob: everyone"}, dc.take())
	assert.Equal(t, []string{"[all] bob: everyone"}, anon.take())

	h.srv.handleLine(carol, "$chat@alice psst\x1b[31m")
	assert.Equal(t, []string{"[private] carol: psst[31m"}, ac.take())
	assert.Empty(t, bc.take())
	h.srv.handleLine(carol, "$chat@zed hello")
	assert.Equal(t, []string{"user zed is not online"}, cc.take())

	m := h.srv.metrics
	assert.EqualValues(t, 1, m.ChatRoom.Load())
	assert.EqualValues(t, 1, m.ChatHall.Load())
	assert.EqualValues(t, 1, m.ChatAll.Load())
	assert.EqualValues(t, 1, m.ChatDirect.Load())
}

func TestDisconnectMidRoom(t *testing.T) {
	h := newTestHall(t)
	ctx := context.Background()
	alice, ac := h.user(t, "alice")
	bob, bc := h.user(t, "bob")
	carol, _ := h.user(t, "carol")

	h.srv.handleLine(alice, "$build red")
	h.srv.handleLine(bob, "$join red")
	h.srv.handleLine(carol, "$build solo")
	ac.take()
	bc.take()

	h.srv.handleEvent(ctx, event{kind: evClosed, id: carol.ID, err: io.ErrUnexpectedEOF})
	assert.Nil(t, h.srv.rooms.Get("solo"))

	h.srv.handleEvent(ctx, event{kind: evClosed, id: bob.ID, err: io.EOF})
	assert.Equal(t, []string{"[room red] bob left the room"}, ac.take())
	room := h.srv.rooms.Get("red")
	require.NotNil(t, room)
	assert.Equal(t, 1, room.Size())
	assert.Nil(t, h.srv.sessions.ByUsername("bob"))
	assert.True(t, bc.isClosed())
	assertRoomInvariant(t, h.srv)
}

func TestWriteFailureIsBestEffort(t *testing.T) {
	h := newTestHall(t)
	alice, ac := h.user(t, "alice")
	bob, bc := h.user(t, "bob")
	carol, cc := h.user(t, "carol")
	h.srv.handleLine(alice, "$build red")
	h.srv.handleLine(bob, "$join red")
	h.srv.handleLine(carol, "$join red")
	ac.take()
	cc.take()

	bc.failWrites = true
	h.srv.handleLine(alice, "$chat hi")
	assert.Equal(t, []string{"[room red] alice: hi"}, cc.take())
	assert.True(t, bob.closed)
	assert.True(t, bc.isClosed())
	assert.EqualValues(t, 1, h.srv.metrics.WriteFailures.Load())

	// later writes to the dead peer are skipped
	h.srv.handleLine(alice, "$chat again")
	assert.EqualValues(t, 1, h.srv.metrics.WriteFailures.Load())
	cc.take()

	h.srv.handleEvent(context.Background(), event{kind: evClosed, id: bob.ID, err: net.ErrClosed})
	assert.Equal(t, []string{"[room red] bob left the room"}, cc.take())
}

func TestHallFull(t *testing.T) {
	h := newTestHall(t)
	h.srv.cfg.MaxClients = 1
	h.connect(t)

	conn := &recConn{}
	assert.Nil(t, h.srv.accept(conn))
	assert.Equal(t, []string{"the game hall is full, try again later"}, conn.take())
	assert.True(t, conn.isClosed())
	assert.EqualValues(t, 1, h.srv.metrics.RejectedConnections.Load())
	assert.Equal(t, 1, h.srv.sessions.Count())
}

func TestOversizeLineEvent(t *testing.T) {
	h := newTestHall(t)
	sess, conn := h.connect(t)
	h.srv.handleEvent(context.Background(), event{kind: evOversize, id: sess.ID})
	assert.Equal(t, []string{"line too long (max 2048 bytes), ignored"}, conn.take())
	assert.False(t, conn.isClosed())
}

func TestScheduledRound(t *testing.T) {
	h := newTestHall(t)
	alice, ac := h.user(t, "alice")
	_, lc := h.user(t, "lurker")
	h.srv.handleLine(alice, "$build red")
	ac.take()

	h.srv.handleLine(alice, "$21game 1+2+3+4")
	assert.Equal(t, []string{"no round in progress, wait for the next one"}, ac.take())

	h.clock.Set(10, 0, 59)
	h.srv.tick(h.clock.Now())
	assert.Empty(t, ac.take())

	h.clock.Set(10, 1, 0)
	h.srv.tick(h.clock.Now())
	lines := ac.take()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "[21game] new round! numbers: "), lines[0])
	assert.Empty(t, lc.take(), "room-less users are not dealt in")

	room := h.srv.rooms.Get("red")
	assert.Equal(t, game.PhaseInProgress, room.Round.Phase())
	nums := room.Round.Numbers()
	require.Len(t, nums, game.NumberCount)
	assert.IsNonDecreasing(t, nums)
	assert.Contains(t, lines[0], formatNumbers(nums))

	// same second observed again does not restart the round
	h.clock.Set(10, 1, 0)
	h.srv.tick(h.clock.Now().Add(200 * time.Millisecond))
	assert.Empty(t, ac.take())

	h.clock.Set(10, 1, 39)
	h.srv.tick(h.clock.Now())
	assert.Empty(t, ac.take())

	h.clock.Set(10, 1, 40)
	h.srv.tick(h.clock.Now())
	assert.Equal(t, []string{"[21game] round over, nobody wins"}, ac.take())
	assert.Equal(t, game.PhaseIdle, room.Round.Phase())
	assert.EqualValues(t, 1, h.srv.metrics.RoundsStarted.Load())
}

// startRound deals fixed numbers to a room, bypassing the scheduler.
func (h *testHall) startRound(room string, nums ...int) {
	h.srv.rooms.Get(room).Round.Start(nums, h.clock.Now())
}

func TestRoundWithoutTwentyOne(t *testing.T) {
	h := newTestHall(t)
	alice, ac := h.user(t, "alice")
	bob, bc := h.user(t, "bob")
	h.srv.handleLine(alice, "$build red")
	h.srv.handleLine(bob, "$join red")
	ac.take()
	bc.take()
	h.startRound("red", 1, 2, 3, 4)

	h.srv.handleLine(alice, "$21game 1+2+3+4")
	assert.Equal(t, []string{"answer recorded: 10"}, ac.take())
	h.srv.handleLine(bob, "$21game 4*3+2-1")
	assert.Equal(t, []string{"answer recorded: 13"}, bc.take())
	h.srv.handleLine(alice, "$21game 4*3+2+1")
	assert.Equal(t, []string{"you already answered this round"}, ac.take())

	h.srv.endRounds()
	want := []string{"[21game] round over, winner: bob with 4*3+2-1 = 13"}
	assert.Equal(t, want, ac.take())
	assert.Equal(t, want, bc.take())
	assert.EqualValues(t, 1, h.srv.metrics.Winners.Load())
}

func TestImmediateWin(t *testing.T) {
	h := newTestHall(t)
	alice, ac := h.user(t, "alice")
	bob, bc := h.user(t, "bob")
	h.srv.handleLine(alice, "$build red")
	h.srv.handleLine(bob, "$join red")
	ac.take()
	bc.take()
	h.startRound("red", 3, 3, 8, 8)

	h.srv.handleLine(alice, "$21game 8/(3-8/3)")
	assert.Equal(t, []string{"invalid answer, it is over 21"}, ac.take())
	h.srv.handleLine(alice, "$21game 3+3+8+9")
	assert.Equal(t, []string{"you must use exactly the numbers 3 3 8 8"}, ac.take())
	h.srv.handleLine(alice, "$21game 3+3+8+8;")
	assert.Contains(t, lastLine(ac.take()), "invalid symbols")
	h.srv.handleLine(alice, "$21game (3+3+8+8")
	assert.Equal(t, []string{"invalid expression"}, ac.take())
	h.srv.handleLine(alice, "$21game 8/(3-3)+8")
	assert.Equal(t, []string{"invalid expression, division by zero"}, ac.take())

	// rejected answers do not use up the player's one answer
	h.srv.handleLine(alice, "$21game (3-3/8)*8")
	win := []string{"[21game] alice wins with (3-3/8)*8 = 21!"}
	assert.Equal(t, win, ac.take())
	assert.Equal(t, win, bc.take())

	h.srv.handleLine(bob, "$21game 8*(3-3/8)")
	assert.Equal(t, []string{"this round already has a winner"}, bc.take())

	h.srv.endRounds()
	over := []string{"[21game] round over, winner: alice with (3-3/8)*8 = 21"}
	assert.Equal(t, over, ac.take())
	assert.Equal(t, over, bc.take())
	assert.EqualValues(t, 1, h.srv.metrics.Winners.Load())
	assert.EqualValues(t, 1, h.srv.metrics.SubmissionsAccepted.Load())
	assert.EqualValues(t, 6, h.srv.metrics.SubmissionsRejected.Load())
}

func TestGameRequiresRoomAndAnnouncesToJoiners(t *testing.T) {
	h := newTestHall(t)
	alice, ac := h.user(t, "alice")
	bob, bc := h.user(t, "bob")

	h.srv.handleLine(alice, "$21game 1+2+3+4")
	assert.Equal(t, []string{"you are not in any room, $join or $build one to play"}, ac.take())

	h.srv.handleLine(alice, "$build red")
	ac.take()
	h.startRound("red", 1, 2, 3, 4)

	h.srv.handleLine(bob, "$join red")
	assert.Equal(t, []string{
		"join room red success, 2 member(s) here",
		"[21game] round in progress, numbers: 1 2 3 4",
	}, bc.take())

	// leaving keeps a standing answer in the round
	h.srv.handleLine(bob, "$21game 4*3+2-1")
	bc.take()
	h.srv.handleLine(bob, "$leave")
	h.srv.endRounds()
	assert.Contains(t, joined(ac.take()), "winner: bob with 4*3+2-1 = 13")
}

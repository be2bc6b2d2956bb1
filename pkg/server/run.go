package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/NicolasHaas/gohall/pkg/protocol"
)

type eventKind int

const (
	evAccept eventKind = iota
	evLine
	evOversize
	evClosed
)

// event is what the accept and reader goroutines hand to the coordinator.
type event struct {
	kind eventKind
	id   uint64
	conn net.Conn
	line string
	err  error
}

// Run listens and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Listen binds the TCP listener.
func (s *Server) Listen() error {
	if s.store == nil {
		return fmt.Errorf("server: missing store dependency")
	}
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.listener = ln
	slog.Info("game hall listening", "addr", ln.Addr().String())
	return nil
}

// Serve runs the coordinator loop on a listener bound by Listen. It returns
// when ctx is cancelled, after flushing online time of logged-in users.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return fmt.Errorf("server: Serve called before Listen")
	}

	go s.acceptLoop(ctx)
	s.StartMetricsHTTP(ctx)
	s.metrics.StartPeriodicLog(60*time.Second, ctx.Done())

	slog.Info("game hall running",
		"cadence_minutes", s.cfg.GameCadence,
		"round_seconds", s.cfg.RoundDuration,
		"tick", s.cfg.TickInterval,
	)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down...")
			s.shutdown()
			return nil
		case ev := <-s.events:
			s.handleEvent(ctx, ev)
		case <-ticker.C:
			s.tick(s.now())
		}
	}
}

// acceptLoop accepts connections and hands each to the coordinator.
func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("accept error", "err", err)
			continue
		}
		if !s.post(ctx, event{kind: evAccept, conn: conn}) {
			_ = conn.Close()
			return
		}
	}
}

// readLoop turns a connection's byte stream into line events. It exits on
// the first read error, which the coordinator treats as a disconnect.
func (s *Server) readLoop(ctx context.Context, id uint64, conn net.Conn) {
	lr := protocol.NewLineReader(conn, s.cfg.MaxLineLength)
	for {
		line, err := lr.ReadLine()
		switch {
		case errors.Is(err, protocol.ErrLineTooLong):
			if !s.post(ctx, event{kind: evOversize, id: id}) {
				return
			}
		case err != nil:
			s.post(ctx, event{kind: evClosed, id: id, err: err})
			return
		default:
			if !s.post(ctx, event{kind: evLine, id: id, line: line}) {
				return
			}
		}
	}
}

func (s *Server) post(ctx context.Context, ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) handleEvent(ctx context.Context, ev event) {
	switch ev.kind {
	case evAccept:
		if sess := s.accept(ev.conn); sess != nil {
			go s.readLoop(ctx, sess.ID, ev.conn)
		}
	case evLine:
		if sess := s.sessions.Get(ev.id); sess != nil {
			s.handleLine(sess, ev.line)
		}
	case evOversize:
		if sess := s.sessions.Get(ev.id); sess != nil {
			s.metrics.OversizeLines.Add(1)
			s.send(sess, fmt.Sprintf("line too long (max %d bytes), ignored", s.cfg.MaxLineLength))
		}
	case evClosed:
		// sessions already removed by $quit land here too and are ignored
		if sess := s.sessions.Get(ev.id); sess != nil {
			slog.Debug("connection closed", "session", sess.ID, "err", ev.err)
			s.disconnect(sess)
		}
	}
}

// accept registers a new connection, or turns it away when the hall is full.
func (s *Server) accept(conn net.Conn) *Session {
	s.metrics.TotalConnections.Add(1)
	if s.sessions.Count() >= s.cfg.MaxClients {
		s.metrics.RejectedConnections.Add(1)
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		_ = protocol.WriteLine(conn, "the game hall is full, try again later")
		_ = conn.Close()
		slog.Warn("connection rejected, hall full", "remote", conn.RemoteAddr().String())
		return nil
	}

	sess := s.sessions.Create(conn)
	s.metrics.ActiveConnections.Add(1)
	slog.Debug("new connection", "session", sess.ID, "remote", sess.remote)
	s.send(sess, welcomeText())
	return sess
}

// disconnect is the single teardown path for EOF, read errors, write
// failures and $quit.
func (s *Server) disconnect(sess *Session) {
	if sess.Authenticated() {
		s.endLogin(sess)
	}
	if sess.conn != nil {
		_ = sess.conn.Close()
	}
	s.sessions.Remove(sess.ID)
	s.metrics.ActiveConnections.Add(-1)
	s.metrics.TotalDisconnects.Add(1)
	slog.Info("client disconnected", "session", sess.ID, "remote", sess.remote)
}

func (s *Server) shutdown() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for _, sess := range s.sessions.All() {
		s.send(sess, "the game hall is shutting down")
		s.disconnect(sess)
	}
}

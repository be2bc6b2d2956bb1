package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/NicolasHaas/gohall/pkg/game"
)

// tick runs the round scheduler against one sampled instant.
func (s *Server) tick(now time.Time) {
	t := s.scheduler.Evaluate(now)
	if t.End {
		s.endRounds()
	}
	if t.Start {
		s.startRounds(now)
	}
}

// startRounds deals fresh numbers to every room, whatever its phase.
func (s *Server) startRounds(now time.Time) {
	rooms := s.rooms.List()
	for _, room := range rooms {
		room.Round.Start(game.Deal(s.rng), now)
		s.broadcastRoom(room, 0, fmt.Sprintf(
			"[21game] new round! numbers: %s, reach %d with + - * / ( ) in %d seconds, answer with $21game <expression>",
			formatNumbers(room.Round.Numbers()), game.Target, s.cfg.RoundDuration))
	}
	s.metrics.RoundsStarted.Add(1)
	slog.Info("rounds started", "rooms", len(rooms), "at", now.Format(time.TimeOnly))
}

// endRounds scores every room with a round in progress.
func (s *Server) endRounds() {
	ended := 0
	for _, room := range s.rooms.List() {
		if room.Round.Phase() != game.PhaseInProgress {
			continue
		}
		out := room.Round.End()
		ended++
		if out.Winner == nil {
			s.broadcastRoom(room, 0, "[21game] round over, nobody wins")
			slog.Info("round ended", "room", room.Name, "winner", "")
			continue
		}
		w := out.Winner
		if !out.Immediate {
			s.metrics.Winners.Add(1)
		}
		s.broadcastRoom(room, 0, fmt.Sprintf("[21game] round over, winner: %s with %s = %s",
			w.Player, w.Expression, game.FormatValue(w.Value)))
		slog.Info("round ended", "room", room.Name, "winner", w.Player, "value", game.FormatValue(w.Value))
	}
	if ended > 0 {
		slog.Debug("rounds ended", "rooms", ended)
	}
}

// announceCurrentRound tells a player who just joined about a running round.
func (s *Server) announceCurrentRound(sess *Session, room *Room) {
	if room.Round.Phase() != game.PhaseInProgress || room.Round.Winner() != nil {
		return
	}
	s.send(sess, fmt.Sprintf("[21game] round in progress, numbers: %s", formatNumbers(room.Round.Numbers())))
}

func (s *Server) handleGame(sess *Session, _ []string, expr string) {
	room := s.rooms.RoomOf(sess.Username)
	if room == nil {
		s.send(sess, "you are not in any room, $join or $build one to play")
		return
	}

	res, err := room.Round.Submit(sess.Username, expr)
	if err != nil {
		s.metrics.SubmissionsRejected.Add(1)
		slog.Debug("answer rejected", "room", room.Name, "username", sess.Username, "expr", expr, "err", err)
		s.send(sess, gameErrorText(err, room.Round.Numbers()))
		return
	}
	s.metrics.SubmissionsAccepted.Add(1)

	if res.Win {
		s.metrics.Winners.Add(1)
		slog.Info("round won", "room", room.Name, "username", sess.Username, "expr", expr)
		s.broadcastRoom(room, 0, fmt.Sprintf("[21game] %s wins with %s = %d!", sess.Username, expr, game.Target))
		return
	}
	s.send(sess, fmt.Sprintf("answer recorded: %s", game.FormatValue(res.Value)))
}

func gameErrorText(err error, numbers []int) string {
	switch {
	case errors.Is(err, game.ErrNoRound):
		return "no round in progress, wait for the next one"
	case errors.Is(err, game.ErrWinnerDeclared):
		return "this round already has a winner"
	case errors.Is(err, game.ErrAlreadySubmitted):
		return "you already answered this round"
	case errors.Is(err, game.ErrInvalidSymbols):
		return "invalid symbols, use only digits, + - * / ( ) and spaces"
	case errors.Is(err, game.ErrNumbersMismatch):
		return fmt.Sprintf("you must use exactly the numbers %s", formatNumbers(numbers))
	case errors.Is(err, game.ErrOverLimit):
		return fmt.Sprintf("invalid answer, it is over %d", game.Target)
	case errors.Is(err, game.ErrDivisionByZero):
		return "invalid expression, division by zero"
	default:
		return "invalid expression"
	}
}

func formatNumbers(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, " ")
}

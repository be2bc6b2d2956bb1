// Package server implements the game hall server: a single coordinator that
// owns every session, room and game round, fed by per-connection readers.
package server

import (
	"math/rand/v2"
	"net"
	"time"

	"github.com/NicolasHaas/gohall/pkg/game"
	"github.com/NicolasHaas/gohall/pkg/store"
)

// Dependencies holds external dependencies for the server.
// Server does not close Store; the caller owns it.
type Dependencies struct {
	Store store.UserStore
	Clock func() time.Time // defaults to time.Now
	Rand  *rand.Rand       // number source for dealing rounds
}

// Server is the game hall. All fields below are touched only from the
// coordinator goroutine except metrics, which is atomic.
type Server struct {
	cfg       Config
	store     store.UserStore
	sessions  *SessionManager
	rooms     *RoomRegistry
	scheduler *game.Scheduler
	rng       *rand.Rand
	now       func() time.Time
	metrics   *Metrics

	listener net.Listener
	events   chan event
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // game numbers, not secrets
	}
	return &Server{
		cfg:       cfg,
		store:     deps.Store,
		sessions:  NewSessionManager(),
		rooms:     NewRoomRegistry(),
		scheduler: game.NewScheduler(cfg.cadence(), cfg.roundDuration()),
		rng:       rng,
		now:       clock,
		metrics:   NewMetrics(),
		events:    make(chan event, 256),
	}
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the listening address once Listen has succeeded.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations so the HTTP endpoint can read them
// while the coordinator writes.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections    atomic.Int64 // lifetime TCP connections accepted
	ActiveConnections   atomic.Int64 // current live connections
	RejectedConnections atomic.Int64 // turned away because the hall was full
	TotalDisconnects    atomic.Int64 // disconnects of any kind, $quit included
	WriteFailures       atomic.Int64 // best-effort writes that failed
	OversizeLines       atomic.Int64 // inbound lines dropped for length

	// Account counters
	Registrations   atomic.Int64
	SuccessfulAuths atomic.Int64
	FailedAuths     atomic.Int64

	// Chat counters, by scope
	ChatRoom   atomic.Int64
	ChatHall   atomic.Int64
	ChatAll    atomic.Int64
	ChatDirect atomic.Int64

	// Room counters
	RoomsBuilt   atomic.Int64
	RoomsDeleted atomic.Int64
	ActiveRooms  atomic.Int64

	// Game counters
	RoundsStarted       atomic.Int64 // scheduler starts, one per cadence boundary
	SubmissionsAccepted atomic.Int64
	SubmissionsRejected atomic.Int64
	Winners             atomic.Int64
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections   int64 `json:"active_connections"`
	TotalConnections    int64 `json:"total_connections"`
	RejectedConnections int64 `json:"rejected_connections"`
	TotalDisconnects    int64 `json:"total_disconnects"`
	WriteFailures       int64 `json:"write_failures"`
	OversizeLines       int64 `json:"oversize_lines"`

	Registrations   int64 `json:"registrations"`
	SuccessfulAuths int64 `json:"successful_auths"`
	FailedAuths     int64 `json:"failed_auths"`

	ChatRoom   int64 `json:"chat_room"`
	ChatHall   int64 `json:"chat_hall"`
	ChatAll    int64 `json:"chat_all"`
	ChatDirect int64 `json:"chat_direct"`

	RoomsBuilt   int64 `json:"rooms_built"`
	RoomsDeleted int64 `json:"rooms_deleted"`
	ActiveRooms  int64 `json:"active_rooms"`

	RoundsStarted       int64 `json:"rounds_started"`
	SubmissionsAccepted int64 `json:"submissions_accepted"`
	SubmissionsRejected int64 `json:"submissions_rejected"`
	Winners             int64 `json:"winners"`
}

// Snapshot returns a snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:              uptime.Truncate(time.Second).String(),
		UptimeSeconds:       int64(uptime.Seconds()),
		ActiveConnections:   m.ActiveConnections.Load(),
		TotalConnections:    m.TotalConnections.Load(),
		RejectedConnections: m.RejectedConnections.Load(),
		TotalDisconnects:    m.TotalDisconnects.Load(),
		WriteFailures:       m.WriteFailures.Load(),
		OversizeLines:       m.OversizeLines.Load(),
		Registrations:       m.Registrations.Load(),
		SuccessfulAuths:     m.SuccessfulAuths.Load(),
		FailedAuths:         m.FailedAuths.Load(),
		ChatRoom:            m.ChatRoom.Load(),
		ChatHall:            m.ChatHall.Load(),
		ChatAll:             m.ChatAll.Load(),
		ChatDirect:          m.ChatDirect.Load(),
		RoomsBuilt:          m.RoomsBuilt.Load(),
		RoomsDeleted:        m.RoomsDeleted.Load(),
		ActiveRooms:         m.ActiveRooms.Load(),
		RoundsStarted:       m.RoundsStarted.Load(),
		SubmissionsAccepted: m.SubmissionsAccepted.Load(),
		SubmissionsRejected: m.SubmissionsRejected.Load(),
		Winners:             m.Winners.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"rooms", s.ActiveRooms,
		"chat_msgs", s.ChatRoom+s.ChatHall+s.ChatAll+s.ChatDirect,
		"rounds", s.RoundsStarted,
		"winners", s.Winners,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}

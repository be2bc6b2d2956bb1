package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartMetricsHTTP starts a lightweight HTTP server that exposes /metrics
// in Prometheus text exposition format and /healthz. It shuts down when ctx
// is cancelled. An empty Config.MetricsAddr disables it.
func (s *Server) StartMetricsHTTP(ctx context.Context) {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.metricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}

func (s *Server) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics.Snapshot()
	uptime := time.Since(s.metrics.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeScoped := func(name, help, mtype, label string, values map[string]int64, order []string) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		for _, k := range order {
			_, _ = fmt.Fprintf(w, "%s{%s=%q} %d\n", name, label, k, values[k])
		}
	}

	_, _ = fmt.Fprintf(w, "# HELP gohall_uptime_seconds Server uptime in seconds.\n")
	_, _ = fmt.Fprintf(w, "# TYPE gohall_uptime_seconds gauge\n")
	_, _ = fmt.Fprintf(w, "gohall_uptime_seconds %f\n", uptime)

	write("gohall_connections_active", "Current live connections.", "gauge", m.ActiveConnections)
	write("gohall_connections_total", "Lifetime TCP connections accepted.", "counter", m.TotalConnections)
	write("gohall_connections_rejected_total", "Connections turned away because the hall was full.", "counter", m.RejectedConnections)
	write("gohall_disconnects_total", "Total client disconnects.", "counter", m.TotalDisconnects)
	write("gohall_write_failures_total", "Failed best-effort writes to peers.", "counter", m.WriteFailures)
	write("gohall_oversize_lines_total", "Inbound lines dropped for exceeding the length limit.", "counter", m.OversizeLines)

	write("gohall_registrations_total", "Accounts registered.", "counter", m.Registrations)
	write("gohall_auth_success_total", "Successful logins, registrations included.", "counter", m.SuccessfulAuths)
	write("gohall_auth_failed_total", "Failed login attempts.", "counter", m.FailedAuths)

	writeScoped("gohall_chat_messages_total", "Chat messages relayed.", "counter", "scope",
		map[string]int64{"room": m.ChatRoom, "hall": m.ChatHall, "all": m.ChatAll, "direct": m.ChatDirect},
		[]string{"room", "hall", "all", "direct"})

	write("gohall_rooms_active", "Rooms that currently exist.", "gauge", m.ActiveRooms)
	write("gohall_rooms_built_total", "Rooms built.", "counter", m.RoomsBuilt)
	write("gohall_rooms_deleted_total", "Rooms deleted after their last member left.", "counter", m.RoomsDeleted)

	write("gohall_rounds_started_total", "Round starts across all rooms.", "counter", m.RoundsStarted)
	writeScoped("gohall_submissions_total", "21game answers by outcome.", "counter", "result",
		map[string]int64{"accepted": m.SubmissionsAccepted, "rejected": m.SubmissionsRejected},
		[]string{"accepted", "rejected"})
	write("gohall_winners_total", "Rounds that ended with a winner.", "counter", m.Winners)
}

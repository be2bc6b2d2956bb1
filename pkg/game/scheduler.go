package game

import "time"

// Tick is what the scheduler decided for one sampled instant. When both are
// set the previous round is ended before the next one starts.
type Tick struct {
	End   bool
	Start bool
}

// Scheduler drives every room's round from a shared wall-clock cadence.
// Rounds start when the minute of the day is a multiple of the cadence and the
// second is zero; they end after the configured duration.
type Scheduler struct {
	cadence   time.Duration
	duration  time.Duration
	lastStart time.Time
	open      bool
}

// NewScheduler creates a scheduler. cadence is rounded down to whole minutes
// and must be at least one minute.
func NewScheduler(cadence, duration time.Duration) *Scheduler {
	cadence = cadence.Truncate(time.Minute)
	if cadence < time.Minute {
		cadence = time.Minute
	}
	return &Scheduler{cadence: cadence, duration: duration}
}

// Evaluate samples now once and reports the transitions due.
func (s *Scheduler) Evaluate(now time.Time) Tick {
	var t Tick
	if s.open && now.Sub(s.lastStart) >= s.duration {
		s.open = false
		t.End = true
	}
	if s.startDue(now) {
		if s.open {
			t.End = true
		}
		s.lastStart = now
		s.open = true
		t.Start = true
	}
	return t
}

func (s *Scheduler) startDue(now time.Time) bool {
	if now.Second() != 0 {
		return false
	}
	minuteOfDay := now.Hour()*60 + now.Minute()
	if minuteOfDay%int(s.cadence/time.Minute) != 0 {
		return false
	}
	if s.lastStart.IsZero() {
		return true
	}
	// whole seconds, so sub-second tick jitter cannot skip a boundary
	elapsed := now.Truncate(time.Second).Sub(s.lastStart.Truncate(time.Second))
	return elapsed >= s.cadence
}

// RoundOpen reports whether a round is currently running.
func (s *Scheduler) RoundOpen() bool { return s.open }

// LastStart returns when the most recent round started.
func (s *Scheduler) LastStart() time.Time { return s.lastStart }

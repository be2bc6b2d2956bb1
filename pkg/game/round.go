// Package game implements the "reach 21" puzzle played in every room: the
// per-room round state machine, the shared wall-clock scheduler and the
// restricted arithmetic evaluator used to score answers.
package game

import (
	"errors"
	"math/big"
	"math/rand/v2"
	"slices"
	"time"
)

const (
	Target      = 21
	NumberCount = 4
	MinNumber   = 1
	MaxNumber   = 10
)

var (
	ErrNoRound          = errors.New("game: no round in progress")
	ErrWinnerDeclared   = errors.New("game: round already has a winner")
	ErrAlreadySubmitted = errors.New("game: player already submitted this round")
	ErrNumbersMismatch  = errors.New("game: expression must use exactly the round's four numbers")
	ErrOverLimit        = errors.New("game: answer exceeds 21")
)

var target = big.NewRat(Target, 1)

// Phase is the state of a room's round. A round that ends goes straight back
// to PhaseIdle; the ended state is never observable between ticks.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInProgress
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInProgress:
		return "in_progress"
	default:
		return "unknown"
	}
}

// Submission is a player's scored answer.
type Submission struct {
	Player     string
	Expression string
	Value      *big.Rat
	seq        int
}

// Result describes an accepted submission.
type Result struct {
	Value *big.Rat
	Win   bool // the answer hit 21 exactly and closed the round
}

// Outcome is the result of ending a round. Winner is nil when nobody scored.
type Outcome struct {
	Numbers   []int
	Winner    *Submission
	Immediate bool // the winner hit 21 during play
}

// Round holds one room's game state. It is not safe for concurrent use;
// the hall coordinator owns it.
type Round struct {
	phase       Phase
	numbers     []int
	startedAt   time.Time
	submissions map[string]*Submission
	winner      *Submission
	seq         int
}

// Deal draws NumberCount integers in [MinNumber, MaxNumber], sorted.
func Deal(rng *rand.Rand) []int {
	nums := make([]int, NumberCount)
	for i := range nums {
		nums[i] = MinNumber + rng.IntN(MaxNumber-MinNumber+1)
	}
	slices.Sort(nums)
	return nums
}

// Start begins a new round with the given numbers, discarding any previous
// submissions and winner regardless of the current phase.
func (r *Round) Start(numbers []int, now time.Time) {
	r.numbers = slices.Clone(numbers)
	slices.Sort(r.numbers)
	r.phase = PhaseInProgress
	r.startedAt = now
	r.submissions = make(map[string]*Submission)
	r.winner = nil
	r.seq = 0
}

// Phase returns the current phase.
func (r *Round) Phase() Phase { return r.phase }

// Numbers returns a copy of the round's sorted numbers.
func (r *Round) Numbers() []int { return slices.Clone(r.numbers) }

// StartedAt returns when the current or last round started.
func (r *Round) StartedAt() time.Time { return r.startedAt }

// Winner returns the declared winner, if any.
func (r *Round) Winner() *Submission { return r.winner }

// Submit scores a player's expression. Rejected submissions are not recorded
// and do not use up the player's one answer for the round.
func (r *Round) Submit(player, expression string) (Result, error) {
	if r.phase != PhaseInProgress {
		return Result{}, ErrNoRound
	}
	if r.winner != nil {
		return Result{}, ErrWinnerDeclared
	}
	if _, ok := r.submissions[player]; ok {
		return Result{}, ErrAlreadySubmitted
	}

	operands, err := Operands(expression)
	if err != nil {
		return Result{}, err
	}
	if !r.matchesNumbers(operands) {
		return Result{}, ErrNumbersMismatch
	}

	value, err := Evaluate(expression)
	if err != nil {
		return Result{}, err
	}

	switch value.Cmp(target) {
	case 1:
		return Result{}, ErrOverLimit
	case 0:
		r.winner = r.record(player, expression, value)
		return Result{Value: value, Win: true}, nil
	default:
		r.record(player, expression, value)
		return Result{Value: value}, nil
	}
}

func (r *Round) record(player, expression string, value *big.Rat) *Submission {
	r.seq++
	sub := &Submission{Player: player, Expression: expression, Value: value, seq: r.seq}
	r.submissions[player] = sub
	return sub
}

func (r *Round) matchesNumbers(operands []int64) bool {
	if len(operands) != len(r.numbers) {
		return false
	}
	got := slices.Clone(operands)
	slices.Sort(got)
	for i, n := range r.numbers {
		if got[i] != int64(n) {
			return false
		}
	}
	return true
}

// End closes an in-progress round and returns to PhaseIdle. Without an
// immediate winner the highest standing value wins; equal values go to the
// earliest submission.
func (r *Round) End() Outcome {
	out := Outcome{Numbers: r.Numbers()}
	if r.phase != PhaseInProgress {
		return out
	}
	r.phase = PhaseIdle

	if r.winner != nil {
		out.Winner = r.winner
		out.Immediate = true
		return out
	}
	for _, sub := range r.submissions {
		if out.Winner == nil {
			out.Winner = sub
			continue
		}
		switch sub.Value.Cmp(out.Winner.Value) {
		case 1:
			out.Winner = sub
		case 0:
			if sub.seq < out.Winner.seq {
				out.Winner = sub
			}
		}
	}
	r.winner = out.Winner
	return out
}

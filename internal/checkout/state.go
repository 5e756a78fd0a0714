package checkout

import (
	"slices"
	"time"

	"github.com/fjod/creamsy-pos/internal/domain"
)

type State string

const (
	StateIdle       State = "IDLE"
	StateValidating State = "VALIDATING"
	StateCommitting State = "COMMITTING"
	StateSettled    State = "SETTLED"
	StateFailed     State = "FAILED"
)

var transitions = map[State][]State{
	StateIdle:       {StateValidating},
	StateValidating: {StateCommitting, StateFailed},
	StateCommitting: {StateSettled, StateFailed},
}

func CanTransitionTo(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

func (s State) IsTerminal() bool {
	return s == StateSettled || s == StateFailed
}

func (s State) String() string {
	return string(s)
}

// Attempt records how one checkout went.
type Attempt struct {
	State       State
	Err         error
	Transaction *domain.Transaction
	StartedAt   time.Time
}

func (a *Attempt) advance(to State) error {
	if !CanTransitionTo(a.State, to) {
		return ErrIllegalTransition
	}
	a.State = to
	return nil
}

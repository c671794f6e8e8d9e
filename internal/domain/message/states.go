package message

import (
	"fmt"

	parley_errors "parley-chat/pkg/errors"
)

// State is the lifecycle position of a message. Deleted is terminal and has no row.
type State string

const (
	StateCreated State = "CREATED"
	StateEdited  State = "EDITED"
	StateDeleted State = "DELETED"
)

var transitions = map[State][]State{
	StateCreated: {StateEdited, StateDeleted},
	StateEdited:  {StateEdited, StateDeleted},
}

func (m Message) State() State {
	if m.IsEdited {
		return StateEdited
	}
	return StateCreated
}

func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidateTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", parley_errors.ErrInvalidTransition, from, to)
	}
	return nil
}

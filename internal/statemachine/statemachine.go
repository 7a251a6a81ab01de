package statemachine

import (
	"fmt"

	apperrors "github.com/warungdigital/leadbot-backend/internal/pkg/errors"
)

// State is one step of the lead qualification conversation.
type State string

const (
	StateNew                State = "NEW"
	StateExisting           State = "EXISTING"
	StateChooseOption       State = "CHOOSE_OPTION"
	StateFormSent           State = "FORM_SENT"
	StateFormInProgress     State = "FORM_IN_PROGRESS"
	StateFormCompleted      State = "FORM_COMPLETED"
	StateManualIntervention State = "MANUAL_INTERVENTION"
	StatePartnership        State = "PARTNERSHIP"
)

// Initial is the state of a lead created from its own first inbound message.
const Initial = StateNew

var allStates = []State{
	StateNew,
	StateExisting,
	StateChooseOption,
	StateFormSent,
	StateFormInProgress,
	StateFormCompleted,
	StateManualIntervention,
	StatePartnership,
}

var transitions = map[State][]State{
	StateNew:                {StateChooseOption, StateManualIntervention},
	StateExisting:           {},
	StateChooseOption:       {StateFormSent, StatePartnership, StateManualIntervention},
	StateFormSent:           {StateFormInProgress, StateManualIntervention},
	StateFormInProgress:     {StateFormCompleted, StateFormSent, StateManualIntervention},
	StateFormCompleted:      {StateManualIntervention, StatePartnership},
	StateManualIntervention: {StateNew, StateChooseOption, StateFormSent, StatePartnership},
	StatePartnership:        {StateManualIntervention},
}

func All() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

func IsValid(s State) bool {
	_, ok := transitions[s]
	return ok
}

// ParseState round-trips a persisted state string. Unknown values error so a
// corrupted row never silently enters the dispatch switch.
func ParseState(raw string) (State, error) {
	s := State(raw)
	if !IsValid(s) {
		return "", fmt.Errorf("unknown lead state %q: %w", raw, apperrors.ErrInvalidArgument)
	}
	return s, nil
}

func ValidTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition validates and returns the new state, leaving the decision of
// persisting it to the caller. Invalid pairs return ErrInvalidTransition.
func Transition(from, to State) (State, error) {
	if !ValidTransition(from, to) {
		return from, fmt.Errorf("transition %s -> %s: %w", from, to, apperrors.ErrInvalidTransition)
	}
	return to, nil
}

// ReplyAllowed reports whether the bot may auto-reply to a lead in this
// state. EXISTING, MANUAL_INTERVENTION, FORM_COMPLETED and PARTNERSHIP are
// silent: messages are still logged but a human owns the conversation.
func ReplyAllowed(s State) bool {
	switch s {
	case StateNew, StateChooseOption, StateFormSent, StateFormInProgress:
		return true
	default:
		return false
	}
}

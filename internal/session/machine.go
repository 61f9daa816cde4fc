package session

import (
	"errors"
	"fmt"
)

// State is the position of a session in the login and onboarding flow.
type State string

const (
	StateLogin        State = "login"
	StateAwaitingCode State = "awaiting_code"
	StateRegister     State = "register"
	StateCheckKB      State = "check_kb"
	StateSetupKB      State = "setup_kb"
	StateMainApp      State = "main_app"
)

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	switch s {
	case StateLogin, StateAwaitingCode, StateRegister, StateCheckKB, StateSetupKB, StateMainApp:
		return true
	}
	return false
}

// Event is an input that moves a session between states.
type Event string

const (
	EventCodeReceived         Event = "code_received"
	EventAuthFailed           Event = "auth_failed"
	EventUserFound            Event = "user_found"
	EventUserNotFound         Event = "user_not_found"
	EventRegistrationRejected Event = "registration_rejected"
	EventRegistered           Event = "registered"
	EventKBPresent            Event = "kb_present"
	EventKBAbsent             Event = "kb_absent"
	EventKBRejected           Event = "kb_rejected"
	EventKBSaved              Event = "kb_saved"
	EventEditKB               Event = "edit_kb"
	EventLogout               Event = "logout"
	EventReset                Event = "reset"
)

// ErrInvalidTransition is returned for an event that is not defined in the current state.
var ErrInvalidTransition = errors.New("invalid state transition")

type transitionKey struct {
	from  State
	event Event
}

var transitions = map[transitionKey]State{
	{StateLogin, EventCodeReceived}:            StateAwaitingCode,
	{StateAwaitingCode, EventAuthFailed}:       StateLogin,
	{StateAwaitingCode, EventUserFound}:        StateCheckKB,
	{StateAwaitingCode, EventUserNotFound}:     StateRegister,
	{StateRegister, EventRegistrationRejected}: StateRegister,
	{StateRegister, EventRegistered}:           StateCheckKB,
	{StateCheckKB, EventKBPresent}:             StateMainApp,
	{StateCheckKB, EventKBAbsent}:              StateSetupKB,
	{StateSetupKB, EventKBRejected}:            StateSetupKB,
	{StateSetupKB, EventKBSaved}:               StateMainApp,
	{StateMainApp, EventEditKB}:                StateSetupKB,
	{StateMainApp, EventKBSaved}:               StateMainApp,
}

// Transition returns the state reached by applying event in state from.
// Logout and reset are accepted from every state, including corrupt ones.
func Transition(from State, event Event) (State, error) {
	if event == EventLogout || event == EventReset {
		return StateLogin, nil
	}

	to, ok := transitions[transitionKey{from, event}]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, from)
	}
	return to, nil
}

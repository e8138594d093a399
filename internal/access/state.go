package access

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for an event the current session state does not accept
var ErrInvalidTransition = errors.New("invalid session transition")

// State is where a client stands in the two-step login
type State int

const (
	// Unauthenticated clients hold no family context and no token
	Unauthenticated State = iota
	// FamilySelected clients proved the family secret. They may list members, create a
	// profile and log in personally, nothing else.
	FamilySelected
	// Authenticated clients hold a verified session token
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case FamilySelected:
		return "family_selected"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event moves a session between states
type Event int

const (
	EventFamilyLogin Event = iota
	EventPersonalLogin
	EventLogout
	EventTokenExpired
)

func (e Event) String() string {
	switch e {
	case EventFamilyLogin:
		return "family_login"
	case EventPersonalLogin:
		return "personal_login"
	case EventLogout:
		return "logout"
	case EventTokenExpired:
		return "token_expired"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

type transition struct {
	from State
	on   Event
}

var transitions = map[transition]State{
	{Unauthenticated, EventFamilyLogin}:  FamilySelected,
	{FamilySelected, EventPersonalLogin}: Authenticated,
	{FamilySelected, EventLogout}:        Unauthenticated,
	{Authenticated, EventLogout}:         Unauthenticated,
	{Authenticated, EventTokenExpired}:   Unauthenticated,
}

// Transition returns the state reached from s on e
func Transition(s State, e Event) (State, error) {
	next, ok := transitions[transition{s, e}]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, s)
	}
	return next, nil
}

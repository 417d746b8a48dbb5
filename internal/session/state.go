// Package session owns the single authenticated-session state machine.
// Transition logic lives in a pure reducer over (state, event); the
// controller is a thin shell that applies the resulting effects (timers,
// store, notifications), so the machine itself is testable without time.
package session

import (
	"time"

	"cnc-operator-console/internal/model"
)

type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseAuthenticating Phase = "authenticating"
	PhaseAuthenticated  Phase = "authenticated"
	PhaseLoggedOut      Phase = "logged_out"
)

// Operator-facing notices. Idle timeout and refresh failure are reported
// distinctly from an ordinary logout or a failed login.
const (
	NoticeLoggedOut     = "logged out"
	NoticeIdleTimeout   = "session expired due to inactivity"
	NoticeRefreshFailed = "session refresh failed, sign in again"
)

// State is the complete session state. Session is non-nil exactly in
// PhaseAuthenticated.
type State struct {
	Phase   Phase
	Session *model.Session
	Notice  string
}

// Event is a tagged union of everything that can drive a transition.
type Event interface {
	sessionEvent()
}

type LoginStarted struct{}

type LoginSucceeded struct {
	Session model.Session
}

type LoginFailed struct {
	Message string
}

type LogoutRequested struct{}

type IdleTimedOut struct{}

type Refreshed struct {
	Session model.Session
}

type RefreshFailed struct{}

type ActivityObserved struct {
	At time.Time
}

func (LoginStarted) sessionEvent()     {}
func (LoginSucceeded) sessionEvent()   {}
func (LoginFailed) sessionEvent()      {}
func (LogoutRequested) sessionEvent()  {}
func (IdleTimedOut) sessionEvent()     {}
func (Refreshed) sessionEvent()        {}
func (RefreshFailed) sessionEvent()    {}
func (ActivityObserved) sessionEvent() {}

// Effect names a side effect the controller must perform after a
// transition. The reducer only decides; it never touches timers or storage.
type Effect int

const (
	EffectArmTimers Effect = iota
	EffectRearmRefresh
	EffectDisarmTimers
	EffectClearSession
)

// Reduce is the pure transition function. Events that do not apply in the
// current phase leave the state untouched with no effects, so a stray timer
// firing against an already-ended session is harmless.
func Reduce(state State, ev Event) (State, []Effect) {
	switch ev := ev.(type) {
	case LoginStarted:
		if state.Phase == PhaseIdle || state.Phase == PhaseLoggedOut {
			return State{Phase: PhaseAuthenticating}, nil
		}

	case LoginSucceeded:
		if state.Phase == PhaseAuthenticating {
			session := ev.Session
			return State{Phase: PhaseAuthenticated, Session: &session}, []Effect{EffectArmTimers}
		}

	case LoginFailed:
		if state.Phase == PhaseAuthenticating {
			return State{Phase: PhaseIdle, Notice: ev.Message}, nil
		}

	case LogoutRequested:
		switch state.Phase {
		case PhaseAuthenticated:
			return State{Phase: PhaseLoggedOut, Notice: NoticeLoggedOut},
				[]Effect{EffectDisarmTimers, EffectClearSession}
		case PhaseAuthenticating:
			// A logout issued while a login is in flight wins; the eventual
			// login result is discarded by the controller's generation check.
			return State{Phase: PhaseLoggedOut, Notice: NoticeLoggedOut},
				[]Effect{EffectClearSession}
		}

	case IdleTimedOut:
		if state.Phase == PhaseAuthenticated {
			return State{Phase: PhaseLoggedOut, Notice: NoticeIdleTimeout},
				[]Effect{EffectDisarmTimers, EffectClearSession}
		}

	case Refreshed:
		if state.Phase == PhaseAuthenticated {
			session := ev.Session
			// A background refresh is not user activity.
			session.LastActivityAt = state.Session.LastActivityAt
			if session.IdleTimeout == 0 {
				session.IdleTimeout = state.Session.IdleTimeout
			}
			return State{Phase: PhaseAuthenticated, Session: &session}, []Effect{EffectRearmRefresh}
		}

	case RefreshFailed:
		if state.Phase == PhaseAuthenticated {
			return State{Phase: PhaseLoggedOut, Notice: NoticeRefreshFailed},
				[]Effect{EffectDisarmTimers, EffectClearSession}
		}

	case ActivityObserved:
		if state.Phase == PhaseAuthenticated {
			session := *state.Session
			session.LastActivityAt = ev.At
			return State{Phase: PhaseAuthenticated, Session: &session}, nil
		}
	}

	return state, nil
}

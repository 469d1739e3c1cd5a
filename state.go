package audiomix

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// JoinState is the session's channel membership.
type JoinState int

const (
	JoinStateNotJoined JoinState = iota
	JoinStateJoined
	JoinStateLeft
)

const (
	stateNotJoined = "not_joined"
	stateJoined    = "joined"
	stateLeft      = "left"

	eventJoined = "joined"
	eventLeave  = "leave"
)

func (s JoinState) String() string {
	switch s {
	case JoinStateNotJoined:
		return stateNotJoined
	case JoinStateJoined:
		return stateJoined
	case JoinStateLeft:
		return stateLeft
	default:
		return "unknown"
	}
}

func stringToJoinState(s string) JoinState {
	switch s {
	case stateJoined:
		return JoinStateJoined
	case stateLeft:
		return JoinStateLeft
	default:
		return JoinStateNotJoined
	}
}

type joinMachine struct {
	fsm *fsm.FSM
}

// newJoinMachine builds not_joined --joined--> joined --leave--> left.
// A session torn down before the join completes goes straight to left.
func newJoinMachine(onChange func(from, to JoinState)) *joinMachine {
	m := &joinMachine{}
	m.fsm = fsm.NewFSM(
		stateNotJoined,
		fsm.Events{
			{Name: eventJoined, Src: []string{stateNotJoined}, Dst: stateJoined},
			{Name: eventLeave, Src: []string{stateNotJoined, stateJoined}, Dst: stateLeft},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				if onChange != nil {
					onChange(stringToJoinState(e.Src), stringToJoinState(e.Dst))
				}
			},
		},
	)
	return m
}

func (m *joinMachine) Current() JoinState {
	return stringToJoinState(m.fsm.Current())
}

// fire applies event. Events that do not apply to the current state return
// fsm.InvalidEventError.
func (m *joinMachine) fire(event string) error {
	err := m.fsm.Event(context.Background(), event)
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return err
}

func (m *joinMachine) Joined() error { return m.fire(eventJoined) }
func (m *joinMachine) Leave() error  { return m.fire(eventLeave) }

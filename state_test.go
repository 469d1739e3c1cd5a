package audiomix

import (
	"testing"

	"github.com/looplab/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinMachine(t *testing.T) {
	var transitions [][2]JoinState
	m := newJoinMachine(func(from, to JoinState) {
		transitions = append(transitions, [2]JoinState{from, to})
	})
	assert.Equal(t, JoinStateNotJoined, m.Current())

	require.NoError(t, m.Joined())
	assert.Equal(t, JoinStateJoined, m.Current())
	require.NoError(t, m.Leave())
	assert.Equal(t, JoinStateLeft, m.Current())

	assert.Equal(t, [][2]JoinState{
		{JoinStateNotJoined, JoinStateJoined},
		{JoinStateJoined, JoinStateLeft},
	}, transitions)
}

func TestJoinMachineLeaveBeforeJoin(t *testing.T) {
	m := newJoinMachine(nil)
	require.NoError(t, m.Leave())
	assert.Equal(t, JoinStateLeft, m.Current())

	err := m.Joined()
	var invalid fsm.InvalidEventError
	assert.ErrorAs(t, err, &invalid)
	assert.Equal(t, JoinStateLeft, m.Current())
}

func TestJoinStateString(t *testing.T) {
	assert.Equal(t, "not_joined", JoinStateNotJoined.String())
	assert.Equal(t, "joined", JoinStateJoined.String())
	assert.Equal(t, "left", JoinStateLeft.String())
	assert.Equal(t, "unknown", JoinState(9).String())
}

package audiomix

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bt-bridge/audiomix/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplayScript(t *testing.T) {
	script, err := ParseReplayScript([]byte(`
steps:
  - at: 2s
    event: {type: user.joined, uid: 42}
  - at: 100
    event: {type: channel.joined, uid: 7}
  - event: {type: warning, code: 104, event_id: fixed}
`))
	require.NoError(t, err)
	require.Len(t, script.Steps, 3)

	assert.Equal(t, time.Duration(0), script.Steps[0].At)
	assert.Equal(t, "fixed", script.Steps[0].Event.EventId)
	assert.Equal(t, 100*time.Millisecond, script.Steps[1].At)
	joined := script.Steps[1].Event.Param.(*ServerEventParamChannelJoined)
	assert.Empty(t, joined.Channel)
	assert.NotEmpty(t, script.Steps[1].Event.EventId)
	assert.Equal(t, 2*time.Second, script.Steps[2].At)
}

func TestParseReplayScriptErrors(t *testing.T) {
	for name, data := range map[string]string{
		"bad yaml":      "steps: [",
		"bad offset":    "steps:\n  - at: soon\n    event: {type: user.joined, uid: 1}\n",
		"missing event": "steps:\n  - at: 1s\n",
		"unknown type":  "steps:\n  - event: {type: session.update}\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseReplayScript([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestDemoReplayScriptParses(t *testing.T) {
	script, err := ParseReplayScript([]byte(DemoReplayScript))
	require.NoError(t, err)
	assert.NotEmpty(t, script.Steps)
	assert.Equal(t, ServerEventTypeChannelJoined, script.Steps[0].Event.Type)
}

func TestLoadReplayScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps:\n  - event: {type: user.joined, uid: 5}\n"), 0o600))
	script, err := LoadReplayScript(path)
	require.NoError(t, err)
	assert.Len(t, script.Steps, 1)

	_, err = LoadReplayScript(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

type syncHandler struct {
	mu sync.Mutex
	recordingHandler
}

func (h *syncHandler) OnJoinChannelSuccess(channel string, uid uint32, elapsed time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recordingHandler.OnJoinChannelSuccess(channel, uid, elapsed)
}

func (h *syncHandler) OnUserJoined(uid uint32, elapsed time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recordingHandler.OnUserJoined(uid, elapsed)
}

func (h *syncHandler) OnAudioVolumeIndication(speakers []VolumeInfo, total int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recordingHandler.OnAudioVolumeIndication(speakers, total)
}

func (h *syncHandler) OnLeaveChannel(stats ChannelStats) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recordingHandler.OnLeaveChannel(stats)
}

func (h *syncHandler) snapshot() (channel string, joined []uint32, total int, left int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.channel, append([]uint32(nil), h.joined...), h.total, len(h.left)
}

func TestReplayEngineDelivers(t *testing.T) {
	script, err := ParseReplayScript([]byte(`
steps:
  - event: {type: channel.joined, uid: 9}
  - at: 10ms
    event: {type: user.joined, uid: 42}
  - at: 20ms
    event: {type: audio.volume_indication, total_volume: 77, speakers: [{uid: 42, volume: 77}]}
`))
	require.NoError(t, err)
	e, err := NewReplayEngine(shared.NewNopLogger(), script)
	require.NoError(t, err)
	h := &syncHandler{}
	require.NoError(t, e.SetHandler(h))
	assert.ErrorIs(t, e.SetHandler(h), shared.ErrHandlerAlreadySet)

	require.Zero(t, e.EnableAudioVolumeIndication(200*time.Millisecond, 3, false))
	require.Zero(t, e.JoinChannel("", "room1", "", 0))
	assert.Equal(t, ErrCodeRefused.Result(), e.JoinChannel("", "room1", "", 0))

	assert.Eventually(t, func() bool {
		_, _, total, _ := h.snapshot()
		return total == 77
	}, time.Second, 5*time.Millisecond)
	channel, joined, _, _ := h.snapshot()
	assert.Equal(t, "room1", channel)
	assert.Equal(t, []uint32{9, 42}, joined)

	require.Zero(t, e.LeaveChannel())
	assert.Eventually(t, func() bool {
		_, _, _, left := h.snapshot()
		return left == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, ErrCodeLeaveChannelReject.Result(), e.LeaveChannel())

	require.NoError(t, e.Release())
	require.NoError(t, e.Release())
	assert.Equal(t, ErrCodeNotInitialized.Result(), e.JoinChannel("", "room1", "", 0))
}

func TestReplayEngineVolumeIndicationOff(t *testing.T) {
	script, err := ParseReplayScript([]byte(`
steps:
  - event: {type: audio.volume_indication, total_volume: 5, speakers: []}
  - event: {type: user.joined, uid: 1}
`))
	require.NoError(t, err)
	e, err := NewReplayEngine(shared.NewNopLogger(), script)
	require.NoError(t, err)
	h := &syncHandler{}
	require.NoError(t, e.SetHandler(h))
	require.Zero(t, e.EnableAudioVolumeIndication(0, 0, false))
	require.Zero(t, e.JoinChannel("", "room1", "", 0))

	assert.Eventually(t, func() bool {
		_, joined, _, _ := h.snapshot()
		return len(joined) == 1
	}, time.Second, 5*time.Millisecond)
	_, _, total, _ := h.snapshot()
	assert.Zero(t, total)
	require.NoError(t, e.Release())
}

func TestReplayEngineValidation(t *testing.T) {
	e, err := NewReplayEngine(shared.NewNopLogger(), &ReplayScript{})
	require.NoError(t, err)

	assert.Equal(t, ErrCodeInvalidArgument.Result(), e.JoinChannel("", "", "", 0))
	assert.Equal(t, ErrCodeInvalidArgument.Result(), e.AdjustAudioMixingVolume(101))
	assert.Equal(t, ErrCodeInvalidArgument.Result(), e.EnableAudioVolumeIndication(time.Millisecond, 3, false))
	assert.Equal(t, ErrCodeInvalidArgument.Result(), e.SetAudioProfile(AudioProfile(77), AudioScenarioDefault))

	assert.Equal(t, 100, e.AudioMixingPlayoutVolume())
	assert.Zero(t, e.AdjustAudioMixingVolume(40))
	assert.Equal(t, 40, e.AudioMixingPlayoutVolume())
	assert.Equal(t, 40, e.AudioMixingPublishVolume())
	assert.Zero(t, e.AdjustAudioMixingPublishVolume(60))
	assert.Equal(t, 40, e.AudioMixingPlayoutVolume())
	assert.Equal(t, 60, e.AudioMixingPublishVolume())

	_, err = NewReplayEngine(nil, &ReplayScript{})
	assert.ErrorIs(t, err, shared.ErrNoLogger)
	_, err = NewReplayEngine(shared.NewNopLogger(), nil)
	assert.Error(t, err)
}

func TestSessionWithReplayEngine(t *testing.T) {
	script, err := ParseReplayScript([]byte(`
steps:
  - event: {type: channel.joined, uid: 1001}
  - at: 5ms
    event: {type: user.joined, uid: 42}
  - at: 10ms
    event: {type: user.joined, uid: 7}
  - at: 15ms
    event: {type: user.offline, uid: 42}
`))
	require.NoError(t, err)
	e, err := NewReplayEngine(shared.NewNopLogger(), script)
	require.NoError(t, err)

	f := NewSetup()
	f.SetChannel("room1")
	s, err := f.Confirm(e)
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background()))

	assert.Eventually(t, func() bool {
		ps := s.Participants()
		return len(ps) == 2 && ps[0].UID == 0 && ps[1].UID == 7
	}, time.Second, 5*time.Millisecond)
	assert.True(t, s.Joined())

	require.NoError(t, s.Close())
	assert.Equal(t, ErrCodeNotInitialized.Result(), e.LeaveChannel())
}

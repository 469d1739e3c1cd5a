package audiomix

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	joined   []uint32
	channel  string
	offline  []OfflineReason
	speakers []VolumeInfo
	total    int
	remote   []RemoteAudioStats
	rtc      []ChannelStats
	left     []ChannelStats
	warnings []WarningCode
	errors   []ErrorCode
}

func (h *recordingHandler) OnJoinChannelSuccess(channel string, uid uint32, _ time.Duration) {
	h.channel = channel
	h.joined = append(h.joined, uid)
}
func (h *recordingHandler) OnLeaveChannel(stats ChannelStats) { h.left = append(h.left, stats) }
func (h *recordingHandler) OnUserJoined(uid uint32, _ time.Duration) {
	h.joined = append(h.joined, uid)
}
func (h *recordingHandler) OnUserOffline(_ uint32, reason OfflineReason) {
	h.offline = append(h.offline, reason)
}
func (h *recordingHandler) OnAudioVolumeIndication(speakers []VolumeInfo, total int) {
	h.speakers, h.total = speakers, total
}
func (h *recordingHandler) OnRtcStats(stats ChannelStats)         { h.rtc = append(h.rtc, stats) }
func (h *recordingHandler) OnLocalAudioStats(LocalAudioStats)     {}
func (h *recordingHandler) OnRemoteAudioStats(s RemoteAudioStats) { h.remote = append(h.remote, s) }
func (h *recordingHandler) OnWarning(code WarningCode)            { h.warnings = append(h.warnings, code) }
func (h *recordingHandler) OnError(code ErrorCode)                { h.errors = append(h.errors, code) }

func TestServerEventUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		check func(t *testing.T, e *ServerEvent)
	}{
		{
			name: "channel joined",
			data: `{"event_id":"e1","type":"channel.joined","channel":"room1","uid":1001,"elapsed_ms":250}`,
			check: func(t *testing.T, e *ServerEvent) {
				p := e.Param.(*ServerEventParamChannelJoined)
				assert.Equal(t, "room1", p.Channel)
				assert.Equal(t, uint32(1001), p.UID)
				assert.Equal(t, 250*time.Millisecond, p.Elapsed)
			},
		},
		{
			name: "volume indication",
			data: `{"event_id":"e2","type":"audio.volume_indication","total_volume":90,"speakers":[{"uid":0,"volume":40,"vad":true},{"uid":42,"volume":90}]}`,
			check: func(t *testing.T, e *ServerEvent) {
				p := e.Param.(*ServerEventParamVolumeIndication)
				assert.Equal(t, 90, p.TotalVolume)
				assert.Equal(t, []VolumeInfo{{UID: 0, Volume: 40, VAD: true}, {UID: 42, Volume: 90}}, p.Speakers)
			},
		},
		{
			name: "remote audio stats",
			data: `{"event_id":"e3","type":"stats.remote_audio","stats":{"uid":42,"quality":2,"network_transport_delay_ms":35}}`,
			check: func(t *testing.T, e *ServerEvent) {
				p := e.Param.(*ServerEventParamRemoteAudioStats)
				assert.Equal(t, uint32(42), p.Stats.UID)
				assert.Equal(t, 2, p.Stats.Quality)
				assert.Equal(t, 35*time.Millisecond, p.Stats.NetworkDelay)
			},
		},
		{
			name: "error",
			data: `{"event_id":"e4","type":"error","code":110,"message":"bad token"}`,
			check: func(t *testing.T, e *ServerEvent) {
				p := e.Param.(*ServerEventParamError)
				assert.Equal(t, ErrCodeInvalidToken, p.Code)
				assert.Equal(t, "bad token", p.Message)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := new(ServerEvent)
			require.NoError(t, e.UnmarshalJSON([]byte(tt.data)))
			tt.check(t, e)
		})
	}
}

func TestServerEventUnmarshalJSONErrors(t *testing.T) {
	for name, data := range map[string]string{
		"not json":     `{`,
		"no event id":  `{"type":"user.joined","uid":1}`,
		"no type":      `{"event_id":"x","uid":1}`,
		"unknown type": `{"event_id":"x","type":"bogus"}`,
		"missing uid":  `{"event_id":"x","type":"user.joined"}`,
		"bad speakers": `{"event_id":"x","type":"audio.volume_indication","speakers":[1]}`,
		"missing code": `{"event_id":"x","type":"warning"}`,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, new(ServerEvent).UnmarshalJSON([]byte(data)))
		})
	}
}

func TestServerEventMarshalJSON(t *testing.T) {
	e := NewServerEvent(ServerEventTypeUserOffline, &ServerEventParamUserOffline{UID: 42, Reason: OfflineReasonDropped})
	require.NotEmpty(t, e.EventId)
	b, err := e.MarshalJSON()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, sonic.Unmarshal(b, &got))
	assert.Equal(t, "user.offline", got["type"])
	assert.Equal(t, e.EventId, got["event_id"])
	assert.EqualValues(t, 42, got["uid"])
	assert.EqualValues(t, 1, got["reason"])

	_, err = (&ServerEvent{Type: ServerEventTypeWarning, Param: &ServerEventParamWarning{}}).MarshalJSON()
	assert.Error(t, err, "missing event id")
}

func TestServerEventUnmarshalYAML(t *testing.T) {
	data := []byte(`
event_id: y1
type: stats.rtc
stats:
  duration_s: 12
  user_count: 3
  lastmile_delay_ms: 40
  cpu_app_usage: 1.5
`)
	e := new(ServerEvent)
	require.NoError(t, e.UnmarshalYAML(data))
	p := e.Param.(*ServerEventParamRtcStats)
	assert.Equal(t, 12*time.Second, p.Stats.Duration)
	assert.Equal(t, 3, p.Stats.UserCount)
	assert.Equal(t, 40*time.Millisecond, p.Stats.LastmileDelay)
	assert.Equal(t, 1.5, p.Stats.CPUAppUsage)
}

func TestServerEventDispatch(t *testing.T) {
	h := &recordingHandler{}
	events := []*ServerEvent{
		NewServerEvent(ServerEventTypeChannelJoined, &ServerEventParamChannelJoined{Channel: "room1", UID: 7}),
		NewServerEvent(ServerEventTypeUserJoined, &ServerEventParamUserJoined{UID: 42}),
		NewServerEvent(ServerEventTypeUserOffline, &ServerEventParamUserOffline{UID: 42, Reason: OfflineReasonBecomeAudience}),
		NewServerEvent(ServerEventTypeVolumeIndication, &ServerEventParamVolumeIndication{Speakers: []VolumeInfo{{UID: 7, Volume: 3}}, TotalVolume: 3}),
		NewServerEvent(ServerEventTypeRtcStats, &ServerEventParamRtcStats{Stats: ChannelStats{UserCount: 2}}),
		NewServerEvent(ServerEventTypeRemoteAudioStats, &ServerEventParamRemoteAudioStats{Stats: RemoteAudioStats{UID: 42}}),
		NewServerEvent(ServerEventTypeChannelLeft, &ServerEventParamChannelLeft{Stats: ChannelStats{Duration: time.Minute}}),
		NewServerEvent(ServerEventTypeWarning, &ServerEventParamWarning{Code: WarnCodePending}),
		NewServerEvent(ServerEventTypeError, &ServerEventParamError{Code: ErrCodeConnectionLost}),
	}
	for _, e := range events {
		require.NoError(t, e.Dispatch(h))
	}

	assert.Equal(t, "room1", h.channel)
	assert.Equal(t, []uint32{7, 42}, h.joined)
	assert.Equal(t, []OfflineReason{OfflineReasonBecomeAudience}, h.offline)
	assert.Equal(t, 3, h.total)
	assert.Len(t, h.rtc, 1)
	assert.Len(t, h.remote, 1)
	assert.Equal(t, []ChannelStats{{Duration: time.Minute}}, h.left)
	assert.Equal(t, []WarningCode{WarnCodePending}, h.warnings)
	assert.Equal(t, []ErrorCode{ErrCodeConnectionLost}, h.errors)

	assert.Error(t, (&ServerEvent{Type: "bogus"}).Dispatch(h))
}

func TestClientEventJSON(t *testing.T) {
	tests := []struct {
		typ   ClientEventType
		param EventParam
	}{
		{ClientEventTypeChannelLeave, &ClientEventParamChannelLeave{}},
		{ClientEventTypeVolumeIndicationUpdate, &ClientEventParamVolumeIndicationUpdate{Interval: 200 * time.Millisecond, Smooth: 3}},
		{ClientEventTypeAudioRouteUpdate, &ClientEventParamAudioRouteUpdate{Speakerphone: true}},
		{ClientEventTypeAudioMixingVolumeUpdate, &ClientEventParamVolumeUpdate{Volume: 55}},
		{ClientEventTypeAudioMixingPlayoutVolumeUpdate, &ClientEventParamVolumeUpdate{Volume: 0}},
		{ClientEventTypeAudioMixingPublishVolumeUpdate, &ClientEventParamVolumeUpdate{Volume: 100}},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			e := NewClientEvent(tt.typ, tt.param)
			b, err := e.MarshalJSON()
			require.NoError(t, err)

			got := new(ClientEvent)
			require.NoError(t, got.UnmarshalJSON(b))
			assert.Equal(t, e.EventId, got.EventId)
			assert.Equal(t, tt.typ, got.Type)
			assert.Equal(t, tt.param, got.Param)
		})
	}
}

func TestClientEventUnknownType(t *testing.T) {
	assert.Error(t, new(ClientEvent).UnmarshalJSON([]byte(`{"event_id":"x","type":"session.update"}`)))
}

func TestAsUID(t *testing.T) {
	tests := []struct {
		name string
		in   any
		uid  uint32
		ok   bool
	}{
		{"float from json", float64(42), 42, true},
		{"max uint32", uint64(math.MaxUint32), math.MaxUint32, true},
		{"above uint32", int64(math.MaxUint32) + 1, 0, false},
		{"negative", int64(-1), 0, false},
		{"json number", json.Number("1001"), 1001, true},
		{"string", "42", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uid, ok := asUID(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.uid, uid)
		})
	}
}

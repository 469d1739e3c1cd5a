package audiomix

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
)

type EventType string

type ServerEventType EventType

type ClientEventType EventType

// Server event types
const (
	ServerEventTypeChannelJoined    ServerEventType = "channel.joined"
	ServerEventTypeChannelLeft      ServerEventType = "channel.left"
	ServerEventTypeUserJoined       ServerEventType = "user.joined"
	ServerEventTypeUserOffline      ServerEventType = "user.offline"
	ServerEventTypeVolumeIndication ServerEventType = "audio.volume_indication"
	ServerEventTypeRtcStats         ServerEventType = "stats.rtc"
	ServerEventTypeLocalAudioStats  ServerEventType = "stats.local_audio"
	ServerEventTypeRemoteAudioStats ServerEventType = "stats.remote_audio"
	ServerEventTypeWarning          ServerEventType = "warning"
	ServerEventTypeError            ServerEventType = "error"
)

// Client event types
const (
	ClientEventTypeChannelLeave                   ClientEventType = "channel.leave"
	ClientEventTypeVolumeIndicationUpdate         ClientEventType = "audio.volume_indication.update"
	ClientEventTypeAudioRouteUpdate               ClientEventType = "audio.route.update"
	ClientEventTypeAudioMixingVolumeUpdate        ClientEventType = "audio_mixing.volume.update"
	ClientEventTypeAudioMixingPlayoutVolumeUpdate ClientEventType = "audio_mixing.playout_volume.update"
	ClientEventTypeAudioMixingPublishVolumeUpdate ClientEventType = "audio_mixing.publish_volume.update"
)

type Event interface {
	EventType() EventType
	IsServerEvent() bool
	IsClientEvent() bool
	MarshalYAML() ([]byte, error)
	MarshalJSON() ([]byte, error)
	UnmarshalJSON(data []byte) error
}

type EventParam interface {
	New(map[string]any) error
	Json() map[string]any
}

type ServerEvent struct {
	EventId string
	Type    ServerEventType
	Param   EventParam
}

var _ Event = (*ServerEvent)(nil)

func NewServerEvent(t ServerEventType, p EventParam) *ServerEvent {
	return &ServerEvent{EventId: uuid.NewString(), Type: t, Param: p}
}

func (e *ServerEvent) EventType() EventType { return EventType(e.Type) }
func (e *ServerEvent) IsServerEvent() bool  { return true }
func (e *ServerEvent) IsClientEvent() bool  { return false }

func (e *ServerEvent) MarshalYAML() ([]byte, error) {
	m, err := envelope(e.EventId, string(e.Type), e.Param)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(m)
}

func (e *ServerEvent) UnmarshalYAML(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	return e.fromMap(raw)
}

func (e *ServerEvent) MarshalJSON() ([]byte, error) {
	m, err := envelope(e.EventId, string(e.Type), e.Param)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(m)
}

func (e *ServerEvent) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	return e.fromMap(raw)
}

func (e *ServerEvent) fromMap(raw map[string]any) error {
	id, typ, err := openEnvelope(raw)
	if err != nil {
		return err
	}
	e.EventId = id
	e.Type = ServerEventType(typ)
	switch e.Type {
	case ServerEventTypeChannelJoined:
		e.Param = new(ServerEventParamChannelJoined)
	case ServerEventTypeChannelLeft:
		e.Param = new(ServerEventParamChannelLeft)
	case ServerEventTypeUserJoined:
		e.Param = new(ServerEventParamUserJoined)
	case ServerEventTypeUserOffline:
		e.Param = new(ServerEventParamUserOffline)
	case ServerEventTypeVolumeIndication:
		e.Param = new(ServerEventParamVolumeIndication)
	case ServerEventTypeRtcStats:
		e.Param = new(ServerEventParamRtcStats)
	case ServerEventTypeLocalAudioStats:
		e.Param = new(ServerEventParamLocalAudioStats)
	case ServerEventTypeRemoteAudioStats:
		e.Param = new(ServerEventParamRemoteAudioStats)
	case ServerEventTypeWarning:
		e.Param = new(ServerEventParamWarning)
	case ServerEventTypeError:
		e.Param = new(ServerEventParamError)
	default:
		return fmt.Errorf("unknown event type: %s", e.Type)
	}
	if err := e.Param.New(raw); err != nil {
		return fmt.Errorf("decoding %s: %w", e.Type, err)
	}
	return nil
}

// Dispatch delivers the event to the matching handler method.
func (e *ServerEvent) Dispatch(h EngineHandler) error {
	switch p := e.Param.(type) {
	case *ServerEventParamChannelJoined:
		h.OnJoinChannelSuccess(p.Channel, p.UID, p.Elapsed)
	case *ServerEventParamChannelLeft:
		h.OnLeaveChannel(p.Stats)
	case *ServerEventParamUserJoined:
		h.OnUserJoined(p.UID, p.Elapsed)
	case *ServerEventParamUserOffline:
		h.OnUserOffline(p.UID, p.Reason)
	case *ServerEventParamVolumeIndication:
		h.OnAudioVolumeIndication(p.Speakers, p.TotalVolume)
	case *ServerEventParamRtcStats:
		h.OnRtcStats(p.Stats)
	case *ServerEventParamLocalAudioStats:
		h.OnLocalAudioStats(p.Stats)
	case *ServerEventParamRemoteAudioStats:
		h.OnRemoteAudioStats(p.Stats)
	case *ServerEventParamWarning:
		h.OnWarning(p.Code)
	case *ServerEventParamError:
		h.OnError(p.Code)
	default:
		return fmt.Errorf("no handler for event type: %s", e.Type)
	}
	return nil
}

type ClientEvent struct {
	EventId string
	Type    ClientEventType
	Param   EventParam
}

var _ Event = (*ClientEvent)(nil)

func NewClientEvent(t ClientEventType, p EventParam) *ClientEvent {
	return &ClientEvent{EventId: uuid.NewString(), Type: t, Param: p}
}

func (e *ClientEvent) EventType() EventType { return EventType(e.Type) }
func (e *ClientEvent) IsServerEvent() bool  { return false }
func (e *ClientEvent) IsClientEvent() bool  { return true }

func (e *ClientEvent) MarshalYAML() ([]byte, error) {
	m, err := envelope(e.EventId, string(e.Type), e.Param)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(m)
}

func (e *ClientEvent) MarshalJSON() ([]byte, error) {
	m, err := envelope(e.EventId, string(e.Type), e.Param)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(m)
}

func (e *ClientEvent) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, typ, err := openEnvelope(raw)
	if err != nil {
		return err
	}
	e.EventId = id
	e.Type = ClientEventType(typ)
	switch e.Type {
	case ClientEventTypeChannelLeave:
		e.Param = new(ClientEventParamChannelLeave)
	case ClientEventTypeVolumeIndicationUpdate:
		e.Param = new(ClientEventParamVolumeIndicationUpdate)
	case ClientEventTypeAudioRouteUpdate:
		e.Param = new(ClientEventParamAudioRouteUpdate)
	case ClientEventTypeAudioMixingVolumeUpdate,
		ClientEventTypeAudioMixingPlayoutVolumeUpdate,
		ClientEventTypeAudioMixingPublishVolumeUpdate:
		e.Param = new(ClientEventParamVolumeUpdate)
	default:
		return fmt.Errorf("unknown event type: %s", e.Type)
	}
	if err := e.Param.New(raw); err != nil {
		return fmt.Errorf("decoding %s: %w", e.Type, err)
	}
	return nil
}

func envelope(id, typ string, p EventParam) (map[string]any, error) {
	if id == "" {
		return nil, errors.New("EventId is empty")
	}
	if typ == "" {
		return nil, errors.New("Type is empty")
	}
	if p == nil {
		return nil, errors.New("Param is nil")
	}
	resp := map[string]any{}
	for k, v := range p.Json() {
		resp[k] = v
	}
	resp["event_id"] = id
	resp["type"] = typ
	return resp, nil
}

func openEnvelope(raw map[string]any) (id, typ string, err error) {
	v, ok := raw["event_id"].(string)
	if !ok {
		return "", "", errors.New("missing event_id")
	}
	id = v
	delete(raw, "event_id")
	v, ok = raw["type"].(string)
	if !ok {
		return "", "", errors.New("missing type")
	}
	typ = v
	delete(raw, "type")
	return id, typ, nil
}

// Helpers for number conversions
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	return 0, false
}

func asInt(v any) (int, bool) {
	n, ok := asInt64(v)
	return int(n), ok
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}

func asUID(v any) (uint32, bool) {
	n, ok := asInt64(v)
	if !ok || n < 0 || n > math.MaxUint32 {
		return 0, false
	}
	return uint32(n), true
}

func millis(v any) time.Duration {
	n, _ := asInt(v)
	return time.Duration(n) * time.Millisecond
}

func optInt(m map[string]any, key string) int {
	n, _ := asInt(m[key])
	return n
}

// channel.joined
type ServerEventParamChannelJoined struct {
	Channel string
	UID     uint32
	Elapsed time.Duration
}

func (p *ServerEventParamChannelJoined) New(m map[string]any) error {
	if v, ok := m["channel"].(string); ok {
		p.Channel = v
	} else {
		return errors.New("missing channel")
	}
	if v, ok := asUID(m["uid"]); ok {
		p.UID = v
	} else {
		return errors.New("missing uid")
	}
	p.Elapsed = millis(m["elapsed_ms"])
	return nil
}

func (p *ServerEventParamChannelJoined) Json() map[string]any {
	return map[string]any{
		"channel":    p.Channel,
		"uid":        p.UID,
		"elapsed_ms": p.Elapsed.Milliseconds(),
	}
}

// channel.left
type ServerEventParamChannelLeft struct {
	Stats ChannelStats
}

func (p *ServerEventParamChannelLeft) New(m map[string]any) error {
	stats, ok := m["stats"].(map[string]any)
	if !ok {
		return errors.New("missing stats")
	}
	p.Stats = channelStatsFromMap(stats)
	return nil
}

func (p *ServerEventParamChannelLeft) Json() map[string]any {
	return map[string]any{"stats": channelStatsToMap(p.Stats)}
}

// user.joined
type ServerEventParamUserJoined struct {
	UID     uint32
	Elapsed time.Duration
}

func (p *ServerEventParamUserJoined) New(m map[string]any) error {
	if v, ok := asUID(m["uid"]); ok {
		p.UID = v
	} else {
		return errors.New("missing uid")
	}
	p.Elapsed = millis(m["elapsed_ms"])
	return nil
}

func (p *ServerEventParamUserJoined) Json() map[string]any {
	return map[string]any{
		"uid":        p.UID,
		"elapsed_ms": p.Elapsed.Milliseconds(),
	}
}

// user.offline
type ServerEventParamUserOffline struct {
	UID    uint32
	Reason OfflineReason
}

func (p *ServerEventParamUserOffline) New(m map[string]any) error {
	if v, ok := asUID(m["uid"]); ok {
		p.UID = v
	} else {
		return errors.New("missing uid")
	}
	p.Reason = OfflineReason(optInt(m, "reason"))
	return nil
}

func (p *ServerEventParamUserOffline) Json() map[string]any {
	return map[string]any{
		"uid":    p.UID,
		"reason": int(p.Reason),
	}
}

// audio.volume_indication
type ServerEventParamVolumeIndication struct {
	Speakers    []VolumeInfo
	TotalVolume int
}

func (p *ServerEventParamVolumeIndication) New(m map[string]any) error {
	raw, ok := m["speakers"].([]any)
	if !ok {
		return errors.New("missing speakers")
	}
	p.Speakers = make([]VolumeInfo, 0, len(raw))
	for _, r := range raw {
		sm, ok := r.(map[string]any)
		if !ok {
			return errors.New("invalid element in speakers")
		}
		uid, ok := asUID(sm["uid"])
		if !ok {
			return errors.New("missing speakers.uid")
		}
		vad, _ := sm["vad"].(bool)
		p.Speakers = append(p.Speakers, VolumeInfo{UID: uid, Volume: optInt(sm, "volume"), VAD: vad})
	}
	p.TotalVolume = optInt(m, "total_volume")
	return nil
}

func (p *ServerEventParamVolumeIndication) Json() map[string]any {
	speakers := make([]any, 0, len(p.Speakers))
	for _, s := range p.Speakers {
		speakers = append(speakers, map[string]any{
			"uid":    s.UID,
			"volume": s.Volume,
			"vad":    s.VAD,
		})
	}
	return map[string]any{
		"speakers":     speakers,
		"total_volume": p.TotalVolume,
	}
}

// stats.rtc
type ServerEventParamRtcStats struct {
	Stats ChannelStats
}

func (p *ServerEventParamRtcStats) New(m map[string]any) error {
	stats, ok := m["stats"].(map[string]any)
	if !ok {
		return errors.New("missing stats")
	}
	p.Stats = channelStatsFromMap(stats)
	return nil
}

func (p *ServerEventParamRtcStats) Json() map[string]any {
	return map[string]any{"stats": channelStatsToMap(p.Stats)}
}

// stats.local_audio
type ServerEventParamLocalAudioStats struct {
	Stats LocalAudioStats
}

func (p *ServerEventParamLocalAudioStats) New(m map[string]any) error {
	s, ok := m["stats"].(map[string]any)
	if !ok {
		return errors.New("missing stats")
	}
	p.Stats = LocalAudioStats{
		NumChannels:      optInt(s, "num_channels"),
		SentSampleRate:   optInt(s, "sent_sample_rate"),
		SentBitrate:      optInt(s, "sent_bitrate"),
		TxPacketLossRate: optInt(s, "tx_packet_loss_rate"),
	}
	return nil
}

func (p *ServerEventParamLocalAudioStats) Json() map[string]any {
	return map[string]any{"stats": map[string]any{
		"num_channels":        p.Stats.NumChannels,
		"sent_sample_rate":    p.Stats.SentSampleRate,
		"sent_bitrate":        p.Stats.SentBitrate,
		"tx_packet_loss_rate": p.Stats.TxPacketLossRate,
	}}
}

// stats.remote_audio
type ServerEventParamRemoteAudioStats struct {
	Stats RemoteAudioStats
}

func (p *ServerEventParamRemoteAudioStats) New(m map[string]any) error {
	s, ok := m["stats"].(map[string]any)
	if !ok {
		return errors.New("missing stats")
	}
	uid, ok := asUID(s["uid"])
	if !ok {
		return errors.New("missing stats.uid")
	}
	p.Stats = RemoteAudioStats{
		UID:                uid,
		Quality:            optInt(s, "quality"),
		NetworkDelay:       millis(s["network_transport_delay_ms"]),
		JitterBufferDelay:  millis(s["jitter_buffer_delay_ms"]),
		AudioLossRate:      optInt(s, "audio_loss_rate"),
		NumChannels:        optInt(s, "num_channels"),
		ReceivedSampleRate: optInt(s, "received_sample_rate"),
		ReceivedBitrate:    optInt(s, "received_bitrate"),
		TotalFrozenTime:    millis(s["total_frozen_time_ms"]),
		FrozenRate:         optInt(s, "frozen_rate"),
	}
	return nil
}

func (p *ServerEventParamRemoteAudioStats) Json() map[string]any {
	return map[string]any{"stats": map[string]any{
		"uid":                        p.Stats.UID,
		"quality":                    p.Stats.Quality,
		"network_transport_delay_ms": p.Stats.NetworkDelay.Milliseconds(),
		"jitter_buffer_delay_ms":     p.Stats.JitterBufferDelay.Milliseconds(),
		"audio_loss_rate":            p.Stats.AudioLossRate,
		"num_channels":               p.Stats.NumChannels,
		"received_sample_rate":       p.Stats.ReceivedSampleRate,
		"received_bitrate":           p.Stats.ReceivedBitrate,
		"total_frozen_time_ms":       p.Stats.TotalFrozenTime.Milliseconds(),
		"frozen_rate":                p.Stats.FrozenRate,
	}}
}

// warning
type ServerEventParamWarning struct {
	Code    WarningCode
	Message string
}

func (p *ServerEventParamWarning) New(m map[string]any) error {
	if v, ok := asInt(m["code"]); ok {
		p.Code = WarningCode(v)
	} else {
		return errors.New("missing code")
	}
	p.Message, _ = m["message"].(string)
	return nil
}

func (p *ServerEventParamWarning) Json() map[string]any {
	return map[string]any{
		"code":    int(p.Code),
		"message": p.Message,
	}
}

// error
type ServerEventParamError struct {
	Code    ErrorCode
	Message string
}

func (p *ServerEventParamError) New(m map[string]any) error {
	if v, ok := asInt(m["code"]); ok {
		p.Code = ErrorCode(v)
	} else {
		return errors.New("missing code")
	}
	p.Message, _ = m["message"].(string)
	return nil
}

func (p *ServerEventParamError) Json() map[string]any {
	return map[string]any{
		"code":    int(p.Code),
		"message": p.Message,
	}
}

func channelStatsFromMap(s map[string]any) ChannelStats {
	cpuApp, _ := asFloat64(s["cpu_app_usage"])
	cpuTotal, _ := asFloat64(s["cpu_total_usage"])
	return ChannelStats{
		Duration:        time.Duration(optInt(s, "duration_s")) * time.Second,
		TxBytes:         uint64(optInt(s, "tx_bytes")),
		RxBytes:         uint64(optInt(s, "rx_bytes")),
		TxAudioKBitrate: optInt(s, "tx_audio_kbitrate"),
		RxAudioKBitrate: optInt(s, "rx_audio_kbitrate"),
		UserCount:       optInt(s, "user_count"),
		LastmileDelay:   millis(s["lastmile_delay_ms"]),
		TxPacketLoss:    optInt(s, "tx_packet_loss_rate"),
		RxPacketLoss:    optInt(s, "rx_packet_loss_rate"),
		CPUAppUsage:     cpuApp,
		CPUTotalUsage:   cpuTotal,
	}
}

func channelStatsToMap(s ChannelStats) map[string]any {
	return map[string]any{
		"duration_s":          int64(s.Duration / time.Second),
		"tx_bytes":            s.TxBytes,
		"rx_bytes":            s.RxBytes,
		"tx_audio_kbitrate":   s.TxAudioKBitrate,
		"rx_audio_kbitrate":   s.RxAudioKBitrate,
		"user_count":          s.UserCount,
		"lastmile_delay_ms":   s.LastmileDelay.Milliseconds(),
		"tx_packet_loss_rate": s.TxPacketLoss,
		"rx_packet_loss_rate": s.RxPacketLoss,
		"cpu_app_usage":       s.CPUAppUsage,
		"cpu_total_usage":     s.CPUTotalUsage,
	}
}

// channel.leave
type ClientEventParamChannelLeave struct{}

func (p *ClientEventParamChannelLeave) New(m map[string]any) error {
	return nil
}

func (p *ClientEventParamChannelLeave) Json() map[string]any {
	return map[string]any{}
}

// audio.volume_indication.update
type ClientEventParamVolumeIndicationUpdate struct {
	Interval  time.Duration
	Smooth    int
	ReportVAD bool
}

func (p *ClientEventParamVolumeIndicationUpdate) New(m map[string]any) error {
	if _, ok := m["interval_ms"]; !ok {
		return errors.New("missing interval_ms")
	}
	p.Interval = millis(m["interval_ms"])
	p.Smooth = optInt(m, "smooth")
	p.ReportVAD, _ = m["report_vad"].(bool)
	return nil
}

func (p *ClientEventParamVolumeIndicationUpdate) Json() map[string]any {
	return map[string]any{
		"interval_ms": p.Interval.Milliseconds(),
		"smooth":      p.Smooth,
		"report_vad":  p.ReportVAD,
	}
}

// audio.route.update
type ClientEventParamAudioRouteUpdate struct {
	Speakerphone bool
}

func (p *ClientEventParamAudioRouteUpdate) New(m map[string]any) error {
	v, ok := m["speakerphone"].(bool)
	if !ok {
		return errors.New("missing speakerphone")
	}
	p.Speakerphone = v
	return nil
}

func (p *ClientEventParamAudioRouteUpdate) Json() map[string]any {
	return map[string]any{"speakerphone": p.Speakerphone}
}

// audio_mixing.volume.update, audio_mixing.playout_volume.update,
// audio_mixing.publish_volume.update
type ClientEventParamVolumeUpdate struct {
	Volume int
}

func (p *ClientEventParamVolumeUpdate) New(m map[string]any) error {
	v, ok := asInt(m["volume"])
	if !ok {
		return errors.New("missing volume")
	}
	p.Volume = v
	return nil
}

func (p *ClientEventParamVolumeUpdate) Json() map[string]any {
	return map[string]any{"volume": p.Volume}
}

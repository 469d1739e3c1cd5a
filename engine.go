package audiomix

import "time"

// Engine is a media-session engine handle. Calls returning int follow the
// engine convention: 0 accepted, negative ErrorCode otherwise. Acceptance of
// JoinChannel only means the request was taken; completion is reported through
// EngineHandler.OnJoinChannelSuccess.
type Engine interface {
	SetAudioProfile(profile AudioProfile, scenario AudioScenario) int
	DisableVideo() int
	SetDefaultAudioRouteToSpeakerphone(enabled bool) int
	EnableAudioVolumeIndication(interval time.Duration, smooth int, reportVAD bool) int

	JoinChannel(token, channel, info string, uid uint32) int
	LeaveChannel() int

	AdjustAudioMixingVolume(volume int) int
	AdjustAudioMixingPlayoutVolume(volume int) int
	AdjustAudioMixingPublishVolume(volume int) int
	AudioMixingPlayoutVolume() int
	AudioMixingPublishVolume() int

	// SetHandler registers the notification receiver. Only one is allowed.
	SetHandler(h EngineHandler) error
	// Release disposes of the handle. The engine is unusable afterwards.
	Release() error
}

// EngineHandler receives engine notifications. Methods may be called from any
// goroutine, concurrently with each other.
type EngineHandler interface {
	OnJoinChannelSuccess(channel string, uid uint32, elapsed time.Duration)
	OnLeaveChannel(stats ChannelStats)
	OnUserJoined(uid uint32, elapsed time.Duration)
	OnUserOffline(uid uint32, reason OfflineReason)
	OnAudioVolumeIndication(speakers []VolumeInfo, totalVolume int)
	OnRtcStats(stats ChannelStats)
	OnLocalAudioStats(stats LocalAudioStats)
	OnRemoteAudioStats(stats RemoteAudioStats)
	OnWarning(code WarningCode)
	OnError(code ErrorCode)
}

// VolumeInfo is one speaker of a volume report. UID 0 is the local user.
// Volume is in [0,255].
type VolumeInfo struct {
	UID    uint32
	Volume int
	VAD    bool
}

// ChannelStats is the periodic channel-level report.
type ChannelStats struct {
	Duration        time.Duration
	TxBytes         uint64
	RxBytes         uint64
	TxAudioKBitrate int
	RxAudioKBitrate int
	UserCount       int
	LastmileDelay   time.Duration
	TxPacketLoss    int
	RxPacketLoss    int
	CPUAppUsage     float64
	CPUTotalUsage   float64
}

// LocalAudioStats describes the uploaded local audio stream.
type LocalAudioStats struct {
	NumChannels      int
	SentSampleRate   int
	SentBitrate      int
	TxPacketLossRate int
}

// RemoteAudioStats describes the audio stream received from one remote user.
type RemoteAudioStats struct {
	UID                uint32
	Quality            int
	NetworkDelay       time.Duration
	JitterBufferDelay  time.Duration
	AudioLossRate      int
	NumChannels        int
	ReceivedSampleRate int
	ReceivedBitrate    int
	TotalFrozenTime    time.Duration
	FrozenRate         int
}

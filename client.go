package audiomix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"sync"
	"time"

	"github.com/bt-bridge/audiomix/shared"
	"github.com/bytedance/sonic"
	"github.com/pion/webrtc/v4"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type TrackRemoteHandler func(track *webrtc.TrackRemote)
type TrackLocalHandler func(track *webrtc.TrackLocalStaticSample)

const (
	maxChannelNameLen    = 64
	minVolumeIndInterval = 10 * time.Millisecond
	defaultMixingVolume  = 100
	engineDataChannel    = "engine"
)

// RemoteEngine is an Engine backed by a media gateway. Media flows over a
// WebRTC peer connection; notifications and commands travel as JSON events
// on the "engine" data channel. The join offer is posted to
// <gateway>/channels/<channel>/calls.
type RemoteEngine struct {
	logger  shared.LoggerAdapter
	baseUrl *url.URL

	mu       sync.Mutex
	pc       *webrtc.PeerConnection
	dc       *webrtc.DataChannel
	handler  EngineHandler
	joining  bool
	released bool
	dcOpen   bool
	pending  []*ClientEvent
	joinedAt time.Time

	profile       AudioProfile
	scenario      AudioScenario
	videoDisabled bool
	speakerphone  bool
	viInterval    time.Duration
	viSmooth      int
	viVAD         bool
	mixPlayout    int
	mixPublish    int

	audioL   *webrtc.TrackLocalStaticSample
	audioTLH TrackLocalHandler  // track.Kind() == webrtc.RTPCodecTypeAudio
	audioTRH TrackRemoteHandler // track.Kind() == webrtc.RTPCodecTypeAudio

	state     webrtc.PeerConnectionState
	connected <-chan struct{}

	ctx    context.Context
	cancel context.CancelCauseFunc
}

var _ Engine = (*RemoteEngine)(nil)

func NewRemoteEngine(ctx context.Context, logger shared.LoggerAdapter, gatewayURL string, iceURLs ...string) (e *RemoteEngine, err error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if gatewayURL == "" {
		return nil, shared.ErrNoGatewayURL
	}
	baseUrl, err := url.Parse(gatewayURL)
	if err != nil {
		return nil, fmt.Errorf("parsing gateway URL: %w", err)
	}
	ctx, cancel := context.WithCancelCause(ctx)
	e = &RemoteEngine{
		logger:     logger,
		baseUrl:    baseUrl,
		mixPlayout: defaultMixingVolume,
		mixPublish: defaultMixingVolume,
		ctx:        ctx,
		cancel:     cancel,
	}

	cfg := webrtc.Configuration{}
	if len(iceURLs) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceURLs}}
	}
	e.pc, err = webrtc.NewPeerConnection(cfg)
	if err != nil {
		cancel(err)
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}
	connected := make(chan struct{})
	connectedGotClosed := false
	e.connected = connected

	e.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.logger.Trace(
			"peer connection state changed",
			zap.String("prev", e.state.String()),
			zap.String("new", state.String()),
		)
		e.state = state
		switch state {
		case webrtc.PeerConnectionStateConnected:
			if !connectedGotClosed {
				connectedGotClosed = true
				close(connected)
				if e.audioTLH != nil && e.audioL != nil {
					go e.audioTLH(e.audioL)
				}
				return
			}
			e.logger.Warn("peer connection state is connected (More than once)")
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			if !connectedGotClosed {
				connectedGotClosed = true
				close(connected)
			}
			if e.joining && !e.released {
				e.joining = false
				if h := e.handler; h != nil {
					go h.OnError(ErrCodeConnectionLost)
				}
			}
			e.cancel(fmt.Errorf("peer connection state is %s", state))
		}
	})

	e.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.mu.Lock()
		h := e.audioTRH
		e.mu.Unlock()
		if h != nil && track.Kind() == webrtc.RTPCodecTypeAudio {
			go h(track)
		}
	})

	e.dc, err = e.pc.CreateDataChannel(engineDataChannel, nil)
	if err != nil {
		_ = e.pc.Close()
		cancel(err)
		return nil, fmt.Errorf("creating data channel: %w", err)
	}
	e.dc.OnOpen(e.onDataChannelOpen)
	e.dc.OnMessage(e.onDataChannelMessage)
	return e, nil
}

func (e *RemoteEngine) Done() <-chan struct{} {
	return e.ctx.Done()
}

func (e *RemoteEngine) Connected() <-chan struct{} {
	return e.connected
}

func (e *RemoteEngine) State() webrtc.PeerConnectionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *RemoteEngine) SetHandler(h EngineHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return shared.ErrEngineReleased
	}
	if h == nil {
		return errors.New("handler is required")
	}
	if e.handler != nil {
		return shared.ErrHandlerAlreadySet
	}
	e.handler = h
	return nil
}

func (e *RemoteEngine) RegisterTrackLocalHandler(handler TrackLocalHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.joining {
		return shared.ErrSessionAlreadyOpen
	}
	if e.audioTLH != nil || e.audioL != nil {
		return shared.ErrTLHandlerAlreadySet
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	var err error
	e.audioL, err = webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		"audio",
		"mic",
	)
	if err != nil {
		return fmt.Errorf("creating local audio track: %w", err)
	}
	if _, err = e.pc.AddTrack(e.audioL); err != nil {
		return fmt.Errorf("adding audio track to peer connection: %w", err)
	}
	e.audioTLH = handler
	return nil
}

func (e *RemoteEngine) RegisterTrackRemoteHandler(handler TrackRemoteHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.joining {
		return shared.ErrSessionAlreadyOpen
	}
	if e.audioTRH != nil {
		return shared.ErrTRHandlerAlreadySet
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	e.audioTRH = handler
	return nil
}

func (e *RemoteEngine) SetAudioProfile(profile AudioProfile, scenario AudioScenario) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrCodeNotInitialized.Result()
	}
	if !profile.Valid() || !scenario.Valid() {
		return ErrCodeInvalidArgument.Result()
	}
	if e.joining {
		return ErrCodeRefused.Result()
	}
	e.profile, e.scenario = profile, scenario
	return 0
}

func (e *RemoteEngine) DisableVideo() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrCodeNotInitialized.Result()
	}
	if e.joining {
		return ErrCodeRefused.Result()
	}
	e.videoDisabled = true
	return 0
}

func (e *RemoteEngine) SetDefaultAudioRouteToSpeakerphone(enabled bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrCodeNotInitialized.Result()
	}
	e.speakerphone = enabled
	e.sendOrQueue(NewClientEvent(ClientEventTypeAudioRouteUpdate, &ClientEventParamAudioRouteUpdate{Speakerphone: enabled}))
	return 0
}

// EnableAudioVolumeIndication turns periodic volume reports on. interval <= 0
// turns them off.
func (e *RemoteEngine) EnableAudioVolumeIndication(interval time.Duration, smooth int, reportVAD bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrCodeNotInitialized.Result()
	}
	if interval < 0 {
		interval = 0
	}
	if (interval > 0 && interval < minVolumeIndInterval) || smooth < 0 {
		return ErrCodeInvalidArgument.Result()
	}
	e.viInterval, e.viSmooth, e.viVAD = interval, smooth, reportVAD
	e.sendOrQueue(NewClientEvent(ClientEventTypeVolumeIndicationUpdate, &ClientEventParamVolumeIndicationUpdate{
		Interval:  interval,
		Smooth:    smooth,
		ReportVAD: reportVAD,
	}))
	return 0
}

func (e *RemoteEngine) AdjustAudioMixingVolume(volume int) int {
	return e.adjustMixing(ClientEventTypeAudioMixingVolumeUpdate, volume, func() {
		e.mixPlayout, e.mixPublish = volume, volume
	})
}

func (e *RemoteEngine) AdjustAudioMixingPlayoutVolume(volume int) int {
	return e.adjustMixing(ClientEventTypeAudioMixingPlayoutVolumeUpdate, volume, func() {
		e.mixPlayout = volume
	})
}

func (e *RemoteEngine) AdjustAudioMixingPublishVolume(volume int) int {
	return e.adjustMixing(ClientEventTypeAudioMixingPublishVolumeUpdate, volume, func() {
		e.mixPublish = volume
	})
}

func (e *RemoteEngine) adjustMixing(t ClientEventType, volume int, apply func()) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrCodeNotInitialized.Result()
	}
	if err := ValidateMixingVolume(volume); err != nil {
		return ErrCodeInvalidArgument.Result()
	}
	apply()
	e.sendOrQueue(NewClientEvent(t, &ClientEventParamVolumeUpdate{Volume: volume}))
	return 0
}

func (e *RemoteEngine) AudioMixingPlayoutVolume() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mixPlayout
}

func (e *RemoteEngine) AudioMixingPublishVolume() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mixPublish
}

// JoinChannel validates the request and starts the gateway handshake in the
// background. Failures after acceptance are reported through OnError.
func (e *RemoteEngine) JoinChannel(token, channel, info string, uid uint32) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released || e.pc == nil {
		return ErrCodeNotInitialized.Result()
	}
	if e.joining {
		return ErrCodeRefused.Result()
	}
	if err := ValidateChannelName(channel); err != nil {
		e.logger.Debug("join channel rejected", zap.String("channel", channel), zap.Error(err))
		return ErrCodeInvalidArgument.Result()
	}
	e.joining = true
	req := joinRequest{
		Channel:      channel,
		UID:          uid,
		Info:         info,
		Profile:      e.profile.String(),
		Scenario:     e.scenario.String(),
		Video:        !e.videoDisabled,
		Speakerphone: e.speakerphone,
		AudioMixing: audioMixingConfig{
			PlayoutVolume: e.mixPlayout,
			PublishVolume: e.mixPublish,
		},
	}
	if e.viInterval > 0 {
		req.VolumeIndication = &volumeIndicationConfig{
			IntervalMs: e.viInterval.Milliseconds(),
			Smooth:     e.viSmooth,
			ReportVAD:  e.viVAD,
		}
	}
	go e.join(token, req)
	return 0
}

func (e *RemoteEngine) LeaveChannel() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrCodeNotInitialized.Result()
	}
	if !e.joining {
		return ErrCodeLeaveChannelReject.Result()
	}
	if e.dcOpen {
		e.send(NewClientEvent(ClientEventTypeChannelLeave, &ClientEventParamChannelLeave{}))
	}
	e.joining = false
	e.pending = nil
	stats := ChannelStats{}
	if !e.joinedAt.IsZero() {
		stats.Duration = time.Since(e.joinedAt).Truncate(time.Second)
	}
	if h := e.handler; h != nil {
		go h.OnLeaveChannel(stats)
	}
	return 0
}

// Release closes the peer connection. It is safe to call more than once.
func (e *RemoteEngine) Release() error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return nil
	}
	e.released = true
	e.joining = false
	pc := e.pc
	e.pc = nil
	e.mu.Unlock()

	var err error
	if pc != nil {
		if err = pc.Close(); err != nil {
			e.logger.Error("closing peer connection failed", err)
		}
	}
	e.cancel(errors.New("engine released"))
	return err
}

func (e *RemoteEngine) onDataChannelOpen() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dcOpen = true
	for _, ev := range e.pending {
		e.send(ev)
	}
	e.pending = nil
	e.logger.Info("engine data channel opened")
}

func (e *RemoteEngine) onDataChannelMessage(msg webrtc.DataChannelMessage) {
	if !msg.IsString {
		e.logger.Warn("received non-string message on data channel")
		return
	}
	event := new(ServerEvent)
	if err := event.UnmarshalJSON(msg.Data); err != nil {
		e.logger.Error(
			"can not unmarshal event",
			err,
			zap.ByteString("data", msg.Data),
		)
		return
	}
	e.logger.Debug(
		"received event",
		zap.String("type", string(event.Type)),
		zap.String("event_id", event.EventId),
	)
	e.mu.Lock()
	h := e.handler
	active := e.joining
	if active && event.Type == ServerEventTypeChannelJoined && e.joinedAt.IsZero() {
		e.joinedAt = time.Now()
	}
	e.mu.Unlock()
	if h == nil || !active {
		return
	}
	if err := event.Dispatch(h); err != nil {
		e.logger.Error("dispatching event", err, zap.String("type", string(event.Type)))
	}
}

// sendOrQueue must be called with e.mu held. Outside a channel the setting is
// only stored; it goes out with the next join request.
func (e *RemoteEngine) sendOrQueue(ev *ClientEvent) {
	if !e.joining {
		return
	}
	if !e.dcOpen {
		e.pending = append(e.pending, ev)
		return
	}
	e.send(ev)
}

// send must be called with e.mu held.
func (e *RemoteEngine) send(ev *ClientEvent) {
	b, err := ev.MarshalJSON()
	if err != nil {
		e.logger.Error("marshaling client event", err, zap.String("type", string(ev.Type)))
		return
	}
	if err := e.dc.SendText(string(b)); err != nil {
		e.logger.Error("sending client event", err, zap.String("type", string(ev.Type)))
		return
	}
	e.logger.Trace("sent event", zap.String("type", string(ev.Type)), zap.String("event_id", ev.EventId))
}

type volumeIndicationConfig struct {
	IntervalMs int64 `json:"interval_ms"`
	Smooth     int   `json:"smooth"`
	ReportVAD  bool  `json:"report_vad"`
}

type audioMixingConfig struct {
	PlayoutVolume int `json:"playout_volume"`
	PublishVolume int `json:"publish_volume"`
}

type joinRequest struct {
	Channel          string                  `json:"channel"`
	UID              uint32                  `json:"uid"`
	Info             string                  `json:"info,omitempty"`
	Profile          string                  `json:"audio_profile"`
	Scenario         string                  `json:"audio_scenario"`
	Video            bool                    `json:"video"`
	Speakerphone     bool                    `json:"speakerphone"`
	VolumeIndication *volumeIndicationConfig `json:"volume_indication,omitempty"`
	AudioMixing      audioMixingConfig       `json:"audio_mixing"`
}

func (e *RemoteEngine) join(token string, req joinRequest) {
	err := e.negotiate(token, req)
	if err == nil {
		return
	}
	code := joinFailureCode(err)
	e.mu.Lock()
	released := e.released
	e.joining = false
	h := e.handler
	e.mu.Unlock()
	if released || errors.Is(err, context.Canceled) {
		e.logger.Debug("join abandoned", zap.String("channel", req.Channel), zap.Error(err))
		return
	}
	e.logger.Error("joining channel", err, zap.String("channel", req.Channel), zap.Int("code", int(code)))
	if h != nil {
		h.OnError(code)
	}
}

func (e *RemoteEngine) negotiate(token string, req joinRequest) error {
	e.mu.Lock()
	pc := e.pc
	audioL := e.audioL
	e.mu.Unlock()
	if pc == nil {
		return shared.ErrEngineReleased
	}

	if audioL == nil {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("adding audio transceiver: %w", err)
		}
	}
	if req.Video {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("adding video transceiver: %w", err)
		}
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err = pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("setting local description: %w", err)
	}
	select {
	case <-e.ctx.Done():
		return context.Cause(e.ctx)
	case <-gathered:
	}

	answer, err := e.createCall(token, pc.LocalDescription().SDP, req)
	if err != nil {
		return fmt.Errorf("creating call: %w", err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}
	return nil
}

func (e *RemoteEngine) createCall(token, offer string, req joinRequest) (answer string, err error) {
	sessBytes, err := sonic.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling join request: %w", err)
	}
	body, contentType, err := buildCallBody(offer, sessBytes)
	if err != nil {
		return "", err
	}

	httpReq := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(resp)

	httpReq.SetRequestURI(e.baseUrl.JoinPath("channels", req.Channel, "calls").String())
	httpReq.Header.SetMethod(fasthttp.MethodPost)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.SetBody(body)

	errC := make(chan error, 1)
	go func() {
		errC <- fasthttp.Do(httpReq, resp)
	}()
	select {
	case <-e.ctx.Done():
		// fasthttp.Do still owns httpReq and resp.
		<-errC
		return "", context.Cause(e.ctx)
	case err := <-errC:
		if err != nil {
			return "", fmt.Errorf("performing HTTP request: %w", err)
		}
	}
	return parseCallResponse(resp.StatusCode(), resp.Body())
}

func buildCallBody(offer string, session []byte) (body []byte, contentType string, err error) {
	buf := new(bytes.Buffer)
	writer := multipart.NewWriter(buf)

	sdpHeaders := textproto.MIMEHeader{}
	sdpHeaders.Set("Content-Disposition", `form-data; name="sdp"`)
	sdpHeaders.Set("Content-Type", "application/sdp")
	sdpPart, err := writer.CreatePart(sdpHeaders)
	if err != nil {
		return nil, "", fmt.Errorf("creating SDP part: %w", err)
	}
	if _, err = sdpPart.Write([]byte(offer)); err != nil {
		return nil, "", fmt.Errorf("writing SDP part: %w", err)
	}

	sessionHeaders := textproto.MIMEHeader{}
	sessionHeaders.Set("Content-Disposition", `form-data; name="session"`)
	sessionHeaders.Set("Content-Type", "application/json")
	sessionPart, err := writer.CreatePart(sessionHeaders)
	if err != nil {
		return nil, "", fmt.Errorf("creating session part: %w", err)
	}
	if _, err = sessionPart.Write(session); err != nil {
		return nil, "", fmt.Errorf("writing session part: %w", err)
	}

	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func parseCallResponse(status int, body []byte) (string, error) {
	switch status {
	case fasthttp.StatusCreated:
		return string(body), nil
	case fasthttp.StatusUnauthorized:
		return "", fmt.Errorf("%w: %s", shared.ErrUnauthorized, body)
	case fasthttp.StatusForbidden:
		return "", fmt.Errorf("%w: %s", shared.ErrForbidden, body)
	default:
		return "", fmt.Errorf("unexpected status code: %d, body: %s", status, body)
	}
}

func joinFailureCode(err error) ErrorCode {
	switch {
	case errors.Is(err, shared.ErrUnauthorized):
		return ErrCodeInvalidToken
	case errors.Is(err, shared.ErrForbidden):
		return ErrCodeTokenExpired
	default:
		return ErrCodeJoinChannelRejected
	}
}

package audiomix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bt-bridge/audiomix/shared"
	"go.uber.org/zap"
)

// Volume indication settings used unless WithVolumeIndication overrides them.
const (
	DefaultVolumeIndicationInterval = 200 * time.Millisecond
	DefaultVolumeIndicationSmooth   = 3

	defaultTaskBuffer = 256
)

// SessionOption configures a Session in NewSession.
type SessionOption func(*Session)

// WithLogger sets the session logger. nil keeps the no-op default.
func WithLogger(logger shared.LoggerAdapter) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithContainer sets the view that renders the participant list.
func WithContainer(c Container) SessionOption {
	return func(s *Session) {
		if c != nil {
			s.container = c
		}
	}
}

// WithAlerter sets the view that shows error dialogs.
func WithAlerter(a Alerter) SessionOption {
	return func(s *Session) {
		if a != nil {
			s.alerter = a
		}
	}
}

// WithMetrics records session metrics into m. nil disables them.
func WithMetrics(m *Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithToken sets the token passed to JoinChannel. Empty means none.
func WithToken(token string) SessionOption {
	return func(s *Session) { s.token = token }
}

// WithVolumeIndication overrides the volume report settings.
func WithVolumeIndication(interval time.Duration, smooth int, reportVAD bool) SessionOption {
	return func(s *Session) {
		s.viInterval = interval
		s.viSmooth = smooth
		s.viVAD = reportVAD
	}
}

// WithTaskBuffer sizes the queue between engine callbacks and the dispatch
// goroutine.
func WithTaskBuffer(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.taskBuffer = n
		}
	}
}

// Session is one joined (or joining) channel. It owns the engine handle from
// Open until Close. Engine notifications are handed to a single dispatch
// goroutine, which is the only place the roster, the container and the alerter
// are touched.
type Session struct {
	logger    shared.LoggerAdapter
	cfg       SessionConfig
	engine    Engine
	container Container
	alerter   Alerter
	metrics   *Metrics
	token     string

	viInterval time.Duration
	viSmooth   int
	viVAD      bool
	taskBuffer int

	// dispatch goroutine only
	roster *Roster
	join   *joinMachine

	mu      sync.Mutex
	opened  bool
	closed  bool
	leaving atomic.Bool

	tasks    chan func()
	stop     chan struct{}
	loopDone chan struct{}
	// goroutine id of the dispatch loop, 0 until it starts
	loopID atomic.Uint64
}

// NewSession binds cfg to engine. The session does nothing until Open.
func NewSession(cfg SessionConfig, engine Engine, opts ...SessionOption) (*Session, error) {
	if engine == nil {
		return nil, shared.ErrNoEngine
	}
	if cfg.Channel() == "" {
		return nil, shared.ErrNoConfig
	}
	s := &Session{
		logger:     shared.NewNopLogger(),
		cfg:        cfg,
		engine:     engine,
		container:  nopContainer{},
		alerter:    nopAlerter{},
		viInterval: DefaultVolumeIndicationInterval,
		viSmooth:   DefaultVolumeIndicationSmooth,
		taskBuffer: defaultTaskBuffer,
		roster:     NewRoster(),
		stop:       make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("channel", cfg.Channel()))
	s.tasks = make(chan func(), s.taskBuffer)
	s.join = newJoinMachine(func(from, to JoinState) {
		s.logger.Debug("join state changed",
			zap.String("prev", from.String()),
			zap.String("new", to.String()),
		)
	})
	return s, nil
}

func (s *Session) Config() SessionConfig { return s.cfg }

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.loopDone }

// Open configures the engine for audio-only use and requests the join. A nil
// error means the request was accepted; the local participant appears once the
// engine confirms. A rejected request returns *JoinError and is not retried.
// Cancelling ctx tears the session down like Close.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return shared.ErrSessionClosed
	}
	if s.opened {
		s.mu.Unlock()
		return shared.ErrSessionAlreadyOpen
	}
	s.opened = true
	s.mu.Unlock()

	go s.loop()
	if err := s.engine.SetHandler(&sessionHandler{s: s}); err != nil {
		s.logger.Error("registering engine handler", err)
		_ = s.Close()
		return fmt.Errorf("registering engine handler: %w", err)
	}
	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info("context done, closing session", zap.Error(context.Cause(ctx)))
			if err := s.Close(); err != nil {
				s.logger.Error("closing session", err)
			}
		case <-s.stop:
		}
	}()

	s.configureEngine()

	result := s.engine.JoinChannel(s.token, s.cfg.Channel(), "", LocalUID)
	s.metrics.joinRequested(result)
	if result != 0 {
		err := &JoinError{Code: result}
		s.logger.Error("join channel request rejected", err, zap.Int("result", result))
		s.post(func() { s.alerter.ShowAlert("Error", err.Error()) })
		return err
	}
	s.logger.Info("join channel requested",
		zap.String("profile", s.cfg.Profile().String()),
		zap.String("scenario", s.cfg.Scenario().String()),
	)
	return nil
}

func (s *Session) configureEngine() {
	check := func(call string, result int) {
		if result != 0 {
			s.logger.Warn("engine call failed", zap.String("call", call), zap.Int("result", result))
		}
	}
	check("disableVideo", s.engine.DisableVideo())
	check("setAudioProfile", s.engine.SetAudioProfile(s.cfg.Profile(), s.cfg.Scenario()))
	check("setDefaultAudioRouteToSpeakerphone", s.engine.SetDefaultAudioRouteToSpeakerphone(true))
	check("enableAudioVolumeIndication", s.engine.EnableAudioVolumeIndication(s.viInterval, s.viSmooth, s.viVAD))
}

// Close leaves the channel if joined, stops dispatching and releases the
// engine. Notifications arriving after Close starts are dropped. It is safe to
// call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	opened := s.opened
	s.mu.Unlock()

	s.leaving.Store(true)
	if opened {
		var wasJoined bool
		s.call(func() {
			wasJoined = s.join.Current() == JoinStateJoined
			if err := s.join.Leave(); err != nil {
				s.logger.Warn("join state transition", zap.Error(err))
			}
		})
		if wasJoined {
			if r := s.engine.LeaveChannel(); r != 0 {
				s.logger.Warn("leave channel request rejected", zap.Int("result", r))
			} else {
				s.logger.Info("leave channel requested")
			}
		}
		close(s.stop)
		// From inside a dispatched task the loop exits once that task returns.
		if !s.onLoop() {
			<-s.loopDone
		}
	} else {
		close(s.stop)
		close(s.loopDone)
	}

	if err := s.engine.Release(); err != nil {
		return fmt.Errorf("releasing engine: %w", err)
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) AdjustAudioMixingVolume(volume int) int {
	if s.isClosed() {
		return ErrCodeNotInitialized.Result()
	}
	r := s.engine.AdjustAudioMixingVolume(volume)
	s.logger.Debug("adjustAudioMixingVolume", zap.Int("volume", volume), zap.Int("result", r))
	return r
}

func (s *Session) AdjustAudioMixingPlayoutVolume(volume int) int {
	if s.isClosed() {
		return ErrCodeNotInitialized.Result()
	}
	r := s.engine.AdjustAudioMixingPlayoutVolume(volume)
	s.logger.Debug("adjustAudioMixingPlayoutVolume", zap.Int("volume", volume), zap.Int("result", r))
	return r
}

func (s *Session) AdjustAudioMixingPublishVolume(volume int) int {
	if s.isClosed() {
		return ErrCodeNotInitialized.Result()
	}
	r := s.engine.AdjustAudioMixingPublishVolume(volume)
	s.logger.Debug("adjustAudioMixingPublishVolume", zap.Int("volume", volume), zap.Int("result", r))
	return r
}

// MixingVolumes returns the engine's current playout and publish volumes,
// used to position the sliders.
func (s *Session) MixingVolumes() (playout, publish int) {
	return s.engine.AudioMixingPlayoutVolume(), s.engine.AudioMixingPublishVolume()
}

// Participants returns the roster sorted by uid. It is empty before Open and
// after Close.
func (s *Session) Participants() []Participant {
	var out []Participant
	s.call(func() { out = s.roster.Sorted() })
	return out
}

func (s *Session) State() JoinState {
	state := JoinStateNotJoined
	if !s.call(func() { state = s.join.Current() }) && s.isClosed() {
		return JoinStateLeft
	}
	return state
}

func (s *Session) Joined() bool { return s.State() == JoinStateJoined }

func (s *Session) loop() {
	defer close(s.loopDone)
	s.loopID.Store(goroutineID())
	for {
		select {
		case <-s.stop:
			return
		case task := <-s.tasks:
			select {
			case <-s.stop:
				return
			default:
			}
			task()
		}
	}
}

// onLoop reports whether the caller is the dispatch goroutine.
func (s *Session) onLoop() bool {
	id := s.loopID.Load()
	return id != 0 && id == goroutineID()
}

func goroutineID() uint64 {
	var buf [64]byte
	b := bytes.TrimPrefix(buf[:runtime.Stack(buf[:], false)], []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// post queues task for the dispatch goroutine. It reports false once the
// session has stopped.
func (s *Session) post(task func()) bool {
	select {
	case <-s.stop:
		return false
	default:
	}
	select {
	case <-s.stop:
		return false
	case s.tasks <- task:
		return true
	}
}

// call runs task on the dispatch goroutine and waits for it. On the dispatch
// goroutine itself the task runs inline.
func (s *Session) call(task func()) bool {
	s.mu.Lock()
	opened := s.opened
	s.mu.Unlock()
	if !opened {
		return false
	}
	if s.onLoop() {
		select {
		case <-s.stop:
			return false
		default:
		}
		task()
		return true
	}
	done := make(chan struct{})
	if !s.post(func() {
		defer close(done)
		task()
	}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-s.loopDone:
		return false
	}
}

func (s *Session) layout() {
	entries := s.roster.Sorted()
	s.metrics.setParticipants(len(entries))
	s.container.Layout(entries)
}

func (s *Session) update(uid uint32) {
	if p, ok := s.roster.Get(uid); ok {
		s.container.Update(p)
	}
}

func (s *Session) onJoinChannelSuccess(channel string, uid uint32, elapsed time.Duration) {
	if err := s.join.Joined(); err != nil {
		s.logger.Warn("join state transition", zap.Error(err))
	}
	s.logger.Info("joined channel",
		zap.String("joined_channel", channel),
		zap.Uint32("uid", uid),
		zap.Duration("elapsed", elapsed),
	)
	s.roster.AddLocal(uid)
	s.layout()
}

func (s *Session) onUserJoined(uid uint32, elapsed time.Duration) {
	s.logger.Info("remote user joined", zap.Uint32("uid", uid), zap.Duration("elapsed", elapsed))
	if uid == LocalUID {
		s.logger.Warn("remote user with reserved uid ignored")
		return
	}
	s.roster.AddRemote(uid)
	s.layout()
	s.container.Reload(0)
}

func (s *Session) onUserOffline(uid uint32, reason OfflineReason) {
	s.logger.Info("remote user left", zap.Uint32("uid", uid), zap.String("reason", reason.String()))
	if !s.roster.Remove(uid) {
		return
	}
	s.layout()
	s.container.Reload(0)
}

func (s *Session) onAudioVolumeIndication(speakers []VolumeInfo, totalVolume int) {
	s.metrics.volumeReport()
	s.logger.Trace("volume indication", zap.Int("speakers", len(speakers)), zap.Int("total", totalVolume))
	for _, v := range speakers {
		if s.roster.SetVolume(v.UID, v.Volume) {
			s.update(v.UID)
		}
	}
}

func (s *Session) onRtcStats(stats ChannelStats) {
	if s.roster.SetChannelStats(LocalUID, stats) {
		s.update(LocalUID)
	}
}

func (s *Session) onLocalAudioStats(stats LocalAudioStats) {
	if s.roster.SetLocalAudioStats(LocalUID, stats) {
		s.update(LocalUID)
	}
}

func (s *Session) onRemoteAudioStats(stats RemoteAudioStats) {
	if s.roster.SetRemoteAudioStats(stats) {
		s.update(stats.UID)
	}
}

func (s *Session) onWarning(code WarningCode) {
	s.metrics.engineWarning()
	s.logger.Warn("engine warning", zap.Int("code", int(code)), zap.String("description", code.String()))
}

func (s *Session) onError(code ErrorCode) {
	s.metrics.engineError(code)
	s.logger.Error("engine error", errors.New(code.String()), zap.Int("code", int(code)))
	s.alerter.ShowAlert("Error", fmt.Sprintf("Error %s occur", code))
}

// sessionHandler moves engine notifications onto the dispatch goroutine.
type sessionHandler struct {
	s *Session
}

var _ EngineHandler = (*sessionHandler)(nil)

func (h *sessionHandler) dispatch(task func()) {
	if h.s.leaving.Load() || !h.s.post(task) {
		h.s.metrics.callbackDropped()
	}
}

func (h *sessionHandler) OnJoinChannelSuccess(channel string, uid uint32, elapsed time.Duration) {
	h.dispatch(func() { h.s.onJoinChannelSuccess(channel, uid, elapsed) })
}

// OnLeaveChannel is still delivered after teardown starts, since it is the
// answer to the leave request itself.
func (h *sessionHandler) OnLeaveChannel(stats ChannelStats) {
	h.s.logger.Info("left channel", zap.Duration("duration", stats.Duration))
}

func (h *sessionHandler) OnUserJoined(uid uint32, elapsed time.Duration) {
	h.dispatch(func() { h.s.onUserJoined(uid, elapsed) })
}

func (h *sessionHandler) OnUserOffline(uid uint32, reason OfflineReason) {
	h.dispatch(func() { h.s.onUserOffline(uid, reason) })
}

func (h *sessionHandler) OnAudioVolumeIndication(speakers []VolumeInfo, totalVolume int) {
	speakers = append([]VolumeInfo(nil), speakers...)
	h.dispatch(func() { h.s.onAudioVolumeIndication(speakers, totalVolume) })
}

func (h *sessionHandler) OnRtcStats(stats ChannelStats) {
	h.dispatch(func() { h.s.onRtcStats(stats) })
}

func (h *sessionHandler) OnLocalAudioStats(stats LocalAudioStats) {
	h.dispatch(func() { h.s.onLocalAudioStats(stats) })
}

func (h *sessionHandler) OnRemoteAudioStats(stats RemoteAudioStats) {
	h.dispatch(func() { h.s.onRemoteAudioStats(stats) })
}

func (h *sessionHandler) OnWarning(code WarningCode) {
	h.dispatch(func() { h.s.onWarning(code) })
}

func (h *sessionHandler) OnError(code ErrorCode) {
	h.dispatch(func() { h.s.onError(code) })
}

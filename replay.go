package audiomix

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/bt-bridge/audiomix/shared"
	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DemoReplayScript is a short session: the local user joins, uid 42 joins,
// talks for a while and leaves.
const DemoReplayScript = `
steps:
  - at: 300ms
    event: {type: channel.joined, uid: 1001, elapsed_ms: 300}
  - at: 1s
    event: {type: user.joined, uid: 42, elapsed_ms: 1000}
  - at: 1200ms
    event:
      type: audio.volume_indication
      total_volume: 120
      speakers: [{uid: 0, volume: 80, vad: true}, {uid: 42, volume: 120}]
  - at: 1400ms
    event:
      type: audio.volume_indication
      total_volume: 90
      speakers: [{uid: 0, volume: 40}, {uid: 42, volume: 90}]
  - at: 2s
    event:
      type: stats.rtc
      stats: {duration_s: 2, user_count: 2, tx_audio_kbitrate: 48, rx_audio_kbitrate: 48}
  - at: 2500ms
    event: {type: warning, code: 1016}
  - at: 4s
    event: {type: user.offline, uid: 42, reason: 0}
`

// ReplayStep is one scripted notification, delivered At after the join
// request.
type ReplayStep struct {
	At    time.Duration
	Event *ServerEvent
}

type ReplayScript struct {
	Steps []ReplayStep
}

type replayScriptYAML struct {
	Steps []struct {
		At    any            `yaml:"at"`
		Event map[string]any `yaml:"event"`
	} `yaml:"steps"`
}

// ParseReplayScript reads a YAML script. Event ids are optional. A
// channel.joined event without a channel is delivered with the joined
// channel's name.
func ParseReplayScript(data []byte) (*ReplayScript, error) {
	var raw replayScriptYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing replay script: %w", err)
	}
	script := &ReplayScript{Steps: make([]ReplayStep, 0, len(raw.Steps))}
	for i, s := range raw.Steps {
		at, err := parseStepOffset(s.At)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		if s.Event == nil {
			return nil, fmt.Errorf("step %d: missing event", i)
		}
		if _, ok := s.Event["event_id"]; !ok {
			s.Event["event_id"] = uuid.NewString()
		}
		if s.Event["type"] == string(ServerEventTypeChannelJoined) {
			if _, ok := s.Event["channel"]; !ok {
				s.Event["channel"] = ""
			}
		}
		ev := new(ServerEvent)
		if err := ev.fromMap(s.Event); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		script.Steps = append(script.Steps, ReplayStep{At: at, Event: ev})
	}
	sort.SliceStable(script.Steps, func(i, j int) bool {
		return script.Steps[i].At < script.Steps[j].At
	})
	return script, nil
}

func LoadReplayScript(path string) (*ReplayScript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading replay script: %w", err)
	}
	return ParseReplayScript(data)
}

// parseStepOffset accepts a duration string or a number of milliseconds.
func parseStepOffset(v any) (time.Duration, error) {
	if v == nil {
		return 0, nil
	}
	if s, ok := v.(string); ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid offset %q: %w", s, err)
		}
		return d, nil
	}
	if n, ok := asInt(v); ok {
		return time.Duration(n) * time.Millisecond, nil
	}
	return 0, fmt.Errorf("invalid offset %v", v)
}

// ReplayEngine is an Engine that plays a script of notifications after each
// accepted join. It has no media path.
type ReplayEngine struct {
	logger shared.LoggerAdapter
	script *ReplayScript

	mu         sync.Mutex
	handler    EngineHandler
	joining    bool
	released   bool
	joinedAt   time.Time
	stop       chan struct{}
	wg         sync.WaitGroup
	viInterval time.Duration
	mixPlayout int
	mixPublish int
}

var _ Engine = (*ReplayEngine)(nil)

func NewReplayEngine(logger shared.LoggerAdapter, script *ReplayScript) (*ReplayEngine, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if script == nil {
		return nil, errors.New("replay script is required")
	}
	return &ReplayEngine{
		logger:     logger,
		script:     script,
		mixPlayout: defaultMixingVolume,
		mixPublish: defaultMixingVolume,
	}, nil
}

func (e *ReplayEngine) SetHandler(h EngineHandler) error {
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

func (e *ReplayEngine) guard() int {
	if e.released {
		return ErrCodeNotInitialized.Result()
	}
	return 0
}

func (e *ReplayEngine) SetAudioProfile(profile AudioProfile, scenario AudioScenario) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.guard(); r != 0 {
		return r
	}
	if !profile.Valid() || !scenario.Valid() {
		return ErrCodeInvalidArgument.Result()
	}
	return 0
}

func (e *ReplayEngine) DisableVideo() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.guard()
}

func (e *ReplayEngine) SetDefaultAudioRouteToSpeakerphone(bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.guard()
}

// EnableAudioVolumeIndication with interval <= 0 suppresses scripted volume
// reports.
func (e *ReplayEngine) EnableAudioVolumeIndication(interval time.Duration, smooth int, _ bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.guard(); r != 0 {
		return r
	}
	if (interval > 0 && interval < minVolumeIndInterval) || smooth < 0 {
		return ErrCodeInvalidArgument.Result()
	}
	e.viInterval = interval
	return 0
}

func (e *ReplayEngine) JoinChannel(_ string, channel, _ string, _ uint32) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.guard(); r != 0 {
		return r
	}
	if e.joining {
		return ErrCodeRefused.Result()
	}
	if err := ValidateChannelName(channel); err != nil {
		return ErrCodeInvalidArgument.Result()
	}
	e.joining = true
	e.joinedAt = time.Now()
	e.stop = make(chan struct{})
	e.wg.Add(1)
	go e.play(e.stop, channel, e.handler)
	e.logger.Debug("replay started", zap.String("channel", channel), zap.Int("steps", len(e.script.Steps)))
	return 0
}

func (e *ReplayEngine) LeaveChannel() int {
	e.mu.Lock()
	if r := e.guard(); r != 0 {
		e.mu.Unlock()
		return r
	}
	if !e.joining {
		e.mu.Unlock()
		return ErrCodeLeaveChannelReject.Result()
	}
	e.joining = false
	close(e.stop)
	h := e.handler
	stats := ChannelStats{Duration: time.Since(e.joinedAt).Truncate(time.Second)}
	e.mu.Unlock()

	e.wg.Wait()
	if h != nil {
		go h.OnLeaveChannel(stats)
	}
	return 0
}

func (e *ReplayEngine) Release() error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return nil
	}
	e.released = true
	if e.joining {
		e.joining = false
		close(e.stop)
	}
	e.mu.Unlock()
	e.wg.Wait()
	return nil
}

func (e *ReplayEngine) AdjustAudioMixingVolume(volume int) int {
	return e.adjustMixing(volume, func() { e.mixPlayout, e.mixPublish = volume, volume })
}

func (e *ReplayEngine) AdjustAudioMixingPlayoutVolume(volume int) int {
	return e.adjustMixing(volume, func() { e.mixPlayout = volume })
}

func (e *ReplayEngine) AdjustAudioMixingPublishVolume(volume int) int {
	return e.adjustMixing(volume, func() { e.mixPublish = volume })
}

func (e *ReplayEngine) adjustMixing(volume int, apply func()) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.guard(); r != 0 {
		return r
	}
	if ValidateMixingVolume(volume) != nil {
		return ErrCodeInvalidArgument.Result()
	}
	apply()
	return 0
}

func (e *ReplayEngine) AudioMixingPlayoutVolume() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mixPlayout
}

func (e *ReplayEngine) AudioMixingPublishVolume() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mixPublish
}

func (e *ReplayEngine) play(stop <-chan struct{}, channel string, h EngineHandler) {
	defer e.wg.Done()
	start := time.Now()
	for _, step := range e.script.Steps {
		if wait := step.At - time.Since(start); wait > 0 {
			select {
			case <-stop:
				return
			case <-time.After(wait):
			}
		} else {
			select {
			case <-stop:
				return
			default:
			}
		}
		e.deliver(step.Event, channel, h)
	}
	e.logger.Debug("replay finished", zap.String("channel", channel))
}

func (e *ReplayEngine) deliver(ev *ServerEvent, channel string, h EngineHandler) {
	if h == nil {
		return
	}
	switch p := ev.Param.(type) {
	case *ServerEventParamChannelJoined:
		if p.Channel == "" {
			joined := *p
			joined.Channel = channel
			ev = &ServerEvent{EventId: ev.EventId, Type: ev.Type, Param: &joined}
		}
	case *ServerEventParamVolumeIndication:
		e.mu.Lock()
		off := e.viInterval <= 0
		e.mu.Unlock()
		if off {
			return
		}
	}
	if err := ev.Dispatch(h); err != nil {
		e.logger.Error("dispatching replayed event", err, zap.String("type", string(ev.Type)))
	}
}

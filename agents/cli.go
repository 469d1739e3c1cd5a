package agents

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bt-bridge/audiomix"
	"github.com/bt-bridge/audiomix/shared"
	"github.com/bt-bridge/audiomix/tools"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

type CLIConfig struct {
	Channel  string
	Profile  audiomix.AudioProfile
	Scenario audiomix.AudioScenario
	// Interactive prompts for every setup field; otherwise only a missing
	// channel is asked for.
	Interactive bool
	Token       string

	VolumeInterval time.Duration
	VolumeSmooth   int
	VolumeVAD      bool

	// Microphone publishes the default input device. Remote engine only.
	Microphone bool
	// PCMOut receives decoded remote audio as S16LE. Remote engine only.
	PCMOut  io.Writer
	Metrics *audiomix.Metrics
}

// CLIAgent is a terminal front end: it fills the setup form from stdin, runs
// the session and prints the participant grid.
type CLIAgent struct {
	logger   shared.LoggerAdapter
	printer  *shared.Printer
	in       *bufio.Scanner
	session  *audiomix.Session
	micTrack mediadevices.Track
	playout  *tools.AudioBuffer
	meter    tools.LevelMeter

	mu sync.Mutex
}

var (
	_ audiomix.Container = (*CLIAgent)(nil)
	_ audiomix.Alerter   = (*CLIAgent)(nil)
)

func (a *CLIAgent) Spawn(
	ctx context.Context,
	logger shared.LoggerAdapter,
	engine audiomix.Engine,
	cfg CLIConfig,
	printer *shared.Printer,
	in io.Reader,
) (<-chan struct{}, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if engine == nil {
		return nil, shared.ErrNoEngine
	}
	if printer == nil {
		return nil, errors.New("no printer provided")
	}
	if in == nil {
		return nil, errors.New("no input provided")
	}
	a.logger = logger
	a.printer = printer
	a.in = bufio.NewScanner(in)
	a.logger.Info("spawning CLI agent")
	a.println("🎚  Audio mixing demo\n", 0)

	setup := audiomix.NewSetup()
	setup.SetChannel(cfg.Channel)
	setup.SelectProfile(cfg.Profile)
	setup.SelectScenario(cfg.Scenario)
	if err := a.fillSetup(setup, cfg.Interactive); err != nil {
		return nil, err
	}

	if remote, ok := engine.(*audiomix.RemoteEngine); ok {
		if err := a.wireMedia(ctx, remote, cfg); err != nil {
			return nil, err
		}
	}

	session, err := setup.Confirm(engine,
		audiomix.WithLogger(a.logger),
		audiomix.WithContainer(a),
		audiomix.WithAlerter(a),
		audiomix.WithMetrics(cfg.Metrics),
		audiomix.WithToken(cfg.Token),
		audiomix.WithVolumeIndication(cfg.VolumeInterval, cfg.VolumeSmooth, cfg.VolumeVAD),
	)
	if err != nil {
		if errors.Is(err, shared.ErrEmptyChannel) {
			a.ShowAlert("Error", "channel name is required")
		}
		a.logger.Error("confirming setup", err)
		return nil, err
	}
	a.mu.Lock()
	a.session = session
	a.mu.Unlock()

	a.println("📋 Session Config\n", 0)
	if yamlBytes, err := session.Config().MarshalYAML(); err == nil {
		a.print(string(yamlBytes), 1)
	} else {
		a.logger.Error("marshaling session config to yaml", err)
	}

	if err := session.Open(ctx); err != nil {
		a.logger.Error("opening session", err)
		_ = session.Close()
		return nil, err
	}
	a.println("\n⏳ Joining...  commands: mix|playout|publish <0-100>, volumes, level, list, quit\n", 0)
	go a.readCommands()
	return session.Done(), nil
}

// fillSetup asks for the fields the configuration left open.
func (a *CLIAgent) fillSetup(setup *audiomix.Setup, interactive bool) error {
	if interactive {
		profiles := setup.Profiles()
		names := make([]string, len(profiles))
		for i, p := range profiles {
			names[i] = p.String()
		}
		if i, ok := a.pick("Audio profile", names, setup.ProfileLabel()); ok {
			setup.SelectProfile(profiles[i])
		}
		scenarios := setup.Scenarios()
		names = make([]string, len(scenarios))
		for i, s := range scenarios {
			names[i] = s.String()
		}
		if i, ok := a.pick("Audio scenario", names, setup.ScenarioLabel()); ok {
			setup.SelectScenario(scenarios[i])
		}
	}
	cfg, err := setup.Config()
	if err == nil && !interactive {
		return nil
	}
	if err != nil && !errors.Is(err, shared.ErrEmptyChannel) {
		return err
	}
	for {
		label := "Channel name: "
		if err == nil {
			label = "Channel name [enter keeps " + cfg.Channel() + "]: "
		}
		line, ok := a.prompt(label)
		if !ok {
			return shared.ErrEmptyChannel
		}
		if line == "" && err == nil {
			return nil
		}
		setup.SetChannel(line)
		if cfg, err = setup.Config(); err == nil {
			return nil
		} else if !errors.Is(err, shared.ErrEmptyChannel) {
			return err
		}
		a.ShowAlert("Error", "channel name is required")
	}
}

// pick shows a numbered list and returns the chosen index. An empty answer
// keeps the current value.
func (a *CLIAgent) pick(title string, options []string, current string) (int, bool) {
	a.println(title+":", 0)
	for i, o := range options {
		mark := " "
		if o == current {
			mark = "*"
		}
		_ = a.printer.Writef(1, "%s %d) %s", mark, i+1, o)
	}
	for {
		line, ok := a.prompt("Choice [enter keeps " + current + "]: ")
		if !ok || line == "" {
			return 0, false
		}
		n, err := strconv.Atoi(line)
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, true
		}
		for i, o := range options {
			if o == line {
				return i, true
			}
		}
		a.println("invalid choice", 1)
	}
}

func (a *CLIAgent) prompt(label string) (string, bool) {
	a.print(label, 0)
	if !a.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(a.in.Text()), true
}

func (a *CLIAgent) wireMedia(ctx context.Context, remote *audiomix.RemoteEngine, cfg CLIConfig) error {
	if cfg.PCMOut != nil {
		a.playout = tools.NewAudioBuffer(2 * 48000 * 2 * 2)
		go func() {
			if _, err := tools.DrainTo(cfg.PCMOut, a.playout); err != nil {
				a.logger.Error("writing playout audio", err)
			}
		}()
		err := remote.RegisterTrackRemoteHandler(func(track *webrtc.TrackRemote) {
			a.logger.Info(
				"received remote track",
				zap.String("kind", track.Kind().String()),
				zap.String("codec", track.Codec().MimeType),
			)
			sink := a.playout.Sink(func(dropped int) {
				a.logger.Warn("audio buffer dropped data", zap.Int("droppedBytes", dropped))
			})
			tools.DecodeRemoteAudio(ctx, a.logger, track, sink, remote.AudioMixingPlayoutVolume, &a.meter, 20*time.Millisecond)
		})
		if err != nil {
			a.logger.Error("registering track remote handler", err)
			return err
		}
	}

	if !cfg.Microphone {
		return nil
	}
	a.println("🎤 Accessing microphone...", 0)
	opusParams, err := opus.NewParams()
	if err != nil {
		a.logger.Error("creating opus params", err)
		return err
	}
	micStream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(c *mediadevices.MediaTrackConstraints) {
			c.SampleRate = prop.Int(48000)
			c.ChannelCount = prop.Int(1)
			c.SampleSize = prop.Int(16)
		},
		Codec: mediadevices.NewCodecSelector(
			mediadevices.WithAudioEncoders(&opusParams),
		),
	})
	if err != nil {
		a.logger.Error("getting microphone stream", err)
		a.println("❌ Unable to access microphone.\n", 0)
		return err
	}
	audioTracks := micStream.GetAudioTracks()
	if len(audioTracks) == 0 {
		err := errors.New("no audio track found in microphone stream")
		a.logger.Error("getting microphone stream", err)
		return err
	}
	a.micTrack = audioTracks[0]
	err = remote.RegisterTrackLocalHandler(func(track *webrtc.TrackLocalStaticSample) {
		tools.StreamLocalAudio(ctx, a.logger, track, a.micTrack, time.Duration(opusParams.Latency))
	})
	if err != nil {
		a.logger.Error("registering track local handler", err)
		return err
	}
	a.println("✅ Microphone ready.\n", 0)
	return nil
}

func (a *CLIAgent) readCommands() {
	for a.in.Scan() {
		fields := strings.Fields(a.in.Text())
		if len(fields) == 0 {
			continue
		}
		a.mu.Lock()
		session := a.session
		a.mu.Unlock()
		if session == nil {
			return
		}
		switch cmd := fields[0]; cmd {
		case "quit", "exit":
			if err := a.Close(); err != nil {
				a.logger.Error("closing CLI agent", err)
			}
			return
		case "list":
			a.Layout(session.Participants())
		case "volumes":
			playout, publish := session.MixingVolumes()
			_ = a.printer.Writef(1, "playout %d, publish %d", playout, publish)
		case "level":
			_ = a.printer.Writef(1, "playout level %d/255", a.meter.Current())
		case "mix", "playout", "publish":
			if len(fields) != 2 {
				a.println("usage: "+cmd+" <0-100>", 1)
				continue
			}
			volume, err := strconv.Atoi(fields[1])
			if err != nil {
				a.println("volume must be a number", 1)
				continue
			}
			var r int
			switch cmd {
			case "mix":
				r = session.AdjustAudioMixingVolume(volume)
			case "playout":
				r = session.AdjustAudioMixingPlayoutVolume(volume)
			default:
				r = session.AdjustAudioMixingPublishVolume(volume)
			}
			if r != 0 {
				_ = a.printer.Writef(1, "rejected: %s", audiomix.ErrorCode(-r))
			}
		default:
			a.println("unknown command: "+cmd, 1)
		}
	}
}

// Layout prints the grid two placeholders per row.
func (a *CLIAgent) Layout(entries []audiomix.Participant) {
	a.println(fmt.Sprintf("👥 %d participant(s)", len(entries)), 0)
	for i := 0; i < len(entries); i += 2 {
		row := cell(entries[i])
		if i+1 < len(entries) {
			row += " │ " + cell(entries[i+1])
		}
		a.println(row, 1)
	}
}

func (a *CLIAgent) Reload(level int) {
	a.logger.Trace("container reload", zap.Int("level", level))
}

func (a *CLIAgent) Update(entry audiomix.Participant) {
	a.logger.Trace("placeholder updated",
		zap.Uint32("uid", entry.UID),
		zap.String("info", entry.Info()),
	)
}

func (a *CLIAgent) ShowAlert(title, message string) {
	a.println(fmt.Sprintf("⚠️  %s: %s", title, message), 0)
}

func cell(p audiomix.Participant) string {
	s := fmt.Sprintf("%-20s", p.Label)
	if info := p.Info(); info != "" {
		s += " " + fmt.Sprintf("%-10s", info)
	} else {
		s += strings.Repeat(" ", 11)
	}
	return s
}

func (a *CLIAgent) print(s string, ind int) {
	if err := a.printer.Write(s, ind); err != nil {
		a.logger.Error("printing", err)
	}
}

func (a *CLIAgent) println(s string, ind int) {
	if err := a.printer.Writeln(s, ind); err != nil {
		a.logger.Error("printing", err)
	}
}

func (a *CLIAgent) Close() error {
	a.mu.Lock()
	session := a.session
	playout := a.playout
	a.mu.Unlock()
	var err error
	if session != nil {
		err = session.Close()
	}
	if playout != nil {
		_ = playout.Close()
	}
	return err
}

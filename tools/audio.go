package tools

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bt-bridge/audiomix/shared"
	"github.com/pion/mediadevices"
	"github.com/pion/opus"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"
)

// AudioBuffer is a bounded PCM queue. Writes never block; when full the
// oldest bytes are dropped.
type AudioBuffer struct {
	buffer []byte
	mu     sync.Mutex
	cond   *sync.Cond
	size   int
	cap    int
	closed bool
}

func NewAudioBuffer(fixedCap int) *AudioBuffer {
	ab := &AudioBuffer{
		buffer: make([]byte, 0, fixedCap),
		size:   0,
		cap:    fixedCap,
	}
	ab.cond = sync.NewCond(&ab.mu)
	return ab
}

func (ab *AudioBuffer) Write(data []byte) (dropped int) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	if ab.closed {
		return len(data)
	}
	if len(data) > ab.cap {
		dropped = len(data) - ab.cap
		data = data[dropped:]
	}
	if ab.size+len(data) > ab.cap {
		drop := ab.size + len(data) - ab.cap
		ab.buffer = ab.buffer[drop:]
		ab.size -= drop
		dropped += drop
	}
	ab.buffer = append(ab.buffer, data...)
	ab.size += len(data)
	ab.cond.Signal()
	return dropped
}

// Read blocks until data is available or the buffer is closed.
func (ab *AudioBuffer) Read(p []byte) (n int, err error) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	for ab.size == 0 && !ab.closed {
		ab.cond.Wait()
	}
	if ab.size == 0 {
		return 0, io.EOF
	}
	n = copy(p, ab.buffer)
	ab.buffer = ab.buffer[n:]
	ab.size -= n
	return n, nil
}

func (ab *AudioBuffer) Len() int {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	return ab.size
}

// Close wakes pending readers. Buffered data can still be read.
func (ab *AudioBuffer) Close() error {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	ab.closed = true
	ab.cond.Broadcast()
	return nil
}

type bufferSink struct {
	ab     *AudioBuffer
	onDrop func(int)
}

func (s bufferSink) Write(p []byte) (int, error) {
	if dropped := s.ab.Write(p); dropped > 0 && s.onDrop != nil {
		s.onDrop(dropped)
	}
	return len(p), nil
}

// Sink adapts the buffer to io.Writer. onDrop, if set, is told how many bytes
// each write pushed out.
func (ab *AudioBuffer) Sink(onDrop func(dropped int)) io.Writer {
	return bufferSink{ab: ab, onDrop: onDrop}
}

// ApplyGain scales S16LE samples in place by percent/100, clipping at the
// int16 range. 100 leaves the samples unchanged.
func ApplyGain(pcm []byte, percent int) {
	if percent == 100 {
		return
	}
	if percent < 0 {
		percent = 0
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int32(int16(binary.LittleEndian.Uint16(pcm[i:])))
		s = s * int32(percent) / 100
		if s > math.MaxInt16 {
			s = math.MaxInt16
		} else if s < math.MinInt16 {
			s = math.MinInt16
		}
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(s)))
	}
}

// Level returns the peak of S16LE samples on the engine's 0-255 volume scale.
func Level(pcm []byte) int {
	var peak int32
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int32(int16(binary.LittleEndian.Uint16(pcm[i:])))
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return int(peak * 255 / 32768)
}

// LevelMeter keeps the level of the most recent playout frame.
type LevelMeter struct {
	level atomic.Int32
}

func (m *LevelMeter) Observe(pcm []byte) {
	if m == nil {
		return
	}
	m.level.Store(int32(Level(pcm)))
}

// Current returns the last observed level on the 0-255 scale.
func (m *LevelMeter) Current() int {
	if m == nil {
		return 0
	}
	return int(m.level.Load())
}

func StreamLocalAudio(ctx context.Context, logger shared.LoggerAdapter, track *webrtc.TrackLocalStaticSample, mediaTrack mediadevices.Track, frameDuration time.Duration) {
	reader, err := mediaTrack.NewEncodedReader(track.Codec().MimeType)
	if err != nil {
		logger.Error("creating media track reader", err)
		return
	}
	defer func() { _ = reader.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		buf, release, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				release()
				return
			}
			logger.Error("reading from media track", err)
			release()
			continue
		}
		if buf.Samples == 0 {
			release()
			continue
		}
		err = track.WriteSample(media.Sample{
			Data:     buf.Data[:],
			Duration: frameDuration,
		})
		release()
		if err != nil {
			logger.Error("failed to write sample to track", err)
			continue
		}
	}
}

// PlayoutGain reports the current playout volume in percent.
type PlayoutGain func() int

// DecodeRemoteAudio decodes the Opus track into S16LE PCM, applies the
// playout gain and writes the result to sink. meter, if set, sees every frame
// after gain. It returns when the track ends or ctx is done.
func DecodeRemoteAudio(ctx context.Context, logger shared.LoggerAdapter, track *webrtc.TrackRemote, sink io.Writer, gain PlayoutGain, meter *LevelMeter, frameDuration time.Duration) {
	codec := track.Codec()
	logger.Info("decoding remote audio",
		zap.String("codec", codec.MimeType),
		zap.Uint32("clockRate", codec.ClockRate),
		zap.Uint16("channels", codec.Channels),
	)
	decoder := opus.NewDecoder()
	// Large enough for a stereo frame at the highest Opus bandwidth.
	out := make([]byte, FrameSamples(frameDuration, 48000, 2)*2)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		rtp, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Error("reading RTP packet", err)
			}
			return
		}
		if len(rtp.Payload) == 0 {
			continue
		}
		bandwidth, isStereo, err := decoder.Decode(rtp.Payload, out)
		if err != nil {
			logger.Debug("decoding Opus", zap.Error(err))
			continue
		}
		channels := 1
		if isStereo {
			channels = 2
		}
		n := min(FrameSamples(frameDuration, bandwidth.SampleRate(), channels)*2, len(out))
		pcm := out[:n]
		if gain != nil {
			ApplyGain(pcm, gain())
		}
		meter.Observe(pcm)
		if _, err := sink.Write(pcm); err != nil {
			logger.Error("writing decoded audio", err)
			return
		}
	}
}

// DrainTo copies buffered PCM to w until the buffer is closed.
func DrainTo(w io.Writer, ab *AudioBuffer) (int64, error) {
	return io.Copy(w, ab)
}

package tools

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s16le(samples ...int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

func samplesOf(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func TestAudioBufferDropsOldest(t *testing.T) {
	ab := NewAudioBuffer(4)
	assert.Zero(t, ab.Write([]byte{1, 2, 3}))
	assert.Equal(t, 2, ab.Write([]byte{4, 5, 6}))
	assert.Equal(t, 4, ab.Len())

	p := make([]byte, 8)
	n, err := ab.Read(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 5, 6}, p[:n])
}

func TestAudioBufferOversizedWrite(t *testing.T) {
	ab := NewAudioBuffer(2)
	assert.Equal(t, 3, ab.Write([]byte{1, 2, 3, 4, 5}))
	p := make([]byte, 4)
	n, err := ab.Read(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, p[:n])
}

func TestAudioBufferCloseUnblocksRead(t *testing.T) {
	ab := NewAudioBuffer(16)
	done := make(chan error, 1)
	go func() {
		_, err := ab.Read(make([]byte, 4))
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, ab.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("Read still blocked after Close")
	}
	assert.Equal(t, 3, ab.Write([]byte{1, 2, 3}))
}

func TestDrainTo(t *testing.T) {
	ab := NewAudioBuffer(16)
	sink := ab.Sink(nil)
	_, err := sink.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = sink.Write([]byte("def"))
	require.NoError(t, err)
	require.NoError(t, ab.Close())

	var out bytes.Buffer
	n, err := DrainTo(&out, ab)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	assert.Equal(t, "abcdef", out.String())
}

func TestSinkReportsDrops(t *testing.T) {
	ab := NewAudioBuffer(4)
	var dropped int
	sink := ab.Sink(func(n int) { dropped += n })
	n, err := sink.Write([]byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, 2, dropped)
}

func TestApplyGain(t *testing.T) {
	tests := []struct {
		name    string
		in      []int16
		percent int
		want    []int16
	}{
		{"unity", []int16{100, -100}, 100, []int16{100, -100}},
		{"half", []int16{100, -100, 1}, 50, []int16{50, -50, 0}},
		{"mute", []int16{32767, -32768}, 0, []int16{0, 0}},
		{"negative clamps to mute", []int16{500}, -10, []int16{0}},
		{"clip high", []int16{30000, -30000}, 200, []int16{32767, -32768}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm := s16le(tt.in...)
			ApplyGain(pcm, tt.percent)
			assert.Equal(t, tt.want, samplesOf(pcm))
		})
	}
}

func TestApplyGainOddLength(t *testing.T) {
	pcm := append(s16le(200), 0x7f)
	ApplyGain(pcm, 50)
	assert.Equal(t, int16(100), samplesOf(pcm[:2])[0])
	assert.Equal(t, byte(0x7f), pcm[2])
}

func TestLevelMeter(t *testing.T) {
	var m LevelMeter
	assert.Zero(t, m.Current())
	m.Observe(s16le(100, -16384, 200))
	assert.Equal(t, 127, m.Current())
	m.Observe(s16le(0))
	assert.Zero(t, m.Current())

	var nilMeter *LevelMeter
	nilMeter.Observe(s16le(32767))
	assert.Zero(t, nilMeter.Current())
}

func TestLevel(t *testing.T) {
	assert.Zero(t, Level(nil))
	assert.Zero(t, Level(s16le(0, 0)))
	assert.Equal(t, 254, Level(s16le(32767)))
	assert.Equal(t, 255, Level(s16le(-32768)))
	assert.Equal(t, 127, Level(s16le(100, -16384, 200)))
}

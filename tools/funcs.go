package tools

import "time"

// FrameSamples is the number of interleaved samples in one frame.
func FrameSamples(duration time.Duration, rate, channels int) int {
	return int(duration.Seconds() * float64(channels) * float64(rate))
}

package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// BytesPerSample is the only sample width the pipeline accepts (16-bit PCM).
const BytesPerSample = 2

var (
	// ErrOddLength is returned for chunks that cannot hold whole 16-bit samples.
	ErrOddLength = errors.New("audio: odd chunk length")
	// ErrFrameAlignment is returned when a chunk does not hold whole interleaved frames.
	ErrFrameAlignment = errors.New("audio: chunk not aligned to frame size")
)

// Format describes the inbound PCM stream.
type Format struct {
	SampleRate  int
	Channels    int
	SampleWidth int
}

// FrameSize returns the byte size of one interleaved frame.
func (f Format) FrameSize() int {
	return f.SampleWidth * f.Channels
}

// Validate checks a raw chunk against the format without touching its contents.
func (f Format) Validate(chunk []byte) error {
	if len(chunk)%BytesPerSample != 0 {
		return fmt.Errorf("%w (got %d bytes)", ErrOddLength, len(chunk))
	}
	if fs := f.FrameSize(); fs > 0 && len(chunk)%fs != 0 {
		return fmt.Errorf("%w (got %d bytes, frame %d)", ErrFrameAlignment, len(chunk), fs)
	}
	return nil
}

// Duration returns the playback duration of mono 16-bit PCM bytes at sampleRate.
func Duration(numBytes, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := int64(numBytes / BytesPerSample)
	return time.Duration(samples * int64(time.Second) / int64(sampleRate))
}

// BytesFor returns the number of mono 16-bit PCM bytes covering d at sampleRate.
func BytesFor(d time.Duration, sampleRate int) int {
	samples := int64(d) * int64(sampleRate) / int64(time.Second)
	return int(samples) * BytesPerSample
}

// Int16s decodes little-endian 16-bit PCM.
func Int16s(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Bytes encodes samples as little-endian 16-bit PCM.
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Downmix averages interleaved channels into a single mono channel.
// The chunk must already be frame aligned.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	in := Int16s(pcm)
	out := make([]int16, len(in)/channels)
	for i := range out {
		var sum int
		for c := 0; c < channels; c++ {
			sum += int(in[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return Bytes(out)
}

// Float32s converts 16-bit PCM into samples normalized to [-1, 1].
func Float32s(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/BytesPerSample)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out
}

// RMS returns the root-mean-square energy of normalized float samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ClampInt16 rounds v to the nearest integer and saturates it to the int16 range.
func ClampInt16(v float64) int16 {
	v = math.Round(v)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// FromFloat32s converts normalized samples back to 16-bit PCM, saturating
// values outside [-1, 1].
func FromFloat32s(samples []float32) []byte {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = ClampInt16(float64(s) * 32768.0)
	}
	return Bytes(out)
}

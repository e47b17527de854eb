// Package audio holds the PCM primitives shared by the capture, playback
// and orchestration layers. All audio in the pipeline is 16-bit little-endian
// mono PCM: 16 kHz on the capture path, 24 kHz on the playback path.
package audio

import (
	"math"
	"time"
)

const (
	CaptureRate    = 16000
	PlaybackRate   = 24000
	BytesPerSample = 2
)

// Format describes one direction of the audio contract.
type Format struct {
	SampleRate int
}

var (
	Capture  = Format{SampleRate: CaptureRate}
	Playback = Format{SampleRate: PlaybackRate}
)

// Duration returns the wall-clock duration of n bytes of PCM in this format.
func (f Format) Duration(n int) time.Duration {
	samples := n / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Bytes returns the PCM byte count covering d in this format.
func (f Format) Bytes(d time.Duration) int {
	samples := int(d * time.Duration(f.SampleRate) / time.Second)
	return samples * BytesPerSample
}

// Frame is one fixed-duration slice of capture audio. Frames are immutable
// once emitted by the segmenter; Seq increases monotonically per session.
type Frame struct {
	Seq    uint64
	PCM    []byte
	RMS    float64
	Voiced bool
}

// RMS computes the root-mean-square level of 16-bit LE PCM.
func RMS(b []byte) float64 {
	if len(b) < BytesPerSample {
		return 0
	}
	var sum float64
	n := len(b) / BytesPerSample
	for i := 0; i < n; i++ {
		s := int16(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(n))
}

// DecodeSample reads the i-th sample from 16-bit LE PCM.
func DecodeSample(b []byte, i int) int16 {
	return int16(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
}

// EncodeSample writes s as the i-th sample of 16-bit LE PCM.
func EncodeSample(b []byte, i int, s int16) {
	u := uint16(s)
	b[i*2] = byte(u & 0xFF)
	b[i*2+1] = byte(u >> 8)
}

package providers

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"kestrel/voice/internal/audio"
)

// Sim providers are deterministic in-process collaborators for tests and
// local development. No network, no keys, stable output for a given input.

type SimTranscriber struct{}

func NewSimTranscriber() *SimTranscriber { return &SimTranscriber{} }

func (s *SimTranscriber) Transcribe(ctx context.Context, pcm []byte) (<-chan Result, error) {
	out := make(chan Result, 2)
	dur := audio.Capture.Duration(len(pcm))
	go func() {
		defer close(out)
		partial := Result{Text: "you said", IsFinal: false, Confidence: 0.5}
		final := Result{
			Text:       fmt.Sprintf("you said %dms of audio", dur.Milliseconds()),
			IsFinal:    true,
			Confidence: 0.95,
		}
		for _, r := range []Result{partial, final} {
			select {
			case <-ctx.Done():
				return
			case out <- r:
			}
		}
	}()
	return out, nil
}

func (s *SimTranscriber) Close() error { return nil }

type SimAgent struct{}

func NewSimAgent() *SimAgent { return &SimAgent{} }

// Respond echoes the prompt back word by word as deltas, ending with a
// period so sentence segmentation downstream has a boundary to find.
func (s *SimAgent) Respond(ctx context.Context, sessionID, prompt string) (<-chan string, error) {
	out := make(chan string, 8)
	words := strings.Fields("I heard: " + prompt + ".")
	go func() {
		defer close(out)
		for i, w := range words {
			if i > 0 {
				w = " " + w
			}
			select {
			case <-ctx.Done():
				return
			case out <- w:
			}
		}
	}()
	return out, nil
}

type SimSynthesizer struct{}

func NewSimSynthesizer() *SimSynthesizer { return &SimSynthesizer{} }

// Synthesize renders a 440 Hz tone, 60 ms per word, chunked into 40 ms
// frames of 24 kHz PCM.
func (s *SimSynthesizer) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	out := make(chan []byte, 4)
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	total := audio.Playback.Bytes(time.Duration(words) * 60 * time.Millisecond)
	chunkBytes := audio.Playback.Bytes(40 * time.Millisecond)
	go func() {
		defer close(out)
		for off := 0; off < total; off += chunkBytes {
			n := chunkBytes
			if off+n > total {
				n = total - off
			}
			chunk := make([]byte, n)
			for i := 0; i < n/2; i++ {
				pos := off/2 + i
				sample := int16(3000 * math.Sin(2*math.Pi*440*float64(pos)/float64(audio.Playback.SampleRate)))
				audio.EncodeSample(chunk, i, sample)
			}
			select {
			case <-ctx.Done():
				return
			case out <- chunk:
			}
		}
	}()
	return out, nil
}

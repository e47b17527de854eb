// Package providers holds the collaborator capabilities the pipeline
// composes: speech recognition, response generation, speech synthesis.
// Implementations are selected by name from config; everything upstream
// programs against the three interfaces.
package providers

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"kestrel/voice/internal/config"
)

var ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

// Result is one recognition hypothesis. Partials stream first; exactly one
// final result closes the utterance.
type Result struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

// Transcriber turns one closed utterance of 16 kHz PCM into a result
// stream. The channel closes after the final result (or on error, with
// the error reported through the last Result being absent).
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (<-chan Result, error)
	Close() error
}

// Agent produces a response as a stream of text deltas. Cancelling the
// context stops generation mid-stream.
type Agent interface {
	Respond(ctx context.Context, sessionID, prompt string) (<-chan string, error)
}

// Synthesizer produces 24 kHz 16-bit mono PCM for a sentence, streaming
// chunks before the whole rendering completes. Cancelling the context
// stops the stream within one chunk.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (<-chan []byte, error)
}

// Set bundles the three collaborators for one deployment.
type Set struct {
	ASR   Transcriber
	Agent Agent
	TTS   Synthesizer
}

// Build selects implementations by config name.
func Build(cfg config.Config, log *zap.Logger) (*Set, error) {
	s := &Set{}

	switch cfg.Providers.ASR {
	case "sim":
		s.ASR = NewSimTranscriber()
	case "ws":
		s.ASR = NewWSTranscriber(WSConfig{
			URL:    cfg.Providers.ASRURL,
			APIKey: cfg.Providers.ASRKey,
		}, log)
	default:
		return nil, fmt.Errorf("unknown asr provider %q", cfg.Providers.ASR)
	}

	switch cfg.Providers.Agent {
	case "sim":
		s.Agent = NewSimAgent()
	case "http":
		s.Agent = NewHTTPAgent(cfg.Providers.AgentURL, cfg.Providers.AgentKey, log)
	default:
		return nil, fmt.Errorf("unknown agent provider %q", cfg.Providers.Agent)
	}

	switch cfg.Providers.TTS {
	case "sim":
		s.TTS = NewSimSynthesizer()
	case "http":
		s.TTS = NewHTTPSynthesizer(cfg.Providers.TTSURL, cfg.Providers.TTSKey, cfg.Providers.Voice, log)
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.Providers.TTS)
	}

	return s, nil
}

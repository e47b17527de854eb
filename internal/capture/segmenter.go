// Package capture turns the raw microphone stream into leveled frames and
// detects utterance boundaries with energy-based VAD. Frames keep flowing
// after a local SpeechEnd so a server-side VAD can override the local
// segmentation; local boundaries are authoritative only for barge-in.
package capture

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kestrel/voice/internal/audio"
)

// Boundary tags a segment edge on a Feed result.
type Boundary int

const (
	BoundaryNone Boundary = iota
	SpeechStart
	SpeechEnd
)

func (b Boundary) String() string {
	switch b {
	case SpeechStart:
		return "speech_start"
	case SpeechEnd:
		return "speech_end"
	default:
		return "none"
	}
}

// Utterance groups the frames between a SpeechStart and SpeechEnd boundary,
// including the pre-roll window captured before the start was recognized.
type Utterance struct {
	ID     string
	Frames []audio.Frame
}

// PCM concatenates the utterance audio into one buffer for recognition.
func (u *Utterance) PCM() []byte {
	var n int
	for _, f := range u.Frames {
		n += len(f.PCM)
	}
	out := make([]byte, 0, n)
	for _, f := range u.Frames {
		out = append(out, f.PCM...)
	}
	return out
}

// Duration reports the audible length of the utterance.
func (u *Utterance) Duration() time.Duration {
	var n int
	for _, f := range u.Frames {
		n += len(f.PCM)
	}
	return audio.Capture.Duration(n)
}

// Config holds the segmenter tunables.
type Config struct {
	// StartThreshold is the RMS level above which a block is voiced.
	StartThreshold float64
	// EndThreshold is the lower hysteresis bound; while an utterance is
	// open, a block only counts as silence below it. Defaults to
	// StartThreshold when zero.
	EndThreshold float64
	// MinStartBlocks is how many consecutive voiced blocks open an
	// utterance. Guards against single-block flips around the threshold.
	MinStartBlocks int
	// SilenceHold is the sustained silence that closes an utterance.
	SilenceHold time.Duration
	// PreRoll is how much audio before SpeechStart is kept.
	PreRoll time.Duration
	// BlockDuration is the duration of one input block.
	BlockDuration time.Duration
}

// DefaultConfig matches the platform contract: 20ms blocks, 600ms hold,
// 250ms pre-roll.
func DefaultConfig() Config {
	return Config{
		StartThreshold: 1200,
		EndThreshold:   700,
		MinStartBlocks: 2,
		SilenceHold:    600 * time.Millisecond,
		PreRoll:        250 * time.Millisecond,
		BlockDuration:  20 * time.Millisecond,
	}
}

// Output is the result of feeding one block.
type Output struct {
	// Frame is always emitted; Voiced marks membership in the open
	// utterance.
	Frame    audio.Frame
	Boundary Boundary
	// PreRoll carries the ring-buffered frames flushed on SpeechStart.
	PreRoll []audio.Frame
	// Utterance is the closed utterance delivered with SpeechEnd.
	Utterance *Utterance
}

// Segmenter is single-owner state; it runs on the client event loop and is
// not safe for concurrent use.
type Segmenter struct {
	cfg Config
	log *zap.Logger

	seq  uint64
	ring []audio.Frame

	open         *Utterance
	consecVoiced int
	silentBlocks int
	holdBlocks   int
	ringCap      int
}

func NewSegmenter(cfg Config, log *zap.Logger) *Segmenter {
	if cfg.EndThreshold <= 0 {
		cfg.EndThreshold = cfg.StartThreshold
	}
	if cfg.MinStartBlocks <= 0 {
		cfg.MinStartBlocks = 1
	}
	hold := int(cfg.SilenceHold / cfg.BlockDuration)
	if hold < 1 {
		hold = 1
	}
	ringCap := int((cfg.PreRoll + cfg.BlockDuration - 1) / cfg.BlockDuration)
	return &Segmenter{
		cfg:        cfg,
		log:        log.Named("segmenter"),
		holdBlocks: hold,
		ringCap:    ringCap,
	}
}

// Open reports whether an utterance is currently accumulating frames.
// At most one utterance is open at any time.
func (s *Segmenter) Open() bool { return s.open != nil }

// Feed consumes one fixed-size PCM block and emits the resulting frame,
// plus a boundary when one is crossed.
func (s *Segmenter) Feed(block []byte) Output {
	s.seq++
	rms := audio.RMS(block)
	frame := audio.Frame{Seq: s.seq, PCM: block, RMS: rms}
	metricBlocks.Inc()

	if s.open == nil {
		return s.feedIdle(frame)
	}
	return s.feedOpen(frame)
}

func (s *Segmenter) feedIdle(frame audio.Frame) Output {
	if frame.RMS >= s.cfg.StartThreshold {
		s.consecVoiced++
		if s.consecVoiced >= s.cfg.MinStartBlocks {
			return s.start(frame)
		}
	} else {
		s.consecVoiced = 0
	}
	s.pushRing(frame)
	return Output{Frame: frame}
}

func (s *Segmenter) start(frame audio.Frame) Output {
	frame.Voiced = true
	pre := make([]audio.Frame, len(s.ring))
	copy(pre, s.ring)
	for i := range pre {
		pre[i].Voiced = true
	}
	s.open = &Utterance{ID: uuid.New().String()}
	s.open.Frames = append(s.open.Frames, pre...)
	s.open.Frames = append(s.open.Frames, frame)
	s.ring = s.ring[:0]
	s.consecVoiced = 0
	s.silentBlocks = 0
	metricStarts.Inc()
	s.log.Debug("speech start",
		zap.String("utterance_id", s.open.ID),
		zap.Float64("rms", frame.RMS),
		zap.Int("pre_roll_frames", len(pre)))
	return Output{Frame: frame, Boundary: SpeechStart, PreRoll: pre}
}

func (s *Segmenter) feedOpen(frame audio.Frame) Output {
	if frame.RMS < s.cfg.EndThreshold {
		s.silentBlocks++
		if s.silentBlocks >= s.holdBlocks {
			return s.end(frame)
		}
	} else {
		s.silentBlocks = 0
	}
	frame.Voiced = true
	s.open.Frames = append(s.open.Frames, frame)
	return Output{Frame: frame}
}

func (s *Segmenter) end(frame audio.Frame) Output {
	utt := s.open
	s.open = nil
	s.silentBlocks = 0
	s.consecVoiced = 0
	s.pushRing(frame)
	metricEnds.Inc()
	metricUtteranceSeconds.Observe(utt.Duration().Seconds())
	s.log.Debug("speech end",
		zap.String("utterance_id", utt.ID),
		zap.Duration("duration", utt.Duration()))
	// The closing frame stays untagged: segmentation downstream may still
	// extend the utterance from ambient audio.
	return Output{Frame: frame, Boundary: SpeechEnd, Utterance: utt}
}

func (s *Segmenter) pushRing(frame audio.Frame) {
	if s.ringCap == 0 {
		return
	}
	s.ring = append(s.ring, frame)
	if len(s.ring) > s.ringCap {
		s.ring = s.ring[len(s.ring)-s.ringCap:]
	}
}

// Reset clears boundary state for a new session turn without disturbing the
// frame sequence.
func (s *Segmenter) Reset() {
	s.open = nil
	s.ring = s.ring[:0]
	s.consecVoiced = 0
	s.silentBlocks = 0
}

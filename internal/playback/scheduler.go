// Package playback schedules streamed PCM chunks for gapless output and
// supports immediate hard-stop for barge-in.
package playback

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"kestrel/voice/internal/audio"
)

var errBadChunk = errors.New("undecodable chunk")

// Chunk is one opaque PCM buffer, identified by its wire sequence number.
// The scheduler owns it from Enqueue until playback completion or
// cancellation.
type Chunk struct {
	Seq uint64
	PCM []byte
}

// Sink is the output device capability. Play hands over a chunk to begin at
// the given deadline; Stop halts the in-progress chunk and discards anything
// buffered. Both must return promptly.
type Sink interface {
	Play(pcm []byte, at time.Time)
	Stop()
}

// Scheduler maintains a monotonically advancing next-start cursor so chunks
// arriving in jittery bursts still play back to back with no overlap.
type Scheduler struct {
	mu   sync.Mutex
	sink Sink
	log  *zap.Logger
	now  func() time.Time

	nextStart time.Time
	lastSeq   uint64

	cancelled bool
	cutSeq    uint64
}

func NewScheduler(sink Sink, log *zap.Logger) *Scheduler {
	return &Scheduler{
		sink: sink,
		log:  log.Named("playback"),
		now:  time.Now,
	}
}

func decode(c Chunk) (time.Duration, error) {
	if len(c.PCM) == 0 || len(c.PCM)%audio.BytesPerSample != 0 {
		return 0, errBadChunk
	}
	return audio.Playback.Duration(len(c.PCM)), nil
}

// Enqueue decodes the chunk and schedules it at max(now, cursor), advancing
// the cursor by the chunk duration. Chunks behind a cancellation cut-point,
// out of sequence order, or undecodable are dropped without stalling the
// cursor.
func (s *Scheduler) Enqueue(c Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled && c.Seq > s.cutSeq {
		metricDiscardedAfterCancel.Inc()
		s.log.Debug("discarding chunk past cancellation cut-point",
			zap.Uint64("seq", c.Seq), zap.Uint64("cut", s.cutSeq))
		return
	}
	if c.Seq < s.lastSeq {
		metricOutOfOrder.Inc()
		s.log.Warn("dropping out-of-order chunk",
			zap.Uint64("seq", c.Seq), zap.Uint64("last", s.lastSeq))
		return
	}

	dur, err := decode(c)
	if err != nil {
		metricDecodeFailures.Inc()
		s.log.Warn("dropping undecodable chunk",
			zap.Uint64("seq", c.Seq), zap.Int("bytes", len(c.PCM)))
		return
	}

	start := s.now()
	if s.nextStart.After(start) {
		start = s.nextStart
	}
	s.nextStart = start.Add(dur)
	s.lastSeq = c.Seq

	s.sink.Play(c.PCM, start)
	metricChunks.Inc()
	metricScheduledSeconds.Add(dur.Seconds())
}

// CancelAll halts in-progress output, discards everything queued, records
// the cut-point, and resets the cursor to now. It is synchronous so that
// speaking -> interrupted feels instantaneous.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	s.cutSeq = s.lastSeq
	s.nextStart = s.now()
	s.sink.Stop()
	metricCancels.Inc()
}

// Reset clears the cancellation flag so the next session turn can resume
// enqueueing.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = false
	s.cutSeq = 0
	s.lastSeq = 0
	s.nextStart = time.Time{}
}

// CutPoint reports the sequence number at the last cancellation; chunks
// above it are invalid until Reset.
func (s *Scheduler) CutPoint() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cutSeq, s.cancelled
}

// Cursor reports the next-start time, for diagnostics.
func (s *Scheduler) Cursor() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

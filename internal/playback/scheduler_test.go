package playback

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"kestrel/voice/internal/audio"
)

type recordedPlay struct {
	bytes int
	at    time.Time
}

type fakeSink struct {
	plays   []recordedPlay
	stopped int
}

func (f *fakeSink) Play(pcm []byte, at time.Time) {
	f.plays = append(f.plays, recordedPlay{bytes: len(pcm), at: at})
}

func (f *fakeSink) Stop() { f.stopped++ }

func newTestScheduler() (*Scheduler, *fakeSink, *time.Time) {
	sink := &fakeSink{}
	s := NewScheduler(sink, zap.NewNop())
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }
	return s, sink, &now
}

func chunk(seq uint64, d time.Duration) Chunk {
	return Chunk{Seq: seq, PCM: make([]byte, audio.Playback.Bytes(d))}
}

func TestGaplessScheduling(t *testing.T) {
	s, sink, _ := newTestScheduler()

	// Burst of three 100ms chunks arriving at the same instant.
	for seq := uint64(1); seq <= 3; seq++ {
		s.Enqueue(chunk(seq, 100*time.Millisecond))
	}
	if len(sink.plays) != 3 {
		t.Fatalf("expected 3 scheduled plays, got %d", len(sink.plays))
	}
	for i := 1; i < len(sink.plays); i++ {
		prev := sink.plays[i-1]
		want := prev.at.Add(audio.Playback.Duration(prev.bytes))
		if !sink.plays[i].at.Equal(want) {
			t.Fatalf("chunk %d start %v, want gapless %v", i, sink.plays[i].at, want)
		}
	}
}

func TestJitterGapResetsToNow(t *testing.T) {
	s, sink, now := newTestScheduler()

	s.Enqueue(chunk(1, 100*time.Millisecond))
	// Next chunk arrives after the first finished: starts at now, not at
	// the stale cursor.
	*now = now.Add(500 * time.Millisecond)
	s.Enqueue(chunk(2, 100*time.Millisecond))
	if !sink.plays[1].at.Equal(*now) {
		t.Fatalf("late chunk should start at now, got %v want %v", sink.plays[1].at, *now)
	}
}

func TestCancelAllStopsAndResets(t *testing.T) {
	s, sink, now := newTestScheduler()

	s.Enqueue(chunk(1, 200*time.Millisecond))
	s.Enqueue(chunk(2, 200*time.Millisecond))
	s.CancelAll()

	if sink.stopped != 1 {
		t.Fatalf("sink should be stopped once, got %d", sink.stopped)
	}
	if got := s.Cursor(); !got.Equal(*now) {
		t.Fatalf("cursor should reset to now, got %v", got)
	}
	// In-flight chunks past the cut-point are discarded by seq comparison.
	s.Enqueue(chunk(3, 200*time.Millisecond))
	if len(sink.plays) != 2 {
		t.Fatalf("no audio may be scheduled after CancelAll, got %d plays", len(sink.plays))
	}
	cut, cancelled := s.CutPoint()
	if !cancelled || cut != 2 {
		t.Fatalf("cut point should be 2, got %d (cancelled=%v)", cut, cancelled)
	}
}

func TestResetResumesEnqueueing(t *testing.T) {
	s, sink, _ := newTestScheduler()
	s.Enqueue(chunk(1, 100*time.Millisecond))
	s.CancelAll()
	s.Reset()
	s.Enqueue(chunk(1, 100*time.Millisecond))
	if len(sink.plays) != 2 {
		t.Fatalf("enqueue after Reset should schedule, got %d plays", len(sink.plays))
	}
	if _, cancelled := s.CutPoint(); cancelled {
		t.Fatal("Reset should clear the cancellation flag")
	}
}

func TestUndecodableChunkDropped(t *testing.T) {
	s, sink, _ := newTestScheduler()
	s.Enqueue(chunk(1, 100*time.Millisecond))
	before := s.Cursor()

	s.Enqueue(Chunk{Seq: 2, PCM: []byte{0x01}}) // odd length: not PCM16
	s.Enqueue(Chunk{Seq: 3})                    // empty

	if got := s.Cursor(); !got.Equal(before) {
		t.Fatal("bad chunks must not advance the cursor")
	}
	s.Enqueue(chunk(4, 100*time.Millisecond))
	if len(sink.plays) != 2 {
		t.Fatalf("session should continue past bad chunks, got %d plays", len(sink.plays))
	}
}

func TestOutOfOrderChunkDropped(t *testing.T) {
	s, sink, _ := newTestScheduler()
	s.Enqueue(chunk(5, 100*time.Millisecond))
	s.Enqueue(chunk(3, 100*time.Millisecond))
	if len(sink.plays) != 1 {
		t.Fatalf("stale chunk should be dropped, got %d plays", len(sink.plays))
	}
}

package providers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBackoffSucceedsAfterFailures(t *testing.T) {
	b := Backoff{Base: time.Millisecond, Factor: 2, Cap: 10 * time.Millisecond, Attempts: 3}
	calls := 0
	err := b.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d", calls)
	}
}

func TestBackoffExhaustionWrapsSentinel(t *testing.T) {
	b := Backoff{Base: time.Millisecond, Factor: 2, Cap: 10 * time.Millisecond, Attempts: 3}
	err := b.Do(context.Background(), func() error { return errors.New("down") })
	if !errors.Is(err, ErrCollaboratorUnavailable) {
		t.Fatalf("err = %v, want ErrCollaboratorUnavailable", err)
	}
}

func TestBackoffHonorsContext(t *testing.T) {
	b := Backoff{Base: time.Hour, Factor: 2, Cap: time.Hour, Attempts: 3}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Do(ctx, func() error { return errors.New("down") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSimTranscriberPartialThenFinal(t *testing.T) {
	tr := NewSimTranscriber()
	out, err := tr.Transcribe(context.Background(), make([]byte, 3200))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	var results []Result
	for r := range out {
		results = append(results, r)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].IsFinal || !results[1].IsFinal {
		t.Errorf("finality order wrong: %+v", results)
	}
	if !strings.Contains(results[1].Text, "100ms") {
		t.Errorf("final = %q", results[1].Text)
	}
}

func TestSimAgentEndsWithBoundary(t *testing.T) {
	a := NewSimAgent()
	out, err := a.Respond(context.Background(), "s1", "hello there")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	var full strings.Builder
	for d := range out {
		full.WriteString(d)
	}
	got := full.String()
	if !strings.HasSuffix(got, ".") {
		t.Errorf("response %q has no sentence boundary", got)
	}
	if !strings.Contains(got, "hello there") {
		t.Errorf("response %q does not echo prompt", got)
	}
}

func TestSimSynthesizerChunksAreEven(t *testing.T) {
	s := NewSimSynthesizer()
	out, err := s.Synthesize(context.Background(), "one two three")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	total := 0
	for c := range out {
		if len(c)%2 != 0 {
			t.Fatalf("odd chunk length %d", len(c))
		}
		total += len(c)
	}
	if total == 0 {
		t.Fatal("no audio produced")
	}
}

func TestSimSynthesizerCancelStopsStream(t *testing.T) {
	s := NewSimSynthesizer()
	ctx, cancel := context.WithCancel(context.Background())
	out, err := s.Synthesize(ctx, strings.Repeat("word ", 200))
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	<-out
	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after cancel")
		}
	}
}

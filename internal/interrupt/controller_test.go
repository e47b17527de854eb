package interrupt

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTest(cfg Config) (*Controller, *time.Time) {
	c := New(cfg, zap.NewNop())
	now := time.Unix(100, 0)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestBargeInWhileSpeaking(t *testing.T) {
	c, now := newTest(Config{Enabled: true, Threshold: 1200, Guard: 500 * time.Millisecond})
	c.OnPlaybackStarted()
	*now = now.Add(time.Second)

	d := c.OnBlock(1500)
	if !d.Interrupt || d.Reason != "barge_in" {
		t.Fatalf("decision = %+v", d)
	}
	if c.Speaking() {
		t.Error("floor not released after barge-in")
	}
}

func TestNoInterruptWhenIdle(t *testing.T) {
	c, _ := newTest(Config{Enabled: true, Threshold: 1200, Guard: 500 * time.Millisecond})
	if d := c.OnBlock(5000); d.Interrupt {
		t.Fatal("interrupted while assistant silent")
	}
}

func TestGuardWindowSuppressesEarlySpeech(t *testing.T) {
	c, now := newTest(Config{Enabled: true, Threshold: 1200, Guard: 500 * time.Millisecond})
	c.OnPlaybackStarted()
	*now = now.Add(200 * time.Millisecond)

	if d := c.OnBlock(5000); d.Interrupt {
		t.Fatal("interrupted inside guard window")
	}
	*now = now.Add(400 * time.Millisecond)
	if d := c.OnBlock(5000); !d.Interrupt {
		t.Fatal("guard window never expired")
	}
}

func TestBelowThresholdIgnored(t *testing.T) {
	c, now := newTest(Config{Enabled: true, Threshold: 1200, Guard: 0})
	c.OnPlaybackStarted()
	*now = now.Add(time.Millisecond)

	if d := c.OnBlock(800); d.Interrupt {
		t.Fatal("interrupted below threshold")
	}
}

func TestDisabledControllerNeverInterrupts(t *testing.T) {
	c, now := newTest(Config{Enabled: false, Threshold: 1200, Guard: 0})
	c.OnPlaybackStarted()
	*now = now.Add(time.Second)

	if d := c.OnBlock(9000); d.Interrupt {
		t.Fatal("disabled controller interrupted")
	}
}

func TestPlaybackStoppedReleasesFloor(t *testing.T) {
	c, now := newTest(Config{Enabled: true, Threshold: 1200, Guard: 0})
	c.OnPlaybackStarted()
	c.OnPlaybackStopped()
	*now = now.Add(time.Second)

	if d := c.OnBlock(5000); d.Interrupt {
		t.Fatal("interrupted after playback already stopped")
	}
}

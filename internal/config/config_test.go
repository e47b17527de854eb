package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c := Load()

	if c.Server.Addr != ":8080" {
		t.Errorf("addr = %q", c.Server.Addr)
	}
	if c.Segmenter.StartThreshold != 1200 || c.Segmenter.EndThreshold != 700 {
		t.Errorf("thresholds = %v / %v", c.Segmenter.StartThreshold, c.Segmenter.EndThreshold)
	}
	if c.Segmenter.SilenceHold != 600*time.Millisecond {
		t.Errorf("silence hold = %v", c.Segmenter.SilenceHold)
	}
	if c.Segmenter.PreRoll != 250*time.Millisecond {
		t.Errorf("pre-roll = %v", c.Segmenter.PreRoll)
	}
	if c.Transport.BackoffBase != time.Second || c.Transport.BackoffCap != 30*time.Second {
		t.Errorf("backoff = %v / %v", c.Transport.BackoffBase, c.Transport.BackoffCap)
	}
	if c.Transport.MaxAttempts != 3 {
		t.Errorf("max attempts = %d", c.Transport.MaxAttempts)
	}
	if c.Session.Timeout != 5*time.Minute {
		t.Errorf("session timeout = %v", c.Session.Timeout)
	}
	if !c.Session.ListenAfterSpeak {
		t.Error("listen_after_speak should default on")
	}
}

func TestInterruptThresholdInheritsSegmenter(t *testing.T) {
	c := Load()
	if c.Interrupt.Threshold != c.Segmenter.StartThreshold {
		t.Errorf("interrupt threshold = %v, want %v", c.Interrupt.Threshold, c.Segmenter.StartThreshold)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("VAD_START_THRESHOLD", "2000")
	t.Setenv("VOICE_ADDR", ":9999")

	c := Load()
	if c.Segmenter.StartThreshold != 2000 {
		t.Errorf("start threshold = %v", c.Segmenter.StartThreshold)
	}
	if c.Server.Addr != ":9999" {
		t.Errorf("addr = %q", c.Server.Addr)
	}
}

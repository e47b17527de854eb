package audio

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	// 320 samples at 16kHz = 20ms
	if d := Capture.Duration(640); d != 20*time.Millisecond {
		t.Fatalf("expected 20ms, got %v", d)
	}
	// 480 samples at 24kHz = 20ms
	if d := Playback.Duration(960); d != 20*time.Millisecond {
		t.Fatalf("expected 20ms, got %v", d)
	}
}

func TestFormatBytesRoundTrip(t *testing.T) {
	n := Capture.Bytes(600 * time.Millisecond)
	if n != 19200 {
		t.Fatalf("expected 19200 bytes for 600ms@16k, got %d", n)
	}
	if d := Capture.Duration(n); d != 600*time.Millisecond {
		t.Fatalf("round trip mismatch: %v", d)
	}
}

func TestRMSSilenceIsZero(t *testing.T) {
	if r := RMS(make([]byte, 640)); r != 0 {
		t.Fatalf("expected zero RMS for silence, got %f", r)
	}
}

func TestRMSFullScale(t *testing.T) {
	b := make([]byte, 640)
	for i := 0; i < len(b)/2; i++ {
		EncodeSample(b, i, 16000)
	}
	r := RMS(b)
	if r < 15999 || r > 16001 {
		t.Fatalf("expected RMS ~16000 for constant signal, got %f", r)
	}
}

func TestSampleCodec(t *testing.T) {
	b := make([]byte, 8)
	vals := []int16{0, -32768, 32767, -1}
	for i, v := range vals {
		EncodeSample(b, i, v)
	}
	for i, v := range vals {
		if got := DecodeSample(b, i); got != v {
			t.Fatalf("sample %d: expected %d, got %d", i, v, got)
		}
	}
}

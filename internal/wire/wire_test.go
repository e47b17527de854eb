package wire

import (
	"errors"
	"testing"
)

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"video","seq":1}`))
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
}

func TestAudioMissingSeqRejected(t *testing.T) {
	_, err := Decode([]byte(`{"type":"audio","audio_data":"AAAA"}`))
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected protocol violation for missing seq, got %v", err)
	}
}

func TestAudioMissingDataRejected(t *testing.T) {
	_, err := Decode([]byte(`{"type":"audio","seq":3}`))
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected protocol violation for missing audio_data, got %v", err)
	}
}

func TestControlActionRange(t *testing.T) {
	for _, a := range []string{ActionStart, ActionStop, ActionInterrupt} {
		m := Control(1, a)
		if err := m.Validate(); err != nil {
			t.Fatalf("action %q should validate: %v", a, err)
		}
	}
	m := Control(1, "reboot")
	if err := m.Validate(); err == nil {
		t.Fatal("unknown action should be rejected")
	}
}

func TestStatusRange(t *testing.T) {
	m := Status(1, "sleeping")
	if err := m.Validate(); err == nil {
		t.Fatal("unknown status should be rejected")
	}
}

func TestConfidenceRange(t *testing.T) {
	m := Transcription(1, "hello", true, 1.2)
	if err := m.Validate(); err == nil {
		t.Fatal("confidence > 1 should be rejected")
	}
}

func TestAudioRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	m := Audio(7, pcm)
	if err := m.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	raw, err := Encode(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b, err := got.PCM()
	if err != nil {
		t.Fatalf("pcm: %v", err)
	}
	if string(b) != string(pcm) || got.Seq != 7 {
		t.Fatalf("round trip mismatch: seq=%d pcm=%v", got.Seq, b)
	}
}

func TestWindowOrdering(t *testing.T) {
	w := NewWindow(16)
	for seq := uint64(1); seq <= 5; seq++ {
		if err := w.Accept(seq); err != nil {
			t.Fatalf("seq %d: %v", seq, err)
		}
	}
	// duplicate
	if err := w.Accept(5); err == nil {
		t.Fatal("duplicate seq should be rejected")
	}
	// gap forward is fine (sender may have dropped frames)
	if err := w.Accept(40); err != nil {
		t.Fatalf("forward gap: %v", err)
	}
	// far behind the high-water mark
	if err := w.Accept(2); err == nil {
		t.Fatal("out-of-window seq should be rejected")
	}
	if w.High() != 40 {
		t.Fatalf("high water mark should be 40, got %d", w.High())
	}
}

func TestWindowZeroSeq(t *testing.T) {
	w := NewWindow(16)
	if err := w.Accept(0); err == nil {
		t.Fatal("seq 0 should be rejected")
	}
}

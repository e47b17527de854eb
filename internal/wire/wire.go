// Package wire defines the frame protocol carried over the session channel.
// Frames are JSON objects with a "type" discriminator. Audio payloads are
// base64-encoded 16-bit LE mono PCM. Every frame carries a session-scoped
// monotonically increasing sequence number used for ordering and replay
// detection; frames are transient and never persisted.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Frame kinds.
const (
	TypeControl       = "control"
	TypeAudio         = "audio"
	TypeStatus        = "status"
	TypeTranscription = "transcription"
	TypeResponse      = "response"
	TypeResponseEnd   = "response_end"
	TypeAudioEnd      = "audio_end"
	TypeError         = "error"
)

// Control actions (client to server).
const (
	ActionStart     = "start"
	ActionStop      = "stop"
	ActionInterrupt = "interrupt"
)

// Status values mirrored from the session state machine.
const (
	StatusIdle       = "idle"
	StatusListening  = "listening"
	StatusProcessing = "processing"
	StatusSpeaking   = "speaking"
	StatusError      = "error"
)

// Error codes carried on error frames. An error frame terminates nothing by
// itself.
const (
	CodeProtocol     = "protocol_violation"
	CodeCapture      = "capture_unavailable"
	CodeTransport    = "transport_disconnected"
	CodeCollaborator = "collaborator_unavailable"
	CodeTimeout      = "session_timeout"
	CodeInternal     = "internal"
)

var ErrProtocolViolation = errors.New("protocol violation")

// Message is one frame of the wire protocol. Unused fields are omitted on
// the wire.
type Message struct {
	Type       string  `json:"type"`
	Seq        uint64  `json:"seq"`
	Action     string  `json:"action,omitempty"`
	AudioData  string  `json:"audio_data,omitempty"`
	Status     string  `json:"status,omitempty"`
	Text       string  `json:"text,omitempty"`
	IsFinal    bool    `json:"is_final,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
	Code       string  `json:"code,omitempty"`
}

// PCM decodes the base64 audio payload.
func (m *Message) PCM() ([]byte, error) {
	if m.AudioData == "" {
		return nil, fmt.Errorf("%w: audio frame without audio_data", ErrProtocolViolation)
	}
	b, err := base64.StdEncoding.DecodeString(m.AudioData)
	if err != nil {
		return nil, fmt.Errorf("%w: bad audio encoding: %v", ErrProtocolViolation, err)
	}
	return b, nil
}

// Audio builds an audio frame from raw PCM.
func Audio(seq uint64, pcm []byte) Message {
	return Message{Type: TypeAudio, Seq: seq, AudioData: base64.StdEncoding.EncodeToString(pcm)}
}

func Control(seq uint64, action string) Message {
	return Message{Type: TypeControl, Seq: seq, Action: action}
}

func Status(seq uint64, status string) Message {
	return Message{Type: TypeStatus, Seq: seq, Status: status}
}

func Transcription(seq uint64, text string, isFinal bool, confidence float64) Message {
	return Message{Type: TypeTranscription, Seq: seq, Text: text, IsFinal: isFinal, Confidence: confidence}
}

func Error(seq uint64, code, msg string) Message {
	return Message{Type: TypeError, Seq: seq, Code: code, Error: msg}
}

func validActions() map[string]bool {
	return map[string]bool{ActionStart: true, ActionStop: true, ActionInterrupt: true}
}

func validStatuses() map[string]bool {
	return map[string]bool{
		StatusIdle: true, StatusListening: true, StatusProcessing: true,
		StatusSpeaking: true, StatusError: true,
	}
}

// Validate checks the frame schema: known type, required fields present,
// enum fields in range. Sequence-number checks live in Window since they
// need per-direction state.
func (m *Message) Validate() error {
	switch m.Type {
	case TypeControl:
		if !validActions()[m.Action] {
			return fmt.Errorf("%w: control action %q", ErrProtocolViolation, m.Action)
		}
	case TypeAudio:
		if m.AudioData == "" {
			return fmt.Errorf("%w: audio frame missing audio_data", ErrProtocolViolation)
		}
		if m.Seq == 0 {
			return fmt.Errorf("%w: audio frame missing seq", ErrProtocolViolation)
		}
	case TypeStatus:
		if !validStatuses()[m.Status] {
			return fmt.Errorf("%w: status %q", ErrProtocolViolation, m.Status)
		}
	case TypeTranscription:
		if m.Confidence < 0 || m.Confidence > 1 {
			return fmt.Errorf("%w: confidence %f out of range", ErrProtocolViolation, m.Confidence)
		}
	case TypeResponse, TypeResponseEnd, TypeAudioEnd:
		// no required fields beyond type
	case TypeError:
		if m.Error == "" {
			return fmt.Errorf("%w: error frame missing error text", ErrProtocolViolation)
		}
	default:
		return fmt.Errorf("%w: unknown frame type %q", ErrProtocolViolation, m.Type)
	}
	return nil
}

// Window tracks sequence numbers for one direction of one session and
// rejects duplicates and frames too far behind the high-water mark.
// The channel itself is FIFO per direction, so a small tolerance is enough
// to absorb a reconnect replaying its last unacknowledged frames.
type Window struct {
	high      uint64
	tolerance uint64
}

// NewWindow returns a Window accepting seq > high-tolerance.
func NewWindow(tolerance uint64) *Window {
	return &Window{tolerance: tolerance}
}

// Accept validates seq against the window and advances the high-water mark.
func (w *Window) Accept(seq uint64) error {
	if seq == 0 {
		return fmt.Errorf("%w: seq 0", ErrProtocolViolation)
	}
	if seq <= w.high {
		behind := w.high - seq
		if behind >= w.tolerance {
			return fmt.Errorf("%w: seq %d out of window (high=%d)", ErrProtocolViolation, seq, w.high)
		}
		return fmt.Errorf("%w: duplicate seq %d", ErrProtocolViolation, seq)
	}
	w.high = seq
	return nil
}

// High reports the highest accepted sequence number.
func (w *Window) High() uint64 { return w.high }

// Decode parses and schema-validates a raw frame.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Encode serializes a frame.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

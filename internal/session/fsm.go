// Package session holds the authoritative model of where a voice session
// is. Only this package writes the state; every other component reads it.
// A transition outside the table is rejected and logged as a protocol
// violation, never silently ignored.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the closed enumeration of session states.
type State string

const (
	StateIdle        State = "idle"
	StateConnecting  State = "connecting"
	StateListening   State = "listening"
	StateProcessing  State = "processing"
	StateSpeaking    State = "speaking"
	StateInterrupted State = "interrupted"
	StateError       State = "error"
	StateClosed      State = "closed"
)

// Event drives a transition.
type Event string

const (
	// EventConnect is the transport beginning its dial.
	EventConnect Event = "connect"
	// EventConnected is the channel opening (or resuming) successfully.
	EventConnected Event = "connected"
	// EventStart is control:start from the client.
	EventStart Event = "control_start"
	// EventSpeechEnd is a local SpeechEnd or a remote stop.
	EventSpeechEnd Event = "speech_end"
	// EventAgentDelta is the agent's first text delta.
	EventAgentDelta Event = "agent_delta"
	// EventAudioEnd is the remote audio_end marker.
	EventAudioEnd Event = "audio_end"
	// EventInterrupt is control:interrupt or a local SpeechStart while
	// speaking.
	EventInterrupt Event = "interrupt"
	// EventFailure is a transport error or capture loss.
	EventFailure Event = "failure"
	// EventRecovered leaves the error state after user-visible recovery.
	EventRecovered Event = "recovered"
	// EventClose is an explicit session end.
	EventClose Event = "close"
	// EventTimeout fires when no inbound message arrives within the
	// inactivity window.
	EventTimeout Event = "timeout"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrSessionTimeout    = errors.New("session timeout")
)

// transitions is the strict directed graph of legal moves. EventAudioEnd
// from speaking is resolved by the machine's listen-after-speak mode.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EventConnect: StateConnecting,
		EventStart:   StateListening,
	},
	StateConnecting: {
		EventConnected: StateIdle,
	},
	StateListening: {
		EventSpeechEnd: StateProcessing,
		EventInterrupt: StateInterrupted,
	},
	StateProcessing: {
		EventAgentDelta: StateSpeaking,
		EventInterrupt:  StateInterrupted,
	},
	StateSpeaking: {
		EventAudioEnd:  StateIdle, // or listening, per mode
		EventInterrupt: StateInterrupted,
	},
	StateInterrupted: {
		// resolved immediately by the machine itself
	},
	StateError: {
		EventRecovered: StateIdle,
	},
	StateClosed: {},
}

// Machine is the per-session state machine.
type Machine struct {
	mu  sync.Mutex
	log *zap.Logger

	sessionID string
	state     State

	// listenAfterSpeak keeps the mic hot after agent audio finishes:
	// speaking -> listening instead of speaking -> idle.
	listenAfterSpeak bool

	lastActivity time.Time
	onTransition func(from, to State, ev Event)
}

type Option func(*Machine)

// WithListenAfterSpeak enables the continuous-conversation mode.
func WithListenAfterSpeak(on bool) Option {
	return func(m *Machine) { m.listenAfterSpeak = on }
}

// WithTransitionHook observes every applied transition. The hook runs with
// the machine lock held and must not call back into the machine.
func WithTransitionHook(fn func(from, to State, ev Event)) Option {
	return func(m *Machine) { m.onTransition = fn }
}

func NewMachine(sessionID string, log *zap.Logger, opts ...Option) *Machine {
	m := &Machine{
		log:          log.Named("session"),
		sessionID:    sessionID,
		state:        StateIdle,
		lastActivity: time.Now(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// State reads the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Apply attempts a transition. Invalid transitions return
// ErrInvalidTransition after being counted and logged; the state is
// unchanged. An interrupt lands in interrupted and immediately resolves to
// listening, with both hops observable through the transition hook.
func (m *Machine) Apply(ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivity = time.Now()

	// Terminal events short-circuit the table: any state may close, and
	// any non-terminal state may fail.
	switch ev {
	case EventClose:
		if m.state == StateClosed {
			return m.reject(ev)
		}
		m.move(ev, StateClosed)
		return nil
	case EventTimeout:
		if m.state == StateClosed {
			return m.reject(ev)
		}
		m.move(ev, StateClosed)
		return nil
	case EventFailure:
		if m.state == StateClosed || m.state == StateError {
			return m.reject(ev)
		}
		m.move(ev, StateError)
		return nil
	}

	to, ok := transitions[m.state][ev]
	if !ok {
		return m.reject(ev)
	}
	if m.state == StateSpeaking && ev == EventAudioEnd && m.listenAfterSpeak {
		to = StateListening
	}
	m.move(ev, to)

	if to == StateInterrupted {
		// Barge-in resolves immediately: the session is listening again
		// before any further audio can be enqueued.
		m.move(ev, StateListening)
	}
	return nil
}

func (m *Machine) move(ev Event, to State) {
	from := m.state
	m.state = to
	metricTransitions.WithLabelValues(string(from), string(to)).Inc()
	m.log.Debug("state transition",
		zap.String("session_id", m.sessionID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("event", string(ev)))
	if m.onTransition != nil {
		m.onTransition(from, to, ev)
	}
}

func (m *Machine) reject(ev Event) error {
	metricViolations.Inc()
	m.log.Warn("rejected state transition",
		zap.String("session_id", m.sessionID),
		zap.String("state", string(m.state)),
		zap.String("event", string(ev)),
		zap.String("kind", "protocol_violation"))
	return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, ev, m.state)
}

// Touch records inbound activity for the inactivity watchdog.
func (m *Machine) Touch() {
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

// IdleFor reports whether no activity has been recorded for at least d.
func (m *Machine) IdleFor(d time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.lastActivity) >= d
}

// Watchdog forces the session closed after the configured inactivity
// window, independent of transport keep-alives. It returns when the
// session closes or stop is closed. onTimeout runs after the transition.
func (m *Machine) Watchdog(stop <-chan struct{}, timeout time.Duration, onTimeout func()) {
	if timeout <= 0 {
		return
	}
	ticker := time.NewTicker(timeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if m.State() == StateClosed {
				return
			}
			if m.IdleFor(timeout) {
				metricTimeouts.Inc()
				m.log.Info("session timed out",
					zap.String("session_id", m.sessionID),
					zap.Duration("timeout", timeout),
					zap.String("kind", "session_timeout"))
				_ = m.Apply(EventTimeout)
				if onTimeout != nil {
					onTimeout()
				}
				return
			}
		}
	}
}

// Package orchestrator runs the server side of a voice session: inbound
// audio is segmented into utterances, each closed utterance flows through
// recognition, response generation and synthesis, and the results stream
// back out as wire frames. One goroutine per active response.
package orchestrator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"kestrel/voice/internal/capture"
	"kestrel/voice/internal/config"
	"kestrel/voice/internal/providers"
	"kestrel/voice/internal/session"
	"kestrel/voice/internal/store"
	"kestrel/voice/internal/wire"
)

// Sender delivers frames to a session's client. transport.Registry
// implements it.
type Sender interface {
	Send(ctx context.Context, sessionID string, msg wire.Message) error
}

type Orchestrator struct {
	cfg   config.Config
	log   *zap.Logger
	store *store.Store
	out   Sender
	prov  *providers.Set

	mu       sync.Mutex
	sessions map[string]*voiceSession
}

// voiceSession is the per-session pipeline state. The segmenter and state
// machine are driven only from HandleFrame, which the transport calls
// sequentially per connection.
type voiceSession struct {
	id  string
	seg *capture.Segmenter
	fsm *session.Machine

	mu     sync.Mutex
	cancel context.CancelFunc // active response pipeline
	seq    uint64             // outbound audio sequence
	stop   chan struct{}      // watchdog stop
}

func New(cfg config.Config, log *zap.Logger, st *store.Store, out Sender, prov *providers.Set) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		log:      log.Named("orchestrator"),
		store:    st,
		out:      out,
		prov:     prov,
		sessions: make(map[string]*voiceSession),
	}
}

func (o *Orchestrator) session(id string) *voiceSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.sessions[id]; ok {
		return s
	}
	segCfg := capture.Config{
		StartThreshold: o.cfg.Segmenter.StartThreshold,
		EndThreshold:   o.cfg.Segmenter.EndThreshold,
		MinStartBlocks: o.cfg.Segmenter.MinStartBlocks,
		SilenceHold:    o.cfg.Segmenter.SilenceHold,
		PreRoll:        o.cfg.Segmenter.PreRoll,
		BlockDuration:  o.cfg.Segmenter.BlockDuration,
	}
	s := &voiceSession{
		id:   id,
		seg:  capture.NewSegmenter(segCfg, o.log),
		stop: make(chan struct{}),
	}
	s.fsm = session.NewMachine(id, o.log,
		session.WithListenAfterSpeak(o.cfg.Session.ListenAfterSpeak),
		session.WithTransitionHook(func(from, to session.State, ev session.Event) {
			o.store.SetState(id, string(to))
		}))
	o.sessions[id] = s
	go s.fsm.Watchdog(s.stop, o.cfg.Session.Timeout, func() {
		o.log.Info("session timed out", zap.String("session_id", id))
		o.sendStatus(id, wire.StatusError)
		_ = o.out.Send(context.Background(), id, wire.Error(0, wire.CodeTimeout, "session timed out"))
		o.drop(id)
	})
	return s
}

func (o *Orchestrator) drop(id string) {
	o.mu.Lock()
	s, ok := o.sessions[id]
	if ok {
		delete(o.sessions, id)
	}
	o.mu.Unlock()
	if !ok {
		return
	}
	s.cancelPipeline()
	close(s.stop)
}

// HandleFrame routes one validated inbound frame.
func (o *Orchestrator) HandleFrame(ctx context.Context, sessionID string, msg wire.Message) {
	s := o.session(sessionID)
	s.fsm.Touch()

	switch msg.Type {
	case wire.TypeControl:
		o.handleControl(ctx, s, msg.Action)
	case wire.TypeAudio:
		o.handleAudio(ctx, s, msg)
	default:
		// status/transcription/response frames are server-to-client only
		o.log.Debug("ignoring client frame", zap.String("type", msg.Type))
	}
}

// SessionGone handles a transport disconnect. Session state is kept for
// the resume window; the watchdog reaps it if the client never returns.
func (o *Orchestrator) SessionGone(sessionID string) {
	o.mu.Lock()
	s, ok := o.sessions[sessionID]
	o.mu.Unlock()
	if !ok {
		return
	}
	s.cancelPipeline()
	o.store.AppendEvent(sessionID, "orchestrator", "client_gone", nil)
}

func (o *Orchestrator) handleControl(ctx context.Context, s *voiceSession, action string) {
	switch action {
	case wire.ActionStart:
		if err := s.fsm.Apply(session.EventStart); err != nil {
			return
		}
		o.sendStatus(s.id, wire.StatusListening)
	case wire.ActionInterrupt:
		s.cancelPipeline()
		if err := s.fsm.Apply(session.EventInterrupt); err != nil {
			return
		}
		o.store.AppendEvent(s.id, "orchestrator", "interrupted", nil)
		o.sendStatus(s.id, wire.StatusListening)
	case wire.ActionStop:
		s.cancelPipeline()
		_ = s.fsm.Apply(session.EventClose)
		o.store.AppendEvent(s.id, "orchestrator", "closed", nil)
		o.drop(s.id)
	}
}

func (o *Orchestrator) handleAudio(ctx context.Context, s *voiceSession, msg wire.Message) {
	pcm, err := msg.PCM()
	if err != nil {
		_ = o.out.Send(ctx, s.id, wire.Error(0, wire.CodeProtocol, err.Error()))
		return
	}
	out := s.seg.Feed(pcm)
	if out.Boundary != capture.SpeechEnd || out.Utterance == nil {
		return
	}
	// Utterances only begin a response while we are listening. Audio that
	// closes during processing or speaking is the client's echo tail or a
	// barge-in handled via control:interrupt.
	if s.fsm.State() != session.StateListening {
		o.log.Debug("utterance outside listening discarded",
			zap.String("session_id", s.id), zap.String("state", string(s.fsm.State())))
		return
	}
	if err := s.fsm.Apply(session.EventSpeechEnd); err != nil {
		return
	}
	metricUtterances.Inc()
	pctx, cancel := context.WithCancel(context.Background())
	s.setPipeline(cancel)
	go o.runPipeline(pctx, s, out.Utterance)
}

func (o *Orchestrator) sendStatus(id, status string) {
	_ = o.out.Send(context.Background(), id, wire.Status(0, status))
}

func (s *voiceSession) setPipeline(cancel context.CancelFunc) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()
}

func (s *voiceSession) cancelPipeline() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
}

func (s *voiceSession) nextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Package client runs the device side of a voice session: one event loop
// owning the capture source, the segmenter, the interrupt controller, the
// playback scheduler and the session channel. Everything the loop touches
// is single-goroutine; callbacks from the transport feed a channel
// instead of mutating state directly.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kestrel/voice/internal/capture"
	"kestrel/voice/internal/config"
	"kestrel/voice/internal/interrupt"
	"kestrel/voice/internal/playback"
	"kestrel/voice/internal/session"
	"kestrel/voice/internal/wire"
)

// Channel is the session transport as the loop sees it.
// transport.Client implements it.
type Channel interface {
	Send(msg wire.Message) error
	Close()
}

// Events surfaces session output the embedding application cares about.
// All callbacks run on the loop goroutine; keep them short.
type Events struct {
	OnTranscription func(text string, isFinal bool, confidence float64)
	OnResponse      func(delta string)
	OnStateChange   func(from, to session.State)
}

type Loop struct {
	cfg config.Config
	log *zap.Logger

	src   capture.Source
	seg   *capture.Segmenter
	fsm   *session.Machine
	intr  *interrupt.Controller
	sched *playback.Scheduler
	ch    Channel

	msgs   chan wire.Message
	chErr  chan error
	events Events

	speaking bool // assistant audio currently scheduled
	discard  bool // drop stale audio between a barge-in and its ack
}

// New wires a loop from its parts. The channel must already be dialed;
// the loop owns it from here and closes it on exit.
func New(cfg config.Config, log *zap.Logger, src capture.Source, sink playback.Sink, ch Channel, sessionID string, ev Events) *Loop {
	l := &Loop{
		cfg:   cfg,
		log:   log.Named("client"),
		src:   src,
		ch:    ch,
		msgs:  make(chan wire.Message, 64),
		chErr: make(chan error, 1),
	}
	l.seg = capture.NewSegmenter(capture.Config{
		StartThreshold: cfg.Segmenter.StartThreshold,
		EndThreshold:   cfg.Segmenter.EndThreshold,
		MinStartBlocks: cfg.Segmenter.MinStartBlocks,
		SilenceHold:    cfg.Segmenter.SilenceHold,
		PreRoll:        cfg.Segmenter.PreRoll,
		BlockDuration:  cfg.Segmenter.BlockDuration,
	}, log)
	l.fsm = session.NewMachine(sessionID, log,
		session.WithListenAfterSpeak(cfg.Session.ListenAfterSpeak),
		session.WithTransitionHook(func(from, to session.State, e session.Event) {
			if ev.OnStateChange != nil {
				ev.OnStateChange(from, to)
			}
		}))
	l.intr = interrupt.New(interrupt.Config{
		Enabled:   cfg.Interrupt.Enabled,
		Threshold: cfg.Interrupt.Threshold,
		Guard:     time.Duration(cfg.Interrupt.GuardMs) * time.Millisecond,
	}, log)
	l.sched = playback.NewScheduler(sink, log)
	l.events = ev
	return l
}

// Deliver feeds one inbound frame to the loop. Wire it to the transport's
// OnMessage callback.
func (l *Loop) Deliver(msg wire.Message) {
	select {
	case l.msgs <- msg:
	default:
		l.log.Warn("inbound frame dropped, loop backlogged", zap.String("type", msg.Type))
	}
}

// ChannelClosed tells the loop the transport gave up. Wire it to OnClose.
func (l *Loop) ChannelClosed(err error) {
	select {
	case l.chErr <- err:
	default:
	}
}

// Run drives the session until the context ends, the capture source dies,
// or the transport gives up its reconnect budget. Resources are released
// on every exit path.
func (l *Loop) Run(ctx context.Context) error {
	defer l.shutdown()

	if err := l.fsm.Apply(session.EventStart); err != nil {
		return err
	}
	if err := l.ch.Send(wire.Control(0, wire.ActionStart)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			_ = l.ch.Send(wire.Control(0, wire.ActionStop))
			_ = l.fsm.Apply(session.EventClose)
			return nil

		case err := <-l.chErr:
			_ = l.fsm.Apply(session.EventFailure)
			if err == nil {
				return nil
			}
			return fmt.Errorf("session channel lost: %w", err)

		case block, ok := <-l.src.Blocks():
			if !ok {
				_ = l.fsm.Apply(session.EventFailure)
				return capture.ErrCaptureUnavailable
			}
			l.onBlock(block)

		case msg := <-l.msgs:
			l.onFrame(msg)
		}
	}
}

// onBlock pushes one capture block through the segmenter, barge-in
// detection, and uplink.
func (l *Loop) onBlock(block []byte) {
	out := l.seg.Feed(block)
	if d := l.intr.OnBlock(out.Frame.RMS); d.Interrupt {
		l.interrupt()
	} else if out.Boundary == capture.SpeechStart &&
		l.cfg.Interrupt.Enabled && l.fsm.State() == session.StateProcessing {
		// Speech over a turn still being prepared is as authoritative as
		// speech over playback: the pending response is already stale.
		l.interrupt()
	}

	// Frames keep flowing regardless of local segmentation; the remote
	// segmenter owns utterance boundaries.
	if err := l.ch.Send(wire.Audio(0, out.Frame.PCM)); err != nil {
		l.log.Warn("uplink send failed", zap.Error(err))
	}

	if out.Boundary == capture.SpeechEnd && l.fsm.State() == session.StateListening {
		_ = l.fsm.Apply(session.EventSpeechEnd)
	}
}

// interrupt executes barge-in: kill local playback now, tell the server,
// move the state machine.
func (l *Loop) interrupt() {
	// Nothing to cancel when the barge-in lands before the first chunk.
	if l.speaking {
		l.sched.CancelAll()
		l.speaking = false
	}
	// Frames already in flight belong to the cancelled response. They all
	// precede the server's status reply on the FIFO channel, so discard
	// audio until that reply arrives.
	l.discard = true
	if err := l.ch.Send(wire.Control(0, wire.ActionInterrupt)); err != nil {
		l.log.Warn("interrupt send failed", zap.Error(err))
	}
	_ = l.fsm.Apply(session.EventInterrupt)
}

func (l *Loop) onFrame(msg wire.Message) {
	switch msg.Type {
	case wire.TypeAudio:
		if l.discard {
			return
		}
		pcm, err := msg.PCM()
		if err != nil {
			l.log.Warn("bad audio frame", zap.Error(err))
			return
		}
		if !l.speaking {
			l.speaking = true
			l.sched.Reset()
			l.intr.OnPlaybackStarted()
			if l.fsm.State() == session.StateProcessing {
				_ = l.fsm.Apply(session.EventAgentDelta)
			}
		}
		l.sched.Enqueue(playback.Chunk{Seq: msg.Seq, PCM: pcm})

	case wire.TypeAudioEnd:
		l.speaking = false
		l.intr.OnPlaybackStopped()
		if l.fsm.State() == session.StateSpeaking {
			_ = l.fsm.Apply(session.EventAudioEnd)
		}

	case wire.TypeTranscription:
		if l.events.OnTranscription != nil {
			l.events.OnTranscription(msg.Text, msg.IsFinal, msg.Confidence)
		}

	case wire.TypeResponse:
		if l.fsm.State() == session.StateProcessing {
			_ = l.fsm.Apply(session.EventAgentDelta)
		}
		if l.events.OnResponse != nil {
			l.events.OnResponse(msg.Text)
		}

	case wire.TypeResponseEnd:
		// Terminal for text; audio_end handles the spoken tail.

	case wire.TypeStatus:
		l.onStatus(msg.Status)

	case wire.TypeError:
		l.log.Warn("server error frame",
			zap.String("code", msg.Code), zap.String("error", msg.Error))
	}
}

// onStatus reconciles with the server's view where the local machine has
// not already made the move itself.
func (l *Loop) onStatus(status string) {
	switch status {
	case wire.StatusListening:
		l.discard = false
		// After a server-side interrupt resolution or a text-only turn.
		if l.fsm.State() == session.StateSpeaking {
			l.sched.CancelAll()
			l.speaking = false
			l.intr.OnPlaybackStopped()
			_ = l.fsm.Apply(session.EventAudioEnd)
		}
	case wire.StatusError:
		_ = l.fsm.Apply(session.EventFailure)
	}
}

// State exposes the loop's session state for embedding UIs.
func (l *Loop) State() session.State { return l.fsm.State() }

func (l *Loop) shutdown() {
	if err := l.src.Close(); err != nil && !errors.Is(err, capture.ErrCaptureUnavailable) {
		l.log.Warn("capture close failed", zap.Error(err))
	}
	l.sched.CancelAll()
	l.ch.Close()
}

package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kestrel/voice/internal/capture"
	"kestrel/voice/internal/session"
	"kestrel/voice/internal/wire"
)

// runPipeline carries one utterance through recognition, response
// generation and synthesis. Collaborator failures downgrade the response
// (text keeps flowing without audio, or the turn is abandoned with an
// error frame); they never take the session down.
func (o *Orchestrator) runPipeline(ctx context.Context, s *voiceSession, utt *capture.Utterance) {
	start := time.Now()
	o.sendStatus(s.id, wire.StatusProcessing)
	o.store.AppendEvent(s.id, "orchestrator", "utterance", map[string]any{
		"utterance_id": utt.ID,
		"duration_ms":  utt.Duration().Milliseconds(),
	})

	final, ok := o.transcribe(ctx, s, utt)
	if !ok || final == "" {
		o.finishTurn(s, false)
		return
	}

	deltas, err := o.prov.Agent.Respond(ctx, s.id, final)
	if err != nil {
		o.log.Warn("agent unavailable", zap.String("session_id", s.id), zap.Error(err))
		metricTurnFailures.Inc()
		_ = o.out.Send(ctx, s.id, wire.Error(0, wire.CodeCollaborator, "agent unavailable"))
		o.recoverTurn(s)
		return
	}

	spoke := o.respond(ctx, s, deltas)
	if ctx.Err() != nil {
		// Interrupted or client gone; the interrupt path already moved
		// the state machine and told the client.
		return
	}
	o.finishTurn(s, spoke)
	metricTurnSeconds.Observe(time.Since(start).Seconds())
}

// transcribe streams recognition results to the client and returns the
// final transcript.
func (o *Orchestrator) transcribe(ctx context.Context, s *voiceSession, utt *capture.Utterance) (string, bool) {
	results, err := o.prov.ASR.Transcribe(ctx, utt.PCM())
	if err != nil {
		o.log.Warn("recognizer unavailable", zap.String("session_id", s.id), zap.Error(err))
		metricTurnFailures.Inc()
		_ = o.out.Send(ctx, s.id, wire.Error(0, wire.CodeCollaborator, "recognizer unavailable"))
		o.recoverTurn(s)
		return "", false
	}
	var final string
	for r := range results {
		if ctx.Err() != nil {
			return "", false
		}
		_ = o.out.Send(ctx, s.id, wire.Transcription(0, r.Text, r.IsFinal, r.Confidence))
		if r.IsFinal {
			final = r.Text
		}
	}
	return final, true
}

// respond streams agent deltas out as response frames and synthesizes
// complete sentences as they close. Returns whether any audio was sent.
func (o *Orchestrator) respond(ctx context.Context, s *voiceSession, deltas <-chan string) bool {
	var split SentenceSplitter
	spoke := false
	ttsDown := false
	first := true

	speak := func(sentence string) {
		if ttsDown {
			return
		}
		text := CleanForSpeech(sentence)
		if text == "" {
			return
		}
		chunks, err := o.prov.TTS.Synthesize(ctx, text)
		if err != nil {
			// Downgrade to text-only for the rest of the turn.
			o.log.Warn("synthesizer unavailable, continuing text-only",
				zap.String("session_id", s.id), zap.Error(err))
			metricDowngrades.Inc()
			_ = o.out.Send(ctx, s.id, wire.Error(0, wire.CodeCollaborator, "synthesis unavailable"))
			ttsDown = true
			return
		}
		for pcm := range chunks {
			if ctx.Err() != nil {
				return
			}
			_ = o.out.Send(ctx, s.id, wire.Audio(s.nextSeq(), pcm))
			spoke = true
		}
	}

	for d := range deltas {
		if ctx.Err() != nil {
			return spoke
		}
		if first {
			first = false
			if s.fsm.Apply(session.EventAgentDelta) == nil {
				o.sendStatus(s.id, wire.StatusSpeaking)
			}
		}
		_ = o.out.Send(ctx, s.id, wire.Message{Type: wire.TypeResponse, Text: d})
		for _, sentence := range split.Push(d) {
			speak(sentence)
		}
	}
	if rest := split.Flush(); rest != "" && ctx.Err() == nil {
		speak(rest)
	}
	if ctx.Err() == nil {
		_ = o.out.Send(ctx, s.id, wire.Message{Type: wire.TypeResponseEnd})
		if spoke {
			_ = o.out.Send(ctx, s.id, wire.Message{Type: wire.TypeAudioEnd})
		}
	}
	return spoke
}

// finishTurn moves speaking (or processing, for an empty turn) back to
// rest and tells the client which state we landed in.
func (o *Orchestrator) finishTurn(s *voiceSession, spoke bool) {
	switch s.fsm.State() {
	case session.StateSpeaking:
		if s.fsm.Apply(session.EventAudioEnd) != nil {
			return
		}
	case session.StateProcessing:
		// Nothing to say; processing resolves through the recovery edge.
		o.recoverTurn(s)
		return
	default:
		return
	}
	if s.fsm.State() == session.StateListening {
		o.sendStatus(s.id, wire.StatusListening)
	} else {
		o.sendStatus(s.id, wire.StatusIdle)
	}
}

// recoverTurn abandons the current turn after a collaborator failure and
// returns the session to rest via the error state.
func (o *Orchestrator) recoverTurn(s *voiceSession) {
	if s.fsm.Apply(session.EventFailure) != nil {
		return
	}
	if s.fsm.Apply(session.EventRecovered) != nil {
		return
	}
	o.sendStatus(s.id, wire.StatusIdle)
}

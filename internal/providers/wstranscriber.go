package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	ws "nhooyr.io/websocket"
)

// WSConfig tunes the streaming recognizer connection.
type WSConfig struct {
	URL       string
	APIKey    string
	ChunkSize int           // bytes per audio write, default 3200 (100 ms @ 16 kHz)
	Window    time.Duration // failure window for the circuit breaker
	Threshold int           // failures inside the window that open the circuit
	Cooldown  time.Duration // how long an open circuit stays open
}

func (c *WSConfig) fill() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 3200
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.Threshold <= 0 {
		c.Threshold = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
}

// WSTranscriber streams utterance audio to a Deepgram-style recognizer
// over a WebSocket opened per utterance. Repeated connect failures open a
// circuit so a dead recognizer fails fast instead of stalling the
// pipeline on every utterance.
type WSTranscriber struct {
	cfg   WSConfig
	log   *zap.Logger
	retry Backoff

	fails   []time.Time
	circuit time.Time
}

func NewWSTranscriber(cfg WSConfig, log *zap.Logger) *WSTranscriber {
	cfg.fill()
	return &WSTranscriber{cfg: cfg, log: log.Named("wstranscriber"), retry: DefaultBackoff()}
}

func (t *WSTranscriber) Close() error { return nil }

// wsResult is the recognizer's transcript event shape.
type wsResult struct {
	IsFinal bool `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (t *WSTranscriber) Transcribe(ctx context.Context, pcm []byte) (<-chan Result, error) {
	if time.Now().Before(t.circuit) {
		metricASRCircuitOpen.Inc()
		return nil, fmt.Errorf("%w: recognizer circuit open", ErrCollaboratorUnavailable)
	}

	var conn *ws.Conn
	err := t.retry.Do(ctx, func() error {
		hdr := make(http.Header)
		if t.cfg.APIKey != "" {
			hdr.Set("Authorization", "Token "+t.cfg.APIKey)
		}
		dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		c, _, err := ws.Dial(dctx, t.cfg.URL, &ws.DialOptions{HTTPHeader: hdr})
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		t.addFailure()
		metricASRFailures.Inc()
		return nil, err
	}
	t.resetFailures()

	out := make(chan Result, 8)
	go func() {
		defer close(out)
		defer conn.Close(ws.StatusNormalClosure, "done")

		// Writer: audio chunks then the close marker.
		go func() {
			for off := 0; off < len(pcm); off += t.cfg.ChunkSize {
				end := off + t.cfg.ChunkSize
				if end > len(pcm) {
					end = len(pcm)
				}
				wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
				err := conn.Write(wctx, ws.MessageBinary, pcm[off:end])
				cancel()
				if err != nil {
					return
				}
			}
			closeMsg, _ := json.Marshal(map[string]string{"type": "CloseStream"})
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_ = conn.Write(wctx, ws.MessageText, closeMsg)
			cancel()
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var r wsResult
			if err := json.Unmarshal(data, &r); err != nil {
				continue
			}
			if len(r.Channel.Alternatives) == 0 {
				continue
			}
			alt := r.Channel.Alternatives[0]
			if alt.Transcript == "" && !r.IsFinal {
				continue
			}
			res := Result{Text: alt.Transcript, IsFinal: r.IsFinal, Confidence: alt.Confidence}
			select {
			case <-ctx.Done():
				return
			case out <- res:
			}
			if r.IsFinal {
				return
			}
		}
	}()
	return out, nil
}

func (t *WSTranscriber) addFailure() {
	now := time.Now()
	keep := t.fails[:0]
	for _, f := range t.fails {
		if now.Sub(f) < t.cfg.Window {
			keep = append(keep, f)
		}
	}
	t.fails = append(keep, now)
	if len(t.fails) >= t.cfg.Threshold {
		t.circuit = now.Add(t.cfg.Cooldown)
		t.log.Warn("recognizer circuit opened",
			zap.Int("failures", len(t.fails)), zap.Time("until", t.circuit))
	}
}

func (t *WSTranscriber) resetFailures() {
	t.fails = nil
	t.circuit = time.Time{}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"kestrel/voice/internal/audio"
	"kestrel/voice/internal/capture"
	"kestrel/voice/internal/client"
	"kestrel/voice/internal/config"
	"kestrel/voice/internal/session"
	"kestrel/voice/internal/transport"
)

// voiceclient streams a raw PCM file through a gateway as if it were a
// live microphone, prints what comes back, and saves received audio.
func main() {
	gateway := flag.String("gateway", "http://localhost:8080", "gateway base URL")
	agent := flag.String("agent", "demo", "agent id")
	user := flag.String("user", "probe", "user id")
	inFile := flag.String("in", "", "raw PCM16 16kHz mono input file")
	outFile := flag.String("out", "received.pcm", "file for received 24kHz PCM")
	timeout := flag.Duration("timeout", 30*time.Second, "overall run budget")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log, _ := zap.NewDevelopment()
	defer log.Sync()

	if *inFile == "" {
		fmt.Fprintln(os.Stderr, "usage: voiceclient -in speech.pcm [-gateway URL] [-agent ID]")
		os.Exit(2)
	}

	sessionID, token, path, err := mint(*gateway, *user, *agent)
	if err != nil {
		log.Fatal("session mint failed", zap.Error(err))
	}
	log.Info("session minted", zap.String("session_id", sessionID))

	blockBytes := audio.Capture.Bytes(cfg.Segmenter.BlockDuration)
	src, err := capture.OpenFile(*inFile, blockBytes, cfg.Segmenter.BlockDuration)
	if err != nil {
		log.Fatal("capture open failed", zap.Error(err))
	}

	out, err := os.Create(*outFile)
	if err != nil {
		log.Fatal("output open failed", zap.Error(err))
	}
	defer out.Close()
	sink := &fileSink{f: out}

	wsURL := "ws" + strings.TrimPrefix(*gateway, "http") + path
	conn := transport.NewClient(transport.ClientConfig{
		URL:           wsURL,
		Token:         token,
		BackoffBase:   cfg.Transport.BackoffBase,
		BackoffFactor: cfg.Transport.BackoffFactor,
		BackoffCap:    cfg.Transport.BackoffCap,
		MaxAttempts:   cfg.Transport.MaxAttempts,
		SeqTolerance:  cfg.Transport.SeqTolerance,
	}, log)

	start := time.Now()
	done := make(chan struct{})
	loop := client.New(cfg, log, src, sink, conn, sessionID, client.Events{
		OnTranscription: func(text string, isFinal bool, confidence float64) {
			if isFinal {
				fmt.Printf("[%6.2fs] transcript: %s (conf %.2f)\n", time.Since(start).Seconds(), text, confidence)
			}
		},
		OnResponse: func(delta string) {
			fmt.Print(delta)
		},
		OnStateChange: func(from, to session.State) {
			fmt.Printf("\n[%6.2fs] %s -> %s\n", time.Since(start).Seconds(), from, to)
			if from == session.StateSpeaking && (to == session.StateListening || to == session.StateIdle) {
				select {
				case <-done:
				default:
					close(done)
				}
			}
		},
	})
	conn.OnMessage(loop.Deliver)
	conn.OnClose(loop.ChannelClosed)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := conn.Dial(ctx); err != nil {
		log.Fatal("dial failed", zap.Error(err))
	}

	go func() {
		select {
		case <-done:
			// give trailing frames a moment, then wind down
			time.Sleep(500 * time.Millisecond)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := loop.Run(ctx); err != nil {
		log.Warn("session ended with error", zap.Error(err))
	}
	fmt.Printf("\nreceived %d bytes of audio in %.2fs -> %s\n", sink.n, time.Since(start).Seconds(), *outFile)
}

func mint(gateway, user, agent string) (sessionID, token, path string, err error) {
	body, _ := json.Marshal(map[string]string{"user_id": user, "agent_id": agent})
	resp, err := http.Post(gateway+"/v1/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", "", fmt.Errorf("mint status %d", resp.StatusCode)
	}
	var r struct {
		SessionID string `json:"session_id"`
		Token     string `json:"token"`
		Path      string `json:"path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", "", "", err
	}
	return r.SessionID, r.Token, r.Path, nil
}

// fileSink writes received audio immediately; scheduling timestamps are
// irrelevant when the destination is a file.
type fileSink struct {
	f *os.File
	n int
}

func (s *fileSink) Play(pcm []byte, at time.Time) {
	n, _ := s.f.Write(pcm)
	s.n += n
}

func (s *fileSink) Stop() {}

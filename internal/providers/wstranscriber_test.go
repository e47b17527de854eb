package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	ws "nhooyr.io/websocket"
)

// fakeRecognizer accepts one socket, counts audio bytes until the close
// marker, then emits a partial and a final transcript.
func fakeRecognizer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := ws.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(ws.StatusNormalClosure, "done")
		ctx := r.Context()
		total := 0
		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			if typ == ws.MessageBinary {
				total += len(data)
				continue
			}
			var m map[string]string
			if json.Unmarshal(data, &m) == nil && m["type"] == "CloseStream" {
				break
			}
		}
		send := func(text string, isFinal bool, conf float64) {
			var r wsResult
			r.IsFinal = isFinal
			r.Channel.Alternatives = []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			}{{Transcript: text, Confidence: conf}}
			b, _ := json.Marshal(r)
			_ = c.Write(ctx, ws.MessageText, b)
		}
		send("hello", false, 0.4)
		send("hello world", true, 0.9)
	}))
}

func TestWSTranscriberPartialThenFinal(t *testing.T) {
	srv := fakeRecognizer(t)
	defer srv.Close()

	tr := NewWSTranscriber(WSConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, zap.NewNop())
	out, err := tr.Transcribe(context.Background(), make([]byte, 6400))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	var results []Result
	for r := range out {
		results = append(results, r)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results: %+v", len(results), results)
	}
	if results[0].IsFinal || results[0].Text != "hello" {
		t.Errorf("partial = %+v", results[0])
	}
	final := results[1]
	if !final.IsFinal || final.Text != "hello world" || final.Confidence != 0.9 {
		t.Errorf("final = %+v", final)
	}
}

func TestWSTranscriberCircuitOpensAfterFailures(t *testing.T) {
	tr := NewWSTranscriber(WSConfig{
		URL:       "ws://127.0.0.1:1", // nothing listens here
		Threshold: 2,
		Cooldown:  time.Minute,
	}, zap.NewNop())
	tr.retry = Backoff{Base: time.Millisecond, Factor: 2, Cap: 5 * time.Millisecond, Attempts: 1}

	for i := 0; i < 2; i++ {
		if _, err := tr.Transcribe(context.Background(), []byte{0, 0}); err == nil {
			t.Fatal("dial to dead address succeeded")
		}
	}
	_, err := tr.Transcribe(context.Background(), []byte{0, 0})
	if !errors.Is(err, ErrCollaboratorUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "circuit") {
		t.Errorf("expected circuit rejection, got %v", err)
	}
}

func TestWSTranscriberRecoversAfterSuccess(t *testing.T) {
	srv := fakeRecognizer(t)
	defer srv.Close()

	tr := NewWSTranscriber(WSConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, zap.NewNop())
	tr.addFailure()
	tr.addFailure()

	out, err := tr.Transcribe(context.Background(), make([]byte, 320))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	for range out {
	}
	if len(tr.fails) != 0 {
		t.Errorf("failure window not reset after success")
	}
}

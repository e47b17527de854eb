package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPAgent streams chat completions from an OpenAI-style endpoint over
// server-sent events.
type HTTPAgent struct {
	url    string
	apiKey string
	httpc  *http.Client
	log    *zap.Logger
	retry  Backoff
}

func NewHTTPAgent(url, apiKey string, log *zap.Logger) *HTTPAgent {
	return &HTTPAgent{
		url:    url,
		apiKey: apiKey,
		httpc:  &http.Client{Timeout: 0},
		log:    log.Named("httpagent"),
		retry:  DefaultBackoff(),
	}
}

func (a *HTTPAgent) Respond(ctx context.Context, sessionID, prompt string) (<-chan string, error) {
	body := map[string]any{
		"stream": true,
		"user":   sessionID,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
	}
	reqBytes, _ := json.Marshal(body)

	var resp *http.Response
	err := a.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(reqBytes))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		r, err := a.httpc.Do(req)
		if err != nil {
			return err
		}
		if r.StatusCode/100 != 2 {
			b, _ := io.ReadAll(io.LimitReader(r.Body, 1024))
			r.Body.Close()
			return fmt.Errorf("status=%d body=%s", r.StatusCode, string(b))
		}
		resp = r
		return nil
	})
	if err != nil {
		metricAgentFailures.Inc()
		return nil, err
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		start := time.Now()
		firstToken := false
		dec := newSSEDecoder(bufio.NewReader(resp.Body))
		for {
			if ctx.Err() != nil {
				return
			}
			data, err := dec.Next()
			if err != nil {
				if err != io.EOF {
					a.log.Warn("agent stream broke", zap.Error(err))
				}
				return
			}
			if string(data) == "[DONE]" {
				return
			}
			var m map[string]any
			if err := json.Unmarshal(data, &m); err != nil {
				continue
			}
			content := deltaContent(m)
			if content == "" {
				continue
			}
			if !firstToken {
				metricAgentFirstToken.Observe(time.Since(start).Seconds())
				firstToken = true
			}
			select {
			case <-ctx.Done():
				return
			case out <- content:
			}
		}
	}()
	return out, nil
}

func deltaContent(m map[string]any) string {
	choices, _ := m["choices"].([]any)
	if len(choices) == 0 {
		return ""
	}
	choice, _ := choices[0].(map[string]any)
	delta, _ := choice["delta"].(map[string]any)
	s, _ := delta["content"].(string)
	return s
}

type sseDecoder struct {
	r *bufio.Reader
}

func newSSEDecoder(r *bufio.Reader) *sseDecoder { return &sseDecoder{r: r} }

// Next returns the data of the next event. Event names are ignored; the
// chat endpoints only ever send data lines.
func (d *sseDecoder) Next() ([]byte, error) {
	var data []byte
	for {
		line, err := d.r.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(data) > 0 {
				return data, nil
			}
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if len(data) == 0 {
				continue
			}
			return data, nil
		}
		if bytes.HasPrefix(line, []byte("data:")) {
			data = append(data, bytes.TrimSpace(line[len("data:"):])...)
		}
	}
}

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"kestrel/voice/internal/audio"
)

// HTTPSynthesizer calls a REST voice endpoint that answers with a WAV
// body, then re-chunks the PCM into playback-rate frames.
type HTTPSynthesizer struct {
	url    string
	apiKey string
	voice  string
	httpc  *http.Client
	log    *zap.Logger
	retry  Backoff
}

func NewHTTPSynthesizer(url, apiKey, voice string, log *zap.Logger) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		url:    url,
		apiKey: apiKey,
		voice:  voice,
		httpc:  &http.Client{Timeout: 30 * time.Second},
		log:    log.Named("httpsynth"),
		retry:  DefaultBackoff(),
	}
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	body := map[string]any{"text": text}
	if s.voice != "" {
		body["voice"] = s.voice
	}
	reqBytes, _ := json.Marshal(body)

	var pcm []byte
	err := s.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(reqBytes))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/wav")
		resp, err := s.httpc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
		}
		pcm, err = ReadWAVPCM16(resp.Body, audio.PlaybackRate)
		return err
	})
	if err != nil {
		metricTTSFailures.Inc()
		return nil, err
	}

	chunkBytes := audio.Playback.Bytes(40 * time.Millisecond)
	out := make(chan []byte, 4)
	go func() {
		defer close(out)
		for off := 0; off < len(pcm); off += chunkBytes {
			end := off + chunkBytes
			if end > len(pcm) {
				end = len(pcm)
			}
			select {
			case <-ctx.Done():
				return
			case out <- pcm[off:end]:
			}
		}
	}()
	return out, nil
}

// ReadWAVPCM16 extracts raw 16-bit PCM from a WAV body. The sample rate
// must match wantRate; stereo is averaged down to mono.
func ReadWAVPCM16(r io.Reader, wantRate int) ([]byte, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(b) < 44 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a WAV")
	}
	off := 12
	var dataOff, dataLen int
	var channels uint16
	var rate uint32
	for off+8 <= len(b) {
		cid := string(b[off : off+4])
		csz := int(uint32(b[off+4]) | uint32(b[off+5])<<8 | uint32(b[off+6])<<16 | uint32(b[off+7])<<24)
		off += 8
		switch cid {
		case "fmt ":
			if off+16 > len(b) {
				return nil, fmt.Errorf("bad fmt chunk")
			}
			fmtTag := uint16(b[off]) | uint16(b[off+1])<<8
			channels = uint16(b[off+2]) | uint16(b[off+3])<<8
			rate = uint32(b[off+4]) | uint32(b[off+5])<<8 | uint32(b[off+6])<<16 | uint32(b[off+7])<<24
			bits := uint16(b[off+14]) | uint16(b[off+15])<<8
			if fmtTag != 1 || bits != 16 {
				return nil, fmt.Errorf("unsupported WAV format")
			}
			off += csz
		case "data":
			dataOff = off
			dataLen = csz
			off = len(b)
		default:
			off += csz
		}
	}
	if dataOff <= 0 || dataOff+dataLen > len(b) {
		return nil, fmt.Errorf("no data chunk")
	}
	if int(rate) != wantRate {
		return nil, fmt.Errorf("sample rate %d, want %d", rate, wantRate)
	}
	raw := b[dataOff : dataOff+dataLen]
	if channels == 2 {
		frames := len(raw) / 4
		out := make([]byte, frames*2)
		for i := 0; i < frames; i++ {
			l := audio.DecodeSample(raw, 2*i)
			r := audio.DecodeSample(raw, 2*i+1)
			audio.EncodeSample(out, i, int16((int32(l)+int32(r))/2))
		}
		raw = out
	}
	return raw, nil
}

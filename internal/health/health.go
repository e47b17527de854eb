// Package health answers liveness and readiness. Liveness is
// unconditional; readiness probes the configured collaborators.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kestrel/voice/internal/config"
)

type CheckResult struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Latency int64  `json:"latency_ms"`
	Error   string `json:"error,omitempty"`
}

type Status struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (s Status) String() string {
	status := "OK"
	if !s.OK {
		status = "FAIL"
	}
	out := fmt.Sprintf("Health: %s\n", status)
	for _, c := range s.Checks {
		mark := "ok"
		if !c.OK {
			mark = "fail"
		}
		out += fmt.Sprintf("  %-4s %s (%dms)", mark, c.Name, c.Latency)
		if c.Error != "" {
			out += " - " + c.Error
		}
		out += "\n"
	}
	return out
}

// CheckAll probes every remote collaborator the config selects. Sim
// providers need no probe and always pass.
func CheckAll(ctx context.Context, cfg config.Config) Status {
	var checks []CheckResult
	checks = append(checks, checkProvider(ctx, "asr", cfg.Providers.ASR, cfg.Providers.ASRURL))
	checks = append(checks, checkProvider(ctx, "agent", cfg.Providers.Agent, cfg.Providers.AgentURL))
	checks = append(checks, checkProvider(ctx, "tts", cfg.Providers.TTS, cfg.Providers.TTSURL))

	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}
	return Status{OK: allOK, Checks: checks, CheckedAt: time.Now().UTC()}
}

func checkProvider(ctx context.Context, name, kind, url string) CheckResult {
	start := time.Now()
	result := CheckResult{Name: name}
	if kind == "sim" {
		result.OK = true
		result.Latency = time.Since(start).Milliseconds()
		return result
	}
	if url == "" {
		result.Error = "endpoint not configured"
		result.Latency = time.Since(start).Milliseconds()
		return result
	}
	// WS recognizers are probed over HTTP at the same host.
	probe := url
	if strings.HasPrefix(probe, "ws") {
		probe = "http" + strings.TrimPrefix(probe, "ws")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probe, nil)
	if err != nil {
		result.Error = err.Error()
		result.Latency = time.Since(start).Milliseconds()
		return result
	}
	resp, err := http.DefaultClient.Do(req)
	result.Latency = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		result.Error = fmt.Sprintf("status %d", resp.StatusCode)
		return result
	}
	result.OK = true
	return result
}

// Handler serves /healthz (always 200 while the process runs) and
// /readyz (503 until every configured collaborator answers).
func Handler(cfg config.Config) (liveness, readiness http.HandlerFunc) {
	liveness = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}
	readiness = func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		st := CheckAll(ctx, cfg)
		w.Header().Set("Content-Type", "application/json")
		if !st.OK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(st)
	}
	return liveness, readiness
}

package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"kestrel/voice/internal/config"
)

func TestSimProvidersAlwaysReady(t *testing.T) {
	cfg := config.Load()
	st := CheckAll(context.Background(), cfg)
	if !st.OK {
		t.Fatalf("status = %+v", st)
	}
	if len(st.Checks) != 3 {
		t.Fatalf("checks = %d", len(st.Checks))
	}
}

func TestRemoteProviderProbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Load()
	cfg.Providers.Agent = "http"
	cfg.Providers.AgentURL = srv.URL

	st := CheckAll(context.Background(), cfg)
	if !st.OK {
		t.Fatalf("status = %+v", st)
	}
}

func TestMissingEndpointFailsReadiness(t *testing.T) {
	cfg := config.Load()
	cfg.Providers.TTS = "http"
	cfg.Providers.TTSURL = ""

	st := CheckAll(context.Background(), cfg)
	if st.OK {
		t.Fatal("ready without a TTS endpoint")
	}
}

func TestReadyzStatusCode(t *testing.T) {
	cfg := config.Load()
	cfg.Providers.Agent = "http"
	cfg.Providers.AgentURL = "" // misconfigured on purpose

	_, readyz := Handler(cfg)
	rec := httptest.NewRecorder()
	readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", rec.Code)
	}

	livez, _ := Handler(cfg)
	rec = httptest.NewRecorder()
	livez(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
}

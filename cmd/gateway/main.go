package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"kestrel/voice/internal/auth"
	"kestrel/voice/internal/config"
	"kestrel/voice/internal/health"
	"kestrel/voice/internal/orchestrator"
	"kestrel/voice/internal/providers"
	"kestrel/voice/internal/store"
	"kestrel/voice/internal/transport"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()
	log := newLogger(cfg.Server.LogLevel)
	defer log.Sync()

	if cfg.Auth.Secret == "" {
		log.Fatal("VOICE_AUTH_SECRET is required")
	}

	st := store.New()
	reg := transport.NewRegistry()
	prov, err := providers.Build(cfg, log)
	if err != nil {
		log.Fatal("provider setup failed", zap.Error(err))
	}
	orch := orchestrator.New(cfg, log, st, reg, prov)
	wss := transport.NewServer(cfg, log, st, reg, orch)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/voice/", wss.HandleVoiceWS)
	mux.HandleFunc("/v1/sessions", mintSession(cfg, log))
	livez, readyz := health.Handler(cfg)
	mux.HandleFunc("/healthz", livez)
	mux.HandleFunc("/readyz", readyz)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Reap sessions whose resume window has lapsed.
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for range t.C {
			for _, id := range st.Expired(cfg.Session.Timeout) {
				log.Info("reaping expired session", zap.String("session_id", id))
				st.Remove(id)
			}
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Info("shutdown signal received")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	log.Info("gateway starting", zap.String("addr", cfg.Server.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server error", zap.Error(err))
	}
}

// mintSession issues a session identity and its bearer token.
func mintSession(cfg config.Config, log *zap.Logger) http.HandlerFunc {
	type request struct {
		UserID  string `json:"user_id"`
		AgentID string `json:"agent_id"`
	}
	type response struct {
		SessionID string `json:"session_id"`
		Token     string `json:"token"`
		Path      string `json:"path"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgentID == "" {
			http.Error(w, "user_id and agent_id required", http.StatusBadRequest)
			return
		}
		sessionID := uuid.New().String()
		token, err := auth.GenerateSessionToken([]byte(cfg.Auth.Secret), req.UserID, req.AgentID, sessionID, cfg.Auth.TokenTTL)
		if err != nil {
			log.Error("token mint failed", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response{
			SessionID: sessionID,
			Token:     token,
			Path:      "/ws/voice/" + req.AgentID,
		})
	}
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	c := zap.NewProductionConfig()
	c.Level = zap.NewAtomicLevelAt(lvl)
	log, err := c.Build()
	if err != nil {
		panic(err)
	}
	return log
}

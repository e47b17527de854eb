package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	ws "nhooyr.io/websocket"

	"kestrel/voice/internal/auth"
	"kestrel/voice/internal/config"
	"kestrel/voice/internal/store"
	"kestrel/voice/internal/wire"
)

// SessionSink receives validated inbound frames and lifecycle notices for
// one session. The orchestrator implements it.
type SessionSink interface {
	HandleFrame(ctx context.Context, sessionID string, msg wire.Message)
	SessionGone(sessionID string)
}

type Server struct {
	Cfg   config.Config
	Log   *zap.Logger
	Store *store.Store
	Reg   *Registry
	Sink  SessionSink
}

func NewServer(cfg config.Config, log *zap.Logger, st *store.Store, reg *Registry, sink SessionSink) *Server {
	return &Server{Cfg: cfg, Log: log.Named("transport"), Store: st, Reg: reg, Sink: sink}
}

// HandleVoiceWS upgrades /ws/voice/{agent}. Credentials are checked before
// the upgrade so a bad token never creates session state.
func (s *Server) HandleVoiceWS(w http.ResponseWriter, r *http.Request) {
	agentID := strings.TrimPrefix(r.URL.Path, "/ws/voice/")
	if agentID == "" || strings.Contains(agentID, "/") {
		http.Error(w, "missing agent id", http.StatusBadRequest)
		return
	}

	token := bearer(r)
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	if s.Cfg.Auth.Secret == "" {
		http.Error(w, "auth not configured", http.StatusUnauthorized)
		return
	}
	claims, err := auth.ValidateToken([]byte(s.Cfg.Auth.Secret), token, agentID)
	if err != nil {
		metricAuthFailures.Inc()
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	sessionID := claims.SessionID

	resumed := false
	if sess := s.Store.GetSession(sessionID); sess != nil {
		if !s.Store.Resumable(sessionID, s.Cfg.Session.Timeout) {
			http.Error(w, "session expired", http.StatusGone)
			return
		}
		resumed = true
	}

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		s.Log.Warn("ws accept failed", zap.Error(err))
		return
	}

	if !resumed {
		_ = s.Store.CreateSession(&store.Session{
			ID:      sessionID,
			AgentID: agentID,
			UserID:  claims.UserID,
			State:   "idle",
		})
	}
	if s.Reg.Replace(sessionID, c) {
		s.Store.AppendEvent(sessionID, "transport", "conn_replaced", nil)
	}
	s.Store.AppendEvent(sessionID, "transport", eventName(resumed), nil)
	metricConnections.Inc()
	s.Log.Info("session connected",
		zap.String("session_id", sessionID),
		zap.String("agent_id", agentID),
		zap.Bool("resumed", resumed))

	s.pump(r.Context(), sessionID, c)
}

func eventName(resumed bool) string {
	if resumed {
		return "conn_resumed"
	}
	return "conn_opened"
}

func bearer(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	// Browser WebSocket clients cannot set headers; accept a query token.
	return r.URL.Query().Get("token")
}

// pump reads frames until the socket drops. Every frame passes the
// per-direction sequence window; any invalid frame earns an error reply
// but does not tear the session down.
func (s *Server) pump(ctx context.Context, sessionID string, c *ws.Conn) {
	win := wire.NewWindow(uint64(s.Cfg.Transport.SeqTolerance))

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go s.keepAlive(pingCtx, c)

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ != ws.MessageText && typ != ws.MessageBinary {
			continue
		}
		msg, err := wire.Decode(data)
		if err == nil {
			err = msg.Validate()
		}
		if err == nil {
			err = win.Accept(msg.Seq)
		}
		if err != nil {
			metricProtocolViolations.Inc()
			s.Log.Warn("inbound frame rejected",
				zap.String("session_id", sessionID), zap.Error(err))
			_ = s.Reg.Send(ctx, sessionID, wire.Error(0, wire.CodeProtocol, err.Error()))
			continue
		}
		metricFramesReceived.Inc()
		s.Store.Touch(sessionID)
		s.Sink.HandleFrame(ctx, sessionID, msg)
	}

	_ = c.Close(ws.StatusNormalClosure, "done")
	s.Reg.Remove(sessionID, c)
	s.Store.AppendEvent(sessionID, "transport", "conn_closed", nil)
	s.Log.Info("session disconnected", zap.String("session_id", sessionID))
	s.Sink.SessionGone(sessionID)
}

func (s *Server) keepAlive(ctx context.Context, c *ws.Conn) {
	t := time.NewTicker(20 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

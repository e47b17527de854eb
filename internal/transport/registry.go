package transport

import (
	"context"
	"sync"

	ws "nhooyr.io/websocket"

	"kestrel/voice/internal/wire"
)

// Registry keeps at most one live connection per session, along with the
// session's outbound sequence counter. The counter outlives individual
// sockets so a resumed connection keeps one monotonic downlink stream.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*ws.Conn
	seqs  map[string]uint64
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*ws.Conn), seqs: make(map[string]uint64)}
}

// Replace sets the connection for a session and closes the previous one
// if present. A reconnecting client always wins over a stale socket.
func (r *Registry) Replace(sessionID string, c *ws.Conn) (prevClosed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.conns[sessionID]; ok && old != nil {
		_ = old.Close(ws.StatusNormalClosure, "replaced")
		prevClosed = true
	}
	r.conns[sessionID] = c
	return
}

func (r *Registry) Get(sessionID string) *ws.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[sessionID]
}

// Remove drops the session's entry only if it still points at c, so a
// reconnect that already replaced the conn is not clobbered by the old
// reader's cleanup.
func (r *Registry) Remove(sessionID string, c *ws.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[sessionID] == c {
		delete(r.conns, sessionID)
		delete(r.seqs, sessionID)
	}
}

// Send stamps, marshals and writes a frame on the session's connection.
// The registry owns the downlink counter: whatever seq the caller set is
// replaced, so all frame kinds share one ordered stream. A missing
// connection is not an error; the frame is simply dropped (the client is
// between reconnect attempts).
func (r *Registry) Send(ctx context.Context, sessionID string, msg wire.Message) error {
	r.mu.Lock()
	c := r.conns[sessionID]
	if c != nil {
		r.seqs[sessionID]++
		msg.Seq = r.seqs[sessionID]
	}
	r.mu.Unlock()
	if c == nil {
		return nil
	}
	b, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	metricFramesSent.Inc()
	return c.Write(ctx, ws.MessageText, b)
}

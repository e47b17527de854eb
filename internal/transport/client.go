package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	ws "nhooyr.io/websocket"

	"kestrel/voice/internal/wire"
)

var ErrTransportDisconnected = errors.New("transport disconnected")

// ClientConfig tunes the reconnect policy. Zero values fall back to the
// defaults from the session contract.
type ClientConfig struct {
	URL           string
	Token         string
	BackoffBase   time.Duration
	BackoffFactor float64
	BackoffCap    time.Duration
	MaxAttempts   int
	SeqTolerance  int
}

func (c *ClientConfig) fill() {
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = 2
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.SeqTolerance <= 0 {
		c.SeqTolerance = 64
	}
}

// Client holds one logical session channel to the gateway. The socket
// underneath may drop and be redialed; the session identity is carried by
// the bearer token, so a successful redial resumes where it left off.
type Client struct {
	cfg ClientConfig
	log *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	onMessage func(wire.Message)
	onClose   func(error)

	mu   sync.Mutex
	conn *ws.Conn
	seq  uint64

	done chan struct{}
}

func NewClient(cfg ClientConfig, log *zap.Logger) *Client {
	cfg.fill()
	return &Client{cfg: cfg, log: log.Named("transport")}
}

func (c *Client) OnMessage(fn func(wire.Message)) { c.onMessage = fn }
func (c *Client) OnClose(fn func(error))          { c.onClose = fn }

// Dial connects and starts the read loop. Handlers must be set before Dial.
func (c *Client) Dial(parent context.Context) error {
	c.ctx, c.cancel = context.WithCancel(parent)
	c.done = make(chan struct{})
	conn, err := c.dialOnce(c.ctx)
	if err != nil {
		c.cancel()
		return fmt.Errorf("%w: %v", ErrTransportDisconnected, err)
	}
	c.setConn(conn)
	go c.run()
	return nil
}

func (c *Client) dialOnce(ctx context.Context) (*ws.Conn, error) {
	hdr := make(http.Header)
	hdr.Set("Authorization", "Bearer "+c.cfg.Token)
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	start := time.Now()
	conn, _, err := ws.Dial(dctx, c.cfg.URL, &ws.DialOptions{HTTPHeader: hdr})
	if err != nil {
		return nil, err
	}
	c.log.Info("connected", zap.Duration("dial", time.Since(start)))
	return conn, nil
}

func (c *Client) setConn(conn *ws.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// Send encodes and writes one frame. Every frame kind shares one outbound
// sequence counter, so the receiving window can spot duplicates and replays
// across the whole stream.
func (c *Client) Send(msg wire.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.seq++
	msg.Seq = c.seq
	c.mu.Unlock()
	if conn == nil {
		return ErrTransportDisconnected
	}
	b, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if err := conn.Write(wctx, ws.MessageText, b); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportDisconnected, err)
	}
	metricFramesSent.Inc()
	return nil
}

// Close tears the channel down for good. No reconnect follows.
func (c *Client) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close(ws.StatusNormalClosure, "bye")
	}
}

// Done is closed once the read loop has given up (deliberate Close or
// reconnect budget exhausted).
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) run() {
	defer close(c.done)
	win := wire.NewWindow(uint64(c.cfg.SeqTolerance))
	for {
		err := c.readLoop(win)
		if c.ctx.Err() != nil {
			c.finish(nil)
			return
		}
		c.log.Warn("connection lost", zap.Error(err))
		conn, rerr := c.redial()
		if rerr != nil {
			c.finish(rerr)
			return
		}
		c.setConn(conn)
		win = wire.NewWindow(uint64(c.cfg.SeqTolerance))
	}
}

func (c *Client) readLoop(win *wire.Window) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrTransportDisconnected
	}
	for {
		typ, data, err := conn.Read(c.ctx)
		if err != nil {
			return err
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
			c.log.Warn("inbound frame rejected", zap.Error(err))
			continue
		}
		metricFramesReceived.Inc()
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

// redial retries with exponential backoff until an attempt succeeds or the
// budget runs out.
func (c *Client) redial() (*ws.Conn, error) {
	delay := c.cfg.BackoffBase
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		select {
		case <-c.ctx.Done():
			return nil, c.ctx.Err()
		case <-time.After(delay):
		}
		metricReconnects.Inc()
		c.log.Info("reconnecting", zap.Int("attempt", attempt))
		conn, err := c.dialOnce(c.ctx)
		if err == nil {
			return conn, nil
		}
		c.log.Warn("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
		delay = time.Duration(float64(delay) * c.cfg.BackoffFactor)
		if delay > c.cfg.BackoffCap {
			delay = c.cfg.BackoffCap
		}
	}
	return nil, fmt.Errorf("%w: reconnect budget exhausted", ErrTransportDisconnected)
}

func (c *Client) finish(err error) {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close(ws.StatusNormalClosure, "bye")
	}
	if c.onClose != nil {
		c.onClose(err)
	}
}

// Package interrupt decides when user speech should cut off assistant
// playback. It owns no audio and no sockets; the session loop feeds it
// observations and acts on its decisions.
package interrupt

import (
	"time"

	"go.uber.org/zap"
)

// Decision is the controller's verdict for one capture block.
type Decision struct {
	Interrupt bool
	Reason    string
}

type Config struct {
	Enabled   bool
	Threshold float64       // RMS floor for barge-in speech
	Guard     time.Duration // arming delay after playback starts
}

func DefaultConfig(threshold float64) Config {
	return Config{Enabled: true, Threshold: threshold, Guard: 500 * time.Millisecond}
}

// Controller tracks whether the assistant holds the floor and whether
// barge-in is armed. Not safe for concurrent use; the session event loop
// is the single caller.
type Controller struct {
	cfg Config
	log *zap.Logger

	speaking  bool
	armedAt   time.Time
	startedAt time.Time

	now func() time.Time
}

func New(cfg Config, log *zap.Logger) *Controller {
	return &Controller{cfg: cfg, log: log.Named("interrupt"), now: time.Now}
}

// OnPlaybackStarted marks the assistant as holding the floor. Barge-in
// arms only after the guard window so playback prebuffer and echo of the
// first chunks cannot cut the response off at the knees.
func (c *Controller) OnPlaybackStarted() {
	c.speaking = true
	c.startedAt = c.now()
	c.armedAt = c.startedAt.Add(c.cfg.Guard)
}

// OnPlaybackStopped releases the floor, whether the response finished or
// was cancelled.
func (c *Controller) OnPlaybackStopped() {
	c.speaking = false
}

// Speaking reports whether the assistant currently holds the floor.
func (c *Controller) Speaking() bool { return c.speaking }

// OnBlock evaluates one capture block's RMS. The threshold here is
// deliberately separate from the segmenter's; barge-in may demand louder,
// more certain speech than ordinary segmentation.
func (c *Controller) OnBlock(rms float64) Decision {
	if !c.cfg.Enabled || !c.speaking {
		return Decision{}
	}
	if c.now().Before(c.armedAt) {
		return Decision{}
	}
	if rms < c.cfg.Threshold {
		return Decision{}
	}
	latency := c.now().Sub(c.startedAt)
	metricBargeIns.Inc()
	metricBargeInLatency.Observe(latency.Seconds())
	c.log.Info("barge-in", zap.Float64("rms", rms), zap.Duration("into_playback", latency))
	c.speaking = false
	return Decision{Interrupt: true, Reason: "barge_in"}
}

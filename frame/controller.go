package frame

import (
	"context"
	"sync"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// Queue is the part of hal.Queue the controller drives.
type Queue interface {
	Submit(commandBuffers []hal.CommandBuffer) (uint64, error)
	PollCompleted() uint64
}

// Device is the part of hal.Device the controller needs for teardown.
type Device interface {
	WaitIdle() error
}

var (
	_ Queue  = hal.Queue(nil)
	_ Device = hal.Device(nil)
)

// Defaults for Config.
const (
	DefaultFramesInFlight = 3
	DefaultWaitTimeout    = 30 * time.Second
	DefaultPollInterval   = 100 * time.Microsecond
)

// Config configures a Controller.
type Config struct {
	// FramesInFlight is how many frames the CPU may run ahead of the GPU.
	FramesInFlight uint64
	// WaitTimeout bounds BeginFrame. A GPU that does not complete a frame
	// within it is considered lost.
	WaitTimeout time.Duration
	// PollInterval is how often BeginFrame polls the queue while waiting.
	PollInterval time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		FramesInFlight: DefaultFramesInFlight,
		WaitTimeout:    DefaultWaitTimeout,
		PollInterval:   DefaultPollInterval,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FramesInFlight == 0 {
		c.FramesInFlight = d.FramesInFlight
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = d.WaitTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}

// inflight is an ended frame the GPU has not been seen to finish.
type inflight struct {
	frame      uint64
	submission uint64
	retire     []func()
}

// Controller tracks frames in flight on one queue.
//
// Controller is safe for concurrent use, but frames are recorded from a
// single goroutine: BeginFrame, Submit and EndFrame must not race.
type Controller struct {
	queue  Queue
	device Device
	cfg    Config

	mu         sync.Mutex
	frame      uint64
	completed  uint64
	submission uint64
	recording  bool
	retire     []func()
	pending    []inflight
	lost       error
}

// NewController creates a controller for queue. device may be nil, in which
// case WaitIdle only drains what the queue reports as completed.
func NewController(queue Queue, device Device, cfg Config) *Controller {
	return &Controller{
		queue:  queue,
		device: device,
		cfg:    cfg.withDefaults(),
		frame:  1,
	}
}

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// FramesInFlight returns the pacing depth.
func (c *Controller) FramesInFlight() uint64 { return c.cfg.FramesInFlight }

// FrameID returns the id of the frame being recorded, or of the next frame
// between EndFrame and BeginFrame.
func (c *Controller) FrameID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// Slot returns the index of the per-frame resource set of the current frame,
// in [0, FramesInFlight).
func (c *Controller) Slot() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.frame % c.cfg.FramesInFlight)
}

// Completed polls the queue and returns the highest frame id the GPU has
// finished. It is 0 until the first frame completes.
func (c *Controller) Completed() uint64 {
	c.mu.Lock()
	done := c.pollLocked()
	completed := c.completed
	c.mu.Unlock()
	runAll(done)
	return completed
}

// Err returns the DeviceLostError that stopped the controller, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lost
}

// BeginFrame starts recording a frame. It blocks while the frame would be
// more than FramesInFlight ahead of the last completed one. It returns ctx's
// error if ctx ends first and a *DeviceLostError if WaitTimeout expires.
func (c *Controller) BeginFrame(ctx context.Context) error {
	ready, err := c.tryBegin()
	if err != nil || ready {
		return err
	}

	c.mu.Lock()
	frame := c.frame
	c.mu.Unlock()
	slogger().Debug("frame: waiting for GPU", "frame", frame, "framesInFlight", c.cfg.FramesInFlight)

	deadline := time.NewTimer(c.cfg.WaitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			// One last look; the GPU may have finished while the timer fired.
			if ready, err := c.tryBegin(); err != nil || ready {
				return err
			}
			return c.fail("wait", ErrTimeout)
		case <-ticker.C:
			if ready, err := c.tryBegin(); err != nil || ready {
				return err
			}
		}
	}
}

// tryBegin polls once and starts the frame if pacing allows.
func (c *Controller) tryBegin() (bool, error) {
	c.mu.Lock()
	if c.lost != nil {
		c.mu.Unlock()
		return false, c.lost
	}
	if c.recording {
		c.mu.Unlock()
		return false, ErrRecording
	}
	done := c.pollLocked()
	ready := c.frame-c.completed <= c.cfg.FramesInFlight
	if ready {
		c.recording = true
	}
	c.mu.Unlock()
	runAll(done)
	return ready, nil
}

// Submit submits command buffers for the current frame. A failed submission
// is fatal and returned as a *DeviceLostError.
func (c *Controller) Submit(cmds []hal.CommandBuffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lost != nil {
		return c.lost
	}
	if !c.recording {
		return ErrNotRecording
	}
	idx, err := c.queue.Submit(cmds)
	if err != nil {
		return c.failLocked("submit", err)
	}
	c.submission = max(c.submission, idx)
	return nil
}

// Retire runs fn once the GPU has finished the current frame. Callbacks run
// on whichever goroutine observes the completion, in registration order.
func (c *Controller) Retire(fn func()) {
	c.mu.Lock()
	c.retire = append(c.retire, fn)
	c.mu.Unlock()
}

// EndFrame finishes the current frame. A frame that submitted nothing
// completes together with the last submission before it.
func (c *Controller) EndFrame() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		return ErrNotRecording
	}
	c.pending = append(c.pending, inflight{
		frame:      c.frame,
		submission: c.submission,
		retire:     c.retire,
	})
	c.retire = nil
	c.frame++
	c.recording = false
	return nil
}

// WaitIdle blocks until the device has finished all submitted work, then
// runs every outstanding Retire callback, including those registered since
// the last EndFrame when no frame is being recorded. Use it before teardown and before
// recreating resources that frames in flight might still use.
func (c *Controller) WaitIdle() error {
	if c.device != nil {
		if err := c.device.WaitIdle(); err != nil {
			return c.fail("wait idle", err)
		}
	}
	c.mu.Lock()
	done := c.pollLocked()
	if c.device != nil {
		for _, f := range c.pending {
			c.completed = f.frame
			done = append(done, f.retire...)
		}
		c.pending = c.pending[:0]
		if !c.recording {
			done = append(done, c.retire...)
			c.retire = nil
		}
	}
	c.mu.Unlock()
	runAll(done)
	return nil
}

// pollLocked advances completed from the queue and returns the retire
// callbacks of the frames that finished.
func (c *Controller) pollLocked() []func() {
	if len(c.pending) == 0 {
		return nil
	}
	idx := c.queue.PollCompleted()
	var done []func()
	n := 0
	for _, f := range c.pending {
		if f.submission > idx {
			break
		}
		c.completed = f.frame
		done = append(done, f.retire...)
		n++
	}
	if n > 0 {
		c.pending = append(c.pending[:0], c.pending[n:]...)
		slogger().Debug("frame: completed", "frame", c.completed, "submission", idx)
	}
	return done
}

func (c *Controller) fail(op string, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failLocked(op, err)
}

func (c *Controller) failLocked(op string, err error) error {
	if c.lost == nil {
		c.lost = &DeviceLostError{Op: op, Frame: c.frame, Err: err}
		slogger().Error("frame: device lost", "op", op, "frame", c.frame, "err", err)
	}
	return c.lost
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

package rendergraph

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/backend/native"
	"github.com/gogpu/rendergraph/frame"
	"github.com/gogpu/rendergraph/graph"
	"github.com/gogpu/rendergraph/internal/cache"
	"github.com/gogpu/rendergraph/resource"
)

// Renderer errors.
var (
	// ErrNilDevice is returned when creating a renderer without a device.
	ErrNilDevice = errors.New("rendergraph: device is nil")

	// ErrNilQueue is returned when creating a renderer without a queue.
	ErrNilQueue = errors.New("rendergraph: queue is nil")

	// ErrNoHALProvider is returned when a gpucontext.DeviceProvider does not
	// expose its HAL device and queue.
	ErrNoHALProvider = errors.New("rendergraph: provider does not expose HAL types")

	// ErrClosed is returned by a Renderer after Close.
	ErrClosed = errors.New("rendergraph: renderer closed")
)

// FrameStats describes one rendered frame.
type FrameStats struct {
	// Frame is the id of the frame.
	Frame uint64
	// Completed is the last frame the GPU had finished when Frame began.
	Completed uint64
	// Destroyed is the number of deferred destroys carried out for Frame.
	Destroyed int
	// Exec is what the graph recorded.
	Exec graph.ExecStats
	// Pool is the pool occupancy after the frame was submitted.
	Pool resource.PoolStats
}

// Renderer runs compiled render graphs on a HAL device, one frame at a time.
//
// It owns a resource pool and a frame controller sized from the same
// FramesInFlight, so resources destroyed through the pool outlive every
// frame that might still use them.
//
// RenderFrame must be called from a single goroutine. Compile, ShaderModule
// and the pool are safe for concurrent use.
type Renderer struct {
	device        hal.Device
	queue         hal.Queue
	cfg           Config
	opts          rendererOptions
	surfaceFormat gputypes.TextureFormat

	pool    *resource.Pool
	frames  *frame.Controller
	graphs  *cache.Cache[string, *graph.Compiled]
	shaders *cache.Cache[string, hal.ShaderModule]

	mu     sync.Mutex
	closed bool
}

// NewRenderer creates a renderer on device and queue.
func NewRenderer(device hal.Device, queue hal.Queue, cfg Config, opts ...Option) (*Renderer, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if queue == nil {
		return nil, ErrNilQueue
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	r := &Renderer{
		device:  device,
		queue:   queue,
		cfg:     cfg,
		opts:    o,
		pool:    resource.NewPool(device, cfg.PoolConfig()),
		frames:  frame.NewController(queue, device, cfg.FrameConfig()),
		graphs:  cache.New[string, *graph.Compiled](cfg.GraphCacheSize),
		shaders: cache.New[string, hal.ShaderModule](cfg.ShaderCacheSize),
	}
	r.graphs.OnEvict(func(key string, g *graph.Compiled) {
		g.Release(r.frames.FrameID())
	})
	r.shaders.OnEvict(func(_ string, m hal.ShaderModule) {
		r.frames.Retire(func() { r.device.DestroyShaderModule(m) })
	})

	Logger().Info("rendergraph: renderer created",
		"label", o.label,
		"framesInFlight", cfg.FramesInFlight,
		"waitTimeout", cfg.WaitTimeout,
		"strict", cfg.StrictResources)
	return r, nil
}

// NewRendererFromProvider creates a renderer on the device of a host
// application. The provider must implement HalDevice() any and HalQueue()
// any returning hal.Device and hal.Queue.
func NewRendererFromProvider(provider gpucontext.DeviceProvider, cfg Config, opts ...Option) (*Renderer, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALProvider)
	}

	r, err := NewRenderer(device, queue, cfg, opts...)
	if err != nil {
		return nil, err
	}
	r.surfaceFormat = provider.SurfaceFormat()
	return r, nil
}

// Config returns the renderer configuration.
func (r *Renderer) Config() Config { return r.cfg }

// Device returns the HAL device.
func (r *Renderer) Device() hal.Device { return r.device }

// Pool returns the resource pool. Destroy resources through it with the
// current frame id, see Frames.
func (r *Renderer) Pool() *resource.Pool { return r.pool }

// Frames returns the frame controller.
func (r *Renderer) Frames() *frame.Controller { return r.frames }

// SurfaceFormat returns the surface format reported by the provider, or
// gputypes.TextureFormatUndefined for renderers created with NewRenderer.
func (r *Renderer) SurfaceFormat() gputypes.TextureFormat { return r.surfaceFormat }

// NewBuilder returns a graph builder that allocates transients from the
// renderer's pool.
func (r *Renderer) NewBuilder() *graph.Builder {
	return graph.NewBuilder(
		graph.WithAllocator(r.pool),
		graph.WithStrictResources(r.cfg.StrictResources))
}

// Compile returns the compiled graph cached under key, building and
// compiling it on first use. Rebuild a graph whose topology changed by
// calling Invalidate first.
func (r *Renderer) Compile(key string, build func(b *graph.Builder) error) (*graph.Compiled, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	return r.graphs.GetOrCreate(key, func() (*graph.Compiled, error) {
		b := r.NewBuilder()
		if err := build(b); err != nil {
			return nil, fmt.Errorf("rendergraph: build %q: %w", key, err)
		}
		return b.Compile()
	})
}

// Invalidate drops the compiled graph cached under key. Its transient
// resources are destroyed once the frames that used them have completed.
func (r *Renderer) Invalidate(key string) bool {
	return r.graphs.Delete(key)
}

// ShaderModule returns a shader module for WGSL source, compiling it to
// SPIR-V on first use.
func (r *Renderer) ShaderModule(label, wgsl string) (hal.ShaderModule, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	return r.shaders.GetOrCreate(wgsl, func() (hal.ShaderModule, error) {
		spirv, err := naga.Compile(wgsl)
		if err != nil {
			return nil, fmt.Errorf("rendergraph: compile shader %q: %w", label, err)
		}
		code := make([]uint32, len(spirv)/4)
		for i := range code {
			code[i] = binary.LittleEndian.Uint32(spirv[i*4:])
		}
		m, err := r.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  label,
			Source: hal.ShaderSource{SPIRV: code},
		})
		if err != nil {
			return nil, fmt.Errorf("rendergraph: create shader module %q: %w", label, err)
		}
		Logger().Debug("rendergraph: shader compiled", "label", label, "words", len(code))
		return m, nil
	})
}

// RenderFrame records g into a new command buffer and submits it as the
// next frame.
//
// It first waits for a free frame slot and destroys every pool resource
// whose retention window has passed. Errors wrapping frame.ErrDeviceLost are
// fatal: close the renderer and recreate the device. Other errors, such as
// a failing pass, only drop the current frame.
func (r *Renderer) RenderFrame(ctx context.Context, g *graph.Compiled) (FrameStats, error) {
	if r.isClosed() {
		return FrameStats{}, ErrClosed
	}
	if err := r.frames.BeginFrame(ctx); err != nil {
		return FrameStats{}, err
	}

	stats := FrameStats{
		Frame:     r.frames.FrameID(),
		Completed: r.frames.Completed(),
	}
	stats.Destroyed = r.pool.Cleanup(stats.Completed)

	err := r.record(g, &stats)
	if endErr := r.frames.EndFrame(); err == nil {
		err = endErr
	}
	if err != nil {
		return stats, err
	}

	stats.Pool = r.pool.Stats()
	Logger().Debug("rendergraph: frame submitted",
		"frame", stats.Frame,
		"completed", stats.Completed,
		"passes", stats.Exec.Passes,
		"barriers", stats.Exec.Barriers,
		"destroyed", stats.Destroyed)
	if r.opts.onFrame != nil {
		r.opts.onFrame(stats.Frame, stats)
	}
	return stats, nil
}

// record executes g into a fresh encoder and submits the result.
func (r *Renderer) record(g *graph.Compiled, stats *FrameStats) error {
	stream, err := native.Begin(r.device, fmt.Sprintf("%s frame %d", r.opts.label, stats.Frame))
	if err != nil {
		return err
	}
	stats.Exec, err = g.Execute(stream, r.pool)
	if err != nil {
		stream.Discard()
		return err
	}
	cmd, err := stream.Finish()
	if err != nil {
		return err
	}
	if err := r.frames.Submit([]hal.CommandBuffer{cmd}); err != nil {
		return err
	}
	r.frames.Retire(func() { r.device.FreeCommandBuffer(cmd) })
	return nil
}

// Close waits for the GPU, releases cached graphs and shader modules and
// destroys every pool resource. It is safe to call more than once.
func (r *Renderer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	err := r.frames.WaitIdle()
	r.graphs.Clear()
	r.shaders.Clear()
	if idleErr := r.frames.WaitIdle(); err == nil {
		err = idleErr
	}
	r.pool.Destroy()
	if r.opts.ownsDevice {
		r.device.Destroy()
	}

	Logger().Info("rendergraph: renderer closed", "label", r.opts.label, "frames", r.frames.FrameID()-1)
	return err
}

func (r *Renderer) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

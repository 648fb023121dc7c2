package rendergraph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/rendergraph/frame"
	"github.com/gogpu/rendergraph/graph"
	"github.com/gogpu/rendergraph/resource"
)

// createNoopDevice creates a noop HAL device and queue for testing.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device, openDev.Queue
}

func newTestRenderer(t *testing.T, cfg Config, opts ...Option) *Renderer {
	t.Helper()
	device, queue := createNoopDevice(t)
	r, err := NewRenderer(device, queue, cfg, opts...)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// testScene is the Upload -> Shade -> Present frame on pool resources.
type testScene struct {
	buffer resource.BufferHandle
	image  resource.ImageHandle
	view   resource.ImageViewHandle
	ran    []string
}

func newTestScene(t *testing.T, r *Renderer) *testScene {
	t.Helper()
	s := &testScene{}
	var err error
	s.buffer, err = r.Pool().CreateBuffer(resource.BufferDesc{
		Label: "B",
		Size:  1024,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	s.image, err = r.Pool().CreateImage(resource.ImageDesc{
		Label:  "I",
		Width:  64,
		Height: 64,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageStorageBinding | gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	s.view, err = r.Pool().GetOrCreateView(s.image, resource.ViewDesc{}, "I_view")
	if err != nil {
		t.Fatalf("GetOrCreateView: %v", err)
	}
	return s
}

func (s *testScene) build(b *graph.Builder) error {
	vb := b.ImportBuffer("B", s.buffer, graph.BufferUndefined)
	ci := b.ImportImage("I", s.image, s.view, gputypes.TextureFormatRGBA8Unorm, graph.ImageUndefined)
	mark := func(ctx *graph.PassContext) error {
		s.ran = append(s.ran, ctx.Name())
		return nil
	}
	b.AddPassFunc("Present", func(pb *graph.PassBuilder) { pb.ReadImage(ci, graph.ImagePresent) }, mark)
	b.AddPassFunc("Shade", func(pb *graph.PassBuilder) {
		pb.ReadBuffer(vb, graph.BufferStorageReadCompute)
		pb.WriteImage(ci, graph.ImageStorageWriteCompute)
	}, mark)
	b.AddPassFunc("Upload", func(pb *graph.PassBuilder) { pb.WriteBuffer(vb, graph.BufferTransferDst) }, mark)
	return nil
}

func TestNewRendererErrors(t *testing.T) {
	device, queue := createNoopDevice(t)
	bad := DefaultConfig()
	bad.FramesInFlight = 0

	tests := []struct {
		name   string
		device hal.Device
		queue  hal.Queue
		cfg    Config
		want   error
	}{
		{"nil device", nil, queue, DefaultConfig(), ErrNilDevice},
		{"nil queue", device, nil, DefaultConfig(), ErrNilQueue},
		{"invalid config", device, queue, bad, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRenderer(tt.device, tt.queue, tt.cfg); !errors.Is(err, tt.want) {
				t.Errorf("NewRenderer err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRenderFrame(t *testing.T) {
	var observed []uint64
	r := newTestRenderer(t, DefaultConfig(),
		WithLabel("test"),
		WithFrameObserver(func(id uint64, _ FrameStats) { observed = append(observed, id) }))
	s := newTestScene(t, r)

	g, err := r.Compile("main", s.build)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for i := 1; i <= 5; i++ {
		stats, err := r.RenderFrame(context.Background(), g)
		if err != nil {
			t.Fatalf("RenderFrame %d: %v", i, err)
		}
		if stats.Frame != uint64(i) {
			t.Errorf("frame %d: Frame = %d", i, stats.Frame)
		}
		// The noop queue completes every submission immediately.
		if stats.Completed != uint64(i-1) {
			t.Errorf("frame %d: Completed = %d, want %d", i, stats.Completed, i-1)
		}
		if stats.Exec.Passes != 3 || stats.Exec.Barriers != 4 {
			t.Errorf("frame %d: exec = %+v, want 3 passes, 4 barriers", i, stats.Exec)
		}
		if stats.Pool.Buffers != 1 || stats.Pool.Images != 1 || stats.Pool.ImageViews != 1 {
			t.Errorf("frame %d: pool = %v", i, stats.Pool)
		}
	}

	want := []string{"Upload", "Shade", "Present"}
	for i, name := range s.ran {
		if name != want[i%3] {
			t.Fatalf("passes ran in order %v, want repetitions of %v", s.ran, want)
		}
	}
	if len(s.ran) != 15 || len(observed) != 5 {
		t.Errorf("%d pass callbacks and %d observed frames, want 15 and 5", len(s.ran), len(observed))
	}
}

func TestRenderFrameDeferredDestroy(t *testing.T) {
	r := newTestRenderer(t, DefaultConfig())
	s := newTestScene(t, r)
	g, err := r.Compile("main", s.build)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if _, err := r.RenderFrame(context.Background(), g); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	// Frame 1 was the last to use the buffer.
	r.Pool().DestroyBuffer(s.buffer, 1)

	// Frames 2-4 see completed frames 1-3; the buffer must survive them.
	for f := 2; f <= 4; f++ {
		stats, err := r.RenderFrame(context.Background(), g)
		if err != nil {
			t.Fatalf("RenderFrame %d: %v", f, err)
		}
		if stats.Destroyed != 0 {
			t.Errorf("frame %d destroyed %d resources inside the retention window", f, stats.Destroyed)
		}
	}
	if _, ok := r.Pool().Buffer(s.buffer); !ok {
		t.Fatal("buffer destroyed before its retention window passed")
	}

	// Frame 5 sees completed frame 4 = 1 + FramesInFlight. From then on the
	// passes that need the buffer are skipped.
	stats, err := r.RenderFrame(context.Background(), g)
	if err != nil {
		t.Fatalf("RenderFrame 5: %v", err)
	}
	if stats.Destroyed != 1 {
		t.Errorf("frame 5 destroyed %d resources, want 1", stats.Destroyed)
	}
	if _, ok := r.Pool().Buffer(s.buffer); ok {
		t.Error("buffer still alive after its retention window")
	}
	if got := stats.Exec.Skipped; len(got) != 2 {
		t.Errorf("Skipped = %v, want Upload and Shade", got)
	}
}

func TestCompileCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GraphCacheSize = 1
	r := newTestRenderer(t, cfg)

	builds := 0
	transient := func(b *graph.Builder) error {
		builds++
		b.AddPassFunc("scratch", func(pb *graph.PassBuilder) {
			h := pb.CreateBuffer("scratch", resource.BufferDesc{Size: 64, Usage: gputypes.BufferUsageStorage})
			pb.WriteBuffer(h, graph.BufferStorageWriteCompute)
		}, nil)
		return nil
	}

	g1, err := r.Compile("a", transient)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	g2, _ := r.Compile("a", transient)
	if g1 != g2 || builds != 1 {
		t.Errorf("Compile did not reuse the cached graph (%d builds)", builds)
	}

	// A second key evicts the first, which releases its transient buffer.
	if _, err := r.Compile("b", transient); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got := r.Pool().Pending(); got != 1 {
		t.Errorf("Pending() = %d after eviction, want 1", got)
	}

	if !r.Invalidate("b") || r.Invalidate("b") {
		t.Error("Invalidate should succeed exactly once")
	}

	errBuild := errors.New("bad topology")
	if _, err := r.Compile("c", func(*graph.Builder) error { return errBuild }); !errors.Is(err, errBuild) {
		t.Errorf("Compile err = %v, want errBuild", err)
	}
}

const doubleWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = data[id.x] * 2u;
}
`

func TestShaderModule(t *testing.T) {
	r := newTestRenderer(t, DefaultConfig())

	m, err := r.ShaderModule("double", doubleWGSL)
	if err != nil {
		t.Fatalf("ShaderModule: %v", err)
	}
	if m == nil {
		t.Fatal("ShaderModule returned nil")
	}
	if _, err := r.ShaderModule("double", doubleWGSL); err != nil {
		t.Fatalf("ShaderModule: %v", err)
	}
	if s := r.shaders.Stats(); s.Misses != 1 || s.Hits != 1 {
		t.Errorf("shader cache stats = %+v, want one compile", s)
	}

	if _, err := r.ShaderModule("broken", "fn main( {"); err == nil {
		t.Error("invalid WGSL compiled")
	}
}

// lostQueue fails every submission.
type lostQueue struct{ hal.Queue }

func (lostQueue) Submit([]hal.CommandBuffer) (uint64, error) { return 0, hal.ErrDeviceLost }

func TestRenderFrameDeviceLost(t *testing.T) {
	device, queue := createNoopDevice(t)
	r, err := NewRenderer(device, lostQueue{queue}, DefaultConfig())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	g, err := r.Compile("empty", func(b *graph.Builder) error {
		b.AddPassFunc("noop", nil, nil)
		return nil
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	_, err = r.RenderFrame(context.Background(), g)
	if !errors.Is(err, frame.ErrDeviceLost) || !errors.Is(err, hal.ErrDeviceLost) {
		t.Fatalf("RenderFrame err = %v, want device lost", err)
	}
	if _, err := r.RenderFrame(context.Background(), g); !errors.Is(err, frame.ErrDeviceLost) {
		t.Errorf("second RenderFrame err = %v, want device lost", err)
	}
	_ = r.Close()
}

func TestRenderFramePassError(t *testing.T) {
	r := newTestRenderer(t, DefaultConfig())
	fail := true
	errPass := errors.New("pass failed")
	g, err := r.Compile("flaky", func(b *graph.Builder) error {
		b.AddPassFunc("flaky", nil, func(*graph.PassContext) error {
			if fail {
				return errPass
			}
			return nil
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if _, err := r.RenderFrame(context.Background(), g); !errors.Is(err, errPass) {
		t.Fatalf("RenderFrame err = %v, want errPass", err)
	}
	fail = false
	stats, err := r.RenderFrame(context.Background(), g)
	if err != nil {
		t.Fatalf("RenderFrame after a failed frame: %v", err)
	}
	if stats.Frame != 2 {
		t.Errorf("Frame = %d, want 2", stats.Frame)
	}
}

func TestRenderFrameContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FramesInFlight = 1
	cfg.WaitTimeout = time.Minute
	device, queue := createNoopDevice(t)
	r, err := NewRenderer(device, stalledQueue{queue}, cfg)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	g, _ := r.Compile("g", func(b *graph.Builder) error { b.AddPassFunc("p", nil, nil); return nil })
	if _, err := r.RenderFrame(context.Background(), g); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := r.RenderFrame(ctx, g); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("RenderFrame err = %v, want context.DeadlineExceeded", err)
	}
}

// stalledQueue accepts submissions but never completes them.
type stalledQueue struct{ hal.Queue }

func (stalledQueue) PollCompleted() uint64 { return 0 }

func TestClose(t *testing.T) {
	device, queue := createNoopDevice(t)
	r, err := NewRenderer(device, queue, DefaultConfig())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	s := newTestScene(t, r)
	g, _ := r.Compile("main", s.build)
	if _, err := r.RenderFrame(context.Background(), g); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if st := r.Pool().Stats(); st.Buffers+st.Images+st.ImageViews != 0 {
		t.Errorf("pool not empty after Close: %v", st)
	}
	if _, err := r.RenderFrame(context.Background(), g); !errors.Is(err, ErrClosed) {
		t.Errorf("RenderFrame after Close = %v, want ErrClosed", err)
	}
	if _, err := r.Compile("x", s.build); !errors.Is(err, ErrClosed) {
		t.Errorf("Compile after Close = %v, want ErrClosed", err)
	}
}

// fakeProvider is a host application exposing HAL types.
type fakeProvider struct {
	device hal.Device
	queue  hal.Queue
}

func (p fakeProvider) Device() gpucontext.Device { return nil }
func (p fakeProvider) Queue() gpucontext.Queue { return nil }
func (p fakeProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }
func (p fakeProvider) Adapter() gpucontext.Adapter { return nil }
func (p fakeProvider) AdapterInfo() gpucontext.AdapterInfo { return gpucontext.AdapterInfo{} }
func (p fakeProvider) HalDevice() any { return p.device }
func (p fakeProvider) HalQueue() any { return p.queue }

// plainProvider does not expose HAL types.
type plainProvider struct{ fakeProvider }

func (plainProvider) HalDevice() {}

func TestNewRendererFromProvider(t *testing.T) {
	device, queue := createNoopDevice(t)

	r, err := NewRendererFromProvider(fakeProvider{device, queue}, DefaultConfig())
	if err != nil {
		t.Fatalf("NewRendererFromProvider: %v", err)
	}
	defer r.Close()
	if r.SurfaceFormat() != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("SurfaceFormat() = %v", r.SurfaceFormat())
	}
	if r.Device() != device {
		t.Error("renderer does not use the provider's device")
	}

	if _, err := NewRendererFromProvider(plainProvider{}, DefaultConfig()); !errors.Is(err, ErrNoHALProvider) {
		t.Errorf("plain provider err = %v, want ErrNoHALProvider", err)
	}
	if _, err := NewRendererFromProvider(fakeProvider{}, DefaultConfig()); !errors.Is(err, ErrNoHALProvider) {
		t.Errorf("nil HAL device err = %v, want ErrNoHALProvider", err)
	}
}

package graph

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph/resource"
)

// Builder errors.
var (
	// ErrUnknownResource is returned when a pass declares a handle the
	// builder did not issue.
	ErrUnknownResource = errors.New("graph: unknown resource handle")

	// ErrInvalidPass is returned for malformed pass declarations.
	ErrInvalidPass = errors.New("graph: invalid pass")

	// ErrNoAllocator is returned when transients are declared without an
	// allocator.
	ErrNoAllocator = errors.New("graph: transient resources need an allocator")

	// ErrMissingResource is the panic value, wrapped, when a strict graph
	// cannot resolve a declared resource.
	ErrMissingResource = errors.New("graph: required resource missing")
)

// Allocator creates and releases the transient resources of a graph.
// *resource.Pool implements it.
type Allocator interface {
	CreateImage(desc resource.ImageDesc) (resource.ImageHandle, error)
	CreateBuffer(desc resource.BufferDesc) (resource.BufferHandle, error)
	GetOrCreateView(image resource.ImageHandle, desc resource.ViewDesc, label string) (resource.ImageViewHandle, error)
	DestroyImage(h resource.ImageHandle, frame uint64)
	DestroyBuffer(h resource.BufferHandle, frame uint64)
	DestroyImageImmediate(h resource.ImageHandle) bool
	DestroyBufferImmediate(h resource.BufferHandle) bool
}

var _ Allocator = (*resource.Pool)(nil)

// Builder collects imported resources and passes and compiles them into an
// executable graph.
//
// Compile may be called more than once; every call allocates its own
// transient resources. A Builder is not safe for concurrent use.
type Builder struct {
	opts   builderOptions
	reg    registry
	passes []*passNode
	err    error
}

// NewBuilder creates an empty builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(&b.opts)
	}
	return b
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// ImportImage makes a pool image available to the graph. view may be the
// zero handle. initial is the state the image is in when the graph starts;
// use ImageUndefined for images whose contents need not be preserved.
func (b *Builder) ImportImage(name string, image resource.ImageHandle, view resource.ImageViewHandle, format gputypes.TextureFormat, initial ImageState) ImageHandle {
	return b.reg.addImage(imageEntry{
		name:    name,
		image:   image,
		view:    view,
		format:  format,
		initial: initial,
	})
}

// ImportSurface imports a swapchain image in the surface format reported by
// the host application. Its previous contents are discarded.
func (b *Builder) ImportSurface(name string, provider gpucontext.DeviceProvider, image resource.ImageHandle, view resource.ImageViewHandle) ImageHandle {
	return b.ImportImage(name, image, view, provider.SurfaceFormat(), ImageUndefined)
}

// ImportBuffer makes a pool buffer available to the graph. initial is the
// state the buffer is in when the graph starts; use BufferUndefined for
// buffers whose contents need not be preserved.
func (b *Builder) ImportBuffer(name string, buffer resource.BufferHandle, initial BufferState) BufferHandle {
	return b.reg.addBuffer(bufferEntry{
		name:    name,
		buffer:  buffer,
		initial: initial,
	})
}

// AddPass adds p and runs its Setup. Passes are immutable afterwards.
func (b *Builder) AddPass(name string, p Pass) {
	if name == "" {
		b.fail(fmt.Errorf("%w: pass %d has no name", ErrInvalidPass, len(b.passes)))
		return
	}
	if p == nil {
		b.fail(fmt.Errorf("%w: pass %q is nil", ErrInvalidPass, name))
		return
	}
	node := &passNode{name: name, pass: p}
	p.Setup(&PassBuilder{b: b, node: node})
	b.passes = append(b.passes, node)
}

// AddPassFunc adds a pass built from a setup and an execute closure.
func (b *Builder) AddPassFunc(name string, setup func(*PassBuilder), exec PassFunc) {
	b.AddPass(name, funcPass{setup: setup, exec: exec})
}

// Compile analyzes dependencies, orders the passes, allocates transient
// resources and precomputes every barrier. The result can be executed any
// number of times.
func (b *Builder) Compile() (*Compiled, error) {
	if b.err != nil {
		return nil, b.err
	}

	deps := Analyze(b.dependencyInput())
	order, err := deps.TopologicalSort()
	if err != nil {
		var ce *CycleError
		if errors.As(err, &ce) {
			for _, i := range ce.Indices {
				ce.Passes = append(ce.Passes, b.passes[i].name)
			}
		}
		return nil, err
	}

	reg := b.reg.clone()
	if err := b.allocateTransients(&reg); err != nil {
		return nil, err
	}

	c := &Compiled{
		reg:      reg,
		passes:   b.passes,
		order:    order,
		barriers: computeBarriers(&reg, b.passes, order),
		deps:     deps,
		alloc:    b.opts.allocator,
		strict:   b.opts.strict,
		log:      b.opts.logger,
		released: new(atomic.Bool),
	}

	logger(b.opts.logger).Info("graph: compiled",
		"passes", len(c.passes),
		"images", len(reg.images),
		"buffers", len(reg.buffers),
		"barriers", c.BarrierCount())
	return c, nil
}

func (b *Builder) dependencyInput() DependencyInput {
	n := len(b.passes)
	in := DependencyInput{
		PassCount:    n,
		ImageReads:   make([][]ImageHandle, n),
		ImageWrites:  make([][]ImageHandle, n),
		BufferReads:  make([][]BufferHandle, n),
		BufferWrites: make([][]BufferHandle, n),
	}
	for i, p := range b.passes {
		for _, a := range p.images {
			if a.write {
				in.ImageWrites[i] = append(in.ImageWrites[i], a.handle)
			} else {
				in.ImageReads[i] = append(in.ImageReads[i], a.handle)
			}
		}
		for _, a := range p.buffers {
			if a.write {
				in.BufferWrites[i] = append(in.BufferWrites[i], a.handle)
			} else {
				in.BufferReads[i] = append(in.BufferReads[i], a.handle)
			}
		}
	}
	in.UninitializedImages, in.UninitializedBuffers = b.reg.uninitialized()
	return in
}

// allocateTransients creates every transient resource in reg. On failure the
// resources allocated so far are released immediately; none of them has been
// used by the GPU yet.
func (b *Builder) allocateTransients(reg *registry) (err error) {
	alloc := b.opts.allocator
	var imgs []resource.ImageHandle
	var bufs []resource.BufferHandle
	defer func() {
		if err == nil {
			return
		}
		for _, h := range imgs {
			alloc.DestroyImageImmediate(h)
		}
		for _, h := range bufs {
			alloc.DestroyBufferImmediate(h)
		}
	}()

	for i := range reg.images {
		e := &reg.images[i]
		if e.transient == nil {
			continue
		}
		if alloc == nil {
			return fmt.Errorf("%w: image %q", ErrNoAllocator, e.name)
		}
		h, err := alloc.CreateImage(*e.transient)
		if err != nil {
			return fmt.Errorf("graph: transient image %q: %w", e.name, err)
		}
		imgs = append(imgs, h)
		v, err := alloc.GetOrCreateView(h, resource.ViewDesc{}, e.name)
		if err != nil {
			return fmt.Errorf("graph: transient image %q view: %w", e.name, err)
		}
		e.image, e.view = h, v
	}
	for i := range reg.buffers {
		e := &reg.buffers[i]
		if e.transient == nil {
			continue
		}
		if alloc == nil {
			return fmt.Errorf("%w: buffer %q", ErrNoAllocator, e.name)
		}
		h, err := alloc.CreateBuffer(*e.transient)
		if err != nil {
			return fmt.Errorf("graph: transient buffer %q: %w", e.name, err)
		}
		bufs = append(bufs, h)
		e.buffer = h
	}
	return nil
}

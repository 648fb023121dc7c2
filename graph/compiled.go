package graph

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/rendergraph/resource"
)

// ResourceAccessor resolves pool handles to live resources. *resource.Pool
// implements it.
type ResourceAccessor interface {
	Image(h resource.ImageHandle) (*resource.Image, bool)
	ImageView(h resource.ImageViewHandle) (*resource.ImageView, bool)
	Buffer(h resource.BufferHandle) (*resource.Buffer, bool)
}

var _ ResourceAccessor = (*resource.Pool)(nil)

// ResolvedImageBarrier is an ImageBarrier bound to the live image.
type ResolvedImageBarrier struct {
	Name  string
	Image *resource.Image
	Src   ImageState
	Dst   ImageState
}

// ResolvedBufferBarrier is a BufferBarrier bound to the live buffer.
type ResolvedBufferBarrier struct {
	Name   string
	Buffer *resource.Buffer
	Src    BufferState
	Dst    BufferState
}

// CommandStream receives the synchronization commands of a graph execution.
// Passes record their own work through whatever concrete stream they were
// given, see PassContext.Stream.
type CommandStream interface {
	// PipelineBarrier records all barriers of one pass as a single batch.
	// The slices are only valid for the duration of the call.
	PipelineBarrier(images []ResolvedImageBarrier, buffers []ResolvedBufferBarrier)
}

// Labeler is implemented by streams that support debug labels. Execute
// wraps every pass in a label named after it.
type Labeler interface {
	BeginLabel(name string)
	EndLabel()
}

// ExecStats summarizes one execution.
type ExecStats struct {
	Passes   int
	Barriers int
	// Skipped names the passes whose callbacks did not run because a
	// declared resource could not be resolved.
	Skipped []string
}

// Compiled is an immutable, replayable render graph.
//
// Execute only reads the compiled state, so one Compiled may be executed from
// several goroutines at once, each with its own stream.
type Compiled struct {
	reg      registry
	passes   []*passNode
	order    []int
	barriers []PassBarriers
	deps     *DependencyGraph
	alloc    Allocator
	strict   bool
	log      *slog.Logger

	released *atomic.Bool
}

// Order returns the execution order as declaration indices.
func (c *Compiled) Order() []int { return append([]int(nil), c.order...) }

// PassNames returns the pass names in execution order.
func (c *Compiled) PassNames() []string {
	out := make([]string, len(c.order))
	for i, p := range c.order {
		out[i] = c.passes[p].name
	}
	return out
}

// PassName returns the name of the pass with declaration index i.
func (c *Compiled) PassName(i int) string { return c.passes[i].name }

// Barriers returns the barriers recorded before the pass with declaration
// index i.
func (c *Compiled) Barriers(i int) PassBarriers { return c.barriers[i] }

// BarrierCount returns the number of barriers recorded per execution.
func (c *Compiled) BarrierCount() int {
	n := 0
	for _, b := range c.barriers {
		n += b.Len()
	}
	return n
}

// Dependencies returns the dependency graph the order was derived from.
func (c *Compiled) Dependencies() *DependencyGraph { return c.deps }

// ImageName returns the name h was imported or created with.
func (c *Compiled) ImageName(h ImageHandle) string { return c.reg.imageName(h) }

// BufferName returns the name h was imported or created with.
func (c *Compiled) BufferName(h BufferHandle) string { return c.reg.bufferName(h) }

// PoolImage returns the pool handles behind a graph image. For transients
// these are the resources allocated at compile time.
func (c *Compiled) PoolImage(h ImageHandle) (resource.ImageHandle, resource.ImageViewHandle, bool) {
	e, ok := c.reg.image(h)
	if !ok {
		return resource.ImageHandle{}, resource.ImageViewHandle{}, false
	}
	return e.image, e.view, true
}

// PoolBuffer returns the pool handle behind a graph buffer.
func (c *Compiled) PoolBuffer(h BufferHandle) (resource.BufferHandle, bool) {
	e, ok := c.reg.buffer(h)
	if !ok {
		return resource.BufferHandle{}, false
	}
	return e.buffer, true
}

// RebindImage returns a copy of c in which the imported image h refers to
// new pool resources, for example after the swapchain was recreated. The
// order and barriers are shared with c.
func (c *Compiled) RebindImage(h ImageHandle, image resource.ImageHandle, view resource.ImageViewHandle) (*Compiled, error) {
	e, ok := c.reg.image(h)
	if !ok {
		return nil, fmt.Errorf("%w: image %s", ErrUnknownResource, h)
	}
	if e.transient != nil {
		return nil, fmt.Errorf("%w: image %q is transient", ErrInvalidPass, e.name)
	}
	cp := *c
	cp.reg = c.reg.clone()
	cp.reg.images[h.index()].image = image
	cp.reg.images[h.index()].view = view
	return &cp, nil
}

// RebindBuffer is RebindImage for buffers.
func (c *Compiled) RebindBuffer(h BufferHandle, buffer resource.BufferHandle) (*Compiled, error) {
	e, ok := c.reg.buffer(h)
	if !ok {
		return nil, fmt.Errorf("%w: buffer %s", ErrUnknownResource, h)
	}
	if e.transient != nil {
		return nil, fmt.Errorf("%w: buffer %q is transient", ErrInvalidPass, e.name)
	}
	cp := *c
	cp.reg = c.reg.clone()
	cp.reg.buffers[h.index()].buffer = buffer
	return &cp, nil
}

// Release schedules the transient resources of the graph for destruction
// after frame, the last frame that executed it. Later calls do nothing.
func (c *Compiled) Release(frame uint64) {
	if c.alloc == nil || c.released.Swap(true) {
		return
	}
	for _, e := range c.reg.images {
		if e.transient != nil {
			c.alloc.DestroyImage(e.image, frame)
		}
	}
	for _, e := range c.reg.buffers {
		if e.transient != nil {
			c.alloc.DestroyBuffer(e.buffer, frame)
		}
	}
}

// resolvedImage is a graph image bound to live resources for one execution.
type resolvedImage struct {
	image *resource.Image
	view  *resource.ImageView
	ok    bool
}

// PassContext is what a pass sees while it records. It only exposes the
// resources the pass declared.
type PassContext struct {
	node    *passNode
	stream  CommandStream
	images  []resolvedImage
	buffers []*resource.Buffer
}

// Name returns the pass name.
func (ctx *PassContext) Name() string { return ctx.node.name }

// Stream returns the stream the graph is executed against.
func (ctx *PassContext) Stream() CommandStream { return ctx.stream }

// Image returns the live image behind h if the pass declared it.
func (ctx *PassContext) Image(h ImageHandle) (*resource.Image, bool) {
	if !ctx.node.declaresImage(h) {
		return nil, false
	}
	r := ctx.images[h.index()]
	return r.image, r.ok
}

// ImageView returns the live view behind h if the pass declared h and the
// image has a view.
func (ctx *PassContext) ImageView(h ImageHandle) (*resource.ImageView, bool) {
	if !ctx.node.declaresImage(h) {
		return nil, false
	}
	r := ctx.images[h.index()]
	return r.view, r.ok && r.view != nil
}

// Buffer returns the live buffer behind h if the pass declared it.
func (ctx *PassContext) Buffer(h BufferHandle) (*resource.Buffer, bool) {
	if !ctx.node.declaresBuffer(h) {
		return nil, false
	}
	b := ctx.buffers[h.index()]
	return b, b != nil
}

// Execute replays the graph against stream, resolving every resource through
// acc. Passes run in the compiled order, each preceded by one batched barrier
// command. A pass whose declared resources cannot all be resolved is skipped
// for this execution, or panics if the graph is strict. The first error
// returned by a pass aborts the execution.
func (c *Compiled) Execute(stream CommandStream, acc ResourceAccessor) (ExecStats, error) {
	images := make([]resolvedImage, len(c.reg.images))
	for i, e := range c.reg.images {
		r := resolvedImage{}
		r.image, r.ok = acc.Image(e.image)
		if r.ok && !e.view.IsZero() {
			var vok bool
			r.view, vok = acc.ImageView(e.view)
			r.ok = vok
		}
		images[i] = r
	}
	buffers := make([]*resource.Buffer, len(c.reg.buffers))
	for i, e := range c.reg.buffers {
		if b, ok := acc.Buffer(e.buffer); ok {
			buffers[i] = b
		}
	}

	labeler, _ := stream.(Labeler)
	stats := ExecStats{Passes: len(c.order)}
	var imgBarriers []ResolvedImageBarrier
	var bufBarriers []ResolvedBufferBarrier

	for _, p := range c.order {
		node := c.passes[p]
		if labeler != nil {
			labeler.BeginLabel(node.name)
		}

		missing := c.missingResource(node, images, buffers)
		if missing != "" && c.strict {
			panic(fmt.Errorf("%w: pass %q needs %s", ErrMissingResource, node.name, missing))
		}

		imgBarriers, bufBarriers = imgBarriers[:0], bufBarriers[:0]
		pb := c.barriers[p]
		for _, b := range pb.Images {
			r := images[b.Image.index()]
			if !r.ok {
				continue
			}
			imgBarriers = append(imgBarriers, ResolvedImageBarrier{
				Name:  c.reg.images[b.Image.index()].name,
				Image: r.image,
				Src:   b.Src,
				Dst:   b.Dst,
			})
		}
		for _, b := range pb.Buffers {
			buf := buffers[b.Buffer.index()]
			if buf == nil {
				continue
			}
			bufBarriers = append(bufBarriers, ResolvedBufferBarrier{
				Name:   c.reg.buffers[b.Buffer.index()].name,
				Buffer: buf,
				Src:    b.Src,
				Dst:    b.Dst,
			})
		}
		if len(imgBarriers)+len(bufBarriers) > 0 {
			stream.PipelineBarrier(imgBarriers, bufBarriers)
			stats.Barriers += len(imgBarriers) + len(bufBarriers)
		}

		if missing != "" {
			logger(c.log).Warn("graph: pass skipped", "pass", node.name, "missing", missing)
			stats.Skipped = append(stats.Skipped, node.name)
		} else {
			ctx := &PassContext{node: node, stream: stream, images: images, buffers: buffers}
			if err := node.pass.Execute(ctx); err != nil {
				if labeler != nil {
					labeler.EndLabel()
				}
				return stats, fmt.Errorf("graph: pass %q: %w", node.name, err)
			}
		}

		if labeler != nil {
			labeler.EndLabel()
		}
	}

	logger(c.log).Debug("graph: executed", "passes", stats.Passes, "barriers", stats.Barriers, "skipped", len(stats.Skipped))
	return stats, nil
}

// missingResource returns a description of the first declared resource of
// node that did not resolve, or "".
func (c *Compiled) missingResource(node *passNode, images []resolvedImage, buffers []*resource.Buffer) string {
	for _, a := range node.images {
		if !images[a.handle.index()].ok {
			return fmt.Sprintf("image %q", c.reg.images[a.handle.index()].name)
		}
	}
	for _, a := range node.buffers {
		if buffers[a.handle.index()] == nil {
			return fmt.Sprintf("buffer %q", c.reg.buffers[a.handle.index()].name)
		}
	}
	return ""
}

package graph

import (
	"fmt"

	"github.com/gogpu/rendergraph/resource"
)

// Pass is a unit of GPU work.
//
// Setup runs once, when the pass is added to a Builder, and declares every
// resource the pass touches. Execute runs every time the compiled graph is
// replayed and records the pass's commands.
type Pass interface {
	Setup(b *PassBuilder)
	Execute(ctx *PassContext) error
}

// PassFunc records a pass's commands.
type PassFunc func(ctx *PassContext) error

// funcPass adapts a pair of closures to Pass.
type funcPass struct {
	setup func(*PassBuilder)
	exec  PassFunc
}

func (p funcPass) Setup(b *PassBuilder) {
	if p.setup != nil {
		p.setup(b)
	}
}

func (p funcPass) Execute(ctx *PassContext) error {
	if p.exec == nil {
		return nil
	}
	return p.exec(ctx)
}

type imageAccess struct {
	handle ImageHandle
	state  ImageState
	write  bool
}

type bufferAccess struct {
	handle BufferHandle
	state  BufferState
	write  bool
}

// passNode is a pass and its merged declarations. Immutable after Setup.
type passNode struct {
	name    string
	pass    Pass
	images  []imageAccess
	buffers []bufferAccess
}

func (n *passNode) declaresImage(h ImageHandle) bool {
	for _, a := range n.images {
		if a.handle == h {
			return true
		}
	}
	return false
}

func (n *passNode) declaresBuffer(h BufferHandle) bool {
	for _, a := range n.buffers {
		if a.handle == h {
			return true
		}
	}
	return false
}

// PassBuilder collects the declarations of one pass during Setup.
type PassBuilder struct {
	b    *Builder
	node *passNode
}

// Name returns the name of the pass being set up.
func (pb *PassBuilder) Name() string { return pb.node.name }

// ReadImage declares that the pass reads h in state.
func (pb *PassBuilder) ReadImage(h ImageHandle, state ImageState) {
	pb.declareImage(h, state, false)
}

// WriteImage declares that the pass writes h in state.
func (pb *PassBuilder) WriteImage(h ImageHandle, state ImageState) {
	pb.declareImage(h, state, true)
}

// ReadWriteImage declares that the pass reads and writes h in state. The pass
// counts as a writer of h.
func (pb *PassBuilder) ReadWriteImage(h ImageHandle, state ImageState) {
	pb.declareImage(h, state, true)
}

// ReadBuffer declares that the pass reads h in state.
func (pb *PassBuilder) ReadBuffer(h BufferHandle, state BufferState) {
	pb.declareBuffer(h, state, false)
}

// WriteBuffer declares that the pass writes h in state.
func (pb *PassBuilder) WriteBuffer(h BufferHandle, state BufferState) {
	pb.declareBuffer(h, state, true)
}

// ReadWriteBuffer declares that the pass reads and writes h in state.
func (pb *PassBuilder) ReadWriteBuffer(h BufferHandle, state BufferState) {
	pb.declareBuffer(h, state, true)
}

// CreateImage declares a transient image owned by the graph. It is allocated
// when the graph is compiled and released by Compiled.Release. The caller
// still has to declare the pass's access to it.
func (pb *PassBuilder) CreateImage(name string, desc resource.ImageDesc) ImageHandle {
	if desc.Label == "" {
		desc.Label = name
	}
	return pb.b.reg.addImage(imageEntry{
		name:      name,
		format:    desc.Format,
		initial:   ImageUndefined,
		transient: &desc,
	})
}

// CreateBuffer declares a transient buffer owned by the graph.
func (pb *PassBuilder) CreateBuffer(name string, desc resource.BufferDesc) BufferHandle {
	if desc.Label == "" {
		desc.Label = name
	}
	return pb.b.reg.addBuffer(bufferEntry{
		name:      name,
		initial:   BufferUndefined,
		transient: &desc,
	})
}

// declareImage merges a declaration into the pass. A write replaces an
// earlier read of the same image; two declarations of the same kind are
// combined and must agree on the layout.
func (pb *PassBuilder) declareImage(h ImageHandle, state ImageState, write bool) {
	if _, ok := pb.b.reg.image(h); !ok {
		pb.b.fail(fmt.Errorf("%w: pass %q declares image %s", ErrUnknownResource, pb.node.name, h))
		return
	}
	for i := range pb.node.images {
		a := &pb.node.images[i]
		if a.handle != h {
			continue
		}
		switch {
		case write && !a.write:
			*a = imageAccess{handle: h, state: state, write: true}
		case write == a.write:
			if a.state.Layout != state.Layout {
				pb.b.fail(fmt.Errorf("%w: pass %q requires image %q in both %s and %s",
					ErrInvalidPass, pb.node.name, pb.b.reg.imageName(h), a.state.Layout, state.Layout))
				return
			}
			a.state.Stage |= state.Stage
			a.state.Access |= state.Access
		}
		return
	}
	pb.node.images = append(pb.node.images, imageAccess{handle: h, state: state, write: write})
}

func (pb *PassBuilder) declareBuffer(h BufferHandle, state BufferState, write bool) {
	if _, ok := pb.b.reg.buffer(h); !ok {
		pb.b.fail(fmt.Errorf("%w: pass %q declares buffer %s", ErrUnknownResource, pb.node.name, h))
		return
	}
	for i := range pb.node.buffers {
		a := &pb.node.buffers[i]
		if a.handle != h {
			continue
		}
		switch {
		case write && !a.write:
			*a = bufferAccess{handle: h, state: state, write: true}
		case write == a.write:
			a.state.Stage |= state.Stage
			a.state.Access |= state.Access
		}
		return
	}
	pb.node.buffers = append(pb.node.buffers, bufferAccess{handle: h, state: state, write: write})
}

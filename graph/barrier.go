package graph

// ImageBarrier transitions an image from Src to Dst.
type ImageBarrier struct {
	Image ImageHandle
	Src   ImageState
	Dst   ImageState
}

// LayoutChange reports whether the barrier changes the image layout.
func (b ImageBarrier) LayoutChange() bool { return b.Src.Layout != b.Dst.Layout }

// BufferBarrier orders buffer accesses in Src before those in Dst.
type BufferBarrier struct {
	Buffer BufferHandle
	Src    BufferState
	Dst    BufferState
}

// PassBarriers are the barriers recorded before a pass, in order.
type PassBarriers struct {
	Images  []ImageBarrier
	Buffers []BufferBarrier
}

// Len returns the total number of barriers.
func (b PassBarriers) Len() int { return len(b.Images) + len(b.Buffers) }

// tracker follows one resource through the execution order.
//
// last is the state established by the most recent write or layout
// transition. readers accumulates the stages that read the resource since
// then, so the next write waits for all of them. visStage and visAccess are
// the scopes to which last's writes have already been made visible.
type tracker struct {
	last      ImageState
	readers   PipelineStage
	visStage  PipelineStage
	visAccess Access
}

func newTracker(initial ImageState) tracker {
	t := tracker{last: initial}
	if !initial.IsWrite() {
		t.visStage = StageAllCommands
		t.visAccess = AccessMemoryRead
	}
	return t
}

// require advances the tracker to req. It returns the barrier to record and
// whether one is needed.
func (t *tracker) require(req ImageState, write bool) (src ImageState, emit bool) {
	write = write || req.IsWrite()

	if write || req.Layout != t.last.Layout {
		src = ImageState{
			Stage:  t.last.Stage | t.readers,
			Access: t.last.Access.WriteBits(),
			Layout: t.last.Layout,
		}
		t.last = req
		t.readers = StageNone
		if write {
			t.visStage, t.visAccess = StageNone, AccessNone
		} else {
			t.visStage, t.visAccess = req.Stage, req.Access
		}
		return src, true
	}

	t.readers |= req.Stage
	if t.visStage.covers(req.Stage) && t.visAccess.covers(req.Access) {
		return ImageState{}, false
	}
	src = ImageState{
		Stage:  t.last.Stage,
		Access: t.last.Access.WriteBits(),
		Layout: t.last.Layout,
	}
	t.visStage |= req.Stage
	t.visAccess |= req.Access
	return src, true
}

// computeBarriers walks order and returns the barriers of every pass,
// indexed by declaration index. The result is fixed at compile time.
func computeBarriers(reg *registry, passes []*passNode, order []int) []PassBarriers {
	imgs := make([]tracker, len(reg.images))
	for i, e := range reg.images {
		imgs[i] = newTracker(e.initial)
	}
	bufs := make([]tracker, len(reg.buffers))
	for i, e := range reg.buffers {
		bufs[i] = newTracker(ImageState{Stage: e.initial.Stage, Access: e.initial.Access})
	}

	out := make([]PassBarriers, len(passes))
	for _, p := range order {
		node := passes[p]
		var pb PassBarriers
		for _, a := range node.images {
			t := &imgs[a.handle.index()]
			if src, ok := t.require(a.state, a.write); ok {
				pb.Images = append(pb.Images, ImageBarrier{Image: a.handle, Src: src, Dst: a.state})
			}
		}
		for _, a := range node.buffers {
			t := &bufs[a.handle.index()]
			dst := ImageState{Stage: a.state.Stage, Access: a.state.Access}
			if src, ok := t.require(dst, a.write); ok {
				pb.Buffers = append(pb.Buffers, BufferBarrier{
					Buffer: a.handle,
					Src:    BufferState{Stage: src.Stage, Access: src.Access},
					Dst:    a.state,
				})
			}
		}
		out[p] = pb
	}
	return out
}

package graph

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph/resource"
)

// ImageHandle is a graph-local name for an image. It is only meaningful to
// the Builder that issued it and the graphs compiled from that builder.
// The zero value is invalid.
type ImageHandle struct{ id uint32 }

// BufferHandle is a graph-local name for a buffer. The zero value is invalid.
type BufferHandle struct{ id uint32 }

// IsZero reports whether h is the zero handle.
func (h ImageHandle) IsZero() bool { return h.id == 0 }

// IsZero reports whether h is the zero handle.
func (h BufferHandle) IsZero() bool { return h.id == 0 }

func (h ImageHandle) index() int  { return int(h.id) - 1 }
func (h BufferHandle) index() int { return int(h.id) - 1 }

func (h ImageHandle) String() string  { return fmt.Sprintf("img%d", h.id) }
func (h BufferHandle) String() string { return fmt.Sprintf("buf%d", h.id) }

// imageEntry is the registry record of a graph image.
type imageEntry struct {
	name    string
	image   resource.ImageHandle
	view    resource.ImageViewHandle
	format  gputypes.TextureFormat
	initial ImageState

	transient *resource.ImageDesc
}

// bufferEntry is the registry record of a graph buffer.
type bufferEntry struct {
	name    string
	buffer  resource.BufferHandle
	initial BufferState

	transient *resource.BufferDesc
}

// registry holds every resource a graph references.
type registry struct {
	images  []imageEntry
	buffers []bufferEntry
}

func (r *registry) addImage(e imageEntry) ImageHandle {
	r.images = append(r.images, e)
	return ImageHandle{id: uint32(len(r.images))}
}

func (r *registry) addBuffer(e bufferEntry) BufferHandle {
	r.buffers = append(r.buffers, e)
	return BufferHandle{id: uint32(len(r.buffers))}
}

func (r *registry) image(h ImageHandle) (*imageEntry, bool) {
	i := h.index()
	if i < 0 || i >= len(r.images) {
		return nil, false
	}
	return &r.images[i], true
}

func (r *registry) buffer(h BufferHandle) (*bufferEntry, bool) {
	i := h.index()
	if i < 0 || i >= len(r.buffers) {
		return nil, false
	}
	return &r.buffers[i], true
}

func (r *registry) imageName(h ImageHandle) string {
	if e, ok := r.image(h); ok {
		return e.name
	}
	return h.String()
}

func (r *registry) bufferName(h BufferHandle) string {
	if e, ok := r.buffer(h); ok {
		return e.name
	}
	return h.String()
}

func (r *registry) clone() registry {
	return registry{
		images:  append([]imageEntry(nil), r.images...),
		buffers: append([]bufferEntry(nil), r.buffers...),
	}
}

// uninitialized returns the resources whose contents are undefined when the
// graph starts: transients, and imports declared with ImageUndefined or
// BufferUndefined. Any other initial state, including the zero value, keeps
// its contents and its accesses stay in declaration order.
func (r *registry) uninitialized() ([]ImageHandle, []BufferHandle) {
	var imgs []ImageHandle
	for i, e := range r.images {
		if e.transient != nil || e.initial == ImageUndefined {
			imgs = append(imgs, ImageHandle{id: uint32(i + 1)})
		}
	}
	var bufs []BufferHandle
	for i, e := range r.buffers {
		if e.transient != nil || e.initial == BufferUndefined {
			bufs = append(bufs, BufferHandle{id: uint32(i + 1)})
		}
	}
	return imgs, bufs
}

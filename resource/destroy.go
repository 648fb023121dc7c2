package resource

import (
	"slices"

	"github.com/gogpu/rendergraph/internal/slotmap"
)

type resourceKind uint8

const (
	kindBuffer resourceKind = iota
	kindImage
	kindImageView
)

// pendingDestroy is a destroy request waiting for the GPU to finish every
// frame that could still reference the resource.
type pendingDestroy struct {
	kind  resourceKind
	key   slotmap.Key
	frame uint64
}

// DestroyBuffer schedules h for destruction once frame has left the
// frames-in-flight window. It never blocks. The buffer keeps resolving until
// Cleanup frees it. Stale handles and repeated requests are ignored.
func (p *Pool) DestroyBuffer(h BufferHandle, frame uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.buffers.Get(h.key)
	if !ok || b.pending {
		return
	}
	b.pending = true
	p.pending = append(p.pending, pendingDestroy{kind: kindBuffer, key: h.key, frame: frame})
}

// DestroyImage schedules h and all of its views for destruction. The image
// stops accepting new views immediately; existing views keep resolving until
// Cleanup frees them together with the image.
func (p *Pool) DestroyImage(h ImageHandle, frame uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	img, ok := p.images.Get(h.key)
	if !ok || img.pending {
		return
	}
	img.pending = true
	for vk := range p.viewCache {
		if vk.image == h {
			delete(p.viewCache, vk)
		}
	}
	p.pending = append(p.pending, pendingDestroy{kind: kindImage, key: h.key, frame: frame})
}

// DestroyImageView schedules h for destruction. The view is dropped from the
// view cache right away, so GetOrCreateView with the same description
// allocates a fresh view.
func (p *Pool) DestroyImageView(h ImageViewHandle, frame uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.views.Get(h.key)
	if !ok || v.pending {
		return
	}
	v.pending = true
	p.uncacheViewLocked(h, v)
	p.pending = append(p.pending, pendingDestroy{kind: kindImageView, key: h.key, frame: frame})
}

// DestroyBufferImmediate destroys h now.
//
// The caller must guarantee that no submitted GPU work still uses the buffer,
// typically by waiting for device idle. The pool cannot check this.
func (p *Pool) DestroyBufferImmediate(h BufferHandle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyBufferLocked(h.key) == 0 {
		return false
	}
	p.pruneStaleLocked()
	return true
}

// DestroyImageImmediate destroys h and all of its views now.
//
// The caller must guarantee that no submitted GPU work still uses the image
// or any of its views.
func (p *Pool) DestroyImageImmediate(h ImageHandle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyImageLocked(h.key) == 0 {
		return false
	}
	p.pruneStaleLocked()
	return true
}

// DestroyImageViewImmediate destroys h now.
//
// The caller must guarantee that no submitted GPU work still uses the view.
func (p *Pool) DestroyImageViewImmediate(h ImageViewHandle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyViewLocked(h.key) == 0 {
		return false
	}
	p.pruneStaleLocked()
	return true
}

// Cleanup frees every pending resource whose request frame plus
// FramesInFlight is at most completed, and returns how many resources were
// destroyed. Call it once per frame after learning how far the GPU got.
func (p *Pool) Cleanup(completed uint64) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	fif := p.config.FramesInFlight
	freed := 0
	n := 0
	for i := range p.pending {
		e := p.pending[i]
		if e.frame+fif > completed {
			p.pending[n] = e
			n++
			continue
		}
		switch e.kind {
		case kindBuffer:
			freed += p.destroyBufferLocked(e.key)
		case kindImage:
			freed += p.destroyImageLocked(e.key)
		case kindImageView:
			freed += p.destroyViewLocked(e.key)
		}
	}
	for i := n; i < len(p.pending); i++ {
		p.pending[i] = pendingDestroy{}
	}
	p.pending = p.pending[:n]
	if freed > 0 {
		p.pruneStaleLocked()
		slogger().Debug("resource: cleanup", "completed", completed, "destroyed", freed, "pending", len(p.pending))
	}
	return freed
}

// Pending returns the number of queued destroy requests.
func (p *Pool) Pending() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pending)
}

// Destroy releases every resource in the pool regardless of pending frames.
// The device must be idle. Imported resources are forgotten, not destroyed.
// Destroy is idempotent.
func (p *Pool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	freed := 0
	p.images.Range(func(k slotmap.Key, _ *Image) bool {
		freed += p.destroyImageLocked(k)
		return true
	})
	p.views.Range(func(k slotmap.Key, _ *ImageView) bool {
		freed += p.destroyViewLocked(k)
		return true
	})
	p.buffers.Range(func(k slotmap.Key, _ *Buffer) bool {
		freed += p.destroyBufferLocked(k)
		return true
	})
	p.pending = nil
	clear(p.viewCache)

	slogger().Debug("resource: pool destroyed", "destroyed", freed)
}

func (p *Pool) destroyBufferLocked(k slotmap.Key) int {
	b, ok := p.buffers.Remove(k)
	if !ok {
		return 0
	}
	if !b.imported && b.Raw != nil && p.device != nil {
		p.device.DestroyBuffer(b.Raw)
	}
	p.destroyed++
	return 1
}

// destroyImageLocked destroys the image's views before the image itself.
func (p *Pool) destroyImageLocked(k slotmap.Key) int {
	img, ok := p.images.Get(k)
	if !ok {
		return 0
	}
	freed := 0
	for _, vh := range slices.Clone(img.views) {
		freed += p.destroyViewLocked(vh.key)
	}
	p.images.Remove(k)
	if !img.imported && img.Raw != nil && p.device != nil {
		p.device.DestroyTexture(img.Raw)
	}
	p.destroyed++
	return freed + 1
}

func (p *Pool) destroyViewLocked(k slotmap.Key) int {
	v, ok := p.views.Remove(k)
	if !ok {
		return 0
	}
	h := ImageViewHandle{key: k}
	p.uncacheViewLocked(h, v)
	if img, ok := p.images.Get(v.Image.key); ok {
		if i := slices.Index(img.views, h); i >= 0 {
			img.views = slices.Delete(img.views, i, i+1)
		}
	}
	if !v.imported && v.Raw != nil && p.device != nil {
		p.device.DestroyTextureView(v.Raw)
	}
	p.destroyed++
	return 1
}

func (p *Pool) uncacheViewLocked(h ImageViewHandle, v *ImageView) {
	vk := viewKey{image: v.Image, desc: v.Desc}
	if cached, ok := p.viewCache[vk]; ok && cached == h {
		delete(p.viewCache, vk)
	}
}

// pruneStaleLocked drops queued requests whose resource is already gone,
// such as the views of an image destroyed before them.
func (p *Pool) pruneStaleLocked() {
	p.pending = slices.DeleteFunc(p.pending, func(e pendingDestroy) bool {
		switch e.kind {
		case kindBuffer:
			return !p.buffers.Contains(e.key)
		case kindImage:
			return !p.images.Contains(e.key)
		default:
			return !p.views.Contains(e.key)
		}
	})
}

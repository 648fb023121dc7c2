package resource

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/internal/slotmap"
)

// Pool errors.
var (
	// ErrNilDevice is returned when a pool without a device is asked to allocate.
	ErrNilDevice = errors.New("resource: pool has no device")

	// ErrPoolExhausted is returned when a registration exceeds the configured
	// capacity. It is a configuration error; retrying will not help.
	ErrPoolExhausted = errors.New("resource: pool capacity exhausted")

	// ErrInvalidHandle is returned for zero, stale, or destroyed handles.
	ErrInvalidHandle = errors.New("resource: invalid handle")

	// ErrResourceRetired is returned when deriving from an image whose
	// destruction is already pending.
	ErrResourceRetired = errors.New("resource: image is pending destruction")

	// ErrPoolClosed is returned when operating on a destroyed pool.
	ErrPoolClosed = errors.New("resource: pool destroyed")
)

// DefaultFramesInFlight is the retention window used when PoolConfig leaves
// FramesInFlight unset.
const DefaultFramesInFlight = 3

// PoolConfig holds configuration for creating a Pool.
type PoolConfig struct {
	// FramesInFlight is how many frames a deferred destroy waits for.
	// Defaults to DefaultFramesInFlight if zero.
	FramesInFlight uint64

	// MaxBuffers, MaxImages and MaxImageViews cap live registrations.
	// Zero means unlimited.
	MaxBuffers    int
	MaxImages     int
	MaxImageViews int
}

// PoolStats is a snapshot of pool occupancy.
type PoolStats struct {
	Buffers    int
	Images     int
	ImageViews int
	Pending    int
	Destroyed  uint64
}

// String returns a human-readable string of pool stats.
func (s PoolStats) String() string {
	return fmt.Sprintf("Pool[%d buffers, %d images, %d views, %d pending, %d destroyed]",
		s.Buffers, s.Images, s.ImageViews, s.Pending, s.Destroyed)
}

type viewKey struct {
	image ImageHandle
	desc  ViewDesc
}

// Pool owns buffers, images and image views behind generational handles.
//
// Pool is safe for concurrent use. Lookups take a read lock, so replaying a
// compiled graph from several goroutines does not serialize on the pool.
type Pool struct {
	mu sync.RWMutex

	device Device
	config PoolConfig

	buffers slotmap.Map[*Buffer]
	images  slotmap.Map[*Image]
	views   slotmap.Map[*ImageView]

	viewCache map[viewKey]ImageViewHandle
	pending   []pendingDestroy

	destroyed uint64
	closed    bool
}

// NewPool creates a pool allocating through device. A nil device yields a
// pool that can only register and import existing objects.
func NewPool(device Device, config PoolConfig) *Pool {
	if config.FramesInFlight == 0 {
		config.FramesInFlight = DefaultFramesInFlight
	}
	return &Pool{
		device:    device,
		config:    config,
		viewCache: make(map[viewKey]ImageViewHandle),
	}
}

// FramesInFlight returns the retention window of deferred destroys.
func (p *Pool) FramesInFlight() uint64 { return p.config.FramesInFlight }

// RegisterBuffer takes ownership of raw. The pool destroys it on the device
// when the handle is destroyed.
func (p *Pool) RegisterBuffer(raw hal.Buffer, desc BufferDesc) (BufferHandle, error) {
	return p.addBuffer(raw, desc, false)
}

// ImportBuffer references an externally owned buffer. The pool never
// destroys it on the device.
func (p *Pool) ImportBuffer(raw hal.Buffer, desc BufferDesc) (BufferHandle, error) {
	return p.addBuffer(raw, desc, true)
}

func (p *Pool) addBuffer(raw hal.Buffer, desc BufferDesc, imported bool) (BufferHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return BufferHandle{}, ErrPoolClosed
	}
	if p.config.MaxBuffers > 0 && p.buffers.Len() >= p.config.MaxBuffers {
		return BufferHandle{}, fmt.Errorf("resource: register buffer %q (limit %d): %w",
			desc.Label, p.config.MaxBuffers, ErrPoolExhausted)
	}
	k := p.buffers.Insert(&Buffer{
		Raw:      raw,
		Label:    desc.Label,
		Size:     desc.Size,
		Usage:    desc.Usage,
		imported: imported,
	})
	return BufferHandle{key: k}, nil
}

// RegisterImage takes ownership of raw.
func (p *Pool) RegisterImage(raw hal.Texture, desc ImageDesc) (ImageHandle, error) {
	return p.addImage(raw, desc, false)
}

// ImportImage references an externally owned texture such as a swapchain
// image. The pool never destroys it on the device.
func (p *Pool) ImportImage(raw hal.Texture, desc ImageDesc) (ImageHandle, error) {
	return p.addImage(raw, desc, true)
}

func (p *Pool) addImage(raw hal.Texture, desc ImageDesc, imported bool) (ImageHandle, error) {
	desc = desc.normalized()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ImageHandle{}, ErrPoolClosed
	}
	if p.config.MaxImages > 0 && p.images.Len() >= p.config.MaxImages {
		return ImageHandle{}, fmt.Errorf("resource: register image %q (limit %d): %w",
			desc.Label, p.config.MaxImages, ErrPoolExhausted)
	}
	k := p.images.Insert(&Image{
		Raw:                raw,
		Label:              desc.Label,
		Width:              desc.Width,
		Height:             desc.Height,
		DepthOrArrayLayers: desc.DepthOrArrayLayers,
		MipLevelCount:      desc.MipLevelCount,
		SampleCount:        desc.SampleCount,
		Format:             desc.Format,
		Usage:              desc.Usage,
		imported:           imported,
	})
	return ImageHandle{key: k}, nil
}

// RegisterImageView takes ownership of raw, a view of image. The view joins
// the image's view set and, if no view with the same description is cached
// yet, the view cache.
func (p *Pool) RegisterImageView(image ImageHandle, raw hal.TextureView, desc ViewDesc, label string) (ImageViewHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addViewLocked(image, raw, desc, label, false)
}

// ImportImageView references an externally owned view. image may be the zero
// handle for a view whose texture is not tracked by the pool.
func (p *Pool) ImportImageView(image ImageHandle, raw hal.TextureView, desc ViewDesc, label string) (ImageViewHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addViewLocked(image, raw, desc, label, true)
}

func (p *Pool) addViewLocked(image ImageHandle, raw hal.TextureView, desc ViewDesc, label string, imported bool) (ImageViewHandle, error) {
	if p.closed {
		return ImageViewHandle{}, ErrPoolClosed
	}
	var img *Image
	if !image.IsZero() || !imported {
		var ok bool
		img, ok = p.images.Get(image.key)
		if !ok {
			return ImageViewHandle{}, fmt.Errorf("resource: view %q of %s: %w", label, image, ErrInvalidHandle)
		}
		if img.pending {
			return ImageViewHandle{}, fmt.Errorf("resource: view %q of %q: %w", label, img.Label, ErrResourceRetired)
		}
		desc = img.resolve(desc)
	}
	if p.config.MaxImageViews > 0 && p.views.Len() >= p.config.MaxImageViews {
		return ImageViewHandle{}, fmt.Errorf("resource: register view %q (limit %d): %w",
			label, p.config.MaxImageViews, ErrPoolExhausted)
	}

	h := ImageViewHandle{key: p.views.Insert(&ImageView{
		Raw:      raw,
		Label:    label,
		Image:    image,
		Desc:     desc,
		imported: imported,
	})}
	if img != nil {
		img.views = append(img.views, h)
		vk := viewKey{image: image, desc: desc}
		if _, cached := p.viewCache[vk]; !cached {
			p.viewCache[vk] = h
		}
	}
	return h, nil
}

// CreateBuffer allocates a buffer on the device and registers it.
func (p *Pool) CreateBuffer(desc BufferDesc) (BufferHandle, error) {
	if p.device == nil {
		return BufferHandle{}, ErrNilDevice
	}
	raw, err := p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return BufferHandle{}, fmt.Errorf("resource: create buffer %q: %w", desc.Label, err)
	}
	h, err := p.RegisterBuffer(raw, desc)
	if err != nil {
		p.device.DestroyBuffer(raw)
		return BufferHandle{}, err
	}
	slogger().Debug("resource: buffer created", "label", desc.Label, "size", desc.Size, "handle", h)
	return h, nil
}

// CreateImage allocates a 2D texture on the device and registers it.
func (p *Pool) CreateImage(desc ImageDesc) (ImageHandle, error) {
	if p.device == nil {
		return ImageHandle{}, ErrNilDevice
	}
	desc = desc.normalized()
	raw, err := p.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: desc.DepthOrArrayLayers,
		},
		MipLevelCount: desc.MipLevelCount,
		SampleCount:   desc.SampleCount,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return ImageHandle{}, fmt.Errorf("resource: create image %q: %w", desc.Label, err)
	}
	h, err := p.RegisterImage(raw, desc)
	if err != nil {
		p.device.DestroyTexture(raw)
		return ImageHandle{}, err
	}
	slogger().Debug("resource: image created", "label", desc.Label,
		"width", desc.Width, "height", desc.Height, "format", desc.Format, "handle", h)
	return h, nil
}

// GetOrCreateView returns the view of image matching desc, creating it on
// the device the first time a description is requested.
func (p *Pool) GetOrCreateView(image ImageHandle, desc ViewDesc, label string) (ImageViewHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ImageViewHandle{}, ErrPoolClosed
	}
	img, ok := p.images.Get(image.key)
	if !ok {
		return ImageViewHandle{}, fmt.Errorf("resource: view of %s: %w", image, ErrInvalidHandle)
	}
	if img.pending {
		return ImageViewHandle{}, fmt.Errorf("resource: view of %q: %w", img.Label, ErrResourceRetired)
	}
	desc = img.resolve(desc)
	if h, ok := p.viewCache[viewKey{image: image, desc: desc}]; ok {
		return h, nil
	}
	if p.device == nil {
		return ImageViewHandle{}, ErrNilDevice
	}
	if p.config.MaxImageViews > 0 && p.views.Len() >= p.config.MaxImageViews {
		return ImageViewHandle{}, fmt.Errorf("resource: create view %q (limit %d): %w",
			label, p.config.MaxImageViews, ErrPoolExhausted)
	}

	raw, err := p.device.CreateTextureView(img.Raw, &hal.TextureViewDescriptor{
		Label:           label,
		Format:          desc.Format,
		Dimension:       desc.Dimension,
		Aspect:          desc.Aspect,
		BaseMipLevel:    desc.BaseMipLevel,
		MipLevelCount:   desc.MipLevelCount,
		BaseArrayLayer:  desc.BaseArrayLayer,
		ArrayLayerCount: desc.ArrayLayerCount,
	})
	if err != nil {
		return ImageViewHandle{}, fmt.Errorf("resource: create view %q of %q: %w", label, img.Label, err)
	}
	return p.addViewLocked(image, raw, desc, label, false)
}

// Buffer returns the buffer behind h. It reports false for zero, stale, or
// destroyed handles; a buffer with a pending deferred destroy still resolves.
func (p *Pool) Buffer(h BufferHandle) (*Buffer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.buffers.Get(h.key)
}

// Image returns the image behind h.
func (p *Pool) Image(h ImageHandle) (*Image, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.images.Get(h.key)
}

// ImageView returns the view behind h.
func (p *Pool) ImageView(h ImageViewHandle) (*ImageView, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.views.Get(h.key)
}

// Views returns the live views of image.
func (p *Pool) Views(image ImageHandle) []ImageViewHandle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	img, ok := p.images.Get(image.key)
	if !ok {
		return nil
	}
	out := make([]ImageViewHandle, len(img.views))
	copy(out, img.views)
	return out
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PoolStats{
		Buffers:    p.buffers.Len(),
		Images:     p.images.Len(),
		ImageViews: p.views.Len(),
		Pending:    len(p.pending),
		Destroyed:  p.destroyed,
	}
}

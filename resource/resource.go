package resource

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Device is the part of hal.Device the pool allocates through.
type Device interface {
	CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error)
	DestroyBuffer(buffer hal.Buffer)
	CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error)
	DestroyTexture(texture hal.Texture)
	CreateTextureView(texture hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error)
	DestroyTextureView(view hal.TextureView)
}

var _ Device = hal.Device(nil)

// BufferDesc describes a buffer.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// ImageDesc describes an image. Zero counts default to 1.
type ImageDesc struct {
	Label              string
	Width              uint32
	Height             uint32
	DepthOrArrayLayers uint32
	MipLevelCount      uint32
	SampleCount        uint32
	Format             gputypes.TextureFormat
	Usage              gputypes.TextureUsage
}

func (d ImageDesc) normalized() ImageDesc {
	if d.DepthOrArrayLayers == 0 {
		d.DepthOrArrayLayers = 1
	}
	if d.MipLevelCount == 0 {
		d.MipLevelCount = 1
	}
	if d.SampleCount == 0 {
		d.SampleCount = 1
	}
	return d
}

// ViewDesc describes a view of an image. It is comparable and, together with
// the image handle, identifies a cached view.
//
// Zero fields inherit from the image: the image format, a 2D view, every
// aspect, and every remaining mip level and array layer.
type ViewDesc struct {
	Format          gputypes.TextureFormat
	Dimension       gputypes.TextureViewDimension
	Aspect          gputypes.TextureAspect
	BaseMipLevel    uint32
	MipLevelCount   uint32
	BaseArrayLayer  uint32
	ArrayLayerCount uint32
}

// Buffer is a pooled GPU buffer.
type Buffer struct {
	Raw   hal.Buffer
	Label string
	Size  uint64
	Usage gputypes.BufferUsage

	imported bool
	pending  bool
}

// Imported reports whether the buffer is owned outside the pool.
func (b *Buffer) Imported() bool { return b.imported }

// Image is a pooled GPU texture.
type Image struct {
	Raw                hal.Texture
	Label              string
	Width              uint32
	Height             uint32
	DepthOrArrayLayers uint32
	MipLevelCount      uint32
	SampleCount        uint32
	Format             gputypes.TextureFormat
	Usage              gputypes.TextureUsage

	imported bool
	pending  bool
	views    []ImageViewHandle
}

// Imported reports whether the image is owned outside the pool.
func (img *Image) Imported() bool { return img.imported }

// Aspect returns the aspect a full view of the image covers.
func (img *Image) Aspect() gputypes.TextureAspect {
	if img.Format.HasDepth() && !img.Format.HasStencil() {
		return gputypes.TextureAspectDepthOnly
	}
	return gputypes.TextureAspectAll
}

// resolve fills the zero fields of d from the image.
func (img *Image) resolve(d ViewDesc) ViewDesc {
	if d.Format == gputypes.TextureFormatUndefined {
		d.Format = img.Format
	}
	if d.Dimension == gputypes.TextureViewDimensionUndefined {
		d.Dimension = gputypes.TextureViewDimension2D
	}
	if d.Aspect == gputypes.TextureAspectUndefined {
		d.Aspect = img.Aspect()
	}
	if d.MipLevelCount == 0 && img.MipLevelCount > d.BaseMipLevel {
		d.MipLevelCount = img.MipLevelCount - d.BaseMipLevel
	}
	if d.ArrayLayerCount == 0 && img.DepthOrArrayLayers > d.BaseArrayLayer {
		d.ArrayLayerCount = img.DepthOrArrayLayers - d.BaseArrayLayer
	}
	return d
}

// ImageView is a pooled texture view.
type ImageView struct {
	Raw   hal.TextureView
	Label string
	Image ImageHandle
	Desc  ViewDesc

	imported bool
	pending  bool
}

// Imported reports whether the view is owned outside the pool.
func (v *ImageView) Imported() bool { return v.imported }

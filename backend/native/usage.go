package native

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph/graph"
)

// TextureUsage returns the HAL usage that puts an image in layout l.
func TextureUsage(l graph.Layout) gputypes.TextureUsage {
	switch l {
	case graph.LayoutGeneral:
		return gputypes.TextureUsageStorageBinding
	case graph.LayoutColorAttachment, graph.LayoutDepthStencilAttachment:
		return gputypes.TextureUsageRenderAttachment
	case graph.LayoutShaderReadOnly, graph.LayoutDepthStencilReadOnly:
		return gputypes.TextureUsageTextureBinding
	case graph.LayoutTransferSrc:
		return gputypes.TextureUsageCopySrc
	case graph.LayoutTransferDst:
		return gputypes.TextureUsageCopyDst
	default:
		return gputypes.TextureUsageNone
	}
}

var bufferUsages = []struct {
	access graph.Access
	usage  gputypes.BufferUsage
}{
	{graph.AccessIndirectCommandRead, gputypes.BufferUsageIndirect},
	{graph.AccessIndexRead, gputypes.BufferUsageIndex},
	{graph.AccessVertexAttributeRead, gputypes.BufferUsageVertex},
	{graph.AccessUniformRead, gputypes.BufferUsageUniform},
	{graph.AccessShaderRead | graph.AccessShaderWrite, gputypes.BufferUsageStorage},
	{graph.AccessTransferRead, gputypes.BufferUsageCopySrc},
	{graph.AccessTransferWrite, gputypes.BufferUsageCopyDst},
	{graph.AccessHostRead, gputypes.BufferUsageMapRead},
	{graph.AccessHostWrite, gputypes.BufferUsageMapWrite},
	{graph.AccessAccelerationStructureRead | graph.AccessAccelerationStructureWrite, gputypes.BufferUsageStorage},
	{graph.AccessMemoryRead | graph.AccessMemoryWrite, gputypes.BufferUsageStorage},
}

// BufferUsage returns the HAL usages that cover the accesses in a.
func BufferUsage(a graph.Access) gputypes.BufferUsage {
	var u gputypes.BufferUsage
	for _, m := range bufferUsages {
		if a&m.access != 0 {
			u |= m.usage
		}
	}
	return u
}

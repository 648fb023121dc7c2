// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package graph

import (
	"fmt"
	"math/bits"
	"strings"
)

// PipelineStage is a bit mask of GPU pipeline stages.
type PipelineStage uint32

// Pipeline stages.
const (
	StageTopOfPipe PipelineStage = 1 << iota
	StageDrawIndirect
	StageVertexInput
	StageVertexShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageRayTracingShader
	StageAccelerationStructureBuild
	StageBottomOfPipe
	StageHost
	StageAllGraphics
	StageAllCommands

	StageNone PipelineStage = 0
)

var stageNames = [...]string{
	"TOP_OF_PIPE", "DRAW_INDIRECT", "VERTEX_INPUT", "VERTEX_SHADER",
	"FRAGMENT_SHADER", "EARLY_FRAGMENT_TESTS", "LATE_FRAGMENT_TESTS",
	"COLOR_ATTACHMENT_OUTPUT", "COMPUTE_SHADER", "TRANSFER",
	"RAY_TRACING_SHADER", "ACCELERATION_STRUCTURE_BUILD", "BOTTOM_OF_PIPE",
	"HOST", "ALL_GRAPHICS", "ALL_COMMANDS",
}

func (s PipelineStage) String() string { return flagString(uint32(s), stageNames[:]) }

// covers reports whether a dependency on s also orders work in t.
func (s PipelineStage) covers(t PipelineStage) bool {
	if s&StageAllCommands != 0 {
		return true
	}
	return s&t == t
}

// Access is a bit mask of memory access types.
type Access uint32

// Memory access types.
const (
	AccessIndirectCommandRead Access = 1 << iota
	AccessIndexRead
	AccessVertexAttributeRead
	AccessUniformRead
	AccessInputAttachmentRead
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite
	AccessMemoryRead
	AccessMemoryWrite
	AccessAccelerationStructureRead
	AccessAccelerationStructureWrite

	AccessNone Access = 0
)

const accessWriteMask = AccessShaderWrite | AccessColorAttachmentWrite |
	AccessDepthStencilAttachmentWrite | AccessTransferWrite | AccessHostWrite |
	AccessMemoryWrite | AccessAccelerationStructureWrite

var accessNames = [...]string{
	"INDIRECT_COMMAND_READ", "INDEX_READ", "VERTEX_ATTRIBUTE_READ",
	"UNIFORM_READ", "INPUT_ATTACHMENT_READ", "SHADER_READ", "SHADER_WRITE",
	"COLOR_ATTACHMENT_READ", "COLOR_ATTACHMENT_WRITE",
	"DEPTH_STENCIL_ATTACHMENT_READ", "DEPTH_STENCIL_ATTACHMENT_WRITE",
	"TRANSFER_READ", "TRANSFER_WRITE", "HOST_READ", "HOST_WRITE",
	"MEMORY_READ", "MEMORY_WRITE", "ACCELERATION_STRUCTURE_READ",
	"ACCELERATION_STRUCTURE_WRITE",
}

func (a Access) String() string { return flagString(uint32(a), accessNames[:]) }

// IsWrite reports whether a contains any write access.
func (a Access) IsWrite() bool { return a&accessWriteMask != 0 }

// WriteBits returns the write accesses of a. Only writes need to be made
// available by a barrier's source scope.
func (a Access) WriteBits() Access { return a & accessWriteMask }

func (a Access) covers(b Access) bool {
	if a&AccessMemoryRead != 0 {
		b &= accessWriteMask
	}
	if a&AccessMemoryWrite != 0 {
		b &^= accessWriteMask
	}
	return a&b == b
}

// Layout is the memory organization of an image.
type Layout uint8

// Image layouts.
const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresent
)

var layoutNames = [...]string{
	"UNDEFINED", "GENERAL", "COLOR_ATTACHMENT", "DEPTH_STENCIL_ATTACHMENT",
	"DEPTH_STENCIL_READ_ONLY", "SHADER_READ_ONLY", "TRANSFER_SRC",
	"TRANSFER_DST", "PRESENT",
}

func (l Layout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return fmt.Sprintf("Layout(%d)", uint8(l))
}

// ImageState is the synchronization state of an image: the stages and
// accesses of its most recent use and the layout it is in.
type ImageState struct {
	Stage  PipelineStage
	Access Access
	Layout Layout
}

// IsWrite reports whether the state writes the image.
func (s ImageState) IsWrite() bool { return s.Access.IsWrite() }

func (s ImageState) String() string {
	return fmt.Sprintf("%s %s/%s", s.Layout, s.Stage, s.Access)
}

// BufferState is the synchronization state of a buffer. Buffers have no
// layout.
type BufferState struct {
	Stage  PipelineStage
	Access Access
}

// IsWrite reports whether the state writes the buffer.
func (s BufferState) IsWrite() bool { return s.Access.IsWrite() }

func (s BufferState) String() string {
	return fmt.Sprintf("%s/%s", s.Stage, s.Access)
}

// Common image states.
var (
	ImageUndefined = ImageState{StageTopOfPipe, AccessNone, LayoutUndefined}
	ImageGeneral   = ImageState{StageAllCommands, AccessMemoryRead | AccessMemoryWrite, LayoutGeneral}

	ImageColorAttachmentWrite     = ImageState{StageColorAttachmentOutput, AccessColorAttachmentWrite, LayoutColorAttachment}
	ImageColorAttachmentReadWrite = ImageState{StageColorAttachmentOutput, AccessColorAttachmentRead | AccessColorAttachmentWrite, LayoutColorAttachment}

	ImageDepthAttachmentWrite = ImageState{
		StageEarlyFragmentTests | StageLateFragmentTests,
		AccessDepthStencilAttachmentWrite,
		LayoutDepthStencilAttachment,
	}
	ImageDepthAttachmentReadWrite = ImageState{
		StageEarlyFragmentTests | StageLateFragmentTests,
		AccessDepthStencilAttachmentRead | AccessDepthStencilAttachmentWrite,
		LayoutDepthStencilAttachment,
	}
	ImageDepthReadOnly = ImageState{
		StageEarlyFragmentTests | StageLateFragmentTests | StageFragmentShader,
		AccessDepthStencilAttachmentRead | AccessShaderRead,
		LayoutDepthStencilReadOnly,
	}

	ImageShaderReadFragment   = ImageState{StageFragmentShader, AccessShaderRead, LayoutShaderReadOnly}
	ImageShaderReadCompute    = ImageState{StageComputeShader, AccessShaderRead, LayoutShaderReadOnly}
	ImageShaderReadRayTracing = ImageState{StageRayTracingShader, AccessShaderRead, LayoutShaderReadOnly}

	ImageStorageReadCompute         = ImageState{StageComputeShader, AccessShaderRead, LayoutGeneral}
	ImageStorageWriteCompute        = ImageState{StageComputeShader, AccessShaderWrite, LayoutGeneral}
	ImageStorageReadWriteCompute    = ImageState{StageComputeShader, AccessShaderRead | AccessShaderWrite, LayoutGeneral}
	ImageStorageWriteRayTracing     = ImageState{StageRayTracingShader, AccessShaderWrite, LayoutGeneral}
	ImageStorageReadWriteRayTracing = ImageState{StageRayTracingShader, AccessShaderRead | AccessShaderWrite, LayoutGeneral}

	ImageTransferSrc = ImageState{StageTransfer, AccessTransferRead, LayoutTransferSrc}
	ImageTransferDst = ImageState{StageTransfer, AccessTransferWrite, LayoutTransferDst}

	ImagePresent = ImageState{StageBottomOfPipe, AccessNone, LayoutPresent}
)

// Common buffer states.
var (
	BufferUndefined = BufferState{StageTopOfPipe, AccessNone}

	BufferVertex   = BufferState{StageVertexInput, AccessVertexAttributeRead}
	BufferIndex    = BufferState{StageVertexInput, AccessIndexRead}
	BufferIndirect = BufferState{StageDrawIndirect, AccessIndirectCommandRead}

	BufferUniformVertex   = BufferState{StageVertexShader, AccessUniformRead}
	BufferUniformFragment = BufferState{StageFragmentShader, AccessUniformRead}
	BufferUniformCompute  = BufferState{StageComputeShader, AccessUniformRead}

	BufferStorageReadCompute      = BufferState{StageComputeShader, AccessShaderRead}
	BufferStorageWriteCompute     = BufferState{StageComputeShader, AccessShaderWrite}
	BufferStorageReadWriteCompute = BufferState{StageComputeShader, AccessShaderRead | AccessShaderWrite}
	BufferStorageReadFragment     = BufferState{StageFragmentShader, AccessShaderRead}

	BufferTransferSrc = BufferState{StageTransfer, AccessTransferRead}
	BufferTransferDst = BufferState{StageTransfer, AccessTransferWrite}

	BufferAccelerationStructureBuildInput = BufferState{StageAccelerationStructureBuild, AccessShaderRead}
)

func flagString(v uint32, names []string) string {
	if v == 0 {
		return "NONE"
	}
	var sb strings.Builder
	for v != 0 {
		i := bits.TrailingZeros32(v)
		v &^= 1 << i
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		if i < len(names) {
			sb.WriteString(names[i])
		} else {
			fmt.Fprintf(&sb, "BIT%d", i)
		}
	}
	return sb.String()
}

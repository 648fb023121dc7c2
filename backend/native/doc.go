// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native records render graphs into gogpu/wgpu HAL command
// encoders.
//
// A Stream wraps one hal.CommandEncoder for one frame. It implements
// graph.CommandStream by translating the graph's stage/access/layout
// barriers into hal.TextureBarrier and hal.BufferBarrier transitions, which
// the HAL backends turn into Vulkan/DX12 pipeline barriers (and ignore on
// Metal and GLES):
//
//	stream, err := native.Begin(device, "frame 42")
//	if err != nil {
//		return err
//	}
//	if _, err := compiled.Execute(stream, pool); err != nil {
//		stream.Discard()
//		return err
//	}
//	cmd, err := stream.Finish()
//
// Passes reach the encoder through PassContext.Stream:
//
//	enc := ctx.Stream().(*native.Stream).Encoder()
//
// # Usage mapping
//
// The HAL describes resource state by usage rather than by pipeline stage.
// Layouts map to texture usages:
//
//	UNDEFINED                                  none
//	GENERAL                                    storage binding
//	COLOR_ATTACHMENT, DEPTH_STENCIL_ATTACHMENT render attachment
//	SHADER_READ_ONLY, DEPTH_STENCIL_READ_ONLY  texture binding
//	TRANSFER_SRC / TRANSFER_DST                copy src / copy dst
//
// Transitions into PRESENT are left to hal.Queue.Present. Buffer accesses
// map to buffer usages the same way, see BufferUsage.
package native

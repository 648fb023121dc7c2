// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rendergraph drives GPU frames from a declarative render graph.
//
// # Overview
//
// A frame is described as a list of passes, each declaring the images and
// buffers it reads and writes. The graph package orders the passes and
// precomputes every pipeline barrier once; the compiled graph is then
// replayed every frame. The resource package owns GPU memory behind
// generational handles and defers destruction until the GPU can no longer
// be using it. The frame package paces the CPU so that at most
// FramesInFlight frames are queued on the GPU.
//
// Renderer ties these together on a gogpu/wgpu HAL device:
//
//	r, err := rendergraph.NewRenderer(device, queue, rendergraph.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//
//	g, err := r.Compile("main", func(b *graph.Builder) error {
//		color := b.ImportImage("color", img, view, format, graph.ImageUndefined)
//		b.AddPassFunc("shade", func(pb *graph.PassBuilder) {
//			pb.WriteImage(color, graph.ImageStorageWriteCompute)
//		}, shade)
//		return nil
//	})
//	if err != nil {
//		return err
//	}
//	for running {
//		if _, err := r.RenderFrame(ctx, g); err != nil {
//			return err // errors.Is(err, frame.ErrDeviceLost) is fatal
//		}
//	}
//
// # Packages
//
//   - graph: builder, dependency analysis, barrier synthesis, executor
//   - resource: resource pool, deferred destruction, view cache
//   - frame: frame pacing and device-lost reporting
//   - backend/native: HAL command encoder stream
//
// # Logging
//
// Nothing is logged by default. SetLogger installs a log/slog logger for
// this package and every sub-package.
package rendergraph

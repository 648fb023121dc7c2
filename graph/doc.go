// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package graph turns a declarative list of render passes into an ordered,
// synchronized command stream.
//
// Passes declare which images and buffers they read and write and the state
// ([ImageState], [BufferState]) each access needs. [Builder.Compile] derives
// the pass dependencies from those declarations, orders the passes, and
// precomputes the barriers between them. The resulting [Compiled] graph is
// immutable and is replayed every frame with [Compiled.Execute]:
//
//	b := graph.NewBuilder(graph.WithAllocator(pool))
//	color := b.ImportImage("swapchain", img, view, format, graph.ImageUndefined)
//	b.AddPassFunc("present",
//	    func(pb *graph.PassBuilder) { pb.ReadImage(color, graph.ImagePresent) },
//	    nil)
//	compiled, err := b.Compile()
//	...
//	stats, err := compiled.Execute(stream, pool)
//
// # Ordering
//
// Two passes touching the same resource are ordered by declaration whenever
// at least one of them writes it; concurrent reads are never ordered against
// each other. Resources whose contents are undefined when the graph starts
// (transients and imports in an undefined state) are produced by their first
// writer, so a read declared before that writer still runs after it. A graph
// whose constraints form a cycle fails to compile with a [*CycleError].
//
// # Barriers
//
// Every resource is tracked from its initial state along the execution order.
// A barrier is recorded before every write and every layout change. Reads
// get a barrier only when the previous write has not yet been made visible to
// their stage and access; the next write waits for every reader since the
// last one.
package graph

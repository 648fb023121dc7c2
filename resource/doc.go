// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package resource owns the GPU memory objects of a renderer.
//
// A [Pool] keeps buffers, images and image views behind small generational
// handles. Callers never hold hal objects across frames; they hold handles and
// resolve them through the pool when recording. A handle whose resource has
// been destroyed is detectably stale: lookups report absence instead of
// aliasing whatever now occupies the slot.
//
// # Deferred destruction
//
// Destroying a resource that the GPU may still be using is the common case, so
// [Pool.DestroyBuffer], [Pool.DestroyImage] and [Pool.DestroyImageView] only
// enqueue. [Pool.Cleanup] is called once per frame with the last completed
// frame number and frees every entry requested at least FramesInFlight frames
// earlier:
//
//	pool.DestroyImage(img, frameID)
//	...
//	pool.Cleanup(completed) // frees img once frameID+FramesInFlight <= completed
//
// The *Immediate variants skip the queue. They are only correct after the
// caller has waited for the device to go idle.
//
// # Views
//
// Views belong to their image. [Pool.GetOrCreateView] returns the same handle
// for the same (image, [ViewDesc]) pair, and destroying an image destroys all
// of its views on both the deferred and immediate paths.
package resource

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package frame paces the CPU against the GPU.
//
// A Controller numbers frames from 1 and follows the submission index
// timeline of a hal.Queue. The GPU may run up to FramesInFlight frames
// behind the CPU; BeginFrame blocks until recording one more frame keeps
// that bound:
//
//	for {
//		if err := fc.BeginFrame(ctx); err != nil {
//			return err // *DeviceLostError is fatal
//		}
//		pool.Cleanup(fc.Completed())
//		// record ...
//		if err := fc.Submit(cmds); err != nil {
//			return err
//		}
//		fc.Retire(func() { device.FreeCommandBuffer(cmds[0]) })
//		fc.EndFrame()
//	}
//
// The wait is bounded by Config.WaitTimeout. A GPU that does not make
// progress within it is reported as a lost device, as is a failed
// submission. There is no recovery from either short of recreating the
// device.
package frame

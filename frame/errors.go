package frame

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

var (
	// ErrDeviceLost matches every *DeviceLostError.
	ErrDeviceLost = errors.New("frame: device lost")

	// ErrTimeout is wrapped by the DeviceLostError of a frame-pacing wait
	// that ran out of time. It also matches hal.ErrTimeout.
	ErrTimeout = fmt.Errorf("frame: GPU made no progress: %w", hal.ErrTimeout)

	// ErrNotRecording is returned by Submit and EndFrame outside of
	// BeginFrame/EndFrame.
	ErrNotRecording = errors.New("frame: no frame is being recorded")

	// ErrRecording is returned by BeginFrame when the previous frame was
	// not ended.
	ErrRecording = errors.New("frame: previous frame not ended")
)

// DeviceLostError reports a fatal GPU failure. The frame loop must stop and
// the device be recreated; the Controller returns the same error from then
// on.
type DeviceLostError struct {
	// Op is the operation that failed: "wait", "submit" or "wait idle".
	Op string
	// Frame is the frame being recorded when the failure was observed.
	Frame uint64
	Err   error
}

func (e *DeviceLostError) Error() string {
	return fmt.Sprintf("frame: device lost during %s of frame %d: %v", e.Op, e.Frame, e.Err)
}

func (e *DeviceLostError) Unwrap() error { return e.Err }

// Is reports whether target is ErrDeviceLost.
func (e *DeviceLostError) Is(target error) bool { return target == ErrDeviceLost }

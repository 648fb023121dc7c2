package native

import "errors"

// Stream errors.
var (
	// ErrNilDevice is returned when beginning a stream without a device.
	ErrNilDevice = errors.New("native: device is nil")

	// ErrNilEncoder is returned when wrapping a nil encoder.
	ErrNilEncoder = errors.New("native: command encoder is nil")

	// ErrStreamFinished is returned when a stream is finished or discarded
	// twice.
	ErrStreamFinished = errors.New("native: stream already finished")
)

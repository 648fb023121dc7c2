package rendergraph

// Option configures a Renderer during creation.
//
// Example:
//
//	r, err := rendergraph.NewRenderer(device, queue, cfg,
//		rendergraph.WithLabel("editor"))
type Option func(*rendererOptions)

// rendererOptions holds optional configuration for Renderer creation.
type rendererOptions struct {
	label      string
	onFrame    func(id uint64, stats FrameStats)
	ownsDevice bool
}

// defaultOptions returns the default renderer options.
func defaultOptions() rendererOptions {
	return rendererOptions{label: "rendergraph"}
}

// WithLabel sets the prefix of command encoder labels, visible in GPU
// debuggers as "<label> frame <id>".
func WithLabel(label string) Option {
	return func(o *rendererOptions) {
		if label != "" {
			o.label = label
		}
	}
}

// WithFrameObserver registers fn to be called after every submitted frame.
// It runs on the goroutine calling RenderFrame.
func WithFrameObserver(fn func(id uint64, stats FrameStats)) Option {
	return func(o *rendererOptions) {
		o.onFrame = fn
	}
}

// WithOwnedDevice makes Close destroy the device after tearing down the
// renderer.
func WithOwnedDevice() Option {
	return func(o *rendererOptions) {
		o.ownsDevice = true
	}
}

package native

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/graph"
	"github.com/gogpu/rendergraph/resource"
)

// Stream records a graph execution into a HAL command encoder.
//
// Stream follows the encoder lifecycle: it is created recording, and
// Finish or Discard ends it. It is NOT safe for concurrent use; execute
// one graph per stream at a time.
type Stream struct {
	encoder hal.CommandEncoder
	label   string
	pass    string
	done    bool

	textures []hal.TextureBarrier
	buffers  []hal.BufferBarrier

	barriers int
}

var (
	_ graph.CommandStream = (*Stream)(nil)
	_ graph.Labeler       = (*Stream)(nil)
)

// Begin creates a command encoder on device and starts recording.
func Begin(device hal.Device, label string) (*Stream, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	enc, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("native: create encoder %q: %w", label, err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("native: begin encoding %q: %w", label, err)
	}
	return &Stream{encoder: enc, label: label}, nil
}

// NewStream wraps an encoder that is already recording.
func NewStream(encoder hal.CommandEncoder, label string) (*Stream, error) {
	if encoder == nil {
		return nil, ErrNilEncoder
	}
	return &Stream{encoder: encoder, label: label}, nil
}

// Encoder returns the underlying encoder. Passes record their commands on
// it directly.
func (s *Stream) Encoder() hal.CommandEncoder { return s.encoder }

// Label returns the stream's debug label.
func (s *Stream) Label() string { return s.label }

// Pass returns the name of the pass being executed, or "" between passes.
func (s *Stream) Pass() string { return s.pass }

// BarrierCount returns the number of HAL transitions recorded so far.
func (s *Stream) BarrierCount() int { return s.barriers }

// BeginLabel implements graph.Labeler. The HAL encoder has no debug groups,
// so the label only names the pass in log records.
func (s *Stream) BeginLabel(name string) { s.pass = name }

// EndLabel implements graph.Labeler.
func (s *Stream) EndLabel() { s.pass = "" }

// PipelineBarrier implements graph.CommandStream. Image barriers become one
// TransitionTextures call and buffer barriers one TransitionBuffers call.
func (s *Stream) PipelineBarrier(images []graph.ResolvedImageBarrier, buffers []graph.ResolvedBufferBarrier) {
	s.textures = s.textures[:0]
	for _, b := range images {
		// The graph still emits the transition to PRESENT. hal has no present
		// usage; Queue.Present moves the surface texture into that layout.
		if b.Dst.Layout == graph.LayoutPresent || b.Image == nil || b.Image.Raw == nil {
			continue
		}
		s.textures = append(s.textures, hal.TextureBarrier{
			Texture: b.Image.Raw,
			Range:   fullRange(b.Image),
			Usage: hal.TextureUsageTransition{
				OldUsage: TextureUsage(b.Src.Layout),
				NewUsage: TextureUsage(b.Dst.Layout),
			},
		})
	}
	s.buffers = s.buffers[:0]
	for _, b := range buffers {
		if b.Buffer == nil || b.Buffer.Raw == nil {
			continue
		}
		s.buffers = append(s.buffers, hal.BufferBarrier{
			Buffer: b.Buffer.Raw,
			Usage: hal.BufferUsageTransition{
				OldUsage: BufferUsage(b.Src.Access),
				NewUsage: BufferUsage(b.Dst.Access),
			},
		})
	}

	if len(s.textures) > 0 {
		s.encoder.TransitionTextures(s.textures)
	}
	if len(s.buffers) > 0 {
		s.encoder.TransitionBuffers(s.buffers)
	}
	s.barriers += len(s.textures) + len(s.buffers)
	slogger().Debug("native: barriers",
		"stream", s.label,
		"pass", s.pass,
		"textures", len(s.textures),
		"buffers", len(s.buffers))
}

// Finish ends recording and returns the command buffer.
func (s *Stream) Finish() (hal.CommandBuffer, error) {
	if s.done {
		return nil, ErrStreamFinished
	}
	s.done = true
	cmd, err := s.encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("native: end encoding %q: %w", s.label, err)
	}
	return cmd, nil
}

// Discard abandons recording. It does nothing after Finish.
func (s *Stream) Discard() {
	if s.done {
		return
	}
	s.done = true
	s.encoder.DiscardEncoding()
}

// fullRange covers every subresource of img.
func fullRange(img *resource.Image) hal.TextureRange {
	return hal.TextureRange{
		Aspect:          img.Aspect(),
		MipLevelCount:   max(img.MipLevelCount, 1),
		ArrayLayerCount: max(img.DepthOrArrayLayers, 1),
	}
}

package graph

import "sync"

// ImageTransition is a recorded image barrier.
type ImageTransition struct {
	Name string
	Src  ImageState
	Dst  ImageState
}

// BufferTransition is a recorded buffer barrier.
type BufferTransition struct {
	Name string
	Src  BufferState
	Dst  BufferState
}

// CommandKind identifies a recorded command.
type CommandKind uint8

// Recorded command kinds.
const (
	CommandBarrier CommandKind = iota
	CommandBeginLabel
	CommandEndLabel
	CommandPass
)

// Command is one entry of a Recorder.
type Command struct {
	Kind    CommandKind
	Label   string
	Images  []ImageTransition
	Buffers []BufferTransition
}

// Recorder is a CommandStream that keeps what it is given. It is useful for
// tests and for inspecting what a graph records without a device.
//
// Recorder is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	commands []Command
}

var (
	_ CommandStream = (*Recorder)(nil)
	_ Labeler       = (*Recorder)(nil)
)

// PipelineBarrier implements CommandStream.
func (r *Recorder) PipelineBarrier(images []ResolvedImageBarrier, buffers []ResolvedBufferBarrier) {
	cmd := Command{Kind: CommandBarrier}
	for _, b := range images {
		cmd.Images = append(cmd.Images, ImageTransition{Name: b.Name, Src: b.Src, Dst: b.Dst})
	}
	for _, b := range buffers {
		cmd.Buffers = append(cmd.Buffers, BufferTransition{Name: b.Name, Src: b.Src, Dst: b.Dst})
	}
	r.append(cmd)
}

// BeginLabel implements Labeler.
func (r *Recorder) BeginLabel(name string) { r.append(Command{Kind: CommandBeginLabel, Label: name}) }

// EndLabel implements Labeler.
func (r *Recorder) EndLabel() { r.append(Command{Kind: CommandEndLabel}) }

// Mark records that a pass callback ran. Pass callbacks may call it through
// a type assertion on PassContext.Stream.
func (r *Recorder) Mark(pass string) { r.append(Command{Kind: CommandPass, Label: pass}) }

func (r *Recorder) append(cmd Command) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()
}

// Commands returns a copy of everything recorded so far.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.commands...)
}

// Barriers returns only the barrier commands.
func (r *Recorder) Barriers() []Command {
	var out []Command
	for _, c := range r.Commands() {
		if c.Kind == CommandBarrier {
			out = append(out, c)
		}
	}
	return out
}

// Reset discards everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.commands = nil
	r.mu.Unlock()
}

package graph

import (
	"errors"
	"slices"
	"testing"
)

func img(id uint32) ImageHandle  { return ImageHandle{id: id} }
func buf(id uint32) BufferHandle { return BufferHandle{id: id} }

func newInput(n int) DependencyInput {
	return DependencyInput{
		PassCount:    n,
		ImageReads:   make([][]ImageHandle, n),
		ImageWrites:  make([][]ImageHandle, n),
		BufferReads:  make([][]BufferHandle, n),
		BufferWrites: make([][]BufferHandle, n),
	}
}

func mustSort(t *testing.T, g *DependencyGraph) []int {
	t.Helper()
	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	return order
}

func TestAnalyzeChain(t *testing.T) {
	in := newInput(3)
	in.ImageWrites[0] = []ImageHandle{img(1)}
	in.ImageReads[1] = []ImageHandle{img(1)}
	in.ImageWrites[1] = []ImageHandle{img(2)}
	in.ImageReads[2] = []ImageHandle{img(2)}

	g := Analyze(in)
	if got := mustSort(t, g); !slices.Equal(got, []int{0, 1, 2}) {
		t.Errorf("order = %v, want [0 1 2]", got)
	}
	if !g.HasEdge(0, 1) || !g.HasEdge(1, 2) {
		t.Errorf("edges = %v, want 0->1 and 1->2", g.Edges())
	}
	if g.HasEdge(0, 2) {
		t.Error("unexpected edge 0->2: passes share no resource")
	}
}

func TestAnalyzeHazardKinds(t *testing.T) {
	tests := []struct {
		name     string
		first    bool // pass 0 writes
		second   bool // pass 1 writes
		wantEdge bool
	}{
		{"read after write", true, false, true},
		{"write after read", false, true, true},
		{"write after write", true, true, true},
		{"read after read", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newInput(2)
			for p, w := range []bool{tt.first, tt.second} {
				if w {
					in.BufferWrites[p] = []BufferHandle{buf(1)}
				} else {
					in.BufferReads[p] = []BufferHandle{buf(1)}
				}
			}
			g := Analyze(in)
			if got := g.HasEdge(0, 1); got != tt.wantEdge {
				t.Errorf("HasEdge(0, 1) = %v, want %v", got, tt.wantEdge)
			}
			if g.HasEdge(1, 0) {
				t.Error("edge points backwards")
			}
		})
	}
}

func TestAnalyzeNoReadReadEdges(t *testing.T) {
	// Writer, then two readers with nothing in between.
	in := newInput(3)
	in.ImageWrites[0] = []ImageHandle{img(1)}
	in.ImageReads[1] = []ImageHandle{img(1)}
	in.ImageReads[2] = []ImageHandle{img(1)}

	g := Analyze(in)
	if g.HasEdge(1, 2) || g.HasEdge(2, 1) {
		t.Errorf("readers are ordered against each other: %v", g.Edges())
	}
	if got := g.Predecessors(2); !slices.Equal(got, []int{0}) {
		t.Errorf("Predecessors(2) = %v, want [0]", got)
	}
}

func TestAnalyzeReadWriteSamePass(t *testing.T) {
	// Pass 1 both reads and writes: it counts as a writer, so pass 2's read
	// depends on it.
	in := newInput(3)
	in.BufferWrites[0] = []BufferHandle{buf(1)}
	in.BufferReads[1] = []BufferHandle{buf(1)}
	in.BufferWrites[1] = []BufferHandle{buf(1)}
	in.BufferReads[2] = []BufferHandle{buf(1)}

	g := Analyze(in)
	for _, e := range [][2]int{{0, 1}, {1, 2}, {0, 2}} {
		if !g.HasEdge(e[0], e[1]) {
			t.Errorf("missing edge %d->%d", e[0], e[1])
		}
	}
}

func TestTopologicalSortTieBreak(t *testing.T) {
	// 3 -> 0; 1 and 2 unconstrained. Ready passes go in declaration order.
	in := newInput(4)
	in.ImageWrites[3] = []ImageHandle{img(1)}
	in.ImageReads[0] = []ImageHandle{img(1)}
	in.UninitializedImages = []ImageHandle{img(1)}

	got := mustSort(t, Analyze(in))
	if want := []int{1, 2, 3, 0}; !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestUninitializedReadBeforeWriter(t *testing.T) {
	// Present is declared before Shade but reads what Shade writes.
	in := newInput(2)
	in.ImageReads[0] = []ImageHandle{img(1)}
	in.ImageWrites[1] = []ImageHandle{img(1)}

	initialized := Analyze(in)
	if !initialized.HasEdge(0, 1) {
		t.Error("initialized resource: read should precede the later write")
	}

	in.UninitializedImages = []ImageHandle{img(1)}
	g := Analyze(in)
	if !g.HasEdge(1, 0) || g.HasEdge(0, 1) {
		t.Errorf("uninitialized resource: edges = %v, want only 1->0", g.Edges())
	}
}

func TestUninitializedReaderPrecedesLaterWriters(t *testing.T) {
	// reader(0) writer(1) writer(2): 0 consumes 1's output, so 2 must wait
	// for 0.
	in := newInput(3)
	in.BufferReads[0] = []BufferHandle{buf(1)}
	in.BufferWrites[1] = []BufferHandle{buf(1)}
	in.BufferWrites[2] = []BufferHandle{buf(1)}
	in.UninitializedBuffers = []BufferHandle{buf(1)}

	got := mustSort(t, Analyze(in))
	if want := []int{1, 0, 2}; !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestTopologicalSortCycle(t *testing.T) {
	// P0 writes R, reads S; P1 writes S, reads R; P2 only follows P1.
	in := newInput(3)
	in.ImageWrites[0] = []ImageHandle{img(1)}
	in.ImageReads[0] = []ImageHandle{img(2)}
	in.ImageWrites[1] = []ImageHandle{img(2)}
	in.ImageReads[1] = []ImageHandle{img(1)}
	in.ImageReads[2] = []ImageHandle{img(2)}
	in.UninitializedImages = []ImageHandle{img(1), img(2)}

	_, err := Analyze(in).TopologicalSort()
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("err = %v, want ErrCycle", err)
	}
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("err is %T, want *CycleError", err)
	}
	if !slices.Equal(ce.Indices, []int{0, 1}) {
		t.Errorf("cycle = %v, want [0 1] (pass 2 is only downstream)", ce.Indices)
	}
}

func TestEdgesRecordResources(t *testing.T) {
	in := newInput(2)
	in.ImageWrites[0] = []ImageHandle{img(1), img(2)}
	in.ImageReads[1] = []ImageHandle{img(1), img(2)}
	in.BufferWrites[0] = []BufferHandle{buf(1)}
	in.BufferReads[1] = []BufferHandle{buf(1)}

	edges := Analyze(in).Edges()
	if len(edges) != 1 {
		t.Fatalf("len(Edges) = %d, want 1 deduplicated edge", len(edges))
	}
	e := edges[0]
	if len(e.Images) != 2 || len(e.Buffers) != 1 {
		t.Errorf("edge resources = %v / %v, want 2 images and 1 buffer", e.Images, e.Buffers)
	}
}
